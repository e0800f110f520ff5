// Package store holds session records behind a backend-agnostic interface.
// The in-memory map is the default; the Redis and Postgres backends implement
// the same contract so a durable store can be dropped in without touching the
// state machine.
package store

import (
	"context"

	"github.com/bellafleur/benly/internal/domain"
)

// SessionStore is the persistence contract of the session service.
// Get returns (nil, nil) for an absent session. Implementations return
// detached copies; callers mutate and Put back under the service's
// per-session lock.
type SessionStore interface {
	Get(ctx context.Context, sid string) (*domain.Session, error)
	Put(ctx context.Context, s *domain.Session) error
	Delete(ctx context.Context, sid string) error
	List(ctx context.Context) ([]*domain.Session, error)
	// Stale returns the sids of sessions whose last_seen (unix ms) is older
	// than cutoff. Deletion is left to the caller so timers can be cancelled
	// first.
	Stale(ctx context.Context, cutoff int64) ([]string, error)
	Close() error
}
