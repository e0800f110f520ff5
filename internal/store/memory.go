package store

import (
	"context"
	"sort"
	"sync"

	"github.com/bellafleur/benly/internal/domain"
)

// MemoryStore keeps sessions in a plain map. Records are cloned on the way in
// and out so it behaves like the remote backends.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*domain.Session)}
}

func (m *MemoryStore) Get(ctx context.Context, sid string) (*domain.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sid]
	if !ok {
		return nil, nil
	}
	return s.Clone(), nil
}

func (m *MemoryStore) Put(ctx context.Context, s *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.SID] = s.Clone()
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, sid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sid)
	return nil
}

func (m *MemoryStore) List(ctx context.Context) ([]*domain.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SID < out[j].SID })
	return out, nil
}

func (m *MemoryStore) Stale(ctx context.Context, cutoff int64) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var sids []string
	for sid, s := range m.sessions {
		if s.LastSeen < cutoff {
			sids = append(sids, sid)
		}
	}
	return sids, nil
}

func (m *MemoryStore) Close() error { return nil }

var _ SessionStore = (*MemoryStore)(nil)
