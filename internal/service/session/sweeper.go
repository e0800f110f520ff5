package session

import (
	"context"
	"time"

	"github.com/bellafleur/benly/internal/kafka"
)

// Run drives the eviction sweeper until the context is cancelled. Sessions
// untouched for longer than the session TTL are removed, their timers
// cancelled first.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Service) sweep(ctx context.Context) {
	cutoff := s.now().UnixMilli() - s.cfg.SessionTTL.Milliseconds()
	sids, err := s.store.Stale(ctx, cutoff)
	if err != nil {
		s.log.WithError(err).Error("sweep: stale scan failed")
		return
	}
	for _, sid := range sids {
		s.evict(ctx, sid, cutoff)
	}
}

// evict removes one stale session. Faults are contained per session so a bad
// record cannot halt the rest of the sweep.
func (s *Service) evict(ctx context.Context, sid string, cutoff int64) {
	defer func() {
		if r := recover(); r != nil {
			s.log.WithField("sid", sid).Errorf("sweep panic: %v", r)
		}
	}()

	l := s.lockFor(sid)
	l.Lock()
	defer l.Unlock()

	sess, err := s.store.Get(ctx, sid)
	if err != nil {
		s.log.WithError(err).WithField("sid", sid).Error("sweep: load failed")
		return
	}
	// The session may have been touched between the scan and now.
	if sess == nil || sess.LastSeen >= cutoff {
		return
	}
	s.cancelTimer(sid)
	if err := s.store.Delete(ctx, sid); err != nil {
		s.log.WithError(err).WithField("sid", sid).Error("sweep: delete failed")
		return
	}
	s.dropLock(sid)
	s.publishAsync(kafka.SessionEvent{Type: kafka.EventEvicted, SID: sid, Status: string(sess.Status)})
	s.log.WithField("sid", sid).Debug("session evicted")
}
