package session

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/bellafleur/benly/internal/domain"
	"github.com/bellafleur/benly/internal/kafka"
)

// OutcomeGenerator produces the terminal booking result. The random default
// stands in for the real DLT backend; swap it to return real ticket data.
type OutcomeGenerator interface {
	Generate(now time.Time) domain.Result
}

var thaiConsonants = []rune("กขคงจฉชซญฎฏฐฑฒณดตถทธนบปผฝพฟภมยรลวศษสหฬอฮ")

type randomOutcome struct{}

func NewRandomOutcome() OutcomeGenerator {
	return randomOutcome{}
}

func (randomOutcome) Generate(now time.Time) domain.Result {
	pick := func() rune { return thaiConsonants[rand.IntN(len(thaiConsonants))] }
	return domain.Result{
		TicketNo: fmt.Sprintf("DLT-%s-%03d", now.Format("20060102"), rand.IntN(1000)),
		Plate:    fmt.Sprintf("%c%c%d", pick(), pick(), rand.IntN(9000)+1000),
	}
}

type timerHandle struct {
	cancel context.CancelFunc
}

// armSimulator starts the booking progress timer for a session. The caller
// must hold the session lock and have cancelled any prior timer.
func (s *Service) armSimulator(sid string) {
	ctx, cancel := context.WithCancel(context.Background())
	h := &timerHandle{cancel: cancel}

	s.mu.Lock()
	s.timers[sid] = h
	s.mu.Unlock()

	s.wg.Add(1)
	go s.runSimulator(ctx, sid, h)
}

func (s *Service) runSimulator(ctx context.Context, sid string, h *timerHandle) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		if s.timers[sid] == h {
			delete(s.timers, sid)
		}
		s.mu.Unlock()
	}()

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.tick(sid, h) {
				return
			}
		}
	}
}

// tick advances booking progress by one step. Returns true when the timer
// should stop: session gone, no longer BOOKING, superseded, or finished.
func (s *Service) tick(sid string, h *timerHandle) (done bool) {
	defer func() {
		// A fault in one session's timer must not take anything else down.
		if r := recover(); r != nil {
			s.log.WithField("sid", sid).Errorf("booking tick panic: %v", r)
			done = true
		}
	}()

	l := s.lockFor(sid)
	l.Lock()
	defer l.Unlock()

	// A renewed attempt may have re-armed the timer while this tick waited
	// on the lock; a superseded timer must not touch the session.
	s.mu.Lock()
	current := s.timers[sid] == h
	s.mu.Unlock()
	if !current {
		return true
	}

	ctx := context.Background()
	sess, err := s.store.Get(ctx, sid)
	if err != nil {
		s.log.WithError(err).WithField("sid", sid).Error("booking tick load failed")
		return false
	}
	if sess == nil || sess.Status != domain.StatusBooking || sess.Progress == nil {
		return true
	}

	sess.Progress.Percent += 10 + rand.IntN(15)
	if sess.Progress.Percent < 100 {
		if err := s.store.Put(ctx, sess); err != nil {
			s.log.WithError(err).WithField("sid", sid).Error("booking tick save failed")
		}
		return false
	}

	sess.Progress.Percent = 100
	now := s.now()
	result := s.outcome.Generate(now)
	sess.Status = domain.StatusSuccess
	sess.Step = sess.Status.Step()
	sess.Result = &result
	sess.Append(now.UnixMilli(), domain.EvSuccess, map[string]any{"result": result})
	if err := s.store.Put(ctx, sess); err != nil {
		s.log.WithError(err).WithField("sid", sid).Error("booking finalize save failed")
		return false
	}
	s.publishAsync(kafka.SessionEvent{Type: kafka.EventSuccess, SID: sid, Status: string(sess.Status), TicketNo: result.TicketNo, Plate: result.Plate})
	return true
}

// cancelTimer stops the session's progress timer if one is registered.
func (s *Service) cancelTimer(sid string) {
	s.mu.Lock()
	h := s.timers[sid]
	delete(s.timers, sid)
	s.mu.Unlock()
	if h != nil {
		h.cancel()
	}
}
