// Package session implements the state machine that drives a verification
// and booking flow: WAITING → AUTHING → AUTHED → BOOKING → SUCCESS, with
// EXPIRED on link timeout. All mutation happens under a per-session mutex so
// the booking timer, the sweeper and request handlers never interleave on the
// same record; racing writers resolve last-write-wins.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/bellafleur/benly/internal/authlink"
	"github.com/bellafleur/benly/internal/domain"
	"github.com/bellafleur/benly/internal/kafka"
	"github.com/bellafleur/benly/internal/store"
	"github.com/sirupsen/logrus"
)

type Producer interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

type Config struct {
	SessionTTL    time.Duration
	TickInterval  time.Duration
	SweepInterval time.Duration
	IdemWindow    time.Duration
	LiffID        string
	EventsTopic   string
}

type Service struct {
	store    store.SessionStore
	issuer   authlink.Issuer
	producer Producer
	log      *logrus.Logger
	cfg      Config
	outcome  OutcomeGenerator
	now      func() time.Time

	mu     sync.Mutex
	locks  map[string]*sync.Mutex
	timers map[string]*timerHandle
	wg     sync.WaitGroup
}

type Option func(*Service)

func WithOutcomeGenerator(g OutcomeGenerator) Option {
	return func(s *Service) { s.outcome = g }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(st store.SessionStore, issuer authlink.Issuer, producer Producer, log *logrus.Logger, cfg Config, opts ...Option) *Service {
	s := &Service{
		store:    st,
		issuer:   issuer,
		producer: producer,
		log:      log,
		cfg:      cfg,
		outcome:  NewRandomOutcome(),
		now:      time.Now,
		locks:    make(map[string]*sync.Mutex),
		timers:   make(map[string]*timerHandle),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) LiffID() string {
	return s.cfg.LiffID
}

func (s *Service) Hint(ua string) domain.OpenHint {
	return domain.BuildOpenHint(ua, s.cfg.LiffID)
}

// lockFor returns the mutex serializing all work on one session id.
func (s *Service) lockFor(sid string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[sid]
	if !ok {
		l = &sync.Mutex{}
		s.locks[sid] = l
	}
	return l
}

func (s *Service) dropLock(sid string) {
	s.mu.Lock()
	delete(s.locks, sid)
	s.mu.Unlock()
}

func (s *Service) StartAuth(ctx context.Context, in StartAuthInput) (json.RawMessage, error) {
	if in.SID == "" {
		return nil, domain.ErrMissingSID
	}
	l := s.lockFor(in.SID)
	l.Lock()
	defer l.Unlock()

	nowMs := s.now().UnixMilli()
	sess, err := s.store.Get(ctx, in.SID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sess == nil {
		sess = domain.NewSession(in.SID, nowMs)
	}
	sess.Touch(nowMs)

	// Duplicate click / replay: return the stored payload verbatim.
	if in.IdempotencyKey != "" {
		if entry, ok := sess.Idempotency[in.IdempotencyKey]; ok && nowMs-entry.TS < s.cfg.IdemWindow.Milliseconds() {
			if err := s.store.Put(ctx, sess); err != nil {
				return nil, fmt.Errorf("save session: %w", err)
			}
			return entry.Payload, nil
		}
	}

	clientInfo := in.ClientInfo
	if clientInfo == nil {
		clientInfo = map[string]any{"ua": in.UserAgent}
	}
	sess.LastClientInfo = clientInfo

	if in.AttemptNo > 0 {
		sess.AttemptNo = in.AttemptNo
	} else {
		sess.AttemptNo++
	}

	link, err := s.issuer.Issue(ctx)
	if err != nil {
		return nil, fmt.Errorf("issue link: %w", err)
	}
	applyLink(sess, link)

	ua := in.UserAgent
	if v, ok := clientInfo["ua"].(string); ok && v != "" {
		ua = v
	}
	hint := s.Hint(ua)

	sess.Append(nowMs, domain.EvStartAuth, map[string]any{
		"channel":     in.Channel,
		"client_info": clientInfo,
		"click_token": in.ClickToken,
		"idem_key":    in.IdempotencyKey,
		"hint":        hint,
	})

	resp := s.authResponse(sess, hint, link, nowMs)
	raw, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("marshal response: %w", err)
	}
	if in.IdempotencyKey != "" {
		sess.Idempotency[in.IdempotencyKey] = domain.IdempotencyEntry{Payload: raw, TS: nowMs}
	}

	if err := s.store.Put(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	s.publishAsync(kafka.SessionEvent{Type: kafka.EventStartAuth, SID: sess.SID, Status: string(sess.Status), AttemptNo: sess.AttemptNo})
	return raw, nil
}

func (s *Service) Status(ctx context.Context, sid string) (*StatusResponse, error) {
	if sid == "" {
		return nil, domain.ErrMissingSID
	}
	l := s.lockFor(sid)
	l.Lock()
	defer l.Unlock()

	nowMs := s.now().UnixMilli()
	sess, err := s.store.Get(ctx, sid)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sess == nil {
		return nil, domain.ErrUnknownSession
	}
	sess.Touch(nowMs)

	// Lazy expiry: the read itself flips AUTHING to EXPIRED, exactly once.
	if sess.Status == domain.StatusAuthing && nowMs > sess.ExpiresAt {
		sess.Status = domain.StatusExpired
		sess.Append(nowMs, domain.EvLinkExpired, nil)
		s.publishAsync(kafka.SessionEvent{Type: kafka.EventLinkExpired, SID: sid, Status: string(sess.Status)})
	}
	sess.Step = sess.Status.Step()

	resp := &StatusResponse{OK: true, SID: sid, Status: sess.Status, Step: sess.Step}
	switch sess.Status {
	case domain.StatusAuthing:
		ttl := authlink.RemainingSeconds(sess.ExpiresAt, nowMs)
		resp.TTL = &ttl
	case domain.StatusBooking:
		if sess.Progress != nil {
			p := *sess.Progress
			resp.Progress = &p
		}
	case domain.StatusSuccess:
		if sess.Result != nil {
			r := *sess.Result
			resp.Result = &r
		}
	case domain.StatusExpired:
		resp.Error = domain.EvLinkExpired
	}

	if err := s.store.Put(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	return resp, nil
}

func (s *Service) HandleCallback(ctx context.Context, in CallbackInput) (*CallbackResponse, error) {
	if in.SID == "" {
		return nil, domain.ErrMissingSID
	}
	l := s.lockFor(in.SID)
	l.Lock()
	defer l.Unlock()

	nowMs := s.now().UnixMilli()
	sess, err := s.store.Get(ctx, in.SID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sess == nil {
		return nil, domain.ErrUnknownSession
	}
	sess.Touch(nowMs)

	// Stale or misrouted callback: record it, leave status alone.
	if in.TxID != "" && sess.TxID != "" && in.TxID != sess.TxID {
		sess.Append(nowMs, domain.EvTxMismatch, map[string]any{"got": in.TxID, "expect": sess.TxID})
		if err := s.store.Put(ctx, sess); err != nil {
			return nil, fmt.Errorf("save session: %w", err)
		}
		return nil, domain.ErrTxMismatch
	}

	sess.Status = domain.StatusAuthed
	sess.Step = sess.Status.Step()
	sess.Append(nowMs, domain.EvDLTCallback, map[string]any{"event": in.Event, "dlt": in.DLT})
	s.publishAsync(kafka.SessionEvent{Type: kafka.EventAuthed, SID: sess.SID, Status: string(sess.Status)})

	// Entering AUTHED immediately arms the booking driver.
	s.cancelTimer(in.SID)
	sess.Status = domain.StatusBooking
	sess.Step = sess.Status.Step()
	sess.Progress = &domain.Progress{Phase: "fill_form", Percent: 8}
	sess.Append(nowMs, domain.EvBookingStart, nil)

	if err := s.store.Put(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	s.armSimulator(in.SID)
	s.publishAsync(kafka.SessionEvent{Type: kafka.EventBookingStart, SID: sess.SID, Status: string(sess.Status)})

	return &CallbackResponse{OK: true, SID: sess.SID, Status: sess.Status}, nil
}

var renewable = map[domain.Status]bool{
	domain.StatusWaiting: true,
	domain.StatusAuthing: true,
	domain.StatusExpired: true,
	domain.StatusError:   true,
}

func (s *Service) RenewLink(ctx context.Context, sid, fallbackUA string) (*AuthResponse, error) {
	if sid == "" {
		return nil, domain.ErrMissingSID
	}
	l := s.lockFor(sid)
	l.Lock()
	defer l.Unlock()

	nowMs := s.now().UnixMilli()
	sess, err := s.store.Get(ctx, sid)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sess == nil {
		return nil, domain.ErrUnknownSession
	}
	sess.Touch(nowMs)

	if !renewable[sess.Status] {
		if err := s.store.Put(ctx, sess); err != nil {
			return nil, fmt.Errorf("save session: %w", err)
		}
		return nil, domain.ErrCannotRenew
	}

	link, err := s.issuer.Issue(ctx)
	if err != nil {
		return nil, fmt.Errorf("issue link: %w", err)
	}
	applyLink(sess, link)
	s.cancelTimer(sid)

	ua := sess.LastUA()
	if ua == "" {
		ua = fallbackUA
	}
	hint := s.Hint(ua)
	sess.Append(nowMs, domain.EvRenewLink, map[string]any{"hint": hint})

	if err := s.store.Put(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	s.publishAsync(kafka.SessionEvent{Type: kafka.EventRenewLink, SID: sid, Status: string(sess.Status), AttemptNo: sess.AttemptNo})

	resp := s.authResponse(sess, hint, link, nowMs)
	return &resp, nil
}

// applyLink swaps in a renewed attempt; the four link fields always change
// together.
func applyLink(sess *domain.Session, link authlink.Link) {
	sess.Status = domain.StatusAuthing
	sess.Step = sess.Status.Step()
	sess.TxID = link.TxID
	sess.DeepLink = link.DeepLink
	sess.IssuedAt = link.IssuedAt
	sess.ExpiresAt = link.ExpiresAt
}

func (s *Service) authResponse(sess *domain.Session, hint domain.OpenHint, link authlink.Link, nowMs int64) AuthResponse {
	return AuthResponse{
		OK:     true,
		SID:    sess.SID,
		Status: sess.Status,
		Step:   sess.Step,
		Hint:   hint,
		Auth: AuthBlock{
			TxID:      link.TxID,
			DeepLink:  link.DeepLink,
			ExpiresIn: link.TTL(nowMs),
			IssuedAt:  link.IssuedAt / 1000,
		},
	}
}

// ApplyBookingProgress is the entry point for a real booking driver pushing
// progress instead of the built-in simulator. Percent never decreases.
func (s *Service) ApplyBookingProgress(ctx context.Context, sid, phase string, percent int) error {
	l := s.lockFor(sid)
	l.Lock()
	defer l.Unlock()

	sess, err := s.store.Get(ctx, sid)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if sess == nil {
		return domain.ErrUnknownSession
	}
	if sess.Status != domain.StatusAuthed && sess.Status != domain.StatusBooking {
		return fmt.Errorf("session %s not in a bookable status: %s", sid, sess.Status)
	}
	sess.Status = domain.StatusBooking
	sess.Step = sess.Status.Step()
	if sess.Progress != nil && percent < sess.Progress.Percent {
		percent = sess.Progress.Percent
	}
	sess.Progress = &domain.Progress{Phase: phase, Percent: percent}
	return s.store.Put(ctx, sess)
}

// CompleteBooking finalizes a session with an externally produced result.
func (s *Service) CompleteBooking(ctx context.Context, sid string, result domain.Result) error {
	l := s.lockFor(sid)
	l.Lock()
	defer l.Unlock()

	sess, err := s.store.Get(ctx, sid)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if sess == nil {
		return domain.ErrUnknownSession
	}
	s.cancelTimer(sid)
	nowMs := s.now().UnixMilli()
	if sess.Progress != nil {
		sess.Progress.Percent = 100
	}
	sess.Status = domain.StatusSuccess
	sess.Step = sess.Status.Step()
	sess.Result = &result
	sess.Append(nowMs, domain.EvSuccess, map[string]any{"result": result})
	if err := s.store.Put(ctx, sess); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	s.publishAsync(kafka.SessionEvent{Type: kafka.EventSuccess, SID: sid, Status: string(sess.Status), TicketNo: result.TicketNo, Plate: result.Plate})
	return nil
}

func (s *Service) ListSessions(ctx context.Context) (*SessionList, error) {
	sessions, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	nowMs := s.now().UnixMilli()
	list := &SessionList{Count: len(sessions), Sessions: make([]SessionSummary, 0, len(sessions))}
	for _, sess := range sessions {
		summary := SessionSummary{
			SID:       sess.SID,
			Status:    sess.Status,
			Step:      sess.Status.Step(),
			TxID:      sess.TxID,
			DeepLink:  domain.MaskLink(sess.DeepLink),
			AttemptNo: sess.AttemptNo,
			LastSeen:  sess.LastSeen,
		}
		if sess.ExpiresAt != 0 {
			ttl := authlink.RemainingSeconds(sess.ExpiresAt, nowMs)
			summary.ExpiresIn = &ttl
		}
		list.Sessions = append(list.Sessions, summary)
	}
	return list, nil
}

func (s *Service) GetSession(ctx context.Context, sid string) (*domain.Session, error) {
	sess, err := s.store.Get(ctx, sid)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sess == nil {
		return nil, domain.ErrUnknownSession
	}
	sess.DeepLink = domain.MaskLink(sess.DeepLink)
	return sess, nil
}

func (s *Service) DeleteSession(ctx context.Context, sid string) error {
	l := s.lockFor(sid)
	l.Lock()
	defer l.Unlock()

	sess, err := s.store.Get(ctx, sid)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if sess == nil {
		return domain.ErrUnknownSession
	}
	s.cancelTimer(sid)
	if err := s.store.Delete(ctx, sid); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	s.dropLock(sid)
	return nil
}

// Close stops every background timer and waits for them to drain.
func (s *Service) Close() {
	s.mu.Lock()
	for sid, h := range s.timers {
		h.cancel()
		delete(s.timers, sid)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Service) publishAsync(event kafka.SessionEvent) {
	if s.producer == nil {
		return
	}
	event.At = s.now()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.producer.Publish(ctx, s.cfg.EventsTopic, event.SID, event); err != nil {
			s.log.WithError(err).WithField("sid", event.SID).Warn("publish session event failed")
		}
	}()
}

var _ SessionUseCase = (*Service)(nil)
