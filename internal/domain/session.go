package domain

import (
	"encoding/json"
	"net/url"
	"strings"
)

type Status string

const (
	StatusWaiting Status = "WAITING"
	StatusAuthing Status = "AUTHING"
	StatusAuthed  Status = "AUTHED"
	StatusBooking Status = "BOOKING"
	StatusSuccess Status = "SUCCESS"
	StatusExpired Status = "EXPIRED"
	StatusError   Status = "ERROR"
)

// Step maps a status onto the 3-step progress bar shown by the front-end.
func (s Status) Step() int {
	switch s {
	case StatusSuccess:
		return 3
	case StatusAuthing, StatusAuthed, StatusBooking:
		return 2
	default:
		return 1
	}
}

// History event names. Entries are append-only.
const (
	EvStartAuth    = "START_AUTH"
	EvRenewLink    = "RENEW_LINK"
	EvLinkExpired  = "LINK_EXPIRED"
	EvTxMismatch   = "TX_MISMATCH"
	EvDLTCallback  = "DLT_CALLBACK"
	EvBookingStart = "BOOKING_START"
	EvSuccess      = "SUCCESS"
)

type HistoryEntry struct {
	TS   int64          `json:"ts"`
	Ev   string         `json:"ev"`
	Meta map[string]any `json:"meta,omitempty"`
}

type Progress struct {
	Phase   string `json:"phase"`
	Percent int    `json:"percent"`
}

type Result struct {
	TicketNo string `json:"ticket_no"`
	Plate    string `json:"plate"`
}

type IdempotencyEntry struct {
	Payload json.RawMessage `json:"payload"`
	TS      int64           `json:"ts"`
}

// Session is one end-to-end verification/booking flow instance. All
// timestamps are unix milliseconds. Timer handles are deliberately not part
// of the record; they cannot survive a store round-trip and live in the
// session service instead.
type Session struct {
	SID            string                      `json:"sid"`
	Status         Status                      `json:"status"`
	Step           int                         `json:"step"`
	TxID           string                      `json:"txID,omitempty"`
	DeepLink       string                      `json:"deep_link,omitempty"`
	IssuedAt       int64                       `json:"issued_at,omitempty"`
	ExpiresAt      int64                       `json:"expires_at,omitempty"`
	AttemptNo      int                         `json:"attempt_no"`
	LastSeen       int64                       `json:"last_seen"`
	Progress       *Progress                   `json:"progress,omitempty"`
	Result         *Result                     `json:"result,omitempty"`
	History        []HistoryEntry              `json:"history"`
	LastClientInfo map[string]any              `json:"last_client_info,omitempty"`
	Idempotency    map[string]IdempotencyEntry `json:"idempotency,omitempty"`
}

func NewSession(sid string, now int64) *Session {
	return &Session{
		SID:         sid,
		Status:      StatusWaiting,
		Step:        1,
		LastSeen:    now,
		History:     []HistoryEntry{},
		Idempotency: map[string]IdempotencyEntry{},
	}
}

// Touch refreshes last_seen; eviction correctness depends on every
// read/write path calling it.
func (s *Session) Touch(now int64) {
	s.LastSeen = now
}

func (s *Session) Append(now int64, ev string, meta map[string]any) {
	s.History = append(s.History, HistoryEntry{TS: now, Ev: ev, Meta: meta})
}

// LastUA returns the user-agent remembered from the most recent client_info.
func (s *Session) LastUA() string {
	if s.LastClientInfo == nil {
		return ""
	}
	if ua, ok := s.LastClientInfo["ua"].(string); ok {
		return ua
	}
	return ""
}

// Clone deep-copies the record so callers can mutate it without aliasing
// whatever the store handed out.
func (s *Session) Clone() *Session {
	c := *s
	c.History = append([]HistoryEntry(nil), s.History...)
	if s.Progress != nil {
		p := *s.Progress
		c.Progress = &p
	}
	if s.Result != nil {
		r := *s.Result
		c.Result = &r
	}
	if s.LastClientInfo != nil {
		c.LastClientInfo = make(map[string]any, len(s.LastClientInfo))
		for k, v := range s.LastClientInfo {
			c.LastClientInfo[k] = v
		}
	}
	if s.Idempotency != nil {
		c.Idempotency = make(map[string]IdempotencyEntry, len(s.Idempotency))
		for k, v := range s.Idempotency {
			c.Idempotency[k] = v
		}
	}
	return &c
}

// MaskLink hides the middle of the txID inside a deep link so introspection
// endpoints never leak a usable link.
func MaskLink(link string) string {
	if link == "" {
		return ""
	}
	u, err := url.Parse(link)
	if err != nil {
		return link
	}
	tx := u.Query().Get("txID")
	if len(tx) > 8 {
		masked := tx[:4] + "…" + tx[len(tx)-4:]
		return strings.ReplaceAll(link, tx, masked)
	}
	return link
}
