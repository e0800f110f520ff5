package session

import (
	"context"
	"encoding/json"

	"github.com/bellafleur/benly/internal/domain"
)

// SessionUseCase is the surface consumed by the HTTP layer.
type SessionUseCase interface {
	StartAuth(ctx context.Context, in StartAuthInput) (json.RawMessage, error)
	Status(ctx context.Context, sid string) (*StatusResponse, error)
	HandleCallback(ctx context.Context, in CallbackInput) (*CallbackResponse, error)
	RenewLink(ctx context.Context, sid, fallbackUA string) (*AuthResponse, error)
	Hint(ua string) domain.OpenHint
	LiffID() string
	ListSessions(ctx context.Context) (*SessionList, error)
	GetSession(ctx context.Context, sid string) (*domain.Session, error)
	DeleteSession(ctx context.Context, sid string) error
}

type StartAuthInput struct {
	SID            string
	ClickToken     string
	AttemptNo      int
	Channel        string
	ClientInfo     map[string]any
	IdempotencyKey string
	UserAgent      string
}

type CallbackInput struct {
	SID   string
	TxID  string
	Event string
	DLT   map[string]any
}

// AuthBlock carries the issued link. issued_at is unix seconds on the wire
// even though the record keeps milliseconds.
type AuthBlock struct {
	TxID      string `json:"txID"`
	DeepLink  string `json:"deep_link"`
	ExpiresIn int64  `json:"expires_in"`
	IssuedAt  int64  `json:"issued_at"`
}

type AuthResponse struct {
	OK     bool            `json:"ok"`
	SID    string          `json:"sid"`
	Status domain.Status   `json:"status"`
	Step   int             `json:"step"`
	Hint   domain.OpenHint `json:"hint"`
	Auth   AuthBlock       `json:"auth"`
}

type StatusResponse struct {
	OK       bool             `json:"ok"`
	SID      string           `json:"sid"`
	Status   domain.Status    `json:"status"`
	Step     int              `json:"step"`
	TTL      *int64           `json:"ttl,omitempty"`
	Progress *domain.Progress `json:"progress,omitempty"`
	Result   *domain.Result   `json:"result,omitempty"`
	Error    string           `json:"error,omitempty"`
}

type CallbackResponse struct {
	OK     bool          `json:"ok"`
	SID    string        `json:"sid"`
	Status domain.Status `json:"status"`
}

type SessionSummary struct {
	SID       string        `json:"sid"`
	Status    domain.Status `json:"status"`
	Step      int           `json:"step"`
	TxID      string        `json:"txID,omitempty"`
	DeepLink  string        `json:"deep_link"`
	ExpiresIn *int64        `json:"expires_in"`
	AttemptNo int           `json:"attempt_no"`
	LastSeen  int64         `json:"last_seen"`
}

type SessionList struct {
	Count    int              `json:"count"`
	Sessions []SessionSummary `json:"sessions"`
}
