// Package authlink issues the short-lived ThaiID deep links a session hands
// to the front-end. The template issuer stands in for the real identity
// provider; swapping in a real client only needs another Issuer.
package authlink

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const deepLinkTemplate = "https://imauth.bora.dopa.go.th/oauth2/?version=2&txID=%s&qrcode=AUTHEN-%s#/"

// Link is one issued deep link. Timestamps are unix milliseconds.
type Link struct {
	TxID      string
	DeepLink  string
	IssuedAt  int64
	ExpiresAt int64
}

// TTL returns the remaining validity in whole seconds, never negative.
func (l Link) TTL(now int64) int64 {
	return RemainingSeconds(l.ExpiresAt, now)
}

func RemainingSeconds(expiresAt, now int64) int64 {
	if expiresAt <= now {
		return 0
	}
	return (expiresAt - now + 999) / 1000
}

type Issuer interface {
	Issue(ctx context.Context) (Link, error)
}

// TemplateIssuer generates a fresh transaction id locally and formats the
// fixed oauth2 deep-link template around it.
type TemplateIssuer struct {
	ttl time.Duration
	now func() time.Time
}

func NewTemplateIssuer(ttl time.Duration) *TemplateIssuer {
	return &TemplateIssuer{ttl: ttl, now: time.Now}
}

func (i *TemplateIssuer) Issue(ctx context.Context) (Link, error) {
	tx := uuid.NewString()
	issued := i.now().UnixMilli()
	return Link{
		TxID:      tx,
		DeepLink:  fmt.Sprintf(deepLinkTemplate, tx, tx),
		IssuedAt:  issued,
		ExpiresAt: issued + i.ttl.Milliseconds(),
	}, nil
}

var _ Issuer = (*TemplateIssuer)(nil)
