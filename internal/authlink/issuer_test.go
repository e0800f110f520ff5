package authlink

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTemplateIssuer_Issue(t *testing.T) {
	issuer := NewTemplateIssuer(180 * time.Second)

	link, err := issuer.Issue(context.Background())
	assert.NoError(t, err)
	assert.NotEmpty(t, link.TxID)
	assert.Contains(t, link.DeepLink, "https://imauth.bora.dopa.go.th/oauth2/")
	assert.Contains(t, link.DeepLink, "txID="+link.TxID)
	assert.Contains(t, link.DeepLink, "qrcode=AUTHEN-"+link.TxID)
	assert.Equal(t, link.IssuedAt+180_000, link.ExpiresAt)
}

func TestTemplateIssuer_FreshTxIDPerIssue(t *testing.T) {
	issuer := NewTemplateIssuer(time.Minute)
	a, _ := issuer.Issue(context.Background())
	b, _ := issuer.Issue(context.Background())
	assert.NotEqual(t, a.TxID, b.TxID)
}

func TestRemainingSeconds(t *testing.T) {
	assert.Equal(t, int64(0), RemainingSeconds(1000, 2000))
	assert.Equal(t, int64(0), RemainingSeconds(1000, 1000))
	assert.Equal(t, int64(1), RemainingSeconds(1500, 1000))
	assert.Equal(t, int64(180), RemainingSeconds(181_000, 1000))
}
