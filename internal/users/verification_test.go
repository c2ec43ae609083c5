package users

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegis-auth/aegis/internal/shared"
)

type capturedMail struct {
	email string
	link  string
}

type fakeMailer struct {
	sent []capturedMail
}

func (f *fakeMailer) EnqueueVerificationEmail(_ context.Context, email, link string) error {
	f.sent = append(f.sent, capturedMail{email: email, link: link})
	return nil
}

func tokenFromLink(t *testing.T, link string) string {
	t.Helper()
	u, err := url.Parse(link)
	require.NoError(t, err)
	return u.Query().Get("token")
}

func TestVerificationRoundtrip(t *testing.T) {
	store := newFakeUserStore()
	mailer := &fakeMailer{}
	svc := NewVerificationService(store, mailer, time.Hour, "http://localhost/verify-email")
	ctx := context.Background()

	id, err := NewService(store, nil).Register(ctx, "users", "kai@example.com", "", "secret123")
	require.NoError(t, err)

	require.NoError(t, svc.Begin(ctx, id, "kai@example.com"))
	require.Len(t, mailer.sent, 1)
	assert.True(t, strings.HasPrefix(mailer.sent[0].link, "http://localhost/verify-email?token="))

	token := tokenFromLink(t, mailer.sent[0].link)
	require.NoError(t, svc.Confirm(ctx, token))
	assert.NotNil(t, store.users[id].VerifiedAt)

	// single use
	err = svc.Confirm(ctx, token)
	assert.ErrorIs(t, err, shared.ErrTokenInvalid)
}

func TestVerificationReissueReplacesToken(t *testing.T) {
	store := newFakeUserStore()
	mailer := &fakeMailer{}
	svc := NewVerificationService(store, mailer, time.Hour, "http://localhost/verify-email")
	ctx := context.Background()

	id, err := NewService(store, nil).Register(ctx, "users", "kai@example.com", "", "secret123")
	require.NoError(t, err)

	require.NoError(t, svc.Begin(ctx, id, "kai@example.com"))
	require.NoError(t, svc.Begin(ctx, id, "kai@example.com"))
	require.Len(t, mailer.sent, 2)

	first := tokenFromLink(t, mailer.sent[0].link)
	second := tokenFromLink(t, mailer.sent[1].link)

	assert.ErrorIs(t, svc.Confirm(ctx, first), shared.ErrTokenInvalid)
	assert.NoError(t, svc.Confirm(ctx, second))
}

func TestVerificationExpiredToken(t *testing.T) {
	store := newFakeUserStore()
	mailer := &fakeMailer{}
	svc := NewVerificationService(store, mailer, time.Hour, "http://localhost/verify-email")
	ctx := context.Background()

	id, err := NewService(store, nil).Register(ctx, "users", "kai@example.com", "", "secret123")
	require.NoError(t, err)
	require.NoError(t, svc.Begin(ctx, id, "kai@example.com"))

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	token := tokenFromLink(t, mailer.sent[0].link)
	assert.ErrorIs(t, svc.Confirm(ctx, token), shared.ErrTokenInvalid)
	assert.Nil(t, store.users[id].VerifiedAt)
}
