package users

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/aegis-auth/aegis/internal/shared"
)

type resetMail struct {
	email string
	link  string
}

type fakeResetMailer struct {
	sent []resetMail
}

func (f *fakeResetMailer) EnqueuePasswordResetEmail(_ context.Context, email, link string) error {
	f.sent = append(f.sent, resetMail{email: email, link: link})
	return nil
}

func newResetFixture(t *testing.T) (*fakeUserStore, *fakeResetMailer, *PasswordResetService, int64) {
	t.Helper()
	store := newFakeUserStore()
	mailer := &fakeResetMailer{}
	svc := NewPasswordResetService(store, mailer, time.Hour, "http://localhost/reset-password", nil)
	id, err := NewService(store, nil).Register(context.Background(), "users", "kai@example.com", "", "secret123")
	require.NoError(t, err)
	return store, mailer, svc, id
}

func TestPasswordResetUnknownEmailDoesNotLeak(t *testing.T) {
	_, mailer, svc, _ := newResetFixture(t)

	err := svc.Begin(context.Background(), "users", "ghost@example.com")
	assert.NoError(t, err, "unknown email must look exactly like a known one")
	assert.Empty(t, mailer.sent)
}

func TestPasswordResetRoundtrip(t *testing.T) {
	store, mailer, svc, id := newResetFixture(t)
	ctx := context.Background()

	require.NoError(t, svc.Begin(ctx, "users", "kai@example.com"))
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "kai@example.com", mailer.sent[0].email)

	token := tokenFromLink(t, mailer.sent[0].link)
	require.NoError(t, svc.Reset(ctx, token, "newsecret99"))

	hash := store.passwords[id]
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("newsecret99")))
	assert.Error(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("secret123")))
	assert.True(t, store.revoked[id], "live credentials are revoked with the old password")

	// single use
	err := svc.Reset(ctx, token, "another999")
	assert.ErrorIs(t, err, shared.ErrTokenInvalid)
}

func TestPasswordResetReissueReplacesToken(t *testing.T) {
	_, mailer, svc, _ := newResetFixture(t)
	ctx := context.Background()

	require.NoError(t, svc.Begin(ctx, "users", "kai@example.com"))
	require.NoError(t, svc.Begin(ctx, "users", "kai@example.com"))
	require.Len(t, mailer.sent, 2)

	first := tokenFromLink(t, mailer.sent[0].link)
	second := tokenFromLink(t, mailer.sent[1].link)

	assert.ErrorIs(t, svc.Reset(ctx, first, "newsecret99"), shared.ErrTokenInvalid)
	assert.NoError(t, svc.Reset(ctx, second, "newsecret99"))
}

func TestPasswordResetExpiredToken(t *testing.T) {
	store, mailer, svc, id := newResetFixture(t)
	ctx := context.Background()

	require.NoError(t, svc.Begin(ctx, "users", "kai@example.com"))
	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	token := tokenFromLink(t, mailer.sent[0].link)
	assert.ErrorIs(t, svc.Reset(ctx, token, "newsecret99"), shared.ErrTokenInvalid)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(store.passwords[id]), []byte("secret123")),
		"password unchanged after rejected reset")
}
