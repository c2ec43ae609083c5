package users

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/aegis-auth/aegis/internal/shared"
)

// VerificationStore is the persistence surface of the verification flow.
type VerificationStore interface {
	CreateVerificationToken(ctx context.Context, userID int64, hash string, expiresAt time.Time) error
	ConsumeVerificationToken(ctx context.Context, hash string) (int64, time.Time, error)
	MarkVerified(ctx context.Context, id int64, at time.Time) error
}

// MailEnqueuer hands verification emails to the background worker.
type MailEnqueuer interface {
	EnqueueVerificationEmail(ctx context.Context, email, link string) error
}

// VerificationService issues and consumes single-use verification tokens.
type VerificationService struct {
	store   VerificationStore
	mail    MailEnqueuer
	ttl     time.Duration
	baseURL string
	now     func() time.Time
}

// NewVerificationService constructs a VerificationService. mail may be nil,
// in which case no email is sent.
func NewVerificationService(store VerificationStore, mail MailEnqueuer, ttl time.Duration, baseURL string) *VerificationService {
	return &VerificationService{store: store, mail: mail, ttl: ttl, baseURL: baseURL, now: time.Now}
}

// Begin issues a fresh token for the user, replacing any prior one, and
// queues the verification email.
func (v *VerificationService) Begin(ctx context.Context, userID int64, email string) error {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return err
	}
	token := hex.EncodeToString(raw)
	if err := v.store.CreateVerificationToken(ctx, userID, hashVerificationToken(token), v.now().Add(v.ttl)); err != nil {
		return err
	}
	if v.mail == nil {
		return nil
	}
	link := fmt.Sprintf("%s?token=%s", v.baseURL, url.QueryEscape(token))
	return v.mail.EnqueueVerificationEmail(ctx, email, link)
}

// Confirm consumes a token and marks the account verified. Tokens are single
// use; expired or unknown tokens are rejected alike.
func (v *VerificationService) Confirm(ctx context.Context, token string) error {
	userID, expiresAt, err := v.store.ConsumeVerificationToken(ctx, hashVerificationToken(token))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.ErrTokenInvalid
		}
		return err
	}
	if v.now().After(expiresAt) {
		return shared.ErrTokenInvalid
	}
	return v.store.MarkVerified(ctx, userID, v.now())
}

func hashVerificationToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
