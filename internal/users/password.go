package users

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/aegis-auth/aegis/internal/shared"
)

// PasswordResetStore is the persistence surface of the reset flow.
type PasswordResetStore interface {
	FindUserIDByEmail(ctx context.Context, provider, email string) (int64, error)
	CreatePasswordResetToken(ctx context.Context, userID int64, hash string, expiresAt time.Time) error
	ConsumePasswordResetToken(ctx context.Context, hash string) (int64, time.Time, error)
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
	RevokeCredentials(ctx context.Context, userID int64) error
}

// ResetMailEnqueuer hands reset emails to the background worker.
type ResetMailEnqueuer interface {
	EnqueuePasswordResetEmail(ctx context.Context, email, link string) error
}

// PasswordResetService issues and consumes single-use reset tokens.
type PasswordResetService struct {
	store   PasswordResetStore
	mail    ResetMailEnqueuer
	ttl     time.Duration
	baseURL string
	logger  *slog.Logger
	now     func() time.Time
}

// NewPasswordResetService constructs a PasswordResetService. mail may be nil,
// in which case no email is sent.
func NewPasswordResetService(store PasswordResetStore, mail ResetMailEnqueuer, ttl time.Duration, baseURL string, logger *slog.Logger) *PasswordResetService {
	if logger == nil {
		logger = slog.Default()
	}
	return &PasswordResetService{store: store, mail: mail, ttl: ttl, baseURL: baseURL, logger: logger, now: time.Now}
}

// Begin issues a fresh reset token for the account behind the email,
// replacing any prior one, and queues the reset email. An unknown email
// succeeds without sending anything so callers cannot probe which accounts
// exist.
func (p *PasswordResetService) Begin(ctx context.Context, provider, email string) error {
	userID, err := p.store.FindUserIDByEmail(ctx, provider, email)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			p.logger.Info("reset requested for unknown email", slog.String("provider", provider))
			return nil
		}
		return err
	}
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return err
	}
	token := hex.EncodeToString(raw)
	if err := p.store.CreatePasswordResetToken(ctx, userID, hashVerificationToken(token), p.now().Add(p.ttl)); err != nil {
		return err
	}
	if p.mail == nil {
		return nil
	}
	link := fmt.Sprintf("%s?token=%s", p.baseURL, url.QueryEscape(token))
	return p.mail.EnqueuePasswordResetEmail(ctx, email, link)
}

// Reset consumes a token and replaces the account password. Tokens are
// single use; expired or unknown tokens are rejected alike. Live credentials
// are revoked so stolen sessions do not survive the reset.
func (p *PasswordResetService) Reset(ctx context.Context, token, password string) error {
	userID, expiresAt, err := p.store.ConsumePasswordResetToken(ctx, hashVerificationToken(token))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.ErrTokenInvalid
		}
		return err
	}
	if p.now().After(expiresAt) {
		return shared.ErrTokenInvalid
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err := p.store.UpdatePassword(ctx, userID, string(hash)); err != nil {
		return err
	}
	return p.store.RevokeCredentials(ctx, userID)
}
