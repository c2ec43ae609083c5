package users

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/aegis-auth/aegis/internal/shared"
)

// Store is the persistence surface the service uses.
type Store interface {
	CreateUser(ctx context.Context, provider, email, username, passwordHash string) (User, error)
	GetUser(ctx context.Context, id int64) (User, error)
	ListUsersWithRoles(ctx context.Context, provider string) ([]UserWithRoles, error)
	Suspend(ctx context.Context, id int64, reason string) error
	Unsuspend(ctx context.Context, id int64) error
	DeleteUser(ctx context.Context, id int64) error
	RevokeCredentials(ctx context.Context, userID int64) error
	MarkVerified(ctx context.Context, id int64, at time.Time) error
}

// Service wraps account management rules.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService constructs a Service.
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger}
}

// Register creates an account with a bcrypt password hash and returns the
// new user id.
func (s *Service) Register(ctx context.Context, provider, email, username, password string) (int64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return 0, shared.NewConfigurationError("email and password required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return 0, err
	}
	user, err := s.store.CreateUser(ctx, provider, email, strings.TrimSpace(username), string(hash))
	if err != nil {
		return 0, err
	}
	return user.ID, nil
}

// Get fetches an account.
func (s *Service) Get(ctx context.Context, id int64) (User, error) {
	return s.store.GetUser(ctx, id)
}

// List returns every account of a provider with role slugs.
func (s *Service) List(ctx context.Context, provider string) ([]UserWithRoles, error) {
	return s.store.ListUsersWithRoles(ctx, provider)
}

// Suspend marks the account suspended and revokes its live credentials so
// the suspension takes effect immediately, not on next login.
func (s *Service) Suspend(ctx context.Context, id int64, reason string) error {
	if err := s.store.Suspend(ctx, id, strings.TrimSpace(reason)); err != nil {
		return err
	}
	if err := s.store.RevokeCredentials(ctx, id); err != nil {
		s.logger.Error("credential revocation failed", slog.Int64("user_id", id), slog.Any("error", err))
		return err
	}
	return nil
}

// Unsuspend clears the suspension state.
func (s *Service) Unsuspend(ctx context.Context, id int64) error {
	return s.store.Unsuspend(ctx, id)
}

// Delete removes the account with its assignments and tokens.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.store.DeleteUser(ctx, id)
}
