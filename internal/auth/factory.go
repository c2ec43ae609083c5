package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/aegis-auth/aegis/internal/guard"
	"github.com/aegis-auth/aegis/internal/shared"
)

// CredentialStore resolves accounts for the login gate.
type CredentialStore interface {
	FindByCredential(ctx context.Context, provider string, fields []string, identity string) (Account, error)
	FindAccount(ctx context.Context, id int64) (Account, error)
}

// TokenStore persists opaque token records.
type TokenStore interface {
	CreateToken(ctx context.Context, t Token) (int64, error)
	FindTokenByHash(ctx context.Context, hash string) (Token, error)
	DeleteToken(ctx context.Context, id int64) error
	DeleteUserTokens(ctx context.Context, userID int64, guard string) error
}

// OAuthTokenStore persists OAuth2-style access token records.
type OAuthTokenStore interface {
	CreateAccessToken(ctx context.Context, t AccessToken) error
	FindAccessToken(ctx context.Context, id string) (AccessToken, error)
	RevokeAccessToken(ctx context.Context, id string) error
	RevokeUserAccessTokens(ctx context.Context, userID int64, guard string) error
}

// Denylist records revoked signed-token ids until they expire.
type Denylist interface {
	Add(ctx context.Context, jti string, ttl time.Duration) error
	Contains(ctx context.Context, jti string) (bool, error)
}

// RoleSource supplies role slugs for embedding into signed tokens.
type RoleSource interface {
	RoleSlugsOfUser(ctx context.Context, userID int64) ([]string, error)
}

// Deps bundles the backend collaborators drivers may need. A driver whose
// collaborator is missing fails construction with DependencyMissingError.
type Deps struct {
	Credentials CredentialStore
	Tokens      TokenStore
	OAuthTokens OAuthTokenStore
	Denylist    Denylist
	Roles       RoleSource
	Logger      *slog.Logger
}

// Factory constructs drivers per guard, honouring per-guard overrides.
type Factory struct {
	cfg    Config
	guards guard.Config
	deps   Deps

	mu      sync.Mutex
	drivers map[string]Driver
}

// NewFactory builds a Factory.
func NewFactory(cfg Config, guards guard.Config, deps Deps) *Factory {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Factory{cfg: cfg, guards: guards, deps: deps, drivers: make(map[string]Driver)}
}

// Driver returns the driver configured for a guard. An unknown driver name is
// a configuration fault; a known driver with an unconfigured backend is a
// missing dependency.
func (f *Factory) Driver(guardName string) (Driver, error) {
	name := f.cfg.DriverFor(guardName)

	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.drivers[name]; ok {
		return d, nil
	}

	var d Driver
	switch name {
	case DriverOpaqueToken:
		if f.deps.Tokens == nil {
			return nil, &shared.DependencyMissingError{
				Driver:     name,
				Dependency: "token store",
				Setup:      "wire a database pool with the auth_tokens table",
			}
		}
		d = &TokenDriver{f: f}
	case DriverOAuth2:
		if f.deps.OAuthTokens == nil {
			return nil, &shared.DependencyMissingError{
				Driver:     name,
				Dependency: "access token store",
				Setup:      "wire a database pool with the oauth_access_tokens table",
			}
		}
		d = &OAuthDriver{f: f}
	case DriverSignedToken:
		if f.cfg.JWTSecret == "" {
			return nil, &shared.DependencyMissingError{
				Driver:     name,
				Dependency: "signing secret",
				Setup:      "set AUTH_JWT_SECRET",
			}
		}
		if f.deps.Denylist == nil {
			return nil, &shared.DependencyMissingError{
				Driver:     name,
				Dependency: "revocation store",
				Setup:      "wire a Redis backend for the token denylist",
			}
		}
		d = &JWTDriver{f: f}
	default:
		return nil, shared.NewConfigurationError("unknown auth driver %q, valid drivers: %s",
			name, strings.Join(ValidDrivers(), ", "))
	}
	f.drivers[name] = d
	return d, nil
}

// GuardProbe adapts the factory into the resolver's authentication probe: a
// guard matches when the request's bearer token validates under it.
func (f *Factory) GuardProbe() guard.ProbeFunc {
	return func(r *http.Request, guardName string) bool {
		token := BearerToken(r)
		if token == "" {
			return false
		}
		d, err := f.Driver(guardName)
		if err != nil {
			return false
		}
		ctx := guard.WithGuard(r.Context(), guardName)
		_, err = d.ValidateToken(ctx, token)
		return err == nil
	}
}

// guardFrom returns the resolved guard, falling back to the default.
func (f *Factory) guardFrom(ctx context.Context) string {
	if name, ok := guard.FromContext(ctx); ok {
		return name
	}
	return f.guards.Default
}

// authenticate runs the shared login gate. A missing account and a wrong
// password collapse into the same error; suspension and the verification
// gate stay distinct.
func (f *Factory) authenticate(ctx context.Context, guardName string, creds Credentials) (Account, error) {
	provider, err := f.guards.UserSpace(guardName)
	if err != nil {
		return Account{}, err
	}
	account, err := f.deps.Credentials.FindByCredential(ctx, provider, f.cfg.CredentialFields, strings.TrimSpace(creds.Identity))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Account{}, shared.ErrInvalidCredentials
		}
		return Account{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(creds.Password)) != nil {
		return Account{}, shared.ErrInvalidCredentials
	}
	if account.Suspended {
		return Account{}, &shared.AccountSuspendedError{Reason: account.SuspendedFor}
	}
	if f.cfg.CheckVerified && account.VerifiedAt == nil {
		return Account{}, shared.ErrAccountUnverified
	}
	return account, nil
}

// BearerToken extracts the bearer credential from a request.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
