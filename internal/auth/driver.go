package auth

import (
	"context"

	"github.com/aegis-auth/aegis/internal/shared"
)

// Driver is the contract every token technology implements. The active guard
// is read from the request context; a token issued under one guard never
// validates under another.
type Driver interface {
	// Login verifies credentials and issues token material.
	Login(ctx context.Context, creds Credentials) (*LoginResult, error)
	// Logout revokes the principal's current credential.
	Logout(ctx context.Context, principal *shared.Principal) error
	// Refresh rotates the principal's credential.
	Refresh(ctx context.Context, principal *shared.Principal) (*LoginResult, error)
	// ValidateToken resolves a bearer token to a principal.
	ValidateToken(ctx context.Context, token string) (*shared.Principal, error)
}

// RefreshValidator is implemented by drivers that issue a dedicated refresh
// credential distinct from the access token.
type RefreshValidator interface {
	ValidateRefresh(ctx context.Context, token string) (*shared.Principal, error)
}
