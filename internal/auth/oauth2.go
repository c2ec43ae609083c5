package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/aegis-auth/aegis/internal/shared"
)

// OAuthDriver implements the oauth2 technology: uuid access tokens with a
// server-side revocation flag and a scope list. Scopes are an internal
// concern of this driver and never leak into the shared contract.
type OAuthDriver struct {
	f *Factory
}

var defaultScopes = []string{"*"}

// Login verifies credentials and issues an access token.
func (d *OAuthDriver) Login(ctx context.Context, creds Credentials) (*LoginResult, error) {
	guardName := d.f.guardFrom(ctx)
	account, err := d.f.authenticate(ctx, guardName, creds)
	if err != nil {
		return nil, err
	}
	if d.f.cfg.SingleSession {
		if err := d.f.deps.OAuthTokens.RevokeUserAccessTokens(ctx, account.ID, guardName); err != nil {
			return nil, err
		}
	}
	return d.issue(ctx, account.ID, guardName)
}

// Logout revokes every access token the principal holds under its guard.
func (d *OAuthDriver) Logout(ctx context.Context, principal *shared.Principal) error {
	return d.f.deps.OAuthTokens.RevokeUserAccessTokens(ctx, principal.UserID, principal.Guard)
}

// Refresh revokes the current access token and issues a new one.
func (d *OAuthDriver) Refresh(ctx context.Context, principal *shared.Principal) (*LoginResult, error) {
	if err := d.f.deps.OAuthTokens.RevokeAccessToken(ctx, principal.TokenID); err != nil {
		return nil, err
	}
	return d.issue(ctx, principal.UserID, principal.Guard)
}

// ValidateToken resolves an access token id against the revocation table.
func (d *OAuthDriver) ValidateToken(ctx context.Context, token string) (*shared.Principal, error) {
	row, err := d.f.deps.OAuthTokens.FindAccessToken(ctx, token)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrTokenInvalid
		}
		return nil, err
	}
	if row.Revoked || time.Now().After(row.ExpiresAt) {
		return nil, shared.ErrTokenInvalid
	}
	if row.Guard != d.f.guardFrom(ctx) {
		return nil, shared.ErrTokenInvalid
	}
	return &shared.Principal{
		UserID:  row.UserID,
		Guard:   row.Guard,
		TokenID: row.ID,
	}, nil
}

func (d *OAuthDriver) issue(ctx context.Context, userID int64, guardName string) (*LoginResult, error) {
	expiresAt := time.Now().Add(d.f.cfg.OAuthTokenTTL)
	token := AccessToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		Guard:     guardName,
		Scopes:    defaultScopes,
		ExpiresAt: expiresAt,
	}
	if err := d.f.deps.OAuthTokens.CreateAccessToken(ctx, token); err != nil {
		return nil, err
	}
	return &LoginResult{Token: token.ID, ExpiresAt: &expiresAt}, nil
}
