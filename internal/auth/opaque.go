package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	"github.com/aegis-auth/aegis/internal/shared"
)

// TokenDriver implements the opaque-token technology: a random 256-bit
// bearer token whose SHA-256 hash is stored server-side.
type TokenDriver struct {
	f *Factory
}

// Login verifies credentials and issues a fresh token.
func (d *TokenDriver) Login(ctx context.Context, creds Credentials) (*LoginResult, error) {
	guardName := d.f.guardFrom(ctx)
	account, err := d.f.authenticate(ctx, guardName, creds)
	if err != nil {
		return nil, err
	}
	if d.f.cfg.SingleSession {
		if err := d.f.deps.Tokens.DeleteUserTokens(ctx, account.ID, guardName); err != nil {
			return nil, err
		}
	}
	return d.issue(ctx, account.ID, guardName)
}

// Logout revokes every token the principal holds under its guard.
func (d *TokenDriver) Logout(ctx context.Context, principal *shared.Principal) error {
	return d.f.deps.Tokens.DeleteUserTokens(ctx, principal.UserID, principal.Guard)
}

// Refresh rotates the principal's current token.
func (d *TokenDriver) Refresh(ctx context.Context, principal *shared.Principal) (*LoginResult, error) {
	tokenID, err := strconv.ParseInt(principal.TokenID, 10, 64)
	if err != nil {
		return nil, shared.ErrTokenInvalid
	}
	if err := d.f.deps.Tokens.DeleteToken(ctx, tokenID); err != nil {
		return nil, err
	}
	return d.issue(ctx, principal.UserID, principal.Guard)
}

// ValidateToken resolves a raw token through its stored hash. Expired tokens
// are deleted on sight; a token never validates outside its guard.
func (d *TokenDriver) ValidateToken(ctx context.Context, token string) (*shared.Principal, error) {
	row, err := d.f.deps.Tokens.FindTokenByHash(ctx, hashToken(token))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrTokenInvalid
		}
		return nil, err
	}
	if row.ExpiresAt != nil && time.Now().After(*row.ExpiresAt) {
		_ = d.f.deps.Tokens.DeleteToken(ctx, row.ID)
		return nil, shared.ErrTokenInvalid
	}
	if row.Guard != d.f.guardFrom(ctx) {
		return nil, shared.ErrTokenInvalid
	}
	return &shared.Principal{
		UserID:  row.UserID,
		Guard:   row.Guard,
		TokenID: strconv.FormatInt(row.ID, 10),
	}, nil
}

func (d *TokenDriver) issue(ctx context.Context, userID int64, guardName string) (*LoginResult, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, err
	}
	token := hex.EncodeToString(raw)

	var expiresAt *time.Time
	if ttl := d.f.cfg.OpaqueTokenTTL; ttl > 0 {
		t := time.Now().Add(ttl)
		expiresAt = &t
	}
	_, err := d.f.deps.Tokens.CreateToken(ctx, Token{
		UserID:    userID,
		Guard:     guardName,
		Name:      d.tokenName(guardName),
		Hash:      hashToken(token),
		ExpiresAt: expiresAt,
	})
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: token, ExpiresAt: expiresAt}, nil
}

// tokenName scopes the stored token name to the guard under multi-guard.
func (d *TokenDriver) tokenName(guardName string) string {
	if d.f.cfg.MultiGuard {
		return "aegis-" + guardName + "-token"
	}
	return "aegis-token"
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
