package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegis-auth/aegis/internal/guard"
	"github.com/aegis-auth/aegis/internal/shared"
)

func TestOpaqueTokenRoundtrip(t *testing.T) {
	stores := newMemStores()
	seedAccount(t, stores, Account{Email: "kai@example.com"})
	d, err := testFactory(stores, Config{}).Driver("api")
	require.NoError(t, err)
	ctx := apiCtx()

	result, err := d.Login(ctx, Credentials{Identity: "kai@example.com", Password: "secret123"})
	require.NoError(t, err)
	require.NotEmpty(t, result.Token)

	principal, err := d.ValidateToken(ctx, result.Token)
	require.NoError(t, err)
	assert.Equal(t, int64(1), principal.UserID)
	assert.Equal(t, "api", principal.Guard)

	// a token never crosses guards
	_, err = d.ValidateToken(guard.WithGuard(ctx, "admin"), result.Token)
	assert.ErrorIs(t, err, shared.ErrTokenInvalid)

	require.NoError(t, d.Logout(ctx, principal))
	_, err = d.ValidateToken(ctx, result.Token)
	assert.ErrorIs(t, err, shared.ErrTokenInvalid)
}

func TestOpaqueTokenGuardScopedName(t *testing.T) {
	stores := newMemStores()
	seedAccount(t, stores, Account{Email: "kai@example.com"})
	d, err := testFactory(stores, Config{}).Driver("api")
	require.NoError(t, err)

	_, err = d.Login(apiCtx(), Credentials{Identity: "kai@example.com", Password: "secret123"})
	require.NoError(t, err)
	for _, token := range stores.tokens {
		assert.Equal(t, "aegis-api-token", token.Name)
	}
}

func TestOpaqueSingleSessionDeletesPreviousTokens(t *testing.T) {
	stores := newMemStores()
	seedAccount(t, stores, Account{Email: "kai@example.com"})
	d, err := testFactory(stores, Config{SingleSession: true}).Driver("api")
	require.NoError(t, err)
	ctx := apiCtx()
	creds := Credentials{Identity: "kai@example.com", Password: "secret123"}

	first, err := d.Login(ctx, creds)
	require.NoError(t, err)
	second, err := d.Login(ctx, creds)
	require.NoError(t, err)

	_, err = d.ValidateToken(ctx, first.Token)
	assert.ErrorIs(t, err, shared.ErrTokenInvalid)
	_, err = d.ValidateToken(ctx, second.Token)
	assert.NoError(t, err)
}

func TestOpaqueExpiredTokenRejectedAndPruned(t *testing.T) {
	stores := newMemStores()
	seedAccount(t, stores, Account{Email: "kai@example.com"})
	d, err := testFactory(stores, Config{}).Driver("api")
	require.NoError(t, err)
	ctx := apiCtx()

	past := time.Now().Add(-time.Minute)
	id, err := stores.CreateToken(ctx, Token{UserID: 1, Guard: "api", Hash: hashToken("stale"), ExpiresAt: &past})
	require.NoError(t, err)

	_, err = d.ValidateToken(ctx, "stale")
	assert.ErrorIs(t, err, shared.ErrTokenInvalid)
	_, ok := stores.tokens[id]
	assert.False(t, ok, "expired token is deleted on sight")
}

func TestOpaqueRefreshRotatesToken(t *testing.T) {
	stores := newMemStores()
	seedAccount(t, stores, Account{Email: "kai@example.com"})
	d, err := testFactory(stores, Config{}).Driver("api")
	require.NoError(t, err)
	ctx := apiCtx()

	result, err := d.Login(ctx, Credentials{Identity: "kai@example.com", Password: "secret123"})
	require.NoError(t, err)
	principal, err := d.ValidateToken(ctx, result.Token)
	require.NoError(t, err)

	rotated, err := d.Refresh(ctx, principal)
	require.NoError(t, err)
	assert.NotEqual(t, result.Token, rotated.Token)

	_, err = d.ValidateToken(ctx, result.Token)
	assert.ErrorIs(t, err, shared.ErrTokenInvalid)
	_, err = d.ValidateToken(ctx, rotated.Token)
	assert.NoError(t, err)
}

func TestOAuthRoundtripAndRevocation(t *testing.T) {
	stores := newMemStores()
	seedAccount(t, stores, Account{Email: "kai@example.com"})
	d, err := testFactory(stores, Config{Driver: DriverOAuth2}).Driver("api")
	require.NoError(t, err)
	ctx := apiCtx()

	result, err := d.Login(ctx, Credentials{Identity: "kai@example.com", Password: "secret123"})
	require.NoError(t, err)
	require.NotNil(t, result.ExpiresAt)

	principal, err := d.ValidateToken(ctx, result.Token)
	require.NoError(t, err)
	assert.Equal(t, result.Token, principal.TokenID)

	_, err = d.ValidateToken(guard.WithGuard(ctx, "admin"), result.Token)
	assert.ErrorIs(t, err, shared.ErrTokenInvalid)

	rotated, err := d.Refresh(ctx, principal)
	require.NoError(t, err)
	_, err = d.ValidateToken(ctx, result.Token)
	assert.ErrorIs(t, err, shared.ErrTokenInvalid, "refresh revokes the old token")
	_, err = d.ValidateToken(ctx, rotated.Token)
	require.NoError(t, err)

	require.NoError(t, d.Logout(ctx, principal))
	_, err = d.ValidateToken(ctx, rotated.Token)
	assert.ErrorIs(t, err, shared.ErrTokenInvalid)
}

func newJWTDriver(t *testing.T, stores *memStores, roles staticRoles) Driver {
	t.Helper()
	cfg := Config{Driver: DriverSignedToken, JWTSecret: "topsecret", CredentialFields: []string{"email"}, JWTTTL: time.Hour, JWTRefreshTTL: 24 * time.Hour}
	cfg.MultiGuard = true
	f := NewFactory(cfg, testGuards(), Deps{
		Credentials: stores,
		Denylist:    newMemDenylist(),
		Roles:       roles,
	})
	d, err := f.Driver("api")
	require.NoError(t, err)
	return d
}

func TestJWTRoundtripEmbedsRoles(t *testing.T) {
	stores := newMemStores()
	seedAccount(t, stores, Account{Email: "kai@example.com"})
	d := newJWTDriver(t, stores, staticRoles{1: {"admin", "editor"}})
	ctx := apiCtx()

	result, err := d.Login(ctx, Credentials{Identity: "kai@example.com", Password: "secret123"})
	require.NoError(t, err)
	require.NotEmpty(t, result.RefreshToken)

	principal, err := d.ValidateToken(ctx, result.Token)
	require.NoError(t, err)
	assert.Equal(t, []string{"admin", "editor"}, principal.Roles)

	// the refresh token is not an access token and vice versa
	_, err = d.ValidateToken(ctx, result.RefreshToken)
	assert.ErrorIs(t, err, shared.ErrTokenInvalid)
	rv := d.(RefreshValidator)
	_, err = rv.ValidateRefresh(ctx, result.Token)
	assert.ErrorIs(t, err, shared.ErrTokenInvalid)
}

func TestJWTGuardClaimIsolation(t *testing.T) {
	stores := newMemStores()
	seedAccount(t, stores, Account{Email: "kai@example.com"})
	d := newJWTDriver(t, stores, staticRoles{})
	ctx := apiCtx()

	result, err := d.Login(ctx, Credentials{Identity: "kai@example.com", Password: "secret123"})
	require.NoError(t, err)

	_, err = d.ValidateToken(guard.WithGuard(ctx, "admin"), result.Token)
	assert.ErrorIs(t, err, shared.ErrTokenInvalid)
}

func TestJWTLogoutDenylistsToken(t *testing.T) {
	stores := newMemStores()
	seedAccount(t, stores, Account{Email: "kai@example.com"})
	d := newJWTDriver(t, stores, staticRoles{})
	ctx := apiCtx()

	result, err := d.Login(ctx, Credentials{Identity: "kai@example.com", Password: "secret123"})
	require.NoError(t, err)
	principal, err := d.ValidateToken(ctx, result.Token)
	require.NoError(t, err)

	require.NoError(t, d.Logout(ctx, principal))
	_, err = d.ValidateToken(ctx, result.Token)
	assert.ErrorIs(t, err, shared.ErrTokenInvalid)
}

func TestJWTRefreshPreservesClaims(t *testing.T) {
	stores := newMemStores()
	seedAccount(t, stores, Account{Email: "kai@example.com"})
	roles := staticRoles{1: {"editor"}}
	d := newJWTDriver(t, stores, roles)
	ctx := apiCtx()

	result, err := d.Login(ctx, Credentials{Identity: "kai@example.com", Password: "secret123"})
	require.NoError(t, err)

	rv := d.(RefreshValidator)
	principal, err := rv.ValidateRefresh(ctx, result.RefreshToken)
	require.NoError(t, err)

	// the role set changes upstream, but refresh keeps the original claims
	roles[1] = []string{"editor", "admin"}
	rotated, err := d.Refresh(ctx, principal)
	require.NoError(t, err)

	fresh, err := d.ValidateToken(ctx, rotated.Token)
	require.NoError(t, err)
	assert.Equal(t, []string{"editor"}, fresh.Roles)

	// the consumed refresh token is denylisted
	_, err = rv.ValidateRefresh(ctx, result.RefreshToken)
	assert.ErrorIs(t, err, shared.ErrTokenInvalid)
}
