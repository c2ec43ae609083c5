package auth

import (
	"context"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/aegis-auth/aegis/internal/shared"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

type jwtClaims struct {
	Roles []string `json:"roles,omitempty"`
	Guard string   `json:"guard,omitempty"`
	Type  string   `json:"typ"`
	jwt.RegisteredClaims
}

// JWTDriver implements the signed-token technology: stateless HS256 tokens
// carrying the role slugs, with a Redis denylist for revocation.
type JWTDriver struct {
	f *Factory
}

// Login verifies credentials and issues an access/refresh token pair with
// the user's role slugs embedded.
func (d *JWTDriver) Login(ctx context.Context, creds Credentials) (*LoginResult, error) {
	guardName := d.f.guardFrom(ctx)
	account, err := d.f.authenticate(ctx, guardName, creds)
	if err != nil {
		return nil, err
	}
	var roles []string
	if d.f.deps.Roles != nil {
		if roles, err = d.f.deps.Roles.RoleSlugsOfUser(ctx, account.ID); err != nil {
			return nil, err
		}
	}
	return d.issue(account.ID, guardName, roles)
}

// Logout denylists the token id until the longest-lived token with that id
// would have expired.
func (d *JWTDriver) Logout(ctx context.Context, principal *shared.Principal) error {
	return d.f.deps.Denylist.Add(ctx, principal.TokenID, d.f.cfg.JWTRefreshTTL)
}

// Refresh issues a new pair preserving the roles and guard carried by the
// refresh token, and denylists the old token id.
func (d *JWTDriver) Refresh(ctx context.Context, principal *shared.Principal) (*LoginResult, error) {
	if err := d.f.deps.Denylist.Add(ctx, principal.TokenID, d.f.cfg.JWTRefreshTTL); err != nil {
		return nil, err
	}
	return d.issue(principal.UserID, principal.Guard, principal.Roles)
}

// ValidateToken checks signature, expiry, the denylist and the guard claim.
func (d *JWTDriver) ValidateToken(ctx context.Context, token string) (*shared.Principal, error) {
	return d.validate(ctx, token, tokenTypeAccess)
}

// ValidateRefresh accepts only refresh tokens.
func (d *JWTDriver) ValidateRefresh(ctx context.Context, token string) (*shared.Principal, error) {
	return d.validate(ctx, token, tokenTypeRefresh)
}

func (d *JWTDriver) validate(ctx context.Context, token, wantType string) (*shared.Principal, error) {
	claims := &jwtClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, shared.ErrTokenInvalid
		}
		return []byte(d.f.cfg.JWTSecret), nil
	})
	if err != nil || !parsed.Valid {
		return nil, shared.ErrTokenInvalid
	}
	if claims.Type != wantType {
		return nil, shared.ErrTokenInvalid
	}
	denied, err := d.f.deps.Denylist.Contains(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if denied {
		return nil, shared.ErrTokenInvalid
	}
	if claims.Guard != "" && claims.Guard != d.f.guardFrom(ctx) {
		return nil, shared.ErrTokenInvalid
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return nil, shared.ErrTokenInvalid
	}
	roles := claims.Roles
	if roles == nil {
		roles = []string{}
	}
	return &shared.Principal{
		UserID:  userID,
		Guard:   d.f.guardFrom(ctx),
		TokenID: claims.ID,
		Roles:   roles,
	}, nil
}

func (d *JWTDriver) issue(userID int64, guardName string, roles []string) (*LoginResult, error) {
	now := time.Now()
	accessExpiry := now.Add(d.f.cfg.JWTTTL)

	access, err := d.sign(userID, guardName, roles, tokenTypeAccess, now, accessExpiry)
	if err != nil {
		return nil, err
	}
	refresh, err := d.sign(userID, guardName, roles, tokenTypeRefresh, now, now.Add(d.f.cfg.JWTRefreshTTL))
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: access, RefreshToken: refresh, ExpiresAt: &accessExpiry}, nil
}

func (d *JWTDriver) sign(userID int64, guardName string, roles []string, tokenType string, now, expiresAt time.Time) (string, error) {
	claims := jwtClaims{
		Roles: roles,
		Type:  tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	if d.f.cfg.MultiGuard {
		claims.Guard = guardName
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(d.f.cfg.JWTSecret))
}
