package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aegis-auth/aegis/internal/shared"
)

// credentialColumns whitelists the account columns a login identity may be
// matched against.
var credentialColumns = map[string]string{
	"email":    "email",
	"username": "username",
}

// Token is a stored opaque token record. Hash is the SHA-256 of the raw
// token; the raw value is never persisted.
type Token struct {
	ID        int64
	UserID    int64
	Guard     string
	Name      string
	Hash      string
	ExpiresAt *time.Time
	CreatedAt time.Time
}

// AccessToken is a stored OAuth2-style access token record.
type AccessToken struct {
	ID        string
	UserID    int64
	Guard     string
	Scopes    []string
	Revoked   bool
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Repository provides PostgreSQL backed persistence for accounts and token
// records.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func mapErr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return shared.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return shared.ErrDuplicate
	}
	return err
}

const accountColumns = `id, provider, email, username, password_hash, suspended, suspended_for, verified_at, created_at, updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	var suspendedFor *string
	err := row.Scan(&a.ID, &a.Provider, &a.Email, &a.Username, &a.PasswordHash,
		&a.Suspended, &suspendedFor, &a.VerifiedAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return Account{}, mapErr(err)
	}
	if suspendedFor != nil {
		a.SuspendedFor = *suspendedFor
	}
	return a, nil
}

// FindByCredential looks an account up by identity within a provider. Each
// configured credential field is tried in order; unknown field names are
// skipped.
func (r *Repository) FindByCredential(ctx context.Context, provider string, fields []string, identity string) (Account, error) {
	var clauses []string
	for _, field := range fields {
		column, ok := credentialColumns[field]
		if !ok {
			continue
		}
		clauses = append(clauses, fmt.Sprintf("%s = $2", column))
	}
	if len(clauses) == 0 {
		return Account{}, shared.NewConfigurationError("no usable credential fields configured")
	}
	query := fmt.Sprintf(`SELECT %s FROM users WHERE provider = $1 AND (%s)`,
		accountColumns, strings.Join(clauses, " OR "))
	return scanAccount(r.pool.QueryRow(ctx, query, provider, identity))
}

// FindAccount fetches an account by id.
func (r *Repository) FindAccount(ctx context.Context, id int64) (Account, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE id = $1`, accountColumns)
	return scanAccount(r.pool.QueryRow(ctx, query, id))
}

// CreateToken stores an opaque token record.
func (r *Repository) CreateToken(ctx context.Context, t Token) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO auth_tokens (user_id, guard, name, hash, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, now()) RETURNING id`,
		t.UserID, t.Guard, t.Name, t.Hash, t.ExpiresAt).Scan(&id)
	if err != nil {
		return 0, mapErr(err)
	}
	return id, nil
}

// FindTokenByHash fetches an opaque token record by its hash.
func (r *Repository) FindTokenByHash(ctx context.Context, hash string) (Token, error) {
	var t Token
	err := r.pool.QueryRow(ctx,
		`SELECT id, user_id, guard, name, hash, expires_at, created_at FROM auth_tokens WHERE hash = $1`, hash).
		Scan(&t.ID, &t.UserID, &t.Guard, &t.Name, &t.Hash, &t.ExpiresAt, &t.CreatedAt)
	if err != nil {
		return Token{}, mapErr(err)
	}
	return t, nil
}

// DeleteToken removes one opaque token.
func (r *Repository) DeleteToken(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM auth_tokens WHERE id = $1`, id)
	return err
}

// DeleteUserTokens removes all opaque tokens a user holds under a guard.
func (r *Repository) DeleteUserTokens(ctx context.Context, userID int64, guard string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM auth_tokens WHERE user_id = $1 AND guard = $2`, userID, guard)
	return err
}

// DeleteExpiredTokens prunes expired opaque tokens, returning the count.
func (r *Repository) DeleteExpiredTokens(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM auth_tokens WHERE expires_at IS NOT NULL AND expires_at < now()`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// CreateAccessToken stores an OAuth2-style access token record.
func (r *Repository) CreateAccessToken(ctx context.Context, t AccessToken) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO oauth_access_tokens (id, user_id, guard, scopes, revoked, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, false, $5, now())`,
		t.ID, t.UserID, t.Guard, t.Scopes, t.ExpiresAt)
	return mapErr(err)
}

// FindAccessToken fetches an access token record by id.
func (r *Repository) FindAccessToken(ctx context.Context, id string) (AccessToken, error) {
	var t AccessToken
	err := r.pool.QueryRow(ctx,
		`SELECT id, user_id, guard, scopes, revoked, expires_at, created_at FROM oauth_access_tokens WHERE id = $1`, id).
		Scan(&t.ID, &t.UserID, &t.Guard, &t.Scopes, &t.Revoked, &t.ExpiresAt, &t.CreatedAt)
	if err != nil {
		return AccessToken{}, mapErr(err)
	}
	return t, nil
}

// RevokeAccessToken marks one access token revoked.
func (r *Repository) RevokeAccessToken(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `UPDATE oauth_access_tokens SET revoked = true WHERE id = $1`, id)
	return err
}

// RevokeUserAccessTokens revokes every access token a user holds under a guard.
func (r *Repository) RevokeUserAccessTokens(ctx context.Context, userID int64, guard string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE oauth_access_tokens SET revoked = true WHERE user_id = $1 AND guard = $2 AND NOT revoked`,
		userID, guard)
	return err
}

// DeleteStaleAccessTokens prunes revoked and expired access tokens.
func (r *Repository) DeleteStaleAccessTokens(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM oauth_access_tokens WHERE revoked OR expires_at < now()`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
