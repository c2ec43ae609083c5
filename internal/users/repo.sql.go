package users

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aegis-auth/aegis/internal/platform/db"
	"github.com/aegis-auth/aegis/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
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

const userColumns = `id, provider, email, username, suspended, suspended_for, verified_at, created_at, updated_at`

func scanUser(row pgx.Row) (User, error) {
	var u User
	var username, suspendedFor *string
	err := row.Scan(&u.ID, &u.Provider, &u.Email, &username, &u.Suspended, &suspendedFor, &u.VerifiedAt, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return User{}, mapErr(err)
	}
	if username != nil {
		u.Username = *username
	}
	if suspendedFor != nil {
		u.SuspendedFor = *suspendedFor
	}
	return u, nil
}

// CreateUser inserts an account.
func (r *Repository) CreateUser(ctx context.Context, provider, email, username, passwordHash string) (User, error) {
	var usernameArg *string
	if username != "" {
		usernameArg = &username
	}
	return scanUser(r.pool.QueryRow(ctx,
		`INSERT INTO users (provider, email, username, password_hash, suspended, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, false, now(), now()) RETURNING `+userColumns,
		provider, email, usernameArg, passwordHash))
}

// GetUser fetches an account by id.
func (r *Repository) GetUser(ctx context.Context, id int64) (User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// ListUsersWithRoles returns every account in a provider with its role slugs.
func (r *Repository) ListUsersWithRoles(ctx context.Context, provider string) ([]UserWithRoles, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT u.id, u.provider, u.email, u.username, u.suspended, u.suspended_for, u.verified_at,
		        u.created_at, u.updated_at,
		        coalesce(array_agg(ro.slug) FILTER (WHERE ro.slug IS NOT NULL), '{}')
		 FROM users u
		 LEFT JOIN role_user ru ON ru.user_id = u.id
		 LEFT JOIN roles ro ON ro.id = ru.role_id
		 WHERE u.provider = $1
		 GROUP BY u.id
		 ORDER BY u.id`, provider)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []UserWithRoles
	for rows.Next() {
		var u UserWithRoles
		var username, suspendedFor *string
		if err := rows.Scan(&u.ID, &u.Provider, &u.Email, &username, &u.Suspended, &suspendedFor,
			&u.VerifiedAt, &u.CreatedAt, &u.UpdatedAt, &u.Roles); err != nil {
			return nil, err
		}
		if username != nil {
			u.Username = *username
		}
		if suspendedFor != nil {
			u.SuspendedFor = *suspendedFor
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// Suspend marks an account suspended with a reason.
func (r *Repository) Suspend(ctx context.Context, id int64, reason string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET suspended = true, suspended_for = $2, updated_at = now() WHERE id = $1`, id, reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Unsuspend clears the suspension state.
func (r *Repository) Unsuspend(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET suspended = false, suspended_for = NULL, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// DeleteUser removes an account with its role assignments and tokens in one
// transaction.
func (r *Repository) DeleteUser(ctx context.Context, id int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		for _, query := range []string{
			`DELETE FROM role_user WHERE user_id = $1`,
			`DELETE FROM auth_tokens WHERE user_id = $1`,
			`DELETE FROM oauth_access_tokens WHERE user_id = $1`,
			`DELETE FROM email_verification_tokens WHERE user_id = $1`,
			`DELETE FROM password_reset_tokens WHERE user_id = $1`,
		} {
			if _, err := tx.Exec(ctx, query, id); err != nil {
				return err
			}
		}
		tag, err := tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		return nil
	})
}

// RevokeCredentials drops every opaque token and revokes every access token
// across all guards. Used on suspension.
func (r *Repository) RevokeCredentials(ctx context.Context, userID int64) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM auth_tokens WHERE user_id = $1`, userID); err != nil {
		return err
	}
	_, err := r.pool.Exec(ctx, `UPDATE oauth_access_tokens SET revoked = true WHERE user_id = $1 AND NOT revoked`, userID)
	return err
}

// MarkVerified records the verification timestamp.
func (r *Repository) MarkVerified(ctx context.Context, id int64, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET verified_at = $2, updated_at = now() WHERE id = $1`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// CreateVerificationToken stores a verification token hash, replacing any
// previous tokens for the user.
func (r *Repository) CreateVerificationToken(ctx context.Context, userID int64, hash string, expiresAt time.Time) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM email_verification_tokens WHERE user_id = $1`, userID); err != nil {
		return err
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO email_verification_tokens (user_id, hash, expires_at, created_at) VALUES ($1, $2, $3, now())`,
		userID, hash, expiresAt)
	return err
}

// ConsumeVerificationToken resolves a token hash and deletes it. Single use.
func (r *Repository) ConsumeVerificationToken(ctx context.Context, hash string) (int64, time.Time, error) {
	var userID int64
	var expiresAt time.Time
	err := r.pool.QueryRow(ctx,
		`DELETE FROM email_verification_tokens WHERE hash = $1 RETURNING user_id, expires_at`, hash).
		Scan(&userID, &expiresAt)
	if err != nil {
		return 0, time.Time{}, mapErr(err)
	}
	return userID, expiresAt, nil
}

// DeleteExpiredVerificationTokens prunes stale verification tokens.
func (r *Repository) DeleteExpiredVerificationTokens(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM email_verification_tokens WHERE expires_at < now()`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// FindUserIDByEmail resolves the account id behind a provider-scoped email.
func (r *Repository) FindUserIDByEmail(ctx context.Context, provider, email string) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`SELECT id FROM users WHERE provider = $1 AND email = $2`, provider, email).Scan(&id)
	if err != nil {
		return 0, mapErr(err)
	}
	return id, nil
}

// UpdatePassword replaces the stored password hash.
func (r *Repository) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`, id, passwordHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// CreatePasswordResetToken stores a reset token hash, replacing any previous
// tokens for the user.
func (r *Repository) CreatePasswordResetToken(ctx context.Context, userID int64, hash string, expiresAt time.Time) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM password_reset_tokens WHERE user_id = $1`, userID); err != nil {
		return err
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO password_reset_tokens (user_id, hash, expires_at, created_at) VALUES ($1, $2, $3, now())`,
		userID, hash, expiresAt)
	return err
}

// ConsumePasswordResetToken resolves a reset token hash and deletes it.
// Single use.
func (r *Repository) ConsumePasswordResetToken(ctx context.Context, hash string) (int64, time.Time, error) {
	var userID int64
	var expiresAt time.Time
	err := r.pool.QueryRow(ctx,
		`DELETE FROM password_reset_tokens WHERE hash = $1 RETURNING user_id, expires_at`, hash).
		Scan(&userID, &expiresAt)
	if err != nil {
		return 0, time.Time{}, mapErr(err)
	}
	return userID, expiresAt, nil
}

// DeleteExpiredPasswordResetTokens prunes stale reset tokens.
func (r *Repository) DeleteExpiredPasswordResetTokens(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM password_reset_tokens WHERE expires_at < now()`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
