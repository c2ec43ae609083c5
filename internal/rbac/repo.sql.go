package rbac

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aegis-auth/aegis/internal/platform/db"
	"github.com/aegis-auth/aegis/internal/shared"
)

// Repository provides PostgreSQL backed persistence for roles, privileges
// and their assignments.
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

// ListRoles returns all roles ordered by name.
func (r *Repository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, slug, created_at, updated_at FROM roles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Slug, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// GetRole fetches a role by ID.
func (r *Repository) GetRole(ctx context.Context, id int64) (Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx, `SELECT id, name, slug, created_at, updated_at FROM roles WHERE id = $1`, id).
		Scan(&role.ID, &role.Name, &role.Slug, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		return Role{}, mapErr(err)
	}
	return role, nil
}

// GetRoleBySlug fetches a role by slug.
func (r *Repository) GetRoleBySlug(ctx context.Context, slug string) (Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx, `SELECT id, name, slug, created_at, updated_at FROM roles WHERE slug = $1`, slug).
		Scan(&role.ID, &role.Name, &role.Slug, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		return Role{}, mapErr(err)
	}
	return role, nil
}

// CreateRole inserts a new role.
func (r *Repository) CreateRole(ctx context.Context, name, slug string) (Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx,
		`INSERT INTO roles (name, slug, created_at, updated_at) VALUES ($1, $2, now(), now())
		 RETURNING id, name, slug, created_at, updated_at`, name, slug).
		Scan(&role.ID, &role.Name, &role.Slug, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		return Role{}, mapErr(err)
	}
	return role, nil
}

// UpdateRole updates name and slug of an existing role.
func (r *Repository) UpdateRole(ctx context.Context, id int64, name, slug string) (Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx,
		`UPDATE roles SET name = $2, slug = $3, updated_at = now() WHERE id = $1
		 RETURNING id, name, slug, created_at, updated_at`, id, name, slug).
		Scan(&role.ID, &role.Name, &role.Slug, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		return Role{}, mapErr(err)
	}
	return role, nil
}

// DeleteRole removes a role. Returns shared.ErrNotFound when nothing matched.
func (r *Repository) DeleteRole(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// DeleteAllRoles removes every role and its links in one transaction.
func (r *Repository) DeleteAllRoles(ctx context.Context) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM privilege_role`); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM role_user`); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `DELETE FROM roles`)
		return err
	})
}

// CountRoleAssignments returns the number of users holding the role.
func (r *Repository) CountRoleAssignments(ctx context.Context, roleID int64) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM role_user WHERE role_id = $1`, roleID).Scan(&count)
	return count, err
}

// DeleteRoleAssignments removes all user assignments of a role.
func (r *Repository) DeleteRoleAssignments(ctx context.Context, roleID int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM role_user WHERE role_id = $1`, roleID)
	return err
}

// ListPrivileges returns all privileges ordered by name.
func (r *Repository) ListPrivileges(ctx context.Context) ([]Privilege, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, slug, description FROM privileges ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var privs []Privilege
	for rows.Next() {
		var p Privilege
		if err := rows.Scan(&p.ID, &p.Name, &p.Slug, &p.Description); err != nil {
			return nil, err
		}
		privs = append(privs, p)
	}
	return privs, rows.Err()
}

// GetPrivilege fetches a privilege by ID.
func (r *Repository) GetPrivilege(ctx context.Context, id int64) (Privilege, error) {
	var p Privilege
	err := r.pool.QueryRow(ctx, `SELECT id, name, slug, description FROM privileges WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &p.Slug, &p.Description)
	if err != nil {
		return Privilege{}, mapErr(err)
	}
	return p, nil
}

// CreatePrivilege inserts a new privilege.
func (r *Repository) CreatePrivilege(ctx context.Context, name, slug, description string) (Privilege, error) {
	var p Privilege
	err := r.pool.QueryRow(ctx,
		`INSERT INTO privileges (name, slug, description) VALUES ($1, $2, $3)
		 RETURNING id, name, slug, description`, name, slug, description).
		Scan(&p.ID, &p.Name, &p.Slug, &p.Description)
	if err != nil {
		return Privilege{}, mapErr(err)
	}
	return p, nil
}

// UpdatePrivilege updates an existing privilege.
func (r *Repository) UpdatePrivilege(ctx context.Context, id int64, name, slug, description string) (Privilege, error) {
	var p Privilege
	err := r.pool.QueryRow(ctx,
		`UPDATE privileges SET name = $2, slug = $3, description = $4 WHERE id = $1
		 RETURNING id, name, slug, description`, id, name, slug, description).
		Scan(&p.ID, &p.Name, &p.Slug, &p.Description)
	if err != nil {
		return Privilege{}, mapErr(err)
	}
	return p, nil
}

// DeletePrivilege removes a privilege and its role links.
func (r *Repository) DeletePrivilege(ctx context.Context, id int64) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM privilege_role WHERE privilege_id = $1`, id); err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM privileges WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// AssignRole attaches a role to a user. Idempotent.
func (r *Repository) AssignRole(ctx context.Context, userID, roleID int64) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO role_user (user_id, role_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, userID, roleID)
	return err
}

// RemoveRole detaches a role from a user.
func (r *Repository) RemoveRole(ctx context.Context, userID, roleID int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM role_user WHERE user_id = $1 AND role_id = $2`, userID, roleID)
	return err
}

// AttachPrivilege links a privilege to a role. Idempotent.
func (r *Repository) AttachPrivilege(ctx context.Context, roleID, privilegeID int64) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO privilege_role (role_id, privilege_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, roleID, privilegeID)
	return err
}

// DetachPrivilege unlinks a privilege from a role.
func (r *Repository) DetachPrivilege(ctx context.Context, roleID, privilegeID int64) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM privilege_role WHERE role_id = $1 AND privilege_id = $2`, roleID, privilegeID)
	return err
}

// RoleSlugsOfUser returns the slugs of all roles assigned to a user.
func (r *Repository) RoleSlugsOfUser(ctx context.Context, userID int64) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT r.slug FROM roles r JOIN role_user ru ON ru.role_id = r.id WHERE ru.user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSlugs(rows)
}

// PrivilegeSlugsOfUser returns the slugs of all privileges a user holds
// through any of their roles.
func (r *Repository) PrivilegeSlugsOfUser(ctx context.Context, userID int64) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT p.slug FROM privileges p
		 JOIN privilege_role pr ON pr.privilege_id = p.id
		 JOIN role_user ru ON ru.role_id = pr.role_id
		 WHERE ru.user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSlugs(rows)
}

// PrivilegeSlugsOfRoleSlugs returns privilege slugs reachable from the given
// role slugs.
func (r *Repository) PrivilegeSlugsOfRoleSlugs(ctx context.Context, roleSlugs []string) ([]string, error) {
	if len(roleSlugs) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT p.slug FROM privileges p
		 JOIN privilege_role pr ON pr.privilege_id = p.id
		 JOIN roles r ON r.id = pr.role_id
		 WHERE r.slug = ANY($1)`, roleSlugs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSlugs(rows)
}

// UsersHoldingRole returns the ids of all users assigned the role.
func (r *Repository) UsersHoldingRole(ctx context.Context, roleID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT user_id FROM role_user WHERE role_id = $1`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIDs(rows)
}

// UsersHoldingPrivilege returns the ids of all users that reach the privilege
// through any role.
func (r *Repository) UsersHoldingPrivilege(ctx context.Context, privilegeID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT ru.user_id FROM role_user ru
		 JOIN privilege_role pr ON pr.role_id = ru.role_id
		 WHERE pr.privilege_id = $1`, privilegeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIDs(rows)
}

// UsersHoldingAnyRole returns the ids of all users with at least one role.
func (r *Repository) UsersHoldingAnyRole(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT user_id FROM role_user`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIDs(rows)
}

func scanSlugs(rows pgx.Rows) ([]string, error) {
	var slugs []string
	for rows.Next() {
		var slug string
		if err := rows.Scan(&slug); err != nil {
			return nil, err
		}
		slugs = append(slugs, slug)
	}
	return slugs, rows.Err()
}

func scanIDs(rows pgx.Rows) ([]int64, error) {
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
