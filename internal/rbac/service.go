package rbac

import (
	"context"
	"log/slog"
	"strings"

	"github.com/aegis-auth/aegis/internal/shared"
)

// AdminStore is the persistence surface the Service mutates.
type AdminStore interface {
	ListRoles(ctx context.Context) ([]Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	GetRoleBySlug(ctx context.Context, slug string) (Role, error)
	CreateRole(ctx context.Context, name, slug string) (Role, error)
	UpdateRole(ctx context.Context, id int64, name, slug string) (Role, error)
	DeleteRole(ctx context.Context, id int64) error
	DeleteAllRoles(ctx context.Context) error
	CountRoleAssignments(ctx context.Context, roleID int64) (int64, error)
	DeleteRoleAssignments(ctx context.Context, roleID int64) error

	ListPrivileges(ctx context.Context) ([]Privilege, error)
	GetPrivilege(ctx context.Context, id int64) (Privilege, error)
	CreatePrivilege(ctx context.Context, name, slug, description string) (Privilege, error)
	UpdatePrivilege(ctx context.Context, id int64, name, slug, description string) (Privilege, error)
	DeletePrivilege(ctx context.Context, id int64) error

	AssignRole(ctx context.Context, userID, roleID int64) error
	RemoveRole(ctx context.Context, userID, roleID int64) error
	AttachPrivilege(ctx context.Context, roleID, privilegeID int64) error
	DetachPrivilege(ctx context.Context, roleID, privilegeID int64) error
}

// Service orchestrates role and privilege administration. Every grant
// mutation routes through the Invalidator.
type Service struct {
	store     AdminStore
	inv       *Invalidator
	protected map[string]struct{}
	logger    *slog.Logger
}

// NewService constructs a Service. protectedSlugs lists roles that can be
// neither renamed nor deleted.
func NewService(store AdminStore, inv *Invalidator, protectedSlugs []string, logger *slog.Logger) *Service {
	protected := make(map[string]struct{}, len(protectedSlugs))
	for _, slug := range shared.NormalizeSlugs(protectedSlugs...) {
		protected[slug] = struct{}{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, inv: inv, protected: protected, logger: logger}
}

func (s *Service) isProtected(slug string) bool {
	_, ok := s.protected[slug]
	return ok
}

// ListRoles returns all roles.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.store.ListRoles(ctx)
}

// GetRole fetches a role by ID.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	return s.store.GetRole(ctx, id)
}

// GetRoleBySlug fetches a role by slug.
func (s *Service) GetRoleBySlug(ctx context.Context, slug string) (Role, error) {
	return s.store.GetRoleBySlug(ctx, strings.TrimSpace(slug))
}

// CreateRole inserts a role, deriving the slug from the name.
func (s *Service) CreateRole(ctx context.Context, name string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, shared.NewConfigurationError("role name required")
	}
	return s.store.CreateRole(ctx, name, Slugify(name))
}

// UpdateRole renames a role. Protected roles cannot be renamed. A slug change
// invalidates every user holding the role.
func (s *Service) UpdateRole(ctx context.Context, id int64, name string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, shared.NewConfigurationError("role name required")
	}
	current, err := s.store.GetRole(ctx, id)
	if err != nil {
		return Role{}, err
	}
	if s.isProtected(current.Slug) {
		return Role{}, shared.ErrProtectedRole
	}
	slug := Slugify(name)
	role, err := s.store.UpdateRole(ctx, id, name, slug)
	if err != nil {
		return Role{}, err
	}
	if slug != current.Slug {
		if err := s.inv.Role(ctx, id); err != nil {
			return Role{}, err
		}
	}
	return role, nil
}

// DeleteRole removes a role. Protected roles cannot be deleted; a role with
// assignments requires the cascade flag. Holders are invalidated before the
// assignments disappear, while the reverse lookup still sees them.
func (s *Service) DeleteRole(ctx context.Context, id int64, cascade bool) error {
	role, err := s.store.GetRole(ctx, id)
	if err != nil {
		return err
	}
	if s.isProtected(role.Slug) {
		return shared.ErrProtectedRole
	}
	count, err := s.store.CountRoleAssignments(ctx, id)
	if err != nil {
		return err
	}
	if count > 0 {
		if !cascade {
			return shared.ErrRoleInUse
		}
		if err := s.inv.Role(ctx, id); err != nil {
			return err
		}
		if err := s.store.DeleteRoleAssignments(ctx, id); err != nil {
			return err
		}
	}
	return s.store.DeleteRole(ctx, id)
}

// FlushRoles removes every role, invalidating all holders first.
func (s *Service) FlushRoles(ctx context.Context) error {
	if err := s.inv.All(ctx); err != nil {
		return err
	}
	return s.store.DeleteAllRoles(ctx)
}

// ListPrivileges returns all privileges.
func (s *Service) ListPrivileges(ctx context.Context) ([]Privilege, error) {
	return s.store.ListPrivileges(ctx)
}

// CreatePrivilege inserts a privilege, deriving the slug from the name.
func (s *Service) CreatePrivilege(ctx context.Context, name, description string) (Privilege, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Privilege{}, shared.NewConfigurationError("privilege name required")
	}
	return s.store.CreatePrivilege(ctx, name, Slugify(name), strings.TrimSpace(description))
}

// UpdatePrivilege renames a privilege. A slug change invalidates every user
// reaching it.
func (s *Service) UpdatePrivilege(ctx context.Context, id int64, name, description string) (Privilege, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Privilege{}, shared.NewConfigurationError("privilege name required")
	}
	current, err := s.store.GetPrivilege(ctx, id)
	if err != nil {
		return Privilege{}, err
	}
	slug := Slugify(name)
	priv, err := s.store.UpdatePrivilege(ctx, id, name, slug, strings.TrimSpace(description))
	if err != nil {
		return Privilege{}, err
	}
	if slug != current.Slug {
		if err := s.inv.Privilege(ctx, id); err != nil {
			return Privilege{}, err
		}
	}
	return priv, nil
}

// DeletePrivilege removes a privilege, invalidating holders before the role
// links disappear.
func (s *Service) DeletePrivilege(ctx context.Context, id int64) error {
	if _, err := s.store.GetPrivilege(ctx, id); err != nil {
		return err
	}
	if err := s.inv.Privilege(ctx, id); err != nil {
		return err
	}
	return s.store.DeletePrivilege(ctx, id)
}

// AssignRole attaches a role to a user. Idempotent; the user is invalidated
// either way.
func (s *Service) AssignRole(ctx context.Context, userID, roleID int64) error {
	if _, err := s.store.GetRole(ctx, roleID); err != nil {
		return err
	}
	if err := s.store.AssignRole(ctx, userID, roleID); err != nil {
		return err
	}
	s.inv.User(ctx, userID)
	return nil
}

// AssignRoleBySlug attaches a role, addressed by slug, to a user.
func (s *Service) AssignRoleBySlug(ctx context.Context, userID int64, slug string) error {
	role, err := s.store.GetRoleBySlug(ctx, strings.TrimSpace(slug))
	if err != nil {
		return err
	}
	if err := s.store.AssignRole(ctx, userID, role.ID); err != nil {
		return err
	}
	s.inv.User(ctx, userID)
	return nil
}

// RemoveRole detaches a role from a user.
func (s *Service) RemoveRole(ctx context.Context, userID, roleID int64) error {
	if err := s.store.RemoveRole(ctx, userID, roleID); err != nil {
		return err
	}
	s.inv.User(ctx, userID)
	return nil
}

// AttachPrivilege links a privilege to a role, invalidating every holder of
// the role.
func (s *Service) AttachPrivilege(ctx context.Context, roleID, privilegeID int64) error {
	if _, err := s.store.GetRole(ctx, roleID); err != nil {
		return err
	}
	if _, err := s.store.GetPrivilege(ctx, privilegeID); err != nil {
		return err
	}
	if err := s.store.AttachPrivilege(ctx, roleID, privilegeID); err != nil {
		return err
	}
	return s.inv.Role(ctx, roleID)
}

// DetachPrivilege unlinks a privilege from a role.
func (s *Service) DetachPrivilege(ctx context.Context, roleID, privilegeID int64) error {
	if err := s.store.DetachPrivilege(ctx, roleID, privilegeID); err != nil {
		return err
	}
	return s.inv.Role(ctx, roleID)
}
