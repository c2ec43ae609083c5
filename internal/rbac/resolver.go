package rbac

import (
	"context"

	"github.com/aegis-auth/aegis/internal/shared"
)

// Store is the persistence surface the resolver reads from.
type Store interface {
	RoleSlugsOfUser(ctx context.Context, userID int64) ([]string, error)
	PrivilegeSlugsOfUser(ctx context.Context, userID int64) ([]string, error)
	PrivilegeSlugsOfRoleSlugs(ctx context.Context, roleSlugs []string) ([]string, error)
}

// Resolver produces flattened, deduplicated slug sets for a subject. Subjects
// whose credential already carries role slugs are resolved from memory; both
// paths yield identical sets.
type Resolver struct {
	store Store
	cache *SlugCache
}

// NewResolver constructs a Resolver. cache may be nil.
func NewResolver(store Store, cache *SlugCache) *Resolver {
	return &Resolver{store: store, cache: cache}
}

// RoleSlugs returns the subject's role slugs.
func (r *Resolver) RoleSlugs(ctx context.Context, subject Subject) ([]string, error) {
	if held, ok := heldRoles(subject); ok {
		return shared.NormalizeSlugs(held...), nil
	}
	return r.cache.Fetch(ctx, subject.SubjectID(), kindRoles, func(ctx context.Context) ([]string, error) {
		slugs, err := r.store.RoleSlugsOfUser(ctx, subject.SubjectID())
		if err != nil {
			return nil, err
		}
		return shared.NormalizeSlugs(slugs...), nil
	})
}

// PrivilegeSlugs returns the privilege slugs the subject reaches through its
// roles.
func (r *Resolver) PrivilegeSlugs(ctx context.Context, subject Subject) ([]string, error) {
	if held, ok := heldRoles(subject); ok {
		slugs, err := r.store.PrivilegeSlugsOfRoleSlugs(ctx, shared.NormalizeSlugs(held...))
		if err != nil {
			return nil, err
		}
		return shared.NormalizeSlugs(slugs...), nil
	}
	return r.cache.Fetch(ctx, subject.SubjectID(), kindPrivileges, func(ctx context.Context) ([]string, error) {
		slugs, err := r.store.PrivilegeSlugsOfUser(ctx, subject.SubjectID())
		if err != nil {
			return nil, err
		}
		return shared.NormalizeSlugs(slugs...), nil
	})
}

// HasAllRoles reports whether the subject holds every required role slug.
func (r *Resolver) HasAllRoles(ctx context.Context, subject Subject, required []string) (bool, error) {
	granted, err := r.RoleSlugs(ctx, subject)
	if err != nil {
		return false, err
	}
	return ContainsAll(granted, required), nil
}

// HasAnyRole reports whether the subject holds at least one required role slug.
func (r *Resolver) HasAnyRole(ctx context.Context, subject Subject, required []string) (bool, error) {
	granted, err := r.RoleSlugs(ctx, subject)
	if err != nil {
		return false, err
	}
	return ContainsAny(granted, required), nil
}

// HasAllPrivileges reports whether the subject holds every required privilege.
func (r *Resolver) HasAllPrivileges(ctx context.Context, subject Subject, required []string) (bool, error) {
	granted, err := r.PrivilegeSlugs(ctx, subject)
	if err != nil {
		return false, err
	}
	return ContainsAll(granted, required), nil
}

// HasAnyPrivilege reports whether the subject holds at least one required
// privilege.
func (r *Resolver) HasAnyPrivilege(ctx context.Context, subject Subject, required []string) (bool, error) {
	granted, err := r.PrivilegeSlugs(ctx, subject)
	if err != nil {
		return false, err
	}
	return ContainsAny(granted, required), nil
}

func heldRoles(subject Subject) ([]string, bool) {
	holder, ok := subject.(RoleHolder)
	if !ok {
		return nil, false
	}
	return holder.HeldRoleSlugs()
}
