// Package rbac implements role and privilege resolution with two-tier
// caching and targeted invalidation.
package rbac

import (
	"time"
)

// Wildcard satisfies every containment check.
const Wildcard = "*"

// Role represents a named grant bundle.
type Role struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Privilege represents a single grantable capability.
type Privilege struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
}

// Subject identifies a user whose grants are being resolved.
type Subject interface {
	SubjectID() int64
}

// RoleHolder is implemented by subjects whose credential already carries the
// role slugs. When the second return is true the resolver skips the store.
type RoleHolder interface {
	HeldRoleSlugs() ([]string, bool)
}

// ContainsAll reports whether granted covers every required slug. Holding the
// wildcard slug grants everything.
func ContainsAll(granted, required []string) bool {
	if len(required) == 0 {
		return true
	}
	set := slugSet(granted)
	if _, ok := set[Wildcard]; ok {
		return true
	}
	for _, slug := range required {
		if _, ok := set[slug]; !ok {
			return false
		}
	}
	return true
}

// ContainsAny reports whether granted covers at least one required slug.
func ContainsAny(granted, required []string) bool {
	if len(required) == 0 {
		return true
	}
	set := slugSet(granted)
	if _, ok := set[Wildcard]; ok {
		return true
	}
	for _, slug := range required {
		if _, ok := set[slug]; ok {
			return true
		}
	}
	return false
}

func slugSet(slugs []string) map[string]struct{} {
	set := make(map[string]struct{}, len(slugs))
	for _, s := range slugs {
		set[s] = struct{}{}
	}
	return set
}
