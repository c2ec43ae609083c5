// Package guard resolves which authentication guard a request belongs to.
// A guard names an isolated authentication realm (its own URL prefix, user
// provider and token driver); resolution is deterministic and memoized into
// the request context.
package guard

import (
	"sort"

	"github.com/aegis-auth/aegis/internal/shared"
)

// Config describes the configured guard set.
type Config struct {
	// Enabled turns multi-guard resolution on. When false every request
	// resolves to Default.
	Enabled bool
	// Default is the fallback guard.
	Default string
	// Prefixes maps guard name to its URL path prefix.
	Prefixes map[string]string
	// Providers maps guard name to the user provider backing it.
	Providers map[string]string
	// Drivers maps guard name to a driver override.
	Drivers map[string]string
}

// Known reports whether name is a configured guard.
func (c Config) Known(name string) bool {
	if name == "" {
		return false
	}
	if name == c.Default {
		return true
	}
	_, ok := c.Providers[name]
	if !ok {
		_, ok = c.Prefixes[name]
	}
	return ok
}

// Names returns the configured guard names in stable order, default first.
func (c Config) Names() []string {
	seen := map[string]struct{}{c.Default: {}}
	names := []string{c.Default}
	rest := make([]string, 0, len(c.Providers)+len(c.Prefixes))
	for name := range c.Providers {
		if _, ok := seen[name]; !ok {
			seen[name] = struct{}{}
			rest = append(rest, name)
		}
	}
	for name := range c.Prefixes {
		if _, ok := seen[name]; !ok {
			seen[name] = struct{}{}
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append(names, rest...)
}

// UserSpace returns the user provider backing a guard. A guard with no
// provider mapping is a configuration fault, never a silent default.
func (c Config) UserSpace(name string) (string, error) {
	provider, ok := c.Providers[name]
	if !ok || provider == "" {
		return "", shared.NewConfigurationError("guard %q has no user provider mapping", name)
	}
	return provider, nil
}
