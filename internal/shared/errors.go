package shared

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate indicates a unique constraint violation.
	ErrDuplicate = errors.New("duplicate entry")
	// ErrInvalidCredentials indicates login failure. The message never reveals
	// whether the identity or the password was wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountUnverified indicates the account has not passed the
	// verification gate. Only raised when verification gating is enabled.
	ErrAccountUnverified = errors.New("account not verified")
	// ErrTokenInvalid indicates an expired, malformed, revoked or
	// wrong-guard token.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrAccessDenied indicates an authorization failure. Deliberately terse:
	// the missing slug is never named.
	ErrAccessDenied = errors.New("access denied")
	// ErrProtectedRole indicates an attempt to rename or delete a protected role.
	ErrProtectedRole = errors.New("role is protected")
	// ErrRoleInUse indicates a delete of a role that still has assignments.
	ErrRoleInUse = errors.New("role has active assignments")
)

// AccountSuspendedError is returned when login is attempted on a suspended
// account. Distinct from ErrInvalidCredentials; carries the stored reason.
type AccountSuspendedError struct {
	Reason string
}

func (e *AccountSuspendedError) Error() string {
	if e.Reason == "" {
		return "account suspended"
	}
	return "account suspended: " + e.Reason
}

// ConfigurationError indicates invalid configuration, such as an unknown auth
// driver or a guard with no provider mapping. Fatal, never retried.
type ConfigurationError struct {
	Detail string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Detail
}

// NewConfigurationError formats a ConfigurationError.
func NewConfigurationError(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Detail: fmt.Sprintf(format, args...)}
}

// DependencyMissingError indicates a correctly configured driver whose backend
// collaborator is not available. Separates "your config is wrong" from "your
// config is right but the backend isn't set up".
type DependencyMissingError struct {
	Driver     string
	Dependency string
	Setup      string
}

func (e *DependencyMissingError) Error() string {
	msg := fmt.Sprintf("auth driver %q requires %s", e.Driver, e.Dependency)
	if e.Setup != "" {
		msg += "; " + e.Setup
	}
	return msg
}

// NormalizeSlugs flattens list or comma-separated slug inputs into a trimmed,
// deduplicated list with empties dropped, preserving first-seen order.
func NormalizeSlugs(values ...string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, chunk := range values {
		for _, part := range strings.Split(chunk, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if _, ok := seen[part]; ok {
				continue
			}
			seen[part] = struct{}{}
			out = append(out, part)
		}
	}
	return out
}
