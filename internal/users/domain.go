// Package users manages user accounts: registration, suspension and email
// verification.
package users

import "time"

// User represents a stored account.
type User struct {
	ID           int64      `json:"id"`
	Provider     string     `json:"provider"`
	Email        string     `json:"email"`
	Username     string     `json:"username,omitempty"`
	Suspended    bool       `json:"suspended"`
	SuspendedFor string     `json:"suspended_for,omitempty"`
	VerifiedAt   *time.Time `json:"verified_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// UserWithRoles pairs a user with its role slugs for listings.
type UserWithRoles struct {
	User
	Roles []string `json:"roles"`
}
