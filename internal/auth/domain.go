// Package auth implements credential verification and the pluggable token
// driver contract with its three implementations.
package auth

import (
	"time"
)

// Driver names accepted by the factory.
const (
	DriverOpaqueToken = "opaque-token"
	DriverOAuth2      = "oauth2"
	DriverSignedToken = "signed-token"
)

// ValidDrivers lists every driver name the factory accepts.
func ValidDrivers() []string {
	return []string{DriverOpaqueToken, DriverOAuth2, DriverSignedToken}
}

// ValidDriverName reports whether name is a known driver.
func ValidDriverName(name string) bool {
	for _, d := range ValidDrivers() {
		if d == name {
			return true
		}
	}
	return false
}

// Config holds driver and login policy settings.
type Config struct {
	// Driver is the process-wide default; GuardDrivers overrides per guard.
	Driver       string
	GuardDrivers map[string]string

	MultiGuard bool

	// CredentialFields lists the account columns a login identity is
	// matched against, e.g. ["email", "username"].
	CredentialFields []string
	// CheckVerified blocks unverified accounts from logging in.
	CheckVerified bool
	// SingleSession revokes all previous tokens on every login.
	SingleSession bool

	OpaqueTokenTTL time.Duration
	OAuthTokenTTL  time.Duration
	JWTSecret      string
	JWTTTL         time.Duration
	JWTRefreshTTL  time.Duration
}

// DriverFor returns the driver name configured for a guard.
func (c Config) DriverFor(guard string) string {
	if name, ok := c.GuardDrivers[guard]; ok {
		return name
	}
	return c.Driver
}

// Account is the credential-bearing view of a user.
type Account struct {
	ID           int64
	Provider     string
	Email        string
	Username     string
	PasswordHash string
	Suspended    bool
	SuspendedFor string
	VerifiedAt   *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Credentials carries a login attempt. Identity is matched against the
// configured credential fields.
type Credentials struct {
	Identity string
	Password string
}

// LoginResult carries the issued token material. RefreshToken is empty for
// drivers without a separate refresh credential.
type LoginResult struct {
	Token        string     `json:"token"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}
