package auth

import (
	"context"
	"time"

	"github.com/aegis-auth/aegis/internal/platform/cache"
)

// BackendDenylist records revoked token ids in a cache backend. Entries
// expire together with the token they revoke.
type BackendDenylist struct {
	backend cache.Backend
}

// NewBackendDenylist constructs a denylist over a cache backend.
func NewBackendDenylist(backend cache.Backend) *BackendDenylist {
	return &BackendDenylist{backend: backend}
}

func denyKey(jti string) string {
	return "aegis:jwt:deny:" + jti
}

// Add marks a token id revoked for ttl.
func (d *BackendDenylist) Add(ctx context.Context, jti string, ttl time.Duration) error {
	return d.backend.Put(ctx, denyKey(jti), []byte("1"), ttl)
}

// Contains reports whether a token id is revoked. Errors fail closed at the
// caller.
func (d *BackendDenylist) Contains(ctx context.Context, jti string) (bool, error) {
	_, ok, err := d.backend.Get(ctx, denyKey(jti))
	return ok, err
}

var _ Denylist = (*BackendDenylist)(nil)
