package rbac

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/aegis-auth/aegis/internal/platform/cache"
)

const (
	kindRoles      = "roles"
	kindPrivileges = "privileges"
)

// CounterStore tracks a per-user version that gates the request-local memo.
// Bump advances the version on any grant change; a memo entry recorded under
// an older version is stale.
type CounterStore interface {
	Bump(ctx context.Context, userID int64) error
	VersionOf(ctx context.Context, userID int64) (uint64, error)
}

// MemoryCounters is the default in-process CounterStore.
type MemoryCounters struct {
	mu       sync.RWMutex
	versions map[int64]uint64
}

// NewMemoryCounters constructs an empty counter store.
func NewMemoryCounters() *MemoryCounters {
	return &MemoryCounters{versions: make(map[int64]uint64)}
}

// Bump advances the user's version.
func (m *MemoryCounters) Bump(_ context.Context, userID int64) error {
	m.mu.Lock()
	m.versions[userID]++
	m.mu.Unlock()
	return nil
}

// VersionOf returns the user's current version, zero if never bumped.
func (m *MemoryCounters) VersionOf(_ context.Context, userID int64) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.versions[userID], nil
}

type memoKey struct{}

type memoEntry struct {
	version uint64
	slugs   []string
}

type requestMemo struct {
	mu      sync.Mutex
	entries map[string]memoEntry
}

// WithRequestMemo installs the request-scoped slug memo into the context.
func WithRequestMemo(ctx context.Context) context.Context {
	return context.WithValue(ctx, memoKey{}, &requestMemo{entries: make(map[string]memoEntry)})
}

// RequestMemo is HTTP middleware installing the memo for each request.
func RequestMemo() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(WithRequestMemo(r.Context())))
		})
	}
}

func memoFromContext(ctx context.Context) *requestMemo {
	memo, _ := ctx.Value(memoKey{}).(*requestMemo)
	return memo
}

// SlugCache caches computed slug sets. Tier 1 is a context-carried memo gated
// by the CounterStore version; tier 2 is a cache.Backend keyed by user and
// kind. Backend failures are logged and swallowed, reads fall through to the
// compute function.
type SlugCache struct {
	enabled  bool
	ttl      time.Duration
	backend  cache.Backend
	counters CounterStore
	logger   *slog.Logger
	group    singleflight.Group
}

// NewSlugCache builds a SlugCache. backend may be nil to run with tier 1
// only; counters defaults to an in-process store.
func NewSlugCache(enabled bool, ttl time.Duration, backend cache.Backend, counters CounterStore, logger *slog.Logger) *SlugCache {
	if counters == nil {
		counters = NewMemoryCounters()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SlugCache{enabled: enabled, ttl: ttl, backend: backend, counters: counters, logger: logger}
}

// Counters exposes the version store for invalidation.
func (c *SlugCache) Counters() CounterStore { return c.counters }

func slugCacheKey(userID int64, kind string) string {
	return fmt.Sprintf("aegis:user:%d:%s", userID, kind)
}

// Fetch returns the cached slug set for a user, computing and storing it on
// miss. Concurrent misses for the same key share one computation.
func (c *SlugCache) Fetch(ctx context.Context, userID int64, kind string, compute func(context.Context) ([]string, error)) ([]string, error) {
	if c == nil || !c.enabled {
		return compute(ctx)
	}
	key := slugCacheKey(userID, kind)

	version, err := c.counters.VersionOf(ctx, userID)
	if err != nil {
		c.logger.Warn("slug cache version lookup failed", slog.Any("error", err))
		return compute(ctx)
	}

	memo := memoFromContext(ctx)
	if memo != nil {
		memo.mu.Lock()
		entry, ok := memo.entries[key]
		memo.mu.Unlock()
		if ok && entry.version == version {
			return entry.slugs, nil
		}
	}

	if c.backend != nil {
		if raw, ok, err := c.backend.Get(ctx, key); err != nil {
			c.logger.Warn("slug cache read failed", slog.String("key", key), slog.Any("error", err))
		} else if ok {
			var slugs []string
			if err := json.Unmarshal(raw, &slugs); err == nil {
				c.memoize(memo, key, version, slugs)
				return slugs, nil
			}
			c.logger.Warn("slug cache entry corrupt", slog.String("key", key))
		}
	}

	result, err, _ := c.group.Do(key, func() (any, error) {
		slugs, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		if c.backend != nil {
			raw, _ := json.Marshal(slugs)
			if err := c.backend.Put(ctx, key, raw, c.storeTTL()); err != nil {
				c.logger.Warn("slug cache write failed", slog.String("key", key), slog.Any("error", err))
			}
		}
		return slugs, nil
	})
	if err != nil {
		return nil, err
	}
	slugs := result.([]string)
	c.memoize(memo, key, version, slugs)
	return slugs, nil
}

// storeTTL maps a non-positive configured TTL to indefinite retention.
func (c *SlugCache) storeTTL() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	return c.ttl
}

func (c *SlugCache) memoize(memo *requestMemo, key string, version uint64, slugs []string) {
	if memo == nil {
		return
	}
	memo.mu.Lock()
	memo.entries[key] = memoEntry{version: version, slugs: slugs}
	memo.mu.Unlock()
}

// Forget drops both slug sets for a user and bumps the memo version.
func (c *SlugCache) Forget(ctx context.Context, userID int64) {
	if c == nil {
		return
	}
	if err := c.counters.Bump(ctx, userID); err != nil {
		c.logger.Warn("slug cache version bump failed", slog.Int64("user_id", userID), slog.Any("error", err))
	}
	if c.backend == nil {
		return
	}
	for _, kind := range []string{kindRoles, kindPrivileges} {
		key := slugCacheKey(userID, kind)
		if err := c.backend.Forget(ctx, key); err != nil {
			c.logger.Warn("slug cache forget failed", slog.String("key", key), slog.Any("error", err))
		}
	}
}

// InvalidationStore is the reverse-lookup surface the Invalidator needs.
type InvalidationStore interface {
	UsersHoldingRole(ctx context.Context, roleID int64) ([]int64, error)
	UsersHoldingPrivilege(ctx context.Context, privilegeID int64) ([]int64, error)
	UsersHoldingAnyRole(ctx context.Context) ([]int64, error)
}

// Invalidator is the single entry point for cache invalidation. Every grant
// mutation routes through one of its methods.
type Invalidator struct {
	cache *SlugCache
	store InvalidationStore
}

// NewInvalidator constructs an Invalidator.
func NewInvalidator(cache *SlugCache, store InvalidationStore) *Invalidator {
	return &Invalidator{cache: cache, store: store}
}

// User invalidates one user's cached slug sets.
func (i *Invalidator) User(ctx context.Context, userID int64) {
	i.cache.Forget(ctx, userID)
}

// Role invalidates every user holding the role. Used when the role's
// privilege links or slug change.
func (i *Invalidator) Role(ctx context.Context, roleID int64) error {
	userIDs, err := i.store.UsersHoldingRole(ctx, roleID)
	if err != nil {
		return err
	}
	for _, id := range userIDs {
		i.cache.Forget(ctx, id)
	}
	return nil
}

// Privilege invalidates every user reaching the privilege through any role.
func (i *Invalidator) Privilege(ctx context.Context, privilegeID int64) error {
	userIDs, err := i.store.UsersHoldingPrivilege(ctx, privilegeID)
	if err != nil {
		return err
	}
	for _, id := range userIDs {
		i.cache.Forget(ctx, id)
	}
	return nil
}

// All invalidates every user holding any role. Used on role-table flush.
func (i *Invalidator) All(ctx context.Context) error {
	userIDs, err := i.store.UsersHoldingAnyRole(ctx)
	if err != nil {
		return err
	}
	for _, id := range userIDs {
		i.cache.Forget(ctx, id)
	}
	return nil
}
