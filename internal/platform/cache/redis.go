// Package cache provides the shared cache backends used by the
// authorization layer. A Backend is a pure optimization: callers must treat
// every error as a miss and fall back to direct computation.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Backend is the minimal contract consumed by the slug cache. A zero or
// negative ttl means indefinite retention.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Forget(ctx context.Context, key string) error
}

// New creates a new Redis client and verifies connectivity.
func New(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("platform/cache: ping: %w", err)
	}

	return client, nil
}

// RedisBackend adapts a Redis client to the Backend contract.
type RedisBackend struct {
	client *redis.Client
}

// NewRedisBackend constructs a RedisBackend.
func NewRedisBackend(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client}
}

// Get fetches a key. A missing key is reported as (nil, false, nil).
func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := b.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("platform/cache: get %s: %w", key, err)
	}
	return data, true, nil
}

// Put stores a value. A non-positive ttl stores without expiry.
func (b *RedisBackend) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := b.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("platform/cache: put %s: %w", key, err)
	}
	return nil
}

// Forget removes a key. Removing an absent key is not an error.
func (b *RedisBackend) Forget(ctx context.Context, key string) error {
	if err := b.client.Del(ctx, key).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("platform/cache: forget %s: %w", key, err)
	}
	return nil
}

var _ Backend = (*RedisBackend)(nil)
