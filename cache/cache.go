// Package cache wraps the key-value store the pipeline uses for claim/stamp
// dedup keys and verdict snapshots: SET NX EX, SET EX, EXPIRE, DELETE, GET.
// This package is the thin, testable seam around Redis.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is the minimal KV contract the pipeline depends on. It is an
// interface so analyzer/scheduler tests can substitute a fake or a
// miniredis-backed instance without touching a real Redis server.
type Cache interface {
	// SetNX sets key to "1" with the given TTL only if it doesn't already
	// exist. Returns true if this call acquired the key.
	SetNX(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// SetEX unconditionally sets key to value with the given TTL.
	SetEX(ctx context.Context, key, value string, ttl time.Duration) error
	// Expire resets the TTL on an existing key without touching its value.
	Expire(ctx context.Context, key string, ttl time.Duration) error
	// Delete removes key if present.
	Delete(ctx context.Context, key string) error
	// Get returns the value and whether the key existed.
	Get(ctx context.Context, key string) (string, bool, error)
}

// RedisCache is the production Cache backed by go-redis.
type RedisCache struct {
	client *redis.Client
}

// New connects to the Redis instance at url (e.g. REDIS_APP_URL) and
// verifies connectivity with a bounded ping.
func New(url string) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// NewWithClient wraps an already-constructed go-redis client, used by tests
// to point at a miniredis instance.
func NewWithClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) SetNX(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := c.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis SETNX %s: %w", key, err)
	}
	return ok, nil
}

func (c *RedisCache) SetEX(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis SET %s: %w", key, err)
	}
	return nil
}

func (c *RedisCache) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := c.client.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("redis EXPIRE %s: %w", key, err)
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis DEL %s: %w", key, err)
	}
	return nil
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis GET %s: %w", key, err)
	}
	return val, true, nil
}

// Close releases the underlying connection pool.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
