package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	appintegration "github.com/syncbridge/backend/internal/application/integration"
	"github.com/syncbridge/backend/internal/infrastructure/telemetry"
)

// ---------------------------------------------------------------------------
// In-memory
// ---------------------------------------------------------------------------

type aggregateEntry struct {
	data      []byte
	expiresAt time.Time
}

// InMemoryAggregateCache keeps JSON-encoded aggregates in process memory.
// Values are encoded on Set so callers never share mutable state with the cache.
type InMemoryAggregateCache struct {
	mu      sync.RWMutex
	entries map[string]aggregateEntry
	now     func() time.Time
}

// NewInMemoryAggregateCache creates an empty cache
func NewInMemoryAggregateCache() *InMemoryAggregateCache {
	return &InMemoryAggregateCache{
		entries: make(map[string]aggregateEntry),
		now:     time.Now,
	}
}

// WithClock overrides the time source
func (c *InMemoryAggregateCache) WithClock(now func() time.Time) *InMemoryAggregateCache {
	c.now = now
	return c
}

// Get decodes the value under key into dest
func (c *InMemoryAggregateCache) Get(_ context.Context, key string, dest any) (bool, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || !c.now().Before(e.expiresAt) {
		telemetry.AggregateCacheRequests.WithLabelValues("memory", "miss").Inc()
		return false, nil
	}
	if err := json.Unmarshal(e.data, dest); err != nil {
		return false, fmt.Errorf("decode cached %s: %w", key, err)
	}
	telemetry.AggregateCacheRequests.WithLabelValues("memory", "hit").Inc()
	return true, nil
}

// Set stores value under key for ttl
func (c *InMemoryAggregateCache) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.purgeLocked()
	c.entries[key] = aggregateEntry{data: data, expiresAt: c.now().Add(ttl)}
	return nil
}

// DeletePrefix removes every key starting with prefix
func (c *InMemoryAggregateCache) DeletePrefix(_ context.Context, prefix string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
	return nil
}

// Len returns the number of entries, expired or not
func (c *InMemoryAggregateCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// purgeLocked drops expired entries. Caller holds mu.
func (c *InMemoryAggregateCache) purgeLocked() {
	now := c.now()
	for key, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, key)
		}
	}
}

// ---------------------------------------------------------------------------
// Redis
// ---------------------------------------------------------------------------

// RedisAggregateCache stores JSON-encoded aggregates in Redis so every
// dashboard instance serves the same numbers
type RedisAggregateCache struct {
	client redis.Cmdable
}

// NewRedisAggregateCache creates a cache on a shared client
func NewRedisAggregateCache(client redis.Cmdable) *RedisAggregateCache {
	return &RedisAggregateCache{client: client}
}

// Get decodes the value under key into dest
func (c *RedisAggregateCache) Get(ctx context.Context, key string, dest any) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		telemetry.AggregateCacheRequests.WithLabelValues("redis", "miss").Inc()
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("decode cached %s: %w", key, err)
	}
	telemetry.AggregateCacheRequests.WithLabelValues("redis", "hit").Inc()
	return true, nil
}

// Set stores value under key for ttl
func (c *RedisAggregateCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// DeletePrefix scans for keys starting with prefix and deletes them
func (c *RedisAggregateCache) DeletePrefix(ctx context.Context, prefix string) error {
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, prefix+"*", 100).Result()
		if err != nil {
			return fmt.Errorf("scan %s*: %w", prefix, err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("delete %s*: %w", prefix, err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

var (
	_ appintegration.AggregateCache = (*InMemoryAggregateCache)(nil)
	_ appintegration.AggregateCache = (*RedisAggregateCache)(nil)
)
