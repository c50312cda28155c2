package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/syncbridge/backend/internal/infrastructure/config"
	"github.com/syncbridge/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// Key identifies one bucket
type Key struct {
	Destination string
	Operation   string
}

// String returns "destination:operation"
func (k Key) String() string {
	return k.Destination + ":" + k.Operation
}

// Registry holds the bucket of every configured destination operation.
// Operations without a bucket are not throttled.
type Registry struct {
	mu      sync.RWMutex
	buckets map[Key]Bucket
	warned  sync.Map
	logger  *zap.Logger
}

// NewRegistry creates an empty registry
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		buckets: make(map[Key]Bucket),
		logger:  logger,
	}
}

// NewRegistryFromConfig builds one bucket per configured limit. With the
// redis backend the buckets live in Redis and client must be set.
func NewRegistryFromConfig(cfg config.RateLimitConfig, client redis.Cmdable, logger *zap.Logger, opts ...Option) (*Registry, error) {
	registry := NewRegistry(logger)
	opts = append([]Option{WithLogger(registry.logger)}, opts...)
	if cfg.MaxWait > 0 {
		opts = append([]Option{WithMaxWait(cfg.MaxWait)}, opts...)
	}
	if cfg.Backend == config.RateLimitBackendRedis && client == nil {
		return nil, errors.New("ratelimit: redis backend requires a redis client")
	}

	for _, rule := range cfg.Limits {
		key := Key{Destination: rule.Destination, Operation: rule.Operation}
		var (
			bucket Bucket
			err    error
		)
		if cfg.Backend == config.RateLimitBackendRedis {
			bucket, err = NewRedisTokenBucket(client, defaultRedisKeyPrefix, key.String(), rule.Rate, rule.Burst, opts...)
		} else {
			bucket, err = NewTokenBucket(rule.Rate, rule.Burst, opts...)
		}
		if err != nil {
			return nil, fmt.Errorf("rate limit %s: %w", key, err)
		}
		registry.Register(key, bucket)
	}

	registry.logger.Info("rate limits configured",
		zap.String("backend", cfg.Backend),
		zap.Int("buckets", len(cfg.Limits)),
	)
	return registry, nil
}

// Register adds or replaces the bucket of key
func (r *Registry) Register(key Key, bucket Bucket) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buckets[key] = bucket
}

// Bucket returns the bucket of key
func (r *Registry) Bucket(key Key) (Bucket, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.buckets[key]
	return b, ok
}

// Keys lists the configured keys in a stable order
func (r *Registry) Keys() []Key {
	r.mu.RLock()
	keys := make([]Key, 0, len(r.buckets))
	for k := range r.buckets {
		keys = append(keys, k)
	}
	r.mu.RUnlock()
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

// Wait blocks until the bucket of destination/operation has a token.
// Unconfigured operations pass straight through; the first one per key is
// logged as a warning.
func (r *Registry) Wait(ctx context.Context, destination, operation string) error {
	key := Key{Destination: destination, Operation: operation}
	bucket, ok := r.Bucket(key)
	if !ok {
		telemetry.RateLimitUnconfigured.WithLabelValues(destination, operation).Inc()
		if _, seen := r.warned.LoadOrStore(key, struct{}{}); !seen {
			r.logger.Warn("no rate limit configured, calls are not throttled",
				zap.String("destination", destination),
				zap.String("operation", operation),
			)
		}
		return nil
	}

	waited, err := bucket.Take(ctx)
	if waited > 0 {
		telemetry.RateLimitWaits.WithLabelValues(destination, operation).Inc()
		telemetry.RateLimitWaitSeconds.WithLabelValues(destination, operation).Observe(waited.Seconds())
		r.logger.Debug("rate limited destination call",
			zap.String("destination", destination),
			zap.String("operation", operation),
			zap.Duration("waited", waited),
		)
	}
	return err
}
