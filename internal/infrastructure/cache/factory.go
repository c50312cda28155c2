package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appintegration "github.com/syncbridge/backend/internal/application/integration"
	"github.com/syncbridge/backend/internal/domain/shared"
	"github.com/syncbridge/backend/internal/infrastructure/config"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr(), err)
	}
	return client, nil
}

// StoreFactory builds cache backends by name
type StoreFactory struct {
	client                redis.Cmdable
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// StoreFactoryOption is a functional option for configuring the factory
type StoreFactoryOption func(*StoreFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) StoreFactoryOption {
	return func(f *StoreFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether a redis backend without a client
// falls back to memory instead of failing. Default is false.
func WithInMemoryFallback(allow bool) StoreFactoryOption {
	return func(f *StoreFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewStoreFactory creates a factory. client may be nil when no Redis is configured.
func NewStoreFactory(client redis.Cmdable, opts ...StoreFactoryOption) *StoreFactory {
	f := &StoreFactory{
		client: client,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// AggregateCache returns the analytics cache for backend
func (f *StoreFactory) AggregateCache(backend string) (appintegration.AggregateCache, error) {
	useRedis, err := f.useRedis(backend, "analytics cache")
	if err != nil {
		return nil, err
	}
	if useRedis {
		f.logger.Info("using Redis analytics cache")
		return NewRedisAggregateCache(f.client), nil
	}
	return NewInMemoryAggregateCache(), nil
}

// DedupeStore returns the dispatch dedupe store for backend
func (f *StoreFactory) DedupeStore(backend string) (shared.IdempotencyStore, error) {
	useRedis, err := f.useRedis(backend, "dedupe store")
	if err != nil {
		return nil, err
	}
	if useRedis {
		f.logger.Info("using Redis dispatch dedupe store")
		return NewRedisIdempotencyStore(f.client, DefaultDedupePrefix), nil
	}
	return NewInMemoryIdempotencyStore(), nil
}

func (f *StoreFactory) useRedis(backend, what string) (bool, error) {
	switch backend {
	case "", BackendMemory:
		return false, nil
	case BackendRedis:
		if f.client != nil {
			return true, nil
		}
		if !f.allowInMemoryFallback {
			return false, fmt.Errorf("%s: redis backend selected but no Redis client is configured", what)
		}
		f.logger.Warn("Redis unavailable, falling back to in-memory "+what+". "+
			"State is not shared across instances.")
		return false, nil
	default:
		return false, fmt.Errorf("%s: unknown backend %q", what, backend)
	}
}
