package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type cachedMetrics struct {
	Total       int64   `json:"total"`
	SuccessRate float64 `json:"success_rate"`
}

func TestInMemoryAggregateCache_GetSet(t *testing.T) {
	clock := newManualClock()
	c := NewInMemoryAggregateCache().WithClock(clock.Now)
	ctx := context.Background()

	var got cachedMetrics
	hit, err := c.Get(ctx, "sync:analytics:metrics:all", &got)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, c.Set(ctx, "sync:analytics:metrics:all", cachedMetrics{Total: 12, SuccessRate: 75}, time.Minute))

	hit, err = c.Get(ctx, "sync:analytics:metrics:all", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, cachedMetrics{Total: 12, SuccessRate: 75}, got)

	clock.Advance(time.Minute)
	hit, err = c.Get(ctx, "sync:analytics:metrics:all", &got)
	require.NoError(t, err)
	assert.False(t, hit, "entry expires after its ttl")
}

func TestInMemoryAggregateCache_ValuesAreCopied(t *testing.T) {
	c := NewInMemoryAggregateCache()
	ctx := context.Background()

	value := &cachedMetrics{Total: 1}
	require.NoError(t, c.Set(ctx, "k", value, time.Minute))
	value.Total = 99

	var got cachedMetrics
	hit, err := c.Get(ctx, "k", &got)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, int64(1), got.Total)
}

func TestInMemoryAggregateCache_DeletePrefix(t *testing.T) {
	c := NewInMemoryAggregateCache()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "sync:analytics:metrics:a", 1, time.Minute))
	require.NoError(t, c.Set(ctx, "sync:analytics:health:a", 2, time.Minute))
	require.NoError(t, c.Set(ctx, "other:key", 3, time.Minute))

	require.NoError(t, c.DeletePrefix(ctx, "sync:analytics:"))
	assert.Equal(t, 1, c.Len())

	var v int
	hit, err := c.Get(ctx, "other:key", &v)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 3, v)
}

func TestInMemoryAggregateCache_SetPurgesExpired(t *testing.T) {
	clock := newManualClock()
	c := NewInMemoryAggregateCache().WithClock(clock.Now)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "old", 1, time.Second))
	clock.Advance(time.Minute)
	require.NoError(t, c.Set(ctx, "new", 2, time.Second))

	assert.Equal(t, 1, c.Len())
}

func TestInMemoryAggregateCache_UnencodableValue(t *testing.T) {
	c := NewInMemoryAggregateCache()
	err := c.Set(context.Background(), "k", make(chan int), time.Minute)
	assert.Error(t, err)
}

// ---------------------------------------------------------------------------
// Factory
// ---------------------------------------------------------------------------

func TestStoreFactory_MemoryBackends(t *testing.T) {
	f := NewStoreFactory(nil, WithLogger(zap.NewNop()))

	aggregate, err := f.AggregateCache(BackendMemory)
	require.NoError(t, err)
	assert.IsType(t, &InMemoryAggregateCache{}, aggregate)

	dedupe, err := f.DedupeStore("")
	require.NoError(t, err)
	assert.IsType(t, &InMemoryIdempotencyStore{}, dedupe)
	require.NoError(t, dedupe.Close())
}

func TestStoreFactory_RedisWithoutClient(t *testing.T) {
	_, err := NewStoreFactory(nil).AggregateCache(BackendRedis)
	assert.Error(t, err)

	store, err := NewStoreFactory(nil, WithInMemoryFallback(true)).DedupeStore(BackendRedis)
	require.NoError(t, err)
	assert.IsType(t, &InMemoryIdempotencyStore{}, store)
	require.NoError(t, store.Close())
}

func TestStoreFactory_UnknownBackend(t *testing.T) {
	_, err := NewStoreFactory(nil).AggregateCache("memcached")
	assert.ErrorContains(t, err, "unknown backend")
}
