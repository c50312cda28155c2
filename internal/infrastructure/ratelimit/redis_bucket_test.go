package ratelimit

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// scriptedRedis answers the take script with a fixed wait and fails the
// refund script, without a server behind it.
type scriptedRedis struct {
	waitMs    int64
	refundErr error
	refunds   int
}

func (h *scriptedRedis) DialHook(next redis.DialHook) redis.DialHook {
	return func(context.Context, string, string) (net.Conn, error) {
		return nil, errors.New("dial disabled in tests")
	}
}

func (h *scriptedRedis) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(_ context.Context, cmd redis.Cmder) error {
		c, ok := cmd.(*redis.Cmd)
		if !ok {
			return errors.New("unexpected command " + cmd.Name())
		}
		// evalsha sha numkeys key argv...: take passes four args, refund one
		if len(cmd.Args()) == 5 {
			h.refunds++
			c.SetErr(h.refundErr)
			return h.refundErr
		}
		c.SetVal(h.waitMs)
		return nil
	}
}

func (h *scriptedRedis) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func TestRedisTokenBucket_RefundFailureIsLogged(t *testing.T) {
	hook := &scriptedRedis{waitMs: 1500, refundErr: errors.New("redis: connection reset")}
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	client.AddHook(hook)
	t.Cleanup(func() { _ = client.Close() })

	core, logs := observer.New(zapcore.WarnLevel)
	bucket, err := NewRedisTokenBucket(client, "test:", "shopify", 1, 1,
		WithLogger(zap.New(core)),
		WithSleeper(func(context.Context, time.Duration) error { return context.Canceled }),
	)
	require.NoError(t, err)

	delay, err := bucket.Take(context.Background())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1500*time.Millisecond, delay)
	assert.Equal(t, 1, hook.refunds)

	entries := logs.FilterMessage("failed to refund rate limit token").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "test:shopify", fields["key"])
	assert.Equal(t, "redis: connection reset", fields["error"])
}

func TestRedisTokenBucket_RefundAfterCancel(t *testing.T) {
	hook := &scriptedRedis{waitMs: 200}
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	client.AddHook(hook)
	t.Cleanup(func() { _ = client.Close() })

	core, logs := observer.New(zapcore.WarnLevel)
	bucket, err := NewRedisTokenBucket(client, "", "amazon", 5, 1,
		WithLogger(zap.New(core)),
		WithSleeper(func(context.Context, time.Duration) error { return context.DeadlineExceeded }),
	)
	require.NoError(t, err)
	assert.Equal(t, defaultRedisKeyPrefix+"amazon", bucket.Key())

	_, err = bucket.Take(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, hook.refunds)
	assert.Zero(t, logs.Len())
}
