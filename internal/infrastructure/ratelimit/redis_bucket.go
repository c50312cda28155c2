package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultRedisKeyPrefix = "sync:ratelimit:"

// takeScript refills the bucket for the time elapsed since the last call,
// takes one token and returns the wait in milliseconds. Tokens may go
// negative: each caller reserves its slot and the next one queues behind it.
var takeScript = redis.NewScript(`
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local state = redis.call("HMGET", key, "tokens", "ts")
local tokens = tonumber(state[1])
local ts = tonumber(state[2])
if tokens == nil or ts == nil then
	tokens = burst
	ts = now
end

if now > ts then
	tokens = math.min(burst, tokens + (now - ts) / 1000 * rate)
	ts = now
end

tokens = tokens - 1
redis.call("HSET", key, "tokens", tostring(tokens), "ts", tostring(ts))
redis.call("PEXPIRE", key, ttl)

if tokens >= 0 then
	return 0
end
return math.ceil(-tokens / rate * 1000)
`)

// refundScript gives back a token whose caller gave up waiting
var refundScript = redis.NewScript(`
local key = KEYS[1]
local burst = tonumber(ARGV[1])
local tokens = tonumber(redis.call("HGET", key, "tokens"))
if tokens == nil then
	return 0
end
tokens = math.min(burst, tokens + 1)
redis.call("HSET", key, "tokens", tostring(tokens))
return 1
`)

// RedisTokenBucket keeps the bucket state in Redis so every process sharing
// the key draws from the same budget. The refill formula is the same as
// TokenBucket's.
type RedisTokenBucket struct {
	client redis.Cmdable
	key    string
	rate   float64
	burst  int
	opts   bucketOptions
}

// NewRedisTokenBucket creates a bucket stored under prefix+name
func NewRedisTokenBucket(client redis.Cmdable, prefix, name string, ratePerSecond float64, burst int, opts ...Option) (*RedisTokenBucket, error) {
	if ratePerSecond <= 0 || burst <= 0 {
		return nil, ErrInvalidBucket
	}
	if prefix == "" {
		prefix = defaultRedisKeyPrefix
	}
	return &RedisTokenBucket{
		client: client,
		key:    prefix + name,
		rate:   ratePerSecond,
		burst:  burst,
		opts:   newOptions(opts),
	}, nil
}

// Key returns the Redis key holding the bucket
func (b *RedisTokenBucket) Key() string {
	return b.key
}

// Wait takes a token, sleeping first if none is available
func (b *RedisTokenBucket) Wait(ctx context.Context) error {
	_, err := b.Take(ctx)
	return err
}

// Take takes a token and reports how long the caller slept for it
func (b *RedisTokenBucket) Take(ctx context.Context) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	now := b.opts.clock().UnixMilli()
	waitMs, err := takeScript.Run(ctx, b.client, []string{b.key},
		b.rate, b.burst, now, b.ttl().Milliseconds(),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("ratelimit: take token from %s: %w", b.key, err)
	}
	if waitMs <= 0 {
		return 0, nil
	}

	delay := time.Duration(waitMs) * time.Millisecond
	if delay > b.opts.maxWait {
		delay = b.opts.maxWait
	}
	if err := b.opts.sleep(ctx, delay); err != nil {
		// the caller is leaving either way, a lost refund only costs one slot
		if rerr := refundScript.Run(context.WithoutCancel(ctx), b.client, []string{b.key}, b.burst).Err(); rerr != nil {
			b.opts.logger.Warn("failed to refund rate limit token",
				zap.String("key", b.key),
				zap.Duration("delay", delay),
				zap.Error(rerr),
			)
		}
		return delay, err
	}
	return delay, nil
}

// ttl keeps idle buckets around until they would be full again, plus the
// longest queue a caller may sit in
func (b *RedisTokenBucket) ttl() time.Duration {
	refill := time.Duration(math.Ceil(float64(b.burst)/b.rate*1000)) * time.Millisecond
	return refill + b.opts.maxWait
}
