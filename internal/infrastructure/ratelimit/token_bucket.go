// Package ratelimit throttles destination API calls with one token bucket per
// destination operation.
package ratelimit

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultMaxWait bounds how long a single call may block for a token
const DefaultMaxWait = 2 * time.Minute

// ErrInvalidBucket is returned for a non-positive rate or burst
var ErrInvalidBucket = errors.New("ratelimit: rate and burst must be positive")

// Clock returns the current time
type Clock func() time.Time

// Sleeper blocks for d or until ctx is done
type Sleeper func(ctx context.Context, d time.Duration) error

// Bucket hands out tokens. Take blocks until a token is due and returns how
// long it waited.
type Bucket interface {
	Take(ctx context.Context) (time.Duration, error)
}

// Option configures a bucket
type Option func(*bucketOptions)

type bucketOptions struct {
	clock   Clock
	sleep   Sleeper
	maxWait time.Duration
	logger  *zap.Logger
}

// WithClock sets the time source used to take tokens
func WithClock(clock Clock) Option {
	return func(o *bucketOptions) { o.clock = clock }
}

// WithSleeper sets how the bucket waits for a token
func WithSleeper(sleep Sleeper) Option {
	return func(o *bucketOptions) { o.sleep = sleep }
}

// WithMaxWait caps the delay of one Wait call
func WithMaxWait(d time.Duration) Option {
	return func(o *bucketOptions) {
		if d > 0 {
			o.maxWait = d
		}
	}
}

// WithLogger sets the logger for errors a bucket cannot return to its caller
func WithLogger(logger *zap.Logger) Option {
	return func(o *bucketOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func newOptions(opts []Option) bucketOptions {
	o := bucketOptions{clock: time.Now, sleep: SleepContext, maxWait: DefaultMaxWait, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// BucketStats reports how a bucket has been used
type BucketStats struct {
	Taken     int64
	Waited    int64
	TotalWait time.Duration
	Rate      float64
	Burst     int
}

// TokenBucket allows Rate calls per second with bursts of up to Burst calls.
// Every Wait reserves one token at the current clock time; when the bucket is
// empty the caller sleeps until its token is due, never longer than MaxWait.
//
// Safe for concurrent use.
type TokenBucket struct {
	limiter *rate.Limiter
	opts    bucketOptions

	taken     atomic.Int64
	waited    atomic.Int64
	totalWait atomic.Int64
}

// NewTokenBucket creates a full bucket
func NewTokenBucket(ratePerSecond float64, burst int, opts ...Option) (*TokenBucket, error) {
	if ratePerSecond <= 0 || burst <= 0 {
		return nil, ErrInvalidBucket
	}
	o := newOptions(opts)
	return &TokenBucket{
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst),
		opts:    o,
	}, nil
}

// Wait takes a token, sleeping first if none is available
func (b *TokenBucket) Wait(ctx context.Context) error {
	_, err := b.Take(ctx)
	return err
}

// Take is Wait that also reports the delay
func (b *TokenBucket) Take(ctx context.Context) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	now := b.opts.clock()
	r := b.limiter.ReserveN(now, 1)
	if !r.OK() {
		return 0, ErrInvalidBucket
	}
	b.taken.Add(1)

	delay := r.DelayFrom(now)
	if delay <= 0 {
		return 0, nil
	}
	if delay > b.opts.maxWait {
		delay = b.opts.maxWait
	}

	b.waited.Add(1)
	b.totalWait.Add(int64(delay))
	if err := b.opts.sleep(ctx, delay); err != nil {
		r.CancelAt(b.opts.clock())
		return delay, err
	}
	return delay, nil
}

// Tokens returns the tokens available at the current clock time; negative
// values mean callers are queued behind the bucket
func (b *TokenBucket) Tokens() float64 {
	return b.limiter.TokensAt(b.opts.clock())
}

// Stats returns usage counters
func (b *TokenBucket) Stats() BucketStats {
	return BucketStats{
		Taken:     b.taken.Load(),
		Waited:    b.waited.Load(),
		TotalWait: time.Duration(b.totalWait.Load()),
		Rate:      float64(b.limiter.Limit()),
		Burst:     b.limiter.Burst(),
	}
}

// SleepContext sleeps for d unless ctx is done first
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
