package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/infrastructure/config"
	"github.com/syncbridge/backend/internal/infrastructure/telemetry"
)

// DefaultSweepLockKey is the Redis key guarding the periodic sweep
const DefaultSweepLockKey = "sync:sweep:lock"

// SweepService is the part of the sync service the sweeper drives
type SweepService interface {
	PerformBatchSync(ctx context.Context, connectionPairID *uuid.UUID, chunkSize int) (int, error)
	RetryEligibleFailedSyncs(ctx context.Context, connectionPairID *uuid.UUID) (int, error)
}

// StaleSyncMarker fails records that stayed in progress too long
type StaleSyncMarker interface {
	FailStaleInProgress(ctx context.Context, timeout time.Duration, limit int) (int, error)
}

// ActivePairLister lists connection pairs eligible for syncing
type ActivePairLister interface {
	FindActive(ctx context.Context, tenantID *uuid.UUID) ([]*integration.ConnectionPair, error)
}

// SweepLocker elects the instance running a sweep. Acquire returns
// ErrSweepLocked when another instance holds the lock.
type SweepLocker interface {
	Acquire(ctx context.Context, ttl time.Duration) (release func(context.Context), err error)
}

// ---------------------------------------------------------------------------
// Redis lock
// ---------------------------------------------------------------------------

// RedisSweepLock is a SweepLocker backed by a redislock lease
type RedisSweepLock struct {
	locker *redislock.Client
	key    string
}

// NewRedisSweepLock creates a lock on key. client is usually a *redis.Client.
func NewRedisSweepLock(client redislock.RedisClient, key string) *RedisSweepLock {
	if key == "" {
		key = DefaultSweepLockKey
	}
	return &RedisSweepLock{locker: redislock.New(client), key: key}
}

// Acquire obtains the lease without retrying
func (l *RedisSweepLock) Acquire(ctx context.Context, ttl time.Duration) (func(context.Context), error) {
	lock, err := l.locker.Obtain(ctx, l.key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrSweepLocked
	}
	if err != nil {
		return nil, fmt.Errorf("obtain sweep lock: %w", err)
	}
	return func(ctx context.Context) {
		_ = lock.Release(ctx)
	}, nil
}

// localSweepLock serializes sweeps inside one process
type localSweepLock struct {
	mu sync.Mutex
}

func (l *localSweepLock) Acquire(context.Context, time.Duration) (func(context.Context), error) {
	if !l.mu.TryLock() {
		return nil, ErrSweepLocked
	}
	return func(context.Context) { l.mu.Unlock() }, nil
}

// ---------------------------------------------------------------------------
// SyncSweeper
// ---------------------------------------------------------------------------

// SyncSweeperConfig holds configuration for the periodic sweep
type SyncSweeperConfig struct {
	Interval          time.Duration
	LockTTL           time.Duration
	InProgressTimeout time.Duration
	BatchChunkSize    int
	StaleLimit        int
}

// SyncSweeperConfigFrom builds the sweeper config from application config
func SyncSweeperConfigFrom(cfg *config.Config) SyncSweeperConfig {
	return SyncSweeperConfig{
		Interval:          cfg.Scheduler.SweepInterval,
		LockTTL:           cfg.Scheduler.SweepLockTTL,
		InProgressTimeout: cfg.Sync.InProgressTimeout,
	}
}

// SweepResult reports what one sweep did
type SweepResult struct {
	BatchJobs     int `json:"batch_jobs"`
	BatchRecords  int `json:"batch_records"`
	StaleFailed   int `json:"stale_failed"`
	RetriesQueued int `json:"retries_queued"`
}

// SyncSweeper periodically enqueues batch syncs for active pairs, fails
// records stuck in progress and re-dispatches failed records the retry
// policy allows. Only the instance holding the sweep lock does work.
type SyncSweeper struct {
	config  SyncSweeperConfig
	service SweepService
	stale   StaleSyncMarker
	pairs   ActivePairLister
	locker  SweepLocker
	logger  *zap.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewSyncSweeper creates a sweeper. A nil locker limits mutual exclusion to
// this process.
func NewSyncSweeper(cfg SyncSweeperConfig, service SweepService, stale StaleSyncMarker, pairs ActivePairLister, locker SweepLocker, logger *zap.Logger) *SyncSweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = cfg.Interval
	}
	if cfg.InProgressTimeout <= 0 {
		cfg.InProgressTimeout = 30 * time.Minute
	}
	if cfg.StaleLimit <= 0 {
		cfg.StaleLimit = 1000
	}
	if locker == nil {
		locker = &localSweepLock{}
	}
	return &SyncSweeper{
		config:  cfg,
		service: service,
		stale:   stale,
		pairs:   pairs,
		locker:  locker,
		logger:  logger,
	}
}

// Start runs a sweep every interval until Stop
func (s *SyncSweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	go s.loop(ctx, s.done)

	s.logger.Info("Sync sweeper started", zap.Duration("interval", s.config.Interval))
	return nil
}

// Stop stops the ticker and waits for a sweep in flight
func (s *SyncSweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.cancel()
	done := s.done
	s.mu.Unlock()

	select {
	case <-done:
		s.logger.Info("Sync sweeper stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SyncSweeper) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil && !errors.Is(err, ErrSweepLocked) {
				s.logger.Error("Sync sweep failed", zap.Error(err))
			}
		}
	}
}

// RunOnce performs one sweep if this instance obtains the lock
func (s *SyncSweeper) RunOnce(ctx context.Context) (*SweepResult, error) {
	release, err := s.locker.Acquire(ctx, s.config.LockTTL)
	if err != nil {
		if errors.Is(err, ErrSweepLocked) {
			telemetry.SweepRuns.WithLabelValues("skipped").Inc()
			s.logger.Debug("Sync sweep skipped, lock held elsewhere")
		} else {
			telemetry.SweepRuns.WithLabelValues("error").Inc()
		}
		return nil, err
	}
	defer release(context.WithoutCancel(ctx))

	result := &SweepResult{}
	var errs []error

	failed, err := s.stale.FailStaleInProgress(ctx, s.config.InProgressTimeout, s.config.StaleLimit)
	if err != nil {
		errs = append(errs, err)
	}
	result.StaleFailed = failed

	pairs, err := s.pairs.FindActive(ctx, nil)
	if err != nil {
		errs = append(errs, fmt.Errorf("list active connection pairs: %w", err))
	}
	for _, pair := range pairs {
		pairID := pair.ID
		queued, err := s.service.PerformBatchSync(ctx, &pairID, s.config.BatchChunkSize)
		if err != nil {
			errs = append(errs, fmt.Errorf("batch sync pair %s: %w", pairID, err))
			continue
		}
		if queued > 0 {
			result.BatchJobs++
			result.BatchRecords += queued
		}
	}

	retried, err := s.service.RetryEligibleFailedSyncs(ctx, nil)
	if err != nil {
		errs = append(errs, err)
	}
	result.RetriesQueued = retried

	s.logger.Info("Sync sweep finished",
		zap.Int("batch_jobs", result.BatchJobs),
		zap.Int("batch_records", result.BatchRecords),
		zap.Int("stale_failed", result.StaleFailed),
		zap.Int("retries_queued", result.RetriesQueued),
	)

	if err := errors.Join(errs...); err != nil {
		telemetry.SweepRuns.WithLabelValues("error").Inc()
		return result, err
	}
	telemetry.SweepRuns.WithLabelValues("ok").Inc()
	return result, nil
}
