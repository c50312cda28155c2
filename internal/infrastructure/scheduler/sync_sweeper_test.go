package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syncbridge/backend/internal/domain/integration"
)

type fakeSweepService struct {
	mu        sync.Mutex
	batched   []uuid.UUID
	queued    map[uuid.UUID]int
	batchErr  map[uuid.UUID]error
	retried   int
	retryErr  error
	retryRuns int
}

func (s *fakeSweepService) PerformBatchSync(_ context.Context, pairID *uuid.UUID, _ int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batched = append(s.batched, *pairID)
	if err := s.batchErr[*pairID]; err != nil {
		return 0, err
	}
	return s.queued[*pairID], nil
}

func (s *fakeSweepService) RetryEligibleFailedSyncs(_ context.Context, pairID *uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retryRuns++
	return s.retried, s.retryErr
}

func (s *fakeSweepService) runs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retryRuns
}

type fakeStaleMarker struct {
	timeout time.Duration
	failed  int
}

func (m *fakeStaleMarker) FailStaleInProgress(_ context.Context, timeout time.Duration, _ int) (int, error) {
	m.timeout = timeout
	return m.failed, nil
}

type fakePairs []*integration.ConnectionPair

func (p fakePairs) FindActive(context.Context, *uuid.UUID) ([]*integration.ConnectionPair, error) {
	return p, nil
}

type heldLock struct{}

func (heldLock) Acquire(context.Context, time.Duration) (func(context.Context), error) {
	return nil, ErrSweepLocked
}

func TestSyncSweeper_RunOnce(t *testing.T) {
	p1 := &integration.ConnectionPair{ID: uuid.New()}
	p2 := &integration.ConnectionPair{ID: uuid.New()}
	p3 := &integration.ConnectionPair{ID: uuid.New()}
	service := &fakeSweepService{
		queued:  map[uuid.UUID]int{p1.ID: 500, p2.ID: 0, p3.ID: 12},
		retried: 4,
	}
	stale := &fakeStaleMarker{failed: 2}
	sweeper := NewSyncSweeper(SyncSweeperConfig{InProgressTimeout: 45 * time.Minute}, service, stale, fakePairs{p1, p2, p3}, nil, newTestLogger())

	result, err := sweeper.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &SweepResult{BatchJobs: 2, BatchRecords: 512, StaleFailed: 2, RetriesQueued: 4}, result)
	assert.Equal(t, []uuid.UUID{p1.ID, p2.ID, p3.ID}, service.batched)
	assert.Equal(t, 45*time.Minute, stale.timeout)
}

func TestSyncSweeper_PairErrorDoesNotStopSweep(t *testing.T) {
	p1 := &integration.ConnectionPair{ID: uuid.New()}
	p2 := &integration.ConnectionPair{ID: uuid.New()}
	service := &fakeSweepService{
		queued:   map[uuid.UUID]int{p2.ID: 3},
		batchErr: map[uuid.UUID]error{p1.ID: integration.ErrJobQueueFull},
	}
	sweeper := NewSyncSweeper(SyncSweeperConfig{}, service, &fakeStaleMarker{}, fakePairs{p1, p2}, nil, newTestLogger())

	result, err := sweeper.RunOnce(context.Background())
	assert.ErrorIs(t, err, integration.ErrJobQueueFull)
	require.NotNil(t, result)
	assert.Equal(t, 1, result.BatchJobs)
	assert.Equal(t, 1, service.runs(), "retry pass still runs")
}

func TestSyncSweeper_SkipsWhenLocked(t *testing.T) {
	service := &fakeSweepService{}
	sweeper := NewSyncSweeper(SyncSweeperConfig{}, service, &fakeStaleMarker{}, fakePairs{}, heldLock{}, newTestLogger())

	result, err := sweeper.RunOnce(context.Background())
	assert.ErrorIs(t, err, ErrSweepLocked)
	assert.Nil(t, result)
	assert.Zero(t, service.runs())
}

func TestLocalSweepLock(t *testing.T) {
	lock := &localSweepLock{}
	release, err := lock.Acquire(context.Background(), time.Minute)
	require.NoError(t, err)

	_, err = lock.Acquire(context.Background(), time.Minute)
	assert.ErrorIs(t, err, ErrSweepLocked)

	release(context.Background())
	_, err = lock.Acquire(context.Background(), time.Minute)
	assert.NoError(t, err)
}

func TestSyncSweeper_StartStop(t *testing.T) {
	service := &fakeSweepService{retryErr: errors.New("db down")}
	sweeper := NewSyncSweeper(SyncSweeperConfig{Interval: 10 * time.Millisecond}, service, &fakeStaleMarker{}, fakePairs{}, nil, newTestLogger())

	require.NoError(t, sweeper.Start(context.Background()))
	require.NoError(t, sweeper.Start(context.Background()), "second start is a no-op")
	assert.Eventually(t, func() bool { return service.runs() >= 2 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, sweeper.Stop(ctx))
	runs := service.runs()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, runs, service.runs())
}
