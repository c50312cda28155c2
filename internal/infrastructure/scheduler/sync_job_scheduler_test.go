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
	"go.uber.org/zap"

	appintegration "github.com/syncbridge/backend/internal/application/integration"
	"github.com/syncbridge/backend/internal/domain/integration"
)

// ---------------------------------------------------------------------------
// Test Helpers
// ---------------------------------------------------------------------------

func newTestLogger() *zap.Logger {
	logger, _ := zap.NewDevelopment()
	return logger
}

func newTestJob() *integration.SyncJob {
	return integration.NewBatchSyncJob(uuid.New(), nil, []uuid.UUID{uuid.New(), uuid.New()}, "test")
}

func testConfig() SyncJobSchedulerConfig {
	cfg := DefaultSyncJobSchedulerConfig()
	cfg.MaxConcurrentJobs = 2
	cfg.QueueSize = 10
	cfg.RetryDelay = 10 * time.Millisecond
	cfg.MaxRetryDelay = 50 * time.Millisecond
	return cfg
}

// fakeExecutor runs fn for every attempt and records permanent failures
type fakeExecutor struct {
	mu        sync.Mutex
	attempts  int
	permanent []error
	fn        func(ctx context.Context, attempt int) (*JobResult, error)
}

func (e *fakeExecutor) Execute(ctx context.Context, _ *integration.SyncJob) (*JobResult, error) {
	e.mu.Lock()
	e.attempts++
	attempt := e.attempts
	e.mu.Unlock()
	if e.fn == nil {
		return &JobResult{Succeeded: 2}, nil
	}
	return e.fn(ctx, attempt)
}

func (e *fakeExecutor) HandlePermanentFailure(_ context.Context, _ *integration.SyncJob, cause error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.permanent = append(e.permanent, cause)
}

func (e *fakeExecutor) attemptCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.attempts
}

func (e *fakeExecutor) permanentFailures() []error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]error(nil), e.permanent...)
}

func startScheduler(t *testing.T, cfg SyncJobSchedulerConfig, exec SyncJobExecutor) *SyncJobScheduler {
	t.Helper()
	s, err := NewSyncJobScheduler(cfg, exec, newTestLogger())
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})
	return s
}

// ---------------------------------------------------------------------------
// JobRun Tests
// ---------------------------------------------------------------------------

func TestRetryBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Minute},
		{1, time.Minute},
		{2, 2 * time.Minute},
		{3, 4 * time.Minute},
		{5, 16 * time.Minute},
		{6, 30 * time.Minute},
		{20, 30 * time.Minute},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RetryBackoff(tt.attempt, time.Minute, 30*time.Minute), "attempt %d", tt.attempt)
	}
}

func TestJobRun_Lifecycle(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	run := NewJobRun(newTestJob(), 2)
	assert.Equal(t, JobRunStatusPending, run.Status)

	run.Start(now)
	assert.Equal(t, 1, run.Attempt)
	assert.Equal(t, JobRunStatusRunning, run.Status)

	run.Fail(now, "boom")
	assert.True(t, run.ShouldRetry())
	delay := run.ScheduleRetry(now, time.Second, time.Hour)
	assert.Equal(t, time.Second, delay)
	assert.Equal(t, JobRunStatusRetrying, run.Status)
	require.NotNil(t, run.NextRetryAt)
	assert.Equal(t, now.Add(time.Second), *run.NextRetryAt)

	run.Start(now)
	run.Fail(now, "boom")
	assert.True(t, run.ShouldRetry())

	run.Start(now)
	run.Fail(now, "boom")
	assert.Equal(t, 3, run.Attempt)
	assert.False(t, run.ShouldRetry(), "two retries allowed after the first attempt")

	run.Start(now)
	run.Complete(now, &JobResult{Succeeded: 1, Failed: 1})
	assert.Equal(t, JobRunStatusSuccess, run.Status)
	assert.Empty(t, run.Error)
	assert.Equal(t, 1, run.Failed)
}

// ---------------------------------------------------------------------------
// Config Tests
// ---------------------------------------------------------------------------

func TestSyncJobSchedulerConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*SyncJobSchedulerConfig)
		valid  bool
	}{
		{"defaults", func(*SyncJobSchedulerConfig) {}, true},
		{"no workers", func(c *SyncJobSchedulerConfig) { c.MaxConcurrentJobs = 0 }, false},
		{"no queue", func(c *SyncJobSchedulerConfig) { c.QueueSize = 0 }, false},
		{"no batch timeout", func(c *SyncJobSchedulerConfig) { c.BatchJobTimeout = 0 }, false},
		{"no single timeout", func(c *SyncJobSchedulerConfig) { c.SingleJobTimeout = 0 }, false},
		{"negative retries", func(c *SyncJobSchedulerConfig) { c.RetryAttempts = -1 }, false},
		{"zero retries", func(c *SyncJobSchedulerConfig) { c.RetryAttempts = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultSyncJobSchedulerConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			}
		})
	}
}

func TestSyncJobSchedulerConfig_TimeoutPerKind(t *testing.T) {
	cfg := DefaultSyncJobSchedulerConfig()
	assert.Equal(t, 10*time.Minute, cfg.timeoutFor(integration.SyncJobKindBatch))
	assert.Equal(t, 5*time.Minute, cfg.timeoutFor(integration.SyncJobKindSingle))
}

// ---------------------------------------------------------------------------
// Scheduler Tests
// ---------------------------------------------------------------------------

func TestSyncJobScheduler_EnqueueRequiresRunning(t *testing.T) {
	s, err := NewSyncJobScheduler(testConfig(), &fakeExecutor{}, newTestLogger())
	require.NoError(t, err)

	err = s.Enqueue(context.Background(), newTestJob())
	assert.ErrorIs(t, err, integration.ErrJobQueueClosed)
	err = s.Submit(context.Background(), newTestJob())
	assert.ErrorIs(t, err, integration.ErrJobQueueClosed)
}

func TestSyncJobScheduler_RejectsInvalidJob(t *testing.T) {
	s := startScheduler(t, testConfig(), &fakeExecutor{})
	err := s.Enqueue(context.Background(), &integration.SyncJob{ID: "x", Kind: integration.SyncJobKindBatch})
	assert.ErrorIs(t, err, integration.ErrInvalidJob)
}

func TestSyncJobScheduler_RunsJob(t *testing.T) {
	exec := &fakeExecutor{}
	s := startScheduler(t, testConfig(), exec)

	require.NoError(t, s.Enqueue(context.Background(), newTestJob()))

	require.Eventually(t, func() bool { return len(s.GetJobHistory(0)) == 1 }, time.Second, 5*time.Millisecond)
	run := s.GetJobHistory(1)[0]
	assert.Equal(t, JobRunStatusSuccess, run.Status)
	assert.Equal(t, 1, run.Attempt)
	assert.Equal(t, 2, run.Succeeded)
	assert.Equal(t, int64(1), s.Stats().Completed)
}

func TestSyncJobScheduler_QueueFull(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	exec := &fakeExecutor{fn: func(ctx context.Context, _ int) (*JobResult, error) {
		started <- struct{}{}
		select {
		case <-release:
		case <-ctx.Done():
		}
		return &JobResult{}, nil
	}}
	cfg := testConfig()
	cfg.MaxConcurrentJobs = 1
	cfg.QueueSize = 1
	s := startScheduler(t, cfg, exec)
	defer close(release)

	ctx := context.Background()
	require.NoError(t, s.Enqueue(ctx, newTestJob()))
	<-started

	require.NoError(t, s.Enqueue(ctx, newTestJob()))
	assert.ErrorIs(t, s.Enqueue(ctx, newTestJob()), integration.ErrJobQueueFull)

	depth, err := s.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), depth)
}

func TestSyncJobScheduler_RetriesWithBackoff(t *testing.T) {
	exec := &fakeExecutor{fn: func(_ context.Context, attempt int) (*JobResult, error) {
		if attempt == 1 {
			return nil, errors.New("load chunk: connection reset")
		}
		return &JobResult{Succeeded: 2}, nil
	}}
	s := startScheduler(t, testConfig(), exec)

	require.NoError(t, s.Enqueue(context.Background(), newTestJob()))

	require.Eventually(t, func() bool { return len(s.GetJobHistory(0)) == 1 }, 2*time.Second, 5*time.Millisecond)
	run := s.GetJobHistory(1)[0]
	assert.Equal(t, JobRunStatusSuccess, run.Status)
	assert.Equal(t, 2, run.Attempt)
	assert.Equal(t, 2, exec.attemptCount())
	assert.Empty(t, exec.permanentFailures())
	assert.Equal(t, int64(1), s.Stats().Retried)
}

func TestSyncJobScheduler_PermanentFailure(t *testing.T) {
	cause := errors.New("load chunk: database unavailable")
	exec := &fakeExecutor{fn: func(context.Context, int) (*JobResult, error) { return nil, cause }}
	cfg := testConfig()
	cfg.RetryAttempts = 2
	s := startScheduler(t, cfg, exec)

	require.NoError(t, s.Enqueue(context.Background(), newTestJob()))

	require.Eventually(t, func() bool { return len(exec.permanentFailures()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, exec.permanentFailures()[0], cause)
	assert.Equal(t, 3, exec.attemptCount())

	require.Eventually(t, func() bool { return len(s.GetJobHistory(0)) == 1 }, time.Second, 5*time.Millisecond)
	run := s.GetJobHistory(1)[0]
	assert.Equal(t, JobRunStatusFailed, run.Status)
	assert.Contains(t, run.Error, "database unavailable")
	assert.Equal(t, int64(1), s.Stats().FailedPermanent)
}

func TestSyncJobScheduler_JobTimeout(t *testing.T) {
	exec := &fakeExecutor{fn: func(ctx context.Context, _ int) (*JobResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	cfg := testConfig()
	cfg.SingleJobTimeout = 20 * time.Millisecond
	cfg.RetryAttempts = 0
	s := startScheduler(t, cfg, exec)

	job := newTestJob()
	job.Kind = integration.SyncJobKindSingle
	require.NoError(t, s.Enqueue(context.Background(), job))

	require.Eventually(t, func() bool { return len(exec.permanentFailures()) == 1 }, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, exec.permanentFailures()[0], context.DeadlineExceeded)
}

func TestSyncJobScheduler_StopCancelsPendingRetries(t *testing.T) {
	exec := &fakeExecutor{fn: func(context.Context, int) (*JobResult, error) { return nil, errors.New("boom") }}
	cfg := testConfig()
	cfg.RetryDelay = time.Hour
	cfg.MaxRetryDelay = time.Hour
	s, err := NewSyncJobScheduler(cfg, exec, newTestLogger())
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))

	ctx := context.Background()
	require.NoError(t, s.Enqueue(ctx, newTestJob()))
	require.Eventually(t, func() bool { return s.Stats().RetriesWaiting == 1 }, time.Second, 5*time.Millisecond)

	depth, err := s.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), depth, "a scheduled retry counts as queued")

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, s.Stop(stopCtx))

	depth, err = s.Depth(ctx)
	require.NoError(t, err)
	assert.Zero(t, depth)
	assert.Empty(t, exec.permanentFailures())
	assert.ErrorIs(t, s.Enqueue(ctx, newTestJob()), integration.ErrJobQueueClosed)
}

func TestSyncJobScheduler_HistoryIsBounded(t *testing.T) {
	cfg := testConfig()
	cfg.HistorySize = 3
	s := startScheduler(t, cfg, &fakeExecutor{})

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Enqueue(context.Background(), newTestJob()))
	}
	require.Eventually(t, func() bool { return s.Stats().Completed == 5 }, time.Second, 5*time.Millisecond)
	assert.Len(t, s.GetJobHistory(0), 3)
	assert.Len(t, s.GetJobHistory(2), 2)
}

func TestSyncJobScheduler_SubmitWaitsForSpace(t *testing.T) {
	release := make(chan struct{})
	exec := &fakeExecutor{fn: func(ctx context.Context, _ int) (*JobResult, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return &JobResult{}, nil
	}}
	cfg := testConfig()
	cfg.MaxConcurrentJobs = 1
	cfg.QueueSize = 1
	s := startScheduler(t, cfg, exec)
	ctx := context.Background()

	require.NoError(t, s.Enqueue(ctx, newTestJob()))
	require.Eventually(t, func() bool { return s.Stats().Running == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Enqueue(ctx, newTestJob()))

	shortCtx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Submit(shortCtx, newTestJob()), context.DeadlineExceeded)

	close(release)
	require.NoError(t, s.Submit(ctx, newTestJob()))
	require.Eventually(t, func() bool { return s.Stats().Completed == 3 }, time.Second, 5*time.Millisecond)
}

// ---------------------------------------------------------------------------
// Executor Tests
// ---------------------------------------------------------------------------

type fakeProcessor struct {
	result    *appintegration.BatchResult
	err       error
	permanent int
}

func (p *fakeProcessor) Process(context.Context, *integration.SyncJob) (*appintegration.BatchResult, error) {
	return p.result, p.err
}

func (p *fakeProcessor) HandlePermanentFailure(context.Context, *integration.SyncJob, error) {
	p.permanent++
}

func TestSyncJobExecutor_Execute(t *testing.T) {
	processor := &fakeProcessor{result: &appintegration.BatchResult{Succeeded: 3, Failed: 1, Skipped: 2}}
	exec := NewSyncJobExecutor(processor, newTestLogger())

	var completed *appintegration.BatchResult
	exec.SetOnJobCompletedCallback(func(_ context.Context, _ *integration.SyncJob, result *appintegration.BatchResult) {
		completed = result
	})

	result, err := exec.Execute(context.Background(), newTestJob())
	require.NoError(t, err)
	assert.Equal(t, &JobResult{Succeeded: 3, Failed: 1, Skipped: 2}, result)
	assert.Same(t, processor.result, completed)

	exec.HandlePermanentFailure(context.Background(), newTestJob(), errors.New("boom"))
	assert.Equal(t, 1, processor.permanent)
}

func TestSyncJobExecutor_ExecuteError(t *testing.T) {
	processor := &fakeProcessor{err: errors.New("load chunk")}
	exec := NewSyncJobExecutor(processor, newTestLogger())

	result, err := exec.Execute(context.Background(), newTestJob())
	assert.Error(t, err)
	assert.Nil(t, result)
}
