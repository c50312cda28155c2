package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/infrastructure/telemetry"
)

// ---------------------------------------------------------------------------
// Job runs
// ---------------------------------------------------------------------------

// JobRunStatus represents the status of a scheduled sync job
type JobRunStatus string

const (
	JobRunStatusPending  JobRunStatus = "PENDING"
	JobRunStatusRunning  JobRunStatus = "RUNNING"
	JobRunStatusSuccess  JobRunStatus = "SUCCESS"
	JobRunStatusRetrying JobRunStatus = "RETRYING"
	JobRunStatusFailed   JobRunStatus = "FAILED"
)

// JobRun tracks one sync job through its attempts
type JobRun struct {
	Job         *integration.SyncJob
	Status      JobRunStatus
	Error       string
	Attempt     int
	MaxRetries  int
	StartedAt   *time.Time
	CompletedAt *time.Time
	NextRetryAt *time.Time

	Succeeded int
	Failed    int
	Skipped   int
}

// NewJobRun creates a pending run
func NewJobRun(job *integration.SyncJob, maxRetries int) *JobRun {
	return &JobRun{
		Job:        job,
		Status:     JobRunStatusPending,
		MaxRetries: maxRetries,
	}
}

// Start marks the run as executing its next attempt
func (r *JobRun) Start(now time.Time) {
	r.Attempt++
	r.Status = JobRunStatusRunning
	r.StartedAt = &now
	r.CompletedAt = nil
	r.NextRetryAt = nil
	r.Error = ""
}

// Complete marks the run as successful
func (r *JobRun) Complete(now time.Time, result *JobResult) {
	r.Status = JobRunStatusSuccess
	r.CompletedAt = &now
	if result != nil {
		r.Succeeded = result.Succeeded
		r.Failed = result.Failed
		r.Skipped = result.Skipped
	}
}

// Fail marks the current attempt as failed
func (r *JobRun) Fail(now time.Time, err string) {
	r.Status = JobRunStatusFailed
	r.CompletedAt = &now
	r.Error = err
}

// ShouldRetry returns true if another attempt is allowed
func (r *JobRun) ShouldRetry() bool {
	return r.Status == JobRunStatusFailed && r.Attempt <= r.MaxRetries
}

// ScheduleRetry computes the next attempt time with exponential backoff:
// base * 2^(attempt-1), capped at maxDelay
func (r *JobRun) ScheduleRetry(now time.Time, base, maxDelay time.Duration) time.Duration {
	delay := RetryBackoff(r.Attempt, base, maxDelay)
	next := now.Add(delay)
	r.Status = JobRunStatusRetrying
	r.NextRetryAt = &next
	return delay
}

// RetryBackoff returns base * 2^(attempt-1) capped at maxDelay
func RetryBackoff(attempt int, base, maxDelay time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if maxDelay > 0 && delay >= maxDelay {
			return maxDelay
		}
	}
	if maxDelay > 0 && delay > maxDelay {
		return maxDelay
	}
	return delay
}

// ---------------------------------------------------------------------------
// Executor
// ---------------------------------------------------------------------------

// JobResult is what an executor reports for a finished attempt
type JobResult struct {
	Succeeded int
	Failed    int
	Skipped   int
}

// SyncJobExecutor runs sync jobs. HandlePermanentFailure is called once a job
// has failed its last attempt.
type SyncJobExecutor interface {
	Execute(ctx context.Context, job *integration.SyncJob) (*JobResult, error)
	HandlePermanentFailure(ctx context.Context, job *integration.SyncJob, cause error)
}

// ---------------------------------------------------------------------------
// Config
// ---------------------------------------------------------------------------

// SyncJobSchedulerConfig holds configuration for the sync job scheduler
type SyncJobSchedulerConfig struct {
	// MaxConcurrentJobs is the number of workers
	MaxConcurrentJobs int
	// QueueSize bounds the number of waiting jobs
	QueueSize int
	// BatchJobTimeout and SingleJobTimeout bound one attempt
	BatchJobTimeout  time.Duration
	SingleJobTimeout time.Duration
	// RetryAttempts is the number of retries after the first attempt
	RetryAttempts int
	// RetryDelay is the base delay of the exponential backoff
	RetryDelay time.Duration
	// MaxRetryDelay caps the backoff
	MaxRetryDelay time.Duration
	// HistorySize is the number of finished runs kept for monitoring
	HistorySize int
}

// DefaultSyncJobSchedulerConfig returns default configuration
func DefaultSyncJobSchedulerConfig() SyncJobSchedulerConfig {
	return SyncJobSchedulerConfig{
		MaxConcurrentJobs: 4,
		QueueSize:         1000,
		BatchJobTimeout:   10 * time.Minute,
		SingleJobTimeout:  5 * time.Minute,
		RetryAttempts:     3,
		RetryDelay:        30 * time.Second,
		MaxRetryDelay:     30 * time.Minute,
		HistorySize:       100,
	}
}

// Validate validates the configuration
func (c *SyncJobSchedulerConfig) Validate() error {
	if c.MaxConcurrentJobs <= 0 || c.QueueSize <= 0 {
		return ErrInvalidConfig
	}
	if c.BatchJobTimeout <= 0 || c.SingleJobTimeout <= 0 {
		return ErrInvalidConfig
	}
	if c.RetryAttempts < 0 || c.RetryDelay < 0 {
		return ErrInvalidConfig
	}
	if c.HistorySize < 0 {
		return ErrInvalidConfig
	}
	return nil
}

// timeoutFor returns the attempt timeout of a job kind
func (c *SyncJobSchedulerConfig) timeoutFor(kind integration.SyncJobKind) time.Duration {
	if kind == integration.SyncJobKindSingle {
		return c.SingleJobTimeout
	}
	return c.BatchJobTimeout
}

// ---------------------------------------------------------------------------
// SyncJobScheduler
// ---------------------------------------------------------------------------

// SchedulerStats is a snapshot of scheduler counters
type SchedulerStats struct {
	Queued          int   `json:"queued"`
	Running         int   `json:"running"`
	RetriesWaiting  int   `json:"retries_waiting"`
	Completed       int64 `json:"completed"`
	Retried         int64 `json:"retried"`
	FailedPermanent int64 `json:"failed_permanent"`
}

// SyncJobScheduler runs sync jobs on a bounded worker pool. Enqueue never
// blocks: a full queue is reported to the caller. Failed attempts are retried
// with exponential backoff; when retries run out the executor's permanent
// failure handler runs.
type SyncJobScheduler struct {
	config   SyncJobSchedulerConfig
	executor SyncJobExecutor
	logger   *zap.Logger
	now      func() time.Time

	jobs      chan *JobRun
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	retries   map[string]*time.Timer
	running   int

	completed       int64
	retried         int64
	failedPermanent int64

	// Job history for monitoring (in-memory, limited size)
	historyMu sync.RWMutex
	history   []*JobRun
}

// NewSyncJobScheduler creates a new sync job scheduler
func NewSyncJobScheduler(config SyncJobSchedulerConfig, executor SyncJobExecutor, logger *zap.Logger) (*SyncJobScheduler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.MaxRetryDelay <= 0 {
		config.MaxRetryDelay = DefaultSyncJobSchedulerConfig().MaxRetryDelay
	}

	return &SyncJobScheduler{
		config:   config,
		executor: executor,
		logger:   logger,
		now:      time.Now,
		jobs:     make(chan *JobRun, config.QueueSize),
		retries:  make(map[string]*time.Timer),
		history:  make([]*JobRun, 0, config.HistorySize),
	}, nil
}

// Start starts the worker pool
func (s *SyncJobScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	for i := 0; i < s.config.MaxConcurrentJobs; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i)
	}

	s.logger.Info("Sync job scheduler started",
		zap.Int("workers", s.config.MaxConcurrentJobs),
		zap.Int("queue_size", s.config.QueueSize),
		zap.Duration("batch_job_timeout", s.config.BatchJobTimeout),
		zap.Duration("single_job_timeout", s.config.SingleJobTimeout),
	)
	return nil
}

// Stop cancels pending retries and waits for running jobs to return.
// Jobs still waiting in the queue are dropped; their records stay pending
// and are picked up by the next batch sweep.
func (s *SyncJobScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	for id, timer := range s.retries {
		timer.Stop()
		delete(s.retries, id)
	}
	dropped := len(s.jobs)
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Sync job scheduler stopped gracefully", zap.Int("dropped_jobs", dropped))
		return nil
	case <-ctx.Done():
		s.logger.Warn("Sync job scheduler stop timed out")
		return ctx.Err()
	}
}

// Enqueue submits a job without waiting for it to run
func (s *SyncJobScheduler) Enqueue(_ context.Context, job *integration.SyncJob) error {
	if err := job.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning {
		return integration.ErrJobQueueClosed
	}

	select {
	case s.jobs <- NewJobRun(job, s.config.RetryAttempts):
		telemetry.JobQueueDepth.Set(float64(len(s.jobs)))
		s.logger.Debug("Sync job submitted",
			zap.String("job_id", job.ID),
			zap.String("kind", string(job.Kind)),
			zap.Int("records", len(job.RecordIDs)),
		)
		return nil
	default:
		return integration.ErrJobQueueFull
	}
}

// Submit waits for queue space until ctx is done. Used by consumers that
// feed the pool from an external queue and need backpressure.
func (s *SyncJobScheduler) Submit(ctx context.Context, job *integration.SyncJob) error {
	if err := job.Validate(); err != nil {
		return err
	}
	run := NewJobRun(job, s.config.RetryAttempts)
	for {
		s.mu.Lock()
		if !s.isRunning {
			s.mu.Unlock()
			return integration.ErrJobQueueClosed
		}
		select {
		case s.jobs <- run:
			s.mu.Unlock()
			telemetry.JobQueueDepth.Set(float64(len(s.jobs)))
			return nil
		default:
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// Depth returns the number of jobs waiting to run, including scheduled retries
func (s *SyncJobScheduler) Depth(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.jobs) + len(s.retries)), nil
}

// Stats returns a snapshot of the scheduler counters
func (s *SyncJobScheduler) Stats() SchedulerStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SchedulerStats{
		Queued:          len(s.jobs),
		Running:         s.running,
		RetriesWaiting:  len(s.retries),
		Completed:       s.completed,
		Retried:         s.retried,
		FailedPermanent: s.failedPermanent,
	}
}

// worker processes jobs from the queue
func (s *SyncJobScheduler) worker(ctx context.Context, workerID int) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case run := <-s.jobs:
			telemetry.JobQueueDepth.Set(float64(len(s.jobs)))
			labels := map[string]string{"job_kind": string(run.Job.Kind)}
			telemetry.WithPprofLabels(ctx, labels, func(ctx context.Context) {
				s.processJob(ctx, run, workerID)
			})
		}
	}
}

// processJob executes one attempt of a job
func (s *SyncJobScheduler) processJob(ctx context.Context, run *JobRun, workerID int) {
	job := run.Job
	run.Start(s.now())
	s.setRunning(1)
	defer s.setRunning(-1)

	log := s.logger.With(
		zap.Int("worker_id", workerID),
		zap.String("job_id", job.ID),
		zap.String("kind", string(job.Kind)),
		zap.Int("attempt", run.Attempt),
	)
	log.Info("Processing sync job", zap.Int("records", len(job.RecordIDs)))

	jobCtx, cancel := context.WithTimeout(ctx, s.config.timeoutFor(job.Kind))
	defer cancel()

	start := time.Now()
	result, err := s.executor.Execute(jobCtx, job)
	telemetry.JobDuration.WithLabelValues(string(job.Kind)).Observe(time.Since(start).Seconds())

	if err == nil {
		run.Complete(s.now(), result)
		s.count(&s.completed)
		telemetry.JobsFinished.WithLabelValues(string(job.Kind), "completed").Inc()
		log.Info("Sync job completed",
			zap.Int("succeeded", run.Succeeded),
			zap.Int("failed", run.Failed),
			zap.Int("skipped", run.Skipped),
		)
		s.addToHistory(run)
		return
	}

	run.Fail(s.now(), err.Error())
	if ctx.Err() != nil {
		// Shutting down; records stay claimable
		log.Warn("Sync job interrupted by shutdown", zap.Error(err))
		s.addToHistory(run)
		return
	}

	if run.ShouldRetry() {
		delay := run.ScheduleRetry(s.now(), s.config.RetryDelay, s.config.MaxRetryDelay)
		s.count(&s.retried)
		telemetry.JobsFinished.WithLabelValues(string(job.Kind), "retried").Inc()
		log.Warn("Sync job failed, scheduled for retry",
			zap.Error(err),
			zap.Int("max_retries", run.MaxRetries),
			zap.Duration("delay", delay),
		)
		s.scheduleRetry(run, delay)
		return
	}

	s.count(&s.failedPermanent)
	telemetry.JobsFinished.WithLabelValues(string(job.Kind), "failed").Inc()
	log.Error("Sync job failed permanently", zap.Error(err))
	s.executor.HandlePermanentFailure(context.WithoutCancel(ctx), job, err)
	s.addToHistory(run)
}

// scheduleRetry puts the run back on the queue once its backoff elapsed
func (s *SyncJobScheduler) scheduleRetry(run *JobRun, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning {
		return
	}
	id := run.Job.ID
	s.retries[id] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.retries[id]; !ok {
			return
		}
		delete(s.retries, id)
		if !s.isRunning {
			return
		}
		select {
		case s.jobs <- run:
		default:
			s.logger.Warn("Failed to re-queue sync job for retry, queue is full",
				zap.String("job_id", id),
			)
		}
	})
}

func (s *SyncJobScheduler) setRunning(delta int) {
	s.mu.Lock()
	s.running += delta
	running := s.running
	s.mu.Unlock()
	telemetry.JobsRunning.Set(float64(running))
}

func (s *SyncJobScheduler) count(counter *int64) {
	s.mu.Lock()
	*counter++
	s.mu.Unlock()
}

// addToHistory adds a finished run to history
func (s *SyncJobScheduler) addToHistory(run *JobRun) {
	if s.config.HistorySize == 0 {
		return
	}
	s.historyMu.Lock()
	defer s.historyMu.Unlock()

	s.history = append([]*JobRun{run}, s.history...)
	if len(s.history) > s.config.HistorySize {
		s.history = s.history[:s.config.HistorySize]
	}
}

// GetJobHistory returns recent finished runs, newest first
func (s *SyncJobScheduler) GetJobHistory(limit int) []*JobRun {
	s.historyMu.RLock()
	defer s.historyMu.RUnlock()

	if limit <= 0 || limit > len(s.history) {
		limit = len(s.history)
	}
	result := make([]*JobRun, limit)
	copy(result, s.history[:limit])
	return result
}

// String describes the scheduler for logs
func (s *SyncJobScheduler) String() string {
	return fmt.Sprintf("SyncJobScheduler(workers=%d, queue=%d)", s.config.MaxConcurrentJobs, s.config.QueueSize)
}
