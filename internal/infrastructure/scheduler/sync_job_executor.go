package scheduler

import (
	"context"

	"go.uber.org/zap"

	appintegration "github.com/syncbridge/backend/internal/application/integration"
	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/infrastructure/telemetry"
)

// BatchProcessor is the application side of a sync job
type BatchProcessor interface {
	Process(ctx context.Context, job *integration.SyncJob) (*appintegration.BatchResult, error)
	HandlePermanentFailure(ctx context.Context, job *integration.SyncJob, cause error)
}

// ---------------------------------------------------------------------------
// SyncJobExecutorImpl
// ---------------------------------------------------------------------------

// SyncJobExecutorImpl runs jobs through the batch processor and tags the
// work with profiling labels
type SyncJobExecutorImpl struct {
	processor BatchProcessor
	logger    *zap.Logger

	// Optional hook, called after every successful attempt
	onJobCompleted func(ctx context.Context, job *integration.SyncJob, result *appintegration.BatchResult)
}

// NewSyncJobExecutor creates a new sync job executor
func NewSyncJobExecutor(processor BatchProcessor, logger *zap.Logger) *SyncJobExecutorImpl {
	return &SyncJobExecutorImpl{
		processor: processor,
		logger:    logger,
	}
}

// SetOnJobCompletedCallback sets the callback for completed jobs
func (e *SyncJobExecutorImpl) SetOnJobCompletedCallback(cb func(ctx context.Context, job *integration.SyncJob, result *appintegration.BatchResult)) {
	e.onJobCompleted = cb
}

// Execute processes one attempt of a job
func (e *SyncJobExecutorImpl) Execute(ctx context.Context, job *integration.SyncJob) (*JobResult, error) {
	var (
		result *appintegration.BatchResult
		err    error
	)

	labels := map[string]string{
		"tenant_id": job.TenantID.String(),
		"operation": "sync_job_" + string(job.Kind),
	}
	if job.DestinationType != "" {
		labels["destination"] = string(job.DestinationType)
	}
	ctx, span := telemetry.StartSpan(ctx, "sync.job",
		telemetry.WithAttribute(telemetry.SpanAttrJobID, job.ID),
		telemetry.WithAttribute(telemetry.SpanAttrJobKind, string(job.Kind)),
		telemetry.WithAttribute(telemetry.SpanAttrBatchSize, len(job.RecordIDs)),
	)
	defer span.End()

	telemetry.WithProfilingLabels(ctx, labels, func(ctx context.Context) {
		result, err = e.processor.Process(ctx, job)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if result != nil {
		telemetry.SetAttributes(span, "succeeded", result.Succeeded, "failed", result.Failed, "skipped", result.Skipped)
	}

	if e.onJobCompleted != nil {
		e.onJobCompleted(ctx, job, result)
	}
	if result == nil {
		return &JobResult{}, nil
	}
	return &JobResult{
		Succeeded: result.Succeeded,
		Failed:    result.Failed,
		Skipped:   result.Skipped,
	}, nil
}

// HandlePermanentFailure delegates to the processor
func (e *SyncJobExecutorImpl) HandlePermanentFailure(ctx context.Context, job *integration.SyncJob, cause error) {
	e.processor.HandlePermanentFailure(ctx, job, cause)
}
