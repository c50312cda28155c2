package integration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/domain/shared"
	"go.uber.org/zap"
)

const (
	// DefaultBatchChunkSize is the number of records a batch job covers
	DefaultBatchChunkSize = 500
	// DefaultSubChunkSize is the number of records loaded and processed together
	DefaultSubChunkSize = 50
	// DefaultThrottleEvery is how many processed items trigger a pause
	DefaultThrottleEvery = 10
	// DefaultThrottleDelay is the pause inserted every DefaultThrottleEvery items
	DefaultThrottleDelay = 500 * time.Millisecond
)

// BatchSyncConfig tunes batch processing
type BatchSyncConfig struct {
	SubChunkSize  int
	ThrottleEvery int
	ThrottleDelay time.Duration
}

// DefaultBatchSyncConfig returns the default batch configuration
func DefaultBatchSyncConfig() BatchSyncConfig {
	return BatchSyncConfig{
		SubChunkSize:  DefaultSubChunkSize,
		ThrottleEvery: DefaultThrottleEvery,
		ThrottleDelay: DefaultThrottleDelay,
	}
}

// BatchResult summarizes one run of a sync job
type BatchResult struct {
	JobID      string        `json:"job_id"`
	Total      int           `json:"total"`
	Processed  int           `json:"processed"`
	Succeeded  int           `json:"succeeded"`
	Failed     int           `json:"failed"`
	Skipped    int           `json:"skipped"`
	Duration   time.Duration `json:"duration"`
	Throughput float64       `json:"throughput"`
}

// BatchSyncProcessor executes sync jobs: it loads the job's records in
// sub-chunks, claims each one, calls the destination and records the outcome.
// A failing record never fails the batch.
type BatchSyncProcessor struct {
	records   integration.SyncRecordRepository
	logs      integration.SyncLogRepository
	registry  integration.DestinationClientRegistry
	status    *SyncStatusManager
	validator SyncConditionValidator
	publisher shared.EventPublisher
	config    BatchSyncConfig
	sleep     func(ctx context.Context, d time.Duration) error
	logger    *zap.Logger
}

// NewBatchSyncProcessor creates a new BatchSyncProcessor
func NewBatchSyncProcessor(
	records integration.SyncRecordRepository,
	logs integration.SyncLogRepository,
	registry integration.DestinationClientRegistry,
	status *SyncStatusManager,
	validator SyncConditionValidator,
	config BatchSyncConfig,
	logger *zap.Logger,
) *BatchSyncProcessor {
	if config.SubChunkSize <= 0 {
		config.SubChunkSize = DefaultSubChunkSize
	}
	if config.ThrottleEvery < 0 {
		config.ThrottleEvery = 0
	}
	return &BatchSyncProcessor{
		records:   records,
		logs:      logs,
		registry:  registry,
		status:    status,
		validator: validator,
		config:    config,
		sleep:     sleepContext,
		logger:    logger,
	}
}

// WithPublisher publishes a SyncOutcomeEvent for every synced or failed record
func (p *BatchSyncProcessor) WithPublisher(publisher shared.EventPublisher) *BatchSyncProcessor {
	p.publisher = publisher
	return p
}

// WithSleeper replaces the throttle sleep, mainly for tests
func (p *BatchSyncProcessor) WithSleeper(sleep func(ctx context.Context, d time.Duration) error) *BatchSyncProcessor {
	p.sleep = sleep
	return p
}

// Run processes the job and reports only batch-level errors
func (p *BatchSyncProcessor) Run(ctx context.Context, job *integration.SyncJob) error {
	_, err := p.Process(ctx, job)
	return err
}

// Process runs a job. Per-record failures are recorded on the record; only
// errors escaping that isolation, such as a sub-chunk that cannot be loaded or
// a cancelled context, are returned.
func (p *BatchSyncProcessor) Process(ctx context.Context, job *integration.SyncJob) (*BatchResult, error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}

	start := p.status.Now()
	result := &BatchResult{JobID: job.ID, Total: len(job.RecordIDs)}
	log := p.logger.With(
		zap.String("job_id", job.ID),
		zap.String("job_kind", string(job.Kind)),
		zap.String("reason", job.Reason),
	)
	log.Info("sync job started", zap.Int("records", result.Total))

	chunks := chunkIDs(job.RecordIDs, p.config.SubChunkSize)
	for i, ids := range chunks {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		records, err := p.records.FindByIDsWithRelations(ctx, ids)
		if err != nil {
			log.Error("failed to load sub-chunk", zap.Int("chunk", i+1), zap.Error(err))
			return result, fmt.Errorf("load sub-chunk %d of job %s: %w", i+1, job.ID, err)
		}
		log.Info("processing sub-chunk",
			zap.Int("chunk", i+1),
			zap.Int("chunks", len(chunks)),
			zap.Int("requested", len(ids)),
			zap.Int("loaded", len(records)),
		)
		result.Skipped += len(ids) - len(records)

		for _, record := range records {
			if err := ctx.Err(); err != nil {
				return result, err
			}

			switch p.processRecord(ctx, job, record) {
			case outcomeSynced:
				result.Succeeded++
			case outcomeFailed:
				result.Failed++
			default:
				result.Skipped++
			}
			result.Processed++

			if p.config.ThrottleEvery > 0 && p.config.ThrottleDelay > 0 && result.Processed%p.config.ThrottleEvery == 0 {
				if err := p.sleep(ctx, p.config.ThrottleDelay); err != nil {
					return result, err
				}
			}
		}
	}

	result.Duration = p.status.Now().Sub(start)
	if secs := result.Duration.Seconds(); secs > 0 {
		result.Throughput = float64(result.Processed) / secs
	}
	log.Info("sync job completed",
		zap.Int("processed", result.Processed),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed),
		zap.Int("skipped", result.Skipped),
		zap.Duration("duration", result.Duration),
		zap.Float64("items_per_second", result.Throughput),
	)
	return result, nil
}

// HandlePermanentFailure runs after the job exhausted its retries. Every
// record of the job is marked failed, including ones an earlier attempt
// synced successfully.
func (p *BatchSyncProcessor) HandlePermanentFailure(ctx context.Context, job *integration.SyncJob, cause error) {
	msg := "sync job failed permanently"
	if cause != nil {
		msg = fmt.Sprintf("%s: %s", msg, cause.Error())
	}
	p.logger.Error("sync job failed permanently",
		zap.String("job_id", job.ID),
		zap.Int("records", len(job.RecordIDs)),
		zap.Error(cause),
	)

	marked := 0
	for _, ids := range chunkIDs(job.RecordIDs, p.config.SubChunkSize) {
		records, err := p.records.FindByIDsWithRelations(ctx, ids)
		if err != nil {
			p.logger.Error("failed to load records for permanent failure",
				zap.String("job_id", job.ID),
				zap.Error(err),
			)
			continue
		}
		for _, record := range records {
			p.status.MarkFailed(ctx, record, msg, "job_permanent_failure")
			marked++
		}
	}

	p.logger.Warn("records marked failed after permanent job failure",
		zap.String("job_id", job.ID),
		zap.Int("marked", marked),
	)
}

// ---------------------------------------------------------------------------
// Per-record processing
// ---------------------------------------------------------------------------

type recordOutcome int

const (
	outcomeSkipped recordOutcome = iota
	outcomeSynced
	outcomeFailed
)

func (p *BatchSyncProcessor) processRecord(ctx context.Context, job *integration.SyncJob, record *integration.SyncRecord) recordOutcome {
	if !p.validator.ValidateSyncConditions(ctx, record) {
		return outcomeSkipped
	}

	claimed, err := p.status.TryMarkInProgress(ctx, record, job.Reason)
	if err != nil {
		p.status.MarkFailed(ctx, record, err.Error(), job.Reason)
		return outcomeFailed
	}
	if !claimed {
		return outcomeSkipped
	}

	startedAt := p.status.Now()
	operation, res, err := p.syncToDestination(ctx, record)
	completedAt := p.status.Now()
	destType := record.ConnectionPair.DestinationType

	if err != nil {
		p.logger.Warn("record sync failed",
			zap.String("job_id", job.ID),
			zap.String("record_id", record.ID.String()),
			zap.String("sku", record.SKU),
			zap.String("destination_type", destType.String()),
			zap.String("operation", string(operation)),
			zap.Error(err),
		)
		p.status.MarkFailed(ctx, record, err.Error(), job.Reason)
		p.appendLog(ctx, integration.NewSyncLog(record, job.ID, string(operation), integration.SyncLogStatusFailed, err.Error(), startedAt, completedAt))
		p.publishOutcome(ctx, record, destType, operation, err.Error(), completedAt.Sub(startedAt))
		return outcomeFailed
	}

	if err := p.status.MarkCompleted(ctx, record, job.Reason); err != nil {
		p.logger.Error("failed to persist sync completion",
			zap.String("record_id", record.ID.String()),
			zap.Error(err),
		)
		p.status.MarkFailed(ctx, record, err.Error(), job.Reason)
		return outcomeFailed
	}

	entry := integration.NewSyncLog(record, job.ID, string(operation), integration.SyncLogStatusSuccess, res.Message, startedAt, completedAt)
	p.appendLog(ctx, entry.WithResponse(res.Raw))
	p.publishOutcome(ctx, record, destType, operation, "", completedAt.Sub(startedAt))
	return outcomeSynced
}

// syncToDestination picks the destination call from the catalog status:
// catalog members get the full product, records leaving the catalog get a
// zero-quantity update, everything else only gets stock and price.
func (p *BatchSyncProcessor) syncToDestination(ctx context.Context, record *integration.SyncRecord) (integration.Operation, *integration.OperationResult, error) {
	client, err := p.registry.Get(record.ConnectionPair.DestinationType)
	if err != nil {
		return integration.OperationUpdateProduct, nil, err
	}

	switch record.CatalogStatus {
	case integration.CatalogStatusInCatalog, integration.CatalogStatusQueued, integration.CatalogStatusPendingCreation:
		res, err := client.UpdateProduct(ctx, record.ToPayload())
		return integration.OperationUpdateProduct, res, checkResult(res, err)

	case integration.CatalogStatusPendingDeletion, integration.CatalogStatusNotInCatalog:
		payload := record.ToPayload()
		payload.Quantity = 0
		res, err := client.UpdateProduct(ctx, payload)
		return integration.OperationUpdateProduct, res, checkResult(res, err)

	default:
		res, err := client.UpdateInventory(ctx, record.SKU, record.Stock)
		if err := checkResult(res, err); err != nil {
			return integration.OperationUpdateInventory, res, err
		}
		res, err = client.UpdatePrice(ctx, record.SKU, record.SellingPrice())
		return integration.OperationUpdatePrice, res, checkResult(res, err)
	}
}

func checkResult(res *integration.OperationResult, err error) error {
	if err != nil {
		return err
	}
	if res == nil {
		return errors.New("destination returned no result")
	}
	if !res.Success {
		if res.Message != "" {
			return fmt.Errorf("destination rejected update: %s", res.Message)
		}
		return errors.New("destination rejected update")
	}
	return nil
}

func (p *BatchSyncProcessor) appendLog(ctx context.Context, entry *integration.SyncLog) {
	if p.logs == nil {
		return
	}
	if err := p.logs.Append(ctx, entry); err != nil {
		p.logger.Warn("failed to append sync log",
			zap.String("record_id", entry.SyncRecordID.String()),
			zap.Error(err),
		)
	}
}

func (p *BatchSyncProcessor) publishOutcome(ctx context.Context, record *integration.SyncRecord, destType integration.DestinationType, op integration.Operation, errMsg string, d time.Duration) {
	if p.publisher == nil {
		return
	}
	event := integration.NewSyncOutcomeEvent(record, destType, string(op), errMsg, d.Milliseconds())
	if err := p.publisher.Publish(ctx, event); err != nil {
		p.logger.Warn("failed to publish sync outcome",
			zap.String("record_id", record.ID.String()),
			zap.Error(err),
		)
	}
}

func chunkIDs(ids []uuid.UUID, size int) [][]uuid.UUID {
	if size <= 0 {
		size = DefaultSubChunkSize
	}
	chunks := make([][]uuid.UUID, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
