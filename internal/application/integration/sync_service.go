package integration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/syncbridge/backend/internal/domain/catalog"
	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// Dispatch reasons recorded in logs and jobs
const (
	ReasonProductChanged   = "product_changed"
	ReasonCatalogCreation  = "catalog_creation"
	ReasonForceRetry       = "force_retry"
	ReasonBatchSync        = "batch_sync"
	ReasonAutoRetry        = "auto_retry"
	ReasonManualSync       = "manual_sync"
	ReasonPriceRecomputed  = "price_recomputed"
	ReasonInProgressExpiry = "in_progress_timeout"
)

// DefaultDispatchDedupeWindow is how long a dispatched record is remembered
// to drop duplicate enqueues
const DefaultDispatchDedupeWindow = 30 * time.Second

// SyncConditionValidator checks whether a record may be synced right now
type SyncConditionValidator interface {
	ValidateSyncConditions(ctx context.Context, record *integration.SyncRecord) bool
}

// SyncService decides whether source changes need to reach sync records,
// performs the fan-out and routes records to background sync jobs.
type SyncService struct {
	records   integration.SyncRecordRepository
	pairs     integration.ConnectionPairRepository
	companies integration.CompanyRepository
	products  catalog.ProductReader
	txScope   TransactionScope
	registry  integration.DestinationClientRegistry
	queue     integration.JobQueue
	status    *SyncStatusManager
	dedupe    shared.IdempotencyStore
	dedupeTTL time.Duration
	logger    *zap.Logger
}

// SyncServiceDeps groups the collaborators of SyncService
type SyncServiceDeps struct {
	Records   integration.SyncRecordRepository
	Pairs     integration.ConnectionPairRepository
	Companies integration.CompanyRepository
	Products  catalog.ProductReader
	TxScope   TransactionScope
	Registry  integration.DestinationClientRegistry
	Queue     integration.JobQueue
	Status    *SyncStatusManager
}

// NewSyncService creates a new SyncService
func NewSyncService(deps SyncServiceDeps, logger *zap.Logger) *SyncService {
	txScope := deps.TxScope
	if txScope == nil {
		txScope = NewNoOpTransactionScope(deps.Records)
	}
	return &SyncService{
		records:   deps.Records,
		pairs:     deps.Pairs,
		companies: deps.Companies,
		products:  deps.Products,
		txScope:   txScope,
		registry:  deps.Registry,
		queue:     deps.Queue,
		status:    deps.Status,
		dedupeTTL: DefaultDispatchDedupeWindow,
		logger:    logger,
	}
}

// WithDedupe drops repeated dispatches of the same record within ttl
func (s *SyncService) WithDedupe(store shared.IdempotencyStore, ttl time.Duration) *SyncService {
	s.dedupe = store
	if ttl > 0 {
		s.dedupeTTL = ttl
	}
	return s
}

// SetQueue binds the job queue once the workers consuming it exist. The
// processor behind the workers validates records through this service.
func (s *SyncService) SetQueue(queue integration.JobQueue) {
	s.queue = queue
}

// StatusManager returns the status manager used by the service
func (s *SyncService) StatusManager() *SyncStatusManager {
	return s.status
}

// ---------------------------------------------------------------------------
// Fan-out
// ---------------------------------------------------------------------------

// SyncProductToConnectionPairs copies a product change into every sync record
// of the product whose connection pair is active and re-queues them. Nothing
// happens unless a sync-critical field changed. All records are updated in one
// transaction; any failure rolls the whole fan-out back.
func (s *SyncService) SyncProductToConnectionPairs(ctx context.Context, product *catalog.Product, changedFields []string) (int64, error) {
	if product == nil {
		return 0, integration.ErrInvalidProductID
	}
	if !integration.HasSyncCriticalChange(changedFields) {
		s.logger.Debug("product change has no sync-critical fields, skipping fan-out",
			zap.String("product_id", product.ID.String()),
			zap.Strings("changed_fields", changedFields),
		)
		return 0, nil
	}

	var updated int64
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		records, err := repos.SyncRecordRepo().FindActiveByProduct(ctx, product.ID)
		if err != nil {
			return fmt.Errorf("load sync records for product %s: %w", product.ID, err)
		}

		now := s.status.Now()
		for _, record := range records {
			record.ApplyProductSnapshot(product, record.ConnectionPair, changedFields, now)
			if err := repos.SyncRecordRepo().UpdateSnapshot(ctx, record); err != nil {
				return fmt.Errorf("update sync record %s: %w", record.ID, err)
			}
			record.ClearDirty()
			updated++
		}
		return nil
	})
	if err != nil {
		s.logger.Error("product fan-out rolled back",
			zap.String("product_id", product.ID.String()),
			zap.Strings("changed_fields", changedFields),
			zap.Error(err),
		)
		return 0, err
	}

	s.logger.Info("product changes propagated to sync records",
		zap.String("product_id", product.ID.String()),
		zap.Strings("changed_fields", changedFields),
		zap.Int64("records_updated", updated),
	)
	return updated, nil
}

// ---------------------------------------------------------------------------
// Eligibility and dispatch
// ---------------------------------------------------------------------------

// ValidateSyncConditions checks that the record's connection pair is active,
// its company subscription is active and its product still exists. Missing
// relations are loaded and attached to the record. A failed check is a logged
// skip, never an error.
func (s *SyncService) ValidateSyncConditions(ctx context.Context, record *integration.SyncRecord) bool {
	if record == nil {
		return false
	}
	log := s.logger.With(
		zap.String("record_id", record.ID.String()),
		zap.String("connection_pair_id", record.ConnectionPairID.String()),
	)

	pair := record.ConnectionPair
	if pair == nil {
		loaded, err := s.pairs.FindByID(ctx, record.ConnectionPairID)
		if err != nil {
			log.Info("skipping sync: connection pair not found", zap.Error(err))
			return false
		}
		pair = loaded
		record.ConnectionPair = loaded
	}
	if !pair.IsUsable() {
		log.Info("skipping sync: connection pair inactive")
		return false
	}

	company := record.Company
	if company == nil {
		loaded, err := s.companies.FindByID(ctx, pair.TenantID)
		if err != nil {
			log.Info("skipping sync: company not found", zap.Error(err))
			return false
		}
		company = loaded
		record.Company = loaded
	}
	if !company.HasActiveSubscription(s.status.Now()) {
		log.Info("skipping sync: company subscription inactive",
			zap.String("company_id", company.ID.String()),
			zap.String("subscription_status", string(company.SubscriptionStatus)),
		)
		return false
	}

	if record.Product == nil {
		product, err := s.products.FindByID(ctx, record.ProductID)
		if err != nil || product == nil {
			log.Info("skipping sync: product not found", zap.String("product_id", record.ProductID.String()))
			return false
		}
		record.Product = product
	}
	return true
}

// DispatchSyncJob enqueues a single-record sync job for the record's
// destination. Unsupported or unconfigured destination types are errors for
// this dispatch only.
func (s *SyncService) DispatchSyncJob(ctx context.Context, record *integration.SyncRecord, reason string) error {
	_, err := s.dispatch(ctx, record, reason)
	return err
}

// dispatch reports whether a job was enqueued. False with a nil error means
// the record was dispatched inside the dedupe window and this call was dropped.
func (s *SyncService) dispatch(ctx context.Context, record *integration.SyncRecord, reason string) (bool, error) {
	pair := record.ConnectionPair
	if pair == nil {
		loaded, err := s.pairs.FindByID(ctx, record.ConnectionPairID)
		if err != nil {
			return false, fmt.Errorf("resolve connection pair for record %s: %w", record.ID, err)
		}
		pair = loaded
		record.ConnectionPair = loaded
	}

	if !pair.DestinationType.IsValid() {
		return false, fmt.Errorf("%w: %q", integration.ErrUnsupportedDestination, pair.DestinationType)
	}
	if _, err := s.registry.Get(pair.DestinationType); err != nil {
		return false, err
	}

	key := dispatchKey(record.ID)
	marked := false
	if s.dedupe != nil {
		fresh, err := s.dedupe.MarkProcessed(ctx, key, s.dedupeTTL)
		switch {
		case err != nil:
			s.logger.Warn("dispatch dedupe unavailable, dispatching anyway",
				zap.String("record_id", record.ID.String()),
				zap.Error(err),
			)
		case !fresh:
			s.logger.Info("record already dispatched recently, skipping",
				zap.String("record_id", record.ID.String()),
				zap.String("reason", reason),
			)
			return false, nil
		default:
			marked = true
		}
	}

	job, err := s.enqueue(ctx, record, pair, reason)
	if err != nil {
		// the key only stands for a job that is actually queued
		if marked {
			s.releaseDedupe(ctx, key, record.ID)
		}
		return false, err
	}

	s.logger.Info("sync job dispatched",
		zap.String("job_id", job.ID),
		zap.String("record_id", record.ID.String()),
		zap.String("destination_type", pair.DestinationType.String()),
		zap.String("reason", reason),
	)
	return true, nil
}

func (s *SyncService) enqueue(ctx context.Context, record *integration.SyncRecord, pair *integration.ConnectionPair, reason string) (*integration.SyncJob, error) {
	// A synced record has to be re-queued before a worker may claim it
	if record.SyncStatus == integration.SyncStatusSynced {
		if err := s.status.MarkPending(ctx, record, reason); err != nil {
			return nil, err
		}
	}

	job := integration.NewSingleSyncJob(record, pair.DestinationType, reason)
	if err := s.queue.Enqueue(ctx, job); err != nil {
		return nil, fmt.Errorf("enqueue sync job for record %s: %w", record.ID, err)
	}
	return job, nil
}

func (s *SyncService) releaseDedupe(ctx context.Context, key string, recordID uuid.UUID) {
	if err := s.dedupe.Release(context.WithoutCancel(ctx), key); err != nil {
		s.logger.Warn("failed to release dispatch dedupe key, record stays blocked until it expires",
			zap.String("record_id", recordID.String()),
			zap.Duration("ttl", s.dedupeTTL),
			zap.Error(err),
		)
	}
}

// RetryFailedSyncs re-dispatches every failed record, optionally for one
// connection pair, without consulting the retry policy. Returns how many
// records were queued.
func (s *SyncService) RetryFailedSyncs(ctx context.Context, connectionPairID *uuid.UUID) (int, error) {
	return s.redispatchFailed(ctx, connectionPairID, ReasonForceRetry, nil)
}

// RetryEligibleFailedSyncs re-dispatches failed records the retry policy allows
func (s *SyncService) RetryEligibleFailedSyncs(ctx context.Context, connectionPairID *uuid.UUID) (int, error) {
	return s.redispatchFailed(ctx, connectionPairID, ReasonAutoRetry, s.status.ShouldRetryFailedSync)
}

func (s *SyncService) redispatchFailed(ctx context.Context, connectionPairID *uuid.UUID, reason string, allow func(*integration.SyncRecord) bool) (int, error) {
	records, err := s.records.FindAll(ctx, integration.SyncRecordFilter{
		ConnectionPairID: connectionPairID,
		SyncStatuses:     []integration.SyncStatus{integration.SyncStatusFailed},
		ActivePairsOnly:  true,
	})
	if err != nil {
		return 0, fmt.Errorf("load failed sync records: %w", err)
	}

	pairs := make(map[uuid.UUID]*integration.ConnectionPair)
	queued := 0
	for _, record := range records {
		if allow != nil && !allow(record) {
			continue
		}
		if record.ConnectionPair == nil {
			record.ConnectionPair = pairs[record.ConnectionPairID]
		}
		enqueued, err := s.dispatch(ctx, record, reason)
		if err != nil {
			s.logger.Warn("failed to re-dispatch sync record",
				zap.String("record_id", record.ID.String()),
				zap.String("reason", reason),
				zap.Error(err),
			)
			if errors.Is(err, integration.ErrJobQueueClosed) {
				return queued, err
			}
			continue
		}
		pairs[record.ConnectionPairID] = record.ConnectionPair
		if enqueued {
			queued++
		}
	}

	s.logger.Info("failed sync records re-dispatched",
		zap.Int("candidates", len(records)),
		zap.Int("queued", queued),
		zap.String("reason", reason),
	)
	return queued, nil
}

// PerformBatchSync enqueues one batch job covering up to chunkSize pending
// records whose connection pair is active. It does not wait for the job.
func (s *SyncService) PerformBatchSync(ctx context.Context, connectionPairID *uuid.UUID, chunkSize int) (int, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultBatchChunkSize
	}

	filter := integration.SyncRecordFilter{
		ConnectionPairID: connectionPairID,
		SyncStatuses:     []integration.SyncStatus{integration.SyncStatusPending},
		ActivePairsOnly:  true,
	}
	pending, err := s.records.Count(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("count pending sync records: %w", err)
	}
	if pending == 0 {
		s.logger.Debug("no pending sync records, batch skipped")
		return 0, nil
	}

	ids, err := s.records.FindIDs(ctx, filter, chunkSize)
	if err != nil {
		return 0, fmt.Errorf("select pending sync records: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	tenantID := uuid.Nil
	if connectionPairID != nil {
		pair, err := s.pairs.FindByID(ctx, *connectionPairID)
		if err != nil {
			return 0, fmt.Errorf("resolve connection pair: %w", err)
		}
		tenantID = pair.TenantID
	}

	job := integration.NewBatchSyncJob(tenantID, connectionPairID, ids, ReasonBatchSync)
	if err := s.queue.Enqueue(ctx, job); err != nil {
		return 0, fmt.Errorf("enqueue batch sync job: %w", err)
	}

	fields := []zap.Field{
		zap.String("job_id", job.ID),
		zap.Int64("pending", pending),
		zap.Int("queued", len(ids)),
	}
	if connectionPairID != nil {
		fields = append(fields, zap.String("connection_pair_id", connectionPairID.String()))
	}
	s.logger.Info("batch sync job enqueued", fields...)
	return len(ids), nil
}

func dispatchKey(recordID uuid.UUID) string {
	return "sync:dispatch:" + recordID.String()
}
