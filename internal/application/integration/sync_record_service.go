package integration

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/syncbridge/backend/internal/domain/catalog"
	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// SyncRecordService manages the lifecycle of sync records outside of sync
// attempts: attaching products to connection pairs and moving catalog status.
type SyncRecordService struct {
	records   integration.SyncRecordRepository
	pairs     integration.ConnectionPairRepository
	products  catalog.ProductReader
	logs      integration.SyncLogRepository
	sync      *SyncService
	publisher shared.EventPublisher
	logger    *zap.Logger
}

// NewSyncRecordService creates a new SyncRecordService
func NewSyncRecordService(
	records integration.SyncRecordRepository,
	pairs integration.ConnectionPairRepository,
	products catalog.ProductReader,
	logs integration.SyncLogRepository,
	sync *SyncService,
	publisher shared.EventPublisher,
	logger *zap.Logger,
) *SyncRecordService {
	return &SyncRecordService{
		records:   records,
		pairs:     pairs,
		products:  products,
		logs:      logs,
		sync:      sync,
		publisher: publisher,
		logger:    logger,
	}
}

// AttachProduct creates the sync record for a product on a connection pair
func (s *SyncRecordService) AttachProduct(ctx context.Context, tenantID uuid.UUID, req AttachProductRequest) (*SyncRecordResponse, error) {
	pair, err := s.pairForTenant(ctx, tenantID, req.ConnectionPairID)
	if err != nil {
		return nil, err
	}
	product, err := s.products.FindByIDForTenant(ctx, tenantID, req.ProductID)
	if err != nil {
		return nil, err
	}
	if product.SupplierID != pair.SupplierID {
		return nil, shared.NewDomainError("SUPPLIER_MISMATCH", "Product does not belong to the connection pair's supplier")
	}

	if _, err := s.records.FindByPairAndProduct(ctx, pair.ID, product.ID); err == nil {
		return nil, integration.ErrSyncRecordExists
	} else if !errors.Is(err, integration.ErrSyncRecordNotFound) {
		return nil, err
	}

	status := integration.CatalogStatus(req.CatalogStatus)
	if status == "" {
		status = integration.CatalogStatusDefault
	}
	record, err := integration.NewSyncRecord(pair, product, status)
	if err != nil {
		return nil, err
	}
	if err := s.records.Create(ctx, record); err != nil {
		return nil, err
	}
	record.ClearDirty()

	s.logger.Info("product attached to connection pair",
		zap.String("record_id", record.ID.String()),
		zap.String("connection_pair_id", pair.ID.String()),
		zap.String("product_id", product.ID.String()),
		zap.String("catalog_status", status.String()),
	)
	s.publishEvents(ctx, record)

	response := ToSyncRecordResponse(record)
	return &response, nil
}

// UpdateCatalogStatus moves a record to a new catalog status
func (s *SyncRecordService) UpdateCatalogStatus(ctx context.Context, tenantID, recordID uuid.UUID, req UpdateCatalogStatusRequest) (*SyncRecordResponse, error) {
	record, err := s.records.FindByIDForTenant(ctx, tenantID, recordID)
	if err != nil {
		return nil, err
	}

	previous := record.CatalogStatus
	if err := record.ChangeCatalogStatus(integration.CatalogStatus(req.CatalogStatus), s.sync.StatusManager().Now()); err != nil {
		return nil, err
	}
	if previous != record.CatalogStatus {
		if err := s.records.UpdateCatalogStatus(ctx, record); err != nil {
			return nil, err
		}
		record.ClearDirty()
		s.logger.Info("catalog status changed",
			zap.String("record_id", record.ID.String()),
			zap.String("from", previous.String()),
			zap.String("to", record.CatalogStatus.String()),
		)
		s.publishEvents(ctx, record)
	}

	response := ToSyncRecordResponse(record)
	return &response, nil
}

// GetRecord returns one record with its latest sync log entries
func (s *SyncRecordService) GetRecord(ctx context.Context, tenantID, recordID uuid.UUID, logLimit int) (*SyncRecordDetailResponse, error) {
	record, err := s.records.FindByIDForTenant(ctx, tenantID, recordID)
	if err != nil {
		return nil, err
	}

	detail := &SyncRecordDetailResponse{
		SyncRecordResponse: ToSyncRecordResponse(record),
		NeedsSync:          s.sync.StatusManager().NeedsSync(record),
	}
	if record.SyncStatus == integration.SyncStatusFailed {
		next := s.sync.StatusManager().Policy().NextAttemptAt(record)
		detail.NextRetryAt = &next
	}

	if s.logs != nil && logLimit > 0 {
		logs, err := s.logs.FindByRecord(ctx, record.ID, logLimit)
		if err != nil {
			return nil, fmt.Errorf("load sync logs: %w", err)
		}
		detail.RecentLogs = ToSyncLogResponses(logs)
	}
	return detail, nil
}

// SyncRecord dispatches one record on operator request
func (s *SyncRecordService) SyncRecord(ctx context.Context, tenantID, recordID uuid.UUID) error {
	record, err := s.records.FindByIDForTenant(ctx, tenantID, recordID)
	if err != nil {
		return err
	}
	if record.SyncStatus == integration.SyncStatusInProgress {
		return shared.NewDomainError("SYNC_IN_PROGRESS", "Record is already being synced")
	}
	if !s.sync.ValidateSyncConditions(ctx, record) {
		return shared.NewDomainError("SYNC_NOT_ALLOWED", "Connection pair, subscription or product does not allow syncing")
	}
	return s.sync.DispatchSyncJob(ctx, record, ReasonManualSync)
}

// PairBelongsToTenant verifies that the connection pair is owned by the tenant
func (s *SyncRecordService) PairBelongsToTenant(ctx context.Context, tenantID, pairID uuid.UUID) error {
	_, err := s.pairForTenant(ctx, tenantID, pairID)
	return err
}

// ActivePairIDs lists the tenant's active connection pairs. Dashboard actions
// without an explicit pair fan out over these so they never reach other tenants.
func (s *SyncRecordService) ActivePairIDs(ctx context.Context, tenantID uuid.UUID) ([]uuid.UUID, error) {
	pairs, err := s.pairs.FindActive(ctx, &tenantID)
	if err != nil {
		return nil, fmt.Errorf("list active connection pairs: %w", err)
	}
	ids := make([]uuid.UUID, 0, len(pairs))
	for _, p := range pairs {
		ids = append(ids, p.ID)
	}
	return ids, nil
}

func (s *SyncRecordService) pairForTenant(ctx context.Context, tenantID, pairID uuid.UUID) (*integration.ConnectionPair, error) {
	pair, err := s.pairs.FindByID(ctx, pairID)
	if err != nil {
		return nil, err
	}
	if pair.TenantID != tenantID || pair.DeletedAt != nil {
		return nil, integration.ErrConnectionPairNotFound
	}
	return pair, nil
}

func (s *SyncRecordService) publishEvents(ctx context.Context, record *integration.SyncRecord) {
	events := record.PullDomainEvents()
	if s.publisher == nil || len(events) == 0 {
		return
	}
	if err := s.publisher.Publish(ctx, events...); err != nil {
		s.logger.Error("failed to publish sync record events",
			zap.String("record_id", record.ID.String()),
			zap.Error(err),
		)
	}
}
