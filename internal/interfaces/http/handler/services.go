package handler

import (
	"context"
	"io"

	"github.com/google/uuid"

	catalogapp "github.com/syncbridge/backend/internal/application/catalog"
	integrationapp "github.com/syncbridge/backend/internal/application/integration"
	"github.com/syncbridge/backend/internal/domain/integration"
)

// The handlers depend on these narrow views of the application services.

// SyncRunner triggers sync work
type SyncRunner interface {
	PerformBatchSync(ctx context.Context, connectionPairID *uuid.UUID, chunkSize int) (int, error)
	RetryFailedSyncs(ctx context.Context, connectionPairID *uuid.UUID) (int, error)
}

// SyncStatusAdmin exposes status maintenance and statistics
type SyncStatusAdmin interface {
	ResetFailedItems(ctx context.Context, maxAgeMinutes int, connectionPairID *uuid.UUID) (int64, error)
	GetSyncStatistics(ctx context.Context, filter integration.SyncRecordFilter) (*integration.SyncStatistics, error)
}

// TenantPairs resolves which connection pairs a tenant may act on
type TenantPairs interface {
	PairBelongsToTenant(ctx context.Context, tenantID, pairID uuid.UUID) error
	ActivePairIDs(ctx context.Context, tenantID uuid.UUID) ([]uuid.UUID, error)
}

// SyncRecords manages individual sync records
type SyncRecords interface {
	TenantPairs
	AttachProduct(ctx context.Context, tenantID uuid.UUID, req integrationapp.AttachProductRequest) (*integrationapp.SyncRecordResponse, error)
	UpdateCatalogStatus(ctx context.Context, tenantID, recordID uuid.UUID, req integrationapp.UpdateCatalogStatusRequest) (*integrationapp.SyncRecordResponse, error)
	GetRecord(ctx context.Context, tenantID, recordID uuid.UUID, logLimit int) (*integrationapp.SyncRecordDetailResponse, error)
	SyncRecord(ctx context.Context, tenantID, recordID uuid.UUID) error
}

// CacheInvalidator drops cached dashboard aggregates after a mutation
type CacheInvalidator interface {
	InvalidateCache(ctx context.Context)
}

// SyncAnalytics answers dashboard queries
type SyncAnalytics interface {
	CacheInvalidator
	GetMetrics(ctx context.Context, filter integrationapp.AnalyticsFilter) (*integrationapp.SyncMetrics, error)
	GetTopErrors(ctx context.Context, filter integrationapp.AnalyticsFilter, limit int) ([]integration.ErrorCount, error)
	GetConnectionPairPerformance(ctx context.Context, filter integrationapp.AnalyticsFilter) ([]integrationapp.PairPerformance, error)
	GetQueueHealth(ctx context.Context, filter integrationapp.AnalyticsFilter) (*integrationapp.QueueHealth, error)
	Export(ctx context.Context, req integrationapp.ExportRequest, factory integrationapp.ExportEncoderFactory, w io.Writer) (*integrationapp.ExportResult, error)
}

// ExportArchive keeps a copy of generated exports
type ExportArchive interface {
	Archive(ctx context.Context, tenantID *uuid.UUID, fileName, contentType string, data []byte) (string, error)
}

// Products updates supplier products
type Products interface {
	GetByID(ctx context.Context, tenantID, productID uuid.UUID) (*catalogapp.ProductResponse, error)
	Update(ctx context.Context, tenantID, productID uuid.UUID, req catalogapp.UpdateProductRequest) (*catalogapp.ProductResponse, error)
}

// PricingRules manages pricing rules
type PricingRules interface {
	Create(ctx context.Context, tenantID uuid.UUID, req catalogapp.PricingRuleRequest) (*catalogapp.PricingRuleResponse, error)
	Update(ctx context.Context, tenantID, ruleID uuid.UUID, req catalogapp.PricingRuleRequest) (*catalogapp.PricingRuleResponse, error)
	Delete(ctx context.Context, tenantID, ruleID uuid.UUID) error
	GetByID(ctx context.Context, tenantID, ruleID uuid.UUID) (*catalogapp.PricingRuleResponse, error)
}
