package persistence

import (
	"context"

	"github.com/google/uuid"
	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

const syncLogBatchSize = 200

// GormSyncLogRepository implements integration.SyncLogRepository using GORM.
// It only ever inserts.
type GormSyncLogRepository struct {
	db *gorm.DB
}

// NewGormSyncLogRepository creates a new GormSyncLogRepository
func NewGormSyncLogRepository(db *gorm.DB) *GormSyncLogRepository {
	return &GormSyncLogRepository{db: db}
}

// Append inserts log entries
func (r *GormSyncLogRepository) Append(ctx context.Context, logs ...*integration.SyncLog) error {
	if len(logs) == 0 {
		return nil
	}
	rows := make([]*models.SyncLogModel, len(logs))
	for i, l := range logs {
		rows[i] = models.SyncLogModelFromDomain(l)
	}
	return r.db.WithContext(ctx).CreateInBatches(rows, syncLogBatchSize).Error
}

// FindByRecord lists the latest entries for a record, newest first
func (r *GormSyncLogRepository) FindByRecord(ctx context.Context, syncRecordID uuid.UUID, limit int) ([]*integration.SyncLog, error) {
	query := r.db.WithContext(ctx).
		Where("sync_record_id = ?", syncRecordID).
		Order("started_at DESC, id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []models.SyncLogModel
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*integration.SyncLog, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, nil
}

// Summarize aggregates log entries started within [From, To)
func (r *GormSyncLogRepository) Summarize(ctx context.Context, filter integration.SyncLogFilter) (*integration.SyncLogSummary, error) {
	query := r.db.WithContext(ctx).Model(&models.SyncLogModel{})
	if filter.TenantID != nil {
		query = query.Where("tenant_id = ?", *filter.TenantID)
	}
	if filter.ConnectionPairID != nil {
		query = query.Where("connection_pair_id = ?", *filter.ConnectionPairID)
	}
	if !filter.From.IsZero() {
		query = query.Where("started_at >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		query = query.Where("started_at < ?", filter.To)
	}

	summary := &integration.SyncLogSummary{}
	err := query.Select(`COUNT(*) AS total,
		COUNT(CASE WHEN status = ? THEN 1 END) AS succeeded,
		COUNT(CASE WHEN status = ? THEN 1 END) AS failed,
		COUNT(CASE WHEN status = ? THEN 1 END) AS skipped,
		CAST(COALESCE(AVG(duration_ms), 0) AS DOUBLE PRECISION) AS avg_duration_ms`,
		integration.SyncLogStatusSuccess, integration.SyncLogStatusFailed, integration.SyncLogStatusSkipped).
		Scan(summary).Error
	if err != nil {
		return nil, err
	}
	return summary, nil
}

var _ integration.SyncLogRepository = (*GormSyncLogRepository)(nil)
