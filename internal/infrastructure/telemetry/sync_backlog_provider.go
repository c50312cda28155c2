package telemetry

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/syncbridge/backend/internal/domain/integration"
)

// GormBacklogProvider implements BacklogProvider and TenantProvider with
// aggregate queries against sync_records and connection_pairs
type GormBacklogProvider struct {
	db *gorm.DB
}

// NewGormBacklogProvider creates a new GormBacklogProvider
func NewGormBacklogProvider(db *gorm.DB) *GormBacklogProvider {
	return &GormBacklogProvider{db: db}
}

// CountByStatus returns record counts per sync status for a tenant
func (p *GormBacklogProvider) CountByStatus(ctx context.Context, tenantID uuid.UUID) (map[integration.SyncStatus]int64, error) {
	var rows []struct {
		Status string `gorm:"column:sync_status"`
		Count  int64  `gorm:"column:count"`
	}
	err := p.db.WithContext(ctx).
		Table("sync_records").
		Select("sync_status, COUNT(*) AS count").
		Where("tenant_id = ?", tenantID).
		Group("sync_status").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make(map[integration.SyncStatus]int64, len(rows))
	for _, r := range rows {
		out[integration.SyncStatus(r.Status)] = r.Count
	}
	return out, nil
}

// GetActiveTenantIDs returns tenants owning at least one active connection pair
func (p *GormBacklogProvider) GetActiveTenantIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := p.db.WithContext(ctx).
		Table("connection_pairs").
		Distinct("tenant_id").
		Where("is_active = ? AND deleted_at IS NULL", true).
		Pluck("tenant_id", &ids).Error
	return ids, err
}
