package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

const (
	syncRecordOrder = "sync_records.last_sync_attempt IS NOT NULL, sync_records.last_sync_attempt ASC, sync_records.id ASC"
	activePairJoin  = "JOIN connection_pairs ON connection_pairs.id = sync_records.connection_pair_id"
)

// GormSyncRecordRepository implements integration.SyncRecordRepository using GORM
type GormSyncRecordRepository struct {
	db *gorm.DB
}

// NewGormSyncRecordRepository creates a new GormSyncRecordRepository
func NewGormSyncRecordRepository(db *gorm.DB) *GormSyncRecordRepository {
	return &GormSyncRecordRepository{db: db}
}

func (r *GormSyncRecordRepository) model(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.SyncRecordModel{})
}

// FindByID finds a record by its ID
func (r *GormSyncRecordRepository) FindByID(ctx context.Context, id uuid.UUID) (*integration.SyncRecord, error) {
	var m models.SyncRecordModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, notFound(err, integration.ErrSyncRecordNotFound)
	}
	return m.ToDomain(), nil
}

// FindByIDForTenant finds a record by ID within a tenant
func (r *GormSyncRecordRepository) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*integration.SyncRecord, error) {
	var m models.SyncRecordModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&m).Error; err != nil {
		return nil, notFound(err, integration.ErrSyncRecordNotFound)
	}
	return m.ToDomain(), nil
}

// FindByIDsWithRelations loads records with connection pair, company and product populated.
// Soft-deleted pairs are still loaded so callers can skip them explicitly.
func (r *GormSyncRecordRepository) FindByIDsWithRelations(ctx context.Context, ids []uuid.UUID) ([]*integration.SyncRecord, error) {
	if len(ids) == 0 {
		return []*integration.SyncRecord{}, nil
	}
	var rows []models.SyncRecordModel
	err := r.db.WithContext(ctx).
		Preload("ConnectionPair", func(db *gorm.DB) *gorm.DB { return db.Unscoped() }).
		Preload("Product").
		Where("id IN ?", ids).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	tenantIDs := make([]uuid.UUID, 0, len(rows))
	seen := make(map[uuid.UUID]bool, len(rows))
	for _, row := range rows {
		if row.ConnectionPair != nil && !seen[row.ConnectionPair.TenantID] {
			seen[row.ConnectionPair.TenantID] = true
			tenantIDs = append(tenantIDs, row.ConnectionPair.TenantID)
		}
	}
	companies := make(map[uuid.UUID]*integration.Company, len(tenantIDs))
	if len(tenantIDs) > 0 {
		var companyRows []models.CompanyModel
		if err := r.db.WithContext(ctx).Where("id IN ?", tenantIDs).Find(&companyRows).Error; err != nil {
			return nil, err
		}
		for i := range companyRows {
			companies[companyRows[i].ID] = companyRows[i].ToDomain()
		}
	}

	records := make([]*integration.SyncRecord, len(rows))
	for i := range rows {
		rec := rows[i].ToDomain()
		if rec.ConnectionPair != nil {
			rec.Company = companies[rec.ConnectionPair.TenantID]
		}
		records[i] = rec
	}
	return records, nil
}

// FindByPairAndProduct finds the unique record for a connection pair and product
func (r *GormSyncRecordRepository) FindByPairAndProduct(ctx context.Context, connectionPairID, productID uuid.UUID) (*integration.SyncRecord, error) {
	var m models.SyncRecordModel
	if err := r.db.WithContext(ctx).
		Where("connection_pair_id = ? AND product_id = ?", connectionPairID, productID).
		First(&m).Error; err != nil {
		return nil, notFound(err, integration.ErrSyncRecordNotFound)
	}
	return m.ToDomain(), nil
}

// FindActiveByProduct finds the product's records on active pairs with the pair populated
func (r *GormSyncRecordRepository) FindActiveByProduct(ctx context.Context, productID uuid.UUID) ([]*integration.SyncRecord, error) {
	var rows []models.SyncRecordModel
	err := r.db.WithContext(ctx).
		Joins(activePairJoin).
		Preload("ConnectionPair").
		Where("sync_records.product_id = ?", productID).
		Where("connection_pairs.is_active = ? AND connection_pairs.deleted_at IS NULL", true).
		Order("sync_records.id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toDomainRecords(rows), nil
}

// FindAll finds records matching the filter, oldest attempt first
func (r *GormSyncRecordRepository) FindAll(ctx context.Context, filter integration.SyncRecordFilter) ([]*integration.SyncRecord, error) {
	var rows []models.SyncRecordModel
	query := applyPagination(applySyncRecordFilter(r.model(ctx), filter, false), filter.Page, filter.PageSize)
	if err := query.Select("sync_records.*").Order(syncRecordOrder).Find(&rows).Error; err != nil {
		return nil, err
	}
	return toDomainRecords(rows), nil
}

// FindIDs returns up to limit record IDs matching the filter, oldest attempt first
func (r *GormSyncRecordRepository) FindIDs(ctx context.Context, filter integration.SyncRecordFilter, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	query := applySyncRecordFilter(r.model(ctx), filter, false).Order(syncRecordOrder)
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Pluck("sync_records.id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// Count counts records matching the filter
func (r *GormSyncRecordRepository) Count(ctx context.Context, filter integration.SyncRecordFilter) (int64, error) {
	var count int64
	if err := applySyncRecordFilter(r.model(ctx), filter, false).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// GetStatistics aggregates counts and timestamps for the filter
func (r *GormSyncRecordRepository) GetStatistics(ctx context.Context, filter integration.SyncRecordFilter) (*integration.SyncStatistics, error) {
	filter.Page, filter.PageSize = 0, 0

	var groups []struct {
		Status string
		Count  int64
	}
	if err := applySyncRecordFilter(r.model(ctx), filter, false).
		Select("sync_records.sync_status AS status, COUNT(*) AS count").
		Group("sync_records.sync_status").
		Scan(&groups).Error; err != nil {
		return nil, err
	}

	stats := &integration.SyncStatistics{Counts: make(map[integration.SyncStatus]int64, len(groups))}
	for _, status := range integration.AllSyncStatuses() {
		stats.Counts[status] = 0
	}
	for _, g := range groups {
		stats.Counts[integration.SyncStatus(g.Status)] = g.Count
		stats.Total += g.Count
	}

	var lastSynced dbTime
	if err := applySyncRecordFilter(r.model(ctx), filter, false).
		Select("MAX(sync_records.last_synced_at)").
		Row().Scan(&lastSynced); err != nil {
		return nil, err
	}
	stats.LastSuccessfulSync = lastSynced.Ptr()

	var oldestPending dbTime
	if err := applySyncRecordFilter(r.model(ctx), filter, false).
		Where("sync_records.sync_status = ?", integration.SyncStatusPending).
		Select("MIN(sync_records.last_sync_attempt)").
		Row().Scan(&oldestPending); err != nil {
		return nil, err
	}
	stats.OldestPendingAttempt = oldestPending.Ptr()

	return stats, nil
}

// CountByCatalogStatus groups matching records by catalog status
func (r *GormSyncRecordRepository) CountByCatalogStatus(ctx context.Context, filter integration.SyncRecordFilter) (map[integration.CatalogStatus]int64, error) {
	filter.Page, filter.PageSize = 0, 0
	var groups []struct {
		Status string
		Count  int64
	}
	if err := applySyncRecordFilter(r.model(ctx), filter, false).
		Select("sync_records.catalog_status AS status, COUNT(*) AS count").
		Group("sync_records.catalog_status").
		Scan(&groups).Error; err != nil {
		return nil, err
	}
	out := make(map[integration.CatalogStatus]int64, len(groups))
	for _, g := range groups {
		out[integration.CatalogStatus(g.Status)] = g.Count
	}
	return out, nil
}

// TopErrors returns the most frequent sync error messages among failed records
func (r *GormSyncRecordRepository) TopErrors(ctx context.Context, filter integration.SyncRecordFilter, limit int) ([]integration.ErrorCount, error) {
	filter.Page, filter.PageSize = 0, 0
	filter.SyncStatuses = []integration.SyncStatus{integration.SyncStatusFailed}

	var out []integration.ErrorCount
	query := applySyncRecordFilter(r.model(ctx), filter, false).
		Where("sync_records.sync_error IS NOT NULL").
		Select("sync_records.sync_error AS message, COUNT(*) AS count").
		Group("sync_records.sync_error").
		Order("count DESC, message ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Scan(&out).Error; err != nil {
		return nil, err
	}
	if out == nil {
		out = []integration.ErrorCount{}
	}
	return out, nil
}

// PairPerformance aggregates status counts per connection pair, ordered by pair name
func (r *GormSyncRecordRepository) PairPerformance(ctx context.Context, filter integration.SyncRecordFilter) ([]integration.ConnectionPairStats, error) {
	filter.Page, filter.PageSize = 0, 0

	var rows []struct {
		ConnectionPairID uuid.UUID
		Name             string
		DestinationType  string
		Total            int64
		Synced           int64
		Failed           int64
		Pending          int64
		InProgress       int64
		LastSyncedAt     dbTime
	}
	query := applySyncRecordFilter(r.model(ctx).Joins(activePairJoin), filter, true).
		Select(`sync_records.connection_pair_id AS connection_pair_id,
			connection_pairs.name AS name,
			connection_pairs.destination_type AS destination_type,
			COUNT(*) AS total,
			COUNT(CASE WHEN sync_records.sync_status = ? THEN 1 END) AS synced,
			COUNT(CASE WHEN sync_records.sync_status = ? THEN 1 END) AS failed,
			COUNT(CASE WHEN sync_records.sync_status = ? THEN 1 END) AS pending,
			COUNT(CASE WHEN sync_records.sync_status = ? THEN 1 END) AS in_progress,
			MAX(sync_records.last_synced_at) AS last_synced_at`,
			integration.SyncStatusSynced, integration.SyncStatusFailed,
			integration.SyncStatusPending, integration.SyncStatusInProgress).
		Group("sync_records.connection_pair_id, connection_pairs.name, connection_pairs.destination_type").
		Order("connection_pairs.name ASC, sync_records.connection_pair_id ASC")
	if err := query.Scan(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]integration.ConnectionPairStats, len(rows))
	for i, row := range rows {
		out[i] = integration.ConnectionPairStats{
			ConnectionPairID: row.ConnectionPairID,
			Name:             row.Name,
			DestinationType:  integration.DestinationType(row.DestinationType),
			Total:            row.Total,
			Synced:           row.Synced,
			Failed:           row.Failed,
			Pending:          row.Pending,
			InProgress:       row.InProgress,
			LastSyncedAt:     row.LastSyncedAt.Ptr(),
		}
	}
	return out, nil
}

// FindStaleInProgress finds in-progress records whose last attempt is before olderThan
func (r *GormSyncRecordRepository) FindStaleInProgress(ctx context.Context, olderThan time.Time, limit int) ([]*integration.SyncRecord, error) {
	var rows []models.SyncRecordModel
	query := r.db.WithContext(ctx).
		Where("sync_status = ? AND last_sync_attempt < ?", integration.SyncStatusInProgress, olderThan).
		Order("last_sync_attempt ASC, id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return toDomainRecords(rows), nil
}

// Create inserts a new record; returns ErrSyncRecordExists on duplicates
func (r *GormSyncRecordRepository) Create(ctx context.Context, record *integration.SyncRecord) error {
	m := &models.SyncRecordModel{}
	m.FromDomain(record)
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = m.CreatedAt
	}
	if err := r.db.WithContext(ctx).Omit("ConnectionPair", "Product").Create(m).Error; err != nil {
		if isUniqueViolation(err) {
			return integration.ErrSyncRecordExists
		}
		return err
	}
	return nil
}

// UpdateStatus persists the status fields of the record
func (r *GormSyncRecordRepository) UpdateStatus(ctx context.Context, record *integration.SyncRecord) error {
	return r.updateColumns(ctx, record.ID, models.StatusColumns(record))
}

// TransitionStatus writes the status fields only while the stored status is one
// of expected. It returns false when another writer changed the row first.
func (r *GormSyncRecordRepository) TransitionStatus(ctx context.Context, record *integration.SyncRecord, expected ...integration.SyncStatus) (bool, error) {
	if len(expected) == 0 {
		return false, integration.ErrInvalidSyncStatus
	}
	result := r.model(ctx).
		Where("id = ? AND sync_status IN ?", record.ID, expected).
		Updates(models.StatusColumns(record))
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected > 0 {
		return true, nil
	}

	var count int64
	if err := r.model(ctx).Where("id = ?", record.ID).Count(&count).Error; err != nil {
		return false, err
	}
	if count == 0 {
		return false, integration.ErrSyncRecordNotFound
	}
	return false, nil
}

// UpdateSnapshot persists the product snapshot and status fields
func (r *GormSyncRecordRepository) UpdateSnapshot(ctx context.Context, record *integration.SyncRecord) error {
	return r.updateColumns(ctx, record.ID, models.SnapshotColumns(record))
}

// UpdateCatalogStatus persists the catalog status
func (r *GormSyncRecordRepository) UpdateCatalogStatus(ctx context.Context, record *integration.SyncRecord) error {
	return r.updateColumns(ctx, record.ID, map[string]any{
		"catalog_status": record.CatalogStatus,
		"updated_at":     record.UpdatedAt,
	})
}

// ResetFailed moves failed records attempted strictly before cutoff back to pending
func (r *GormSyncRecordRepository) ResetFailed(ctx context.Context, cutoff time.Time, connectionPairID *uuid.UUID) (int64, error) {
	query := r.model(ctx).
		Where("sync_status = ? AND last_sync_attempt < ?", integration.SyncStatusFailed, cutoff)
	if connectionPairID != nil {
		query = query.Where("connection_pair_id = ?", *connectionPairID)
	}
	result := query.Updates(map[string]any{
		"sync_status": integration.SyncStatusPending,
		"sync_error":  gorm.Expr("NULL"),
		"updated_at":  time.Now(),
	})
	return result.RowsAffected, result.Error
}

func (r *GormSyncRecordRepository) updateColumns(ctx context.Context, id uuid.UUID, cols map[string]any) error {
	result := r.model(ctx).Where("id = ?", id).Updates(cols)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return integration.ErrSyncRecordNotFound
	}
	return nil
}

// applySyncRecordFilter applies every filter criterion except pagination.
// joined tells whether connection_pairs is already part of the query.
func applySyncRecordFilter(query *gorm.DB, filter integration.SyncRecordFilter, joined bool) *gorm.DB {
	if filter.TenantID != nil {
		query = query.Where("sync_records.tenant_id = ?", *filter.TenantID)
	}
	if filter.ConnectionPairID != nil {
		query = query.Where("sync_records.connection_pair_id = ?", *filter.ConnectionPairID)
	}
	if filter.ProductID != nil {
		query = query.Where("sync_records.product_id = ?", *filter.ProductID)
	}
	if len(filter.SyncStatuses) > 0 {
		query = query.Where("sync_records.sync_status IN ?", filter.SyncStatuses)
	}
	if len(filter.CatalogStatuses) > 0 {
		query = query.Where("sync_records.catalog_status IN ?", filter.CatalogStatuses)
	}
	if filter.UpdatedFrom != nil {
		query = query.Where("sync_records.updated_at >= ?", *filter.UpdatedFrom)
	}
	if filter.UpdatedTo != nil {
		query = query.Where("sync_records.updated_at <= ?", *filter.UpdatedTo)
	}
	if filter.ActivePairsOnly {
		if !joined {
			query = query.Joins(activePairJoin)
		}
		query = query.Where("connection_pairs.is_active = ? AND connection_pairs.deleted_at IS NULL", true)
	}
	return query
}

func applyPagination(query *gorm.DB, page, pageSize int) *gorm.DB {
	if page <= 0 || pageSize <= 0 {
		return query
	}
	return query.Offset((page - 1) * pageSize).Limit(pageSize)
}

func toDomainRecords(rows []models.SyncRecordModel) []*integration.SyncRecord {
	out := make([]*integration.SyncRecord, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out
}

// notFound maps gorm.ErrRecordNotFound to the domain error
func notFound(err, domainErr error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domainErr
	}
	return err
}

var _ integration.SyncRecordRepository = (*GormSyncRecordRepository)(nil)
