package integration

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// SyncRecordRepository Interface
// ---------------------------------------------------------------------------

// SyncRecordReader defines the interface for loading sync records
type SyncRecordReader interface {
	// FindByID finds a record by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*SyncRecord, error)

	// FindByIDForTenant finds a record by ID within a tenant
	FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*SyncRecord, error)

	// FindByIDsWithRelations loads records with connection pair, company and product populated
	FindByIDsWithRelations(ctx context.Context, ids []uuid.UUID) ([]*SyncRecord, error)

	// FindByPairAndProduct finds the unique record for a connection pair and product
	FindByPairAndProduct(ctx context.Context, connectionPairID, productID uuid.UUID) (*SyncRecord, error)

	// FindActiveByProduct finds the product's records whose connection pair is active,
	// with the connection pair populated
	FindActiveByProduct(ctx context.Context, productID uuid.UUID) ([]*SyncRecord, error)
}

// SyncRecordFinder defines the interface for searching and aggregating sync records
type SyncRecordFinder interface {
	// FindAll finds records matching the filter
	FindAll(ctx context.Context, filter SyncRecordFilter) ([]*SyncRecord, error)

	// FindIDs returns up to limit record IDs matching the filter, oldest attempt first
	FindIDs(ctx context.Context, filter SyncRecordFilter, limit int) ([]uuid.UUID, error)

	// Count counts records matching the filter
	Count(ctx context.Context, filter SyncRecordFilter) (int64, error)

	// GetStatistics aggregates counts and timestamps for the filter
	GetStatistics(ctx context.Context, filter SyncRecordFilter) (*SyncStatistics, error)

	// CountByCatalogStatus groups matching records by catalog status
	CountByCatalogStatus(ctx context.Context, filter SyncRecordFilter) (map[CatalogStatus]int64, error)

	// TopErrors returns the most frequent sync error messages among failed records
	TopErrors(ctx context.Context, filter SyncRecordFilter, limit int) ([]ErrorCount, error)

	// PairPerformance aggregates status counts per connection pair
	PairPerformance(ctx context.Context, filter SyncRecordFilter) ([]ConnectionPairStats, error)

	// FindStaleInProgress finds in-progress records whose last attempt is before olderThan
	FindStaleInProgress(ctx context.Context, olderThan time.Time, limit int) ([]*SyncRecord, error)
}

// SyncRecordWriter defines the interface for persisting sync records
type SyncRecordWriter interface {
	// Create inserts a new record; returns ErrSyncRecordExists on duplicates
	Create(ctx context.Context, record *SyncRecord) error

	// UpdateStatus persists the status fields of the record
	UpdateStatus(ctx context.Context, record *SyncRecord) error

	// TransitionStatus persists the status fields only if the stored status is one of
	// expected. Returns false when another writer changed the row first.
	TransitionStatus(ctx context.Context, record *SyncRecord, expected ...SyncStatus) (bool, error)

	// UpdateSnapshot persists the product snapshot and status fields
	UpdateSnapshot(ctx context.Context, record *SyncRecord) error

	// UpdateCatalogStatus persists the catalog status
	UpdateCatalogStatus(ctx context.Context, record *SyncRecord) error

	// ResetFailed moves failed records whose last attempt is strictly before cutoff
	// back to pending and clears their errors
	ResetFailed(ctx context.Context, cutoff time.Time, connectionPairID *uuid.UUID) (int64, error)
}

// SyncRecordRepository defines the full interface for sync record persistence
type SyncRecordRepository interface {
	SyncRecordReader
	SyncRecordFinder
	SyncRecordWriter
}

// SyncRecordFilter defines filter criteria for sync records
type SyncRecordFilter struct {
	// TenantID restricts to one company (optional)
	TenantID *uuid.UUID
	// ConnectionPairID restricts to one connection pair (optional)
	ConnectionPairID *uuid.UUID
	// ProductID restricts to one product (optional)
	ProductID *uuid.UUID
	// SyncStatuses filters by sync status (optional)
	SyncStatuses []SyncStatus
	// CatalogStatuses filters by catalog status (optional)
	CatalogStatuses []CatalogStatus
	// ActivePairsOnly excludes records of inactive or deleted connection pairs
	ActivePairsOnly bool
	// UpdatedFrom / UpdatedTo bound updated_at (optional)
	UpdatedFrom *time.Time
	UpdatedTo   *time.Time
	// Page number (1-indexed); zero disables pagination
	Page int
	// Page size
	PageSize int
}

// SyncStatistics is the operational summary of sync records
type SyncStatistics struct {
	Counts               map[SyncStatus]int64 `json:"counts"`
	Total                int64                `json:"total"`
	LastSuccessfulSync   *time.Time           `json:"last_successful_sync,omitempty"`
	OldestPendingAttempt *time.Time           `json:"oldest_pending_attempt,omitempty"`
}

// Count returns the number of records in a status
func (s *SyncStatistics) Count(status SyncStatus) int64 {
	if s == nil || s.Counts == nil {
		return 0
	}
	return s.Counts[status]
}

// ErrorCount is a sync error message with its frequency
type ErrorCount struct {
	Message string `json:"message"`
	Count   int64  `json:"count"`
}

// ConnectionPairStats aggregates sync state for one connection pair
type ConnectionPairStats struct {
	ConnectionPairID uuid.UUID       `json:"connection_pair_id"`
	Name             string          `json:"name"`
	DestinationType  DestinationType `json:"destination_type"`
	Total            int64           `json:"total"`
	Synced           int64           `json:"synced"`
	Failed           int64           `json:"failed"`
	Pending          int64           `json:"pending"`
	InProgress       int64           `json:"in_progress"`
	LastSyncedAt     *time.Time      `json:"last_synced_at,omitempty"`
}

// SuccessRate returns synced/(synced+failed) as a percentage
func (s ConnectionPairStats) SuccessRate() float64 {
	attempted := s.Synced + s.Failed
	if attempted == 0 {
		return 0
	}
	return float64(s.Synced) / float64(attempted) * 100
}

// ---------------------------------------------------------------------------
// ConnectionPair and Company repositories
// ---------------------------------------------------------------------------

// ConnectionPairRepository persists connection pairs
type ConnectionPairRepository interface {
	// FindByID finds a pair by ID, including soft-deleted pairs
	FindByID(ctx context.Context, id uuid.UUID) (*ConnectionPair, error)

	// FindActive lists active, non-deleted pairs, optionally for one tenant
	FindActive(ctx context.Context, tenantID *uuid.UUID) ([]*ConnectionPair, error)

	// Save creates or updates a pair
	Save(ctx context.Context, pair *ConnectionPair) error
}

// CompanyRepository reads the subscription state of companies
type CompanyRepository interface {
	// FindByID finds a company by ID
	FindByID(ctx context.Context, id uuid.UUID) (*Company, error)

	// Save creates or updates a company
	Save(ctx context.Context, company *Company) error
}

// ---------------------------------------------------------------------------
// SyncLogRepository Interface
// ---------------------------------------------------------------------------

// SyncLogRepository is append-only: there is no update or delete
type SyncLogRepository interface {
	// Append inserts log entries
	Append(ctx context.Context, logs ...*SyncLog) error

	// FindByRecord lists the latest entries for a record, newest first
	FindByRecord(ctx context.Context, syncRecordID uuid.UUID, limit int) ([]*SyncLog, error)

	// Summarize aggregates log entries in the window
	Summarize(ctx context.Context, filter SyncLogFilter) (*SyncLogSummary, error)
}

// SyncLogFilter bounds a sync log query
type SyncLogFilter struct {
	TenantID         *uuid.UUID
	ConnectionPairID *uuid.UUID
	From             time.Time
	To               time.Time
}

// SyncLogSummary aggregates sync attempts over a window
type SyncLogSummary struct {
	Total         int64   `json:"total"`
	Succeeded     int64   `json:"succeeded"`
	Failed        int64   `json:"failed"`
	Skipped       int64   `json:"skipped"`
	AvgDurationMs float64 `json:"avg_duration_ms"`
}
