package integration

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/syncbridge/backend/internal/domain/integration"
)

// ---------------------------------------------------------------------------
// Request DTOs
// ---------------------------------------------------------------------------

// AttachProductRequest attaches a supplier product to a connection pair
type AttachProductRequest struct {
	ConnectionPairID uuid.UUID `json:"connection_pair_id" binding:"required"`
	ProductID        uuid.UUID `json:"product_id" binding:"required"`
	CatalogStatus    string    `json:"catalog_status" binding:"omitempty,oneof=default queued in_catalog pending_creation pending_deletion not_in_catalog"`
}

// UpdateCatalogStatusRequest moves a record to a new catalog status
type UpdateCatalogStatusRequest struct {
	CatalogStatus string `json:"catalog_status" binding:"required,oneof=default queued in_catalog pending_creation pending_deletion not_in_catalog"`
}

// BatchSyncRequest triggers a batch sync
type BatchSyncRequest struct {
	ConnectionPairID *uuid.UUID `json:"connection_pair_id"`
	Limit            int        `json:"limit" binding:"omitempty,min=1,max=10000"`
}

// RetryFailedRequest triggers a forced retry of failed records
type RetryFailedRequest struct {
	ConnectionPairID *uuid.UUID `json:"connection_pair_id"`
}

// ResetFailedRequest resets old failed records to pending
type ResetFailedRequest struct {
	MaxAgeMinutes    int        `json:"max_age_minutes" binding:"min=0"`
	ConnectionPairID *uuid.UUID `json:"connection_pair_id"`
}

// ---------------------------------------------------------------------------
// Response DTOs
// ---------------------------------------------------------------------------

// SyncRecordResponse is the API view of a sync record
type SyncRecordResponse struct {
	ID               uuid.UUID       `json:"id"`
	TenantID         uuid.UUID       `json:"tenant_id"`
	ConnectionPairID uuid.UUID       `json:"connection_pair_id"`
	ProductID        uuid.UUID       `json:"product_id"`
	SKU              string          `json:"sku"`
	Name             string          `json:"name"`
	UPC              string          `json:"upc,omitempty"`
	PartNumber       string          `json:"part_number,omitempty"`
	Condition        string          `json:"condition,omitempty"`
	Price            decimal.Decimal `json:"price"`
	FinalPrice       decimal.Decimal `json:"final_price"`
	Stock            int             `json:"stock"`
	Weight           decimal.Decimal `json:"weight"`
	CatalogStatus    string          `json:"catalog_status"`
	SyncStatus       string          `json:"sync_status"`
	LastSyncAttempt  *time.Time      `json:"last_sync_attempt,omitempty"`
	LastSyncedAt     *time.Time      `json:"last_synced_at,omitempty"`
	SyncError        *string         `json:"sync_error,omitempty"`
	FailureCount     int             `json:"failure_count"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// SyncRecordDetailResponse adds retry information and recent log entries
type SyncRecordDetailResponse struct {
	SyncRecordResponse
	NeedsSync   bool              `json:"needs_sync"`
	NextRetryAt *time.Time        `json:"next_retry_at,omitempty"`
	RecentLogs  []SyncLogResponse `json:"recent_logs,omitempty"`
}

// SyncLogResponse is the API view of a sync log entry
type SyncLogResponse struct {
	ID          uuid.UUID `json:"id"`
	JobID       string    `json:"job_id"`
	Operation   string    `json:"operation"`
	Status      string    `json:"status"`
	Message     string    `json:"message,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	DurationMs  int64     `json:"duration_ms"`
}

// CountResponse reports how many records a dashboard action touched
type CountResponse struct {
	Count   int64  `json:"count"`
	Message string `json:"message"`
}

// ToSyncRecordResponse converts a domain SyncRecord to SyncRecordResponse
func ToSyncRecordResponse(r *integration.SyncRecord) SyncRecordResponse {
	return SyncRecordResponse{
		ID:               r.ID,
		TenantID:         r.TenantID,
		ConnectionPairID: r.ConnectionPairID,
		ProductID:        r.ProductID,
		SKU:              r.SKU,
		Name:             r.Name,
		UPC:              r.UPC,
		PartNumber:       r.PartNumber,
		Condition:        r.Condition,
		Price:            r.Price,
		FinalPrice:       r.FinalPrice,
		Stock:            r.Stock,
		Weight:           r.Weight,
		CatalogStatus:    r.CatalogStatus.String(),
		SyncStatus:       r.SyncStatus.String(),
		LastSyncAttempt:  r.LastSyncAttempt,
		LastSyncedAt:     r.LastSyncedAt,
		SyncError:        r.SyncError,
		FailureCount:     r.FailureCount,
		UpdatedAt:        r.UpdatedAt,
	}
}

// ToSyncLogResponses converts sync log entries
func ToSyncLogResponses(logs []*integration.SyncLog) []SyncLogResponse {
	responses := make([]SyncLogResponse, len(logs))
	for i, l := range logs {
		responses[i] = SyncLogResponse{
			ID:          l.ID,
			JobID:       l.JobID,
			Operation:   l.Operation,
			Status:      string(l.Status),
			Message:     l.Message,
			StartedAt:   l.StartedAt,
			CompletedAt: l.CompletedAt,
			DurationMs:  l.DurationMs,
		}
	}
	return responses
}
