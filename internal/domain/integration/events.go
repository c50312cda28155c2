package integration

import (
	"github.com/google/uuid"
	"github.com/syncbridge/backend/internal/domain/shared"
)

// AggregateTypeSyncRecord is the aggregate type of sync record events
const AggregateTypeSyncRecord = "SyncRecord"

// Event type constants
const (
	EventTypeSyncRecordChanged = "SyncRecordChanged"
	EventTypeSyncRecordSynced  = "SyncRecordSynced"
	EventTypeSyncRecordFailed  = "SyncRecordFailed"
)

// TimestampOnlyFields are bookkeeping columns; a change limited to them never
// re-triggers observers
var TimestampOnlyFields = []string{RecordFieldLastSyncedAt, RecordFieldLastSyncAttempt}

// SyncRecordChangedEvent is published when a sync record is created or one of
// its fields is changed outside the status manager
type SyncRecordChangedEvent struct {
	shared.BaseDomainEvent
	SyncRecordID          uuid.UUID     `json:"sync_record_id"`
	ConnectionPairID      uuid.UUID     `json:"connection_pair_id"`
	ProductID             uuid.UUID     `json:"product_id"`
	Created               bool          `json:"created"`
	DirtyFields           []string      `json:"dirty_fields"`
	PreviousCatalogStatus CatalogStatus `json:"previous_catalog_status,omitempty"`
	CatalogStatus         CatalogStatus `json:"catalog_status"`
}

// NewSyncRecordChangedEvent creates a new SyncRecordChangedEvent
func NewSyncRecordChangedEvent(r *SyncRecord, previous CatalogStatus, dirty []string, created bool) *SyncRecordChangedEvent {
	fields := make([]string, len(dirty))
	copy(fields, dirty)
	return &SyncRecordChangedEvent{
		BaseDomainEvent:       shared.NewBaseDomainEvent(EventTypeSyncRecordChanged, AggregateTypeSyncRecord, r.ID, r.TenantID),
		SyncRecordID:          r.ID,
		ConnectionPairID:      r.ConnectionPairID,
		ProductID:             r.ProductID,
		Created:               created,
		DirtyFields:           fields,
		PreviousCatalogStatus: previous,
		CatalogStatus:         r.CatalogStatus,
	}
}

// OnlyTimestampsChanged reports whether every dirty field is a bookkeeping timestamp
func (e *SyncRecordChangedEvent) OnlyTimestampsChanged() bool {
	if len(e.DirtyFields) == 0 {
		return true
	}
	for _, f := range e.DirtyFields {
		isTimestamp := false
		for _, ts := range TimestampOnlyFields {
			if f == ts {
				isTimestamp = true
				break
			}
		}
		if !isTimestamp {
			return false
		}
	}
	return true
}

// Touches reports whether field is among the dirty fields
func (e *SyncRecordChangedEvent) Touches(field string) bool {
	for _, f := range e.DirtyFields {
		if f == field {
			return true
		}
	}
	return false
}

// SyncOutcomeEvent reports the result of one record sync attempt
type SyncOutcomeEvent struct {
	shared.BaseDomainEvent
	SyncRecordID     uuid.UUID       `json:"sync_record_id"`
	ConnectionPairID uuid.UUID       `json:"connection_pair_id"`
	ProductID        uuid.UUID       `json:"product_id"`
	DestinationType  DestinationType `json:"destination_type"`
	SKU              string          `json:"sku"`
	Operation        string          `json:"operation"`
	Error            string          `json:"error,omitempty"`
	DurationMs       int64           `json:"duration_ms"`
}

// NewSyncOutcomeEvent creates a synced or failed outcome event depending on errMsg
func NewSyncOutcomeEvent(r *SyncRecord, destinationType DestinationType, operation, errMsg string, durationMs int64) *SyncOutcomeEvent {
	eventType := EventTypeSyncRecordSynced
	if errMsg != "" {
		eventType = EventTypeSyncRecordFailed
	}
	return &SyncOutcomeEvent{
		BaseDomainEvent:  shared.NewBaseDomainEvent(eventType, AggregateTypeSyncRecord, r.ID, r.TenantID),
		SyncRecordID:     r.ID,
		ConnectionPairID: r.ConnectionPairID,
		ProductID:        r.ProductID,
		DestinationType:  destinationType,
		SKU:              r.SKU,
		Operation:        operation,
		Error:            errMsg,
		DurationMs:       durationMs,
	}
}
