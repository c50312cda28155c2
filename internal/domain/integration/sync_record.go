package integration

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/syncbridge/backend/internal/domain/catalog"
	"github.com/syncbridge/backend/internal/domain/shared"
)

// ---------------------------------------------------------------------------
// Status enums
// ---------------------------------------------------------------------------

// SyncStatus is the outcome/state of sync attempts for a record
type SyncStatus string

const (
	SyncStatusPending    SyncStatus = "pending"
	SyncStatusInProgress SyncStatus = "in_progress"
	SyncStatusSynced     SyncStatus = "synced"
	SyncStatusFailed     SyncStatus = "failed"
)

// AllSyncStatuses returns every sync status in lifecycle order
func AllSyncStatuses() []SyncStatus {
	return []SyncStatus{SyncStatusPending, SyncStatusInProgress, SyncStatusSynced, SyncStatusFailed}
}

// IsValid checks if the sync status is valid
func (s SyncStatus) IsValid() bool {
	switch s {
	case SyncStatusPending, SyncStatusInProgress, SyncStatusSynced, SyncStatusFailed:
		return true
	}
	return false
}

// String returns the string representation
func (s SyncStatus) String() string {
	return string(s)
}

// CatalogStatus says whether a product is meant to exist in the destination
// catalog, independent of whether the last sync attempt succeeded
type CatalogStatus string

const (
	CatalogStatusDefault         CatalogStatus = "default"
	CatalogStatusQueued          CatalogStatus = "queued"
	CatalogStatusInCatalog       CatalogStatus = "in_catalog"
	CatalogStatusPendingCreation CatalogStatus = "pending_creation"
	CatalogStatusPendingDeletion CatalogStatus = "pending_deletion"
	CatalogStatusNotInCatalog    CatalogStatus = "not_in_catalog"
)

// IsValid checks if the catalog status is valid
func (s CatalogStatus) IsValid() bool {
	switch s {
	case CatalogStatusDefault, CatalogStatusQueued, CatalogStatusInCatalog,
		CatalogStatusPendingCreation, CatalogStatusPendingDeletion, CatalogStatusNotInCatalog:
		return true
	}
	return false
}

// String returns the string representation
func (s CatalogStatus) String() string {
	return string(s)
}

// SyncRecord field names as reported in change sets
const (
	RecordFieldSKU             = "sku"
	RecordFieldName            = "name"
	RecordFieldUPC             = "upc"
	RecordFieldPartNumber      = "part_number"
	RecordFieldCondition       = "condition"
	RecordFieldPrice           = "price"
	RecordFieldFinalPrice      = "final_price"
	RecordFieldStock           = "stock"
	RecordFieldWeight          = "weight"
	RecordFieldCatalogStatus   = "catalog_status"
	RecordFieldSyncStatus      = "sync_status"
	RecordFieldSyncError       = "sync_error"
	RecordFieldLastSyncAttempt = "last_sync_attempt"
	RecordFieldLastSyncedAt    = "last_synced_at"
)

// SyncCriticalFields are the product fields whose change must be propagated
// to every sync record backed by the product
var SyncCriticalFields = []string{
	catalog.FieldName,
	catalog.FieldSKU,
	catalog.FieldUPC,
	catalog.FieldCondition,
	catalog.FieldPartNumber,
	catalog.FieldCostPrice,
	catalog.FieldRetailPrice,
	catalog.FieldStockQuantity,
	catalog.FieldWeight,
}

// HasSyncCriticalChange reports whether changedFields intersects SyncCriticalFields
func HasSyncCriticalChange(changedFields []string) bool {
	for _, f := range changedFields {
		for _, c := range SyncCriticalFields {
			if f == c {
				return true
			}
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// SyncRecord Aggregate
// ---------------------------------------------------------------------------

// SyncRecord is the per-(connection pair, product) row tracking catalog and
// sync state plus the denormalized product snapshot sent to the destination.
// Exactly one exists per (ConnectionPairID, ProductID).
type SyncRecord struct {
	shared.TenantAggregateRoot
	ConnectionPairID uuid.UUID
	ProductID        uuid.UUID

	SKU        string
	Name       string
	UPC        string
	PartNumber string
	Condition  string
	Price      decimal.Decimal
	FinalPrice decimal.Decimal
	Stock      int
	Weight     decimal.Decimal

	CatalogStatus   CatalogStatus
	SyncStatus      SyncStatus
	LastSyncAttempt *time.Time
	LastSyncedAt    *time.Time
	SyncError       *string
	// FailureCount counts consecutive failures; reset on success
	FailureCount int

	// Eagerly loaded relations, nil unless requested
	ConnectionPair *ConnectionPair
	Company        *Company
	Product        *catalog.Product

	dirty []string
}

// NewSyncRecord attaches a product to a connection pair. The record starts pending.
func NewSyncRecord(pair *ConnectionPair, product *catalog.Product, catalogStatus CatalogStatus) (*SyncRecord, error) {
	if pair == nil || pair.ID == uuid.Nil {
		return nil, ErrInvalidConnectionPair
	}
	if product == nil || product.ID == uuid.Nil {
		return nil, ErrInvalidProductID
	}
	if !catalogStatus.IsValid() {
		return nil, ErrInvalidCatalogStatus
	}

	r := &SyncRecord{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(pair.TenantID),
		ConnectionPairID:    pair.ID,
		ProductID:           product.ID,
		SKU:                 pair.ApplySKUPrefix(product.SKU),
		Name:                product.Name,
		UPC:                 product.UPC,
		PartNumber:          product.PartNumber,
		Condition:           product.Condition,
		Price:               product.CostPrice,
		FinalPrice:          product.CostPrice,
		Stock:               product.StockQuantity,
		Weight:              product.Weight,
		CatalogStatus:       catalogStatus,
		SyncStatus:          SyncStatusPending,
		ConnectionPair:      pair,
		Product:             product,
	}
	r.AddDomainEvent(NewSyncRecordChangedEvent(r, "", []string{
		RecordFieldSKU, RecordFieldName, RecordFieldPrice, RecordFieldStock,
		RecordFieldCatalogStatus, RecordFieldSyncStatus,
	}, true))
	return r, nil
}

func (r *SyncRecord) touch(now time.Time, fields ...string) {
	r.UpdatedAt = now
	for _, f := range fields {
		if !r.isDirty(f) {
			r.dirty = append(r.dirty, f)
		}
	}
}

func (r *SyncRecord) isDirty(field string) bool {
	for _, d := range r.dirty {
		if d == field {
			return true
		}
	}
	return false
}

// DirtyFields returns the fields changed since the last ClearDirty
func (r *SyncRecord) DirtyFields() []string {
	out := make([]string, len(r.dirty))
	copy(out, r.dirty)
	return out
}

// ClearDirty forgets tracked changes, typically after a save
func (r *SyncRecord) ClearDirty() {
	r.dirty = nil
}

// ---------------------------------------------------------------------------
// Status transitions
// ---------------------------------------------------------------------------

// MarkPending re-queues the record and refreshes LastSyncAttempt
func (r *SyncRecord) MarkPending(now time.Time) {
	r.SyncStatus = SyncStatusPending
	r.LastSyncAttempt = timePtr(now)
	r.SyncError = nil
	r.touch(now, RecordFieldSyncStatus, RecordFieldLastSyncAttempt, RecordFieldSyncError)
}

// MarkInProgress records the start of a sync attempt
func (r *SyncRecord) MarkInProgress(now time.Time) {
	r.SyncStatus = SyncStatusInProgress
	r.LastSyncAttempt = timePtr(now)
	r.SyncError = nil
	r.touch(now, RecordFieldSyncStatus, RecordFieldLastSyncAttempt, RecordFieldSyncError)
}

// MarkCompleted records a successful sync
func (r *SyncRecord) MarkCompleted(now time.Time) {
	r.SyncStatus = SyncStatusSynced
	r.LastSyncedAt = timePtr(now)
	r.SyncError = nil
	r.FailureCount = 0
	r.touch(now, RecordFieldSyncStatus, RecordFieldLastSyncedAt, RecordFieldSyncError)
}

// MarkFailed records a failed attempt. An empty message is replaced so that a
// failed record always carries an error.
func (r *SyncRecord) MarkFailed(errMsg string, now time.Time) {
	if errMsg == "" {
		errMsg = "unknown sync error"
	}
	r.SyncStatus = SyncStatusFailed
	r.SyncError = &errMsg
	r.LastSyncAttempt = timePtr(now)
	r.FailureCount++
	r.touch(now, RecordFieldSyncStatus, RecordFieldSyncError, RecordFieldLastSyncAttempt)
}

// ChangeCatalogStatus moves the record to a new catalog status and records a change event
func (r *SyncRecord) ChangeCatalogStatus(status CatalogStatus, now time.Time) error {
	if !status.IsValid() {
		return ErrInvalidCatalogStatus
	}
	if r.CatalogStatus == status {
		return nil
	}
	previous := r.CatalogStatus
	r.CatalogStatus = status
	r.touch(now, RecordFieldCatalogStatus)
	r.IncrementVersion()
	r.AddDomainEvent(NewSyncRecordChangedEvent(r, previous, []string{RecordFieldCatalogStatus}, false))
	return nil
}

// ErrorMessage returns the stored sync error or ""
func (r *SyncRecord) ErrorMessage() string {
	if r.SyncError == nil {
		return ""
	}
	return *r.SyncError
}

// HasErrorInvariant reports whether SyncError is set exactly when the record failed
func (r *SyncRecord) HasErrorInvariant() bool {
	if r.SyncStatus == SyncStatusFailed {
		return r.SyncError != nil && *r.SyncError != ""
	}
	return r.SyncError == nil
}

// AttemptedWithin reports whether the last attempt happened less than window ago
func (r *SyncRecord) AttemptedWithin(window time.Duration, now time.Time) bool {
	if r.LastSyncAttempt == nil {
		return false
	}
	return now.Sub(*r.LastSyncAttempt) < window
}

// IsStaleInProgress reports whether the record has been in progress longer than timeout
func (r *SyncRecord) IsStaleInProgress(timeout time.Duration, now time.Time) bool {
	if r.SyncStatus != SyncStatusInProgress || r.LastSyncAttempt == nil {
		return false
	}
	return now.Sub(*r.LastSyncAttempt) >= timeout
}

// ---------------------------------------------------------------------------
// Snapshot reconciliation
// ---------------------------------------------------------------------------

// ApplyProductSnapshot copies the changed critical fields from the product into
// the snapshot and re-queues the record. The SKU is only rewritten when the
// product SKU itself changed, which keeps tenant prefixes intact otherwise.
func (r *SyncRecord) ApplyProductSnapshot(product *catalog.Product, pair *ConnectionPair, changedFields []string, now time.Time) {
	changed := make(map[string]bool, len(changedFields))
	for _, f := range changedFields {
		changed[f] = true
	}

	if changed[catalog.FieldSKU] {
		sku := product.SKU
		if pair != nil {
			sku = pair.ApplySKUPrefix(sku)
		}
		r.SKU = sku
		r.touch(now, RecordFieldSKU)
	}
	r.Name = product.Name
	r.UPC = product.UPC
	r.PartNumber = product.PartNumber
	r.Condition = product.Condition
	r.Price = product.CostPrice
	r.Stock = product.StockQuantity
	r.Weight = product.Weight
	r.touch(now, RecordFieldName, RecordFieldUPC, RecordFieldPartNumber, RecordFieldCondition,
		RecordFieldPrice, RecordFieldStock, RecordFieldWeight)

	r.SyncStatus = SyncStatusPending
	r.SyncError = nil
	r.touch(now, RecordFieldSyncStatus, RecordFieldSyncError)
}

// SetFinalPrice updates the computed selling price; returns true if it changed
func (r *SyncRecord) SetFinalPrice(price decimal.Decimal, now time.Time) bool {
	if r.FinalPrice.Equal(price) {
		return false
	}
	r.FinalPrice = price
	r.touch(now, RecordFieldFinalPrice)
	return true
}

// SellingPrice returns the final price, falling back to the cost snapshot
func (r *SyncRecord) SellingPrice() decimal.Decimal {
	if r.FinalPrice.IsZero() {
		return r.Price
	}
	return r.FinalPrice
}

// ToPayload builds the destination payload from the snapshot
func (r *SyncRecord) ToPayload() ProductPayload {
	p := ProductPayload{
		SKU:        r.SKU,
		Name:       r.Name,
		UPC:        r.UPC,
		PartNumber: r.PartNumber,
		Condition:  r.Condition,
		Price:      r.SellingPrice(),
		Quantity:   r.Stock,
		Weight:     r.Weight,
	}
	if r.Product != nil {
		p.Description = r.Product.Description
	}
	return p
}

func timePtr(t time.Time) *time.Time {
	return &t
}
