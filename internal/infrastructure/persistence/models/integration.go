package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/syncbridge/backend/internal/domain/integration"
	"gorm.io/gorm"
)

// CompanyModel holds the subscription state of a tenant
type CompanyModel struct {
	ID                 uuid.UUID                      `gorm:"type:uuid;primary_key"`
	Name               string                         `gorm:"type:varchar(200);not null"`
	SubscriptionStatus integration.SubscriptionStatus `gorm:"type:varchar(20);not null;default:'active'"`
	SubscriptionEndsAt *time.Time
	CreatedAt          time.Time `gorm:"not null"`
	UpdatedAt          time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (CompanyModel) TableName() string {
	return "companies"
}

// ToDomain converts the persistence model to a domain Company
func (m *CompanyModel) ToDomain() *integration.Company {
	return &integration.Company{
		ID:                 m.ID,
		Name:               m.Name,
		SubscriptionStatus: m.SubscriptionStatus,
		SubscriptionEndsAt: m.SubscriptionEndsAt,
	}
}

// FromDomain populates the persistence model from a domain Company
func (m *CompanyModel) FromDomain(c *integration.Company) {
	m.ID = c.ID
	m.Name = c.Name
	m.SubscriptionStatus = c.SubscriptionStatus
	m.SubscriptionEndsAt = c.SubscriptionEndsAt
}

// ConnectionPairModel binds a supplier to a destination for a company
type ConnectionPairModel struct {
	BaseModel
	TenantID        uuid.UUID                   `gorm:"type:uuid;not null;index"`
	SupplierID      uuid.UUID                   `gorm:"type:uuid;not null;index"`
	DestinationID   uuid.UUID                   `gorm:"type:uuid;not null"`
	DestinationType integration.DestinationType `gorm:"type:varchar(20);not null"`
	Name            string                      `gorm:"type:varchar(150);not null"`
	IsActive        bool                        `gorm:"not null;default:true"`
	SKUPrefix       string                      `gorm:"column:sku_prefix;type:varchar(20)"`
	DeletedAt       gorm.DeletedAt              `gorm:"index"`
}

// TableName returns the table name for GORM
func (ConnectionPairModel) TableName() string {
	return "connection_pairs"
}

// ToDomain converts the persistence model to a domain ConnectionPair
func (m *ConnectionPairModel) ToDomain() *integration.ConnectionPair {
	pair := &integration.ConnectionPair{
		ID:              m.ID,
		TenantID:        m.TenantID,
		SupplierID:      m.SupplierID,
		DestinationID:   m.DestinationID,
		DestinationType: m.DestinationType,
		Name:            m.Name,
		IsActive:        m.IsActive,
		SKUPrefix:       m.SKUPrefix,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
	if m.DeletedAt.Valid {
		t := m.DeletedAt.Time
		pair.DeletedAt = &t
	}
	return pair
}

// FromDomain populates the persistence model from a domain ConnectionPair
func (m *ConnectionPairModel) FromDomain(p *integration.ConnectionPair) {
	m.ID = p.ID
	m.CreatedAt = p.CreatedAt
	m.UpdatedAt = p.UpdatedAt
	m.TenantID = p.TenantID
	m.SupplierID = p.SupplierID
	m.DestinationID = p.DestinationID
	m.DestinationType = p.DestinationType
	m.Name = p.Name
	m.IsActive = p.IsActive
	m.SKUPrefix = p.SKUPrefix
	m.DeletedAt = gorm.DeletedAt{}
	if p.DeletedAt != nil {
		m.DeletedAt = gorm.DeletedAt{Time: *p.DeletedAt, Valid: true}
	}
}

// SyncRecordModel is one row per (connection pair, product)
type SyncRecordModel struct {
	TenantAggregateModel
	ConnectionPairID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_sync_record_pair_product,priority:1"`
	ProductID        uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_sync_record_pair_product,priority:2;index"`

	SKU        string          `gorm:"column:sku;type:varchar(120);not null"`
	Name       string          `gorm:"type:varchar(255);not null"`
	UPC        string          `gorm:"column:upc;type:varchar(50)"`
	PartNumber string          `gorm:"type:varchar(100)"`
	Condition  string          `gorm:"type:varchar(30)"`
	Price      decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	FinalPrice decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	Stock      int             `gorm:"not null;default:0"`
	Weight     decimal.Decimal `gorm:"type:decimal(10,3);not null;default:0"`

	CatalogStatus   integration.CatalogStatus `gorm:"type:varchar(30);not null;default:'default';index"`
	SyncStatus      integration.SyncStatus    `gorm:"type:varchar(20);not null;default:'pending';index:idx_sync_record_status_attempt,priority:1"`
	LastSyncAttempt *time.Time                `gorm:"index:idx_sync_record_status_attempt,priority:2"`
	LastSyncedAt    *time.Time
	SyncError       *string `gorm:"type:text"`
	FailureCount    int     `gorm:"not null;default:0"`

	ConnectionPair *ConnectionPairModel `gorm:"foreignKey:ConnectionPairID"`
	Product        *ProductModel        `gorm:"foreignKey:ProductID"`
}

// TableName returns the table name for GORM
func (SyncRecordModel) TableName() string {
	return "sync_records"
}

// ToDomain converts the persistence model to a domain SyncRecord. Preloaded
// connection pair and product are carried over; the company is attached by
// the repository.
func (m *SyncRecordModel) ToDomain() *integration.SyncRecord {
	r := &integration.SyncRecord{
		TenantAggregateRoot: m.root(),
		ConnectionPairID:    m.ConnectionPairID,
		ProductID:           m.ProductID,
		SKU:                 m.SKU,
		Name:                m.Name,
		UPC:                 m.UPC,
		PartNumber:          m.PartNumber,
		Condition:           m.Condition,
		Price:               m.Price,
		FinalPrice:          m.FinalPrice,
		Stock:               m.Stock,
		Weight:              m.Weight,
		CatalogStatus:       m.CatalogStatus,
		SyncStatus:          m.SyncStatus,
		LastSyncAttempt:     m.LastSyncAttempt,
		LastSyncedAt:        m.LastSyncedAt,
		SyncError:           m.SyncError,
		FailureCount:        m.FailureCount,
	}
	if m.ConnectionPair != nil {
		r.ConnectionPair = m.ConnectionPair.ToDomain()
	}
	if m.Product != nil {
		r.Product = m.Product.ToDomain()
	}
	return r
}

// FromDomain populates the persistence model from a domain SyncRecord
func (m *SyncRecordModel) FromDomain(r *integration.SyncRecord) {
	m.setRoot(r.TenantAggregateRoot)
	m.ConnectionPairID = r.ConnectionPairID
	m.ProductID = r.ProductID
	m.SKU = r.SKU
	m.Name = r.Name
	m.UPC = r.UPC
	m.PartNumber = r.PartNumber
	m.Condition = r.Condition
	m.Price = r.Price
	m.FinalPrice = r.FinalPrice
	m.Stock = r.Stock
	m.Weight = r.Weight
	m.CatalogStatus = r.CatalogStatus
	m.SyncStatus = r.SyncStatus
	m.LastSyncAttempt = r.LastSyncAttempt
	m.LastSyncedAt = r.LastSyncedAt
	m.SyncError = r.SyncError
	m.FailureCount = r.FailureCount
}

// StatusColumns returns the status fields of r keyed by column name
func StatusColumns(r *integration.SyncRecord) map[string]any {
	return map[string]any{
		"sync_status":       r.SyncStatus,
		"last_sync_attempt": r.LastSyncAttempt,
		"last_synced_at":    r.LastSyncedAt,
		"sync_error":        r.SyncError,
		"failure_count":     r.FailureCount,
		"updated_at":        r.UpdatedAt,
	}
}

// SnapshotColumns returns the product snapshot and status fields of r keyed by column name
func SnapshotColumns(r *integration.SyncRecord) map[string]any {
	cols := StatusColumns(r)
	cols["sku"] = r.SKU
	cols["name"] = r.Name
	cols["upc"] = r.UPC
	cols["part_number"] = r.PartNumber
	cols["condition"] = r.Condition
	cols["price"] = r.Price
	cols["final_price"] = r.FinalPrice
	cols["stock"] = r.Stock
	cols["weight"] = r.Weight
	cols["catalog_status"] = r.CatalogStatus
	return cols
}

// SyncLogModel is the append-only audit entry of one sync attempt
type SyncLogModel struct {
	ID               uuid.UUID                 `gorm:"type:uuid;primary_key"`
	TenantID         uuid.UUID                 `gorm:"type:uuid;not null;index:idx_sync_log_tenant_started,priority:1"`
	SyncRecordID     uuid.UUID                 `gorm:"type:uuid;not null;index:idx_sync_log_record_started,priority:1"`
	ConnectionPairID uuid.UUID                 `gorm:"type:uuid;not null;index"`
	JobID            string                    `gorm:"type:varchar(64)"`
	Operation        string                    `gorm:"type:varchar(40);not null"`
	Status           integration.SyncLogStatus `gorm:"type:varchar(20);not null"`
	Message          string                    `gorm:"type:text"`
	Response         []byte
	StartedAt        time.Time `gorm:"not null;index:idx_sync_log_tenant_started,priority:2;index:idx_sync_log_record_started,priority:2"`
	CompletedAt      time.Time `gorm:"not null"`
	DurationMs       int64     `gorm:"not null;default:0"`
}

// TableName returns the table name for GORM
func (SyncLogModel) TableName() string {
	return "sync_logs"
}

// ToDomain converts the persistence model to a domain SyncLog
func (m *SyncLogModel) ToDomain() *integration.SyncLog {
	return &integration.SyncLog{
		ID:               m.ID,
		TenantID:         m.TenantID,
		SyncRecordID:     m.SyncRecordID,
		ConnectionPairID: m.ConnectionPairID,
		JobID:            m.JobID,
		Operation:        m.Operation,
		Status:           m.Status,
		Message:          m.Message,
		Response:         m.Response,
		StartedAt:        m.StartedAt,
		CompletedAt:      m.CompletedAt,
		DurationMs:       m.DurationMs,
	}
}

// SyncLogModelFromDomain creates a persistence model from a domain SyncLog
func SyncLogModelFromDomain(l *integration.SyncLog) *SyncLogModel {
	return &SyncLogModel{
		ID:               l.ID,
		TenantID:         l.TenantID,
		SyncRecordID:     l.SyncRecordID,
		ConnectionPairID: l.ConnectionPairID,
		JobID:            l.JobID,
		Operation:        l.Operation,
		Status:           l.Status,
		Message:          l.Message,
		Response:         l.Response,
		StartedAt:        l.StartedAt,
		CompletedAt:      l.CompletedAt,
		DurationMs:       l.DurationMs,
	}
}

// AllModels lists every model for AutoMigrate in tests
func AllModels() []any {
	return []any{
		&CompanyModel{},
		&ConnectionPairModel{},
		&ProductModel{},
		&PricingRuleModel{},
		&SyncRecordModel{},
		&SyncLogModel{},
	}
}
