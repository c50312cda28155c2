package integration

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ConnectionPair binds one supplier to one sales destination for a company.
type ConnectionPair struct {
	ID              uuid.UUID
	TenantID        uuid.UUID
	SupplierID      uuid.UUID
	DestinationID   uuid.UUID
	DestinationType DestinationType
	Name            string
	IsActive        bool
	SKUPrefix       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	DeletedAt       *time.Time
}

// NewConnectionPair creates an active connection pair
func NewConnectionPair(tenantID, supplierID, destinationID uuid.UUID, destinationType DestinationType, name string) (*ConnectionPair, error) {
	if tenantID == uuid.Nil {
		return nil, ErrInvalidTenantID
	}
	if supplierID == uuid.Nil || destinationID == uuid.Nil {
		return nil, ErrInvalidConnectionPair
	}
	if !destinationType.IsValid() {
		return nil, ErrUnsupportedDestination
	}
	now := time.Now()
	return &ConnectionPair{
		ID:              uuid.New(),
		TenantID:        tenantID,
		SupplierID:      supplierID,
		DestinationID:   destinationID,
		DestinationType: destinationType,
		Name:            name,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// IsUsable reports whether the pair is active and not soft-deleted
func (p *ConnectionPair) IsUsable() bool {
	return p != nil && p.IsActive && p.DeletedAt == nil
}

// ApplySKUPrefix prefixes a supplier SKU with the pair's SKU prefix, once
func (p *ConnectionPair) ApplySKUPrefix(sku string) string {
	if p.SKUPrefix == "" || strings.HasPrefix(sku, p.SKUPrefix) {
		return sku
	}
	return p.SKUPrefix + sku
}

// Deactivate stops syncing through this pair
func (p *ConnectionPair) Deactivate() {
	p.IsActive = false
	p.UpdatedAt = time.Now()
}

// SubscriptionStatus is the billing state of a company as seen by the engine
type SubscriptionStatus string

const (
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusTrialing SubscriptionStatus = "trialing"
	SubscriptionStatusPastDue  SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
)

// Company is the tenant owning connection pairs. Billing itself lives
// elsewhere; only the subscription state is read here.
type Company struct {
	ID                 uuid.UUID
	Name               string
	SubscriptionStatus SubscriptionStatus
	SubscriptionEndsAt *time.Time
}

// HasActiveSubscription reports whether syncing is allowed for the company at the given time
func (c *Company) HasActiveSubscription(now time.Time) bool {
	if c == nil {
		return false
	}
	switch c.SubscriptionStatus {
	case SubscriptionStatusActive, SubscriptionStatusTrialing:
	default:
		return false
	}
	return c.SubscriptionEndsAt == nil || c.SubscriptionEndsAt.After(now)
}
