package catalog

import (
	"github.com/google/uuid"
	"github.com/syncbridge/backend/internal/domain/shared"
)

// Aggregate type constants
const (
	AggregateTypeProduct     = "Product"
	AggregateTypePricingRule = "PricingRule"
)

// Event type constants
const (
	EventTypeProductChanged            = "ProductChanged"
	EventTypePricingRuleSaved          = "PricingRuleSaved"
	EventTypePricingRuleDeleted        = "PricingRuleDeleted"
	EventTypePriceRelevantFieldChanged = "PriceRelevantFieldChanged"
)

// ProductChangedEvent is published when a product is saved with at least one changed field
type ProductChangedEvent struct {
	shared.BaseDomainEvent
	ProductID     uuid.UUID `json:"product_id"`
	SupplierID    uuid.UUID `json:"supplier_id"`
	SKU           string    `json:"sku"`
	ChangedFields []string  `json:"changed_fields"`
}

// NewProductChangedEvent creates a new ProductChangedEvent
func NewProductChangedEvent(product *Product, changedFields []string) *ProductChangedEvent {
	fields := make([]string, len(changedFields))
	copy(fields, changedFields)
	return &ProductChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeProductChanged, AggregateTypeProduct, product.ID, product.TenantID),
		ProductID:       product.ID,
		SupplierID:      product.SupplierID,
		SKU:             product.SKU,
		ChangedFields:   fields,
	}
}

// EntityKind names the source of a price-relevant change.
type EntityKind string

const (
	EntityKindProduct     EntityKind = "product"
	EntityKindPricingRule EntityKind = "pricing_rule"
)

// PriceRelevantFieldChangedEvent asks for the final price of one product to be recomputed.
type PriceRelevantFieldChangedEvent struct {
	shared.BaseDomainEvent
	EntityKind EntityKind `json:"entity_kind"`
	EntityID   uuid.UUID  `json:"entity_id"`
	ProductID  uuid.UUID  `json:"product_id"`
}

// NewPriceRelevantFieldChangedEvent creates a new PriceRelevantFieldChangedEvent
func NewPriceRelevantFieldChangedEvent(tenantID uuid.UUID, kind EntityKind, entityID, productID uuid.UUID) *PriceRelevantFieldChangedEvent {
	return &PriceRelevantFieldChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePriceRelevantFieldChanged, AggregateTypeProduct, productID, tenantID),
		EntityKind:      kind,
		EntityID:        entityID,
		ProductID:       productID,
	}
}

// PricingRuleSavedEvent is published when a pricing rule is created or updated
type PricingRuleSavedEvent struct {
	shared.BaseDomainEvent
	RuleID        uuid.UUID  `json:"rule_id"`
	SupplierID    *uuid.UUID `json:"supplier_id,omitempty"`
	DestinationID *uuid.UUID `json:"destination_id,omitempty"`
	ProductID     *uuid.UUID `json:"product_id,omitempty"`
}

// NewPricingRuleSavedEvent creates a new PricingRuleSavedEvent
func NewPricingRuleSavedEvent(rule *PricingRule) *PricingRuleSavedEvent {
	return &PricingRuleSavedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePricingRuleSaved, AggregateTypePricingRule, rule.ID, rule.TenantID),
		RuleID:          rule.ID,
		SupplierID:      rule.SupplierID,
		DestinationID:   rule.DestinationID,
		ProductID:       rule.ProductID,
	}
}

// PricingRuleDeletedEvent is published when a pricing rule is removed
type PricingRuleDeletedEvent struct {
	shared.BaseDomainEvent
	RuleID        uuid.UUID  `json:"rule_id"`
	SupplierID    *uuid.UUID `json:"supplier_id,omitempty"`
	DestinationID *uuid.UUID `json:"destination_id,omitempty"`
	ProductID     *uuid.UUID `json:"product_id,omitempty"`
}

// NewPricingRuleDeletedEvent creates a new PricingRuleDeletedEvent
func NewPricingRuleDeletedEvent(rule *PricingRule) *PricingRuleDeletedEvent {
	return &PricingRuleDeletedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePricingRuleDeleted, AggregateTypePricingRule, rule.ID, rule.TenantID),
		RuleID:          rule.ID,
		SupplierID:      rule.SupplierID,
		DestinationID:   rule.DestinationID,
		ProductID:       rule.ProductID,
	}
}

// RuleScope is the scope shared by the pricing rule events.
type RuleScope struct {
	RuleID        uuid.UUID
	SupplierID    *uuid.UUID
	DestinationID *uuid.UUID
	ProductID     *uuid.UUID
}

// ScopeOf extracts the rule scope from a saved or deleted event.
func ScopeOf(event shared.DomainEvent) (RuleScope, bool) {
	switch e := event.(type) {
	case *PricingRuleSavedEvent:
		return RuleScope{RuleID: e.RuleID, SupplierID: e.SupplierID, DestinationID: e.DestinationID, ProductID: e.ProductID}, true
	case *PricingRuleDeletedEvent:
		return RuleScope{RuleID: e.RuleID, SupplierID: e.SupplierID, DestinationID: e.DestinationID, ProductID: e.ProductID}, true
	}
	return RuleScope{}, false
}
