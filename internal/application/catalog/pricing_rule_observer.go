package catalog

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/syncbridge/backend/internal/domain/catalog"
	"github.com/syncbridge/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// PricingRuleObserver turns a saved or deleted pricing rule into one
// PriceRelevantFieldChanged event per product in the rule's scope
type PricingRuleObserver struct {
	products  catalog.ProductReader
	publisher shared.EventPublisher
	logger    *zap.Logger
}

// NewPricingRuleObserver creates a new PricingRuleObserver
func NewPricingRuleObserver(products catalog.ProductReader, publisher shared.EventPublisher, logger *zap.Logger) *PricingRuleObserver {
	return &PricingRuleObserver{
		products:  products,
		publisher: publisher,
		logger:    logger,
	}
}

// EventTypes returns the event types this handler is interested in
func (o *PricingRuleObserver) EventTypes() []string {
	return []string{catalog.EventTypePricingRuleSaved, catalog.EventTypePricingRuleDeleted}
}

// Handle processes PricingRuleSavedEvent and PricingRuleDeletedEvent
func (o *PricingRuleObserver) Handle(ctx context.Context, event shared.DomainEvent) error {
	scope, ok := catalog.ScopeOf(event)
	if !ok {
		return fmt.Errorf("unexpected event type: expected %s or %s, got %s",
			catalog.EventTypePricingRuleSaved, catalog.EventTypePricingRuleDeleted, event.EventType())
	}
	tenantID := event.TenantID()
	log := o.logger.With(
		zap.String("rule_id", scope.RuleID.String()),
		zap.String("event_type", event.EventType()),
	)

	productIDs, err := o.productsInScope(ctx, tenantID, scope)
	if err != nil {
		log.Error("failed to resolve pricing rule scope", zap.Error(err))
		return nil
	}

	events := make([]shared.DomainEvent, 0, len(productIDs))
	for _, id := range productIDs {
		events = append(events, catalog.NewPriceRelevantFieldChangedEvent(tenantID, catalog.EntityKindPricingRule, scope.RuleID, id))
	}
	if len(events) > 0 {
		if err := o.publisher.Publish(ctx, events...); err != nil {
			log.Error("failed to request price recompute", zap.Error(err))
			return nil
		}
	}
	log.Info("price recompute requested for rule scope", zap.Int("products", len(productIDs)))
	return nil
}

// productsInScope resolves the rule scope to product IDs: a product-scoped
// rule names one product, a supplier-scoped rule covers the supplier's
// catalog and an unscoped rule the whole tenant
func (o *PricingRuleObserver) productsInScope(ctx context.Context, tenantID uuid.UUID, scope catalog.RuleScope) ([]uuid.UUID, error) {
	switch {
	case scope.ProductID != nil:
		return []uuid.UUID{*scope.ProductID}, nil
	case scope.SupplierID != nil:
		return o.products.FindIDsBySupplier(ctx, tenantID, *scope.SupplierID)
	default:
		return o.products.FindIDsByTenant(ctx, tenantID)
	}
}

var _ shared.EventHandler = (*PricingRuleObserver)(nil)
