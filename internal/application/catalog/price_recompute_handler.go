package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/syncbridge/backend/internal/domain/catalog"
	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// ReasonPriceRecomputed is the status-change reason of records re-queued after
// their final price changed
const ReasonPriceRecomputed = "price_recomputed"

// PricedRecordStore is the slice of the sync record repository the recompute needs
type PricedRecordStore interface {
	FindActiveByProduct(ctx context.Context, productID uuid.UUID) ([]*integration.SyncRecord, error)
	UpdateSnapshot(ctx context.Context, record *integration.SyncRecord) error
}

// RecordRequeuer moves a sync record back to pending
type RecordRequeuer interface {
	MarkPending(ctx context.Context, record *integration.SyncRecord, reason string) error
}

// PriceRecomputeHandler handles PriceRelevantFieldChangedEvent. It recomputes
// the final price of every active sync record of the product with the rules
// that apply to the record's destination, and re-queues records whose price
// moved.
type PriceRecomputeHandler struct {
	products catalog.ProductReader
	rules    catalog.PricingRuleRepository
	records  PricedRecordStore
	requeuer RecordRequeuer
	now      func() time.Time
	logger   *zap.Logger
}

// NewPriceRecomputeHandler creates a new PriceRecomputeHandler
func NewPriceRecomputeHandler(
	products catalog.ProductReader,
	rules catalog.PricingRuleRepository,
	records PricedRecordStore,
	requeuer RecordRequeuer,
	logger *zap.Logger,
) *PriceRecomputeHandler {
	return &PriceRecomputeHandler{
		products: products,
		rules:    rules,
		records:  records,
		requeuer: requeuer,
		now:      time.Now,
		logger:   logger,
	}
}

// WithClock replaces the time source
func (h *PriceRecomputeHandler) WithClock(now func() time.Time) *PriceRecomputeHandler {
	h.now = now
	return h
}

// EventTypes returns the event types this handler is interested in
func (h *PriceRecomputeHandler) EventTypes() []string {
	return []string{catalog.EventTypePriceRelevantFieldChanged}
}

// Handle processes a PriceRelevantFieldChangedEvent
func (h *PriceRecomputeHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	changed, ok := event.(*catalog.PriceRelevantFieldChangedEvent)
	if !ok {
		h.logger.Error("unexpected event type",
			zap.String("expected", catalog.EventTypePriceRelevantFieldChanged),
			zap.String("actual", event.EventType()),
		)
		return fmt.Errorf("unexpected event type: expected %s, got %s",
			catalog.EventTypePriceRelevantFieldChanged, event.EventType())
	}

	_, err := h.Recompute(ctx, changed.ProductID)
	if err != nil {
		h.logger.Error("price recompute failed",
			zap.String("product_id", changed.ProductID.String()),
			zap.String("entity_kind", string(changed.EntityKind)),
			zap.String("entity_id", changed.EntityID.String()),
			zap.Error(err),
		)
	}
	return nil
}

// Recompute refreshes the final price of the product's active sync records
// and returns how many changed
func (h *PriceRecomputeHandler) Recompute(ctx context.Context, productID uuid.UUID) (int, error) {
	product, err := h.products.FindByID(ctx, productID)
	if err != nil {
		return 0, fmt.Errorf("load product %s: %w", productID, err)
	}
	rules, err := h.rules.FindActiveForSupplier(ctx, product.TenantID, product.SupplierID)
	if err != nil {
		return 0, fmt.Errorf("load pricing rules: %w", err)
	}
	records, err := h.records.FindActiveByProduct(ctx, productID)
	if err != nil {
		return 0, fmt.Errorf("load sync records: %w", err)
	}

	now := h.now()
	changed := 0
	for _, record := range records {
		var destinationID uuid.UUID
		if record.ConnectionPair != nil {
			destinationID = record.ConnectionPair.DestinationID
		}
		price, rule := catalog.ApplyPricingRules(product.CostPrice, rules, product.SupplierID, destinationID, product.ID)
		if !record.SetFinalPrice(price, now) {
			continue
		}
		if err := h.records.UpdateSnapshot(ctx, record); err != nil {
			return changed, fmt.Errorf("update final price of record %s: %w", record.ID, err)
		}
		record.ClearDirty()
		if err := h.requeuer.MarkPending(ctx, record, ReasonPriceRecomputed); err != nil {
			return changed, err
		}
		changed++

		ruleID := ""
		if rule != nil {
			ruleID = rule.ID.String()
		}
		h.logger.Debug("final price recomputed",
			zap.String("record_id", record.ID.String()),
			zap.String("final_price", price.StringFixed(2)),
			zap.String("rule_id", ruleID),
		)
	}

	h.logger.Info("final prices recomputed",
		zap.String("product_id", productID.String()),
		zap.Int("records", len(records)),
		zap.Int("changed", changed),
	)
	return changed, nil
}

var _ shared.EventHandler = (*PriceRecomputeHandler)(nil)
