package integration

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

// DefaultCatalogSyncCooldown suppresses a catalog-creation sync when the
// record was attempted this recently
const DefaultCatalogSyncCooldown = 5 * time.Minute

// ---------------------------------------------------------------------------
// CatalogStatusObserver
// ---------------------------------------------------------------------------

// CatalogStatusObserver triggers the one-time catalog-creation sync when a
// record enters in_catalog and has never been synced
type CatalogStatusObserver struct {
	records  integration.SyncRecordReader
	service  *SyncService
	cooldown time.Duration
	logger   *zap.Logger
}

// NewCatalogStatusObserver creates a new CatalogStatusObserver
func NewCatalogStatusObserver(records integration.SyncRecordReader, service *SyncService, cooldown time.Duration, logger *zap.Logger) *CatalogStatusObserver {
	if cooldown <= 0 {
		cooldown = DefaultCatalogSyncCooldown
	}
	return &CatalogStatusObserver{
		records:  records,
		service:  service,
		cooldown: cooldown,
		logger:   logger,
	}
}

// EventTypes returns the event types this handler is interested in
func (o *CatalogStatusObserver) EventTypes() []string {
	return []string{integration.EventTypeSyncRecordChanged}
}

// Handle dispatches at most one catalog-creation sync for the record
func (o *CatalogStatusObserver) Handle(ctx context.Context, event shared.DomainEvent) error {
	changed, ok := event.(*integration.SyncRecordChangedEvent)
	if !ok {
		return fmt.Errorf("unexpected event type: expected %s, got %s",
			integration.EventTypeSyncRecordChanged, event.EventType())
	}

	if changed.OnlyTimestampsChanged() {
		return nil
	}
	if !changed.Created && !changed.Touches(integration.RecordFieldCatalogStatus) {
		return nil
	}
	if changed.CatalogStatus != integration.CatalogStatusInCatalog {
		return nil
	}

	records, err := o.records.FindByIDsWithRelations(ctx, []uuid.UUID{changed.SyncRecordID})
	if err != nil {
		o.logger.Error("failed to load sync record for catalog sync",
			zap.String("record_id", changed.SyncRecordID.String()),
			zap.Error(err),
		)
		return nil
	}
	if len(records) == 0 {
		return nil
	}
	record := records[0]
	log := o.logger.With(zap.String("record_id", record.ID.String()))

	if record.LastSyncedAt != nil {
		log.Debug("catalog sync skipped: record already synced")
		return nil
	}
	if record.AttemptedWithin(o.cooldown, o.service.StatusManager().Now()) {
		log.Info("catalog sync skipped: attempted recently", zap.Duration("cooldown", o.cooldown))
		return nil
	}
	if !o.service.ValidateSyncConditions(ctx, record) {
		return nil
	}

	if err := o.service.DispatchSyncJob(ctx, record, ReasonCatalogCreation); err != nil {
		log.Error("failed to dispatch catalog sync", zap.Error(err))
	}
	return nil
}

// ---------------------------------------------------------------------------
// ProductObserver
// ---------------------------------------------------------------------------

// ProductObserver propagates product changes to sync records and requests a
// price recompute when a price-relevant field changed. Failures are logged and
// never returned to the publisher.
type ProductObserver struct {
	products  catalog.ProductReader
	service   *SyncService
	publisher shared.EventPublisher
	logger    *zap.Logger
}

// NewProductObserver creates a new ProductObserver
func NewProductObserver(products catalog.ProductReader, service *SyncService, publisher shared.EventPublisher, logger *zap.Logger) *ProductObserver {
	return &ProductObserver{
		products:  products,
		service:   service,
		publisher: publisher,
		logger:    logger,
	}
}

// EventTypes returns the event types this handler is interested in
func (o *ProductObserver) EventTypes() []string {
	return []string{catalog.EventTypeProductChanged}
}

// Handle processes a ProductChangedEvent
func (o *ProductObserver) Handle(ctx context.Context, event shared.DomainEvent) error {
	changed, ok := event.(*catalog.ProductChangedEvent)
	if !ok {
		return fmt.Errorf("unexpected event type: expected %s, got %s",
			catalog.EventTypeProductChanged, event.EventType())
	}
	log := o.logger.With(
		zap.String("product_id", changed.ProductID.String()),
		zap.Strings("changed_fields", changed.ChangedFields),
	)

	if integration.HasSyncCriticalChange(changed.ChangedFields) {
		product, err := o.products.FindByID(ctx, changed.ProductID)
		if err != nil {
			log.Error("failed to load changed product", zap.Error(err))
			return nil
		}
		if _, err := o.service.SyncProductToConnectionPairs(ctx, product, changed.ChangedFields); err != nil {
			log.Error("failed to propagate product change", zap.Error(err))
		}
	}

	if !touchesAny(changed.ChangedFields, catalog.PriceRelevantFields) || o.publisher == nil {
		return nil
	}
	recompute := catalog.NewPriceRelevantFieldChangedEvent(changed.TenantID(), catalog.EntityKindProduct, changed.ProductID, changed.ProductID)
	if err := o.publisher.Publish(ctx, recompute); err != nil {
		log.Error("failed to request price recompute", zap.Error(err))
	}
	return nil
}

func touchesAny(fields, watched []string) bool {
	for _, f := range fields {
		for _, w := range watched {
			if f == w {
				return true
			}
		}
	}
	return false
}

var _ shared.EventHandler = (*CatalogStatusObserver)(nil)
var _ shared.EventHandler = (*ProductObserver)(nil)
