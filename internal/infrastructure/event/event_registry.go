package event

import (
	"github.com/syncbridge/backend/internal/domain/catalog"
	"github.com/syncbridge/backend/internal/domain/integration"
)

// RegisterAllEvents registers every domain event type with the serializer
func RegisterAllEvents(serializer *EventSerializer) {
	// Sync records
	serializer.Register(integration.EventTypeSyncRecordChanged, &integration.SyncRecordChangedEvent{})
	serializer.Register(integration.EventTypeSyncRecordSynced, &integration.SyncOutcomeEvent{})
	serializer.Register(integration.EventTypeSyncRecordFailed, &integration.SyncOutcomeEvent{})

	// Catalog
	serializer.Register(catalog.EventTypeProductChanged, &catalog.ProductChangedEvent{})
	serializer.Register(catalog.EventTypePricingRuleSaved, &catalog.PricingRuleSavedEvent{})
	serializer.Register(catalog.EventTypePricingRuleDeleted, &catalog.PricingRuleDeletedEvent{})
	serializer.Register(catalog.EventTypePriceRelevantFieldChanged, &catalog.PriceRelevantFieldChangedEvent{})
}
