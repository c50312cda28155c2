package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/syncbridge/backend/internal/domain/catalog"
	"github.com/syncbridge/backend/internal/domain/integration"
	"go.uber.org/zap"
)

// ---------------------------------------------------------------------------
// PricingRuleService
// ---------------------------------------------------------------------------

func TestPricingRuleService_Create(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()
	supplierID := uuid.New()
	repo := new(MockPricingRuleRepository)
	pub := &recordingPublisher{}
	svc := NewPricingRuleService(repo, pub, zap.NewNop())

	repo.On("Save", ctx, mock.AnythingOfType("*catalog.PricingRule")).Return(nil)

	resp, err := svc.Create(ctx, tenantID, PricingRuleRequest{
		Name:       "Supplier markup",
		RuleType:   "percentage",
		Value:      decimal.NewFromInt(20),
		Priority:   5,
		SupplierID: &supplierID,
	})
	require.NoError(t, err)
	assert.True(t, resp.IsActive)
	assert.Equal(t, &supplierID, resp.SupplierID)

	require.Equal(t, []string{catalog.EventTypePricingRuleSaved}, pub.types())
	scope, ok := catalog.ScopeOf(pub.events[0])
	require.True(t, ok)
	assert.Equal(t, supplierID, *scope.SupplierID)
}

func TestPricingRuleService_Create_TieredNeedsTiers(t *testing.T) {
	repo := new(MockPricingRuleRepository)
	svc := NewPricingRuleService(repo, nil, zap.NewNop())

	_, err := svc.Create(context.Background(), uuid.New(), PricingRuleRequest{Name: "tiers", RuleType: "tiered"})
	assert.Error(t, err)
	repo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestPricingRuleService_UpdateAnnouncesOldScope(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()
	oldProduct, newProduct := uuid.New(), uuid.New()

	rule, err := catalog.NewPricingRule(tenantID, "one product", catalog.PricingRuleTypeFlat, decimal.NewFromInt(2), 1)
	require.NoError(t, err)
	rule.SetScope(nil, nil, &oldProduct)

	repo := new(MockPricingRuleRepository)
	pub := &recordingPublisher{}
	svc := NewPricingRuleService(repo, pub, zap.NewNop())
	repo.On("FindByID", ctx, tenantID, rule.ID).Return(rule, nil)
	repo.On("Save", ctx, rule).Return(nil)

	_, err = svc.Update(ctx, tenantID, rule.ID, PricingRuleRequest{
		Name: "one product", RuleType: "flat", Value: decimal.NewFromInt(3), ProductID: &newProduct,
	})
	require.NoError(t, err)
	require.Equal(t, []string{catalog.EventTypePricingRuleSaved, catalog.EventTypePricingRuleDeleted}, pub.types())

	saved, _ := catalog.ScopeOf(pub.events[0])
	dropped, _ := catalog.ScopeOf(pub.events[1])
	assert.Equal(t, newProduct, *saved.ProductID)
	assert.Equal(t, oldProduct, *dropped.ProductID)
}

func TestPricingRuleService_Delete(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()
	rule, err := catalog.NewPricingRule(tenantID, "global", catalog.PricingRuleTypePercentage, decimal.NewFromInt(10), 0)
	require.NoError(t, err)

	repo := new(MockPricingRuleRepository)
	pub := &recordingPublisher{}
	svc := NewPricingRuleService(repo, pub, zap.NewNop())
	repo.On("FindByID", ctx, tenantID, rule.ID).Return(rule, nil)
	repo.On("Delete", ctx, tenantID, rule.ID).Return(nil)

	require.NoError(t, svc.Delete(ctx, tenantID, rule.ID))
	assert.Equal(t, []string{catalog.EventTypePricingRuleDeleted}, pub.types())

	missing := uuid.New()
	repo.On("FindByID", ctx, tenantID, missing).Return(nil, catalog.ErrPricingRuleNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, tenantID, missing), catalog.ErrPricingRuleNotFound)
}

// ---------------------------------------------------------------------------
// PricingRuleObserver
// ---------------------------------------------------------------------------

func TestPricingRuleObserver_Scope(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()

	newRule := func(t *testing.T) *catalog.PricingRule {
		r, err := catalog.NewPricingRule(tenantID, "r", catalog.PricingRuleTypeFlat, decimal.NewFromInt(1), 0)
		require.NoError(t, err)
		return r
	}

	t.Run("product scope", func(t *testing.T) {
		productID := uuid.New()
		rule := newRule(t)
		rule.SetScope(nil, nil, &productID)
		products := new(MockProductRepository)
		pub := &recordingPublisher{}

		require.NoError(t, NewPricingRuleObserver(products, pub, zap.NewNop()).Handle(ctx, catalog.NewPricingRuleSavedEvent(rule)))
		require.Len(t, pub.events, 1)
		recompute := pub.events[0].(*catalog.PriceRelevantFieldChangedEvent)
		assert.Equal(t, productID, recompute.ProductID)
		assert.Equal(t, catalog.EntityKindPricingRule, recompute.EntityKind)
		assert.Equal(t, rule.ID, recompute.EntityID)
		products.AssertNotCalled(t, "FindIDsBySupplier", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("supplier scope", func(t *testing.T) {
		supplierID := uuid.New()
		rule := newRule(t)
		rule.SetScope(&supplierID, nil, nil)
		products := new(MockProductRepository)
		products.On("FindIDsBySupplier", ctx, tenantID, supplierID).Return([]uuid.UUID{uuid.New(), uuid.New(), uuid.New()}, nil)
		pub := &recordingPublisher{}

		require.NoError(t, NewPricingRuleObserver(products, pub, zap.NewNop()).Handle(ctx, catalog.NewPricingRuleDeletedEvent(rule)))
		assert.Len(t, pub.events, 3)
	})

	t.Run("unscoped rule covers the tenant", func(t *testing.T) {
		rule := newRule(t)
		products := new(MockProductRepository)
		products.On("FindIDsByTenant", ctx, tenantID).Return([]uuid.UUID{uuid.New()}, nil)
		pub := &recordingPublisher{}

		require.NoError(t, NewPricingRuleObserver(products, pub, zap.NewNop()).Handle(ctx, catalog.NewPricingRuleSavedEvent(rule)))
		assert.Len(t, pub.events, 1)
	})

	t.Run("lookup failure is swallowed", func(t *testing.T) {
		supplierID := uuid.New()
		rule := newRule(t)
		rule.SetScope(&supplierID, nil, nil)
		products := new(MockProductRepository)
		products.On("FindIDsBySupplier", ctx, tenantID, supplierID).Return(nil, errors.New("timeout"))
		pub := &recordingPublisher{}

		assert.NoError(t, NewPricingRuleObserver(products, pub, zap.NewNop()).Handle(ctx, catalog.NewPricingRuleSavedEvent(rule)))
		assert.Empty(t, pub.events)
	})

	t.Run("wrong event", func(t *testing.T) {
		p, err := catalog.NewProduct(tenantID, uuid.New(), "S", "n")
		require.NoError(t, err)
		err = NewPricingRuleObserver(new(MockProductRepository), &recordingPublisher{}, zap.NewNop()).
			Handle(ctx, catalog.NewProductChangedEvent(p, nil))
		assert.Error(t, err)
	})
}

// ---------------------------------------------------------------------------
// PriceRecomputeHandler
// ---------------------------------------------------------------------------

func TestPriceRecomputeHandler_Recompute(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()

	product, err := catalog.NewProduct(tenantID, uuid.New(), "SKU-9", "Gadget")
	require.NoError(t, err)
	product.CostPrice = decimal.NewFromInt(100)

	newRecord := func(t *testing.T) *integration.SyncRecord {
		pair, err := integration.NewConnectionPair(tenantID, product.SupplierID, uuid.New(), integration.DestinationTypeShopify, "pair")
		require.NoError(t, err)
		r, err := integration.NewSyncRecord(pair, product, integration.CatalogStatusInCatalog)
		require.NoError(t, err)
		return r
	}
	marked := newRecord(t)
	plain := newRecord(t)

	destinationID := marked.ConnectionPair.DestinationID
	rule, err := catalog.NewPricingRule(tenantID, "shopify markup", catalog.PricingRuleTypePercentage, decimal.NewFromInt(20), 1)
	require.NoError(t, err)
	rule.SetScope(nil, &destinationID, nil)

	products := new(MockProductRepository)
	rules := new(MockPricingRuleRepository)
	records := new(MockPricedRecordStore)
	requeuer := new(MockRecordRequeuer)

	products.On("FindByID", ctx, product.ID).Return(product, nil)
	rules.On("FindActiveForSupplier", ctx, tenantID, product.SupplierID).Return([]*catalog.PricingRule{rule}, nil)
	records.On("FindActiveByProduct", ctx, product.ID).Return([]*integration.SyncRecord{marked, plain}, nil)
	records.On("UpdateSnapshot", ctx, marked).Return(nil)
	requeuer.On("MarkPending", ctx, marked, ReasonPriceRecomputed).Return(nil)

	handler := NewPriceRecomputeHandler(products, rules, records, requeuer, zap.NewNop())
	changed, err := handler.Recompute(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, changed)
	assert.True(t, marked.FinalPrice.Equal(decimal.RequireFromString("120.00")))
	assert.True(t, plain.FinalPrice.Equal(decimal.NewFromInt(100)), "no rule applies to the other destination")

	records.AssertNotCalled(t, "UpdateSnapshot", ctx, plain)
	requeuer.AssertNotCalled(t, "MarkPending", ctx, plain, mock.Anything)
	requeuer.AssertExpectations(t)

	// Same inputs again change nothing
	changed, err = handler.Recompute(ctx, product.ID)
	require.NoError(t, err)
	assert.Zero(t, changed)
	requeuer.AssertNumberOfCalls(t, "MarkPending", 1)
}

func TestPriceRecomputeHandler_Handle(t *testing.T) {
	ctx := context.Background()
	productID := uuid.New()
	products := new(MockProductRepository)
	products.On("FindByID", ctx, productID).Return(nil, catalog.ErrProductNotFound)

	handler := NewPriceRecomputeHandler(products, new(MockPricingRuleRepository), new(MockPricedRecordStore), new(MockRecordRequeuer), zap.NewNop())
	assert.Equal(t, []string{catalog.EventTypePriceRelevantFieldChanged}, handler.EventTypes())

	event := catalog.NewPriceRelevantFieldChangedEvent(uuid.New(), catalog.EntityKindProduct, productID, productID)
	assert.NoError(t, handler.Handle(ctx, event), "recompute failures are logged")
	products.AssertExpectations(t)
}
