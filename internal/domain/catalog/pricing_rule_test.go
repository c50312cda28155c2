package catalog

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustRule(t *testing.T, ruleType PricingRuleType, value string, priority int) *PricingRule {
	t.Helper()
	r, err := NewPricingRule(uuid.New(), "rule", ruleType, decimal.RequireFromString(value), priority)
	require.NoError(t, err)
	return r
}

func TestPricingRule_Apply(t *testing.T) {
	cost := decimal.RequireFromString("10.00")

	t.Run("Percentage markup", func(t *testing.T) {
		r := mustRule(t, PricingRuleTypePercentage, "25", 0)
		assert.Equal(t, "12.5", r.Apply(cost).String())
	})

	t.Run("Flat markup", func(t *testing.T) {
		r := mustRule(t, PricingRuleTypeFlat, "3.99", 0)
		assert.Equal(t, "13.99", r.Apply(cost).String())
	})

	t.Run("Negative flat result is clamped", func(t *testing.T) {
		r := mustRule(t, PricingRuleTypeFlat, "-20", 0)
		assert.True(t, r.Apply(cost).IsZero())
	})

	t.Run("Tiered picks highest matching tier", func(t *testing.T) {
		r := mustRule(t, PricingRuleTypeTiered, "0", 0)
		require.NoError(t, r.SetTiers([]PriceTier{
			{MinCost: decimal.NewFromInt(50), MarkupPercent: decimal.NewFromInt(10)},
			{MinCost: decimal.Zero, MarkupPercent: decimal.NewFromInt(40)},
			{MinCost: decimal.NewFromInt(5), MarkupPercent: decimal.NewFromInt(20)},
		}))
		assert.Equal(t, "12", r.Apply(cost).String())
		assert.Equal(t, "3.5", r.Apply(decimal.NewFromFloat(2.5)).String())
		assert.Equal(t, "110", r.Apply(decimal.NewFromInt(100)).String())
	})
}

func TestNewPricingRule_Validation(t *testing.T) {
	_, err := NewPricingRule(uuid.New(), "", PricingRuleTypeFlat, decimal.Zero, 0)
	assert.Error(t, err)

	_, err = NewPricingRule(uuid.New(), "x", PricingRuleType("bogus"), decimal.Zero, 0)
	assert.Error(t, err)
}

func TestSelectPricingRule(t *testing.T) {
	supplier := uuid.New()
	destination := uuid.New()
	product := uuid.New()
	otherSupplier := uuid.New()

	t.Run("Scope filters rules", func(t *testing.T) {
		r := mustRule(t, PricingRuleTypeFlat, "1", 10)
		r.SetScope(&otherSupplier, nil, nil)
		assert.Nil(t, SelectPricingRule([]*PricingRule{r}, supplier, destination, product))
	})

	t.Run("Inactive rules are ignored", func(t *testing.T) {
		r := mustRule(t, PricingRuleTypeFlat, "1", 10)
		r.IsActive = false
		assert.Nil(t, SelectPricingRule([]*PricingRule{r}, supplier, destination, product))
	})

	t.Run("Priority wins over specificity", func(t *testing.T) {
		broad := mustRule(t, PricingRuleTypeFlat, "1", 5)
		narrow := mustRule(t, PricingRuleTypeFlat, "2", 1)
		narrow.SetScope(&supplier, &destination, &product)
		got := SelectPricingRule([]*PricingRule{narrow, broad}, supplier, destination, product)
		assert.Same(t, broad, got)
	})

	t.Run("Specificity breaks priority ties", func(t *testing.T) {
		broad := mustRule(t, PricingRuleTypeFlat, "1", 5)
		narrow := mustRule(t, PricingRuleTypeFlat, "2", 5)
		narrow.SetScope(&supplier, nil, &product)
		got := SelectPricingRule([]*PricingRule{broad, narrow}, supplier, destination, product)
		assert.Same(t, narrow, got)
	})

	t.Run("Older rule breaks full ties", func(t *testing.T) {
		first := mustRule(t, PricingRuleTypeFlat, "1", 5)
		second := mustRule(t, PricingRuleTypeFlat, "2", 5)
		first.CreatedAt = time.Now().Add(-time.Hour)
		got := SelectPricingRule([]*PricingRule{second, first}, supplier, destination, product)
		assert.Same(t, first, got)
	})
}

func TestApplyPricingRules_NoRuleKeepsCost(t *testing.T) {
	price, rule := ApplyPricingRules(decimal.RequireFromString("9.999"), nil, uuid.New(), uuid.New(), uuid.New())
	assert.Nil(t, rule)
	assert.Equal(t, "10", price.String())
}

func TestScopeOf(t *testing.T) {
	supplier := uuid.New()
	r := mustRule(t, PricingRuleTypeFlat, "1", 0)
	r.SetScope(&supplier, nil, nil)

	scope, ok := ScopeOf(NewPricingRuleDeletedEvent(r))
	require.True(t, ok)
	assert.Equal(t, r.ID, scope.RuleID)
	assert.Equal(t, &supplier, scope.SupplierID)

	_, ok = ScopeOf(NewPriceRelevantFieldChangedEvent(uuid.New(), EntityKindProduct, uuid.New(), uuid.New()))
	assert.False(t, ok)
}
