package catalog

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/syncbridge/backend/internal/domain/shared"
)

// PricingRuleType is the markup algorithm of a rule
type PricingRuleType string

const (
	PricingRuleTypePercentage PricingRuleType = "percentage"
	PricingRuleTypeFlat       PricingRuleType = "flat"
	PricingRuleTypeTiered     PricingRuleType = "tiered"
)

// IsValid checks if the rule type is supported
func (t PricingRuleType) IsValid() bool {
	switch t {
	case PricingRuleTypePercentage, PricingRuleTypeFlat, PricingRuleTypeTiered:
		return true
	}
	return false
}

// PriceTier applies MarkupPercent to costs at or above MinCost
type PriceTier struct {
	MinCost       decimal.Decimal `json:"min_cost"`
	MarkupPercent decimal.Decimal `json:"markup_percent"`
}

var hundred = decimal.NewFromInt(100)

// PricingRule is a markup rule scoped to any combination of supplier,
// destination and product. A nil scope matches everything.
type PricingRule struct {
	shared.TenantAggregateRoot
	Name          string
	SupplierID    *uuid.UUID
	DestinationID *uuid.UUID
	ProductID     *uuid.UUID
	RuleType      PricingRuleType
	Value         decimal.Decimal
	Tiers         []PriceTier
	Priority      int
	IsActive      bool
}

// NewPricingRule creates an active pricing rule
func NewPricingRule(tenantID uuid.UUID, name string, ruleType PricingRuleType, value decimal.Decimal, priority int) (*PricingRule, error) {
	if strings.TrimSpace(name) == "" {
		return nil, shared.NewDomainError("INVALID_NAME", "Pricing rule name cannot be empty")
	}
	if !ruleType.IsValid() {
		return nil, shared.NewDomainError("INVALID_RULE_TYPE", "Unsupported pricing rule type")
	}
	return &PricingRule{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		Name:                name,
		RuleType:            ruleType,
		Value:               value,
		Priority:            priority,
		IsActive:            true,
	}, nil
}

// SetScope sets the supplier, destination and product scope
func (r *PricingRule) SetScope(supplierID, destinationID, productID *uuid.UUID) {
	r.SupplierID = supplierID
	r.DestinationID = destinationID
	r.ProductID = productID
	r.UpdatedAt = time.Now()
}

// SetTiers replaces the tiers, sorted by MinCost ascending
func (r *PricingRule) SetTiers(tiers []PriceTier) error {
	sorted := make([]PriceTier, len(tiers))
	copy(sorted, tiers)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].MinCost.LessThan(sorted[j].MinCost)
	})
	for _, t := range sorted {
		if t.MinCost.IsNegative() {
			return shared.NewDomainError("INVALID_TIER", "Tier minimum cost cannot be negative")
		}
	}
	r.Tiers = sorted
	r.UpdatedAt = time.Now()
	return nil
}

// MarkSaved records a PricingRuleSavedEvent
func (r *PricingRule) MarkSaved() {
	r.IncrementVersion()
	r.AddDomainEvent(NewPricingRuleSavedEvent(r))
}

// MarkDeleted records a PricingRuleDeletedEvent
func (r *PricingRule) MarkDeleted() {
	r.AddDomainEvent(NewPricingRuleDeletedEvent(r))
}

// AppliesTo reports whether the rule scope matches the given references
func (r *PricingRule) AppliesTo(supplierID, destinationID, productID uuid.UUID) bool {
	if !r.IsActive {
		return false
	}
	if r.SupplierID != nil && *r.SupplierID != supplierID {
		return false
	}
	if r.DestinationID != nil && *r.DestinationID != destinationID {
		return false
	}
	if r.ProductID != nil && *r.ProductID != productID {
		return false
	}
	return true
}

// Specificity counts the scoped references; more specific rules win priority ties
func (r *PricingRule) Specificity() int {
	n := 0
	for _, ref := range []*uuid.UUID{r.SupplierID, r.DestinationID, r.ProductID} {
		if ref != nil {
			n++
		}
	}
	return n
}

// Apply computes the final price for a cost, rounded to cents
func (r *PricingRule) Apply(cost decimal.Decimal) decimal.Decimal {
	var price decimal.Decimal
	switch r.RuleType {
	case PricingRuleTypePercentage:
		price = cost.Mul(decimal.NewFromInt(1).Add(r.Value.Div(hundred)))
	case PricingRuleTypeFlat:
		price = cost.Add(r.Value)
	case PricingRuleTypeTiered:
		price = cost
		for i := len(r.Tiers) - 1; i >= 0; i-- {
			if cost.GreaterThanOrEqual(r.Tiers[i].MinCost) {
				price = cost.Mul(decimal.NewFromInt(1).Add(r.Tiers[i].MarkupPercent.Div(hundred)))
				break
			}
		}
	default:
		price = cost
	}
	if price.IsNegative() {
		price = decimal.Zero
	}
	return price.Round(2)
}

// SelectPricingRule picks the rule that governs the given references:
// highest priority first, then most specific scope, then oldest rule.
func SelectPricingRule(rules []*PricingRule, supplierID, destinationID, productID uuid.UUID) *PricingRule {
	var best *PricingRule
	for _, r := range rules {
		if !r.AppliesTo(supplierID, destinationID, productID) {
			continue
		}
		if best == nil || ruleOutranks(r, best) {
			best = r
		}
	}
	return best
}

func ruleOutranks(a, b *PricingRule) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if a.Specificity() != b.Specificity() {
		return a.Specificity() > b.Specificity()
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

// ApplyPricingRules returns the final price for cost under the governing rule.
// Without an applicable rule the cost is returned unchanged.
func ApplyPricingRules(cost decimal.Decimal, rules []*PricingRule, supplierID, destinationID, productID uuid.UUID) (decimal.Decimal, *PricingRule) {
	rule := SelectPricingRule(rules, supplierID, destinationID, productID)
	if rule == nil {
		return cost.Round(2), nil
	}
	return rule.Apply(cost), rule
}
