package catalog

import "github.com/syncbridge/backend/internal/domain/shared"

// Catalog errors
var (
	ErrProductNotFound     = shared.NewDomainError("PRODUCT_NOT_FOUND", "Product not found")
	ErrPricingRuleNotFound = shared.NewDomainError("PRICING_RULE_NOT_FOUND", "Pricing rule not found")
)
