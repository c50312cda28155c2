package catalog

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/syncbridge/backend/internal/domain/catalog"
)

// ---------------------------------------------------------------------------
// Product DTOs
// ---------------------------------------------------------------------------

// CreateProductRequest represents a request to create a supplier product
type CreateProductRequest struct {
	SupplierID    uuid.UUID        `json:"supplier_id" binding:"required"`
	SKU           string           `json:"sku" binding:"required,min=1,max=100"`
	Name          string           `json:"name" binding:"required,min=1,max=255"`
	Description   string           `json:"description"`
	UPC           string           `json:"upc" binding:"max=50"`
	PartNumber    string           `json:"part_number" binding:"max=100"`
	Condition     string           `json:"condition" binding:"omitempty,max=50"`
	CostPrice     *decimal.Decimal `json:"cost_price"`
	RetailPrice   *decimal.Decimal `json:"retail_price"`
	StockQuantity int              `json:"stock_quantity" binding:"min=0"`
	Weight        *decimal.Decimal `json:"weight"`
}

// UpdateProductRequest is a partial product update; omitted fields are left untouched
type UpdateProductRequest struct {
	SupplierID    *uuid.UUID       `json:"supplier_id"`
	SKU           *string          `json:"sku" binding:"omitempty,min=1,max=100"`
	Name          *string          `json:"name" binding:"omitempty,min=1,max=255"`
	Description   *string          `json:"description"`
	UPC           *string          `json:"upc" binding:"omitempty,max=50"`
	PartNumber    *string          `json:"part_number" binding:"omitempty,max=100"`
	Condition     *string          `json:"condition" binding:"omitempty,max=50"`
	CostPrice     *decimal.Decimal `json:"cost_price"`
	RetailPrice   *decimal.Decimal `json:"retail_price"`
	StockQuantity *int             `json:"stock_quantity" binding:"omitempty,min=0"`
	Weight        *decimal.Decimal `json:"weight"`
}

func (r UpdateProductRequest) toUpdate() catalog.ProductUpdate {
	return catalog.ProductUpdate{
		SupplierID:    r.SupplierID,
		SKU:           r.SKU,
		Name:          r.Name,
		Description:   r.Description,
		UPC:           r.UPC,
		PartNumber:    r.PartNumber,
		Condition:     r.Condition,
		CostPrice:     r.CostPrice,
		RetailPrice:   r.RetailPrice,
		StockQuantity: r.StockQuantity,
		Weight:        r.Weight,
	}
}

// ProductResponse represents a product in API responses
type ProductResponse struct {
	ID            uuid.UUID       `json:"id"`
	TenantID      uuid.UUID       `json:"tenant_id"`
	SupplierID    uuid.UUID       `json:"supplier_id"`
	SKU           string          `json:"sku"`
	Name          string          `json:"name"`
	Description   string          `json:"description,omitempty"`
	UPC           string          `json:"upc,omitempty"`
	PartNumber    string          `json:"part_number,omitempty"`
	Condition     string          `json:"condition"`
	CostPrice     decimal.Decimal `json:"cost_price"`
	RetailPrice   decimal.Decimal `json:"retail_price"`
	StockQuantity int             `json:"stock_quantity"`
	Weight        decimal.Decimal `json:"weight"`
	Version       int             `json:"version"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	// ChangedFields lists what an update actually changed
	ChangedFields []string `json:"changed_fields,omitempty"`
}

// ToProductResponse converts a domain Product to ProductResponse
func ToProductResponse(p *catalog.Product) ProductResponse {
	return ProductResponse{
		ID:            p.ID,
		TenantID:      p.TenantID,
		SupplierID:    p.SupplierID,
		SKU:           p.SKU,
		Name:          p.Name,
		Description:   p.Description,
		UPC:           p.UPC,
		PartNumber:    p.PartNumber,
		Condition:     p.Condition,
		CostPrice:     p.CostPrice,
		RetailPrice:   p.RetailPrice,
		StockQuantity: p.StockQuantity,
		Weight:        p.Weight,
		Version:       p.Version,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

// ---------------------------------------------------------------------------
// Pricing rule DTOs
// ---------------------------------------------------------------------------

// PriceTierDTO is one tier of a tiered rule
type PriceTierDTO struct {
	MinCost       decimal.Decimal `json:"min_cost"`
	MarkupPercent decimal.Decimal `json:"markup_percent"`
}

// PricingRuleRequest creates or replaces a pricing rule
type PricingRuleRequest struct {
	Name          string          `json:"name" binding:"required,min=1,max=100"`
	RuleType      string          `json:"rule_type" binding:"required,oneof=percentage flat tiered"`
	Value         decimal.Decimal `json:"value"`
	Tiers         []PriceTierDTO  `json:"tiers"`
	Priority      int             `json:"priority"`
	IsActive      *bool           `json:"is_active"`
	SupplierID    *uuid.UUID      `json:"supplier_id"`
	DestinationID *uuid.UUID      `json:"destination_id"`
	ProductID     *uuid.UUID      `json:"product_id"`
}

func (r PricingRuleRequest) tiers() []catalog.PriceTier {
	out := make([]catalog.PriceTier, len(r.Tiers))
	for i, t := range r.Tiers {
		out[i] = catalog.PriceTier{MinCost: t.MinCost, MarkupPercent: t.MarkupPercent}
	}
	return out
}

// PricingRuleResponse represents a pricing rule in API responses
type PricingRuleResponse struct {
	ID            uuid.UUID       `json:"id"`
	Name          string          `json:"name"`
	RuleType      string          `json:"rule_type"`
	Value         decimal.Decimal `json:"value"`
	Tiers         []PriceTierDTO  `json:"tiers,omitempty"`
	Priority      int             `json:"priority"`
	IsActive      bool            `json:"is_active"`
	SupplierID    *uuid.UUID      `json:"supplier_id,omitempty"`
	DestinationID *uuid.UUID      `json:"destination_id,omitempty"`
	ProductID     *uuid.UUID      `json:"product_id,omitempty"`
	Version       int             `json:"version"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// ToPricingRuleResponse converts a domain PricingRule to PricingRuleResponse
func ToPricingRuleResponse(r *catalog.PricingRule) PricingRuleResponse {
	resp := PricingRuleResponse{
		ID:            r.ID,
		Name:          r.Name,
		RuleType:      string(r.RuleType),
		Value:         r.Value,
		Priority:      r.Priority,
		IsActive:      r.IsActive,
		SupplierID:    r.SupplierID,
		DestinationID: r.DestinationID,
		ProductID:     r.ProductID,
		Version:       r.Version,
		UpdatedAt:     r.UpdatedAt,
	}
	for _, t := range r.Tiers {
		resp.Tiers = append(resp.Tiers, PriceTierDTO{MinCost: t.MinCost, MarkupPercent: t.MarkupPercent})
	}
	return resp
}
