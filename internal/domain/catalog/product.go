package catalog

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/syncbridge/backend/internal/domain/shared"
)

// Product field names as reported in change sets.
const (
	FieldSupplierID    = "supplier_id"
	FieldSKU           = "sku"
	FieldName          = "name"
	FieldDescription   = "description"
	FieldUPC           = "upc"
	FieldPartNumber    = "part_number"
	FieldCondition     = "condition"
	FieldCostPrice     = "cost_price"
	FieldRetailPrice   = "retail_price"
	FieldStockQuantity = "stock_quantity"
	FieldWeight        = "weight"
	FieldDimensions    = "dimensions"
	FieldMetadata      = "metadata"
)

// PriceRelevantFields are the product fields that feed final price computation.
var PriceRelevantFields = []string{FieldCostPrice, FieldRetailPrice, FieldSupplierID}

// Product is the supplier-side canonical record. One product may back many
// sync records, one per connection pair it participates in.
type Product struct {
	shared.TenantAggregateRoot
	SupplierID    uuid.UUID
	SKU           string
	Name          string
	Description   string
	UPC           string
	PartNumber    string
	Condition     string
	CostPrice     decimal.Decimal
	RetailPrice   decimal.Decimal
	StockQuantity int
	Weight        decimal.Decimal
	Length        decimal.Decimal
	Width         decimal.Decimal
	Height        decimal.Decimal
	Metadata      string
}

// NewProduct creates a new supplier product
func NewProduct(tenantID, supplierID uuid.UUID, sku, name string) (*Product, error) {
	if supplierID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_SUPPLIER", "Supplier is required")
	}
	if err := validateSKU(sku); err != nil {
		return nil, err
	}
	if err := validateProductName(name); err != nil {
		return nil, err
	}

	return &Product{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		SupplierID:          supplierID,
		SKU:                 strings.TrimSpace(sku),
		Name:                name,
		Condition:           "new",
		CostPrice:           decimal.Zero,
		RetailPrice:         decimal.Zero,
		Weight:              decimal.Zero,
		Length:              decimal.Zero,
		Width:               decimal.Zero,
		Height:              decimal.Zero,
		Metadata:            "{}",
	}, nil
}

// ProductUpdate carries a partial update. Nil fields are left untouched.
type ProductUpdate struct {
	SupplierID    *uuid.UUID
	SKU           *string
	Name          *string
	Description   *string
	UPC           *string
	PartNumber    *string
	Condition     *string
	CostPrice     *decimal.Decimal
	RetailPrice   *decimal.Decimal
	StockQuantity *int
	Weight        *decimal.Decimal
}

// ApplyUpdate applies the update, returns the names of the fields whose value
// actually changed and records a ProductChangedEvent when anything did.
func (p *Product) ApplyUpdate(u ProductUpdate) ([]string, error) {
	if u.SKU != nil {
		if err := validateSKU(*u.SKU); err != nil {
			return nil, err
		}
	}
	if u.Name != nil {
		if err := validateProductName(*u.Name); err != nil {
			return nil, err
		}
	}
	if u.CostPrice != nil && u.CostPrice.IsNegative() {
		return nil, shared.NewDomainError("INVALID_PRICE", "Cost price cannot be negative")
	}
	if u.RetailPrice != nil && u.RetailPrice.IsNegative() {
		return nil, shared.NewDomainError("INVALID_PRICE", "Retail price cannot be negative")
	}
	if u.StockQuantity != nil && *u.StockQuantity < 0 {
		return nil, shared.NewDomainError("INVALID_STOCK", "Stock quantity cannot be negative")
	}

	var changed []string
	setString := func(field string, dst *string, v *string) {
		if v != nil && *dst != *v {
			*dst = *v
			changed = append(changed, field)
		}
	}
	setDecimal := func(field string, dst *decimal.Decimal, v *decimal.Decimal) {
		if v != nil && !dst.Equal(*v) {
			*dst = *v
			changed = append(changed, field)
		}
	}

	if u.SupplierID != nil && p.SupplierID != *u.SupplierID {
		p.SupplierID = *u.SupplierID
		changed = append(changed, FieldSupplierID)
	}
	setString(FieldSKU, &p.SKU, u.SKU)
	setString(FieldName, &p.Name, u.Name)
	setString(FieldDescription, &p.Description, u.Description)
	setString(FieldUPC, &p.UPC, u.UPC)
	setString(FieldPartNumber, &p.PartNumber, u.PartNumber)
	setString(FieldCondition, &p.Condition, u.Condition)
	setDecimal(FieldCostPrice, &p.CostPrice, u.CostPrice)
	setDecimal(FieldRetailPrice, &p.RetailPrice, u.RetailPrice)
	if u.StockQuantity != nil && p.StockQuantity != *u.StockQuantity {
		p.StockQuantity = *u.StockQuantity
		changed = append(changed, FieldStockQuantity)
	}
	setDecimal(FieldWeight, &p.Weight, u.Weight)

	if len(changed) == 0 {
		return nil, nil
	}

	p.UpdatedAt = time.Now()
	p.IncrementVersion()
	p.AddDomainEvent(NewProductChangedEvent(p, changed))

	return changed, nil
}

// HasPriceRelevantChange reports whether any of the changed fields affects pricing.
func HasPriceRelevantChange(changedFields []string) bool {
	for _, f := range changedFields {
		for _, rel := range PriceRelevantFields {
			if f == rel {
				return true
			}
		}
	}
	return false
}

func validateSKU(sku string) error {
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return shared.NewDomainError("INVALID_SKU", "SKU cannot be empty")
	}
	if len(sku) > 100 {
		return shared.NewDomainError("INVALID_SKU", "SKU cannot exceed 100 characters")
	}
	return nil
}

func validateProductName(name string) error {
	if strings.TrimSpace(name) == "" {
		return shared.NewDomainError("INVALID_NAME", "Product name cannot be empty")
	}
	if len(name) > 255 {
		return shared.NewDomainError("INVALID_NAME", "Product name cannot exceed 255 characters")
	}
	return nil
}
