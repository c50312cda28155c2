package catalog

import (
	"context"

	"github.com/google/uuid"
)

// ProductReader reads supplier products
type ProductReader interface {
	// FindByID finds a product by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*Product, error)

	// FindByIDForTenant finds a product by ID within a tenant
	FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*Product, error)

	// FindByIDs finds multiple products by their IDs
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]Product, error)

	// FindIDsBySupplier lists the IDs of every product of a supplier
	FindIDsBySupplier(ctx context.Context, tenantID, supplierID uuid.UUID) ([]uuid.UUID, error)

	// FindIDsByTenant lists the IDs of every product of a tenant
	FindIDsByTenant(ctx context.Context, tenantID uuid.UUID) ([]uuid.UUID, error)
}

// ProductWriter persists supplier products
type ProductWriter interface {
	// Save creates or updates a product
	Save(ctx context.Context, product *Product) error
}

// ProductRepository combines product reads and writes
type ProductRepository interface {
	ProductReader
	ProductWriter
}

// PricingRuleRepository persists pricing rules
type PricingRuleRepository interface {
	// FindByID finds a rule by ID within a tenant
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*PricingRule, error)

	// FindActiveForSupplier returns active rules that may apply to the supplier's
	// products: rules scoped to the supplier and rules with no supplier scope
	FindActiveForSupplier(ctx context.Context, tenantID, supplierID uuid.UUID) ([]*PricingRule, error)

	// Save creates or updates a rule
	Save(ctx context.Context, rule *PricingRule) error

	// Delete removes a rule
	Delete(ctx context.Context, tenantID, id uuid.UUID) error
}
