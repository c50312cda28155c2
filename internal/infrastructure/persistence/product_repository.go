package persistence

import (
	"context"

	"github.com/google/uuid"
	"github.com/syncbridge/backend/internal/domain/catalog"
	"github.com/syncbridge/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormProductRepository implements catalog.ProductRepository using GORM
type GormProductRepository struct {
	db *gorm.DB
}

// NewGormProductRepository creates a new GormProductRepository
func NewGormProductRepository(db *gorm.DB) *GormProductRepository {
	return &GormProductRepository{db: db}
}

// FindByID finds a product by its ID
func (r *GormProductRepository) FindByID(ctx context.Context, id uuid.UUID) (*catalog.Product, error) {
	var m models.ProductModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, notFound(err, catalog.ErrProductNotFound)
	}
	return m.ToDomain(), nil
}

// FindByIDForTenant finds a product by ID within a tenant
func (r *GormProductRepository) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*catalog.Product, error) {
	var m models.ProductModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&m).Error; err != nil {
		return nil, notFound(err, catalog.ErrProductNotFound)
	}
	return m.ToDomain(), nil
}

// FindByIDs finds multiple products by their IDs
func (r *GormProductRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]catalog.Product, error) {
	if len(ids) == 0 {
		return []catalog.Product{}, nil
	}
	var rows []models.ProductModel
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]catalog.Product, len(rows))
	for i := range rows {
		out[i] = *rows[i].ToDomain()
	}
	return out, nil
}

// FindIDsBySupplier lists the IDs of every product of a supplier
func (r *GormProductRepository) FindIDsBySupplier(ctx context.Context, tenantID, supplierID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).Model(&models.ProductModel{}).
		Where("tenant_id = ? AND supplier_id = ?", tenantID, supplierID).
		Order("id").
		Pluck("id", &ids).Error
	return ids, err
}

// FindIDsByTenant lists the IDs of every product of a tenant
func (r *GormProductRepository) FindIDsByTenant(ctx context.Context, tenantID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).Model(&models.ProductModel{}).
		Where("tenant_id = ?", tenantID).
		Order("id").
		Pluck("id", &ids).Error
	return ids, err
}

// Save creates or updates a product
func (r *GormProductRepository) Save(ctx context.Context, product *catalog.Product) error {
	return r.db.WithContext(ctx).Save(models.ProductModelFromDomain(product)).Error
}

// GormPricingRuleRepository implements catalog.PricingRuleRepository using GORM
type GormPricingRuleRepository struct {
	db *gorm.DB
}

// NewGormPricingRuleRepository creates a new GormPricingRuleRepository
func NewGormPricingRuleRepository(db *gorm.DB) *GormPricingRuleRepository {
	return &GormPricingRuleRepository{db: db}
}

// FindByID finds a rule by ID within a tenant
func (r *GormPricingRuleRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*catalog.PricingRule, error) {
	var m models.PricingRuleModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&m).Error; err != nil {
		return nil, notFound(err, catalog.ErrPricingRuleNotFound)
	}
	return m.ToDomain(), nil
}

// FindActiveForSupplier returns active rules scoped to the supplier or to no supplier
func (r *GormPricingRuleRepository) FindActiveForSupplier(ctx context.Context, tenantID, supplierID uuid.UUID) ([]*catalog.PricingRule, error) {
	var rows []models.PricingRuleModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND is_active = ?", tenantID, true).
		Where("supplier_id = ? OR supplier_id IS NULL", supplierID).
		Order("priority DESC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]*catalog.PricingRule, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, nil
}

// Save creates or updates a rule
func (r *GormPricingRuleRepository) Save(ctx context.Context, rule *catalog.PricingRule) error {
	m := &models.PricingRuleModel{}
	m.FromDomain(rule)
	return r.db.WithContext(ctx).Save(m).Error
}

// Delete removes a rule
func (r *GormPricingRuleRepository) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Delete(&models.PricingRuleModel{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return catalog.ErrPricingRuleNotFound
	}
	return nil
}

var (
	_ catalog.ProductRepository     = (*GormProductRepository)(nil)
	_ catalog.PricingRuleRepository = (*GormPricingRuleRepository)(nil)
)
