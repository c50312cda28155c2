package persistence

import (
	"context"

	"github.com/google/uuid"
	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormConnectionPairRepository implements integration.ConnectionPairRepository using GORM
type GormConnectionPairRepository struct {
	db *gorm.DB
}

// NewGormConnectionPairRepository creates a new GormConnectionPairRepository
func NewGormConnectionPairRepository(db *gorm.DB) *GormConnectionPairRepository {
	return &GormConnectionPairRepository{db: db}
}

// FindByID finds a pair by ID, including soft-deleted pairs
func (r *GormConnectionPairRepository) FindByID(ctx context.Context, id uuid.UUID) (*integration.ConnectionPair, error) {
	var m models.ConnectionPairModel
	if err := r.db.WithContext(ctx).Unscoped().First(&m, "id = ?", id).Error; err != nil {
		return nil, notFound(err, integration.ErrConnectionPairNotFound)
	}
	return m.ToDomain(), nil
}

// FindActive lists active, non-deleted pairs, optionally for one tenant
func (r *GormConnectionPairRepository) FindActive(ctx context.Context, tenantID *uuid.UUID) ([]*integration.ConnectionPair, error) {
	query := r.db.WithContext(ctx).Where("is_active = ?", true)
	if tenantID != nil {
		query = query.Where("tenant_id = ?", *tenantID)
	}
	var rows []models.ConnectionPairModel
	if err := query.Order("name ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*integration.ConnectionPair, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, nil
}

// Save creates or updates a pair
func (r *GormConnectionPairRepository) Save(ctx context.Context, pair *integration.ConnectionPair) error {
	m := &models.ConnectionPairModel{}
	m.FromDomain(pair)
	return r.db.WithContext(ctx).Unscoped().Save(m).Error
}

// GormCompanyRepository implements integration.CompanyRepository using GORM
type GormCompanyRepository struct {
	db *gorm.DB
}

// NewGormCompanyRepository creates a new GormCompanyRepository
func NewGormCompanyRepository(db *gorm.DB) *GormCompanyRepository {
	return &GormCompanyRepository{db: db}
}

// FindByID finds a company by ID
func (r *GormCompanyRepository) FindByID(ctx context.Context, id uuid.UUID) (*integration.Company, error) {
	var m models.CompanyModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, notFound(err, integration.ErrCompanyNotFound)
	}
	return m.ToDomain(), nil
}

// Save creates or updates a company
func (r *GormCompanyRepository) Save(ctx context.Context, company *integration.Company) error {
	m := &models.CompanyModel{}
	m.FromDomain(company)
	return r.db.WithContext(ctx).Save(m).Error
}

var (
	_ integration.ConnectionPairRepository = (*GormConnectionPairRepository)(nil)
	_ integration.CompanyRepository        = (*GormCompanyRepository)(nil)
)
