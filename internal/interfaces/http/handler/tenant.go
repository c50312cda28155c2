package handler

import (
	"context"

	"github.com/google/uuid"

	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/interfaces/http/middleware"
)

// CompanyTenantValidator accepts tenant IDs that belong to a known company
type CompanyTenantValidator struct {
	companies integration.CompanyRepository
}

// NewCompanyTenantValidator creates a tenant validator backed by the company table
func NewCompanyTenantValidator(companies integration.CompanyRepository) *CompanyTenantValidator {
	return &CompanyTenantValidator{companies: companies}
}

// ValidateTenant implements middleware.TenantValidator
func (v *CompanyTenantValidator) ValidateTenant(ctx context.Context, tenantID uuid.UUID) error {
	_, err := v.companies.FindByID(ctx, tenantID)
	return err
}

var _ middleware.TenantValidator = (*CompanyTenantValidator)(nil)
