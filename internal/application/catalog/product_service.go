package catalog

import (
	"context"

	"github.com/google/uuid"
	"github.com/syncbridge/backend/internal/domain/catalog"
	"github.com/syncbridge/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// ProductService handles supplier product writes. Saved changes are announced
// as ProductChanged events so the sync observers can react.
type ProductService struct {
	productRepo catalog.ProductRepository
	publisher   shared.EventPublisher
	logger      *zap.Logger
}

// NewProductService creates a new ProductService
func NewProductService(productRepo catalog.ProductRepository, publisher shared.EventPublisher, logger *zap.Logger) *ProductService {
	return &ProductService{
		productRepo: productRepo,
		publisher:   publisher,
		logger:      logger,
	}
}

// Create creates a new product
func (s *ProductService) Create(ctx context.Context, tenantID uuid.UUID, req CreateProductRequest) (*ProductResponse, error) {
	product, err := catalog.NewProduct(tenantID, req.SupplierID, req.SKU, req.Name)
	if err != nil {
		return nil, err
	}

	// Remaining fields go through ApplyUpdate so they share its validation
	update := catalog.ProductUpdate{
		Description:   &req.Description,
		UPC:           &req.UPC,
		PartNumber:    &req.PartNumber,
		CostPrice:     req.CostPrice,
		RetailPrice:   req.RetailPrice,
		StockQuantity: &req.StockQuantity,
		Weight:        req.Weight,
	}
	if req.Condition != "" {
		update.Condition = &req.Condition
	}
	if _, err := product.ApplyUpdate(update); err != nil {
		return nil, err
	}
	// A new product has no sync records yet
	product.ClearDomainEvents()

	if err := s.productRepo.Save(ctx, product); err != nil {
		return nil, err
	}

	s.logger.Info("product created",
		zap.String("tenant_id", tenantID.String()),
		zap.String("product_id", product.ID.String()),
		zap.String("sku", product.SKU),
	)
	response := ToProductResponse(product)
	return &response, nil
}

// GetByID retrieves a product by ID
func (s *ProductService) GetByID(ctx context.Context, tenantID, productID uuid.UUID) (*ProductResponse, error) {
	product, err := s.productRepo.FindByIDForTenant(ctx, tenantID, productID)
	if err != nil {
		return nil, err
	}
	response := ToProductResponse(product)
	return &response, nil
}

// Update applies a partial update. Nothing is saved or published when no
// field value actually changed.
func (s *ProductService) Update(ctx context.Context, tenantID, productID uuid.UUID, req UpdateProductRequest) (*ProductResponse, error) {
	product, err := s.productRepo.FindByIDForTenant(ctx, tenantID, productID)
	if err != nil {
		return nil, err
	}

	changed, err := product.ApplyUpdate(req.toUpdate())
	if err != nil {
		return nil, err
	}
	if len(changed) > 0 {
		if err := s.productRepo.Save(ctx, product); err != nil {
			return nil, err
		}
		s.logger.Info("product updated",
			zap.String("product_id", product.ID.String()),
			zap.Strings("changed_fields", changed),
		)
		s.publish(ctx, product)
	}

	response := ToProductResponse(product)
	response.ChangedFields = changed
	return &response, nil
}

func (s *ProductService) publish(ctx context.Context, product *catalog.Product) {
	events := product.PullDomainEvents()
	if s.publisher == nil || len(events) == 0 {
		return
	}
	if err := s.publisher.Publish(ctx, events...); err != nil {
		// The product is saved; observers catch up on the next change or batch sweep
		s.logger.Error("failed to publish product events",
			zap.String("product_id", product.ID.String()),
			zap.Error(err),
		)
	}
}
