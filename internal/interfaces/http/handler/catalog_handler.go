package handler

import (
	"github.com/gin-gonic/gin"

	catalogapp "github.com/syncbridge/backend/internal/application/catalog"
)

// CatalogHandler handles the product and pricing rule edits whose observers
// feed the sync engine
type CatalogHandler struct {
	BaseHandler
	products Products
	rules    PricingRules
}

// NewCatalogHandler creates a new CatalogHandler
func NewCatalogHandler(products Products, rules PricingRules) *CatalogHandler {
	return &CatalogHandler{products: products, rules: rules}
}

// GetProduct returns a supplier product
func (h *CatalogHandler) GetProduct(c *gin.Context) {
	tenantID, ok := h.tenantOrAbort(c)
	if !ok {
		return
	}
	productID, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	product, err := h.products.GetByID(c.Request.Context(), tenantID, productID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, product)
}

// UpdateProduct applies a partial update. Omitted fields are untouched; changes
// to synced fields queue the product's records for sync.
func (h *CatalogHandler) UpdateProduct(c *gin.Context) {
	tenantID, ok := h.tenantOrAbort(c)
	if !ok {
		return
	}
	productID, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var req catalogapp.UpdateProductRequest
	if !h.bindJSON(c, &req) {
		return
	}

	product, err := h.products.Update(c.Request.Context(), tenantID, productID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, product)
}

func (h *CatalogHandler) GetPricingRule(c *gin.Context) {
	tenantID, ok := h.tenantOrAbort(c)
	if !ok {
		return
	}
	ruleID, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	rule, err := h.rules.GetByID(c.Request.Context(), tenantID, ruleID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, rule)
}

func (h *CatalogHandler) CreatePricingRule(c *gin.Context) {
	tenantID, ok := h.tenantOrAbort(c)
	if !ok {
		return
	}
	var req catalogapp.PricingRuleRequest
	if !h.bindJSON(c, &req) {
		return
	}
	rule, err := h.rules.Create(c.Request.Context(), tenantID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, rule)
}

// UpdatePricingRule replaces a pricing rule
func (h *CatalogHandler) UpdatePricingRule(c *gin.Context) {
	tenantID, ok := h.tenantOrAbort(c)
	if !ok {
		return
	}
	ruleID, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var req catalogapp.PricingRuleRequest
	if !h.bindJSON(c, &req) {
		return
	}
	rule, err := h.rules.Update(c.Request.Context(), tenantID, ruleID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, rule)
}

func (h *CatalogHandler) DeletePricingRule(c *gin.Context) {
	tenantID, ok := h.tenantOrAbort(c)
	if !ok {
		return
	}
	ruleID, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	if err := h.rules.Delete(c.Request.Context(), tenantID, ruleID); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}
