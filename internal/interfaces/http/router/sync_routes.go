package router

import (
	"github.com/gin-gonic/gin"

	"github.com/syncbridge/backend/internal/interfaces/http/handler"
)

// SyncHandlers bundles the handlers behind /api/{version}/sync
type SyncHandlers struct {
	Sync      *handler.SyncHandler
	Analytics *handler.AnalyticsHandler
	Records   *handler.RecordHandler
	Catalog   *handler.CatalogHandler
}

// NewSyncRoutes builds the dashboard route group. mw runs before every route,
// typically the tenant middleware.
func NewSyncRoutes(h SyncHandlers, mw ...gin.HandlerFunc) *DomainGroup {
	sync := NewDomainGroup("sync", "/sync").Use(mw...)

	sync.POST("/batch", h.Sync.BatchSync).
		POST("/retry-failed", h.Sync.RetryFailed).
		POST("/reset-failed", h.Sync.ResetFailed).
		GET("/statistics", h.Sync.Statistics)

	sync.GET("/metrics", h.Analytics.Metrics).
		GET("/errors/top", h.Analytics.TopErrors).
		GET("/connection-pairs/performance", h.Analytics.PairPerformance).
		GET("/queue/health", h.Analytics.QueueHealth).
		GET("/export", h.Analytics.Export)

	sync.Group("records", "/records").
		POST("", h.Records.Attach).
		GET("/:id", h.Records.Get).
		POST("/:id/sync", h.Records.Sync).
		PUT("/:id/catalog-status", h.Records.UpdateCatalogStatus)

	sync.Group("products", "/products").
		GET("/:id", h.Catalog.GetProduct).
		PUT("/:id", h.Catalog.UpdateProduct)

	sync.Group("pricing-rules", "/pricing-rules").
		POST("", h.Catalog.CreatePricingRule).
		GET("/:id", h.Catalog.GetPricingRule).
		PUT("/:id", h.Catalog.UpdatePricingRule).
		DELETE("/:id", h.Catalog.DeletePricingRule)

	return sync
}

// NewSystemRoutes builds /api/{version}/system
func NewSystemRoutes(h *handler.SystemHandler) *DomainGroup {
	return NewDomainGroup("system", "/system").GET("/info", h.GetSystemInfo)
}
