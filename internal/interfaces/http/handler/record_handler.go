package handler

import (
	"github.com/gin-gonic/gin"

	integrationapp "github.com/syncbridge/backend/internal/application/integration"
)

const defaultRecordLogLimit = 20

// RecordHandler handles single sync record endpoints
type RecordHandler struct {
	BaseHandler
	records   SyncRecords
	analytics CacheInvalidator
}

// NewRecordHandler creates a new RecordHandler. analytics may be nil.
func NewRecordHandler(records SyncRecords, analytics CacheInvalidator) *RecordHandler {
	return &RecordHandler{records: records, analytics: analytics}
}

func (h *RecordHandler) invalidate(c *gin.Context) {
	if h.analytics != nil {
		h.analytics.InvalidateCache(c.Request.Context())
	}
}

// Get returns the record with its next retry time and recent log entries
func (h *RecordHandler) Get(c *gin.Context) {
	tenantID, ok := h.tenantOrAbort(c)
	if !ok {
		return
	}
	recordID, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	logLimit, ok := h.queryInt(c, "logs", defaultRecordLogLimit, 0, 200)
	if !ok {
		return
	}

	record, err := h.records.GetRecord(c.Request.Context(), tenantID, recordID, logLimit)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, record)
}

// Attach creates the pending sync record for the product on the pair
func (h *RecordHandler) Attach(c *gin.Context) {
	tenantID, ok := h.tenantOrAbort(c)
	if !ok {
		return
	}
	var req integrationapp.AttachProductRequest
	if !h.bindJSON(c, &req) {
		return
	}

	record, err := h.records.AttachProduct(c.Request.Context(), tenantID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.invalidate(c)
	h.Created(c, record)
}

// Sync dispatches one record now
func (h *RecordHandler) Sync(c *gin.Context) {
	tenantID, ok := h.tenantOrAbort(c)
	if !ok {
		return
	}
	recordID, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	if err := h.records.SyncRecord(c.Request.Context(), tenantID, recordID); err != nil {
		h.HandleError(c, err)
		return
	}
	h.invalidate(c)
	h.Accepted(c, integrationapp.CountResponse{Count: 1, Message: "Sync job queued"})
}

func (h *RecordHandler) UpdateCatalogStatus(c *gin.Context) {
	tenantID, ok := h.tenantOrAbort(c)
	if !ok {
		return
	}
	recordID, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var req integrationapp.UpdateCatalogStatusRequest
	if !h.bindJSON(c, &req) {
		return
	}

	record, err := h.records.UpdateCatalogStatus(c.Request.Context(), tenantID, recordID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.invalidate(c)
	h.Success(c, record)
}
