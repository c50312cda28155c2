package handler

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	integrationapp "github.com/syncbridge/backend/internal/application/integration"
)

// Export response headers
const (
	ExportObjectKeyHeader = "X-Export-Object-Key"
	ExportRowCountHeader  = "X-Export-Row-Count"
	ExportTruncatedHeader = "X-Export-Truncated"
)

const maxWindowHours = 24 * 90

// AnalyticsHandler serves the read side of the sync dashboard
type AnalyticsHandler struct {
	BaseHandler
	analytics SyncAnalytics
	pairs     TenantPairs
	encoders  integrationapp.ExportEncoderFactory
	archive   ExportArchive
	maxRows   int
	logger    *zap.Logger
}

// NewAnalyticsHandler creates a new AnalyticsHandler
func NewAnalyticsHandler(analytics SyncAnalytics, pairs TenantPairs, encoders integrationapp.ExportEncoderFactory, logger *zap.Logger) *AnalyticsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnalyticsHandler{
		analytics: analytics,
		pairs:     pairs,
		encoders:  encoders,
		logger:    logger,
	}
}

// WithExportArchive uploads a copy of every export to archive
func (h *AnalyticsHandler) WithExportArchive(archive ExportArchive) *AnalyticsHandler {
	h.archive = archive
	return h
}

// WithExportMaxRows caps export size; zero means unlimited
func (h *AnalyticsHandler) WithExportMaxRows(n int) *AnalyticsHandler {
	h.maxRows = n
	return h
}

// filter builds the tenant-scoped query filter from hours and connection_pair_id
func (h *AnalyticsHandler) filter(c *gin.Context) (integrationapp.AnalyticsFilter, bool) {
	tenantID, ok := h.tenantOrAbort(c)
	if !ok {
		return integrationapp.AnalyticsFilter{}, false
	}
	hours, ok := h.queryInt(c, "hours", integrationapp.DefaultMetricsWindowHours, 1, maxWindowHours)
	if !ok {
		return integrationapp.AnalyticsFilter{}, false
	}
	pairID, ok := h.queryUUID(c, "connection_pair_id")
	if !ok {
		return integrationapp.AnalyticsFilter{}, false
	}
	if pairID != nil {
		if err := h.pairs.PairBelongsToTenant(c.Request.Context(), tenantID, *pairID); err != nil {
			h.HandleError(c, err)
			return integrationapp.AnalyticsFilter{}, false
		}
	}
	return integrationapp.AnalyticsFilter{
		TenantID:         &tenantID,
		ConnectionPairID: pairID,
		Hours:            hours,
	}, true
}

// Metrics returns record totals, the status distribution and sync/error rates over a window
func (h *AnalyticsHandler) Metrics(c *gin.Context) {
	filter, ok := h.filter(c)
	if !ok {
		return
	}
	metrics, err := h.analytics.GetMetrics(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, metrics)
}

// TopErrors lists the most frequent sync errors
func (h *AnalyticsHandler) TopErrors(c *gin.Context) {
	filter, ok := h.filter(c)
	if !ok {
		return
	}
	limit, ok := h.queryInt(c, "limit", integrationapp.DefaultTopErrorsLimit, 1, 100)
	if !ok {
		return
	}
	errs, err := h.analytics.GetTopErrors(c.Request.Context(), filter, limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, errs)
}

// PairPerformance reports sync performance per connection pair
func (h *AnalyticsHandler) PairPerformance(c *gin.Context) {
	filter, ok := h.filter(c)
	if !ok {
		return
	}
	perf, err := h.analytics.GetConnectionPairPerformance(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, perf)
}

// QueueHealth reports backlog health
func (h *AnalyticsHandler) QueueHealth(c *gin.Context) {
	filter, ok := h.filter(c)
	if !ok {
		return
	}
	health, err := h.analytics.GetQueueHealth(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, health)
}

// Export streams records as CSV or XLSX
func (h *AnalyticsHandler) Export(c *gin.Context) {
	filter, ok := h.filter(c)
	if !ok {
		return
	}

	scope := integrationapp.ExportScope(c.DefaultQuery("status", string(integrationapp.ExportScopeAll)))
	switch scope {
	case integrationapp.ExportScopeFailed, integrationapp.ExportScopePending, integrationapp.ExportScopeAll:
	default:
		h.BadRequest(c, "Invalid status: use failed, pending or all")
		return
	}
	format := integrationapp.ExportFormat(c.DefaultQuery("format", string(integrationapp.ExportFormatCSV)))
	if format != integrationapp.ExportFormatCSV && format != integrationapp.ExportFormatXLSX {
		h.BadRequest(c, "Invalid format: use csv or xlsx")
		return
	}
	from, ok := h.queryTime(c, "from")
	if !ok {
		return
	}
	to, ok := h.queryTime(c, "to")
	if !ok {
		return
	}
	if from != nil && to != nil && to.Before(*from) {
		h.BadRequest(c, "Invalid range: to is before from")
		return
	}

	ctx := c.Request.Context()
	var buf bytes.Buffer
	result, err := h.analytics.Export(ctx, integrationapp.ExportRequest{
		TenantID:         filter.TenantID,
		ConnectionPairID: filter.ConnectionPairID,
		Scope:            scope,
		From:             from,
		To:               to,
		Format:           format,
		MaxRows:          h.maxRows,
	}, h.encoders, &buf)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	if h.archive != nil {
		key, err := h.archive.Archive(ctx, filter.TenantID, result.FileName, result.ContentType, buf.Bytes())
		if err != nil {
			h.logger.Warn("failed to archive export",
				zap.String("file_name", result.FileName),
				zap.Error(err),
			)
		} else {
			c.Header(ExportObjectKeyHeader, key)
		}
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.FileName))
	c.Header(ExportRowCountHeader, strconv.Itoa(result.Rows))
	if result.Truncated {
		c.Header(ExportTruncatedHeader, "true")
	}
	c.Data(http.StatusOK, result.ContentType, buf.Bytes())
}
