package handler

import (
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	integrationapp "github.com/syncbridge/backend/internal/application/integration"
	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/infrastructure/export"
)

type analyticsFixture struct {
	analytics *MockSyncAnalytics
	records   *MockSyncRecords
	archive   *MockExportArchive
	handler   *AnalyticsHandler
	router    *gin.Engine
}

func newAnalyticsFixture() *analyticsFixture {
	f := &analyticsFixture{
		analytics: new(MockSyncAnalytics),
		records:   new(MockSyncRecords),
		archive:   new(MockExportArchive),
	}
	f.handler = NewAnalyticsHandler(f.analytics, f.records, export.NewEncoder, zap.NewNop())
	f.router = gin.New()
	g := f.router.Group("/api/v1/sync")
	g.GET("/metrics", f.handler.Metrics)
	g.GET("/errors/top", f.handler.TopErrors)
	g.GET("/connection-pairs/performance", f.handler.PairPerformance)
	g.GET("/queue/health", f.handler.QueueHealth)
	g.GET("/export", f.handler.Export)
	return f
}

func TestAnalyticsHandler_Metrics(t *testing.T) {
	tenantID := uuid.New()
	pairID := uuid.New()
	f := newAnalyticsFixture()
	f.records.On("PairBelongsToTenant", mock.Anything, tenantID, pairID).Return(nil)
	f.analytics.On("GetMetrics", mock.Anything, integrationapp.AnalyticsFilter{
		TenantID:         &tenantID,
		ConnectionPairID: &pairID,
		Hours:            6,
	}).Return(&integrationapp.SyncMetrics{TotalRecords: 40, Failed: 4, WindowHours: 6}, nil)

	w := doRequest(f.router, http.MethodGet, "/api/v1/sync/metrics?hours=6&connection_pair_id="+pairID.String(), "", tenantID)

	require.Equal(t, http.StatusOK, w.Code)
	got := decodeData[integrationapp.SyncMetrics](t, w)
	assert.Equal(t, int64(40), got.TotalRecords)
	assert.Equal(t, 6, got.WindowHours)
}

func TestAnalyticsHandler_Filter(t *testing.T) {
	tenantID := uuid.New()

	t.Run("default window is tenant scoped", func(t *testing.T) {
		f := newAnalyticsFixture()
		f.analytics.On("GetQueueHealth", mock.Anything, integrationapp.AnalyticsFilter{
			TenantID: &tenantID,
			Hours:    integrationapp.DefaultMetricsWindowHours,
		}).Return(&integrationapp.QueueHealth{Status: integrationapp.QueueHealthy}, nil)

		w := doRequest(f.router, http.MethodGet, "/api/v1/sync/queue/health", "", tenantID)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, integrationapp.QueueHealthy, decodeData[integrationapp.QueueHealth](t, w).Status)
	})

	t.Run("hours out of range", func(t *testing.T) {
		f := newAnalyticsFixture()
		w := doRequest(f.router, http.MethodGet, "/api/v1/sync/metrics?hours=100000", "", tenantID)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("foreign pair", func(t *testing.T) {
		f := newAnalyticsFixture()
		pairID := uuid.New()
		f.records.On("PairBelongsToTenant", mock.Anything, tenantID, pairID).Return(integration.ErrConnectionPairNotFound)
		w := doRequest(f.router, http.MethodGet, "/api/v1/sync/connection-pairs/performance?connection_pair_id="+pairID.String(), "", tenantID)
		assert.Equal(t, http.StatusNotFound, w.Code)
		f.analytics.AssertNotCalled(t, "GetConnectionPairPerformance", mock.Anything, mock.Anything)
	})
}

func TestAnalyticsHandler_TopErrors(t *testing.T) {
	tenantID := uuid.New()
	f := newAnalyticsFixture()
	f.analytics.On("GetTopErrors", mock.Anything, mock.Anything, 3).
		Return([]integration.ErrorCount{{Message: "HTTP 500", Count: 7}}, nil)

	w := doRequest(f.router, http.MethodGet, "/api/v1/sync/errors/top?limit=3", "", tenantID)

	require.Equal(t, http.StatusOK, w.Code)
	got := decodeData[[]integration.ErrorCount](t, w)
	require.Len(t, got, 1)
	assert.Equal(t, int64(7), got[0].Count)
}

func TestAnalyticsHandler_Export(t *testing.T) {
	tenantID := uuid.New()
	result := &integrationapp.ExportResult{Rows: 1, FileName: "sync-records-failed-20260302-120000.csv", ContentType: "text/csv; charset=utf-8"}

	t.Run("csv with archive copy", func(t *testing.T) {
		f := newAnalyticsFixture()
		f.handler.WithExportArchive(f.archive).WithExportMaxRows(500)
		f.analytics.On("Export", mock.Anything, mock.MatchedBy(func(req integrationapp.ExportRequest) bool {
			return *req.TenantID == tenantID &&
				req.Scope == integrationapp.ExportScopeFailed &&
				req.Format == integrationapp.ExportFormatCSV &&
				req.From != nil && req.To == nil &&
				req.MaxRows == 500
		})).Return(result, nil)
		f.archive.On("Archive", mock.Anything, &tenantID, result.FileName, result.ContentType, mock.Anything).
			Return("exports/"+tenantID.String()+"/"+result.FileName, nil)

		w := doRequest(f.router, http.MethodGet, "/api/v1/sync/export?status=failed&from=2026-03-01", "", tenantID)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, result.ContentType, w.Header().Get("Content-Type"))
		assert.Contains(t, w.Header().Get("Content-Disposition"), result.FileName)
		assert.Equal(t, "exports/"+tenantID.String()+"/"+result.FileName, w.Header().Get(ExportObjectKeyHeader))
		assert.Equal(t, "1", w.Header().Get(ExportRowCountHeader))
		assert.Contains(t, w.Body.String(), "id,sku")
		f.archive.AssertExpectations(t)
	})

	t.Run("archive failure still returns the file", func(t *testing.T) {
		f := newAnalyticsFixture()
		f.handler.WithExportArchive(f.archive)
		truncated := *result
		truncated.Truncated = true
		f.analytics.On("Export", mock.Anything, mock.Anything).Return(&truncated, nil)
		f.archive.On("Archive", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return("", errors.New("access denied"))

		w := doRequest(f.router, http.MethodGet, "/api/v1/sync/export", "", tenantID)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get(ExportObjectKeyHeader))
		assert.Equal(t, "true", w.Header().Get(ExportTruncatedHeader))
	})

	t.Run("invalid parameters", func(t *testing.T) {
		f := newAnalyticsFixture()
		for _, query := range []string{
			"status=archived",
			"format=pdf",
			"from=2026-03-02&to=2026-03-01",
			"to=last-week",
		} {
			w := doRequest(f.router, http.MethodGet, "/api/v1/sync/export?"+query, "", tenantID)
			assert.Equal(t, http.StatusBadRequest, w.Code, query)
		}
		f.analytics.AssertNotCalled(t, "Export", mock.Anything, mock.Anything)
	})
}
