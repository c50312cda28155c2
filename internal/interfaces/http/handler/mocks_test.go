package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	catalogapp "github.com/syncbridge/backend/internal/application/catalog"
	integrationapp "github.com/syncbridge/backend/internal/application/integration"
	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/interfaces/http/dto"
	"github.com/syncbridge/backend/internal/interfaces/http/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// doRequest sends a JSON request as tenantID; uuid.Nil sends no tenant header
func doRequest(r http.Handler, method, path, body string, tenantID uuid.UUID) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if tenantID != uuid.Nil {
		req.Header.Set(middleware.TenantHeaderKey, tenantID.String())
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) dto.Response {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

// decodeData decodes the envelope's data field into T
func decodeData[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var resp struct {
		Data T `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Data
}

func uuidPtr(id uuid.UUID) *uuid.UUID { return &id }

// MockSyncRunner implements SyncRunner
type MockSyncRunner struct {
	mock.Mock
}

func (m *MockSyncRunner) PerformBatchSync(ctx context.Context, pairID *uuid.UUID, chunkSize int) (int, error) {
	args := m.Called(ctx, pairID, chunkSize)
	return args.Int(0), args.Error(1)
}

func (m *MockSyncRunner) RetryFailedSyncs(ctx context.Context, pairID *uuid.UUID) (int, error) {
	args := m.Called(ctx, pairID)
	return args.Int(0), args.Error(1)
}

// MockSyncStatusAdmin implements SyncStatusAdmin
type MockSyncStatusAdmin struct {
	mock.Mock
}

func (m *MockSyncStatusAdmin) ResetFailedItems(ctx context.Context, maxAgeMinutes int, pairID *uuid.UUID) (int64, error) {
	args := m.Called(ctx, maxAgeMinutes, pairID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockSyncStatusAdmin) GetSyncStatistics(ctx context.Context, filter integration.SyncRecordFilter) (*integration.SyncStatistics, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.SyncStatistics), args.Error(1)
}

// MockSyncRecords implements SyncRecords
type MockSyncRecords struct {
	mock.Mock
}

func (m *MockSyncRecords) PairBelongsToTenant(ctx context.Context, tenantID, pairID uuid.UUID) error {
	return m.Called(ctx, tenantID, pairID).Error(0)
}

func (m *MockSyncRecords) ActivePairIDs(ctx context.Context, tenantID uuid.UUID) ([]uuid.UUID, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

func (m *MockSyncRecords) AttachProduct(ctx context.Context, tenantID uuid.UUID, req integrationapp.AttachProductRequest) (*integrationapp.SyncRecordResponse, error) {
	args := m.Called(ctx, tenantID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integrationapp.SyncRecordResponse), args.Error(1)
}

func (m *MockSyncRecords) UpdateCatalogStatus(ctx context.Context, tenantID, recordID uuid.UUID, req integrationapp.UpdateCatalogStatusRequest) (*integrationapp.SyncRecordResponse, error) {
	args := m.Called(ctx, tenantID, recordID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integrationapp.SyncRecordResponse), args.Error(1)
}

func (m *MockSyncRecords) GetRecord(ctx context.Context, tenantID, recordID uuid.UUID, logLimit int) (*integrationapp.SyncRecordDetailResponse, error) {
	args := m.Called(ctx, tenantID, recordID, logLimit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integrationapp.SyncRecordDetailResponse), args.Error(1)
}

func (m *MockSyncRecords) SyncRecord(ctx context.Context, tenantID, recordID uuid.UUID) error {
	return m.Called(ctx, tenantID, recordID).Error(0)
}

// MockSyncAnalytics implements SyncAnalytics
type MockSyncAnalytics struct {
	mock.Mock
}

func (m *MockSyncAnalytics) InvalidateCache(ctx context.Context) {
	m.Called(ctx)
}

func (m *MockSyncAnalytics) GetMetrics(ctx context.Context, filter integrationapp.AnalyticsFilter) (*integrationapp.SyncMetrics, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integrationapp.SyncMetrics), args.Error(1)
}

func (m *MockSyncAnalytics) GetTopErrors(ctx context.Context, filter integrationapp.AnalyticsFilter, limit int) ([]integration.ErrorCount, error) {
	args := m.Called(ctx, filter, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]integration.ErrorCount), args.Error(1)
}

func (m *MockSyncAnalytics) GetConnectionPairPerformance(ctx context.Context, filter integrationapp.AnalyticsFilter) ([]integrationapp.PairPerformance, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]integrationapp.PairPerformance), args.Error(1)
}

func (m *MockSyncAnalytics) GetQueueHealth(ctx context.Context, filter integrationapp.AnalyticsFilter) (*integrationapp.QueueHealth, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integrationapp.QueueHealth), args.Error(1)
}

// Export writes "data" through the factory's encoder so tests see real output
func (m *MockSyncAnalytics) Export(ctx context.Context, req integrationapp.ExportRequest, factory integrationapp.ExportEncoderFactory, w io.Writer) (*integrationapp.ExportResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	enc, err := factory(req.Format, w)
	if err != nil {
		return nil, err
	}
	if err := enc.WriteRow([]string{"id", "sku"}); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return args.Get(0).(*integrationapp.ExportResult), args.Error(1)
}

// MockExportArchive implements ExportArchive
type MockExportArchive struct {
	mock.Mock
}

func (m *MockExportArchive) Archive(ctx context.Context, tenantID *uuid.UUID, fileName, contentType string, data []byte) (string, error) {
	args := m.Called(ctx, tenantID, fileName, contentType, data)
	return args.String(0), args.Error(1)
}

// MockProducts implements Products
type MockProducts struct {
	mock.Mock
}

func (m *MockProducts) GetByID(ctx context.Context, tenantID, productID uuid.UUID) (*catalogapp.ProductResponse, error) {
	args := m.Called(ctx, tenantID, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalogapp.ProductResponse), args.Error(1)
}

func (m *MockProducts) Update(ctx context.Context, tenantID, productID uuid.UUID, req catalogapp.UpdateProductRequest) (*catalogapp.ProductResponse, error) {
	args := m.Called(ctx, tenantID, productID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalogapp.ProductResponse), args.Error(1)
}

// MockPricingRules implements PricingRules
type MockPricingRules struct {
	mock.Mock
}

func (m *MockPricingRules) Create(ctx context.Context, tenantID uuid.UUID, req catalogapp.PricingRuleRequest) (*catalogapp.PricingRuleResponse, error) {
	args := m.Called(ctx, tenantID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalogapp.PricingRuleResponse), args.Error(1)
}

func (m *MockPricingRules) Update(ctx context.Context, tenantID, ruleID uuid.UUID, req catalogapp.PricingRuleRequest) (*catalogapp.PricingRuleResponse, error) {
	args := m.Called(ctx, tenantID, ruleID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalogapp.PricingRuleResponse), args.Error(1)
}

func (m *MockPricingRules) Delete(ctx context.Context, tenantID, ruleID uuid.UUID) error {
	return m.Called(ctx, tenantID, ruleID).Error(0)
}

func (m *MockPricingRules) GetByID(ctx context.Context, tenantID, ruleID uuid.UUID) (*catalogapp.PricingRuleResponse, error) {
	args := m.Called(ctx, tenantID, ruleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalogapp.PricingRuleResponse), args.Error(1)
}
