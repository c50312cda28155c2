package destination

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syncbridge/backend/internal/domain/integration"
)

// ---------------------------------------------------------------------------
// Config Tests
// ---------------------------------------------------------------------------

func TestGatewayConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  GatewayConfig
		wantErr error
	}{
		{
			name:   "valid config",
			config: GatewayConfig{Type: integration.DestinationTypeShopify, BaseURL: "https://gw.local/shopify/"},
		},
		{
			name:    "unknown type",
			config:  GatewayConfig{Type: "ebay", BaseURL: "https://gw.local"},
			wantErr: integration.ErrUnsupportedDestination,
		},
		{
			name:    "missing base url",
			config:  GatewayConfig{Type: integration.DestinationTypeAmazon},
			wantErr: ErrMissingBaseURL,
		},
		{
			name:    "relative base url",
			config:  GatewayConfig{Type: integration.DestinationTypeAmazon, BaseURL: "/gateway"},
			wantErr: ErrInvalidBaseURL,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "https://gw.local/shopify", tt.config.BaseURL, "trailing slash is trimmed")
			assert.Equal(t, 30*time.Second, tt.config.Timeout)
		})
	}
}

// ---------------------------------------------------------------------------
// Client Tests
// ---------------------------------------------------------------------------

type capturedRequest struct {
	Method string
	Path   string
	Auth   string
	Body   map[string]any
}

func newGateway(t *testing.T, status int, response string) (*RESTClient, *[]capturedRequest) {
	t.Helper()
	var captured []capturedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := capturedRequest{Method: r.Method, Path: r.URL.EscapedPath(), Auth: r.Header.Get("Authorization")}
		if data, _ := io.ReadAll(r.Body); len(data) > 0 {
			_ = json.Unmarshal(data, &req.Body)
		}
		captured = append(captured, req)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(server.Close)

	client, err := NewRESTClient(GatewayConfig{
		Type:    integration.DestinationTypeWooCommerce,
		BaseURL: server.URL,
		APIKey:  "secret",
	})
	require.NoError(t, err)
	return client, &captured
}

func TestRESTClient_GetProduct(t *testing.T) {
	client, captured := newGateway(t, http.StatusOK, `{"sku":"AB 1","name":"Widget","quantity":4,"price":"9.99"}`)

	product, err := client.GetProduct(context.Background(), "AB 1")
	require.NoError(t, err)
	assert.Equal(t, "Widget", product.Name)
	assert.Equal(t, 4, product.Quantity)
	assert.True(t, product.Price.Equal(decimal.RequireFromString("9.99")))

	require.Len(t, *captured, 1)
	assert.Equal(t, http.MethodGet, (*captured)[0].Method)
	assert.Equal(t, "/products/AB%201", (*captured)[0].Path)
	assert.Equal(t, "Bearer secret", (*captured)[0].Auth)
}

func TestRESTClient_UpdateProduct(t *testing.T) {
	client, captured := newGateway(t, http.StatusOK, `{"success":true,"external_id":"ext-7","message":"updated"}`)

	res, err := client.UpdateProduct(context.Background(), integration.ProductPayload{
		SKU:      "SKU-1",
		Name:     "Widget",
		Price:    decimal.RequireFromString("12.50"),
		Quantity: 3,
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "ext-7", res.ExternalID)
	assert.Equal(t, "updated", res.Message)
	assert.NotEmpty(t, res.Raw)

	req := (*captured)[0]
	assert.Equal(t, http.MethodPut, req.Method)
	assert.Equal(t, "/products/SKU-1", req.Path)
	assert.Equal(t, "Widget", req.Body["name"])
	assert.Equal(t, float64(3), req.Body["quantity"])
}

func TestRESTClient_UpdateProduct_EmptySKU(t *testing.T) {
	client, captured := newGateway(t, http.StatusOK, "")

	_, err := client.UpdateProduct(context.Background(), integration.ProductPayload{})
	assert.ErrorIs(t, err, integration.ErrDestinationRequestFailed)
	assert.Empty(t, *captured)
}

func TestRESTClient_InventoryAndPrice(t *testing.T) {
	client, captured := newGateway(t, http.StatusNoContent, "")
	ctx := context.Background()

	res, err := client.UpdateInventory(ctx, "SKU-2", 0)
	require.NoError(t, err)
	assert.True(t, res.Success, "an empty 2xx body counts as accepted")

	res, err = client.UpdatePrice(ctx, "SKU-2", decimal.RequireFromString("4.20"))
	require.NoError(t, err)
	assert.True(t, res.Success)

	require.Len(t, *captured, 2)
	assert.Equal(t, "/products/SKU-2/inventory", (*captured)[0].Path)
	assert.Equal(t, float64(0), (*captured)[0].Body["quantity"])
	assert.Equal(t, "/products/SKU-2/price", (*captured)[1].Path)
	assert.Equal(t, "4.2", (*captured)[1].Body["price"])
}

func TestRESTClient_ExplicitRejection(t *testing.T) {
	client, _ := newGateway(t, http.StatusOK, `{"success":false,"message":"listing is locked"}`)

	res, err := client.UpdateInventory(context.Background(), "SKU-3", 1)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "listing is locked", res.Message)
}

func TestRESTClient_ErrorStatus(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
		wantMsg string
	}{
		{"client error", http.StatusUnprocessableEntity, `{"message":"price must be positive"}`, integration.ErrDestinationRequestFailed, "HTTP 422: price must be positive"},
		{"rate limited", http.StatusTooManyRequests, "", integration.ErrDestinationRateLimited, "HTTP 429"},
		{"server error", http.StatusBadGateway, "upstream down", integration.ErrDestinationUnavailable, "HTTP 502: upstream down"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newGateway(t, tt.status, tt.body)
			_, err := client.UpdatePrice(context.Background(), "SKU", decimal.NewFromInt(1))
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestRESTClient_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client, err := NewRESTClient(GatewayConfig{Type: integration.DestinationTypeAmazon, BaseURL: url})
	require.NoError(t, err)

	_, err = client.GetProduct(context.Background(), "SKU")
	assert.ErrorIs(t, err, integration.ErrDestinationUnavailable)
}
