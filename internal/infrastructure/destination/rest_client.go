// Package destination holds the adapters that push sync records to sales
// channel APIs.
package destination

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/infrastructure/config"
)

// maxResponseSize is the maximum accepted response body (10MB)
const maxResponseSize = 10 * 1024 * 1024

// maxErrorBody is how much of an error response ends up in the error message
const maxErrorBody = 512

// Configuration errors
var (
	ErrMissingBaseURL = errors.New("destination: base URL is required")
	ErrInvalidBaseURL = errors.New("destination: base URL must be absolute http(s)")
)

// GatewayConfig configures a RESTClient
type GatewayConfig struct {
	Type    integration.DestinationType
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// GatewayConfigFrom converts the config file section of one destination
func GatewayConfigFrom(destinationType integration.DestinationType, cfg config.DestinationConfig) GatewayConfig {
	return GatewayConfig{
		Type:    destinationType,
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey,
		Timeout: cfg.Timeout,
	}
}

// Validate checks the config and fills defaults
func (c *GatewayConfig) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("%w: %q", integration.ErrUnsupportedDestination, c.Type)
	}
	if c.BaseURL == "" {
		return ErrMissingBaseURL
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %s", ErrInvalidBaseURL, c.BaseURL)
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	return nil
}

// RESTClient talks to a destination through the JSON product gateway:
//
//	GET {base}/products/{sku}
//	PUT {base}/products/{sku}
//	PUT {base}/products/{sku}/inventory
//	PUT {base}/products/{sku}/price
type RESTClient struct {
	config     GatewayConfig
	httpClient *http.Client
}

// NewRESTClient creates a gateway client
func NewRESTClient(cfg GatewayConfig) (*RESTClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &RESTClient{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// WithHTTPClient replaces the HTTP client
func (c *RESTClient) WithHTTPClient(client *http.Client) *RESTClient {
	c.httpClient = client
	return c
}

// Type returns the destination type served by this client
func (c *RESTClient) Type() integration.DestinationType {
	return c.config.Type
}

// GetProduct fetches the destination's copy of a product
func (c *RESTClient) GetProduct(ctx context.Context, sku string) (*integration.DestinationProduct, error) {
	body, err := c.do(ctx, http.MethodGet, productPath(sku), nil)
	if err != nil {
		return nil, err
	}
	var product integration.DestinationProduct
	if err := json.Unmarshal(body, &product); err != nil {
		return nil, fmt.Errorf("%s: decode product %s: %w", c.config.Type, sku, err)
	}
	if product.SKU == "" {
		product.SKU = sku
	}
	return &product, nil
}

// UpdateProduct pushes the full product payload
func (c *RESTClient) UpdateProduct(ctx context.Context, payload integration.ProductPayload) (*integration.OperationResult, error) {
	if payload.SKU == "" {
		return nil, fmt.Errorf("%w: empty sku", integration.ErrDestinationRequestFailed)
	}
	return c.write(ctx, productPath(payload.SKU), payload)
}

// UpdateInventory pushes the available quantity
func (c *RESTClient) UpdateInventory(ctx context.Context, sku string, quantity int) (*integration.OperationResult, error) {
	return c.write(ctx, productPath(sku)+"/inventory", inventoryRequest{SKU: sku, Quantity: quantity})
}

// UpdatePrice pushes the selling price
func (c *RESTClient) UpdatePrice(ctx context.Context, sku string, price decimal.Decimal) (*integration.OperationResult, error) {
	return c.write(ctx, productPath(sku)+"/price", priceRequest{SKU: sku, Price: price})
}

type inventoryRequest struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}

type priceRequest struct {
	SKU   string          `json:"sku"`
	Price decimal.Decimal `json:"price"`
}

// operationResponse distinguishes an absent success flag from false
type operationResponse struct {
	Success    *bool  `json:"success"`
	ExternalID string `json:"external_id"`
	Message    string `json:"message"`
}

func (c *RESTClient) write(ctx context.Context, path string, payload any) (*integration.OperationResult, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%s: encode request: %w", c.config.Type, err)
	}
	body, err := c.do(ctx, http.MethodPut, path, data)
	if err != nil {
		return nil, err
	}

	result := &integration.OperationResult{Success: true, Raw: body}
	if len(bytes.TrimSpace(body)) == 0 {
		return result, nil
	}
	var resp operationResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		// 2xx with a body we do not understand still counts as accepted
		return result, nil
	}
	if resp.Success != nil {
		result.Success = *resp.Success
	}
	result.ExternalID = resp.ExternalID
	result.Message = resp.Message
	return result, nil
}

func (c *RESTClient) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", c.config.Type, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}
	req.Header.Set("X-Destination-Type", string(c.config.Type))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", integration.ErrDestinationUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", c.config.Type, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: HTTP %d%s", integration.ErrDestinationRateLimited, resp.StatusCode, errorDetail(body))
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: HTTP %d%s", integration.ErrDestinationUnavailable, resp.StatusCode, errorDetail(body))
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("%w: HTTP %d%s", integration.ErrDestinationRequestFailed, resp.StatusCode, errorDetail(body))
	}
	return body, nil
}

func productPath(sku string) string {
	return "/products/" + url.PathEscape(sku)
}

func errorDetail(body []byte) string {
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return ""
	}
	var parsed struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(body, &parsed) == nil {
		if parsed.Message != "" {
			msg = parsed.Message
		} else if parsed.Error != "" {
			msg = parsed.Error
		}
	}
	if len(msg) > maxErrorBody {
		msg = msg[:maxErrorBody]
	}
	return ": " + msg
}
