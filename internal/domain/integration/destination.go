package integration

import (
	"context"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// DestinationType
// ---------------------------------------------------------------------------

// DestinationType identifies the sales channel a connection pair publishes to
type DestinationType string

const (
	DestinationTypeAmazon      DestinationType = "amazon"
	DestinationTypePrestaShop  DestinationType = "prestashop"
	DestinationTypeShopify     DestinationType = "shopify"
	DestinationTypeWooCommerce DestinationType = "woocommerce"
)

// AllDestinationTypes returns every supported destination type
func AllDestinationTypes() []DestinationType {
	return []DestinationType{
		DestinationTypeAmazon,
		DestinationTypePrestaShop,
		DestinationTypeShopify,
		DestinationTypeWooCommerce,
	}
}

// IsValid checks if the destination type is supported
func (t DestinationType) IsValid() bool {
	switch t {
	case DestinationTypeAmazon, DestinationTypePrestaShop, DestinationTypeShopify, DestinationTypeWooCommerce:
		return true
	}
	return false
}

// String returns the string representation
func (t DestinationType) String() string {
	return string(t)
}

// DisplayName returns a human-readable name
func (t DestinationType) DisplayName() string {
	switch t {
	case DestinationTypeAmazon:
		return "Amazon"
	case DestinationTypePrestaShop:
		return "PrestaShop"
	case DestinationTypeShopify:
		return "Shopify"
	case DestinationTypeWooCommerce:
		return "WooCommerce"
	default:
		return string(t)
	}
}

// ---------------------------------------------------------------------------
// Destination operations
// ---------------------------------------------------------------------------

// Operation names a destination API call; rate limits are configured per operation
type Operation string

const (
	OperationGetProduct      Operation = "get_product"
	OperationUpdateProduct   Operation = "update_product"
	OperationUpdateInventory Operation = "update_inventory"
	OperationUpdatePrice     Operation = "update_price"
)

// DestinationProduct is the destination's view of one product
type DestinationProduct struct {
	SKU      string          `json:"sku"`
	Name     string          `json:"name"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Extra    map[string]any  `json:"extra,omitempty"`
}

// ProductPayload is the full product update sent to a destination
type ProductPayload struct {
	SKU         string          `json:"sku"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	UPC         string          `json:"upc,omitempty"`
	PartNumber  string          `json:"part_number,omitempty"`
	Condition   string          `json:"condition,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
	Weight      decimal.Decimal `json:"weight"`
}

// OperationResult is what a destination reports back for a write
type OperationResult struct {
	Success    bool   `json:"success"`
	ExternalID string `json:"external_id,omitempty"`
	Message    string `json:"message,omitempty"`
	// Raw holds the response body for the audit log
	Raw []byte `json:"-"`
}

// ---------------------------------------------------------------------------
// DestinationClient Port
// ---------------------------------------------------------------------------

// DestinationClient is the port for one marketplace API. Implementations own
// authentication and wire protocol; every error is treated by the engine as
// "operation failed" and its message is stored verbatim.
type DestinationClient interface {
	// Type returns the destination type served by this client
	Type() DestinationType

	// GetProduct fetches the destination's copy of a product
	GetProduct(ctx context.Context, sku string) (*DestinationProduct, error)

	// UpdateProduct pushes the full product payload
	UpdateProduct(ctx context.Context, payload ProductPayload) (*OperationResult, error)

	// UpdateInventory pushes the available quantity
	UpdateInventory(ctx context.Context, sku string, quantity int) (*OperationResult, error)

	// UpdatePrice pushes the selling price
	UpdatePrice(ctx context.Context, sku string, price decimal.Decimal) (*OperationResult, error)
}

// DestinationClientRegistry resolves clients by destination type
type DestinationClientRegistry interface {
	// Get returns the client for a destination type
	// Returns ErrUnsupportedDestination for unknown types and
	// ErrDestinationNotConfigured for valid types without a client
	Get(destinationType DestinationType) (DestinationClient, error)

	// Types lists the destination types with a registered client
	Types() []DestinationType
}
