package destination

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/infrastructure/config"
)

func TestBuildRegistry(t *testing.T) {
	registry, err := BuildRegistry(map[string]config.DestinationConfig{
		"shopify": {BaseURL: "https://gw.local/shopify", BreakerFailures: 2},
		"amazon":  {BaseURL: "https://gw.local/amazon"},
	}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []integration.DestinationType{
		integration.DestinationTypeAmazon,
		integration.DestinationTypeShopify,
	}, registry.Types())

	client, err := registry.Get(integration.DestinationTypeShopify)
	require.NoError(t, err)
	_, guarded := client.(*GuardedClient)
	assert.True(t, guarded, "configured clients are rate limited and circuit broken")
}

func TestBuildRegistry_RejectsUnknownDestination(t *testing.T) {
	_, err := BuildRegistry(map[string]config.DestinationConfig{
		"ebay": {BaseURL: "https://gw.local/ebay"},
	}, nil, nil)
	assert.ErrorIs(t, err, integration.ErrUnsupportedDestination)
}

func TestBuildRegistry_Empty(t *testing.T) {
	registry, err := BuildRegistry(nil, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, registry.Types())
}
