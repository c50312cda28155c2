package destination

import (
	"fmt"
	"sort"
	"sync"

	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// Registry resolves destination clients by type. It is populated at startup
// and read by every sync worker.
type Registry struct {
	mu      sync.RWMutex
	clients map[integration.DestinationType]integration.DestinationClient
}

// NewRegistry creates a registry holding clients
func NewRegistry(clients ...integration.DestinationClient) *Registry {
	r := &Registry{clients: make(map[integration.DestinationType]integration.DestinationClient)}
	for _, c := range clients {
		r.Register(c)
	}
	return r
}

// Register adds or replaces the client of its destination type
func (r *Registry) Register(client integration.DestinationClient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[client.Type()] = client
}

// Get returns the client for a destination type
func (r *Registry) Get(destinationType integration.DestinationType) (integration.DestinationClient, error) {
	if !destinationType.IsValid() {
		return nil, fmt.Errorf("%w: %q", integration.ErrUnsupportedDestination, destinationType)
	}
	r.mu.RLock()
	client, ok := r.clients[destinationType]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", integration.ErrDestinationNotConfigured, destinationType)
	}
	return client, nil
}

// Types lists the destination types with a registered client
func (r *Registry) Types() []integration.DestinationType {
	r.mu.RLock()
	types := make([]integration.DestinationType, 0, len(r.clients))
	for t := range r.clients {
		types = append(types, t)
	}
	r.mu.RUnlock()
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// BuildRegistry creates a guarded gateway client for every configured
// destination. Unknown destination names fail startup.
func BuildRegistry(destinations map[string]config.DestinationConfig, limiter RateLimiter, logger *zap.Logger) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	registry := NewRegistry()
	for name, cfg := range destinations {
		destinationType := integration.DestinationType(name)
		rest, err := NewRESTClient(GatewayConfigFrom(destinationType, cfg))
		if err != nil {
			return nil, fmt.Errorf("destination %s: %w", name, err)
		}
		registry.Register(NewGuardedClient(rest, limiter, BreakerSettings{
			ConsecutiveFailures: cfg.BreakerFailures,
			Timeout:             cfg.BreakerTimeout,
		}, logger))
		logger.Info("destination client registered",
			zap.String("destination", name),
			zap.String("base_url", cfg.BaseURL),
		)
	}
	if len(destinations) == 0 {
		logger.Warn("no destinations configured, every sync will fail until one is added")
	}
	return registry, nil
}
