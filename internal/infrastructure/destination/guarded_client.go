package destination

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// RateLimiter blocks until a destination operation may be called
type RateLimiter interface {
	Wait(ctx context.Context, destination, operation string) error
}

// BreakerSettings tunes the circuit breaker of one destination
type BreakerSettings struct {
	// ConsecutiveFailures opens the circuit
	ConsecutiveFailures uint32
	// Timeout is how long the circuit stays open before probing again
	Timeout time.Duration
	// MaxRequests is the number of probes allowed while half-open
	MaxRequests uint32
	// Interval clears the closed-state counts; zero keeps them until a state change
	Interval time.Duration
}

// DefaultBreakerSettings returns the breaker defaults
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		ConsecutiveFailures: 5,
		Timeout:             time.Minute,
		MaxRequests:         1,
	}
}

// GuardedClient decorates a destination client with the rate limiter and a
// circuit breaker. Rejections by the destination (4xx) do not count against
// the breaker; unreachable or failing destinations (5xx, transport errors) do.
type GuardedClient struct {
	next    integration.DestinationClient
	limiter RateLimiter
	breaker *gobreaker.CircuitBreaker[any]
	name    string
	logger  *zap.Logger
}

// NewGuardedClient wraps next. limiter may be nil.
func NewGuardedClient(next integration.DestinationClient, limiter RateLimiter, settings BreakerSettings, logger *zap.Logger) *GuardedClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := DefaultBreakerSettings()
	if settings.ConsecutiveFailures == 0 {
		settings.ConsecutiveFailures = defaults.ConsecutiveFailures
	}
	if settings.Timeout <= 0 {
		settings.Timeout = defaults.Timeout
	}
	if settings.MaxRequests == 0 {
		settings.MaxRequests = defaults.MaxRequests
	}

	name := string(next.Type())
	log := logger.With(zap.String("destination", name))
	telemetry.CircuitBreakerState.WithLabelValues(name).Set(0)

	breaker := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, integration.ErrDestinationRequestFailed)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("destination circuit breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			telemetry.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
			telemetry.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})

	return &GuardedClient{
		next:    next,
		limiter: limiter,
		breaker: breaker,
		name:    name,
		logger:  log,
	}
}

// Type returns the destination type served by the wrapped client
func (g *GuardedClient) Type() integration.DestinationType {
	return g.next.Type()
}

// State returns the breaker state
func (g *GuardedClient) State() gobreaker.State {
	return g.breaker.State()
}

// GetProduct fetches the destination's copy of a product
func (g *GuardedClient) GetProduct(ctx context.Context, sku string) (*integration.DestinationProduct, error) {
	return call[*integration.DestinationProduct](ctx, g, integration.OperationGetProduct, func() (any, error) {
		return g.next.GetProduct(ctx, sku)
	})
}

// UpdateProduct pushes the full product payload
func (g *GuardedClient) UpdateProduct(ctx context.Context, payload integration.ProductPayload) (*integration.OperationResult, error) {
	return call[*integration.OperationResult](ctx, g, integration.OperationUpdateProduct, func() (any, error) {
		return g.next.UpdateProduct(ctx, payload)
	})
}

// UpdateInventory pushes the available quantity
func (g *GuardedClient) UpdateInventory(ctx context.Context, sku string, quantity int) (*integration.OperationResult, error) {
	return call[*integration.OperationResult](ctx, g, integration.OperationUpdateInventory, func() (any, error) {
		return g.next.UpdateInventory(ctx, sku, quantity)
	})
}

// UpdatePrice pushes the selling price
func (g *GuardedClient) UpdatePrice(ctx context.Context, sku string, price decimal.Decimal) (*integration.OperationResult, error) {
	return call[*integration.OperationResult](ctx, g, integration.OperationUpdatePrice, func() (any, error) {
		return g.next.UpdatePrice(ctx, sku, price)
	})
}

// call waits for a token, then runs fn through the breaker
func call[T any](ctx context.Context, g *GuardedClient, op integration.Operation, fn func() (any, error)) (T, error) {
	var zero T
	operation := string(op)

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx, g.name, operation); err != nil {
			return zero, fmt.Errorf("wait for %s %s rate limit: %w", g.name, operation, err)
		}
	}

	start := time.Now()
	result, err := g.breaker.Execute(fn)
	telemetry.DestinationLatency.WithLabelValues(g.name, operation).Observe(time.Since(start).Seconds())

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			telemetry.DestinationRequests.WithLabelValues(g.name, operation, "rejected").Inc()
			return zero, fmt.Errorf("%w: %s circuit breaker is %s", integration.ErrDestinationUnavailable, g.name, g.breaker.State())
		}
		telemetry.DestinationRequests.WithLabelValues(g.name, operation, "failure").Inc()
		return zero, err
	}
	telemetry.DestinationRequests.WithLabelValues(g.name, operation, "success").Inc()

	typed, ok := result.(T)
	if !ok {
		return zero, fmt.Errorf("%s %s: unexpected result type %T", g.name, operation, result)
	}
	return typed, nil
}

func stateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
