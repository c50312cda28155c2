package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Process-local gauges and counters scraped at /metrics. Sync outcomes that
// matter across processes go through the OTLP meter in SyncMetrics instead.
var (
	// Rate limiter
	RateLimitWaits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_rate_limit_waits_total",
			Help: "Number of destination calls that had to wait for a token",
		},
		[]string{"destination", "operation"},
	)

	RateLimitWaitSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sync_rate_limit_wait_seconds",
			Help:    "Time spent waiting for a rate limit token",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"destination", "operation"},
	)

	RateLimitUnconfigured = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_rate_limit_unconfigured_total",
			Help: "Calls made for destination operations without a configured bucket",
		},
		[]string{"destination", "operation"},
	)

	// Destination calls
	DestinationRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_destination_requests_total",
			Help: "Destination API calls by outcome",
		},
		[]string{"destination", "operation", "outcome"}, // success, failure, rejected
	)

	DestinationLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sync_destination_request_duration_seconds",
			Help:    "Duration of destination API calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"destination", "operation"},
	)

	// Circuit breaker
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sync_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"destination"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"destination", "from", "to"},
	)

	// Job workers
	JobQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sync_job_queue_depth",
			Help: "Sync jobs waiting for a worker",
		},
	)

	JobsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sync_jobs_running",
			Help: "Sync jobs currently executing",
		},
	)

	JobsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_jobs_finished_total",
			Help: "Finished sync jobs by kind and final status",
		},
		[]string{"kind", "status"}, // completed, retried, failed
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sync_job_duration_seconds",
			Help:    "Duration of one sync job attempt",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"kind"},
	)

	SweepRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_sweep_runs_total",
			Help: "Periodic sweep runs by result",
		},
		[]string{"result"}, // ok, skipped, error
	)

	// Analytics cache
	AggregateCacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_aggregate_cache_requests_total",
			Help: "Analytics cache lookups by result",
		},
		[]string{"backend", "result"}, // hit, miss
	)

	// Event bus
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_events_published_total",
			Help: "Domain events published on the in-process bus",
		},
		[]string{"event_type"},
	)

	EventHandlerFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_event_handler_failures_total",
			Help: "Event handler errors and panics",
		},
		[]string{"event_type"},
	)

	EventsForwarded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_events_forwarded_total",
			Help: "Sync outcome events written to Kafka by result",
		},
		[]string{"event_type", "result"}, // ok, error
	)
)

// PrometheusHandler serves the default registry
func PrometheusHandler() http.Handler {
	return promhttp.Handler()
}
