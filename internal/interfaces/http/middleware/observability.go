package middleware

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/syncbridge/backend/internal/infrastructure/telemetry"
)

func passThrough(c *gin.Context) { c.Next() }

// Tracing

type TracingConfig struct {
	ServiceName string
	Enabled     bool
}

func DefaultTracingConfig() TracingConfig {
	return TracingConfig{ServiceName: "sync-engine", Enabled: true}
}

// TracingWithConfig opens a server span per request via otelgin, named
// "METHOD /route/:pattern".
func TracingWithConfig(cfg TracingConfig, opts ...otelgin.Option) gin.HandlerFunc {
	if !cfg.Enabled {
		return passThrough
	}
	return otelgin.Middleware(cfg.ServiceName, opts...)
}

// SpanAttributes tags the server span with request_id and tenant_id. It must
// run after TracingWithConfig and RequestID.
func SpanAttributes() gin.HandlerFunc {
	return func(c *gin.Context) {
		if span := trace.SpanFromContext(c.Request.Context()); span.IsRecording() {
			var attrs []attribute.KeyValue
			if id := GetRequestID(c); id != "" {
				attrs = append(attrs, attribute.String("request_id", id))
			}
			if tenant := spanTenant(c); tenant != "" {
				attrs = append(attrs, telemetry.AttrTenantID.String(tenant))
			}
			span.SetAttributes(attrs...)
		}
		c.Next()
	}
}

// spanTenant only trusts a raw header that parses as a UUID
func spanTenant(c *gin.Context) string {
	if id := GetTenantID(c); id != "" {
		return id
	}
	id, err := uuid.Parse(c.GetHeader(TenantHeaderKey))
	if err != nil {
		return ""
	}
	return id.String()
}

// SpanErrorMarker sets an error status on the server span for any 4xx or 5xx
func SpanErrorMarker() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		status := c.Writer.Status()
		span := trace.SpanFromContext(c.Request.Context())
		if status < http.StatusBadRequest || !span.IsRecording() {
			return
		}
		if last := c.Errors.Last(); last != nil {
			span.RecordError(last.Err)
		}
		desc := http.StatusText(status)
		if status >= http.StatusInternalServerError {
			desc = http.StatusText(http.StatusInternalServerError)
		}
		span.SetStatus(codes.Error, desc)
		span.SetAttributes(telemetry.AttrHTTPStatusCode.Int(status))
	}
}

// Metrics

// export downloads push the top buckets
var responseSizeBuckets = []float64{100, 500, 1e3, 5e3, 1e4, 5e4, 1e5, 5e5, 1e6, 5e6, 5e7}

type httpInstruments struct {
	requests *telemetry.Counter
	latency  *telemetry.Histogram
	size     *telemetry.Histogram
	inFlight metric.Int64UpDownCounter
}

func newHTTPInstruments(meter metric.Meter) (*httpInstruments, error) {
	requests, err := telemetry.NewCounter(meter, "http_server_request_total", "HTTP requests served", "{request}")
	latency, err2 := telemetry.NewHistogram(meter, telemetry.HistogramOpts{
		Name:        "http_server_request_duration_seconds",
		Description: "HTTP request latency",
		Unit:        "s",
		Boundaries:  telemetry.HTTPDurationBuckets,
	})
	size, err3 := telemetry.NewHistogram(meter, telemetry.HistogramOpts{
		Name:        "http_server_response_size_bytes",
		Description: "HTTP response body size",
		Unit:        "By",
		Boundaries:  responseSizeBuckets,
	})
	inFlight, err4 := meter.Int64UpDownCounter("http_server_active_requests",
		metric.WithDescription("HTTP requests in flight"),
		metric.WithUnit("{request}"),
	)
	if err := errors.Join(err, err2, err3, err4); err != nil {
		return nil, err
	}
	return &httpInstruments{requests: requests, latency: latency, size: size, inFlight: inFlight}, nil
}

// HTTPMetrics is HTTPMetricsWithMeter on the provider's "http.server" meter.
// Without an enabled provider it does nothing.
func HTTPMetrics(mp *telemetry.MeterProvider) gin.HandlerFunc {
	if mp == nil || !mp.IsEnabled() {
		return passThrough
	}
	return HTTPMetricsWithMeter(mp.Meter("http.server"))
}

// HTTPMetricsWithMeter counts requests and records latency and response size.
// Series are keyed by gin's route pattern, never the raw path.
func HTTPMetricsWithMeter(meter metric.Meter) gin.HandlerFunc {
	inst, err := newHTTPInstruments(meter)
	if err != nil {
		return passThrough
	}

	return func(c *gin.Context) {
		ctx := c.Request.Context()
		began := time.Now()
		inst.inFlight.Add(ctx, 1)
		defer inst.inFlight.Add(ctx, -1)

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		attrs := []attribute.KeyValue{
			telemetry.AttrHTTPMethod.String(c.Request.Method),
			telemetry.AttrHTTPRoute.String(route),
		}
		counted := append(slices.Clip(attrs), telemetry.AttrHTTPStatusCode.Int(c.Writer.Status()))
		if tenant := GetTenantID(c); tenant != "" {
			counted = append(counted, telemetry.AttrTenantID.String(tenant))
		}

		inst.requests.Inc(ctx, counted...)
		inst.latency.RecordDuration(ctx, time.Since(began), attrs...)
		if n := c.Writer.Size(); n > 0 {
			inst.size.Record(ctx, float64(n), attrs...)
		}
	}
}

// Profiling

type ProfilingConfig struct {
	Enabled   bool
	SkipPaths []string
}

func DefaultProfilingConfig() ProfilingConfig {
	return ProfilingConfig{Enabled: true, SkipPaths: []string{"/health/live", "/health/ready", "/metrics"}}
}

// ProfilingWithConfig runs the remaining handlers under pyroscope labels for
// controller, route, method and tenant. Mount it after the tenant middleware
// to get the tenant label.
func ProfilingWithConfig(cfg ProfilingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return passThrough
	}
	return func(c *gin.Context) {
		if slices.Contains(cfg.SkipPaths, c.Request.URL.Path) {
			c.Next()
			return
		}
		route := c.FullPath()
		labels := telemetry.HTTPRequestLabels(controllerFromRoute(route), route, c.Request.Method, GetTenantID(c))
		telemetry.WithProfilingLabels(c.Request.Context(), labels, func(ctx context.Context) {
			c.Request = c.Request.WithContext(ctx)
			c.Next()
		})
	}
}

// controllerFromRoute picks the resource segment of a route pattern, looking
// past the api/version prefix and the shared "sync" segment:
// "/api/v1/sync/records/:id/sync" is "records".
func controllerFromRoute(route string) string {
	var parts []string
	for _, p := range strings.Split(route, "/") {
		if p != "" && p != "api" && !isVersionSegment(p) && !strings.HasPrefix(p, ":") {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	if parts[0] == "sync" && len(parts) > 1 {
		return parts[1]
	}
	return parts[0]
}

// isVersionSegment matches v1, V2, v10 and so on
func isVersionSegment(s string) bool {
	if len(s) < 2 || (s[0] != 'v' && s[0] != 'V') {
		return false
	}
	return strings.Trim(s[1:], "0123456789") == ""
}
