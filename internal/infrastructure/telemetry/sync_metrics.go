package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/domain/shared"
)

// SyncMetrics exports sync outcomes and per-tenant backlog over OTLP. It
// subscribes to outcome events on the bus and periodically samples backlog
// counts from a BacklogProvider.
type SyncMetrics struct {
	meter  metric.Meter
	logger *zap.Logger

	outcomes *Counter
	duration *Histogram
	backlog  *Gauge

	backlogProvider BacklogProvider

	stopChan    chan struct{}
	stopOnce    sync.Once
	collectOnce sync.Once
}

// BacklogProvider reports how many sync records sit in each status
type BacklogProvider interface {
	// CountByStatus returns record counts per sync status for a tenant
	CountByStatus(ctx context.Context, tenantID uuid.UUID) (map[integration.SyncStatus]int64, error)
}

// TenantProvider lists the tenants to sample
type TenantProvider interface {
	GetActiveTenantIDs(ctx context.Context) ([]uuid.UUID, error)
}

// SyncMetricsConfig holds configuration for SyncMetrics
type SyncMetricsConfig struct {
	Meter           metric.Meter
	Logger          *zap.Logger
	BacklogProvider BacklogProvider
}

// SyncDurationBuckets are bucket boundaries for one destination round trip (ms)
var SyncDurationBuckets = []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000}

// NewSyncMetrics creates the sync instruments on cfg.Meter
func NewSyncMetrics(cfg SyncMetricsConfig) (*SyncMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &SyncMetrics{
		meter:           cfg.Meter,
		logger:          logger,
		backlogProvider: cfg.BacklogProvider,
		stopChan:        make(chan struct{}),
	}

	var err error
	m.outcomes, err = NewCounter(cfg.Meter,
		"sync_record_outcomes_total",
		"Record sync attempts by outcome",
		"{attempts}",
	)
	if err != nil {
		return nil, err
	}

	m.duration, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "sync_record_duration",
		Description: "Destination round trip time of one record sync",
		Unit:        "ms",
		Boundaries:  SyncDurationBuckets,
	})
	if err != nil {
		return nil, err
	}

	m.backlog, err = NewGauge(cfg.Meter,
		"sync_record_backlog",
		"Sync records per status",
		"{records}",
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// EventTypes implements shared.EventHandler
func (m *SyncMetrics) EventTypes() []string {
	return []string{integration.EventTypeSyncRecordSynced, integration.EventTypeSyncRecordFailed}
}

// Handle records one outcome event
func (m *SyncMetrics) Handle(ctx context.Context, event shared.DomainEvent) error {
	outcome, ok := event.(*integration.SyncOutcomeEvent)
	if !ok {
		return nil
	}
	result := "synced"
	if event.EventType() == integration.EventTypeSyncRecordFailed {
		result = "failed"
	}
	m.RecordOutcome(ctx, event.TenantID(), outcome.DestinationType, outcome.Operation, result, time.Duration(outcome.DurationMs)*time.Millisecond)
	return nil
}

// RecordOutcome records one record sync attempt
func (m *SyncMetrics) RecordOutcome(ctx context.Context, tenantID uuid.UUID, destination integration.DestinationType, operation, result string, d time.Duration) {
	attrs := []attribute.KeyValue{
		AttrTenantID.String(tenantID.String()),
		AttrDestinationType.String(string(destination)),
		AttrSyncOperation.String(operation),
	}
	m.outcomes.Inc(ctx, append(attrs, AttrSyncOutcome.String(result))...)
	m.duration.Record(ctx, float64(d.Milliseconds()), attrs...)
}

// RecordBacklog records the number of records in one status for a tenant
func (m *SyncMetrics) RecordBacklog(ctx context.Context, tenantID uuid.UUID, status integration.SyncStatus, count int64) {
	m.backlog.Record(ctx, count,
		AttrTenantID.String(tenantID.String()),
		AttrSyncStatus.String(status.String()),
	)
}

// StartPeriodicCollection samples the backlog every interval (default 1m)
// until Stop or ctx is done
func (m *SyncMetrics) StartPeriodicCollection(ctx context.Context, tenants TenantProvider, interval time.Duration) {
	m.collectOnce.Do(func() {
		if interval <= 0 {
			interval = time.Minute
		}
		go m.runPeriodicCollection(ctx, tenants, interval)
	})
}

func (m *SyncMetrics) runPeriodicCollection(ctx context.Context, tenants TenantProvider, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.CollectBacklog(ctx, tenants)
	for {
		select {
		case <-m.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CollectBacklog(ctx, tenants)
		}
	}
}

// CollectBacklog samples the backlog of every tenant once
func (m *SyncMetrics) CollectBacklog(ctx context.Context, tenants TenantProvider) {
	if m.backlogProvider == nil {
		return
	}
	tenantIDs, err := tenants.GetActiveTenantIDs(ctx)
	if err != nil {
		m.logger.Error("failed to list tenants for backlog metrics", zap.Error(err))
		return
	}
	for _, tenantID := range tenantIDs {
		counts, err := m.backlogProvider.CountByStatus(ctx, tenantID)
		if err != nil {
			m.logger.Warn("failed to count sync backlog",
				zap.String("tenant_id", tenantID.String()),
				zap.Error(err),
			)
			continue
		}
		for _, status := range integration.AllSyncStatuses() {
			m.RecordBacklog(ctx, tenantID, status, counts[status])
		}
	}
}

// Stop stops the periodic collection
func (m *SyncMetrics) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopChan)
	})
}

// ErrMeterNil is returned when meter is nil
var ErrMeterNil = &MetricsError{Op: "NewSyncMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}

var _ shared.EventHandler = (*SyncMetrics)(nil)
