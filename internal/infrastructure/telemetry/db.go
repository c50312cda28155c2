package telemetry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const startedAtKey = "telemetry:started_at"

type registerFunc func(name string, fn func(*gorm.DB)) error

type gormHook struct {
	op            string
	before, after registerFunc
}

// gormHooks lists before/after registration points around every gorm
// statement kind. After hooks run ahead of otelgorm's so its span is still open.
func gormHooks(db *gorm.DB) []gormHook {
	cb := db.Callback()
	return []gormHook{
		{"create", cb.Create().Before("gorm:create").Register, cb.Create().After("gorm:create").Before("otel:after:create").Register},
		{"query", cb.Query().Before("gorm:query").Register, cb.Query().After("gorm:query").Before("otel:after:query").Register},
		{"update", cb.Update().Before("gorm:update").Register, cb.Update().After("gorm:update").Before("otel:after:update").Register},
		{"delete", cb.Delete().Before("gorm:delete").Register, cb.Delete().After("gorm:delete").Before("otel:after:delete").Register},
		{"row", cb.Row().Before("gorm:row").Register, cb.Row().After("gorm:row").Before("otel:after:row").Register},
		{"raw", cb.Raw().Before("gorm:raw").Register, cb.Raw().After("gorm:raw").Before("otel:after:raw").Register},
	}
}

func registerAround(db *gorm.DB, prefix string, before func(*gorm.DB), after func(string) func(*gorm.DB)) error {
	for _, h := range gormHooks(db) {
		if err := h.before(prefix+":before_"+h.op, before); err != nil {
			return fmt.Errorf("register %s before %s: %w", prefix, h.op, err)
		}
		if err := h.after(prefix+":after_"+h.op, after(h.op)); err != nil {
			return fmt.Errorf("register %s after %s: %w", prefix, h.op, err)
		}
	}
	return nil
}

func markStart(db *gorm.DB) {
	db.InstanceSet(startedAtKey, time.Now())
}

func elapsed(db *gorm.DB) (time.Duration, bool) {
	v, ok := db.InstanceGet(startedAtKey)
	if !ok {
		return 0, false
	}
	start, ok := v.(time.Time)
	if !ok {
		return 0, false
	}
	return time.Since(start), true
}

// ---------------------------------------------------------------------------
// Tracing
// ---------------------------------------------------------------------------

// DBTracingConfig controls gorm span creation
type DBTracingConfig struct {
	Enabled          bool
	LogFullSQL       bool
	SlowQueryThresh  time.Duration
	DBSystem         string
	WithoutVariables bool

	// TracerProvider overrides the global provider
	TracerProvider trace.TracerProvider
}

// DefaultDBTracingConfig returns tracing on, 200ms slow threshold, bound
// variables hidden
func DefaultDBTracingConfig() DBTracingConfig {
	return DBTracingConfig{
		Enabled:          true,
		SlowQueryThresh:  200 * time.Millisecond,
		DBSystem:         "postgresql",
		WithoutVariables: true,
	}
}

// DBTracingPlugin installs otelgorm and annotates its spans
type DBTracingPlugin struct {
	cfg    DBTracingConfig
	logger *zap.Logger
}

func NewDBTracingPlugin(cfg DBTracingConfig, logger *zap.Logger) *DBTracingPlugin {
	return &DBTracingPlugin{cfg: cfg, logger: logger}
}

// RegisterOtelGorm installs the plugin on db. A disabled config is a no-op.
func (p *DBTracingPlugin) RegisterOtelGorm(db *gorm.DB) error {
	if !p.cfg.Enabled {
		p.logger.Debug("Database tracing disabled")
		return nil
	}

	opts := []otelgorm.Option{otelgorm.WithDBName(p.cfg.DBSystem)}
	if p.cfg.WithoutVariables && !p.cfg.LogFullSQL {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if p.cfg.TracerProvider != nil {
		opts = append(opts, otelgorm.WithTracerProvider(p.cfg.TracerProvider))
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return fmt.Errorf("use otelgorm: %w", err)
	}
	if err := registerAround(db, "db_tracing", markStart, p.annotate); err != nil {
		return err
	}

	p.logger.Info("Database tracing enabled",
		zap.String("db_system", p.cfg.DBSystem),
		zap.Duration("slow_query_threshold", p.cfg.SlowQueryThresh),
	)
	return nil
}

func (p *DBTracingPlugin) annotate(op string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		ctx := db.Statement.Context
		if ctx == nil {
			return
		}
		span := trace.SpanFromContext(ctx)
		if span.IsRecording() {
			span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))
			if db.Statement.Table != "" {
				span.SetAttributes(attribute.String("db.sql.table", db.Statement.Table))
			}
			if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
				span.RecordError(db.Error)
				span.SetStatus(codes.Error, db.Error.Error())
			}
		}

		took, ok := elapsed(db)
		if !ok || p.cfg.SlowQueryThresh <= 0 || took <= p.cfg.SlowQueryThresh {
			return
		}
		span.SetAttributes(
			attribute.Bool("db.slow_query", true),
			attribute.Int64("db.query_duration_ms", took.Milliseconds()),
		)
		span.AddEvent("slow_query", trace.WithAttributes(
			attribute.Int64("threshold_ms", p.cfg.SlowQueryThresh.Milliseconds()),
		))

		fields := []zap.Field{
			zap.String("operation", op),
			zap.String("table", db.Statement.Table),
			zap.Duration("duration", took),
		}
		if p.cfg.LogFullSQL {
			fields = append(fields, zap.String("sql", db.Statement.SQL.String()))
		}
		p.logger.Warn("Slow query", fields...)
	}
}

// ---------------------------------------------------------------------------
// Metrics
// ---------------------------------------------------------------------------

// DBMetricsConfig controls query and pool metrics
type DBMetricsConfig struct {
	Enabled            bool
	SlowQueryThreshold time.Duration
	PoolStatsInterval  time.Duration
}

func DefaultDBMetricsConfig() DBMetricsConfig {
	return DBMetricsConfig{
		Enabled:            true,
		SlowQueryThreshold: 200 * time.Millisecond,
		PoolStatsInterval:  15 * time.Second,
	}
}

// DBMetrics records query counts, latency and connection pool usage
type DBMetrics struct {
	cfg    DBMetricsConfig
	sqlDB  *sql.DB
	logger *zap.Logger

	queries   *Counter
	slow      *Counter
	duration  *Histogram
	poolConns *Gauge
	poolMax   *Gauge

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// RegisterDBMetrics installs query metrics on db. It returns nil when
// metrics are disabled or the provider exports nothing.
func RegisterDBMetrics(db *gorm.DB, mp *MeterProvider, cfg DBMetricsConfig, logger *zap.Logger) (*DBMetrics, error) {
	if !cfg.Enabled || !mp.IsEnabled() {
		return nil, nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("underlying sql.DB: %w", err)
	}

	m := &DBMetrics{cfg: cfg, sqlDB: sqlDB, logger: logger, stop: make(chan struct{})}
	meter := mp.Meter("syncbridge/db")
	if err := m.createInstruments(meter); err != nil {
		return nil, err
	}
	if err := registerAround(db, "db_metrics", markStart, m.observe); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *DBMetrics) createInstruments(meter metric.Meter) error {
	var err error
	if m.queries, err = NewCounter(meter, "db_query_total", "Database queries by operation and table", "{query}"); err != nil {
		return err
	}
	if m.slow, err = NewCounter(meter, "db_slow_query_total", "Queries slower than the configured threshold", "{query}"); err != nil {
		return err
	}
	if m.duration, err = NewHistogram(meter, HistogramOpts{
		Name:        "db_query_duration_seconds",
		Description: "Database query latency",
		Unit:        "s",
		Boundaries:  DBDurationBuckets,
	}); err != nil {
		return err
	}
	if m.poolConns, err = NewGauge(meter, "db_pool_connections", "Pool connections by state", "{connection}"); err != nil {
		return err
	}
	m.poolMax, err = NewGauge(meter, "db_pool_connections_max", "Maximum open connections", "{connection}")
	return err
}

func (m *DBMetrics) observe(op string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		took, ok := elapsed(db)
		if !ok {
			return
		}
		ctx := db.Statement.Context
		if ctx == nil {
			ctx = context.Background()
		}
		m.RecordQuery(ctx, op, db.Statement.Table, took, db.Error)
	}
}

// RecordQuery records one statement
func (m *DBMetrics) RecordQuery(ctx context.Context, op, table string, took time.Duration, err error) {
	attrs := []attribute.KeyValue{AttrDBOperation.String(op), AttrDBTable.String(table)}
	status := "ok"
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		status = "error"
	}
	m.queries.Inc(ctx, append(attrs, attribute.String("status", status))...)
	m.duration.RecordDuration(ctx, took, attrs...)
	if m.cfg.SlowQueryThreshold > 0 && took > m.cfg.SlowQueryThreshold {
		m.slow.Inc(ctx, attrs...)
	}
}

// StartPoolStatsCollection samples sql.DB stats until ctx ends or Stop
func (m *DBMetrics) StartPoolStatsCollection(ctx context.Context) {
	interval := m.cfg.PoolStatsInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		m.collectPoolStats(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stop:
				return
			case <-ticker.C:
				m.collectPoolStats(ctx)
			}
		}
	}()
}

func (m *DBMetrics) collectPoolStats(ctx context.Context) {
	stats := m.sqlDB.Stats()
	m.poolConns.Record(ctx, int64(stats.InUse), AttrDBState.String("in_use"))
	m.poolConns.Record(ctx, int64(stats.Idle), AttrDBState.String("idle"))
	m.poolConns.Record(ctx, int64(stats.OpenConnections), AttrDBState.String("open"))
	m.poolMax.Record(ctx, int64(stats.MaxOpenConnections))
}

// Stop ends pool sampling and waits for the collector to exit
func (m *DBMetrics) Stop() {
	if m == nil {
		return
	}
	m.stopOnce.Do(func() { close(m.stop) })
	m.wg.Wait()
}
