package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type widget struct {
	ID   uint `gorm:"primaryKey"`
	Name string
}

func openSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&widget{}))
	return db
}

func TestDBTracingPlugin_Disabled(t *testing.T) {
	db := openSQLite(t)
	cfg := DefaultDBTracingConfig()
	cfg.Enabled = false
	require.NoError(t, NewDBTracingPlugin(cfg, zap.NewNop()).RegisterOtelGorm(db))
	assert.Nil(t, db.Callback().Create().Get("db_tracing:after_create"))
}

func TestDBTracingPlugin_SpansAndSlowQueries(t *testing.T) {
	db := openSQLite(t)
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	core, logs := observer.New(zapcore.WarnLevel)
	cfg := DefaultDBTracingConfig()
	cfg.DBSystem = "sqlite"
	cfg.TracerProvider = tp
	cfg.SlowQueryThresh = time.Nanosecond
	cfg.LogFullSQL = true
	require.NoError(t, NewDBTracingPlugin(cfg, zap.New(core)).RegisterOtelGorm(db))

	require.NoError(t, db.WithContext(context.Background()).Create(&widget{Name: "a"}).Error)

	assert.NotEmpty(t, recorder.Ended())
	slow := logs.FilterMessage("Slow query").All()
	require.NotEmpty(t, slow)
	fields := slow[0].ContextMap()
	assert.Equal(t, "create", fields["operation"])
	assert.Equal(t, "widgets", fields["table"])
	assert.Contains(t, fields["sql"], "INSERT INTO")
}

func TestRegisterDBMetrics_DisabledProvider(t *testing.T) {
	db := openSQLite(t)
	m, err := RegisterDBMetrics(db, &MeterProvider{}, DefaultDBMetricsConfig(), zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, m)
	m.Stop()
}

func TestRegisterDBMetrics_QueriesAndPool(t *testing.T) {
	db := openSQLite(t)
	reader := sdkmetric.NewManualReader()
	mp := NewMeterProviderWithReader(reader, zap.NewNop())
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	cfg := DefaultDBMetricsConfig()
	cfg.SlowQueryThreshold = time.Nanosecond
	m, err := RegisterDBMetrics(db, mp, cfg, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, m)

	require.NoError(t, db.Create(&widget{Name: "a"}).Error)
	var got []widget
	require.NoError(t, db.Find(&got).Error)
	err = db.First(&widget{}, 999).Error
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	queries, ok := collect(t, reader, "db_query_total").(metricdata.Sum[int64])
	require.True(t, ok)
	counts := map[string]int64{}
	for _, dp := range queries.DataPoints {
		op, _ := dp.Attributes.Value(AttrDBOperation)
		status, _ := dp.Attributes.Value(attribute.Key("status"))
		counts[op.AsString()+"/"+status.AsString()] += dp.Value
	}
	assert.Equal(t, int64(1), counts["create/ok"])
	assert.Equal(t, int64(2), counts["query/ok"], "record not found is not an error")

	slow, ok := collect(t, reader, "db_slow_query_total").(metricdata.Sum[int64])
	require.True(t, ok)
	assert.NotEmpty(t, slow.DataPoints)

	m.StartPoolStatsCollection(context.Background())
	m.Stop()
	m.Stop()

	poolMax, ok := collect(t, reader, "db_pool_connections_max").(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, poolMax.DataPoints, 1)
	assert.Equal(t, int64(1), poolMax.DataPoints[0].Value)
}
