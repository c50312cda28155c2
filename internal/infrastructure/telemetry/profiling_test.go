package telemetry

import (
	"context"
	"runtime/pprof"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLabelPairs(t *testing.T) {
	long := strings.Repeat("x", MaxLabelValueLength+10)

	got := LabelPairs(map[string]string{
		"Job-Kind":       "batch",
		"tenant_id":      "t-1",
		"sync_record_id": "r-1",
		"empty":          "",
		"!!!":            "dropped",
		"route":          long,
	})

	assert.Equal(t, []string{
		"job_kind", "batch",
		"route", long[:MaxLabelValueLength],
		"tenant_id", "t-1",
	}, got)
}

func TestHTTPRequestLabels(t *testing.T) {
	labels := HTTPRequestLabels("sync", "/api/v1/sync/records", "GET", "")
	assert.Equal(t, map[string]string{
		ProfilingLabelController: "sync",
		ProfilingLabelRoute:      "/api/v1/sync/records",
		ProfilingLabelMethod:     "GET",
	}, labels)
}

func TestWithPprofLabels(t *testing.T) {
	var kind string
	var called bool
	WithPprofLabels(context.Background(), map[string]string{ProfilingLabelJobKind: "batch"}, func(ctx context.Context) {
		called = true
		kind, _ = pprof.Label(ctx, ProfilingLabelJobKind)
	})
	assert.True(t, called)
	assert.Equal(t, "batch", kind)

	called = false
	WithPprofLabels(context.Background(), nil, func(context.Context) { called = true })
	assert.True(t, called)
}

func TestWithProfilingLabels_RunsCallback(t *testing.T) {
	var kind string
	WithProfilingLabels(context.Background(), map[string]string{ProfilingLabelOperation: "sync_job_single"}, func(ctx context.Context) {
		kind, _ = pprof.Label(ctx, ProfilingLabelOperation)
	})
	assert.Equal(t, "sync_job_single", kind)
}

func TestNewProfiler(t *testing.T) {
	p, err := NewProfiler(ProfilerConfig{}, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, p.IsEnabled())
	assert.NoError(t, p.Stop())

	_, err = NewProfiler(ProfilerConfig{Enabled: true}, zap.NewNop())
	assert.Error(t, err)

	var nilProfiler *Profiler
	assert.False(t, nilProfiler.IsEnabled())
}
