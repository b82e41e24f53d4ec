package observability_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/jormeli/slangload/pkg/observability"
)

func setupTestMeter(t *testing.T) (*observability.REDMetrics, *sdkmetric.ManualReader) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	red, err := observability.NewREDMetrics(mp.Meter("test"))
	require.NoError(t, err)

	return red, reader
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()

	var rm metricdata.ResourceMetrics

	err := reader.Collect(context.Background(), &rm)
	require.NoError(t, err)

	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for idx := range rm.ScopeMetrics {
		for midx := range rm.ScopeMetrics[idx].Metrics {
			if rm.ScopeMetrics[idx].Metrics[midx].Name == name {
				return &rm.ScopeMetrics[idx].Metrics[midx]
			}
		}
	}

	return nil
}

func sumValue(t *testing.T, m *metricdata.Metrics) int64 {
	t.Helper()

	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "expected Sum[int64] for %s", m.Name)

	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}

	return total
}

func TestREDMetrics_RecordRequest(t *testing.T) {
	t.Parallel()

	red, reader := setupTestMeter(t)

	red.RecordRequest(context.Background(), "transform", observability.StatusOK, 100*time.Millisecond)

	rm := collectMetrics(t, reader)

	reqTotal := findMetric(rm, "slangload.requests.total")
	require.NotNil(t, reqTotal)
	assert.Equal(t, int64(1), sumValue(t, reqTotal))

	require.NotNil(t, findMetric(rm, "slangload.request.duration.seconds"))
	assert.Nil(t, findMetric(rm, "slangload.errors.total"))
}

func TestREDMetrics_RecordRequestError(t *testing.T) {
	t.Parallel()

	red, reader := setupTestMeter(t)

	red.RecordRequest(context.Background(), "transform", observability.StatusError, time.Second)

	errTotal := findMetric(collectMetrics(t, reader), "slangload.errors.total")
	require.NotNil(t, errTotal)
	assert.Equal(t, int64(1), sumValue(t, errTotal))
}

func TestREDMetrics_TrackInflight(t *testing.T) {
	t.Parallel()

	red, reader := setupTestMeter(t)

	done := red.TrackInflight(context.Background(), "transform")

	inflight := findMetric(collectMetrics(t, reader), "slangload.inflight.requests")
	require.NotNil(t, inflight)
	assert.Equal(t, int64(1), sumValue(t, inflight))

	done()

	inflight = findMetric(collectMetrics(t, reader), "slangload.inflight.requests")
	require.NotNil(t, inflight)
	assert.Equal(t, int64(0), sumValue(t, inflight))
}

func TestREDMetrics_ModulesAndCache(t *testing.T) {
	t.Parallel()

	red, reader := setupTestMeter(t)
	ctx := context.Background()

	red.RecordModules(ctx, "wgsl", 3)
	red.RecordCache(ctx, true)
	red.RecordCache(ctx, false)
	red.RecordCache(ctx, false)

	rm := collectMetrics(t, reader)

	assert.Equal(t, int64(3), sumValue(t, findMetric(rm, "slangload.modules.loaded.total")))
	assert.Equal(t, int64(1), sumValue(t, findMetric(rm, "slangload.cache.hits.total")))
	assert.Equal(t, int64(2), sumValue(t, findMetric(rm, "slangload.cache.misses.total")))
}

func TestREDMetrics_NilReceiver(t *testing.T) {
	t.Parallel()

	var red *observability.REDMetrics

	ctx := context.Background()

	red.RecordRequest(ctx, "transform", observability.StatusOK, time.Millisecond)
	red.RecordModules(ctx, "wgsl", 1)
	red.RecordCache(ctx, true)
	red.TrackInflight(ctx, "transform")()
}
