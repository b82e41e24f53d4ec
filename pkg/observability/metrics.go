package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricRequestsTotal    = "slangload.requests.total"
	metricRequestDuration  = "slangload.request.duration.seconds"
	metricErrorsTotal      = "slangload.errors.total"
	metricInflightRequests = "slangload.inflight.requests"
	metricModulesLoaded    = "slangload.modules.loaded.total"
	metricCacheHitsTotal   = "slangload.cache.hits.total"
	metricCacheMissesTotal = "slangload.cache.misses.total"

	attrOp     = "op"
	attrStatus = "status"
	attrTarget = "target"

	// StatusOK labels a successful request.
	StatusOK = "ok"
	// StatusError labels a failed request.
	StatusError = "error"
)

// durationBucketBoundaries covers 1ms to 60s; a shader compile ranges from a
// cache hit to a large multi-module link.
var durationBucketBoundaries = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// REDMetrics holds the OTel instruments for Rate, Error, Duration metrics
// plus the per-compile counters.
type REDMetrics struct {
	requestsTotal    metric.Int64Counter
	requestDuration  metric.Float64Histogram
	errorsTotal      metric.Int64Counter
	inflightRequests metric.Int64UpDownCounter
	modulesLoaded    metric.Int64Counter
	cacheHits        metric.Int64Counter
	cacheMisses      metric.Int64Counter
}

// NewREDMetrics creates the instruments from the given meter.
func NewREDMetrics(mt metric.Meter) (*REDMetrics, error) {
	b := newMetricBuilder(mt)

	rm := &REDMetrics{
		requestsTotal:    b.counter(metricRequestsTotal, "Total number of transform requests", "{request}"),
		requestDuration:  b.histogram(metricRequestDuration, "Request duration in seconds", "s", durationBucketBoundaries...),
		errorsTotal:      b.counter(metricErrorsTotal, "Total number of errors", "{error}"),
		inflightRequests: b.upDownCounter(metricInflightRequests, "Number of in-flight requests", "{request}"),
		modulesLoaded:    b.counter(metricModulesLoaded, "Modules loaded into compiler sessions", "{module}"),
		cacheHits:        b.counter(metricCacheHitsTotal, "Artifact cache hits", "{hit}"),
		cacheMisses:      b.counter(metricCacheMissesTotal, "Artifact cache misses", "{miss}"),
	}

	if b.err != nil {
		return nil, b.err
	}

	return rm, nil
}

// RecordRequest records a completed request. Safe on a nil receiver.
func (rm *REDMetrics) RecordRequest(ctx context.Context, op, status string, duration time.Duration) {
	if rm == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String(attrOp, op),
		attribute.String(attrStatus, status),
	)

	rm.requestsTotal.Add(ctx, 1, attrs)
	rm.requestDuration.Record(ctx, duration.Seconds(), attrs)

	if status == StatusError {
		rm.errorsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String(attrOp, op),
		))
	}
}

// TrackInflight increments the in-flight gauge and returns a function to decrement it.
func (rm *REDMetrics) TrackInflight(ctx context.Context, op string) func() {
	if rm == nil {
		return func() {}
	}

	attrs := metric.WithAttributes(attribute.String(attrOp, op))
	rm.inflightRequests.Add(ctx, 1, attrs)

	return func() {
		rm.inflightRequests.Add(ctx, -1, attrs)
	}
}

// RecordModules counts modules loaded for one compile.
func (rm *REDMetrics) RecordModules(ctx context.Context, target string, count int) {
	if rm == nil {
		return
	}

	rm.modulesLoaded.Add(ctx, int64(count), metric.WithAttributes(attribute.String(attrTarget, target)))
}

// RecordCache counts one artifact cache lookup.
func (rm *REDMetrics) RecordCache(ctx context.Context, hit bool) {
	if rm == nil {
		return
	}

	if hit {
		rm.cacheHits.Add(ctx, 1)

		return
	}

	rm.cacheMisses.Add(ctx, 1)
}
