package observability

import (
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// MetricsPath is the route the Prometheus scrape handler is served on.
const MetricsPath = "/metrics"

const (
	spanScrape = "slangload.metrics.scrape"

	attrScrapeMode = "slangload.mode"
	attrBodyBytes  = "http.response.body.size"
)

// scrapeWriter records the status code and body size of a scrape response.
type scrapeWriter struct {
	http.ResponseWriter

	status int
	bytes  int
}

func (sw *scrapeWriter) WriteHeader(code int) {
	if sw.status == 0 {
		sw.status = code
	}

	sw.ResponseWriter.WriteHeader(code)
}

func (sw *scrapeWriter) Write(buf []byte) (int, error) {
	if sw.status == 0 {
		sw.status = http.StatusOK
	}

	n, err := sw.ResponseWriter.Write(buf)
	sw.bytes += n

	if err != nil {
		return n, fmt.Errorf("write scrape response: %w", err)
	}

	return n, nil
}

// NewMetricsMux serves scrape at MetricsPath. Each scrape gets a server span
// tagged with the process mode; methods other than GET and HEAD are refused.
func NewMetricsMux(tracer trace.Tracer, mode AppMode, scrape http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle(MetricsPath, ScrapeHandler(tracer, mode, scrape))

	return mux
}

// ScrapeHandler wraps a Prometheus scrape handler with a server span.
func ScrapeHandler(tracer trace.Tracer, mode AppMode, next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, hr *http.Request) {
		parentCtx := otel.GetTextMapPropagator().Extract(hr.Context(), propagation.HeaderCarrier(hr.Header))

		ctx, span := tracer.Start(parentCtx, spanScrape,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				semconv.HTTPRequestMethodKey.String(hr.Method),
				attribute.String(attrScrapeMode, string(mode)),
			),
		)
		defer span.End()

		sw := &scrapeWriter{ResponseWriter: rw}

		if hr.Method != http.MethodGet && hr.Method != http.MethodHead {
			sw.Header().Set("Allow", "GET, HEAD")
			http.Error(sw, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		} else {
			next.ServeHTTP(sw, hr.WithContext(ctx))
		}

		span.SetAttributes(
			semconv.HTTPResponseStatusCode(sw.status),
			attribute.Int(attrBodyBytes, sw.bytes),
		)

		if sw.status >= http.StatusBadRequest {
			span.SetStatus(codes.Error, http.StatusText(sw.status))
		}
	})
}
