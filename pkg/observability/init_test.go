package observability_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jormeli/slangload/pkg/observability"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := observability.DefaultConfig()
	assert.Equal(t, "slangload", cfg.ServiceName)
	assert.Equal(t, observability.ModeCLI, cfg.Mode)
	assert.Empty(t, cfg.OTLPEndpoint)
}

func TestInit_NoEndpointUsesNoop(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	providers, err := observability.Init(observability.DefaultConfig(), observability.WithLogOutput(&buf))
	require.NoError(t, err)

	t.Cleanup(func() { require.NoError(t, providers.Shutdown(context.Background())) })

	require.NotNil(t, providers.Tracer)
	require.NotNil(t, providers.Meter)

	_, span := providers.Tracer.Start(context.Background(), "noop")
	assert.False(t, span.SpanContext().IsValid())
	span.End()

	providers.Logger.Info("hello")
	assert.Contains(t, buf.String(), "hello")
}

func TestInit_PrometheusReaderServesMetrics(t *testing.T) {
	t.Parallel()

	reader, handler, err := observability.PrometheusReader()
	require.NoError(t, err)

	providers, err := observability.Init(observability.DefaultConfig(),
		observability.WithLogOutput(&bytes.Buffer{}),
		observability.WithMetricReader(reader),
	)
	require.NoError(t, err)

	t.Cleanup(func() { require.NoError(t, providers.Shutdown(context.Background())) })

	red, err := observability.NewREDMetrics(providers.Meter)
	require.NoError(t, err)

	red.RecordModules(context.Background(), "wgsl", 2)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "slangload_modules_loaded")
}

func TestParseOTLPHeaders(t *testing.T) {
	t.Parallel()

	assert.Nil(t, observability.ParseOTLPHeaders(""))
	assert.Nil(t, observability.ParseOTLPHeaders("garbage"))
	assert.Equal(t,
		map[string]string{"authorization": "Bearer x", "team": "gfx"},
		observability.ParseOTLPHeaders("authorization=Bearer x, team=gfx"),
	)
}
