package metric

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ming0627/bellyfed-new-sub015/errors"
)

func TestNewMetricsRegistry_CoreMetrics(t *testing.T) {
	registry := NewMetricsRegistry()
	require.NotNil(t, registry)
	require.NotNil(t, registry.CoreMetrics())
	require.NotNil(t, registry.PrometheusRegistry())

	// Core metrics are usable immediately
	registry.Metrics.EventsReceived.WithLabelValues("view").Inc()
	registry.Metrics.FanoutErrors.WithLabelValues("unique_set").Inc()
	registry.Metrics.NATSConnected.Set(1)

	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["bellyfed_ingest_events_received_total"])
	assert.True(t, names["bellyfed_ingest_fanout_errors_total"])
	assert.True(t, names["bellyfed_nats_connected"])
}

func TestRegisterCounter_Duplicate(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_counter_total",
		Help: "test",
	})
	require.NoError(t, registry.RegisterCounter("ingestor", "test_counter", counter))

	other := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "other_counter_total",
		Help: "test",
	})
	err := registry.RegisterCounter("ingestor", "test_counter", other)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestUnregister(t *testing.T) {
	registry := NewMetricsRegistry()

	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "test_gauge",
		Help: "test",
	})
	require.NoError(t, registry.RegisterGauge("trending", "test_gauge", gauge))

	assert.True(t, registry.Unregister("trending", "test_gauge"))
	assert.False(t, registry.Unregister("trending", "test_gauge"))

	// Re-registration succeeds after unregister
	require.NoError(t, registry.RegisterGauge("trending", "test_gauge", gauge))
}

func TestHandler_ServesExposition(t *testing.T) {
	registry := NewMetricsRegistry()
	registry.Metrics.HTTPRequests.WithLabelValues("track-view", "200").Inc()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	registry.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "bellyfed_gateway_http_requests_total"))
}
