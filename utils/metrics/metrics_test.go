package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestEngineMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewEngineMetrics("test_engine", reg)
	require.NotNil(t, metrics)

	// Counters
	metrics.PollsTotal.Inc()
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.PollsTotal))

	metrics.Accepted.Add(2)
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.Accepted))

	// Labelled counters
	metrics.Outcomes.WithLabelValues("success").Inc()
	metrics.Outcomes.WithLabelValues("relay_rejected").Add(3)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Outcomes.WithLabelValues("success")))
	assert.Equal(t, float64(3), testutil.ToFloat64(metrics.Outcomes.WithLabelValues("relay_rejected")))

	// Gauges
	metrics.NextNonce.Set(42)
	assert.Equal(t, float64(42), testutil.ToFloat64(metrics.NextNonce))

	metrics.SubmissionLatency.Observe(0.2)
	count, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Equal(t, 14, count)
}

func TestEngineMetricsSeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewEngineMetrics("dup", prometheus.NewRegistry())
		NewEngineMetrics("dup", prometheus.NewRegistry())
	})
}

func TestServerExposesRegistry(t *testing.T) {
	m := Initialize(&MetricsConfig{Namespace: "test_server"}, zaptest.NewLogger(t))
	m.PollsTotal.Inc()

	rec := httptest.NewRecorder()
	NewServer("127.0.0.1:0").Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "test_server_feed_polls_total 1")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestServeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, Serve(ctx, "127.0.0.1:0"))
}
