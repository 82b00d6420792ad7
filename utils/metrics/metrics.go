package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	registry = prometheus.NewRegistry()
	logger   = zap.NewNop()
)

type MetricsConfig struct {
	Namespace string
}

// Initialize registers the process collectors and the engine metrics on the
// engine registry. It must be called once per process.
func Initialize(cfg *MetricsConfig, log *zap.Logger) *EngineMetrics {
	if log != nil {
		logger = log.Named("metrics")
	}
	namespace := "arbengine"
	if cfg != nil && cfg.Namespace != "" {
		namespace = cfg.Namespace
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewEngineMetrics(namespace, registry)
}

// Registry returns the registry the engine metrics are registered on
func Registry() *prometheus.Registry {
	return registry
}

// NewServer returns an http server exposing the registry on /metrics
func NewServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// Serve exposes the registry on addr until ctx is canceled or the listener fails
func Serve(ctx context.Context, addr string) error {
	srv := NewServer(addr)
	errCh := make(chan error, 1)
	go func() {
		logger.Info("Serving metrics", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("metrics server failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

type EngineMetrics struct {
	PollsTotal           prometheus.Counter
	FeedErrors           *prometheus.CounterVec
	OpportunitiesFetched prometheus.Counter
	MalformedEntries     prometheus.Counter
	Accepted             prometheus.Counter
	Rejected             prometheus.Counter
	Duplicates           prometheus.Counter
	Outcomes             *prometheus.CounterVec
	ProfitTransferredWei prometheus.Counter
	SubmissionLatency    prometheus.Histogram
	Resyncs              *prometheus.CounterVec
	NextNonce            prometheus.Gauge
	State                prometheus.Gauge
	CooldownSeconds      prometheus.Gauge
}

// NewEngineMetrics creates the engine metrics on reg
func NewEngineMetrics(namespace string, reg prometheus.Registerer) *EngineMetrics {
	factory := promauto.With(reg)
	return &EngineMetrics{
		PollsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_polls_total",
			Help:      "Total number of feed polls",
		}),
		FeedErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_errors_total",
			Help:      "Total number of feed errors by kind",
		}, []string{"kind"}),
		OpportunitiesFetched: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "opportunities_fetched_total",
			Help:      "Total number of opportunities returned by the feed",
		}),
		MalformedEntries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "opportunities_malformed_total",
			Help:      "Total number of feed entries skipped as malformed",
		}),
		Accepted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "opportunities_accepted_total",
			Help:      "Total number of opportunities passing the thresholds",
		}),
		Rejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "opportunities_rejected_total",
			Help:      "Total number of opportunities failing the thresholds",
		}),
		Duplicates: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "opportunities_duplicate_total",
			Help:      "Total number of opportunities skipped as already attempted",
		}),
		Outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "execution_outcomes_total",
			Help:      "Total number of execution outcomes by kind",
		}, []string{"kind"}),
		ProfitTransferredWei: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "profit_transferred_wei_total",
			Help:      "Feed-reported profit of successful executions in wei",
		}),
		SubmissionLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "submission_latency_seconds",
			Help:      "Time from build to final outcome",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		Resyncs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nonce_resyncs_total",
			Help:      "Total number of wallet nonce resynchronizations by result",
		}, []string{"result"}),
		NextNonce: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "wallet_next_nonce",
			Help:      "Next nonce the sequencer will allocate",
		}),
		State: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "engine_state",
			Help:      "Current engine loop state",
		}),
		CooldownSeconds: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cooldown_seconds",
			Help:      "Duration of the current or last cooldown",
		}),
	}
}
