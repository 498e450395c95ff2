package graph

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics collects execution metrics for production monitoring.
//
// Metrics exposed (all namespaced with "stategraph_"):
//
//   - steps_total (counter): node executions, labeled by node_id and status
//     (success/error).
//   - step_latency_ms (histogram): node execution duration in milliseconds,
//     labeled by node_id and status.
//   - checkpoints_total (counter): checkpoints persisted, including the
//     synthetic initial checkpoint and fork checkpoints.
//   - inflight_invocations (gauge): Invoke/Stream/Replay calls currently
//     executing.
//   - recursion_limit_hits_total (counter): calls that hit their recursion
//     ceiling.
//
// Usage:
//
//	registry := prometheus.NewRegistry()
//	metrics := graph.NewPrometheusMetrics(registry)
//	engine, err := builder.Compile(st, graph.WithMetrics(metrics))
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
type PrometheusMetrics struct {
	steps              *prometheus.CounterVec
	stepLatency        *prometheus.HistogramVec
	checkpoints        prometheus.Counter
	inflight           prometheus.Gauge
	recursionLimitHits prometheus.Counter
}

// NewPrometheusMetrics creates and registers the engine's metrics with the
// provided registry. Pass prometheus.DefaultRegisterer for the global
// registry, or a dedicated prometheus.NewRegistry() for isolation
// (recommended in tests).
func NewPrometheusMetrics(registry prometheus.Registerer) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &PrometheusMetrics{
		steps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stategraph",
			Name:      "steps_total",
			Help:      "Node executions by node and outcome",
		}, []string{"node_id", "status"}),
		stepLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "stategraph",
			Name:      "step_latency_ms",
			Help:      "Node execution duration in milliseconds",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000},
		}, []string{"node_id", "status"}),
		checkpoints: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "stategraph",
			Name:      "checkpoints_total",
			Help:      "Checkpoints persisted to the store",
		}),
		inflight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "stategraph",
			Name:      "inflight_invocations",
			Help:      "Invoke, Stream, and Replay calls currently executing",
		}),
		recursionLimitHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "stategraph",
			Name:      "recursion_limit_hits_total",
			Help:      "Calls that reached their recursion ceiling",
		}),
	}
}

// RecordStep records one node execution with its duration and outcome
// ("success" or "error").
func (pm *PrometheusMetrics) RecordStep(nodeID string, latency time.Duration, status string) {
	pm.steps.WithLabelValues(nodeID, status).Inc()
	pm.stepLatency.WithLabelValues(nodeID, status).Observe(float64(latency.Milliseconds()))
}

// IncCheckpoints counts one persisted checkpoint.
func (pm *PrometheusMetrics) IncCheckpoints() {
	pm.checkpoints.Inc()
}

// InvocationStarted marks one call in flight.
func (pm *PrometheusMetrics) InvocationStarted() {
	pm.inflight.Inc()
}

// InvocationFinished marks one call completed.
func (pm *PrometheusMetrics) InvocationFinished() {
	pm.inflight.Dec()
}

// IncRecursionLimitHits counts one call that hit its recursion ceiling.
func (pm *PrometheusMetrics) IncRecursionLimitHits() {
	pm.recursionLimitHits.Inc()
}
