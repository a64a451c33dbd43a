// Package metrics exposes Prometheus metrics for mount selection runs.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cwbudde/lensmount/internal/mount"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Run outcomes.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

// Manager owns the metrics of one process. A nil *Manager records nothing.
type Manager struct {
	namespace string
	buckets   []float64
	registry  *prometheus.Registry

	evaluations       prometheus.Counter
	evaluationLatency prometheus.Histogram
	failures          *prometheus.CounterVec
	runs              *prometheus.CounterVec
	bestScore         prometheus.Gauge
	queued            prometheus.Gauge
}

// NewManager creates the metrics on a private registry unless WithRegistry is given.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace: "lensmount",
		buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
	}

	auto := promauto.With(m.registry)
	m.evaluations = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "evaluations_total",
		Help:      "Mount combinations evaluated.",
	})
	m.evaluationLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Name:      "evaluation_duration_seconds",
		Help:      "Time to apply and evaluate one mount combination.",
		Buckets:   m.buckets,
	})
	m.failures = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "failures_total",
		Help:      "Failed runs by error kind.",
	}, []string{"kind"})
	m.runs = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "runs_total",
		Help:      "Finished runs by outcome.",
	}, []string{"outcome"})
	m.bestScore = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Name:      "best_score",
		Help:      "Merit value of the best combination of the last successful run.",
	})
	m.queued = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Name:      "jobs_queued",
		Help:      "Jobs waiting for the model.",
	})
	return m
}

// Registry returns the registry the metrics are registered on.
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveEvaluation records one scored combination.
func (m *Manager) ObserveEvaluation(d time.Duration) {
	if m == nil {
		return
	}
	m.evaluations.Inc()
	m.evaluationLatency.Observe(d.Seconds())
}

// SetQueued sets the number of queued jobs.
func (m *Manager) SetQueued(n int) {
	if m == nil {
		return
	}
	m.queued.Set(float64(n))
}

// RunSucceeded records a successful run and its best score.
func (m *Manager) RunSucceeded(best float64) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(OutcomeSucceeded).Inc()
	m.bestScore.Set(best)
}

// RunFailed records a failed or cancelled run.
func (m *Manager) RunFailed(err error) {
	if m == nil {
		return
	}
	kind := FailureKind(err)
	if kind == "cancelled" {
		m.runs.WithLabelValues(OutcomeCancelled).Inc()
		return
	}
	m.runs.WithLabelValues(OutcomeFailed).Inc()
	m.failures.WithLabelValues(kind).Inc()
}

// FailureKind maps an error to the label used in failures_total.
func FailureKind(err error) string {
	switch {
	case errors.Is(err, mount.ErrNoValidCombinations):
		return "no_valid_combinations"
	case errors.Is(err, mount.ErrAxisDataNotFound):
		return "axis_data_not_found"
	case errors.Is(err, mount.ErrExternalEvaluation):
		return "external_evaluation"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "other"
	}
}
