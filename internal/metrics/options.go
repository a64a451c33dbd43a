package metrics

import "github.com/prometheus/client_golang/prometheus"

// Option applies a configuration option to the Manager.
type Option func(*Manager)

// WithNamespace sets the namespace for all metrics.
func WithNamespace(namespace string) Option {
	return func(m *Manager) {
		if namespace != "" {
			m.namespace = namespace
		}
	}
}

// WithHistogramBuckets sets the buckets of the evaluation latency histogram.
func WithHistogramBuckets(buckets []float64) Option {
	return func(m *Manager) {
		if len(buckets) > 0 {
			m.buckets = buckets
		}
	}
}

// WithRegistry registers the metrics on registry instead of a private one.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(m *Manager) {
		if registry != nil {
			m.registry = registry
		}
	}
}
