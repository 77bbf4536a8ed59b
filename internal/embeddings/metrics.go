package embeddings

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds embedding generation metrics, exposed on the HTTP sidecar's
// /metrics endpoint.
type Metrics struct {
	duration  *prometheus.HistogramVec
	batchSize *prometheus.HistogramVec
	errors    *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metrics     *Metrics
)

// sharedMetrics returns the process-wide metrics instance. Prometheus
// collectors can only be registered once per registry.
func sharedMetrics() *Metrics {
	metricsOnce.Do(func() {
		metrics = &Metrics{
			duration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "embedding_generation_duration_seconds",
				Help:    "Duration of embedding generation requests.",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			}, []string{"model", "operation"}),
			batchSize: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "embedding_batch_size",
				Help:    "Number of texts per embedding batch request.",
				Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250},
			}, []string{"model", "operation"}),
			errors: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "embedding_errors_total",
				Help: "Total embedding generation errors.",
			}, []string{"model", "operation"}),
		}
	})
	return metrics
}

// RecordGeneration records one embedding request.
func (m *Metrics) RecordGeneration(model, operation string, duration time.Duration, batchSize int, err error) {
	m.duration.WithLabelValues(model, operation).Observe(duration.Seconds())
	if batchSize > 0 {
		m.batchSize.WithLabelValues(model, operation).Observe(float64(batchSize))
	}
	if err != nil {
		m.errors.WithLabelValues(model, operation).Inc()
	}
}
