package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for bulk operations.
type Metrics struct {
	BatchSize *prometheus.HistogramVec
	Duration  *prometheus.HistogramVec
}

func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

func NewWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		BatchSize: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cidledger_bulk_batch_size",
			Help:    "Number of CIDs per bulk request",
			Buckets: []float64{1, 5, 10, 25, 50, 75, 100},
		}, []string{"operation"}),
		Duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cidledger_bulk_duration_seconds",
			Help:    "Time taken to complete a bulk request",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"operation"}),
	}
}

func (m *Metrics) ObserveBatch(operation string, size int, durationSeconds float64) {
	m.BatchSize.WithLabelValues(operation).Observe(float64(size))
	m.Duration.WithLabelValues(operation).Observe(durationSeconds)
}
