package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for consent oracle checks.
type Metrics struct {
	Checks            *prometheus.CounterVec
	IntegrityFailures prometheus.Counter
	CheckLatency      prometheus.Histogram
}

func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

func NewWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Checks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cidledger_oracle_checks_total",
			Help: "Total number of consent checks, labeled by outcome and reason",
		}, []string{"outcome", "reason"}),
		IntegrityFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "cidledger_oracle_integrity_failures_total",
			Help: "Total number of checks denied because the consent chain failed verification",
		}),
		CheckLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "cidledger_oracle_check_duration_seconds",
			Help:    "Time taken to evaluate a consent check",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		}),
	}
}

func (m *Metrics) IncrementCheck(allowed bool, reason string) {
	outcome := "denied"
	if allowed {
		outcome = "allowed"
	}
	m.Checks.WithLabelValues(outcome, reason).Inc()
}

func (m *Metrics) IncrementIntegrityFailures() {
	m.IntegrityFailures.Inc()
}

func (m *Metrics) ObserveCheckLatency(durationSeconds float64) {
	m.CheckLatency.Observe(durationSeconds)
}
