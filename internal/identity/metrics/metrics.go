package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for identity registry operations.
type Metrics struct {
	IdentitiesCreated     *prometheus.CounterVec
	StatusTransitions     *prometheus.CounterVec
	ContactsUpserted      *prometheus.CounterVec
	StoreOperationLatency *prometheus.HistogramVec
}

// New registers identity collectors on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

func NewWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		IdentitiesCreated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cidledger_identities_created_total",
			Help: "Total number of identities created, labeled by initial status",
		}, []string{"status"}),
		StatusTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cidledger_identity_status_transitions_total",
			Help: "Total number of identity status transitions",
		}, []string{"from", "to"}),
		ContactsUpserted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cidledger_identity_contacts_upserted_total",
			Help: "Total number of contact upserts, labeled by contact type",
		}, []string{"type"}),
		StoreOperationLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cidledger_identity_store_operation_latency_seconds",
			Help:    "Latency of identity store operations in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"operation"}),
	}
}

func (m *Metrics) IncrementIdentitiesCreated(status string) {
	m.IdentitiesCreated.WithLabelValues(status).Inc()
}

func (m *Metrics) IncrementStatusTransition(from, to string) {
	m.StatusTransitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) IncrementContactsUpserted(contactType string) {
	m.ContactsUpserted.WithLabelValues(contactType).Inc()
}

// ObserveStoreOperationLatency records the latency of a store operation.
func (m *Metrics) ObserveStoreOperationLatency(operation string, durationSeconds float64) {
	m.StoreOperationLatency.WithLabelValues(operation).Observe(durationSeconds)
}
