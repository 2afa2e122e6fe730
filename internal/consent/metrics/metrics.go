package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for consent chain operations.
type Metrics struct {
	EventsAppended     *prometheus.CounterVec
	AppendConflicts    prometheus.Counter
	ChainVerifications *prometheus.CounterVec
	DerivedCache       *prometheus.CounterVec
	ChainLength        prometheus.Histogram

	// Performance metrics
	StoreOperationLatency *prometheus.HistogramVec
	ShardLockWait         prometheus.Histogram
}

// New registers consent collectors on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

func NewWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		EventsAppended: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cidledger_consent_events_appended_total",
			Help: "Total number of consent events appended, labeled by event type",
		}, []string{"event_type"}),
		AppendConflicts: f.NewCounter(prometheus.CounterOpts{
			Name: "cidledger_consent_append_conflicts_total",
			Help: "Appends rejected because the chain head moved",
		}),
		ChainVerifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cidledger_consent_chain_verifications_total",
			Help: "Chain verifications, labeled by result",
		}, []string{"result"}),
		DerivedCache: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cidledger_consent_derived_cache_total",
			Help: "Derived consent cache lookups, labeled by outcome",
		}, []string{"outcome"}),
		ChainLength: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "cidledger_consent_chain_length",
			Help:    "Distribution of chain lengths replayed",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 1000},
		}),
		StoreOperationLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cidledger_consent_store_operation_latency_seconds",
			Help:    "Latency of consent store operations in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"operation"}),
		ShardLockWait: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "cidledger_consent_shard_lock_wait_seconds",
			Help:    "Time spent waiting to acquire a per-CID append lock",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
	}
}

func (m *Metrics) IncrementEventsAppended(eventType string) {
	m.EventsAppended.WithLabelValues(eventType).Inc()
}

func (m *Metrics) IncrementAppendConflicts() {
	m.AppendConflicts.Inc()
}

func (m *Metrics) IncrementChainVerification(valid bool) {
	result := "valid"
	if !valid {
		result = "invalid"
	}
	m.ChainVerifications.WithLabelValues(result).Inc()
}

// IncrementDerivedCache records a cache outcome: hit, miss, stale or error.
func (m *Metrics) IncrementDerivedCache(outcome string) {
	m.DerivedCache.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveChainLength(n int) {
	m.ChainLength.Observe(float64(n))
}

func (m *Metrics) ObserveStoreOperationLatency(operation string, seconds float64) {
	m.StoreOperationLatency.WithLabelValues(operation).Observe(seconds)
}

func (m *Metrics) ObserveShardLockWait(seconds float64) {
	m.ShardLockWait.Observe(seconds)
}
