package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds registry-wide gauges refreshed from statistics snapshots.
type Metrics struct {
	IdentitiesByStatus *prometheus.GaugeVec
	ConsentEventsTotal prometheus.Gauge
	ConsentStates      *prometheus.GaugeVec
	SnapshotTimestamp  prometheus.Gauge
}

// New registers the gauges on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

func NewWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		IdentitiesByStatus: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cidledger_identities",
			Help: "Number of identities, labeled by status",
		}, []string{"status"}),
		ConsentEventsTotal: f.NewGauge(prometheus.GaugeOpts{
			Name: "cidledger_consent_events",
			Help: "Number of consent events stored across all chains",
		}),
		ConsentStates: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cidledger_consent_states",
			Help: "Number of identities per derived consent state (active, revoked)",
		}, []string{"state"}),
		SnapshotTimestamp: f.NewGauge(prometheus.GaugeOpts{
			Name: "cidledger_stats_snapshot_timestamp_seconds",
			Help: "Unix time of the last statistics snapshot",
		}),
	}
}

// RecordSnapshot publishes aggregate counts. Nil receivers are ignored.
func (m *Metrics) RecordSnapshot(byStatus map[string]int64, totalEvents, active, revoked int64, unix float64) {
	if m == nil {
		return
	}
	for status, n := range byStatus {
		m.IdentitiesByStatus.WithLabelValues(status).Set(float64(n))
	}
	m.ConsentEventsTotal.Set(float64(totalEvents))
	m.ConsentStates.WithLabelValues("active").Set(float64(active))
	m.ConsentStates.WithLabelValues("revoked").Set(float64(revoked))
	m.SnapshotTimestamp.Set(unix)
}

// Handler exposes the default registry for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}
