package registry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus metrics for the factory.
type Metrics struct {
	pairsCreated *prometheus.CounterVec
}

// NewMetrics creates and registers the factory metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		pairsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "factory_pairs_created_total",
			Help: "Total number of pairs created, labeled by pool role and curve.",
		}, []string{"role", "curve"}),
	}
	reg.MustRegister(m.pairsCreated)
	return m
}

func (m *Metrics) pairCreated(role, curve string) {
	if m == nil {
		return
	}
	m.pairsCreated.WithLabelValues(role, curve).Inc()
}
