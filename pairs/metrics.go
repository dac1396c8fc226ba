package pairs

import (
	"math/big"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus metrics for pair swap activity.
type Metrics struct {
	swapDuration *prometheus.HistogramVec
	swapsTotal   *prometheus.CounterVec
	feeVolume    *prometheus.CounterVec
}

// NewMetrics creates and registers the pair metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		swapDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pair_swap_duration_seconds",
			Help:    "Time taken to execute a single swap operation.",
			Buckets: prometheus.DefBuckets,
		}, []string{"direction"}),
		swapsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pair_swaps_total",
			Help: "Total number of swap operations, labeled by direction and result.",
		}, []string{"direction", "result"}),
		feeVolume: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pair_fee_volume_wad",
			Help: "Cumulative fee volume extracted from swaps, in wad units.",
		}, []string{"kind"}),
	}
	reg.MustRegister(m.swapDuration, m.swapsTotal, m.feeVolume)
	return m
}

// observeSwap records one completed swap attempt. Safe on a nil receiver so
// pairs without metrics skip accounting entirely.
func (m *Metrics) observeSwap(direction, result string, start time.Time) {
	if m == nil {
		return
	}
	m.swapsTotal.WithLabelValues(direction, result).Inc()
	m.swapDuration.WithLabelValues(direction).Observe(time.Since(start).Seconds())
}

// addFee records extracted fee volume by kind ("protocol" or "trade").
func (m *Metrics) addFee(kind string, amount *big.Int) {
	if m == nil || amount == nil || amount.Sign() <= 0 {
		return
	}
	f, _ := new(big.Float).SetInt(amount).Float64()
	m.feeVolume.WithLabelValues(kind).Add(f)
}
