package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for the pool controller.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	opDuration    *prometheus.HistogramVec
	opsTotal      *prometheus.CounterVec
	breakerTrips  *prometheus.CounterVec
	currentWeight *prometheus.GaugeVec
	swapEnabled   *prometheus.GaugeVec
}

// NewMetrics creates and registers the metrics for the pool controller.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		opDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "poolguard_operation_duration_seconds",
			Help:    "Time taken by a pool operation, including store reads and commit.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		opsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "poolguard_operations_total",
			Help: "Total number of pool operations, labeled by operation and result.",
		}, []string{"op", "result"}),
		breakerTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "poolguard_breaker_trips_total",
			Help: "Operations rejected by a circuit breaker, labeled by token and bound.",
		}, []string{"pool", "token", "bound"}),
		currentWeight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "poolguard_current_weight",
			Help: "Interpolated normalized weight of a token as a fraction of one.",
		}, []string{"pool", "token"}),
		swapEnabled: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "poolguard_swap_enabled",
			Help: "1 when trading is enabled for the pool.",
		}, []string{"pool"}),
	}
	reg.MustRegister(m.opDuration, m.opsTotal, m.breakerTrips, m.currentWeight, m.swapEnabled)
	return m
}

// ObserveOp records one finished operation.
func (m *Metrics) ObserveOp(op string, started time.Time, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.opDuration.WithLabelValues(op).Observe(time.Since(started).Seconds())
	m.opsTotal.WithLabelValues(op, result).Inc()
}

// BreakerTripped counts a rejected operation. bound is "max" or "min".
func (m *Metrics) BreakerTripped(pool, token, bound string) {
	if m == nil {
		return
	}
	m.breakerTrips.WithLabelValues(pool, token, bound).Inc()
}

// SetWeight publishes a token's current weight, given as a float fraction.
func (m *Metrics) SetWeight(pool, token string, weight float64) {
	if m == nil {
		return
	}
	m.currentWeight.WithLabelValues(pool, token).Set(weight)
}

// SetSwapEnabled publishes the trading flag.
func (m *Metrics) SetSwapEnabled(pool string, enabled bool) {
	if m == nil {
		return
	}
	v := 0.0
	if enabled {
		v = 1
	}
	m.swapEnabled.WithLabelValues(pool).Set(v)
}
