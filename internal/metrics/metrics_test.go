package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveOp(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveOp("swap", time.Now(), nil)
	m.ObserveOp("swap", time.Now(), errors.New("tripped"))
	m.ObserveOp("swap", time.Now(), nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.opsTotal.WithLabelValues("swap", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.opsTotal.WithLabelValues("swap", "error")))
}

func TestGauges(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.SetWeight("p", "0x01", 0.65)
	m.SetSwapEnabled("p", true)
	m.BreakerTripped("p", "0x01", "max")

	assert.Equal(t, 0.65, testutil.ToFloat64(m.currentWeight.WithLabelValues("p", "0x01")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.swapEnabled.WithLabelValues("p")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.breakerTrips.WithLabelValues("p", "0x01", "max")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveOp("swap", time.Now(), nil)
	m.BreakerTripped("p", "t", "min")
	m.SetWeight("p", "t", 1)
	m.SetSwapEnabled("p", false)
}
