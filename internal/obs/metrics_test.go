package obs

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatencyStats(t *testing.T) {
	var l LatencyStats
	assert.Equal(t, LatencySnapshot{}, l.Snapshot())
	l.Observe(3 * time.Millisecond)
	l.Observe(time.Millisecond)
	l.Observe(-time.Second)
	l.Observe(5 * time.Millisecond)

	s := l.Snapshot()
	assert.Equal(t, uint64(3), s.Count)
	assert.Equal(t, time.Millisecond, s.Min)
	assert.Equal(t, 5*time.Millisecond, s.Max)
	assert.Equal(t, 3*time.Millisecond, s.Avg)
	assert.Equal(t, 5*time.Millisecond, s.Last)
}

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics("test")
	m.IncSignal("")
	m.IncSignal("low confidence")
	m.IncSignal("low confidence")
	m.IncOrder("buy", "filled")
	m.SetState(2, true, false)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.signals.WithLabelValues("accepted", "")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.signals.WithLabelValues("rejected", "low confidence")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.orders.WithLabelValues("buy", "filled")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.openPositions))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.halted))

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.IncSignal("x")
	m.ObserveTick(time.Second)
	m.SetAccount(1, 2, 3)
	assert.Nil(t, m.Registry())
	assert.Equal(t, Snapshot{}, m.Snapshot())
}
