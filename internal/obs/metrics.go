package obs

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics collects engine counters into an isolated prometheus registry
// alongside lock-free latency stats. A nil *Metrics is a no-op.
type Metrics struct {
	registry *prometheus.Registry

	signals       *prometheus.CounterVec
	orders        *prometheus.CounterVec
	brokerErrors  *prometheus.CounterVec
	partialExits  *prometheus.CounterVec
	stopMoves     *prometheus.CounterVec
	closed        prometheus.Counter
	breakerEvents *prometheus.CounterVec
	journalDrops  prometheus.Counter

	balance       prometheus.Gauge
	equity        prometheus.Gauge
	dailyPnL      prometheus.Gauge
	openPositions prometheus.Gauge
	halted        prometheus.Gauge
	connected     prometheus.Gauge
	tickSeconds   prometheus.Histogram

	tickLatency      LatencyStats
	submitLatency    LatencyStats
	heartbeatLatency LatencyStats
}

// Snapshot is the latency portion of the metrics.
type Snapshot struct {
	Tick      LatencySnapshot `json:"tick"`
	Submit    LatencySnapshot `json:"submit"`
	Heartbeat LatencySnapshot `json:"heartbeat"`
}

// NewMetrics allocates metrics registered under namespace.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "scalper"
	}
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "signals_total", Help: "Signals by outcome and rejection reason.",
		}, []string{"outcome", "reason"}),
		orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "orders_total", Help: "Order submissions by side and result.",
		}, []string{"side", "result"}),
		brokerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "broker_errors_total", Help: "Broker rejections by operation and class.",
		}, []string{"op", "class"}),
		partialExits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "partial_exits_total", Help: "Partial exits by stage.",
		}, []string{"stage"}),
		stopMoves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "stop_moves_total", Help: "Stop loss relocations by kind.",
		}, []string{"kind"}),
		closed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "positions_closed_total", Help: "Positions the broker reported closed.",
		}),
		breakerEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "breaker_events_total", Help: "Circuit breaker engagements and daily resets.",
		}, []string{"event"}),
		journalDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "journal_drops_total", Help: "Journal entries dropped by a full queue.",
		}),
		balance: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "account_balance", Help: "Broker reported balance.",
		}),
		equity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "account_equity", Help: "Broker reported equity.",
		}),
		dailyPnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "daily_pnl", Help: "Profit or loss since the day start balance.",
		}),
		openPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "open_positions", Help: "Tracked open positions.",
		}),
		halted: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "halted", Help: "1 while the circuit breaker is engaged.",
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "channel_connected", Help: "1 while the signal channel is connected.",
		}),
		tickSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "tick_duration_seconds", Help: "Control loop tick duration.",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.signals, m.orders, m.brokerErrors, m.partialExits, m.stopMoves, m.closed,
		m.breakerEvents, m.journalDrops, m.balance, m.equity, m.dailyPnL,
		m.openPositions, m.halted, m.connected, m.tickSeconds,
	)
	return m
}

// Registry returns the registry to expose over HTTP.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// IncSignal counts a signal. An empty reason means it was accepted.
func (m *Metrics) IncSignal(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		m.signals.WithLabelValues("accepted", "").Inc()
		return
	}
	m.signals.WithLabelValues("rejected", reason).Inc()
}

// IncOrder counts an order submission.
func (m *Metrics) IncOrder(side, result string) {
	if m == nil {
		return
	}
	m.orders.WithLabelValues(side, result).Inc()
}

// IncBrokerError counts a broker rejection.
func (m *Metrics) IncBrokerError(op, class string) {
	if m == nil {
		return
	}
	m.brokerErrors.WithLabelValues(op, class).Inc()
}

// IncPartialExit counts a partial exit.
func (m *Metrics) IncPartialExit(stage string) {
	if m == nil {
		return
	}
	m.partialExits.WithLabelValues(stage).Inc()
}

// IncStopMove counts a stop relocation.
func (m *Metrics) IncStopMove(kind string) {
	if m == nil {
		return
	}
	m.stopMoves.WithLabelValues(kind).Inc()
}

// IncClosed counts positions closed by the broker.
func (m *Metrics) IncClosed(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.closed.Add(float64(n))
}

// IncBreaker counts a breaker event.
func (m *Metrics) IncBreaker(event string) {
	if m == nil {
		return
	}
	m.breakerEvents.WithLabelValues(event).Inc()
}

// IncJournalDrop counts a dropped journal entry.
func (m *Metrics) IncJournalDrop() {
	if m == nil {
		return
	}
	m.journalDrops.Inc()
}

// SetAccount updates account gauges.
func (m *Metrics) SetAccount(balance, equity, dailyPnL float64) {
	if m == nil {
		return
	}
	m.balance.Set(balance)
	m.equity.Set(equity)
	m.dailyPnL.Set(dailyPnL)
}

// SetState updates engine state gauges.
func (m *Metrics) SetState(openPositions int, halted, connected bool) {
	if m == nil {
		return
	}
	m.openPositions.Set(float64(openPositions))
	m.halted.Set(boolGauge(halted))
	m.connected.Set(boolGauge(connected))
}

// ObserveTick records a control loop pass.
func (m *Metrics) ObserveTick(d time.Duration) {
	if m == nil {
		return
	}
	m.tickLatency.Observe(d)
	m.tickSeconds.Observe(d.Seconds())
}

// ObserveSubmit records a broker submission round trip.
func (m *Metrics) ObserveSubmit(d time.Duration) {
	if m == nil {
		return
	}
	m.submitLatency.Observe(d)
}

// ObserveHeartbeat records a heartbeat round trip.
func (m *Metrics) ObserveHeartbeat(d time.Duration) {
	if m == nil {
		return
	}
	m.heartbeatLatency.Observe(d)
}

// Snapshot returns the latency stats.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	return Snapshot{
		Tick:      m.tickLatency.Snapshot(),
		Submit:    m.submitLatency.Snapshot(),
		Heartbeat: m.heartbeatLatency.Snapshot(),
	}
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
