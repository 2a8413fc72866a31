package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scalper/internal/journal"
	"scalper/internal/obs"
	"scalper/internal/og"
	"scalper/internal/og/ogtest"
	"scalper/internal/ops"
	"scalper/internal/paper"
	"scalper/internal/schema"
	"scalper/internal/state"
	"scalper/pkg/exception"
)

var t0 = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

type fakeQuotes struct {
	quote schema.Quote
	atr   float64
	err   error
}

func (f *fakeQuotes) Quote(context.Context, string) (schema.Quote, error) {
	return f.quote, f.err
}

func (f *fakeQuotes) ATR(context.Context, string, int) (float64, error) {
	return f.atr, f.err
}

func (f *fakeQuotes) set(bid float64) {
	f.quote.Bid = bid
	f.quote.Ask = bid + 0.0001
}

type fakeChannel struct {
	pending    []schema.Signal
	heartbeats []schema.Heartbeat
	polls      int
	sendErr    error
}

func (c *fakeChannel) Poll() (schema.Signal, bool) {
	c.polls++
	if len(c.pending) == 0 {
		return schema.Signal{}, false
	}
	sig := c.pending[0]
	c.pending = c.pending[1:]
	return sig, true
}

func (c *fakeChannel) SendHeartbeat(hb schema.Heartbeat) error {
	if c.sendErr != nil {
		return c.sendErr
	}
	c.heartbeats = append(c.heartbeats, hb)
	return nil
}

func (c *fakeChannel) Connected() bool { return true }

func (c *fakeChannel) push(action schema.Action, confidence float64) {
	c.pending = append(c.pending, schema.Signal{
		ID:         "sig-" + action.String(),
		Symbol:     "EURUSD",
		Action:     action,
		Confidence: confidence,
		Reason:     "test",
		ReceivedAt: t0,
	})
}

type fixture struct {
	engine  *Engine
	broker  *ogtest.Broker
	quotes  *fakeQuotes
	channel *fakeChannel
	journal *journal.MemoryStore
	store   *state.MemoryStore
	runtime *ops.Runtime
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		broker:  ogtest.NewBroker(10000),
		quotes:  &fakeQuotes{quote: schema.Quote{Symbol: "EURUSD", Bid: 1.1000, Ask: 1.1001}, atr: 0.001},
		channel: &fakeChannel{},
		journal: journal.NewMemoryStore(),
		store:   state.NewMemoryStore(),
		runtime: ops.NewRuntime(ops.Default()),
	}
	engine, err := New(Deps{
		Runtime: f.runtime,
		Broker:  f.broker,
		Quotes:  f.quotes,
		Channel: f.channel,
		Journal: f.journal,
		Store:   f.store,
		Metrics: obs.NewMetrics("test"),
	})
	require.NoError(t, err)
	f.engine = engine
	return f
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Deps{Runtime: ops.NewRuntime(ops.Default())})
	require.ErrorIs(t, err, exception.ErrOrderNilBroker)
	_, err = New(Deps{})
	require.ErrorIs(t, err, exception.ErrNilInstance)
}

func TestTickAcceptsSignalAndOpensPosition(t *testing.T) {
	f := newFixture(t)
	f.channel.push(schema.ActionBuy, 0.9)

	f.engine.Tick(context.Background(), t0)

	require.Equal(t, 1, f.broker.Count("submit"))
	call, _ := f.broker.Last("submit")
	assert.Equal(t, schema.SideBuy, call.Order.Side)
	assert.Equal(t, 1.1001, call.Order.Price)
	assert.InDelta(t, 1.1001-0.0015, call.Order.StopLoss, 1e-9)
	assert.InDelta(t, 1.1001+0.00225, call.Order.TakeProfit, 1e-9)
	assert.GreaterOrEqual(t, call.Order.Lots, 0.01)
	assert.LessOrEqual(t, call.Order.Lots, 1.0)

	positions := f.engine.Book().Positions()
	require.Len(t, positions, 1)
	assert.Equal(t, schema.StageNone, positions[0].Stage)
	assert.InDelta(t, 0.00075, positions[0].TrailDistance, 1e-12)

	trade, ok := f.journal.Trade(positions[0].Ticket)
	require.True(t, ok)
	assert.Equal(t, "sig-BUY", trade.SignalID)
	assert.Equal(t, journal.StatusOpen, trade.Status)
	assert.Equal(t, t0, f.engine.State().LastAccepted["EURUSD"])

	status := f.engine.Status()
	assert.Len(t, status.Positions, 1)
	assert.Equal(t, 10000.0, status.DayStartBalance)
}

func TestTickRejectsLowConfidence(t *testing.T) {
	f := newFixture(t)
	f.channel.push(schema.ActionSell, 0.6)

	f.engine.Tick(context.Background(), t0)

	assert.Zero(t, f.broker.Count("submit"))
	entries := f.journal.Entries()
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Signal.Accepted)
	assert.Equal(t, "low confidence", entries[0].Signal.RejectReason)
}

func TestTickPollsOneSignalPerTick(t *testing.T) {
	f := newFixture(t)
	f.channel.push(schema.ActionBuy, 0.9)
	f.channel.push(schema.ActionBuy, 0.9)

	f.engine.Tick(context.Background(), t0)
	assert.Equal(t, 1, f.broker.Count("submit"))
	assert.Len(t, f.channel.pending, 1)

	f.engine.Tick(context.Background(), t0.Add(time.Second))
	assert.Equal(t, 2, f.broker.Count("submit"))
}

func TestTickDropsSignalOnBrokerRejection(t *testing.T) {
	f := newFixture(t)
	f.broker.SubmitErr = &og.BrokerError{Op: "submit", Code: og.CodeRequote}
	f.channel.push(schema.ActionBuy, 0.9)

	f.engine.Tick(context.Background(), t0)
	f.engine.Tick(context.Background(), t0.Add(time.Second))

	assert.Equal(t, 1, f.broker.Count("submit"))
	assert.Zero(t, f.engine.Book().Len())
	assert.Zero(t, f.journal.Count(schema.EventPositionOpen))
}

func TestTickSkipsWorkWithoutQuote(t *testing.T) {
	f := newFixture(t)
	f.quotes.err = exception.ErrChannelNotConnected
	f.channel.push(schema.ActionBuy, 0.9)

	f.engine.Tick(context.Background(), t0)

	assert.Zero(t, f.channel.polls)
	assert.Len(t, f.channel.pending, 1)
	assert.Len(t, f.channel.heartbeats, 1)
}

func TestTickTakesFirstPartialExit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.channel.push(schema.ActionBuy, 0.9)
	f.engine.Tick(ctx, t0)
	pos := f.engine.Book().Positions()[0]

	f.quotes.set(pos.EntryPrice + 0.6*pos.TP1Distance())
	f.engine.Tick(ctx, t0.Add(time.Second))

	after, ok := f.engine.Book().Position(pos.Ticket)
	require.True(t, ok)
	assert.Equal(t, schema.StageTP1, after.Stage)
	assert.Less(t, after.Lots, pos.Lots)
	assert.GreaterOrEqual(t, after.StopLoss, pos.EntryPrice+0.0001-1e-9)
	assert.Equal(t, 1, f.broker.Count("close"))
	assert.Equal(t, 1, f.journal.Count(schema.EventPartialExit))

	f.engine.Tick(ctx, t0.Add(2*time.Second))
	assert.Equal(t, 1, f.broker.Count("close"))
}

func TestTickReconcilesBrokerClose(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.channel.push(schema.ActionBuy, 0.9)
	f.engine.Tick(ctx, t0)
	ticket := f.engine.Book().Tickets()[0]

	f.broker.Drop(ticket)
	f.quotes.set(1.0980)
	f.engine.Tick(ctx, t0.Add(time.Second))

	assert.Zero(t, f.engine.Book().Len())
	assert.Equal(t, 1, f.engine.State().Losses)
	assert.Equal(t, 1, f.engine.State().Daily.TradeCount)
	trade, ok := f.journal.Trade(ticket)
	require.True(t, ok)
	assert.Equal(t, journal.StatusClosed, trade.Status)
	assert.Less(t, trade.PnL, 0.0)
}

func TestCircuitBreakerLatchesUntilNextDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.engine.Tick(ctx, t0)

	f.broker.SetAccount(schema.Account{Balance: 9490, Equity: 9490})
	f.channel.push(schema.ActionBuy, 0.95)
	f.engine.Tick(ctx, t0.Add(time.Minute))

	assert.True(t, f.engine.State().Halted)
	assert.Zero(t, f.broker.Count("submit"))
	assert.Equal(t, 1, f.journal.Count(schema.EventBreakerHalt))
	signals := f.journal.Entries()
	assert.Equal(t, "circuit breaker engaged", signals[len(signals)-1].Signal.RejectReason)

	f.broker.SetAccount(schema.Account{Balance: 10000, Equity: 10000})
	f.channel.push(schema.ActionBuy, 0.95)
	f.engine.Tick(ctx, t0.Add(2*time.Minute))
	assert.True(t, f.engine.State().Halted)
	assert.Zero(t, f.broker.Count("submit"))

	f.channel.push(schema.ActionBuy, 0.95)
	f.engine.Tick(ctx, t0.Add(24*time.Hour))
	assert.False(t, f.engine.State().Halted)
	assert.Equal(t, 10000.0, f.engine.State().Daily.DayStartBalance)
	assert.Equal(t, 1, f.broker.Count("submit"))
	assert.Equal(t, 1, f.journal.Count(schema.EventBreakerClear))
}

func TestNoOrdersWithoutAccountBaseline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.broker.AccountErr = exception.ErrInternal

	for i := range 3 {
		f.channel.push(schema.ActionBuy, 0.9)
		f.engine.Tick(ctx, t0.Add(time.Duration(i)*time.Minute))
	}
	assert.Zero(t, f.broker.Count("submit"))
	assert.Zero(t, f.engine.State().Daily.DayStartBalance)
	assert.False(t, f.engine.State().Halted)
	assert.Equal(t, 3, f.journal.Count(schema.EventSignal))
	for _, e := range f.journal.Entries() {
		if e.Type == schema.EventSignal {
			assert.Equal(t, "circuit breaker engaged", e.Signal.RejectReason)
		}
	}

	f.broker.AccountErr = nil
	f.channel.push(schema.ActionBuy, 0.9)
	f.engine.Tick(ctx, t0.Add(5*time.Minute))
	assert.Equal(t, 10000.0, f.engine.State().Daily.DayStartBalance)
	assert.Equal(t, 1, f.broker.Count("submit"))
}

func TestCircuitBreakerBelowThreshold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.engine.Tick(ctx, t0)

	f.broker.SetAccount(schema.Account{Balance: 9501, Equity: 9501})
	f.engine.Tick(ctx, t0.Add(time.Minute))
	assert.False(t, f.engine.State().Halted)

	f.broker.SetAccount(schema.Account{Balance: 9500, Equity: 9500})
	f.engine.Tick(ctx, t0.Add(2*time.Minute))
	assert.True(t, f.engine.State().Halted)
}

func TestHeartbeatInterval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.engine.Tick(ctx, t0)
	f.engine.Tick(ctx, t0.Add(30*time.Second))
	require.Len(t, f.channel.heartbeats, 1)
	assert.Equal(t, t0.UnixNano(), f.channel.heartbeats[0].ClientTimestamp)
	assert.Equal(t, 10000.0, f.channel.heartbeats[0].AccountBalance)

	f.channel.sendErr = exception.ErrChannelNotConnected
	f.engine.Tick(ctx, t0.Add(60*time.Second))
	f.channel.sendErr = nil
	f.engine.Tick(ctx, t0.Add(90*time.Second))
	assert.Len(t, f.channel.heartbeats, 1)

	f.engine.Tick(ctx, t0.Add(120*time.Second))
	assert.Len(t, f.channel.heartbeats, 2)
}

func TestHeartbeatReplyLatency(t *testing.T) {
	f := newFixture(t)
	f.engine.OnHeartbeatReply(schema.HeartbeatReply{Status: "ok", ClientTimestamp: t0.UnixNano()}, t0.Add(40*time.Millisecond))
	f.engine.OnHeartbeatReply(schema.HeartbeatReply{Status: "ok"}, t0)

	f.engine.Tick(context.Background(), t0)
	hb := f.engine.Status().Latency.Heartbeat
	assert.Equal(t, uint64(1), hb.Count)
	assert.Equal(t, 40*time.Millisecond, hb.Last)
}

func TestConfigReloadAppliesBetweenTicks(t *testing.T) {
	f := newFixture(t)
	next := ops.Default()
	next.Risk.ConfidenceThreshold = 0.95
	f.runtime.Update(next)

	f.channel.push(schema.ActionBuy, 0.9)
	f.engine.Tick(context.Background(), t0)

	assert.Zero(t, f.broker.Count("submit"))
	assert.Equal(t, uint64(2), f.engine.Status().ConfigVersion)
}

func TestSnapshotRestore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.channel.push(schema.ActionBuy, 0.9)
	f.engine.Tick(ctx, t0)
	f.broker.SetAccount(schema.Account{Balance: 9400, Equity: 9400})
	f.engine.Tick(ctx, t0.Add(time.Minute))
	require.True(t, f.engine.State().Halted)

	restored, err := New(Deps{
		Runtime: f.runtime,
		Broker:  f.broker,
		Quotes:  f.quotes,
		Channel: &fakeChannel{},
		Store:   f.store,
	})
	require.NoError(t, err)
	require.NoError(t, restored.Restore(ctx))

	assert.Equal(t, f.engine.Book().Positions(), restored.Book().Positions())
	assert.True(t, restored.State().Halted)
	assert.Equal(t, 10000.0, restored.State().Daily.DayStartBalance)

	restored.Tick(ctx, t0.Add(2*time.Minute))
	assert.True(t, restored.State().Halted)
}

func TestRestoreWithoutSnapshot(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.Restore(context.Background()))
	assert.Zero(t, f.engine.Book().Len())
}

func TestPaperSession(t *testing.T) {
	ctx := context.Background()
	cfg := ops.Default()
	market := paper.NewMarket(paper.MarketConfig{Symbol: "EURUSD", Start: 1.1, Spread: 0.0001, Volatility: 0.0008, Seed: 3})
	broker := paper.NewBroker(paper.BrokerConfig{Balance: 10000}, market)
	channel := &fakeChannel{}
	engine, err := New(Deps{
		Runtime: ops.NewRuntime(cfg),
		Broker:  broker,
		Quotes:  market,
		Channel: channel,
	})
	require.NoError(t, err)

	now := t0
	for i := 0; i < 200; i++ {
		if i%20 == 0 {
			channel.push(schema.ActionBuy, 0.9)
		}
		market.Step()
		engine.Tick(ctx, now)
		now = now.Add(time.Second)

		for _, pos := range engine.Book().Positions() {
			require.GreaterOrEqual(t, pos.Lots, 0.0)
			require.LessOrEqual(t, pos.Lots, pos.OriginalLots)
		}
		require.LessOrEqual(t, engine.Book().Count("EURUSD"), cfg.Risk.MaxTradesPerSymbol)
	}
	acct, err := broker.Account(ctx)
	require.NoError(t, err)
	realized := 10000.0
	for _, d := range broker.Deals() {
		realized += d.PnL
	}
	assert.InDelta(t, realized, acct.Balance, 1e-6)
	assert.Positive(t, engine.State().Balance)
}
