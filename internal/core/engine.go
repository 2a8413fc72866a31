package core

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"scalper/internal/journal"
	"scalper/internal/lifecycle"
	"scalper/internal/obs"
	"scalper/internal/og"
	"scalper/internal/ops"
	"scalper/internal/risk"
	"scalper/internal/schema"
	"scalper/internal/sizing"
	"scalper/internal/state"
	"scalper/pkg/exception"
)

// QuoteSource supplies market data for one tick.
type QuoteSource interface {
	Quote(ctx context.Context, symbol string) (schema.Quote, error)
	ATR(ctx context.Context, symbol string, period int) (float64, error)
}

// Channel is the non-blocking side of the signal channel.
type Channel interface {
	Poll() (schema.Signal, bool)
	SendHeartbeat(hb schema.Heartbeat) error
	Connected() bool
}

// Deps are the collaborators of an engine. Journal, Store and Metrics are optional.
type Deps struct {
	Runtime *ops.Runtime
	Broker  og.Broker
	Quotes  QuoteSource
	Channel Channel
	Journal journal.Recorder
	Store   state.Store
	Metrics *obs.Metrics
}

// Engine owns the positions and the risk state of one symbol.
type Engine struct {
	deps Deps

	version   uint64
	cfg       ops.Loaded
	validator *risk.Validator
	breaker   *risk.Breaker
	sizer     *sizing.Sizer
	planner   *sizing.ExitPlanner
	gateway   *og.Gateway
	manager   *lifecycle.Manager

	book  *og.Book
	state *state.EngineState

	lastHeartbeat time.Time
	lastTick      time.Time
	haveAccount   bool
	dirty         bool

	status atomic.Value
}

// New creates an engine from the active runtime configuration.
func New(deps Deps) (*Engine, error) {
	switch {
	case deps.Runtime == nil:
		return nil, errors.Wrap(exception.ErrNilInstance, "runtime")
	case deps.Broker == nil:
		return nil, exception.ErrOrderNilBroker
	case deps.Quotes == nil:
		return nil, errors.Wrap(exception.ErrNilInstance, "quote source")
	case deps.Channel == nil:
		return nil, errors.Wrap(exception.ErrNilInstance, "channel")
	}
	e := &Engine{
		deps:  deps,
		book:  og.NewBook(),
		state: state.NewEngineState(),
	}
	if err := e.apply(deps.Runtime.Load()); err != nil {
		return nil, err
	}
	e.publishStatus()
	return e, nil
}

// apply rebuilds every config-derived component. The book and state are kept.
func (e *Engine) apply(cfg ops.Loaded) error {
	gw, err := og.NewGateway(og.GatewayConfig{
		MaxSlippage:   cfg.Order.MaxSlippage,
		Magic:         cfg.Order.Magic,
		TagPrefix:     cfg.Order.TagPrefix,
		TrailFraction: cfg.Planner.TrailFraction,
	}, e.deps.Broker, e.book)
	if err != nil {
		return err
	}
	e.version = cfg.Version
	e.cfg = cfg
	e.validator = risk.NewValidator(cfg.Risk, cfg.Registry)
	e.breaker = risk.NewBreaker(cfg.Risk.MaxDailyLoss)
	e.sizer = sizing.NewSizer(cfg.Sizing)
	e.planner = sizing.NewExitPlanner(cfg.Planner)
	e.gateway = gw
	e.manager = lifecycle.NewManager(cfg.Lifecycle, gw)
	return nil
}

func (e *Engine) reload() {
	if e.deps.Runtime.Version() == e.version {
		return
	}
	cfg := e.deps.Runtime.Load()
	if cfg.Symbol != e.cfg.Symbol {
		logs.Errorf("config reload ignored, symbol cannot change from %s to %s", e.cfg.Symbol, cfg.Symbol)
		e.version = cfg.Version
		return
	}
	if err := e.apply(cfg); err != nil {
		logs.Errorf("config reload failed, err: %+v", err)
		e.version = cfg.Version
		return
	}
	logs.Infof("config version %d applied", cfg.Version)
}

// Run restores the last snapshot and ticks until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.Restore(ctx); err != nil {
		return err
	}
	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			e.dirty = true
			e.snapshot(context.WithoutCancel(ctx))
			return nil
		case now := <-ticker.C:
			e.Tick(ctx, now)
		}
	}
}

// Tick runs one pass of the control loop. Failures are logged and never
// stop the loop.
func (e *Engine) Tick(ctx context.Context, now time.Time) {
	start := time.Now()
	e.reload()
	symbol := e.cfg.Symbol

	e.refreshAccount(ctx, now)
	e.evaluateBreaker(now)

	quote, ok := e.fetchQuote(ctx, symbol)
	if ok {
		res := e.manager.Evaluate(ctx, lifecycle.Market{Quote: quote, Now: now})
		e.applyLifecycle(res, quote, now)

		if sig, polled := e.deps.Channel.Poll(); polled {
			e.handleSignal(ctx, sig, quote)
		}
	}

	e.heartbeat(now)
	e.snapshot(ctx)

	e.lastTick = now
	e.deps.Metrics.SetAccount(e.state.Balance, e.state.Equity, e.state.Daily.PnL(e.state.Worth()))
	e.deps.Metrics.SetState(e.book.Len(), e.state.Halted, e.deps.Channel.Connected())
	e.deps.Metrics.ObserveTick(time.Since(start))
	e.publishStatus()
}

func (e *Engine) refreshAccount(ctx context.Context, now time.Time) {
	acct, err := e.deps.Broker.Account(ctx)
	if err != nil {
		logs.Warnf("account query failed, keep last known, err: %+v", err)
	} else {
		e.state.UpdateAccount(acct.Balance, acct.Equity)
		e.haveAccount = true
	}
	if !e.haveAccount {
		return
	}
	wasHalted := e.state.Halted
	if e.state.Roll(now, e.cfg.Location, e.state.Balance) {
		e.dirty = true
		logs.Infof("trading day %s started, day start balance: %.2f", e.state.Daily.Day, e.state.Daily.DayStartBalance)
		if wasHalted {
			logs.Infof("circuit breaker cleared by daily reset")
			e.deps.Metrics.IncBreaker("clear")
			e.record(breakerEntry(schema.EventBreakerClear, e.cfg.Symbol, e.state, 0, now))
		}
	}
}

func (e *Engine) evaluateBreaker(now time.Time) {
	if !e.haveAccount {
		return
	}
	if e.breaker.Evaluate(e.state, e.state.Worth(), now) != risk.TransitionEngaged {
		return
	}
	e.dirty = true
	threshold := e.breaker.Threshold(e.state.Daily.DayStartBalance)
	logs.Errorf("circuit breaker engaged, daily pnl: %.2f, threshold: %.2f, new orders halted until next day",
		e.state.HaltedPnL, threshold)
	e.deps.Metrics.IncBreaker("engage")
	e.record(breakerEntry(schema.EventBreakerHalt, e.cfg.Symbol, e.state, threshold, now))
}

func (e *Engine) fetchQuote(ctx context.Context, symbol string) (schema.Quote, bool) {
	quote, err := e.deps.Quotes.Quote(ctx, symbol)
	if err != nil {
		logs.Warnf("quote unavailable, skip position management, err: %+v", err)
		return schema.Quote{}, false
	}
	atr, err := e.deps.Quotes.ATR(ctx, symbol, e.cfg.ATRPeriod)
	if err != nil {
		logs.Warnf("atr unavailable, skip position management, err: %+v", err)
		return schema.Quote{}, false
	}
	quote.Symbol = symbol
	quote.ATR = atr
	return quote, true
}

func (e *Engine) applyLifecycle(res lifecycle.Result, quote schema.Quote, now time.Time) {
	if res.Changed() {
		e.dirty = true
	}
	tickValue := e.cfg.Registry.Lookup(quote.Symbol).TickValue
	for _, pos := range res.Closed {
		// The close price is unknown; the remainder is marked at the quote that
		// saw it gone. A trade that banked a partial exit is never a loss.
		pnl := (quote.ExitPrice(pos.Side) - pos.CostBasis()) * pos.Side.Sign() * pos.Lots * tickValue
		if pos.Stage >= schema.StageTP1 && pnl < 0 {
			pnl = 0
		}
		e.state.RecordClose(e.state.Balance, pnl)
		e.record(closeEntry(pos, pnl, now))
	}
	e.deps.Metrics.IncClosed(len(res.Closed))
	for _, exit := range res.Exits {
		e.deps.Metrics.IncPartialExit(exit.Stage.String())
		e.record(exitEntry(exit, now))
	}
	for _, move := range res.StopMoves {
		e.deps.Metrics.IncStopMove(move.Kind)
		e.record(stopEntry(move, now))
	}
}

func (e *Engine) handleSignal(ctx context.Context, sig schema.Signal, quote schema.Quote) {
	worth := e.state.Worth()
	decision := e.validator.Validate(risk.Input{
		Signal:          sig,
		Quote:           quote,
		OpenPositions:   e.book.Count(sig.Symbol),
		DayStartBalance: e.state.Daily.DayStartBalance,
		DailyPnL:        e.state.Daily.PnL(worth),
		Halted:          e.state.Halted,
		LastAcceptedAt:  e.state.LastAccepted[sig.Symbol],
	})
	if decision.Accepted() && (!e.haveAccount || !e.breaker.Allow(e.state, worth)) {
		if !e.haveAccount || !e.state.Daily.HasBaseline() {
			logs.Warnf("no account baseline for the trading day, order blocked")
		}
		decision = risk.Decision{Reason: risk.ReasonCircuitBreaker}
	}
	e.record(signalEntry(sig, decision))
	if !decision.Accepted() {
		e.deps.Metrics.IncSignal(decision.Reason.String())
		logs.Infof("signal %s rejected: %s, %s %s confidence: %.2f",
			sig.ID, decision.Reason, sig.Action, sig.Symbol, sig.Confidence)
		return
	}
	e.deps.Metrics.IncSignal("")
	e.state.Accept(sig.Symbol, sig.ReceivedAt)
	e.dirty = true

	side := sig.Action.Side()
	spec := e.cfg.Registry.Lookup(sig.Symbol)
	plan := e.planner.Plan(side, quote, quote.ATR)
	lots := e.sizer.LotSize(sizing.LotInput{
		Balance:    e.state.Balance,
		Confidence: sig.Confidence,
		WinRate:    e.winRate(),
		ATR:        quote.ATR,
		SLDistance: plan.SLDistance,
		TickValue:  spec.TickValue,
		LotStep:    spec.LotStep,
	})

	submitStart := time.Now()
	pos, err := e.gateway.Submit(ctx, og.OrderRequest{
		Symbol:      sig.Symbol,
		Side:        side,
		Lots:        lots,
		Entry:       plan.Entry,
		StopLoss:    plan.StopLoss,
		TakeProfits: plan.TakeProfits,
		SLDistance:  plan.SLDistance,
	})
	e.deps.Metrics.ObserveSubmit(time.Since(submitStart))
	if err != nil {
		class := og.ClassOf(err)
		e.deps.Metrics.IncOrder(side.String(), "rejected")
		e.deps.Metrics.IncBrokerError("submit", class.String())
		if class == og.ClassFatal {
			logs.Errorf("order for signal %s rejected (%s), signal dropped, err: %+v", sig.ID, class, err)
		} else {
			logs.Warnf("order for signal %s rejected (%s), signal dropped, err: %+v", sig.ID, class, err)
		}
		return
	}
	e.deps.Metrics.IncOrder(side.String(), "filled")
	e.record(openEntry(*pos, sig.ID))
}

func (e *Engine) winRate() float64 {
	if !e.cfg.WinRate.Adaptive {
		return e.cfg.WinRate.Value
	}
	return e.state.WinRate(e.cfg.WinRate.Value, e.cfg.WinRate.MinSamples)
}

func (e *Engine) heartbeat(now time.Time) {
	if !e.lastHeartbeat.IsZero() && now.Sub(e.lastHeartbeat) < e.cfg.HeartbeatInterval {
		return
	}
	e.lastHeartbeat = now
	err := e.deps.Channel.SendHeartbeat(schema.Heartbeat{
		ClientTimestamp: now.UnixNano(),
		AccountBalance:  e.state.Balance,
		DailyPnL:        e.state.Daily.PnL(e.state.Worth()),
		OpenTrades:      e.book.Len(),
	})
	if err != nil {
		logs.Debugf("heartbeat skipped, err: %+v", err)
	}
}

// OnHeartbeatReply records the round trip of an answered heartbeat. It is
// called from Poll on the control loop.
func (e *Engine) OnHeartbeatReply(reply schema.HeartbeatReply, at time.Time) {
	if reply.ClientTimestamp <= 0 {
		return
	}
	rtt := at.Sub(time.Unix(0, reply.ClientTimestamp))
	e.deps.Metrics.ObserveHeartbeat(rtt)
	logs.Debugf("heartbeat reply %s, rtt: %s, origin avg latency: %.1fms", reply.Status, rtt, reply.AvgLatencyMs)
}

func (e *Engine) snapshot(ctx context.Context) {
	if !e.dirty || e.deps.Store == nil {
		return
	}
	snap := state.NewSnapshot(e.cfg.Symbol, e.state, e.book.Positions())
	if err := e.deps.Store.Save(ctx, snap); err != nil {
		logs.Warnf("snapshot save failed, retry next tick, err: %+v", err)
		return
	}
	e.dirty = false
}

func (e *Engine) record(entry journal.Entry) {
	if e.deps.Journal == nil {
		return
	}
	if err := e.deps.Journal.Record(entry); err != nil {
		e.deps.Metrics.IncJournalDrop()
		logs.Debugf("journal %s dropped, err: %+v", entry.Type, err)
	}
}

// Book exposes the tracked positions. It must only be read between ticks.
func (e *Engine) Book() *og.Book {
	return e.book
}

// State exposes the risk state. It must only be read between ticks.
func (e *Engine) State() *state.EngineState {
	return e.state
}
