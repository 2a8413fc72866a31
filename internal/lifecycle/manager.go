package lifecycle

import (
	"context"
	"math"
	"time"

	"github.com/yanun0323/logs"

	"scalper/internal/og"
	"scalper/internal/schema"
	"scalper/internal/sizing"
)

// Trail modes.
const (
	TrailATR    = "atr"
	TrailStatic = "static"
)

// Partial exit tags sent with each close.
const (
	TagTP1 = "TP1-50%"
	TagTP2 = "TP2-80%"
)

// Config controls the exit protocol.
type Config struct {
	TP1Trigger       float64 `json:"tp1Trigger"`
	TP1CloseFraction float64 `json:"tp1CloseFraction"`
	TP2Trigger       float64 `json:"tp2Trigger"`
	TP2CloseFraction float64 `json:"tp2CloseFraction"`
	TrailMode        string  `json:"trailMode"`
	TrailATRFraction float64 `json:"trailAtrFraction"`
	// TrailActivation is the fraction of the TP1 distance price must travel before trailing starts.
	TrailActivation float64 `json:"trailActivation"`
	MinLot          float64 `json:"minLot"`
	LotStep         float64 `json:"lotStep"`
}

// DefaultConfig returns the 50%/80% partial exit protocol with ATR trailing.
func DefaultConfig() Config {
	return Config{
		TP1Trigger:       0.5,
		TP1CloseFraction: 0.5,
		TP2Trigger:       0.8,
		TP2CloseFraction: 0.3,
		TrailMode:        TrailATR,
		TrailATRFraction: 0.5,
		MinLot:           0.01,
		LotStep:          0.01,
	}
}

// Market is the per-tick input.
type Market struct {
	Quote schema.Quote
	Now   time.Time
}

// Exit is a partial close that went through.
type Exit struct {
	Ticket uint64
	Stage  schema.ExitStage
	Lots   float64
	Price  float64
	Tag    string
}

// Stop move kinds.
const (
	MoveBreakeven = "breakeven"
	MoveTrail     = "trail"
)

// StopMove is a stop loss relocation that went through.
type StopMove struct {
	Ticket uint64
	Kind   string
	From   float64
	To     float64
}

// Result reports what one evaluation did.
type Result struct {
	// Closed holds positions the broker no longer reports.
	Closed    []schema.Position
	Exits     []Exit
	StopMoves []StopMove
	Failures  int
}

// Changed reports whether any tracked position was mutated.
func (r Result) Changed() bool {
	return len(r.Closed) > 0 || len(r.Exits) > 0 || len(r.StopMoves) > 0
}

// Manager runs the exit protocol against the gateway's book.
type Manager struct {
	cfg Config
	gw  *og.Gateway
}

// NewManager creates a manager.
func NewManager(cfg Config, gw *og.Gateway) *Manager {
	if cfg.TrailMode == "" {
		cfg.TrailMode = TrailATR
	}
	return &Manager{cfg: cfg, gw: gw}
}

// Evaluate reconciles the book with the broker and then evaluates every open
// position of the quoted symbol once. At most one partial exit stage fires per
// position per evaluation.
func (m *Manager) Evaluate(ctx context.Context, market Market) Result {
	var res Result
	m.reconcile(ctx, market.Quote.Symbol, &res)

	book := m.gw.Book()
	for _, ticket := range book.Tickets() {
		pos, ok := book.Position(ticket)
		if !ok || pos.Symbol != market.Quote.Symbol || pos.Lots <= 0 {
			continue
		}
		m.partialExits(ctx, pos, market.Quote, &res)
		m.trail(ctx, pos, market.Quote, &res)
	}
	return res
}

func (m *Manager) reconcile(ctx context.Context, symbol string, res *Result) {
	book := m.gw.Book()
	if book.Len() == 0 {
		return
	}
	open, err := m.gw.Broker().OpenPositions(ctx, symbol)
	if err != nil {
		logs.Warnf("query open positions, err: %+v", err)
		res.Failures++
		return
	}
	reported := make(map[uint64]schema.BrokerPosition, len(open))
	for _, p := range open {
		reported[p.Ticket] = p
	}
	for _, ticket := range book.Tickets() {
		pos, _ := book.Position(ticket)
		if pos.Symbol != symbol {
			continue
		}
		bp, ok := reported[ticket]
		if !ok {
			closed, _ := book.Remove(ticket)
			res.Closed = append(res.Closed, closed)
			logs.Infof("position closed by broker, ticket: %d, stage: %s", ticket, closed.Stage)
			continue
		}
		if bp.Lots > 0 && bp.Lots < pos.Lots {
			_ = book.Reduce(ticket, bp.Lots)
		}
	}
}

func (m *Manager) partialExits(ctx context.Context, pos *schema.Position, q schema.Quote, res *Result) {
	tpDistance := pos.TP1Distance()
	if tpDistance <= 0 {
		return
	}
	price := q.ExitPrice(pos.Side)
	profit := pos.ProfitDistance(price)

	if pos.Stage == schema.StageNone && profit >= m.cfg.TP1Trigger*tpDistance {
		lots := sizing.Normalize(pos.Lots*m.cfg.TP1CloseFraction, m.cfg.LotStep)
		if !m.closeStage(ctx, pos, schema.StageTP1, lots, price, TagTP1, res) {
			return
		}
		m.breakeven(ctx, pos, q, res)
		return
	}

	if pos.Stage == schema.StageTP1 && profit >= m.cfg.TP2Trigger*tpDistance {
		lots := sizing.Normalize(pos.OriginalLots*m.cfg.TP2CloseFraction, m.cfg.LotStep)
		lots = math.Min(lots, pos.Lots)
		m.closeStage(ctx, pos, schema.StageTP2, lots, price, TagTP2, res)
	}
}

// closeStage closes lots and advances the stage. A volume below the minimum lot
// advances the stage without a close. A failed close leaves the stage unchanged.
func (m *Manager) closeStage(ctx context.Context, pos *schema.Position, stage schema.ExitStage, lots, price float64, tag string, res *Result) bool {
	book := m.gw.Book()
	if lots < m.cfg.MinLot {
		logs.Infof("%s skipped, volume below min lot, ticket: %d, lots: %.2f", tag, pos.Ticket, lots)
		return book.Advance(pos.Ticket, stage) == nil
	}
	if err := m.gw.ClosePartial(ctx, pos.Ticket, lots); err != nil {
		logBrokerFailure(tag, pos.Ticket, err)
		res.Failures++
		return false
	}
	if err := book.Advance(pos.Ticket, stage); err != nil {
		logs.Errorf("advance stage, ticket: %d, err: %+v", pos.Ticket, err)
		return false
	}
	res.Exits = append(res.Exits, Exit{Ticket: pos.Ticket, Stage: stage, Lots: lots, Price: price, Tag: tag})
	logs.Infof("%s taken, ticket: %d, lots: %.2f, price: %.5f, remaining: %.2f", tag, pos.Ticket, lots, price, pos.Lots)
	return true
}

// breakeven moves the stop to entry plus spread once price is already beyond it.
func (m *Manager) breakeven(ctx context.Context, pos *schema.Position, q schema.Quote, res *Result) {
	be := pos.EntryPrice + pos.Side.Sign()*q.Spread()
	beyond := false
	switch pos.Side {
	case schema.SideBuy:
		beyond = q.Bid > be
	case schema.SideSell:
		beyond = q.Ask < be
	}
	if !beyond || !pos.Improves(be) {
		return
	}
	m.moveStop(ctx, pos, be, MoveBreakeven, res)
}

func (m *Manager) trail(ctx context.Context, pos *schema.Position, q schema.Quote, res *Result) {
	price := q.ExitPrice(pos.Side)
	if m.cfg.TrailActivation > 0 {
		if pos.FavorableDistance(price) < m.cfg.TrailActivation*pos.TP1Distance() {
			return
		}
	}
	distance := pos.TrailDistance
	if m.cfg.TrailMode != TrailStatic {
		distance = m.cfg.TrailATRFraction * q.ATR
	}
	if distance <= 0 {
		return
	}
	stop := price - pos.Side.Sign()*distance
	if !pos.Improves(stop) {
		return
	}
	m.moveStop(ctx, pos, stop, MoveTrail, res)
}

func (m *Manager) moveStop(ctx context.Context, pos *schema.Position, stop float64, kind string, res *Result) {
	from := pos.StopLoss
	if err := m.gw.MoveStop(ctx, pos.Ticket, stop); err != nil {
		logBrokerFailure(kind, pos.Ticket, err)
		res.Failures++
		return
	}
	res.StopMoves = append(res.StopMoves, StopMove{Ticket: pos.Ticket, Kind: kind, From: from, To: stop})
	logs.Debugf("stop moved (%s), ticket: %d, from: %.5f, to: %.5f", kind, pos.Ticket, from, stop)
}

func logBrokerFailure(op string, ticket uint64, err error) {
	switch og.ClassOf(err) {
	case og.ClassFatal:
		logs.Errorf("%s failed, ticket: %d, err: %+v", op, ticket, err)
	default:
		logs.Warnf("%s failed, ticket: %d, err: %+v", op, ticket, err)
	}
}
