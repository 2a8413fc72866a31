package og

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"scalper/internal/schema"
	"scalper/pkg/exception"
)

// GatewayConfig controls order submission.
type GatewayConfig struct {
	MaxSlippage   int
	Magic         int
	TagPrefix     string
	TrailFraction float64
}

// OrderRequest is a fully planned entry.
type OrderRequest struct {
	Symbol      string
	Side        schema.Side
	Lots        float64
	Entry       float64
	StopLoss    float64
	TakeProfits [3]float64
	SLDistance  float64
	Tag         string
}

// Gateway submits orders to the broker and keeps the book in step with it.
// Submissions are never retried.
type Gateway struct {
	cfg    GatewayConfig
	broker Broker
	book   *Book
	now    func() time.Time
}

// NewGateway creates a gateway over broker and book.
func NewGateway(cfg GatewayConfig, broker Broker, book *Book) (*Gateway, error) {
	if broker == nil {
		return nil, exception.ErrOrderNilBroker
	}
	if book == nil {
		book = NewBook()
	}
	if cfg.TagPrefix == "" {
		cfg.TagPrefix = "scalper"
	}
	if cfg.TrailFraction <= 0 {
		cfg.TrailFraction = 0.5
	}
	return &Gateway{cfg: cfg, broker: broker, book: book, now: time.Now}, nil
}

// Book returns the position book.
func (g *Gateway) Book() *Book {
	return g.book
}

// Broker returns the underlying broker.
func (g *Gateway) Broker() Broker {
	return g.broker
}

func (r OrderRequest) validate() error {
	switch {
	case r.Symbol == "":
		return errors.Wrap(exception.ErrOrderInvalidRequest, "empty symbol")
	case r.Side != schema.SideBuy && r.Side != schema.SideSell:
		return errors.Wrap(exception.ErrOrderInvalidRequest, "unknown side")
	case r.Lots <= 0:
		return errors.Wrap(exception.ErrOrderInvalidLots, "lots must be > 0").With("lots", r.Lots)
	case r.Entry <= 0:
		return errors.Wrap(exception.ErrOrderInvalidRequest, "entry must be > 0").With("entry", r.Entry)
	}
	return nil
}

// Submit places a market order and registers the resulting position at stage none
// with a trailing distance of half the stop distance. The planned entry stays the
// basis for the exit levels, matching the stops sent with the order; the broker's
// fill price is kept separately as the cost basis.
func (g *Gateway) Submit(ctx context.Context, req OrderRequest) (*schema.Position, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	tag := req.Tag
	if tag == "" {
		tag = g.cfg.TagPrefix + "-" + uuid.NewString()[:8]
	}

	fill, err := g.broker.SubmitOrder(ctx, BrokerOrder{
		Symbol:     req.Symbol,
		Side:       req.Side,
		Lots:       req.Lots,
		Price:      req.Entry,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfits[0],
		Slippage:   g.cfg.MaxSlippage,
		Magic:      g.cfg.Magic,
		Tag:        tag,
	})
	if err != nil {
		return nil, err
	}
	if fill.Ticket == 0 {
		return nil, exception.ErrOrderEmptyTicket
	}

	if fill.Price > 0 && fill.Price != req.Entry {
		logs.Warnf("order filled away from plan, symbol: %s, planned: %.5f, filled: %.5f",
			req.Symbol, req.Entry, fill.Price)
	}
	lots := req.Lots
	if fill.Lots > 0 {
		lots = fill.Lots
	}

	pos, err := g.book.Open(schema.Position{
		Ticket:        fill.Ticket,
		Symbol:        req.Symbol,
		Side:          req.Side,
		EntryPrice:    req.Entry,
		FillPrice:     fill.Price,
		Lots:          lots,
		OriginalLots:  lots,
		StopLoss:      req.StopLoss,
		TakeProfits:   req.TakeProfits,
		Stage:         schema.StageNone,
		SLDistance:    req.SLDistance,
		TrailDistance: req.SLDistance * g.cfg.TrailFraction,
		Tag:           tag,
		OpenedAt:      g.now(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "register position").With("ticket", fill.Ticket)
	}
	logs.Infof("position opened, ticket: %d, symbol: %s, side: %s, lots: %.2f, entry: %.5f, sl: %.5f, tp1: %.5f",
		pos.Ticket, pos.Symbol, pos.Side, pos.Lots, pos.EntryPrice, pos.StopLoss, pos.TakeProfits[0])
	return pos, nil
}

// ClosePartial closes lots of ticket and reduces the tracked volume on success.
func (g *Gateway) ClosePartial(ctx context.Context, ticket uint64, lots float64) error {
	pos, ok := g.book.Position(ticket)
	if !ok {
		return exception.ErrOrderUnknownTicket
	}
	if lots <= 0 || lots > pos.Lots {
		return errors.Wrap(exception.ErrOrderInvalidLots, "partial close").With("lots", lots).With("open", pos.Lots)
	}
	if err := g.broker.ClosePartial(ctx, ticket, lots); err != nil {
		return err
	}
	remaining := decimal.NewFromFloat(pos.Lots).Sub(decimal.NewFromFloat(lots)).InexactFloat64()
	return g.book.Reduce(ticket, remaining)
}

// MoveStop modifies the stop loss of ticket, keeping the first take-profit level.
// Stops that would loosen are rejected before reaching the broker.
func (g *Gateway) MoveStop(ctx context.Context, ticket uint64, stop float64) error {
	pos, ok := g.book.Position(ticket)
	if !ok {
		return exception.ErrOrderUnknownTicket
	}
	if !pos.Improves(stop) {
		return ErrStopLoosened
	}
	if err := g.broker.ModifyOrder(ctx, ticket, stop, pos.TakeProfits[0]); err != nil {
		return err
	}
	return g.book.MoveStop(ticket, stop)
}
