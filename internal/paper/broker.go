package paper

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/yanun0323/logs"

	"scalper/internal/og"
	"scalper/internal/schema"
)

const volumeEpsilon = 1e-9

// BrokerConfig tunes the simulated account.
type BrokerConfig struct {
	Balance float64
	// TickValue is the account-currency value of a 1.0 price move on one lot.
	TickValue float64
	// Point is the price of one slippage unit.
	Point float64
}

// Deal is a realized close, partial or full.
type Deal struct {
	ID     string
	Ticket uint64
	Lots   float64
	Price  float64
	PnL    float64
	Reason string
	At     time.Time
}

// Broker fills market orders against a Market and honours stops.
type Broker struct {
	mu        sync.Mutex
	cfg       BrokerConfig
	market    *Market
	next      uint64
	balance   float64
	positions map[uint64]*schema.BrokerPosition
	deals     []Deal
}

// NewBroker creates a paper account trading on market.
func NewBroker(cfg BrokerConfig, market *Market) *Broker {
	if cfg.TickValue <= 0 {
		cfg.TickValue = 100000
	}
	if cfg.Point <= 0 {
		cfg.Point = 0.00001
	}
	return &Broker{
		cfg:       cfg,
		market:    market,
		next:      100000,
		balance:   cfg.Balance,
		positions: make(map[uint64]*schema.BrokerPosition),
	}
}

// SubmitOrder fills at the current ask for buys and bid for sells.
func (b *Broker) SubmitOrder(ctx context.Context, order og.BrokerOrder) (og.Fill, error) {
	if order.Lots <= 0 {
		return og.Fill{}, &og.BrokerError{Op: "submit", Code: og.CodeInvalidTradeVolume}
	}
	q, err := b.market.Quote(ctx, order.Symbol)
	if err != nil {
		return og.Fill{}, err
	}
	price := q.EntryPrice(order.Side)
	if order.Price > 0 && math.Abs(price-order.Price) > float64(order.Slippage)*b.cfg.Point+volumeEpsilon {
		return og.Fill{}, &og.BrokerError{Op: "submit", Code: og.CodeRequote, Message: "price moved"}
	}
	if !validStops(order.Side, q, order.StopLoss, order.TakeProfit) {
		return og.Fill{}, &og.BrokerError{Op: "submit", Code: og.CodeInvalidStops}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	b.positions[b.next] = &schema.BrokerPosition{
		Ticket:     b.next,
		Symbol:     order.Symbol,
		Side:       order.Side,
		Lots:       order.Lots,
		OpenPrice:  price,
		StopLoss:   order.StopLoss,
		TakeProfit: order.TakeProfit,
	}
	logs.Debugf("paper fill #%d %s %s %.2f @ %.5f", b.next, order.Side, order.Symbol, order.Lots, price)
	return og.Fill{Ticket: b.next, Price: price, Lots: order.Lots}, nil
}

// ModifyOrder replaces the stops of an open position.
func (b *Broker) ModifyOrder(ctx context.Context, ticket uint64, stopLoss, takeProfit float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	pos, ok := b.positions[ticket]
	if !ok {
		return &og.BrokerError{Op: "modify", Code: og.CodeCommonError, Message: "unknown ticket"}
	}
	q, err := b.market.Quote(ctx, pos.Symbol)
	if err != nil {
		return err
	}
	if !validStops(pos.Side, q, stopLoss, takeProfit) {
		return &og.BrokerError{Op: "modify", Code: og.CodeInvalidStops}
	}
	pos.StopLoss = stopLoss
	pos.TakeProfit = takeProfit
	return nil
}

// ClosePartial closes lots of a position at the current exit price.
func (b *Broker) ClosePartial(ctx context.Context, ticket uint64, lots float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	pos, ok := b.positions[ticket]
	if !ok {
		return &og.BrokerError{Op: "close", Code: og.CodeCommonError, Message: "unknown ticket"}
	}
	if lots <= 0 || lots > pos.Lots+volumeEpsilon {
		return &og.BrokerError{Op: "close", Code: og.CodeInvalidTradeVolume}
	}
	q, err := b.market.Quote(ctx, pos.Symbol)
	if err != nil {
		return err
	}
	b.realize(pos, lots, q.ExitPrice(pos.Side), "close", q.At)
	return nil
}

// OpenPositions returns positions on symbol after applying stop hits.
func (b *Broker) OpenPositions(ctx context.Context, symbol string) ([]schema.BrokerPosition, error) {
	if err := b.Sweep(ctx); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]schema.BrokerPosition, 0, len(b.positions))
	for _, pos := range b.positions {
		if symbol == "" || pos.Symbol == symbol {
			out = append(out, *pos)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticket < out[j].Ticket })
	return out, nil
}

// Account reports balance and equity marked at the current exit prices.
func (b *Broker) Account(ctx context.Context) (schema.Account, error) {
	if err := b.Sweep(ctx); err != nil {
		return schema.Account{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	equity := b.balance
	for _, pos := range b.positions {
		q, err := b.market.Quote(ctx, pos.Symbol)
		if err != nil {
			return schema.Account{}, err
		}
		equity += b.pnl(pos, pos.Lots, q.ExitPrice(pos.Side))
	}
	return schema.Account{Balance: b.balance, Equity: equity}, nil
}

// Sweep closes every position whose stop loss or take profit was touched.
func (b *Broker) Sweep(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, pos := range b.positions {
		q, err := b.market.Quote(ctx, pos.Symbol)
		if err != nil {
			return err
		}
		if price, reason, hit := stopHit(pos, q); hit {
			b.realize(pos, pos.Lots, price, reason, q.At)
		}
	}
	return nil
}

// Deals returns the realized closes in order.
func (b *Broker) Deals() []Deal {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Deal(nil), b.deals...)
}

func (b *Broker) realize(pos *schema.BrokerPosition, lots, price float64, reason string, at time.Time) {
	pnl := b.pnl(pos, lots, price)
	b.balance += pnl
	b.deals = append(b.deals, Deal{
		ID:     uuid.NewString(),
		Ticket: pos.Ticket,
		Lots:   lots,
		Price:  price,
		PnL:    pnl,
		Reason: reason,
		At:     at,
	})
	pos.Lots -= lots
	if pos.Lots <= volumeEpsilon {
		delete(b.positions, pos.Ticket)
	}
	logs.Debugf("paper %s #%d %.2f @ %.5f pnl %.2f", reason, pos.Ticket, lots, price, pnl)
}

func (b *Broker) pnl(pos *schema.BrokerPosition, lots, price float64) float64 {
	return (price - pos.OpenPrice) * pos.Side.Sign() * lots * b.cfg.TickValue
}

func stopHit(pos *schema.BrokerPosition, q schema.Quote) (float64, string, bool) {
	price := q.ExitPrice(pos.Side)
	switch pos.Side {
	case schema.SideBuy:
		if pos.StopLoss > 0 && price <= pos.StopLoss {
			return pos.StopLoss, "stop loss", true
		}
		if pos.TakeProfit > 0 && price >= pos.TakeProfit {
			return pos.TakeProfit, "take profit", true
		}
	case schema.SideSell:
		if pos.StopLoss > 0 && price >= pos.StopLoss {
			return pos.StopLoss, "stop loss", true
		}
		if pos.TakeProfit > 0 && price <= pos.TakeProfit {
			return pos.TakeProfit, "take profit", true
		}
	}
	return 0, "", false
}

func validStops(side schema.Side, q schema.Quote, sl, tp float64) bool {
	price := q.ExitPrice(side)
	switch side {
	case schema.SideBuy:
		return (sl == 0 || sl < price) && (tp == 0 || tp > price)
	case schema.SideSell:
		return (sl == 0 || sl > price) && (tp == 0 || tp < price)
	default:
		return false
	}
}
