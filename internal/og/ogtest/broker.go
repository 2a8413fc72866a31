// Package ogtest provides a scriptable in-memory broker for tests.
package ogtest

import (
	"context"
	"sync"

	"scalper/internal/og"
	"scalper/internal/schema"
	"scalper/pkg/exception"
)

// Call records one broker invocation.
type Call struct {
	Op     string
	Ticket uint64
	Lots   float64
	SL     float64
	TP     float64
	Order  og.BrokerOrder
}

// Broker is a fake broker. Errors set on it are returned by the next matching call,
// except AccountErr which is returned until cleared.
type Broker struct {
	mu        sync.Mutex
	next      uint64
	positions map[uint64]*schema.BrokerPosition
	account   schema.Account

	SubmitErr error
	ModifyErr error
	CloseErr  error
	QueryErr  error

	AccountErr error
	// FillOffset is added to the requested price of every fill.
	FillOffset float64

	Calls []Call
}

// NewBroker creates a fake broker with the given balance.
func NewBroker(balance float64) *Broker {
	return &Broker{
		next:      1000,
		positions: make(map[uint64]*schema.BrokerPosition),
		account:   schema.Account{Balance: balance, Equity: balance},
	}
}

func (b *Broker) record(c Call) {
	b.Calls = append(b.Calls, c)
}

// SubmitOrder fills at the requested price plus FillOffset.
func (b *Broker) SubmitOrder(_ context.Context, order og.BrokerOrder) (og.Fill, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record(Call{Op: "submit", Order: order, Lots: order.Lots})
	if err := b.SubmitErr; err != nil {
		b.SubmitErr = nil
		return og.Fill{}, err
	}
	b.next++
	b.positions[b.next] = &schema.BrokerPosition{
		Ticket:     b.next,
		Symbol:     order.Symbol,
		Side:       order.Side,
		Lots:       order.Lots,
		OpenPrice:  order.Price + b.FillOffset,
		StopLoss:   order.StopLoss,
		TakeProfit: order.TakeProfit,
	}
	return og.Fill{Ticket: b.next, Price: order.Price + b.FillOffset, Lots: order.Lots}, nil
}

// ModifyOrder updates the stops of an open position.
func (b *Broker) ModifyOrder(_ context.Context, ticket uint64, sl, tp float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record(Call{Op: "modify", Ticket: ticket, SL: sl, TP: tp})
	if err := b.ModifyErr; err != nil {
		b.ModifyErr = nil
		return err
	}
	p, ok := b.positions[ticket]
	if !ok {
		return exception.ErrOrderUnknownTicket
	}
	p.StopLoss = sl
	p.TakeProfit = tp
	return nil
}

// ClosePartial reduces an open position, removing it when nothing remains.
func (b *Broker) ClosePartial(_ context.Context, ticket uint64, lots float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record(Call{Op: "close", Ticket: ticket, Lots: lots})
	if err := b.CloseErr; err != nil {
		b.CloseErr = nil
		return err
	}
	p, ok := b.positions[ticket]
	if !ok {
		return exception.ErrOrderUnknownTicket
	}
	p.Lots -= lots
	if p.Lots <= 1e-9 {
		delete(b.positions, ticket)
	}
	return nil
}

// OpenPositions lists open positions for symbol.
func (b *Broker) OpenPositions(_ context.Context, symbol string) ([]schema.BrokerPosition, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.QueryErr; err != nil {
		b.QueryErr = nil
		return nil, err
	}
	out := make([]schema.BrokerPosition, 0, len(b.positions))
	for _, p := range b.positions {
		if symbol == "" || p.Symbol == symbol {
			out = append(out, *p)
		}
	}
	return out, nil
}

// Account returns the configured account figures.
func (b *Broker) Account(context.Context) (schema.Account, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.AccountErr != nil {
		return schema.Account{}, b.AccountErr
	}
	return b.account, nil
}

// SetAccount replaces the account figures.
func (b *Broker) SetAccount(a schema.Account) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.account = a
}

// Drop removes a position as if the broker closed it.
func (b *Broker) Drop(ticket uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.positions, ticket)
}

// Count returns the number of calls with op.
func (b *Broker) Count(op string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.Calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Last returns the last call with op.
func (b *Broker) Last(op string) (Call, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.Calls) - 1; i >= 0; i-- {
		if b.Calls[i].Op == op {
			return b.Calls[i], true
		}
	}
	return Call{}, false
}
