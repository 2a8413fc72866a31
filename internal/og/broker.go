package og

import (
	"context"

	"scalper/internal/schema"
)

// BrokerOrder is a market order as sent to the broker.
type BrokerOrder struct {
	Symbol     string
	Side       schema.Side
	Lots       float64
	Price      float64
	StopLoss   float64
	TakeProfit float64
	Slippage   int
	Magic      int
	Tag        string
}

// Fill is the broker's confirmation of a market order.
type Fill struct {
	Ticket uint64
	Price  float64
	Lots   float64
}

// Broker is the external order interface. Implementations own their own timeouts.
type Broker interface {
	SubmitOrder(ctx context.Context, order BrokerOrder) (Fill, error)
	ModifyOrder(ctx context.Context, ticket uint64, stopLoss, takeProfit float64) error
	ClosePartial(ctx context.Context, ticket uint64, lots float64) error
	OpenPositions(ctx context.Context, symbol string) ([]schema.BrokerPosition, error)
	Account(ctx context.Context) (schema.Account, error)
}
