package schema

import (
	"strings"
	"time"
)

// Action is the direction requested by a signal.
type Action uint8

const (
	ActionUnknown Action = iota
	ActionBuy
	ActionSell
)

// ParseAction accepts the wire values BUY and SELL, case-insensitively.
func ParseAction(s string) (Action, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY":
		return ActionBuy, true
	case "SELL":
		return ActionSell, true
	default:
		return ActionUnknown, false
	}
}

func (a Action) String() string {
	switch a {
	case ActionBuy:
		return "BUY"
	case ActionSell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// Side returns the position side opened by the action.
func (a Action) Side() Side {
	switch a {
	case ActionBuy:
		return SideBuy
	case ActionSell:
		return SideSell
	default:
		return SideUnknown
	}
}

// Side describes position direction.
type Side uint8

const (
	SideUnknown Side = iota
	SideBuy
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "buy"
	case SideSell:
		return "sell"
	default:
		return "unknown"
	}
}

// ParseSide accepts buy/sell in any case.
func ParseSide(s string) Side {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy":
		return SideBuy
	case "sell":
		return SideSell
	default:
		return SideUnknown
	}
}

// Sign is +1 for buy and -1 for sell.
func (s Side) Sign() float64 {
	switch s {
	case SideBuy:
		return 1
	case SideSell:
		return -1
	default:
		return 0
	}
}

// Signal is an inbound recommendation to open a position. It is immutable once parsed.
type Signal struct {
	ID         string
	Symbol     string
	Action     Action
	Confidence float64
	Reason     string
	ReceivedAt time.Time
}

// Quote is a read-only market snapshot for a single tick.
type Quote struct {
	Symbol string
	Bid    float64
	Ask    float64
	ATR    float64 // M1 average true range
	At     time.Time
}

// Spread returns ask minus bid.
func (q Quote) Spread() float64 {
	return q.Ask - q.Bid
}

// EntryPrice is the price a new position of the given side fills at.
func (q Quote) EntryPrice(side Side) float64 {
	if side == SideSell {
		return q.Bid
	}
	return q.Ask
}

// ExitPrice is the price an open position of the given side is valued at.
func (q Quote) ExitPrice(side Side) float64 {
	if side == SideSell {
		return q.Ask
	}
	return q.Bid
}

// Heartbeat is the periodic liveness report sent to the signal origin.
type Heartbeat struct {
	ClientTimestamp int64
	AccountBalance  float64
	DailyPnL        float64
	OpenTrades      int
}

// HeartbeatReply is the advisory answer from the signal origin.
type HeartbeatReply struct {
	Status          string
	ServerTime      int64
	ClientTimestamp int64
	AvgLatencyMs    float64
}

// Account is the broker-reported account state.
type Account struct {
	Balance float64
	Equity  float64
}

// Worth returns equity when the broker reports it, balance otherwise.
func (a Account) Worth() float64 {
	if a.Equity > 0 {
		return a.Equity
	}
	return a.Balance
}
