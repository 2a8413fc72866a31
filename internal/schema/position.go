package schema

import (
	"math"
	"time"
)

// ExitStage is the partial-exit progress of a position. It only moves forward.
type ExitStage uint8

const (
	StageNone ExitStage = iota
	StageTP1
	StageTP2
)

func (s ExitStage) String() string {
	switch s {
	case StageNone:
		return "none"
	case StageTP1:
		return "tp1"
	case StageTP2:
		return "tp2"
	default:
		return "invalid"
	}
}

// Position is the engine's cached view of an open broker position.
type Position struct {
	Ticket        uint64     `json:"ticket"`
	Symbol        string     `json:"symbol"`
	Side          Side       `json:"side"`
	EntryPrice    float64    `json:"entryPrice"`
	FillPrice     float64    `json:"fillPrice,omitempty"`
	Lots          float64    `json:"lots"`
	OriginalLots  float64    `json:"originalLots"`
	StopLoss      float64    `json:"stopLoss"`
	TakeProfits   [3]float64 `json:"takeProfits"`
	Stage         ExitStage  `json:"stage"`
	SLDistance    float64    `json:"slDistance"`
	TrailDistance float64    `json:"trailDistance"`
	Tag           string     `json:"tag"`
	OpenedAt      time.Time  `json:"openedAt"`
}

// CostBasis is the price the broker actually filled at, falling back to the
// planned entry when the fill reported none.
func (p Position) CostBasis() float64 {
	if p.FillPrice > 0 {
		return p.FillPrice
	}
	return p.EntryPrice
}

// FavorableDistance is how far price has moved in the position's favor, floored at zero.
func (p Position) FavorableDistance(price float64) float64 {
	d := (price - p.EntryPrice) * p.Side.Sign()
	if d < 0 {
		return 0
	}
	return d
}

// ProfitDistance is the absolute distance between price and entry. Partial exits
// trigger on it regardless of direction.
func (p Position) ProfitDistance(price float64) float64 {
	return math.Abs(price - p.EntryPrice)
}

// TP1Distance is the distance from entry to the first take-profit level.
func (p Position) TP1Distance() float64 {
	d := p.TakeProfits[0] - p.EntryPrice
	if d < 0 {
		return -d
	}
	return d
}

// Improves reports whether stop is tighter than the current stop loss for this side.
// A zero stop loss counts as no stop.
func (p Position) Improves(stop float64) bool {
	if stop <= 0 {
		return false
	}
	if p.StopLoss <= 0 {
		return true
	}
	switch p.Side {
	case SideBuy:
		return stop > p.StopLoss
	case SideSell:
		return stop < p.StopLoss
	default:
		return false
	}
}

// BrokerPosition is an open position as reported by the broker.
type BrokerPosition struct {
	Ticket     uint64
	Symbol     string
	Side       Side
	Lots       float64
	OpenPrice  float64
	StopLoss   float64
	TakeProfit float64
}
