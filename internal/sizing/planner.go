package sizing

import "scalper/internal/schema"

var defaultTPMultiples = [3]float64{1.5, 3.0, 5.0}

// PlannerConfig controls stop and target distances.
type PlannerConfig struct {
	SLMultiplier  float64    `json:"slMultiplier"`
	TPMultiples   [3]float64 `json:"tpMultiples"`
	TrailFraction float64    `json:"trailFraction"`
}

// DefaultPlannerConfig returns the 1.5 ATR stop with a 1.5R/3R/5R ladder.
func DefaultPlannerConfig() PlannerConfig {
	return PlannerConfig{
		SLMultiplier:  1.5,
		TPMultiples:   defaultTPMultiples,
		TrailFraction: 0.5,
	}
}

// ExitPlan holds absolute prices for a new position.
type ExitPlan struct {
	Side          schema.Side
	Entry         float64
	SLDistance    float64
	StopLoss      float64
	TakeProfits   [3]float64
	TrailDistance float64
}

// ExitPlanner derives stop-loss and take-profit levels from volatility.
type ExitPlanner struct {
	cfg PlannerConfig
}

// NewExitPlanner creates a planner. Missing multiples fall back to the defaults.
func NewExitPlanner(cfg PlannerConfig) *ExitPlanner {
	if cfg.TPMultiples == ([3]float64{}) {
		cfg.TPMultiples = defaultTPMultiples
	}
	if cfg.TrailFraction <= 0 {
		cfg.TrailFraction = 0.5
	}
	return &ExitPlanner{cfg: cfg}
}

// SLDistance returns atr times the stop multiplier.
func (p *ExitPlanner) SLDistance(atr float64) float64 {
	return atr * p.cfg.SLMultiplier
}

// TPLevels returns the take-profit distances for a stop distance.
func (p *ExitPlanner) TPLevels(sl float64) [3]float64 {
	return [3]float64{
		sl * p.cfg.TPMultiples[0],
		sl * p.cfg.TPMultiples[1],
		sl * p.cfg.TPMultiples[2],
	}
}

// TrailDistance returns the initial trailing distance for a stop distance.
func (p *ExitPlanner) TrailDistance(sl float64) float64 {
	return sl * p.cfg.TrailFraction
}

// Plan computes absolute levels from the quote. Buys enter at the ask, sells at the bid.
func (p *ExitPlanner) Plan(side schema.Side, quote schema.Quote, atr float64) ExitPlan {
	entry := quote.EntryPrice(side)
	sl := p.SLDistance(atr)
	tps := p.TPLevels(sl)
	sign := side.Sign()

	plan := ExitPlan{
		Side:          side,
		Entry:         entry,
		SLDistance:    sl,
		StopLoss:      entry - sign*sl,
		TrailDistance: p.TrailDistance(sl),
	}
	for i, d := range tps {
		plan.TakeProfits[i] = entry + sign*d
	}
	return plan
}
