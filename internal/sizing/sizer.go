package sizing

import (
	"github.com/shopspring/decimal"
)

const (
	defaultLotStep = 0.01
	kellyCap       = 0.5
)

// SizerConfig bounds the lot sizes produced by the sizer.
type SizerConfig struct {
	RiskPercent  float64 `json:"riskPercent"`
	MinLot       float64 `json:"minLot"`
	MaxLot       float64 `json:"maxLot"`
	SLMultiplier float64 `json:"slMultiplier"`
}

// DefaultSizerConfig returns the standard sizing limits.
func DefaultSizerConfig() SizerConfig {
	return SizerConfig{
		RiskPercent:  0.02,
		MinLot:       0.01,
		MaxLot:       1.0,
		SLMultiplier: 1.5,
	}
}

// LotInput carries the per-trade inputs of the sizing formula.
type LotInput struct {
	Balance      float64
	RiskFraction float64 // zero uses the configured risk percent
	Confidence   float64
	WinRate      float64
	ATR          float64
	SLDistance   float64 // zero derives the distance from ATR
	TickValue    float64
	LotStep      float64
}

// Sizer computes lot sizes with a capped Kelly fraction.
type Sizer struct {
	cfg SizerConfig
}

// NewSizer creates a sizer.
func NewSizer(cfg SizerConfig) *Sizer {
	return &Sizer{cfg: cfg}
}

// Kelly returns the Kelly fraction clamped to [0, 0.5]. A non-positive win rate yields 0.
func Kelly(confidence, winRate float64) float64 {
	if winRate <= 0 {
		return 0
	}
	k := (confidence*winRate - (1 - winRate)) / winRate
	if k < 0 {
		return 0
	}
	if k > kellyCap {
		return kellyCap
	}
	return k
}

// LotSize returns a lot size clamped to [MinLot, MaxLot] and rounded to the lot step.
func (s *Sizer) LotSize(in LotInput) float64 {
	risk := in.RiskFraction
	if risk <= 0 {
		risk = s.cfg.RiskPercent
	}
	sl := in.SLDistance
	if sl <= 0 {
		sl = in.ATR * s.cfg.SLMultiplier
	}

	var lot float64
	if denom := sl * in.TickValue; denom > 0 && in.Balance > 0 {
		lot = in.Balance * risk * Kelly(in.Confidence, in.WinRate) / denom
	}
	return s.normalize(lot, in.LotStep)
}

func (s *Sizer) normalize(lot, step float64) float64 {
	if step <= 0 {
		step = defaultLotStep
	}
	lot = clamp(lot, s.cfg.MinLot, s.cfg.MaxLot)
	d := decimal.NewFromFloat(step)
	rounded := decimal.NewFromFloat(lot).Div(d).Round(0).Mul(d)
	return clamp(rounded.InexactFloat64(), s.cfg.MinLot, s.cfg.MaxLot)
}

// Normalize rounds an arbitrary volume to the lot step without applying the lot bounds.
func Normalize(lot, step float64) float64 {
	if step <= 0 {
		step = defaultLotStep
	}
	d := decimal.NewFromFloat(step)
	return decimal.NewFromFloat(lot).Div(d).Floor().Mul(d).InexactFloat64()
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if hi > 0 && v > hi {
		return hi
	}
	return v
}
