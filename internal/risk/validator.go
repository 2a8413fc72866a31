package risk

import (
	"time"

	"scalper/internal/schema"
)

// Config defines signal admission limits.
type Config struct {
	Symbol              string        `json:"symbol"`
	ConfidenceThreshold float64       `json:"confidenceThreshold"`
	MinVolatility       float64       `json:"minVolatility"`
	MaxTradesPerSymbol  int           `json:"maxTradesPerSymbol"`
	MaxDailyLoss        float64       `json:"maxDailyLoss"`
	MinSignalInterval   time.Duration `json:"minSignalInterval"`
}

// DefaultConfig returns the standard admission limits for symbol.
func DefaultConfig(symbol string) Config {
	return Config{
		Symbol:              symbol,
		ConfidenceThreshold: 0.75,
		MinVolatility:       0.0005,
		MaxTradesPerSymbol:  3,
		MaxDailyLoss:        0.05,
	}
}

// Input is everything a validation looks at.
type Input struct {
	Signal          schema.Signal
	Quote           schema.Quote
	OpenPositions   int
	DayStartBalance float64
	DailyPnL        float64
	Halted          bool
	// LastAcceptedAt is when the previous signal for the symbol was accepted. Zero means never.
	LastAcceptedAt time.Time
}

// Validator gates signals. It holds no mutable state.
type Validator struct {
	cfg      Config
	registry *schema.Registry
}

// NewValidator creates a validator using registry for per-symbol spread limits.
func NewValidator(cfg Config, registry *schema.Registry) *Validator {
	if registry == nil {
		registry = schema.NewRegistry(schema.SymbolSpec{})
	}
	return &Validator{cfg: cfg, registry: registry}
}

// Config returns the limits the validator was built with.
func (v *Validator) Config() Config {
	return v.cfg
}

// Validate applies the checks in order. The first failing check decides the reason.
func (v *Validator) Validate(in Input) Decision {
	if in.Signal.Confidence < v.cfg.ConfidenceThreshold {
		return reject(ReasonLowConfidence)
	}

	if in.Signal.Symbol != v.cfg.Symbol {
		return reject(ReasonSymbolMismatch)
	}

	spec := v.registry.Lookup(in.Signal.Symbol)
	if in.Quote.Spread() > spec.MaxSpread {
		return reject(ReasonSpreadTooWide)
	}

	if in.Quote.ATR < v.cfg.MinVolatility {
		return reject(ReasonLowVolatility)
	}

	if v.cfg.MaxTradesPerSymbol > 0 && in.OpenPositions >= v.cfg.MaxTradesPerSymbol {
		return reject(ReasonPositionLimit)
	}

	if in.Halted || Breached(v.cfg.MaxDailyLoss, in.DayStartBalance, in.DailyPnL) {
		return reject(ReasonCircuitBreaker)
	}

	if v.cfg.MinSignalInterval > 0 && !in.LastAcceptedAt.IsZero() {
		if in.Signal.ReceivedAt.Sub(in.LastAcceptedAt) < v.cfg.MinSignalInterval {
			return reject(ReasonTooFrequent)
		}
	}

	return accept()
}
