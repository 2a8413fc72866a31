package state

import "time"

// EngineState is everything the control loop owns besides the open positions.
// It is mutated only by the control loop.
type EngineState struct {
	Daily     DailyRisk `json:"daily"`
	Halted    bool      `json:"halted"`
	HaltedAt  time.Time `json:"haltedAt"`
	HaltedPnL float64   `json:"haltedPnl"`

	// LastAccepted is the receive time of the last accepted signal per symbol.
	LastAccepted map[string]time.Time `json:"lastAccepted"`

	Wins   int `json:"wins"`
	Losses int `json:"losses"`

	Balance float64 `json:"balance"`
	Equity  float64 `json:"equity"`
}

// NewEngineState returns an empty state. The first Roll initializes the day.
func NewEngineState() *EngineState {
	return &EngineState{LastAccepted: make(map[string]time.Time)}
}

// Roll resets the daily accounting at a day boundary and clears the halt.
func (s *EngineState) Roll(now time.Time, loc *time.Location, balance float64) bool {
	if !s.Daily.Roll(now, loc, balance) {
		return false
	}
	s.Halted = false
	s.HaltedAt = time.Time{}
	s.HaltedPnL = 0
	return true
}

// Halt latches the halted flag.
func (s *EngineState) Halt(now time.Time, pnl float64) {
	if s.Halted {
		return
	}
	s.Halted = true
	s.HaltedAt = now
	s.HaltedPnL = pnl
}

// RecordClose books a fully closed trade. pnl is the trade result used for the win rate.
func (s *EngineState) RecordClose(balance, pnl float64) {
	s.Daily.RecordClose(balance)
	if pnl > 0 {
		s.Wins++
	} else {
		s.Losses++
	}
}

// Accept remembers the receive time of an accepted signal.
func (s *EngineState) Accept(symbol string, at time.Time) {
	if s.LastAccepted == nil {
		s.LastAccepted = make(map[string]time.Time)
	}
	s.LastAccepted[symbol] = at
}

// WinRate returns the observed win rate once at least minSamples trades closed,
// otherwise fallback.
func (s *EngineState) WinRate(fallback float64, minSamples int) float64 {
	total := s.Wins + s.Losses
	if minSamples <= 0 || total < minSamples {
		return fallback
	}
	return float64(s.Wins) / float64(total)
}

// UpdateAccount stores the latest broker account figures.
func (s *EngineState) UpdateAccount(balance, equity float64) {
	s.Balance = balance
	s.Equity = equity
}

// Worth returns equity when known, balance otherwise.
func (s *EngineState) Worth() float64 {
	if s.Equity > 0 {
		return s.Equity
	}
	return s.Balance
}
