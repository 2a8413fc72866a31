package risk

import (
	"time"

	"scalper/internal/state"
)

// Breached reports whether pnl has reached the daily loss limit.
// A non-positive day start balance never breaches.
func Breached(maxDailyLoss, dayStartBalance, pnl float64) bool {
	if dayStartBalance <= 0 || maxDailyLoss <= 0 {
		return false
	}
	return pnl <= -maxDailyLoss*dayStartBalance
}

// Transition describes what a breaker evaluation changed.
type Transition uint8

const (
	TransitionNone Transition = iota
	TransitionEngaged
)

// Breaker latches the halted flag on the engine state once the daily loss limit is hit.
// Only a daily roll clears it.
type Breaker struct {
	maxDailyLoss float64
}

// NewBreaker creates a breaker for the given loss fraction of the day start balance.
func NewBreaker(maxDailyLoss float64) *Breaker {
	return &Breaker{maxDailyLoss: maxDailyLoss}
}

// Threshold returns the loss limit in account currency, as a negative number.
func (b *Breaker) Threshold(dayStartBalance float64) float64 {
	return -b.maxDailyLoss * dayStartBalance
}

// Evaluate checks the current account worth against the day start balance and latches
// the halt when breached.
func (b *Breaker) Evaluate(st *state.EngineState, worth float64, now time.Time) Transition {
	if st == nil || st.Halted {
		return TransitionNone
	}
	pnl := st.Daily.PnL(worth)
	if !Breached(b.maxDailyLoss, st.Daily.DayStartBalance, pnl) {
		return TransitionNone
	}
	st.Halt(now, pnl)
	return TransitionEngaged
}

// Allow reports whether a new order may be submitted. Without a day start
// balance the loss limit cannot be measured, so nothing is allowed.
func (b *Breaker) Allow(st *state.EngineState, worth float64) bool {
	if st == nil {
		return false
	}
	if st.Halted || !st.Daily.HasBaseline() {
		return false
	}
	return !Breached(b.maxDailyLoss, st.Daily.DayStartBalance, st.Daily.PnL(worth))
}
