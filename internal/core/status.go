package core

import (
	"time"

	"scalper/internal/obs"
	"scalper/internal/schema"
)

// Status is a read-only view of the engine published after every tick.
type Status struct {
	Symbol          string            `json:"symbol"`
	ConfigVersion   uint64            `json:"configVersion"`
	Day             string            `json:"day"`
	DayStartBalance float64           `json:"dayStartBalance"`
	Balance         float64           `json:"balance"`
	Equity          float64           `json:"equity"`
	DailyPnL        float64           `json:"dailyPnl"`
	Halted          bool              `json:"halted"`
	HaltedAt        *time.Time        `json:"haltedAt,omitempty"`
	Wins            int               `json:"wins"`
	Losses          int               `json:"losses"`
	Connected       bool              `json:"connected"`
	LastTick        time.Time         `json:"lastTick"`
	Positions       []schema.Position `json:"positions"`
	Latency         obs.Snapshot      `json:"latency"`
}

// Status returns the view published by the last tick. It is safe to call
// from any goroutine.
func (e *Engine) Status() Status {
	return e.status.Load().(Status)
}

func (e *Engine) publishStatus() {
	st := e.state
	s := Status{
		Symbol:          e.cfg.Symbol,
		ConfigVersion:   e.version,
		Day:             st.Daily.Day,
		DayStartBalance: st.Daily.DayStartBalance,
		Balance:         st.Balance,
		Equity:          st.Equity,
		DailyPnL:        st.Daily.PnL(st.Worth()),
		Halted:          st.Halted,
		Wins:            st.Wins,
		Losses:          st.Losses,
		Connected:       e.deps.Channel.Connected(),
		LastTick:        e.lastTick,
		Positions:       e.book.Positions(),
		Latency:         e.deps.Metrics.Snapshot(),
	}
	if st.Halted {
		at := st.HaltedAt
		s.HaltedAt = &at
	}
	e.status.Store(s)
}
