package state

import "time"

const dayLayout = "2006-01-02"

// DailyRisk is the per-trading-day accounting used by the breaker and the sizer.
type DailyRisk struct {
	Day             string  `json:"day"`
	DayStartBalance float64 `json:"dayStartBalance"`
	RealizedPnL     float64 `json:"realizedPnl"`
	TradeCount      int     `json:"tradeCount"`
}

// Roll starts a new trading day when now falls on a different calendar day in loc.
// It reports whether a reset happened.
func (d *DailyRisk) Roll(now time.Time, loc *time.Location, balance float64) bool {
	if loc == nil {
		loc = time.UTC
	}
	day := now.In(loc).Format(dayLayout)
	if d.Day == day {
		return false
	}
	*d = DailyRisk{
		Day:             day,
		DayStartBalance: balance,
	}
	return true
}

// HasBaseline reports whether a day was rolled with a usable start balance.
func (d DailyRisk) HasBaseline() bool {
	return d.Day != "" && d.DayStartBalance > 0
}

// PnL returns the profit or loss of the day measured at worth.
func (d DailyRisk) PnL(worth float64) float64 {
	return worth - d.DayStartBalance
}

// RecordClose books a completed trade against the balance after the close.
func (d *DailyRisk) RecordClose(balance float64) {
	d.RealizedPnL = balance - d.DayStartBalance
	d.TradeCount++
}
