package codec

import (
	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"

	"scalper/internal/schema"
)

type wireHeartbeat struct {
	Type            string  `json:"type"`
	ClientTimestamp int64   `json:"client_timestamp"`
	AccountBalance  float64 `json:"account_balance"`
	DailyPnL        float64 `json:"daily_pnl"`
	OpenTrades      int     `json:"open_trades"`
}

// EncodeHeartbeat serializes a heartbeat. Money fields are rounded to cents.
func EncodeHeartbeat(hb schema.Heartbeat) ([]byte, error) {
	return sonic.ConfigFastest.Marshal(wireHeartbeat{
		Type:            TypeHeartbeat,
		ClientTimestamp: hb.ClientTimestamp,
		AccountBalance:  cents(hb.AccountBalance),
		DailyPnL:        cents(hb.DailyPnL),
		OpenTrades:      hb.OpenTrades,
	})
}

func cents(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
