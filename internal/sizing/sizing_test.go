package sizing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scalper/internal/schema"
)

func TestKelly(t *testing.T) {
	assert.Zero(t, Kelly(0.9, 0))
	assert.Zero(t, Kelly(0.8, 0.55))
	assert.InDelta(t, 0.3714285714, Kelly(0.8, 0.7), 1e-9)
	assert.Equal(t, 0.5, Kelly(1, 0.95))
}

func TestLotSizeScenario(t *testing.T) {
	s := NewSizer(DefaultSizerConfig())
	base := LotInput{
		Balance:      10000,
		RiskFraction: 0.02,
		Confidence:   0.8,
		WinRate:      0.55,
		ATR:          0.001,
		SLDistance:   0.0015,
		TickValue:    100000,
		LotStep:      0.01,
	}
	// Negative edge floors at the minimum lot.
	assert.Equal(t, 0.01, s.LotSize(base))

	base.WinRate = 0.7
	assert.Equal(t, 0.5, s.LotSize(base))
	assert.Equal(t, s.LotSize(base), s.LotSize(base))
}

func TestLotSizeDerivesStopFromATR(t *testing.T) {
	s := NewSizer(DefaultSizerConfig())
	in := LotInput{Balance: 10000, Confidence: 0.8, WinRate: 0.7, ATR: 0.001, TickValue: 100000}
	assert.Equal(t, 0.5, s.LotSize(in))
}

func TestLotSizeDegenerateInputs(t *testing.T) {
	s := NewSizer(DefaultSizerConfig())
	cases := map[string]LotInput{
		"zero win rate":   {Balance: 10000, Confidence: 0.9, WinRate: 0, SLDistance: 0.0015, TickValue: 100000},
		"zero tick value": {Balance: 10000, Confidence: 0.9, WinRate: 0.6, SLDistance: 0.0015},
		"zero stop":       {Balance: 10000, Confidence: 0.9, WinRate: 0.6, TickValue: 100000},
		"zero balance":    {Confidence: 0.9, WinRate: 0.6, SLDistance: 0.0015, TickValue: 100000},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, 0.01, s.LotSize(in))
		})
	}
}

func TestLotSizeAlwaysWithinBounds(t *testing.T) {
	cfg := DefaultSizerConfig()
	s := NewSizer(cfg)
	for _, balance := range []float64{0, 100, 10000, 1e7} {
		for _, conf := range []float64{0, 0.5, 0.75, 1} {
			for _, wr := range []float64{0, 0.3, 0.55, 0.9, 1} {
				for _, sl := range []float64{0, 0.00001, 0.0015, 0.1} {
					lot := s.LotSize(LotInput{Balance: balance, Confidence: conf, WinRate: wr, SLDistance: sl, TickValue: 100000})
					require.GreaterOrEqual(t, lot, cfg.MinLot)
					require.LessOrEqual(t, lot, cfg.MaxLot)
				}
			}
		}
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, 0.12, Normalize(0.129, 0.01))
	assert.Equal(t, 0.1, Normalize(0.15, 0.1))
	assert.Equal(t, 0.0, Normalize(0.004, 0.01))
}

func TestTPLadder(t *testing.T) {
	p := NewExitPlanner(DefaultPlannerConfig())
	for _, sl := range []float64{0.0001, 0.0015, 0.5, 12} {
		tp := p.TPLevels(sl)
		assert.Less(t, tp[0], tp[1])
		assert.Less(t, tp[1], tp[2])
		assert.InDelta(t, sl*1.5, tp[0], 1e-12)
		assert.InDelta(t, sl*3.0, tp[1], 1e-12)
		assert.InDelta(t, sl*5.0, tp[2], 1e-12)
	}
	assert.InDelta(t, 0.0015, p.SLDistance(0.001), 1e-12)
}

func TestPlanBuyAndSell(t *testing.T) {
	p := NewExitPlanner(DefaultPlannerConfig())
	q := schema.Quote{Symbol: "EURUSD", Bid: 1.0998, Ask: 1.1000, ATR: 0.001}

	buy := p.Plan(schema.SideBuy, q, q.ATR)
	assert.Equal(t, 1.1000, buy.Entry)
	assert.InDelta(t, 1.0985, buy.StopLoss, 1e-9)
	assert.InDelta(t, 1.10225, buy.TakeProfits[0], 1e-9)
	assert.InDelta(t, 1.1045, buy.TakeProfits[1], 1e-9)
	assert.InDelta(t, 1.1075, buy.TakeProfits[2], 1e-9)
	assert.InDelta(t, 0.00075, buy.TrailDistance, 1e-12)

	sell := p.Plan(schema.SideSell, q, q.ATR)
	assert.Equal(t, 1.0998, sell.Entry)
	assert.InDelta(t, 1.1013, sell.StopLoss, 1e-9)
	assert.InDelta(t, 1.09755, sell.TakeProfits[0], 1e-9)
	assert.Greater(t, sell.TakeProfits[0], sell.TakeProfits[1])
}
