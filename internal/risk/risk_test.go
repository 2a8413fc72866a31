package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scalper/internal/schema"
	"scalper/internal/state"
)

func newTestValidator(t *testing.T, cfg Config) *Validator {
	t.Helper()
	reg := schema.NewRegistry(schema.SymbolSpec{MaxSpread: 0.0003, TickValue: 100000, LotStep: 0.01})
	require.NoError(t, reg.Add(schema.SymbolSpec{Name: "EURUSD", MaxSpread: 0.0002}))
	return NewValidator(cfg, reg)
}

func acceptableInput() Input {
	return Input{
		Signal: schema.Signal{
			Symbol:     "EURUSD",
			Action:     schema.ActionBuy,
			Confidence: 0.9,
			ReceivedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		},
		Quote:           schema.Quote{Symbol: "EURUSD", Bid: 1.1000, Ask: 1.10015, ATR: 0.001},
		OpenPositions:   0,
		DayStartBalance: 10000,
		DailyPnL:        0,
	}
}

func TestValidateAccept(t *testing.T) {
	v := newTestValidator(t, DefaultConfig("EURUSD"))
	d := v.Validate(acceptableInput())
	assert.True(t, d.Accepted())
	assert.Equal(t, ReasonNone, d.Reason)
}

func TestValidateRejections(t *testing.T) {
	cases := map[string]struct {
		mutate func(*Input)
		want   Reason
	}{
		"low confidence":  {func(in *Input) { in.Signal.Confidence = 0.74 }, ReasonLowConfidence},
		"symbol mismatch": {func(in *Input) { in.Signal.Symbol = "GBPUSD" }, ReasonSymbolMismatch},
		"spread too wide": {func(in *Input) { in.Quote.Ask = in.Quote.Bid + 0.0005 }, ReasonSpreadTooWide},
		"low volatility":  {func(in *Input) { in.Quote.ATR = 0.0004 }, ReasonLowVolatility},
		"position limit":  {func(in *Input) { in.OpenPositions = 3 }, ReasonPositionLimit},
		"daily loss":      {func(in *Input) { in.DailyPnL = -500 }, ReasonCircuitBreaker},
		"halted":          {func(in *Input) { in.Halted = true }, ReasonCircuitBreaker},
		"low confidence wins over everything": {func(in *Input) {
			in.Signal.Confidence = 0.1
			in.Signal.Symbol = "GBPUSD"
			in.Halted = true
		}, ReasonLowConfidence},
		"spread checked before volatility": {func(in *Input) {
			in.Quote.Ask = in.Quote.Bid + 0.01
			in.Quote.ATR = 0
		}, ReasonSpreadTooWide},
	}
	v := newTestValidator(t, DefaultConfig("EURUSD"))
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			in := acceptableInput()
			tc.mutate(&in)
			d := v.Validate(in)
			assert.False(t, d.Accepted())
			assert.Equal(t, tc.want, d.Reason)
		})
	}
}

func TestValidateUnknownSymbolUsesFallbackSpread(t *testing.T) {
	cfg := DefaultConfig("USDJPY")
	v := newTestValidator(t, cfg)
	in := acceptableInput()
	in.Signal.Symbol = "USDJPY"
	in.Quote.Ask = in.Quote.Bid + 0.00025
	assert.True(t, v.Validate(in).Accepted())
	in.Quote.Ask = in.Quote.Bid + 0.00035
	assert.Equal(t, ReasonSpreadTooWide, v.Validate(in).Reason)
}

func TestValidateFrequency(t *testing.T) {
	cfg := DefaultConfig("EURUSD")
	cfg.MinSignalInterval = time.Minute
	v := newTestValidator(t, cfg)

	in := acceptableInput()
	in.LastAcceptedAt = in.Signal.ReceivedAt.Add(-30 * time.Second)
	assert.Equal(t, ReasonTooFrequent, v.Validate(in).Reason)

	in.LastAcceptedAt = in.Signal.ReceivedAt.Add(-time.Minute)
	assert.True(t, v.Validate(in).Accepted())
}

func TestValidateLowConfidenceAlwaysRejected(t *testing.T) {
	v := newTestValidator(t, DefaultConfig("EURUSD"))
	for c := 0.0; c < 0.75; c += 0.01 {
		in := acceptableInput()
		in.Signal.Confidence = c
		assert.Equal(t, ReasonLowConfidence, v.Validate(in).Reason, "confidence %v", c)
	}
}

func TestReasonsAreDistinct(t *testing.T) {
	seen := map[string]bool{}
	for _, r := range Reasons() {
		s := r.String()
		assert.False(t, seen[s], s)
		seen[s] = true
	}
}

func TestBreakerEngagesAtThreshold(t *testing.T) {
	st := state.NewEngineState()
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	st.Roll(now, time.UTC, 10000)
	b := NewBreaker(0.05)

	assert.Equal(t, -500.0, b.Threshold(10000))
	assert.Equal(t, TransitionNone, b.Evaluate(st, 9501, now))
	assert.True(t, b.Allow(st, 9501))
	assert.False(t, st.Halted)

	assert.Equal(t, TransitionEngaged, b.Evaluate(st, 9490, now))
	assert.True(t, st.Halted)
	assert.False(t, b.Allow(st, 9490))

	// Recovery within the day does not clear the latch.
	assert.Equal(t, TransitionNone, b.Evaluate(st, 10500, now.Add(time.Hour)))
	assert.True(t, st.Halted)
	assert.False(t, b.Allow(st, 10500))

	v := newTestValidator(t, DefaultConfig("EURUSD"))
	in := acceptableInput()
	in.Halted = st.Halted
	assert.Equal(t, ReasonCircuitBreaker, v.Validate(in).Reason)

	st.Roll(now.Add(24*time.Hour), time.UTC, 10500)
	assert.False(t, st.Halted)
	assert.True(t, b.Allow(st, 10500))
}

func TestBreakerExactlyAtLimit(t *testing.T) {
	st := state.NewEngineState()
	st.Roll(time.Now(), time.UTC, 10000)
	b := NewBreaker(0.05)
	assert.Equal(t, TransitionEngaged, b.Evaluate(st, 9500, time.Now()))
}

func TestBreakerWithoutBaselineBlocksOrders(t *testing.T) {
	b := NewBreaker(0.05)

	st := state.NewEngineState()
	assert.False(t, b.Allow(st, 10000))

	st.Roll(time.Now(), time.UTC, 0)
	assert.Equal(t, TransitionNone, b.Evaluate(st, -100, time.Now()))
	assert.False(t, st.Halted)
	assert.False(t, b.Allow(st, -100))
	assert.False(t, b.Allow(nil, 10000))
}
