// Package paper simulates a broker and a quote feed in memory for dry runs.
package paper

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/yanun0323/errors"

	"scalper/internal/schema"
	"scalper/pkg/exception"
)

// MarketConfig tunes the random walk.
type MarketConfig struct {
	Symbol     string
	Start      float64
	Spread     float64
	Volatility float64 // standard deviation of one step in price units
	Seed       int64
	History    int
}

// Market is a seeded random-walk quote source for one symbol.
type Market struct {
	mu   sync.Mutex
	cfg  MarketConfig
	rng  *rand.Rand
	mid  float64
	mids []float64
	now  func() time.Time
}

// NewMarket starts a walk at cfg.Start.
func NewMarket(cfg MarketConfig) *Market {
	if cfg.History <= 0 {
		cfg.History = 256
	}
	seed := uint64(cfg.Seed)
	m := &Market{
		cfg: cfg,
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		now: time.Now,
	}
	m.record(cfg.Start)
	return m
}

// Step advances the walk by one sample and returns the new quote.
func (m *Market) Step() schema.Quote {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := m.mid + m.rng.NormFloat64()*m.cfg.Volatility
	if next <= m.cfg.Spread {
		next = m.mid
	}
	m.record(next)
	return m.quoteLocked()
}

// SetMid moves the market to mid.
func (m *Market) SetMid(mid float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(mid)
}

// Quote returns the current bid and ask.
func (m *Market) Quote(_ context.Context, symbol string) (schema.Quote, error) {
	if err := m.check(symbol); err != nil {
		return schema.Quote{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.quoteLocked(), nil
}

// ATR averages the absolute mid moves over the last period samples. With no
// history yet the configured volatility is returned.
func (m *Market) ATR(_ context.Context, symbol string, period int) (float64, error) {
	if err := m.check(symbol); err != nil {
		return 0, err
	}
	if period <= 0 {
		return 0, errors.Wrap(exception.ErrInvalidArgument, "atr period").With("period", period)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.mids) - 1
	if n <= 0 {
		return m.cfg.Volatility, nil
	}
	if n > period {
		n = period
	}
	var sum float64
	for i := len(m.mids) - n; i < len(m.mids); i++ {
		sum += math.Abs(m.mids[i] - m.mids[i-1])
	}
	return sum / float64(n), nil
}

func (m *Market) check(symbol string) error {
	if symbol != m.cfg.Symbol {
		return errors.Wrap(exception.ErrInvalidArgument, "unknown symbol").With("symbol", symbol)
	}
	return nil
}

func (m *Market) record(mid float64) {
	m.mid = mid
	m.mids = append(m.mids, mid)
	if len(m.mids) > m.cfg.History {
		m.mids = m.mids[len(m.mids)-m.cfg.History:]
	}
}

func (m *Market) quoteLocked() schema.Quote {
	half := m.cfg.Spread / 2
	return schema.Quote{
		Symbol: m.cfg.Symbol,
		Bid:    m.mid - half,
		Ask:    m.mid + half,
		At:     m.now(),
	}
}
