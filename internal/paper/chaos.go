package paper

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/yanun0323/errors"

	"scalper/internal/og"
	"scalper/internal/schema"
	"scalper/pkg/exception"
)

// ChaosConfig controls fault injection in front of a broker.
type ChaosConfig struct {
	Seed uint64

	// RejectRate is the chance a trading call fails with a transient code.
	RejectRate float64
	// QueryFailRate is the chance a position or account query fails.
	QueryFailRate float64
	MaxDelay      time.Duration
}

// Enabled reports whether any fault is configured.
func (c ChaosConfig) Enabled() bool {
	return c.RejectRate > 0 || c.QueryFailRate > 0 || c.MaxDelay > 0
}

// Validate ensures rates are probabilities.
func (c ChaosConfig) Validate() error {
	if c.RejectRate < 0 || c.RejectRate > 1 {
		return errors.Wrap(exception.ErrInvalidArgument, "chaos reject rate").With("value", c.RejectRate)
	}
	if c.QueryFailRate < 0 || c.QueryFailRate > 1 {
		return errors.Wrap(exception.ErrInvalidArgument, "chaos query fail rate").With("value", c.QueryFailRate)
	}
	if c.MaxDelay < 0 {
		return errors.Wrap(exception.ErrInvalidArgument, "chaos max delay").With("value", c.MaxDelay)
	}
	return nil
}

var transientCodes = []int{og.CodeRequote, og.CodeServerBusy, og.CodeOffQuotes, og.CodeTradeContextBusy}

// Chaos wraps a broker and injects delays and transient rejections, so
// rehearsals exercise the retry and classification paths.
type Chaos struct {
	next og.Broker
	cfg  ChaosConfig

	mu  sync.Mutex
	rng *rand.Rand
}

var _ og.Broker = (*Chaos)(nil)

// NewChaos validates cfg and wraps next.
func NewChaos(next og.Broker, cfg ChaosConfig) (*Chaos, error) {
	if next == nil {
		return nil, exception.ErrOrderNilBroker
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Chaos{next: next, cfg: cfg, rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}, nil
}

func (c *Chaos) SubmitOrder(ctx context.Context, order og.BrokerOrder) (og.Fill, error) {
	if err := c.inject(ctx, "submit", c.cfg.RejectRate); err != nil {
		return og.Fill{}, err
	}
	return c.next.SubmitOrder(ctx, order)
}

func (c *Chaos) ModifyOrder(ctx context.Context, ticket uint64, stopLoss, takeProfit float64) error {
	if err := c.inject(ctx, "modify", c.cfg.RejectRate); err != nil {
		return err
	}
	return c.next.ModifyOrder(ctx, ticket, stopLoss, takeProfit)
}

func (c *Chaos) ClosePartial(ctx context.Context, ticket uint64, lots float64) error {
	if err := c.inject(ctx, "close", c.cfg.RejectRate); err != nil {
		return err
	}
	return c.next.ClosePartial(ctx, ticket, lots)
}

func (c *Chaos) OpenPositions(ctx context.Context, symbol string) ([]schema.BrokerPosition, error) {
	if err := c.inject(ctx, "positions", c.cfg.QueryFailRate); err != nil {
		return nil, err
	}
	return c.next.OpenPositions(ctx, symbol)
}

func (c *Chaos) Account(ctx context.Context) (schema.Account, error) {
	if err := c.inject(ctx, "account", c.cfg.QueryFailRate); err != nil {
		return schema.Account{}, err
	}
	return c.next.Account(ctx)
}

func (c *Chaos) inject(ctx context.Context, op string, rate float64) error {
	delay, fail, code := c.roll(rate)
	if delay > 0 {
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	if fail {
		return &og.BrokerError{Op: op, Code: code, Message: "injected"}
	}
	return nil
}

func (c *Chaos) roll(rate float64) (time.Duration, bool, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var delay time.Duration
	if c.cfg.MaxDelay > 0 {
		delay = time.Duration(c.rng.Int64N(int64(c.cfg.MaxDelay) + 1))
	}
	if rate <= 0 || c.rng.Float64() >= rate {
		return delay, false, 0
	}
	return delay, true, transientCodes[c.rng.IntN(len(transientCodes))]
}
