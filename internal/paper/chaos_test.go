package paper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scalper/internal/og"
	"scalper/internal/schema"
	"scalper/pkg/exception"
)

func TestChaosConfigValidate(t *testing.T) {
	_, broker := newFixture(t)
	for _, cfg := range []ChaosConfig{
		{RejectRate: -0.1},
		{RejectRate: 1.5},
		{QueryFailRate: 2},
		{MaxDelay: -time.Second},
	} {
		_, err := NewChaos(broker, cfg)
		assert.ErrorIs(t, err, exception.ErrInvalidArgument)
	}
	_, err := NewChaos(nil, ChaosConfig{})
	assert.ErrorIs(t, err, exception.ErrOrderNilBroker)
	assert.False(t, ChaosConfig{}.Enabled())
	assert.True(t, ChaosConfig{MaxDelay: time.Millisecond}.Enabled())
}

func TestChaosAlwaysRejectsWithTransientCodes(t *testing.T) {
	ctx := context.Background()
	_, broker := newFixture(t)
	c, err := NewChaos(broker, ChaosConfig{Seed: 3, RejectRate: 1, QueryFailRate: 1})
	require.NoError(t, err)

	for range 10 {
		_, err := c.SubmitOrder(ctx, og.BrokerOrder{Symbol: "EURUSD", Side: schema.SideBuy, Lots: 0.1, Price: 1.1001, Slippage: 3})
		require.Error(t, err)
		assert.Equal(t, og.ClassTransient, og.ClassOf(err))
	}
	_, err = c.Account(ctx)
	assert.Equal(t, og.ClassTransient, og.ClassOf(err))
	_, err = c.OpenPositions(ctx, "EURUSD")
	assert.Error(t, err)
	assert.Empty(t, broker.Deals())
}

func TestChaosPassThrough(t *testing.T) {
	ctx := context.Background()
	_, broker := newFixture(t)
	c, err := NewChaos(broker, ChaosConfig{Seed: 3})
	require.NoError(t, err)

	fill, err := c.SubmitOrder(ctx, og.BrokerOrder{Symbol: "EURUSD", Side: schema.SideBuy, Lots: 0.1, Price: 1.1001, Slippage: 3})
	require.NoError(t, err)
	positions, err := c.OpenPositions(ctx, "EURUSD")
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, fill.Ticket, positions[0].Ticket)
}

func TestChaosDelayHonoursContext(t *testing.T) {
	_, broker := newFixture(t)
	c, err := NewChaos(broker, ChaosConfig{Seed: 1, MaxDelay: time.Hour})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.Account(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
