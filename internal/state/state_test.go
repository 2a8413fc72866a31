package state

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scalper/internal/schema"
	"scalper/pkg/exception"
)

func TestDailyRiskRollOncePerDay(t *testing.T) {
	var d DailyRisk
	day1 := time.Date(2024, 5, 1, 0, 0, 5, 0, time.UTC)

	require.True(t, d.Roll(day1, time.UTC, 10000))
	assert.Equal(t, 10000.0, d.DayStartBalance)

	d.RecordClose(9900)
	assert.Equal(t, -100.0, d.RealizedPnL)
	assert.Equal(t, 1, d.TradeCount)

	assert.False(t, d.Roll(day1.Add(23*time.Hour), time.UTC, 9000))
	assert.Equal(t, 10000.0, d.DayStartBalance)
	assert.Equal(t, 1, d.TradeCount)

	require.True(t, d.Roll(day1.Add(24*time.Hour), time.UTC, 9900))
	assert.Equal(t, 9900.0, d.DayStartBalance)
	assert.Zero(t, d.RealizedPnL)
	assert.Zero(t, d.TradeCount)
}

func TestDailyRiskRollUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*3600)
	var d DailyRisk
	require.True(t, d.Roll(time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC), loc, 100))
	assert.Equal(t, "2024-05-01", d.Day)
	require.True(t, d.Roll(time.Date(2024, 5, 1, 21, 30, 0, 0, time.UTC), loc, 100))
	assert.Equal(t, "2024-05-02", d.Day)
}

func TestEngineStateHaltClearsOnlyOnRoll(t *testing.T) {
	st := NewEngineState()
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	st.Roll(now, time.UTC, 10000)

	st.Halt(now, -500)
	st.Halt(now.Add(time.Minute), -600)
	assert.True(t, st.Halted)
	assert.Equal(t, now, st.HaltedAt)
	assert.Equal(t, -500.0, st.HaltedPnL)

	assert.False(t, st.Roll(now.Add(time.Hour), time.UTC, 9500))
	assert.True(t, st.Halted)

	assert.True(t, st.Roll(now.Add(24*time.Hour), time.UTC, 9500))
	assert.False(t, st.Halted)
}

func TestEngineStateWinRate(t *testing.T) {
	st := NewEngineState()
	assert.Equal(t, 0.55, st.WinRate(0.55, 4))
	st.RecordClose(100, 5)
	st.RecordClose(100, -3)
	st.RecordClose(100, 2)
	assert.Equal(t, 0.55, st.WinRate(0.55, 4))
	st.RecordClose(100, 1)
	assert.InDelta(t, 0.75, st.WinRate(0.55, 4), 1e-12)
	assert.Equal(t, 0.55, st.WinRate(0.55, 0))
}

func TestFileStoreRoundTrip(t *testing.T) {
	store := NewFileStore(t.TempDir())
	ctx := context.Background()

	_, err := store.Load(ctx, "EURUSD")
	require.ErrorIs(t, err, exception.ErrStorageNotFound)

	st := NewEngineState()
	st.Roll(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC), time.UTC, 10000)
	st.Accept("EURUSD", time.Date(2024, 5, 1, 9, 1, 0, 0, time.UTC))
	positions := []schema.Position{
		{Ticket: 9, Symbol: "EURUSD", Side: schema.SideSell, Lots: 0.2, Stage: schema.StageTP1},
		{Ticket: 3, Symbol: "EURUSD", Side: schema.SideBuy, Lots: 0.1},
	}
	require.NoError(t, store.Save(ctx, NewSnapshot("EURUSD", st, positions)))

	got, err := store.Load(ctx, "EURUSD")
	require.NoError(t, err)
	require.Len(t, got.Positions, 2)
	assert.Equal(t, uint64(3), got.Positions[0].Ticket)
	assert.Equal(t, schema.StageTP1, got.Positions[1].Stage)
	assert.Equal(t, schema.SideSell, got.Positions[1].Side)
	assert.Equal(t, 10000.0, got.State.Daily.DayStartBalance)
	assert.Contains(t, got.State.LastAccepted, "EURUSD")
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	_, err := store.Load(ctx, "X")
	require.ErrorIs(t, err, exception.ErrStorageNotFound)
	require.NoError(t, store.Save(ctx, Snapshot{Symbol: "X", Timestamp: 7}))
	got, err := store.Load(ctx, "X")
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.Timestamp)
}

func TestRedisStore(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	store, err := NewRedisStore(url)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Ping(ctx))
	symbol := "TEST" + time.Now().Format("150405.000000")
	require.NoError(t, store.Save(ctx, Snapshot{Symbol: symbol, Timestamp: 42}))
	got, err := store.Load(ctx, symbol)
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.Timestamp)
}
