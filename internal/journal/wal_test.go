package journal

import (
	"bytes"
	"context"
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scalper/internal/schema"
	"scalper/pkg/exception"
)

func TestWALStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := NewWALStore(WALConfig{Dir: dir})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Write(ctx, Entry{Type: schema.EventSignal, Signal: &SignalRecord{SignalID: "sig-1", Symbol: "EURUSD", Accepted: true}}))
	require.NoError(t, s.Write(ctx, Entry{Type: schema.EventPositionClose, Close: &TradeClose{Ticket: 9, FinalStage: "tp2", PnL: 4.2}}))
	require.NoError(t, s.Close())

	var got []Entry
	require.NoError(t, ReadWAL(dir, "", func(_ time.Time, e Entry) error {
		got = append(got, e)
		return nil
	}))
	require.Len(t, got, 2)
	assert.Equal(t, schema.EventSignal, got[0].Type)
	assert.Equal(t, "sig-1", got[0].Signal.SignalID)
	assert.True(t, got[0].Signal.Accepted)
	assert.Equal(t, uint64(9), got[1].Close.Ticket)
	assert.Equal(t, 4.2, got[1].Close.PnL)
}

func TestWALStoreRotatesOnDayChange(t *testing.T) {
	dir := t.TempDir()
	s, err := NewWALStore(WALConfig{Dir: dir})
	require.NoError(t, err)

	now := time.Date(2026, 3, 2, 23, 59, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	ctx := context.Background()
	require.NoError(t, s.Write(ctx, Entry{Type: schema.EventBreakerHalt, Risk: &RiskEventRecord{Kind: "halt"}}))
	now = now.Add(2 * time.Minute)
	require.NoError(t, s.Write(ctx, Entry{Type: schema.EventBreakerClear, Risk: &RiskEventRecord{Kind: "reset"}}))
	require.NoError(t, s.Close())

	paths, err := Segments(dir, "")
	require.NoError(t, err)
	assert.Len(t, paths, 2)

	var kinds []string
	var days []int
	require.NoError(t, ReadWAL(dir, "", func(at time.Time, e Entry) error {
		kinds = append(kinds, e.Risk.Kind)
		days = append(days, at.Day())
		return nil
	}))
	assert.Equal(t, []string{"halt", "reset"}, kinds)
	assert.Equal(t, []int{2, 3}, days)
}

func TestWALStoreRotatesOnSize(t *testing.T) {
	dir := t.TempDir()
	s, err := NewWALStore(WALConfig{Dir: dir, SegmentMaxBytes: 64})
	require.NoError(t, err)

	for range 3 {
		require.NoError(t, s.Write(context.Background(), Entry{Type: schema.EventSignal, Signal: &SignalRecord{SignalID: "x"}}))
	}
	require.NoError(t, s.Close())

	paths, err := Segments(dir, "")
	require.NoError(t, err)
	assert.Len(t, paths, 3)
}

func TestWALStoreWriteAfterClose(t *testing.T) {
	s, err := NewWALStore(WALConfig{Dir: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	err = s.Write(context.Background(), Entry{Type: schema.EventSignal, Signal: &SignalRecord{}})
	assert.ErrorIs(t, err, exception.ErrStorageClosed)
}

func TestWALReaderDetectsCorruption(t *testing.T) {
	dir := t.TempDir()
	s, err := NewWALStore(WALConfig{Dir: dir})
	require.NoError(t, err)
	require.NoError(t, s.Write(context.Background(), Entry{Type: schema.EventSignal, Signal: &SignalRecord{SignalID: "sig"}}))
	require.NoError(t, s.Close())

	paths, err := Segments(dir, "")
	require.NoError(t, err)
	require.Len(t, paths, 1)
	raw, err := os.ReadFile(paths[0])
	require.NoError(t, err)

	flipped := bytes.Clone(raw)
	flipped[walHeaderSize+2] ^= 0xff
	_, _, err = NewWALReader(bytes.NewReader(flipped)).Next()
	assert.ErrorIs(t, err, exception.ErrStorageChecksum)

	badMagic := bytes.Clone(raw)
	badMagic[0] = 'X'
	_, _, err = NewWALReader(bytes.NewReader(badMagic)).Next()
	assert.ErrorIs(t, err, exception.ErrStorageBadMagic)

	r := NewWALReader(bytes.NewReader(raw))
	_, _, err = r.Next()
	require.NoError(t, err)
	_, _, err = r.Next()
	assert.Equal(t, io.EOF, err)
}

func TestAsyncOverWAL(t *testing.T) {
	dir := t.TempDir()
	s, err := NewWALStore(WALConfig{Dir: dir})
	require.NoError(t, err)

	a := NewAsync(s, 16)
	a.Start(context.Background())
	for range 5 {
		require.NoError(t, a.Record(Entry{Type: schema.EventStopMove, Exit: &ExitRecord{Ticket: 1, Kind: "breakeven"}}))
	}
	require.NoError(t, a.Close())

	n := 0
	require.NoError(t, ReadWAL(dir, "", func(time.Time, Entry) error {
		n++
		return nil
	}))
	assert.Equal(t, 5, n)
}
