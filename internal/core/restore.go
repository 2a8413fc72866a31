package core

import (
	"context"
	"errors"
	"time"

	"github.com/yanun0323/logs"

	"scalper/pkg/exception"
)

// Restore loads the last snapshot of the symbol, if any. Restored positions
// are reconciled against the broker on the next tick.
func (e *Engine) Restore(ctx context.Context) error {
	if e.deps.Store == nil {
		return nil
	}
	snap, err := e.deps.Store.Load(ctx, e.cfg.Symbol)
	if errors.Is(err, exception.ErrStorageNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	st := snap.State
	if st.LastAccepted == nil {
		st.LastAccepted = make(map[string]time.Time)
	}
	*e.state = st
	e.book.Restore(snap.Positions)
	e.publishStatus()
	logs.Infof("restored %d positions from snapshot %s, day: %s, halted: %t",
		len(snap.Positions), time.Unix(0, snap.Timestamp).UTC().Format(time.RFC3339), st.Daily.Day, st.Halted)
	return nil
}
