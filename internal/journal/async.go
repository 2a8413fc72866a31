package journal

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yanun0323/logs"

	"scalper/internal/bus"
)

const defaultWriteTimeout = 5 * time.Second

// Async queues entries for a background worker so callers never wait on the store.
type Async struct {
	store   Store
	queue   *bus.Queue[Entry]
	timeout time.Duration
	wg      sync.WaitGroup
	dropped atomic.Uint64
	failed  atomic.Uint64
	written atomic.Uint64
}

// NewAsync wraps store with a queue of the given capacity.
func NewAsync(store Store, capacity int) *Async {
	return &Async{store: store, queue: bus.NewQueue[Entry](capacity), timeout: defaultWriteTimeout}
}

// Start launches the worker. It drains the queue after Close.
func (a *Async) Start(ctx context.Context) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.queue.Run(context.WithoutCancel(ctx), a.write)
	}()
}

func (a *Async) write(e Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()
	if err := a.store.Write(ctx, e); err != nil {
		a.failed.Add(1)
		logs.Errorf("journal write %s, err: %+v", e.Type, err)
		return
	}
	a.written.Add(1)
}

// Record queues e. A full queue drops the entry.
func (a *Async) Record(e Entry) error {
	if err := a.queue.TryPublish(e); err != nil {
		a.dropped.Add(1)
		return err
	}
	return nil
}

// Dropped returns how many entries were rejected by a full or closed queue.
func (a *Async) Dropped() uint64 {
	return a.dropped.Load()
}

// Written returns how many entries reached the store.
func (a *Async) Written() uint64 {
	return a.written.Load()
}

// Failed returns how many store writes failed.
func (a *Async) Failed() uint64 {
	return a.failed.Load()
}

// Close stops accepting entries, waits for the worker to drain, and closes the store.
func (a *Async) Close() error {
	a.queue.Close()
	a.wg.Wait()
	return a.store.Close()
}
