package bus

import (
	"context"
	"sync"
	"sync/atomic"

	"scalper/pkg/exception"
)

// Queue is a bounded, non-blocking queue.
type Queue[T any] struct {
	ch     chan T
	closed uint32
	mu     sync.RWMutex
}

// NewQueue allocates a queue with the given capacity.
func NewQueue[T any](capacity int) *Queue[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue[T]{ch: make(chan T, capacity)}
}

// TryPublish enqueues an item without blocking.
func (q *Queue[T]) TryPublish(item T) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if atomic.LoadUint32(&q.closed) != 0 {
		return exception.ErrStorageQueueClosed
	}
	select {
	case q.ch <- item:
		return nil
	default:
		return exception.ErrStorageQueueFull
	}
}

// TryPop dequeues an item without blocking.
func (q *Queue[T]) TryPop() (T, bool) {
	select {
	case item, ok := <-q.ch:
		return item, ok
	default:
		var zero T
		return zero, false
	}
}

// Chan exposes the receive side for select loops.
func (q *Queue[T]) Chan() <-chan T {
	return q.ch
}

// Drain discards buffered items and returns how many were dropped.
func (q *Queue[T]) Drain() int {
	n := 0
	for {
		select {
		case _, ok := <-q.ch:
			if !ok {
				return n
			}
			n++
		default:
			return n
		}
	}
}

// Len returns the number of buffered items.
func (q *Queue[T]) Len() int {
	return len(q.ch)
}

// Close stops the queue from accepting new items. Buffered items can still be drained.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if atomic.CompareAndSwapUint32(&q.closed, 0, 1) {
		close(q.ch)
	}
}

// Closed reports whether Close was called.
func (q *Queue[T]) Closed() bool {
	return atomic.LoadUint32(&q.closed) != 0
}

// Run consumes items until the context is done or the queue is closed and drained.
func (q *Queue[T]) Run(ctx context.Context, handler func(T)) {
	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-q.ch:
			if !ok {
				return
			}
			handler(item)
		}
	}
}
