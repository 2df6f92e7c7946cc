package crawler

import (
	"context"
	"sync"
	"time"
)

// Event is a broadcast flag. Set wakes every current and future waiter
// until Clear arms it again, which lets front-ends long-poll for new user
// arrivals without holding a subscription.
type Event struct {
	mu  sync.Mutex
	ch  chan struct{}
	set bool
}

// NewEvent returns a cleared event.
func NewEvent() *Event {
	return &Event{ch: make(chan struct{})}
}

// Set raises the flag and releases all waiters. Setting an already-set
// event is a no-op.
func (e *Event) Set() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.set {
		e.set = true
		close(e.ch)
	}
}

// Clear re-arms the event.
func (e *Event) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.set {
		e.set = false
		e.ch = make(chan struct{})
	}
}

// Wait blocks until the event is set, the timeout elapses or the context
// is cancelled. It reports whether the event was set.
func (e *Event) Wait(ctx context.Context, timeout time.Duration) bool {
	e.mu.Lock()
	ch := e.ch

	if e.set {
		e.mu.Unlock()

		return true
	}

	e.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ch:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}
