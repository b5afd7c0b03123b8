// Package trigger coalesces "something changed" notifications into a single
// pending flag that the orchestrator loop waits on.
//
// Two sources feed the flag: new prompts and context updates. Any number of
// notifications before the loop picks the flag up collapse into one pending
// cycle. The context listener can be detached while a plan executes so that
// the actions' own changes to the scene do not immediately schedule another
// cycle; notifications that arrive while detached are dropped.
package trigger

import (
	"context"
	"sync"
	"sync/atomic"
)

// Monitor is a single-slot pending signal. The zero value is not usable;
// create one with [New]. All methods are safe for concurrent use.
type Monitor struct {
	pending chan struct{}

	mu       sync.Mutex
	detached bool

	dropped atomic.Uint64
}

// New returns a Monitor with the context listener attached and nothing pending.
func New() *Monitor {
	return &Monitor{pending: make(chan struct{}, 1)}
}

func (m *Monitor) set() {
	select {
	case m.pending <- struct{}{}:
	default:
	}
}

// NotifyPrompt marks a cycle pending because a prompt became available.
// Prompt notifications are never suppressed.
func (m *Monitor) NotifyPrompt() {
	m.set()
}

// NotifyContext marks a cycle pending because the scene changed. It is a
// no-op while the context listener is detached.
func (m *Monitor) NotifyContext() {
	m.mu.Lock()
	detached := m.detached
	m.mu.Unlock()

	if detached {
		m.dropped.Add(1)
		return
	}
	m.set()
}

// DetachContext stops NotifyContext from setting the flag.
func (m *Monitor) DetachContext() {
	m.mu.Lock()
	m.detached = true
	m.mu.Unlock()
}

// AttachContext lets NotifyContext set the flag again. Updates dropped while
// detached are not replayed.
func (m *Monitor) AttachContext() {
	m.mu.Lock()
	m.detached = false
	m.mu.Unlock()
}

// Detached reports whether the context listener is currently detached.
func (m *Monitor) Detached() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.detached
}

// Pending reports whether a cycle is pending without clearing the flag.
func (m *Monitor) Pending() bool {
	return len(m.pending) > 0
}

// Wait blocks until a cycle is pending or ctx is done. On success the flag
// is cleared; a notification arriving afterwards sets it again for the next
// cycle.
func (m *Monitor) Wait(ctx context.Context) error {
	select {
	case <-m.pending:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dropped returns how many context notifications were discarded while the
// listener was detached.
func (m *Monitor) Dropped() uint64 {
	return m.dropped.Load()
}
