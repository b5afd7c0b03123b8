// Package prompt collects user prompts for the orchestrator loop.
//
// A [Queue] buffers prompts from any number of feeders (HTTP, stdin,
// Discord, the host bridge) and hands them to the loop one per cycle. Each
// prompt is consumed exactly once.
package prompt

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
)

// DefaultCapacity is the queue size used when none is configured.
const DefaultCapacity = 16

// Prompt is one user request plus the standing goal it is pursued under.
type Prompt struct {
	Text string `json:"text"`
	Goal string `json:"goal,omitempty"`
}

// Queue is a bounded FIFO of prompts. When full, the oldest prompt is
// dropped to make room. It is safe for concurrent use.
type Queue struct {
	mu       sync.Mutex
	items    []Prompt
	capacity int
	goal     string
	dropped  int

	lmu       sync.Mutex
	listeners []func()
}

// QueueOption configures a [Queue].
type QueueOption func(*Queue)

// WithCapacity bounds the queue. Values below 1 keep [DefaultCapacity].
func WithCapacity(n int) QueueOption {
	return func(q *Queue) {
		if n > 0 {
			q.capacity = n
		}
	}
}

// WithGoal sets the goal attached to prompts that carry none.
func WithGoal(goal string) QueueOption {
	return func(q *Queue) {
		q.goal = goal
	}
}

// NewQueue returns an empty queue.
func NewQueue(opts ...QueueOption) *Queue {
	q := &Queue{capacity: DefaultCapacity}
	for _, o := range opts {
		o(q)
	}
	return q
}

// Push enqueues p and notifies listeners. Blank prompts are ignored and
// Push reports false.
func (q *Queue) Push(p Prompt) bool {
	p.Text = strings.TrimSpace(p.Text)
	if p.Text == "" {
		return false
	}
	p.Goal = strings.TrimSpace(p.Goal)

	q.mu.Lock()
	if p.Goal == "" {
		p.Goal = q.goal
	}
	if len(q.items) >= q.capacity {
		slog.Warn("prompt: queue full, dropping oldest prompt", "capacity", q.capacity)
		q.items = slices.Delete(q.items, 0, 1)
		q.dropped++
	}
	q.items = append(q.items, p)
	q.mu.Unlock()

	q.notify()
	return true
}

// CollectPrompt pops the oldest prompt. It never blocks; ok is false when
// the queue is empty. If prompts remain after the pop, listeners are
// notified again so the next cycle picks them up.
func (q *Queue) CollectPrompt(_ context.Context) (Prompt, bool) {
	q.mu.Lock()
	if len(q.items) == 0 {
		q.mu.Unlock()
		return Prompt{}, false
	}
	p := q.items[0]
	q.items = slices.Delete(q.items, 0, 1)
	more := len(q.items) > 0
	q.mu.Unlock()

	if more {
		q.notify()
	}
	return p, true
}

// OnNewPrompt registers fn to be called after every successful Push.
// Listeners run on the pushing goroutine and must not block.
func (q *Queue) OnNewPrompt(fn func()) {
	q.lmu.Lock()
	defer q.lmu.Unlock()
	q.listeners = append(q.listeners, fn)
}

// SetGoal replaces the default goal for prompts pushed from now on.
func (q *Queue) SetGoal(goal string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.goal = strings.TrimSpace(goal)
}

// Goal returns the default goal.
func (q *Queue) Goal() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.goal
}

// Len returns the number of queued prompts.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Dropped returns how many prompts were discarded because the queue was
// full.
func (q *Queue) Dropped() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

func (q *Queue) notify() {
	q.lmu.Lock()
	ls := slices.Clone(q.listeners)
	q.lmu.Unlock()
	for _, fn := range ls {
		fn()
	}
}
