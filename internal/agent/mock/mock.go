// Package mock provides in-memory test doubles for the interfaces consumed
// by [agent.Agent].
//
// All mocks are safe for concurrent use, record method calls, and expose
// exported fields for configuring return values.
//
// Example:
//
//	prompts := &mock.PromptSource{}
//	model := &mock.ModelClient{GenerateResult: `[[{"actionId":"talk","targetId":"Cube1","param":{"dialogueLine":"hi"}}]]`}
//	prompts.Push(prompt.Prompt{Text: "say hi"})
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/stagehand/internal/agent"
	"github.com/MrWong99/stagehand/internal/plan"
	"github.com/MrWong99/stagehand/internal/prompt"
	"github.com/MrWong99/stagehand/internal/scene"
	"github.com/MrWong99/stagehand/internal/scheduler"
)

var (
	_ agent.PromptSource    = (*PromptSource)(nil)
	_ agent.ContextProvider = (*ContextProvider)(nil)
	_ agent.ModelClient     = (*ModelClient)(nil)
	_ agent.Executor        = (*Executor)(nil)
)

// ─── PromptSource ─────────────────────────────────────────────────────────────

// PromptSource is a FIFO mock of [agent.PromptSource].
type PromptSource struct {
	mu        sync.Mutex
	prompts   []prompt.Prompt
	listeners []func()

	// CollectCalls counts CollectPrompt invocations.
	CollectCalls int
}

// Push queues p and fires the OnNewPrompt listeners.
func (m *PromptSource) Push(p prompt.Prompt) {
	m.mu.Lock()
	m.prompts = append(m.prompts, p)
	ls := slices.Clone(m.listeners)
	m.mu.Unlock()
	for _, fn := range ls {
		fn()
	}
}

// CollectPrompt pops the oldest queued prompt.
func (m *PromptSource) CollectPrompt(context.Context) (prompt.Prompt, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CollectCalls++
	if len(m.prompts) == 0 {
		return prompt.Prompt{}, false
	}
	p := m.prompts[0]
	m.prompts = m.prompts[1:]
	return p, true
}

// OnNewPrompt records fn.
func (m *PromptSource) OnNewPrompt(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Collected returns CollectCalls.
func (m *PromptSource) Collected() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CollectCalls
}

// ─── ContextProvider ──────────────────────────────────────────────────────────

// ContextProvider is a mock of [agent.ContextProvider].
type ContextProvider struct {
	mu        sync.Mutex
	listeners []func()

	// ContextResult is returned by CollectContext.
	ContextResult scene.Context

	// ContextErr, if non-nil, is returned by CollectContext.
	ContextErr error

	// CollectCalls counts CollectContext invocations.
	CollectCalls int
}

// CollectContext returns ContextResult and ContextErr.
func (m *ContextProvider) CollectContext(context.Context) (scene.Context, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CollectCalls++
	return slices.Clone(m.ContextResult), m.ContextErr
}

// OnContextUpdated records fn.
func (m *ContextProvider) OnContextUpdated(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// NotifyContextChanged fires every registered listener.
func (m *ContextProvider) NotifyContextChanged() {
	m.mu.Lock()
	ls := slices.Clone(m.listeners)
	m.mu.Unlock()
	for _, fn := range ls {
		fn()
	}
}

// Collected returns CollectCalls.
func (m *ContextProvider) Collected() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CollectCalls
}

// ─── ModelClient ──────────────────────────────────────────────────────────────

// ModelClient is a mock of [agent.ModelClient].
type ModelClient struct {
	mu sync.Mutex

	// GenerateResult is returned by Generate.
	GenerateResult string

	// GenerateErr, if non-nil, is returned by Generate.
	GenerateErr error

	// GenerateFunc, if set, takes precedence over GenerateResult and
	// GenerateErr. It is called without the mock's lock held.
	GenerateFunc func(ctx context.Context, request string) (string, error)

	// Requests records every request passed to Generate.
	Requests []string
}

// Generate records request and returns the configured result.
func (m *ModelClient) Generate(ctx context.Context, request string) (string, error) {
	m.mu.Lock()
	m.Requests = append(m.Requests, request)
	fn, res, err := m.GenerateFunc, m.GenerateResult, m.GenerateErr
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, request)
	}
	return res, err
}

// Calls returns a copy of the recorded requests.
func (m *ModelClient) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.Requests)
}

// Reset clears recorded requests.
func (m *ModelClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests = nil
}

// ─── Executor ─────────────────────────────────────────────────────────────────

// Executor is a mock of [agent.Executor].
type Executor struct {
	mu sync.Mutex

	// RunReport is returned by Run.
	RunReport scheduler.Report

	// RunFunc, if set, takes precedence over RunReport. It is called without
	// the mock's lock held.
	RunFunc func(ctx context.Context, p plan.Plan) scheduler.Report

	// Plans records every plan passed to Run.
	Plans []plan.Plan
}

// Run records p and returns RunReport or the result of RunFunc.
func (m *Executor) Run(ctx context.Context, p plan.Plan) scheduler.Report {
	m.mu.Lock()
	m.Plans = append(m.Plans, p)
	fn, rep := m.RunFunc, m.RunReport
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, p)
	}
	return rep
}

// Calls returns a copy of the recorded plans.
func (m *Executor) Calls() []plan.Plan {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.Plans)
}
