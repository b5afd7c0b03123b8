// Package mock provides test doubles for the action package interfaces.
//
// Action records every Execute call in order, which makes it the recording
// stub for checking that invocations inside a sequence run in plan order.
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/stagehand/internal/action"
)

// ExecuteCall records a single invocation of Execute.
type ExecuteCall struct {
	Param    any
	TargetID string
}

// Action is a mock implementation of action.Action.
type Action struct {
	mu sync.Mutex

	// DescribeResult is returned by Describe.
	DescribeResult action.Descriptor

	// ExecuteErr, if non-nil, is returned by Execute.
	ExecuteErr error

	// ExecuteFunc, if set, runs instead of returning ExecuteErr. It is called
	// without the mock's lock held and after the call is recorded.
	ExecuteFunc func(ctx context.Context, param any, target action.Target, handle action.ContextHandle) error

	// ExecuteCalls records every invocation of Execute in order.
	ExecuteCalls []ExecuteCall
}

// New returns an Action describing itself as id.
func New(id string) *Action {
	return &Action{DescribeResult: action.Descriptor{ID: id, Description: id + " action"}}
}

// Describe returns DescribeResult.
func (a *Action) Describe() action.Descriptor {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.DescribeResult
}

// Execute records the call and returns ExecuteErr or the result of ExecuteFunc.
func (a *Action) Execute(ctx context.Context, param any, target action.Target, handle action.ContextHandle) error {
	a.mu.Lock()
	id := ""
	if target != nil {
		id = target.ID()
	}
	a.ExecuteCalls = append(a.ExecuteCalls, ExecuteCall{Param: param, TargetID: id})
	fn, err := a.ExecuteFunc, a.ExecuteErr
	a.mu.Unlock()

	if fn != nil {
		return fn(ctx, param, target, handle)
	}
	return err
}

// Calls returns a copy of the recorded Execute calls.
func (a *Action) Calls() []ExecuteCall {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.ExecuteCalls)
}

// Reset clears all recorded calls.
func (a *Action) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ExecuteCalls = nil
}

// Target is a mock implementation of action.Target.
type Target struct {
	mu sync.Mutex

	// IDResult is returned by ID.
	IDResult string

	// DispatchErr, if non-nil, is returned by Dispatch.
	DispatchErr error

	// DispatchCalls records every command passed to Dispatch.
	DispatchCalls []action.Command
}

// ID returns IDResult.
func (t *Target) ID() string { return t.IDResult }

// Dispatch records cmd and returns DispatchErr.
func (t *Target) Dispatch(_ context.Context, cmd action.Command) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.DispatchCalls = append(t.DispatchCalls, cmd)
	return t.DispatchErr
}

// Commands returns a copy of the recorded commands.
func (t *Target) Commands() []action.Command {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.DispatchCalls)
}

// Handle is a mock implementation of action.ContextHandle.
type Handle struct {
	mu sync.Mutex

	// NotifyCount is the number of NotifyContextChanged calls.
	NotifyCount int
}

// NotifyContextChanged increments NotifyCount.
func (h *Handle) NotifyContextChanged() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.NotifyCount++
}

// Count returns NotifyCount.
func (h *Handle) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.NotifyCount
}

var (
	_ action.Action        = (*Action)(nil)
	_ action.Target        = (*Target)(nil)
	_ action.ContextHandle = (*Handle)(nil)
)
