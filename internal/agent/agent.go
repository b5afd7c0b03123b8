// Package agent runs the orchestrator loop: the state machine that turns a
// trigger into one prompt, one scene snapshot, one model call, one parsed
// plan and one scheduled execution.
//
// The loop runs on a single goroutine and handles one cycle at a time.
// Prompt and context notifications are coalesced by a [trigger.Monitor];
// a notification that arrives mid-cycle starts the next cycle. Nothing that
// goes wrong inside a cycle stops the loop; only cancelling the context
// passed to [Agent.Run] does.
package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/stagehand/internal/observe"
	"github.com/MrWong99/stagehand/internal/plan"
	"github.com/MrWong99/stagehand/internal/prompt"
	"github.com/MrWong99/stagehand/internal/scene"
	"github.com/MrWong99/stagehand/internal/scheduler"
	"github.com/MrWong99/stagehand/internal/trigger"
)

var (
	// ErrNoPrompt is recorded for a cycle that was triggered while no prompt
	// was waiting.
	ErrNoPrompt = errors.New("agent: no prompt available")

	// ErrAlreadyRunning is returned by a second call to Run.
	ErrAlreadyRunning = errors.New("agent: already running")
)

// PromptSource yields user prompts. CollectPrompt must not block; it
// reports false when nothing is waiting.
type PromptSource interface {
	CollectPrompt(ctx context.Context) (prompt.Prompt, bool)
	OnNewPrompt(fn func())
}

// ContextProvider yields the scene snapshot and announces scene changes.
type ContextProvider interface {
	CollectContext(ctx context.Context) (scene.Context, error)
	OnContextUpdated(fn func())
	NotifyContextChanged()
}

// ModelClient turns a formatted request into raw plan text.
type ModelClient interface {
	Generate(ctx context.Context, request string) (string, error)
}

// Executor runs a parsed plan. [scheduler.Scheduler] is the production
// implementation.
type Executor interface {
	Run(ctx context.Context, p plan.Plan) scheduler.Report
}

// Config holds the collaborators of an [Agent]. All fields except Monitor
// are required.
type Config struct {
	Prompts  PromptSource
	Context  ContextProvider
	Model    ModelClient
	Catalog  plan.Catalog
	Executor Executor

	// Monitor coalesces triggers. A new one is created when nil.
	Monitor *trigger.Monitor
}

// Validate reports every missing collaborator.
func (c Config) Validate() error {
	var errs []error
	if c.Prompts == nil {
		errs = append(errs, errors.New("prompt source is required"))
	}
	if c.Context == nil {
		errs = append(errs, errors.New("context provider is required"))
	}
	if c.Model == nil {
		errs = append(errs, errors.New("model client is required"))
	}
	if c.Catalog == nil {
		errs = append(errs, errors.New("action catalog is required"))
	}
	if c.Executor == nil {
		errs = append(errs, errors.New("executor is required"))
	}
	return errors.Join(errs...)
}

// CycleResult describes one finished cycle.
type CycleResult struct {
	ID          string
	Status      string
	Prompt      prompt.Prompt
	Plan        plan.Plan
	Diagnostics []plan.Diagnostic
	Report      scheduler.Report
	Err         error
	Duration    time.Duration
}

// Cycle statuses used in metrics and [CycleResult.Status].
const (
	StatusOK           = "ok"
	StatusNoPrompt     = "no_prompt"
	StatusContextError = "context_error"
	StatusDegraded     = "degraded"
	StatusCancelled    = "cancelled"
)

// Agent is the orchestrator loop.
type Agent struct {
	prompts  PromptSource
	scene    ContextProvider
	model    ModelClient
	catalog  plan.Catalog
	executor Executor
	monitor  *trigger.Monitor
	metrics  *observe.Metrics

	state   atomic.Int32
	running atomic.Bool

	hmu         sync.RWMutex
	onState     func(from, to State)
	onCycleDone func(CycleResult)
}

// Option configures an [Agent].
type Option func(*Agent)

// WithMetrics records cycle metrics on m. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *Agent) {
		a.metrics = m
	}
}

// WithStateHook registers fn to observe every state transition. It runs on
// the loop goroutine and must not block.
func WithStateHook(fn func(from, to State)) Option {
	return func(a *Agent) {
		a.onState = fn
	}
}

// WithCycleHook registers fn to receive every finished cycle. It runs on
// the loop goroutine and must not block.
func WithCycleHook(fn func(CycleResult)) Option {
	return func(a *Agent) {
		a.onCycleDone = fn
	}
}

// New wires the collaborators together and subscribes the trigger monitor
// to prompt and context notifications.
func New(cfg Config, opts ...Option) (*Agent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("agent: invalid config: %w", err)
	}
	a := &Agent{
		prompts:  cfg.Prompts,
		scene:    cfg.Context,
		model:    cfg.Model,
		catalog:  cfg.Catalog,
		executor: cfg.Executor,
		monitor:  cfg.Monitor,
	}
	if a.monitor == nil {
		a.monitor = trigger.New()
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	a.prompts.OnNewPrompt(a.monitor.NotifyPrompt)
	a.scene.OnContextUpdated(a.monitor.NotifyContext)
	return a, nil
}

// State returns the current loop state.
func (a *Agent) State() State {
	return State(a.state.Load())
}

// Monitor returns the trigger monitor the loop waits on.
func (a *Agent) Monitor() *trigger.Monitor {
	return a.monitor
}

// OnStateChange replaces the state transition hook.
func (a *Agent) OnStateChange(fn func(from, to State)) {
	a.hmu.Lock()
	defer a.hmu.Unlock()
	a.onState = fn
}

func (a *Agent) setState(to State) {
	from := State(a.state.Swap(int32(to)))
	if from == to {
		return
	}
	a.hmu.RLock()
	fn := a.onState
	a.hmu.RUnlock()
	if fn != nil {
		fn(from, to)
	}
}
