// Package scheduler executes a [plan.Plan]: sequences run concurrently, the
// invocations inside a sequence run one after another.
//
// Every invocation is isolated. A target that cannot be resolved, an action
// that is no longer registered, an action that returns an error or one that
// panics only affects that single step; the sequence moves on to its next
// invocation. Cancellation is checked before each step and never interrupts
// an action that is already running. [Scheduler.Run] returns only after all
// sequences have finished or been abandoned.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sourcegraph/conc/panics"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/stagehand/internal/action"
	"github.com/MrWong99/stagehand/internal/observe"
	"github.com/MrWong99/stagehand/internal/plan"
)

var (
	// ErrResolution marks an invocation skipped because its target could not
	// be resolved.
	ErrResolution = errors.New("scheduler: target not resolved")

	// ErrUnknownAction marks an invocation skipped because its action is not
	// registered.
	ErrUnknownAction = errors.New("scheduler: unknown action")

	// ErrExecution marks an invocation whose action failed or panicked.
	ErrExecution = errors.New("scheduler: execution failed")

	errNoTarget = errors.New("resolver returned no object")
)

// Resolver looks up a live target handle by id. It is called at the start of
// every invocation; results are never cached.
type Resolver interface {
	Resolve(ctx context.Context, id string) (action.Target, error)
}

// Catalog is the read side of the action registry.
type Catalog interface {
	Lookup(id string) (action.Action, bool)
}

// Status is the outcome of one invocation.
type Status string

const (
	StatusOK        Status = "ok"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
	StatusAbandoned Status = "abandoned"
)

// Result describes one finished, skipped or abandoned invocation.
type Result struct {
	Sequence   int
	Index      int
	Invocation plan.Invocation
	Status     Status
	Err        error
	Duration   time.Duration
}

// Report summarises a Run.
type Report struct {
	Executed  int
	Failed    int
	Skipped   int
	Abandoned int
}

// Total returns the number of invocations accounted for.
func (r Report) Total() int {
	return r.Executed + r.Failed + r.Skipped + r.Abandoned
}

func (r *Report) add(o Report) {
	r.Executed += o.Executed
	r.Failed += o.Failed
	r.Skipped += o.Skipped
	r.Abandoned += o.Abandoned
}

func (r *Report) count(s Status) {
	switch s {
	case StatusOK:
		r.Executed++
	case StatusFailed:
		r.Failed++
	case StatusSkipped:
		r.Skipped++
	case StatusAbandoned:
		r.Abandoned++
	}
}

// Scheduler runs plans against a catalog of actions and a target resolver.
// A Scheduler holds no per-run state and may run several plans at once,
// although the orchestrator never does.
type Scheduler struct {
	catalog  Catalog
	resolver Resolver
	handle   action.ContextHandle
	metrics  *observe.Metrics
	observer func(Result)
}

// Option configures a [Scheduler].
type Option func(*Scheduler)

// WithMetrics records invocation outcomes to m. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

// WithObserver registers fn to receive every [Result]. fn is called from the
// sequence goroutines and must be safe for concurrent use.
func WithObserver(fn func(Result)) Option {
	return func(s *Scheduler) {
		s.observer = fn
	}
}

// New creates a Scheduler. handle is passed to every action so it can
// announce context changes.
func New(catalog Catalog, resolver Resolver, handle action.ContextHandle, opts ...Option) *Scheduler {
	s := &Scheduler{
		catalog:  catalog,
		resolver: resolver,
		handle:   handle,
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Run executes p and blocks until every sequence has completed or been
// abandoned after ctx was cancelled. An empty plan returns immediately.
func (s *Scheduler) Run(ctx context.Context, p plan.Plan) Report {
	reports := make([]Report, len(p.Sequences))

	// A plain Group: one sequence finishing or failing must never cancel
	// the others, so no derived context.
	var g errgroup.Group
	for i, seq := range p.Sequences {
		g.Go(func() error {
			reports[i] = s.runSequence(ctx, i, seq)
			return nil
		})
	}
	_ = g.Wait()

	var total Report
	for _, r := range reports {
		total.add(r)
	}
	return total
}

func (s *Scheduler) runSequence(ctx context.Context, si int, seq plan.Sequence) Report {
	s.metrics.ActiveSequences.Add(ctx, 1)
	defer s.metrics.ActiveSequences.Add(context.WithoutCancel(ctx), -1)

	var rep Report
	for j, inv := range seq {
		if err := ctx.Err(); err != nil {
			for k := j; k < len(seq); k++ {
				res := Result{Sequence: si, Index: k, Invocation: seq[k], Status: StatusAbandoned, Err: err}
				s.finish(ctx, res)
				rep.count(res.Status)
			}
			observe.Logger(ctx).Info("scheduler: sequence abandoned", "sequence", si, "remaining", len(seq)-j)
			break
		}

		res := s.invoke(ctx, si, j, inv)
		s.finish(ctx, res)
		rep.count(res.Status)
	}
	return rep
}

func (s *Scheduler) invoke(ctx context.Context, si, idx int, inv plan.Invocation) Result {
	res := Result{Sequence: si, Index: idx, Invocation: inv}
	log := observe.Logger(ctx).With("sequence", si, "index", idx, "action", inv.ActionID, "target", inv.TargetID)

	target, err := s.resolver.Resolve(ctx, inv.TargetID)
	if err == nil && target == nil {
		err = errNoTarget
	}
	if err != nil {
		res.Status = StatusSkipped
		res.Err = fmt.Errorf("%w: %q: %w", ErrResolution, inv.TargetID, err)
		log.Warn("scheduler: skipping invocation, target not found", "err", err)
		return res
	}

	a, ok := s.catalog.Lookup(inv.ActionID)
	if !ok {
		res.Status = StatusSkipped
		res.Err = fmt.Errorf("%w: %q", ErrUnknownAction, inv.ActionID)
		log.Warn("scheduler: skipping invocation, action not registered")
		return res
	}

	ctx, span := observe.StartSpan(ctx, "action "+inv.ActionID,
		trace.WithAttributes(
			attribute.String("stagehand.action", inv.ActionID),
			attribute.String("stagehand.target", target.ID()),
			attribute.Int("stagehand.sequence", si),
		),
	)
	defer span.End()

	start := time.Now()
	var execErr error
	if r := panics.Try(func() {
		execErr = a.Execute(ctx, inv.Param, target, s.handle)
	}); r != nil {
		execErr = fmt.Errorf("panic: %w", r.AsError())
	}
	res.Duration = time.Since(start)

	if execErr != nil {
		res.Status = StatusFailed
		res.Err = fmt.Errorf("%w: %s on %q: %w", ErrExecution, inv.ActionID, target.ID(), execErr)
		observe.FailSpan(span, execErr)
		log.Warn("scheduler: action failed", "err", execErr, "duration", res.Duration)
		return res
	}

	res.Status = StatusOK
	log.Info("scheduler: action executed", "duration", res.Duration)
	return res
}

func (s *Scheduler) finish(ctx context.Context, res Result) {
	s.metrics.RecordInvocation(context.WithoutCancel(ctx), res.Invocation.ActionID, string(res.Status), res.Duration)
	if s.observer != nil {
		s.observer(res)
	}
}
