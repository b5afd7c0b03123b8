package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/stagehand/internal/model"
	"github.com/MrWong99/stagehand/internal/observe"
	"github.com/MrWong99/stagehand/internal/plan"
	"github.com/MrWong99/stagehand/internal/scheduler"
)

// Run drives the loop until ctx is done and then returns ctx.Err(). It may
// be called only once per Agent.
func (a *Agent) Run(ctx context.Context) error {
	if !a.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	observe.Logger(ctx).Info("agent: loop started")

	for {
		a.setState(StateIdle)
		if err := a.monitor.Wait(ctx); err != nil {
			return a.stop(ctx)
		}
		a.cycle(ctx)
		if ctx.Err() != nil {
			return a.stop(ctx)
		}
	}
}

func (a *Agent) stop(ctx context.Context) error {
	a.setState(StateCancelled)
	observe.Logger(ctx).Info("agent: loop stopped")
	return ctx.Err()
}

// cycle runs one pass from prompt collection to plan execution. Every
// failure ends the cycle early; none of them escape.
func (a *Agent) cycle(ctx context.Context) {
	id := uuid.NewString()
	ctx = observe.WithLogAttrs(ctx, "cycle_id", id)
	ctx, span := observe.StartSpan(ctx, "agent.cycle", trace.WithAttributes(attribute.String("cycle_id", id)))
	defer span.End()

	log := observe.Logger(ctx)
	res := CycleResult{ID: id, Status: StatusOK}
	start := time.Now()

	defer func() {
		if ctx.Err() != nil && res.Status == StatusOK {
			res.Status = StatusCancelled
		}
		res.Duration = time.Since(start)
		span.SetAttributes(attribute.String("status", res.Status))
		if res.Err != nil && res.Status != StatusNoPrompt {
			observe.FailSpan(span, res.Err)
		}
		a.metrics.RecordCycle(context.WithoutCancel(ctx), res.Status, res.Duration)

		a.hmu.RLock()
		fn := a.onCycleDone
		a.hmu.RUnlock()
		if fn != nil {
			fn(res)
		}
	}()

	// ── Collecting prompt ──
	a.setState(StateCollectingPrompt)
	p, ok := a.prompts.CollectPrompt(ctx)
	if !ok {
		res.Status, res.Err = StatusNoPrompt, ErrNoPrompt
		log.Debug("agent: triggered without a prompt")
		return
	}
	res.Prompt = p
	log.Info("agent: cycle started", "prompt", p.Text, "goal", p.Goal)

	// ── Collecting context ──
	a.setState(StateCollectingContext)
	sc, err := a.scene.CollectContext(ctx)
	if err != nil {
		res.Status, res.Err = StatusContextError, fmt.Errorf("agent: collect context: %w", err)
		log.Warn("agent: context collection failed, cycle aborted", "err", err)
		return
	}
	if ctx.Err() != nil {
		return
	}

	// ── Invoking ──
	a.setState(StateInvoking)
	request, err := model.FormatRequest(p, sc)
	if err != nil {
		res.Status, res.Err = StatusContextError, err
		log.Warn("agent: format request failed, cycle aborted", "err", err)
		return
	}
	raw, err := a.model.Generate(ctx, request)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		if !errors.Is(err, model.ErrTransport) {
			err = fmt.Errorf("%w: %w", model.ErrTransport, err)
		}
		res.Status, res.Err = StatusDegraded, err
		log.Warn("agent: model request failed, nothing to execute", "err", err)
		return
	}

	// ── Parsing ──
	a.setState(StateParsing)
	pl, diags := plan.Parse(raw, a.catalog)
	res.Plan, res.Diagnostics = pl, diags
	for _, d := range diags {
		a.metrics.RecordPlanDiagnostic(ctx, string(d.Kind))
		log.Warn("agent: plan diagnostic", "diagnostic", d.String())
	}
	if pl.Empty() {
		if len(diags) > 0 {
			res.Status, res.Err = StatusDegraded, diags[0].Err
		}
		log.Info("agent: empty plan, nothing to execute", "diagnostics", len(diags))
		return
	}

	// ── Scheduling ──
	a.setState(StateScheduling)
	report := a.execute(ctx, pl)
	res.Report = report
	if len(diags) > 0 || report.Failed > 0 || report.Skipped > 0 {
		res.Status = StatusDegraded
	}

	log.Info("agent: cycle complete",
		"sequences", len(pl.Sequences),
		"invocations", pl.Len(),
		"executed", report.Executed,
		"failed", report.Failed,
		"skipped", report.Skipped,
		"abandoned", report.Abandoned,
		"elapsed", time.Since(start),
	)
}

// execute runs pl with the context listener detached, so scene updates caused
// by the plan itself do not trigger another cycle.
func (a *Agent) execute(ctx context.Context, pl plan.Plan) scheduler.Report {
	a.monitor.DetachContext()
	defer a.monitor.AttachContext()
	return a.executor.Run(ctx, pl)
}
