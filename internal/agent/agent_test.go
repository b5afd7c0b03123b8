package agent_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/goleak"

	"github.com/MrWong99/stagehand/internal/action"
	actionmock "github.com/MrWong99/stagehand/internal/action/mock"
	"github.com/MrWong99/stagehand/internal/agent"
	"github.com/MrWong99/stagehand/internal/agent/mock"
	"github.com/MrWong99/stagehand/internal/model"
	"github.com/MrWong99/stagehand/internal/observe"
	"github.com/MrWong99/stagehand/internal/plan"
	"github.com/MrWong99/stagehand/internal/prompt"
	"github.com/MrWong99/stagehand/internal/scene"
	"github.com/MrWong99/stagehand/internal/scheduler"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const cubePlan = `[
  [
    {"actionId":"move","targetId":"Cube1","param":{"destination":{"x":1,"y":0,"z":0}}},
    {"actionId":"move","targetId":"Cube1","param":{"destination":{"x":2,"y":0,"z":0}}}
  ],
  [
    {"actionId":"move","targetId":"Cube2","param":{"destination":{"x":0,"y":0,"z":1}}}
  ]
]`

// ── helpers ──────────────────────────────────────────────────────────────────

type harness struct {
	prompts *mock.PromptSource
	scene   *mock.ContextProvider
	model   *mock.ModelClient
	exec    *mock.Executor
	agent   *agent.Agent
	cycles  chan agent.CycleResult

	cancel context.CancelFunc
	done   chan error
}

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func registry(t *testing.T, ids ...string) *action.Registry {
	t.Helper()
	r := action.NewRegistry()
	for _, id := range ids {
		if err := r.Register(actionmock.New(id)); err != nil {
			t.Fatal(err)
		}
	}
	r.Freeze()
	return r
}

func newHarness(t *testing.T, opts ...agent.Option) *harness {
	t.Helper()
	h := &harness{
		prompts: &mock.PromptSource{},
		scene: &mock.ContextProvider{ContextResult: scene.Context{
			{ID: "Cube1", Capabilities: []string{"move"}},
			{ID: "Cube2", Capabilities: []string{"move"}},
		}},
		model:  &mock.ModelClient{GenerateResult: cubePlan},
		exec:   &mock.Executor{RunReport: scheduler.Report{Executed: 3}},
		cycles: make(chan agent.CycleResult, 16),
	}
	opts = append([]agent.Option{
		agent.WithMetrics(testMetrics(t)),
		agent.WithCycleHook(func(r agent.CycleResult) { h.cycles <- r }),
	}, opts...)

	a, err := agent.New(agent.Config{
		Prompts:  h.prompts,
		Context:  h.scene,
		Model:    h.model,
		Catalog:  registry(t, "move", "talk"),
		Executor: h.exec,
	}, opts...)
	if err != nil {
		t.Fatalf("agent.New: %v", err)
	}
	h.agent = a
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.done = make(chan error, 1)
	go func() { h.done <- h.agent.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-h.done
	})
}

func (h *harness) nextCycle(t *testing.T) agent.CycleResult {
	t.Helper()
	select {
	case r := <-h.cycles:
		return r
	case <-time.After(3 * time.Second):
		t.Fatal("no cycle completed")
		return agent.CycleResult{}
	}
}

func (h *harness) noCycle(t *testing.T) {
	t.Helper()
	select {
	case r := <-h.cycles:
		t.Fatalf("unexpected cycle: %+v", r)
	case <-time.After(100 * time.Millisecond):
	}
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// ── cycles ───────────────────────────────────────────────────────────────────

func TestAgent_FullCycle(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.start(t)
	h.prompts.Push(prompt.Prompt{Text: "dance", Goal: "entertain"})

	r := h.nextCycle(t)
	if r.Status != agent.StatusOK || r.Err != nil {
		t.Fatalf("status = %s, err = %v", r.Status, r.Err)
	}
	if r.ID == "" {
		t.Error("cycle id not set")
	}
	if r.Plan.Len() != 3 || len(r.Plan.Sequences) != 2 {
		t.Errorf("plan = %s", r.Plan)
	}
	if r.Report.Executed != 3 {
		t.Errorf("report = %+v", r.Report)
	}

	reqs := h.model.Calls()
	if len(reqs) != 1 {
		t.Fatalf("model requests = %d", len(reqs))
	}
	for _, want := range []string{"Current scene context:\n", `"objectName": "Cube2"`, "Goal: entertain\n\nCurrent request: dance"} {
		if !strings.Contains(reqs[0], want) {
			t.Errorf("request missing %q:\n%s", want, reqs[0])
		}
	}
	if len(h.exec.Calls()) != 1 {
		t.Errorf("executor runs = %d, want 1", len(h.exec.Calls()))
	}
}

func TestAgent_TriggerWithoutPromptReturnsToIdle(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.start(t)
	h.scene.NotifyContextChanged()

	r := h.nextCycle(t)
	if r.Status != agent.StatusNoPrompt || !errors.Is(r.Err, agent.ErrNoPrompt) {
		t.Errorf("status = %s, err = %v", r.Status, r.Err)
	}
	if h.scene.Collected() != 0 || len(h.model.Calls()) != 0 {
		t.Error("cycle continued past an empty prompt source")
	}
	eventually(t, func() bool { return h.agent.State() == agent.StateIdle })
}

func TestAgent_UnparseableResponse(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.model.GenerateResult = "Sorry, I cannot do that."
	h.start(t)
	h.prompts.Push(prompt.Prompt{Text: "fly"})

	r := h.nextCycle(t)
	if r.Status != agent.StatusDegraded || !errors.Is(r.Err, plan.ErrParse) {
		t.Errorf("status = %s, err = %v", r.Status, r.Err)
	}
	if !r.Plan.Empty() {
		t.Errorf("plan = %s, want empty", r.Plan)
	}
	if len(h.exec.Calls()) != 0 {
		t.Error("executor ran for an unparseable response")
	}

	// The loop keeps serving prompts.
	h.model.Reset()
	h.prompts.Push(prompt.Prompt{Text: "again"})
	h.nextCycle(t)
	if len(h.model.Calls()) != 1 {
		t.Error("loop did not run the next cycle")
	}
}

func TestAgent_TransportError(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.model.GenerateErr = errors.New("connection reset")
	h.start(t)
	h.prompts.Push(prompt.Prompt{Text: "hi"})

	r := h.nextCycle(t)
	if r.Status != agent.StatusDegraded || !errors.Is(r.Err, model.ErrTransport) {
		t.Errorf("status = %s, err = %v", r.Status, r.Err)
	}
	if len(h.exec.Calls()) != 0 {
		t.Error("executor ran after a transport error")
	}
}

func TestAgent_ContextError(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.scene.ContextErr = errors.New("host busy")
	h.start(t)
	h.prompts.Push(prompt.Prompt{Text: "hi"})

	r := h.nextCycle(t)
	if r.Status != agent.StatusContextError {
		t.Errorf("status = %s", r.Status)
	}
	if len(h.model.Calls()) != 0 {
		t.Error("model called without context")
	}
}

func TestAgent_UnknownActionDroppedOthersRun(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.model.GenerateResult = `[[{"actionId":"fly","targetId":"Cube1","param":{}},{"actionId":"move","targetId":"Cube1","param":{"x":1}}]]`
	h.start(t)
	h.prompts.Push(prompt.Prompt{Text: "go"})

	r := h.nextCycle(t)
	if r.Plan.Len() != 1 || r.Plan.Sequences[0][0].ActionID != "move" {
		t.Errorf("plan = %s", r.Plan)
	}
	if len(r.Diagnostics) != 1 || !errors.Is(r.Diagnostics[0].Err, plan.ErrValidation) {
		t.Errorf("diagnostics = %v", r.Diagnostics)
	}
	if len(h.exec.Calls()) != 1 {
		t.Error("valid part of the plan not executed")
	}
}

func TestAgent_CancelBeforeExecution(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.model.GenerateFunc = func(context.Context, string) (string, error) {
		cancel()
		return cubePlan, nil
	}

	done := make(chan error, 1)
	go func() { done <- h.agent.Run(ctx) }()
	h.prompts.Push(prompt.Prompt{Text: "dance"})

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run = %v, want context.Canceled", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	if len(h.exec.Calls()) != 0 {
		t.Error("plan executed after cancellation")
	}
	if h.agent.State() != agent.StateCancelled {
		t.Errorf("state = %s, want cancelled", h.agent.State())
	}
	if r := h.nextCycle(t); r.Status != agent.StatusCancelled {
		t.Errorf("cycle status = %s, want cancelled", r.Status)
	}
}

func TestAgent_CancelWhileIdle(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.agent.Run(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
	if h.agent.State() != agent.StateCancelled {
		t.Errorf("state = %s", h.agent.State())
	}
}

func TestAgent_TriggerDuringSchedulingStartsNextCycle(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	var once sync.Once
	h.exec.RunFunc = func(context.Context, plan.Plan) scheduler.Report {
		once.Do(func() {
			// Context changes during execution are dropped; the prompt is not.
			h.scene.NotifyContextChanged()
			h.prompts.Push(prompt.Prompt{Text: "second"})
		})
		return scheduler.Report{Executed: 3}
	}
	h.start(t)
	h.prompts.Push(prompt.Prompt{Text: "first"})

	if r := h.nextCycle(t); r.Prompt.Text != "first" {
		t.Fatalf("first cycle prompt = %q", r.Prompt.Text)
	}
	if r := h.nextCycle(t); r.Prompt.Text != "second" {
		t.Fatalf("second cycle prompt = %q", r.Prompt.Text)
	}
	h.noCycle(t)

	if got := h.agent.Monitor().Dropped(); got != 1 {
		t.Errorf("dropped context notifications = %d, want 1", got)
	}
	if h.agent.Monitor().Detached() {
		t.Error("context listener still detached after scheduling")
	}
}

func TestAgent_StateTransitions(t *testing.T) {
	t.Parallel()

	var (
		mu          sync.Mutex
		transitions []agent.State
	)
	h := newHarness(t, agent.WithStateHook(func(_, to agent.State) {
		mu.Lock()
		transitions = append(transitions, to)
		mu.Unlock()
	}))
	h.start(t)
	h.prompts.Push(prompt.Prompt{Text: "dance"})
	h.nextCycle(t)

	want := []agent.State{
		agent.StateCollectingPrompt,
		agent.StateCollectingContext,
		agent.StateInvoking,
		agent.StateParsing,
		agent.StateScheduling,
		agent.StateIdle,
	}
	eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(transitions) >= len(want)
	})
	mu.Lock()
	defer mu.Unlock()
	for i, s := range want {
		if transitions[i] != s {
			t.Errorf("transition %d = %s, want %s", i, transitions[i], s)
		}
	}
}

func TestAgent_RunTwice(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.start(t)
	eventually(t, func() bool { return h.agent.State() == agent.StateIdle })
	if err := h.agent.Run(context.Background()); !errors.Is(err, agent.ErrAlreadyRunning) {
		t.Errorf("second Run = %v, want ErrAlreadyRunning", err)
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	_, err := agent.New(agent.Config{})
	if err == nil {
		t.Fatal("expected error for empty config")
	}
	for _, want := range []string{"prompt source", "context provider", "model client", "catalog", "executor"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()

	if agent.StateScheduling.String() != "scheduling" || agent.State(99).String() != "unknown" {
		t.Error("unexpected state names")
	}
}

// ── end to end ───────────────────────────────────────────────────────────────

func TestAgent_CubeExampleEndToEnd(t *testing.T) {
	t.Parallel()

	store := scene.NewStore()
	store.Replace([]scene.Object{
		{ID: "Cube1", Capabilities: []string{"move"}},
		{ID: "Cube2", Capabilities: []string{"move"}},
	})

	move := actionmock.New("move")
	move.ExecuteFunc = func(ctx context.Context, param any, target action.Target, handle action.ContextHandle) error {
		m := param.(map[string]any)
		if err := target.Dispatch(ctx, action.Command{Action: "move", Args: m}); err != nil {
			return err
		}
		handle.NotifyContextChanged()
		return nil
	}
	reg := action.NewRegistry()
	if err := reg.Register(move); err != nil {
		t.Fatal(err)
	}
	reg.Freeze()

	metrics := testMetrics(t)
	prompts := prompt.NewQueue()
	cycles := make(chan agent.CycleResult, 4)
	a, err := agent.New(agent.Config{
		Prompts:  prompts,
		Context:  store,
		Model:    &mock.ModelClient{GenerateResult: cubePlan},
		Catalog:  reg,
		Executor: scheduler.New(reg, store, store, scheduler.WithMetrics(metrics)),
	}, agent.WithMetrics(metrics), agent.WithCycleHook(func(r agent.CycleResult) { cycles <- r }))
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	prompts.Push(prompt.Prompt{Text: "Cube1 walks right, Cube2 walks forward"})

	var r agent.CycleResult
	select {
	case r = <-cycles:
	case <-time.After(3 * time.Second):
		t.Fatal("no cycle")
	}
	if r.Report.Executed != 3 || r.Status != agent.StatusOK {
		t.Fatalf("report = %+v, status = %s", r.Report, r.Status)
	}

	perTarget := map[string]int{}
	for _, c := range move.Calls() {
		perTarget[c.TargetID]++
	}
	if perTarget["Cube1"] != 2 || perTarget["Cube2"] != 1 {
		t.Fatalf("calls per target = %v", perTarget)
	}
	if o, _ := store.Get("Cube1"); o.Position.X != 2 {
		t.Errorf("Cube1 ended at %+v, want x=2 (sequence order)", o.Position)
	}
	if o, _ := store.Get("Cube2"); o.Position.Z != 1 {
		t.Errorf("Cube2 ended at %+v", o.Position)
	}

	// The three moves announced context changes while the listener was
	// detached, so no extra cycle follows.
	select {
	case extra := <-cycles:
		t.Errorf("unexpected follow-up cycle: %+v", extra.Status)
	case <-time.After(100 * time.Millisecond):
	}
}
