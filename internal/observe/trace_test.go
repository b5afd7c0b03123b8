package observe

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// recordSpans installs an in-memory tracer provider as the global one.
func recordSpans(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

// captureLogs routes the default logger into a buffer.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

var hex32 = regexp.MustCompile(`^[0-9a-f]{32}$`)

func TestCorrelationID(t *testing.T) {
	recordSpans(t)

	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("without span = %q, want empty", got)
	}

	seen := make(map[string]bool)
	for range 50 {
		ctx, span := StartSpan(context.Background(), "cycle")
		cid := CorrelationID(ctx)
		span.End()
		if !hex32.MatchString(cid) {
			t.Fatalf("correlation id %q is not 32 hex chars", cid)
		}
		if seen[cid] {
			t.Fatalf("trace id %s repeated", cid)
		}
		seen[cid] = true
	}
}

func TestStartSpan_NestsUnderParent(t *testing.T) {
	exp := recordSpans(t)

	ctx, parent := StartSpan(context.Background(), "agent.cycle")
	_, child := StartSpan(ctx, "scheduler.invoke")
	child.End()
	parent.End()

	spans := exp.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("spans = %d, want 2", len(spans))
	}
	c, p := spans[0], spans[1]
	if c.Name != "scheduler.invoke" || p.Name != "agent.cycle" {
		t.Fatalf("names = %q, %q", c.Name, p.Name)
	}
	if c.Parent.SpanID() != p.SpanContext.SpanID() {
		t.Error("child span is not parented to the cycle span")
	}
	if c.InstrumentationScope.Name != tracerName {
		t.Errorf("scope = %q, want %q", c.InstrumentationScope.Name, tracerName)
	}
}

func TestFailSpan(t *testing.T) {
	exp := recordSpans(t)

	_, ok := StartSpan(context.Background(), "ok")
	FailSpan(ok, nil)
	ok.End()
	_, bad := StartSpan(context.Background(), "bad")
	FailSpan(bad, errors.New("target vanished"))
	bad.End()

	spans := exp.GetSpans()
	if spans[0].Status.Code != codes.Unset {
		t.Errorf("nil error changed status to %v", spans[0].Status.Code)
	}
	if spans[1].Status.Code != codes.Error || spans[1].Status.Description != "target vanished" {
		t.Errorf("status = %+v", spans[1].Status)
	}
	if len(spans[1].Events) != 1 || spans[1].Events[0].Name != "exception" {
		t.Errorf("events = %+v, want one exception event", spans[1].Events)
	}
}

func TestLogger(t *testing.T) {
	recordSpans(t)

	tests := []struct {
		name    string
		ctx     func() context.Context
		want    []string
		notWant []string
	}{
		{
			name:    "plain",
			ctx:     context.Background,
			notWant: []string{"trace_id", "cycle_id"},
		},
		{
			name: "attrs accumulate",
			ctx: func() context.Context {
				ctx := WithLogAttrs(context.Background(), "cycle_id", "c-1")
				return WithLogAttrs(ctx, "action", "move")
			},
			want:    []string{"cycle_id=c-1", "action=move"},
			notWant: []string{"trace_id"},
		},
		{
			name: "inside span",
			ctx: func() context.Context {
				ctx, span := StartSpan(WithLogAttrs(context.Background(), "cycle_id", "c-2"), "cycle")
				span.End()
				return ctx
			},
			want: []string{"cycle_id=c-2", "trace_id=", "span_id="},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := captureLogs(t)
			Logger(tt.ctx()).Info("step")
			out := buf.String()
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("missing %q in %s", w, out)
				}
			}
			for _, w := range tt.notWant {
				if strings.Contains(out, w) {
					t.Errorf("unexpected %q in %s", w, out)
				}
			}
		})
	}
}

func TestWithLogAttrs_DoesNotAliasParent(t *testing.T) {
	buf := captureLogs(t)

	base := WithLogAttrs(context.Background(), "cycle_id", "c-3")
	_ = WithLogAttrs(base, "action", "talk")
	Logger(base).Info("step")

	if strings.Contains(buf.String(), "action=") {
		t.Errorf("child attrs leaked into parent: %s", buf.String())
	}
}
