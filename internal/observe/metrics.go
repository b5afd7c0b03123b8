// Package observe holds Stagehand's telemetry: OpenTelemetry instruments,
// spans, context-aware slog loggers and the HTTP middleware that joins them.
//
// [Setup] installs the SDK providers and a Prometheus registry for /metrics.
// Components take a [*Metrics] through an option and fall back to
// [DefaultMetrics]; tests build their own with [NewMetrics] over a manual
// reader or a noop provider.
package observe

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/MrWong99/stagehand"

// Metrics is the set of instruments shared by the loop, the scheduler, the
// model client, the bridge and the HTTP layer.
type Metrics struct {
	// CycleDuration: leaving Idle until back in Idle. Attribute: status.
	CycleDuration metric.Float64Histogram
	// ModelDuration: one model request. Attribute: provider.
	ModelDuration metric.Float64Histogram
	// InvocationDuration: one action Execute. Attribute: action.
	InvocationDuration metric.Float64Histogram
	// HTTPRequestDuration: attributes method, route, status.
	HTTPRequestDuration metric.Float64Histogram

	// Cycles by status: ok, no_prompt, context_error, degraded, cancelled.
	Cycles metric.Int64Counter
	// Invocations by action and status: ok, failed, skipped, abandoned.
	Invocations metric.Int64Counter
	// PlanDiagnostics by kind: parse, validation.
	PlanDiagnostics metric.Int64Counter
	// ProviderRequests by provider and status.
	ProviderRequests metric.Int64Counter
	// ProviderErrors by provider and kind.
	ProviderErrors metric.Int64Counter

	ActiveSequences   metric.Int64UpDownCounter
	BridgeConnections metric.Int64UpDownCounter
}

// Model calls and movement routinely take seconds.
var latencyBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// instruments collects creation errors so NewMetrics can report them all.
type instruments struct {
	meter metric.Meter
	errs  []error
}

func (in *instruments) histogram(name, desc string, buckets ...float64) metric.Float64Histogram {
	opts := []metric.Float64HistogramOption{metric.WithDescription(desc), metric.WithUnit("s")}
	if len(buckets) > 0 {
		opts = append(opts, metric.WithExplicitBucketBoundaries(buckets...))
	}
	h, err := in.meter.Float64Histogram(name, opts...)
	in.errs = append(in.errs, err)
	return h
}

func (in *instruments) counter(name, desc string) metric.Int64Counter {
	c, err := in.meter.Int64Counter(name, metric.WithDescription(desc))
	in.errs = append(in.errs, err)
	return c
}

func (in *instruments) gauge(name, desc string) metric.Int64UpDownCounter {
	g, err := in.meter.Int64UpDownCounter(name, metric.WithDescription(desc))
	in.errs = append(in.errs, err)
	return g
}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	in := &instruments{meter: mp.Meter(meterName)}
	m := &Metrics{
		CycleDuration:       in.histogram("stagehand.cycle.duration", "Duration of one trigger cycle.", latencyBuckets...),
		ModelDuration:       in.histogram("stagehand.model.duration", "Latency of model plan generation.", latencyBuckets...),
		InvocationDuration:  in.histogram("stagehand.invocation.duration", "Latency of a single action invocation.", latencyBuckets...),
		HTTPRequestDuration: in.histogram("stagehand.http.request.duration", "HTTP request latency by method, route and status."),

		Cycles:           in.counter("stagehand.cycles", "Trigger cycles by outcome."),
		Invocations:      in.counter("stagehand.invocations", "Action invocations by action and status."),
		PlanDiagnostics:  in.counter("stagehand.plan.diagnostics", "Plan parser diagnostics by kind."),
		ProviderRequests: in.counter("stagehand.provider.requests", "Model provider requests by provider and status."),
		ProviderErrors:   in.counter("stagehand.provider.errors", "Model provider errors by provider and kind."),

		ActiveSequences:   in.gauge("stagehand.sequences.active", "Plan sequences currently executing."),
		BridgeConnections: in.gauge("stagehand.bridge.connections", "Connected scene hosts."),
	}
	if err := errors.Join(in.errs...); err != nil {
		return nil, err
	}
	return m, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns a process-wide [Metrics] on the global meter
// provider, created on first use.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordCycle records a finished cycle.
func (m *Metrics) RecordCycle(ctx context.Context, status string, d time.Duration) {
	attrs := metric.WithAttributes(Attr("status", status))
	m.Cycles.Add(ctx, 1, attrs)
	m.CycleDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordInvocation records one invocation outcome. A zero d (skipped,
// abandoned) is counted without latency.
func (m *Metrics) RecordInvocation(ctx context.Context, actionID, status string, d time.Duration) {
	action := Attr("action", actionID)
	m.Invocations.Add(ctx, 1, metric.WithAttributes(action, Attr("status", status)))
	if d > 0 {
		m.InvocationDuration.Record(ctx, d.Seconds(), metric.WithAttributes(action))
	}
}

func (m *Metrics) RecordPlanDiagnostic(ctx context.Context, kind string) {
	m.PlanDiagnostics.Add(ctx, 1, metric.WithAttributes(Attr("kind", kind)))
}

// RecordProviderRequest counts one provider request.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, status string) {
	m.ProviderRequests.Add(ctx, 1, metric.WithAttributes(Attr("provider", provider), Attr("status", status)))
}

// RecordProviderError counts one provider error.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1, metric.WithAttributes(Attr("provider", provider), Attr("kind", kind)))
}

// RecordModelCall records one model request: its latency and the request
// counter.
func (m *Metrics) RecordModelCall(ctx context.Context, provider, status string, d time.Duration) {
	m.ModelDuration.Record(ctx, d.Seconds(), metric.WithAttributes(Attr("provider", provider)))
	m.RecordProviderRequest(ctx, provider, status)
}

// RecordHTTPRequest records one served request.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, route string, status int, d time.Duration) {
	m.HTTPRequestDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		Attr("method", method),
		Attr("route", route),
		attribute.Int("status", status),
	))
}
