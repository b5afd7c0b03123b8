package observe

import (
	"bufio"
	"log/slog"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// CorrelationHeader carries the trace id back to HTTP clients.
const CorrelationHeader = "X-Correlation-ID"

// responseObserver remembers the status a handler wrote.
type responseObserver struct {
	http.ResponseWriter
	status int
}

func (o *responseObserver) WriteHeader(code int) {
	o.status = code
	o.ResponseWriter.WriteHeader(code)
}

// Hijack lets the bridge upgrade to a WebSocket behind the middleware. The
// request is then reported as 101.
func (o *responseObserver) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	conn, rw, err := http.NewResponseController(o.ResponseWriter).Hijack()
	if err == nil {
		o.status = http.StatusSwitchingProtocols
	}
	return conn, rw, err
}

// Unwrap exposes the wrapped writer to [http.ResponseController].
func (o *responseObserver) Unwrap() http.ResponseWriter { return o.ResponseWriter }

// MiddlewareOption configures [Middleware].
type MiddlewareOption func(*middleware)

// WithQuietRoutes logs completions of the given routes at debug level.
// Default: the health probes and /metrics.
func WithQuietRoutes(routes ...string) MiddlewareOption {
	return func(mw *middleware) {
		mw.quiet = make(map[string]bool, len(routes))
		for _, r := range routes {
			mw.quiet[r] = true
		}
	}
}

type middleware struct {
	metrics *Metrics
	prop    propagation.TextMapPropagator
	quiet   map[string]bool
}

// Middleware wraps a handler, usually an [http.ServeMux], with a server
// span continuing any incoming W3C trace context, the [CorrelationHeader],
// a duration metric and a completion log line. Metrics and logs are keyed
// by the mux route pattern rather than the raw path; requests that matched
// no pattern report the route "unmatched".
func Middleware(m *Metrics, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	mw := &middleware{
		metrics: m,
		prop:    propagation.TraceContext{},
	}
	WithQuietRoutes("GET /healthz", "GET /readyz", "GET /metrics")(mw)
	for _, o := range opts {
		o(mw)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mw.serve(next, w, r)
		})
	}
}

func (mw *middleware) serve(next http.Handler, w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := mw.prop.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := StartSpan(ctx, r.Method+" "+r.URL.Path,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			semconv.HTTPRequestMethodKey.String(r.Method),
			semconv.URLPath(r.URL.Path),
		),
	)
	defer span.End()

	cid := CorrelationID(ctx)
	if cid != "" {
		w.Header().Set(CorrelationHeader, cid)
	}
	mw.prop.Inject(ctx, propagation.HeaderCarrier(w.Header()))

	// The mux stores the matched pattern on this request value.
	r = r.WithContext(ctx)
	obs := &responseObserver{ResponseWriter: w, status: http.StatusOK}
	next.ServeHTTP(obs, r)

	route := r.Pattern
	if route == "" {
		route = "unmatched"
	}
	elapsed := time.Since(start)
	span.SetAttributes(semconv.HTTPRoute(route), semconv.HTTPResponseStatusCode(obs.status))
	mw.metrics.RecordHTTPRequest(ctx, r.Method, route, obs.status, elapsed)

	level := slog.LevelInfo
	if mw.quiet[route] {
		level = slog.LevelDebug
	}
	Logger(ctx).Log(ctx, level, "http: request served",
		"route", route,
		"path", r.URL.Path,
		"status", obs.status,
		"duration", elapsed,
	)
}
