// Package bridge connects a scene host (a game engine or simulator) to the
// service over a WebSocket.
//
// The host pushes scene snapshots and user prompts; the bridge forwards
// every command issued by an action to the host as an "invoke" message and
// waits for the matching "result". While a host is connected the bridge is
// the scene store's [scene.Dispatcher]. Only one host is served at a time; a
// new connection replaces the previous one.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/MrWong99/stagehand/internal/action"
	"github.com/MrWong99/stagehand/internal/observe"
	"github.com/MrWong99/stagehand/internal/prompt"
	"github.com/MrWong99/stagehand/internal/scene"
)

// DefaultTimeout bounds how long an invoke waits for its result.
const DefaultTimeout = 15 * time.Second

var (
	// ErrNoHost is returned by Dispatch when no host is connected.
	ErrNoHost = errors.New("bridge: no host connected")

	// ErrTimeout is returned when the host does not answer an invoke in time.
	ErrTimeout = errors.New("bridge: invoke timed out")

	// ErrRejected is returned when the host answers an invoke with ok=false.
	ErrRejected = errors.New("bridge: host rejected invoke")

	// ErrDisconnected is returned for invokes pending when the host left.
	ErrDisconnected = errors.New("bridge: host disconnected")
)

var _ scene.Dispatcher = (*Bridge)(nil)

// Bridge serves the host WebSocket endpoint.
type Bridge struct {
	store          *scene.Store
	queue          *prompt.Queue
	metrics        *observe.Metrics
	timeout        time.Duration
	originPatterns []string

	mu   sync.Mutex
	host *hostConn
}

// Option configures a [Bridge].
type Option func(*Bridge)

// WithTimeout sets how long an invoke waits for the host's result.
func WithTimeout(d time.Duration) Option {
	return func(b *Bridge) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// WithMetrics records connection counts on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(b *Bridge) {
		b.metrics = m
	}
}

// WithOriginPatterns allows cross-origin browser hosts matching patterns.
func WithOriginPatterns(patterns ...string) Option {
	return func(b *Bridge) {
		b.originPatterns = patterns
	}
}

// New creates a bridge feeding store and queue. queue may be nil, in which
// case prompt messages are rejected.
func New(store *scene.Store, queue *prompt.Queue, opts ...Option) *Bridge {
	b := &Bridge{store: store, queue: queue, timeout: DefaultTimeout}
	for _, o := range opts {
		o(b)
	}
	if b.metrics == nil {
		b.metrics = observe.DefaultMetrics()
	}
	return b
}

// Connected reports whether a host is currently connected.
func (b *Bridge) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.host != nil
}

// ServeHTTP upgrades the request and serves the host until it disconnects.
func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: b.originPatterns})
	if err != nil {
		slog.Warn("bridge: accept failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	conn.SetReadLimit(4 << 20)

	ctx, cancel := context.WithCancel(r.Context())
	hc := &hostConn{
		id:      uuid.NewString(),
		conn:    conn,
		ctx:     ctx,
		cancel:  cancel,
		pending: make(map[string]chan message),
	}
	b.attach(hc)
	defer b.detach(hc)

	log := slog.With("host", hc.id, "remote", r.RemoteAddr)
	log.Info("bridge: host connected")

	err = b.readLoop(hc)
	switch {
	case err == nil, websocket.CloseStatus(err) == websocket.StatusNormalClosure,
		websocket.CloseStatus(err) == websocket.StatusGoingAway, ctx.Err() != nil:
		log.Info("bridge: host disconnected")
	default:
		log.Warn("bridge: host connection lost", "err", err)
	}
}

// Close disconnects the current host, if any. http.Server.Shutdown does not
// close hijacked connections, so callers invoke this on shutdown.
func (b *Bridge) Close() {
	b.mu.Lock()
	hc := b.host
	b.mu.Unlock()
	if hc != nil {
		hc.close(websocket.StatusGoingAway, "server shutting down")
	}
}

func (b *Bridge) attach(hc *hostConn) {
	b.mu.Lock()
	prev := b.host
	b.host = hc
	b.mu.Unlock()

	if prev != nil {
		slog.Info("bridge: replacing connected host", "previous", prev.id, "host", hc.id)
		prev.close(websocket.StatusPolicyViolation, "replaced by a new host")
	}
	b.store.SetDispatcher(b)
	b.metrics.BridgeConnections.Add(context.Background(), 1)
}

func (b *Bridge) detach(hc *hostConn) {
	b.mu.Lock()
	if b.host == hc {
		b.store.SetDispatcher(nil)
		b.host = nil
	}
	b.mu.Unlock()

	hc.close(websocket.StatusNormalClosure, "")
	hc.failPending()
	b.metrics.BridgeConnections.Add(context.Background(), -1)
}

func (b *Bridge) readLoop(hc *hostConn) error {
	for {
		_, data, err := hc.conn.Read(hc.ctx)
		if err != nil {
			return err
		}

		var msg message
		if err := json.Unmarshal(data, &msg); err != nil {
			hc.send(message{Type: TypeError, Error: "invalid message: " + err.Error()})
			continue
		}
		if err := b.handle(hc, msg); err != nil {
			hc.send(message{Type: TypeError, ID: msg.ID, Error: err.Error()})
		}
	}
}

func (b *Bridge) handle(hc *hostConn, msg message) error {
	switch msg.Type {
	case TypeSnapshot:
		b.store.Replace(msg.Objects)
		slog.Debug("bridge: scene snapshot", "host", hc.id, "objects", len(msg.Objects))
		return nil

	case TypePrompt:
		if b.queue == nil {
			return fmt.Errorf("prompts are not accepted")
		}
		b.queue.Push(prompt.Prompt{Text: msg.Text, Goal: msg.Goal})
		return nil

	case TypeResult:
		if !hc.resolve(msg) {
			slog.Debug("bridge: result for unknown invoke", "host", hc.id, "id", msg.ID)
		}
		return nil

	default:
		return fmt.Errorf("unknown message type %q", msg.Type)
	}
}

// Dispatch sends cmd to the connected host and waits for its result.
func (b *Bridge) Dispatch(ctx context.Context, cmd action.Command) error {
	b.mu.Lock()
	hc := b.host
	b.mu.Unlock()
	if hc == nil {
		return ErrNoHost
	}

	id := uuid.NewString()
	ch := hc.expect(id)
	defer hc.forget(id)

	if err := hc.write(ctx, message{Type: TypeInvoke, ID: id, Action: cmd.Action, Target: cmd.Target, Args: cmd.Args}); err != nil {
		return fmt.Errorf("bridge: send invoke %s %q: %w", cmd.Action, cmd.Target, err)
	}

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()

	select {
	case res, ok := <-ch:
		if !ok {
			return ErrDisconnected
		}
		if !res.OK {
			return fmt.Errorf("%w: %s %q: %s", ErrRejected, cmd.Action, cmd.Target, res.Error)
		}
		return nil
	case <-timer.C:
		return fmt.Errorf("%w: %s %q after %s", ErrTimeout, cmd.Action, cmd.Target, b.timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ── host connection ──────────────────────────────────────────────────────────

type hostConn struct {
	id     string
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	pending map[string]chan message
	closed  bool
}

func (h *hostConn) write(ctx context.Context, msg message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return h.conn.Write(ctx, websocket.MessageText, data)
}

// send writes msg on the connection's own context, logging failures.
func (h *hostConn) send(msg message) {
	if err := h.write(h.ctx, msg); err != nil {
		slog.Debug("bridge: write failed", "host", h.id, "type", msg.Type, "err", err)
	}
}

func (h *hostConn) expect(id string) <-chan message {
	ch := make(chan message, 1)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch
	}
	h.pending[id] = ch
	return ch
}

func (h *hostConn) forget(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.pending, id)
}

func (h *hostConn) resolve(msg message) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch, ok := h.pending[msg.ID]
	if !ok {
		return false
	}
	delete(h.pending, msg.ID)
	ch <- msg
	return true
}

func (h *hostConn) failPending() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, ch := range h.pending {
		close(ch)
		delete(h.pending, id)
	}
}

func (h *hostConn) close(code websocket.StatusCode, reason string) {
	h.cancel()
	_ = h.conn.Close(code, reason)
}
