package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/MrWong99/stagehand/internal/action"
	"github.com/MrWong99/stagehand/internal/observe"
	"github.com/MrWong99/stagehand/internal/prompt"
	"github.com/MrWong99/stagehand/internal/scene"
)

// ── Helpers ──────────────────────────────────────────────────────────────────

type fixture struct {
	bridge *Bridge
	store  *scene.Store
	queue  *prompt.Queue
	srv    *httptest.Server
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatal(err)
	}
	f := &fixture{store: scene.NewStore(), queue: prompt.NewQueue()}
	f.bridge = New(f.store, f.queue, append([]Option{WithMetrics(m)}, opts...)...)
	f.srv = httptest.NewServer(f.bridge)
	t.Cleanup(func() {
		f.bridge.Close()
		f.srv.Close()
	})
	return f
}

func (f *fixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(f.srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	eventually(t, f.bridge.Connected)
	return conn
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func writeJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	data, _ := json.Marshal(v)
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func readJSON(t *testing.T, conn *websocket.Conn) message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var m message
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return m
}

// ── Host → server ────────────────────────────────────────────────────────────

func TestBridge_SnapshotAndPrompt(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	conn := f.dial(t)

	writeJSON(t, conn, map[string]any{
		"type": "snapshot",
		"objects": []map[string]any{
			{"id": "Cube1", "position": map[string]any{"x": 1}, "actions": []string{"move"}},
			{"id": "Cube2"},
		},
	})
	writeJSON(t, conn, map[string]any{"type": "prompt", "text": "dance", "goal": "entertain"})

	eventually(t, func() bool { return f.store.Len() == 2 && f.queue.Len() == 1 })

	o, _ := f.store.Get("Cube1")
	if o.Position.X != 1 {
		t.Errorf("Cube1 position = %+v", o.Position)
	}
	p, _ := f.queue.CollectPrompt(context.Background())
	if p != (prompt.Prompt{Text: "dance", Goal: "entertain"}) {
		t.Errorf("prompt = %+v", p)
	}
}

func TestBridge_BadMessagesAnswered(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	conn := f.dial(t)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, []byte("not json")); err != nil {
		t.Fatal(err)
	}
	if m := readJSON(t, conn); m.Type != TypeError {
		t.Errorf("reply type = %q, want error", m.Type)
	}

	writeJSON(t, conn, map[string]any{"type": "teleport", "id": "x1"})
	m := readJSON(t, conn)
	if m.Type != TypeError || m.ID != "x1" || !strings.Contains(m.Error, "teleport") {
		t.Errorf("reply = %+v", m)
	}
}

// ── Server → host ────────────────────────────────────────────────────────────

func TestBridge_DispatchRoundTrip(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	conn := f.dial(t)
	f.store.Replace([]scene.Object{{ID: "Cube1"}})

	hostDone := make(chan message, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_, data, err := conn.Read(ctx)
		if err != nil {
			close(hostDone)
			return
		}
		var m message
		_ = json.Unmarshal(data, &m)
		reply, _ := json.Marshal(message{Type: TypeResult, ID: m.ID, OK: true})
		_ = conn.Write(ctx, websocket.MessageText, reply)
		hostDone <- m
	}()

	tgt, err := f.store.Resolve(context.Background(), "Cube1")
	if err != nil {
		t.Fatal(err)
	}
	err = tgt.Dispatch(context.Background(), action.Command{Action: "talk", Args: map[string]any{"dialogueLine": "hi"}})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	invoke, ok := <-hostDone
	if !ok {
		t.Fatal("host did not receive invoke")
	}
	if invoke.Type != TypeInvoke || invoke.Action != "talk" || invoke.Target != "Cube1" || invoke.ID == "" {
		t.Errorf("invoke = %+v", invoke)
	}
	if invoke.Args["dialogueLine"] != "hi" {
		t.Errorf("args = %v", invoke.Args)
	}
}

func TestBridge_DispatchRejected(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	conn := f.dial(t)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var m message
		_ = json.Unmarshal(data, &m)
		reply, _ := json.Marshal(message{Type: TypeResult, ID: m.ID, Error: "blocked by wall"})
		_ = conn.Write(ctx, websocket.MessageText, reply)
	}()

	err := f.bridge.Dispatch(context.Background(), action.Command{Action: "move", Target: "Cube1"})
	if !errors.Is(err, ErrRejected) || !strings.Contains(err.Error(), "blocked by wall") {
		t.Errorf("err = %v, want ErrRejected with reason", err)
	}
}

func TestBridge_DispatchTimeout(t *testing.T) {
	t.Parallel()

	f := newFixture(t, WithTimeout(30*time.Millisecond))
	_ = f.dial(t)

	err := f.bridge.Dispatch(context.Background(), action.Command{Action: "move", Target: "Cube1"})
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("err = %v, want ErrTimeout", err)
	}
}

func TestBridge_DispatchWithoutHost(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	if err := f.bridge.Dispatch(context.Background(), action.Command{Action: "move"}); !errors.Is(err, ErrNoHost) {
		t.Errorf("err = %v, want ErrNoHost", err)
	}
}

func TestBridge_DisconnectRestoresLocalDispatch(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	conn := f.dial(t)
	f.store.Replace([]scene.Object{{ID: "Cube1"}})

	conn.Close(websocket.StatusNormalClosure, "bye")
	eventually(t, func() bool { return !f.bridge.Connected() })

	tgt, _ := f.store.Resolve(context.Background(), "Cube1")
	err := tgt.Dispatch(context.Background(), action.Command{
		Action: "move",
		Args:   map[string]any{"destination": map[string]any{"x": 4.0}},
	})
	if err != nil {
		t.Fatalf("local dispatch: %v", err)
	}
	if o, _ := f.store.Get("Cube1"); o.Position.X != 4 {
		t.Errorf("position = %+v, local dispatcher not restored", o.Position)
	}
}

func TestBridge_NewHostReplacesOld(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	first := f.dial(t)
	_ = f.dial(t)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, _, err := first.Read(ctx)
	if websocket.CloseStatus(err) != websocket.StatusPolicyViolation {
		t.Errorf("first host close = %v, want policy violation", err)
	}
	if !f.bridge.Connected() {
		t.Error("second host not connected")
	}
}
