package scene

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/MrWong99/stagehand/internal/action"
)

func demoStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore()
	s.Replace([]Object{
		{ID: "Cube1", Description: "red cube", Capabilities: []string{"move", "talk"}},
		{ID: "Cube2", Description: "blue cube", Aliases: []string{"Blue Cube"}},
		{ID: "PresentationPoint", Description: "where items are shown"},
	})
	return s
}

func TestStore_CollectContextOrder(t *testing.T) {
	t.Parallel()

	s := demoStore(t)
	ctx, err := s.CollectContext(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	var ids []string
	for _, d := range ctx {
		ids = append(ids, d.ID)
	}
	want := []string{"Cube1", "Cube2", "PresentationPoint"}
	if len(ids) != 3 || ids[0] != want[0] || ids[1] != want[1] || ids[2] != want[2] {
		t.Errorf("order = %v, want %v", ids, want)
	}

	// Snapshots are values: later changes do not leak into them.
	_ = s.SetPosition("Cube1", Vector3{X: 5})
	if ctx[0].Position.X != 0 {
		t.Error("snapshot changed after SetPosition")
	}
}

func TestStore_ListenersFireOnChange(t *testing.T) {
	t.Parallel()

	s := NewStore()
	var n atomic.Int32
	s.OnContextUpdated(func() { n.Add(1) })

	s.Replace([]Object{{ID: "A"}})
	_ = s.Upsert(Object{ID: "B"})
	_ = s.SetPosition("A", Vector3{Y: 1})
	s.Remove("B")
	s.Remove("missing")
	s.NotifyContextChanged()

	if got := n.Load(); got != 5 {
		t.Errorf("listener calls = %d, want 5", got)
	}
}

func TestStore_ReplaceSkipsBadIDs(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.Replace([]Object{{ID: "A"}, {ID: ""}, {ID: "A", Description: "dup"}, {ID: "B"}})
	if s.Len() != 2 {
		t.Errorf("Len = %d, want 2", s.Len())
	}
	if o, _ := s.Get("A"); o.Description == "dup" {
		t.Error("duplicate replaced the first object")
	}
	if err := s.Upsert(Object{}); err == nil {
		t.Error("Upsert with empty id should fail")
	}
}

func TestStore_Resolve(t *testing.T) {
	t.Parallel()

	s := demoStore(t)

	tests := []struct {
		query string
		want  string
	}{
		{"Cube1", "Cube1"},
		{"cube1", "Cube1"},
		{"CUBE2", "Cube2"},
		{"blue cube", "Cube2"},
		{"Cube_1", "Cube1"},
		{"cube 2", "Cube2"},
		{"the PresentationPoint", "PresentationPoint"},
		{"presentation point", "PresentationPoint"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			t.Parallel()
			got, err := s.Resolve(context.Background(), tt.query)
			if err != nil {
				t.Fatalf("Resolve(%q): %v", tt.query, err)
			}
			if got.ID() != tt.want {
				t.Errorf("Resolve(%q) = %q, want %q", tt.query, got.ID(), tt.want)
			}
		})
	}
}

func TestStore_ResolveNotFound(t *testing.T) {
	t.Parallel()

	s := demoStore(t)
	for _, q := range []string{"", "Cube3", "cube", "Sphere", "teapot"} {
		if _, err := s.Resolve(context.Background(), q); !errors.Is(err, ErrNotFound) {
			t.Errorf("Resolve(%q) err = %v, want ErrNotFound", q, err)
		}
	}
}

func TestTarget_DispatchMove(t *testing.T) {
	t.Parallel()

	s := demoStore(t)
	tgt, err := s.Resolve(context.Background(), "cube1")
	if err != nil {
		t.Fatal(err)
	}

	err = tgt.Dispatch(context.Background(), action.Command{
		Action: "move",
		Args:   map[string]any{"destination": map[string]any{"x": 1.0, "y": 0.0, "z": 1.0}},
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	o, _ := s.Get("Cube1")
	if o.Position != (Vector3{X: 1, Z: 1}) {
		t.Errorf("position = %+v", o.Position)
	}
}

func TestTarget_DispatchErrors(t *testing.T) {
	t.Parallel()

	s := demoStore(t)
	tgt, _ := s.Resolve(context.Background(), "Cube1")

	err := tgt.Dispatch(context.Background(), action.Command{Action: "emote"})
	if !errors.Is(err, ErrNotCapable) {
		t.Errorf("emote on Cube1 err = %v, want ErrNotCapable", err)
	}

	s.Remove("Cube1")
	err = tgt.Dispatch(context.Background(), action.Command{Action: "talk"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("dispatch after removal err = %v, want ErrNotFound", err)
	}
}

type recordingDispatcher struct {
	cmds []action.Command
}

func (d *recordingDispatcher) Dispatch(_ context.Context, cmd action.Command) error {
	d.cmds = append(d.cmds, cmd)
	return nil
}

func TestStore_SetDispatcher(t *testing.T) {
	t.Parallel()

	s := demoStore(t)
	rd := &recordingDispatcher{}
	s.SetDispatcher(rd)

	tgt, _ := s.Resolve(context.Background(), "Cube2")
	_ = tgt.Dispatch(context.Background(), action.Command{Action: "move", Args: map[string]any{"destination": map[string]any{"x": 3.0}}})

	if len(rd.cmds) != 1 || rd.cmds[0].Target != "Cube2" {
		t.Fatalf("commands = %+v", rd.cmds)
	}
	if o, _ := s.Get("Cube2"); o.Position.X != 0 {
		t.Error("local dispatcher ran while a remote one was set")
	}

	s.SetDispatcher(nil)
	_ = tgt.Dispatch(context.Background(), action.Command{Action: "move", Args: map[string]any{"destination": map[string]any{"x": 3.0}}})
	if o, _ := s.Get("Cube2"); o.Position.X != 3 {
		t.Error("local dispatcher not restored")
	}
}

func TestLocalDispatcher_BadDestination(t *testing.T) {
	t.Parallel()

	s := demoStore(t)
	tgt, _ := s.Resolve(context.Background(), "Cube1")
	err := tgt.Dispatch(context.Background(), action.Command{Action: "move", Args: map[string]any{"destination": "north"}})
	if err == nil {
		t.Fatal("expected error for non-vector destination")
	}
}
