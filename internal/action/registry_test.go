package action_test

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/MrWong99/stagehand/internal/action"
	"github.com/MrWong99/stagehand/internal/action/mock"
)

func TestRegistry_RegisterLookup(t *testing.T) {
	t.Parallel()

	r := action.NewRegistry()
	move := mock.New("move")
	if err := r.Register(move); err != nil {
		t.Fatalf("Register: %v", err)
	}

	got, ok := r.Lookup("move")
	if !ok || got != move {
		t.Fatalf("Lookup(move) = %v, %v", got, ok)
	}
	if r.Has("dance") {
		t.Error("Has(dance) should be false")
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1", r.Len())
	}
}

func TestRegistry_Errors(t *testing.T) {
	t.Parallel()

	t.Run("duplicate", func(t *testing.T) {
		t.Parallel()
		r := action.NewRegistry()
		_ = r.Register(mock.New("talk"))
		err := r.Register(mock.New("talk"))
		if !errors.Is(err, action.ErrDuplicate) {
			t.Fatalf("want ErrDuplicate, got %v", err)
		}
	})

	t.Run("frozen", func(t *testing.T) {
		t.Parallel()
		r := action.NewRegistry()
		r.Freeze()
		err := r.Register(mock.New("talk"))
		if !errors.Is(err, action.ErrFrozen) {
			t.Fatalf("want ErrFrozen, got %v", err)
		}
	})

	t.Run("empty id", func(t *testing.T) {
		t.Parallel()
		r := action.NewRegistry()
		if err := r.Register(mock.New(" ")); err == nil {
			t.Fatal("expected error for empty id")
		}
	})

	t.Run("broken schema", func(t *testing.T) {
		t.Parallel()
		r := action.NewRegistry()
		a := mock.New("bad")
		a.DescribeResult.Schema = []byte(`{"type": 12}`)
		if err := r.Register(a); err == nil {
			t.Fatal("expected schema compile error")
		}
	})
}

func TestRegistry_DescriptorsSorted(t *testing.T) {
	t.Parallel()

	r := action.NewRegistry()
	for _, id := range []string{"talk", "emote", "move"} {
		if err := r.Register(mock.New(id)); err != nil {
			t.Fatal(err)
		}
	}
	var ids []string
	for _, d := range r.Descriptors() {
		ids = append(ids, d.ID)
	}
	if strings.Join(ids, ",") != "emote,move,talk" {
		t.Errorf("ids = %v", ids)
	}
}

func TestRegistry_ValidateParam(t *testing.T) {
	t.Parallel()

	r := action.NewRegistry()
	talk := mock.New("talk")
	talk.DescribeResult.Schema = []byte(`{
		"type": "object",
		"required": ["dialogueLine"],
		"properties": {"dialogueLine": {"type": "string"}}
	}`)
	if err := r.Register(talk); err != nil {
		t.Fatal(err)
	}
	_ = r.Register(mock.New("free"))

	tests := []struct {
		name    string
		id      string
		param   any
		wantErr bool
	}{
		{"valid", "talk", map[string]any{"dialogueLine": "hi"}, false},
		{"missing key", "talk", map[string]any{}, true},
		{"wrong type", "talk", map[string]any{"dialogueLine": 3.0}, true},
		{"not an object", "talk", "hi", true},
		{"no schema", "free", []any{1.0, "x"}, false},
		{"unknown id", "nope", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := r.ValidateParam(tt.id, tt.param)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateParam err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, action.ErrInvalidParam) {
				t.Errorf("want ErrInvalidParam, got %v", err)
			}
		})
	}
}

func TestRegistry_ConcurrentLookup(t *testing.T) {
	t.Parallel()

	r := action.NewRegistry()
	_ = r.Register(mock.New("move"))
	r.Freeze()

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				if !r.Has("move") {
					t.Error("move missing")
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestDescriptor_Format(t *testing.T) {
	t.Parallel()

	d := action.Descriptor{
		ID:          "talk",
		Description: "Say a line of dialogue",
		Parameters: []action.Parameter{
			{Key: "dialogueLine", Type: "string", Description: "what to say"},
		},
	}
	want := "talk: Say a line of dialogue\nParameters: {\n    \"dialogueLine\": string // what to say,\n}"
	if got := d.Format(); got != want {
		t.Errorf("Format() =\n%s\nwant\n%s", got, want)
	}

	empty := action.Descriptor{ID: "blink", Description: "Blink once"}
	if got := empty.Format(); got != "blink: Blink once\nParameters: {}" {
		t.Errorf("Format() = %q", got)
	}

	cat := action.Catalog([]action.Descriptor{empty, d})
	if !strings.HasPrefix(cat, "- blink:") || !strings.Contains(cat, "\n- talk:") {
		t.Errorf("Catalog() = %q", cat)
	}
}
