package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrWong99/stagehand/internal/config"
)

const (
	watchInitial = "providers: {llm: {name: openai}}\nmodel: {goal: first}\n"
	watchUpdated = "providers: {llm: {name: openai}}\nmodel: {goal: second}\n"
	watchBroken  = "providers: {llm: {name: openai}}\nmodel: {temperature: hot}\n"
)

// rewrite writes content and pushes the mtime forward so that coarse
// filesystem timestamps still register a change.
func rewrite(t *testing.T, path, content string, step int) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	mt := time.Now().Add(time.Duration(step) * time.Second)
	if err := os.Chtimes(path, mt, mt); err != nil {
		t.Fatal(err)
	}
}

func TestWatcher(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "stagehand.yaml")
	rewrite(t, path, watchInitial, 0)

	changes := make(chan [2]string, 4)
	w, err := config.NewWatcher(path, func(old, next *config.Config) {
		changes <- [2]string{old.Model.Goal, next.Model.Goal}
	}, config.WithPollInterval(10*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	if w.Current().Model.Goal != "first" {
		t.Fatalf("initial goal = %q", w.Current().Model.Goal)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	rewrite(t, path, watchBroken, 1)
	select {
	case c := <-changes:
		t.Fatalf("invalid config reported: %v", c)
	case <-time.After(100 * time.Millisecond):
	}
	if w.Current().Model.Goal != "first" {
		t.Error("invalid reload replaced the config")
	}

	rewrite(t, path, watchUpdated, 2)
	select {
	case c := <-changes:
		if c != [2]string{"first", "second"} {
			t.Errorf("change = %v", c)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("change not detected")
	}
	if w.Current().Model.Goal != "second" {
		t.Errorf("current goal = %q", w.Current().Model.Goal)
	}

	// Touching without a content change is not reported.
	rewrite(t, path, watchUpdated, 3)
	select {
	case c := <-changes:
		t.Errorf("unchanged content reported: %v", c)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestNewWatcher_InvalidInitial(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "stagehand.yaml")
	rewrite(t, path, watchBroken, 0)
	if _, err := config.NewWatcher(path, nil); err == nil {
		t.Fatal("expected error")
	}
}
