package scene

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 250 * time.Millisecond

// FileWatcher reloads a scene file into a [Store] whenever it changes on
// disk. The parent directory is watched rather than the file so that
// editors that save by rename are picked up. Bursts of events are debounced.
// A file that fails to parse is logged and the previous scene kept.
type FileWatcher struct {
	store    *Store
	path     string
	debounce time.Duration
	onReload func(error)
}

// FileWatcherOption configures a [FileWatcher].
type FileWatcherOption func(*FileWatcher)

// WithDebounce sets the quiet period after the last event before reloading.
// Default: 250ms.
func WithDebounce(d time.Duration) FileWatcherOption {
	return func(w *FileWatcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithReloadHook registers fn to be called after every reload attempt with
// its error (nil on success).
func WithReloadHook(fn func(error)) FileWatcherOption {
	return func(w *FileWatcher) {
		w.onReload = fn
	}
}

// NewFileWatcher creates a watcher for path feeding store.
func NewFileWatcher(store *Store, path string, opts ...FileWatcherOption) *FileWatcher {
	w := &FileWatcher{store: store, path: filepath.Clean(path), debounce: defaultDebounce}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Run watches until ctx is done. It returns nil on cancellation and an error
// only if the watch could not be set up.
func (w *FileWatcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("scene: create file watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("scene: watch %q: %w", filepath.Dir(w.path), err)
	}
	slog.Info("scene: watching scene file", "path", w.path)

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(w.debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("scene: file watcher error", "err", err)

		case <-timer.C:
			w.reload()
		}
	}
}

func (w *FileWatcher) reload() {
	sf, err := w.store.Load(w.path)
	if err != nil {
		slog.Warn("scene: reload failed, keeping previous scene", "path", w.path, "err", err)
	} else {
		slog.Info("scene: reloaded", "path", w.path, "name", sf.Scene.Name, "objects", len(sf.Objects))
	}
	if w.onReload != nil {
		w.onReload(err)
	}
}
