package scene

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/MrWong99/stagehand/internal/action"
)

var (
	// ErrNotFound is returned when no object matches a target id.
	ErrNotFound = errors.New("scene: object not found")

	// ErrNotCapable is returned when an object does not list the action a
	// command was issued for.
	ErrNotCapable = errors.New("scene: object does not support action")
)

// Dispatcher carries out commands on scene objects. The store's default is
// a [LocalDispatcher]; the host bridge replaces it while a host is connected.
type Dispatcher interface {
	Dispatch(ctx context.Context, cmd action.Command) error
}

// Compile-time assertions.
var (
	_ action.ContextHandle = (*Store)(nil)
	_ action.Target        = (*target)(nil)
)

// Store is the in-memory scene. All methods are safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	objects map[string]Object
	order   []string

	lmu       sync.Mutex
	listeners []func()

	dmu        sync.RWMutex
	dispatcher Dispatcher
	local      Dispatcher

	matcher *matcher
}

// Option configures a [Store].
type Option func(*Store)

// WithFuzzyThreshold sets the minimum Jaro-Winkler similarity for fuzzy
// target resolution. Values outside (0, 1] keep the default of 0.85.
func WithFuzzyThreshold(t float64) Option {
	return func(s *Store) {
		s.matcher = newMatcher(t)
	}
}

// WithDispatcher replaces the default [LocalDispatcher].
func WithDispatcher(d Dispatcher) Option {
	return func(s *Store) {
		s.dispatcher = d
	}
}

// NewStore returns an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		objects: make(map[string]Object),
		matcher: newMatcher(defaultFuzzyThreshold),
	}
	s.local = &LocalDispatcher{store: s}
	s.dispatcher = s.local
	for _, o := range opts {
		o(s)
	}
	return s
}

// ── Context provider ─────────────────────────────────────────────────────────

// CollectContext returns a snapshot of all objects in insertion order.
func (s *Store) CollectContext(_ context.Context) (Context, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(Context, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.objects[id].Descriptor())
	}
	return out, nil
}

// OnContextUpdated registers fn to be called after every change to the
// scene. Listeners run synchronously on the goroutine that made the change
// and must not block.
func (s *Store) OnContextUpdated(fn func()) {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// NotifyContextChanged fires all context listeners. Actions call it after
// changing the world outside the store.
func (s *Store) NotifyContextChanged() {
	s.lmu.Lock()
	ls := slices.Clone(s.listeners)
	s.lmu.Unlock()

	for _, fn := range ls {
		fn()
	}
}

// ── Mutation ─────────────────────────────────────────────────────────────────

// Replace swaps the whole scene for objects, keeping their order. Objects
// with an empty or duplicate id are skipped.
func (s *Store) Replace(objects []Object) {
	s.mu.Lock()
	s.objects = make(map[string]Object, len(objects))
	s.order = s.order[:0]
	for _, o := range objects {
		if o.ID == "" {
			continue
		}
		if _, dup := s.objects[o.ID]; dup {
			slog.Warn("scene: duplicate object id ignored", "id", o.ID)
			continue
		}
		s.objects[o.ID] = o
		s.order = append(s.order, o.ID)
	}
	s.mu.Unlock()

	s.NotifyContextChanged()
}

// Upsert adds o or replaces the object with the same id in place.
func (s *Store) Upsert(o Object) error {
	if o.ID == "" {
		return fmt.Errorf("scene: upsert: empty id")
	}
	s.mu.Lock()
	if _, ok := s.objects[o.ID]; !ok {
		s.order = append(s.order, o.ID)
	}
	s.objects[o.ID] = o
	s.mu.Unlock()

	s.NotifyContextChanged()
	return nil
}

// Remove deletes the object with id. It reports whether it existed.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	_, ok := s.objects[id]
	if ok {
		delete(s.objects, id)
		s.order = slices.DeleteFunc(s.order, func(x string) bool { return x == id })
	}
	s.mu.Unlock()

	if ok {
		s.NotifyContextChanged()
	}
	return ok
}

// SetPosition moves the object with id to pos.
func (s *Store) SetPosition(id string, pos Vector3) error {
	s.mu.Lock()
	o, ok := s.objects[id]
	if ok {
		o.Position = pos
		s.objects[id] = o
	}
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	s.NotifyContextChanged()
	return nil
}

// Get returns the object with id.
func (s *Store) Get(id string) (Object, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.objects[id]
	return o, ok
}

// Len returns the number of objects.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

// ── Dispatch ─────────────────────────────────────────────────────────────────

// SetDispatcher routes commands to d. Passing nil restores the local
// dispatcher.
func (s *Store) SetDispatcher(d Dispatcher) {
	s.dmu.Lock()
	defer s.dmu.Unlock()
	if d == nil {
		d = s.local
	}
	s.dispatcher = d
}

func (s *Store) dispatch(ctx context.Context, cmd action.Command) error {
	o, ok := s.Get(cmd.Target)
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, cmd.Target)
	}
	if !o.Can(cmd.Action) {
		return fmt.Errorf("%w: %q cannot %s", ErrNotCapable, cmd.Target, cmd.Action)
	}

	s.dmu.RLock()
	d := s.dispatcher
	s.dmu.RUnlock()
	return d.Dispatch(ctx, cmd)
}

// ── Target resolution ────────────────────────────────────────────────────────

type target struct {
	id    string
	store *Store
}

func (t *target) ID() string { return t.id }

func (t *target) Dispatch(ctx context.Context, cmd action.Command) error {
	cmd.Target = t.id
	return t.store.dispatch(ctx, cmd)
}

// Resolve returns a live handle for id. Lookup tries, in order: the exact
// id, a case-insensitive id or alias, then a fuzzy match over ids and
// aliases.
func (s *Store) Resolve(_ context.Context, id string) (action.Target, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.objects[id]; ok {
		return &target{id: id, store: s}, nil
	}

	want := strings.TrimSpace(id)
	if want == "" {
		return nil, fmt.Errorf("%w: empty target id", ErrNotFound)
	}

	names := make([]string, 0, len(s.order))
	owner := make(map[string]string, len(s.order))
	for _, oid := range s.order {
		o := s.objects[oid]
		for _, name := range append([]string{o.ID}, o.Aliases...) {
			if strings.EqualFold(name, want) {
				return &target{id: oid, store: s}, nil
			}
			names = append(names, name)
			owner[name] = oid
		}
	}

	if name, score, ok := s.matcher.match(want, names); ok {
		slog.Debug("scene: fuzzy target match", "requested", id, "resolved", owner[name], "score", score)
		return &target{id: owner[name], store: s}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
}
