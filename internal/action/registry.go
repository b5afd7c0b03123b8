package action

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

var (
	// ErrDuplicate is returned when an action id is registered twice.
	ErrDuplicate = errors.New("action: duplicate id")

	// ErrFrozen is returned when Register is called after Freeze.
	ErrFrozen = errors.New("action: registry is frozen")

	// ErrInvalidParam is returned by Registry.ValidateParam when a param does
	// not satisfy the action's schema.
	ErrInvalidParam = errors.New("action: invalid param")
)

type entry struct {
	action Action
	desc   Descriptor
	schema *gojsonschema.Schema
}

// Registry maps action ids to actions. Registration happens at startup;
// Freeze makes it read-only. All methods are safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
	frozen  bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register adds a. The descriptor's schema, if any, is compiled here so a
// broken schema fails startup instead of every invocation.
func (r *Registry) Register(a Action) error {
	desc := a.Describe()
	if strings.TrimSpace(desc.ID) == "" {
		return fmt.Errorf("action: register: empty id")
	}

	var schema *gojsonschema.Schema
	if len(desc.Schema) > 0 {
		s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(desc.Schema))
		if err != nil {
			return fmt.Errorf("action: register %q: compile schema: %w", desc.ID, err)
		}
		schema = s
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return fmt.Errorf("%w: cannot register %q", ErrFrozen, desc.ID)
	}
	if _, ok := r.entries[desc.ID]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicate, desc.ID)
	}
	r.entries[desc.ID] = entry{action: a, desc: desc, schema: schema}
	return nil
}

// Freeze rejects further registrations.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Lookup returns the action registered under id.
func (r *Registry) Lookup(id string) (Action, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e.action, ok
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	_, ok := r.Lookup(id)
	return ok
}

// Len returns the number of registered actions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Descriptors returns all descriptors sorted by id.
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	out := make([]Descriptor, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.desc)
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b Descriptor) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// ValidateParam checks param against the schema declared by action id.
// Actions without a schema accept any param. Unknown ids are not an error
// here; callers check [Registry.Has] first.
func (r *Registry) ValidateParam(id string, param any) error {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok || e.schema == nil {
		return nil
	}

	result, err := e.schema.Validate(gojsonschema.NewGoLoader(param))
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidParam, id, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, re := range result.Errors() {
			msgs = append(msgs, re.String())
		}
		return fmt.Errorf("%w: %s: %s", ErrInvalidParam, id, strings.Join(msgs, "; "))
	}
	return nil
}
