// Package builtin provides the standard scene actions: "move", "talk",
// "emote" and "present".
//
// Each action decodes its structured param, turns it into an
// [action.Command] and dispatches it to the resolved target. The target's
// owner (the local scene store or a connected host) carries the command out.
// All actions are safe for concurrent use.
package builtin

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MrWong99/stagehand/internal/action"
)

// DefaultMoveTimeout bounds a single move when no other timeout is set.
const DefaultMoveTimeout = 10 * time.Second

// ErrNoTarget is returned when an action is executed without a target.
var ErrNoTarget = errors.New("builtin: target is nil")

type options struct {
	moveTimeout time.Duration
}

// Option configures the built-in actions.
type Option func(*options)

// WithMoveTimeout bounds how long a move may take before it is abandoned.
// Non-positive values keep [DefaultMoveTimeout].
func WithMoveTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.moveTimeout = d
		}
	}
}

// All returns every built-in action.
func All(opts ...Option) []action.Action {
	o := options{moveTimeout: DefaultMoveTimeout}
	for _, fn := range opts {
		fn(&o)
	}
	return []action.Action{
		&Move{Timeout: o.moveTimeout},
		&Talk{},
		&Emote{},
		&Present{},
	}
}

// RegisterAll registers every built-in action with r.
func RegisterAll(r *action.Registry, opts ...Option) error {
	for _, a := range All(opts...) {
		if err := r.Register(a); err != nil {
			return err
		}
	}
	return nil
}

// decode converts a decoded JSON param into dst by re-encoding it. A nil
// param leaves dst untouched.
func decode(id string, param any, dst any) error {
	if param == nil {
		return nil
	}
	b, err := json.Marshal(param)
	if err != nil {
		return fmt.Errorf("builtin: %s: encode param: %w", id, err)
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return fmt.Errorf("builtin: %s: decode param: %w", id, err)
	}
	return nil
}
