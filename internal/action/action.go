// Package action defines the capability contract for side-effecting scene
// operations and the read-only registry the planner and scheduler consult.
//
// An [Action] is registered once at startup under a unique identifier. The
// plan parser drops invocations whose identifier is unknown to the
// [Registry]; the scheduler looks the action up again right before running
// it. After [Registry.Freeze] the registry is a read-only map.
package action

import (
	"context"
	"encoding/json"
)

// Parameter describes one key of an action's structured parameter object.
type Parameter struct {
	// Key is the JSON object key.
	Key string

	// Type is a short type hint shown to the model ("string", "float",
	// "{x,y,z}").
	Type string

	// Description explains the parameter to the model.
	Description string
}

// Descriptor is an action's capability descriptor.
type Descriptor struct {
	// ID is the unique action identifier used in plans ("move", "talk").
	ID string

	// Description is a one-line human readable summary.
	Description string

	// Parameters lists the parameter keys in presentation order.
	Parameters []Parameter

	// Schema is an optional JSON Schema that a param must satisfy before the
	// invocation is scheduled. Nil disables structural validation.
	Schema json.RawMessage
}

// Command is what an action asks a [Target] to perform. Targets forward it
// to whatever owns the object (the in-memory scene or a connected host).
type Command struct {
	// Action is the identifier of the issuing action.
	Action string

	// Target is the resolved target identifier.
	Target string

	// Args carries the command arguments in wire form.
	Args map[string]any
}

// Target is a live handle to a scene object, resolved from a target id at
// the start of every invocation.
type Target interface {
	// ID returns the canonical identifier of the object.
	ID() string

	// Dispatch asks the owner of the object to carry out cmd and blocks until
	// it is acknowledged or ctx is done.
	Dispatch(ctx context.Context, cmd Command) error
}

// ContextHandle lets actions announce that they changed the world.
type ContextHandle interface {
	NotifyContextChanged()
}

// Action is one invocable capability.
//
// Execute receives the decoded structured param (map, slice or scalar), the
// freshly resolved target, the context handle and ctx for cancellation. A
// nil error means success. Implementations own their timeouts.
type Action interface {
	Describe() Descriptor
	Execute(ctx context.Context, param any, target Target, handle ContextHandle) error
}
