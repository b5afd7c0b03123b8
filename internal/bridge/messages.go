package bridge

import "github.com/MrWong99/stagehand/internal/scene"

// Message types sent by the host.
const (
	// TypeSnapshot replaces the whole scene with Objects.
	TypeSnapshot = "snapshot"

	// TypePrompt queues Text (and optional Goal) as a user prompt.
	TypePrompt = "prompt"

	// TypeResult acknowledges the invoke with the same ID.
	TypeResult = "result"
)

// Message types sent to the host.
const (
	// TypeInvoke asks the host to carry out an action on a target.
	TypeInvoke = "invoke"

	// TypeError reports a message the server could not handle.
	TypeError = "error"
)

// message is the single envelope used in both directions. Only the fields
// relevant to Type are set.
type message struct {
	Type string `json:"type"`

	// ID correlates an invoke with its result.
	ID string `json:"id,omitempty"`

	// snapshot
	Objects []scene.Object `json:"objects,omitempty"`

	// prompt
	Text string `json:"text,omitempty"`
	Goal string `json:"goal,omitempty"`

	// invoke
	Action string         `json:"action,omitempty"`
	Target string         `json:"target,omitempty"`
	Args   map[string]any `json:"args,omitempty"`

	// result
	OK    bool   `json:"ok,omitempty"`
	Error string `json:"error,omitempty"`
}
