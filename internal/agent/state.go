package agent

// State is a phase of the orchestrator loop.
type State int32

const (
	// StateIdle waits for a trigger.
	StateIdle State = iota
	StateCollectingPrompt
	StateCollectingContext
	StateInvoking
	StateParsing
	StateScheduling

	// StateCancelled is terminal. It is entered from any state once the
	// loop's context is done.
	StateCancelled
)

var stateNames = [...]string{
	StateIdle:              "idle",
	StateCollectingPrompt:  "collecting_prompt",
	StateCollectingContext: "collecting_context",
	StateInvoking:          "invoking",
	StateParsing:           "parsing",
	StateScheduling:        "scheduling",
	StateCancelled:         "cancelled",
}

// String returns the state's snake_case name.
func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}
