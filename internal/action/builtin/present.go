package builtin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/MrWong99/stagehand/internal/action"
)

// DefaultPresentDuration is the presentation length in seconds when the
// param does not set one.
const DefaultPresentDuration = 2.0

const presentSchema = `{
  "type": "object",
  "properties": {
    "presentationTarget": {"type": "string", "minLength": 1},
    "presentaionTarget": {"type": "string", "minLength": 1},
    "duration": {"type": "number", "minimum": 0}
  },
  "anyOf": [
    {"required": ["presentationTarget"]},
    {"required": ["presentaionTarget"]}
  ]
}`

var _ action.Action = (*Present)(nil)

// Present asks the target to show an item: move it to the presentation
// point, rotate it and put it back. The target has to be near the item.
type Present struct{}

type presentParam struct {
	Target string `json:"presentationTarget"`
	// Misspelt key still produced by older prompts.
	LegacyTarget string   `json:"presentaionTarget"`
	Duration     *float64 `json:"duration"`
}

// Describe implements [action.Action].
func (*Present) Describe() action.Descriptor {
	return action.Descriptor{
		ID:          "present",
		Description: "Present an item by moving it to a presentation point and rotating it, then returning it back. Can only be performed when you are close to the item",
		Parameters: []action.Parameter{
			{Key: "presentationTarget", Type: "string", Description: "item to present"},
			{Key: "duration", Type: "float", Description: "presentation duration in seconds (default 2.0)"},
		},
		Schema: json.RawMessage(presentSchema),
	}
}

// Execute implements [action.Action].
func (*Present) Execute(ctx context.Context, param any, target action.Target, handle action.ContextHandle) error {
	if target == nil {
		return ErrNoTarget
	}
	var p presentParam
	if err := decode("present", param, &p); err != nil {
		return err
	}
	item := p.Target
	if item == "" {
		item = p.LegacyTarget
	}
	if item == "" {
		return fmt.Errorf("builtin: present %q: no presentation target", target.ID())
	}
	duration := DefaultPresentDuration
	if p.Duration != nil {
		duration = *p.Duration
	}

	err := target.Dispatch(ctx, action.Command{
		Action: "present",
		Args:   map[string]any{"presentationTarget": item, "duration": duration},
	})
	if err != nil {
		return fmt.Errorf("builtin: present %q: %w", target.ID(), err)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("builtin: present %q: %w", target.ID(), err)
	}
	if handle != nil {
		handle.NotifyContextChanged()
	}
	return nil
}
