package builtin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MrWong99/stagehand/internal/action"
	"github.com/MrWong99/stagehand/internal/observe"
	"github.com/MrWong99/stagehand/internal/scene"
)

const moveSchema = `{
  "type": "object",
  "properties": {
    "destination": {"type": ["object", "array"]},
    "x": {"type": "number"},
    "y": {"type": "number"},
    "z": {"type": "number"}
  },
  "anyOf": [
    {"required": ["destination"]},
    {"required": ["x"]},
    {"required": ["y"]},
    {"required": ["z"]}
  ]
}`

var _ action.Action = (*Move)(nil)

// Move moves the target to a position. The param is either
// {"destination": {"x":..,"y":..,"z":..}} or the bare coordinates.
type Move struct {
	// Timeout bounds the whole move. Zero means [DefaultMoveTimeout].
	Timeout time.Duration
}

// Describe implements [action.Action].
func (m *Move) Describe() action.Descriptor {
	return action.Descriptor{
		ID:          "move",
		Description: "Move a game object to a specified position in 3D space",
		Parameters: []action.Parameter{
			{Key: "destination", Type: "{x,y,z}", Description: "world position to move to"},
		},
		Schema: json.RawMessage(moveSchema),
	}
}

// Execute implements [action.Action].
func (m *Move) Execute(ctx context.Context, param any, target action.Target, handle action.ContextHandle) error {
	if target == nil {
		return ErrNoTarget
	}
	dest, err := destination(param)
	if err != nil {
		return fmt.Errorf("builtin: move %q: %w", target.ID(), err)
	}

	timeout := m.Timeout
	if timeout <= 0 {
		timeout = DefaultMoveTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err = target.Dispatch(ctx, action.Command{
		Action: "move",
		Args:   map[string]any{"destination": dest.Map()},
	})
	if errors.Is(err, context.DeadlineExceeded) {
		observe.Logger(ctx).Warn("builtin: move timed out", "target", target.ID(), "timeout", timeout)
	}
	if err != nil {
		return fmt.Errorf("builtin: move %q: %w", target.ID(), err)
	}

	if handle != nil {
		handle.NotifyContextChanged()
	}
	return nil
}

func destination(param any) (scene.Vector3, error) {
	m, ok := param.(map[string]any)
	if !ok {
		return scene.Vector3{}, fmt.Errorf("param is %T, want object", param)
	}
	if d, ok := m["destination"]; ok {
		return scene.Vector3FromAny(d)
	}
	return scene.Vector3FromMap(m)
}
