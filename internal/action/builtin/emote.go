package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MrWong99/stagehand/internal/action"
)

// BlendShapes lists the emote weight keys in presentation order.
var BlendShapes = []string{
	"blendShapeBlink",
	"blendShapeMouthA",
	"blendShapeMouthI",
	"blendShapeMouthU",
	"blendShapeMouthE",
	"blendShapeMouthO",
	"blendShapeJoy",
	"blendShapeAnger",
	"blendShapeSorrow",
	"blendShapeFun",
}

var emoteSchema = func() json.RawMessage {
	props := make([]string, 0, len(BlendShapes))
	for _, k := range BlendShapes {
		props = append(props, fmt.Sprintf(`%q: {"type": "number", "minimum": 0, "maximum": 1}`, k))
	}
	return json.RawMessage(`{"type": "object", "properties": {` +
		strings.Join(props, ", ") + `}}`)
}()

var _ action.Action = (*Emote)(nil)

// Emote sets facial blend-shape weights on the target. Keys that are not
// given are sent as zero.
type Emote struct{}

// Describe implements [action.Action].
func (*Emote) Describe() action.Descriptor {
	params := make([]action.Parameter, 0, len(BlendShapes))
	for _, k := range BlendShapes {
		params = append(params, action.Parameter{
			Key:         k,
			Type:        "float",
			Description: "0.0 to 1.0",
		})
	}
	return action.Descriptor{
		ID:          "emote",
		Description: "Make the character perform an emote animation",
		Parameters:  params,
		Schema:      emoteSchema,
	}
}

// Execute implements [action.Action].
func (*Emote) Execute(ctx context.Context, param any, target action.Target, _ action.ContextHandle) error {
	if target == nil {
		return ErrNoTarget
	}
	weights, ok := param.(map[string]any)
	if !ok && param != nil {
		return fmt.Errorf("builtin: emote %q: param is %T, want object", target.ID(), param)
	}

	args := make(map[string]any, len(BlendShapes))
	for _, k := range BlendShapes {
		var w float64
		if raw, ok := weights[k]; ok {
			if w, ok = raw.(float64); !ok {
				return fmt.Errorf("builtin: emote %q: %s is %T, want number", target.ID(), k, raw)
			}
		}
		if w < 0 || w > 1 {
			return fmt.Errorf("builtin: emote %q: %s = %v out of range 0..1", target.ID(), k, w)
		}
		args[k] = w
	}

	if err := target.Dispatch(ctx, action.Command{Action: "emote", Args: args}); err != nil {
		return fmt.Errorf("builtin: emote %q: %w", target.ID(), err)
	}
	return nil
}
