package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MrWong99/stagehand/internal/action"
)

const talkSchema = `{
  "type": "object",
  "properties": {
    "dialogueLine": {"type": "string", "minLength": 1}
  },
  "required": ["dialogueLine"]
}`

var _ action.Action = (*Talk)(nil)

// Talk makes the target say a line of dialogue.
type Talk struct{}

type talkParam struct {
	DialogueLine string `json:"dialogueLine"`
}

// Describe implements [action.Action].
func (*Talk) Describe() action.Descriptor {
	return action.Descriptor{
		ID:          "talk",
		Description: "Make the character say a line of dialogue",
		Parameters: []action.Parameter{
			{Key: "dialogueLine", Type: "string", Description: "the line of dialogue to speak"},
		},
		Schema: json.RawMessage(talkSchema),
	}
}

// Execute implements [action.Action].
func (*Talk) Execute(ctx context.Context, param any, target action.Target, _ action.ContextHandle) error {
	if target == nil {
		return ErrNoTarget
	}
	var p talkParam
	if err := decode("talk", param, &p); err != nil {
		return err
	}
	line := strings.TrimSpace(p.DialogueLine)
	if line == "" {
		return fmt.Errorf("builtin: talk %q: empty dialogue line", target.ID())
	}

	err := target.Dispatch(ctx, action.Command{
		Action: "talk",
		Args:   map[string]any{"dialogueLine": line},
	})
	if err != nil {
		return fmt.Errorf("builtin: talk %q: %w", target.ID(), err)
	}
	return nil
}
