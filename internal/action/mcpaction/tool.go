package mcpaction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/stagehand/internal/action"
	"github.com/MrWong99/stagehand/internal/observe"
)

// TargetArg is the tool argument that receives the resolved target id.
const TargetArg = "target"

// ErrToolFailed wraps results the server flagged as errors.
var ErrToolFailed = errors.New("mcpaction: tool reported an error")

type toolAction struct {
	desc    action.Descriptor
	tool    string
	session ToolCaller
}

var _ action.Action = (*toolAction)(nil)

func newToolAction(serverName string, t *mcpsdk.Tool, session ToolCaller) *toolAction {
	schema := schemaToMap(t.InputSchema)
	stripTarget(schema)

	raw, err := json.Marshal(schema)
	if err != nil {
		raw = nil
	}
	return &toolAction{
		desc: action.Descriptor{
			ID:          serverName + "." + t.Name,
			Description: strings.TrimSpace(t.Description),
			Parameters:  parameters(schema),
			Schema:      raw,
		},
		tool:    t.Name,
		session: session,
	}
}

func (a *toolAction) Describe() action.Descriptor { return a.desc }

func (a *toolAction) Execute(ctx context.Context, param any, target action.Target, handle action.ContextHandle) error {
	args := map[string]any{}
	switch p := param.(type) {
	case nil:
	case map[string]any:
		for k, v := range p {
			args[k] = v
		}
	default:
		return fmt.Errorf("mcpaction: %s: param must be an object, got %T", a.desc.ID, param)
	}
	if target != nil {
		args[TargetArg] = target.ID()
	}

	res, err := a.session.CallTool(ctx, &mcpsdk.CallToolParams{Name: a.tool, Arguments: args})
	if err != nil {
		return fmt.Errorf("mcpaction: call %s: %w", a.desc.ID, err)
	}

	text := textContent(res)
	if res.IsError {
		return fmt.Errorf("%w: %s: %s", ErrToolFailed, a.desc.ID, text)
	}
	if text != "" {
		observe.Logger(ctx).Debug("mcpaction: tool result", "action", a.desc.ID, "result", text)
	}
	handle.NotifyContextChanged()
	return nil
}

func textContent(res *mcpsdk.CallToolResult) string {
	var sb strings.Builder
	for _, c := range res.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	return sb.String()
}

// schemaToMap converts the SDK's schema value to a generic JSON object.
func schemaToMap(schema any) map[string]any {
	fallback := map[string]any{"type": "object"}
	if schema == nil {
		return fallback
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return fallback
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil || m == nil {
		return fallback
	}
	return m
}

// stripTarget removes TargetArg from the schema: the model never supplies it.
func stripTarget(schema map[string]any) {
	if props, ok := schema["properties"].(map[string]any); ok {
		delete(props, TargetArg)
	}
	if req, ok := schema["required"].([]any); ok {
		req = slices.DeleteFunc(req, func(v any) bool { return v == TargetArg })
		if len(req) == 0 {
			delete(schema, "required")
		} else {
			schema["required"] = req
		}
	}
}

func parameters(schema map[string]any) []action.Parameter {
	props, _ := schema["properties"].(map[string]any)
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	out := make([]action.Parameter, 0, len(keys))
	for _, k := range keys {
		p := action.Parameter{Key: k}
		if m, ok := props[k].(map[string]any); ok {
			p.Type, _ = m["type"].(string)
			p.Description, _ = m["description"].(string)
		}
		out = append(out, p)
	}
	return out
}
