package model

import (
	"fmt"
	"strings"

	"github.com/MrWong99/stagehand/internal/action"
	"github.com/MrWong99/stagehand/internal/prompt"
	"github.com/MrWong99/stagehand/internal/scene"
)

// SystemPrompt builds the instructions that teach the model the plan format
// and the available actions.
func SystemPrompt(descs []action.Descriptor) string {
	var b strings.Builder
	line := func(s string) {
		b.WriteString(s)
		b.WriteByte('\n')
	}

	line("You are an AI agent that controls objects in a 3D scene.")

	line("\n=== IMPORTANT EXECUTION BEHAVIOR ===")
	line("You must return an ARRAY OF ARRAYS. Each inner array is a sequence that executes sequentially.")
	line("Multiple sequences (outer arrays) execute IN PARALLEL (simultaneously).")
	line("")
	line("- Actions within a sequence execute one after another (sequential)")
	line("- Different sequences execute at the same time (parallel)")
	line("- This allows choreography: e.g. Cube1 walks a path while Cube2 walks a different path at the same time")

	line("\n=== AVAILABLE ACTIONS ===")
	if len(descs) == 0 {
		line("(none)")
	} else {
		line(action.Catalog(descs))
	}

	line("\n=== RESPONSE FORMAT ===")
	line("Always respond with a JSON ARRAY OF ARRAYS. Each inner array contains actions to execute sequentially.")
	line("Each action must have:")
	line("- actionId: the action to perform")
	line("- targetId: the objectName of the scene object to perform the action on")
	line("- param: action-specific parameters as a JSON object (not a string)")

	line("\n=== IMPORTANT: PARAM FIELD FORMAT ===")
	line("The param field must contain a JSON object directly, NOT a stringified JSON.")
	line("- Use regular JSON syntax for the param object")
	line("- Do NOT wrap the param value in quotes")
	line("- The param is a nested JSON object within each action")

	line("\nExample - Two objects moving in parallel paths:")
	line(`[`)
	line(`  [`)
	line(`    {"actionId":"move","targetId":"Cube1","param":{"destination":{"x":-2.5,"y":0,"z":3.0}}},`)
	line(`    {"actionId":"move","targetId":"Cube1","param":{"destination":{"x":-2.5,"y":0,"z":-3.0}}}`)
	line(`  ],`)
	line(`  [`)
	line(`    {"actionId":"move","targetId":"Cube2","param":{"destination":{"x":2.5,"y":0,"z":-3.0}}},`)
	line(`    {"actionId":"move","targetId":"Cube2","param":{"destination":{"x":2.5,"y":0,"z":3.0}}}`)
	line(`  ]`)
	line(`]`)

	line("\nExample - Sequential movement for one object:")
	line(`[`)
	line(`  [`)
	line(`    {"actionId":"move","targetId":"Cube1","param":{"destination":{"x":0,"y":0,"z":5}}},`)
	line(`    {"actionId":"move","targetId":"Cube1","param":{"destination":{"x":5,"y":0,"z":5}}},`)
	line(`    {"actionId":"move","targetId":"Cube1","param":{"destination":{"x":5,"y":0,"z":0}}}`)
	line(`  ]`)
	line(`]`)

	line("\n=== CRITICAL RULES ===")
	line("1. ALWAYS return an ARRAY OF ARRAYS (even for single actions: [[{...}]])")
	line("2. The param field is a JSON object, NOT a string")
	line("3. Only respond with the raw JSON array, no additional text")
	line("4. No markdown formatting, no code blocks, no backticks")
	line("5. Response must start with [ and end with ]")
	line("6. Each action object must be valid JSON")
	line("7. Only use actions listed in availableActions of the target object")

	return b.String()
}

// FormatRequest renders the user turn for one cycle: the scene snapshot
// followed by the prompt, prefixed with the goal when one is set.
func FormatRequest(p prompt.Prompt, sc scene.Context) (string, error) {
	ctxJSON, err := sc.JSON()
	if err != nil {
		return "", fmt.Errorf("model: format request: %w", err)
	}

	text := p.Text
	if p.Goal != "" {
		text = fmt.Sprintf("Goal: %s\n\nCurrent request: %s", p.Goal, p.Text)
	}
	return fmt.Sprintf("Current scene context:\n%s\n\nUser request:\n%s\n", ctxJSON, text), nil
}
