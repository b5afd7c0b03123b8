package gemini

import (
	"context"
	"testing"

	"google.golang.org/genai"

	"github.com/MrWong99/stagehand/pkg/provider/llm"
)

func TestBuildRequest(t *testing.T) {
	t.Parallel()

	contents, gcfg, err := buildRequest(llm.CompletionRequest{
		SystemPrompt: "You control objects.",
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "Be brief."},
			{Role: llm.RoleUser, Content: "move Cube1"},
			{Role: llm.RoleAssistant, Content: "[]"},
			{Role: llm.RoleUser, Content: "again"},
		},
		Temperature: 0.5,
		MaxTokens:   512,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(contents) != 3 {
		t.Fatalf("want 3 contents, got %d", len(contents))
	}
	wantRoles := []string{genai.RoleUser, genai.RoleModel, genai.RoleUser}
	for i, c := range contents {
		if c.Role != wantRoles[i] {
			t.Errorf("contents[%d].Role = %q, want %q", i, c.Role, wantRoles[i])
		}
	}
	if gcfg.SystemInstruction == nil || len(gcfg.SystemInstruction.Parts) == 0 {
		t.Fatal("system instruction not set")
	}
	if got := gcfg.SystemInstruction.Parts[0].Text; got != "You control objects.\n\nBe brief." {
		t.Errorf("system instruction = %q", got)
	}
	if gcfg.Temperature == nil || *gcfg.Temperature != 0.5 {
		t.Errorf("temperature = %v, want 0.5", gcfg.Temperature)
	}
	if gcfg.MaxOutputTokens != 512 {
		t.Errorf("max output tokens = %d, want 512", gcfg.MaxOutputTokens)
	}
}

func TestBuildRequest_Errors(t *testing.T) {
	t.Parallel()

	t.Run("no messages", func(t *testing.T) {
		t.Parallel()
		if _, _, err := buildRequest(llm.CompletionRequest{SystemPrompt: "x"}); err == nil {
			t.Fatal("expected error")
		}
	})
	t.Run("unknown role", func(t *testing.T) {
		t.Parallel()
		_, _, err := buildRequest(llm.CompletionRequest{Messages: []llm.Message{{Role: "tool", Content: "x"}}})
		if err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestNew_RequiresAPIKey(t *testing.T) {
	t.Parallel()
	if _, err := New(context.Background(), "", ""); err == nil {
		t.Fatal("expected error for empty api key")
	}
}

func TestCapabilities(t *testing.T) {
	t.Parallel()
	p := &Provider{model: "gemini-1.5-pro"}
	if got := p.Capabilities().ContextWindow; got != 2_097_152 {
		t.Errorf("context window = %d", got)
	}
	p = &Provider{model: DefaultModel}
	if !p.Capabilities().SupportsJSONMode {
		t.Error("expected json mode support")
	}
}
