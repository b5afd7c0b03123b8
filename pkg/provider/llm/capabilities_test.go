package llm

import "testing"

func TestLookupCapabilities(t *testing.T) {
	t.Parallel()

	local := ModelCapabilities{ContextWindow: 32_000, MaxOutputTokens: 2_048}
	tests := []struct {
		model      string
		ctxWindow  int
		maxOutput  int
		jsonOutput bool
	}{
		{"gpt-4o-mini", 128_000, 16_384, true},
		{"GPT-4-Turbo", 128_000, 4_096, true},
		{"gpt-4", 8_192, 4_096, true},
		{"o3-mini", 200_000, 100_000, true},
		{"claude-3-5-haiku-latest", 200_000, 8_192, false},
		{"models/gemini-1.5-pro-002", 2_097_152, 8_192, true},
		{"gemini-2.0-flash", 1_048_576, 8_192, true},
		{"qwen2.5:7b", 32_000, 2_048, false},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			t.Parallel()
			got := LookupCapabilities(tt.model, local)
			if got.ContextWindow != tt.ctxWindow || got.MaxOutputTokens != tt.maxOutput || got.SupportsJSONMode != tt.jsonOutput {
				t.Errorf("LookupCapabilities(%q) = %+v", tt.model, got)
			}
		})
	}
}
