package llm

import "strings"

// family matches model names by prefix. Order matters: the first matching
// prefix wins, so narrower prefixes come first.
type family struct {
	prefix string
	caps   ModelCapabilities
}

var families = []family{
	{"gpt-4o", ModelCapabilities{ContextWindow: 128_000, MaxOutputTokens: 16_384, SupportsJSONMode: true}},
	{"gpt-4.1", ModelCapabilities{ContextWindow: 1_047_576, MaxOutputTokens: 32_768, SupportsJSONMode: true}},
	{"gpt-4-turbo", ModelCapabilities{ContextWindow: 128_000, MaxOutputTokens: 4_096, SupportsJSONMode: true}},
	{"gpt-4", ModelCapabilities{ContextWindow: 8_192, MaxOutputTokens: 4_096, SupportsJSONMode: true}},
	{"gpt-3.5-turbo", ModelCapabilities{ContextWindow: 16_385, MaxOutputTokens: 4_096, SupportsJSONMode: true}},
	{"o1", ModelCapabilities{ContextWindow: 200_000, MaxOutputTokens: 100_000, SupportsJSONMode: true}},
	{"o3", ModelCapabilities{ContextWindow: 200_000, MaxOutputTokens: 100_000, SupportsJSONMode: true}},
	{"o4", ModelCapabilities{ContextWindow: 200_000, MaxOutputTokens: 100_000, SupportsJSONMode: true}},
	{"claude", ModelCapabilities{ContextWindow: 200_000, MaxOutputTokens: 8_192}},
	{"gemini-1.5-pro", ModelCapabilities{ContextWindow: 2_097_152, MaxOutputTokens: 8_192, SupportsJSONMode: true}},
	{"gemini", ModelCapabilities{ContextWindow: 1_048_576, MaxOutputTokens: 8_192, SupportsJSONMode: true}},
	{"mistral-large", ModelCapabilities{ContextWindow: 128_000, MaxOutputTokens: 8_192, SupportsJSONMode: true}},
	{"deepseek", ModelCapabilities{ContextWindow: 64_000, MaxOutputTokens: 8_192, SupportsJSONMode: true}},
}

// LookupCapabilities returns the capabilities of a well-known model family,
// or fallback when model is not recognised. Matching ignores case and a
// leading "models/" path segment.
func LookupCapabilities(model string, fallback ModelCapabilities) ModelCapabilities {
	name := strings.TrimPrefix(strings.ToLower(model), "models/")
	for _, f := range families {
		if strings.HasPrefix(name, f.prefix) {
			return f.caps
		}
	}
	return fallback
}
