// Package llm is the boundary between Stagehand and a language model.
//
// The model client only ever calls [Provider.Complete]: a blocking request
// carrying the conversation so far and the system prompt, answered with the
// plan text. Concrete backends live in subpackages (openai, gemini, anyllm)
// and a test double in mock. Implementations must be safe for concurrent use.
package llm

import "context"

// Usage is the token accounting a backend reports for one exchange. Units are
// the backend's own and are not comparable across providers.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest is one model call. Messages must not be empty; its last
// entry is the user turn being answered.
type CompletionRequest struct {
	Messages []Message

	// SystemPrompt is sent as the backend's system instruction, or as a
	// leading system message where there is no dedicated field.
	SystemPrompt string

	// Temperature and MaxTokens leave the backend default in place when zero.
	Temperature float64
	MaxTokens   int
}

// CompletionResponse is the model's answer.
type CompletionResponse struct {
	Content string

	// FinishReason is the backend's stop reason in lower case ("stop",
	// "length"), or empty when it reports none.
	FinishReason string

	Usage Usage
}

// Provider is a language model backend.
type Provider interface {
	// Complete returns the full response to req. Cancelling ctx aborts the
	// call with a non-nil error.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Capabilities describes the configured model. It does not change over
	// the provider's lifetime.
	Capabilities() ModelCapabilities
}
