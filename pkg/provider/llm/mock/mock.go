// Package mock is an in-memory [llm.Provider] for tests.
//
// Responses come from, in order of precedence: CompleteFunc, the queue filled
// by [Provider.Script], and finally the fixed CompleteResponse/CompleteErr
// pair. Every request is kept so tests can inspect what the model client sent.
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/stagehand/pkg/provider/llm"
)

var _ llm.Provider = (*Provider)(nil)

// Call is one recorded Complete request.
type Call struct {
	Req llm.CompletionRequest
}

// Provider answers Complete from its configured fields. The zero value
// returns (nil, nil). Configure fields before first use.
type Provider struct {
	CompleteResponse  *llm.CompletionResponse
	CompleteErr       error
	CompleteFunc      func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)
	ModelCapabilities llm.ModelCapabilities

	mu     sync.Mutex
	calls  []Call
	script []string
}

// Script queues plan texts. Each Complete consumes one until the queue is
// empty, after which the fixed response applies again.
func (p *Provider) Script(contents ...string) {
	p.mu.Lock()
	p.script = append(p.script, contents...)
	p.mu.Unlock()
}

func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	req.Messages = slices.Clone(req.Messages)

	p.mu.Lock()
	p.calls = append(p.calls, Call{Req: req})
	var scripted *llm.CompletionResponse
	if len(p.script) > 0 {
		scripted = &llm.CompletionResponse{Content: p.script[0], FinishReason: "stop"}
		p.script = p.script[1:]
	}
	p.mu.Unlock()

	switch {
	case p.CompleteFunc != nil:
		return p.CompleteFunc(ctx, req)
	case scripted != nil:
		return scripted, nil
	default:
		return p.CompleteResponse, p.CompleteErr
	}
}

func (p *Provider) Capabilities() llm.ModelCapabilities { return p.ModelCapabilities }

// Calls returns a snapshot of the recorded requests.
func (p *Provider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.calls)
}

// Reset forgets recorded requests and any unconsumed script.
func (p *Provider) Reset() {
	p.mu.Lock()
	p.calls, p.script = nil, nil
	p.mu.Unlock()
}
