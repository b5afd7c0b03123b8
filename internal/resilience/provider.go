package resilience

import (
	"context"

	"github.com/MrWong99/stagehand/pkg/provider/llm"
)

// Provider is an [llm.Provider] that fails over across several backends.
type Provider struct {
	group *Group[llm.Provider]
}

var _ llm.Provider = (*Provider)(nil)

// NewProvider returns a Provider that prefers primary.
func NewProvider(primaryName string, primary llm.Provider, cfg BreakerConfig) *Provider {
	return &Provider{group: NewGroup(primaryName, primary, cfg)}
}

// AddFallback appends a backend tried after the ones already added.
func (p *Provider) AddFallback(name string, fallback llm.Provider) {
	p.group.Add(name, fallback)
}

// Complete sends req to the first backend that answers.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return Do(ctx, p.group, func(ctx context.Context, b llm.Provider) (*llm.CompletionResponse, error) {
		return b.Complete(ctx, req)
	})
}

// Capabilities reports the primary's capabilities.
func (p *Provider) Capabilities() llm.ModelCapabilities {
	return p.group.members[0].value.Capabilities()
}

// Backends returns the backend names in try order.
func (p *Provider) Backends() []string { return p.group.Names() }

// States returns the breaker state of every backend.
func (p *Provider) States() map[string]State { return p.group.States() }
