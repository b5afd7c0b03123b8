package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/stagehand/internal/config"
	"github.com/MrWong99/stagehand/internal/resilience"
	"github.com/MrWong99/stagehand/pkg/provider/llm"
	"github.com/MrWong99/stagehand/pkg/provider/llm/anyllm"
	"github.com/MrWong99/stagehand/pkg/provider/llm/gemini"
	"github.com/MrWong99/stagehand/pkg/provider/llm/openai"
)

// RegisterProviders wires every built-in backend factory into reg.
//
// "openai" and "gemini" use their native SDKs; the other names go through
// any-llm. ctx is only used by backends whose client construction needs one.
func RegisterProviders(ctx context.Context, reg *config.Registry) {
	reg.Register("openai", func(e config.ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if e.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(e.BaseURL))
		}
		if org := optString(e.Options, "organization"); org != "" {
			opts = append(opts, openai.WithOrganization(org))
		}
		if d, err := time.ParseDuration(optString(e.Options, "timeout")); err == nil && d > 0 {
			opts = append(opts, openai.WithTimeout(d))
		}
		return openai.New(e.APIKey, e.Model, opts...)
	})

	reg.Register("gemini", func(e config.ProviderEntry) (llm.Provider, error) {
		var opts []gemini.Option
		if e.BaseURL != "" {
			opts = append(opts, gemini.WithBaseURL(e.BaseURL))
		}
		return gemini.New(ctx, e.APIKey, e.Model, opts...)
	})

	for _, name := range config.KnownProviders {
		if name == "openai" || name == "gemini" {
			continue
		}
		reg.Register(name, func(e config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			// ollama is addressed by URL and takes no key.
			if e.APIKey != "" && name != "ollama" {
				opts = append(opts, anyllmlib.WithAPIKey(e.APIKey))
			}
			if e.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(e.BaseURL))
			}
			return anyllm.New(name, e.Model, opts...)
		})
	}

	for _, name := range reg.Names() {
		slog.Debug("registered provider", "name", name)
	}
}

// BuildProvider creates the primary backend and its fallbacks and puts them
// behind one circuit-broken failover provider.
func BuildProvider(cfg *config.Config, reg *config.Registry) (*resilience.Provider, error) {
	bc := resilience.BreakerConfig{
		MaxFailures: cfg.Providers.Breaker.MaxFailures,
		CoolDown:    cfg.Providers.Breaker.CoolDown,
	}

	primary, err := reg.Create(cfg.Providers.LLM)
	if err != nil {
		return nil, fmt.Errorf("app: primary model: %w", err)
	}
	p := resilience.NewProvider(cfg.Providers.LLM.Name, primary, bc)
	slog.Info("provider created", "role", "primary", "provider", cfg.Providers.LLM.String())

	for i, fb := range cfg.Providers.Fallbacks {
		backend, err := reg.Create(fb)
		if err != nil {
			return nil, fmt.Errorf("app: fallback %d: %w", i, err)
		}
		p.AddFallback(fmt.Sprintf("%s#%d", fb.Name, i+1), backend)
		slog.Info("provider created", "role", "fallback", "provider", fb.String())
	}
	return p, nil
}

// optString reads a string option; anything else yields "".
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}
