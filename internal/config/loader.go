package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// KnownProviders lists the backend names registered by the stagehand
// binary. Unknown names only produce a warning so that custom builds can
// register their own.
var KnownProviders = []string{"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"}

// Load reads, defaults and validates the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("config: %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r, rejects unknown keys, applies
// defaults and validates the result.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills unset fields and clamps the model settings into range.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.ServiceName == "" {
		cfg.Server.ServiceName = "stagehand"
	}

	m := &cfg.Model
	switch {
	case m.MaxTokens <= 0:
		m.MaxTokens = DefaultMaxTokens
	case m.MaxTokens > MaxMaxTokens:
		m.MaxTokens = MaxMaxTokens
	}
	t := m.TemperatureValue()
	t = min(max(t, 0), 1)
	m.Temperature = &t
	switch {
	case m.History == 0:
		m.History = DefaultHistory
	case m.History < 0:
		m.History = 0
	}

	if cfg.Prompts.Discord.GoalPrefix == "" {
		cfg.Prompts.Discord.GoalPrefix = "!goal"
	}
}

// Validate reports every problem in cfg at once.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm.name is required"))
	}
	warnUnknownProvider("providers.llm", cfg.Providers.LLM.Name)
	for i, fb := range cfg.Providers.Fallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.fallbacks[%d].name is required", i))
		}
		warnUnknownProvider(fmt.Sprintf("providers.fallbacks[%d]", i), fb.Name)
	}
	if cfg.Providers.Breaker.MaxFailures < 0 || cfg.Providers.Breaker.CoolDown < 0 {
		errs = append(errs, errors.New("providers.breaker values must not be negative"))
	}

	if th := cfg.Scene.FuzzyThreshold; th < 0 || th > 1 {
		errs = append(errs, fmt.Errorf("scene.fuzzy_threshold %.2f is out of range [0, 1]", th))
	}
	if cfg.Scene.Watch && cfg.Scene.File == "" {
		errs = append(errs, errors.New("scene.watch requires scene.file"))
	}
	if cfg.Scene.File == "" && !cfg.Bridge.Enabled {
		slog.Warn("no scene file and bridge disabled; the scene stays empty")
	}

	if cfg.Actions.MoveTimeout < 0 {
		errs = append(errs, errors.New("actions.move_timeout must not be negative"))
	}
	if cfg.Prompts.QueueSize < 0 {
		errs = append(errs, errors.New("prompts.queue_size must not be negative"))
	}
	if d := cfg.Prompts.Discord; d.Token != "" && d.ChannelID == "" {
		slog.Warn("prompts.discord.channel_id is empty; messages from every channel become prompts")
	}
	if cfg.Bridge.Timeout < 0 {
		errs = append(errs, errors.New("bridge.timeout must not be negative"))
	}

	seen := make(map[string]int, len(cfg.MCP.Servers))
	for i, srv := range cfg.MCP.Servers {
		if err := srv.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("mcp.servers[%d]: %w", i, err))
		}
		if prev, ok := seen[srv.Name]; ok && srv.Name != "" {
			errs = append(errs, fmt.Errorf("mcp.servers[%d].name %q duplicates mcp.servers[%d]", i, srv.Name, prev))
		}
		seen[srv.Name] = i
	}

	return errors.Join(errs...)
}

func warnUnknownProvider(field, name string) {
	if name == "" || slices.Contains(KnownProviders, name) {
		return
	}
	slog.Warn("config: unknown provider name", "field", field, "name", name, "known", KnownProviders)
}
