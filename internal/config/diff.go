package config

// Changes lists the settings that differ between two configs and can be
// applied without a restart. Everything else needs one.
type Changes struct {
	LogLevel bool
	Goal     bool
	Sampling bool
	History  bool

	// Restart is set when a setting outside the hot-reloadable ones changed.
	Restart bool
}

// Empty reports whether nothing changed.
func (c Changes) Empty() bool {
	return !c.LogLevel && !c.Goal && !c.Sampling && !c.History && !c.Restart
}

// Diff compares two defaulted configs.
func Diff(old, next *Config) Changes {
	var c Changes
	c.LogLevel = old.Server.LogLevel != next.Server.LogLevel
	c.Goal = old.Model.Goal != next.Model.Goal
	c.Sampling = old.Model.TemperatureValue() != next.Model.TemperatureValue() ||
		old.Model.MaxTokens != next.Model.MaxTokens
	c.History = old.Model.History != next.Model.History

	o, n := *old, *next
	o.Server.LogLevel, n.Server.LogLevel = "", ""
	o.Model, n.Model = ModelConfig{}, ModelConfig{}
	c.Restart = !equalRest(&o, &n)
	return c
}

func equalRest(a, b *Config) bool {
	return a.Server == b.Server &&
		equalProviders(a.Providers, b.Providers) &&
		a.Scene == b.Scene &&
		a.Actions == b.Actions &&
		a.Prompts == b.Prompts &&
		equalBridge(a.Bridge, b.Bridge) &&
		equalMCP(a.MCP, b.MCP)
}

func equalProviders(a, b ProvidersConfig) bool {
	if a.Breaker != b.Breaker || len(a.Fallbacks) != len(b.Fallbacks) || !equalEntry(a.LLM, b.LLM) {
		return false
	}
	for i := range a.Fallbacks {
		if !equalEntry(a.Fallbacks[i], b.Fallbacks[i]) {
			return false
		}
	}
	return true
}

// equalEntry ignores Options.
func equalEntry(a, b ProviderEntry) bool {
	return a.Name == b.Name && a.APIKey == b.APIKey && a.BaseURL == b.BaseURL && a.Model == b.Model
}

func equalBridge(a, b BridgeConfig) bool {
	if a.Enabled != b.Enabled || a.Timeout != b.Timeout || len(a.OriginPatterns) != len(b.OriginPatterns) {
		return false
	}
	for i := range a.OriginPatterns {
		if a.OriginPatterns[i] != b.OriginPatterns[i] {
			return false
		}
	}
	return true
}

func equalMCP(a, b MCPConfig) bool {
	if len(a.Servers) != len(b.Servers) {
		return false
	}
	for i := range a.Servers {
		x, y := a.Servers[i], b.Servers[i]
		if x.Name != y.Name || x.Transport != y.Transport || x.Command != y.Command || x.URL != y.URL || x.Token != y.Token || len(x.Env) != len(y.Env) {
			return false
		}
		for k, v := range x.Env {
			if y.Env[k] != v {
				return false
			}
		}
	}
	return true
}
