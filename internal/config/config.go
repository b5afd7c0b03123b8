// Package config defines the Stagehand configuration file, its loader and
// validation, the model provider registry and a polling file watcher for
// hot reload.
package config

import (
	"fmt"
	"time"

	"github.com/MrWong99/stagehand/internal/action/mcpaction"
)

// Clamp bounds applied by [ApplyDefaults].
const (
	DefaultMaxTokens   = 1000
	MaxMaxTokens       = 8192
	DefaultTemperature = 0.7
	DefaultHistory     = 20
	DefaultListenAddr  = ":8080"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root of the YAML configuration file.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Model     ModelConfig     `yaml:"model"`
	Scene     SceneConfig     `yaml:"scene"`
	Actions   ActionsConfig   `yaml:"actions"`
	Prompts   PromptsConfig   `yaml:"prompts"`
	Bridge    BridgeConfig    `yaml:"bridge"`
	MCP       MCPConfig       `yaml:"mcp"`
}

// ServerConfig holds the HTTP listener and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address for /prompt, /bridge, the health probes
	// and /metrics. Default ":8080".
	ListenAddr string `yaml:"listen_addr"`

	LogLevel LogLevel `yaml:"log_level"`

	// ServiceName is reported in telemetry. Default "stagehand".
	ServiceName string `yaml:"service_name"`
}

// ProvidersConfig selects the model backend and its fallbacks.
type ProvidersConfig struct {
	LLM ProviderEntry `yaml:"llm"`

	// Fallbacks are tried in order when the primary fails or its breaker is
	// open.
	Fallbacks []ProviderEntry `yaml:"fallbacks"`

	// Breaker tunes the per-backend circuit breaker.
	Breaker BreakerConfig `yaml:"breaker"`
}

// ProviderEntry configures one model backend. Name selects the factory in
// the [Registry].
type ProviderEntry struct {
	Name    string         `yaml:"name"`
	APIKey  string         `yaml:"api_key"`
	BaseURL string         `yaml:"base_url"`
	Model   string         `yaml:"model"`
	Options map[string]any `yaml:"options"`
}

// String renders e without the API key.
func (e ProviderEntry) String() string {
	key := "unset"
	if e.APIKey != "" {
		key = "set"
	}
	return fmt.Sprintf("%s/%s (api_key %s)", e.Name, e.Model, key)
}

// BreakerConfig mirrors resilience.BreakerConfig in file form.
type BreakerConfig struct {
	MaxFailures int           `yaml:"max_failures"`
	CoolDown    time.Duration `yaml:"cool_down"`
}

// ModelConfig holds sampling and conversation settings. All of them can be
// changed by hot reload.
type ModelConfig struct {
	// Temperature is clamped to [0, 1]. Nil means 0.7.
	Temperature *float64 `yaml:"temperature"`

	// MaxTokens is clamped to [1, 8192]. Zero means 1000.
	MaxTokens int `yaml:"max_tokens"`

	// History is the number of stored conversation messages. Zero means 20;
	// negative disables history.
	History int `yaml:"history"`

	// Goal is the standing goal attached to prompts that carry none.
	Goal string `yaml:"goal"`
}

// TemperatureValue returns the effective temperature.
func (m ModelConfig) TemperatureValue() float64 {
	if m.Temperature == nil {
		return DefaultTemperature
	}
	return *m.Temperature
}

// SceneConfig locates the scene file.
type SceneConfig struct {
	// File is a YAML scene description. Empty starts with an empty scene
	// that a connected host fills.
	File string `yaml:"file"`

	// Watch reloads File when it changes.
	Watch bool `yaml:"watch"`

	// FuzzyThreshold is the minimum Jaro-Winkler similarity for target
	// resolution. Zero keeps the scene default.
	FuzzyThreshold float64 `yaml:"fuzzy_threshold"`
}

// ActionsConfig tunes the built-in actions.
type ActionsConfig struct {
	MoveTimeout time.Duration `yaml:"move_timeout"`
}

// PromptsConfig configures the prompt queue and its feeders.
type PromptsConfig struct {
	// QueueSize bounds pending prompts. Zero keeps the queue default.
	QueueSize int `yaml:"queue_size"`

	// Stdin feeds one prompt per line from standard input.
	Stdin bool `yaml:"stdin"`

	Discord DiscordConfig `yaml:"discord"`
}

// DiscordConfig enables the Discord prompt source when Token is set.
type DiscordConfig struct {
	Token      string `yaml:"token"`
	ChannelID  string `yaml:"channel_id"`
	GoalPrefix string `yaml:"goal_prefix"`
}

// BridgeConfig configures the host WebSocket bridge.
type BridgeConfig struct {
	Enabled bool `yaml:"enabled"`

	// Timeout bounds one forwarded command. Zero keeps the bridge default.
	Timeout time.Duration `yaml:"timeout"`

	// OriginPatterns lists accepted Origin host patterns.
	OriginPatterns []string `yaml:"origin_patterns"`
}

// MCPConfig lists the MCP servers whose tools become actions.
type MCPConfig struct {
	Servers []mcpaction.ServerConfig `yaml:"servers"`
}
