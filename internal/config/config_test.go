package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/MrWong99/stagehand/internal/action/mcpaction"
	"github.com/MrWong99/stagehand/internal/config"
	"github.com/MrWong99/stagehand/pkg/provider/llm"
	llmmock "github.com/MrWong99/stagehand/pkg/provider/llm/mock"
)

const fullYAML = `
server:
  listen_addr: ":9090"
  log_level: debug
providers:
  llm:
    name: openai
    api_key: sk-secret
    model: gpt-4o-mini
  fallbacks:
    - name: ollama
      base_url: http://localhost:11434
      model: llama3.2
  breaker:
    max_failures: 3
    cool_down: 1m
model:
  temperature: 0.2
  max_tokens: 512
  history: 10
  goal: Entertain the audience
scene:
  file: scene.yaml
  watch: true
  fuzzy_threshold: 0.9
actions:
  move_timeout: 5s
prompts:
  queue_size: 8
  stdin: true
  discord:
    token: bot-token
    channel_id: "1234"
bridge:
  enabled: true
  timeout: 3s
  origin_patterns: ["localhost:*"]
mcp:
  servers:
    - name: lights
      transport: stdio
      command: /usr/local/bin/mcp-lights --verbose
      env:
        LIGHTS_BRIDGE: 10.0.0.2
`

func load(t *testing.T, doc string) (*config.Config, error) {
	t.Helper()
	return config.LoadFromReader(strings.NewReader(doc))
}

func TestLoadFromReader_Full(t *testing.T) {
	t.Parallel()

	cfg, err := load(t, fullYAML)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.ListenAddr != ":9090" || cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Providers.LLM.Model != "gpt-4o-mini" || len(cfg.Providers.Fallbacks) != 1 {
		t.Errorf("providers = %+v", cfg.Providers)
	}
	if cfg.Providers.Breaker.CoolDown != time.Minute {
		t.Errorf("cool_down = %v", cfg.Providers.Breaker.CoolDown)
	}
	if cfg.Model.TemperatureValue() != 0.2 || cfg.Model.MaxTokens != 512 || cfg.Model.History != 10 {
		t.Errorf("model = %+v", cfg.Model)
	}
	if cfg.Actions.MoveTimeout != 5*time.Second || cfg.Bridge.Timeout != 3*time.Second {
		t.Errorf("durations: move=%v bridge=%v", cfg.Actions.MoveTimeout, cfg.Bridge.Timeout)
	}
	if cfg.Prompts.Discord.GoalPrefix != "!goal" {
		t.Errorf("goal prefix = %q", cfg.Prompts.Discord.GoalPrefix)
	}
	want := []mcpaction.ServerConfig{{
		Name:      "lights",
		Transport: mcpaction.TransportStdio,
		Command:   "/usr/local/bin/mcp-lights --verbose",
		Env:       map[string]string{"LIGHTS_BRIDGE": "10.0.0.2"},
	}}
	if diff := cmp.Diff(want, cfg.MCP.Servers); diff != "" {
		t.Errorf("mcp servers (-want +got):\n%s", diff)
	}
}

func TestApplyDefaults(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		model    string
		wantTemp float64
		wantMax  int
		wantHist int
	}{
		{"unset", "", 0.7, 1000, 20},
		{"zero temperature kept", "model: {temperature: 0}", 0, 1000, 20},
		{"clamped high", "model: {temperature: 1.5, max_tokens: 100000}", 1, 8192, 20},
		{"clamped low", "model: {temperature: -0.3, max_tokens: -5}", 0, 1000, 20},
		{"history disabled", "model: {history: -1}", 0.7, 1000, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg, err := load(t, "providers: {llm: {name: openai}}\n"+tt.model)
			if err != nil {
				t.Fatal(err)
			}
			m := cfg.Model
			if m.TemperatureValue() != tt.wantTemp || m.MaxTokens != tt.wantMax || m.History != tt.wantHist {
				t.Errorf("model = temp %v, max %d, history %d", m.TemperatureValue(), m.MaxTokens, m.History)
			}
			if cfg.Server.ListenAddr != config.DefaultListenAddr || cfg.Server.LogLevel != config.LogInfo || cfg.Server.ServiceName != "stagehand" {
				t.Errorf("server defaults = %+v", cfg.Server)
			}
		})
	}
}

func TestLoadFromReader_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		doc  string
		want []string
	}{
		{"unknown key", "providers: {llm: {name: openai}}\nactors: []", []string{"field actors not found"}},
		{"empty document", "", []string{"providers.llm.name is required"}},
		{"bad log level", "server: {log_level: loud}\nproviders: {llm: {name: openai}}", []string{"server.log_level"}},
		{
			name: "many problems",
			doc: `
providers:
  llm: {name: openai}
  fallbacks: [{model: x}]
scene: {fuzzy_threshold: 2, watch: true}
bridge: {timeout: -1s}
mcp:
  servers:
    - {name: a, transport: stdio, command: x}
    - {name: a, transport: stdio, command: y}
    - {name: b, transport: pigeon}
`,
			want: []string{
				"providers.fallbacks[0].name is required",
				"scene.fuzzy_threshold",
				"scene.watch requires scene.file",
				"bridge.timeout",
				`mcp.servers[1].name "a" duplicates mcp.servers[0]`,
				"mcp.servers[2]: mcpaction: unknown transport",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := load(t, tt.doc)
			if err == nil {
				t.Fatal("expected error")
			}
			for _, w := range tt.want {
				if !strings.Contains(err.Error(), w) {
					t.Errorf("error %q does not contain %q", err, w)
				}
			}
		})
	}
}

func TestLoad_File(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "stagehand.yaml")
	if err := os.WriteFile(path, []byte(fullYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := config.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file err = %v", err)
	}
}

func TestProviderEntry_StringHidesKey(t *testing.T) {
	t.Parallel()

	e := config.ProviderEntry{Name: "openai", Model: "gpt-4o", APIKey: "sk-secret"}
	s := e.String()
	if strings.Contains(s, "sk-secret") || !strings.Contains(s, "api_key set") {
		t.Errorf("String() = %q", s)
	}
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	r := config.NewRegistry()
	var got config.ProviderEntry
	want := &llmmock.Provider{}
	r.Register("openai", func(e config.ProviderEntry) (llm.Provider, error) {
		got = e
		return want, nil
	})
	r.Register("broken", func(config.ProviderEntry) (llm.Provider, error) {
		return nil, errors.New("no key")
	})

	p, err := r.Create(config.ProviderEntry{Name: "openai", Model: "gpt-4o"})
	if err != nil || p != want || got.Model != "gpt-4o" {
		t.Errorf("Create = %v, %v (entry %+v)", p, err, got)
	}
	if _, err := r.Create(config.ProviderEntry{Name: "nope"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("unknown name err = %v", err)
	}
	if _, err := r.Create(config.ProviderEntry{Name: "broken", APIKey: "sk-secret"}); err == nil || strings.Contains(err.Error(), "sk-secret") {
		t.Errorf("factory err = %v", err)
	}
	if diff := cmp.Diff([]string{"broken", "openai"}, r.Names()); diff != "" {
		t.Errorf("names (-want +got):\n%s", diff)
	}
}
