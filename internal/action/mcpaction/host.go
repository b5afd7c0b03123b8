// Package mcpaction exposes the tools of Model Context Protocol servers as
// actions.
//
// Every tool of a connected server becomes an [action.Action] with the id
// "{server}.{tool}". The resolved target id is injected into the tool
// arguments under the "target" key, so a plan can address tools like any
// other scene action:
//
//	h := mcpaction.New()
//	err := h.Connect(ctx, mcpaction.ServerConfig{
//	    Name:      "lights",
//	    Transport: mcpaction.TransportStdio,
//	    Command:   "/usr/local/bin/mcp-lights",
//	})
//	for _, a := range h.Actions() {
//	    registry.Register(a)
//	}
//	defer h.Close()
package mcpaction

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"slices"
	"strings"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/stagehand/internal/action"
)

// Transport selects the connection mechanism for an MCP server.
type Transport string

const (
	// TransportStdio spawns a subprocess and talks over stdin/stdout.
	TransportStdio Transport = "stdio"

	// TransportStreamableHTTP uses the MCP Streamable HTTP protocol.
	TransportStreamableHTTP Transport = "streamable-http"
)

// IsValid reports whether t is a recognised transport.
func (t Transport) IsValid() bool {
	return t == TransportStdio || t == TransportStreamableHTTP
}

// ServerConfig describes one MCP server.
type ServerConfig struct {
	// Name prefixes the action ids of the server's tools. Must not contain
	// a dot.
	Name string `yaml:"name"`

	Transport Transport `yaml:"transport"`

	// Command is the executable plus arguments for stdio servers.
	Command string `yaml:"command"`

	// Env is appended to the subprocess environment for stdio servers.
	Env map[string]string `yaml:"env"`

	// URL is the endpoint of a streamable-http server.
	URL string `yaml:"url"`

	// Token, if set, is sent as a Bearer token to streamable-http servers.
	Token string `yaml:"token"`
}

// Validate checks cfg without connecting.
func (cfg ServerConfig) Validate() error {
	switch {
	case cfg.Name == "":
		return errors.New("mcpaction: server name is required")
	case strings.Contains(cfg.Name, "."):
		return fmt.Errorf("mcpaction: server name %q must not contain '.'", cfg.Name)
	case !cfg.Transport.IsValid():
		return fmt.Errorf("mcpaction: unknown transport %q for server %q", cfg.Transport, cfg.Name)
	case cfg.Transport == TransportStdio && strings.TrimSpace(cfg.Command) == "":
		return fmt.Errorf("mcpaction: stdio server %q requires a command", cfg.Name)
	case cfg.Transport == TransportStreamableHTTP && cfg.URL == "":
		return fmt.Errorf("mcpaction: streamable-http server %q requires a url", cfg.Name)
	}
	return nil
}

// ToolCaller is the part of an MCP client session the actions use.
// *mcpsdk.ClientSession satisfies it.
type ToolCaller interface {
	CallTool(ctx context.Context, params *mcpsdk.CallToolParams) (*mcpsdk.CallToolResult, error)
	Close() error
}

var _ ToolCaller = (*mcpsdk.ClientSession)(nil)

type server struct {
	session ToolCaller
	tools   []*mcpsdk.Tool
}

// Host owns the MCP client sessions. The zero value is not usable; create
// instances with [New].
type Host struct {
	mu      sync.RWMutex
	servers map[string]server
	client  *mcpsdk.Client
}

// New returns a Host with no servers.
func New() *Host {
	return &Host{
		servers: make(map[string]server),
		client:  mcpsdk.NewClient(&mcpsdk.Implementation{Name: "stagehand", Version: "1.0.0"}, nil),
	}
}

// Connect opens a session to the server described by cfg and imports its
// tool list. Connecting a name twice replaces the earlier session.
func (h *Host) Connect(ctx context.Context, cfg ServerConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	var transport mcpsdk.Transport
	switch cfg.Transport {
	case TransportStdio:
		fields := strings.Fields(cfg.Command)
		cmd := exec.CommandContext(ctx, fields[0], fields[1:]...)
		if len(cfg.Env) > 0 {
			cmd.Env = os.Environ()
			for k, v := range cfg.Env {
				cmd.Env = append(cmd.Env, k+"="+v)
			}
		}
		transport = &mcpsdk.CommandTransport{Command: cmd}
	case TransportStreamableHTTP:
		t := &mcpsdk.StreamableClientTransport{Endpoint: cfg.URL}
		if cfg.Token != "" {
			t.HTTPClient = &http.Client{Transport: bearer{token: cfg.Token, next: http.DefaultTransport}}
		}
		transport = t
	}

	session, err := h.client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("mcpaction: connect %q: %w", cfg.Name, err)
	}

	var tools []*mcpsdk.Tool
	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			_ = session.Close()
			return fmt.Errorf("mcpaction: list tools of %q: %w", cfg.Name, err)
		}
		tools = append(tools, tool)
	}

	h.add(cfg.Name, session, tools)
	return nil
}

func (h *Host) add(name string, session ToolCaller, tools []*mcpsdk.Tool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if old, ok := h.servers[name]; ok {
		_ = old.session.Close()
	}
	h.servers[name] = server{session: session, tools: tools}
}

// Servers returns the connected server names in sorted order.
func (h *Host) Servers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.servers))
	for name := range h.servers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Actions returns one action per imported tool, ordered by id.
func (h *Host) Actions() []action.Action {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []action.Action
	for name, srv := range h.servers {
		for _, t := range srv.tools {
			out = append(out, newToolAction(name, t, srv.session))
		}
	}
	slices.SortFunc(out, func(a, b action.Action) int {
		return strings.Compare(a.Describe().ID, b.Describe().ID)
	})
	return out
}

// Close ends every session.
func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var errs []error
	for name, srv := range h.servers {
		if err := srv.session.Close(); err != nil {
			errs = append(errs, fmt.Errorf("mcpaction: close %q: %w", name, err))
		}
	}
	clear(h.servers)
	return errors.Join(errs...)
}

type bearer struct {
	token string
	next  http.RoundTripper
}

func (b bearer) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.Header.Set("Authorization", "Bearer "+b.token)
	return b.next.RoundTrip(r)
}
