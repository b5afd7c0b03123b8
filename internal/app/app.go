// Package app wires the Stagehand subsystems into a running process.
//
// New builds everything from the config: scene store, prompt queue, action
// registry (built-ins plus MCP tools), model client, scheduler, orchestrator
// loop, host bridge and the HTTP surface. Run serves until the context is
// done; Shutdown releases what New acquired. Apply hot-reloads the settings
// that do not need a restart.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/stagehand/internal/action"
	"github.com/MrWong99/stagehand/internal/action/builtin"
	"github.com/MrWong99/stagehand/internal/action/mcpaction"
	"github.com/MrWong99/stagehand/internal/agent"
	"github.com/MrWong99/stagehand/internal/bridge"
	"github.com/MrWong99/stagehand/internal/config"
	"github.com/MrWong99/stagehand/internal/health"
	"github.com/MrWong99/stagehand/internal/model"
	"github.com/MrWong99/stagehand/internal/observe"
	"github.com/MrWong99/stagehand/internal/prompt"
	"github.com/MrWong99/stagehand/internal/resilience"
	"github.com/MrWong99/stagehand/internal/scene"
	"github.com/MrWong99/stagehand/internal/scheduler"
	"github.com/MrWong99/stagehand/pkg/provider/llm"
)

const shutdownGrace = 5 * time.Second

// breakerStates is implemented by [resilience.Provider].
type breakerStates interface {
	States() map[string]resilience.State
}

// App owns every subsystem.
type App struct {
	cfg     *config.Config
	model   llm.Provider
	metrics *observe.Metrics
	level   *slog.LevelVar
	stdin   io.Reader
	scrape  http.Handler

	store    *scene.Store
	queue    *prompt.Queue
	registry *action.Registry
	client   *model.Client
	agent    *agent.Agent
	bridge   *bridge.Bridge
	mcp      *mcpaction.Host
	discord  *prompt.Discord
	watcher  *scene.FileWatcher
	health   *health.Handler
	server   *http.Server

	addrMu sync.Mutex
	addr   net.Addr

	closers  []func() error
	stopOnce sync.Once
}

// Option configures an [App].
type Option func(*App)

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLevelVar lets Apply change the process log level.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// WithStdin feeds one prompt per line from r while running. Only used when
// prompts.stdin is enabled.
func WithStdin(r io.Reader) Option {
	return func(a *App) { a.stdin = r }
}

// WithMetricsHandler serves h on /metrics. Default: [promhttp.Handler] over
// the default Prometheus registry.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.scrape = h }
}

// WithMCPHost replaces the MCP host New would create.
func WithMCPHost(h *mcpaction.Host) Option {
	return func(a *App) { a.mcp = h }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New builds the application. provider is the model backend, usually a
// [resilience.Provider] built by [BuildProvider].
func New(ctx context.Context, cfg *config.Config, provider llm.Provider, opts ...Option) (*App, error) {
	if provider == nil {
		return nil, errors.New("app: model provider is required")
	}
	a := &App{cfg: cfg, model: provider}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.scrape == nil {
		a.scrape = promhttp.Handler()
	}

	// ── 1. Scene ─────────────────────────────────────────────────────────
	if err := a.initScene(); err != nil {
		return nil, fmt.Errorf("app: init scene: %w", err)
	}

	// ── 2. Prompts ───────────────────────────────────────────────────────
	var qopts []prompt.QueueOption
	if n := cfg.Prompts.QueueSize; n > 0 {
		qopts = append(qopts, prompt.WithCapacity(n))
	}
	a.queue = prompt.NewQueue(append(qopts, prompt.WithGoal(cfg.Model.Goal))...)

	// ── 3. Actions ───────────────────────────────────────────────────────
	if err := a.initActions(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init actions: %w", err)
	}

	// ── 4. Model client ──────────────────────────────────────────────────
	client, err := model.NewClient(provider, model.SystemPrompt(a.registry.Descriptors()),
		model.WithSession(model.NewSession(cfg.Model.History)),
		model.WithSampling(cfg.Model.TemperatureValue(), cfg.Model.MaxTokens),
		model.WithMetrics(a.metrics),
		model.WithProviderName(cfg.Providers.LLM.Name),
	)
	if err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: %w", err)
	}
	a.client = client

	// ── 5. Orchestrator ──────────────────────────────────────────────────
	sched := scheduler.New(a.registry, a.store, a.store, scheduler.WithMetrics(a.metrics))
	a.agent, err = agent.New(agent.Config{
		Prompts:  a.queue,
		Context:  a.store,
		Model:    a.client,
		Catalog:  a.registry,
		Executor: sched,
	}, agent.WithMetrics(a.metrics))
	if err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: %w", err)
	}

	// ── 6. Feeders ───────────────────────────────────────────────────────
	if cfg.Bridge.Enabled {
		a.bridge = bridge.New(a.store, a.queue,
			bridge.WithTimeout(cfg.Bridge.Timeout),
			bridge.WithMetrics(a.metrics),
			bridge.WithOriginPatterns(cfg.Bridge.OriginPatterns...),
		)
	}
	if d := cfg.Prompts.Discord; d.Token != "" {
		a.discord, err = prompt.NewDiscord(prompt.DiscordConfig{
			Token:      d.Token,
			ChannelID:  d.ChannelID,
			GoalPrefix: d.GoalPrefix,
		}, a.queue)
		if err != nil {
			a.closeAll()
			return nil, fmt.Errorf("app: %w", err)
		}
	}
	if !cfg.Prompts.Stdin {
		a.stdin = nil
	}

	// ── 7. HTTP ──────────────────────────────────────────────────────────
	a.health = health.New(a.checkers())
	a.server = &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

func (a *App) initScene() error {
	var opts []scene.Option
	if th := a.cfg.Scene.FuzzyThreshold; th > 0 {
		opts = append(opts, scene.WithFuzzyThreshold(th))
	}
	a.store = scene.NewStore(opts...)

	if a.cfg.Scene.File == "" {
		return nil
	}
	f, err := a.store.Load(a.cfg.Scene.File)
	if err != nil {
		return err
	}
	slog.Info("scene loaded", "file", a.cfg.Scene.File, "name", f.Scene.Name, "objects", a.store.Len())
	if a.cfg.Scene.Watch {
		a.watcher = scene.NewFileWatcher(a.store, a.cfg.Scene.File)
	}
	return nil
}

func (a *App) initActions(ctx context.Context) error {
	a.registry = action.NewRegistry()
	if err := builtin.RegisterAll(a.registry, builtin.WithMoveTimeout(a.cfg.Actions.MoveTimeout)); err != nil {
		return err
	}

	if len(a.cfg.MCP.Servers) > 0 && a.mcp == nil {
		a.mcp = mcpaction.New()
	}
	if a.mcp != nil {
		a.closers = append(a.closers, a.mcp.Close)
		for _, srv := range a.cfg.MCP.Servers {
			if err := a.mcp.Connect(ctx, srv); err != nil {
				return err
			}
			slog.Info("mcp server connected", "name", srv.Name)
		}
		for _, act := range a.mcp.Actions() {
			if err := a.registry.Register(act); err != nil {
				return err
			}
		}
	}

	a.registry.Freeze()
	slog.Info("actions registered", "count", a.registry.Len())
	return nil
}

func (a *App) checkers() []health.Checker {
	var connected func() bool
	if a.bridge != nil {
		connected = a.bridge.Connected
	}
	checks := []health.Checker{
		health.SceneReady(a.store.Len, connected),
		health.LoopRunning(func() string { return a.agent.State().String() }),
	}
	if bs, ok := a.model.(breakerStates); ok {
		checks = append(checks, health.ModelAvailable(func() map[string]string {
			out := make(map[string]string)
			for name, s := range bs.States() {
				out[name] = s.String()
			}
			return out
		}))
	}
	return checks
}

// Handler returns the HTTP surface: POST /prompt, GET /bridge (when
// enabled), the health probes and /metrics.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("POST /prompt", prompt.Handler(a.queue))
	if a.bridge != nil {
		mux.Handle("GET /bridge", a.bridge)
	}
	a.health.Register(mux)
	mux.Handle("GET /metrics", a.scrape)
	return observe.Middleware(a.metrics)(mux)
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves until ctx is done and returns ctx.Err(), or the first error of
// a subsystem that failed on its own.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen %s: %w", a.cfg.Server.ListenAddr, err)
	}
	a.addrMu.Lock()
	a.addr = ln.Addr()
	a.addrMu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.agent.Run(gctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := a.server.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		if a.bridge != nil {
			a.bridge.Close()
		}
		sctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownGrace)
		defer cancel()
		if err := a.server.Shutdown(sctx); err != nil {
			slog.Warn("app: http shutdown", "err", err)
		}
		return nil
	})
	if a.watcher != nil {
		g.Go(func() error { return a.watcher.Run(gctx) })
	}
	if a.discord != nil {
		g.Go(func() error { return a.discord.Run(gctx) })
	}
	if a.stdin != nil {
		// Not part of the group: a blocked read cannot be interrupted.
		go func() {
			if err := prompt.ReadLines(gctx, a.stdin, a.queue); err != nil {
				slog.Warn("app: stdin prompts stopped", "err", err)
			}
		}()
	}

	slog.Info("app running", "addr", ln.Addr().String(), "actions", a.registry.Len(), "bridge", a.bridge != nil)
	err = g.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// Addr returns the listen address once Run has bound it.
func (a *App) Addr() net.Addr {
	a.addrMu.Lock()
	defer a.addrMu.Unlock()
	return a.addr
}

// ─── Hot reload ──────────────────────────────────────────────────────────────

// Apply takes over the hot-reloadable settings of next: log level, standing
// goal, sampling and history length. Other changes are logged and wait for
// a restart.
func (a *App) Apply(old, next *config.Config) {
	c := config.Diff(old, next)
	if c.LogLevel && a.level != nil {
		a.level.Set(ParseLevel(next.Server.LogLevel))
		slog.Info("config: log level changed", "level", next.Server.LogLevel)
	}
	if c.Goal {
		a.queue.SetGoal(next.Model.Goal)
		slog.Info("config: goal changed", "goal", next.Model.Goal)
	}
	if c.Sampling {
		a.client.SetSampling(next.Model.TemperatureValue(), next.Model.MaxTokens)
		slog.Info("config: sampling changed", "temperature", next.Model.TemperatureValue(), "max_tokens", next.Model.MaxTokens)
	}
	if c.History {
		a.client.Session().SetMaxLength(next.Model.History)
		slog.Info("config: history length changed", "history", next.Model.History)
	}
	if c.Restart {
		slog.Warn("config: some changes need a restart to take effect")
	}
}

// ParseLevel maps a config level to slog. Unknown levels map to info.
func ParseLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ─── Accessors ───────────────────────────────────────────────────────────────

func (a *App) Store() *scene.Store { return a.store }
func (a *App) Queue() *prompt.Queue { return a.queue }
func (a *App) Registry() *action.Registry { return a.registry }
func (a *App) Agent() *agent.Agent { return a.agent }
func (a *App) SystemPrompt() string { return a.client.SystemPrompt() }
func (a *App) Bridge() *bridge.Bridge { return a.bridge }
func (a *App) Health() *health.Handler { return a.health }

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown releases everything New acquired. It is safe to call more than
// once.
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	a.stopOnce.Do(func() {
		if a.bridge != nil {
			a.bridge.Close()
		}
		if serr := a.server.Shutdown(ctx); serr != nil {
			err = serr
		}
		a.closeAll()
		slog.Info("shutdown complete")
	})
	return err
}

func (a *App) closeAll() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("app: close", "err", err)
		}
	}
	a.closers = nil
}
