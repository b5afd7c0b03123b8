// Command stagehand runs the Stagehand orchestrator: it turns user prompts
// into scene action plans with a language model and executes them.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrWong99/stagehand/internal/app"
	"github.com/MrWong99/stagehand/internal/config"
	"github.com/MrWong99/stagehand/internal/observe"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "stagehand.yaml", "path to the YAML configuration file")
	printPrompt := flag.Bool("print-prompt", false, "print the system prompt and exit")
	logLevel := flag.String("log-level", "", "override server.log_level (debug, info, warn, error)")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "stagehand: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "stagehand: %v\n", err)
		}
		return 1
	}
	if *logLevel != "" {
		lvl := config.LogLevel(*logLevel)
		if !lvl.IsValid() {
			fmt.Fprintf(os.Stderr, "stagehand: invalid -log-level %q\n", *logLevel)
			return 2
		}
		cfg.Server.LogLevel = lvl
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(app.ParseLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	tel, err := observe.Setup(ctx, observe.TelemetryConfig{ServiceName: cfg.Server.ServiceName})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}

	// ── Model providers ───────────────────────────────────────────────────────
	reg := config.NewRegistry()
	app.RegisterProviders(ctx, reg)
	provider, err := app.BuildProvider(cfg, reg)
	if err != nil {
		slog.Error("failed to build model provider", "err", err)
		return 1
	}

	application, err := app.New(ctx, cfg, provider,
		app.WithLevelVar(level),
		app.WithStdin(os.Stdin),
		app.WithMetricsHandler(tel.MetricsHandler()),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	if *printPrompt {
		fmt.Println(application.SystemPrompt())
		_ = application.Shutdown(context.Background())
		return 0
	}

	printStartupSummary(cfg, len(reg.Names()), application.Registry().Len())

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, application.Apply)
	if err != nil {
		slog.Warn("config hot reload disabled", "err", err)
	} else {
		go func() {
			if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Warn("config watcher stopped", "err", err)
			}
		}()
	}

	slog.Info("stagehand ready; press Ctrl+C to shut down")

	runErr := application.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	code := 0
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		code = 1
	}
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		code = 1
	}
	if err := tel.Shutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	return code
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, providers, actions int) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        Stagehand startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Model", cfg.Providers.LLM.Name+" / "+cfg.Providers.LLM.Model)
	printRow("Fallbacks", fmt.Sprint(len(cfg.Providers.Fallbacks)))
	printRow("Backends known", fmt.Sprint(providers))
	printRow("Actions", fmt.Sprint(actions))
	printRow("MCP servers", fmt.Sprint(len(cfg.MCP.Servers)))
	scene := cfg.Scene.File
	if scene == "" {
		scene = "(empty)"
	}
	printRow("Scene", scene)
	printRow("Bridge", enabled(cfg.Bridge.Enabled))
	printRow("Discord", enabled(cfg.Prompts.Discord.Token != ""))
	printRow("Stdin prompts", enabled(cfg.Prompts.Stdin))
	printRow("Listen addr", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(label, value string) {
	if r := []rune(value); len(r) > 19 {
		value = string(r[:18]) + "…"
	}
	fmt.Printf("║  %-14s  : %-19s ║\n", label, value)
}

func enabled(b bool) string {
	if b {
		return "enabled"
	}
	return "(disabled)"
}
