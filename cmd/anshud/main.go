// Command anshud is the voice relay server: HTTP and websocket endpoints that
// turn typed or spoken input into a generated reply with synthesized speech.
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

	"github.com/AnshuAditya03/Anshu-backend/internal/bootstrap"
	"github.com/AnshuAditya03/Anshu-backend/internal/config"
	"github.com/AnshuAditya03/Anshu-backend/internal/health"
	"github.com/AnshuAditya03/Anshu-backend/internal/observe"
	"github.com/AnshuAditya03/Anshu-backend/internal/relay"
	"github.com/AnshuAditya03/Anshu-backend/internal/server"
	"github.com/AnshuAditya03/Anshu-backend/internal/store"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "anshud: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "anshud: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("anshud starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Observability ─────────────────────────────────────────────────────────
	shutdownObserve, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		slog.Error("failed to initialise observability", "err", err)
		return 1
	}
	defer func() {
		if err := shutdownObserve(context.Background()); err != nil {
			slog.Warn("observability shutdown error", "err", err)
		}
	}()

	metrics, err := observe.NewMetrics(observe.MeterProvider())
	if err != nil {
		slog.Error("failed to create metrics", "err", err)
		return 1
	}

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	bootstrap.RegisterBuiltins(ctx, reg)

	providers, err := bootstrap.BuildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Voice table ───────────────────────────────────────────────────────────
	voices, err := bootstrap.BuildVoiceTable(cfg)
	if err != nil {
		slog.Error("failed to build voice table", "err", err)
		return 1
	}

	// ── Turn log (optional) ───────────────────────────────────────────────────
	var turns store.TurnStore = store.Noop{}
	if dsn := cfg.Store.PostgresDSN; dsn != "" {
		pg, err := store.NewPostgres(ctx, dsn)
		if err != nil {
			slog.Error("failed to connect turn log", "err", err)
			return 1
		}
		defer pg.Close()
		turns = pg
		slog.Info("turn log connected")
	}

	// ── Relay ─────────────────────────────────────────────────────────────────
	relayOpts := []relay.Option{relay.WithMetrics(metrics)}
	if cfg.Relay.SystemPrompt != "" {
		relayOpts = append(relayOpts, relay.WithSystemPrompt(cfg.Relay.SystemPrompt))
	}
	if cfg.Relay.Temperature != 0 {
		relayOpts = append(relayOpts, relay.WithTemperature(cfg.Relay.Temperature))
	}
	rel := relay.New(providers.LLM, providers.TTS, voices, relayOpts...)

	// ── Health checks ─────────────────────────────────────────────────────────
	checkers := []health.Checker{
		{Name: "store", Check: turns.Ping},
	}
	healthHandler := health.New(checkers...)

	// ── HTTP server ───────────────────────────────────────────────────────────
	srv := server.New(cfg.Server, server.Deps{
		Relay:    rel,
		Sessions: relay.NewSessionManager(cfg.Relay.HistoryLimit),
		Voices:   voices,
		STT:      providers.STT,
		Turns:    turns,
		Metrics:  metrics,
		Health:   healthHandler,
	})

	slog.Info("server ready, press Ctrl+C to shut down")

	if err := srv.Run(ctx); err != nil {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
