package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cobaltline/intake/internal/anthropic"
	"github.com/cobaltline/intake/internal/api"
	"github.com/cobaltline/intake/internal/checker"
	"github.com/cobaltline/intake/internal/config"
	"github.com/cobaltline/intake/internal/conversation"
	"github.com/cobaltline/intake/internal/events"
	"github.com/cobaltline/intake/internal/finalizer"
	"github.com/cobaltline/intake/internal/gc"
	"github.com/cobaltline/intake/internal/identity"
	"github.com/cobaltline/intake/internal/orchestrator"
	"github.com/cobaltline/intake/internal/profile"
	"github.com/cobaltline/intake/internal/store"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	slog.Info("intake starting", "port", cfg.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.DatabaseURL == "" {
		slog.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	db, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database connected")

	if cfg.AnthropicAPIKey == "" {
		slog.Error("ANTHROPIC_API_KEY is required")
		os.Exit(1)
	}
	llm := anthropic.NewClient(cfg.AnthropicAPIKey, cfg.AnthropicModel)
	checkLLM := anthropic.NewClient(cfg.AnthropicAPIKey, cfg.CheckModel)
	slog.Info("anthropic clients ready", "model", cfg.AnthropicModel, "check_model", cfg.CheckModel)

	// NATS is optional — intake works without a broker, just no lifecycle events.
	var bus *events.Publisher
	if cfg.NatsURL != "" {
		bus, err = events.NewPublisher(cfg.NatsURL, cfg.NatsToken, slog.Default())
		if err != nil {
			slog.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer bus.Close()
		slog.Info("NATS connected", "url", cfg.NatsURL)
	} else {
		slog.Warn("NATS not configured — running without lifecycle events")
	}

	verifier := identity.NewClient(cfg.IdentityURL)
	profiles := profile.NewClient(cfg.ProfileURL, profile.NewCache(cfg.ProfileCacheTTL))

	chk := checker.New(checkLLM, slog.Default())
	machine := conversation.NewMachine(chk, slog.Default())
	fin := finalizer.New(db, db, llm, bus, slog.Default())
	orch := orchestrator.New(db, llm, machine, profiles, fin, slog.Default())
	collector := gc.New(db, bus, cfg.GCRetention, cfg.GCBatchSize, slog.Default())

	srv := api.NewServer(cfg.Port, verifier, orch, fin, db, collector, slog.Default())
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	if err := bus.Publish(events.SubjectRegistered, map[string]any{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"port":      cfg.Port,
	}); err != nil {
		slog.Warn("failed to publish registration", "error", err)
	}

	slog.Info("intake ready", "port", cfg.Port)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutting down")
	cancel()
	slog.Info("intake stopped")
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
