// Kestrel - Fraud rule evaluation and alert prioritization.
// Copyright (c) 2026 fraudops
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fraudops/kestrel/internal/alerting"
	"github.com/fraudops/kestrel/internal/api"
	"github.com/fraudops/kestrel/internal/bus"
	"github.com/fraudops/kestrel/internal/cache"
	"github.com/fraudops/kestrel/internal/config"
	"github.com/fraudops/kestrel/internal/domain"
	"github.com/fraudops/kestrel/internal/history"
	"github.com/fraudops/kestrel/internal/metrics"
	"github.com/fraudops/kestrel/internal/priority"
	"github.com/fraudops/kestrel/internal/repository"
	"github.com/fraudops/kestrel/internal/rules"
	"github.com/fraudops/kestrel/internal/scoring"
	"github.com/fraudops/kestrel/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("KESTREL_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg, err := config.Load(os.Getenv("KESTREL_CONFIG"))
	if err != nil {
		slog.Warn("configuration problem, continuing with defaults", "error", err)
	}
	if os.Getenv("KESTREL_MODE") == "cluster" {
		cfg = domain.ClusterConfig()
		slog.Info("running in cluster mode")
	}

	slog.Info("configuration loaded",
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	// Engine tuning is loaded separately so operators can redeploy rule
	// thresholds without touching service wiring.
	engineCfg, err := config.LoadEngineConfig(cfg.EngineConfigPath)
	if err != nil {
		slog.Warn("engine config problem, continuing with defaults", "error", err)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Store
	store, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Assemble the evaluation pipeline
	historySvc := history.NewService(store, cacheImpl)

	evaluator, err := rules.NewEvaluator(engineCfg, historySvc)
	if err != nil {
		slog.Error("failed to initialize rule evaluator", "error", err)
		os.Exit(1)
	}
	slog.Info("rule evaluator initialized", "custom_rules", len(engineCfg.CustomRules))

	scorer := scoring.NewScorer(engineCfg)
	scheduler := priority.NewScheduler(engineCfg)
	collector := metrics.NewCollector()

	factory := alerting.NewFactory(store, scorer)
	driver := alerting.NewDriver(store, evaluator, factory, busImpl, collector)

	// Async worker evaluates transactions as they are ingested
	asyncWorker := worker.NewWorker(busImpl, evaluator, factory, collector)
	if err := asyncWorker.Start(); err != nil {
		slog.Error("failed to start async worker", "error", err)
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, store, cacheImpl, busImpl, driver, scheduler, collector, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async worker first
	if err := asyncWorker.Stop(); err != nil {
		slog.Error("failed to stop async worker", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               🦅 KESTREL                  ║")
	fmt.Println("  ║   Fraud Alert Prioritization Engine       ║")
	fmt.Println("  ║     Sharp eyes on every transaction.      ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST  /transactions            - Ingest a transaction")
	fmt.Println("    GET   /transactions/{id}       - Get transaction by ID")
	fmt.Println("    POST  /process                 - Evaluate pending transactions")
	fmt.Println("    GET   /alerts                  - Prioritized triage queue")
	fmt.Println("    GET   /alerts/{id}             - Get alert by ID")
	fmt.Println("    PATCH /alerts/{id}/status      - Triage workflow transition")
	fmt.Println("    POST  /alerts/{id}/assign      - Assign an analyst")
	fmt.Println("    POST  /alerts/bulk             - Bulk status update")
	fmt.Println("    GET   /alerts/{id}/audit       - Alert audit trail")
	fmt.Println("    GET   /customers/{id}/profile  - Customer risk profile")
	fmt.Println("    GET   /health                  - Health check")
	fmt.Println("    GET   /metrics                 - Prometheus metrics")
	fmt.Println()
}
