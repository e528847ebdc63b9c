// Kestrel - Claim lifecycle and underwriting rules engine.
// Copyright (c) 2025 opensource.finance
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

	"github.com/opensource-finance/kestrel/internal/api"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/fraud"
	"github.com/opensource-finance/kestrel/internal/history"
	"github.com/opensource-finance/kestrel/internal/premium"
	"github.com/opensource-finance/kestrel/internal/recommend"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/worker"
	"github.com/opensource-finance/kestrel/internal/workflow"
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

	// Log startup
	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("KESTREL_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

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

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
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

	// Initialize Fraud Engine
	engine, err := fraud.NewEngine(cfg.Fraud, 100)
	if err != nil {
		slog.Error("failed to initialize fraud engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	// Load custom rules from database (built-in rules are always active;
	// custom rules are configured via POST /fraud-rules)
	if err := loadRulesFromDatabase(ctx, repo, engine); err != nil {
		slog.Error("failed to load fraud rules", "error", err)
		os.Exit(1)
	}
	slog.Info("fraud engine initialized", "custom_rules_count", engine.RulesCount())

	// Initialize scoring services
	scorer := premium.NewScorer(cfg.Premium)
	ranker := recommend.NewRanker(cfg.Ranking, scorer)
	historySvc := history.NewService(repo, cacheImpl)

	// Initialize Workflow Service
	svc := workflow.NewService(repo, cacheImpl, busImpl, engine, historySvc, scorer, ranker)
	slog.Info("claim workflow initialized")

	// Initialize async fraud screening worker
	var asyncWorker *worker.Worker
	if cfg.Tier == domain.TierPro || os.Getenv("KESTREL_ASYNC_WORKER") == "true" {
		asyncWorker = worker.NewWorker(busImpl, svc)
		if err := asyncWorker.Start(); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async fraud worker started")
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, svc, repo, cacheImpl, engine, Version)

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
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}

// loadRulesFromDatabase loads custom fraud rules into the engine.
func loadRulesFromDatabase(ctx context.Context, repo domain.Repository, engine *fraud.Engine) error {
	dbRules, err := repo.ListFraudRuleConfigs(ctx)
	if err != nil {
		slog.Warn("failed to list fraud rules from database", "error", err)
		return nil // Start with built-in rules only - custom rules can be added via API
	}

	if len(dbRules) > 0 {
		slog.Info("loading fraud rules from database", "count", len(dbRules))
		return engine.LoadRules(dbRules)
	}

	slog.Info("no custom fraud rules in database - configure via POST /fraud-rules API")
	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               🪶 KESTREL                  ║")
	fmt.Println("  ║   Claim Lifecycle & Underwriting Engine   ║")
	fmt.Println("  ║      Every claim, watched closely.        ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /claims                    - File a new claim")
	fmt.Println("    GET  /claims?policy={ref}       - List claims for a policy")
	fmt.Println("    GET  /claims/{id}               - Get claim by ID")
	fmt.Println("    POST /claims/{id}/documents     - Attach a document")
	fmt.Println("    POST /claims/{id}/submit        - Submit a draft claim")
	fmt.Println("    POST /claims/{id}/transition    - Apply a status transition")
	fmt.Println("    POST /claims/{id}/fraud-flag    - Manually flag fraud")
	fmt.Println("    POST /claims/{id}/evaluate      - Run fraud rule evaluation")
	fmt.Println("    GET  /claims/{id}/flags         - List fraud flags")
	fmt.Println("    POST /quotes                    - Quote an adjusted premium")
	fmt.Println("    POST /recommendations           - Rank policy recommendations")
	fmt.Println("    GET  /policies                  - List policy catalog")
	fmt.Println("    POST /policies                  - Upsert a catalog policy")
	fmt.Println("    GET  /fraud-rules               - List loaded fraud rules")
	fmt.Println("    POST /fraud-rules               - Create a custom rule")
	fmt.Println("    POST /fraud-rules/reload        - Hot-reload rules from database")
	fmt.Println("    GET  /health                    - Health check")
	fmt.Println()
}
