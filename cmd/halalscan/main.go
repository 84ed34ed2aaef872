// halalscan - Ingredient ruling engine for food label scans.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opensource-finance/halalscan/internal/api"
	"github.com/opensource-finance/halalscan/internal/bus"
	"github.com/opensource-finance/halalscan/internal/cache"
	"github.com/opensource-finance/halalscan/internal/config"
	"github.com/opensource-finance/halalscan/internal/domain"
	"github.com/opensource-finance/halalscan/internal/repository"
	"github.com/opensource-finance/halalscan/internal/rules"
	"github.com/opensource-finance/halalscan/internal/verdict"
	"github.com/opensource-finance/halalscan/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// resolveWorkers bounds the goroutines used by one batch resolve.
const resolveWorkers = 16

func main() {
	configPath := flag.String("config", "", "Path to YAML config file (default $HALALSCAN_CONFIG)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := config.NewLogger(cfg.Logging, os.Stdout)
	slog.SetDefault(logger)

	slog.Info("starting halalscan",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"rule_cache_ttl", cfg.Rules.CacheTTL,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	if cfg.Rules.SeedFile != "" {
		if err := seedRules(ctx, repo, cfg.Rules.SeedFile); err != nil {
			slog.Error("failed to seed rules", "file", cfg.Rules.SeedFile, "error", err)
			os.Exit(1)
		}
	}

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type, "two_phase", cfg.Cache.EnableTwoPhase)

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	ruleCache := rules.NewRuleCache(repo, cacheImpl, cfg.Rules.CacheTTL, logger)
	resolver := rules.NewResolver(ruleCache, resolveWorkers)

	// An empty or unreachable table is not fatal; rules can be added via the API.
	if active, err := ruleCache.Get(ctx); err != nil {
		slog.Warn("failed to warm rule cache", "error", err)
	} else if len(active) == 0 {
		slog.Info("no active rules - configure via POST /rules or rules.seed_file")
	} else {
		slog.Info("rule cache warmed", "rules_count", len(active))
	}

	policy, err := verdict.NewPolicy(cfg.Verdict.Expression)
	if err != nil {
		slog.Error("failed to compile verdict policy", "error", err)
		os.Exit(1)
	}
	slog.Info("verdict policy compiled", "expression", policy.Expression())

	// Other nodes announce rule writes on the bus; a single process already
	// invalidates its own cache on write.
	var syncWorker *worker.Worker
	if cfg.EventBus.Type == "nats" {
		syncWorker = worker.NewWorker(busImpl, ruleCache)
		if err := syncWorker.Start(); err != nil {
			slog.Error("failed to start rule sync worker", "error", err)
		} else {
			slog.Info("rule sync worker started", "topic", domain.TopicRulesChanged)
		}
	}

	handler := api.NewHandler(repo, cacheImpl, busImpl, ruleCache, resolver, policy, Version)
	srv := api.NewServer(cfg.Server, cfg.Tracing, handler)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("halalscan is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	<-ctx.Done()
	slog.Info("shutting down...")

	if syncWorker != nil {
		if err := syncWorker.Stop(); err != nil {
			slog.Error("failed to stop rule sync worker", "error", err)
		}
		stats := syncWorker.GetStats()
		slog.Info("rule sync worker stopped", "processed", stats.Processed, "failed", stats.Failed)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("halalscan shutdown complete")
}

// seedRules upserts the rules of a seed file. The file is rejected as a
// whole when any rule is invalid.
func seedRules(ctx context.Context, store domain.RuleStore, path string) error {
	seed, err := repository.LoadSeedFile(path)
	if err != nil {
		return err
	}
	n, err := repository.Seed(ctx, store, seed)
	if err != nil {
		return err
	}
	slog.Info("rules seeded", "file", path, "count", n)
	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               HALALSCAN                   ║")
	fmt.Println("  ║        Ingredient Ruling Engine           ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST   /resolve        - Ruling for one ingredient")
	fmt.Println("    POST   /resolve/batch  - Rulings for an ingredient list")
	fmt.Println("    POST   /normalize      - Normalize ingredient text")
	fmt.Println("    POST   /match          - Test a single pattern")
	fmt.Println("    GET    /rules          - List rules")
	fmt.Println("    POST   /rules          - Create a rule")
	fmt.Println("    PUT    /rules/{id}     - Replace a rule")
	fmt.Println("    DELETE /rules/{id}     - Deactivate a rule")
	fmt.Println("    POST   /rules/reload   - Drop cached rules on every node")
	fmt.Println("    GET    /health         - Health check")
	fmt.Println()
}
