// Kestrel - Counterfeit detection that deploys in 60 seconds.
// Copyright (c) 2025 opensource.trust
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/opensource-trust/kestrel/internal/api"
	"github.com/opensource-trust/kestrel/internal/bus"
	"github.com/opensource-trust/kestrel/internal/cache"
	"github.com/opensource-trust/kestrel/internal/catalog"
	"github.com/opensource-trust/kestrel/internal/domain"
	"github.com/opensource-trust/kestrel/internal/repository"
	"github.com/opensource-trust/kestrel/internal/rules"
	"github.com/opensource-trust/kestrel/internal/velocity"
	"github.com/opensource-trust/kestrel/internal/worker"
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

	if dir := os.Getenv("KESTREL_CATALOG_DIR"); dir != "" {
		cfg.CatalogDir = dir
	}
	if preset := os.Getenv("KESTREL_PRESET"); preset != "" {
		cfg.Scoring = domain.PresetScoring(preset)
		slog.Info("scoring preset selected", "preset", preset)
	}

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"catalog_dir", cfg.CatalogDir,
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

	// Seed the product catalog on first run
	if err := seedStarterProducts(ctx, repo); err != nil {
		slog.Warn("failed to seed starter products", "error", err)
	}

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

	// Initialize Velocity Service
	velocitySvc := velocity.NewService(repo, cacheImpl)
	slog.Info("velocity service initialized")

	// Initialize Rule Engine with velocity getter
	engine, err := rules.NewEngine(velocitySvc.GetVelocityGetter(), 100)
	if err != nil {
		slog.Error("failed to initialize rule engine", "error", err)
		os.Exit(1)
	}

	if err := loadRules(ctx, repo, engine); err != nil {
		slog.Error("failed to load rules", "error", err)
		os.Exit(1)
	}
	slog.Info("rule engine initialized", "rules_count", engine.RulesCount())

	// Build the trusted image index
	index, err := catalog.Build(ctx, cfg.CatalogDir, 0)
	if err != nil {
		slog.Error("failed to build image index", "dir", cfg.CatalogDir, "error", err)
		os.Exit(1)
	}
	slog.Info("image index built", "dir", cfg.CatalogDir, "entries", index.Len())

	// Initialize async audit Worker (Pro tier)
	var auditWorker *worker.Worker
	if cfg.Tier == domain.TierPro || os.Getenv("KESTREL_ASYNC_WORKER") == "true" {
		auditWorker = worker.NewWorker(busImpl, repo)

		tenantIDs := []string{}
		if envTenants := os.Getenv("KESTREL_TENANTS"); envTenants != "" {
			for _, t := range strings.Split(envTenants, ",") {
				if t = strings.TrimSpace(t); t != "" {
					tenantIDs = append(tenantIDs, t)
				}
			}
		}

		if err := auditWorker.Start(worker.Config{TenantIDs: tenantIDs}); err != nil {
			slog.Error("failed to start audit worker", "error", err)
		} else {
			slog.Info("audit worker started", "tenant_count", len(tenantIDs))
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, engine, index, cfg.Scoring, cfg.CatalogDir, Version)

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

	// Stop audit worker first
	if auditWorker != nil {
		if err := auditWorker.Stop(); err != nil {
			slog.Error("failed to stop audit worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}

// GlobalTenantID is used for rules and seed data that apply to all tenants.
const GlobalTenantID = "*"

// loadRules loads rules from the database into the engine, falling back
// to the builtin set when the database has none.
func loadRules(ctx context.Context, repo domain.Repository, engine *rules.Engine) error {
	dbRules, err := repo.ListRuleConfigs(ctx, GlobalTenantID)
	if err != nil {
		slog.Warn("failed to list rules from database", "error", err)
		dbRules = nil
	}

	if len(dbRules) > 0 {
		slog.Info("loading rules from database", "count", len(dbRules))
		return engine.LoadRules(dbRules)
	}

	slog.Info("no rules in database, loading builtin rules")
	return engine.LoadRules(rules.BuiltinRules())
}

// seedStarterProducts populates the shared product catalog when it is
// empty, so a fresh install has something to search against.
func seedStarterProducts(ctx context.Context, repo domain.Repository) error {
	existing, err := repo.ListProducts(ctx, GlobalTenantID, "")
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	for _, p := range domain.StarterProducts() {
		p.TenantID = GlobalTenantID
		if err := repo.SaveProduct(ctx, GlobalTenantID, p); err != nil {
			return err
		}
	}
	slog.Info("starter products seeded", "count", len(domain.StarterProducts()))
	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               🦅 KESTREL                  ║")
	fmt.Println("  ║     Counterfeit Detection Engine          ║")
	fmt.Println("  ║      Eyes on every product.               ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /check              - Check a product (serial + image)")
	fmt.Println("    GET  /checks/{id}        - Get check by ID")
	fmt.Println("    POST /batches            - Score an invoice batch")
	fmt.Println("    GET  /batches/{id}       - Get batch by ID")
	fmt.Println("    GET  /batches/{id}/risk  - Supplier risk table")
	fmt.Println("    GET  /products           - List catalog products")
	fmt.Println("    POST /products           - Add a catalog product")
	fmt.Println("    GET  /rules              - List all rules")
	fmt.Println("    POST /rules              - Create a new rule")
	fmt.Println("    POST /rules/reload       - Hot-reload rules from database")
	fmt.Println("    POST /catalog/reload     - Rebuild the image index")
	fmt.Println("    GET  /audit              - Recent audit trail")
	fmt.Println("    GET  /health             - Health check")
	fmt.Println()
}
