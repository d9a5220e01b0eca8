// Kestrel - Case intelligence and network correlation for fraud audits.
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

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/opensource-finance/kestrel/internal/api"
	"github.com/opensource-finance/kestrel/internal/audit"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/casestore"
	"github.com/opensource-finance/kestrel/internal/config"
	"github.com/opensource-finance/kestrel/internal/demo"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/filter"
	"github.com/opensource-finance/kestrel/internal/ingest"
	"github.com/opensource-finance/kestrel/internal/interventions"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	showEnv := flag.Bool("env", false, "print the supported environment variables and exit")
	flag.Parse()
	if *showEnv {
		fmt.Println(config.Usage())
		return
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// Initialize structured logger
	slog.SetDefault(newLogger(cfg.Logging))

	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"analysis_url", cfg.Analysis.BaseURL,
	)

	if !cfg.Tracing.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
	}

	// Create context with cancellation
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		slog.Error("kestrel failed", "error", err)
		os.Exit(1)
	}
	slog.Info("kestrel shutdown complete")
}

func run(ctx context.Context, cfg *domain.Config) error {
	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return fmt.Errorf("failed to initialize repository: %w", err)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type, "two_phase", cfg.Cache.EnableTwoPhase)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		return fmt.Errorf("failed to initialize event bus: %w", err)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Case store and intervention log
	filters, err := filter.NewEngine()
	if err != nil {
		return fmt.Errorf("failed to initialize filter engine: %w", err)
	}
	log := interventions.NewLog(repo)
	if err := log.Load(ctx); err != nil {
		return fmt.Errorf("failed to load intervention log: %w", err)
	}
	store := casestore.New(repo, log, filters)
	found, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load cases: %w", err)
	}

	if !found && cfg.Ingest.SeedDemo {
		seedDemo(ctx, store, cfg.Ingest)
	}

	client := ingest.NewClient(cfg.Analysis)
	adapter := ingest.NewAdapter(cfg.Ingest)
	svc := audit.NewService(store, log, client, adapter, cacheImpl, busImpl)

	// Initialize async Worker
	var asyncWorker *worker.Worker
	if cfg.Ingest.AsyncWorker {
		asyncWorker = worker.NewWorker(busImpl, svc)
		if err := asyncWorker.Start(worker.Config{WorkerCount: cfg.Ingest.WorkerCount}); err != nil {
			return fmt.Errorf("failed to start async worker: %w", err)
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, svc, repo, cacheImpl, busImpl, cfg.Cache.ViewTTL, Version)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"cases", store.Len(),
		"interventions", log.Len(),
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

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
	return nil
}

// seedDemo fills an empty installation with generated cases.
func seedDemo(ctx context.Context, store *casestore.Store, cfg domain.IngestConfig) {
	cases := demo.Generate(demo.OptionsFrom(cfg, time.Now()))
	v, err := store.ReplaceAll(ctx, cases, domain.EmptyStatistics())
	if err != nil {
		slog.Warn("demo cases not persisted", "error", err)
	}
	slog.Info("demo cases seeded", "cases", len(cases), "generation", v.Generation)
}

func newLogger(cfg domain.LoggingConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: config.LogLevel(cfg)}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               KESTREL                     ║")
	fmt.Println("  ║  Case Intelligence & Network Correlation  ║")
	fmt.Println("  ║     Every flag reviewed, every link seen. ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("  Analysis: %s\n", cfg.Analysis.BaseURL)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST   /ingest                   - Upload a batch for scoring")
	fmt.Println("    POST   /ingest/results           - Replay a scored batch")
	fmt.Println("    POST   /ingest/async             - Queue a batch for a worker")
	fmt.Println("    GET    /ingest/batches/{id}      - Batch status")
	fmt.Println("    GET    /cases                    - List cases (?q=, ?filter=)")
	fmt.Println("    GET    /cases/{id}               - Get a case")
	fmt.Println("    POST   /cases/{id}/adjudicate    - Confirm fraud or clear a case")
	fmt.Println("    GET    /cases/{id}/clusters      - Clusters a case belongs to")
	fmt.Println("    GET    /interventions            - Intervention history")
	fmt.Println("    DELETE /interventions            - Reset intervention history")
	fmt.Println("    GET    /stats/{headline,phases,programs,status}")
	fmt.Println("    GET    /network/clusters         - Collusion clusters")
	fmt.Println("    GET    /dashboard                - All dashboard views")
	fmt.Println("    GET    /health                   - Health check")
	fmt.Println()
}
