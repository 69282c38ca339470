// Package main provides the entry point for the build plane API server.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/embedforge/buildplane/internal/api"
	"github.com/embedforge/buildplane/internal/artifact"
	"github.com/embedforge/buildplane/internal/ci"
	"github.com/embedforge/buildplane/internal/metrics"
	"github.com/embedforge/buildplane/internal/notify"
	"github.com/embedforge/buildplane/internal/orchestrator"
	"github.com/embedforge/buildplane/internal/shutdown"
	pgstore "github.com/embedforge/buildplane/internal/store/postgres"
	"github.com/embedforge/buildplane/internal/watchdog"
	"github.com/embedforge/buildplane/pkg/config"
	"github.com/embedforge/buildplane/pkg/logger"
)

func main() {
	// A missing .env is fine; env vars win either way.
	_ = godotenv.Load()

	log := logger.New(slog.LevelInfo, true)

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Error("failed to load configuration")
		os.Exit(1)
	}

	store, err := pgstore.NewPostgresStore(pgstore.DefaultConfig(cfg.DatabaseDSN), log.Logger)
	if err != nil {
		log.WithError(err).Error("failed to connect to database")
		os.Exit(1)
	}

	ciCfg := ci.DefaultConfig(cfg.CI.BaseURL, cfg.CI.Username, cfg.CI.APIToken)
	if cfg.CI.Timeout > 0 {
		ciCfg.Timeout = cfg.CI.Timeout
	}
	if cfg.CI.PollInterval > 0 {
		ciCfg.PollInterval = cfg.CI.PollInterval
	}
	if cfg.CI.PollMaxElapsed > 0 {
		ciCfg.PollMaxElapsed = cfg.CI.PollMaxElapsed
	}
	ciClient := ci.NewClient(ciCfg, log.Logger)

	var (
		notifier notify.Notifier
		hub      *notify.Hub
	)
	switch cfg.Notify.Transport {
	case "nats":
		n, err := notify.NewNATSNotifier(cfg.Notify.NATSURL, log.Logger)
		if err != nil {
			log.Error("failed to connect to NATS", "error", err, "url", cfg.Notify.NATSURL)
			os.Exit(1)
		}
		notifier = n
	default:
		hub = notify.NewHub(log.Logger)
		notifier = hub
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	artifacts := artifact.NewFSStorage(cfg.Artifact.RootDir, log.Logger)

	orch := orchestrator.New(store, ciClient, artifacts, notifier, m, log.Logger)

	wd := watchdog.New(store, notifier, m, cfg.Watchdog.SweepInterval, cfg.Watchdog.StaleThreshold, log.WithComponent("watchdog").Logger)
	go func() {
		if err := wd.Start(context.Background()); err != nil && err != context.Canceled {
			log.Error("watchdog exited", "error", err)
		}
	}()

	server := api.NewServer(cfg, store, api.Options{
		Orchestrator: orch,
		Hub:          hub,
		Registry:     registry,
	}, log)

	coordinator := shutdown.NewCoordinator(
		shutdown.WithTimeout(cfg.ShutdownTimeout),
		shutdown.WithLogger(log.Logger),
	)
	coordinator.Register(shutdown.NewCloserComponent("store", store))
	coordinator.Register(shutdown.NewCloserComponent("notifier", notifier))
	coordinator.Register(shutdown.NewStopperComponent("watchdog", wd))
	coordinator.Register(shutdown.NewHTTPServerComponent("http-server", server.HTTPServer()))

	go coordinator.WaitForSignal()

	if err := server.Start(); err != nil {
		log.Error("server error", "error", err)
		coordinator.Shutdown()
		coordinator.Wait()
		os.Exit(1)
	}

	coordinator.Wait()
	log.Info("server stopped")
	os.Exit(coordinator.ExitCode())
}
