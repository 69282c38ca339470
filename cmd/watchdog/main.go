// Package main provides a standalone stale-build watchdog daemon, for
// deployments where the sweep runs separately from the API server.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/embedforge/buildplane/internal/metrics"
	"github.com/embedforge/buildplane/internal/notify"
	pgstore "github.com/embedforge/buildplane/internal/store/postgres"
	"github.com/embedforge/buildplane/internal/watchdog"
	"github.com/embedforge/buildplane/pkg/config"
	"github.com/embedforge/buildplane/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	log := logger.Default()

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Error("failed to load configuration")
		os.Exit(1)
	}

	store, err := pgstore.NewPostgresStore(pgstore.DefaultConfig(cfg.DatabaseDSN), log.Logger)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	var notifier notify.Notifier = notify.Noop{}
	if cfg.Notify.Transport == "nats" {
		n, err := notify.NewNATSNotifier(cfg.Notify.NATSURL, log.Logger)
		if err != nil {
			log.Error("failed to connect to NATS", "error", err, "url", cfg.Notify.NATSURL)
			os.Exit(1)
		}
		defer n.Close()
		notifier = n
	}

	wd := watchdog.New(store, notifier, metrics.NewNop(), cfg.Watchdog.SweepInterval, cfg.Watchdog.StaleThreshold, log.WithComponent("watchdog").Logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	if err := wd.Start(ctx); err != nil && err != context.Canceled {
		log.Error("watchdog exited", "error", err)
		os.Exit(1)
	}

	log.Info("watchdog stopped")
}
