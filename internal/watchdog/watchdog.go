// Package watchdog reaps build requests that claim to be running but
// have not progressed within a staleness threshold, typically because
// the CI engine died mid-build or a callback was lost.
package watchdog

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/embedforge/buildplane/internal/metrics"
	"github.com/embedforge/buildplane/internal/models"
	"github.com/embedforge/buildplane/internal/notify"
	"github.com/embedforge/buildplane/internal/store"
)

// Watchdog periodically sweeps active build requests and fails any
// whose last update is older than the staleness threshold.
type Watchdog struct {
	store          store.Store
	notifier       notify.Notifier
	metrics        *metrics.Metrics
	sweepInterval  time.Duration
	staleThreshold time.Duration
	logger         *slog.Logger

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
}

// New creates a Watchdog.
func New(s store.Store, notifier notify.Notifier, m *metrics.Metrics, sweepInterval, staleThreshold time.Duration, logger *slog.Logger) *Watchdog {
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = notify.Noop{}
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &Watchdog{
		store:          s,
		notifier:       notifier,
		metrics:        m,
		sweepInterval:  sweepInterval,
		staleThreshold: staleThreshold,
		logger:         logger,
		stopChan:       make(chan struct{}),
	}
}

// Start begins the periodic sweep loop. It blocks until the context is
// cancelled or Stop is called.
func (w *Watchdog) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.stopChan = make(chan struct{})
	w.mu.Unlock()

	w.logger.Info("starting build watchdog",
		"sweep_interval", w.sweepInterval,
		"stale_threshold", w.staleThreshold,
	)

	ticker := time.NewTicker(w.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watchdog stopped by context")
			return ctx.Err()
		case <-w.stopChan:
			w.logger.Info("watchdog stopped")
			return nil
		case <-ticker.C:
			if err := w.Sweep(ctx); err != nil {
				w.logger.Error("watchdog sweep failed", "error", err)
			}
		}
	}
}

// Stop stops the watchdog loop.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		close(w.stopChan)
		w.running = false
	}
}

// Sweep runs one pass over stale active builds. Per-build failures are
// logged and the pass continues; only the listing error is returned.
func (w *Watchdog) Sweep(ctx context.Context) error {
	w.metrics.WatchdogSweeps.Inc()

	stale, err := w.store.Builds().ListStaleActive(ctx, w.staleThreshold)
	if err != nil {
		return err
	}
	if len(stale) == 0 {
		return nil
	}

	var reaped int
	now := time.Now().UTC()

	for _, build := range stale {
		log := w.logger.With("build_id", build.ID, "status", string(build.Status), "created_at", build.CreatedAt)

		build.Status = models.BuildStatusFailed
		if err := w.store.Builds().Update(ctx, build); err != nil {
			log.Error("failed to mark stale build as failed", "error", err)
			continue
		}

		if err := w.failCurrentStage(ctx, build.ID, now); err != nil {
			log.Error("failed to update stage tracker for stale build", "error", err)
		}

		w.publish(ctx, notify.TopicBuildStateChanged, build)
		w.publish(ctx, notify.TopicBuildListChanged, build.UserID)

		log.Warn("stale build reaped")
		reaped++
	}

	w.metrics.WatchdogReaped.Add(float64(reaped))

	if reaped > 0 {
		w.logger.Info("watchdog sweep complete", "stale", len(stale), "reaped", reaped)
	}
	return nil
}

// failCurrentStage marks the in-progress stage of the build's tracker
// as Failed so the pipeline view reflects where the build died. A
// missing tracker is not an error.
func (w *Watchdog) failCurrentStage(ctx context.Context, buildID string, now time.Time) error {
	tracker, err := w.store.Stages().GetByBuild(ctx, buildID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}

	current := tracker.CurrentStage()
	if current == nil {
		return nil
	}

	tracker.SetStage(current.Name, models.StageStatusFailed, now)
	if err := w.store.Stages().Save(ctx, tracker); err != nil {
		return err
	}

	w.publish(ctx, notify.TopicBuildStateChanged, tracker)
	return nil
}

func (w *Watchdog) publish(ctx context.Context, topic string, payload any) {
	if err := w.notifier.Publish(ctx, topic, payload); err != nil {
		w.logger.Warn("notification publish failed", "topic", topic, "error", err)
	}
}
