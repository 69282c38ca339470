// Package orchestrator coordinates build invocations against the
// external CI engine: validation, artifact staging, stage tracker
// lifecycle, job creation and start, and compensating rollback.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/embedforge/buildplane/internal/artifact"
	"github.com/embedforge/buildplane/internal/ci"
	"github.com/embedforge/buildplane/internal/metrics"
	"github.com/embedforge/buildplane/internal/models"
	"github.com/embedforge/buildplane/internal/notify"
	"github.com/embedforge/buildplane/internal/store"
)

// CIClient is the CI engine surface the orchestrator depends on.
type CIClient interface {
	CreateJob(ctx context.Context, jobName string) error
	StartJob(ctx context.Context, jobName, fileName, projectID, userID, buildID string) error
	DeleteJob(ctx context.Context, jobName string) error
}

// Orchestrator runs the build invocation protocol. Invocations are
// serialized process-wide through a capacity-1 admission gate so the
// "is any other build active" check and the status flip are atomic
// with respect to each other. The gate is not distributed; with
// multiple replicas the single-active-build invariant only holds per
// replica.
type Orchestrator struct {
	store     store.Store
	ci        CIClient
	artifacts artifact.Storage
	notifier  notify.Notifier
	metrics   *metrics.Metrics
	logger    *slog.Logger

	gate chan struct{}
}

// New creates an Orchestrator.
func New(st store.Store, ciClient CIClient, artifacts artifact.Storage, notifier notify.Notifier, m *metrics.Metrics, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = notify.Noop{}
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &Orchestrator{
		store:     st,
		ci:        ciClient,
		artifacts: artifacts,
		notifier:  notifier,
		metrics:   m,
		logger:    logger,
		gate:      make(chan struct{}, 1),
	}
}

// acquire takes the admission gate, honoring cancellation.
func (o *Orchestrator) acquire(ctx context.Context) error {
	select {
	case o.gate <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) release() {
	<-o.gate
}

// Invoke validates and starts (or queues) one build attempt.
//
// Validation failures are surfaced unchanged: store.ErrNotFound when
// the build does not exist, InvalidOperationError when the current
// status forbids invocation or the project has no selected baseline.
// Any later failure rolls the request back to Failed, cleans up the
// stage tracker, and surfaces ErrInternal (or ci.ErrTimeout for an
// exceeded poll ceiling).
func (o *Orchestrator) Invoke(ctx context.Context, userID, projectID, buildID string, sendNotification, rebuild bool) (*models.StageTracker, error) {
	start := time.Now()
	if err := o.acquire(ctx); err != nil {
		return nil, err
	}
	defer o.release()
	defer func() {
		o.metrics.InvokeDuration.Observe(time.Since(start).Seconds())
	}()

	build, err := o.store.Builds().Get(ctx, buildID)
	if err != nil {
		o.metrics.InvocationsTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	if !build.Status.CanInvoke() {
		o.metrics.InvocationsTotal.WithLabelValues("rejected").Inc()
		if build.Status == models.BuildStatusInQueue {
			return nil, invalidOperation("build %s is already queued", buildID)
		}
		return nil, invalidOperation("build %s is already started", buildID)
	}

	if _, err := o.store.Baselines().GetSelected(ctx, projectID); err != nil {
		o.metrics.InvocationsTotal.WithLabelValues("rejected").Inc()
		if errors.Is(err, store.ErrNotFound) {
			return nil, invalidOperation("no baseline selected for project %s", projectID)
		}
		return nil, fmt.Errorf("looking up baseline: %w", err)
	}

	log := o.logger.With("build_id", buildID, "project_id", projectID, "user_id", userID)

	tracker, trackerSaved, err := o.run(ctx, log, build, userID, projectID, sendNotification, rebuild)
	if err != nil {
		o.rollback(ctx, log, build, tracker, trackerSaved)
		o.metrics.InvocationsTotal.WithLabelValues("failed").Inc()
		if errors.Is(err, ci.ErrTimeout) {
			return nil, fmt.Errorf("invoking build %s: %w", buildID, ci.ErrTimeout)
		}
		log.Error("build invocation failed", "error", err)
		return nil, fmt.Errorf("invoking build %s: %w", buildID, ErrInternal)
	}

	if tracker.InQueue {
		o.metrics.InvocationsTotal.WithLabelValues("queued").Inc()
	} else {
		o.metrics.InvocationsTotal.WithLabelValues("started").Inc()
	}
	o.refreshQueuedGauge(ctx)

	return tracker, nil
}

// run executes the invocation steps after validation. Returning an
// error triggers rollback in the caller; the returned bool reports
// whether the fresh tracker reached the store before the failure.
func (o *Orchestrator) run(ctx context.Context, log *slog.Logger, build *models.BuildRequest, userID, projectID string, sendNotification, rebuild bool) (*models.StageTracker, bool, error) {
	now := time.Now().UTC()
	newTag := models.NewBuildTag(now)

	// Re-staging under a fresh tag lets the same logical build be
	// resubmitted as a new CI job without re-uploading the artifact.
	stagingDir := artifact.StagingDir(projectID, userID, build.ID)
	oldKey := artifact.StagedKey(projectID, userID, build.TagName)
	newKey := artifact.StagedKey(projectID, userID, newTag)

	if err := o.artifacts.Rename(ctx, stagingDir, oldKey, stagingDir, newKey); err != nil {
		return nil, false, fmt.Errorf("renaming staged artifact: %w", err)
	}

	active, err := o.store.Builds().ListAnyActive(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("listing active builds: %w", err)
	}
	queued := anotherActive(active, build.ID)

	tracker := models.NewStageTracker(build.ID, userID, projectID, queued, now)

	if rebuild {
		if err := o.store.Logs().DeleteAllForBuild(ctx, build.ID); err != nil {
			return nil, false, fmt.Errorf("clearing build logs: %w", err)
		}
	}

	if err := o.saveTracker(ctx, tracker); err != nil {
		return tracker, false, err
	}

	build.TagName = newTag
	build.SendNotification = sendNotification
	if queued {
		build.Status = models.BuildStatusInQueue
	} else {
		build.Status = models.BuildStatusStarting
	}

	if err := o.store.Builds().Update(ctx, build); err != nil {
		return tracker, true, fmt.Errorf("updating build request: %w", err)
	}

	if err := o.ci.CreateJob(ctx, newTag); err != nil {
		return tracker, true, fmt.Errorf("creating CI job: %w", err)
	}
	if err := o.ci.StartJob(ctx, newTag, build.FileName, projectID, userID, build.ID); err != nil {
		return tracker, true, fmt.Errorf("starting CI job: %w", err)
	}

	o.publish(ctx, notify.TopicBuildStateChanged, build)
	o.publish(ctx, notify.TopicBuildListChanged, build.UserID)

	log.Info("build invoked", "tag", newTag, "queued", queued)

	return tracker, true, nil
}

// anotherActive reports whether any build other than buildID occupies
// the execution slot.
func anotherActive(builds []*models.BuildRequest, buildID string) bool {
	for _, b := range builds {
		if b.ID != buildID && b.Status.IsActive() {
			return true
		}
	}
	return false
}

// rollback is the compensation path: the request ends Failed, and no
// tracker is left implying the pipeline started when the CI engine
// never accepted the job. Rollback failures are logged, never
// surfaced, so the original error is not masked.
func (o *Orchestrator) rollback(ctx context.Context, log *slog.Logger, build *models.BuildRequest, tracker *models.StageTracker, trackerSaved bool) {
	o.metrics.RollbacksTotal.Inc()
	now := time.Now().UTC()

	build.Status = models.BuildStatusFailed
	if err := o.store.Builds().Update(ctx, build); err != nil {
		log.Error("rollback: updating build request failed", "error", err)
	}

	if trackerSaved {
		// The tracker written by this invocation stays, but with its
		// Starting stage marked Failed rather than a dangling Waiting.
		tracker.SetStage(models.StageStarting, models.StageStatusFailed, now)
		if err := o.saveTracker(ctx, tracker); err != nil {
			log.Error("rollback: saving stage tracker failed", "error", err)
		}
	} else if _, err := o.store.Stages().GetByBuild(ctx, build.ID); err == nil {
		// A dangling tracker from a previous attempt: remove it.
		if err := o.store.Stages().Delete(ctx, build.ID); err != nil {
			log.Error("rollback: deleting stage tracker failed", "error", err)
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		log.Error("rollback: loading stage tracker failed", "error", err)
	}

	o.publish(ctx, notify.TopicBuildStateChanged, build)
	o.publish(ctx, notify.TopicBuildListChanged, build.UserID)

	o.refreshQueuedGauge(ctx)

	log.Warn("build invocation rolled back")
}

// StopBuild aborts an active build: the remote CI job is deleted, the
// request returns to Build, and the tracker and logs are removed.
func (o *Orchestrator) StopBuild(ctx context.Context, buildID string) error {
	if err := o.acquire(ctx); err != nil {
		return err
	}
	defer o.release()

	build, err := o.store.Builds().Get(ctx, buildID)
	if err != nil {
		return err
	}

	if build.Status.CanInvoke() {
		return invalidOperation("build %s is not active", buildID)
	}

	log := o.logger.With("build_id", buildID)

	if err := o.ci.DeleteJob(ctx, build.TagName); err != nil {
		return fmt.Errorf("deleting CI job %s: %w", build.TagName, err)
	}

	build.Status = models.BuildStatusBuild
	if err := o.store.Builds().Update(ctx, build); err != nil {
		return fmt.Errorf("resetting build request: %w", err)
	}

	// Reset-then-delete keeps subscribers consistent: they see the
	// tracker return to all-Waiting before it disappears.
	tracker, err := o.store.Stages().GetByBuild(ctx, buildID)
	if err == nil {
		tracker.Reset(time.Now().UTC())
		if err := o.saveTracker(ctx, tracker); err != nil {
			return err
		}
		if err := o.store.Stages().Delete(ctx, buildID); err != nil {
			return fmt.Errorf("deleting stage tracker: %w", err)
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("loading stage tracker: %w", err)
	}

	if err := o.store.Logs().DeleteAllForBuild(ctx, buildID); err != nil {
		return fmt.Errorf("deleting build logs: %w", err)
	}

	o.publish(ctx, notify.TopicBuildStateChanged, build)
	o.publish(ctx, notify.TopicBuildListChanged, build.UserID)
	o.metrics.StopsTotal.Inc()
	o.refreshQueuedGauge(ctx)

	log.Info("build stopped")
	return nil
}

// refreshQueuedGauge resyncs the queued-builds gauge after any
// transition that can change queue membership.
func (o *Orchestrator) refreshQueuedGauge(ctx context.Context) {
	queued, err := o.store.Builds().ListQueued(ctx)
	if err != nil {
		o.logger.Warn("refreshing queued builds gauge failed", "error", err)
		return
	}
	o.metrics.QueuedBuildsGauge.Set(float64(len(queued)))
}

// saveTracker persists the tracker and fans it out to subscribers.
func (o *Orchestrator) saveTracker(ctx context.Context, tracker *models.StageTracker) error {
	if err := o.store.Stages().Save(ctx, tracker); err != nil {
		return fmt.Errorf("saving stage tracker: %w", err)
	}
	o.publish(ctx, notify.TopicBuildStateChanged, tracker)
	return nil
}

// publish is best-effort: fan-out failures are logged, not surfaced.
func (o *Orchestrator) publish(ctx context.Context, topic string, payload any) {
	if err := o.notifier.Publish(ctx, topic, payload); err != nil {
		o.logger.Warn("notification publish failed", "topic", topic, "error", err)
	}
}
