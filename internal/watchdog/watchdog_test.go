package watchdog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embedforge/buildplane/internal/models"
	"github.com/embedforge/buildplane/internal/store"
)

// fakeStore covers the slices of store.Store the watchdog touches.
type fakeStore struct {
	mu       sync.Mutex
	builds   map[string]*models.BuildRequest
	trackers map[string]*models.StageTracker

	listErr   error
	updateErr map[string]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		builds:    make(map[string]*models.BuildRequest),
		trackers:  make(map[string]*models.StageTracker),
		updateErr: make(map[string]error),
	}
}

func (f *fakeStore) Builds() store.BuildRequestStore { return (*fakeBuilds)(f) }
func (f *fakeStore) Stages() store.StageTrackerStore { return (*fakeTrackers)(f) }
func (f *fakeStore) Baselines() store.BaselineStore  { return nil }
func (f *fakeStore) Logs() store.BuildLogStore       { return nil }
func (f *fakeStore) Close() error                    { return nil }

type fakeBuilds fakeStore

func (f *fakeBuilds) Create(ctx context.Context, b *models.BuildRequest) error { return nil }

func (f *fakeBuilds) Get(ctx context.Context, id string) (*models.BuildRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.builds[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (f *fakeBuilds) Update(ctx context.Context, b *models.BuildRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.updateErr[b.ID]; err != nil {
		return err
	}
	cp := *b
	f.builds[b.ID] = &cp
	return nil
}

func (f *fakeBuilds) ListActive(ctx context.Context, userID string) ([]*models.BuildRequest, error) {
	return nil, nil
}

func (f *fakeBuilds) ListAnyActive(ctx context.Context) ([]*models.BuildRequest, error) {
	return nil, nil
}

func (f *fakeBuilds) ListQueued(ctx context.Context) ([]*models.BuildRequest, error) {
	return nil, nil
}

func (f *fakeBuilds) ListByProject(ctx context.Context, projectID string) ([]*models.BuildRequest, error) {
	return nil, nil
}

func (f *fakeBuilds) ListStaleActive(ctx context.Context, olderThan time.Duration) ([]*models.BuildRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	cutoff := time.Now().Add(-olderThan)
	var out []*models.BuildRequest
	for _, b := range f.builds {
		if b.Status.IsActive() && b.CreatedAt.Before(cutoff) {
			cp := *b
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeBuilds) SoftDelete(ctx context.Context, id string) error { return nil }

type fakeTrackers fakeStore

func (f *fakeTrackers) Save(ctx context.Context, tr *models.StageTracker) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *tr
	cp.Stages = append([]models.Stage(nil), tr.Stages...)
	f.trackers[tr.BuildID] = &cp
	return nil
}

func (f *fakeTrackers) GetByBuild(ctx context.Context, buildID string) (*models.StageTracker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tr, ok := f.trackers[buildID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *tr
	cp.Stages = append([]models.Stage(nil), tr.Stages...)
	return &cp, nil
}

func (f *fakeTrackers) Delete(ctx context.Context, buildID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.trackers, buildID)
	return nil
}

func seed(fs *fakeStore, id string, status models.BuildStatus, age time.Duration) {
	fs.builds[id] = &models.BuildRequest{
		ID:        id,
		UserID:    "u1",
		ProjectID: "p1",
		Status:    status,
		CreatedAt: time.Now().Add(-age),
		UpdatedAt: time.Now().Add(-age),
	}
}

func TestSweepFailsStaleBuilds(t *testing.T) {
	fs := newFakeStore()
	seed(fs, "stale", models.BuildStatus("Compiling"), 2*time.Hour)
	seed(fs, "young", models.BuildStatus("Compiling"), 5*time.Minute)
	seed(fs, "idle", models.BuildStatusBuild, 3*time.Hour)

	now := time.Now().UTC()
	tracker := models.NewStageTracker("stale", "u1", "p1", false, now.Add(-2*time.Hour))
	tracker.SetStage(models.StageStarting, models.StageStatusDone, now.Add(-2*time.Hour))
	tracker.SetStage(models.StageCompiling, models.StageStatusInProgress, now.Add(-2*time.Hour))
	fs.trackers["stale"] = tracker

	w := New(fs, nil, nil, time.Minute, time.Hour, nil)
	require.NoError(t, w.Sweep(context.Background()))

	assert.Equal(t, models.BuildStatusFailed, fs.builds["stale"].Status)
	assert.Equal(t, models.BuildStatus("Compiling"), fs.builds["young"].Status)
	assert.Equal(t, models.BuildStatusBuild, fs.builds["idle"].Status)

	// The stage that was running when the build went quiet is failed.
	got := fs.trackers["stale"]
	require.NotNil(t, got)
	compiling := got.Stage(models.StageCompiling)
	require.NotNil(t, compiling)
	assert.Equal(t, models.StageStatusFailed, compiling.Status)
	// Earlier finished stages keep their result.
	assert.Equal(t, models.StageStatusDone, got.Stage(models.StageStarting).Status)
}

func TestSweepMissingTrackerIsFine(t *testing.T) {
	fs := newFakeStore()
	seed(fs, "stale", models.BuildStatus("NvmGen"), 2*time.Hour)

	w := New(fs, nil, nil, time.Minute, time.Hour, nil)
	require.NoError(t, w.Sweep(context.Background()))
	assert.Equal(t, models.BuildStatusFailed, fs.builds["stale"].Status)
}

func TestSweepListErrorIsReturned(t *testing.T) {
	fs := newFakeStore()
	fs.listErr = errors.New("db down")

	w := New(fs, nil, nil, time.Minute, time.Hour, nil)
	assert.Error(t, w.Sweep(context.Background()))
}

func TestSweepContinuesPastUpdateError(t *testing.T) {
	fs := newFakeStore()
	seed(fs, "bad", models.BuildStatus("Compiling"), 2*time.Hour)
	seed(fs, "good", models.BuildStatus("RteGen"), 2*time.Hour)
	fs.updateErr["bad"] = errors.New("row locked")

	w := New(fs, nil, nil, time.Minute, time.Hour, nil)
	require.NoError(t, w.Sweep(context.Background()))

	assert.Equal(t, models.BuildStatus("Compiling"), fs.builds["bad"].Status)
	assert.Equal(t, models.BuildStatusFailed, fs.builds["good"].Status)
}

func TestStartStopsOnContextCancel(t *testing.T) {
	fs := newFakeStore()
	w := New(fs, nil, nil, 10*time.Millisecond, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- w.Start(ctx)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("watchdog did not stop after context cancellation")
	}
}

func TestStopTerminatesLoop(t *testing.T) {
	fs := newFakeStore()
	w := New(fs, nil, nil, 10*time.Millisecond, time.Hour, nil)

	done := make(chan error, 1)
	go func() {
		done <- w.Start(context.Background())
	}()

	time.Sleep(30 * time.Millisecond)
	w.Stop()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("watchdog did not stop")
	}
}
