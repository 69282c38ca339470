// Package store provides database access interfaces and implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/embedforge/buildplane/internal/models"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("resource not found")

// BuildRequestStore defines operations for build request management.
// All list operations exclude soft-deleted rows.
type BuildRequestStore interface {
	// Create creates a new build request.
	Create(ctx context.Context, build *models.BuildRequest) error
	// Get retrieves a build request by ID. Soft-deleted rows are not
	// returned.
	Get(ctx context.Context, id string) (*models.BuildRequest, error)
	// Update updates an existing build request.
	Update(ctx context.Context, build *models.BuildRequest) error
	// ListActive retrieves all builds of a user in an active status.
	ListActive(ctx context.Context, userID string) ([]*models.BuildRequest, error)
	// ListAnyActive retrieves every active build in the store,
	// regardless of owner.
	ListAnyActive(ctx context.Context) ([]*models.BuildRequest, error)
	// ListQueued retrieves all builds waiting for the execution slot,
	// ordered by created_at ascending.
	ListQueued(ctx context.Context) ([]*models.BuildRequest, error)
	// ListByProject retrieves all builds for a project.
	ListByProject(ctx context.Context, projectID string) ([]*models.BuildRequest, error)
	// ListStaleActive retrieves active builds older than the given age.
	ListStaleActive(ctx context.Context, olderThan time.Duration) ([]*models.BuildRequest, error)
	// SoftDelete flips the deleted flag; the row is never physically
	// removed.
	SoftDelete(ctx context.Context, id string) error
}

// StageTrackerStore defines operations for stage tracker management.
type StageTrackerStore interface {
	// Save inserts the tracker, or overwrites the existing row for the
	// same build ID.
	Save(ctx context.Context, tracker *models.StageTracker) error
	// GetByBuild retrieves the tracker for a build.
	GetByBuild(ctx context.Context, buildID string) (*models.StageTracker, error)
	// Delete removes the tracker for a build. Deleting an absent
	// tracker is not an error.
	Delete(ctx context.Context, buildID string) error
}

// BaselineStore defines operations for baseline artifact lookup.
type BaselineStore interface {
	// GetSelected retrieves the selected baseline for a project.
	// Returns ErrNotFound when no baseline is selected.
	GetSelected(ctx context.Context, projectID string) (*models.Baseline, error)
}

// BuildLogStore defines operations for build log management.
type BuildLogStore interface {
	// Append adds a log line for a build.
	Append(ctx context.Context, entry *models.BuildLogEntry) error
	// List retrieves log lines for a build, oldest first.
	List(ctx context.Context, buildID string, limit int) ([]*models.BuildLogEntry, error)
	// DeleteAllForBuild removes every log line of a build.
	DeleteAllForBuild(ctx context.Context, buildID string) error
}

// Store is the main interface for database operations.
type Store interface {
	// Builds returns the BuildRequestStore.
	Builds() BuildRequestStore
	// Stages returns the StageTrackerStore.
	Stages() StageTrackerStore
	// Baselines returns the BaselineStore.
	Baselines() BaselineStore
	// Logs returns the BuildLogStore.
	Logs() BuildLogStore

	// Close closes the database connection.
	Close() error
}
