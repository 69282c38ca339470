package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/embedforge/buildplane/internal/models"
	"github.com/embedforge/buildplane/internal/store"
)

// terminalStatuses are the statuses that do not occupy the execution
// slot. Everything else, including the opaque stage names mirrored
// into the status column, counts as active.
const terminalStatuses = `('Build', 'InQueue', 'Failed', 'Download')`

// BuildRequestStore implements store.BuildRequestStore using PostgreSQL.
type BuildRequestStore struct {
	db     *sql.DB
	logger *slog.Logger
}

const buildColumns = `id, project_id, user_id, status, tag_name, file_name,
	md5_hash, send_notification, deleted, created_at, updated_at`

// Create creates a new build request.
func (s *BuildRequestStore) Create(ctx context.Context, build *models.BuildRequest) error {
	query := `
		INSERT INTO build_requests (id, project_id, user_id, status, tag_name,
			file_name, md5_hash, send_notification, deleted, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	now := time.Now().UTC()
	if build.CreatedAt.IsZero() {
		build.CreatedAt = now
	}
	if build.UpdatedAt.IsZero() {
		build.UpdatedAt = now
	}

	_, err := s.db.ExecContext(ctx, query,
		build.ID,
		build.ProjectID,
		build.UserID,
		build.Status,
		build.TagName,
		build.FileName,
		build.MD5Hash,
		build.SendNotification,
		build.Deleted,
		build.CreatedAt,
		build.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting build request: %w", err)
	}

	return nil
}

// Get retrieves a build request by ID. Soft-deleted rows are treated
// as absent.
func (s *BuildRequestStore) Get(ctx context.Context, id string) (*models.BuildRequest, error) {
	query := `
		SELECT ` + buildColumns + `
		FROM build_requests
		WHERE id = $1 AND NOT deleted`

	build := &models.BuildRequest{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&build.ID,
		&build.ProjectID,
		&build.UserID,
		&build.Status,
		&build.TagName,
		&build.FileName,
		&build.MD5Hash,
		&build.SendNotification,
		&build.Deleted,
		&build.CreatedAt,
		&build.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("querying build request: %w", err)
	}

	return build, nil
}

// Update updates an existing build request.
func (s *BuildRequestStore) Update(ctx context.Context, build *models.BuildRequest) error {
	query := `
		UPDATE build_requests
		SET status = $2, tag_name = $3, send_notification = $4, updated_at = $5
		WHERE id = $1 AND NOT deleted`

	build.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, query,
		build.ID,
		build.Status,
		build.TagName,
		build.SendNotification,
		build.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("updating build request: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return store.ErrNotFound
	}

	return nil
}

// ListActive retrieves all builds of a user in an active status.
func (s *BuildRequestStore) ListActive(ctx context.Context, userID string) ([]*models.BuildRequest, error) {
	query := `
		SELECT ` + buildColumns + `
		FROM build_requests
		WHERE user_id = $1 AND status NOT IN ` + terminalStatuses + ` AND NOT deleted
		ORDER BY created_at ASC`

	return s.list(ctx, query, userID)
}

// ListAnyActive retrieves every active build regardless of owner.
func (s *BuildRequestStore) ListAnyActive(ctx context.Context) ([]*models.BuildRequest, error) {
	query := `
		SELECT ` + buildColumns + `
		FROM build_requests
		WHERE status NOT IN ` + terminalStatuses + ` AND NOT deleted
		ORDER BY created_at ASC`

	return s.list(ctx, query)
}

// ListQueued retrieves all builds waiting for the execution slot,
// oldest first.
func (s *BuildRequestStore) ListQueued(ctx context.Context) ([]*models.BuildRequest, error) {
	query := `
		SELECT ` + buildColumns + `
		FROM build_requests
		WHERE status = 'InQueue' AND NOT deleted
		ORDER BY created_at ASC`

	return s.list(ctx, query)
}

// ListByProject retrieves all builds for a project.
func (s *BuildRequestStore) ListByProject(ctx context.Context, projectID string) ([]*models.BuildRequest, error) {
	query := `
		SELECT ` + buildColumns + `
		FROM build_requests
		WHERE project_id = $1 AND NOT deleted
		ORDER BY created_at DESC`

	return s.list(ctx, query, projectID)
}

// ListStaleActive retrieves active builds created before now-olderThan.
func (s *BuildRequestStore) ListStaleActive(ctx context.Context, olderThan time.Duration) ([]*models.BuildRequest, error) {
	query := `
		SELECT ` + buildColumns + `
		FROM build_requests
		WHERE status NOT IN ` + terminalStatuses + ` AND NOT deleted
			AND created_at <= $1
		ORDER BY created_at ASC`

	cutoff := time.Now().UTC().Add(-olderThan)
	return s.list(ctx, query, cutoff)
}

// SoftDelete flips the deleted flag on a build request.
func (s *BuildRequestStore) SoftDelete(ctx context.Context, id string) error {
	query := `
		UPDATE build_requests
		SET deleted = TRUE, updated_at = $2
		WHERE id = $1 AND NOT deleted`

	result, err := s.db.ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("soft-deleting build request: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return store.ErrNotFound
	}

	return nil
}

func (s *BuildRequestStore) list(ctx context.Context, query string, args ...any) ([]*models.BuildRequest, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying build requests: %w", err)
	}
	defer rows.Close()

	var builds []*models.BuildRequest
	for rows.Next() {
		build := &models.BuildRequest{}
		err := rows.Scan(
			&build.ID,
			&build.ProjectID,
			&build.UserID,
			&build.Status,
			&build.TagName,
			&build.FileName,
			&build.MD5Hash,
			&build.SendNotification,
			&build.Deleted,
			&build.CreatedAt,
			&build.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning build request row: %w", err)
		}
		builds = append(builds, build)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating build request rows: %w", err)
	}

	return builds, nil
}
