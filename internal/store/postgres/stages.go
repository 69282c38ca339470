package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/embedforge/buildplane/internal/models"
	"github.com/embedforge/buildplane/internal/store"
)

// StageTrackerStore implements store.StageTrackerStore using PostgreSQL.
// The ordered stage list is serialized to a JSONB column; one row per
// build at a time, replaced on rebuild.
type StageTrackerStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// Save inserts the tracker, overwriting the existing row for the same
// build ID.
func (s *StageTrackerStore) Save(ctx context.Context, tracker *models.StageTracker) error {
	stages, err := json.Marshal(tracker.Stages)
	if err != nil {
		return fmt.Errorf("marshaling stages: %w", err)
	}

	now := time.Now().UTC()
	if tracker.CreatedAt.IsZero() {
		tracker.CreatedAt = now
	}
	tracker.UpdatedAt = now

	query := `
		INSERT INTO stage_trackers (build_id, user_id, project_id, in_queue,
			stages, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (build_id) DO UPDATE
		SET user_id = EXCLUDED.user_id,
			project_id = EXCLUDED.project_id,
			in_queue = EXCLUDED.in_queue,
			stages = EXCLUDED.stages,
			updated_at = EXCLUDED.updated_at`

	_, err = s.db.ExecContext(ctx, query,
		tracker.BuildID,
		tracker.UserID,
		tracker.ProjectID,
		tracker.InQueue,
		stages,
		tracker.CreatedAt,
		tracker.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("saving stage tracker: %w", err)
	}

	return nil
}

// GetByBuild retrieves the tracker for a build.
func (s *StageTrackerStore) GetByBuild(ctx context.Context, buildID string) (*models.StageTracker, error) {
	query := `
		SELECT build_id, user_id, project_id, in_queue, stages, created_at, updated_at
		FROM stage_trackers
		WHERE build_id = $1`

	tracker := &models.StageTracker{}
	var stages []byte

	err := s.db.QueryRowContext(ctx, query, buildID).Scan(
		&tracker.BuildID,
		&tracker.UserID,
		&tracker.ProjectID,
		&tracker.InQueue,
		&stages,
		&tracker.CreatedAt,
		&tracker.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("querying stage tracker: %w", err)
	}

	if err := json.Unmarshal(stages, &tracker.Stages); err != nil {
		return nil, fmt.Errorf("unmarshaling stages: %w", err)
	}

	return tracker, nil
}

// Delete removes the tracker for a build. An absent tracker is not an
// error.
func (s *StageTrackerStore) Delete(ctx context.Context, buildID string) error {
	query := `DELETE FROM stage_trackers WHERE build_id = $1`

	if _, err := s.db.ExecContext(ctx, query, buildID); err != nil {
		return fmt.Errorf("deleting stage tracker: %w", err)
	}

	return nil
}
