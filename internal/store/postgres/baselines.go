package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/embedforge/buildplane/internal/models"
	"github.com/embedforge/buildplane/internal/store"
)

// BaselineStore implements store.BaselineStore using PostgreSQL.
type BaselineStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// GetSelected retrieves the selected baseline for a project.
func (s *BaselineStore) GetSelected(ctx context.Context, projectID string) (*models.Baseline, error) {
	query := `
		SELECT id, project_id, file_name, selected, created_at
		FROM baselines
		WHERE project_id = $1 AND selected
		ORDER BY created_at DESC
		LIMIT 1`

	baseline := &models.Baseline{}
	err := s.db.QueryRowContext(ctx, query, projectID).Scan(
		&baseline.ID,
		&baseline.ProjectID,
		&baseline.FileName,
		&baseline.Selected,
		&baseline.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("querying selected baseline: %w", err)
	}

	return baseline, nil
}
