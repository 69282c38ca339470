package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/embedforge/buildplane/internal/models"
)

// BuildLogStore implements store.BuildLogStore using PostgreSQL.
type BuildLogStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// Append adds a log line for a build.
func (s *BuildLogStore) Append(ctx context.Context, entry *models.BuildLogEntry) error {
	query := `
		INSERT INTO build_logs (id, build_id, line, created_at)
		VALUES ($1, $2, $3, $4)`

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, query,
		entry.ID,
		entry.BuildID,
		entry.Line,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting build log entry: %w", err)
	}

	return nil
}

// List retrieves log lines for a build, oldest first.
func (s *BuildLogStore) List(ctx context.Context, buildID string, limit int) ([]*models.BuildLogEntry, error) {
	query := `
		SELECT id, build_id, line, created_at
		FROM build_logs
		WHERE build_id = $1
		ORDER BY created_at ASC
		LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, buildID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying build logs: %w", err)
	}
	defer rows.Close()

	var entries []*models.BuildLogEntry
	for rows.Next() {
		entry := &models.BuildLogEntry{}
		if err := rows.Scan(&entry.ID, &entry.BuildID, &entry.Line, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning build log row: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating build log rows: %w", err)
	}

	return entries, nil
}

// DeleteAllForBuild removes every log line of a build.
func (s *BuildLogStore) DeleteAllForBuild(ctx context.Context, buildID string) error {
	query := `DELETE FROM build_logs WHERE build_id = $1`

	if _, err := s.db.ExecContext(ctx, query, buildID); err != nil {
		return fmt.Errorf("deleting build logs: %w", err)
	}

	return nil
}
