// Package postgres provides the PostgreSQL implementation of the store interfaces.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/embedforge/buildplane/internal/store"
)

// PostgresStore implements store.Store using PostgreSQL.
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger

	builds    *BuildRequestStore
	stages    *StageTrackerStore
	baselines *BaselineStore
	logs      *BuildLogStore
}

// Config holds PostgreSQL connection configuration.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig(dsn string) *Config {
	return &Config{
		DSN:             dsn,
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 1 * time.Minute,
	}
}

// NewPostgresStore creates a new PostgreSQL store with the given configuration.
func NewPostgresStore(cfg *Config, logger *slog.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	s := &PostgresStore{
		db:     db,
		logger: logger,
	}

	s.builds = &BuildRequestStore{db: db, logger: logger}
	s.stages = &StageTrackerStore{db: db, logger: logger}
	s.baselines = &BaselineStore{db: db, logger: logger}
	s.logs = &BuildLogStore{db: db, logger: logger}

	logger.Info("connected to PostgreSQL database")
	return s, nil
}

// Builds returns the BuildRequestStore.
func (s *PostgresStore) Builds() store.BuildRequestStore { return s.builds }

// Stages returns the StageTrackerStore.
func (s *PostgresStore) Stages() store.StageTrackerStore { return s.stages }

// Baselines returns the BaselineStore.
func (s *PostgresStore) Baselines() store.BaselineStore { return s.baselines }

// Logs returns the BuildLogStore.
func (s *PostgresStore) Logs() store.BuildLogStore { return s.logs }

// DB exposes the underlying connection for auxiliary consumers.
func (s *PostgresStore) DB() *sql.DB { return s.db }

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
