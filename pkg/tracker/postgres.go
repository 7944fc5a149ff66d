// pkg/tracker/postgres.go
package tracker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/meridian-data/etl-runner/pkg/model"
)

// PostgresStore persists watermarks in a PostgreSQL table, one row per
// source, so watermark state survives process restarts.
type PostgresStore struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewPostgresStore creates a store on an existing connection and ensures the
// watermark table exists.
func NewPostgresStore(ctx context.Context, db *sqlx.DB, logger *zap.Logger) (*PostgresStore, error) {
	store := &PostgresStore{
		db:     db,
		logger: logger.Named("watermark-store"),
	}

	if err := store.ensureTable(ctx); err != nil {
		return nil, fmt.Errorf("failed to setup watermark table: %w", err)
	}

	return store, nil
}

// ensureTable creates the watermark tracking table when missing.
func (s *PostgresStore) ensureTable(ctx context.Context) error {
	createSQL := `
		CREATE TABLE IF NOT EXISTS etl_watermarks (
			source_id TEXT PRIMARY KEY,
			last_processed_at TIMESTAMP WITH TIME ZONE NOT NULL,
			last_run_status TEXT NOT NULL,
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
		)
	`

	execCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if _, err := s.db.ExecContext(execCtx, createSQL); err != nil {
		return fmt.Errorf("failed to create watermark table: %w", err)
	}

	s.logger.Info("Ensured etl_watermarks table exists")
	return nil
}

// Get returns the watermark for a source, or nil when the source has never
// committed a run.
func (s *PostgresStore) Get(ctx context.Context, sourceID string) (*model.Watermark, error) {
	var wm model.Watermark
	err := s.db.GetContext(ctx, &wm,
		"SELECT source_id, last_processed_at, last_run_status FROM etl_watermarks WHERE source_id = $1",
		sourceID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read watermark for %s: %w", sourceID, err)
	}
	return &wm, nil
}

// Put inserts or replaces the watermark row for its source.
func (s *PostgresStore) Put(ctx context.Context, wm model.Watermark) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO etl_watermarks (source_id, last_processed_at, last_run_status, updated_at)
		VALUES ($1, $2, $3, CURRENT_TIMESTAMP)
		ON CONFLICT (source_id) DO UPDATE
		SET last_processed_at = EXCLUDED.last_processed_at,
		    last_run_status = EXCLUDED.last_run_status,
		    updated_at = EXCLUDED.updated_at
	`, wm.SourceID, wm.LastProcessedAt, wm.LastRunStatus)
	if err != nil {
		return fmt.Errorf("failed to write watermark for %s: %w", wm.SourceID, err)
	}
	return nil
}
