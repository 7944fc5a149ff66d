// pkg/connector/connector.go
package connector

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/meridian-data/etl-runner/pkg/model"
)

// RawRow is one raw row mapping delivered by a source, with the source's
// field order preserved.
type RawRow struct {
	Fields map[string]interface{}
	Order  []string
}

// Source is the extraction contract. Fetch must be deterministic for a fixed
// window: two calls with the same window return the same rows, which is what
// makes re-running a failed window safe.
type Source interface {
	// Name identifies the connector in logs and error records.
	Name() string

	// Fetch returns the raw rows bounded by the extraction window.
	Fetch(ctx context.Context, window model.Window) ([]RawRow, error)

	// Close releases any resources held by the source.
	Close() error
}

// Destination is the load contract. UpsertBatch is keyed by record ID
// (insert if absent, replace if present) and atomic per call: either the
// whole batch commits or none of it does.
type Destination interface {
	// Name identifies the connector in logs and error records.
	Name() string

	// UpsertBatch writes the batch. Committed is false and RecordsLoaded
	// zero when the write fails.
	UpsertBatch(ctx context.Context, batch *model.Batch) (model.LoadResult, error)

	// Close releases any resources held by the destination.
	Close() error
}

// PingWithTimeout attempts to ping a database with a timeout.
func PingWithTimeout(ctx context.Context, db *sql.DB, timeout time.Duration) error {
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- db.PingContext(pingCtx)
	}()

	select {
	case err := <-errCh:
		return err
	case <-pingCtx.Done():
		return fmt.Errorf("ping timed out after %v: %w", timeout, pingCtx.Err())
	}
}

// ApplyConnectionSettings configures database connection pool settings.
func ApplyConnectionSettings(db *sql.DB, maxOpen, maxIdle int, maxLifetime, maxIdleTime time.Duration) {
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		db.SetMaxIdleConns(maxIdle)
	}
	if maxLifetime > 0 {
		db.SetConnMaxLifetime(maxLifetime)
	}
	if maxIdleTime > 0 {
		db.SetConnMaxIdleTime(maxIdleTime)
	}
}

// LogConnectionStats logs connection pool statistics.
func LogConnectionStats(logger *zap.Logger, name string, db *sql.DB) {
	stats := db.Stats()
	logger.Debug("Connection pool stats",
		zap.String("database", name),
		zap.Int("open_connections", stats.OpenConnections),
		zap.Int("in_use", stats.InUse),
		zap.Int("idle", stats.Idle),
		zap.Int("max_open", stats.MaxOpenConnections),
	)
}
