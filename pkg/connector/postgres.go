// pkg/connector/postgres.go
package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/meridian-data/etl-runner/pkg/config"
	"github.com/meridian-data/etl-runner/pkg/model"
)

// openPostgres opens and verifies a PostgreSQL connection with the pool
// settings from configuration.
func openPostgres(ctx context.Context, cfg *config.PostgresConfig, logger *zap.Logger) (*sqlx.DB, error) {
	logger.Info("Connecting to PostgreSQL",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("database", cfg.Database),
		zap.String("user", cfg.User))

	db, err := sqlx.Open("pgx", cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL connection: %w", err)
	}

	ApplyConnectionSettings(db.DB, cfg.MaxOpenConns, cfg.MaxIdleConns, cfg.ConnMaxLifetime, cfg.ConnMaxIdleTime)

	if cfg.StatementTimeout > 0 {
		_, err = db.ExecContext(ctx,
			fmt.Sprintf("SET statement_timeout = %d", cfg.StatementTimeout.Milliseconds()))
		if err != nil {
			logger.Warn("Failed to set statement timeout", zap.Error(err))
		}
	}

	if err := PingWithTimeout(ctx, db.DB, 5*time.Second); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	LogConnectionStats(logger, cfg.Database, db.DB)
	return db, nil
}

// PostgresSource extracts rows from a PostgreSQL table bounded by the
// extraction window on a timestamp column. Results are ordered so that a
// fixed window always yields the same sequence.
type PostgresSource struct {
	db             *sqlx.DB
	table          string
	timestampField string
	queryTimeout   time.Duration
	logger         *zap.Logger
}

// NewPostgresSource creates and connects a PostgreSQL source.
func NewPostgresSource(ctx context.Context, cfg *config.PostgresConfig, timestampField string, logger *zap.Logger) (*PostgresSource, error) {
	log := logger.Named("postgres-source")

	if cfg.Table == "" {
		return nil, &model.ConfigurationError{Component: "postgres source", Reason: "table is required"}
	}

	db, err := openPostgres(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	return &PostgresSource{
		db:             db,
		table:          cfg.Table,
		timestampField: timestampField,
		queryTimeout:   cfg.StatementTimeout,
		logger:         log,
	}, nil
}

// Name identifies the connector.
func (s *PostgresSource) Name() string {
	return "postgres-source"
}

// Fetch returns all rows whose timestamp falls in [start, end).
func (s *PostgresSource) Fetch(ctx context.Context, window model.Window) ([]RawRow, error) {
	query := fmt.Sprintf(
		"SELECT * FROM %s WHERE %s >= $1 AND %s < $2 ORDER BY %s, 1",
		pq.QuoteIdentifier(s.table),
		pq.QuoteIdentifier(s.timestampField),
		pq.QuoteIdentifier(s.timestampField),
		pq.QuoteIdentifier(s.timestampField),
	)

	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	rows, err := s.db.QueryxContext(queryCtx, query, window.Start, window.End)
	if err != nil {
		return nil, model.NewConnectorError(s.Name(), "fetch", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, model.NewConnectorError(s.Name(), "fetch", err)
	}

	result := make([]RawRow, 0)
	for rows.Next() {
		fields := make(map[string]interface{}, len(columns))
		if err := rows.MapScan(fields); err != nil {
			return nil, model.NewConnectorError(s.Name(), "fetch", err)
		}
		result = append(result, RawRow{Fields: fields, Order: append([]string(nil), columns...)})
	}
	if err := rows.Err(); err != nil {
		return nil, model.NewConnectorError(s.Name(), "fetch", err)
	}

	s.logger.Info("Fetched rows",
		zap.String("table", s.table),
		zap.String("window", window.String()),
		zap.Int("rows", len(result)))

	return result, nil
}

// Close closes the database connection.
func (s *PostgresSource) Close() error {
	s.logger.Info("Closing PostgreSQL source connection")
	return s.db.Close()
}

// PostgresDestination loads batches into a PostgreSQL table with an atomic
// per-batch upsert keyed by record_id: insert if absent, replace if present.
// This is the idempotence mechanism that makes re-running a partially failed
// window safe instead of duplicative.
type PostgresDestination struct {
	db           *sqlx.DB
	table        string
	queryTimeout time.Duration
	logger       *zap.Logger
}

// NewPostgresDestination creates and connects a PostgreSQL destination,
// ensuring the target table exists.
func NewPostgresDestination(ctx context.Context, cfg *config.PostgresConfig, table string, logger *zap.Logger) (*PostgresDestination, error) {
	log := logger.Named("postgres-destination")

	db, err := openPostgres(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	dest := &PostgresDestination{
		db:           db,
		table:        table,
		queryTimeout: cfg.StatementTimeout,
		logger:       log,
	}

	if err := dest.ensureTable(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure destination table: %w", err)
	}

	return dest, nil
}

// ensureTable creates the destination table when missing. Record fields are
// stored in a jsonb payload keyed by record_id, so the destination accepts
// any field shape the transform stage produces.
func (d *PostgresDestination) ensureTable(ctx context.Context) error {
	createSQL := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			record_id TEXT PRIMARY KEY,
			fields JSONB NOT NULL,
			loaded_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
		)
	`, pq.QuoteIdentifier(d.table))

	execCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if _, err := d.db.ExecContext(execCtx, createSQL); err != nil {
		return fmt.Errorf("failed to create table %s: %w", d.table, err)
	}

	d.logger.Info("Ensured destination table exists", zap.String("table", d.table))
	return nil
}

// Name identifies the connector.
func (d *PostgresDestination) Name() string {
	return "postgres-destination"
}

// UpsertBatch writes the whole batch in one transaction. Conflict resolution
// is last write wins: the new fields replace the stored ones.
func (d *PostgresDestination) UpsertBatch(ctx context.Context, batch *model.Batch) (model.LoadResult, error) {
	if batch.Len() == 0 {
		return model.LoadResult{RecordsLoaded: 0, Committed: true}, nil
	}

	execCtx, cancel := context.WithTimeout(ctx, d.queryTimeout)
	defer cancel()

	tx, err := d.db.BeginTxx(execCtx, nil)
	if err != nil {
		return model.LoadResult{}, model.NewConnectorError(d.Name(), "upsert_batch", err)
	}

	upsertSQL := fmt.Sprintf(`
		INSERT INTO %s (record_id, fields, loaded_at)
		VALUES ($1, $2, CURRENT_TIMESTAMP)
		ON CONFLICT (record_id) DO UPDATE
		SET fields = EXCLUDED.fields, loaded_at = EXCLUDED.loaded_at
	`, pq.QuoteIdentifier(d.table))

	stmt, err := tx.PreparexContext(execCtx, upsertSQL)
	if err != nil {
		tx.Rollback()
		return model.LoadResult{}, model.NewConnectorError(d.Name(), "upsert_batch", err)
	}
	defer stmt.Close()

	for _, rec := range batch.Records {
		payload, err := encodeFields(rec)
		if err != nil {
			tx.Rollback()
			return model.LoadResult{}, model.NewConnectorError(d.Name(), "upsert_batch", err)
		}
		if _, err := stmt.ExecContext(execCtx, rec.ID(), payload); err != nil {
			tx.Rollback()
			return model.LoadResult{}, model.NewConnectorError(d.Name(), "upsert_batch", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return model.LoadResult{}, model.NewConnectorError(d.Name(), "upsert_batch", err)
	}

	d.logger.Info("Upserted batch",
		zap.String("table", d.table),
		zap.Int("records", batch.Len()))

	return model.LoadResult{RecordsLoaded: batch.Len(), Committed: true}, nil
}

// Close closes the database connection.
func (d *PostgresDestination) Close() error {
	d.logger.Info("Closing PostgreSQL destination connection")
	LogConnectionStats(d.logger, d.table, d.db.DB)
	return d.db.Close()
}

// encodeFields renders a record's fields as a JSON object for the jsonb
// payload column. []byte values are stored as strings.
func encodeFields(rec *model.Record) ([]byte, error) {
	fields := make(map[string]interface{}, len(rec.FieldNames()))
	for _, name := range rec.FieldNames() {
		value, _ := rec.Field(name)
		if b, ok := value.([]byte); ok {
			value = string(b)
		}
		fields[name] = value
	}
	return json.Marshal(fields)
}
