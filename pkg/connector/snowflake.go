// pkg/connector/snowflake.go
package connector

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/snowflakedb/gosnowflake"
	"go.uber.org/zap"

	"github.com/meridian-data/etl-runner/pkg/config"
	"github.com/meridian-data/etl-runner/pkg/model"
)

// SnowflakeSource extracts rows from a Snowflake table bounded by the
// extraction window on a timestamp column.
type SnowflakeSource struct {
	db             *sqlx.DB
	table          string
	timestampField string
	queryTimeout   time.Duration
	logger         *zap.Logger
}

// NewSnowflakeSource creates and connects a Snowflake source.
func NewSnowflakeSource(ctx context.Context, cfg *config.SnowflakeConfig, timestampField string, logger *zap.Logger) (*SnowflakeSource, error) {
	log := logger.Named("snowflake-source")

	log.Info("Connecting to Snowflake",
		zap.String("account", cfg.Account),
		zap.String("database", cfg.Database),
		zap.String("warehouse", cfg.Warehouse),
		zap.String("user", cfg.User))

	db, err := sqlx.Open("snowflake", cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Snowflake connection: %w", err)
	}

	ApplyConnectionSettings(db.DB, cfg.MaxOpenConns, cfg.MaxIdleConns, cfg.ConnMaxLifetime, cfg.ConnMaxIdleTime)

	if err := PingWithTimeout(ctx, db.DB, 10*time.Second); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to Snowflake: %w", err)
	}

	LogConnectionStats(log, cfg.Database, db.DB)

	return &SnowflakeSource{
		db:             db,
		table:          cfg.Table,
		timestampField: timestampField,
		queryTimeout:   cfg.QueryTimeout,
		logger:         log,
	}, nil
}

// Name identifies the connector.
func (s *SnowflakeSource) Name() string {
	return "snowflake-source"
}

// Fetch returns all rows whose timestamp falls in [start, end), ordered so a
// fixed window always yields the same sequence.
func (s *SnowflakeSource) Fetch(ctx context.Context, window model.Window) ([]RawRow, error) {
	query := fmt.Sprintf(
		"SELECT * FROM %s WHERE %s >= ? AND %s < ? ORDER BY %s",
		s.table, s.timestampField, s.timestampField, s.timestampField,
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
func (s *SnowflakeSource) Close() error {
	s.logger.Info("Closing Snowflake connection")
	return s.db.Close()
}
