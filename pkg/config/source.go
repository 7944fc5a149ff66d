// pkg/config/source.go
package config

import (
	"errors"
	"time"
)

// SourceConfig selects and parameterizes the extraction source.
type SourceConfig struct {
	// Kind is one of "csv", "http", "postgres" or "snowflake".
	Kind string

	// SourceID is the logical identifier used for watermark tracking and
	// per-source run serialization.
	SourceID string

	// IDField names the raw field carrying the stable record ID. When
	// empty, IDs are generated at extraction time.
	IDField string

	// TimestampField names the raw field carrying the record's natural
	// timestamp, used for window filtering.
	TimestampField string

	CSV       *CSVSourceConfig
	HTTP      *HTTPSourceConfig
	Postgres  *PostgresConfig
	Snowflake *SnowflakeConfig
}

// CSVSourceConfig parameterizes the CSV file source.
type CSVSourceConfig struct {
	// Path to the CSV file. Files ending in .gz are decompressed on read.
	Path string
}

// HTTPSourceConfig parameterizes the HTTP API source.
type HTTPSourceConfig struct {
	// URL is the endpoint returning a JSON array of row objects. The
	// extraction window is passed as window_start/window_end query params.
	URL string

	// Timeout bounds a single request.
	Timeout time.Duration
}

// TargetConfig selects and parameterizes the load destination.
type TargetConfig struct {
	// Kind is "postgres" or "memory".
	Kind string

	// Table is the destination table for SQL targets.
	Table string

	Postgres *PostgresConfig
}

// LoadSourceConfig loads the source configuration from environment variables.
func LoadSourceConfig() (*SourceConfig, error) {
	kind := getEnv("SOURCE_KIND", "")
	if kind == "" {
		return nil, errors.New("SOURCE_KIND environment variable is required")
	}

	sourceID := getEnv("SOURCE_ID", "")
	if sourceID == "" {
		return nil, errors.New("SOURCE_ID environment variable is required")
	}

	cfg := &SourceConfig{
		Kind:           kind,
		SourceID:       sourceID,
		IDField:        getEnv("SOURCE_ID_FIELD", "id"),
		TimestampField: getEnv("SOURCE_TIMESTAMP_FIELD", "updated_at"),
	}

	switch kind {
	case "csv":
		path := getEnv("CSV_PATH", "")
		if path == "" {
			return nil, errors.New("CSV_PATH environment variable is required for csv sources")
		}
		cfg.CSV = &CSVSourceConfig{Path: path}

	case "http":
		url := getEnv("HTTP_URL", "")
		if url == "" {
			return nil, errors.New("HTTP_URL environment variable is required for http sources")
		}
		cfg.HTTP = &HTTPSourceConfig{
			URL:     url,
			Timeout: getEnvAsDuration("HTTP_TIMEOUT_MS", 10*time.Second),
		}

	case "postgres":
		pgCfg, err := LoadPostgresConfig()
		if err != nil {
			return nil, err
		}
		cfg.Postgres = pgCfg

	case "snowflake":
		snowCfg, err := LoadSnowflakeConfig()
		if err != nil {
			return nil, err
		}
		cfg.Snowflake = snowCfg

	default:
		return nil, errors.New("SOURCE_KIND must be csv, http, postgres or snowflake")
	}

	return cfg, nil
}

// LoadTargetConfig loads the destination configuration from environment
// variables.
func LoadTargetConfig() (*TargetConfig, error) {
	kind := getEnv("TARGET_KIND", "postgres")

	cfg := &TargetConfig{
		Kind:  kind,
		Table: getEnv("TARGET_TABLE", ""),
	}

	switch kind {
	case "postgres":
		if cfg.Table == "" {
			return nil, errors.New("TARGET_TABLE environment variable is required for postgres targets")
		}
		pgCfg, err := LoadPostgresConfig()
		if err != nil {
			return nil, err
		}
		cfg.Postgres = pgCfg

	case "memory":
		// No further parameters; used for dry runs and tests.

	default:
		return nil, errors.New("TARGET_KIND must be postgres or memory")
	}

	return cfg, nil
}
