// pkg/connector/factory.go
package connector

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/meridian-data/etl-runner/pkg/config"
	"github.com/meridian-data/etl-runner/pkg/model"
)

// Factory creates source and destination connectors from configuration.
type Factory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewFactory creates a connector factory.
func NewFactory(cfg *config.Config, logger *zap.Logger) *Factory {
	return &Factory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateSource creates the configured extraction source.
func (f *Factory) CreateSource(ctx context.Context) (Source, error) {
	src := f.cfg.Source
	f.logger.Info("Creating source connector",
		zap.String("kind", src.Kind),
		zap.String("sourceID", src.SourceID))

	switch src.Kind {
	case "csv":
		return NewCSVSource(src.CSV, src.TimestampField, f.logger), nil

	case "http":
		return NewHTTPSource(src.HTTP, f.logger), nil

	case "postgres":
		source, err := NewPostgresSource(ctx, src.Postgres, src.TimestampField, f.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create PostgreSQL source: %w", err)
		}
		return source, nil

	case "snowflake":
		source, err := NewSnowflakeSource(ctx, src.Snowflake, src.TimestampField, f.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create Snowflake source: %w", err)
		}
		return source, nil

	default:
		return nil, &model.ConfigurationError{
			Component: "source",
			Reason:    fmt.Sprintf("unknown source kind %q", src.Kind),
		}
	}
}

// CreateDestination creates the configured load destination.
func (f *Factory) CreateDestination(ctx context.Context) (Destination, error) {
	tgt := f.cfg.Target
	f.logger.Info("Creating destination connector", zap.String("kind", tgt.Kind))

	switch tgt.Kind {
	case "postgres":
		dest, err := NewPostgresDestination(ctx, tgt.Postgres, tgt.Table, f.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create PostgreSQL destination: %w", err)
		}
		return dest, nil

	case "memory":
		return NewMemoryDestination(), nil

	default:
		return nil, &model.ConfigurationError{
			Component: "target",
			Reason:    fmt.Sprintf("unknown target kind %q", tgt.Kind),
		}
	}
}
