package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/meridian-data/etl-runner/pkg/config"
	"github.com/meridian-data/etl-runner/pkg/connector"
	"github.com/meridian-data/etl-runner/pkg/model"
	"github.com/meridian-data/etl-runner/pkg/pipeline"
	"github.com/meridian-data/etl-runner/pkg/rules"
	"github.com/meridian-data/etl-runner/pkg/tracker"
)

func main() {
	// Load .env when present; real deployments set the environment directly.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := config.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	os.Exit(run(cfg, logger))
}

// run executes one batch run and returns the process exit code:
// 0 succeeded, 1 partially succeeded, 2 failed, 3 setup error.
func run(cfg *config.Config, logger *zap.Logger) int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Cancel the run on SIGINT/SIGTERM so connectors can close cleanly.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-quit
		logger.Warn("Received signal, cancelling run", zap.String("signal", sig.String()))
		cancel()
	}()

	// 1. Load the validation rule battery
	ruleConfigs, err := config.LoadRules(cfg.RulesPath)
	if err != nil {
		logger.Error("Failed to load rules", zap.Error(err))
		return 3
	}

	validator, err := rules.NewValidator(ruleConfigs, logger)
	if err != nil {
		logger.Error("Failed to build validator", zap.Error(err))
		return 3
	}
	logger.Info("Validator ready", zap.Int("rules", validator.RuleCount()))

	// 2. Create connectors
	factory := connector.NewFactory(cfg, logger)

	source, err := factory.CreateSource(ctx)
	if err != nil {
		logger.Error("Failed to create source", zap.Error(err))
		return 3
	}
	defer source.Close()

	dest, err := factory.CreateDestination(ctx)
	if err != nil {
		logger.Error("Failed to create destination", zap.Error(err))
		return 3
	}
	defer dest.Close()

	// 3. Watermark store
	store, closeStore, err := newWatermarkStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to create watermark store", zap.Error(err))
		return 3
	}
	defer closeStore()

	trk := tracker.NewTracker(store, cfg.Watermark.EpochDefault, logger)

	// 4. Assemble the pipeline
	ops, err := pipeline.LoadOps(cfg.TransformsPath)
	if err != nil {
		logger.Error("Failed to load transforms", zap.Error(err))
		return 3
	}

	transformer, err := pipeline.NewTransformer(ops, logger)
	if err != nil {
		logger.Error("Failed to build transformer", zap.Error(err))
		return 3
	}

	runner := pipeline.NewRunner(
		cfg.Source.SourceID,
		pipeline.NewExtractor(source, cfg.Source.IDField, logger),
		transformer,
		validator,
		pipeline.NewLoader(dest, logger),
		trk,
		pipeline.RetryPolicy{
			MaxRetries: cfg.Retry.MaxRetries,
			BaseDelay:  cfg.Retry.BaseDelay,
			MaxDelay:   cfg.Retry.MaxDelay,
		},
		cfg.RunTimeout,
		logger,
	)

	// 5. Run and report
	report := runner.Run(ctx)
	fmt.Println(rules.RenderQualityReport(report))

	switch report.State {
	case model.RunStateSucceeded:
		return 0
	case model.RunStatePartiallySucceeded:
		return 1
	default:
		return 2
	}
}

// newWatermarkStore builds the configured store and returns a cleanup
// function for any connection it opened.
func newWatermarkStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (tracker.WatermarkStore, func(), error) {
	switch cfg.Watermark.Store {
	case "postgres":
		pgCfg := cfg.Target.Postgres
		if pgCfg == nil {
			return nil, nil, &model.ConfigurationError{
				Component: "watermark",
				Reason:    "postgres watermark store requires target postgres settings",
			}
		}

		db, err := sqlx.Open("pgx", pgCfg.ConnectionString())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open watermark connection: %w", err)
		}
		if err := connector.PingWithTimeout(ctx, db.DB, 10*time.Second); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to ping watermark database: %w", err)
		}

		store, err := tracker.NewPostgresStore(ctx, db, logger)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return store, func() { db.Close() }, nil

	default:
		return tracker.NewMemoryStore(), func() {}, nil
	}
}
