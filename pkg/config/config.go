// pkg/config/config.go
package config

import (
	"errors"
	"os"
	"strconv"
	"time"
)

// Config represents the application configuration.
type Config struct {
	// Source and destination selection
	Source SourceConfig
	Target TargetConfig

	// Watermark tracking
	Watermark WatermarkConfig

	// Validation rule battery file
	RulesPath string

	// Optional transform operations file; empty means no transforms.
	TransformsPath string

	// Runner settings
	Retry      RetryConfig
	RunTimeout time.Duration

	// Logging
	LogLevel  string
	LogFormat string
}

// RetryConfig is the backoff policy applied to the I/O stages.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// WatermarkConfig selects and parameterizes the watermark store.
type WatermarkConfig struct {
	// Store is "memory" or "postgres".
	Store string

	// EpochDefault is the window start used for a source with no prior run.
	EpochDefault time.Time
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	epoch, err := time.Parse(time.RFC3339, getEnv("WATERMARK_EPOCH", "1970-01-01T00:00:00Z"))
	if err != nil {
		return nil, errors.New("WATERMARK_EPOCH must be an RFC3339 timestamp")
	}

	cfg := &Config{
		RulesPath:      getEnv("RULES_PATH", "rules.json"),
		TransformsPath: getEnv("TRANSFORMS_PATH", ""),
		Retry: RetryConfig{
			MaxRetries: getEnvAsInt("RETRY_ATTEMPTS", 3),
			BaseDelay:  getEnvAsDuration("RETRY_BASE_DELAY_MS", 500*time.Millisecond),
			MaxDelay:   getEnvAsDuration("RETRY_MAX_DELAY_MS", 30*time.Second),
		},
		RunTimeout: getEnvAsDuration("RUN_TIMEOUT_MS", 10*time.Minute),
		Watermark: WatermarkConfig{
			Store:        getEnv("WATERMARK_STORE", "memory"),
			EpochDefault: epoch,
		},
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	srcCfg, err := LoadSourceConfig()
	if err != nil {
		return nil, errors.New("failed to load source configuration: " + err.Error())
	}
	cfg.Source = *srcCfg

	tgtCfg, err := LoadTargetConfig()
	if err != nil {
		return nil, errors.New("failed to load target configuration: " + err.Error())
	}
	cfg.Target = *tgtCfg

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures all required configuration is present and valid.
func (c *Config) Validate() error {
	if c.RulesPath == "" {
		return errors.New("rules path is required")
	}

	if c.Retry.MaxRetries < 0 {
		return errors.New("retry attempts cannot be negative")
	}

	if c.Retry.BaseDelay <= 0 {
		return errors.New("retry base delay must be positive")
	}

	if c.Retry.MaxDelay < c.Retry.BaseDelay {
		return errors.New("retry max delay must be at least the base delay")
	}

	if c.RunTimeout <= 0 {
		return errors.New("run timeout must be positive")
	}

	switch c.Watermark.Store {
	case "memory", "postgres":
	default:
		return errors.New("watermark store must be memory or postgres")
	}

	return nil
}

// Helper functions for environment variables

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	ms, err := strconv.Atoi(valueStr)
	if err != nil || ms < 0 {
		return defaultValue
	}
	return time.Duration(ms) * time.Millisecond
}
