package config

import (
	"os"
	"strconv"
	"strings"

	"biastest/internal/errors"

	"github.com/joho/godotenv"
)

// Config represents the complete application configuration
type Config struct {
	Log    LogConfig
	Run    RunConfig
	Fit    FitConfig
	Ledger LedgerConfig
	Report ReportConfig
}

// LogConfig holds logging settings
type LogConfig struct {
	Level string
}

// RunConfig holds settings for toy-study runs
type RunConfig struct {
	// JobIDEnv names the environment variable carrying the batch job identifier.
	JobIDEnv string
}

// FitConfig holds minimizer settings
type FitConfig struct {
	MaxCalls     int
	Tolerance    float64
	MinosMaxIter int
}

// LedgerConfig holds the optional SQL ledger connection
type LedgerConfig struct {
	DSN string
}

// ReportConfig holds reporting settings
type ReportConfig struct {
	Format        string
	BootstrapSeed int64
}

var chartFormats = map[string]bool{"pdf": true, "png": true, "svg": true, "eps": true}

// Load reads configuration from environment variables, after merging an
// optional .env file from the working directory, and validates it.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "failed to read .env file")
	}
	return FromEnv()
}

// FromEnv builds the configuration from the current environment only.
func FromEnv() (*Config, error) {
	config := &Config{
		Log: LogConfig{
			Level: getEnvOrDefault("LOG_LEVEL", "INFO"),
		},
		Run: RunConfig{
			JobIDEnv: getEnvOrDefault("BIASTEST_JOBID_ENV", "SLURM_JOBID"),
		},
		Fit: FitConfig{
			MaxCalls:     getEnvIntOrDefault("BIASTEST_FIT_MAX_CALLS", 20000),
			Tolerance:    getEnvFloatOrDefault("BIASTEST_FIT_TOLERANCE", 1.0),
			MinosMaxIter: getEnvIntOrDefault("BIASTEST_MINOS_MAX_ITER", 40),
		},
		Ledger: LedgerConfig{
			DSN: getEnvOrDefault("BIASTEST_LEDGER_DSN", ""),
		},
		Report: ReportConfig{
			Format:        strings.ToLower(getEnvOrDefault("BIASTEST_REPORT_FORMAT", "pdf")),
			BootstrapSeed: int64(getEnvIntOrDefault("BIASTEST_BOOTSTRAP_SEED", 1)),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return config, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Fit.MaxCalls <= 0 {
		return errors.ConfigInvalid("fit call limit must be positive")
	}
	if c.Fit.Tolerance <= 0 {
		return errors.ConfigInvalid("fit tolerance must be positive")
	}
	if c.Fit.MinosMaxIter <= 0 {
		return errors.ConfigInvalid("minos iteration limit must be positive")
	}
	if !chartFormats[c.Report.Format] {
		return errors.ConfigInvalid("unsupported chart format " + strconv.Quote(c.Report.Format))
	}
	return nil
}

// JobID returns the batch job identifier from the environment, or nil when unset.
func (c *Config) JobID() *string {
	if c.Run.JobIDEnv == "" {
		return nil
	}
	v, ok := os.LookupEnv(c.Run.JobIDEnv)
	if !ok {
		return nil
	}
	return &v
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
