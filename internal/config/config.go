// Package config loads CLI configuration from environment variables.
//
// Variables:
//   - PENNANT_DATAFILE: path to a local datafile (JSON or YAML).
//   - PENNANT_DATAFILE_URL: URL to fetch the datafile from.
//   - PENNANT_REFRESH_INTERVAL: periodic refresh interval (default "1m").
//   - PENNANT_LOG_LEVEL: minimum log level (default "info").
//   - PENNANT_METRICS_ADDR: listen address for the Prometheus /metrics
//     endpoint; empty disables it.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the runtime configuration for the pennant CLI.
type Config struct {
	DatafilePath    string        `env:"PENNANT_DATAFILE"`
	DatafileURL     string        `env:"PENNANT_DATAFILE_URL"`
	RefreshInterval time.Duration `env:"PENNANT_REFRESH_INTERVAL" envDefault:"1m"`
	LogLevel        string        `env:"PENNANT_LOG_LEVEL" envDefault:"info"`
	MetricsAddr     string        `env:"PENNANT_METRICS_ADDR"`
}

// Load reads configuration from environment variables, applying defaults
// where appropriate.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if cfg.RefreshInterval <= 0 {
		return Config{}, fmt.Errorf("PENNANT_REFRESH_INTERVAL must be > 0")
	}
	return cfg, nil
}
