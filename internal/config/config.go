// Package config parses and validates all application configuration from
// environment variables using caarlos0/env/v11.
//
// Call [Load] once at startup; pass the resulting [Config] to subcommands.
package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration sourced from environment
// variables. Per-queue retry, rate, and concurrency settings are fixed in
// code (internal/queue) and intentionally not configurable here.
type Config struct {
	// ── Server ───────────────────────────────────────────────────────────────────
	ListenAddr             string `env:"LISTEN_ADDR"              envDefault:":8080"`
	AppEnv                 string `env:"APP_ENV"                  envDefault:"development"`
	ShutdownTimeoutSeconds int    `env:"SHUTDOWN_TIMEOUT_SECONDS" envDefault:"30"`

	// ── Workers ──────────────────────────────────────────────────────────────────
	// WorkerPollInterval is how often an idle pool checks its queue.
	WorkerPollInterval time.Duration `env:"WORKER_POLL_INTERVAL" envDefault:"500ms"`
	// CompletedRetention is how long terminal jobs stay inspectable before
	// the janitor evicts them.
	CompletedRetention time.Duration `env:"COMPLETED_RETENTION" envDefault:"1h"`
	JanitorInterval    time.Duration `env:"JANITOR_INTERVAL"    envDefault:"5m"`

	// ── Batches ──────────────────────────────────────────────────────────────────
	// BatchDeadline bounds every runBatch call; outstanding items are marked
	// timed out when it passes.
	BatchDeadline time.Duration `env:"BATCH_DEADLINE" envDefault:"2m"`

	// ── Logging ──────────────────────────────────────────────────────────────────
	LogLevel  string `env:"LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// Load parses and returns Config from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsDevelopment reports whether the application is running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}
