// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - New() returns a Config populated with defaults.
// - Load layers defaults, an optional YAML file, then RANKBOARD_* env vars.
// - Validation failures wrap ErrInvalidConfig; provider failures wrap ErrLoadConfig.
package config

import (
	"runtime"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":12345".
	Addr string `koanf:"addr"`

	// RedisAddr, RedisPassword and RedisDB locate the backing sorted-set store.
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`

	// Namespace prefixes every storage key.
	Namespace string `koanf:"namespace"`

	// ReconcileInterval is the base delay between reconciliation passes;
	// ReconcileJitter adds a random [0, jitter) on top of it.
	ReconcileInterval time.Duration `koanf:"reconcile_interval"`
	ReconcileJitter   time.Duration `koanf:"reconcile_jitter"`

	// ReconcileWorkers sweeps leaderboards in parallel; ReconcileQueueSize bounds
	// the pending sweeps.
	ReconcileWorkers   int `koanf:"reconcile_workers"`
	ReconcileQueueSize int `koanf:"reconcile_queue_size"`

	// ReconcileRepairMissing re-adds held scores missing from the index.
	ReconcileRepairMissing bool `koanf:"reconcile_repair_missing"`

	// OrphanMaxAttempts bounds the optimistic removal retries.
	OrphanMaxAttempts int           `koanf:"orphan_max_attempts"`
	OrphanBackoffBase time.Duration `koanf:"orphan_backoff_base"`
	OrphanBackoffMax  time.Duration `koanf:"orphan_backoff_max"`

	// MaxPageSize caps GET /leaderboard end-start+1.
	MaxPageSize int `koanf:"max_page_size"`

	// MetricsEnabled exposes /metrics.
	MetricsEnabled bool `koanf:"metrics_enabled"`

	// RateLimitRPS and RateLimitBurst configure the per-IP limiter; 0 disables it.
	RateLimitRPS   float64 `koanf:"rate_limit_rps"`
	RateLimitBurst int     `koanf:"rate_limit_burst"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:               "info",
		LogFormat:              "text",
		Addr:                   ":12345",
		RedisAddr:              "127.0.0.1:6379",
		Namespace:              "vesil",
		ReconcileInterval:      5 * time.Minute,
		ReconcileJitter:        time.Minute,
		ReconcileWorkers:       runtime.NumCPU(),
		ReconcileQueueSize:     1024,
		ReconcileRepairMissing: true,
		OrphanMaxAttempts:      8,
		OrphanBackoffBase:      5 * time.Millisecond,
		OrphanBackoffMax:       250 * time.Millisecond,
		MaxPageSize:            1000,
		MetricsEnabled:         false,
		RateLimitRPS:           0,
		RateLimitBurst:         50,
	}
}
