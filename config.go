package workqueue

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/domonda/go-errs"
	"github.com/joho/godotenv"
)

// Config is the validated configuration of one Processor.
//
// A Config is passed explicitly to NewProcessor and is immutable afterwards.
// Invalid values fail fast with ErrInvalidConfig, they are never clamped.
type Config struct {
	// BatchSize is the maximum number of tasks returned by one claim. 1 to 1000.
	BatchSize int `env:"WORKQUEUE_BATCH_SIZE" envDefault:"100"`

	// CleanupTimeoutHours is the age in hours after which a claimed but
	// unfinished task counts as orphaned. 1 to 24.
	CleanupTimeoutHours int `env:"WORKQUEUE_CLEANUP_TIMEOUT_HOURS" envDefault:"1"`

	// MaxRetries bounds how often a failed task is requeued before it is
	// routed to the failed state. 1 to 10.
	MaxRetries int `env:"WORKQUEUE_MAX_RETRIES" envDefault:"3"`

	// HealthCheckIntervalSeconds is the period of the maintenance loop
	// (orphan reclamation and store ping). 60 to 3600.
	HealthCheckIntervalSeconds int `env:"WORKQUEUE_HEALTH_CHECK_INTERVAL_SECONDS" envDefault:"300"`

	// Enabled turns the whole processor into a no-op when false.
	Enabled bool `env:"WORKQUEUE_ENABLED" envDefault:"true"`

	// RequiredBackingStores names the store identifiers the Queue backend
	// must provide, checked at Processor construction.
	RequiredBackingStores []string `env:"WORKQUEUE_REQUIRED_BACKING_STORES" envSeparator:"," envDefault:"postgres"`
}

// DefaultConfig returns the configuration used when no environment
// overrides are present.
func DefaultConfig() Config {
	return Config{
		BatchSize:                  100,
		CleanupTimeoutHours:        1,
		MaxRetries:                 3,
		HealthCheckIntervalSeconds: 300,
		Enabled:                    true,
		RequiredBackingStores:      []string{"postgres"},
	}
}

// ConfigFromEnv loads a Config from environment variables,
// reading a .env file first if one exists, and validates it.
func ConfigFromEnv() (config Config, err error) {
	defer errs.WrapWithFuncParams(&err)

	// The .env file is optional
	_ = godotenv.Load()

	err = env.Parse(&config)
	if err != nil {
		return Config{}, errs.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return config, config.Validate()
}

// Validate returns an error wrapping ErrInvalidConfig
// if any value is outside its allowed range.
func (c *Config) Validate() error {
	if c.BatchSize < 1 || c.BatchSize > 1000 {
		return errs.Errorf("%w: batch size %d not in range 1..1000", ErrInvalidConfig, c.BatchSize)
	}
	if c.CleanupTimeoutHours < 1 || c.CleanupTimeoutHours > 24 {
		return errs.Errorf("%w: cleanup timeout %d hours not in range 1..24", ErrInvalidConfig, c.CleanupTimeoutHours)
	}
	if c.MaxRetries < 1 || c.MaxRetries > 10 {
		return errs.Errorf("%w: max retries %d not in range 1..10", ErrInvalidConfig, c.MaxRetries)
	}
	if c.HealthCheckIntervalSeconds < 60 || c.HealthCheckIntervalSeconds > 3600 {
		return errs.Errorf("%w: health check interval %d seconds not in range 60..3600", ErrInvalidConfig, c.HealthCheckIntervalSeconds)
	}
	for _, store := range c.RequiredBackingStores {
		if store == "" {
			return errs.Errorf("%w: empty required backing store name", ErrInvalidConfig)
		}
	}
	return nil
}

// CleanupTimeout returns CleanupTimeoutHours as a time.Duration.
func (c *Config) CleanupTimeout() time.Duration {
	return time.Duration(c.CleanupTimeoutHours) * time.Hour
}

// HealthCheckInterval returns HealthCheckIntervalSeconds as a time.Duration.
func (c *Config) HealthCheckInterval() time.Duration {
	return time.Duration(c.HealthCheckIntervalSeconds) * time.Second
}
