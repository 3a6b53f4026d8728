package convene

import (
	"fmt"
	"time"
)

// Config holds the configuration for an Aggregator.
type Config struct {
	// SyncTimeout bounds one source sync, fetch and pipeline included.
	SyncTimeout time.Duration `json:"sync_timeout" yaml:"sync_timeout" koanf:"sync_timeout"`

	// FetchTimeout is the HTTP timeout per connector request.
	FetchTimeout time.Duration `json:"fetch_timeout" yaml:"fetch_timeout" koanf:"fetch_timeout"`

	// MaxPages caps the pages a connector follows per sync.
	MaxPages int `json:"max_pages" yaml:"max_pages" koanf:"max_pages"`

	// StaleJobTimeout is how long a job may stay running before the
	// cleanup pass marks it failed. It must exceed SyncTimeout so a live
	// sync is never reaped.
	StaleJobTimeout time.Duration `json:"stale_job_timeout" yaml:"stale_job_timeout" koanf:"stale_job_timeout"`

	// WebhookRetention is how long webhook records are kept.
	WebhookRetention time.Duration `json:"webhook_retention" yaml:"webhook_retention" koanf:"webhook_retention"`

	// LinkRetention is how long confirmed or rejected duplicate links are kept.
	LinkRetention time.Duration `json:"link_retention" yaml:"link_retention" koanf:"link_retention"`

	// JobRetention is how long completed or failed sync jobs are kept.
	JobRetention time.Duration `json:"job_retention" yaml:"job_retention" koanf:"job_retention"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		SyncTimeout:      10 * time.Minute,
		FetchTimeout:     30 * time.Second,
		MaxPages:         10,
		StaleJobTimeout:  2 * time.Hour,
		WebhookRetention: 30 * 24 * time.Hour,
		LinkRetention:    60 * 24 * time.Hour,
		JobRetention:     7 * 24 * time.Hour,
	}
}

// Validate reports settings the aggregator cannot run with.
func (c Config) Validate() error {
	if c.SyncTimeout <= 0 {
		return fmt.Errorf("%w: sync timeout must be positive", ErrInvalidConfig)
	}
	if c.StaleJobTimeout > 0 && c.StaleJobTimeout <= c.SyncTimeout {
		return fmt.Errorf("%w: stale job timeout %s must exceed sync timeout %s",
			ErrInvalidConfig, c.StaleJobTimeout, c.SyncTimeout)
	}
	return nil
}
