package extension

import (
	"github.com/xraph/convene"
)

// Config holds configuration for the convene extension.
// Fields can be set programmatically via ExtOption functions or loaded from
// YAML configuration files (under the "convene" key).
type Config struct {
	// Config embeds the core aggregator configuration.
	convene.Config `json:",inline" yaml:",inline" mapstructure:",squash" koanf:",squash,flatten"`

	// BasePath is the URL prefix for the webhook and admin routes (default: "/").
	BasePath string `json:"base_path" yaml:"base_path" mapstructure:"base_path" koanf:"base_path"`

	// DisableRoutes disables route registration on a Forge router.
	DisableRoutes bool `json:"disable_routes" yaml:"disable_routes" mapstructure:"disable_routes" koanf:"disable_routes"`

	// DisableMigrate disables automatic database migration on Init.
	DisableMigrate bool `json:"disable_migrate" yaml:"disable_migrate" mapstructure:"disable_migrate" koanf:"disable_migrate"`

	// DisableScheduler keeps the cron scheduler stopped, leaving syncs to the
	// admin routes.
	DisableScheduler bool `json:"disable_scheduler" yaml:"disable_scheduler" mapstructure:"disable_scheduler" koanf:"disable_scheduler"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Config:   convene.DefaultConfig(),
		BasePath: "/",
	}
}

// ToOptions converts the embedded Config into convene.Option values. Zero
// fields keep the aggregator defaults.
func (c Config) ToOptions() []convene.Option {
	var opts []convene.Option

	if c.SyncTimeout > 0 {
		opts = append(opts, convene.WithSyncTimeout(c.SyncTimeout))
	}
	if c.FetchTimeout > 0 {
		opts = append(opts, convene.WithFetchTimeout(c.FetchTimeout))
	}
	if c.MaxPages > 0 {
		opts = append(opts, convene.WithMaxPages(c.MaxPages))
	}
	if c.StaleJobTimeout > 0 {
		opts = append(opts, convene.WithStaleJobTimeout(c.StaleJobTimeout))
	}
	if c.WebhookRetention > 0 || c.LinkRetention > 0 || c.JobRetention > 0 {
		opts = append(opts, convene.WithRetention(c.WebhookRetention, c.LinkRetention, c.JobRetention))
	}

	return opts
}
