package extension

import (
	"log/slog"

	"github.com/xraph/convene"
	"github.com/xraph/convene/store"
)

// ExtOption configures the convene extension.
type ExtOption func(*Extension)

// WithStore sets the persistence backend.
func WithStore(s store.Store) ExtOption {
	return func(e *Extension) {
		e.store = s
	}
}

// WithLogger sets the structured logger shared with the aggregator.
func WithLogger(logger *slog.Logger) ExtOption {
	return func(e *Extension) {
		e.logger = logger
	}
}

// WithPrefix sets the URL prefix for the webhook and admin routes.
func WithPrefix(prefix string) ExtOption {
	return func(e *Extension) {
		e.config.BasePath = prefix
	}
}

// WithConfig sets the extension configuration directly.
func WithConfig(cfg Config) ExtOption {
	return func(e *Extension) {
		e.config = cfg
	}
}

// WithConveneOption appends a raw convene.Option to the extension.
func WithConveneOption(opt convene.Option) ExtOption {
	return func(e *Extension) {
		e.opts = append(e.opts, opt)
	}
}

// WithDisableRoutes disables route registration.
func WithDisableRoutes() ExtOption {
	return func(e *Extension) {
		e.config.DisableRoutes = true
	}
}

// WithDisableMigrations disables automatic database migration on Init.
func WithDisableMigrations() ExtOption {
	return func(e *Extension) {
		e.config.DisableMigrate = true
	}
}

// WithDisableScheduler keeps the scheduler stopped.
func WithDisableScheduler() ExtOption {
	return func(e *Extension) {
		e.config.DisableScheduler = true
	}
}
