package extension

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/xraph/forge"

	"github.com/xraph/convene"
	"github.com/xraph/convene/api"
	"github.com/xraph/convene/store"
)

// ErrNotInitialized is returned when the extension is used before Init.
var ErrNotInitialized = errors.New("convene: extension not initialized")

// Extension mounts an Aggregator into a host service.
type Extension struct {
	config Config
	opts   []convene.Option
	store  store.Store
	logger *slog.Logger

	agg *convene.Aggregator
}

// New creates a new extension with DefaultConfig.
func New(opts ...ExtOption) *Extension {
	e := &Extension{config: DefaultConfig()}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// Init builds the aggregator and runs migrations unless disabled.
func (e *Extension) Init(ctx context.Context) error {
	opts := []convene.Option{
		convene.WithStore(e.store),
		convene.WithLogger(e.logger),
	}
	opts = append(opts, e.config.ToOptions()...)
	opts = append(opts, e.opts...)

	agg, err := convene.New(opts...)
	if err != nil {
		return fmt.Errorf("convene: init extension: %w", err)
	}

	if !e.config.DisableMigrate {
		if err := agg.Store().Migrate(ctx); err != nil {
			return err
		}
	}

	e.agg = agg
	e.logger.InfoContext(ctx, "convene extension initialized", "base_path", e.Prefix())
	return nil
}

// Aggregator returns the aggregator, or nil before Init.
func (e *Extension) Aggregator() *convene.Aggregator { return e.agg }

// Prefix returns the configured URL prefix without a trailing slash.
func (e *Extension) Prefix() string {
	return strings.TrimSuffix(e.config.BasePath, "/")
}

// Handler returns the webhook and admin HTTP handler, mounted under Prefix.
func (e *Extension) Handler() http.Handler {
	if e.agg == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, ErrNotInitialized.Error(), http.StatusServiceUnavailable)
		})
	}
	h := api.NewHandler(e.agg, e.logger)
	if p := e.Prefix(); p != "" {
		return http.StripPrefix(p, h)
	}
	return h
}

// RegisterRoutes registers the admin routes on a Forge router.
func (e *Extension) RegisterRoutes(router forge.Router, log forge.Logger) error {
	if e.agg == nil {
		return ErrNotInitialized
	}
	if e.config.DisableRoutes {
		return nil
	}
	api.NewForgeAPI(e.agg, log).RegisterRoutes(router)
	return nil
}

// Start starts the scheduler unless disabled.
func (e *Extension) Start(ctx context.Context) error {
	if e.agg == nil {
		return ErrNotInitialized
	}
	if e.config.DisableScheduler {
		return nil
	}
	return e.agg.Start(ctx)
}

// Stop stops the scheduler and waits for in-flight syncs.
func (e *Extension) Stop(ctx context.Context) error {
	if e.agg == nil {
		return nil
	}
	return e.agg.Stop(ctx)
}

// Health reports store connectivity.
func (e *Extension) Health(ctx context.Context) error {
	if e.agg == nil {
		return ErrNotInitialized
	}
	return e.agg.Store().Ping(ctx)
}
