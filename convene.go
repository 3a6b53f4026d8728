package convene

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xraph/convene/category"
	"github.com/xraph/convene/connector"
	"github.com/xraph/convene/duplicate"
	"github.com/xraph/convene/feature"
	"github.com/xraph/convene/geocode"
	"github.com/xraph/convene/id"
	"github.com/xraph/convene/location"
	"github.com/xraph/convene/lock"
	"github.com/xraph/convene/observability"
	"github.com/xraph/convene/pipeline"
	"github.com/xraph/convene/ratelimit"
	"github.com/xraph/convene/scheduler"
	"github.com/xraph/convene/source"
	"github.com/xraph/convene/store"
	"github.com/xraph/convene/webhook"
)

// Aggregator is the root event aggregation engine.
type Aggregator struct {
	config     Config
	store      store.Store
	logger     *slog.Logger
	now        func() time.Time
	geocoder   geocode.Geocoder
	embedder   feature.Embedder
	classifier category.Classifier
	connectors []connector.Connector
	httpClient *http.Client
	locker     lock.Locker
	cipher     *source.Cipher
	metrics    *observability.Metrics
	tracer     *observability.Tracer
	retrainer  scheduler.Retrainer

	registry  *connector.Registry
	limiter   *ratelimit.Limiter
	resolver  *location.Resolver
	pipeline  *pipeline.Pipeline
	webhooks  *webhook.Service
	scheduler *scheduler.Scheduler

	inflight atomic.Int64
	mu       sync.Mutex
}

// New creates an Aggregator with the given options.
func New(opts ...Option) (*Aggregator, error) {
	a := &Aggregator{
		config: DefaultConfig(),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}
	if a.store == nil {
		return nil, ErrNoStore
	}
	if err := a.config.Validate(); err != nil {
		return nil, err
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	a.wireServices()
	return a, nil
}

// wireServices initializes the internal services after options have been applied.
func (a *Aggregator) wireServices() {
	clientOpts := []connector.ClientOption{connector.WithMaxPages(a.config.MaxPages)}
	if a.httpClient != nil {
		clientOpts = append(clientOpts, connector.WithHTTPClient(a.httpClient))
	}
	a.registry = connector.Defaults(connector.NewClient(a.config.FetchTimeout, a.logger, clientOpts...))
	for _, c := range a.connectors {
		a.registry.Register(c)
	}

	a.limiter = ratelimit.New(ratelimit.WithClock(a.now))
	if a.locker == nil {
		a.locker = lock.NewMemory()
	}

	a.resolver = location.NewResolver(a.store, a.geocoder, a.logger)
	a.resolver.SetClock(a.now)

	extractor := feature.NewExtractor(a.embedder)
	detector := duplicate.NewDetector(a.store, extractor, a.logger)
	detector.SetClock(a.now)

	a.pipeline = pipeline.New(a.store, pipeline.Config{
		Resolver:   a.resolver,
		Classifier: a.classifier,
		Extractor:  extractor,
		Detector:   detector,
		Metrics:    a.metrics,
		Tracer:     a.tracer,
		Now:        a.now,
	}, a.logger)

	a.webhooks = webhook.NewService(a.store, a.store, webhook.ProcessorFunc(a.ProcessWebhookPayload), a.logger)
	a.webhooks.SetClock(a.now)
	a.webhooks.OnOutcome(func(p source.Provider, outcome string) {
		a.metrics.RecordWebhook(string(p), outcome)
	})
}

// Start schedules per-source syncs, the full sweep, retraining hooks and
// the cleanup pass.
func (a *Aggregator) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.scheduler != nil && a.scheduler.Running() {
		return scheduler.ErrAlreadyRunning
	}

	a.scheduler = scheduler.New(scheduler.Tasks{
		SyncSource: func(ctx context.Context, srcID id.ID) error {
			_, err := a.SyncSource(ctx, srcID)
			return err
		},
		FullSync: func(ctx context.Context) error {
			_, err := a.RunFullSync(ctx)
			return err
		},
		Cleanup: func(ctx context.Context) error {
			_, err := a.Cleanup(ctx)
			return err
		},
		ListSources: func(ctx context.Context) ([]*source.EventSource, error) {
			return a.store.ListSources(ctx, source.ListOpts{ActiveOnly: true})
		},
	}, scheduler.Config{Retrainer: a.retrainer}, a.logger)

	return a.scheduler.Start(ctx)
}

// Stop halts the scheduler and waits for running jobs until ctx is done.
func (a *Aggregator) Stop(ctx context.Context) error {
	a.mu.Lock()
	s := a.scheduler
	a.mu.Unlock()
	if s == nil {
		return nil
	}
	return s.Stop(ctx)
}

// ProcessWebhookPayload runs one pushed payload through the pipeline. It is
// the processor behind the webhook service.
func (a *Aggregator) ProcessWebhookPayload(ctx context.Context, src *source.EventSource, raw []byte) error {
	if !src.Active {
		return fmt.Errorf("%w: %s", ErrSourceInactive, src.ID)
	}
	_, err := a.pipeline.Process(ctx, src, raw)
	return err
}

// ListDuplicates returns duplicate links, newest first.
func (a *Aggregator) ListDuplicates(ctx context.Context, opts duplicate.ListOpts) ([]*duplicate.Link, error) {
	return a.store.ListLinks(ctx, opts)
}

// ResolveDuplicate records the adjudication of a duplicate link.
func (a *Aggregator) ResolveDuplicate(ctx context.Context, linkID id.ID, status duplicate.Status) (*duplicate.Link, error) {
	if !status.Terminal() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidLinkStatus, status)
	}
	if err := a.store.SetLinkStatus(ctx, linkID, status, a.now().UTC()); err != nil {
		return nil, err
	}
	a.logger.InfoContext(ctx, "duplicate link resolved", "link_id", linkID, "status", status)
	return a.store.GetLink(ctx, linkID)
}

// Store returns the underlying store.
func (a *Aggregator) Store() store.Store {
	return a.store
}

// Webhooks returns the webhook ingress service.
func (a *Aggregator) Webhooks() *webhook.Service {
	return a.webhooks
}

// Pipeline returns the per-event processing pipeline.
func (a *Aggregator) Pipeline() *pipeline.Pipeline {
	return a.pipeline
}

// Connectors returns the connector registry.
func (a *Aggregator) Connectors() *connector.Registry {
	return a.registry
}

// Tracer returns the tracer, or nil when tracing is off.
func (a *Aggregator) Tracer() *observability.Tracer {
	return a.tracer
}

// Logger returns the aggregator's logger.
func (a *Aggregator) Logger() *slog.Logger {
	return a.logger
}
