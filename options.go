package convene

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/xraph/convene/category"
	"github.com/xraph/convene/connector"
	"github.com/xraph/convene/feature"
	"github.com/xraph/convene/geocode"
	"github.com/xraph/convene/lock"
	"github.com/xraph/convene/observability"
	"github.com/xraph/convene/scheduler"
	"github.com/xraph/convene/source"
	"github.com/xraph/convene/store"
)

// Option configures an Aggregator.
type Option func(*Aggregator) error

// WithStore sets the persistence backend.
func WithStore(s store.Store) Option {
	return func(a *Aggregator) error {
		a.store = s
		return nil
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Aggregator) error {
		a.logger = logger
		return nil
	}
}

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(a *Aggregator) error {
		a.config = cfg
		return nil
	}
}

// WithGeocoder sets the geocoder used for venue resolution. Without one,
// only venues already in the location store are resolved.
func WithGeocoder(g geocode.Geocoder) Option {
	return func(a *Aggregator) error {
		a.geocoder = g
		return nil
	}
}

// WithEmbedder sets the text embedder used for duplicate detection.
func WithEmbedder(e feature.Embedder) Option {
	return func(a *Aggregator) error {
		a.embedder = e
		return nil
	}
}

// WithClassifier sets the event categorizer.
func WithClassifier(c category.Classifier) Option {
	return func(a *Aggregator) error {
		a.classifier = c
		return nil
	}
}

// WithConnector registers a connector, replacing the built-in one for its
// provider.
func WithConnector(c connector.Connector) Option {
	return func(a *Aggregator) error {
		a.connectors = append(a.connectors, c)
		return nil
	}
}

// WithHTTPClient sets the HTTP client the built-in connectors use.
func WithHTTPClient(hc *http.Client) Option {
	return func(a *Aggregator) error {
		a.httpClient = hc
		return nil
	}
}

// WithClock sets the time source for jobs, rate limiting and timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) error {
		a.now = now
		return nil
	}
}

// WithLocker sets the per-source sync guard. The default is process-local.
func WithLocker(l lock.Locker) Option {
	return func(a *Aggregator) error {
		a.locker = l
		return nil
	}
}

// WithMetrics enables metrics collection.
func WithMetrics(m *observability.Metrics) Option {
	return func(a *Aggregator) error {
		a.metrics = m
		return nil
	}
}

// WithTracer enables tracing.
func WithTracer(t *observability.Tracer) Option {
	return func(a *Aggregator) error {
		a.tracer = t
		return nil
	}
}

// WithCredentialCipher sets the cipher that decrypts source credentials.
// Without one, credentials are used as stored.
func WithCredentialCipher(c *source.Cipher) Option {
	return func(a *Aggregator) error {
		a.cipher = c
		return nil
	}
}

// WithRetrainer sets the hook the scheduler calls for model retraining.
func WithRetrainer(r scheduler.Retrainer) Option {
	return func(a *Aggregator) error {
		a.retrainer = r
		return nil
	}
}

// WithSyncTimeout bounds one source sync.
func WithSyncTimeout(d time.Duration) Option {
	return func(a *Aggregator) error {
		a.config.SyncTimeout = d
		return nil
	}
}

// WithFetchTimeout sets the HTTP timeout per connector request.
func WithFetchTimeout(d time.Duration) Option {
	return func(a *Aggregator) error {
		a.config.FetchTimeout = d
		return nil
	}
}

// WithMaxPages caps the pages a connector follows per sync.
func WithMaxPages(n int) Option {
	return func(a *Aggregator) error {
		a.config.MaxPages = n
		return nil
	}
}

// WithStaleJobTimeout sets how long a job may run before cleanup fails it.
func WithStaleJobTimeout(d time.Duration) Option {
	return func(a *Aggregator) error {
		a.config.StaleJobTimeout = d
		return nil
	}
}

// WithRetention sets how long webhook records, resolved duplicate links and
// terminal sync jobs are kept. Zero values keep the current setting.
func WithRetention(webhooks, links, jobs time.Duration) Option {
	return func(a *Aggregator) error {
		if webhooks > 0 {
			a.config.WebhookRetention = webhooks
		}
		if links > 0 {
			a.config.LinkRetention = links
		}
		if jobs > 0 {
			a.config.JobRetention = jobs
		}
		return nil
	}
}
