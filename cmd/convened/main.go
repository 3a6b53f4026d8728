// Command convened runs the event aggregator as a standalone service: the
// webhook and admin HTTP surface plus the sync scheduler, on the in-memory
// store with optional Redis for the geocode cache and sync lock.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/xraph/convene"
	"github.com/xraph/convene/extension"
	"github.com/xraph/convene/geocode"
	"github.com/xraph/convene/observability"
	"github.com/xraph/convene/source"
	"github.com/xraph/convene/store/memory"
	"github.com/xraph/convene/store/redis"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONVENE_CONFIG"), "path to a YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "convened: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var opts []convene.Option

	if cfg.Tracing.Endpoint != "" {
		tp, err := newTracerProvider(ctx, cfg.Tracing)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				logger.Error("tracer shutdown failed", "error", err)
			}
		}()
		opts = append(opts, convene.WithTracer(observability.NewTracerFrom(tp)))
	}

	var cache geocode.Cache = geocode.NewMemoryCache()
	if cfg.Redis.Addr != "" {
		rs := redis.NewFromClient(goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}), redis.WithGeocodeTTL(cfg.Redis.GeocodeTTL), redis.WithLockTTL(cfg.Redis.LockTTL))
		defer rs.Close()

		if err := rs.Ping(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		cache = rs
		opts = append(opts, convene.WithLocker(rs))
		logger.Info("redis connected", "addr", cfg.Redis.Addr)
	}
	opts = append(opts, convene.WithGeocoder(newGeocoder(cfg.Geocode, cache, logger)))

	cipher, err := source.NewCipher(cfg.CredentialKey)
	if err != nil {
		return err
	}
	if cipher != nil {
		opts = append(opts, convene.WithCredentialCipher(cipher))
	}

	st := memory.New()
	defer st.Close()

	extOpts := []extension.ExtOption{
		extension.WithStore(st),
		extension.WithLogger(logger),
		extension.WithConfig(cfg.Convene),
	}
	for _, opt := range opts {
		extOpts = append(extOpts, extension.WithConveneOption(opt))
	}

	ext := extension.New(extOpts...)
	if err := ext.Init(ctx); err != nil {
		return err
	}
	if err := ext.Start(ctx); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           ext.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("convened listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			_ = ext.Stop(context.Background()) //nolint:errcheck // already failing
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
	return ext.Stop(shutdownCtx)
}

func newLogger(cfg LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(newTraceHandler(handler))
}

// newGeocoder builds the provider chain in priority order, each behind a
// circuit breaker, and caches results.
func newGeocoder(cfg GeocodeConfig, cache geocode.Cache, logger *slog.Logger) geocode.Geocoder {
	var providers []geocode.Provider
	if cfg.GoogleAPIKey != "" {
		providers = append(providers, geocode.WithBreaker(geocode.NewGoogle(cfg.GoogleAPIKey, "", nil), logger))
	}
	if cfg.MapboxToken != "" {
		providers = append(providers, geocode.WithBreaker(geocode.NewMapbox(cfg.MapboxToken, "", nil), logger))
	}
	providers = append(providers, geocode.WithBreaker(geocode.NewNominatim(cfg.NominatimURL, cfg.NominatimUserAgent, nil), logger))

	return geocode.NewCached(geocode.NewChain(logger, providers...), cache, logger)
}

func newTracerProvider(ctx context.Context, cfg TracingConfig) (*sdktrace.TracerProvider, error) {
	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(cfg.Endpoint))
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(attribute.String("service.name", cfg.ServiceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	var sampler sdktrace.Sampler
	switch {
	case cfg.SampleRate >= 1:
		sampler = sdktrace.AlwaysSample()
	case cfg.SampleRate <= 0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler)),
	), nil
}
