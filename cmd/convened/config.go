package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/xraph/convene/extension"
)

// envPrefix scopes the environment variables read by the daemon. Nested keys
// use a double underscore: CONVENE_REDIS__ADDR sets redis.addr.
const envPrefix = "CONVENE_"

// Config is the daemon configuration.
type Config struct {
	Addr            string        `koanf:"addr"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// CredentialKey is the base64 master key for source credentials.
	// Empty stores credentials in plaintext.
	CredentialKey string `koanf:"credential_key"`

	Log     LogConfig        `koanf:"log"`
	Redis   RedisConfig      `koanf:"redis"`
	Geocode GeocodeConfig    `koanf:"geocode"`
	Tracing TracingConfig    `koanf:"tracing"`
	Convene extension.Config `koanf:"convene"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// RedisConfig enables the shared geocode cache and sync lock. An empty
// Addr keeps both in process.
type RedisConfig struct {
	Addr       string        `koanf:"addr"`
	Password   string        `koanf:"password"`
	DB         int           `koanf:"db"`
	GeocodeTTL time.Duration `koanf:"geocode_ttl"`
	LockTTL    time.Duration `koanf:"lock_ttl"`
}

// GeocodeConfig lists provider credentials. Providers without a key are
// skipped; Nominatim is always last in the chain.
type GeocodeConfig struct {
	GoogleAPIKey       string `koanf:"google_api_key"`
	MapboxToken        string `koanf:"mapbox_token"`
	NominatimURL       string `koanf:"nominatim_url"`
	NominatimUserAgent string `koanf:"nominatim_user_agent"`
}

// TracingConfig exports spans over OTLP/HTTP when Endpoint is set.
type TracingConfig struct {
	Endpoint    string  `koanf:"endpoint"`
	ServiceName string  `koanf:"service_name"`
	SampleRate  float64 `koanf:"sample_rate"`
}

func defaultConfig() Config {
	return Config{
		Addr:            ":8080",
		ShutdownTimeout: 30 * time.Second,
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Redis: RedisConfig{
			GeocodeTTL: 30 * 24 * time.Hour,
			LockTTL:    2 * time.Hour,
		},
		Geocode: GeocodeConfig{
			NominatimUserAgent: "convene/1.0",
		},
		Tracing: TracingConfig{
			ServiceName: "convened",
			SampleRate:  1,
		},
		Convene: extension.DefaultConfig(),
	}
}

// loadConfig layers defaults, an optional YAML file and CONVENE_*
// environment variables, in that order. A .env file in the working
// directory is read first when present.
func loadConfig(path string) (*Config, error) {
	_ = godotenv.Load() //nolint:errcheck // .env is optional

	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envTransformFunc maps CONVENE_GEOCODE__MAPBOX_TOKEN to geocode.mapbox_token.
func envTransformFunc(key string) string {
	key = strings.TrimPrefix(key, envPrefix)
	if key == "CONFIG" {
		return ""
	}
	return strings.ReplaceAll(strings.ToLower(key), "__", ".")
}

// Validate rejects configurations the daemon cannot start with.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return errors.New("config: addr is required")
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("config: unknown log format %q", c.Log.Format)
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return fmt.Errorf("config: tracing sample rate %v out of range", c.Tracing.SampleRate)
	}
	if err := c.Convene.Config.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
