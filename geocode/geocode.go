// Package geocode turns free-text addresses into coordinates and locality
// fields through interchangeable providers.
package geocode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Provider errors.
var (
	ErrNoResults   = errors.New("convene: geocode returned no results")
	ErrUnavailable = errors.New("convene: no geocoding provider available")
	ErrCacheMiss   = errors.New("convene: geocode cache miss")
)

// DefaultTimeout bounds a single provider call.
const DefaultTimeout = 10 * time.Second

// Result is a resolved address.
type Result struct {
	Latitude         float64 `json:"latitude"`
	Longitude        float64 `json:"longitude"`
	FormattedAddress string  `json:"formatted_address,omitempty"`
	City             string  `json:"city,omitempty"`
	State            string  `json:"state,omitempty"`
	Country          string  `json:"country,omitempty"`
	PostalCode       string  `json:"postal_code,omitempty"`
	Timezone         string  `json:"timezone,omitempty"`
	Provider         string  `json:"provider"`
	ProviderID       string  `json:"provider_id,omitempty"`
}

// Geocoder resolves an address string.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (*Result, error)
}

// Provider is a Geocoder backed by one external service.
type Provider interface {
	Geocoder
	Name() string
	// Available reports whether the provider is configured and healthy.
	Available() bool
}

// StatusError reports a non-2xx provider response.
type StatusError struct {
	Provider   string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("convene: %s geocode: unexpected status %d", e.Provider, e.StatusCode)
}

// Chain tries providers in order and returns the first success.
type Chain struct {
	providers []Provider
	logger    *slog.Logger
}

// NewChain returns a Chain over providers in priority order.
func NewChain(logger *slog.Logger, providers ...Provider) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{providers: providers, logger: logger}
}

// Geocode implements Geocoder.
func (c *Chain) Geocode(ctx context.Context, address string) (*Result, error) {
	var lastErr error
	for _, p := range c.providers {
		if !p.Available() {
			continue
		}
		res, err := p.Geocode(ctx, address)
		if err != nil {
			c.logger.DebugContext(ctx, "geocode provider failed",
				"provider", p.Name(),
				"address", address,
				"error", err,
			)
			lastErr = err
			continue
		}
		return res, nil
	}
	if lastErr != nil {
		return nil, fmt.Errorf("convene: all geocoders failed for %q: %w", address, lastErr)
	}
	return nil, ErrUnavailable
}

// Names returns the names of the configured providers.
func (c *Chain) Names() []string {
	out := make([]string, 0, len(c.providers))
	for _, p := range c.providers {
		out = append(out, p.Name())
	}
	return out
}

// NormalizeAddress folds an address into the key used for caching.
func NormalizeAddress(address string) string {
	return strings.Join(strings.Fields(strings.ToLower(address)), " ")
}

func newHTTPClient(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return &http.Client{Timeout: DefaultTimeout}
}
