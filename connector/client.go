package connector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/xraph/convene/source"
)

const (
	// DefaultTimeout bounds one upstream request.
	DefaultTimeout = 30 * time.Second
	// DefaultMaxPages bounds pagination per fetch.
	DefaultMaxPages = 10

	maxBodyBytes = 10 << 20
)

// Client is the HTTP client shared by connectors. Each source gets its own
// circuit breaker so one failing upstream cannot stall the others.
type Client struct {
	http     *http.Client
	logger   *slog.Logger
	maxPages int

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[[]byte]
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithMaxPages bounds pagination.
func WithMaxPages(n int) ClientOption {
	return func(c *Client) { c.maxPages = n }
}

// NewClient returns a Client with the given request timeout.
func NewClient(timeout time.Duration, logger *slog.Logger, opts ...ClientOption) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		http:     &http.Client{Timeout: timeout},
		logger:   logger,
		maxPages: DefaultMaxPages,
		breakers: make(map[string]*gobreaker.CircuitBreaker[[]byte]),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Logger returns the client's logger.
func (c *Client) Logger() *slog.Logger { return c.logger }

// MaxPages returns the pagination bound.
func (c *Client) MaxPages() int { return c.maxPages }

func (c *Client) breaker(src *source.EventSource) *gobreaker.CircuitBreaker[[]byte] {
	key := src.ID.String()
	c.mu.Lock()
	defer c.mu.Unlock()
	if cb, ok := c.breakers[key]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "source-" + key,
		MaxRequests: 1,
		Interval:    10 * time.Minute,
		Timeout:     5 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("source circuit state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
	c.breakers[key] = cb
	return cb
}

// Get issues a GET for src and returns the body of a 2xx response.
// Transport failures, non-2xx responses and an open circuit all return a
// *FetchError.
func (c *Client) Get(ctx context.Context, src *source.EventSource, url string, header http.Header) ([]byte, error) {
	body, err := c.breaker(src).Execute(func() ([]byte, error) {
		return c.do(ctx, src, url, header)
	})
	if err == nil {
		return body, nil
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return nil, fe
	}
	return nil, &FetchError{Provider: src.Provider, Err: err}
}

func (c *Client) do(ctx context.Context, src *source.EventSource, url string, header http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("convene: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &FetchError{Provider: src.Provider, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &FetchError{Provider: src.Provider, StatusCode: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &FetchError{Provider: src.Provider, Err: err}
	}
	return body, nil
}

func bearer(credential string) http.Header {
	if credential == "" {
		return nil
	}
	return http.Header{"Authorization": {"Bearer " + credential}}
}
