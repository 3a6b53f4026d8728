// Package connector pulls raw event payloads from upstream sources.
package connector

import (
	"context"
	"fmt"

	"github.com/xraph/convene/source"
)

// Connector fetches raw payloads for one provider. Payloads are returned
// unmodified, one JSON object per event.
type Connector interface {
	Provider() source.Provider
	Fetch(ctx context.Context, src *source.EventSource, credential string) ([][]byte, error)
}

// FetchError is a retryable upstream failure such as a non-2xx response.
type FetchError struct {
	Provider   source.Provider
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("convene: %s fetch: unexpected status %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("convene: %s fetch: %v", e.Provider, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Retryable reports that the next scheduled run may succeed.
func (e *FetchError) Retryable() bool { return true }

// Registry maps provider tags to connectors.
type Registry struct {
	connectors map[source.Provider]Connector
}

// NewRegistry returns a Registry holding cs.
func NewRegistry(cs ...Connector) *Registry {
	r := &Registry{connectors: make(map[source.Provider]Connector, len(cs))}
	for _, c := range cs {
		r.Register(c)
	}
	return r
}

// Defaults returns a Registry with the built-in connectors sharing client.
func Defaults(client *Client) *Registry {
	return NewRegistry(
		NewEventbrite(client),
		NewFacebook(client),
		NewMeetup(client),
		NewGeneric(client),
	)
}

// Register adds or replaces the connector for its provider.
func (r *Registry) Register(c Connector) {
	r.connectors[c.Provider()] = c
}

// Get returns the connector for p.
func (r *Registry) Get(p source.Provider) (Connector, bool) {
	c, ok := r.connectors[p]
	return c, ok
}
