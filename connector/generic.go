package connector

import (
	"bytes"
	"context"

	"github.com/goccy/go-json"

	"github.com/xraph/convene/source"
)

// Generic reads a JSON feed at the source's base URL. The feed may be a
// bare array or an object with an "events", "data" or "items" array. It
// also serves scraper sources whose scraper publishes such a feed.
type Generic struct {
	client *Client
}

// NewGeneric returns a Generic connector.
func NewGeneric(client *Client) *Generic { return &Generic{client: client} }

// Provider implements Connector.
func (g *Generic) Provider() source.Provider { return source.ProviderGeneric }

// Fetch implements Connector.
func (g *Generic) Fetch(ctx context.Context, src *source.EventSource, credential string) ([][]byte, error) {
	if src.BaseURL == "" {
		g.client.Logger().WarnContext(ctx, "generic source has no base url", "source_id", src.ID)
		return nil, nil
	}
	body, err := g.client.Get(ctx, src, src.BaseURL, bearer(credential))
	if err != nil {
		return nil, err
	}

	items, ok := feedItems(body)
	if !ok {
		g.client.Logger().WarnContext(ctx, "malformed feed response", "source_id", src.ID)
		return nil, nil
	}
	return appendRaw(nil, items), nil
}

func feedItems(body []byte) ([]json.RawMessage, bool) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, false
	}
	var items []json.RawMessage
	if body[0] == '[' {
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, false
		}
		return items, true
	}
	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, false
	}
	for _, key := range []string{"events", "data", "items"} {
		if raw, ok := wrapped[key]; ok {
			if err := json.Unmarshal(raw, &items); err != nil {
				return nil, false
			}
			return items, true
		}
	}
	return nil, false
}
