package connector

import (
	"context"
	"net/url"
	"strings"

	"github.com/goccy/go-json"

	"github.com/xraph/convene/source"
)

// Eventbrite pulls live events for an organization (config
// "organization_id") or for the token's user.
type Eventbrite struct {
	client *Client
}

// NewEventbrite returns an Eventbrite connector.
func NewEventbrite(client *Client) *Eventbrite { return &Eventbrite{client: client} }

// Provider implements Connector.
func (e *Eventbrite) Provider() source.Provider { return source.ProviderEventbrite }

type eventbritePage struct {
	Events     []json.RawMessage `json:"events"`
	Pagination struct {
		HasMoreItems bool   `json:"has_more_items"`
		Continuation string `json:"continuation"`
	} `json:"pagination"`
}

// Fetch implements Connector.
func (e *Eventbrite) Fetch(ctx context.Context, src *source.EventSource, credential string) ([][]byte, error) {
	base := strings.TrimRight(src.BaseURL, "/")
	if base == "" {
		base = "https://www.eventbriteapi.com/v3"
	}
	path := "/users/me/events/"
	if org := src.Config["organization_id"]; org != "" {
		path = "/organizations/" + url.PathEscape(org) + "/events/"
	}

	var out [][]byte
	continuation := ""
	for page := 0; page < e.client.MaxPages(); page++ {
		q := url.Values{"expand": {"venue"}, "status": {"live"}}
		if continuation != "" {
			q.Set("continuation", continuation)
		}
		body, err := e.client.Get(ctx, src, base+path+"?"+q.Encode(), bearer(credential))
		if err != nil {
			return nil, err
		}

		var p eventbritePage
		if err := json.Unmarshal(body, &p); err != nil {
			e.client.Logger().WarnContext(ctx, "malformed eventbrite response",
				"source_id", src.ID,
				"error", err,
			)
			return out, nil
		}
		out = appendRaw(out, p.Events)
		if !p.Pagination.HasMoreItems || p.Pagination.Continuation == "" {
			break
		}
		continuation = p.Pagination.Continuation
	}
	return out, nil
}

func appendRaw(out [][]byte, items []json.RawMessage) [][]byte {
	for _, it := range items {
		out = append(out, []byte(it))
	}
	return out
}
