package connector

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/xraph/convene/source"
)

const meetupPageSize = 50

// Meetup pulls upcoming events of a group (config "group_urlname").
type Meetup struct {
	client *Client
}

// NewMeetup returns a Meetup connector.
func NewMeetup(client *Client) *Meetup { return &Meetup{client: client} }

// Provider implements Connector.
func (m *Meetup) Provider() source.Provider { return source.ProviderMeetup }

// Fetch implements Connector.
func (m *Meetup) Fetch(ctx context.Context, src *source.EventSource, credential string) ([][]byte, error) {
	base := strings.TrimRight(src.BaseURL, "/")
	if base == "" {
		base = "https://api.meetup.com"
	}
	group := src.Config["group_urlname"]
	path := "/find/upcoming_events"
	if group != "" {
		path = "/" + url.PathEscape(group) + "/events"
	}

	var out [][]byte
	for page := 0; page < m.client.MaxPages(); page++ {
		q := url.Values{
			"page":   {strconv.Itoa(meetupPageSize)},
			"offset": {strconv.Itoa(page)},
		}
		if lat, lon := src.Config["lat"], src.Config["lon"]; lat != "" && lon != "" {
			q.Set("lat", lat)
			q.Set("lon", lon)
		}
		body, err := m.client.Get(ctx, src, base+path+"?"+q.Encode(), bearer(credential))
		if err != nil {
			return nil, err
		}

		var items []json.RawMessage
		if err := json.Unmarshal(body, &items); err != nil {
			// /find/upcoming_events wraps the list.
			var wrapped struct {
				Events []json.RawMessage `json:"events"`
			}
			if err2 := json.Unmarshal(body, &wrapped); err2 != nil {
				m.client.Logger().WarnContext(ctx, "malformed meetup response",
					"source_id", src.ID,
					"error", err,
				)
				return out, nil
			}
			items = wrapped.Events
		}
		out = appendRaw(out, items)
		if len(items) < meetupPageSize {
			break
		}
	}
	return out, nil
}
