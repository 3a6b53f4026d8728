package connector

import (
	"context"
	"net/url"
	"strings"

	"github.com/goccy/go-json"

	"github.com/xraph/convene/source"
)

const facebookFields = "id,name,description,start_time,end_time,place"

// Facebook pulls events of a page (config "page_id") from the Graph API.
type Facebook struct {
	client *Client
}

// NewFacebook returns a Facebook connector.
func NewFacebook(client *Client) *Facebook { return &Facebook{client: client} }

// Provider implements Connector.
func (f *Facebook) Provider() source.Provider { return source.ProviderFacebook }

type facebookPage struct {
	Data   []json.RawMessage `json:"data"`
	Paging struct {
		Next string `json:"next"`
	} `json:"paging"`
}

// Fetch implements Connector.
func (f *Facebook) Fetch(ctx context.Context, src *source.EventSource, credential string) ([][]byte, error) {
	base := strings.TrimRight(src.BaseURL, "/")
	if base == "" {
		base = "https://graph.facebook.com/v18.0"
	}
	pageID := src.Config["page_id"]
	if pageID == "" {
		pageID = "me"
	}
	q := url.Values{"fields": {facebookFields}, "access_token": {credential}}
	next := base + "/" + url.PathEscape(pageID) + "/events?" + q.Encode()

	var out [][]byte
	for page := 0; page < f.client.MaxPages() && next != ""; page++ {
		body, err := f.client.Get(ctx, src, next, nil)
		if err != nil {
			return nil, err
		}
		var p facebookPage
		if err := json.Unmarshal(body, &p); err != nil {
			f.client.Logger().WarnContext(ctx, "malformed facebook response",
				"source_id", src.ID,
				"error", err,
			)
			return out, nil
		}
		out = appendRaw(out, p.Data)
		next = p.Paging.Next
	}
	return out, nil
}
