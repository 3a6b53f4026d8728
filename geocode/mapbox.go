package geocode

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

// Mapbox is the alternate paid provider.
type Mapbox struct {
	token   string
	baseURL string
	client  *http.Client
}

// NewMapbox returns a Mapbox provider. baseURL may be empty.
func NewMapbox(token, baseURL string, client *http.Client) *Mapbox {
	if baseURL == "" {
		baseURL = "https://api.mapbox.com"
	}
	return &Mapbox{token: token, baseURL: baseURL, client: newHTTPClient(client)}
}

// Name implements Provider.
func (m *Mapbox) Name() string { return "mapbox" }

// Available implements Provider.
func (m *Mapbox) Available() bool { return m.token != "" }

type mapboxResponse struct {
	Features []struct {
		ID        string    `json:"id"`
		PlaceName string    `json:"place_name"`
		Center    []float64 `json:"center"`
		Context   []struct {
			ID        string `json:"id"`
			Text      string `json:"text"`
			ShortCode string `json:"short_code"`
		} `json:"context"`
	} `json:"features"`
}

// Geocode implements Geocoder.
func (m *Mapbox) Geocode(ctx context.Context, address string) (*Result, error) {
	q := url.Values{"access_token": {m.token}, "limit": {"1"}}
	u := m.baseURL + "/geocoding/v5/mapbox.places/" + url.PathEscape(address) + ".json?" + q.Encode()

	var body mapboxResponse
	if err := getJSON(ctx, m.client, m.Name(), u, nil, &body); err != nil {
		return nil, err
	}
	if len(body.Features) == 0 || len(body.Features[0].Center) < 2 {
		return nil, ErrNoResults
	}

	f := body.Features[0]
	res := &Result{
		Longitude:        f.Center[0],
		Latitude:         f.Center[1],
		FormattedAddress: f.PlaceName,
		Provider:         m.Name(),
		ProviderID:       f.ID,
	}
	for _, c := range f.Context {
		kind, _, _ := strings.Cut(c.ID, ".")
		switch kind {
		case "place":
			res.City = c.Text
		case "region":
			res.State = c.Text
			if _, code, ok := strings.Cut(c.ShortCode, "-"); ok {
				res.State = code
			}
		case "country":
			res.Country = strings.ToUpper(c.ShortCode)
		case "postcode":
			res.PostalCode = c.Text
		}
	}
	return res, nil
}
