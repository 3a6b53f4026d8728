package geocode

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"
)

// Google is the structured paid provider backed by the Google Geocoding and
// Time Zone APIs.
type Google struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewGoogle returns a Google provider. baseURL may be empty.
func NewGoogle(apiKey, baseURL string, client *http.Client) *Google {
	if baseURL == "" {
		baseURL = "https://maps.googleapis.com"
	}
	return &Google{apiKey: apiKey, baseURL: baseURL, client: newHTTPClient(client)}
}

// Name implements Provider.
func (g *Google) Name() string { return "google" }

// Available implements Provider.
func (g *Google) Available() bool { return g.apiKey != "" }

type googleResponse struct {
	Status  string `json:"status"`
	Results []struct {
		PlaceID          string `json:"place_id"`
		FormattedAddress string `json:"formatted_address"`
		Geometry         struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
		AddressComponents []struct {
			LongName  string   `json:"long_name"`
			ShortName string   `json:"short_name"`
			Types     []string `json:"types"`
		} `json:"address_components"`
	} `json:"results"`
}

// Geocode implements Geocoder.
func (g *Google) Geocode(ctx context.Context, address string) (*Result, error) {
	q := url.Values{"address": {address}, "key": {g.apiKey}}
	var body googleResponse
	if err := getJSON(ctx, g.client, g.Name(), g.baseURL+"/maps/api/geocode/json?"+q.Encode(), nil, &body); err != nil {
		return nil, err
	}
	if body.Status == "ZERO_RESULTS" || len(body.Results) == 0 {
		return nil, ErrNoResults
	}
	if body.Status != "" && body.Status != "OK" {
		return nil, fmt.Errorf("convene: google geocode: status %s", body.Status)
	}

	top := body.Results[0]
	res := &Result{
		Latitude:         top.Geometry.Location.Lat,
		Longitude:        top.Geometry.Location.Lng,
		FormattedAddress: top.FormattedAddress,
		Provider:         g.Name(),
		ProviderID:       top.PlaceID,
	}
	for _, c := range top.AddressComponents {
		for _, t := range c.Types {
			switch t {
			case "locality":
				res.City = c.LongName
			case "administrative_area_level_1":
				res.State = c.ShortName
			case "country":
				res.Country = c.ShortName
			case "postal_code":
				res.PostalCode = c.LongName
			}
		}
	}
	res.Timezone = g.timezone(ctx, res.Latitude, res.Longitude)
	return res, nil
}

// timezone is best effort; a failure leaves the zone empty.
func (g *Google) timezone(ctx context.Context, lat, lon float64) string {
	q := url.Values{
		"location":  {strconv.FormatFloat(lat, 'f', -1, 64) + "," + strconv.FormatFloat(lon, 'f', -1, 64)},
		"timestamp": {strconv.FormatInt(time.Now().Unix(), 10)},
		"key":       {g.apiKey},
	}
	var body struct {
		Status     string `json:"status"`
		TimeZoneID string `json:"timeZoneId"`
	}
	if err := getJSON(ctx, g.client, g.Name(), g.baseURL+"/maps/api/timezone/json?"+q.Encode(), nil, &body); err != nil {
		return ""
	}
	return body.TimeZoneID
}

func getJSON(ctx context.Context, client *http.Client, provider, rawURL string, header http.Header, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return fmt.Errorf("convene: %s geocode: build request: %w", provider, err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("convene: %s geocode: %w", provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Provider: provider, StatusCode: resp.StatusCode}
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("convene: %s geocode: decode: %w", provider, err)
	}
	return nil
}
