package geocode

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Nominatim is the free public provider. The public instance allows one
// request per second, which the limiter enforces.
type Nominatim struct {
	baseURL   string
	userAgent string
	client    *http.Client
	limiter   *rate.Limiter
}

// NewNominatim returns a Nominatim provider. baseURL may be empty.
func NewNominatim(baseURL, userAgent string, client *http.Client) *Nominatim {
	if baseURL == "" {
		baseURL = "https://nominatim.openstreetmap.org"
	}
	if userAgent == "" {
		userAgent = "convene/1.0"
	}
	return &Nominatim{
		baseURL:   baseURL,
		userAgent: userAgent,
		client:    newHTTPClient(client),
		limiter:   rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

// Name implements Provider.
func (n *Nominatim) Name() string { return "nominatim" }

// Available implements Provider.
func (n *Nominatim) Available() bool { return true }

type nominatimPlace struct {
	PlaceID     int64  `json:"place_id"`
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
	Address     struct {
		City        string `json:"city"`
		Town        string `json:"town"`
		Village     string `json:"village"`
		State       string `json:"state"`
		Postcode    string `json:"postcode"`
		CountryCode string `json:"country_code"`
	} `json:"address"`
}

// Geocode implements Geocoder.
func (n *Nominatim) Geocode(ctx context.Context, address string) (*Result, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{
		"q":              {address},
		"format":         {"json"},
		"addressdetails": {"1"},
		"limit":          {"1"},
	}
	var places []nominatimPlace
	hdr := http.Header{"User-Agent": {n.userAgent}}
	if err := getJSON(ctx, n.client, n.Name(), n.baseURL+"/search?"+q.Encode(), hdr, &places); err != nil {
		return nil, err
	}
	if len(places) == 0 {
		return nil, ErrNoResults
	}

	p := places[0]
	lat, err := strconv.ParseFloat(p.Lat, 64)
	if err != nil {
		return nil, ErrNoResults
	}
	lon, err := strconv.ParseFloat(p.Lon, 64)
	if err != nil {
		return nil, ErrNoResults
	}

	city := p.Address.City
	if city == "" {
		city = p.Address.Town
	}
	if city == "" {
		city = p.Address.Village
	}
	return &Result{
		Latitude:         lat,
		Longitude:        lon,
		FormattedAddress: p.DisplayName,
		City:             city,
		State:            p.Address.State,
		Country:          strings.ToUpper(p.Address.CountryCode),
		PostalCode:       p.Address.Postcode,
		Provider:         n.Name(),
		ProviderID:       strconv.FormatInt(p.PlaceID, 10),
	}, nil
}
