package normalize_test

import (
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/xraph/convene/id"
	"github.com/xraph/convene/normalize"
	"github.com/xraph/convene/source"
)

func src(p source.Provider) *source.EventSource {
	return &source.EventSource{ID: id.NewSourceID(), Provider: p, Kind: source.KindAPI}
}

func TestNormalize_Eventbrite(t *testing.T) {
	raw := []byte(`{
		"id": "ev1",
		"name": {"text": "Jazz Night"},
		"start": {"utc": "2025-07-12T20:00:00Z"},
		"venue": {"name": "Blue Note", "address": {"localized_address_display": "131 W 3rd St, New York, NY"}}
	}`)
	s := src(source.ProviderEventbrite)

	evt, err := normalize.New().Normalize(s, raw)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if evt.ExternalID != "ev1" {
		t.Errorf("external id = %q", evt.ExternalID)
	}
	if evt.Title != "Jazz Night" {
		t.Errorf("title = %q", evt.Title)
	}
	if want := time.Date(2025, 7, 12, 20, 0, 0, 0, time.UTC); !evt.StartDate.Equal(want) {
		t.Errorf("start = %v, want %v", evt.StartDate, want)
	}
	if evt.Venue != "Blue Note" {
		t.Errorf("venue = %q", evt.Venue)
	}
	if evt.Address != "131 W 3rd St, New York, NY" {
		t.Errorf("address = %q", evt.Address)
	}
	if evt.EndDate != nil || evt.Description != "" {
		t.Errorf("optional fields should stay empty: end=%v desc=%q", evt.EndDate, evt.Description)
	}
	if evt.SourceID != s.ID || evt.Provider != source.ProviderEventbrite {
		t.Errorf("attribution = %v/%s", evt.SourceID, evt.Provider)
	}
	if len(evt.RawPayload) == 0 {
		t.Error("raw payload not retained")
	}
}

func TestNormalize_Facebook(t *testing.T) {
	raw := []byte(`{
		"id": 123456,
		"name": "Open Mic",
		"description": "Bring your guitar",
		"start_time": "2025-08-01T19:00:00-0400",
		"end_time": "2025-08-01T22:00:00-0400",
		"place": {"name": "The Bitter End", "location": {"street": "147 Bleecker St", "city": "New York", "state": "NY", "country": "US", "zip": "10012", "latitude": 40.7285, "longitude": -74.0002}}
	}`)
	evt, err := normalize.New().Normalize(src(source.ProviderFacebook), raw)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if evt.ExternalID != "123456" {
		t.Errorf("external id = %q", evt.ExternalID)
	}
	if want := time.Date(2025, 8, 1, 23, 0, 0, 0, time.UTC); !evt.StartDate.Equal(want) {
		t.Errorf("start = %v, want %v", evt.StartDate, want)
	}
	if evt.EndDate == nil || evt.EndDate.Sub(evt.StartDate) != 3*time.Hour {
		t.Errorf("end = %v", evt.EndDate)
	}
	if !evt.HasCoordinates() || *evt.Latitude != 40.7285 {
		t.Errorf("coordinates = %v,%v", evt.Latitude, evt.Longitude)
	}
	if evt.City != "New York" || evt.PostalCode != "10012" {
		t.Errorf("city=%q zip=%q", evt.City, evt.PostalCode)
	}
	if evt.URL != "https://www.facebook.com/events/123456" {
		t.Errorf("url = %q", evt.URL)
	}
}

func TestNormalize_Meetup(t *testing.T) {
	start := time.Date(2025, 9, 3, 18, 30, 0, 0, time.UTC)
	raw := []byte(`{
		"id": "m-77",
		"name": "Go Night",
		"time": ` + strconv.FormatInt(start.UnixMilli(), 10) + `,
		"duration": 7200000,
		"link": "https://meetup.com/go/events/77",
		"venue": {"name": "WeWork", "address_1": "115 W 18th St", "city": "New York", "lat": "40.74", "lon": "-73.99"}
	}`)
	evt, err := normalize.New().Normalize(src(source.ProviderMeetup), raw)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if !evt.StartDate.Equal(start) {
		t.Errorf("start = %v, want %v", evt.StartDate, start)
	}
	if evt.EndDate == nil || !evt.EndDate.Equal(start.Add(2*time.Hour)) {
		t.Errorf("end = %v", evt.EndDate)
	}
	if !evt.HasCoordinates() || *evt.Longitude != -73.99 {
		t.Errorf("coordinates from strings not parsed")
	}
}

func TestNormalize_GenericDerivesExternalID(t *testing.T) {
	raw := []byte(`{"name": "Farmers Market", "start_date": "2025-07-13", "venue": "Union Square"}`)
	n := normalize.New()

	a, err := n.Normalize(src(source.ProviderGeneric), raw)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	b, err := n.Normalize(src(source.ProviderGeneric), raw)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if a.ExternalID == "" || a.ExternalID != b.ExternalID {
		t.Fatalf("derived ids differ: %q vs %q", a.ExternalID, b.ExternalID)
	}
	want := normalize.ExternalIDFor("Farmers Market", time.Date(2025, 7, 13, 0, 0, 0, 0, time.UTC), "Union Square")
	if a.ExternalID != want {
		t.Errorf("external id = %q, want %q", a.ExternalID, want)
	}
}

func TestNormalize_UnknownProviderFallsBackToGeneric(t *testing.T) {
	raw := []byte(`{"title": "Book Club", "start_date": "2025-07-13T18:00:00Z"}`)
	s := src("myspace")
	evt, err := normalize.New().Normalize(s, raw)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if evt.Title != "Book Club" || evt.Provider != "myspace" {
		t.Errorf("title=%q provider=%q", evt.Title, evt.Provider)
	}
}

func TestNormalize_Errors(t *testing.T) {
	tests := []struct {
		name     string
		provider source.Provider
		raw      string
		want     error
		field    string
	}{
		{"missing title", source.ProviderGeneric, `{"start_date": "2025-07-13"}`, normalize.ErrMissingField, "title"},
		{"missing start", source.ProviderEventbrite, `{"name": {"text": "x"}}`, normalize.ErrMissingField, "start_date"},
		{"unparseable start", source.ProviderFacebook, `{"name": "x", "start_time": "next tuesday"}`, normalize.ErrMissingField, "start_date"},
		{"array payload", source.ProviderGeneric, `[{"title": "x"}]`, normalize.ErrInvalidPayload, ""},
		{"not json", source.ProviderGeneric, `title=x`, normalize.ErrInvalidPayload, ""},
		{"wrong field type", source.ProviderEventbrite, `{"name": "Jazz Night", "start": {"utc": "2025-07-12T20:00:00Z"}}`, normalize.ErrInvalidPayload, ""},
		{"bad coordinate", source.ProviderGeneric, `{"title": "x", "start_date": "2025-07-13", "latitude": "north", "longitude": "1"}`, normalize.ErrInvalidPayload, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := normalize.New().Normalize(src(tt.provider), []byte(tt.raw))
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if !normalize.IsPermanent(err) {
				t.Error("data errors must be permanent")
			}
			if tt.field != "" {
				var fe *normalize.FieldError
				if !errors.As(err, &fe) || fe.Field != tt.field {
					t.Errorf("field error = %v, want field %q", err, tt.field)
				}
			}
		})
	}
}

func TestUnwrap(t *testing.T) {
	inner := `{"title":"x"}`
	if got := string(normalize.Unwrap([]byte(`{"type":"created","event":` + inner + `}`))); got != inner {
		t.Errorf("Unwrap envelope = %s", got)
	}
	plain := `{"title":"x","event":"concert"}`
	if got := string(normalize.Unwrap([]byte(plain))); got != plain {
		t.Errorf("Unwrap plain = %s", got)
	}
}
