package normalize

import (
	"strings"

	"github.com/goccy/go-json"

	"github.com/xraph/convene/source"
)

type eventbritePayload struct {
	ID   flexString `json:"id"`
	Name *struct {
		Text string `json:"text"`
	} `json:"name"`
	Description *struct {
		Text string `json:"text"`
	} `json:"description"`
	Start *struct {
		UTC   string `json:"utc"`
		Local string `json:"local"`
	} `json:"start"`
	End *struct {
		UTC string `json:"utc"`
	} `json:"end"`
	Venue *struct {
		Name      string    `json:"name"`
		Latitude  flexFloat `json:"latitude"`
		Longitude flexFloat `json:"longitude"`
		Address   *struct {
			Address1   string `json:"address_1"`
			Display    string `json:"localized_address_display"`
			City       string `json:"city"`
			Region     string `json:"region"`
			Country    string `json:"country"`
			PostalCode string `json:"postal_code"`
		} `json:"address"`
	} `json:"venue"`
	URL string `json:"url"`
}

type eventbriteMapper struct{}

func (eventbriteMapper) Provider() source.Provider { return source.ProviderEventbrite }

func (eventbriteMapper) Map(raw []byte) (*NormalizedEvent, error) {
	var p eventbritePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, invalid(err)
	}

	evt := &NormalizedEvent{ExternalID: string(p.ID), URL: p.URL}
	if p.Name != nil {
		evt.Title = p.Name.Text
	}
	if p.Description != nil {
		evt.Description = p.Description.Text
	}
	if p.Start != nil {
		start := p.Start.UTC
		if start == "" {
			start = p.Start.Local
		}
		if t, ok := parseTime(start); ok {
			evt.StartDate = t
		}
	}
	if p.End != nil {
		evt.EndDate = optionalTime(p.End.UTC)
	}
	if v := p.Venue; v != nil {
		evt.Venue = strings.TrimSpace(v.Name)
		evt.Latitude, evt.Longitude = coords(v.Latitude, v.Longitude)
		if a := v.Address; a != nil {
			evt.Address = firstNonEmpty(a.Display, a.Address1)
			evt.City = a.City
			evt.State = a.Region
			evt.Country = a.Country
			evt.PostalCode = a.PostalCode
		}
	}
	return evt, nil
}
