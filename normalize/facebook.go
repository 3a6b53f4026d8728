package normalize

import (
	"github.com/goccy/go-json"

	"github.com/xraph/convene/source"
)

type facebookPayload struct {
	ID          flexString `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	StartTime   string     `json:"start_time"`
	EndTime     string     `json:"end_time"`
	Place       *struct {
		Name     string `json:"name"`
		Location *struct {
			Street    string    `json:"street"`
			City      string    `json:"city"`
			State     string    `json:"state"`
			Country   string    `json:"country"`
			Zip       string    `json:"zip"`
			Latitude  flexFloat `json:"latitude"`
			Longitude flexFloat `json:"longitude"`
		} `json:"location"`
	} `json:"place"`
}

type facebookMapper struct{}

func (facebookMapper) Provider() source.Provider { return source.ProviderFacebook }

func (facebookMapper) Map(raw []byte) (*NormalizedEvent, error) {
	var p facebookPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, invalid(err)
	}

	evt := &NormalizedEvent{
		ExternalID:  string(p.ID),
		Title:       p.Name,
		Description: p.Description,
		EndDate:     optionalTime(p.EndTime),
	}
	if t, ok := parseTime(p.StartTime); ok {
		evt.StartDate = t
	}
	if evt.ExternalID != "" {
		evt.URL = "https://www.facebook.com/events/" + evt.ExternalID
	}
	if pl := p.Place; pl != nil {
		evt.Venue = pl.Name
		if loc := pl.Location; loc != nil {
			evt.Address = loc.Street
			evt.City = loc.City
			evt.State = loc.State
			evt.Country = loc.Country
			evt.PostalCode = loc.Zip
			evt.Latitude, evt.Longitude = coords(loc.Latitude, loc.Longitude)
		}
	}
	return evt, nil
}
