package normalize

import (
	"github.com/goccy/go-json"

	"github.com/xraph/convene/source"
)

type genericPayload struct {
	ID          flexString `json:"id"`
	Title       string     `json:"title"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	StartDate   string     `json:"start_date"`
	EndDate     string     `json:"end_date"`
	Venue       string     `json:"venue"`
	Address     string     `json:"address"`
	City        string     `json:"city"`
	State       string     `json:"state"`
	Country     string     `json:"country"`
	PostalCode  string     `json:"postal_code"`
	Latitude    flexFloat  `json:"latitude"`
	Longitude   flexFloat  `json:"longitude"`
	URL         string     `json:"url"`
}

// genericMapper reads the flat field names used by JSON feeds, scrapers and
// the generic webhook route.
type genericMapper struct{}

func (genericMapper) Provider() source.Provider { return source.ProviderGeneric }

func (genericMapper) Map(raw []byte) (*NormalizedEvent, error) {
	var p genericPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, invalid(err)
	}

	evt := &NormalizedEvent{
		ExternalID:  string(p.ID),
		Title:       firstNonEmpty(p.Title, p.Name),
		Description: p.Description,
		EndDate:     optionalTime(p.EndDate),
		Venue:       p.Venue,
		Address:     p.Address,
		City:        p.City,
		State:       p.State,
		Country:     p.Country,
		PostalCode:  p.PostalCode,
		URL:         p.URL,
	}
	if t, ok := parseTime(p.StartDate); ok {
		evt.StartDate = t
	}
	evt.Latitude, evt.Longitude = coords(p.Latitude, p.Longitude)
	return evt, nil
}
