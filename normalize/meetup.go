package normalize

import (
	"time"

	"github.com/goccy/go-json"

	"github.com/xraph/convene/source"
)

type meetupPayload struct {
	ID          flexString `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Time        int64      `json:"time"`
	Duration    int64      `json:"duration"`
	Link        string     `json:"link"`
	Venue       *struct {
		Name     string    `json:"name"`
		Address1 string    `json:"address_1"`
		City     string    `json:"city"`
		State    string    `json:"state"`
		Country  string    `json:"country"`
		Zip      string    `json:"zip"`
		Lat      flexFloat `json:"lat"`
		Lon      flexFloat `json:"lon"`
	} `json:"venue"`
}

type meetupMapper struct{}

func (meetupMapper) Provider() source.Provider { return source.ProviderMeetup }

func (meetupMapper) Map(raw []byte) (*NormalizedEvent, error) {
	var p meetupPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, invalid(err)
	}

	evt := &NormalizedEvent{
		ExternalID:  string(p.ID),
		Title:       p.Name,
		Description: p.Description,
		URL:         p.Link,
	}
	if p.Time > 0 {
		evt.StartDate = fromMillis(p.Time)
		if p.Duration > 0 {
			end := evt.StartDate.Add(time.Duration(p.Duration) * time.Millisecond)
			evt.EndDate = &end
		}
	}
	if v := p.Venue; v != nil {
		evt.Venue = v.Name
		evt.Address = v.Address1
		evt.City = v.City
		evt.State = v.State
		evt.Country = v.Country
		evt.PostalCode = v.Zip
		evt.Latitude, evt.Longitude = coords(v.Lat, v.Lon)
	}
	return evt, nil
}
