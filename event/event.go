// Package event defines the stored, enriched event record.
package event

import (
	"errors"
	"time"

	"github.com/goccy/go-json"

	"github.com/xraph/convene/feature"
	"github.com/xraph/convene/id"
	"github.com/xraph/convene/internal/entity"
	"github.com/xraph/convene/location"
)

// ErrNotFound is returned when an event does not exist.
var ErrNotFound = errors.New("convene: event not found")

// DefaultDuration is assumed for events without an end time when matching
// time windows.
const DefaultDuration = 3 * time.Hour

// Event is a normalized event enriched with location, category, confidence
// and duplicate metadata. (SourceID, ExternalID) is unique.
type Event struct {
	entity.Entity

	ID          id.ID      `json:"id" bson:"_id"`
	SourceID    id.ID      `json:"source_id" bson:"source_id"`
	ExternalID  string     `json:"external_id" bson:"external_id"`
	Title       string     `json:"title" bson:"title"`
	Description string     `json:"description,omitempty" bson:"description"`
	StartDate   time.Time  `json:"start_date" bson:"start_date"`
	EndDate     *time.Time `json:"end_date,omitempty" bson:"end_date,omitempty"`
	Venue       string     `json:"venue,omitempty" bson:"venue"`
	Address     string     `json:"address,omitempty" bson:"address"`
	URL         string     `json:"url,omitempty" bson:"url"`

	LocationID id.ID    `json:"location_id,omitempty" bson:"location_id,omitempty"`
	Latitude   *float64 `json:"latitude,omitempty" bson:"latitude,omitempty"`
	Longitude  *float64 `json:"longitude,omitempty" bson:"longitude,omitempty"`

	Category     string            `json:"category" bson:"category"`
	Confidence   float64           `json:"confidence" bson:"confidence"`
	DuplicateIDs []id.ID           `json:"duplicate_ids,omitempty" bson:"duplicate_ids,omitempty"`
	Features     *feature.Features `json:"features,omitempty" bson:"features,omitempty"`
	RawPayload   json.RawMessage   `json:"raw_payload,omitempty" bson:"raw_payload,omitempty"`
	ContentHash  string            `json:"content_hash,omitempty" bson:"content_hash"`
}

// HasCoordinates reports whether both coordinates are set.
func (e *Event) HasCoordinates() bool {
	return e.Latitude != nil && e.Longitude != nil
}

// EffectiveEnd returns EndDate, or StartDate plus DefaultDuration.
func (e *Event) EffectiveEnd() time.Time {
	if e.EndDate != nil && e.EndDate.After(e.StartDate) {
		return *e.EndDate
	}
	return e.StartDate.Add(DefaultDuration)
}

// FeatureInput returns the data the feature extractor reads.
func (e *Event) FeatureInput() feature.Input {
	return feature.Input{
		Title:       e.Title,
		Description: e.Description,
		Venue:       e.Venue,
		Address:     e.Address,
		Start:       e.StartDate,
		End:         e.EndDate,
	}
}

// CandidateQuery selects stored events that may duplicate a new one.
type CandidateQuery struct {
	// From and To bound the time window; stored events overlapping it match.
	From time.Time
	To   time.Time

	// Latitude, Longitude and RadiusKm restrict by distance when set.
	// Events without coordinates never match a spatial query.
	Latitude  *float64
	Longitude *float64
	RadiusKm  float64

	ExcludeID id.ID
	Limit     int
}

// Spatial reports whether the query has a distance restriction.
func (q CandidateQuery) Spatial() bool {
	return q.Latitude != nil && q.Longitude != nil && q.RadiusKm > 0
}

// Matches applies the query to a single event. Stores use it directly or to
// refine a coarse database prefilter.
func (q CandidateQuery) Matches(e *Event) bool {
	if !q.ExcludeID.IsNil() && e.ID == q.ExcludeID {
		return false
	}
	if e.StartDate.After(q.To) || e.EffectiveEnd().Before(q.From) {
		return false
	}
	if !q.Spatial() {
		return true
	}
	if !e.HasCoordinates() {
		return false
	}
	d := location.Distance(*q.Latitude, *q.Longitude, *e.Latitude, *e.Longitude)
	return d <= q.RadiusKm*1000
}

// ListOpts filters event listings.
type ListOpts struct {
	SourceID id.ID
	From     *time.Time
	To       *time.Time
	Offset   int
	Limit    int
}
