// Package location resolves venue names and addresses to canonical
// Location records.
package location

import (
	"context"
	"errors"

	"github.com/xraph/convene/id"
	"github.com/xraph/convene/internal/entity"
)

// Errors returned by the resolver and stores.
var (
	ErrNotFound   = errors.New("convene: location not found")
	ErrUnresolved = errors.New("convene: location could not be resolved")
)

// VenueType is a coarse classification of a venue.
type VenueType string

// Venue types.
const (
	VenueTheater    VenueType = "theater"
	VenueArena      VenueType = "arena"
	VenueClub       VenueType = "club"
	VenueRestaurant VenueType = "restaurant"
	VenueGallery    VenueType = "gallery"
	VenueOutdoor    VenueType = "outdoor"
	VenueHotel      VenueType = "hotel"
	VenueChurch     VenueType = "church"
	VenueSchool     VenueType = "school"
	VenueLibrary    VenueType = "library"
	VenueConference VenueType = "conference"
	VenueDefault    VenueType = "venue"
)

// Location is a canonical venue or place.
type Location struct {
	entity.Entity

	ID         id.ID     `json:"id" bson:"_id"`
	Name       string    `json:"name" bson:"name"`
	Address    string    `json:"address,omitempty" bson:"address"`
	City       string    `json:"city,omitempty" bson:"city"`
	State      string    `json:"state,omitempty" bson:"state"`
	Country    string    `json:"country,omitempty" bson:"country"`
	PostalCode string    `json:"postal_code,omitempty" bson:"postal_code"`
	Latitude   *float64  `json:"latitude,omitempty" bson:"latitude,omitempty"`
	Longitude  *float64  `json:"longitude,omitempty" bson:"longitude,omitempty"`
	Timezone   string    `json:"timezone,omitempty" bson:"timezone"`
	VenueType  VenueType `json:"venue_type" bson:"venue_type"`

	// ProviderIDs maps a geocoding provider to its place identifier.
	ProviderIDs map[string]string `json:"provider_ids,omitempty" bson:"provider_ids,omitempty"`
}

// HasCoordinates reports whether both coordinates are set.
func (l *Location) HasCoordinates() bool {
	return l.Latitude != nil && l.Longitude != nil
}

// Store defines the persistence contract for locations.
type Store interface {
	// CreateLocation persists a new location.
	CreateLocation(ctx context.Context, loc *Location) error

	// GetLocation returns a location by ID.
	GetLocation(ctx context.Context, locID id.ID) (*Location, error)

	// UpdateLocation replaces a location's mutable fields.
	UpdateLocation(ctx context.Context, loc *Location) error

	// FindLocationByAddress matches name and address case-insensitively.
	FindLocationByAddress(ctx context.Context, name, address string) (*Location, error)

	// FindLocationByCity matches name, city and state case-insensitively.
	FindLocationByCity(ctx context.Context, name, city, state string) (*Location, error)

	// FindLocationsNear returns locations within radius meters of a point,
	// nearest first.
	FindLocationsNear(ctx context.Context, lat, lon, radiusMeters float64) ([]*Location, error)
}
