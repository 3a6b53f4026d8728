package mongo

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/xraph/convene"
	"github.com/xraph/convene/id"
	"github.com/xraph/convene/location"
)

// CreateLocation persists a new location.
func (s *Store) CreateLocation(ctx context.Context, loc *location.Location) error {
	m := toLocationModel(loc)

	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		return fmt.Errorf("convene/mongo: create location: %w", err)
	}

	return nil
}

// GetLocation returns a location by ID.
func (s *Store) GetLocation(ctx context.Context, locID id.ID) (*location.Location, error) {
	var m locationModel

	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": locID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, convene.ErrLocationNotFound
		}

		return nil, fmt.Errorf("convene/mongo: get location: %w", err)
	}

	return fromLocationModel(&m)
}

// UpdateLocation replaces a location.
func (s *Store) UpdateLocation(ctx context.Context, loc *location.Location) error {
	m := toLocationModel(loc)
	m.UpdatedAt = now()

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("convene/mongo: update location: %w", err)
	}

	if res.MatchedCount() == 0 {
		return convene.ErrLocationNotFound
	}

	return nil
}

// FindLocationByAddress returns the oldest location with the same name and
// address, ignoring case.
func (s *Store) FindLocationByAddress(ctx context.Context, name, address string) (*location.Location, error) {
	return s.findLocation(ctx, bson.M{
		"name_key":    strings.ToLower(name),
		"address_key": strings.ToLower(address),
	})
}

// FindLocationByCity returns the oldest location with the same name and
// city. An empty state matches any state.
func (s *Store) FindLocationByCity(ctx context.Context, name, city, state string) (*location.Location, error) {
	filter := bson.M{
		"name_key": strings.ToLower(name),
		"city_key": strings.ToLower(city),
	}
	if state != "" {
		filter["state_key"] = strings.ToLower(state)
	}

	return s.findLocation(ctx, filter)
}

func (s *Store) findLocation(ctx context.Context, filter bson.M) (*location.Location, error) {
	var models []locationModel

	err := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("convene/mongo: find location: %w", err)
	}

	if len(models) == 0 {
		return nil, convene.ErrLocationNotFound
	}

	return fromLocationModel(&models[0])
}

// FindLocationsNear returns locations within radiusMeters, nearest first,
// using the 2dsphere index on geo.
func (s *Store) FindLocationsNear(ctx context.Context, lat, lon, radiusMeters float64) ([]*location.Location, error) {
	var models []locationModel

	filter := bson.M{
		"geo": bson.M{
			"$nearSphere": bson.M{
				"$geometry": bson.M{
					"type":        "Point",
					"coordinates": bson.A{lon, lat},
				},
				"$maxDistance": radiusMeters,
			},
		},
	}

	if err := s.mdb.NewFind(&models).Filter(filter).Scan(ctx); err != nil {
		return nil, fmt.Errorf("convene/mongo: find locations near: %w", err)
	}

	result := make([]*location.Location, 0, len(models))

	for i := range models {
		loc, err := fromLocationModel(&models[i])
		if err != nil {
			return nil, err
		}

		result = append(result, loc)
	}

	return result, nil
}
