package location

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xraph/convene/geocode"
	"github.com/xraph/convene/id"
	"github.com/xraph/convene/internal/entity"
)

const (
	// MatchRadiusMeters bounds the fuzzy venue search around a geocoded point.
	MatchRadiusMeters = 100.0
	// MatchThreshold is the name similarity above which two venues merge.
	MatchThreshold = 0.8
)

// Query describes the venue to resolve.
type Query struct {
	Name    string
	Address string
	City    string
	State   string
}

func (q Query) composed() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{q.Address, q.City, q.State} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return strings.TrimSpace(q.Name)
	}
	return strings.Join(parts, ", ")
}

// Resolver maps venue text to a Location, creating one when no known
// venue matches.
type Resolver struct {
	store    Store
	geocoder geocode.Geocoder
	logger   *slog.Logger
	now      func() time.Time
}

// NewResolver returns a Resolver. A nil geocoder disables steps that need
// coordinates; unmatched venues then fail to resolve.
func NewResolver(store Store, geocoder geocode.Geocoder, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{store: store, geocoder: geocoder, logger: logger, now: time.Now}
}

// SetClock overrides the time source used for timestamps.
func (r *Resolver) SetClock(now func() time.Time) { r.now = now }

// Resolve returns the canonical Location for q. Failures wrap ErrUnresolved
// and are not fatal to the caller.
func (r *Resolver) Resolve(ctx context.Context, q Query) (*Location, error) {
	q.Name = strings.TrimSpace(q.Name)
	q.Address = strings.TrimSpace(q.Address)
	if q.Name == "" && q.Address == "" {
		return nil, ErrUnresolved
	}

	if loc, err := r.exact(ctx, q); err != nil || loc != nil {
		return loc, err
	}

	if r.geocoder == nil {
		return nil, fmt.Errorf("%w: no geocoder configured", ErrUnresolved)
	}
	res, err := r.geocoder.Geocode(ctx, q.composed())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnresolved, err)
	}

	near, err := r.store.FindLocationsNear(ctx, res.Latitude, res.Longitude, MatchRadiusMeters)
	if err != nil {
		return nil, fmt.Errorf("convene: find nearby locations: %w", err)
	}
	name := q.Name
	if name == "" {
		name = q.Address
	}
	for _, cand := range near {
		if NameSimilarity(name, cand.Name) > MatchThreshold {
			if r.enrich(cand, q, res) {
				cand.Touch(r.now())
				if err := r.store.UpdateLocation(ctx, cand); err != nil {
					return nil, fmt.Errorf("convene: enrich location: %w", err)
				}
			}
			r.logger.DebugContext(ctx, "venue matched nearby location",
				"location_id", cand.ID,
				"venue", name,
			)
			return cand, nil
		}
	}

	loc := r.build(name, q, res)
	if err := r.store.CreateLocation(ctx, loc); err != nil {
		return nil, fmt.Errorf("convene: create location: %w", err)
	}
	r.logger.DebugContext(ctx, "location created",
		"location_id", loc.ID,
		"venue", loc.Name,
		"venue_type", loc.VenueType,
	)
	return loc, nil
}

func (r *Resolver) exact(ctx context.Context, q Query) (*Location, error) {
	if q.Name == "" {
		return nil, nil
	}
	if q.Address != "" {
		loc, err := r.store.FindLocationByAddress(ctx, q.Name, q.Address)
		if err == nil {
			return loc, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("convene: find location by address: %w", err)
		}
	}
	if q.City != "" {
		loc, err := r.store.FindLocationByCity(ctx, q.Name, q.City, q.State)
		if err == nil {
			return loc, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("convene: find location by city: %w", err)
		}
	}
	return nil, nil
}

func (r *Resolver) build(name string, q Query, res *geocode.Result) *Location {
	lat, lon := res.Latitude, res.Longitude
	loc := &Location{
		Entity:     entity.At(r.now()),
		ID:         id.NewLocationID(),
		Name:       name,
		Address:    q.Address,
		City:       firstNonEmpty(res.City, q.City),
		State:      firstNonEmpty(res.State, q.State),
		Country:    res.Country,
		PostalCode: res.PostalCode,
		Latitude:   &lat,
		Longitude:  &lon,
		Timezone:   res.Timezone,
		VenueType:  ClassifyVenue(name, q.Address),
	}
	if loc.Address == "" {
		loc.Address = res.FormattedAddress
	}
	if res.ProviderID != "" {
		loc.ProviderIDs = map[string]string{res.Provider: res.ProviderID}
	}
	return loc
}

// enrich fills gaps in loc from the query and geocode result. Existing
// coordinates are never replaced. It reports whether anything changed.
func (r *Resolver) enrich(loc *Location, q Query, res *geocode.Result) bool {
	changed := false
	fill := func(dst *string, vals ...string) {
		if *dst != "" {
			return
		}
		if v := firstNonEmpty(vals...); v != "" {
			*dst = v
			changed = true
		}
	}
	fill(&loc.Address, q.Address, res.FormattedAddress)
	fill(&loc.City, res.City, q.City)
	fill(&loc.State, res.State, q.State)
	fill(&loc.Country, res.Country)
	fill(&loc.PostalCode, res.PostalCode)
	fill(&loc.Timezone, res.Timezone)

	if !loc.HasCoordinates() {
		lat, lon := res.Latitude, res.Longitude
		loc.Latitude, loc.Longitude = &lat, &lon
		changed = true
	}
	if res.ProviderID != "" {
		if loc.ProviderIDs == nil {
			loc.ProviderIDs = make(map[string]string)
		}
		if loc.ProviderIDs[res.Provider] != res.ProviderID {
			loc.ProviderIDs[res.Provider] = res.ProviderID
			changed = true
		}
	}
	if loc.VenueType == "" {
		loc.VenueType = ClassifyVenue(loc.Name, loc.Address)
		changed = true
	}
	return changed
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
