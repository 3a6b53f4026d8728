package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/convene"
	"github.com/xraph/convene/event"
	"github.com/xraph/convene/id"
	"github.com/xraph/convene/location"
)

// UpsertEvent writes evt keyed on (source_id, external_id) in a single
// findOneAndUpdate. The stored id and created_at survive updates; the
// returned document tells whether this call inserted it.
func (s *Store) UpsertEvent(ctx context.Context, evt *event.Event) (bool, error) {
	m := toEventModel(evt)

	filter := bson.M{"source_id": m.SourceID, "external_id": m.ExternalID}
	update := bson.M{
		"$set": bson.M{
			"title":         m.Title,
			"description":   m.Description,
			"start_date":    m.StartDate,
			"end_date":      m.EndDate,
			"venue":         m.Venue,
			"address":       m.Address,
			"url":           m.URL,
			"location_id":   m.LocationID,
			"latitude":      m.Latitude,
			"longitude":     m.Longitude,
			"category":      m.Category,
			"confidence":    m.Confidence,
			"duplicate_ids": m.DuplicateIDs,
			"features":      m.Features,
			"raw_payload":   m.RawPayload,
			"content_hash":  m.ContentHash,
			"updated_at":    m.UpdatedAt,
		},
		"$setOnInsert": bson.M{
			"_id":        m.ID,
			"created_at": m.CreatedAt,
		},
	}

	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var stored eventModel

	err := s.mdb.Collection(colEvents).
		FindOneAndUpdate(ctx, filter, update, opts).
		Decode(&stored)
	if err != nil {
		return false, fmt.Errorf("convene/mongo: upsert event: %w", err)
	}

	created := stored.ID == m.ID
	if !created {
		if evt.ID, err = id.ParseEventID(stored.ID); err != nil {
			return false, fmt.Errorf("parse event ID %q: %w", stored.ID, err)
		}
	}
	evt.CreatedAt = stored.CreatedAt

	return created, nil
}

// GetEvent returns an event by ID.
func (s *Store) GetEvent(ctx context.Context, evtID id.ID) (*event.Event, error) {
	var m eventModel

	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": evtID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, convene.ErrEventNotFound
		}

		return nil, fmt.Errorf("convene/mongo: get event: %w", err)
	}

	return fromEventModel(&m)
}

// GetEventByExternalID returns the event a source knows as externalID.
func (s *Store) GetEventByExternalID(ctx context.Context, srcID id.ID, externalID string) (*event.Event, error) {
	var m eventModel

	err := s.mdb.NewFind(&m).
		Filter(bson.M{"source_id": srcID.String(), "external_id": externalID}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, convene.ErrEventNotFound
		}

		return nil, fmt.Errorf("convene/mongo: get event by external id: %w", err)
	}

	return fromEventModel(&m)
}

// FindCandidates prefilters on the time window and a bounding box, then
// applies the exact query in Go.
func (s *Store) FindCandidates(ctx context.Context, q event.CandidateQuery) ([]*event.Event, error) {
	var models []eventModel

	filter := bson.M{
		"start_date": bson.M{"$lte": q.To},
		"$or": bson.A{
			bson.M{"end_date": bson.M{"$gte": q.From}},
			bson.M{"start_date": bson.M{"$gte": q.From.Add(-event.DefaultDuration)}},
		},
	}

	if q.Spatial() {
		minLat, maxLat, minLon, maxLon := location.BoundingBox(*q.Latitude, *q.Longitude, q.RadiusKm*1000)
		filter["latitude"] = bson.M{"$gte": minLat, "$lte": maxLat}
		filter["longitude"] = bson.M{"$gte": minLon, "$lte": maxLon}
	}

	err := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "start_date", Value: 1}, {Key: "_id", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("convene/mongo: find candidates: %w", err)
	}

	var result []*event.Event

	for i := range models {
		evt, err := fromEventModel(&models[i])
		if err != nil {
			return nil, err
		}

		if !q.Matches(evt) {
			continue
		}

		result = append(result, evt)
		if q.Limit > 0 && len(result) == q.Limit {
			break
		}
	}

	return result, nil
}

// ListEvents returns events, newest start first.
func (s *Store) ListEvents(ctx context.Context, opts event.ListOpts) ([]*event.Event, error) {
	var models []eventModel

	filter := bson.M{}
	if !opts.SourceID.IsNil() {
		filter["source_id"] = opts.SourceID.String()
	}

	if opts.From != nil || opts.To != nil {
		dateFilter := bson.M{}
		if opts.From != nil {
			dateFilter["$gte"] = *opts.From
		}

		if opts.To != nil {
			dateFilter["$lte"] = *opts.To
		}

		filter["start_date"] = dateFilter
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "start_date", Value: -1}, {Key: "_id", Value: -1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}

	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("convene/mongo: list events: %w", err)
	}

	result := make([]*event.Event, 0, len(models))

	for i := range models {
		evt, err := fromEventModel(&models[i])
		if err != nil {
			return nil, err
		}

		result = append(result, evt)
	}

	return result, nil
}

// CountEvents returns the number of stored events.
func (s *Store) CountEvents(ctx context.Context) (int64, error) {
	count, err := s.mdb.NewFind((*eventModel)(nil)).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("convene/mongo: count events: %w", err)
	}

	return count, nil
}

// AverageConfidence returns the mean confidence over all events, or zero.
func (s *Store) AverageConfidence(ctx context.Context) (float64, error) {
	pipeline := bson.A{
		bson.M{"$group": bson.M{"_id": nil, "value": bson.M{"$avg": "$confidence"}}},
	}

	cur, err := s.mdb.Collection(colEvents).Aggregate(ctx, pipeline)
	if err != nil {
		return 0, fmt.Errorf("convene/mongo: average confidence: %w", err)
	}

	var rows []struct {
		Value float64 `bson:"value"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return 0, fmt.Errorf("convene/mongo: average confidence: %w", err)
	}

	if len(rows) == 0 {
		return 0, nil
	}

	return rows[0].Value, nil
}
