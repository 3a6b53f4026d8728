package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/xraph/convene"
	"github.com/xraph/convene/id"
	"github.com/xraph/convene/source"
)

// CreateSource persists a new source.
func (s *Store) CreateSource(ctx context.Context, src *source.EventSource) error {
	m := toSourceModel(src)

	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		return fmt.Errorf("convene/mongo: create source: %w", err)
	}

	return nil
}

// GetSource returns a source by ID.
func (s *Store) GetSource(ctx context.Context, srcID id.ID) (*source.EventSource, error) {
	var m sourceModel

	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": srcID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, convene.ErrSourceNotFound
		}

		return nil, fmt.Errorf("convene/mongo: get source: %w", err)
	}

	return fromSourceModel(&m)
}

// UpdateSource replaces a source, keeping its creation time.
func (s *Store) UpdateSource(ctx context.Context, src *source.EventSource) error {
	existing, err := s.GetSource(ctx, src.ID)
	if err != nil {
		return err
	}

	m := toSourceModel(src)
	m.CreatedAt = existing.CreatedAt
	m.UpdatedAt = now()

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("convene/mongo: update source: %w", err)
	}

	if res.MatchedCount() == 0 {
		return convene.ErrSourceNotFound
	}

	return nil
}

// ListSources returns sources ordered by name.
func (s *Store) ListSources(ctx context.Context, opts source.ListOpts) ([]*source.EventSource, error) {
	var models []sourceModel

	filter := bson.M{}
	if opts.ActiveOnly {
		filter["active"] = true
	}

	if opts.Kind != "" {
		filter["kind"] = string(opts.Kind)
	}

	if opts.Provider != "" {
		filter["provider"] = string(opts.Provider)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "name", Value: 1}, {Key: "_id", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}

	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("convene/mongo: list sources: %w", err)
	}

	result := make([]*source.EventSource, 0, len(models))

	for i := range models {
		src, err := fromSourceModel(&models[i])
		if err != nil {
			return nil, err
		}

		result = append(result, src)
	}

	return result, nil
}

// UpdateSyncState records the outcome of a sync on the source.
func (s *Store) UpdateSyncState(ctx context.Context, srcID id.ID, state source.SyncState) error {
	q := s.mdb.NewUpdate((*sourceModel)(nil)).
		Filter(bson.M{"_id": srcID.String()}).
		Set("status", string(state.Status)).
		Set("error_count", state.ErrorCount).
		Set("updated_at", now())

	if state.LastSyncAt != nil {
		q = q.Set("last_sync_at", state.LastSyncAt.UTC())
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return fmt.Errorf("convene/mongo: update sync state: %w", err)
	}

	if res.MatchedCount() == 0 {
		return convene.ErrSourceNotFound
	}

	return nil
}
