package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/xraph/convene"
	"github.com/xraph/convene/duplicate"
	"github.com/xraph/convene/id"
)

// CreateLinks inserts links one at a time. The unique pair_key index rejects
// pairs already linked in either direction; those are skipped.
func (s *Store) CreateLinks(ctx context.Context, links []*duplicate.Link) (int, error) {
	inserted := 0

	for _, l := range links {
		_, err := s.mdb.NewInsert(toLinkModel(l)).Exec(ctx)
		if err != nil {
			if mongod.IsDuplicateKeyError(err) {
				continue
			}

			return inserted, fmt.Errorf("convene/mongo: create link: %w", err)
		}

		inserted++
	}

	return inserted, nil
}

// GetLink returns a link by ID.
func (s *Store) GetLink(ctx context.Context, linkID id.ID) (*duplicate.Link, error) {
	var m linkModel

	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": linkID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, convene.ErrLinkNotFound
		}

		return nil, fmt.Errorf("convene/mongo: get link: %w", err)
	}

	return fromLinkModel(&m)
}

// ListLinks returns links, newest first.
func (s *Store) ListLinks(ctx context.Context, opts duplicate.ListOpts) ([]*duplicate.Link, error) {
	var models []linkModel

	filter := bson.M{}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}

	if !opts.EventID.IsNil() {
		evtID := opts.EventID.String()
		filter["$or"] = bson.A{
			bson.M{"event_id": evtID},
			bson.M{"duplicate_of_id": evtID},
		}
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}

	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("convene/mongo: list links: %w", err)
	}

	result := make([]*duplicate.Link, 0, len(models))

	for i := range models {
		l, err := fromLinkModel(&models[i])
		if err != nil {
			return nil, err
		}

		result = append(result, l)
	}

	return result, nil
}

// SetLinkStatus moves a link to status at the given time.
func (s *Store) SetLinkStatus(ctx context.Context, linkID id.ID, status duplicate.Status, at time.Time) error {
	at = at.UTC()

	var resolvedAt *time.Time
	if status.Terminal() {
		resolvedAt = &at
	}

	res, err := s.mdb.NewUpdate((*linkModel)(nil)).
		Filter(bson.M{"_id": linkID.String()}).
		Set("status", string(status)).
		Set("resolved_at", resolvedAt).
		Set("updated_at", at).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("convene/mongo: set link status: %w", err)
	}

	if res.MatchedCount() == 0 {
		return convene.ErrLinkNotFound
	}

	return nil
}

// CountLinks counts links in status; an empty status counts all.
func (s *Store) CountLinks(ctx context.Context, status duplicate.Status) (int64, error) {
	filter := bson.M{}
	if status != "" {
		filter["status"] = string(status)
	}

	count, err := s.mdb.NewFind((*linkModel)(nil)).
		Filter(filter).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("convene/mongo: count links: %w", err)
	}

	return count, nil
}

// PurgeResolvedLinks deletes adjudicated links created before the cutoff.
func (s *Store) PurgeResolvedLinks(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.mdb.NewDelete((*linkModel)(nil)).
		Many().
		Filter(bson.M{
			"status": bson.M{"$in": bson.A{
				string(duplicate.StatusConfirmed),
				string(duplicate.StatusRejected),
			}},
			"created_at": bson.M{"$lt": before},
		}).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("convene/mongo: purge links: %w", err)
	}

	return res.DeletedCount(), nil
}
