package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/xraph/convene"
	"github.com/xraph/convene/id"
	"github.com/xraph/convene/webhook"
)

// CreateRecord persists a new webhook record.
func (s *Store) CreateRecord(ctx context.Context, rec *webhook.Record) error {
	_, err := s.mdb.NewInsert(toRecordModel(rec)).Exec(ctx)
	if err != nil {
		return fmt.Errorf("convene/mongo: create record: %w", err)
	}

	return nil
}

// GetRecord returns a webhook record by ID.
func (s *Store) GetRecord(ctx context.Context, recID id.ID) (*webhook.Record, error) {
	var m recordModel

	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": recID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, convene.ErrWebhookRecordNotFound
		}

		return nil, fmt.Errorf("convene/mongo: get record: %w", err)
	}

	return fromRecordModel(&m)
}

// UpdateRecord stores the processing outcome; the payload is never rewritten.
func (s *Store) UpdateRecord(ctx context.Context, rec *webhook.Record) error {
	res, err := s.mdb.NewUpdate((*recordModel)(nil)).
		Filter(bson.M{"_id": rec.ID.String()}).
		Set("processed", rec.Processed).
		Set("processed_at", rec.ProcessedAt).
		Set("error", rec.Error).
		Set("updated_at", rec.UpdatedAt).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("convene/mongo: update record: %w", err)
	}

	if res.MatchedCount() == 0 {
		return convene.ErrWebhookRecordNotFound
	}

	return nil
}

// WebhookStats returns delivery counts per source.
func (s *Store) WebhookStats(ctx context.Context) ([]webhook.Stats, error) {
	unprocessed := bson.M{"$eq": bson.A{"$processed", false}}
	noError := bson.M{"$eq": bson.A{"$error", ""}}

	pipeline := bson.A{
		bson.M{"$group": bson.M{
			"_id":   "$source_id",
			"total": bson.M{"$sum": 1},
			"processed": bson.M{"$sum": bson.M{
				"$cond": bson.A{"$processed", 1, 0},
			}},
			"pending": bson.M{"$sum": bson.M{
				"$cond": bson.A{bson.M{"$and": bson.A{unprocessed, noError}}, 1, 0},
			}},
			"errors": bson.M{"$sum": bson.M{
				"$cond": bson.A{bson.M{"$and": bson.A{unprocessed, bson.M{"$not": noError}}}, 1, 0},
			}},
		}},
		bson.M{"$sort": bson.M{"_id": 1}},
	}

	cur, err := s.mdb.Collection(colRecords).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("convene/mongo: webhook stats: %w", err)
	}

	var rows []struct {
		SourceID  string `bson:"_id"`
		Total     int64  `bson:"total"`
		Processed int64  `bson:"processed"`
		Pending   int64  `bson:"pending"`
		Errors    int64  `bson:"errors"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("convene/mongo: webhook stats: %w", err)
	}

	result := make([]webhook.Stats, 0, len(rows))

	for _, r := range rows {
		srcID, err := id.ParseSourceID(r.SourceID)
		if err != nil {
			return nil, fmt.Errorf("parse source ID %q: %w", r.SourceID, err)
		}

		result = append(result, webhook.Stats{
			SourceID:  srcID,
			Total:     r.Total,
			Processed: r.Processed,
			Pending:   r.Pending,
			Errors:    r.Errors,
		})
	}

	return result, nil
}

// CountUnprocessed returns the number of records not yet processed.
func (s *Store) CountUnprocessed(ctx context.Context) (int64, error) {
	count, err := s.mdb.NewFind((*recordModel)(nil)).
		Filter(bson.M{"processed": false}).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("convene/mongo: count unprocessed: %w", err)
	}

	return count, nil
}

// PurgeRecords deletes records created before the cutoff.
func (s *Store) PurgeRecords(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.mdb.NewDelete((*recordModel)(nil)).
		Many().
		Filter(bson.M{"created_at": bson.M{"$lt": before}}).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("convene/mongo: purge records: %w", err)
	}

	return res.DeletedCount(), nil
}
