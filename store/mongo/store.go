package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/convene"
	"github.com/xraph/convene/store"
)

// Collection name constants.
const (
	colSources   = "convene_sources"
	colEvents    = "convene_events"
	colLocations = "convene_locations"
	colLinks     = "convene_duplicate_links"
	colJobs      = "convene_sync_jobs"
	colRecords   = "convene_webhook_records"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all convene collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}

		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("%w: mongo: %s indexes: %w", convene.ErrMigrationFailed, col, err)
		}
	}

	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all convene collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colSources: {
			{Keys: bson.D{{Key: "provider", Value: 1}, {Key: "active", Value: 1}}},
			{Keys: bson.D{{Key: "name", Value: 1}}},
		},
		colEvents: {
			{
				Keys:    bson.D{{Key: "source_id", Value: 1}, {Key: "external_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "start_date", Value: 1}}},
			{Keys: bson.D{{Key: "latitude", Value: 1}, {Key: "longitude", Value: 1}}},
		},
		colLocations: {
			{Keys: bson.D{{Key: "name_key", Value: 1}, {Key: "address_key", Value: 1}}},
			{Keys: bson.D{{Key: "name_key", Value: 1}, {Key: "city_key", Value: 1}}},
			{Keys: bson.D{{Key: "geo", Value: "2dsphere"}}},
		},
		colLinks: {
			{
				Keys:    bson.D{{Key: "pair_key", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "event_id", Value: 1}}},
			{Keys: bson.D{{Key: "duplicate_of_id", Value: 1}}},
		},
		colJobs: {
			{Keys: bson.D{{Key: "source_id", Value: 1}, {Key: "started_at", Value: -1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "started_at", Value: 1}}},
		},
		colRecords: {
			{Keys: bson.D{{Key: "source_id", Value: 1}}},
			{Keys: bson.D{{Key: "created_at", Value: 1}}},
		},
	}
}
