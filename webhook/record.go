// Package webhook receives pushed event deliveries, verifies them and
// hands them to the processing pipeline.
package webhook

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"

	"github.com/xraph/convene/id"
	"github.com/xraph/convene/internal/entity"
)

// Errors returned by the webhook service and stores.
var (
	ErrNotFound      = errors.New("convene: webhook record not found")
	ErrUnknownSource = errors.New("convene: unknown webhook source")
)

// Record is the durable log of one verified delivery. Only the outcome
// fields change after creation.
type Record struct {
	entity.Entity

	ID          id.ID           `json:"id" bson:"_id"`
	SourceID    id.ID           `json:"source_id" bson:"source_id"`
	EventType   string          `json:"event_type" bson:"event_type"`
	Payload     json.RawMessage `json:"payload" bson:"payload"`
	Signature   string          `json:"signature,omitempty" bson:"signature"`
	Processed   bool            `json:"processed" bson:"processed"`
	ProcessedAt *time.Time      `json:"processed_at,omitempty" bson:"processed_at,omitempty"`
	Error       string          `json:"error,omitempty" bson:"error,omitempty"`
}

// Stats are per-source delivery counts.
type Stats struct {
	SourceID  id.ID `json:"source_id"`
	Total     int64 `json:"total"`
	Processed int64 `json:"processed"`
	Pending   int64 `json:"pending"`
	Errors    int64 `json:"errors"`
}

// Tally adds r to the counts.
func (s *Stats) Tally(r *Record) {
	s.Total++
	switch {
	case r.Processed:
		s.Processed++
	case r.Error != "":
		s.Errors++
	default:
		s.Pending++
	}
}

// Store defines the persistence contract for webhook records.
type Store interface {
	// CreateRecord persists a new record.
	CreateRecord(ctx context.Context, rec *Record) error

	// GetRecord returns a record by ID.
	GetRecord(ctx context.Context, recID id.ID) (*Record, error)

	// UpdateRecord stores the processing outcome of a record.
	UpdateRecord(ctx context.Context, rec *Record) error

	// WebhookStats returns counts per source.
	WebhookStats(ctx context.Context) ([]Stats, error)

	// CountUnprocessed returns the number of records not yet processed
	// successfully.
	CountUnprocessed(ctx context.Context) (int64, error)

	// PurgeRecords deletes records created before the cutoff.
	PurgeRecords(ctx context.Context, before time.Time) (int64, error)
}
