package event

import (
	"context"

	"github.com/xraph/convene/id"
)

// Store defines the persistence contract for events.
type Store interface {
	// UpsertEvent inserts evt or, when (SourceID, ExternalID) already exists,
	// updates the stored row's mutable fields. The stored ID and CreatedAt
	// are kept and copied back onto evt. It reports whether a row was created.
	UpsertEvent(ctx context.Context, evt *Event) (created bool, err error)

	// GetEvent returns an event by ID.
	GetEvent(ctx context.Context, evtID id.ID) (*Event, error)

	// GetEventByExternalID returns the event a source knows as externalID.
	GetEventByExternalID(ctx context.Context, srcID id.ID, externalID string) (*Event, error)

	// FindCandidates returns events matching q, earliest first.
	FindCandidates(ctx context.Context, q CandidateQuery) ([]*Event, error)

	// ListEvents returns events ordered by start date, newest first.
	ListEvents(ctx context.Context, opts ListOpts) ([]*Event, error)

	// CountEvents returns the number of stored events.
	CountEvents(ctx context.Context) (int64, error)

	// AverageConfidence returns the mean confidence over all events, or 0.
	AverageConfidence(ctx context.Context) (float64, error)
}
