package source

import (
	"context"

	"github.com/xraph/convene/id"
)

// Store defines the persistence contract for event sources.
type Store interface {
	// CreateSource persists a new source.
	CreateSource(ctx context.Context, src *EventSource) error

	// GetSource returns a source by ID.
	GetSource(ctx context.Context, srcID id.ID) (*EventSource, error)

	// UpdateSource replaces the mutable fields of a source.
	UpdateSource(ctx context.Context, src *EventSource) error

	// ListSources returns sources ordered by name.
	ListSources(ctx context.Context, opts ListOpts) ([]*EventSource, error)

	// UpdateSyncState records the outcome of a sync on the source.
	UpdateSyncState(ctx context.Context, srcID id.ID, state SyncState) error
}
