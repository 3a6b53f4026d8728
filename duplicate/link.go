// Package duplicate flags stored events that likely describe the same
// real-world occurrence.
package duplicate

import (
	"context"
	"errors"
	"time"

	"github.com/xraph/convene/id"
	"github.com/xraph/convene/internal/entity"
)

// ErrNotFound is returned when a link does not exist.
var ErrNotFound = errors.New("convene: duplicate link not found")

// Status is the adjudication state of a link.
type Status string

// Link statuses. Confirmed and rejected are set by an operator.
const (
	StatusDetected  Status = "detected"
	StatusConfirmed Status = "confirmed"
	StatusRejected  Status = "rejected"
)

// Terminal reports whether s is an adjudicated status.
func (s Status) Terminal() bool {
	return s == StatusConfirmed || s == StatusRejected
}

// MethodWeighted tags links produced by the weighted similarity score.
const MethodWeighted = "weighted_similarity"

// Breakdown holds the per-field sub-scores, each in [0,1]. NoDescription
// is set when either event lacks a description; Description is then 0 and
// left out of the score.
type Breakdown struct {
	Title         float64 `json:"title" bson:"title"`
	Description   float64 `json:"description" bson:"description"`
	Location      float64 `json:"location" bson:"location"`
	Time          float64 `json:"time" bson:"time"`
	NoDescription bool    `json:"no_description,omitempty" bson:"no_description,omitempty"`
}

// Link asserts that EventID may duplicate DuplicateOfID.
type Link struct {
	entity.Entity

	ID            id.ID      `json:"id" bson:"_id"`
	EventID       id.ID      `json:"event_id" bson:"event_id"`
	DuplicateOfID id.ID      `json:"duplicate_of_id" bson:"duplicate_of_id"`
	Score         float64    `json:"score" bson:"score"`
	Breakdown     Breakdown  `json:"breakdown" bson:"breakdown"`
	Method        string     `json:"method" bson:"method"`
	Status        Status     `json:"status" bson:"status"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty" bson:"resolved_at,omitempty"`
}

// SamePair reports whether l links a and b in either direction.
func (l *Link) SamePair(a, b id.ID) bool {
	return (l.EventID == a && l.DuplicateOfID == b) || (l.EventID == b && l.DuplicateOfID == a)
}

// ListOpts filters link listings.
type ListOpts struct {
	Status  Status
	EventID id.ID
	Offset  int
	Limit   int
}

// Store defines the persistence contract for duplicate links.
type Store interface {
	// CreateLinks persists links, skipping pairs already linked in either
	// direction. It returns the number of links inserted.
	CreateLinks(ctx context.Context, links []*Link) (int, error)

	// GetLink returns a link by ID.
	GetLink(ctx context.Context, linkID id.ID) (*Link, error)

	// ListLinks returns links, newest first.
	ListLinks(ctx context.Context, opts ListOpts) ([]*Link, error)

	// SetLinkStatus records an adjudication.
	SetLinkStatus(ctx context.Context, linkID id.ID, status Status, at time.Time) error

	// CountLinks returns the number of links with status.
	CountLinks(ctx context.Context, status Status) (int64, error)

	// PurgeResolvedLinks deletes confirmed or rejected links created
	// before the cutoff.
	PurgeResolvedLinks(ctx context.Context, before time.Time) (int64, error)
}
