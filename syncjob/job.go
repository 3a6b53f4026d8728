// Package syncjob records the bookkeeping of aggregation runs.
package syncjob

import (
	"context"
	"errors"
	"time"

	"github.com/xraph/convene/id"
	"github.com/xraph/convene/internal/entity"
)

// ErrNotFound is returned when a job does not exist.
var ErrNotFound = errors.New("convene: sync job not found")

// Type distinguishes per-source runs from full sweeps.
type Type string

// Job types.
const (
	TypeIncremental Type = "incremental"
	TypeFull        Type = "full"
)

// Status is the lifecycle state of a job.
type Status string

// Job statuses. A job starts running and ends completed or failed.
const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether s is a final status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job is one aggregation run. SourceID is Nil for full sweeps.
type Job struct {
	entity.Entity

	ID          id.ID          `json:"id" bson:"_id"`
	SourceID    id.ID          `json:"source_id,omitempty" bson:"source_id,omitempty"`
	Type        Type           `json:"type" bson:"type"`
	Status      Status         `json:"status" bson:"status"`
	StartedAt   time.Time      `json:"started_at" bson:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty" bson:"completed_at,omitempty"`
	Processed   int            `json:"processed" bson:"processed"`
	Created     int            `json:"created" bson:"created"`
	Updated     int            `json:"updated" bson:"updated"`
	Failed      int            `json:"failed" bson:"failed"`
	Error       string         `json:"error,omitempty" bson:"error,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty" bson:"metadata,omitempty"`
}

// Finish moves the job to a terminal status at t. A non-nil err marks it
// failed.
func (j *Job) Finish(t time.Time, err error) {
	t = t.UTC()
	j.CompletedAt = &t
	j.UpdatedAt = t
	if err != nil {
		j.Status = StatusFailed
		j.Error = err.Error()
		return
	}
	j.Status = StatusCompleted
}

// SetMeta records a metadata value.
func (j *Job) SetMeta(key string, v any) {
	if j.Metadata == nil {
		j.Metadata = make(map[string]any)
	}
	j.Metadata[key] = v
}

// ListOpts filters job listings.
type ListOpts struct {
	SourceID id.ID
	Status   Status
	Offset   int
	Limit    int
}

// Store defines the persistence contract for sync jobs.
type Store interface {
	// CreateJob persists a new job.
	CreateJob(ctx context.Context, job *Job) error

	// UpdateJob replaces a job's mutable fields.
	UpdateJob(ctx context.Context, job *Job) error

	// GetJob returns a job by ID.
	GetJob(ctx context.Context, jobID id.ID) (*Job, error)

	// ListJobs returns jobs, most recently started first.
	ListJobs(ctx context.Context, opts ListOpts) ([]*Job, error)

	// CountJobs returns the number of jobs with status.
	CountJobs(ctx context.Context, status Status) (int64, error)

	// ListStaleJobs returns running jobs started before the cutoff.
	ListStaleJobs(ctx context.Context, startedBefore time.Time) ([]*Job, error)

	// PurgeJobs deletes completed or failed jobs started before the cutoff.
	PurgeJobs(ctx context.Context, before time.Time) (int64, error)
}
