package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/xraph/convene"
	"github.com/xraph/convene/id"
	"github.com/xraph/convene/syncjob"
)

// CreateJob persists a new job.
func (s *Store) CreateJob(ctx context.Context, job *syncjob.Job) error {
	_, err := s.mdb.NewInsert(toJobModel(job)).Exec(ctx)
	if err != nil {
		return fmt.Errorf("convene/mongo: create job: %w", err)
	}

	return nil
}

// UpdateJob replaces a job.
func (s *Store) UpdateJob(ctx context.Context, job *syncjob.Job) error {
	m := toJobModel(job)
	m.UpdatedAt = now()

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("convene/mongo: update job: %w", err)
	}

	if res.MatchedCount() == 0 {
		return convene.ErrJobNotFound
	}

	return nil
}

// GetJob returns a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.ID) (*syncjob.Job, error) {
	var m jobModel

	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": jobID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, convene.ErrJobNotFound
		}

		return nil, fmt.Errorf("convene/mongo: get job: %w", err)
	}

	return fromJobModel(&m)
}

// ListJobs returns jobs, most recently started first.
func (s *Store) ListJobs(ctx context.Context, opts syncjob.ListOpts) ([]*syncjob.Job, error) {
	var models []jobModel

	filter := bson.M{}
	if !opts.SourceID.IsNil() {
		filter["source_id"] = opts.SourceID.String()
	}

	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "started_at", Value: -1}, {Key: "_id", Value: -1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}

	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("convene/mongo: list jobs: %w", err)
	}

	return fromJobModels(models)
}

// CountJobs counts jobs in status; an empty status counts all.
func (s *Store) CountJobs(ctx context.Context, status syncjob.Status) (int64, error) {
	filter := bson.M{}
	if status != "" {
		filter["status"] = string(status)
	}

	count, err := s.mdb.NewFind((*jobModel)(nil)).
		Filter(filter).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("convene/mongo: count jobs: %w", err)
	}

	return count, nil
}

// ListStaleJobs returns running jobs started before the cutoff.
func (s *Store) ListStaleJobs(ctx context.Context, startedBefore time.Time) ([]*syncjob.Job, error) {
	var models []jobModel

	err := s.mdb.NewFind(&models).
		Filter(bson.M{
			"status":     string(syncjob.StatusRunning),
			"started_at": bson.M{"$lt": startedBefore},
		}).
		Sort(bson.D{{Key: "started_at", Value: -1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("convene/mongo: list stale jobs: %w", err)
	}

	return fromJobModels(models)
}

// PurgeJobs deletes finished jobs started before the cutoff.
func (s *Store) PurgeJobs(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.mdb.NewDelete((*jobModel)(nil)).
		Many().
		Filter(bson.M{
			"status": bson.M{"$in": bson.A{
				string(syncjob.StatusCompleted),
				string(syncjob.StatusFailed),
			}},
			"started_at": bson.M{"$lt": before},
		}).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("convene/mongo: purge jobs: %w", err)
	}

	return res.DeletedCount(), nil
}

func fromJobModels(models []jobModel) ([]*syncjob.Job, error) {
	result := make([]*syncjob.Job, 0, len(models))

	for i := range models {
		job, err := fromJobModel(&models[i])
		if err != nil {
			return nil, err
		}

		result = append(result, job)
	}

	return result, nil
}
