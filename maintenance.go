package convene

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/convene/duplicate"
	"github.com/xraph/convene/source"
	"github.com/xraph/convene/syncjob"
)

var errStaleJob = errors.New("convene: sync job exceeded the stale timeout")

// Status is a point-in-time summary of the aggregator.
type Status struct {
	Running             bool    `json:"running"`
	InFlightSyncs       int64   `json:"in_flight_syncs"`
	TotalEvents         int64   `json:"total_events"`
	ActiveSources       int     `json:"active_sources"`
	PendingDuplicates   int64   `json:"pending_duplicates"`
	UnprocessedWebhooks int64   `json:"unprocessed_webhooks"`
	AverageConfidence   float64 `json:"average_confidence"`
	ActiveJobs          int64   `json:"active_jobs"`
}

// Status reports the running flag and aggregate counts. Running is set
// while the scheduler is started or a sync is in flight in this process.
func (a *Aggregator) Status(ctx context.Context) (*Status, error) {
	total, err := a.store.CountEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("convene: count events: %w", err)
	}
	srcs, err := a.store.ListSources(ctx, source.ListOpts{ActiveOnly: true})
	if err != nil {
		return nil, fmt.Errorf("convene: list sources: %w", err)
	}
	pending, err := a.store.CountLinks(ctx, duplicate.StatusDetected)
	if err != nil {
		return nil, fmt.Errorf("convene: count duplicate links: %w", err)
	}
	unprocessed, err := a.store.CountUnprocessed(ctx)
	if err != nil {
		return nil, fmt.Errorf("convene: count webhook records: %w", err)
	}
	avg, err := a.store.AverageConfidence(ctx)
	if err != nil {
		return nil, fmt.Errorf("convene: average confidence: %w", err)
	}
	active, err := a.store.CountJobs(ctx, syncjob.StatusRunning)
	if err != nil {
		return nil, fmt.Errorf("convene: count jobs: %w", err)
	}

	a.mu.Lock()
	scheduled := a.scheduler != nil && a.scheduler.Running()
	a.mu.Unlock()
	inflight := a.inflight.Load()

	return &Status{
		Running:             scheduled || inflight > 0,
		InFlightSyncs:       inflight,
		TotalEvents:         total,
		ActiveSources:       len(srcs),
		PendingDuplicates:   pending,
		UnprocessedWebhooks: unprocessed,
		AverageConfidence:   avg,
		ActiveJobs:          active,
	}, nil
}

// CleanupReport counts what one cleanup pass removed or reaped.
type CleanupReport struct {
	StaleJobs      int   `json:"stale_jobs"`
	WebhookRecords int64 `json:"webhook_records"`
	Links          int64 `json:"links"`
	Jobs           int64 `json:"jobs"`
}

// Cleanup fails jobs stuck in running past StaleJobTimeout, then purges
// webhook records, resolved duplicate links and terminal jobs past their
// retention. Each step runs even if an earlier one failed; failures are
// joined into the returned error.
func (a *Aggregator) Cleanup(ctx context.Context) (*CleanupReport, error) {
	now := a.now().UTC()
	report := &CleanupReport{}
	var errs []error

	if a.config.StaleJobTimeout > 0 {
		stale, err := a.store.ListStaleJobs(ctx, now.Add(-a.config.StaleJobTimeout))
		if err != nil {
			errs = append(errs, fmt.Errorf("convene: list stale jobs: %w", err))
		}
		for _, job := range stale {
			job.Finish(now, errStaleJob)
			if err := a.store.UpdateJob(ctx, job); err != nil {
				errs = append(errs, fmt.Errorf("convene: fail stale job %s: %w", job.ID, err))
				continue
			}
			report.StaleJobs++
			a.logger.WarnContext(ctx, "stale sync job marked failed",
				"job_id", job.ID,
				"source_id", job.SourceID,
				"started_at", job.StartedAt,
			)
		}
		a.metrics.RecordCleanup("stale_jobs", int64(report.StaleJobs))
	}

	purges := []struct {
		kind      string
		retention time.Duration
		dest      *int64
		purge     func() (int64, error)
	}{
		{"webhook_records", a.config.WebhookRetention, &report.WebhookRecords, func() (int64, error) {
			return a.store.PurgeRecords(ctx, now.Add(-a.config.WebhookRetention))
		}},
		{"links", a.config.LinkRetention, &report.Links, func() (int64, error) {
			return a.store.PurgeResolvedLinks(ctx, now.Add(-a.config.LinkRetention))
		}},
		{"jobs", a.config.JobRetention, &report.Jobs, func() (int64, error) {
			return a.store.PurgeJobs(ctx, now.Add(-a.config.JobRetention))
		}},
	}
	for _, p := range purges {
		if p.retention <= 0 {
			continue
		}
		n, err := p.purge()
		if err != nil {
			errs = append(errs, fmt.Errorf("convene: purge %s: %w", p.kind, err))
			continue
		}
		*p.dest = n
		a.metrics.RecordCleanup(p.kind, n)
	}

	a.logger.InfoContext(ctx, "cleanup completed",
		"stale_jobs", report.StaleJobs,
		"webhook_records", report.WebhookRecords,
		"links", report.Links,
		"jobs", report.Jobs,
	)
	return report, errors.Join(errs...)
}
