package convene

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/convene/id"
	"github.com/xraph/convene/internal/entity"
	"github.com/xraph/convene/normalize"
	"github.com/xraph/convene/source"
	"github.com/xraph/convene/syncjob"
)

const fullSyncLockKey = "convene:sync:full"

func sourceLockKey(srcID id.ID) string {
	return "convene:sync:" + srcID.String()
}

// SyncSource pulls one source and runs every fetched payload through the
// pipeline.
//
// The critical path:
//  1. Load the source. Inactive sources are a no-op.
//  2. Take the per-source guard. A sync already in flight means skip.
//  3. Create the job, then check the source's hourly rate limit. A limited
//     run completes with nothing processed and is marked deferred.
//  4. Fetch through the provider's connector.
//  5. Process payloads one at a time. Data errors skip the payload.
//  6. Finalize the job and the source's sync state.
//
// A nil job with a nil error means the sync was skipped. A returned job is
// always terminal; when the sync failed, the error is returned with it.
func (a *Aggregator) SyncSource(ctx context.Context, srcID id.ID) (*syncjob.Job, error) {
	src, err := a.store.GetSource(ctx, srcID)
	if err != nil {
		return nil, err
	}
	if !src.Active {
		a.logger.DebugContext(ctx, "sync skipped: source inactive", "source_id", src.ID)
		return nil, nil
	}
	if !src.Pullable() {
		return nil, fmt.Errorf("%w: %s is a %s source", ErrNotPullable, src.ID, src.Kind)
	}

	release, ok, err := a.locker.TryLock(ctx, sourceLockKey(src.ID))
	if err != nil {
		return nil, fmt.Errorf("convene: acquire sync guard: %w", err)
	}
	if !ok {
		a.logger.InfoContext(ctx, "sync skipped: already running", "source_id", src.ID)
		return nil, nil
	}
	defer release()

	return a.syncSource(ctx, src)
}

func (a *Aggregator) syncSource(ctx context.Context, src *source.EventSource) (*syncjob.Job, error) {
	start := a.now().UTC()
	job := &syncjob.Job{
		Entity:    entity.At(start),
		ID:        id.NewJobID(),
		SourceID:  src.ID,
		Type:      syncjob.TypeIncremental,
		Status:    syncjob.StatusRunning,
		StartedAt: start,
	}
	if err := a.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("convene: create sync job: %w", err)
	}

	a.inflight.Add(1)
	defer a.inflight.Add(-1)
	a.metrics.SyncStarted()

	ctx, span := a.tracer.StartSyncSpan(ctx, job.ID.String(), src.ID.String(), string(job.Type))

	if !a.limiter.Allow(src.ID.String(), src.RateLimitPerHour) {
		job.SetMeta("deferred", true)
		a.finishJob(ctx, job, nil, span, "deferred")
		a.logger.InfoContext(ctx, "sync deferred by rate limit",
			"source_id", src.ID,
			"job_id", job.ID,
			"rate_limit_per_hour", src.RateLimitPerHour,
		)
		return job, nil
	}

	syncCtx, cancel := context.WithTimeout(ctx, a.config.SyncTimeout)
	syncErr := a.pull(syncCtx, src, job)
	cancel()

	status := string(syncjob.StatusCompleted)
	if syncErr != nil {
		status = string(syncjob.StatusFailed)
		a.logger.ErrorContext(ctx, "sync failed",
			"source_id", src.ID,
			"provider", src.Provider,
			"job_id", job.ID,
			"processed", job.Processed,
			"error", syncErr,
		)
	}
	a.finishJob(ctx, job, syncErr, span, status)
	a.updateSyncState(ctx, src, syncErr)

	if syncErr != nil {
		return job, fmt.Errorf("convene: sync %s: %w", src.ID, syncErr)
	}
	a.logger.InfoContext(ctx, "sync completed",
		"source_id", src.ID,
		"job_id", job.ID,
		"processed", job.Processed,
		"created", job.Created,
		"updated", job.Updated,
		"failed", job.Failed,
	)
	return job, nil
}

// pull fetches the source and processes each payload. Only fetch, timeout
// and store failures are returned; data errors are counted on the job.
func (a *Aggregator) pull(ctx context.Context, src *source.EventSource, job *syncjob.Job) error {
	conn, ok := a.registry.Get(src.Provider)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownProvider, src.Provider)
	}
	credential, err := a.cipher.Credential(src)
	if err != nil {
		return fmt.Errorf("convene: decrypt credential: %w", err)
	}

	payloads, err := conn.Fetch(ctx, src, credential)
	if err != nil {
		return err
	}
	job.SetMeta("fetched", len(payloads))

	unchanged := 0
	for _, raw := range payloads {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("convene: sync interrupted: %w", err)
		}
		out, err := a.pipeline.Process(ctx, src, raw)
		if err != nil {
			if normalize.IsPermanent(err) {
				job.Failed++
				a.logger.WarnContext(ctx, "payload skipped",
					"source_id", src.ID,
					"job_id", job.ID,
					"error", err,
				)
				continue
			}
			return err
		}
		job.Processed++
		switch {
		case out.Created:
			job.Created++
		case out.Unchanged:
			unchanged++
		default:
			job.Updated++
		}
	}
	if unchanged > 0 {
		job.SetMeta("unchanged", unchanged)
	}
	return nil
}

// finishJob writes the terminal job state. The write survives ctx
// cancellation; when it fails, the job stays running until the cleanup
// pass reaps it.
func (a *Aggregator) finishJob(ctx context.Context, job *syncjob.Job, err error, span trace.Span, status string) {
	job.Finish(a.now(), err)
	if uerr := a.store.UpdateJob(context.WithoutCancel(ctx), job); uerr != nil {
		a.logger.ErrorContext(ctx, "failed to finalize sync job",
			"job_id", job.ID,
			"source_id", job.SourceID,
			"error", uerr,
		)
	}
	a.tracer.EndSyncSpan(span, job.Processed, job.Failed, err)
	a.metrics.RecordSync(status, job.CompletedAt.Sub(job.StartedAt).Seconds())
}

func (a *Aggregator) updateSyncState(ctx context.Context, src *source.EventSource, syncErr error) {
	now := a.now().UTC()
	state := source.SyncState{Status: source.StatusActive, LastSyncAt: &now}
	if syncErr != nil {
		state.Status = source.StatusError
		state.ErrorCount = src.ErrorCount + 1
	}
	if err := a.store.UpdateSyncState(context.WithoutCancel(ctx), src.ID, state); err != nil {
		a.logger.ErrorContext(ctx, "failed to update source sync state",
			"source_id", src.ID,
			"error", err,
		)
	}
}

// RunFullSync syncs every active pullable source under one umbrella job of
// type full. A failing source is logged and counted; the sweep continues.
// A nil job means another sweep is in flight.
func (a *Aggregator) RunFullSync(ctx context.Context) (*syncjob.Job, error) {
	release, ok, err := a.locker.TryLock(ctx, fullSyncLockKey)
	if err != nil {
		return nil, fmt.Errorf("convene: acquire sync guard: %w", err)
	}
	if !ok {
		a.logger.InfoContext(ctx, "full sync skipped: already running")
		return nil, nil
	}
	defer release()

	start := a.now().UTC()
	job := &syncjob.Job{
		Entity:    entity.At(start),
		ID:        id.NewJobID(),
		Type:      syncjob.TypeFull,
		Status:    syncjob.StatusRunning,
		StartedAt: start,
	}
	if err := a.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("convene: create sync job: %w", err)
	}
	a.inflight.Add(1)
	defer a.inflight.Add(-1)
	a.metrics.SyncStarted()
	ctx, span := a.tracer.StartSyncSpan(ctx, job.ID.String(), "", string(job.Type))

	srcs, err := a.store.ListSources(ctx, source.ListOpts{ActiveOnly: true})
	if err != nil {
		err = fmt.Errorf("convene: list sources: %w", err)
		a.finishJob(ctx, job, err, span, string(syncjob.StatusFailed))
		return job, err
	}

	var synced, skipped int
	var failed []string
	for _, src := range srcs {
		if !src.Pullable() {
			continue
		}
		if err := ctx.Err(); err != nil {
			a.finishJob(ctx, job, err, span, string(syncjob.StatusFailed))
			return job, err
		}
		sj, err := a.SyncSource(ctx, src.ID)
		if sj != nil {
			job.Processed += sj.Processed
			job.Created += sj.Created
			job.Updated += sj.Updated
			job.Failed += sj.Failed
		}
		switch {
		case err != nil:
			failed = append(failed, src.ID.String())
		case sj == nil:
			skipped++
		default:
			synced++
		}
	}

	job.SetMeta("sources", synced+skipped+len(failed))
	job.SetMeta("synced", synced)
	job.SetMeta("skipped", skipped)
	if len(failed) > 0 {
		job.SetMeta("failed_sources", failed)
	}
	a.finishJob(ctx, job, nil, span, string(syncjob.StatusCompleted))

	a.logger.InfoContext(ctx, "full sync completed",
		"job_id", job.ID,
		"sources", synced+skipped+len(failed),
		"failed_sources", len(failed),
		"processed", job.Processed,
	)
	return job, nil
}
