// Package memory provides an in-memory Store implementation for unit testing
// and single-process deployments.
package memory

import (
	"context"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/xraph/convene"
	"github.com/xraph/convene/duplicate"
	"github.com/xraph/convene/event"
	"github.com/xraph/convene/id"
	"github.com/xraph/convene/location"
	"github.com/xraph/convene/source"
	convenestore "github.com/xraph/convene/store"
	"github.com/xraph/convene/syncjob"
	"github.com/xraph/convene/webhook"
)

// compile-time interface check.
var _ convenestore.Store = (*Store)(nil)

// Store is an in-memory implementation of store.Store. Records are copied
// on the way in and out so callers never share state with the store.
type Store struct {
	mu sync.RWMutex

	sources    map[id.ID]*source.EventSource
	events     map[id.ID]*event.Event
	eventsByEx map[string]id.ID // keyed by source id + external id
	locations  map[id.ID]*location.Location
	links      map[id.ID]*duplicate.Link
	jobs       map[id.ID]*syncjob.Job
	records    map[id.ID]*webhook.Record

	closed bool
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		sources:    make(map[id.ID]*source.EventSource),
		events:     make(map[id.ID]*event.Event),
		eventsByEx: make(map[string]id.ID),
		locations:  make(map[id.ID]*location.Location),
		links:      make(map[id.ID]*duplicate.Link),
		jobs:       make(map[id.ID]*syncjob.Job),
		records:    make(map[id.ID]*webhook.Record),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Migrate is a no-op for the in-memory store.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping reports whether the store is open.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return convene.ErrStoreClosed
	}
	return nil
}

// Close marks the store as closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// ──────────────────────────────────────────────────
// source.Store
// ──────────────────────────────────────────────────

// CreateSource persists a new source.
func (s *Store) CreateSource(_ context.Context, src *source.EventSource) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources[src.ID] = copySource(src)
	return nil
}

// GetSource returns a source by ID.
func (s *Store) GetSource(_ context.Context, srcID id.ID) (*source.EventSource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	src, ok := s.sources[srcID]
	if !ok {
		return nil, convene.ErrSourceNotFound
	}
	return copySource(src), nil
}

// UpdateSource replaces a source.
func (s *Store) UpdateSource(_ context.Context, src *source.EventSource) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.sources[src.ID]
	if !ok {
		return convene.ErrSourceNotFound
	}
	cp := copySource(src)
	cp.CreatedAt = existing.CreatedAt
	s.sources[src.ID] = cp
	return nil
}

// ListSources returns sources ordered by name.
func (s *Store) ListSources(_ context.Context, opts source.ListOpts) ([]*source.EventSource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*source.EventSource
	for _, src := range s.sources {
		if opts.Matches(src) {
			result = append(result, copySource(src))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].ID.String() < result[j].ID.String()
	})
	return applyPagination(result, opts.Offset, opts.Limit), nil
}

// UpdateSyncState records the outcome of a sync on the source.
func (s *Store) UpdateSyncState(_ context.Context, srcID id.ID, state source.SyncState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	src, ok := s.sources[srcID]
	if !ok {
		return convene.ErrSourceNotFound
	}
	src.Status = state.Status
	src.ErrorCount = state.ErrorCount
	if state.LastSyncAt != nil {
		t := *state.LastSyncAt
		src.LastSyncAt = &t
	}
	src.UpdatedAt = time.Now().UTC()
	return nil
}

// ──────────────────────────────────────────────────
// event.Store
// ──────────────────────────────────────────────────

func externalKey(srcID id.ID, externalID string) string {
	return srcID.String() + "\x00" + externalID
}

// UpsertEvent inserts evt or replaces the event with the same source and
// external id, keeping the stored ID and CreatedAt.
func (s *Store) UpsertEvent(_ context.Context, evt *event.Event) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := externalKey(evt.SourceID, evt.ExternalID)
	if existingID, ok := s.eventsByEx[key]; ok {
		existing := s.events[existingID]
		evt.ID = existing.ID
		evt.CreatedAt = existing.CreatedAt
		s.events[evt.ID] = copyEvent(evt)
		return false, nil
	}

	s.events[evt.ID] = copyEvent(evt)
	s.eventsByEx[key] = evt.ID
	return true, nil
}

// GetEvent returns an event by ID.
func (s *Store) GetEvent(_ context.Context, evtID id.ID) (*event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	evt, ok := s.events[evtID]
	if !ok {
		return nil, convene.ErrEventNotFound
	}
	return copyEvent(evt), nil
}

// GetEventByExternalID returns the event a source published under externalID.
func (s *Store) GetEventByExternalID(_ context.Context, srcID id.ID, externalID string) (*event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	evtID, ok := s.eventsByEx[externalKey(srcID, externalID)]
	if !ok {
		return nil, convene.ErrEventNotFound
	}
	return copyEvent(s.events[evtID]), nil
}

// FindCandidates returns events matching q, earliest first.
func (s *Store) FindCandidates(_ context.Context, q event.CandidateQuery) ([]*event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*event.Event
	for _, evt := range s.events {
		if q.Matches(evt) {
			result = append(result, copyEvent(evt))
		}
	}
	sortEventsAsc(result)
	if q.Limit > 0 && len(result) > q.Limit {
		result = result[:q.Limit]
	}
	return result, nil
}

// ListEvents returns events, latest start first.
func (s *Store) ListEvents(_ context.Context, opts event.ListOpts) ([]*event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*event.Event
	for _, evt := range s.events {
		if matchEventOpts(evt, opts) {
			result = append(result, copyEvent(evt))
		}
	}
	sortEventsAsc(result)
	slices.Reverse(result)
	return applyPagination(result, opts.Offset, opts.Limit), nil
}

// CountEvents returns the number of stored events.
func (s *Store) CountEvents(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.events)), nil
}

// AverageConfidence returns the mean confidence, or zero with no events.
func (s *Store) AverageConfidence(_ context.Context) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.events) == 0 {
		return 0, nil
	}
	var sum float64
	for _, evt := range s.events {
		sum += evt.Confidence
	}
	return sum / float64(len(s.events)), nil
}

// ──────────────────────────────────────────────────
// location.Store
// ──────────────────────────────────────────────────

// CreateLocation persists a new location.
func (s *Store) CreateLocation(_ context.Context, loc *location.Location) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locations[loc.ID] = copyLocation(loc)
	return nil
}

// GetLocation returns a location by ID.
func (s *Store) GetLocation(_ context.Context, locID id.ID) (*location.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	loc, ok := s.locations[locID]
	if !ok {
		return nil, convene.ErrLocationNotFound
	}
	return copyLocation(loc), nil
}

// UpdateLocation replaces a location.
func (s *Store) UpdateLocation(_ context.Context, loc *location.Location) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.locations[loc.ID]; !ok {
		return convene.ErrLocationNotFound
	}
	s.locations[loc.ID] = copyLocation(loc)
	return nil
}

// FindLocationByAddress matches name and address case-insensitively.
func (s *Store) FindLocationByAddress(_ context.Context, name, address string) (*location.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, loc := range s.sortedLocations() {
		if strings.EqualFold(loc.Name, name) && strings.EqualFold(loc.Address, address) {
			return copyLocation(loc), nil
		}
	}
	return nil, convene.ErrLocationNotFound
}

// FindLocationByCity matches name, city and, when given, state
// case-insensitively.
func (s *Store) FindLocationByCity(_ context.Context, name, city, state string) (*location.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, loc := range s.sortedLocations() {
		if !strings.EqualFold(loc.Name, name) || !strings.EqualFold(loc.City, city) {
			continue
		}
		if state != "" && !strings.EqualFold(loc.State, state) {
			continue
		}
		return copyLocation(loc), nil
	}
	return nil, convene.ErrLocationNotFound
}

// FindLocationsNear returns locations within radius meters, nearest first.
func (s *Store) FindLocationsNear(_ context.Context, lat, lon, radiusMeters float64) ([]*location.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type hit struct {
		loc  *location.Location
		dist float64
	}
	var hits []hit
	for _, loc := range s.locations {
		if !loc.HasCoordinates() {
			continue
		}
		d := location.Distance(lat, lon, *loc.Latitude, *loc.Longitude)
		if d <= radiusMeters {
			hits = append(hits, hit{loc: loc, dist: d})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].dist < hits[j].dist })

	result := make([]*location.Location, len(hits))
	for i, h := range hits {
		result[i] = copyLocation(h.loc)
	}
	return result, nil
}

// sortedLocations returns locations oldest first so lookups are stable.
// Callers must hold the lock.
func (s *Store) sortedLocations() []*location.Location {
	locs := slices.Collect(maps.Values(s.locations))
	sort.Slice(locs, func(i, j int) bool {
		if !locs[i].CreatedAt.Equal(locs[j].CreatedAt) {
			return locs[i].CreatedAt.Before(locs[j].CreatedAt)
		}
		return locs[i].ID.String() < locs[j].ID.String()
	})
	return locs
}

// ──────────────────────────────────────────────────
// duplicate.Store
// ──────────────────────────────────────────────────

// CreateLinks persists links, skipping pairs already linked in either
// direction.
func (s *Store) CreateLinks(_ context.Context, links []*duplicate.Link) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	for _, l := range links {
		if s.pairLinked(l.EventID, l.DuplicateOfID) {
			continue
		}
		cp := *l
		s.links[l.ID] = &cp
		inserted++
	}
	return inserted, nil
}

func (s *Store) pairLinked(a, b id.ID) bool {
	for _, l := range s.links {
		if l.SamePair(a, b) {
			return true
		}
	}
	return false
}

// GetLink returns a link by ID.
func (s *Store) GetLink(_ context.Context, linkID id.ID) (*duplicate.Link, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.links[linkID]
	if !ok {
		return nil, convene.ErrLinkNotFound
	}
	cp := *l
	return &cp, nil
}

// ListLinks returns links, newest first.
func (s *Store) ListLinks(_ context.Context, opts duplicate.ListOpts) ([]*duplicate.Link, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*duplicate.Link
	for _, l := range s.links {
		if opts.Status != "" && l.Status != opts.Status {
			continue
		}
		if !opts.EventID.IsNil() && l.EventID != opts.EventID && l.DuplicateOfID != opts.EventID {
			continue
		}
		cp := *l
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID.String() > result[j].ID.String()
	})
	return applyPagination(result, opts.Offset, opts.Limit), nil
}

// SetLinkStatus records an adjudication.
func (s *Store) SetLinkStatus(_ context.Context, linkID id.ID, status duplicate.Status, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.links[linkID]
	if !ok {
		return convene.ErrLinkNotFound
	}
	at = at.UTC()
	l.Status = status
	l.UpdatedAt = at
	l.ResolvedAt = nil
	if status.Terminal() {
		l.ResolvedAt = &at
	}
	return nil
}

// CountLinks returns the number of links with status.
func (s *Store) CountLinks(_ context.Context, status duplicate.Status) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, l := range s.links {
		if status == "" || l.Status == status {
			n++
		}
	}
	return n, nil
}

// PurgeResolvedLinks deletes adjudicated links created before the cutoff.
func (s *Store) PurgeResolvedLinks(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for k, l := range s.links {
		if l.Status.Terminal() && l.CreatedAt.Before(before) {
			delete(s.links, k)
			n++
		}
	}
	return n, nil
}

// ──────────────────────────────────────────────────
// syncjob.Store
// ──────────────────────────────────────────────────

// CreateJob persists a new job.
func (s *Store) CreateJob(_ context.Context, job *syncjob.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = copyJob(job)
	return nil
}

// UpdateJob replaces a job.
func (s *Store) UpdateJob(_ context.Context, job *syncjob.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; !ok {
		return convene.ErrJobNotFound
	}
	s.jobs[job.ID] = copyJob(job)
	return nil
}

// GetJob returns a job by ID.
func (s *Store) GetJob(_ context.Context, jobID id.ID) (*syncjob.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, convene.ErrJobNotFound
	}
	return copyJob(job), nil
}

// ListJobs returns jobs, most recently started first.
func (s *Store) ListJobs(_ context.Context, opts syncjob.ListOpts) ([]*syncjob.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*syncjob.Job
	for _, job := range s.jobs {
		if !opts.SourceID.IsNil() && job.SourceID != opts.SourceID {
			continue
		}
		if opts.Status != "" && job.Status != opts.Status {
			continue
		}
		result = append(result, copyJob(job))
	}
	sortJobsDesc(result)
	return applyPagination(result, opts.Offset, opts.Limit), nil
}

// CountJobs returns the number of jobs with status.
func (s *Store) CountJobs(_ context.Context, status syncjob.Status) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, job := range s.jobs {
		if status == "" || job.Status == status {
			n++
		}
	}
	return n, nil
}

// ListStaleJobs returns running jobs started before the cutoff.
func (s *Store) ListStaleJobs(_ context.Context, startedBefore time.Time) ([]*syncjob.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*syncjob.Job
	for _, job := range s.jobs {
		if job.Status == syncjob.StatusRunning && job.StartedAt.Before(startedBefore) {
			result = append(result, copyJob(job))
		}
	}
	sortJobsDesc(result)
	return result, nil
}

// PurgeJobs deletes terminal jobs started before the cutoff.
func (s *Store) PurgeJobs(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for k, job := range s.jobs {
		if job.Status.Terminal() && job.StartedAt.Before(before) {
			delete(s.jobs, k)
			n++
		}
	}
	return n, nil
}

// ──────────────────────────────────────────────────
// webhook.Store
// ──────────────────────────────────────────────────

// CreateRecord persists a new record.
func (s *Store) CreateRecord(_ context.Context, rec *webhook.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = copyRecord(rec)
	return nil
}

// GetRecord returns a record by ID.
func (s *Store) GetRecord(_ context.Context, recID id.ID) (*webhook.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[recID]
	if !ok {
		return nil, convene.ErrWebhookRecordNotFound
	}
	return copyRecord(rec), nil
}

// UpdateRecord stores the processing outcome of a record.
func (s *Store) UpdateRecord(_ context.Context, rec *webhook.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.records[rec.ID]
	if !ok {
		return convene.ErrWebhookRecordNotFound
	}
	existing.Processed = rec.Processed
	existing.Error = rec.Error
	existing.UpdatedAt = rec.UpdatedAt
	existing.ProcessedAt = nil
	if rec.ProcessedAt != nil {
		t := *rec.ProcessedAt
		existing.ProcessedAt = &t
	}
	return nil
}

// WebhookStats returns counts per source ordered by source id.
func (s *Store) WebhookStats(_ context.Context) ([]webhook.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bySource := make(map[id.ID]*webhook.Stats)
	for _, rec := range s.records {
		st, ok := bySource[rec.SourceID]
		if !ok {
			st = &webhook.Stats{SourceID: rec.SourceID}
			bySource[rec.SourceID] = st
		}
		st.Tally(rec)
	}

	result := make([]webhook.Stats, 0, len(bySource))
	for _, st := range bySource {
		result = append(result, *st)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].SourceID.String() < result[j].SourceID.String()
	})
	return result, nil
}

// CountUnprocessed returns the number of records not processed successfully.
func (s *Store) CountUnprocessed(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, rec := range s.records {
		if !rec.Processed {
			n++
		}
	}
	return n, nil
}

// PurgeRecords deletes records created before the cutoff.
func (s *Store) PurgeRecords(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for k, rec := range s.records {
		if rec.CreatedAt.Before(before) {
			delete(s.records, k)
			n++
		}
	}
	return n, nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func matchEventOpts(evt *event.Event, opts event.ListOpts) bool {
	if !opts.SourceID.IsNil() && evt.SourceID != opts.SourceID {
		return false
	}
	if opts.From != nil && evt.StartDate.Before(*opts.From) {
		return false
	}
	if opts.To != nil && evt.StartDate.After(*opts.To) {
		return false
	}
	return true
}

func sortEventsAsc(evts []*event.Event) {
	sort.Slice(evts, func(i, j int) bool {
		if !evts[i].StartDate.Equal(evts[j].StartDate) {
			return evts[i].StartDate.Before(evts[j].StartDate)
		}
		return evts[i].ID.String() < evts[j].ID.String()
	})
}

func sortJobsDesc(jobs []*syncjob.Job) {
	sort.Slice(jobs, func(i, j int) bool {
		if !jobs[i].StartedAt.Equal(jobs[j].StartedAt) {
			return jobs[i].StartedAt.After(jobs[j].StartedAt)
		}
		return jobs[i].ID.String() > jobs[j].ID.String()
	})
}

func applyPagination[T any](items []*T, offset, limit int) []*T {
	if offset > 0 && offset < len(items) {
		items = items[offset:]
	} else if offset >= len(items) {
		return nil
	}

	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}

	return items
}

func copySource(src *source.EventSource) *source.EventSource {
	cp := *src
	cp.Config = maps.Clone(src.Config)
	if src.LastSyncAt != nil {
		t := *src.LastSyncAt
		cp.LastSyncAt = &t
	}
	return &cp
}

func copyEvent(evt *event.Event) *event.Event {
	cp := *evt
	cp.DuplicateIDs = slices.Clone(evt.DuplicateIDs)
	cp.RawPayload = slices.Clone(evt.RawPayload)
	return &cp
}

func copyLocation(loc *location.Location) *location.Location {
	cp := *loc
	cp.ProviderIDs = maps.Clone(loc.ProviderIDs)
	return &cp
}

func copyJob(job *syncjob.Job) *syncjob.Job {
	cp := *job
	cp.Metadata = maps.Clone(job.Metadata)
	return &cp
}

func copyRecord(rec *webhook.Record) *webhook.Record {
	cp := *rec
	cp.Payload = slices.Clone(rec.Payload)
	return &cp
}
