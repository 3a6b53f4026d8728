package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/convene"
	"github.com/xraph/convene/duplicate"
	"github.com/xraph/convene/event"
	"github.com/xraph/convene/id"
	"github.com/xraph/convene/internal/entity"
	"github.com/xraph/convene/location"
	"github.com/xraph/convene/source"
	"github.com/xraph/convene/syncjob"
	"github.com/xraph/convene/webhook"
)

func ctx() context.Context { return context.Background() }

func ptr[T any](v T) *T { return &v }

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

func TestLifecycle(t *testing.T) {
	s := New()

	if err := s.Migrate(ctx()); err != nil {
		t.Fatal(err)
	}
	if err := s.Ping(ctx()); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Ping(ctx()); !errors.Is(err, convene.ErrStoreClosed) {
		t.Fatalf("expected ErrStoreClosed, got %v", err)
	}
}

// ──────────────────────────────────────────────────
// source.Store
// ──────────────────────────────────────────────────

func TestSourceCRUD(t *testing.T) {
	s := New()

	b := &source.EventSource{Entity: entity.New(), ID: id.NewSourceID(), Name: "beta", Kind: source.KindWebhook, Provider: source.ProviderFacebook, Active: true}
	a := &source.EventSource{Entity: entity.New(), ID: id.NewSourceID(), Name: "alpha", Kind: source.KindAPI, Provider: source.ProviderEventbrite, Active: true, Config: map[string]string{"organization_id": "1"}}
	c := &source.EventSource{Entity: entity.New(), ID: id.NewSourceID(), Name: "gamma", Kind: source.KindAPI, Provider: source.ProviderMeetup, Active: false}
	for _, src := range []*source.EventSource{b, a, c} {
		if err := s.CreateSource(ctx(), src); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.GetSource(ctx(), a.ID)
	if err != nil {
		t.Fatal(err)
	}
	got.Config["organization_id"] = "mutated"
	again, _ := s.GetSource(ctx(), a.ID)
	if again.Config["organization_id"] != "1" {
		t.Fatal("store shares config map with callers")
	}

	all, _ := s.ListSources(ctx(), source.ListOpts{})
	if len(all) != 3 || all[0].Name != "alpha" || all[2].Name != "gamma" {
		t.Fatalf("sources not ordered by name: %v", all)
	}
	active, _ := s.ListSources(ctx(), source.ListOpts{ActiveOnly: true, Kind: source.KindAPI})
	if len(active) != 1 || active[0].ID != a.ID {
		t.Fatalf("filtered listing = %v", active)
	}

	now := time.Now().UTC()
	if err := s.UpdateSyncState(ctx(), a.ID, source.SyncState{Status: source.StatusError, LastSyncAt: &now, ErrorCount: 2}); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetSource(ctx(), a.ID)
	if got.Status != source.StatusError || got.ErrorCount != 2 || got.LastSyncAt == nil {
		t.Fatalf("sync state not applied: %+v", got)
	}

	if _, err := s.GetSource(ctx(), id.NewSourceID()); !errors.Is(err, convene.ErrSourceNotFound) {
		t.Fatalf("expected ErrSourceNotFound, got %v", err)
	}
	if err := s.UpdateSource(ctx(), &source.EventSource{ID: id.NewSourceID()}); !errors.Is(err, convene.ErrSourceNotFound) {
		t.Fatalf("expected ErrSourceNotFound, got %v", err)
	}
}

// ──────────────────────────────────────────────────
// event.Store
// ──────────────────────────────────────────────────

func newEvent(srcID id.ID, ext string, start time.Time) *event.Event {
	return &event.Event{
		Entity:     entity.At(start.Add(-24 * time.Hour)),
		ID:         id.NewEventID(),
		SourceID:   srcID,
		ExternalID: ext,
		Title:      "Event " + ext,
		StartDate:  start,
	}
}

func TestUpsertEventIsIdempotent(t *testing.T) {
	s := New()
	srcID := id.NewSourceID()
	start := time.Date(2025, 7, 12, 20, 0, 0, 0, time.UTC)

	first := newEvent(srcID, "ev1", start)
	created, err := s.UpsertEvent(ctx(), first)
	if err != nil || !created {
		t.Fatalf("first upsert: created=%v err=%v", created, err)
	}

	second := newEvent(srcID, "ev1", start)
	second.Entity = entity.At(start)
	second.Title = "Jazz Night (updated)"
	created, err = s.UpsertEvent(ctx(), second)
	if err != nil || created {
		t.Fatalf("second upsert: created=%v err=%v", created, err)
	}
	if second.ID != first.ID {
		t.Fatalf("upsert did not keep the stored id")
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Fatalf("created_at changed on update")
	}

	n, _ := s.CountEvents(ctx())
	if n != 1 {
		t.Fatalf("count = %d, want 1", n)
	}
	got, err := s.GetEventByExternalID(ctx(), srcID, "ev1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "Jazz Night (updated)" {
		t.Fatalf("title = %q", got.Title)
	}

	// Same external id from another source is a different event.
	other := newEvent(id.NewSourceID(), "ev1", start)
	if created, _ := s.UpsertEvent(ctx(), other); !created {
		t.Fatal("external ids are scoped per source")
	}
}

func TestFindCandidates(t *testing.T) {
	s := New()
	srcID := id.NewSourceID()
	base := time.Date(2025, 7, 12, 20, 0, 0, 0, time.UTC)

	near := newEvent(srcID, "near", base)
	near.Latitude, near.Longitude = ptr(40.7306), ptr(-74.0003)
	far := newEvent(srcID, "far", base)
	far.Latitude, far.Longitude = ptr(41.5), ptr(-74.0)
	noCoords := newEvent(srcID, "nocoords", base.Add(time.Hour))
	later := newEvent(srcID, "later", base.Add(48*time.Hour))
	later.Latitude, later.Longitude = ptr(40.7306), ptr(-74.0003)
	for _, e := range []*event.Event{near, far, noCoords, later} {
		if _, err := s.UpsertEvent(ctx(), e); err != nil {
			t.Fatal(err)
		}
	}

	q := event.CandidateQuery{From: base, To: base.Add(3 * time.Hour), Latitude: ptr(40.7308), Longitude: ptr(-74.0001), RadiusKm: 5}
	got, _ := s.FindCandidates(ctx(), q)
	if len(got) != 1 || got[0].ID != near.ID {
		t.Fatalf("spatial candidates = %v", got)
	}

	q = event.CandidateQuery{From: base, To: base.Add(3 * time.Hour), ExcludeID: far.ID}
	got, _ = s.FindCandidates(ctx(), q)
	if len(got) != 2 {
		t.Fatalf("time-only candidates = %d, want 2", len(got))
	}
	if got[0].StartDate.After(got[1].StartDate) {
		t.Fatal("candidates not ordered by start")
	}
}

func TestListEventsAndConfidence(t *testing.T) {
	s := New()
	srcID := id.NewSourceID()
	base := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	for i, conf := range []float64{0.5, 0.7, 0.9} {
		e := newEvent(srcID, string(rune('a'+i)), base.Add(time.Duration(i)*24*time.Hour))
		e.Confidence = conf
		_, _ = s.UpsertEvent(ctx(), e)
	}

	avg, _ := s.AverageConfidence(ctx())
	if avg < 0.699 || avg > 0.701 {
		t.Fatalf("average = %v, want 0.7", avg)
	}

	list, _ := s.ListEvents(ctx(), event.ListOpts{SourceID: srcID, Limit: 2})
	if len(list) != 2 || list[0].ExternalID != "c" {
		t.Fatalf("list = %v", list)
	}
	from := base.Add(24 * time.Hour)
	list, _ = s.ListEvents(ctx(), event.ListOpts{From: &from})
	if len(list) != 2 {
		t.Fatalf("from filter = %d, want 2", len(list))
	}
}

// ──────────────────────────────────────────────────
// location.Store
// ──────────────────────────────────────────────────

func TestLocationLookups(t *testing.T) {
	s := New()
	blue := &location.Location{Entity: entity.New(), ID: id.NewLocationID(), Name: "Blue Note", Address: "131 W 3rd St", City: "New York", State: "NY", Latitude: ptr(40.7308), Longitude: ptr(-74.0001)}
	vanguard := &location.Location{Entity: entity.New(), ID: id.NewLocationID(), Name: "Village Vanguard", Address: "178 7th Ave S", City: "New York", State: "NY", Latitude: ptr(40.7359), Longitude: ptr(-74.0017)}
	_ = s.CreateLocation(ctx(), blue)
	_ = s.CreateLocation(ctx(), vanguard)

	got, err := s.FindLocationByAddress(ctx(), "blue note", "131 w 3rd st")
	if err != nil || got.ID != blue.ID {
		t.Fatalf("by address = %v, %v", got, err)
	}
	got, err = s.FindLocationByCity(ctx(), "Village Vanguard", "new york", "")
	if err != nil || got.ID != vanguard.ID {
		t.Fatalf("by city = %v, %v", got, err)
	}
	if _, err := s.FindLocationByCity(ctx(), "Village Vanguard", "New York", "NJ"); !errors.Is(err, convene.ErrLocationNotFound) {
		t.Fatalf("state mismatch should miss, got %v", err)
	}

	nearby, _ := s.FindLocationsNear(ctx(), 40.7309, -74.0002, 100)
	if len(nearby) != 1 || nearby[0].ID != blue.ID {
		t.Fatalf("near 100m = %v", nearby)
	}
	nearby, _ = s.FindLocationsNear(ctx(), 40.7309, -74.0002, 1000)
	if len(nearby) != 2 || nearby[0].ID != blue.ID {
		t.Fatalf("near 1km not ordered by distance: %v", nearby)
	}
}

// ──────────────────────────────────────────────────
// duplicate.Store
// ──────────────────────────────────────────────────

func newLink(a, b id.ID, created time.Time) *duplicate.Link {
	return &duplicate.Link{
		Entity:        entity.At(created),
		ID:            id.NewLinkID(),
		EventID:       a,
		DuplicateOfID: b,
		Score:         0.9,
		Method:        duplicate.MethodWeighted,
		Status:        duplicate.StatusDetected,
	}
}

func TestCreateLinksSkipsExistingPairs(t *testing.T) {
	s := New()
	a, b, c := id.NewEventID(), id.NewEventID(), id.NewEventID()
	now := time.Now().UTC()

	n, err := s.CreateLinks(ctx(), []*duplicate.Link{newLink(a, b, now), newLink(a, c, now)})
	if err != nil || n != 2 {
		t.Fatalf("inserted = %d err = %v", n, err)
	}
	n, _ = s.CreateLinks(ctx(), []*duplicate.Link{newLink(b, a, now), newLink(b, c, now)})
	if n != 1 {
		t.Fatalf("reverse pair was not skipped: inserted %d", n)
	}

	links, _ := s.ListLinks(ctx(), duplicate.ListOpts{EventID: a})
	if len(links) != 2 {
		t.Fatalf("links for a = %d, want 2", len(links))
	}
}

func TestLinkStatusAndPurge(t *testing.T) {
	s := New()
	now := time.Now().UTC()
	old := newLink(id.NewEventID(), id.NewEventID(), now.Add(-40*24*time.Hour))
	oldOpen := newLink(id.NewEventID(), id.NewEventID(), now.Add(-40*24*time.Hour))
	fresh := newLink(id.NewEventID(), id.NewEventID(), now)
	_, _ = s.CreateLinks(ctx(), []*duplicate.Link{old, oldOpen, fresh})

	if err := s.SetLinkStatus(ctx(), old.ID, duplicate.StatusConfirmed, now); err != nil {
		t.Fatal(err)
	}
	if err := s.SetLinkStatus(ctx(), fresh.ID, duplicate.StatusRejected, now); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetLink(ctx(), old.ID)
	if got.Status != duplicate.StatusConfirmed || got.ResolvedAt == nil {
		t.Fatalf("status not recorded: %+v", got)
	}

	n, _ := s.PurgeResolvedLinks(ctx(), now.Add(-30*24*time.Hour))
	if n != 1 {
		t.Fatalf("purged = %d, want 1", n)
	}
	if _, err := s.GetLink(ctx(), old.ID); !errors.Is(err, convene.ErrLinkNotFound) {
		t.Fatalf("expected ErrLinkNotFound, got %v", err)
	}
	if c, _ := s.CountLinks(ctx(), duplicate.StatusDetected); c != 1 {
		t.Fatalf("detected links = %d, want 1", c)
	}
}

// ──────────────────────────────────────────────────
// syncjob.Store
// ──────────────────────────────────────────────────

func TestJobs(t *testing.T) {
	s := New()
	now := time.Now().UTC()
	srcID := id.NewSourceID()

	newJob := func(started time.Time, status syncjob.Status) *syncjob.Job {
		return &syncjob.Job{Entity: entity.At(started), ID: id.NewJobID(), SourceID: srcID, Type: syncjob.TypeIncremental, Status: status, StartedAt: started}
	}
	stale := newJob(now.Add(-3*time.Hour), syncjob.StatusRunning)
	running := newJob(now.Add(-time.Minute), syncjob.StatusRunning)
	oldDone := newJob(now.Add(-31*24*time.Hour), syncjob.StatusCompleted)
	recentDone := newJob(now.Add(-29*24*time.Hour), syncjob.StatusFailed)
	for _, j := range []*syncjob.Job{stale, running, oldDone, recentDone} {
		if err := s.CreateJob(ctx(), j); err != nil {
			t.Fatal(err)
		}
	}

	list, _ := s.ListJobs(ctx(), syncjob.ListOpts{SourceID: srcID})
	if len(list) != 4 || list[0].ID != running.ID {
		t.Fatalf("jobs not ordered newest first")
	}
	staleJobs, _ := s.ListStaleJobs(ctx(), now.Add(-2*time.Hour))
	if len(staleJobs) != 1 || staleJobs[0].ID != stale.ID {
		t.Fatalf("stale = %v", staleJobs)
	}

	n, _ := s.PurgeJobs(ctx(), now.Add(-30*24*time.Hour))
	if n != 1 {
		t.Fatalf("purged = %d, want 1", n)
	}
	if _, err := s.GetJob(ctx(), recentDone.ID); err != nil {
		t.Fatalf("29-day-old job was purged: %v", err)
	}
	if c, _ := s.CountJobs(ctx(), syncjob.StatusRunning); c != 2 {
		t.Fatalf("running = %d, want 2", c)
	}

	running.Finish(now, nil)
	if err := s.UpdateJob(ctx(), running); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetJob(ctx(), running.ID)
	if got.Status != syncjob.StatusCompleted || got.CompletedAt == nil {
		t.Fatalf("job not finished: %+v", got)
	}
}

// ──────────────────────────────────────────────────
// webhook.Store
// ──────────────────────────────────────────────────

func TestWebhookRecordsAndStats(t *testing.T) {
	s := New()
	now := time.Now().UTC()
	srcID := id.NewSourceID()

	newRec := func(created time.Time) *webhook.Record {
		return &webhook.Record{Entity: entity.At(created), ID: id.NewWebhookID(), SourceID: srcID, EventType: "event", Payload: []byte(`{"id":"1"}`)}
	}
	ok := newRec(now)
	failed := newRec(now)
	pending := newRec(now.Add(-8 * 24 * time.Hour))
	for _, r := range []*webhook.Record{ok, failed, pending} {
		_ = s.CreateRecord(ctx(), r)
	}

	ok.Processed = true
	ok.ProcessedAt = &now
	_ = s.UpdateRecord(ctx(), ok)
	failed.Error = "boom"
	failed.ProcessedAt = &now
	_ = s.UpdateRecord(ctx(), failed)

	stats, _ := s.WebhookStats(ctx())
	if len(stats) != 1 {
		t.Fatalf("stats rows = %d", len(stats))
	}
	st := stats[0]
	if st.Total != 3 || st.Processed != 1 || st.Errors != 1 || st.Pending != 1 {
		t.Fatalf("stats = %+v", st)
	}
	if n, _ := s.CountUnprocessed(ctx()); n != 2 {
		t.Fatalf("unprocessed = %d, want 2", n)
	}

	n, _ := s.PurgeRecords(ctx(), now.Add(-7*24*time.Hour))
	if n != 1 {
		t.Fatalf("purged = %d, want 1", n)
	}
	if _, err := s.GetRecord(ctx(), pending.ID); !errors.Is(err, convene.ErrWebhookRecordNotFound) {
		t.Fatalf("expected ErrWebhookNotFound, got %v", err)
	}
}
