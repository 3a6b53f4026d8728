package convene_test

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/xraph/convene"
	"github.com/xraph/convene/duplicate"
	"github.com/xraph/convene/geocode"
	"github.com/xraph/convene/id"
	"github.com/xraph/convene/internal/entity"
	"github.com/xraph/convene/source"
	"github.com/xraph/convene/store/memory"
	"github.com/xraph/convene/syncjob"
	"github.com/xraph/convene/webhook"
)

func ctx() context.Context { return context.Background() }

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// fakeConnector serves canned payloads for one provider.
type fakeConnector struct {
	provider source.Provider
	payloads [][]byte
	err      error
	// entered and release, when set, hold Fetch open until release is closed.
	entered chan struct{}
	release chan struct{}

	mu          sync.Mutex
	calls       int
	credentials []string
}

func (f *fakeConnector) Provider() source.Provider { return f.provider }

func (f *fakeConnector) Fetch(ctx context.Context, _ *source.EventSource, credential string) ([][]byte, error) {
	f.mu.Lock()
	f.calls++
	f.credentials = append(f.credentials, credential)
	f.mu.Unlock()

	if f.entered != nil {
		close(f.entered)
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.payloads, f.err
}

func (f *fakeConnector) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type stubGeocoder struct{}

func (stubGeocoder) Geocode(context.Context, string) (*geocode.Result, error) {
	return &geocode.Result{Latitude: 40.7308, Longitude: -74.0001, City: "New York", State: "NY", Country: "US", Provider: "stub"}, nil
}

func setup(t *testing.T, opts ...convene.Option) (*convene.Aggregator, *memory.Store) {
	t.Helper()
	s := memory.New()
	agg, err := convene.New(append([]convene.Option{convene.WithStore(s)}, opts...)...)
	if err != nil {
		t.Fatal(err)
	}
	return agg, s
}

func createSource(t *testing.T, s *memory.Store, name string, p source.Provider, kind source.Kind, mutate ...func(*source.EventSource)) *source.EventSource {
	t.Helper()
	src := &source.EventSource{
		Entity:   entity.New(),
		ID:       id.NewSourceID(),
		Name:     name,
		Kind:     kind,
		Provider: p,
		Active:   true,
		Status:   source.StatusActive,
	}
	for _, m := range mutate {
		m(src)
	}
	if err := s.CreateSource(ctx(), src); err != nil {
		t.Fatal(err)
	}
	return src
}

func eventbritePayload(extID, title string) []byte {
	return []byte(`{"id":"` + extID + `","name":{"text":"` + title + `"},` +
		`"description":{"text":"Live jazz with the house trio."},` +
		`"start":{"utc":"2025-07-12T20:00:00Z"},"end":{"utc":"2025-07-12T23:00:00Z"},` +
		`"venue":{"name":"Blue Note","address":{"localized_address_display":"131 W 3rd St, New York, NY"}}}`)
}

func TestNewRequiresStore(t *testing.T) {
	if _, err := convene.New(); !errors.Is(err, convene.ErrNoStore) {
		t.Fatalf("expected ErrNoStore, got %v", err)
	}
}

func TestNewValidatesTimeouts(t *testing.T) {
	tests := []struct {
		name      string
		sync      time.Duration
		stale     time.Duration
		wantError bool
	}{
		{"defaults", 10 * time.Minute, 2 * time.Hour, false},
		{"watchdog disabled", time.Hour, 0, false},
		{"equal", time.Hour, time.Hour, true},
		{"stale below sync", 3 * time.Hour, 2 * time.Hour, true},
		{"no sync timeout", 0, 2 * time.Hour, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := convene.New(
				convene.WithStore(memory.New()),
				convene.WithSyncTimeout(tt.sync),
				convene.WithStaleJobTimeout(tt.stale),
			)
			if tt.wantError != errors.Is(err, convene.ErrInvalidConfig) {
				t.Fatalf("err = %v, want invalid config = %v", err, tt.wantError)
			}
		})
	}
}

func TestSyncSourceIdempotentUpsert(t *testing.T) {
	clk := newClock()
	conn := &fakeConnector{provider: source.ProviderEventbrite, payloads: [][]byte{
		eventbritePayload("ev1", "Jazz Night"),
		eventbritePayload("ev2", "Blues Brunch"),
	}}
	agg, s := setup(t, convene.WithConnector(conn), convene.WithClock(clk.Now), convene.WithGeocoder(stubGeocoder{}))
	src := createSource(t, s, "eventbrite", source.ProviderEventbrite, source.KindAPI)

	job, err := agg.SyncSource(ctx(), src.ID)
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != syncjob.StatusCompleted || job.Created != 2 || job.Processed != 2 {
		t.Fatalf("first job = %+v", job)
	}
	first, err := s.GetEventByExternalID(ctx(), src.ID, "ev1")
	if err != nil {
		t.Fatal(err)
	}

	clk.Advance(time.Hour)
	job, err = agg.SyncSource(ctx(), src.ID)
	if err != nil {
		t.Fatal(err)
	}
	if job.Created != 0 || job.Processed != 2 {
		t.Fatalf("second job = %+v", job)
	}

	if n, _ := s.CountEvents(ctx()); n != 2 {
		t.Fatalf("expected 2 events, got %d", n)
	}
	second, _ := s.GetEventByExternalID(ctx(), src.ID, "ev1")
	if second.ID != first.ID || !second.CreatedAt.Equal(first.CreatedAt) {
		t.Fatal("id or created_at changed across syncs")
	}
	if !second.UpdatedAt.Equal(clk.Now()) {
		t.Fatalf("updated_at = %v, want %v", second.UpdatedAt, clk.Now())
	}

	stored, _ := s.GetSource(ctx(), src.ID)
	if stored.Status != source.StatusActive || stored.LastSyncAt == nil || stored.ErrorCount != 0 {
		t.Fatalf("source state = %+v", stored)
	}
}

func TestSyncSourceRateLimit(t *testing.T) {
	clk := newClock()
	conn := &fakeConnector{provider: source.ProviderEventbrite, payloads: [][]byte{eventbritePayload("ev1", "Jazz Night")}}
	agg, s := setup(t, convene.WithConnector(conn), convene.WithClock(clk.Now))
	src := createSource(t, s, "eventbrite", source.ProviderEventbrite, source.KindAPI, func(src *source.EventSource) {
		src.RateLimitPerHour = 1
	})

	if _, err := agg.SyncSource(ctx(), src.ID); err != nil {
		t.Fatal(err)
	}
	clk.Advance(10 * time.Minute)
	job, err := agg.SyncSource(ctx(), src.ID)
	if err != nil {
		t.Fatal(err)
	}
	if conn.Calls() != 1 {
		t.Fatalf("expected 1 fetch within the hour, got %d", conn.Calls())
	}
	if job.Status != syncjob.StatusCompleted || job.Processed != 0 || job.Metadata["deferred"] != true {
		t.Fatalf("deferred job = %+v", job)
	}

	clk.Advance(time.Hour)
	job, err = agg.SyncSource(ctx(), src.ID)
	if err != nil {
		t.Fatal(err)
	}
	if conn.Calls() != 2 || job.Processed != 1 {
		t.Fatalf("expected a fetch after the hour, calls = %d, job = %+v", conn.Calls(), job)
	}
}

func TestRunFullSyncIsolatesFailures(t *testing.T) {
	broken := &fakeConnector{provider: source.ProviderEventbrite, err: errors.New("upstream 503")}
	working := &fakeConnector{provider: source.ProviderMeetup, payloads: [][]byte{
		[]byte(`{"id":"m1","name":"Book Club","time":1752346800000}`),
	}}
	agg, s := setup(t, convene.WithConnector(broken), convene.WithConnector(working))

	a := createSource(t, s, "a-eventbrite", source.ProviderEventbrite, source.KindAPI)
	b := createSource(t, s, "b-meetup", source.ProviderMeetup, source.KindAPI)
	createSource(t, s, "c-paused", source.ProviderMeetup, source.KindAPI, func(src *source.EventSource) { src.Active = false })
	createSource(t, s, "d-hooks", source.ProviderGeneric, source.KindWebhook)

	job, err := agg.RunFullSync(ctx())
	if err != nil {
		t.Fatal(err)
	}
	if job.Type != syncjob.TypeFull || job.Status != syncjob.StatusCompleted {
		t.Fatalf("full job = %+v", job)
	}
	failed, _ := job.Metadata["failed_sources"].([]string)
	if len(failed) != 1 || failed[0] != a.ID.String() {
		t.Fatalf("failed sources = %v", job.Metadata["failed_sources"])
	}
	if job.Metadata["synced"] != 1 {
		t.Fatalf("synced = %v", job.Metadata["synced"])
	}

	if _, err := s.GetEventByExternalID(ctx(), b.ID, "m1"); err != nil {
		t.Fatalf("source B event missing: %v", err)
	}

	storedA, _ := s.GetSource(ctx(), a.ID)
	if storedA.Status != source.StatusError || storedA.ErrorCount != 1 {
		t.Fatalf("source A state = %+v", storedA)
	}
	jobs, _ := s.ListJobs(ctx(), syncjob.ListOpts{SourceID: a.ID})
	if len(jobs) != 1 || jobs[0].Status != syncjob.StatusFailed || jobs[0].Error == "" {
		t.Fatalf("source A jobs = %+v", jobs)
	}
}

func TestSyncSourceSkipsWhileRunning(t *testing.T) {
	conn := &fakeConnector{
		provider: source.ProviderEventbrite,
		payloads: [][]byte{eventbritePayload("ev1", "Jazz Night")},
		entered:  make(chan struct{}),
		release:  make(chan struct{}),
	}
	agg, s := setup(t, convene.WithConnector(conn))
	src := createSource(t, s, "eventbrite", source.ProviderEventbrite, source.KindAPI)

	type result struct {
		job *syncjob.Job
		err error
	}
	done := make(chan result, 1)
	go func() {
		job, err := agg.SyncSource(ctx(), src.ID)
		done <- result{job, err}
	}()
	<-conn.entered

	job, err := agg.SyncSource(ctx(), src.ID)
	if err != nil || job != nil {
		t.Fatalf("overlapping sync = %v, %v; want skip", job, err)
	}

	close(conn.release)
	r := <-done
	if r.err != nil || r.job.Status != syncjob.StatusCompleted {
		t.Fatalf("first sync = %+v, %v", r.job, r.err)
	}
	if n, _ := s.CountJobs(ctx(), ""); n != 1 {
		t.Fatalf("expected 1 job, got %d", n)
	}
}

func TestSyncSourceInactiveAndWebhookSources(t *testing.T) {
	agg, s := setup(t)
	paused := createSource(t, s, "paused", source.ProviderEventbrite, source.KindAPI, func(src *source.EventSource) { src.Active = false })
	hooks := createSource(t, s, "hooks", source.ProviderGeneric, source.KindWebhook)

	job, err := agg.SyncSource(ctx(), paused.ID)
	if err != nil || job != nil {
		t.Fatalf("inactive sync = %v, %v", job, err)
	}
	if _, err := agg.SyncSource(ctx(), hooks.ID); !errors.Is(err, convene.ErrNotPullable) {
		t.Fatalf("expected ErrNotPullable, got %v", err)
	}
	if _, err := agg.SyncSource(ctx(), id.NewSourceID()); !errors.Is(err, convene.ErrSourceNotFound) {
		t.Fatalf("expected ErrSourceNotFound, got %v", err)
	}
	if n, _ := s.CountJobs(ctx(), ""); n != 0 {
		t.Fatalf("expected no jobs, got %d", n)
	}
}

func TestSyncSourceSkipsBadPayloads(t *testing.T) {
	conn := &fakeConnector{provider: source.ProviderEventbrite, payloads: [][]byte{
		[]byte(`{"id":"bad","name":{"text":""}}`),
		eventbritePayload("ev1", "Jazz Night"),
	}}
	agg, s := setup(t, convene.WithConnector(conn))
	src := createSource(t, s, "eventbrite", source.ProviderEventbrite, source.KindAPI)

	job, err := agg.SyncSource(ctx(), src.ID)
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != syncjob.StatusCompleted || job.Processed != 1 || job.Failed != 1 {
		t.Fatalf("job = %+v", job)
	}
}

func TestSyncSourceTimeoutFailsJob(t *testing.T) {
	conn := &fakeConnector{provider: source.ProviderEventbrite, release: make(chan struct{})}
	agg, s := setup(t, convene.WithConnector(conn), convene.WithSyncTimeout(50*time.Millisecond))
	src := createSource(t, s, "eventbrite", source.ProviderEventbrite, source.KindAPI)

	job, err := agg.SyncSource(ctx(), src.ID)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if job.Status != syncjob.StatusFailed {
		t.Fatalf("job = %+v", job)
	}
	stored, _ := s.GetJob(ctx(), job.ID)
	if stored.Status != syncjob.StatusFailed || stored.CompletedAt == nil {
		t.Fatalf("stored job = %+v", stored)
	}
}

func TestSyncSourceUnknownProvider(t *testing.T) {
	agg, s := setup(t)
	src := createSource(t, s, "ical", source.Provider("ical"), source.KindScraper)

	job, err := agg.SyncSource(ctx(), src.ID)
	if !errors.Is(err, convene.ErrUnknownProvider) || job == nil || job.Status != syncjob.StatusFailed {
		t.Fatalf("job = %+v, err = %v", job, err)
	}
}

func TestSyncSourceDecryptsCredential(t *testing.T) {
	cipher, err := source.NewCipher(base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef")))
	if err != nil {
		t.Fatal(err)
	}
	sealed, err := cipher.Encrypt("oauth-token")
	if err != nil {
		t.Fatal(err)
	}
	conn := &fakeConnector{provider: source.ProviderEventbrite}
	agg, s := setup(t, convene.WithConnector(conn), convene.WithCredentialCipher(cipher))
	src := createSource(t, s, "eventbrite", source.ProviderEventbrite, source.KindAPI, func(src *source.EventSource) {
		src.Credential = sealed
	})

	if _, err := agg.SyncSource(ctx(), src.ID); err != nil {
		t.Fatal(err)
	}
	if len(conn.credentials) != 1 || conn.credentials[0] != "oauth-token" {
		t.Fatalf("credentials = %v", conn.credentials)
	}
}

// Two sources announce the same show at the same venue: one pulled, one
// pushed over the generic webhook.
func TestCrossSourceDuplicateEndToEnd(t *testing.T) {
	conn := &fakeConnector{provider: source.ProviderEventbrite, payloads: [][]byte{
		eventbritePayload("ev1", "Jazz Night at Blue Note"),
	}}
	agg, s := setup(t, convene.WithConnector(conn), convene.WithGeocoder(stubGeocoder{}))
	eb := createSource(t, s, "eventbrite", source.ProviderEventbrite, source.KindAPI)
	hooks := createSource(t, s, "partner feed", source.ProviderGeneric, source.KindWebhook)

	if _, err := agg.SyncSource(ctx(), eb.ID); err != nil {
		t.Fatal(err)
	}
	body := []byte(`{"event":{"id":"p-9","title":"Jazz Night @ Blue Note NYC",` +
		`"description":"Live jazz with the house trio.","start_date":"2025-07-12T20:00:00Z",` +
		`"venue":"Blue Note","address":"131 W 3rd St, New York, NY"}}`)
	if _, err := agg.Webhooks().Receive(ctx(), webhook.Delivery{
		Provider: source.ProviderGeneric,
		SourceID: hooks.ID.String(),
		Body:     body,
		Header:   http.Header{},
	}); err != nil {
		t.Fatal(err)
	}

	pulled, err := s.GetEventByExternalID(ctx(), eb.ID, "ev1")
	if err != nil {
		t.Fatal(err)
	}
	pushed, err := s.GetEventByExternalID(ctx(), hooks.ID, "p-9")
	if err != nil {
		t.Fatal(err)
	}
	if pulled.LocationID.IsNil() || pulled.LocationID != pushed.LocationID {
		t.Fatalf("locations = %v / %v, want the same row", pulled.LocationID, pushed.LocationID)
	}

	links, _ := agg.ListDuplicates(ctx(), duplicate.ListOpts{Status: duplicate.StatusDetected})
	if len(links) != 1 {
		t.Fatalf("expected 1 duplicate link, got %d", len(links))
	}
	if links[0].Score < duplicate.Threshold || !links[0].SamePair(pulled.ID, pushed.ID) {
		t.Fatalf("link = %+v", links[0])
	}

	st, err := agg.Status(ctx())
	if err != nil {
		t.Fatal(err)
	}
	if st.TotalEvents != 2 || st.PendingDuplicates != 1 || st.ActiveSources != 2 || st.UnprocessedWebhooks != 0 {
		t.Fatalf("status = %+v", st)
	}
}

func TestResolveDuplicate(t *testing.T) {
	agg, s := setup(t)
	link := &duplicate.Link{
		Entity:        entity.New(),
		ID:            id.NewLinkID(),
		EventID:       id.NewEventID(),
		DuplicateOfID: id.NewEventID(),
		Score:         0.9,
		Method:        duplicate.MethodWeighted,
		Status:        duplicate.StatusDetected,
	}
	if _, err := s.CreateLinks(ctx(), []*duplicate.Link{link}); err != nil {
		t.Fatal(err)
	}

	if _, err := agg.ResolveDuplicate(ctx(), link.ID, duplicate.StatusDetected); !errors.Is(err, convene.ErrInvalidLinkStatus) {
		t.Fatalf("expected ErrInvalidLinkStatus, got %v", err)
	}
	got, err := agg.ResolveDuplicate(ctx(), link.ID, duplicate.StatusConfirmed)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != duplicate.StatusConfirmed || got.ResolvedAt == nil {
		t.Fatalf("link = %+v", got)
	}
	if _, err := agg.ResolveDuplicate(ctx(), id.NewLinkID(), duplicate.StatusRejected); !errors.Is(err, convene.ErrLinkNotFound) {
		t.Fatalf("expected ErrLinkNotFound, got %v", err)
	}
}

func TestCleanupRetention(t *testing.T) {
	clk := newClock()
	agg, s := setup(t, convene.WithClock(clk.Now))
	now := clk.Now()
	srcID := id.NewSourceID()

	oldRec := &webhook.Record{Entity: entity.At(now.Add(-31 * 24 * time.Hour)), ID: id.NewWebhookID(), SourceID: srcID, Payload: []byte(`{}`)}
	newRec := &webhook.Record{Entity: entity.At(now.Add(-29 * 24 * time.Hour)), ID: id.NewWebhookID(), SourceID: srcID, Payload: []byte(`{}`)}
	for _, rec := range []*webhook.Record{oldRec, newRec} {
		if err := s.CreateRecord(ctx(), rec); err != nil {
			t.Fatal(err)
		}
	}

	oldLink := &duplicate.Link{Entity: entity.At(now.Add(-61 * 24 * time.Hour)), ID: id.NewLinkID(), EventID: id.NewEventID(), DuplicateOfID: id.NewEventID(), Status: duplicate.StatusRejected}
	openLink := &duplicate.Link{Entity: entity.At(now.Add(-61 * 24 * time.Hour)), ID: id.NewLinkID(), EventID: id.NewEventID(), DuplicateOfID: id.NewEventID(), Status: duplicate.StatusDetected}
	if _, err := s.CreateLinks(ctx(), []*duplicate.Link{oldLink, openLink}); err != nil {
		t.Fatal(err)
	}

	doneAt := now.Add(-8 * 24 * time.Hour)
	oldJob := &syncjob.Job{Entity: entity.At(doneAt), ID: id.NewJobID(), SourceID: srcID, Type: syncjob.TypeIncremental, Status: syncjob.StatusCompleted, StartedAt: doneAt, CompletedAt: &doneAt}
	stuckJob := &syncjob.Job{Entity: entity.At(now.Add(-3 * time.Hour)), ID: id.NewJobID(), SourceID: srcID, Type: syncjob.TypeIncremental, Status: syncjob.StatusRunning, StartedAt: now.Add(-3 * time.Hour)}
	for _, job := range []*syncjob.Job{oldJob, stuckJob} {
		if err := s.CreateJob(ctx(), job); err != nil {
			t.Fatal(err)
		}
	}

	report, err := agg.Cleanup(ctx())
	if err != nil {
		t.Fatal(err)
	}
	if report.WebhookRecords != 1 || report.Links != 1 || report.Jobs != 1 || report.StaleJobs != 1 {
		t.Fatalf("report = %+v", report)
	}

	if _, err := s.GetRecord(ctx(), oldRec.ID); !errors.Is(err, convene.ErrWebhookRecordNotFound) {
		t.Fatalf("31-day-old record should be purged, got %v", err)
	}
	if _, err := s.GetRecord(ctx(), newRec.ID); err != nil {
		t.Fatalf("29-day-old record should be kept: %v", err)
	}
	if _, err := s.GetLink(ctx(), openLink.ID); err != nil {
		t.Fatalf("unresolved link should be kept: %v", err)
	}
	stuck, err := s.GetJob(ctx(), stuckJob.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stuck.Status != syncjob.StatusFailed || stuck.Error == "" {
		t.Fatalf("stuck job = %+v", stuck)
	}
}

func TestProcessWebhookPayloadRejectsInactiveSource(t *testing.T) {
	agg, _ := setup(t)
	src := &source.EventSource{ID: id.NewSourceID(), Provider: source.ProviderGeneric, Kind: source.KindWebhook}

	err := agg.ProcessWebhookPayload(ctx(), src, []byte(`{"title":"x","start_date":"2025-07-12"}`))
	if !errors.Is(err, convene.ErrSourceInactive) {
		t.Fatalf("expected ErrSourceInactive, got %v", err)
	}
}

func TestStartStopAndStatus(t *testing.T) {
	agg, s := setup(t)
	createSource(t, s, "eventbrite", source.ProviderEventbrite, source.KindAPI)

	st, err := agg.Status(ctx())
	if err != nil {
		t.Fatal(err)
	}
	if st.Running || st.ActiveSources != 1 || st.TotalEvents != 0 {
		t.Fatalf("idle status = %+v", st)
	}

	if err := agg.Start(ctx()); err != nil {
		t.Fatal(err)
	}
	st, _ = agg.Status(ctx())
	if !st.Running {
		t.Fatal("expected running after Start")
	}

	stopCtx, cancel := context.WithTimeout(ctx(), time.Second)
	defer cancel()
	if err := agg.Stop(stopCtx); err != nil {
		t.Fatal(err)
	}
	st, _ = agg.Status(ctx())
	if st.Running {
		t.Fatal("expected stopped after Stop")
	}
}
