package duplicate_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/xraph/convene/duplicate"
	"github.com/xraph/convene/event"
	"github.com/xraph/convene/feature"
	"github.com/xraph/convene/id"
)

type fakeFinder struct {
	events []*event.Event
	last   event.CandidateQuery
}

func (f *fakeFinder) FindCandidates(_ context.Context, q event.CandidateQuery) ([]*event.Event, error) {
	f.last = q
	var out []*event.Event
	for _, e := range f.events {
		if q.Matches(e) {
			out = append(out, e)
		}
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func ptr(f float64) *float64 { return &f }

var jazzStart = time.Date(2025, 7, 12, 20, 0, 0, 0, time.UTC)

func jazz(title string) *event.Event {
	return &event.Event{
		ID:          id.NewEventID(),
		Title:       title,
		Description: "An evening of live jazz with the house quartet.",
		StartDate:   jazzStart,
		Venue:       "Blue Note",
		Latitude:    ptr(40.7309),
		Longitude:   ptr(-74.0003),
	}
}

func TestThresholdBoundary(t *testing.T) {
	if !duplicate.IsDuplicate(0.80) {
		t.Fatal("0.80 must be flagged")
	}
	if duplicate.IsDuplicate(0.79) {
		t.Fatal("0.79 must not be flagged")
	}
	exact := duplicate.Breakdown{Title: 1, Description: 1, Location: 0.5, Time: 0}
	if got := exact.Score(); got != 0.8 || !duplicate.IsDuplicate(got) {
		t.Fatalf("score = %v, want exactly 0.8", got)
	}
}

func TestScoreWithoutDescriptionRescales(t *testing.T) {
	full := duplicate.Breakdown{Title: 1, Location: 1, Time: 1, NoDescription: true}
	if got := full.Score(); got != 1 {
		t.Fatalf("score = %v, want 1", got)
	}
	// (0.4*0.9 + 0.2*1 + 0.1*0) / 0.7
	exact := duplicate.Breakdown{Title: 0.9, Location: 1, Time: 0, NoDescription: true}
	if got := exact.Score(); got != 0.8 {
		t.Fatalf("score = %v, want 0.8", got)
	}
}

func TestDetectFlagsDescriptionlessEvents(t *testing.T) {
	existing := jazz("Jazz Night at Blue Note")
	existing.Description = ""
	d := duplicate.NewDetector(&fakeFinder{events: []*event.Event{existing}}, nil, nil)

	cand := jazz("Jazz Night @ Blue Note NYC")
	cand.Description = ""
	links, err := d.Detect(context.Background(), cand, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(links) != 1 {
		t.Fatalf("got %d links, want 1", len(links))
	}
	bd := links[0].Breakdown
	if !bd.NoDescription || bd.Description != 0 {
		t.Fatalf("unexpected breakdown: %+v", bd)
	}
	if links[0].Score < duplicate.Threshold {
		t.Fatalf("score %v below threshold", links[0].Score)
	}
}

func TestDetectOneSidedDescriptionIsIgnored(t *testing.T) {
	existing := jazz("Jazz Night at Blue Note")
	cand := jazz("Jazz Night @ Blue Note NYC")
	cand.Description = ""
	x := feature.NewExtractor(nil)

	bd := duplicate.Compare(cand, x.Extract(cand.FeatureInput()), existing, x.Extract(existing.FeatureInput()))
	if !bd.NoDescription {
		t.Fatalf("expected NoDescription, got %+v", bd)
	}
	if !duplicate.IsDuplicate(bd.Score()) {
		t.Fatalf("score %v below threshold", bd.Score())
	}
}

func TestDetectScoresEveryCandidateInWindow(t *testing.T) {
	var events []*event.Event
	for i := range 250 {
		events = append(events, &event.Event{
			ID:        id.NewEventID(),
			Title:     fmt.Sprintf("Pottery workshop %d", i),
			StartDate: jazzStart,
			Latitude:  ptr(40.7309),
			Longitude: ptr(-74.0003),
		})
	}
	twin := jazz("Jazz Night at Blue Note")
	events = append(events, twin)
	finder := &fakeFinder{events: events}
	d := duplicate.NewDetector(finder, nil, nil)

	links, err := d.Detect(context.Background(), jazz("Jazz Night at Blue Note"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if finder.last.Limit != 0 {
		t.Fatalf("candidate query capped at %d", finder.last.Limit)
	}
	if len(links) != 1 || links[0].DuplicateOfID != twin.ID {
		t.Fatalf("expected one link to the twin, got %+v", links)
	}
}

func TestDetectFlagsSimilarEvent(t *testing.T) {
	existing := jazz("Jazz Night at Blue Note")
	finder := &fakeFinder{events: []*event.Event{existing}}
	d := duplicate.NewDetector(finder, nil, nil)

	cand := jazz("Jazz Night @ Blue Note NYC")
	links, err := d.Detect(context.Background(), cand, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(links) != 1 {
		t.Fatalf("got %d links, want 1", len(links))
	}
	l := links[0]
	if l.EventID != cand.ID || l.DuplicateOfID != existing.ID {
		t.Fatalf("link points the wrong way: %+v", l)
	}
	if l.Status != duplicate.StatusDetected || l.Method != duplicate.MethodWeighted {
		t.Fatalf("unexpected link metadata: %+v", l)
	}
	if l.Score < duplicate.Threshold {
		t.Fatalf("score %v below threshold", l.Score)
	}
	if l.Breakdown.Time != 1 || l.Breakdown.Description < 0.999 {
		t.Fatalf("unexpected breakdown: %+v", l.Breakdown)
	}
	if !finder.last.Spatial() || finder.last.RadiusKm != duplicate.RadiusKm {
		t.Fatalf("expected a spatial query, got %+v", finder.last)
	}
}

func TestDetectIsDeterministic(t *testing.T) {
	existing := jazz("Jazz Night at Blue Note")
	cand := jazz("Jazz Night @ Blue Note NYC")
	x := feature.NewExtractor(nil)
	ef, cf := x.Extract(existing.FeatureInput()), x.Extract(cand.FeatureInput())

	first := duplicate.Compare(cand, cf, existing, ef).Score()
	for range 5 {
		if got := duplicate.Compare(cand, cf, existing, ef).Score(); got != first {
			t.Fatalf("score changed: %v != %v", got, first)
		}
	}
}

func TestDetectOneLinkPerMatch(t *testing.T) {
	a, b := jazz("Jazz Night at Blue Note"), jazz("Jazz Night at the Blue Note")
	unrelated := &event.Event{
		ID:          id.NewEventID(),
		Title:       "Pottery workshop",
		Description: "Hands-on wheel throwing.",
		StartDate:   jazzStart,
		Latitude:    ptr(40.7309),
		Longitude:   ptr(-74.0003),
	}
	d := duplicate.NewDetector(&fakeFinder{events: []*event.Event{a, b, unrelated}}, nil, nil)

	links, err := d.Detect(context.Background(), jazz("Jazz Night at Blue Note"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(links) != 2 {
		t.Fatalf("got %d links, want 2", len(links))
	}
}

func TestDetectWithoutCoordinatesRunsTimeOnly(t *testing.T) {
	existing := jazz("Jazz Night at Blue Note")
	existing.Latitude, existing.Longitude = nil, nil
	finder := &fakeFinder{events: []*event.Event{existing}}
	d := duplicate.NewDetector(finder, nil, nil)

	cand := jazz("Jazz Night at Blue Note")
	cand.Latitude, cand.Longitude = nil, nil
	links, err := d.Detect(context.Background(), cand, nil)
	if err != nil {
		t.Fatal(err)
	}
	if finder.last.Spatial() {
		t.Fatal("query should not be spatial without coordinates")
	}
	// identical text and time without location: 0.4 + 0.3 + 0.1
	if len(links) != 1 || links[0].Score != 0.8 {
		t.Fatalf("unexpected links: %+v", links)
	}
}

func TestDetectExcludesSelf(t *testing.T) {
	cand := jazz("Jazz Night at Blue Note")
	d := duplicate.NewDetector(&fakeFinder{events: []*event.Event{cand}}, nil, nil)
	links, err := d.Detect(context.Background(), cand, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(links) != 0 {
		t.Fatalf("event linked to itself: %+v", links)
	}
}
