// Package pipeline runs one raw payload through normalization, enrichment,
// duplicate detection and persistence.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/xraph/convene/category"
	"github.com/xraph/convene/confidence"
	"github.com/xraph/convene/duplicate"
	"github.com/xraph/convene/event"
	"github.com/xraph/convene/feature"
	"github.com/xraph/convene/id"
	"github.com/xraph/convene/internal/entity"
	"github.com/xraph/convene/location"
	"github.com/xraph/convene/normalize"
	"github.com/xraph/convene/observability"
	"github.com/xraph/convene/source"
)

// Store is the persistence the pipeline writes to.
type Store interface {
	duplicate.CandidateFinder
	UpsertEvent(ctx context.Context, evt *event.Event) (bool, error)
	GetEventByExternalID(ctx context.Context, srcID id.ID, externalID string) (*event.Event, error)
	CreateLinks(ctx context.Context, links []*duplicate.Link) (int, error)
}

// Config holds the pipeline stages. Nil stages get defaults, except
// Resolver: without one, events are stored without a location.
type Config struct {
	Normalizer *normalize.Normalizer
	Resolver   *location.Resolver
	Classifier category.Classifier
	Extractor  *feature.Extractor
	Detector   *duplicate.Detector
	Metrics    *observability.Metrics
	Tracer     *observability.Tracer
	Now        func() time.Time
}

// Outcome describes what one pass did.
type Outcome struct {
	EventID    id.ID
	ExternalID string
	Created    bool
	// Unchanged is set when the payload matched the stored content hash
	// and enrichment was reused.
	Unchanged  bool
	LocationID id.ID
	Duplicates int
}

// Pipeline processes payloads for both pulled and pushed events.
type Pipeline struct {
	store  Store
	config Config
	logger *slog.Logger
}

// New returns a Pipeline.
func New(store Store, cfg Config, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Normalizer == nil {
		cfg.Normalizer = normalize.New()
	}
	if cfg.Classifier == nil {
		cfg.Classifier = category.KeywordClassifier{}
	}
	if cfg.Extractor == nil {
		cfg.Extractor = feature.NewExtractor(nil)
	}
	if cfg.Detector == nil {
		cfg.Detector = duplicate.NewDetector(store, cfg.Extractor, logger)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Pipeline{store: store, config: cfg, logger: logger}
}

// Process normalizes raw as an event of src and stores the enriched
// result. Data errors wrap normalize.ErrInvalidPayload or
// normalize.ErrMissingField and should be skipped, not retried.
func (p *Pipeline) Process(ctx context.Context, src *source.EventSource, raw []byte) (*Outcome, error) {
	ctx, span := p.config.Tracer.StartEventSpan(ctx, src.ID.String())
	out, err := p.process(ctx, src, raw)

	var evtID string
	var created bool
	var dups int
	if out != nil {
		evtID, created, dups = out.EventID.String(), out.Created, out.Duplicates
	}
	p.config.Tracer.EndEventSpan(span, evtID, created, dups, err)
	if err == nil {
		p.config.Metrics.RecordEvent(out.Created, out.Unchanged, out.Duplicates)
	}
	return out, err
}

func (p *Pipeline) process(ctx context.Context, src *source.EventSource, raw []byte) (*Outcome, error) {
	ne, err := p.config.Normalizer.Normalize(src, raw)
	if err != nil {
		return nil, err
	}

	existing, err := p.store.GetEventByExternalID(ctx, src.ID, ne.ExternalID)
	if err != nil && !errors.Is(err, event.ErrNotFound) {
		return nil, fmt.Errorf("convene: load existing event: %w", err)
	}

	now := p.config.Now().UTC()
	evt := fromNormalized(ne)
	if existing != nil {
		evt.ID = existing.ID
		evt.Entity = existing.Entity
		evt.Touch(now)
	} else {
		evt.ID = id.NewEventID()
		evt.Entity = entity.At(now)
	}

	out := &Outcome{ExternalID: ne.ExternalID}
	var links []*duplicate.Link

	if existing != nil && existing.ContentHash == evt.ContentHash && existing.Features != nil {
		reuse(evt, existing)
		out.Unchanged = true
	} else {
		p.locate(ctx, evt, ne, existing)
		evt.Category = p.config.Classifier.Classify(evt.Title, evt.Description)
		evt.Features = p.config.Extractor.Extract(evt.FeatureInput())

		links, err = p.config.Detector.Detect(ctx, evt, evt.Features)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			evt.DuplicateIDs = slices.Clone(existing.DuplicateIDs)
		}
		for _, l := range links {
			if !slices.Contains(evt.DuplicateIDs, l.DuplicateOfID) {
				evt.DuplicateIDs = append(evt.DuplicateIDs, l.DuplicateOfID)
			}
		}
	}
	evt.Confidence = confidence.Score(evt, src.Kind)

	assigned := evt.ID
	created, err := p.store.UpsertEvent(ctx, evt)
	if err != nil {
		return nil, fmt.Errorf("convene: store event: %w", err)
	}
	if evt.ID != assigned {
		// A concurrent writer stored this event first.
		for _, l := range links {
			l.EventID = evt.ID
		}
	}

	if len(links) > 0 {
		n, err := p.store.CreateLinks(ctx, links)
		if err != nil {
			return nil, fmt.Errorf("convene: store duplicate links: %w", err)
		}
		out.Duplicates = n
	}

	out.EventID = evt.ID
	out.Created = created
	out.LocationID = evt.LocationID

	p.logger.DebugContext(ctx, "event processed",
		"event_id", evt.ID,
		"source_id", src.ID,
		"external_id", evt.ExternalID,
		"created", created,
		"duplicates", out.Duplicates,
		"confidence", evt.Confidence,
	)
	return out, nil
}

// locate resolves the venue. Failures are logged and the event is stored
// without a location, or with the location it already had.
func (p *Pipeline) locate(ctx context.Context, evt *event.Event, ne *normalize.NormalizedEvent, existing *event.Event) {
	if existing != nil {
		evt.LocationID = existing.LocationID
	}
	if p.config.Resolver == nil || (ne.Venue == "" && ne.Address == "") {
		return
	}

	loc, err := p.config.Resolver.Resolve(ctx, location.Query{
		Name:    ne.Venue,
		Address: ne.Address,
		City:    ne.City,
		State:   ne.State,
	})
	if err != nil {
		p.logger.WarnContext(ctx, "location not resolved",
			"source_id", ne.SourceID,
			"external_id", ne.ExternalID,
			"venue", ne.Venue,
			"error", err,
		)
		return
	}
	evt.LocationID = loc.ID
	if !evt.HasCoordinates() && loc.HasCoordinates() {
		lat, lon := *loc.Latitude, *loc.Longitude
		evt.Latitude, evt.Longitude = &lat, &lon
	}
}

func fromNormalized(ne *normalize.NormalizedEvent) *event.Event {
	return &event.Event{
		SourceID:    ne.SourceID,
		ExternalID:  ne.ExternalID,
		Title:       ne.Title,
		Description: ne.Description,
		StartDate:   ne.StartDate,
		EndDate:     ne.EndDate,
		Venue:       ne.Venue,
		Address:     ne.Address,
		URL:         ne.URL,
		Latitude:    ne.Latitude,
		Longitude:   ne.Longitude,
		RawPayload:  ne.RawPayload,
		ContentHash: ContentHash(ne),
	}
}

// reuse copies enrichment from an unchanged stored event.
func reuse(evt, existing *event.Event) {
	evt.LocationID = existing.LocationID
	if !evt.HasCoordinates() {
		evt.Latitude, evt.Longitude = existing.Latitude, existing.Longitude
	}
	evt.Category = existing.Category
	evt.Features = existing.Features
	evt.DuplicateIDs = slices.Clone(existing.DuplicateIDs)
}

// ContentHash fingerprints the fields that drive enrichment.
func ContentHash(ne *normalize.NormalizedEvent) string {
	end := ""
	if ne.EndDate != nil {
		end = ne.EndDate.UTC().Format(time.RFC3339)
	}
	coords := ""
	if ne.HasCoordinates() {
		coords = fmt.Sprintf("%.6f,%.6f", *ne.Latitude, *ne.Longitude)
	}
	parts := []string{
		ne.Title, ne.Description,
		ne.StartDate.UTC().Format(time.RFC3339), end,
		ne.Venue, ne.Address, ne.City, ne.State, ne.URL, coords,
	}
	h := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(h[:])
}
