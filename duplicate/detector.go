package duplicate

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/xraph/convene/event"
	"github.com/xraph/convene/feature"
	"github.com/xraph/convene/id"
	"github.com/xraph/convene/internal/entity"
	"github.com/xraph/convene/location"
)

const (
	// RadiusKm bounds the spatial candidate search.
	RadiusKm = 5.0
	// Threshold is the minimum score that produces a link.
	Threshold = 0.8

	weightTitle       = 0.4
	weightDescription = 0.3
	weightLocation    = 0.2
	weightTime        = 0.1

	timeScale = 24 * time.Hour
)

// IsDuplicate reports whether score reaches the threshold.
func IsDuplicate(score float64) bool {
	return score >= Threshold
}

// CandidateFinder is the subset of event.Store the detector reads.
type CandidateFinder interface {
	FindCandidates(ctx context.Context, q event.CandidateQuery) ([]*event.Event, error)
}

// Detector finds stored events similar to a candidate.
type Detector struct {
	finder    CandidateFinder
	extractor *feature.Extractor
	logger    *slog.Logger
	now       func() time.Time
}

// NewDetector returns a Detector. Stored events without features are
// re-extracted with extractor.
func NewDetector(finder CandidateFinder, extractor *feature.Extractor, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	if extractor == nil {
		extractor = feature.NewExtractor(nil)
	}
	return &Detector{finder: finder, extractor: extractor, logger: logger, now: time.Now}
}

// SetClock overrides the time source used for link timestamps.
func (d *Detector) SetClock(now func() time.Time) { d.now = now }

// Detect returns one link per stored event scoring at or above Threshold.
// Every event in the time window and radius is scored. The candidate must
// carry its final ID so it can exclude itself.
func (d *Detector) Detect(ctx context.Context, evt *event.Event, f *feature.Features) ([]*Link, error) {
	if f == nil {
		f = d.extractor.Extract(evt.FeatureInput())
	}

	q := event.CandidateQuery{
		From:      evt.StartDate,
		To:        evt.EffectiveEnd(),
		ExcludeID: evt.ID,
	}
	if evt.HasCoordinates() {
		q.Latitude, q.Longitude, q.RadiusKm = evt.Latitude, evt.Longitude, RadiusKm
	}

	candidates, err := d.finder.FindCandidates(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("convene: find duplicate candidates: %w", err)
	}

	var links []*Link
	for _, cand := range candidates {
		if cand.ID == evt.ID {
			continue
		}
		cf := cand.Features
		if cf == nil {
			cf = d.extractor.Extract(cand.FeatureInput())
		}
		bd := Compare(evt, f, cand, cf)
		score := bd.Score()
		if !IsDuplicate(score) {
			continue
		}
		links = append(links, &Link{
			Entity:        entity.At(d.now()),
			ID:            id.NewLinkID(),
			EventID:       evt.ID,
			DuplicateOfID: cand.ID,
			Score:         score,
			Breakdown:     bd,
			Method:        MethodWeighted,
			Status:        StatusDetected,
		})
		d.logger.DebugContext(ctx, "duplicate detected",
			"event_id", evt.ID,
			"duplicate_of", cand.ID,
			"score", score,
		)
	}
	return links, nil
}

// Compare computes the per-field breakdown for a pair of events. A pair
// where either side has no description is marked NoDescription.
func Compare(a *event.Event, af *feature.Features, b *event.Event, bf *feature.Features) Breakdown {
	bd := Breakdown{
		Title:    clamp01(feature.Cosine(af.TitleVector, bf.TitleVector)),
		Location: locationScore(a, b),
		Time:     timeScore(a.StartDate, b.StartDate),
	}
	if !hasDescription(a, af) || !hasDescription(b, bf) {
		bd.NoDescription = true
		return bd
	}
	bd.Description = clamp01(feature.Cosine(af.DescriptionVector, bf.DescriptionVector))
	return bd
}

// Score returns the weighted sum, rounded to six decimals so equal inputs
// compare equal at the threshold. Without descriptions the remaining
// weights are rescaled to sum to 1.
func (b Breakdown) Score() float64 {
	s := b.Title*weightTitle + b.Location*weightLocation + b.Time*weightTime
	if b.NoDescription {
		s /= weightTitle + weightLocation + weightTime
	} else {
		s += b.Description * weightDescription
	}
	return math.Round(clamp01(s)*1e6) / 1e6
}

func hasDescription(e *event.Event, f *feature.Features) bool {
	if strings.TrimSpace(e.Description) == "" {
		return false
	}
	for _, v := range f.DescriptionVector {
		if v != 0 {
			return true
		}
	}
	return false
}

// locationScore is 1 for the same resolved location, decays linearly to 0
// at RadiusKm, and is 0 when either side lacks coordinates.
func locationScore(a, b *event.Event) float64 {
	if !a.LocationID.IsNil() && a.LocationID == b.LocationID {
		return 1
	}
	if !a.HasCoordinates() || !b.HasCoordinates() {
		return 0
	}
	km := location.Distance(*a.Latitude, *a.Longitude, *b.Latitude, *b.Longitude) / 1000
	return clamp01(1 - km/RadiusKm)
}

func timeScore(a, b time.Time) float64 {
	delta := a.Sub(b)
	if delta < 0 {
		delta = -delta
	}
	return clamp01(1 - float64(delta)/float64(timeScale))
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
