// Package confidence scores how complete and trustworthy an event record is.
package confidence

import (
	"math"
	"strings"

	"github.com/xraph/convene/event"
	"github.com/xraph/convene/source"
)

const (
	baseline         = 0.5
	bonus            = 0.1
	duplicatePenalty = 0.2
)

// Score returns a value in [0,1] for evt as received from a source of kind.
// It is advisory and never gates storage.
func Score(evt *event.Event, kind source.Kind) float64 {
	s := baseline
	if strings.TrimSpace(evt.Title) != "" && strings.TrimSpace(evt.Description) != "" {
		s += bonus
	}
	if !evt.LocationID.IsNil() {
		s += bonus
	}
	if strings.TrimSpace(evt.Venue) != "" {
		s += bonus
	}
	if !evt.StartDate.IsZero() && evt.EndDate != nil {
		s += bonus
	}
	if kind == source.KindAPI {
		s += bonus
	}
	if len(evt.DuplicateIDs) > 0 {
		s -= duplicatePenalty
	}
	s = math.Max(0, math.Min(1, s))
	return math.Round(s*100) / 100
}
