package feature

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xraph/convene/category"
)

// Input is the event data features are derived from.
type Input struct {
	Title       string
	Description string
	Venue       string
	Address     string
	City        string
	Start       time.Time
	End         *time.Time
}

// TimeFeatures are derived from the event's UTC start and end.
type TimeFeatures struct {
	Hour          int     `json:"hour"`
	Weekday       int     `json:"weekday"`
	Month         int     `json:"month"`
	DurationHours float64 `json:"duration_hours"`
	Weekend       bool    `json:"weekend"`
	Evening       bool    `json:"evening"`
	Season        int     `json:"season"`
}

// TextFeatures are cheap counts and keyword hints.
type TextFeatures struct {
	TitleWords       int             `json:"title_words"`
	TitleChars       int             `json:"title_chars"`
	DescriptionWords int             `json:"description_words"`
	DescriptionChars int             `json:"description_chars"`
	Hints            map[string]bool `json:"hints,omitempty"`
}

// Features is the comparable representation of an event.
type Features struct {
	TitleVector       []float64    `json:"title_vector"`
	DescriptionVector []float64    `json:"description_vector"`
	LocationVector    []float64    `json:"location_vector"`
	Time              TimeFeatures `json:"time"`
	Text              TextFeatures `json:"text"`
}

// Extractor turns an Input into Features using an Embedder.
type Extractor struct {
	embedder Embedder
}

// NewExtractor returns an Extractor. A nil embedder uses HashEmbedder.
func NewExtractor(e Embedder) *Extractor {
	if e == nil {
		e = NewHashEmbedder(DefaultDimension)
	}
	return &Extractor{embedder: e}
}

// Embedder returns the configured embedder.
func (x *Extractor) Embedder() Embedder { return x.embedder }

// Extract computes Features for in.
func (x *Extractor) Extract(in Input) *Features {
	locText := strings.Join(nonEmpty(in.Venue, in.Address, in.City), " ")
	return &Features{
		TitleVector:       x.embedder.Embed(in.Title),
		DescriptionVector: x.embedder.Embed(in.Description),
		LocationVector:    x.embedder.Embed(locText),
		Time:              timeFeatures(in.Start, in.End),
		Text: TextFeatures{
			TitleWords:       len(strings.Fields(in.Title)),
			TitleChars:       utf8.RuneCountInString(in.Title),
			DescriptionWords: len(strings.Fields(in.Description)),
			DescriptionChars: utf8.RuneCountInString(in.Description),
			Hints:            category.Hints(in.Title + " " + in.Description),
		},
	}
}

func timeFeatures(start time.Time, end *time.Time) TimeFeatures {
	start = start.UTC()
	tf := TimeFeatures{
		Hour:    start.Hour(),
		Weekday: int(start.Weekday()),
		Month:   int(start.Month()),
		Weekend: start.Weekday() == time.Saturday || start.Weekday() == time.Sunday,
		Evening: start.Hour() >= 18,
		Season:  int(start.Month()) / 3,
	}
	if end != nil && end.After(start) {
		tf.DurationHours = end.Sub(start).Hours()
	}
	return tf
}

func nonEmpty(vals ...string) []string {
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
