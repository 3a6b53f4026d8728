package feature_test

import (
	"math"
	"testing"
	"time"

	"github.com/xraph/convene/feature"
)

func TestHashEmbedderDeterministic(t *testing.T) {
	e := feature.NewHashEmbedder(64)
	a := e.Embed("Jazz Night at Blue Note")
	b := e.Embed("Jazz Night at Blue Note")
	if len(a) != 64 {
		t.Fatalf("dimension = %d", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("vectors differ at %d", i)
		}
	}
	if c := feature.Cosine(a, b); math.Abs(c-1) > 1e-9 {
		t.Fatalf("self cosine = %v", c)
	}
}

func TestCosineZeroVector(t *testing.T) {
	e := feature.NewHashEmbedder(32)
	if c := feature.Cosine(e.Embed(""), e.Embed("anything")); c != 0 {
		t.Fatalf("cosine with zero vector = %v", c)
	}
	if c := feature.Cosine([]float64{1}, []float64{1, 0}); c != 0 {
		t.Fatalf("cosine of mismatched lengths = %v", c)
	}
}

func TestSimilarTitlesScoreHigh(t *testing.T) {
	e := feature.NewHashEmbedder(feature.DefaultDimension)
	c := feature.Cosine(e.Embed("Jazz Night at Blue Note"), e.Embed("Jazz Night @ Blue Note NYC"))
	if c < 0.5 {
		t.Fatalf("cosine = %v, expected strong overlap", c)
	}
}

func TestTimeFeatures(t *testing.T) {
	start := time.Date(2025, 7, 12, 20, 0, 0, 0, time.UTC) // Saturday
	end := start.Add(150 * time.Minute)
	f := feature.NewExtractor(nil).Extract(feature.Input{
		Title: "Jazz Night",
		Start: start,
		End:   &end,
	})
	tf := f.Time
	if tf.Hour != 20 || tf.Weekday != int(time.Saturday) || tf.Month != 7 {
		t.Fatalf("unexpected calendar fields: %+v", tf)
	}
	if !tf.Weekend || !tf.Evening {
		t.Fatalf("expected weekend evening: %+v", tf)
	}
	if tf.DurationHours != 2.5 {
		t.Fatalf("duration = %v", tf.DurationHours)
	}
	if tf.Season != 2 {
		t.Fatalf("season = %d", tf.Season)
	}
	if f.Text.TitleWords != 2 || f.Text.TitleChars != 10 {
		t.Fatalf("unexpected text features: %+v", f.Text)
	}
	if !f.Text.Hints["music"] {
		t.Fatal("expected music hint")
	}
}

func TestMissingEndHasZeroDuration(t *testing.T) {
	f := feature.NewExtractor(nil).Extract(feature.Input{
		Title: "Morning run",
		Start: time.Date(2025, 1, 6, 7, 0, 0, 0, time.UTC),
	})
	if f.Time.DurationHours != 0 || f.Time.Evening || f.Time.Weekend {
		t.Fatalf("unexpected: %+v", f.Time)
	}
	if len(f.DescriptionVector) != feature.DefaultDimension {
		t.Fatal("description vector must keep the fixed dimension")
	}
}
