package location_test

import (
	"math"
	"testing"

	"github.com/xraph/convene/location"
)

func TestNameSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		min  float64
		max  float64
	}{
		{"Blue Note", "blue note", 1, 1},
		{"Café Wha?", "Cafe Wha", 1, 1},
		{"Blue Note", "The Blue Note", 0.69, 0.7},
		{"Blue Note", "Comedy Cellar", 0, 0.3},
		{"", "", 1, 1},
	}
	for _, tt := range tests {
		got := location.NameSimilarity(tt.a, tt.b)
		if got < tt.min || got > tt.max {
			t.Errorf("NameSimilarity(%q, %q) = %v, want [%v, %v]", tt.a, tt.b, got, tt.min, tt.max)
		}
	}
}

func TestClassifyVenue(t *testing.T) {
	tests := []struct {
		name, address string
		want          location.VenueType
	}{
		{"Madison Square Garden Arena", "", location.VenueArena},
		{"Blue Note Jazz Club", "131 W 3rd St", location.VenueClub},
		{"Public Theater", "425 Lafayette St", location.VenueTheater},
		{"Brooklyn Public Library", "", location.VenueLibrary},
		{"Somewhere", "Prospect Park West", location.VenueOutdoor},
		{"Joe's Place", "12 Main St", location.VenueDefault},
	}
	for _, tt := range tests {
		if got := location.ClassifyVenue(tt.name, tt.address); got != tt.want {
			t.Errorf("ClassifyVenue(%q, %q) = %q, want %q", tt.name, tt.address, got, tt.want)
		}
	}
}

func TestDistance(t *testing.T) {
	// Times Square to Empire State Building is about 1.1 km.
	d := location.Distance(40.7580, -73.9855, 40.7484, -73.9857)
	if math.Abs(d-1067) > 30 {
		t.Fatalf("distance = %v m", d)
	}
	if location.Distance(10, 10, 10, 10) != 0 {
		t.Fatal("distance to self is not zero")
	}

	minLat, maxLat, minLon, maxLon := location.BoundingBox(40.75, -73.98, 1000)
	if !(minLat < 40.75 && maxLat > 40.75 && minLon < -73.98 && maxLon > -73.98) {
		t.Fatal("bounding box does not enclose its centre")
	}
	if location.Distance(40.75, -73.98, maxLat, -73.98) < 999 {
		t.Fatal("bounding box narrower than radius")
	}
}
