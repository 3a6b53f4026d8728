package category_test

import (
	"testing"

	"github.com/xraph/convene/category"
)

func TestKeywordClassifier(t *testing.T) {
	tests := []struct {
		title, desc, want string
	}{
		{"Jazz Night at Blue Note", "Live jazz quartet", "music"},
		{"Go Hackathon", "Build software with other developers", "technology"},
		{"Sunday Brunch", "", "food"},
		{"Quarterly update", "", category.Other},
	}
	c := category.KeywordClassifier{}
	for _, tt := range tests {
		if got := c.Classify(tt.title, tt.desc); got != tt.want {
			t.Errorf("Classify(%q) = %q, want %q", tt.title, got, tt.want)
		}
	}
}

func TestHints(t *testing.T) {
	h := category.Hints("Family yoga in the park")
	if !h["family"] || !h["sports"] {
		t.Fatalf("expected family and sports hints, got %v", h)
	}
	if h["music"] {
		t.Fatal("unexpected music hint")
	}
	if len(h) != len(category.Names()) {
		t.Fatalf("hints has %d keys, want %d", len(h), len(category.Names()))
	}
}
