// Package category assigns coarse categories to events from their text.
package category

import "strings"

// Other is returned when no keyword matches.
const Other = "other"

// Classifier assigns a category to an event.
type Classifier interface {
	Classify(title, description string) string
}

// keywords is ordered; earlier categories win ties.
var keywords = []struct {
	name  string
	words []string
}{
	{"music", []string{"music", "concert", "jazz", "band", "dj", "live", "festival", "orchestra", "symphony", "gig", "rock", "hiphop", "choir"}},
	{"sports", []string{"sports", "game", "match", "race", "marathon", "tournament", "soccer", "football", "basketball", "baseball", "hockey", "yoga", "run"}},
	{"arts", []string{"art", "arts", "exhibit", "exhibition", "gallery", "theater", "theatre", "dance", "ballet", "film", "comedy", "poetry"}},
	{"food", []string{"food", "dinner", "tasting", "wine", "beer", "brunch", "cooking", "culinary", "market"}},
	{"technology", []string{"tech", "technology", "hackathon", "developer", "software", "startup", "ai", "data", "coding", "meetup"}},
	{"business", []string{"business", "networking", "conference", "summit", "entrepreneur", "marketing", "career", "investor"}},
	{"education", []string{"workshop", "class", "lecture", "seminar", "course", "training", "talk", "learn"}},
	{"family", []string{"family", "kids", "children", "parents", "toddler"}},
	{"health", []string{"health", "wellness", "fitness", "meditation", "mindfulness"}},
	{"community", []string{"community", "volunteer", "charity", "fundraiser", "neighborhood", "rally"}},
	{"nightlife", []string{"party", "club", "nightlife", "bar", "lounge"}},
}

// Names returns the known category names in priority order.
func Names() []string {
	out := make([]string, len(keywords))
	for i, k := range keywords {
		out[i] = k.name
	}
	return out
}

// Hints reports, per category, whether any of its keywords appear in text.
func Hints(text string) map[string]bool {
	words := wordSet(text)
	out := make(map[string]bool, len(keywords))
	for _, k := range keywords {
		out[k.name] = false
		for _, w := range k.words {
			if _, ok := words[w]; ok {
				out[k.name] = true
				break
			}
		}
	}
	return out
}

// KeywordClassifier picks the category with the most keyword hits.
type KeywordClassifier struct{}

// Classify implements Classifier.
func (KeywordClassifier) Classify(title, description string) string {
	words := strings.Fields(normalize(title + " " + description))
	best, bestHits := Other, 0
	for _, k := range keywords {
		hits := 0
		for _, w := range words {
			for _, kw := range k.words {
				if w == kw {
					hits++
				}
			}
		}
		if hits > bestHits {
			best, bestHits = k.name, hits
		}
	}
	return best
}

func wordSet(text string) map[string]struct{} {
	words := strings.Fields(normalize(text))
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

func normalize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return ' '
		}
	}, s)
}
