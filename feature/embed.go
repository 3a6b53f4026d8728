// Package feature derives comparable vectors and signals from events.
package feature

import (
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// DefaultDimension is the vector size of the default embedder.
const DefaultDimension = 256

// Embedder maps text to a fixed-length vector. Implementations must be
// deterministic for identical input.
type Embedder interface {
	Embed(text string) []float64
	Dimension() int
}

// HashEmbedder is a signed feature-hashing embedder over lowercase word
// tokens. Vectors are L2-normalized; empty text yields the zero vector.
type HashEmbedder struct {
	dim int
}

// NewHashEmbedder returns a HashEmbedder of the given dimension.
func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = DefaultDimension
	}
	return &HashEmbedder{dim: dim}
}

// Dimension implements Embedder.
func (h *HashEmbedder) Dimension() int { return h.dim }

// Embed implements Embedder.
func (h *HashEmbedder) Embed(text string) []float64 {
	v := make([]float64, h.dim)
	for _, tok := range Tokenize(text) {
		f := fnv.New64a()
		_, _ = f.Write([]byte(tok))
		sum := f.Sum64()
		idx := int(sum % uint64(h.dim))
		if sum>>63 == 1 {
			v[idx]--
		} else {
			v[idx]++
		}
	}
	normalizeL2(v)
	return v
}

// Tokenize splits text into lowercase letter/digit runs.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Cosine returns the cosine similarity of a and b. Mismatched lengths or a
// zero vector yield 0.
func Cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	c := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return math.Max(-1, math.Min(1, c))
}

func normalizeL2(v []float64) {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	if sum == 0 {
		return
	}
	n := math.Sqrt(sum)
	for i := range v {
		v[i] /= n
	}
}
