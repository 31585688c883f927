package router

import (
	"math"
	"sort"
	"sync"
)

// Features is the vector routed tasks are clustered on: a content
// embedding concatenated with scaled (complexity_score, word_count,
// per-category hit counts).
type Features struct {
	Embedding       []float64
	ComplexityScore float64
	WordCount       int
	CategoryHits    map[string]int
}

// Vector flattens Features into a single slice, with category hits in a
// stable (sorted-key) order so the same category always lands in the
// same dimension.
func (f Features) Vector(categoryOrder []string) []float64 {
	out := make([]float64, 0, len(f.Embedding)+2+len(categoryOrder))
	out = append(out, f.Embedding...)
	out = append(out, f.ComplexityScore, float64(f.WordCount))
	for _, cat := range categoryOrder {
		out = append(out, float64(f.CategoryHits[cat]))
	}
	return out
}

// Standardizer maintains running mean/variance per dimension (Welford's
// online algorithm) so numeric features are standardized without storing
// the whole outcome history.
type Standardizer struct {
	mu    sync.Mutex
	n     int
	mean  []float64
	m2    []float64
}

func NewStandardizer(dims int) *Standardizer {
	return &Standardizer{mean: make([]float64, dims), m2: make([]float64, dims)}
}

func (s *Standardizer) Update(vec []float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(vec) != len(s.mean) {
		return
	}
	s.n++
	for i, x := range vec {
		delta := x - s.mean[i]
		s.mean[i] += delta / float64(s.n)
		delta2 := x - s.mean[i]
		s.m2[i] += delta * delta2
	}
}

// Standardize returns (x - mean) / stddev per dimension. Dimensions with
// no observed variance yet pass through unscaled.
func (s *Standardizer) Standardize(vec []float64) []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]float64, len(vec))
	for i, x := range vec {
		if i >= len(s.mean) || s.n < 2 {
			out[i] = x
			continue
		}
		variance := s.m2[i] / float64(s.n-1)
		if variance <= 0 {
			out[i] = x - s.mean[i]
			continue
		}
		out[i] = (x - s.mean[i]) / math.Sqrt(variance)
	}
	return out
}

// sortedCategoryNames returns category names in a stable order for
// consistent feature-vector layout.
func sortedCategoryNames(hits map[string]int) []string {
	names := make([]string, 0, len(hits))
	for name := range hits {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
