// Package router implements task clustering and performance-weighted
// routing (§4.7): embed a task's content, assign it to the nearest
// cluster, and recommend an agent by blending per-cluster performance
// with a decaying exploration rate.
package router

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// Embedder turns task content into a fixed-dimensional real vector. The
// production deployment target is an external embedding service (out of
// scope here, per §4.7's Embedding Provider Adapter); HashEmbedder is the
// deterministic local implementation this repository ships so clustering
// and tests don't depend on one being configured.
type Embedder interface {
	Embed(ctx context.Context, content string) ([]float64, error)
}

// HashEmbedder embeds content by hashing every overlapping word unigram,
// bigram and trigram into buckets of a fixed-dimension vector — a
// standard deterministic fallback when no real embedding provider is
// wired up.
type HashEmbedder struct {
	Dim int
}

// NewHashEmbedder builds a HashEmbedder with the given output dimension.
func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = 32
	}
	return &HashEmbedder{Dim: dim}
}

func (h *HashEmbedder) Embed(_ context.Context, content string) ([]float64, error) {
	vec := make([]float64, h.Dim)
	words := strings.Fields(strings.ToLower(content))
	if len(words) == 0 {
		return vec, nil
	}

	for n := 1; n <= 3; n++ {
		for i := 0; i+n <= len(words); i++ {
			gram := strings.Join(words[i:i+n], " ")
			idx := fnvIndex(gram, h.Dim)
			vec[idx] += 1.0 / float64(n)
		}
	}

	normalize(vec)
	return vec, nil
}

func fnvIndex(s string, dim int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return int(h.Sum32() % uint32(dim))
}

func normalize(vec []float64) {
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] /= norm
	}
}
