package estimator_test

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/arbiterhub/fabric/internal/config"
	"github.com/arbiterhub/fabric/internal/estimator"
	"github.com/arbiterhub/fabric/internal/message"
)

// effortRank mirrors the unexported ranking estimator.Estimate uses
// internally, so this external test package can compare two levels.
func effortRank(e message.ReasoningEffort) int {
	switch e {
	case message.EffortHigh:
		return 2
	case message.EffortMedium:
		return 1
	default:
		return 0
	}
}

// TestEstimateMonotonicInWordCountProperty verifies §4.6's monotonicity
// property: for content built from keyword-free filler words (so no
// category weight changes between the two samples), adding more words
// never lowers the resulting effort level, since baseLevel's thresholds
// only move upward with word count and every bump rule only raises the
// level.
func TestEstimateMonotonicInWordCountProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	cfg := config.DefaultEstimatorConfig()

	properties.Property("effort level is non-decreasing as word count grows", prop.ForAll(
		func(base, extra int) bool {
			shorter := fillerWords(base)
			longer := fillerWords(base + extra)

			shortLevel, _ := estimator.Estimate(estimator.Input{Content: shorter}, cfg)
			longLevel, _ := estimator.Estimate(estimator.Input{Content: longer}, cfg)

			return effortRank(longLevel) >= effortRank(shortLevel)
		},
		gen.IntRange(0, 200),
		gen.IntRange(0, 200),
	))

	properties.TestingRun(t)
}

// fillerWords builds n space-separated instances of a word that appears
// in none of the default estimator categories' keyword lists, so the
// only thing driving the effort level is raw word count.
func fillerWords(n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = "lorem"
	}
	return strings.Join(words, " ")
}
