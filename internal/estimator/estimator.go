// Package estimator implements the reasoning effort estimator (§4.6): a
// pure function from content, event and intent to an effort label plus
// diagnostics, with auto-tuning of category weights from recorded
// outcomes.
package estimator

import (
	"regexp"
	"strings"

	"github.com/arbiterhub/fabric/internal/config"
	"github.com/arbiterhub/fabric/internal/message"
)

// Diagnostics records everything the estimator computed, for routing
// features and operator visibility.
type Diagnostics struct {
	WordCount       int
	CategoryHits    map[string]int
	ComplexityScore float64
	RulesFired      []string
}

// Input is everything Estimate needs besides the live Cfg snapshot.
type Input struct {
	Content    string
	Event      message.Event
	Intent     message.Intent
	Confidence *float64 // sender's stated confidence, if any
	DeadlinePressure float64 // 0..1, caller-supplied signal
}

var wordRe = regexp.MustCompile(`[A-Za-z0-9']+`)

// Estimate runs the algorithm in §4.6 against a single Cfg snapshot.
func Estimate(in Input, cfg config.EstimatorConfig) (message.ReasoningEffort, Diagnostics) {
	words := wordRe.FindAllString(strings.ToLower(in.Content), -1)
	wordCount := len(words)

	hits := make(map[string]int)
	var complexity float64
	categoriesWithHits := 0

	for name, cat := range cfg.Categories {
		if !cat.Enabled {
			continue
		}
		count := countKeywordHits(words, cat.Keywords)
		if count > 0 {
			hits[name] = count
			complexity += float64(count) * cat.Weight
			categoriesWithHits++
		}
	}

	level := baseLevel(wordCount, complexity, cfg)

	var rules []string
	bump := func(reason string, to message.ReasoningEffort) {
		if effortRank(to) > effortRank(level) {
			level = to
		}
		rules = append(rules, reason)
	}

	if in.Event == message.EventRefine || in.Event == message.EventEscalate {
		bump("event_refine_or_escalate", message.EffortHigh)
	}
	if in.Intent == message.IntentModifyTask {
		bump("intent_modify_task", message.EffortHigh)
	}
	if in.Confidence != nil && *in.Confidence < cfg.Overrides.LowConfidence {
		rules = append(rules, "low_confidence")
		level = bumpOne(level)
	}
	if in.DeadlinePressure > cfg.Overrides.DeadlinePressure {
		bump("deadline_pressure", message.EffortHigh)
	}
	if categoriesWithHits >= 2 {
		rules = append(rules, "multi_category_overlap")
		level = bumpOne(level)
	}

	return level, Diagnostics{
		WordCount:       wordCount,
		CategoryHits:    hits,
		ComplexityScore: complexity,
		RulesFired:      rules,
	}
}

func countKeywordHits(words []string, keywords []string) int {
	count := 0
	for _, kw := range keywords {
		kwWords := wordRe.FindAllString(strings.ToLower(kw), -1)
		if len(kwWords) == 0 {
			continue
		}
		count += countSubsequence(words, kwWords)
	}
	return count
}

// countSubsequence counts non-overlapping occurrences of needle as a
// contiguous word-boundary match inside haystack.
func countSubsequence(haystack, needle []string) int {
	if len(needle) == 0 || len(haystack) < len(needle) {
		return 0
	}
	count := 0
	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true
		for j, w := range needle {
			if haystack[i+j] != w {
				match = false
				break
			}
		}
		if match {
			count++
			i += len(needle) - 1
		}
	}
	return count
}

func baseLevel(wordCount int, complexity float64, cfg config.EstimatorConfig) message.ReasoningEffort {
	highCutoff := float64(cfg.Thresholds.HighWordCount) - complexity*cfg.Thresholds.HighScale
	mediumCutoff := float64(cfg.Thresholds.MediumWordCount) - complexity*cfg.Thresholds.MediumScale

	switch {
	case float64(wordCount) >= highCutoff:
		return message.EffortHigh
	case float64(wordCount) >= mediumCutoff:
		return message.EffortMedium
	default:
		return message.EffortLow
	}
}

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

func bumpOne(e message.ReasoningEffort) message.ReasoningEffort {
	switch e {
	case message.EffortLow:
		return message.EffortMedium
	default:
		return message.EffortHigh
	}
}
