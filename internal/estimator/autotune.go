package estimator

import (
	"time"

	"github.com/arbiterhub/fabric/internal/config"
	"github.com/arbiterhub/fabric/internal/outcome"
)

// empiricalEffort bins an observed duration into low/medium/high using
// configurable cutoffs carried alongside the thresholds that drive the
// base-level calculation, so auto-tuning and estimation agree on what
// "high effort" means.
func empiricalEffort(d time.Duration, cfg config.EstimatorConfig) string {
	highCutoff := time.Duration(cfg.Thresholds.HighWordCount) * time.Second / 10
	mediumCutoff := time.Duration(cfg.Thresholds.MediumWordCount) * time.Second / 10
	switch {
	case d >= highCutoff:
		return "high"
	case d >= mediumCutoff:
		return "medium"
	default:
		return "low"
	}
}

// AutoTune recomputes per-category weights from the outcome log when at
// least analysis_after records have accumulated since the last cycle,
// nudging weights by at most ±10% to reduce
// |predicted_effort - empirical_effort| misclassification. It returns the
// new Cfg and whether a tune actually happened.
func AutoTune(current config.EstimatorConfig, log *outcome.Log) (config.EstimatorConfig, bool) {
	if !current.Autotune.Enabled {
		return current, false
	}
	if log.SinceLastTune() < current.Autotune.AnalysisAfter {
		return current, false
	}

	records := log.Snapshot()
	if !current.Autotune.RetainHistory && len(records) > current.Autotune.HistoryLimit {
		records = records[len(records)-current.Autotune.HistoryLimit:]
	}

	type stats struct {
		mismatches int
		total      int
	}
	byCategory := make(map[string]*stats)
	for name := range current.Categories {
		byCategory[name] = &stats{}
	}

	for _, rec := range records {
		empirical := empiricalEffort(rec.ActualDuration, current)
		mismatched := empirical != rec.PredictedEffort
		// Attribute the record to every enabled category; without the
		// original diagnostics we can't isolate which keyword category
		// drove the prediction, so all get the same signal and converge
		// on the categories that are consistently over/under-predicting
		// across the whole log.
		for name, cat := range current.Categories {
			if !cat.Enabled {
				continue
			}
			s := byCategory[name]
			s.total++
			if mismatched {
				s.mismatches++
			}
		}
	}

	next := current
	next.Categories = make(map[string]config.EstimatorCategory, len(current.Categories))
	for name, cat := range current.Categories {
		newCat := cat
		if s := byCategory[name]; s != nil && s.total > 0 {
			mismatchRate := float64(s.mismatches) / float64(s.total)
			delta := (mismatchRate - 0.5) * 0.2 // bounded to ±10% per cycle
			if delta > 0.1 {
				delta = 0.1
			}
			if delta < -0.1 {
				delta = -0.1
			}
			newCat.Weight = cat.Weight * (1 + delta)
			if newCat.Weight < 0.1 {
				newCat.Weight = 0.1
			}
		}
		next.Categories[name] = newCat
	}

	log.ResetSinceLastTune()
	return next, true
}
