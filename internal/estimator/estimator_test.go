package estimator_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arbiterhub/fabric/internal/config"
	"github.com/arbiterhub/fabric/internal/estimator"
	"github.com/arbiterhub/fabric/internal/message"
	"github.com/arbiterhub/fabric/internal/outcome"
)

func TestEstimate_ShortPlainContentIsLow(t *testing.T) {
	cfg := config.DefaultEstimatorConfig()
	level, diag := estimator.Estimate(estimator.Input{
		Content: "hello there",
		Intent:  message.IntentChat,
	}, cfg)
	require.Equal(t, message.EffortLow, level)
	require.Equal(t, 2, diag.WordCount)
}

func TestEstimate_RefineEventBumpsToHigh(t *testing.T) {
	cfg := config.DefaultEstimatorConfig()
	level, diag := estimator.Estimate(estimator.Input{
		Content: "ok",
		Event:   message.EventRefine,
	}, cfg)
	require.Equal(t, message.EffortHigh, level)
	require.Contains(t, diag.RulesFired, "event_refine_or_escalate")
}

func TestEstimate_LowConfidenceBumpsOneLevel(t *testing.T) {
	cfg := config.DefaultEstimatorConfig()
	low := 0.1
	level, _ := estimator.Estimate(estimator.Input{
		Content:    "short",
		Confidence: &low,
	}, cfg)
	require.NotEqual(t, message.EffortLow, level)
}

func TestEstimate_MultiCategoryOverlapBumps(t *testing.T) {
	cfg := config.DefaultEstimatorConfig()
	level, diag := estimator.Estimate(estimator.Input{
		Content: "please analyze and design a brand new architecture",
	}, cfg)
	require.GreaterOrEqual(t, len(diag.CategoryHits), 2)
	require.Contains(t, diag.RulesFired, "multi_category_overlap")
	require.NotEqual(t, message.EffortLow, level)
}

func TestAutoTune_NoOpBelowAnalysisAfter(t *testing.T) {
	cfg := config.DefaultEstimatorConfig()
	log := outcome.NewLog(100)
	log.Append(outcome.Record{PredictedEffort: "low", ActualDuration: time.Second, Success: true})

	_, tuned := estimator.AutoTune(cfg, log)
	require.False(t, tuned)
}

func TestAutoTune_RunsAfterThreshold(t *testing.T) {
	cfg := config.DefaultEstimatorConfig()
	cfg.Autotune.AnalysisAfter = 2
	log := outcome.NewLog(100)
	log.Append(outcome.Record{PredictedEffort: "low", ActualDuration: 50 * time.Second, Success: false})
	log.Append(outcome.Record{PredictedEffort: "low", ActualDuration: 60 * time.Second, Success: false})

	next, tuned := estimator.AutoTune(cfg, log)
	require.True(t, tuned)
	require.Equal(t, 0, log.SinceLastTune())
	require.NotNil(t, next.Categories)
}
