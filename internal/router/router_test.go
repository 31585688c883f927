package router_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arbiterhub/fabric/internal/config"
	"github.com/arbiterhub/fabric/internal/outcome"
	"github.com/arbiterhub/fabric/internal/router"
)

func TestHashEmbedder_DeterministicAndNormalized(t *testing.T) {
	e := router.NewHashEmbedder(16)
	v1, err := e.Embed(context.Background(), "deploy the new service to staging")
	require.NoError(t, err)
	v2, err := e.Embed(context.Background(), "deploy the new service to staging")
	require.NoError(t, err)
	require.Equal(t, v1, v2)

	var norm float64
	for _, x := range v1 {
		norm += x * x
	}
	require.InDelta(t, 1.0, norm, 1e-9)
}

func TestHashEmbedder_EmptyContentIsZeroVector(t *testing.T) {
	e := router.NewHashEmbedder(8)
	v, err := e.Embed(context.Background(), "")
	require.NoError(t, err)
	for _, x := range v {
		require.Equal(t, 0.0, x)
	}
}

func TestStandardizer_CentersAndScales(t *testing.T) {
	s := router.NewStandardizer(2)
	s.Update([]float64{0, 10})
	s.Update([]float64{10, 20})
	s.Update([]float64{20, 30})

	out := s.Standardize([]float64{10, 20})
	// Mean of each dimension is the middle sample, so its standardized
	// value should land close to zero.
	require.InDelta(t, 0.0, out[0], 1e-9)
	require.InDelta(t, 0.0, out[1], 1e-9)
}

func TestRebuild_KMeansSeparatesDistinctGroups(t *testing.T) {
	log := outcome.NewLog(100)
	for i := 0; i < 10; i++ {
		log.Append(outcome.Record{
			TaskID: "a", Agent: "moderator", Success: true,
			ActualDuration: 2 * time.Second,
			Features:       []float64{0, 0},
		})
	}
	for i := 0; i < 10; i++ {
		log.Append(outcome.Record{
			TaskID: "b", Agent: "refiner", Success: false,
			ActualDuration: 8 * time.Second,
			Features:       []float64{10, 10},
		})
	}

	cfg := config.DefaultRouterConfig()
	cfg.ClusterMethod = "kmeans"
	cfg.K = 2
	cfg.MinSamples = 1

	model := router.Rebuild(log, cfg)
	require.Len(t, model.Centroids, 2)

	near0 := model.NearestCluster([]float64{0, 0})
	near1 := model.NearestCluster([]float64{10, 10})
	require.NotEqual(t, near0, near1)

	stats0 := model.Stats[near0]
	require.Contains(t, stats0, "moderator")
	require.Equal(t, 1.0, stats0["moderator"].SuccessRate)
}

func TestRebuild_NoFeaturesReturnsEmptyModel(t *testing.T) {
	log := outcome.NewLog(10)
	log.Append(outcome.Record{TaskID: "a", Agent: "moderator"})
	cfg := config.DefaultRouterConfig()

	model := router.Rebuild(log, cfg)
	require.Nil(t, model.Centroids)
	require.Empty(t, model.Overall)
}

func TestRouter_RouteExploitsBestPerformingAgent(t *testing.T) {
	cfg := config.DefaultRouterConfig()
	cfg.MinSamples = 1
	cfg.EpsilonMin = 0
	cfg.EpsilonMax = 0 // disable exploration so the test is deterministic

	model := router.EmptyModel()
	model.Overall["slow"] = router.AgentStats{SuccessRate: 0.5, MeanDuration: 10, N: 5}
	model.Overall["fast"] = router.AgentStats{SuccessRate: 0.9, MeanDuration: 1, N: 5}

	r := router.NewRouter(cfg)
	decision := r.Route([]float64{0, 0}, []string{"slow", "fast"}, model, 1000)

	require.Equal(t, "fast", decision.Agent)
	require.Equal(t, "overall_fallback", decision.Method)
}

func TestRouter_RouteFallsBackToRoundRobinWithNoHistory(t *testing.T) {
	cfg := config.DefaultRouterConfig()
	cfg.EpsilonMin = 0
	cfg.EpsilonMax = 0

	model := router.EmptyModel()
	r := router.NewRouter(cfg)

	first := r.Route([]float64{0, 0}, []string{"a", "b"}, model, 0)
	second := r.Route([]float64{0, 0}, []string{"a", "b"}, model, 0)

	require.Equal(t, "round_robin", first.Method)
	require.Equal(t, "round_robin", second.Method)
	require.NotEqual(t, first.Agent, second.Agent)
}

func TestEpsilonDecaysTowardMinimum(t *testing.T) {
	cfg := config.DefaultRouterConfig()
	model := router.EmptyModel()
	r := router.NewRouter(cfg)

	early := r.Route([]float64{0, 0}, []string{"a"}, model, 0)
	late := r.Route([]float64{0, 0}, []string{"a"}, model, 100000)

	require.Greater(t, early.Epsilon, late.Epsilon)
	require.InDelta(t, cfg.EpsilonMin, late.Epsilon, 1e-6)
}
