package router

import (
	"github.com/arbiterhub/fabric/internal/config"
	"github.com/arbiterhub/fabric/internal/outcome"
)

const kmeansIterations = 25

// Rebuild recomputes a ClusterModel from the current contents of the
// outcome log: cluster the standardized feature vectors recorded at
// routing time, then aggregate per-cluster and overall agent performance.
// Records with no stored feature vector (e.g. appended before a router was
// configured) are skipped.
func Rebuild(log *outcome.Log, cfg config.RouterConfig) ClusterModel {
	records := log.Snapshot()

	var points [][]float64
	var withFeatures []outcome.Record
	for _, r := range records {
		if len(r.Features) == 0 {
			continue
		}
		points = append(points, r.Features)
		withFeatures = append(withFeatures, r)
	}
	if len(points) == 0 {
		return EmptyModel()
	}

	var centroids [][]float64
	var labels []int

	switch cfg.ClusterMethod {
	case "density":
		minPts := cfg.MinPts
		if minPts <= 0 {
			minPts = cfg.MinSamples
		}
		labels = densityCluster(points, cfg.Eps, minPts)
		centroids = centroidsFromLabels(points, labels)
	default: // "kmeans" and unrecognized values fall back to k-means
		k := cfg.K
		if k <= 0 {
			k = 1
		}
		centroids, labels = kmeans(points, k, kmeansIterations)
	}

	stats := map[int]map[string]AgentStats{}
	overall := map[string]aggStats{}
	perCluster := map[int]map[string]aggStats{}

	for i, r := range withFeatures {
		cluster := labels[i]
		if cluster < 0 {
			continue // noise points don't contribute to a per-cluster recommendation
		}
		if perCluster[cluster] == nil {
			perCluster[cluster] = map[string]aggStats{}
		}
		agg := perCluster[cluster][r.Agent]
		agg.add(r)
		perCluster[cluster][r.Agent] = agg

		oagg := overall[r.Agent]
		oagg.add(r)
		overall[r.Agent] = oagg
	}

	for cluster, agents := range perCluster {
		stats[cluster] = map[string]AgentStats{}
		for agent, agg := range agents {
			stats[cluster][agent] = agg.finalize()
		}
	}

	overallStats := map[string]AgentStats{}
	for agent, agg := range overall {
		overallStats[agent] = agg.finalize()
	}

	return ClusterModel{Centroids: centroids, Stats: stats, Overall: overallStats}
}

// aggStats accumulates raw counts before being finalized into an
// AgentStats rate/mean pair.
type aggStats struct {
	n         int
	successes int
	totalSecs float64
}

func (a *aggStats) add(r outcome.Record) {
	a.n++
	if r.Success {
		a.successes++
	}
	a.totalSecs += r.ActualDuration.Seconds()
}

func (a aggStats) finalize() AgentStats {
	if a.n == 0 {
		return AgentStats{}
	}
	return AgentStats{
		SuccessRate:  float64(a.successes) / float64(a.n),
		MeanDuration: a.totalSecs / float64(a.n),
		N:            a.n,
	}
}
