package router

import "math"

// AgentStats is one agent's recorded performance within a cluster.
type AgentStats struct {
	SuccessRate  float64
	MeanDuration float64 // seconds
	N            int
}

// ClusterModel is the router's immutable snapshot: centroids plus
// per-cluster, per-agent performance. Rebuilt from the outcome log and
// swapped atomically (see config.Snapshot).
type ClusterModel struct {
	Centroids [][]float64
	// Stats[clusterID][agent] = performance within that cluster.
	Stats map[int]map[string]AgentStats
	// Overall[agent] = performance across all clusters, used as the first
	// fallback when per-cluster data is too sparse.
	Overall map[string]AgentStats
}

// EmptyModel returns a ClusterModel with no clusters, used before the
// first rebuild completes.
func EmptyModel() ClusterModel {
	return ClusterModel{Stats: map[int]map[string]AgentStats{}, Overall: map[string]AgentStats{}}
}

// NearestCluster returns the index of the centroid closest to vec by
// Euclidean distance, or -1 if the model has no clusters yet.
func (m ClusterModel) NearestCluster(vec []float64) int {
	best := -1
	bestDist := math.Inf(1)
	for i, c := range m.Centroids {
		d := euclidean(vec, c)
		if d < bestDist {
			bestDist = d
			best = i
		}
	}
	return best
}

func euclidean(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
