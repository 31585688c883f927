package router

// densityCluster is a small DBSCAN-style density clustering pass: points
// within eps of each other (by Euclidean distance) and forming a
// neighborhood of at least minPts are grouped into one cluster; everything
// else is assigned to cluster -1 (noise) and later falls back to the
// overall agent stats rather than a per-cluster recommendation.
func densityCluster(points [][]float64, eps float64, minPts int) []int {
	n := len(points)
	labels := make([]int, n)
	for i := range labels {
		labels[i] = -1 // unvisited / noise until claimed
	}
	visited := make([]bool, n)

	neighbors := func(i int) []int {
		var out []int
		for j := 0; j < n; j++ {
			if i != j && euclidean(points[i], points[j]) <= eps {
				out = append(out, j)
			}
		}
		return out
	}

	cluster := 0
	for i := 0; i < n; i++ {
		if visited[i] {
			continue
		}
		visited[i] = true

		nbrs := neighbors(i)
		if len(nbrs)+1 < minPts {
			continue // stays noise
		}

		labels[i] = cluster
		queue := append([]int(nil), nbrs...)
		for len(queue) > 0 {
			j := queue[0]
			queue = queue[1:]
			if !visited[j] {
				visited[j] = true
				jn := neighbors(j)
				if len(jn)+1 >= minPts {
					queue = append(queue, jn...)
				}
			}
			if labels[j] == -1 {
				labels[j] = cluster
			}
		}
		cluster++
	}

	return labels
}

// centroidsFromLabels computes the mean point of each non-noise cluster
// label, used after densityCluster to populate a ClusterModel's Centroids
// (density clustering itself has no notion of a centroid).
func centroidsFromLabels(points [][]float64, labels []int) [][]float64 {
	if len(points) == 0 {
		return nil
	}
	maxLabel := -1
	for _, l := range labels {
		if l > maxLabel {
			maxLabel = l
		}
	}
	if maxLabel < 0 {
		return nil
	}

	dim := len(points[0])
	sums := make([][]float64, maxLabel+1)
	counts := make([]int, maxLabel+1)
	for c := range sums {
		sums[c] = make([]float64, dim)
	}
	for i, p := range points {
		l := labels[i]
		if l < 0 {
			continue
		}
		counts[l]++
		for d, v := range p {
			sums[l][d] += v
		}
	}

	centroids := make([][]float64, maxLabel+1)
	for c := range centroids {
		centroids[c] = make([]float64, dim)
		if counts[c] == 0 {
			continue
		}
		for d := range sums[c] {
			centroids[c][d] = sums[c][d] / float64(counts[c])
		}
	}
	return centroids
}
