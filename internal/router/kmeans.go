package router

// kmeans runs Lloyd's algorithm for a fixed number of iterations (no
// external convergence-tolerance library exists anywhere in the retrieval
// pack, so this is hand-rolled). Returns centroids and the label assigned
// to each input point.
func kmeans(points [][]float64, k int, iterations int) ([][]float64, []int) {
	if len(points) == 0 || k <= 0 {
		return nil, nil
	}
	if k > len(points) {
		k = len(points)
	}

	centroids := make([][]float64, k)
	for i := 0; i < k; i++ {
		// Deterministic seeding: stride through the input rather than
		// random sampling, so rebuilds are reproducible given the same log.
		idx := (i * len(points)) / k
		centroids[i] = append([]float64(nil), points[idx]...)
	}

	labels := make([]int, len(points))

	for iter := 0; iter < iterations; iter++ {
		changed := false
		for i, p := range points {
			best, bestDist := 0, euclidean(p, centroids[0])
			for c := 1; c < k; c++ {
				d := euclidean(p, centroids[c])
				if d < bestDist {
					best, bestDist = c, d
				}
			}
			if labels[i] != best {
				changed = true
			}
			labels[i] = best
		}

		sums := make([][]float64, k)
		counts := make([]int, k)
		dim := len(points[0])
		for c := range sums {
			sums[c] = make([]float64, dim)
		}
		for i, p := range points {
			c := labels[i]
			counts[c]++
			for d, v := range p {
				sums[c][d] += v
			}
		}
		for c := 0; c < k; c++ {
			if counts[c] == 0 {
				continue // keep previous centroid for empty clusters
			}
			for d := range sums[c] {
				centroids[c][d] = sums[c][d] / float64(counts[c])
			}
		}

		if !changed {
			break
		}
	}

	return centroids, labels
}
