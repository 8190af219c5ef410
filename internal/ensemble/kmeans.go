package ensemble

import "fmt"

// KMeans holds fitted cluster centroids over the latent space. Only
// assignment runs at serving time.
type KMeans struct {
	Centroids [][]float64 `json:"centroids"`
}

// Assign returns the index of the nearest centroid by squared Euclidean
// distance. Ties resolve to the lowest index so assignment stays stable.
func (k *KMeans) Assign(x []float64) int {
	best, bestDist := 0, squaredDist(k.Centroids[0], x)
	for i := 1; i < len(k.Centroids); i++ {
		if d := squaredDist(k.Centroids[i], x); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

func squaredDist(a, b []float64) float64 {
	var s float64
	for i := range a {
		d := a[i] - b[i]
		s += d * d
	}
	return s
}

func (k *KMeans) validate(latentDim int) error {
	if len(k.Centroids) == 0 {
		return fmt.Errorf("kmeans has no centroids")
	}
	for i, c := range k.Centroids {
		if len(c) != latentDim {
			return fmt.Errorf("kmeans centroid %d: expected dim %d, got %d", i, latentDim, len(c))
		}
	}
	return nil
}
