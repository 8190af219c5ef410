package ensemble

import (
	"fmt"
	"math"
)

// ITreeNode is one node of an isolation tree. Leaves (Feature == -1) carry
// the number of training samples that reached them; the unbuilt-subtree
// correction extends their effective depth.
type ITreeNode struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Size      int     `json:"size"`
}

// IsolationForest is a fitted anomaly detector. Scores are centered so that
// 0 is the population-typical point: positive means easier to isolate than
// average, negative means harder.
type IsolationForest struct {
	Trees      [][]ITreeNode `json:"trees"`
	SampleSize int           `json:"sample_size"`
}

// pathLength walks x down one tree and returns the adjusted path length.
func pathLength(nodes []ITreeNode, x []float64) float64 {
	i, depth := 0, 0.0
	for nodes[i].Feature != leafNode {
		n := nodes[i]
		if x[n.Feature] < n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
		depth++
	}
	return depth + avgPathLength(nodes[i].Size)
}

// Anomaly returns the centered anomaly score s(x) - 0.5 where
// s(x) = 2^(-E[h(x)] / c(sampleSize)).
func (f *IsolationForest) Anomaly(x []float64) float64 {
	var sum float64
	for _, t := range f.Trees {
		sum += pathLength(t, x)
	}
	mean := sum / float64(len(f.Trees))
	s := math.Pow(2, -mean/avgPathLength(f.SampleSize))
	return s - 0.5
}

// avgPathLength is the expected unsuccessful-search depth of a BST over n
// points: c(n) = 2*H(n-1) - 2*(n-1)/n.
func avgPathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	}
	h := math.Log(float64(n-1)) + eulerGamma
	return 2*h - 2*float64(n-1)/float64(n)
}

const eulerGamma = 0.5772156649015329

func (f *IsolationForest) validate(nFeatures int) error {
	if len(f.Trees) == 0 {
		return fmt.Errorf("isolation forest has no trees")
	}
	if f.SampleSize < 2 {
		return fmt.Errorf("isolation forest sample size %d invalid", f.SampleSize)
	}
	for ti, nodes := range f.Trees {
		if len(nodes) == 0 {
			return fmt.Errorf("isolation tree %d is empty", ti)
		}
		for ni, n := range nodes {
			if n.Feature == leafNode {
				continue
			}
			if n.Feature < 0 || n.Feature >= nFeatures {
				return fmt.Errorf("isolation tree %d node %d: feature %d out of range", ti, ni, n.Feature)
			}
			if n.Left <= ni || n.Left >= len(nodes) || n.Right <= ni || n.Right >= len(nodes) {
				return fmt.Errorf("isolation tree %d node %d: bad child links", ti, ni)
			}
		}
	}
	return nil
}
