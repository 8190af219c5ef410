package ensemble

import (
	"fmt"
	"math"
)

// leafNode marks a terminal node's Feature index.
const leafNode = -1

// TreeNode is one node of a flattened decision tree. Internal nodes route on
// Feature/Threshold (strictly-less goes left); leaves have Feature == -1.
// Value holds the leaf score at leaves and the cover-weighted expected score
// at internal nodes, which makes per-path attribution exact.
type TreeNode struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Value     float64 `json:"value"`
}

// Tree is a single additive-ensemble member, stored as a flat node array with
// the root at index 0.
type Tree struct {
	Nodes []TreeNode `json:"nodes"`
}

// GBT is a fitted gradient-boosted binary classifier. Margins are additive in
// log-odds space; probabilities come out through the sigmoid.
type GBT struct {
	BaseScore float64 `json:"base_score"`
	Trees     []Tree  `json:"trees"`
}

// leaf walks x down the tree and returns the terminal node index.
func (t *Tree) leaf(x []float64) int {
	i := 0
	for t.Nodes[i].Feature != leafNode {
		n := t.Nodes[i]
		if x[n.Feature] < n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
	return i
}

// Margin returns the raw additive score (log-odds) for one feature row.
func (g *GBT) Margin(x []float64) float64 {
	m := g.BaseScore
	for i := range g.Trees {
		m += g.Trees[i].Nodes[g.Trees[i].leaf(x)].Value
	}
	return m
}

// PredictProba returns the fraud probability for one feature row.
func (g *GBT) PredictProba(x []float64) float64 {
	return sigmoid(g.Margin(x))
}

// Baseline is the population-expected margin: base score plus every tree's
// root expectation. Attribution contributions sum to Margin(x) - Baseline().
func (g *GBT) Baseline() float64 {
	b := g.BaseScore
	for i := range g.Trees {
		b += g.Trees[i].Nodes[0].Value
	}
	return b
}

// pathContribs accumulates per-feature margin contributions for one row by
// decomposing each root-to-leaf path: every split attributes the change in
// expected value to the feature it routed on.
func (g *GBT) pathContribs(x []float64, contribs []float64) {
	for ti := range g.Trees {
		t := &g.Trees[ti]
		i := 0
		for t.Nodes[i].Feature != leafNode {
			n := t.Nodes[i]
			next := n.Left
			if x[n.Feature] >= n.Threshold {
				next = n.Right
			}
			contribs[n.Feature] += t.Nodes[next].Value - n.Value
			i = next
		}
	}
}

func (g *GBT) validate(nFeatures int) error {
	if len(g.Trees) == 0 {
		return fmt.Errorf("classifier has no trees")
	}
	for ti := range g.Trees {
		t := &g.Trees[ti]
		if len(t.Nodes) == 0 {
			return fmt.Errorf("classifier tree %d is empty", ti)
		}
		for ni, n := range t.Nodes {
			if n.Feature == leafNode {
				continue
			}
			if n.Feature < 0 || n.Feature >= nFeatures {
				return fmt.Errorf("classifier tree %d node %d: feature %d out of range", ti, ni, n.Feature)
			}
			if n.Left <= ni || n.Left >= len(t.Nodes) || n.Right <= ni || n.Right >= len(t.Nodes) {
				return fmt.Errorf("classifier tree %d node %d: bad child links", ti, ni)
			}
		}
	}
	return nil
}

func sigmoid(m float64) float64 {
	return 1 / (1 + math.Exp(-m))
}
