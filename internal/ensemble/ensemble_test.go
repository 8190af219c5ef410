package ensemble

import (
	"math"
	"testing"

	"Frisk/internal/feature"
)

// testClassifier is a two-tree classifier over three features with
// cover-weighted expected values precomputed at every internal node.
func testClassifier() *GBT {
	return &GBT{
		BaseScore: 0,
		Trees: []Tree{
			{Nodes: []TreeNode{
				{Feature: 0, Threshold: 0.5, Left: 1, Right: 2, Value: -0.4},
				{Feature: leafNode, Value: -1.0},
				{Feature: leafNode, Value: 2.0},
			}},
			{Nodes: []TreeNode{
				{Feature: 1, Threshold: 0.1, Left: 1, Right: 2, Value: -0.04},
				{Feature: 2, Threshold: 3, Left: 3, Right: 4, Value: -0.3},
				{Feature: leafNode, Value: 1.0},
				{Feature: leafNode, Value: -0.6},
				{Feature: leafNode, Value: 0.6},
			}},
		},
	}
}

var testFeatures = []string{"amount_scaled", "merchant_freq", "last_5_count"}

func TestClassifierMargin(t *testing.T) {
	g := testClassifier()

	// x0 >= 0.5 -> right leaf 2.0; x1 >= 0.1 -> right leaf 1.0
	m := g.Margin([]float64{1.0, 0.5, 0})
	if m != 3.0 {
		t.Fatalf("margin = %v, want 3.0", m)
	}
	if p := g.PredictProba([]float64{1.0, 0.5, 0}); math.Abs(p-1/(1+math.Exp(-3.0))) > 1e-15 {
		t.Fatalf("proba = %v", p)
	}

	// x0 < 0.5 -> -1.0; x1 < 0.1, x2 < 3 -> -0.6
	if m := g.Margin([]float64{0, 0, 0}); m != -1.6 {
		t.Fatalf("margin = %v, want -1.6", m)
	}

	if b := g.Baseline(); math.Abs(b-(-0.44)) > 1e-15 {
		t.Fatalf("baseline = %v, want -0.44", b)
	}
}

func TestAttributionSumLaw(t *testing.T) {
	g := testClassifier()
	e := NewExplainer(g, testFeatures)

	rows := [][]float64{
		{1.0, 0.5, 0},
		{0, 0, 0},
		{0, 0, 5},
		{0.49, 0.09, 2.99},
		{100, -3, 7},
	}
	for i, x := range rows {
		vec := feature.NewVector()
		for j, name := range testFeatures {
			vec.SetNum(name, x[j])
		}
		exp, err := e.Explain("t", vec, len(testFeatures))
		if err != nil {
			t.Fatalf("row %d: %v", i, err)
		}
		var sum float64
		for _, a := range exp.Attributions {
			sum += a.Contribution
		}
		want := g.Margin(x) - e.Baseline()
		if math.Abs(sum-want) > 1e-12 {
			t.Fatalf("row %d: contributions sum to %v, margin-baseline is %v", i, sum, want)
		}
	}
}

func TestAttributionOrderingAndValues(t *testing.T) {
	g := testClassifier()
	e := NewExplainer(g, testFeatures)

	vec := feature.NewVector()
	vec.SetNum("amount_scaled", 1.0)
	vec.SetNum("merchant_freq", 0.5)
	vec.SetNum("last_5_count", 0)

	exp, err := e.Explain("txn-9", vec, 2)
	if err != nil {
		t.Fatalf("explain: %v", err)
	}
	if len(exp.Attributions) != 2 {
		t.Fatalf("got %d attributions, want 2", len(exp.Attributions))
	}
	// tree 1 gives amount_scaled 2.4, tree 2 gives merchant_freq 1.04
	if exp.Attributions[0].Feature != "amount_scaled" {
		t.Fatalf("top attribution = %q, want amount_scaled", exp.Attributions[0].Feature)
	}
	if math.Abs(exp.Attributions[0].Contribution-2.4) > 1e-12 {
		t.Fatalf("amount_scaled contribution = %v, want 2.4", exp.Attributions[0].Contribution)
	}
	if exp.Attributions[0].Value != 1.0 {
		t.Fatalf("attribution must carry the observed value, got %v", exp.Attributions[0].Value)
	}
	if exp.Attributions[1].Feature != "merchant_freq" {
		t.Fatalf("second attribution = %q, want merchant_freq", exp.Attributions[1].Feature)
	}
	if exp.Baseline != e.Baseline() {
		t.Fatalf("explanation baseline = %v, want %v", exp.Baseline, e.Baseline())
	}
}

func TestIsolationForest(t *testing.T) {
	f := &IsolationForest{
		SampleSize: 256,
		Trees: [][]ITreeNode{
			{
				{Feature: 0, Threshold: 0, Left: 1, Right: 2},
				{Feature: leafNode, Size: 1},
				{Feature: leafNode, Size: 128},
			},
			{
				{Feature: 0, Threshold: 0, Left: 1, Right: 2},
				{Feature: leafNode, Size: 2},
				{Feature: leafNode, Size: 200},
			},
		},
	}

	isolated := f.Anomaly([]float64{-1, 0, 0})
	typical := f.Anomaly([]float64{1, 0, 0})
	if isolated <= typical {
		t.Fatalf("easily isolated point scored %v, typical point %v", isolated, typical)
	}
	if isolated <= 0 {
		t.Fatalf("short-path point should score above the 0 midline, got %v", isolated)
	}

	// centered score stays in (-0.5, 0.5)
	for _, s := range []float64{isolated, typical} {
		if s <= -0.5 || s >= 0.5 {
			t.Fatalf("anomaly score %v out of range", s)
		}
	}
}

func TestAvgPathLength(t *testing.T) {
	if avgPathLength(0) != 0 || avgPathLength(1) != 0 {
		t.Fatalf("degenerate sizes must contribute no depth")
	}
	if avgPathLength(2) != 1 {
		t.Fatalf("c(2) = %v, want 1", avgPathLength(2))
	}
	if c := avgPathLength(256); c <= avgPathLength(128) {
		t.Fatalf("c(n) must grow with n")
	}
}

func testAutoencoder() *Autoencoder {
	return &Autoencoder{
		LatentLayer: 0,
		Layers: []Layer{
			{
				Weights:    [][]float64{{1, 0, 0}, {0, 1, 0}},
				Bias:       []float64{0, 0},
				Activation: "linear",
			},
			{
				Weights:    [][]float64{{1, 0}, {0, 1}, {0, 0}},
				Bias:       []float64{0, 0, 0},
				Activation: "linear",
			},
		},
	}
}

func TestAutoencoderReconstruct(t *testing.T) {
	a := testAutoencoder()
	latent, reconErr := a.Reconstruct([]float64{2, 3, 6})
	if len(latent) != 2 || latent[0] != 2 || latent[1] != 3 {
		t.Fatalf("latent = %v", latent)
	}
	// reconstruction drops the third input entirely: mse = 36/3
	if math.Abs(reconErr-12) > 1e-12 {
		t.Fatalf("recon error = %v, want 12", reconErr)
	}

	if _, perfect := a.Reconstruct([]float64{2, 3, 0}); perfect != 0 {
		t.Fatalf("representable input should reconstruct exactly, got %v", perfect)
	}
}

func TestReluClampsNegatives(t *testing.T) {
	l := Layer{Weights: [][]float64{{1}}, Bias: []float64{0}, Activation: "relu"}
	out := l.forward([]float64{-4})
	if out[0] != 0 {
		t.Fatalf("relu(-4) = %v", out[0])
	}
}

func TestKMeansAssign(t *testing.T) {
	k := &KMeans{Centroids: [][]float64{{0, 0}, {10, 10}}}
	if c := k.Assign([]float64{1, 1}); c != 0 {
		t.Fatalf("assign = %d, want 0", c)
	}
	if c := k.Assign([]float64{9, 9}); c != 1 {
		t.Fatalf("assign = %d, want 1", c)
	}
	// exact tie resolves to the lowest index
	if c := k.Assign([]float64{5, 5}); c != 0 {
		t.Fatalf("tie assign = %d, want 0", c)
	}
}

func TestStackerPredict(t *testing.T) {
	s := &Stacker{Weights: []float64{2, 1}, Intercept: -1}
	p, err := s.Predict([]float64{0.5, 1})
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if math.Abs(p-1/(1+math.Exp(-1.0))) > 1e-15 {
		t.Fatalf("proba = %v", p)
	}

	_, err = s.Predict([]float64{0.5})
	if _, ok := err.(*MetaContractError); !ok {
		t.Fatalf("expected MetaContractError on length mismatch, got %v", err)
	}
}

func TestAssembleMeta(t *testing.T) {
	order := []string{"clf_proba", "anomaly_score", "recon_error", "cluster_id", "amount_scaled"}
	vec := feature.NewVector()
	vec.SetNum("amount_scaled", 1.5)
	sig := BaseSignals{AnomalyScore: 0.12, ReconError: 3.4, ClusterID: 2}

	meta, err := AssembleServing(vec, order, 0.9, sig)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	want := []float64{0.9, 0.12, 3.4, 2, 1.5}
	for i := range want {
		if meta[i] != want[i] {
			t.Fatalf("meta[%d] = %v, want %v", i, meta[i], want[i])
		}
	}

	// the training path fills the identical slot, just from a different source
	trainMeta, err := AssembleTraining(vec, order, 0.9, sig)
	if err != nil {
		t.Fatalf("assemble training: %v", err)
	}
	for i := range meta {
		if trainMeta[i] != meta[i] {
			t.Fatalf("training and serving assembly diverge at position %d", i)
		}
	}
}

func TestAssembleMetaViolations(t *testing.T) {
	vec := feature.NewVector()
	vec.SetNum("amount_scaled", 1)

	_, err := AssembleServing(vec, []string{"clf_proba", "velocity_24h"}, 0.5, BaseSignals{})
	if _, ok := err.(*MetaContractError); !ok {
		t.Fatalf("expected MetaContractError for unresolvable name, got %v", err)
	}

	_, err = AssembleServing(vec, nil, 0.5, BaseSignals{})
	if _, ok := err.(*MetaContractError); !ok {
		t.Fatalf("expected MetaContractError for empty order, got %v", err)
	}
}

func TestModelSetRoundTrip(t *testing.T) {
	arts := &feature.Artifacts{
		ModelFeatures: map[string][]string{
			feature.ModelClassifier:  testFeatures,
			feature.ModelIForest:     testFeatures,
			feature.ModelAutoencoder: testFeatures,
			feature.ModelKMeans:      {"latent_0", "latent_1"},
		},
		MetaFeatures: []string{"clf_proba", "anomaly_score", "recon_error", "cluster_id", "amount_scaled"},
	}
	m := &ModelSet{
		Classifier: testClassifier(),
		IForest: &IsolationForest{
			SampleSize: 256,
			Trees: [][]ITreeNode{{
				{Feature: 0, Threshold: 0, Left: 1, Right: 2},
				{Feature: leafNode, Size: 1},
				{Feature: leafNode, Size: 128},
			}},
		},
		Autoencoder: testAutoencoder(),
		KMeans:      &KMeans{Centroids: [][]float64{{0, 0}, {10, 10}}},
		Stacker:     &Stacker{Weights: []float64{2, 1, 1, 0.5, 0.1}, Intercept: -1},
	}

	b, err := m.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeModelSet(b, arts)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := decoded.Classifier.Margin([]float64{1, 0.5, 0}); got != 3.0 {
		t.Fatalf("decoded classifier margin = %v", got)
	}

	// stacker width must match the frozen meta order
	m.Stacker = &Stacker{Weights: []float64{1}, Intercept: 0}
	b, _ = m.Encode()
	if _, err := DecodeModelSet(b, arts); err == nil {
		t.Fatalf("expected rejection of stacker/meta width mismatch")
	}
}
