package usecase

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"Frisk/internal/domain/models"
	"Frisk/internal/ensemble"
	"Frisk/internal/feature"
	"Frisk/internal/repository"
	"Frisk/pkg/logger"
)

func i64p(v int64) *int64   { return &v }
func strp(v string) *string { return &v }

type stubMetrics struct {
	mu         sync.Mutex
	decisions  map[string]int
	errors     map[string]int
	violations int
}

func newStubMetrics() *stubMetrics {
	return &stubMetrics{decisions: make(map[string]int), errors: make(map[string]int)}
}

func (m *stubMetrics) RecordDecision(label string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decisions[label]++
}

func (m *stubMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[kind]++
}

func (m *stubMetrics) RecordScore(float64)           {}
func (m *stubMetrics) RecordLatency(string, float64) {}
func (m *stubMetrics) RecordContractViolation() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.violations++
}

type stubDecisionLog struct {
	mu      sync.Mutex
	entries []*models.Decision
	fail    bool
}

func (l *stubDecisionLog) Log(_ context.Context, d *models.Decision) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fail {
		return os.ErrClosed
	}
	l.entries = append(l.entries, d)
	return nil
}

func (l *stubDecisionLog) Close() error { return nil }

var testClfFeatures = []string{"amount_scaled", "merchant_freq", "last_5_count"}

func testBundle(t *testing.T) (*feature.Artifacts, *ensemble.ModelSet) {
	t.Helper()

	txns := make([]*models.Transaction, 0, 30)
	for i := 0; i < 30; i++ {
		txns = append(txns, &models.Transaction{
			Time:       float64(i * 600),
			Amount:     float64(5 + i*3),
			MerchantID: i64p(int64(i % 4)),
			DeviceType: strp("mobile"),
			AccountID:  i64p(int64(i % 6)),
		})
	}
	_, arts, err := feature.Fit(txns, "v-test")
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	arts.ModelFeatures = map[string][]string{
		feature.ModelClassifier:  testClfFeatures,
		feature.ModelIForest:     testClfFeatures,
		feature.ModelAutoencoder: testClfFeatures,
		feature.ModelKMeans:      {"latent_0", "latent_1"},
	}
	arts.MetaFeatures = []string{"clf_proba", "anomaly_score", "recon_error", "cluster_id", "amount_scaled"}
	arts.Threshold = 0.5

	set := &ensemble.ModelSet{
		Classifier: &ensemble.GBT{
			BaseScore: 0,
			Trees: []ensemble.Tree{{Nodes: []ensemble.TreeNode{
				{Feature: 0, Threshold: 1.0, Left: 1, Right: 2, Value: -0.2},
				{Feature: -1, Value: -1.0},
				{Feature: -1, Value: 1.5},
			}}},
		},
		IForest: &ensemble.IsolationForest{
			SampleSize: 64,
			Trees: [][]ensemble.ITreeNode{{
				{Feature: 0, Threshold: 2.0, Left: 1, Right: 2},
				{Feature: -1, Size: 40},
				{Feature: -1, Size: 2},
			}},
		},
		Autoencoder: &ensemble.Autoencoder{
			LatentLayer: 0,
			Layers: []ensemble.Layer{
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
		},
		KMeans:  &ensemble.KMeans{Centroids: [][]float64{{0, 0}, {5, 5}}},
		Stacker: &ensemble.Stacker{Weights: []float64{3, 1, 0.5, 0.1, 0.2}, Intercept: -2},
	}
	if err := set.Validate(arts); err != nil {
		t.Fatalf("model set: %v", err)
	}
	return arts, set
}

func testEngine(t *testing.T, decisions *stubDecisionLog) (*ScoringEngine, *stubMetrics) {
	t.Helper()
	arts, set := testBundle(t)
	l, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	m := newStubMetrics()
	var dl *stubDecisionLog
	if decisions != nil {
		dl = decisions
	}
	var engine *ScoringEngine
	if dl != nil {
		engine, err = NewScoringEngine(arts, set, nil, l, m, dl, nil)
	} else {
		engine, err = NewScoringEngine(arts, set, nil, l, m, nil, nil)
	}
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	return engine, m
}

func TestPredictEndToEnd(t *testing.T) {
	dl := &stubDecisionLog{}
	engine, m := testEngine(t, dl)

	d, err := engine.Predict(context.Background(), &models.Transaction{
		TxnID: "txn-1", Time: 3600, Amount: 42.50, AccountID: i64p(3),
	})
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if d.Probability < 0 || d.Probability > 1 {
		t.Fatalf("probability out of range: %v", d.Probability)
	}
	wantLabel := models.LabelLegit
	if d.Probability >= 0.5 {
		wantLabel = models.LabelFraud
	}
	if d.Label != wantLabel {
		t.Fatalf("label %q inconsistent with probability %v and threshold 0.5", d.Label, d.Probability)
	}
	if d.Signals.ClfProba <= 0 || d.Signals.ClfProba >= 1 {
		t.Fatalf("clf_proba out of range: %v", d.Signals.ClfProba)
	}
	if d.Signals.AnomalyScore <= -0.5 || d.Signals.AnomalyScore >= 0.5 {
		t.Fatalf("anomaly score out of range: %v", d.Signals.AnomalyScore)
	}
	if len(d.Signals.Latent) != 2 {
		t.Fatalf("latent dim = %d, want 2", len(d.Signals.Latent))
	}

	if len(dl.entries) != 1 || dl.entries[0].TxnID != "txn-1" {
		t.Fatalf("decision not logged: %+v", dl.entries)
	}
	if m.decisions[d.Label] != 1 {
		t.Fatalf("decision metric not recorded")
	}
}

func TestPredictDeterministic(t *testing.T) {
	engine, _ := testEngine(t, nil)
	txn := &models.Transaction{TxnID: "txn-det", Time: 7200, Amount: 99.99}

	a, err := engine.Predict(context.Background(), txn)
	if err != nil {
		t.Fatalf("first predict: %v", err)
	}
	b, err := engine.Predict(context.Background(), txn)
	if err != nil {
		t.Fatalf("second predict: %v", err)
	}
	if a.Probability != b.Probability || a.Label != b.Label {
		t.Fatalf("identical record scored differently: %v/%s vs %v/%s",
			a.Probability, a.Label, b.Probability, b.Label)
	}
}

func TestPredictRejectsBadInput(t *testing.T) {
	engine, m := testEngine(t, nil)

	_, err := engine.Predict(context.Background(), &models.Transaction{Time: -1, Amount: 10})
	if err == nil {
		t.Fatalf("expected rejection of negative time")
	}
	if m.errors["feature_apply"] != 1 {
		t.Fatalf("feature_apply error not recorded")
	}
}

func TestPredictSurvivesDecisionLogFailure(t *testing.T) {
	dl := &stubDecisionLog{fail: true}
	engine, m := testEngine(t, dl)

	_, err := engine.Predict(context.Background(), &models.Transaction{TxnID: "t", Time: 60, Amount: 5})
	if err != nil {
		t.Fatalf("predict must not fail on decision log error: %v", err)
	}
	if m.errors["decision_log"] != 1 {
		t.Fatalf("decision log error not recorded")
	}
}

func TestExplainTopK(t *testing.T) {
	engine, _ := testEngine(t, nil)
	txn := &models.Transaction{TxnID: "txn-exp", Time: 1800, Amount: 250}

	exp, err := engine.Explain(context.Background(), txn, 2)
	if err != nil {
		t.Fatalf("explain: %v", err)
	}
	if len(exp.Attributions) != 2 {
		t.Fatalf("got %d attributions, want 2", len(exp.Attributions))
	}
	for i := 1; i < len(exp.Attributions); i++ {
		if math.Abs(exp.Attributions[i].Contribution) > math.Abs(exp.Attributions[i-1].Contribution) {
			t.Fatalf("attributions not ordered by |contribution|")
		}
	}
	if exp.Probability < 0 || exp.Probability > 1 {
		t.Fatalf("probability out of range: %v", exp.Probability)
	}
}

func TestEngineRequiresBundle(t *testing.T) {
	l, _ := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	if _, err := NewScoringEngine(nil, nil, nil, l, newStubMetrics(), nil, nil); err == nil {
		t.Fatalf("expected error without bundle")
	}
}

func TestLoadBundleRoundTrip(t *testing.T) {
	arts, set := testBundle(t)
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "v-test"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	ab, err := arts.Encode()
	if err != nil {
		t.Fatalf("encode artifacts: %v", err)
	}
	mb, err := set.Encode()
	if err != nil {
		t.Fatalf("encode models: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "v-test", "artifacts.json"), ab, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "v-test", "models.json"), mb, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	store := repository.NewFileArtifactStore(dir)
	gotArts, gotSet, err := LoadBundle(context.Background(), store, "v-test")
	if err != nil {
		t.Fatalf("load bundle: %v", err)
	}
	if gotArts.Version != "v-test" {
		t.Fatalf("version = %q", gotArts.Version)
	}
	if len(gotSet.Stacker.Weights) != len(arts.MetaFeatures) {
		t.Fatalf("stacker weights lost in round trip")
	}

	if _, _, err := LoadBundle(context.Background(), store, "v-missing"); err == nil {
		t.Fatalf("expected error for missing version")
	}
}

func TestKafkaTxnHandlerScoresMessages(t *testing.T) {
	dl := &stubDecisionLog{}
	engine, m := testEngine(t, dl)
	h := NewKafkaTxnHandler("txns", engine, nil, m)

	msg, _ := json.Marshal(map[string]interface{}{
		"txn_id": "k-1",
		"time":   1200.0,
		"amount": 77.0,
	})
	if err := h.Handle(context.Background(), msg); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(dl.entries) != 1 || dl.entries[0].TxnID != "k-1" {
		t.Fatalf("message not scored: %+v", dl.entries)
	}

	if err := h.Handle(context.Background(), []byte("{not json")); err == nil {
		t.Fatalf("expected unmarshal error")
	}
	if m.errors["consumer_unmarshal"] != 1 {
		t.Fatalf("unmarshal error not recorded")
	}
}
