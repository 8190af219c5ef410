package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"Frisk/internal/domain/models"
	"Frisk/internal/ensemble"
	"Frisk/internal/feature"
	"Frisk/internal/usecase"
	"Frisk/pkg/logger"

	"github.com/labstack/echo/v4"
)

type noopMetrics struct{}

func (noopMetrics) RecordDecision(string)         {}
func (noopMetrics) RecordError(string)            {}
func (noopMetrics) RecordScore(float64)           {}
func (noopMetrics) RecordLatency(string, float64) {}
func (noopMetrics) RecordContractViolation()      {}

type stubStorage struct {
	txns []*models.Transaction
	from time.Time
	to   time.Time
}

func (s *stubStorage) Init(context.Context) error                       { return nil }
func (s *stubStorage) Store(context.Context, *models.Transaction) error { return nil }
func (s *stubStorage) StoreBatch(context.Context, []*models.Transaction) error {
	return nil
}

func (s *stubStorage) Query(_ context.Context, from, to time.Time, limit int) ([]*models.Transaction, error) {
	s.from, s.to = from, to
	if limit < len(s.txns) {
		return s.txns[:limit], nil
	}
	return s.txns, nil
}

func (s *stubStorage) Health(context.Context) error { return nil }
func (s *stubStorage) Close() error                 { return nil }

func testHandler(t *testing.T) *ScoreEchoHandler {
	t.Helper()

	txns := make([]*models.Transaction, 0, 20)
	for i := 0; i < 20; i++ {
		txns = append(txns, &models.Transaction{
			Time:   float64(i * 60),
			Amount: float64(10 + i),
		})
	}
	_, arts, err := feature.Fit(txns, "v-api")
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	clf := []string{"amount_scaled", "hour", "last_5_count"}
	arts.ModelFeatures = map[string][]string{
		feature.ModelClassifier:  clf,
		feature.ModelIForest:     clf,
		feature.ModelAutoencoder: clf,
		feature.ModelKMeans:      {"latent_0"},
	}
	arts.MetaFeatures = []string{"clf_proba", "anomaly_score", "recon_error", "cluster_id"}
	arts.Threshold = 0.5

	set := &ensemble.ModelSet{
		Classifier: &ensemble.GBT{Trees: []ensemble.Tree{{Nodes: []ensemble.TreeNode{
			{Feature: 0, Threshold: 0, Left: 1, Right: 2, Value: 0},
			{Feature: -1, Value: -0.5},
			{Feature: -1, Value: 0.5},
		}}}},
		IForest: &ensemble.IsolationForest{SampleSize: 32, Trees: [][]ensemble.ITreeNode{{
			{Feature: 1, Threshold: 12, Left: 1, Right: 2},
			{Feature: -1, Size: 16},
			{Feature: -1, Size: 4},
		}}},
		Autoencoder: &ensemble.Autoencoder{LatentLayer: 0, Layers: []ensemble.Layer{
			{Weights: [][]float64{{1, 0, 0}}, Bias: []float64{0}, Activation: "linear"},
			{Weights: [][]float64{{1}, {0}, {0}}, Bias: []float64{0, 0, 0}, Activation: "linear"},
		}},
		KMeans:  &ensemble.KMeans{Centroids: [][]float64{{0}, {3}}},
		Stacker: &ensemble.Stacker{Weights: []float64{2, 1, 0.5, 0.1}, Intercept: -1},
	}

	l, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	engine, err := usecase.NewScoringEngine(arts, set, nil, l, noopMetrics{}, nil, nil)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	return NewScoreEchoHandler(l, engine, nil)
}

func doRequest(t *testing.T, h echo.HandlerFunc, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := h(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	return rec
}

func TestPredictEndpoint(t *testing.T) {
	h := testHandler(t)
	rec := doRequest(t, h.Predict, http.MethodPost, "/api/predict",
		`{"txn_id":"t-1","time":100000,"amount":149.62}`)

	var env struct {
		Status int                    `json:"status"`
		Data   models.PredictResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if env.Status != http.StatusOK {
		t.Fatalf("status = %d, body %s", env.Status, rec.Body.String())
	}
	if env.Data.TxnID != "t-1" {
		t.Fatalf("txn_id = %q", env.Data.TxnID)
	}
	if env.Data.Probability < 0 || env.Data.Probability > 1 {
		t.Fatalf("probability out of range: %v", env.Data.Probability)
	}
	if env.Data.Label != models.LabelFraud && env.Data.Label != models.LabelLegit {
		t.Fatalf("unexpected label %q", env.Data.Label)
	}
}

func TestPredictEndpointValidation(t *testing.T) {
	h := testHandler(t)

	// missing amount
	rec := doRequest(t, h.Predict, http.MethodPost, "/api/predict", `{"time":100}`)
	var env struct {
		Status int `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if env.Status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", env.Status)
	}

	// unknown device type
	rec = doRequest(t, h.Predict, http.MethodPost, "/api/predict",
		`{"time":100,"amount":5,"device_type":"smartwatch"}`)
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if env.Status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", env.Status)
	}
}

func TestExplainEndpoint(t *testing.T) {
	h := testHandler(t)
	rec := doRequest(t, h.Explain, http.MethodPost, "/api/explain",
		`{"txn_id":"t-2","time":5000,"amount":20,"k":2}`)

	var env struct {
		Status int                `json:"status"`
		Data   models.Explanation `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if env.Status != http.StatusOK {
		t.Fatalf("status = %d, body %s", env.Status, rec.Body.String())
	}
	if len(env.Data.Attributions) != 2 {
		t.Fatalf("got %d attributions, want 2", len(env.Data.Attributions))
	}
}

func TestExplainEndpointDefaultK(t *testing.T) {
	h := testHandler(t)
	rec := doRequest(t, h.Explain, http.MethodPost, "/api/explain",
		`{"txn_id":"t-3","time":5000,"amount":20}`)

	var env struct {
		Status int                `json:"status"`
		Data   models.Explanation `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if env.Status != http.StatusOK {
		t.Fatalf("status = %d", env.Status)
	}
	// default k is 5 but the classifier only has 3 features
	if len(env.Data.Attributions) != 3 {
		t.Fatalf("got %d attributions, want 3", len(env.Data.Attributions))
	}
}

func TestTransactionsEndpoint(t *testing.T) {
	h := testHandler(t)
	store := &stubStorage{txns: []*models.Transaction{
		{TxnID: "t-1", Time: 10, Amount: 1},
		{TxnID: "t-2", Time: 20, Amount: 2},
		{TxnID: "t-3", Time: 30, Amount: 3},
	}}
	h.storage = store

	rec := doRequest(t, h.Transactions, http.MethodGet, "/api/transactions?limit=2", "")
	var env struct {
		Status int `json:"status"`
		Data   struct {
			Rows  []*models.Transaction `json:"rows"`
			Total int64                 `json:"total"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if env.Status != http.StatusOK {
		t.Fatalf("status = %d, body %s", env.Status, rec.Body.String())
	}
	if len(env.Data.Rows) != 2 || env.Data.Total != 2 {
		t.Fatalf("rows = %d total = %d, want 2/2", len(env.Data.Rows), env.Data.Total)
	}
	// default window is the last day, clamped to at most a week
	if span := store.to.Sub(store.from); span != 24*time.Hour {
		t.Fatalf("default window = %v, want 24h", span)
	}
}

func TestTransactionsEndpointWithoutStorage(t *testing.T) {
	h := testHandler(t)
	rec := doRequest(t, h.Transactions, http.MethodGet, "/api/transactions", "")

	var env struct {
		Status int `json:"status"`
		Data   []struct {
			Code string `json:"code"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if env.Status != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", env.Status)
	}
	if len(env.Data) != 1 || env.Data[0].Code != "ERR_UNAVAILABLE" {
		t.Fatalf("unexpected error payload: %s", rec.Body.String())
	}
}

func TestHealthEndpoint(t *testing.T) {
	h := testHandler(t)
	rec := doRequest(t, h.Health, http.MethodGet, "/health", "")

	var env struct {
		Status int                   `json:"status"`
		Data   models.HealthResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if env.Status != http.StatusOK {
		t.Fatalf("status = %d", env.Status)
	}
	if env.Data.ArtifactVersion != "v-api" || !env.Data.ModelsLoaded {
		t.Fatalf("unexpected health payload: %+v", env.Data)
	}
}
