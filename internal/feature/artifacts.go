package feature

import (
	"encoding/json"
	"fmt"
)

// Model keys into Artifacts.ModelFeatures. Every ensemble member consumes
// only its own frozen slice of the engineered vector.
const (
	ModelClassifier  = "classifier"
	ModelIForest     = "iforest"
	ModelAutoencoder = "autoencoder"
	ModelKMeans      = "kmeans"
)

// AmountScaler holds robust (median/IQR) rescaling parameters fitted on the
// training amounts.
type AmountScaler struct {
	Center float64 `json:"center"`
	Scale  float64 `json:"scale"`
}

// FreqTable is a fitted category→occurrence-count lookup plus the row total
// observed at fit time. Frequencies are emitted as count/total; categories
// unseen at fit time resolve to zero.
type FreqTable struct {
	Counts map[string]float64 `json:"counts"`
	Total  float64            `json:"total"`
}

// Count returns the fit-time occurrence count for a category (0 if unseen).
func (t FreqTable) Count(key string) float64 {
	return t.Counts[key]
}

// Freq returns count/total for a category (0 if unseen or empty table).
func (t FreqTable) Freq(key string) float64 {
	if t.Total <= 0 {
		return 0
	}
	return t.Counts[key] / t.Total
}

// Artifacts is the immutable fitted artifact bundle: everything the pipeline
// and ensemble need to reproduce training-time features from one raw record.
// Created exactly once per training run; read-only at serving time.
type Artifacts struct {
	Version       string              `json:"version"`
	Scaler        AmountScaler        `json:"scaler"`
	FreqTables    map[string]FreqTable `json:"freq_tables"`
	Projection    Projection          `json:"projection"`
	Schema        []string            `json:"schema"`
	ModelFeatures map[string][]string `json:"model_features"`
	MetaFeatures  []string            `json:"meta_features"`
	Threshold     float64             `json:"threshold"`
}

// DecodeArtifacts parses and validates a serialized bundle. A bundle missing
// any required member must not serve traffic.
func DecodeArtifacts(b []byte) (*Artifacts, error) {
	var a Artifacts
	if err := json.Unmarshal(b, &a); err != nil {
		return nil, fmt.Errorf("decode artifacts: %w", err)
	}
	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("decode artifacts: %w", err)
	}
	return &a, nil
}

// Encode serializes the bundle for the blob store.
func (a *Artifacts) Encode() ([]byte, error) {
	b, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("encode artifacts: %w", err)
	}
	return b, nil
}

// Validate checks the bundle is complete enough to serve.
func (a *Artifacts) Validate() error {
	if len(a.Schema) == 0 {
		return fmt.Errorf("artifacts: frozen schema is empty")
	}
	if a.Scaler.Scale == 0 {
		return fmt.Errorf("artifacts: scaler not fitted")
	}
	for _, col := range categoricalColumns {
		if _, ok := a.FreqTables[col]; !ok {
			return fmt.Errorf("artifacts: frequency table for %q missing", col)
		}
	}
	if len(a.Projection.Columns) == 0 || len(a.Projection.Components) != 2 {
		return fmt.Errorf("artifacts: projection not fitted")
	}
	for _, m := range []string{ModelClassifier, ModelIForest, ModelAutoencoder, ModelKMeans} {
		if len(a.ModelFeatures[m]) == 0 {
			return fmt.Errorf("artifacts: feature list for model %q missing", m)
		}
	}
	if len(a.MetaFeatures) == 0 {
		return fmt.Errorf("artifacts: meta feature order missing")
	}
	if a.Threshold <= 0 || a.Threshold >= 1 {
		return fmt.Errorf("artifacts: decision threshold %v out of (0,1)", a.Threshold)
	}
	return nil
}

// SchemaSet returns the frozen schema as a set.
func (a *Artifacts) SchemaSet() map[string]struct{} {
	set := make(map[string]struct{}, len(a.Schema))
	for _, c := range a.Schema {
		set[c] = struct{}{}
	}
	return set
}
