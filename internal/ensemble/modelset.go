package ensemble

import (
	"encoding/json"
	"fmt"

	"Frisk/internal/feature"
)

// ModelSet is the fitted first-level ensemble plus the meta-learner,
// serialized alongside the feature artifacts and versioned with them.
type ModelSet struct {
	Classifier  *GBT             `json:"classifier"`
	IForest     *IsolationForest `json:"iforest"`
	Autoencoder *Autoencoder     `json:"autoencoder"`
	KMeans      *KMeans          `json:"kmeans"`
	Stacker     *Stacker         `json:"stacker"`
}

// DecodeModelSet parses a serialized model set and validates it against the
// artifact bundle's frozen feature lists. An inconsistent pair must never
// serve traffic.
func DecodeModelSet(b []byte, arts *feature.Artifacts) (*ModelSet, error) {
	var m ModelSet
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("decode model set: %w", err)
	}
	if err := m.Validate(arts); err != nil {
		return nil, fmt.Errorf("decode model set: %w", err)
	}
	return &m, nil
}

// Encode serializes the model set for the blob store.
func (m *ModelSet) Encode() ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode model set: %w", err)
	}
	return b, nil
}

// Validate cross-checks every member's expected input width against the
// bundle's frozen per-model feature lists.
func (m *ModelSet) Validate(arts *feature.Artifacts) error {
	if m.Classifier == nil || m.IForest == nil || m.Autoencoder == nil || m.KMeans == nil || m.Stacker == nil {
		return fmt.Errorf("model set incomplete")
	}
	if err := m.Classifier.validate(len(arts.ModelFeatures[feature.ModelClassifier])); err != nil {
		return err
	}
	if err := m.IForest.validate(len(arts.ModelFeatures[feature.ModelIForest])); err != nil {
		return err
	}
	if err := m.Autoencoder.validate(len(arts.ModelFeatures[feature.ModelAutoencoder])); err != nil {
		return err
	}
	latentDim := len(m.Autoencoder.Layers[m.Autoencoder.LatentLayer].Weights)
	if got := len(arts.ModelFeatures[feature.ModelKMeans]); got != latentDim {
		return fmt.Errorf("kmeans feature list width %d does not match latent dim %d", got, latentDim)
	}
	if err := m.KMeans.validate(latentDim); err != nil {
		return err
	}
	return m.Stacker.validate(len(arts.MetaFeatures))
}
