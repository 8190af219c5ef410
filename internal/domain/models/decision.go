package models

import "time"

// Label values emitted by the stacked decision model.
const (
	LabelFraud = "fraud"
	LabelLegit = "legit"
)

// BaseSignals holds the raw ensemble outputs for one transaction, prior to
// stacking.
type BaseSignals struct {
	ClfProba     float64   // supervised classifier probability in [0,1]
	AnomalyScore float64   // isolation forest, larger = more anomalous
	ReconError   float64   // autoencoder reconstruction MSE, >= 0
	ClusterID    int       // unordered group id; same id = same group
	Latent       []float64 // optional encoder embedding
}

// Decision is the terminal artifact of the scoring path.
type Decision struct {
	TxnID       string
	Timestamp   time.Time
	Probability float64
	Label       string
	Signals     BaseSignals
}

// FeatureAttribution is one ranked entry of an explanation: the contribution
// of a single feature to the classifier margin, paired with the observed
// engineered value.
type FeatureAttribution struct {
	Feature      string  `json:"feature"`
	Contribution float64 `json:"contribution"`
	Value        float64 `json:"value"`
}

// Explanation is the additive decomposition of one supervised prediction.
// Baseline + the sum over all (untruncated) contributions equals the margin.
type Explanation struct {
	TxnID        string               `json:"txn_id,omitempty"`
	Probability  float64              `json:"probability"`
	Baseline     float64              `json:"baseline"`
	Attributions []FeatureAttribution `json:"attributions"`
}
