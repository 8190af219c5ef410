package models

// Requests and responses for the scoring HTTP endpoints. Defined in domain
// for consistency and reuse.

type TransactionInput struct {
	TxnID          string   `json:"txn_id"`
	Time           *float64 `json:"time" validate:"required"`
	Amount         *float64 `json:"amount" validate:"required,gte=0"`
	MerchantID     *int64   `json:"merchant_id" validate:"omitempty,gte=0"`
	DeviceType     *string  `json:"device_type" validate:"omitempty,oneof=mobile desktop pos tablet"`
	GeoBucket      *int64   `json:"geo_bucket" validate:"omitempty,gte=0"`
	AccountID      *int64   `json:"account_id" validate:"omitempty,gte=0"`
	AccountAgeDays *float64 `json:"account_age_days" validate:"omitempty,gte=0"`
}

// ToTransaction converts a validated wire payload into the domain record.
func (in *TransactionInput) ToTransaction() *Transaction {
	t := &Transaction{TxnID: in.TxnID}
	if in.Time != nil {
		t.Time = *in.Time
	}
	if in.Amount != nil {
		t.Amount = *in.Amount
	}
	t.MerchantID = in.MerchantID
	t.DeviceType = in.DeviceType
	t.GeoBucket = in.GeoBucket
	t.AccountID = in.AccountID
	t.AccountAgeDays = in.AccountAgeDays
	return t
}

type ExplainInput struct {
	TransactionInput
	K int `json:"k" default:"5" validate:"gte=1,lte=50"`
}

type PredictResponse struct {
	TxnID        string  `json:"txn_id,omitempty"`
	Probability  float64 `json:"probability"`
	Label        string  `json:"label"`
	ClfProba     float64 `json:"clf_proba"`
	AnomalyScore float64 `json:"anomaly_score"`
	ReconError   float64 `json:"recon_error"`
	ClusterID    int     `json:"cluster_id"`
}

type HealthResponse struct {
	Status          string `json:"status"`
	ArtifactVersion string `json:"artifact_version,omitempty"`
	ModelsLoaded    bool   `json:"models_loaded"`
}
