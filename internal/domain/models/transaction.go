package models

// Transaction is one raw payment record entering the scoring path.
// Time and Amount are mandatory; every other field models upstream context
// systems and is synthesized deterministically by the feature pipeline when
// absent.
type Transaction struct {
	TxnID          string
	Time           float64 // seconds since the dataset epoch, non-decreasing
	Amount         float64
	MerchantID     *int64
	DeviceType     *string
	GeoBucket      *int64
	AccountID      *int64
	AccountAgeDays *float64
}

// HasContext reports whether any identity/context field was supplied by the
// caller rather than left for synthesis.
func (t *Transaction) HasContext() bool {
	return t.MerchantID != nil || t.DeviceType != nil || t.GeoBucket != nil ||
		t.AccountID != nil || t.AccountAgeDays != nil
}
