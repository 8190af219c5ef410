package feature

import (
	"fmt"
	"hash/fnv"

	"Frisk/internal/domain/models"
)

// Synthetic context cardinalities, fixed across training and serving.
const (
	nMerchants    = 1000
	nGeoBuckets   = 50
	nAccounts     = 10000
	maxAccountAge = 2000
)

var deviceTypes = []string{"mobile", "desktop", "pos", "tablet"}

// cumulative device-type weights: mobile 60%, desktop 25%, pos 10%, tablet 5%
var deviceCumWeights = []float64{0.60, 0.85, 0.95, 1.0}

// syntheticContext holds the identity/context fields for one record plus
// which of them were synthesized (absent from the raw input).
type syntheticContext struct {
	merchantID     int64
	deviceType     string
	geoBucket      int64
	accountID      int64
	accountAgeDays float64
	synthesized    map[string]bool
}

// recordSeed derives the deterministic per-record key: the transaction id
// when the upstream supplied one, otherwise the canonical time|amount string.
// Wall-clock and unseeded randomness are forbidden here — the same raw record
// must always synthesize the same context.
func recordSeed(t *models.Transaction) uint64 {
	h := fnv.New64a()
	if t.TxnID != "" {
		_, _ = h.Write([]byte(t.TxnID))
	} else {
		_, _ = fmt.Fprintf(h, "%.6f|%.6f", t.Time, t.Amount)
	}
	return h.Sum64()
}

// splitmix is a tiny deterministic PRNG (splitmix64) used only for synthetic
// context draws.
type splitmix struct{ state uint64 }

func (s *splitmix) next() uint64 {
	s.state += 0x9e3779b97f4a7c15
	z := s.state
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

func (s *splitmix) float64() float64 {
	return float64(s.next()>>11) / (1 << 53)
}

// synthesizeContext fills in any absent identity/context fields. This models
// upstream systems not yet integrated; supplied fields pass through untouched
// and are not flagged as missing.
func synthesizeContext(t *models.Transaction) syntheticContext {
	rng := splitmix{state: recordSeed(t)}
	ctx := syntheticContext{synthesized: make(map[string]bool, 5)}

	if t.MerchantID != nil {
		ctx.merchantID = *t.MerchantID
	} else {
		ctx.merchantID = int64(rng.next() % nMerchants)
		ctx.synthesized[colMerchantID] = true
	}

	if t.DeviceType != nil {
		ctx.deviceType = *t.DeviceType
	} else {
		u := rng.float64()
		ctx.deviceType = deviceTypes[len(deviceTypes)-1]
		for i, cum := range deviceCumWeights {
			if u < cum {
				ctx.deviceType = deviceTypes[i]
				break
			}
		}
		ctx.synthesized[colDeviceType] = true
	}

	if t.GeoBucket != nil {
		ctx.geoBucket = *t.GeoBucket
	} else {
		ctx.geoBucket = int64(rng.next() % nGeoBuckets)
		ctx.synthesized[colGeoBucket] = true
	}

	if t.AccountID != nil {
		ctx.accountID = *t.AccountID
	} else {
		ctx.accountID = int64(rng.next() % nAccounts)
		ctx.synthesized[colAccountID] = true
	}

	if t.AccountAgeDays != nil {
		ctx.accountAgeDays = *t.AccountAgeDays
	} else {
		// derived from the account id, not the record, so every transaction
		// of the same synthetic account sees the same age
		ctx.accountAgeDays = float64(accountAge(ctx.accountID))
		ctx.synthesized[colAccountAge] = true
	}

	return ctx
}

// accountAge maps an account id to a stable age in days.
func accountAge(accountID int64) uint64 {
	h := fnv.New64a()
	_, _ = fmt.Fprintf(h, "acct:%d", accountID)
	return h.Sum64() % maxAccountAge
}
