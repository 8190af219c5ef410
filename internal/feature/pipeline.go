package feature

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"Frisk/internal/domain/models"
)

// Mode selects between fitting new artifacts from a batch and applying a
// frozen bundle to records.
type Mode int

const (
	// ModeFit computes fresh artifacts from the input batch.
	ModeFit Mode = iota
	// ModeApply reuses previously fitted artifacts without modification.
	ModeApply
)

// Engineered column names. The frozen schema is the exact set these stages
// emit; renaming any of them is a breaking contract change.
const (
	colTime            = "time"
	colAmount          = "amount"
	colTimestamp       = "timestamp"
	colHour            = "hour"
	colDayOfWeek       = "dayofweek"
	colAmountLog       = "amount_log"
	colAmountScaled    = "amount_scaled"
	colMerchantID      = "merchant_id"
	colDeviceType      = "device_type"
	colGeoBucket       = "geo_bucket"
	colAccountID       = "account_id"
	colAccountAge      = "account_age_days"
	colMerchantFreq    = "merchant_freq"
	colDeviceFreq      = "device_freq"
	colAccountTxnCount = "account_txn_count"
	colLast5Mean       = "last_5_mean_amount"
	colLast5Count      = "last_5_count"
	colAmountTimesAge  = "amount_times_age"
	colIsNewMerchant   = "is_new_merchant"
	colPCAX            = "pca_x"
	colPCAY            = "pca_y"
)

// categoricalColumns get fitted frequency tables and _fe encodings.
var categoricalColumns = []string{colMerchantID, colDeviceType, colGeoBucket, colAccountID}

// missingFlagColumns get a boolean _missing indicator when synthesized.
var missingFlagColumns = []string{colMerchantID, colDeviceType, colGeoBucket, colAccountAge}

// rollingWindow is the per-account behavioral window: statistics over the
// preceding N transactions, strictly excluding the current row.
const rollingWindow = 5

// datasetEpoch anchors the raw seconds offset to calendar time.
var datasetEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// ErrInvalidInput marks rejected raw records (missing/malformed mandatory
// fields). These propagate to the caller and are never defaulted.
var ErrInvalidInput = errors.New("invalid raw record")

// ErrArtifactsRequired is returned when APPLY mode runs without a bundle.
var ErrArtifactsRequired = errors.New("apply mode requires fitted artifacts")

type row struct {
	txn *models.Transaction
	vec *Vector
	ctx syntheticContext
}

// Transform converts raw transactions into engineered vectors through the
// fixed stage order. In ModeFit the returned artifacts are newly computed for
// persistence; in ModeApply artsIn is returned unchanged — the pipeline never
// refits at serving time.
func Transform(txns []*models.Transaction, mode Mode, artsIn *Artifacts) ([]*Vector, *Artifacts, error) {
	if len(txns) == 0 {
		return nil, nil, fmt.Errorf("%w: empty batch", ErrInvalidInput)
	}
	if mode == ModeApply && artsIn == nil {
		return nil, nil, ErrArtifactsRequired
	}
	for i, t := range txns {
		if err := validateRecord(t); err != nil {
			return nil, nil, fmt.Errorf("record %d: %w", i, err)
		}
	}

	rows := make([]*row, len(txns))
	for i, t := range txns {
		rows[i] = &row{txn: t, vec: NewVector()}
	}

	// raw passthrough columns
	for _, r := range rows {
		r.vec.SetNum(colTime, r.txn.Time)
		r.vec.SetNum(colAmount, r.txn.Amount)
	}

	// stage 1: temporal decomposition
	for _, r := range rows {
		ts := datasetEpoch.Add(time.Duration(r.txn.Time * float64(time.Second)))
		r.vec.SetCat(colTimestamp, ts.Format("2006-01-02 15:04:05"))
		r.vec.SetNum(colHour, float64(ts.Hour()))
		r.vec.SetNum(colDayOfWeek, float64(mondayIndexed(ts.Weekday())))
	}

	// stage 2: amount transform
	scaler := AmountScaler{}
	if mode == ModeFit {
		scaler = fitAmountScaler(txns)
	} else {
		scaler = artsIn.Scaler
	}
	for _, r := range rows {
		r.vec.SetNum(colAmountLog, math.Log1p(r.txn.Amount))
		r.vec.SetNum(colAmountScaled, (r.txn.Amount-scaler.Center)/scaler.Scale)
	}

	// stage 3: synthetic context for absent identity fields
	for _, r := range rows {
		r.ctx = synthesizeContext(r.txn)
		r.vec.SetNum(colMerchantID, float64(r.ctx.merchantID))
		r.vec.SetCat(colDeviceType, r.ctx.deviceType)
		r.vec.SetNum(colGeoBucket, float64(r.ctx.geoBucket))
		r.vec.SetNum(colAccountID, float64(r.ctx.accountID))
		r.vec.SetNum(colAccountAge, r.ctx.accountAgeDays)
	}

	// stage 4: frequency aggregates against the fit-time population
	var tables map[string]FreqTable
	if mode == ModeFit {
		tables = fitFreqTables(rows)
	} else {
		tables = artsIn.FreqTables
	}
	for _, r := range rows {
		r.vec.SetNum(colMerchantFreq, tables[colMerchantID].Freq(r.categoryKey(colMerchantID)))
		r.vec.SetNum(colDeviceFreq, tables[colDeviceType].Freq(r.categoryKey(colDeviceType)))
		r.vec.SetNum(colAccountTxnCount, tables[colAccountID].Freq(r.categoryKey(colAccountID)))
	}

	// stage 5: rolling behavioral aggregates over strictly prior transactions
	rollingAggregates(rows)

	// stage 6: missingness indicators for synthesized context fields
	for _, r := range rows {
		for _, col := range missingFlagColumns {
			r.vec.SetNum(col+"_missing", boolToFloat(r.ctx.synthesized[col]))
		}
	}

	// stage 7: frequency-style categorical encodings
	for _, r := range rows {
		for _, col := range categoricalColumns {
			r.vec.SetNum(col+"_fe", tables[col].Freq(r.categoryKey(col)))
		}
	}

	// stage 8: interaction terms
	for _, r := range rows {
		r.vec.SetNum(colAmountTimesAge, r.txn.Amount*r.ctx.accountAgeDays)
		r.vec.SetNum(colIsNewMerchant, boolToFloat(tables[colMerchantID].Count(r.categoryKey(colMerchantID)) == 1))
	}

	// stage 9: fitted 2-component projection over the numeric feature set
	var proj Projection
	if mode == ModeFit {
		cols := rows[0].vec.NumericColumns()
		mat := make([][]float64, len(rows))
		for i, r := range rows {
			v, err := r.vec.Slice(cols)
			if err != nil {
				return nil, nil, fmt.Errorf("projection fit: %w", err)
			}
			mat[i] = v
		}
		proj = fitProjection(cols, mat)
	} else {
		proj = artsIn.Projection
	}
	for _, r := range rows {
		v, err := r.vec.Slice(proj.Columns)
		if err != nil {
			return nil, nil, fmt.Errorf("projection apply: %w", err)
		}
		x, y := proj.Apply(v)
		r.vec.SetNum(colPCAX, x)
		r.vec.SetNum(colPCAY, y)
	}

	vecs := make([]*Vector, len(rows))
	for i, r := range rows {
		vecs[i] = r.vec
	}

	if mode == ModeApply {
		return vecs, artsIn, nil
	}
	return vecs, &Artifacts{
		Scaler:     scaler,
		FreqTables: tables,
		Projection: proj,
		Schema:     vecs[0].Columns(),
	}, nil
}

// Fit runs the pipeline in FIT mode over a training batch and stamps the
// bundle version. Per-model feature lists, meta order and threshold are set
// by the training collaborator before the bundle is persisted.
func Fit(txns []*models.Transaction, version string) ([]*Vector, *Artifacts, error) {
	vecs, arts, err := Transform(txns, ModeFit, nil)
	if err != nil {
		return nil, nil, err
	}
	arts.Version = version
	return vecs, arts, nil
}

// Apply transforms a single record with a frozen bundle.
func Apply(t *models.Transaction, arts *Artifacts) (*Vector, error) {
	vecs, artsOut, err := Transform([]*models.Transaction{t}, ModeApply, arts)
	if err != nil {
		return nil, err
	}
	if artsOut != arts {
		// refitting side effects at serving time are a fatal contract breach
		return nil, fmt.Errorf("apply mutated artifacts for version %q", arts.Version)
	}
	return vecs[0], nil
}

func validateRecord(t *models.Transaction) error {
	if t == nil {
		return fmt.Errorf("%w: nil record", ErrInvalidInput)
	}
	if math.IsNaN(t.Time) || math.IsInf(t.Time, 0) || t.Time < 0 {
		return fmt.Errorf("%w: field Time malformed (%v)", ErrInvalidInput, t.Time)
	}
	if math.IsNaN(t.Amount) || math.IsInf(t.Amount, 0) || t.Amount < 0 {
		return fmt.Errorf("%w: field Amount malformed (%v)", ErrInvalidInput, t.Amount)
	}
	return nil
}

// categoryKey renders a category value as its lookup key.
func (r *row) categoryKey(col string) string {
	switch col {
	case colMerchantID:
		return strconv.FormatInt(r.ctx.merchantID, 10)
	case colDeviceType:
		return r.ctx.deviceType
	case colGeoBucket:
		return strconv.FormatInt(r.ctx.geoBucket, 10)
	case colAccountID:
		return strconv.FormatInt(r.ctx.accountID, 10)
	}
	return ""
}

func fitFreqTables(rows []*row) map[string]FreqTable {
	tables := make(map[string]FreqTable, len(categoricalColumns))
	total := float64(len(rows))
	for _, col := range categoricalColumns {
		counts := make(map[string]float64)
		for _, r := range rows {
			counts[r.categoryKey(col)]++
		}
		tables[col] = FreqTable{Counts: counts, Total: total}
	}
	return tables
}

// rollingAggregates computes per-account mean/count over the preceding
// rollingWindow transactions. The working set is sorted by account then
// timestamp; accounts with fewer prior transactions get a partial-window
// mean over whatever history exists, never zero-padded.
func rollingAggregates(rows []*row) {
	idx := make([]int, len(rows))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ra, rb := rows[idx[a]], rows[idx[b]]
		if ra.ctx.accountID != rb.ctx.accountID {
			return ra.ctx.accountID < rb.ctx.accountID
		}
		return ra.txn.Time < rb.txn.Time
	})

	var prior []float64
	var curAccount int64
	first := true
	for _, i := range idx {
		r := rows[i]
		if first || r.ctx.accountID != curAccount {
			curAccount = r.ctx.accountID
			prior = prior[:0]
			first = false
		}
		n := len(prior)
		if n > rollingWindow {
			n = rollingWindow
		}
		var sum float64
		for _, a := range prior[len(prior)-n:] {
			sum += a
		}
		mean := 0.0
		if n > 0 {
			mean = sum / float64(n)
		}
		r.vec.SetNum(colLast5Mean, mean)
		r.vec.SetNum(colLast5Count, float64(n))
		prior = append(prior, r.txn.Amount)
	}
}

func fitAmountScaler(txns []*models.Transaction) AmountScaler {
	amounts := make([]float64, len(txns))
	for i, t := range txns {
		amounts[i] = t.Amount
	}
	sort.Float64s(amounts)
	center := quantile(amounts, 0.5)
	scale := quantile(amounts, 0.75) - quantile(amounts, 0.25)
	if scale == 0 {
		scale = 1
	}
	return AmountScaler{Center: center, Scale: scale}
}

// quantile computes a linearly interpolated quantile over sorted values.
func quantile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	pos := q * float64(n-1)
	lo := int(math.Floor(pos))
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// mondayIndexed maps Go's Sunday-first weekday to Monday=0..Sunday=6.
func mondayIndexed(d time.Weekday) int {
	return (int(d) + 6) % 7
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
