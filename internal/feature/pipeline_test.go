package feature

import (
	"math"
	"testing"

	"Frisk/internal/domain/models"
)

func f64p(v float64) *float64 { return &v }
func i64p(v int64) *int64     { return &v }
func strp(v string) *string   { return &v }

func trainingBatch() []*models.Transaction {
	txns := make([]*models.Transaction, 0, 40)
	for i := 0; i < 40; i++ {
		txns = append(txns, &models.Transaction{
			TxnID:          "",
			Time:           float64(i * 3600),
			Amount:         float64(10 + i*7),
			MerchantID:     i64p(int64(i % 5)),
			DeviceType:     strp("mobile"),
			GeoBucket:      i64p(int64(i % 3)),
			AccountID:      i64p(int64(i % 4)),
			AccountAgeDays: f64p(float64(100 + i)),
		})
	}
	return txns
}

func fittedBundle(t *testing.T) *Artifacts {
	t.Helper()
	_, arts, err := Fit(trainingBatch(), "v-test")
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	return arts
}

func TestTemporalDecomposition(t *testing.T) {
	arts := fittedBundle(t)
	vec, err := Apply(&models.Transaction{Time: 100000, Amount: 149.62}, arts)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	hour, _ := vec.Num(colHour)
	if hour != 3 {
		t.Fatalf("hour = %v, want 3", hour)
	}
	dow, _ := vec.Num(colDayOfWeek)
	if dow != 1 {
		t.Fatalf("dayofweek = %v, want 1 (Tuesday, Monday-indexed)", dow)
	}
	ts, _ := vec.Cat(colTimestamp)
	if ts != "2024-01-02 03:46:40" {
		t.Fatalf("timestamp = %q", ts)
	}
	logAmt, _ := vec.Num(colAmountLog)
	if math.Abs(logAmt-math.Log1p(149.62)) > 1e-12 {
		t.Fatalf("amount_log = %v, want ln(150.62)", logAmt)
	}
}

func TestDeterministicApply(t *testing.T) {
	arts := fittedBundle(t)
	txn := &models.Transaction{TxnID: "txn-42", Time: 5000, Amount: 87.30}

	a, err := Apply(txn, arts)
	if err != nil {
		t.Fatalf("first apply: %v", err)
	}
	b, err := Apply(txn, arts)
	if err != nil {
		t.Fatalf("second apply: %v", err)
	}

	colsA, colsB := a.Columns(), b.Columns()
	if len(colsA) != len(colsB) {
		t.Fatalf("column count changed between runs: %d vs %d", len(colsA), len(colsB))
	}
	for i, c := range colsA {
		if colsB[i] != c {
			t.Fatalf("column order changed at %d: %q vs %q", i, c, colsB[i])
		}
		if va, ok := a.Num(c); ok {
			vb, _ := b.Num(c)
			if va != vb {
				t.Fatalf("column %q differs: %v vs %v", c, va, vb)
			}
			continue
		}
		sa, _ := a.Cat(c)
		sb, _ := b.Cat(c)
		if sa != sb {
			t.Fatalf("column %q differs: %q vs %q", c, sa, sb)
		}
	}
}

func TestSchemaClosure(t *testing.T) {
	vecs, arts, err := Fit(trainingBatch(), "v-test")
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	for i, v := range vecs {
		if err := ValidateContract(v, arts.Schema); err != nil {
			t.Fatalf("fit row %d violates its own schema: %v", i, err)
		}
	}

	// a sparse serving record must still close over the frozen schema
	vec, err := Apply(&models.Transaction{Time: 12.5, Amount: 3.99}, arts)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := ValidateContract(vec, arts.Schema); err != nil {
		t.Fatalf("serving vector violates schema: %v", err)
	}
}

func TestFitApplyParity(t *testing.T) {
	// one transaction per account, so rolling aggregates are 0/0 on both
	// paths and every other stage depends only on the fitted artifacts
	txns := make([]*models.Transaction, 0, 12)
	for i := 0; i < 12; i++ {
		txns = append(txns, &models.Transaction{
			Time:      float64(i * 900),
			Amount:    float64(20 + i*7),
			AccountID: i64p(int64(1000 + i)),
		})
	}
	fitVecs, arts, err := Fit(txns, "v-parity")
	if err != nil {
		t.Fatalf("fit: %v", err)
	}

	for i, txn := range txns {
		got, err := Apply(txn, arts)
		if err != nil {
			t.Fatalf("apply row %d: %v", i, err)
		}
		for _, c := range arts.Schema {
			if fn, ok := fitVecs[i].Num(c); ok {
				gn, _ := got.Num(c)
				if fn != gn {
					t.Fatalf("row %d column %q: fit %v, apply %v", i, c, fn, gn)
				}
				continue
			}
			fc, _ := fitVecs[i].Cat(c)
			gc, _ := got.Cat(c)
			if fc != gc {
				t.Fatalf("row %d column %q: fit %q, apply %q", i, c, fc, gc)
			}
		}
	}
}

func TestApplyDoesNotRefit(t *testing.T) {
	arts := fittedBundle(t)
	before, err := arts.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	_, artsOut, err := Transform([]*models.Transaction{
		{Time: 1, Amount: 999999, MerchantID: i64p(888)},
	}, ModeApply, arts)
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	if artsOut != arts {
		t.Fatalf("apply returned a different artifacts bundle")
	}
	after, err := arts.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(before) != string(after) {
		t.Fatalf("apply mutated the fitted bundle")
	}
}

func TestApplyRequiresArtifacts(t *testing.T) {
	_, _, err := Transform([]*models.Transaction{{Time: 1, Amount: 1}}, ModeApply, nil)
	if err == nil {
		t.Fatalf("expected error for apply without artifacts")
	}
}

func TestRejectsMalformedRecords(t *testing.T) {
	arts := fittedBundle(t)
	cases := []*models.Transaction{
		{Time: math.NaN(), Amount: 1},
		{Time: math.Inf(1), Amount: 1},
		{Time: -5, Amount: 1},
		{Time: 1, Amount: math.NaN()},
		{Time: 1, Amount: -0.01},
		nil,
	}
	for i, txn := range cases {
		if _, err := Apply(txn, arts); err == nil {
			t.Fatalf("case %d: expected rejection", i)
		}
	}
	if _, _, err := Transform(nil, ModeFit, nil); err == nil {
		t.Fatalf("expected rejection of empty batch")
	}
}

func TestRollingWindow(t *testing.T) {
	acct := i64p(11)
	amounts := []float64{10, 20, 30, 40, 50, 60, 70}
	txns := make([]*models.Transaction, len(amounts))
	for i, a := range amounts {
		txns[i] = &models.Transaction{
			Time:       float64(i + 1),
			Amount:     a,
			AccountID:  acct,
			MerchantID: i64p(1),
		}
	}
	vecs, _, err := Fit(txns, "v-roll")
	if err != nil {
		t.Fatalf("fit: %v", err)
	}

	wantMean := []float64{0, 10, 15, 20, 25, 30, 40}
	wantCount := []float64{0, 1, 2, 3, 4, 5, 5}
	for i, v := range vecs {
		mean, _ := v.Num(colLast5Mean)
		count, _ := v.Num(colLast5Count)
		if math.Abs(mean-wantMean[i]) > 1e-12 {
			t.Fatalf("row %d: last_5_mean_amount = %v, want %v", i, mean, wantMean[i])
		}
		if count != wantCount[i] {
			t.Fatalf("row %d: last_5_count = %v, want %v", i, count, wantCount[i])
		}
	}
}

func TestRollingWindowFirstTransactionAtServe(t *testing.T) {
	arts := fittedBundle(t)
	vec, err := Apply(&models.Transaction{Time: 500, Amount: 42, AccountID: i64p(999)}, arts)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	mean, _ := vec.Num(colLast5Mean)
	count, _ := vec.Num(colLast5Count)
	if mean != 0 || count != 0 {
		t.Fatalf("single serving record should see empty history, got mean=%v count=%v", mean, count)
	}
}

func TestFrequencyAggregates(t *testing.T) {
	txns := []*models.Transaction{
		{Time: 1, Amount: 10, MerchantID: i64p(5), AccountID: i64p(7), DeviceType: strp("mobile")},
		{Time: 2, Amount: 11, MerchantID: i64p(5), AccountID: i64p(7), DeviceType: strp("mobile")},
		{Time: 3, Amount: 12, MerchantID: i64p(5), AccountID: i64p(8), DeviceType: strp("pos")},
		{Time: 4, Amount: 13, MerchantID: i64p(6), AccountID: i64p(9), DeviceType: strp("mobile")},
	}
	vecs, arts, err := Fit(txns, "v-freq")
	if err != nil {
		t.Fatalf("fit: %v", err)
	}

	mf, _ := vecs[0].Num(colMerchantFreq)
	if mf != 0.75 {
		t.Fatalf("merchant_freq = %v, want 0.75", mf)
	}
	df, _ := vecs[2].Num(colDeviceFreq)
	if df != 0.25 {
		t.Fatalf("device_freq = %v, want 0.25", df)
	}
	af, _ := vecs[0].Num(colAccountTxnCount)
	if af != 0.5 {
		t.Fatalf("account_txn_count = %v, want 0.5", af)
	}
	newM, _ := vecs[3].Num(colIsNewMerchant)
	if newM != 1 {
		t.Fatalf("merchant seen once should flag is_new_merchant")
	}
	oldM, _ := vecs[0].Num(colIsNewMerchant)
	if oldM != 0 {
		t.Fatalf("repeat merchant should not flag is_new_merchant")
	}

	// unseen at serve time resolves to zero, never an error
	vec, err := Apply(&models.Transaction{Time: 9, Amount: 5, MerchantID: i64p(777), DeviceType: strp("tablet")}, arts)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got, _ := vec.Num(colMerchantFreq); got != 0 {
		t.Fatalf("unseen merchant_freq = %v, want 0", got)
	}
	if got, _ := vec.Num(colMerchantID + "_fe"); got != 0 {
		t.Fatalf("unseen merchant_id_fe = %v, want 0", got)
	}
	if got, _ := vec.Num(colDeviceFreq); got != 0 {
		t.Fatalf("unseen device_freq = %v, want 0", got)
	}
}

func TestMissingnessFlags(t *testing.T) {
	arts := fittedBundle(t)

	full := &models.Transaction{
		Time: 1, Amount: 20,
		MerchantID: i64p(3), DeviceType: strp("pos"),
		GeoBucket: i64p(2), AccountID: i64p(4), AccountAgeDays: f64p(365),
	}
	vec, err := Apply(full, arts)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	for _, col := range missingFlagColumns {
		if got, _ := vec.Num(col + "_missing"); got != 0 {
			t.Fatalf("%s_missing = %v for supplied field", col, got)
		}
	}

	sparse := &models.Transaction{Time: 1, Amount: 20}
	vec, err = Apply(sparse, arts)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	for _, col := range missingFlagColumns {
		if got, _ := vec.Num(col + "_missing"); got != 1 {
			t.Fatalf("%s_missing = %v for synthesized field", col, got)
		}
	}
	age, _ := vec.Num(colAmountTimesAge)
	ageDays, _ := vec.Num(colAccountAge)
	if math.Abs(age-20*ageDays) > 1e-9 {
		t.Fatalf("amount_times_age = %v, want amount*age = %v", age, 20*ageDays)
	}
}

func TestSyntheticContextStability(t *testing.T) {
	txn := &models.Transaction{Time: 777.5, Amount: 12.34}
	a := synthesizeContext(txn)
	b := synthesizeContext(txn)
	if a.merchantID != b.merchantID || a.deviceType != b.deviceType ||
		a.geoBucket != b.geoBucket || a.accountID != b.accountID ||
		a.accountAgeDays != b.accountAgeDays {
		t.Fatalf("synthetic context not deterministic: %+v vs %+v", a, b)
	}
	if a.merchantID < 0 || a.merchantID >= nMerchants {
		t.Fatalf("merchant id %d out of range", a.merchantID)
	}
	if a.geoBucket < 0 || a.geoBucket >= nGeoBuckets {
		t.Fatalf("geo bucket %d out of range", a.geoBucket)
	}
	if a.accountAgeDays < 0 || a.accountAgeDays >= maxAccountAge {
		t.Fatalf("account age %v out of range", a.accountAgeDays)
	}
	found := false
	for _, d := range deviceTypes {
		if a.deviceType == d {
			found = true
		}
	}
	if !found {
		t.Fatalf("unknown device type %q", a.deviceType)
	}

	// same synthetic account always gets the same age
	if accountAge(a.accountID) != accountAge(b.accountID) {
		t.Fatalf("account age unstable for account %d", a.accountID)
	}

	// a different record must seed differently
	c := synthesizeContext(&models.Transaction{Time: 777.5, Amount: 12.35})
	if c.merchantID == a.merchantID && c.accountID == a.accountID && c.geoBucket == a.geoBucket {
		t.Fatalf("distinct records produced identical synthetic context")
	}
}

func TestProjectionDeterminism(t *testing.T) {
	vecsA, artsA, err := Fit(trainingBatch(), "a")
	if err != nil {
		t.Fatalf("fit a: %v", err)
	}
	vecsB, artsB, err := Fit(trainingBatch(), "b")
	if err != nil {
		t.Fatalf("fit b: %v", err)
	}
	for k := range artsA.Projection.Components {
		for j := range artsA.Projection.Components[k] {
			if artsA.Projection.Components[k][j] != artsB.Projection.Components[k][j] {
				t.Fatalf("projection component [%d][%d] differs between identical fits", k, j)
			}
		}
	}
	xa, _ := vecsA[0].Num(colPCAX)
	xb, _ := vecsB[0].Num(colPCAX)
	if xa != xb {
		t.Fatalf("pca_x differs between identical fits: %v vs %v", xa, xb)
	}
}

func TestContractViolation(t *testing.T) {
	arts := fittedBundle(t)
	vec, err := Apply(&models.Transaction{Time: 10, Amount: 10}, arts)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	missingSchema := append([]string{}, arts.Schema...)
	missingSchema = append(missingSchema, "velocity_24h")
	err = ValidateContract(vec, missingSchema)
	cv, ok := err.(*ContractViolation)
	if !ok {
		t.Fatalf("expected ContractViolation, got %v", err)
	}
	if len(cv.Missing) != 1 || cv.Missing[0] != "velocity_24h" {
		t.Fatalf("missing = %v", cv.Missing)
	}

	vec.SetNum("rogue_column", 1)
	err = ValidateContract(vec, arts.Schema)
	cv, ok = err.(*ContractViolation)
	if !ok {
		t.Fatalf("expected ContractViolation, got %v", err)
	}
	if len(cv.Extra) != 1 || cv.Extra[0] != "rogue_column" {
		t.Fatalf("extra = %v", cv.Extra)
	}
}

func TestAmountScalerRobustness(t *testing.T) {
	txns := []*models.Transaction{
		{Time: 1, Amount: 10}, {Time: 2, Amount: 20}, {Time: 3, Amount: 30},
		{Time: 4, Amount: 40}, {Time: 5, Amount: 1000000},
	}
	s := fitAmountScaler(txns)
	if s.Center != 30 {
		t.Fatalf("center = %v, want median 30", s.Center)
	}
	if s.Scale <= 0 {
		t.Fatalf("scale = %v, want > 0", s.Scale)
	}

	// constant amounts must not divide by zero
	flat := []*models.Transaction{{Time: 1, Amount: 5}, {Time: 2, Amount: 5}}
	s = fitAmountScaler(flat)
	if s.Scale != 1 {
		t.Fatalf("degenerate scale = %v, want fallback 1", s.Scale)
	}
}
