package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"os"

	"Frisk/internal/domain/models"
	"Frisk/internal/ensemble"
	"Frisk/internal/feature"
	"Frisk/internal/repository"
	"Frisk/internal/usecase"
)

// frisk-verify loads a bundle from disk and dry-runs the serving path: it
// checks that scoring is deterministic, that the engineered vector closes
// over the frozen schema, and that attributions decompose the margin exactly.
func main() {
	dir := flag.String("dir", "models", "bundle directory (<dir>/<version>/{artifacts,models}.json)")
	version := flag.String("version", "", "bundle version to verify")
	txnPath := flag.String("txn", "", "optional JSON file with a transaction to score")
	flag.Parse()

	if *version == "" {
		log.Fatal("-version is required")
	}

	store := repository.NewFileArtifactStore(*dir)
	arts, set, err := usecase.LoadBundle(context.Background(), store, *version)
	if err != nil {
		log.Fatalf("load bundle: %v", err)
	}
	fmt.Printf("bundle %s: schema=%d columns, meta=%d features, threshold=%.4f\n",
		arts.Version, len(arts.Schema), len(arts.MetaFeatures), arts.Threshold)

	txn := &models.Transaction{TxnID: "verify-1", Time: 100000, Amount: 149.62}
	if *txnPath != "" {
		b, err := os.ReadFile(*txnPath)
		if err != nil {
			log.Fatalf("read txn: %v", err)
		}
		if err := json.Unmarshal(b, txn); err != nil {
			log.Fatalf("parse txn: %v", err)
		}
	}

	vec, err := feature.Apply(txn, arts)
	if err != nil {
		log.Fatalf("feature apply: %v", err)
	}
	if err := feature.ValidateContract(vec, arts.Schema); err != nil {
		log.Fatalf("contract: %v", err)
	}
	fmt.Println("contract: ok")

	again, err := feature.Apply(txn, arts)
	if err != nil {
		log.Fatalf("feature re-apply: %v", err)
	}
	for _, col := range arts.Schema {
		a, aNum := vec.Num(col)
		b, _ := again.Num(col)
		if aNum && a != b {
			log.Fatalf("determinism: column %q differs between runs (%v vs %v)", col, a, b)
		}
	}
	fmt.Println("determinism: ok")

	clfFeatures := arts.ModelFeatures[feature.ModelClassifier]
	x, err := vec.Slice(clfFeatures)
	if err != nil {
		log.Fatalf("slice: %v", err)
	}
	explainer := ensemble.NewExplainer(set.Classifier, clfFeatures)
	exp, err := explainer.Explain(txn.TxnID, vec, len(clfFeatures))
	if err != nil {
		log.Fatalf("explain: %v", err)
	}
	var sum float64
	for _, a := range exp.Attributions {
		sum += a.Contribution
	}
	margin := set.Classifier.Margin(x)
	if diff := math.Abs(sum - (margin - explainer.Baseline())); diff > 1e-9 {
		log.Fatalf("attribution: contributions sum off by %v", diff)
	}
	fmt.Printf("attribution: ok (margin=%.6f baseline=%.6f)\n", margin, explainer.Baseline())
	fmt.Printf("probability: %.6f\n", exp.Probability)
}
