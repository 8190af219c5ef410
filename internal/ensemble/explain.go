package ensemble

import (
	"fmt"
	"math"
	"sort"

	"Frisk/internal/domain/models"
	"Frisk/internal/feature"
)

// Explainer produces per-feature attributions for the first-level classifier.
// Contributions live in margin (log-odds) space and decompose exactly:
// sum(contributions) == Margin(x) - Baseline().
type Explainer struct {
	model    *GBT
	features []string
	baseline float64
}

// NewExplainer binds an explainer to the classifier and its frozen feature
// list.
func NewExplainer(model *GBT, features []string) *Explainer {
	return &Explainer{model: model, features: features, baseline: model.Baseline()}
}

// Baseline returns the population-expected margin.
func (e *Explainer) Baseline() float64 {
	return e.baseline
}

// Explain attributes the classifier margin of one engineered vector to its
// input features and returns the k largest by absolute contribution, each
// paired with the value the model actually observed.
func (e *Explainer) Explain(txnID string, vec *feature.Vector, k int) (*models.Explanation, error) {
	x, err := vec.Slice(e.features)
	if err != nil {
		return nil, fmt.Errorf("explain: %w", err)
	}

	contribs := make([]float64, len(e.features))
	e.model.pathContribs(x, contribs)

	idx := make([]int, len(contribs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return math.Abs(contribs[idx[a]]) > math.Abs(contribs[idx[b]])
	})
	if k > len(idx) {
		k = len(idx)
	}

	attrs := make([]models.FeatureAttribution, k)
	for i := 0; i < k; i++ {
		j := idx[i]
		attrs[i] = models.FeatureAttribution{
			Feature:      e.features[j],
			Contribution: contribs[j],
			Value:        x[j],
		}
	}
	return &models.Explanation{
		TxnID:        txnID,
		Probability:  sigmoid(e.model.Margin(x)),
		Baseline:     e.baseline,
		Attributions: attrs,
	}, nil
}
