package ensemble

import (
	"fmt"

	"Frisk/internal/feature"
)

// Meta vector slot names. Everything else in the frozen meta order is read
// from the engineered vector by column name.
const (
	slotClfProba     = "clf_proba"
	slotAnomalyScore = "anomaly_score"
	slotReconError   = "recon_error"
	slotClusterID    = "cluster_id"
)

// MetaContractError reports a meta vector that cannot be assembled in the
// frozen order. Scoring must fail loudly rather than serve a misaligned row.
type MetaContractError struct {
	Reason string
}

func (e *MetaContractError) Error() string {
	return "meta contract violation: " + e.Reason
}

// BaseSignals are the first-level model outputs feeding the meta vector.
type BaseSignals struct {
	AnomalyScore float64
	ReconError   float64
	ClusterID    int
}

// AssembleServing builds the meta vector for a live record: the classifier
// slot carries the live first-level prediction.
func AssembleServing(vec *feature.Vector, order []string, liveProba float64, sig BaseSignals) ([]float64, error) {
	return assemble(vec, order, liveProba, sig)
}

// AssembleTraining builds the meta vector for a training row: the classifier
// slot carries the out-of-fold estimate so the meta-learner never trains on
// in-fold leakage. Same slot, same order, different provenance.
func AssembleTraining(vec *feature.Vector, order []string, oofProba float64, sig BaseSignals) ([]float64, error) {
	return assemble(vec, order, oofProba, sig)
}

// assemble fills the frozen positional order. There is no reordering, no
// padding and no silent skipping: a name that resolves nowhere aborts the
// whole row.
func assemble(vec *feature.Vector, order []string, clfProba float64, sig BaseSignals) ([]float64, error) {
	if len(order) == 0 {
		return nil, &MetaContractError{Reason: "frozen meta order is empty"}
	}
	meta := make([]float64, len(order))
	for i, name := range order {
		switch name {
		case slotClfProba:
			meta[i] = clfProba
		case slotAnomalyScore:
			meta[i] = sig.AnomalyScore
		case slotReconError:
			meta[i] = sig.ReconError
		case slotClusterID:
			meta[i] = float64(sig.ClusterID)
		default:
			val, ok := vec.Num(name)
			if !ok {
				return nil, &MetaContractError{
					Reason: fmt.Sprintf("meta feature %q (position %d) not present in engineered vector", name, i),
				}
			}
			meta[i] = val
		}
	}
	return meta, nil
}
