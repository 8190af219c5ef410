package ensemble

import "fmt"

// Stacker is the fitted logistic meta-learner. Weights align positionally
// with the frozen meta feature order; any length drift is a contract breach,
// not a recoverable condition.
type Stacker struct {
	Weights   []float64 `json:"weights"`
	Intercept float64   `json:"intercept"`
}

// Predict returns the final fraud probability for one assembled meta vector.
func (s *Stacker) Predict(meta []float64) (float64, error) {
	if len(meta) != len(s.Weights) {
		return 0, &MetaContractError{
			Reason: fmt.Sprintf("meta vector length %d does not match stacker weights %d", len(meta), len(s.Weights)),
		}
	}
	m := s.Intercept
	for i, w := range s.Weights {
		m += w * meta[i]
	}
	return sigmoid(m), nil
}

func (s *Stacker) validate(nMeta int) error {
	if len(s.Weights) == 0 {
		return fmt.Errorf("stacker has no weights")
	}
	if len(s.Weights) != nMeta {
		return fmt.Errorf("stacker expects %d meta features, bundle freezes %d", len(s.Weights), nMeta)
	}
	return nil
}
