package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"Frisk/internal/domain/models"
	drepo "Frisk/internal/domain/repository"
	"Frisk/internal/ensemble"
	"Frisk/internal/feature"
	"Frisk/pkg/cache"
	"Frisk/pkg/logger"
)

// ErrNotReady is returned while the engine has no loaded artifact bundle.
var ErrNotReady = errors.New("scoring engine not ready")

const explainCacheTTL = 10 * time.Minute

// ScoringEngine runs the frozen feature pipeline and ensemble over single
// transactions. Everything it holds is read-only after construction; one
// engine serves concurrent requests without locking.
type ScoringEngine struct {
	arts      *feature.Artifacts
	models    *ensemble.ModelSet
	explainer *ensemble.Explainer
	cache     cache.Service
	log       *logger.Logger
	metrics   drepo.Metrics
	decisions drepo.DecisionLog
	events    drepo.DecisionPublisher
}

// NewScoringEngine wires a frozen bundle into a serving engine. decisions,
// events and explCache may be nil; those paths are best-effort.
func NewScoringEngine(
	arts *feature.Artifacts,
	set *ensemble.ModelSet,
	explCache cache.Service,
	log *logger.Logger,
	metrics drepo.Metrics,
	decisions drepo.DecisionLog,
	events drepo.DecisionPublisher,
) (*ScoringEngine, error) {
	if arts == nil || set == nil {
		return nil, ErrNotReady
	}
	if err := arts.Validate(); err != nil {
		return nil, fmt.Errorf("scoring engine: %w", err)
	}
	if err := set.Validate(arts); err != nil {
		return nil, fmt.Errorf("scoring engine: %w", err)
	}
	return &ScoringEngine{
		arts:      arts,
		models:    set,
		explainer: ensemble.NewExplainer(set.Classifier, arts.ModelFeatures[feature.ModelClassifier]),
		cache:     explCache,
		log:       log,
		metrics:   metrics,
		decisions: decisions,
		events:    events,
	}, nil
}

// Version returns the loaded bundle version.
func (e *ScoringEngine) Version() string { return e.arts.Version }

// Ready reports whether the engine can score traffic.
func (e *ScoringEngine) Ready() bool { return e != nil && e.arts != nil && e.models != nil }

// Predict scores one raw transaction end to end: engineer, validate against
// the frozen schema, run the ensemble, stack, threshold.
func (e *ScoringEngine) Predict(ctx context.Context, t *models.Transaction) (*models.Decision, error) {
	if !e.Ready() {
		return nil, ErrNotReady
	}
	start := time.Now()

	vec, err := feature.Apply(t, e.arts)
	if err != nil {
		e.metrics.RecordError("feature_apply")
		return nil, err
	}
	if err := feature.ValidateContract(vec, e.arts.Schema); err != nil {
		e.metrics.RecordContractViolation()
		e.log.Error("feature contract violated", logger.String("version", e.arts.Version), logger.Error(err))
		return nil, err
	}

	sig, proba, err := e.score(vec)
	if err != nil {
		e.metrics.RecordError("score")
		return nil, err
	}

	label := models.LabelLegit
	if proba >= e.arts.Threshold {
		label = models.LabelFraud
	}
	d := &models.Decision{
		TxnID:       t.TxnID,
		Timestamp:   time.Now().UTC(),
		Probability: proba,
		Label:       label,
		Signals:     sig,
	}

	e.metrics.RecordScore(proba)
	e.metrics.RecordDecision(label)
	e.metrics.RecordLatency("predict", time.Since(start).Seconds())

	e.log.Debug("transaction scored",
		logger.String("txn_id", t.TxnID),
		logger.Float64("probability", proba),
		logger.String("label", label))

	e.record(ctx, d)
	return d, nil
}

// Explain attributes the supervised margin of one transaction to its
// engineered features, truncated to the k largest absolute contributions.
func (e *ScoringEngine) Explain(ctx context.Context, t *models.Transaction, k int) (*models.Explanation, error) {
	if !e.Ready() {
		return nil, ErrNotReady
	}
	start := time.Now()

	key := ""
	if e.cache != nil && t.TxnID != "" {
		key = cache.GenerateKeyWithParams("explain", e.arts.Version, t.TxnID, k)
		var cached models.Explanation
		if err := e.cache.Get(ctx, key, &cached); err == nil {
			return &cached, nil
		}
	}

	vec, err := feature.Apply(t, e.arts)
	if err != nil {
		e.metrics.RecordError("feature_apply")
		return nil, err
	}
	if err := feature.ValidateContract(vec, e.arts.Schema); err != nil {
		e.metrics.RecordContractViolation()
		return nil, err
	}

	exp, err := e.explainer.Explain(t.TxnID, vec, k)
	if err != nil {
		e.metrics.RecordError("explain")
		return nil, err
	}
	e.metrics.RecordLatency("explain", time.Since(start).Seconds())

	if key != "" {
		if err := e.cache.Set(ctx, key, exp, explainCacheTTL); err != nil {
			e.log.Warn("explanation cache write failed", logger.Error(err))
		}
	}
	return exp, nil
}

// score runs the first-level models and the stacker over one validated
// vector. Each model sees only its frozen feature slice.
func (e *ScoringEngine) score(vec *feature.Vector) (models.BaseSignals, float64, error) {
	var sig models.BaseSignals

	clfX, err := vec.Slice(e.arts.ModelFeatures[feature.ModelClassifier])
	if err != nil {
		return sig, 0, err
	}
	sig.ClfProba = e.models.Classifier.PredictProba(clfX)

	ifX, err := vec.Slice(e.arts.ModelFeatures[feature.ModelIForest])
	if err != nil {
		return sig, 0, err
	}
	sig.AnomalyScore = e.models.IForest.Anomaly(ifX)

	aeX, err := vec.Slice(e.arts.ModelFeatures[feature.ModelAutoencoder])
	if err != nil {
		return sig, 0, err
	}
	latent, reconErr := e.models.Autoencoder.Reconstruct(aeX)
	sig.ReconError = reconErr
	sig.Latent = latent
	sig.ClusterID = e.models.KMeans.Assign(latent)

	meta, err := ensemble.AssembleServing(vec, e.arts.MetaFeatures, sig.ClfProba, ensemble.BaseSignals{
		AnomalyScore: sig.AnomalyScore,
		ReconError:   sig.ReconError,
		ClusterID:    sig.ClusterID,
	})
	if err != nil {
		return sig, 0, err
	}
	proba, err := e.models.Stacker.Predict(meta)
	if err != nil {
		return sig, 0, err
	}
	return sig, proba, nil
}

// record persists and publishes a decision best-effort; failures never block
// the scoring response.
func (e *ScoringEngine) record(ctx context.Context, d *models.Decision) {
	if e.decisions != nil {
		if err := e.decisions.Log(ctx, d); err != nil {
			e.metrics.RecordError("decision_log")
			e.log.Warn("decision log write failed", logger.String("txn_id", d.TxnID), logger.Error(err))
		}
	}
	if e.events != nil {
		if err := e.events.Publish(ctx, d); err != nil {
			e.metrics.RecordError("decision_publish")
			e.log.Warn("decision publish failed", logger.String("txn_id", d.TxnID), logger.Error(err))
		}
	}
}
