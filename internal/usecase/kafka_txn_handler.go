package usecase

import (
	"context"
	"encoding/json"

	"Frisk/internal/domain/models"
	domrepo "Frisk/internal/domain/repository"
	pkgkafka "Frisk/pkg/kafka"
)

// KafkaTxnHandler consumes raw transactions off the ingest topic and scores
// them through the same engine the synchronous API uses, so stream and
// request traffic can never diverge.
type KafkaTxnHandler struct {
	topic   string
	engine  *ScoringEngine
	storage domrepo.Storage
	metrics domrepo.Metrics
}

func NewKafkaTxnHandler(topic string, engine *ScoringEngine, storage domrepo.Storage, metrics domrepo.Metrics) *KafkaTxnHandler {
	return &KafkaTxnHandler{topic: topic, engine: engine, storage: storage, metrics: metrics}
}

func (h *KafkaTxnHandler) Topic() string { return h.topic }

// incoming message schema matches the API's transaction input
func (h *KafkaTxnHandler) Handle(ctx context.Context, b []byte) error {
	var m struct {
		TxnID          string   `json:"txn_id"`
		Time           float64  `json:"time"`
		Amount         float64  `json:"amount"`
		MerchantID     *int64   `json:"merchant_id"`
		DeviceType     *string  `json:"device_type"`
		GeoBucket      *int64   `json:"geo_bucket"`
		AccountID      *int64   `json:"account_id"`
		AccountAgeDays *float64 `json:"account_age_days"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}

	t := &models.Transaction{
		TxnID:          m.TxnID,
		Time:           m.Time,
		Amount:         m.Amount,
		MerchantID:     m.MerchantID,
		DeviceType:     m.DeviceType,
		GeoBucket:      m.GeoBucket,
		AccountID:      m.AccountID,
		AccountAgeDays: m.AccountAgeDays,
	}

	// the engine records the decision; bad records are consumed, not retried
	if _, err := h.engine.Predict(ctx, t); err != nil {
		h.metrics.RecordError("consumer_score")
		return nil
	}

	if h.storage != nil {
		if err := h.storage.Store(ctx, t); err != nil {
			h.metrics.RecordError("consumer_store")
			return err
		}
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaTxnHandler)(nil)
