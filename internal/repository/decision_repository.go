package repository

import (
	"context"
	"database/sql"
	"fmt"

	"Frisk/internal/domain/models"
	"Frisk/internal/domain/repository"
	pkgkafka "Frisk/pkg/kafka"
)

// ClickHouseDecisionLog implements DecisionLog for ClickHouse. Every scored
// decision lands here with the bundle version for audit and drift monitoring.
type ClickHouseDecisionLog struct {
	db      *sql.DB
	table   string
	version string
}

// NewClickHouseDecisionLog creates a decision log bound to one bundle version.
func NewClickHouseDecisionLog(db *sql.DB, table, version string) repository.DecisionLog {
	return &ClickHouseDecisionLog{db: db, table: table, version: version}
}

func (l *ClickHouseDecisionLog) Log(ctx context.Context, d *models.Decision) error {
	q := fmt.Sprintf("INSERT INTO %s (txn_id, ts, probability, label, clf_proba, anomaly_score, recon_error, cluster_id, model_version) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)", l.table)
	_, err := l.db.ExecContext(ctx, q,
		d.TxnID,
		d.Timestamp,
		d.Probability,
		d.Label,
		d.Signals.ClfProba,
		d.Signals.AnomalyScore,
		d.Signals.ReconError,
		int32(d.Signals.ClusterID),
		l.version,
	)
	return err
}

func (l *ClickHouseDecisionLog) Close() error {
	return nil // Managed by pkg
}

// KafkaDecisionPublisher implements DecisionPublisher: scored decisions as
// events for downstream consumers (case management, alerting).
type KafkaDecisionPublisher struct {
	producer *pkgkafka.Producer
	topic    string
	version  string
}

// NewKafkaDecisionPublisher creates a decision event publisher.
func NewKafkaDecisionPublisher(producer *pkgkafka.Producer, topic, version string) repository.DecisionPublisher {
	return &KafkaDecisionPublisher{producer: producer, topic: topic, version: version}
}

func (p *KafkaDecisionPublisher) Publish(ctx context.Context, d *models.Decision) error {
	return p.producer.Publish(ctx, p.topic, []byte(d.TxnID), map[string]interface{}{
		"txn_id":        d.TxnID,
		"ts":            d.Timestamp.Unix(),
		"probability":   d.Probability,
		"label":         d.Label,
		"clf_proba":     d.Signals.ClfProba,
		"anomaly_score": d.Signals.AnomalyScore,
		"recon_error":   d.Signals.ReconError,
		"cluster_id":    d.Signals.ClusterID,
		"model_version": p.version,
	})
}

func (p *KafkaDecisionPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
