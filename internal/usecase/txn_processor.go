package usecase

import (
	"context"
	"fmt"
	"time"

	"Frisk/internal/domain/models"
	drepo "Frisk/internal/domain/repository"
)

// TxnProcessor routes raw transactions to the configured ingest backend:
// kafka hands them to the scoring consumer group, clickhouse lands them
// directly as training/backfill data.
type TxnProcessor struct {
	pub     drepo.Publisher
	store   drepo.Storage
	metrics drepo.Metrics
	backend string
}

// NewTxnProcessor creates a new TxnProcessor instance.
func NewTxnProcessor(pub drepo.Publisher, store drepo.Storage, metrics drepo.Metrics, backend string) *TxnProcessor {
	return &TxnProcessor{pub: pub, store: store, metrics: metrics, backend: backend}
}

// Process routes a single raw transaction to the configured backend.
func (p *TxnProcessor) Process(ctx context.Context, t *models.Transaction) error {
	if t == nil {
		return fmt.Errorf("transaction is nil")
	}
	start := time.Now()
	var err error

	switch p.backend {
	case "kafka":
		err = p.pub.Publish(ctx, t)
	case "clickhouse":
		err = p.store.Store(ctx, t)
	default:
		err = fmt.Errorf("unknown backend: %s", p.backend)
	}

	if err != nil {
		p.metrics.RecordError("ingest")
		return fmt.Errorf("process transaction: %w", err)
	}
	p.metrics.RecordLatency("ingest", time.Since(start).Seconds())
	return nil
}

// ProcessBatch routes multiple raw transactions in a batch.
func (p *TxnProcessor) ProcessBatch(ctx context.Context, txns []*models.Transaction) error {
	if len(txns) == 0 {
		return nil
	}
	start := time.Now()
	var err error

	switch p.backend {
	case "kafka":
		err = p.pub.PublishBatch(ctx, txns)
	case "clickhouse":
		err = p.store.StoreBatch(ctx, txns)
	default:
		err = fmt.Errorf("unknown backend: %s", p.backend)
	}

	if err != nil {
		p.metrics.RecordError("ingest_batch")
		return fmt.Errorf("process batch: %w", err)
	}
	p.metrics.RecordLatency("ingest_batch", time.Since(start).Seconds())
	return nil
}

// Close closes underlying resources if available.
func (p *TxnProcessor) Close() {
	if p.pub != nil {
		_ = p.pub.Close()
	}
	if p.store != nil {
		_ = p.store.Close()
	}
}
