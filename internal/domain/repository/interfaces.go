package repository

import (
	"context"
	"time"

	"Frisk/internal/domain/models"
)

// TransactionStream is an upstream live feed of raw transactions.
type TransactionStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Transaction, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// Publisher pushes raw transactions onto the message backbone.
type Publisher interface {
	Publish(ctx context.Context, t *models.Transaction) error
	PublishBatch(ctx context.Context, txns []*models.Transaction) error
	Close() error
}

// Storage persists raw transactions (training/backfill data).
type Storage interface {
	Init(ctx context.Context) error // ensure tables, health checks
	Store(ctx context.Context, t *models.Transaction) error
	StoreBatch(ctx context.Context, txns []*models.Transaction) error
	Query(ctx context.Context, from, to time.Time, limit int) ([]*models.Transaction, error)
	Health(ctx context.Context) error // ping
	Close() error
}

// DecisionLog records scored decisions for audit and monitoring.
type DecisionLog interface {
	Log(ctx context.Context, d *models.Decision) error
	Close() error
}

// DecisionPublisher emits scored decisions as events.
type DecisionPublisher interface {
	Publish(ctx context.Context, d *models.Decision) error
	Close() error
}

// ArtifactStore is a versioned read-only blob store for frozen training
// artifacts. Bundles are written once by the training collaborator and never
// mutated at serving time.
type ArtifactStore interface {
	LoadArtifacts(ctx context.Context, version string) ([]byte, error)
	LoadModels(ctx context.Context, version string) ([]byte, error)
}

// Metrics records operational measurements.
type Metrics interface {
	RecordDecision(label string)
	RecordError(kind string)
	RecordScore(probability float64)
	RecordLatency(op string, seconds float64)
	RecordContractViolation()
}
