package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"Frisk/internal/domain/models"
	"Frisk/internal/domain/repository"
	pkgkafka "Frisk/pkg/kafka"
)

// ClickHouseStorage implements Storage for ClickHouse. Raw transactions land
// here as training/backfill data.
type ClickHouseStorage struct {
	db    *sql.DB
	table string
}

// NewClickHouseStorage creates ClickHouse storage.
func NewClickHouseStorage(db *sql.DB, table string) repository.Storage {
	return &ClickHouseStorage{db: db, table: table}
}

func (s *ClickHouseStorage) Init(ctx context.Context) error {
	return nil // Schema init in pkg
}

func txnArgs(t *models.Transaction) []interface{} {
	return []interface{}{
		t.TxnID,
		time.Now().UTC(),
		t.Time,
		t.Amount,
		t.MerchantID,
		t.DeviceType,
		t.GeoBucket,
		t.AccountID,
		t.AccountAgeDays,
	}
}

const txnColumns = "txn_id, ingested_at, time_s, amount, merchant_id, device_type, geo_bucket, account_id, account_age_days"

func (s *ClickHouseStorage) Store(ctx context.Context, t *models.Transaction) error {
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)", s.table, txnColumns)
	_, err := s.db.ExecContext(ctx, q, txnArgs(t)...)
	return err
}

func (s *ClickHouseStorage) StoreBatch(ctx context.Context, txns []*models.Transaction) error {
	if len(txns) == 0 {
		return nil
	}
	// Batch insert using VALUES multi-row to reduce round-trips.
	const chunkSize = 2000
	for start := 0; start < len(txns); start += chunkSize {
		end := start + chunkSize
		if end > len(txns) {
			end = len(txns)
		}

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*9)
		for _, t := range txns[start:end] {
			if t == nil {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args, txnArgs(t)...)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", s.table, txnColumns, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return err
		}
	}
	return nil
}

func (s *ClickHouseStorage) Query(ctx context.Context, from, to time.Time, limit int) ([]*models.Transaction, error) {
	q := fmt.Sprintf("SELECT txn_id, time_s, amount, merchant_id, device_type, geo_bucket, account_id, account_age_days FROM %s WHERE ingested_at >= ? AND ingested_at <= ? ORDER BY ingested_at DESC LIMIT ?", s.table)
	rows, err := s.db.QueryContext(ctx, q, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txns []*models.Transaction
	for rows.Next() {
		var t models.Transaction
		var (
			merchant sql.NullInt64
			device   sql.NullString
			geo      sql.NullInt64
			account  sql.NullInt64
			age      sql.NullFloat64
		)
		if err := rows.Scan(&t.TxnID, &t.Time, &t.Amount, &merchant, &device, &geo, &account, &age); err != nil {
			return nil, err
		}
		if merchant.Valid {
			t.MerchantID = &merchant.Int64
		}
		if device.Valid {
			t.DeviceType = &device.String
		}
		if geo.Valid {
			t.GeoBucket = &geo.Int64
		}
		if account.Valid {
			t.AccountID = &account.Int64
		}
		if age.Valid {
			t.AccountAgeDays = &age.Float64
		}
		txns = append(txns, &t)
	}
	return txns, rows.Err()
}

func (s *ClickHouseStorage) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *ClickHouseStorage) Close() error {
	return nil // Managed by pkg
}

// KafkaPublisher implements Publisher for Kafka: raw transactions keyed by
// account so one account's stream stays ordered within a partition.
type KafkaPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaPublisher creates Kafka publisher.
func NewKafkaPublisher(producer *pkgkafka.Producer, topic string) repository.Publisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

func txnPayload(t *models.Transaction) map[string]interface{} {
	return map[string]interface{}{
		"txn_id":           t.TxnID,
		"time":             t.Time,
		"amount":           t.Amount,
		"merchant_id":      t.MerchantID,
		"device_type":      t.DeviceType,
		"geo_bucket":       t.GeoBucket,
		"account_id":       t.AccountID,
		"account_age_days": t.AccountAgeDays,
	}
}

func txnKey(t *models.Transaction) []byte {
	if t.AccountID != nil {
		return []byte(fmt.Sprintf("acct-%d", *t.AccountID))
	}
	return []byte(t.TxnID)
}

func (p *KafkaPublisher) Publish(ctx context.Context, t *models.Transaction) error {
	return p.producer.Publish(ctx, p.topic, txnKey(t), txnPayload(t))
}

func (p *KafkaPublisher) PublishBatch(ctx context.Context, txns []*models.Transaction) error {
	if len(txns) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(txns))
	for i, t := range txns {
		msgs[i] = pkgkafka.Message{Key: txnKey(t), Value: txnPayload(t)}
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
