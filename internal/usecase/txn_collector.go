package usecase

import (
	"context"

	"Frisk/internal/domain/models"
	drepo "Frisk/internal/domain/repository"
	mid "Frisk/internal/middleware"
)

// TxnCollector pulls raw transactions off the upstream feed and pushes them
// through the ingest pipeline into the configured backend.
type TxnCollector struct {
	stream  drepo.TransactionStream
	proc    *TxnProcessor
	metrics drepo.Metrics
	pipe    *mid.IngestPipeline
}

// NewTxnCollector creates a new TxnCollector instance.
func NewTxnCollector(stream drepo.TransactionStream, proc *TxnProcessor, metrics drepo.Metrics, pipe *mid.IngestPipeline) *TxnCollector {
	return &TxnCollector{stream: stream, proc: proc, metrics: metrics, pipe: pipe}
}

// IsConnected returns true if the upstream feed is connected.
func (c *TxnCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

func (c *TxnCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	if c.pipe != nil {
		c.pipe.Start(ctx)
	}
	txnCh, errCh := c.stream.Read(ctx)
	go c.consume(ctx, txnCh, errCh)
	return nil
}

func (c *TxnCollector) consume(ctx context.Context, txnCh <-chan *models.Transaction, errCh <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-errCh:
			if err != nil {
				c.metrics.RecordError("stream")
				_ = c.stream.Reconnect(ctx)
			}
		case t := <-txnCh:
			if t == nil {
				continue
			}
			if c.pipe != nil {
				_ = c.pipe.Process(ctx, t)
			} else {
				_ = c.proc.Process(ctx, t)
			}
		}
	}
}

func (c *TxnCollector) Stop() error { return c.stream.Close() }

// Processor returns the underlying TxnProcessor for lifecycle management.
func (c *TxnCollector) Processor() *TxnProcessor { return c.proc }

// Shutdown stops the pipeline and closes the feed.
func (c *TxnCollector) Shutdown(ctx context.Context) error {
	if c.pipe != nil {
		c.pipe.Stop()
	}
	return c.stream.Close()
}
