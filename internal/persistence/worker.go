package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"CareLedger/internal/observability"
)

var logger = observability.NewLogger("persistence")

// CoreOutput mirrors engine.CoreOutput in persistence-ready form.
// The orchestrator (cmd/main.go) bridges between the two.
type CoreOutput struct {
	EventRow EventRow
	AuditRow AuditRow
}

// PersistenceWorker drains the persist channel and batch-writes to Postgres.
// This goroutine runs independently from the deterministic core. The persist
// channel uses BLOCKING sends from the core, so if this worker falls behind,
// the core stalls — guaranteeing no event is lost.
type PersistenceWorker struct {
	writer       *EventLogWriter
	inputChan    <-chan CoreOutput
	batchSize    int
	flushTimeout time.Duration
	metrics      *observability.Metrics
}

func NewPersistenceWorker(
	db *sql.DB,
	inputChan <-chan CoreOutput,
	batchSize int,
	flushTimeout time.Duration,
	metrics *observability.Metrics,
) *PersistenceWorker {
	return &PersistenceWorker{
		writer:       NewEventLogWriter(db, batchSize, flushTimeout),
		inputChan:    inputChan,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		metrics:      metrics,
	}
}

// Run starts the persistence worker loop. It batches incoming outputs
// and flushes either when the batch is full or the flush timeout expires.
// Blocks until ctx is cancelled.
func (pw *PersistenceWorker) Run(ctx context.Context) error {
	eventBatch := make([]EventRow, 0, pw.batchSize)
	auditBatch := make([]AuditRow, 0, pw.batchSize)

	timer := time.NewTimer(pw.flushTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			// Graceful shutdown: flush remaining
			if len(eventBatch) > 0 {
				if err := pw.flush(context.Background(), eventBatch, auditBatch); err != nil {
					logger.Error().Err(err).Msg("final flush failed")
				}
			}
			return ctx.Err()

		case output, ok := <-pw.inputChan:
			if !ok {
				// Channel closed — flush and exit
				if len(eventBatch) > 0 {
					if err := pw.flush(context.Background(), eventBatch, auditBatch); err != nil {
						logger.Error().Err(err).Msg("final flush failed")
					}
				}
				return nil
			}

			eventBatch = append(eventBatch, output.EventRow)
			auditBatch = append(auditBatch, output.AuditRow)

			// Flush if batch is full
			if len(eventBatch) >= pw.batchSize {
				if err := pw.flushWithRetry(ctx, eventBatch, auditBatch); err != nil {
					logger.Error().Err(err).Msg("batch flush failed after retries")
				}
				eventBatch = eventBatch[:0]
				auditBatch = auditBatch[:0]
				timer.Reset(pw.flushTimeout)
			}

		case <-timer.C:
			// Flush timeout — write whatever we have
			if len(eventBatch) > 0 {
				if err := pw.flushWithRetry(ctx, eventBatch, auditBatch); err != nil {
					logger.Error().Err(err).Msg("timeout flush failed after retries")
				}
				eventBatch = eventBatch[:0]
				auditBatch = auditBatch[:0]
			}
			timer.Reset(pw.flushTimeout)
		}
	}
}

// flushWithRetry attempts to flush with exponential backoff. The worker NEVER
// drops events — it retries until the write succeeds or the context is
// cancelled, at which point it makes one final attempt before giving up.
func (pw *PersistenceWorker) flushWithRetry(ctx context.Context, events []EventRow, audits []AuditRow) error {
	backoff := 100 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			logger.Warn().
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Int("events", len(events)).
				Msg("persistence retry")
			select {
			case <-ctx.Done():
				finalErr := pw.flush(context.Background(), events, audits)
				if finalErr != nil {
					return fmt.Errorf("final flush on shutdown failed: %w", finalErr)
				}
				return nil
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		err := pw.flush(ctx, events, audits)
		if err == nil {
			if attempt > 0 {
				logger.Info().Int("retries", attempt).Msg("persistence flush succeeded after retries")
			}
			return nil
		}

		if pw.metrics != nil {
			pw.metrics.PersistErrors.WithLabelValues("retry").Inc()
			pw.metrics.PersistRetry.Inc()
		}
	}
}

func (pw *PersistenceWorker) flush(ctx context.Context, events []EventRow, audits []AuditRow) error {
	start := time.Now()

	// Write events and audit rows in a single transaction
	tx, err := pw.writer.db.BeginTx(ctx, nil)
	if err != nil {
		if pw.metrics != nil {
			pw.metrics.PersistErrors.WithLabelValues("tx_begin").Inc()
		}
		return err
	}
	defer tx.Rollback()

	if err := pw.writer.WriteEventBatch(ctx, tx, events); err != nil {
		if pw.metrics != nil {
			pw.metrics.PersistErrors.WithLabelValues("write_events").Inc()
		}
		return err
	}

	if err := pw.writer.WriteAuditBatch(ctx, tx, audits); err != nil {
		if pw.metrics != nil {
			pw.metrics.PersistErrors.WithLabelValues("write_audit").Inc()
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		if pw.metrics != nil {
			pw.metrics.PersistErrors.WithLabelValues("tx_commit").Inc()
		}
		return err
	}

	// Record metrics on success
	if pw.metrics != nil {
		pw.metrics.PersistBatchDur.Observe(time.Since(start).Seconds())
		pw.metrics.PersistBatchSize.Observe(float64(len(events)))
		pw.metrics.PersistEventsWritten.Add(float64(len(events)))
		if len(events) > 0 {
			pw.metrics.PersistLastSequence.Set(float64(events[len(events)-1].Sequence))
		}
	}

	return nil
}

// GetWriter returns the underlying writer.
func (pw *PersistenceWorker) GetWriter() *EventLogWriter {
	return pw.writer
}
