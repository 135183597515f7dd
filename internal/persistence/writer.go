package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// EventLogWriter writes envelopes and solvency audit rows to Postgres using
// batch inserts. Multi-row INSERT is a portable alternative to the COPY
// protocol; switch to pgx CopyFrom for production-grade throughput.
type EventLogWriter struct {
	db           *sql.DB
	batchSize    int
	flushTimeout time.Duration
}

// EventRow represents a row in event_log.events
type EventRow struct {
	Sequence       int64
	EventType      string
	IdempotencyKey string
	EntityID       *string
	Payload        []byte // JSON-encoded event payload
	StateDelta     []byte
	StateHash      []byte
	PrevHash       []byte
	Timestamp      time.Time
	SourceSequence int64
}

// AuditRow represents a row in event_log.solvency_audit: the reserve and
// solvency position after the event at Sequence was applied.
type AuditRow struct {
	Sequence        int64
	Tier0Balance    int64
	Tier1Balance    int64
	Tier2Balance    int64
	IbnrEstimate    int64
	RunoffBalance   int64
	TotalClaimsPaid int64
	CarBps          int64
	Zone            int32
	ShockFactorBps  int64
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func NewEventLogWriter(db *sql.DB, batchSize int, flushTimeout time.Duration) *EventLogWriter {
	return &EventLogWriter{
		db:           db,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
	}
}

// WriteEventBatch writes a batch of events to event_log.events using multi-row INSERT.
func (w *EventLogWriter) WriteEventBatch(ctx context.Context, ex execer, events []EventRow) error {
	if len(events) == 0 {
		return nil
	}

	// Build multi-row INSERT
	query := `INSERT INTO event_log.events
		(sequence, event_type, idempotency_key, entity_id, payload, state_delta, state_hash, prev_hash, timestamp, source_sequence)
		VALUES `

	values := make([]string, 0, len(events))
	args := make([]interface{}, 0, len(events)*10)

	for i, e := range events {
		base := i * 10
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9, base+10,
		))
		args = append(args,
			e.Sequence, e.EventType, e.IdempotencyKey, e.EntityID,
			e.Payload, e.StateDelta, e.StateHash, e.PrevHash, e.Timestamp, e.SourceSequence,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence) DO NOTHING" // Idempotent writes

	_, err := ex.ExecContext(ctx, query, args...)
	return err
}

// WriteAuditBatch writes a batch of solvency audit rows to event_log.solvency_audit.
func (w *EventLogWriter) WriteAuditBatch(ctx context.Context, ex execer, audits []AuditRow) error {
	if len(audits) == 0 {
		return nil
	}

	query := `INSERT INTO event_log.solvency_audit
		(sequence, tier0_balance, tier1_balance, tier2_balance, ibnr_estimate, runoff_balance, total_claims_paid, car_bps, zone, shock_factor_bps)
		VALUES `

	values := make([]string, 0, len(audits))
	args := make([]interface{}, 0, len(audits)*10)

	for i, a := range audits {
		base := i * 10
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9, base+10,
		))
		args = append(args,
			a.Sequence, a.Tier0Balance, a.Tier1Balance, a.Tier2Balance,
			a.IbnrEstimate, a.RunoffBalance, a.TotalClaimsPaid, a.CarBps,
			a.Zone, a.ShockFactorBps,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence) DO NOTHING"

	_, err := ex.ExecContext(ctx, query, args...)
	return err
}

// MarshalPayload is a convenience wrapper for JSON-encoding event payloads.
func MarshalPayload(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to marshal payload")
		return []byte("{}")
	}
	return data
}
