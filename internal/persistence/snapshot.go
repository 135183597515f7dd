package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
)

// SnapshotManager handles creating and loading state snapshots for recovery.
// Snapshots contain the reserve position, solvency state, governance
// parameters, open claims, accumulators, idempotency LRU, sequence counters,
// and the last state hash.
type SnapshotManager struct {
	db *sql.DB
}

// SnapshotData wraps the serialized core state. State is the JSON encoding
// of engine.SnapshotState; persistence stays agnostic of its layout so
// format changes only touch the format_version.
type SnapshotData struct {
	Sequence  int64           `json:"sequence"`
	StateHash []byte          `json:"state_hash"`
	State     json.RawMessage `json:"state"`
	CreatedAt time.Time       `json:"created_at"`
}

func NewSnapshotManager(db *sql.DB) *SnapshotManager {
	return &SnapshotManager{db: db}
}

// SaveSnapshot persists a snapshot to Postgres. Snapshots are taken
// periodically (every N events) and verified before they are eligible for
// recovery.
func (sm *SnapshotManager) SaveSnapshot(ctx context.Context, snap *SnapshotData) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	snapshotID := uuid.New()
	sizeBytes := len(data)
	formatVersion := int32(1) // v1: JSON-encoded SnapshotData

	_, err = sm.db.ExecContext(ctx, `
		INSERT INTO event_log.snapshots
			(snapshot_id, sequence, data, state_hash, format_version, size_bytes, verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)
		ON CONFLICT (sequence) DO UPDATE SET data = $3, state_hash = $4, size_bytes = $6
	`, snapshotID, snap.Sequence, data, snap.StateHash, formatVersion, sizeBytes, snap.CreatedAt)

	return err
}

// LoadLatestSnapshot loads the most recent verified snapshot. On warm
// restart, load the latest snapshot then replay events from
// snapshot.sequence+1.
func (sm *SnapshotManager) LoadLatestSnapshot(ctx context.Context) (*SnapshotData, error) {
	row := sm.db.QueryRowContext(ctx, `
		SELECT data FROM event_log.snapshots
		WHERE verified = TRUE
		ORDER BY sequence DESC
		LIMIT 1
	`)

	var data []byte
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // No snapshot — cold start
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var snap SnapshotData
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}

	return &snap, nil
}

// MarkVerified marks a snapshot as verified after integrity check.
func (sm *SnapshotManager) MarkVerified(ctx context.Context, sequence int64) error {
	_, err := sm.db.ExecContext(ctx, `
		UPDATE event_log.snapshots SET verified = TRUE WHERE sequence = $1
	`, sequence)
	return err
}

// LoadEventsFrom loads events from a given sequence for replay. Used for
// warm restart (replay from snapshot) and cold restart (replay all).
func (sm *SnapshotManager) LoadEventsFrom(ctx context.Context, fromSequence int64, limit int) ([]EventRow, error) {
	rows, err := sm.db.QueryContext(ctx, `
		SELECT sequence, event_type, idempotency_key, entity_id, payload,
		       state_delta, state_hash, prev_hash, timestamp, source_sequence
		FROM event_log.events
		WHERE sequence >= $1
		ORDER BY sequence ASC
		LIMIT $2
	`, fromSequence, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		if err := rows.Scan(
			&e.Sequence, &e.EventType, &e.IdempotencyKey, &e.EntityID,
			&e.Payload, &e.StateDelta, &e.StateHash, &e.PrevHash, &e.Timestamp, &e.SourceSequence,
		); err != nil {
			return nil, err
		}
		events = append(events, e)
	}

	return events, rows.Err()
}

// GetLatestSequence returns the highest sequence in the event log.
func (sm *SnapshotManager) GetLatestSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := sm.db.QueryRowContext(ctx, `
		SELECT MAX(sequence) FROM event_log.events
	`).Scan(&seq)
	if err != nil {
		return 0, err
	}
	if !seq.Valid {
		return 0, nil // Empty event log
	}
	return seq.Int64, nil
}
