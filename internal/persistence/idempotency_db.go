package persistence

import (
	"context"
	"database/sql"
	"time"
)

// dbLookupTimeout bounds the cold-path dedup query so a slow Postgres cannot
// stall the core's event loop indefinitely.
const dbLookupTimeout = 500 * time.Millisecond

// PostgresIdempotencyChecker is the cold tier of the two-tier dedup: the LRU
// misses fall through to the event log itself.
// Implements engine.DBIdempotencyChecker.
type PostgresIdempotencyChecker struct {
	db *sql.DB
}

func NewPostgresIdempotencyChecker(db *sql.DB) *PostgresIdempotencyChecker {
	return &PostgresIdempotencyChecker{db: db}
}

// IsDuplicate checks whether the event already exists in the event log.
func (pic *PostgresIdempotencyChecker) IsDuplicate(eventType string, idempotencyKey string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), dbLookupTimeout)
	defer cancel()

	var exists int
	err := pic.db.QueryRowContext(ctx, `
		SELECT 1
		FROM event_log.events
		WHERE event_type = $1 AND idempotency_key = $2
		LIMIT 1
	`, eventType, idempotencyKey).Scan(&exists)

	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
