package projection

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"CareLedger/internal/observability"
)

var logger = observability.NewLogger("projection")

// ProjectionOutput mirrors the data needed by projection workers.
// The orchestrator bridges between engine.CoreOutput and this.
type ProjectionOutput struct {
	Sequence  int64
	EventType string
	Claim     *ClaimRow
	Audit     AuditRow
	Timestamp time.Time
}

// ClaimRow is the claim read-model row after the event was applied.
type ClaimRow struct {
	ClaimID              uuid.UUID
	MemberID             uuid.UUID
	Status               string
	Lane                 string
	Category             int32
	RequestedAmount      int64
	ApprovedAmount       int64
	PaidAmount           int64
	AttestationCount     int32
	AppealCount          int32
	IsShockClaim         bool
	DenialReason         string
	ServiceDate          time.Time
	SubmittedAt          time.Time
	StatusChangedAt      time.Time
	AttestationStartedAt time.Time
}

// AuditRow is the solvency position after the event was applied.
type AuditRow struct {
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

// ProjectionWorker updates projection tables from processed events.
// The projection channel is non-blocking with drop: if projections fall
// behind, they can be rebuilt from the event log.
type ProjectionWorker struct {
	db        *sql.DB
	inputChan <-chan ProjectionOutput
	history   *ClaimHistory
	lastSeq   int64
}

func NewProjectionWorker(db *sql.DB, inputChan <-chan ProjectionOutput) *ProjectionWorker {
	return &ProjectionWorker{
		db:        db,
		inputChan: inputChan,
		history:   NewClaimHistory(defaultHistoryCapacity),
	}
}

// History returns the in-memory claim status history maintained by this worker.
func (pw *ProjectionWorker) History() *ClaimHistory {
	return pw.history
}

// Run starts the projection worker loop.
func (pw *ProjectionWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case output, ok := <-pw.inputChan:
			if !ok {
				return nil
			}

			if err := pw.processOutput(ctx, output); err != nil {
				logger.Warn().Err(err).Int64("sequence", output.Sequence).Msg("projection update failed")
				// Continue — projections are eventually consistent
				// and can be rebuilt from the event log
			}

			if output.Claim != nil {
				pw.history.Add(HistoryEntry{
					ClaimID:   output.Claim.ClaimID,
					MemberID:  output.Claim.MemberID,
					EventType: output.EventType,
					Status:    output.Claim.Status,
					Amount:    output.Claim.PaidAmount,
					Sequence:  output.Sequence,
					Timestamp: output.Timestamp,
				})
			}

			pw.lastSeq = output.Sequence
		}
	}
}

func (pw *ProjectionWorker) processOutput(ctx context.Context, output ProjectionOutput) error {
	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if output.Claim != nil {
		if err := upsertClaim(ctx, tx, output.Sequence, output.Claim); err != nil {
			return fmt.Errorf("claim projection: %w", err)
		}
	}

	if err := upsertReservePosition(ctx, tx, output.Sequence, output.Audit); err != nil {
		return fmt.Errorf("reserve projection: %w", err)
	}

	// Update projection watermark
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (worker_id, sequence, updated_at)
		VALUES ('main', $1, NOW())
		ON CONFLICT (worker_id) DO UPDATE SET sequence = $1, updated_at = NOW()
	`, output.Sequence); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}

	return tx.Commit()
}

func upsertClaim(ctx context.Context, tx *sql.Tx, seq int64, c *ClaimRow) error {
	var attestationStarted *time.Time
	if !c.AttestationStartedAt.IsZero() {
		attestationStarted = &c.AttestationStartedAt
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.claims
			(claim_id, member_id, status, lane, category,
			 requested_amount, approved_amount, paid_amount,
			 attestation_count, appeal_count, is_shock_claim, denial_reason,
			 service_date, submitted_at, status_changed_at, attestation_started_at,
			 updated_sequence)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (claim_id) DO UPDATE SET
			status = $3, lane = $4,
			approved_amount = $7, paid_amount = $8,
			attestation_count = $9, appeal_count = $10, denial_reason = $12,
			status_changed_at = $15, attestation_started_at = $16,
			updated_sequence = $17
		WHERE projections.claims.updated_sequence < $17
	`,
		c.ClaimID, c.MemberID, c.Status, c.Lane, c.Category,
		c.RequestedAmount, c.ApprovedAmount, c.PaidAmount,
		c.AttestationCount, c.AppealCount, c.IsShockClaim, c.DenialReason,
		c.ServiceDate, c.SubmittedAt, c.StatusChangedAt, attestationStarted,
		seq,
	)
	return err
}

func upsertReservePosition(ctx context.Context, tx *sql.Tx, seq int64, a AuditRow) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.reserve_position
			(id, tier0_balance, tier1_balance, tier2_balance,
			 ibnr_estimate, runoff_balance, total_claims_paid,
			 car_bps, zone, shock_factor_bps, updated_sequence)
		VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			tier0_balance = $1, tier1_balance = $2, tier2_balance = $3,
			ibnr_estimate = $4, runoff_balance = $5, total_claims_paid = $6,
			car_bps = $7, zone = $8, shock_factor_bps = $9,
			updated_sequence = $10
		WHERE projections.reserve_position.updated_sequence < $10
	`,
		a.Tier0Balance, a.Tier1Balance, a.Tier2Balance,
		a.IbnrEstimate, a.RunoffBalance, a.TotalClaimsPaid,
		a.CarBps, a.Zone, a.ShockFactorBps, seq,
	)
	return err
}

// RebuildProjections clears the projection tables so the orchestrator can
// replay the event log through the core and re-emit projection outputs.
// The reserve position alone can be restored directly from the latest
// solvency audit row without a replay.
func RebuildProjections(ctx context.Context, db *sql.DB) error {
	truncateStatements := []string{
		`TRUNCATE projections.claims`,
		`TRUNCATE projections.reserve_position`,
		`DELETE FROM projections.watermark WHERE worker_id = 'main'`,
	}

	for _, stmt := range truncateStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("truncate failed: %w", err)
		}
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO projections.reserve_position
			(id, tier0_balance, tier1_balance, tier2_balance,
			 ibnr_estimate, runoff_balance, total_claims_paid,
			 car_bps, zone, shock_factor_bps, updated_sequence)
		SELECT 1, tier0_balance, tier1_balance, tier2_balance,
			ibnr_estimate, runoff_balance, total_claims_paid,
			car_bps, zone, shock_factor_bps, sequence
		FROM event_log.solvency_audit
		ORDER BY sequence DESC
		LIMIT 1
		ON CONFLICT (id) DO UPDATE SET
			tier0_balance = EXCLUDED.tier0_balance,
			tier1_balance = EXCLUDED.tier1_balance,
			tier2_balance = EXCLUDED.tier2_balance,
			ibnr_estimate = EXCLUDED.ibnr_estimate,
			runoff_balance = EXCLUDED.runoff_balance,
			total_claims_paid = EXCLUDED.total_claims_paid,
			car_bps = EXCLUDED.car_bps,
			zone = EXCLUDED.zone,
			shock_factor_bps = EXCLUDED.shock_factor_bps,
			updated_sequence = EXCLUDED.updated_sequence
	`)
	if err != nil {
		return fmt.Errorf("rebuild reserve position: %w", err)
	}

	logger.Info().Msg("projection tables cleared, reserve position restored from audit log")
	return nil
}
