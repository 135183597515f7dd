package query

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// QueryService provides read-only access to projection tables. All responses
// include as_of_sequence for freshness semantics: the last event sequence the
// projection worker has applied.
type QueryService struct {
	db *sql.DB
}

func NewQueryService(db *sql.DB) *QueryService {
	return &QueryService{db: db}
}

// GetClaim returns a single claim by ID. Returns nil when the claim is unknown.
func (qs *QueryService) GetClaim(ctx context.Context, claimID uuid.UUID) (*ClaimResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	row := qs.db.QueryRowContext(ctx, `
		SELECT claim_id, member_id, status, lane, category,
		       requested_amount, approved_amount, paid_amount,
		       attestation_count, appeal_count, is_shock_claim, denial_reason,
		       service_date, submitted_at, status_changed_at
		FROM projections.claims
		WHERE claim_id = $1
	`, claimID)

	var c ClaimResponse
	c.AsOfSequence = asOfSeq
	err = row.Scan(
		&c.ClaimID, &c.MemberID, &c.Status, &c.Lane, &c.Category,
		&c.RequestedAmount, &c.ApprovedAmount, &c.PaidAmount,
		&c.AttestationCount, &c.AppealCount, &c.IsShockClaim, &c.DenialReason,
		&c.ServiceDate, &c.SubmittedAt, &c.StatusChangedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListClaims returns claims matching the filter, newest submissions first.
// Cursor-based pagination via filter.BeforeSubmitted.
func (qs *QueryService) ListClaims(ctx context.Context, filter ClaimFilter, limit int) ([]ClaimResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	query := `
		SELECT claim_id, member_id, status, lane, category,
		       requested_amount, approved_amount, paid_amount,
		       attestation_count, appeal_count, is_shock_claim, denial_reason,
		       service_date, submitted_at, status_changed_at
		FROM projections.claims
		WHERE TRUE
	`
	args := []interface{}{}
	argIdx := 1

	if filter.MemberID != nil {
		query += fmt.Sprintf(" AND member_id = $%d", argIdx)
		args = append(args, *filter.MemberID)
		argIdx++
	}

	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, *filter.Status)
		argIdx++
	}

	if filter.BeforeSubmitted != nil {
		query += fmt.Sprintf(" AND submitted_at < $%d", argIdx)
		args = append(args, *filter.BeforeSubmitted)
		argIdx++
	}

	query += " ORDER BY submitted_at DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var claims []ClaimResponse
	for rows.Next() {
		var c ClaimResponse
		c.AsOfSequence = asOfSeq
		if err := rows.Scan(
			&c.ClaimID, &c.MemberID, &c.Status, &c.Lane, &c.Category,
			&c.RequestedAmount, &c.ApprovedAmount, &c.PaidAmount,
			&c.AttestationCount, &c.AppealCount, &c.IsShockClaim, &c.DenialReason,
			&c.ServiceDate, &c.SubmittedAt, &c.StatusChangedAt,
		); err != nil {
			return nil, err
		}
		claims = append(claims, c)
	}

	return claims, rows.Err()
}

// GetReservePosition returns the current reserve and solvency position.
func (qs *QueryService) GetReservePosition(ctx context.Context) (*ReservePositionResponse, error) {
	row := qs.db.QueryRowContext(ctx, `
		SELECT tier0_balance, tier1_balance, tier2_balance,
		       ibnr_estimate, runoff_balance, total_claims_paid,
		       car_bps, zone, shock_factor_bps, updated_sequence
		FROM projections.reserve_position
		WHERE id = 1
	`)

	var r ReservePositionResponse
	err := row.Scan(
		&r.Tier0Balance, &r.Tier1Balance, &r.Tier2Balance,
		&r.IbnrEstimate, &r.RunoffBalance, &r.TotalClaimsPaid,
		&r.CarBps, &r.Zone, &r.ShockFactorBps, &r.AsOfSequence,
	)
	if err == sql.ErrNoRows {
		return &ReservePositionResponse{}, nil // No events processed yet
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// GetSolvencyHistory returns the per-event solvency audit trail, newest first.
// Cursor-based pagination via afterSequence.
func (qs *QueryService) GetSolvencyHistory(
	ctx context.Context,
	limit int,
	afterSequence *int64,
) ([]SolvencyHistoryEntry, error) {
	query := `
		SELECT a.sequence, a.tier0_balance, a.tier1_balance, a.tier2_balance,
		       a.ibnr_estimate, a.runoff_balance, a.total_claims_paid,
		       a.car_bps, a.zone, a.shock_factor_bps, e.timestamp
		FROM event_log.solvency_audit a
		JOIN event_log.events e ON e.sequence = a.sequence
	`
	args := []interface{}{}
	argIdx := 1

	if afterSequence != nil {
		query += fmt.Sprintf(" WHERE a.sequence < $%d", argIdx)
		args = append(args, *afterSequence)
		argIdx++
	}

	query += " ORDER BY a.sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []SolvencyHistoryEntry
	for rows.Next() {
		var h SolvencyHistoryEntry
		if err := rows.Scan(
			&h.Sequence, &h.Tier0Balance, &h.Tier1Balance, &h.Tier2Balance,
			&h.IbnrEstimate, &h.RunoffBalance, &h.TotalClaimsPaid,
			&h.CarBps, &h.Zone, &h.ShockFactorBps, &h.Timestamp,
		); err != nil {
			return nil, err
		}
		history = append(history, h)
	}

	return history, rows.Err()
}

// ListOverdueAttestations returns claims whose attestation window opened
// before the cutoff and which are still awaiting review. Feeds the expiry
// scheduler sweep.
func (qs *QueryService) ListOverdueAttestations(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	rows, err := qs.db.QueryContext(ctx, `
		SELECT claim_id
		FROM projections.claims
		WHERE attestation_started_at IS NOT NULL
		  AND attestation_started_at < $1
		  AND status IN ('UNDER_REVIEW', 'PENDING_ATTESTATION', 'APPEALED')
		ORDER BY attestation_started_at ASC
	`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var overdue []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		overdue = append(overdue, id)
	}

	return overdue, rows.Err()
}

// --- Admin APIs ---

// VerifyIntegrity checks hash chain continuity and that the reserve
// projection agrees with the latest solvency audit row.
func (qs *QueryService) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT e1.sequence
		FROM event_log.events e1
		JOIN event_log.events e2 ON e2.sequence = e1.sequence - 1
		WHERE e1.prev_hash != e2.state_hash
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return nil, err
		}
		report.HashChainBreaks = append(report.HashChainBreaks, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// The projection may lag the audit log but must never disagree with it
	// at the sequence it claims to have applied.
	var drift bool
	err = qs.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM projections.reserve_position p
			JOIN event_log.solvency_audit a ON a.sequence = p.updated_sequence
			WHERE p.id = 1
			  AND (p.tier0_balance != a.tier0_balance
			    OR p.tier1_balance != a.tier1_balance
			    OR p.tier2_balance != a.tier2_balance
			    OR p.car_bps != a.car_bps)
		)
	`).Scan(&drift)
	if err != nil {
		return nil, err
	}
	report.ReserveDrift = drift

	report.IsHealthy = len(report.HashChainBreaks) == 0 && !drift
	return report, nil
}

// --- helpers ---

func (qs *QueryService) getWatermark(ctx context.Context) (int64, error) {
	var seq int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT sequence FROM projections.watermark WHERE worker_id = 'main'
	`).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return seq, err
}
