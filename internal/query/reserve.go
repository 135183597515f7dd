package query

import "time"

// ReservePositionResponse represents the current reserve position for API queries.
type ReservePositionResponse struct {
	Tier0Balance    int64 `json:"tier0_balance"`
	Tier1Balance    int64 `json:"tier1_balance"`
	Tier2Balance    int64 `json:"tier2_balance"`
	IbnrEstimate    int64 `json:"ibnr_estimate"`
	RunoffBalance   int64 `json:"runoff_balance"`
	TotalClaimsPaid int64 `json:"total_claims_paid"`

	// Solvency reading
	CarBps         int64 `json:"car_bps"`
	Zone           int32 `json:"zone"`
	ShockFactorBps int64 `json:"shock_factor_bps"`

	AsOfSequence int64 `json:"as_of_sequence"`
}

// SolvencyHistoryEntry is one point of the per-event solvency audit trail.
type SolvencyHistoryEntry struct {
	Sequence        int64     `json:"sequence"`
	Tier0Balance    int64     `json:"tier0_balance"`
	Tier1Balance    int64     `json:"tier1_balance"`
	Tier2Balance    int64     `json:"tier2_balance"`
	IbnrEstimate    int64     `json:"ibnr_estimate"`
	RunoffBalance   int64     `json:"runoff_balance"`
	TotalClaimsPaid int64     `json:"total_claims_paid"`
	CarBps          int64     `json:"car_bps"`
	Zone            int32     `json:"zone"`
	ShockFactorBps  int64     `json:"shock_factor_bps"`
	Timestamp       time.Time `json:"timestamp"`
}
