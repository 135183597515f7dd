package query

import (
	"time"

	"github.com/google/uuid"
)

// ClaimResponse represents a claim for API queries.
type ClaimResponse struct {
	ClaimID          uuid.UUID `json:"claim_id"`
	MemberID         uuid.UUID `json:"member_id"`
	Status           string    `json:"status"`
	Lane             string    `json:"lane"`
	Category         int32     `json:"category"`
	RequestedAmount  int64     `json:"requested_amount"`
	ApprovedAmount   int64     `json:"approved_amount"`
	PaidAmount       int64     `json:"paid_amount"`
	AttestationCount int32     `json:"attestation_count"`
	AppealCount      int32     `json:"appeal_count"`
	IsShockClaim     bool      `json:"is_shock_claim"`
	DenialReason     string    `json:"denial_reason,omitempty"`
	ServiceDate      time.Time `json:"service_date"`
	SubmittedAt      time.Time `json:"submitted_at"`
	StatusChangedAt  time.Time `json:"status_changed_at"`
	AsOfSequence     int64     `json:"as_of_sequence"`
}

// ClaimFilter narrows ListClaims. Nil fields match everything.
type ClaimFilter struct {
	MemberID        *uuid.UUID
	Status          *string
	BeforeSubmitted *time.Time // cursor: claims submitted strictly before this
}

// IntegrityReport is the result of an integrity verification check.
type IntegrityReport struct {
	IsHealthy       bool    `json:"is_healthy"`
	HashChainBreaks []int64 `json:"hash_chain_breaks,omitempty"`
	ReserveDrift    bool    `json:"reserve_drift,omitempty"`
}
