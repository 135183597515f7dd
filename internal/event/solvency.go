package event

import (
	"time"

	"github.com/google/uuid"
)

// EnrollmentRecorded counts one new member against the zone's monthly cap.
// Idempotency key: enrollment_id from the membership system.
type EnrollmentRecorded struct {
	EnrollmentID  uuid.UUID // Idempotency key
	MemberID      uuid.UUID
	MembershipSeq int64
	Timestamp     time.Time
}

func (e *EnrollmentRecorded) IdempotencyKey() string {
	return e.EnrollmentID.String()
}

func (e *EnrollmentRecorded) EventType() EventType {
	return EventTypeEnrollmentRecorded
}

func (e *EnrollmentRecorded) EntityID() *string {
	m := e.MemberID.String()
	return &m
}

func (e *EnrollmentRecorded) SourceSequence() int64 {
	return e.MembershipSeq
}

// CollateralReport is the staking system reporting haircut-adjusted eligible
// collateral. Applying it triggers a CAR recomputation.
type CollateralReport struct {
	ReportID               uuid.UUID // Idempotency key
	EligibleCollateralUsdc int64
	ExpectedAnnualClaims   int64
	StakingSeq             int64
	Timestamp              time.Time
}

func (c *CollateralReport) IdempotencyKey() string {
	return c.ReportID.String()
}

func (c *CollateralReport) EventType() EventType {
	return EventTypeCollateralReport
}

func (c *CollateralReport) EntityID() *string {
	return nil
}

func (c *CollateralReport) SourceSequence() int64 {
	return c.StakingSeq
}

// ShockFactorSet applies a new global shock multiplier with its governance
// approval tier.
type ShockFactorSet struct {
	ProposalID     uuid.UUID // Idempotency key
	ShockFactorBps int64
	ApprovalTier   int32
	GovernanceSeq  int64
	Timestamp      time.Time
}

func (s *ShockFactorSet) IdempotencyKey() string {
	return s.ProposalID.String()
}

func (s *ShockFactorSet) EventType() EventType {
	return EventTypeShockFactorSet
}

func (s *ShockFactorSet) EntityID() *string {
	return nil
}

func (s *ShockFactorSet) SourceSequence() int64 {
	return s.GovernanceSeq
}

// GovernanceUpdate replaces a versioned configuration record: the rating
// table, reserve targets, treaty terms, or triage policy.
type GovernanceUpdate struct {
	ProposalID    uuid.UUID // Idempotency key
	ConfigKind    string    // "rating_table" | "reserve_targets" | "treaty" | "triage"
	ConfigVersion int64
	Payload       []byte // YAML document, validated before apply
	GovernanceSeq int64
	Timestamp     time.Time
}

func (g *GovernanceUpdate) IdempotencyKey() string {
	return g.ProposalID.String()
}

func (g *GovernanceUpdate) EventType() EventType {
	return EventTypeGovernanceUpdate
}

func (g *GovernanceUpdate) EntityID() *string {
	return nil
}

func (g *GovernanceUpdate) SourceSequence() int64 {
	return g.GovernanceSeq
}
