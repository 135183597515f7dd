package event

import (
	"time"

	"github.com/google/uuid"
)

// ContributionReceived is a settled member contribution entering the reserve
// routing split.
// Idempotency key: payment_id (UUID from the payment substrate).
type ContributionReceived struct {
	PaymentID   uuid.UUID // Idempotency key
	MemberID    uuid.UUID
	Amount      int64 // micro-USDC
	PaySequence int64 // Source sequence from the payment substrate
	Timestamp   time.Time
}

func (c *ContributionReceived) IdempotencyKey() string {
	return c.PaymentID.String()
}

func (c *ContributionReceived) EventType() EventType {
	return EventTypeContributionReceived
}

func (c *ContributionReceived) EntityID() *string {
	m := c.MemberID.String()
	return &m
}

func (c *ContributionReceived) SourceSequence() int64 {
	return c.PaySequence
}

// ReserveTier mirrors the ledger tiers for wire payloads.
type ReserveTier int32

const (
	ReserveTier0 ReserveTier = iota
	ReserveTier1
	ReserveTier2
)

// TierDeposit is a direct treasury credit into one tier, outside the
// contribution routing split.
type TierDeposit struct {
	DepositID   uuid.UUID // Idempotency key
	Tier        ReserveTier
	Amount      int64
	TreasurySeq int64
	Timestamp   time.Time
}

func (d *TierDeposit) IdempotencyKey() string {
	return d.DepositID.String()
}

func (d *TierDeposit) EventType() EventType {
	return EventTypeTierDeposit
}

func (d *TierDeposit) EntityID() *string {
	return nil
}

func (d *TierDeposit) SourceSequence() int64 {
	return d.TreasurySeq
}

// Tier0Refill tops up the liquidity buffer after a draw-down.
type Tier0Refill struct {
	RefillID    uuid.UUID // Idempotency key
	Amount      int64
	TreasurySeq int64
	Timestamp   time.Time
}

func (r *Tier0Refill) IdempotencyKey() string {
	return r.RefillID.String()
}

func (r *Tier0Refill) EventType() EventType {
	return EventTypeTier0Refill
}

func (r *Tier0Refill) EntityID() *string {
	return nil
}

func (r *Tier0Refill) SourceSequence() int64 {
	return r.TreasurySeq
}

// IbnrUpdate carries fresh actuarial inputs for the IBNR estimate and the
// routing targets.
type IbnrUpdate struct {
	UpdateID             uuid.UUID // Idempotency key
	AvgDailyClaims30d    int64
	AvgDailyClaims90d    int64
	ReportingLagDays     int64
	DevelopmentFactorBps int64
	ActuarySeq           int64
	Timestamp            time.Time
}

func (u *IbnrUpdate) IdempotencyKey() string {
	return u.UpdateID.String()
}

func (u *IbnrUpdate) EventType() EventType {
	return EventTypeIbnrUpdate
}

func (u *IbnrUpdate) EntityID() *string {
	return nil
}

func (u *IbnrUpdate) SourceSequence() int64 {
	return u.ActuarySeq
}
