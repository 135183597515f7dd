package event

import (
	"time"

	"github.com/google/uuid"
)

// ClaimSubmitted opens a claim. The core assigns triage routing when it
// applies the event.
// Idempotency key: claim_id.
type ClaimSubmitted struct {
	ClaimID     uuid.UUID // Idempotency key
	MemberID    uuid.UUID
	Amount      int64 // micro-USDC
	Category    int32
	ServiceDate time.Time
	SubmitSeq   int64
	Timestamp   time.Time
}

func (c *ClaimSubmitted) IdempotencyKey() string {
	return c.ClaimID.String()
}

func (c *ClaimSubmitted) EventType() EventType {
	return EventTypeClaimSubmitted
}

func (c *ClaimSubmitted) EntityID() *string {
	id := c.ClaimID.String()
	return &id
}

func (c *ClaimSubmitted) SourceSequence() int64 {
	return c.SubmitSeq
}

// AiDecisionRecorded attaches the oracle verdict to a claim.
// Idempotency key: claim_id + ":ai" (one record per claim).
type AiDecisionRecorded struct {
	ClaimID        uuid.UUID
	ConfidenceBps  int64
	FraudScoreBps  int64
	PriceScoreBps  int64
	Recommendation int32
	ModelVersion   string
	Signer         uuid.UUID
	OracleSeq      int64
	Timestamp      time.Time
}

func (a *AiDecisionRecorded) IdempotencyKey() string {
	return a.ClaimID.String() + ":ai"
}

func (a *AiDecisionRecorded) EventType() EventType {
	return EventTypeAiDecisionRecorded
}

func (a *AiDecisionRecorded) EntityID() *string {
	id := a.ClaimID.String()
	return &id
}

func (a *AiDecisionRecorded) SourceSequence() int64 {
	return a.OracleSeq
}

// ClaimAttested is one committee signature on a claim.
// Idempotency key: claim_id + attestor_id.
type ClaimAttested struct {
	ClaimID      uuid.UUID
	AttestorID   uuid.UUID
	CommitteeSeq int64
	Timestamp    time.Time
}

func (a *ClaimAttested) IdempotencyKey() string {
	return a.ClaimID.String() + ":" + a.AttestorID.String()
}

func (a *ClaimAttested) EventType() EventType {
	return EventTypeClaimAttested
}

func (a *ClaimAttested) EntityID() *string {
	id := a.ClaimID.String()
	return &id
}

func (a *ClaimAttested) SourceSequence() int64 {
	return a.CommitteeSeq
}

// AttestationExpired is the host scheduler reporting a lapsed SLA window.
type AttestationExpired struct {
	ClaimID      uuid.UUID
	SchedulerSeq int64
	Timestamp    time.Time
}

func (a *AttestationExpired) IdempotencyKey() string {
	return a.ClaimID.String() + ":expire:" + a.Timestamp.UTC().Format(time.RFC3339)
}

func (a *AttestationExpired) EventType() EventType {
	return EventTypeAttestationExpired
}

func (a *AttestationExpired) EntityID() *string {
	id := a.ClaimID.String()
	return &id
}

func (a *AttestationExpired) SourceSequence() int64 {
	return a.SchedulerSeq
}

// ClaimApproved is a committee disposition in the claim's favor.
type ClaimApproved struct {
	ClaimID        uuid.UUID
	ApprovedAmount int64
	CommitteeSeq   int64
	Timestamp      time.Time
}

func (a *ClaimApproved) IdempotencyKey() string {
	return a.ClaimID.String() + ":approve"
}

func (a *ClaimApproved) EventType() EventType {
	return EventTypeClaimApproved
}

func (a *ClaimApproved) EntityID() *string {
	id := a.ClaimID.String()
	return &id
}

func (a *ClaimApproved) SourceSequence() int64 {
	return a.CommitteeSeq
}

// ClaimDenied is a committee disposition against the claim.
type ClaimDenied struct {
	ClaimID      uuid.UUID
	Reason       string
	CommitteeSeq int64
	Timestamp    time.Time
}

func (d *ClaimDenied) IdempotencyKey() string {
	return d.ClaimID.String() + ":deny:" + d.Timestamp.UTC().Format(time.RFC3339)
}

func (d *ClaimDenied) EventType() EventType {
	return EventTypeClaimDenied
}

func (d *ClaimDenied) EntityID() *string {
	id := d.ClaimID.String()
	return &id
}

func (d *ClaimDenied) SourceSequence() int64 {
	return d.CommitteeSeq
}

// ClaimAppealed re-opens a denied claim.
type ClaimAppealed struct {
	ClaimID   uuid.UUID
	MemberSeq int64
	Timestamp time.Time
}

func (a *ClaimAppealed) IdempotencyKey() string {
	return a.ClaimID.String() + ":appeal:" + a.Timestamp.UTC().Format(time.RFC3339)
}

func (a *ClaimAppealed) EventType() EventType {
	return EventTypeClaimAppealed
}

func (a *ClaimAppealed) EntityID() *string {
	id := a.ClaimID.String()
	return &id
}

func (a *ClaimAppealed) SourceSequence() int64 {
	return a.MemberSeq
}

// ClaimCancelled is the member withdrawing a not-yet-approved claim.
type ClaimCancelled struct {
	ClaimID   uuid.UUID
	MemberID  uuid.UUID
	MemberSeq int64
	Timestamp time.Time
}

func (c *ClaimCancelled) IdempotencyKey() string {
	return c.ClaimID.String() + ":cancel"
}

func (c *ClaimCancelled) EventType() EventType {
	return EventTypeClaimCancelled
}

func (c *ClaimCancelled) EntityID() *string {
	id := c.ClaimID.String()
	return &id
}

func (c *ClaimCancelled) SourceSequence() int64 {
	return c.MemberSeq
}

// ClaimPaid triggers the reserve waterfall for the approved amount.
type ClaimPaid struct {
	ClaimID    uuid.UUID
	PolicyYear int
	Month      int
	PaySeq     int64
	Timestamp  time.Time
}

func (p *ClaimPaid) IdempotencyKey() string {
	return p.ClaimID.String() + ":pay:" + p.Timestamp.UTC().Format(time.RFC3339)
}

func (p *ClaimPaid) EventType() EventType {
	return EventTypeClaimPaid
}

func (p *ClaimPaid) EntityID() *string {
	id := p.ClaimID.String()
	return &id
}

func (p *ClaimPaid) SourceSequence() int64 {
	return p.PaySeq
}

// ClaimClosed finalizes a paid or finally-denied claim.
type ClaimClosed struct {
	ClaimID   uuid.UUID
	CloseSeq  int64
	Timestamp time.Time
}

func (c *ClaimClosed) IdempotencyKey() string {
	return c.ClaimID.String() + ":close"
}

func (c *ClaimClosed) EventType() EventType {
	return EventTypeClaimClosed
}

func (c *ClaimClosed) EntityID() *string {
	id := c.ClaimID.String()
	return &id
}

func (c *ClaimClosed) SourceSequence() int64 {
	return c.CloseSeq
}
