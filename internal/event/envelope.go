package event

import (
	"time"
)

// EventType discriminator for event payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypeContributionReceived
	EventTypeTierDeposit
	EventTypeTier0Refill
	EventTypeIbnrUpdate
	EventTypeEnrollmentRecorded
	EventTypeCollateralReport
	EventTypeShockFactorSet
	EventTypeClaimSubmitted
	EventTypeAiDecisionRecorded
	EventTypeClaimAttested
	EventTypeAttestationExpired
	EventTypeClaimApproved
	EventTypeClaimDenied
	EventTypeClaimAppealed
	EventTypeClaimCancelled
	EventTypeClaimPaid
	EventTypeClaimClosed
	EventTypeGovernanceUpdate
)

// EventEnvelope wraps every event in the log
type EventEnvelope struct {
	// Global monotonic sequence assigned by core
	Sequence int64

	// Stable idempotency key from upstream
	IdempotencyKey string

	// Event type discriminator
	EventType EventType

	// Entity context: claim or member ID (nullable for pool-wide events)
	EntityID *string

	// Versioned input timestamp (NOT wall-clock)
	Timestamp time.Time

	// Upstream sequence for ordering validation
	SourceSequence int64

	// JSON-encoded event-specific data
	Payload []byte

	// SHA-256 of state AFTER applying this event
	StateHash [32]byte

	// Previous event's state hash (chain integrity)
	PrevHash [32]byte
}

// Event is the interface all event payloads must implement
type Event interface {
	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	// EventType returns the discriminator
	EventType() EventType

	// EntityID returns the claim/member context (nil for pool-wide events)
	EntityID() *string

	// SourceSequence returns upstream ordering key
	SourceSequence() int64
}

func (et EventType) String() string {
	switch et {
	case EventTypeContributionReceived:
		return "ContributionReceived"
	case EventTypeTierDeposit:
		return "TierDeposit"
	case EventTypeTier0Refill:
		return "Tier0Refill"
	case EventTypeIbnrUpdate:
		return "IbnrUpdate"
	case EventTypeEnrollmentRecorded:
		return "EnrollmentRecorded"
	case EventTypeCollateralReport:
		return "CollateralReport"
	case EventTypeShockFactorSet:
		return "ShockFactorSet"
	case EventTypeClaimSubmitted:
		return "ClaimSubmitted"
	case EventTypeAiDecisionRecorded:
		return "AiDecisionRecorded"
	case EventTypeClaimAttested:
		return "ClaimAttested"
	case EventTypeAttestationExpired:
		return "AttestationExpired"
	case EventTypeClaimApproved:
		return "ClaimApproved"
	case EventTypeClaimDenied:
		return "ClaimDenied"
	case EventTypeClaimAppealed:
		return "ClaimAppealed"
	case EventTypeClaimCancelled:
		return "ClaimCancelled"
	case EventTypeClaimPaid:
		return "ClaimPaid"
	case EventTypeClaimClosed:
		return "ClaimClosed"
	case EventTypeGovernanceUpdate:
		return "GovernanceUpdate"
	default:
		return "Unknown"
	}
}
