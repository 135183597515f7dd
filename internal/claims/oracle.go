package claims

import (
	"time"

	"github.com/google/uuid"
)

// Recommendation is the oracle's verdict on a claim.
type Recommendation int

const (
	RecommendApprove Recommendation = iota
	RecommendDeny
	RecommendReview
)

func (r Recommendation) String() string {
	switch r {
	case RecommendApprove:
		return "APPROVE"
	case RecommendDeny:
		return "DENY"
	case RecommendReview:
		return "REVIEW"
	default:
		return "UNKNOWN"
	}
}

// AiDecisionRecord is the externally supplied fraud/price assessment. One
// record per claim; retries are rejected.
type AiDecisionRecord struct {
	ClaimID        uuid.UUID
	ConfidenceBps  int64
	FraudScoreBps  int64
	PriceScoreBps  int64
	Recommendation Recommendation
	ModelVersion   string
	Signer         uuid.UUID
	Timestamp      time.Time
}

// Oracle tracks the authorized signer set and decision accuracy. Accuracy is
// advisory telemetry; thresholds stay in governance config.
type Oracle struct {
	cfg     OracleConfig
	signers map[uuid.UUID]bool

	totalDecisions  int64
	overturnedCount int64
}

func NewOracle(cfg OracleConfig) *Oracle {
	return &Oracle{
		cfg:     cfg,
		signers: make(map[uuid.UUID]bool),
	}
}

// RegisterSigner adds an authorized signer, bounded by config.
func (o *Oracle) RegisterSigner(signer uuid.UUID) error {
	if len(o.signers) >= o.cfg.MaxAuthorizedSigners && !o.signers[signer] {
		return ErrUnauthorized
	}
	o.signers[signer] = true
	return nil
}

// RemoveSigner drops a signer from the set.
func (o *Oracle) RemoveSigner(signer uuid.UUID) {
	delete(o.signers, signer)
}

// IsAuthorized reports whether a signer may submit decision records.
func (o *Oracle) IsAuthorized(signer uuid.UUID) bool {
	return o.signers[signer]
}

// RecordOutcome feeds committee dispositions back into the accuracy counter.
func (o *Oracle) RecordOutcome(overturned bool) {
	o.totalDecisions++
	if overturned {
		o.overturnedCount++
	}
}

// AccuracyBps is the fraction of decisions the committee upheld, in bps.
// Reads 10000 until the first outcome lands.
func (o *Oracle) AccuracyBps() int64 {
	if o.totalDecisions == 0 {
		return 10_000
	}
	return (o.totalDecisions - o.overturnedCount) * 10_000 / o.totalDecisions
}

// AttestorRegistry is the committee roster, bounded at MaxAttestors.
type AttestorRegistry struct {
	max       int
	attestors map[uuid.UUID]bool
}

func NewAttestorRegistry(max int) *AttestorRegistry {
	return &AttestorRegistry{
		max:       max,
		attestors: make(map[uuid.UUID]bool),
	}
}

func (r *AttestorRegistry) Register(attestor uuid.UUID) error {
	if len(r.attestors) >= r.max && !r.attestors[attestor] {
		return ErrUnauthorized
	}
	r.attestors[attestor] = true
	return nil
}

func (r *AttestorRegistry) Remove(attestor uuid.UUID) {
	delete(r.attestors, attestor)
}

func (r *AttestorRegistry) IsAttestor(attestor uuid.UUID) bool {
	return r.attestors[attestor]
}
