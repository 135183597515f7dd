package claims

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidClaimAmount       = errors.New("invalid claim amount")
	ErrFutureServiceDate        = errors.New("service date in the future")
	ErrMemberNotActive          = errors.New("member not active")
	ErrClaimNotFound            = errors.New("claim not found")
	ErrInvalidClaimStatus       = errors.New("invalid claim status")
	ErrInvalidApprovedAmount    = errors.New("invalid approved amount")
	ErrInsufficientAttestations = errors.New("insufficient attestations")
	ErrAlreadyAttested          = errors.New("already attested")
	ErrAttestorNotRegistered    = errors.New("attestor not registered")
	ErrAttestationExpired       = errors.New("attestation window expired")
	ErrAlreadyPaid              = errors.New("already paid")
	ErrAppealNotAllowed         = errors.New("appeal not allowed")
	ErrCannotCancel             = errors.New("cannot cancel")
	ErrFastLaneLimitExceeded    = errors.New("fast-lane limit exceeded")
	ErrDecisionAlreadyRecorded  = errors.New("decision already recorded")
	ErrUnauthorized             = errors.New("unauthorized")
)

// Claim is one member claim moving through triage.
type Claim struct {
	ID               uuid.UUID
	MemberID         uuid.UUID
	RequestedAmount  int64
	Category         Category
	ServiceDate      time.Time
	Status           Status
	Lane             Lane
	ApprovedAmount   int64
	PaidAmount       int64
	IsShockClaim     bool
	AttestationCount int
	Attestors        []uuid.UUID
	AppealCount      int
	AI               *AiDecisionRecord
	DenialReason     string
	SubmittedAt      time.Time
	StatusChangedAt  time.Time

	// AttestationStartedAt anchors the attestation SLA window.
	AttestationStartedAt time.Time
}

func (c *Claim) transition(next Status, now time.Time) error {
	if !c.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidClaimStatus, c.Status, next)
	}
	c.Status = next
	c.StatusChangedAt = now
	return nil
}

// hasAttested reports whether an attestor already signed this claim.
func (c *Claim) hasAttested(attestor uuid.UUID) bool {
	for _, a := range c.Attestors {
		if a == attestor {
			return true
		}
	}
	return false
}

// MembershipGate is the external member-status check consulted at submission.
type MembershipGate interface {
	IsActive(member uuid.UUID) bool
}

// Waterfall abstracts the reserve ledger's payout path. Defined here to keep
// the triage engine free of a reserve import.
type Waterfall interface {
	TotalReserves() int64
	PayoutWaterfall(amount int64, now time.Time) (int64, error)
}

// RecoverySource computes the reinsurer share attributable to one claim.
type RecoverySource interface {
	MemberYtd(member uuid.UUID, policyYear int) int64
	IncrementalRecovery(ytdBefore, claimAmount int64) (protocolShare, reinsurerShare int64, err error)
	Accumulate(member uuid.UUID, amount int64, policyYear, month int)
}

// Engine drives the claim state machine.
type Engine struct {
	cfg        TriageConfig
	membership MembershipGate
	reserves   Waterfall
	recovery   RecoverySource
	oracle     *Oracle
	attestors  *AttestorRegistry

	claims   map[uuid.UUID]*Claim
	trackers map[uuid.UUID]*FastLaneTracker
}

func NewEngine(cfg TriageConfig, membership MembershipGate, reserves Waterfall, recovery RecoverySource) *Engine {
	return &Engine{
		cfg:        cfg,
		membership: membership,
		reserves:   reserves,
		recovery:   recovery,
		oracle:     NewOracle(cfg.Oracle),
		attestors:  NewAttestorRegistry(cfg.MaxAttestors),
		claims:     make(map[uuid.UUID]*Claim),
		trackers:   make(map[uuid.UUID]*FastLaneTracker),
	}
}

// SetConfig swaps the governance policy in place. Open claims keep moving
// under the new thresholds; the oracle and attestor rosters are untouched.
func (e *Engine) SetConfig(cfg TriageConfig) {
	e.cfg = cfg
}

// Config returns the active triage policy.
func (e *Engine) Config() TriageConfig {
	return e.cfg
}

// Oracle exposes the signer registry and accuracy counters.
func (e *Engine) Oracle() *Oracle {
	return e.oracle
}

// Attestors exposes the committee roster.
func (e *Engine) Attestors() *AttestorRegistry {
	return e.attestors
}

// Get returns a claim by ID.
func (e *Engine) Get(id uuid.UUID) (*Claim, error) {
	claim, ok := e.claims[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrClaimNotFound, id)
	}
	return claim, nil
}

// Tracker returns the member's fast-lane tracker, creating it on first use.
func (e *Engine) Tracker(member uuid.UUID) *FastLaneTracker {
	tracker, ok := e.trackers[member]
	if !ok {
		tracker = &FastLaneTracker{MemberID: member}
		e.trackers[member] = tracker
	}
	return tracker
}

// SubmitResult reports where triage routed a new claim. Refusal carries the
// fast-lane limit signal when the count or amount cap was the disqualifier;
// the submission itself still succeeds and routes onward.
type SubmitResult struct {
	ClaimID uuid.UUID
	Lane    Lane
	Status  Status
	Refusal error
}

// Submit creates a claim and routes it into a triage lane.
func (e *Engine) Submit(id, member uuid.UUID, amount int64, category Category, serviceDate, now time.Time) (SubmitResult, error) {
	if amount <= 0 {
		return SubmitResult{}, ErrInvalidClaimAmount
	}
	if serviceDate.After(now) {
		return SubmitResult{}, ErrFutureServiceDate
	}
	if e.membership != nil && !e.membership.IsActive(member) {
		return SubmitResult{}, ErrMemberNotActive
	}

	claim := &Claim{
		ID:              id,
		MemberID:        member,
		RequestedAmount: amount,
		Category:        category,
		ServiceDate:     serviceDate,
		Status:          StatusSubmitted,
		SubmittedAt:     now,
		StatusChangedAt: now,
	}
	e.claims[id] = claim

	shockLine := ShockThreshold(e.reserves.TotalReserves(), e.cfg)
	if amount > shockLine {
		claim.IsShockClaim = true
		claim.Lane = LaneCommittee
		if err := claim.transition(StatusUnderReview, now); err != nil {
			return SubmitResult{}, err
		}
		return SubmitResult{ClaimID: id, Lane: LaneCommittee, Status: claim.Status}, nil
	}

	eligible, refusal := e.fastLaneEligible(claim, now)
	if eligible {
		claim.Lane = LaneFast
		claim.ApprovedAmount = amount
		if err := claim.transition(StatusApproved, now); err != nil {
			return SubmitResult{}, err
		}
		e.Tracker(member).Record(e.cfg.FastLane, amount, now)
		return SubmitResult{ClaimID: id, Lane: LaneFast, Status: claim.Status}, nil
	}

	claim.Lane = LaneAiAssisted
	if err := claim.transition(StatusUnderReview, now); err != nil {
		return SubmitResult{}, err
	}
	return SubmitResult{ClaimID: id, Lane: LaneAiAssisted, Status: claim.Status, Refusal: refusal}, nil
}

// fastLaneEligible applies the lane gate. The second return value carries
// ErrFastLaneLimitExceeded when usage limits were the only disqualifier.
func (e *Engine) fastLaneEligible(claim *Claim, now time.Time) (bool, error) {
	cfg := e.cfg.FastLane
	if !cfg.Enabled || claim.IsShockClaim {
		return false, nil
	}
	if claim.RequestedAmount > cfg.MaxAmount {
		return false, nil
	}
	categoryOK := false
	for _, c := range cfg.EligibleCategories {
		if c == claim.Category {
			categoryOK = true
			break
		}
	}
	if !categoryOK {
		return false, nil
	}
	tracker := e.Tracker(claim.MemberID)
	if tracker.Flagged {
		return false, nil
	}
	if !tracker.CanUse(cfg, claim.RequestedAmount, now) {
		return false, ErrFastLaneLimitExceeded
	}
	return true, nil
}

// RecordAiDecision attaches the oracle verdict and applies the threshold
// policy. Shock claims keep their committee routing regardless of verdict.
func (e *Engine) RecordAiDecision(claimID uuid.UUID, record AiDecisionRecord, now time.Time) error {
	claim, err := e.Get(claimID)
	if err != nil {
		return err
	}
	if claim.AI != nil {
		return ErrDecisionAlreadyRecorded
	}
	if !e.oracle.IsAuthorized(record.Signer) {
		return fmt.Errorf("%w: signer %s", ErrUnauthorized, record.Signer)
	}
	if claim.Status != StatusUnderReview {
		return fmt.Errorf("%w: %s", ErrInvalidClaimStatus, claim.Status)
	}

	record.ClaimID = claimID
	claim.AI = &record

	if claim.IsShockClaim {
		return nil
	}

	ocfg := e.cfg.Oracle
	if record.ConfidenceBps >= ocfg.AutoApproveConfidenceBps && record.FraudScoreBps <= ocfg.MaxFraudScoreBps {
		claim.ApprovedAmount = claim.RequestedAmount
		return claim.transition(StatusApproved, now)
	}

	// Low confidence forces committee review; mid-band decisions also wait
	// for attestation, just without the forced flag.
	if err := claim.transition(StatusPendingAttestation, now); err != nil {
		return err
	}
	claim.AttestationStartedAt = now
	return nil
}

// Attest records one committee member's signature. First attestation moves
// an under-review or appealed claim into PendingAttestation and starts the
// SLA window.
func (e *Engine) Attest(claimID, attestor uuid.UUID, now time.Time) error {
	claim, err := e.Get(claimID)
	if err != nil {
		return err
	}
	if !e.attestors.IsAttestor(attestor) {
		return fmt.Errorf("%w: %s", ErrAttestorNotRegistered, attestor)
	}

	switch claim.Status {
	case StatusUnderReview, StatusAppealed:
		if err := claim.transition(StatusPendingAttestation, now); err != nil {
			return err
		}
		claim.AttestationStartedAt = now
	case StatusPendingAttestation:
		if e.cfg.MaxAttestationAge > 0 && now.Sub(claim.AttestationStartedAt) > e.cfg.MaxAttestationAge {
			return ErrAttestationExpired
		}
	default:
		return fmt.Errorf("%w: %s", ErrInvalidClaimStatus, claim.Status)
	}

	if claim.hasAttested(attestor) {
		return ErrAlreadyAttested
	}
	claim.Attestors = append(claim.Attestors, attestor)
	claim.AttestationCount++
	return nil
}

// ExpireAttestation is invoked by the host scheduler when the SLA lapses:
// the claim returns to UnderReview and the committee starts over.
func (e *Engine) ExpireAttestation(claimID uuid.UUID, now time.Time) error {
	claim, err := e.Get(claimID)
	if err != nil {
		return err
	}
	if claim.Status != StatusPendingAttestation {
		return fmt.Errorf("%w: %s", ErrInvalidClaimStatus, claim.Status)
	}
	if e.cfg.MaxAttestationAge > 0 && now.Sub(claim.AttestationStartedAt) <= e.cfg.MaxAttestationAge {
		return nil
	}
	claim.Attestors = nil
	claim.AttestationCount = 0
	claim.Status = StatusUnderReview
	claim.StatusChangedAt = now
	return nil
}

// Approve moves an attested claim to Approved (or PartiallyApproved below
// the requested amount).
func (e *Engine) Approve(claimID uuid.UUID, amount int64, now time.Time) error {
	claim, err := e.Get(claimID)
	if err != nil {
		return err
	}
	if claim.Status != StatusPendingAttestation {
		return fmt.Errorf("%w: %s", ErrInvalidClaimStatus, claim.Status)
	}
	if claim.AttestationCount < e.cfg.RequiredAttestations {
		return fmt.Errorf("%w: have %d, need %d",
			ErrInsufficientAttestations, claim.AttestationCount, e.cfg.RequiredAttestations)
	}
	if amount <= 0 || amount > claim.RequestedAmount {
		return fmt.Errorf("%w: %d of %d", ErrInvalidApprovedAmount, amount, claim.RequestedAmount)
	}

	claim.ApprovedAmount = amount
	next := StatusApproved
	if amount < claim.RequestedAmount {
		next = StatusPartiallyApproved
	}
	if claim.AI != nil && claim.AI.Recommendation == RecommendDeny {
		e.oracle.RecordOutcome(true)
	}
	return claim.transition(next, now)
}

// Deny rejects an attested claim with a recorded reason.
func (e *Engine) Deny(claimID uuid.UUID, reason string, now time.Time) error {
	claim, err := e.Get(claimID)
	if err != nil {
		return err
	}
	if claim.Status != StatusPendingAttestation {
		return fmt.Errorf("%w: %s", ErrInvalidClaimStatus, claim.Status)
	}
	if claim.AttestationCount < e.cfg.RequiredAttestations {
		return fmt.Errorf("%w: have %d, need %d",
			ErrInsufficientAttestations, claim.AttestationCount, e.cfg.RequiredAttestations)
	}

	claim.DenialReason = reason
	if claim.AI != nil && claim.AI.Recommendation == RecommendApprove {
		e.oracle.RecordOutcome(true)
	}
	return claim.transition(StatusDenied, now)
}

// Appeal re-opens a denied claim, bounded by the governance appeal limit.
// Attestations reset; the committee reviews from scratch.
func (e *Engine) Appeal(claimID uuid.UUID, now time.Time) error {
	claim, err := e.Get(claimID)
	if err != nil {
		return err
	}
	if claim.Status != StatusDenied {
		return fmt.Errorf("%w: %s", ErrAppealNotAllowed, claim.Status)
	}
	if claim.AppealCount >= e.cfg.MaxAppealCount {
		return fmt.Errorf("%w: %d appeals used", ErrAppealNotAllowed, claim.AppealCount)
	}

	claim.AppealCount++
	claim.Attestors = nil
	claim.AttestationCount = 0
	claim.DenialReason = ""
	return claim.transition(StatusAppealed, now)
}

// Cancel withdraws a claim before approval. Member-only.
func (e *Engine) Cancel(claimID, member uuid.UUID, now time.Time) error {
	claim, err := e.Get(claimID)
	if err != nil {
		return err
	}
	if claim.MemberID != member {
		return fmt.Errorf("%w: not the claimant", ErrUnauthorized)
	}
	if claim.Status != StatusSubmitted && claim.Status != StatusUnderReview {
		return fmt.Errorf("%w: %s", ErrCannotCancel, claim.Status)
	}
	return claim.transition(StatusCancelled, now)
}

// PayResult reports the outcome of one payment attempt.
type PayResult struct {
	Paid           int64
	Outstanding    int64
	ProtocolShare  int64
	ReinsurerShare int64
	Escalate       bool
}

// Pay drives the reserve waterfall for the approved amount and books the
// reinsurance recovery. A reserve shortfall pays what the tiers hold, leaves
// the claim open for the remainder, and flags escalation to external
// collateral for the caller.
func (e *Engine) Pay(claimID uuid.UUID, policyYear, month int, now time.Time) (PayResult, error) {
	claim, err := e.Get(claimID)
	if err != nil {
		return PayResult{}, err
	}
	if claim.Status == StatusPaid {
		return PayResult{}, ErrAlreadyPaid
	}
	if claim.Status != StatusApproved && claim.Status != StatusPartiallyApproved {
		return PayResult{}, fmt.Errorf("%w: %s", ErrInvalidClaimStatus, claim.Status)
	}
	outstanding := claim.ApprovedAmount - claim.PaidAmount
	if outstanding <= 0 {
		return PayResult{}, ErrAlreadyPaid
	}

	paid, werr := e.reserves.PayoutWaterfall(outstanding, now)
	if werr != nil && paid == 0 {
		return PayResult{}, werr
	}

	var result PayResult
	result.Paid = paid

	if e.recovery != nil && paid > 0 {
		ytdBefore := e.recovery.MemberYtd(claim.MemberID, policyYear)
		protocol, reinsurer, rerr := e.recovery.IncrementalRecovery(ytdBefore, paid)
		if rerr != nil {
			return PayResult{}, rerr
		}
		result.ProtocolShare = protocol
		result.ReinsurerShare = reinsurer
		e.recovery.Accumulate(claim.MemberID, paid, policyYear, month)
	}

	claim.PaidAmount += paid
	result.Outstanding = claim.ApprovedAmount - claim.PaidAmount

	if result.Outstanding > 0 {
		// Partial payment: reserves ran dry mid-claim.
		result.Escalate = true
		return result, werr
	}

	if claim.AI != nil {
		e.oracle.RecordOutcome(false)
	}
	return result, claim.transition(StatusPaid, now)
}

// Close finalizes a paid claim, or a denied claim whose appeals are spent.
func (e *Engine) Close(claimID uuid.UUID, now time.Time) error {
	claim, err := e.Get(claimID)
	if err != nil {
		return err
	}
	switch claim.Status {
	case StatusPaid:
		return claim.transition(StatusClosed, now)
	case StatusDenied:
		if claim.AppealCount < e.cfg.MaxAppealCount {
			return fmt.Errorf("%w: appeal window open", ErrInvalidClaimStatus)
		}
		return claim.transition(StatusClosed, now)
	default:
		return fmt.Errorf("%w: %s", ErrInvalidClaimStatus, claim.Status)
	}
}

// OpenClaimCount returns the number of claims not yet in a terminal state.
func (e *Engine) OpenClaimCount() int {
	n := 0
	for _, c := range e.claims {
		if !c.Status.IsTerminal() {
			n++
		}
	}
	return n
}

// SnapshotClaims returns copies of all claims for persistence.
func (e *Engine) SnapshotClaims() []Claim {
	out := make([]Claim, 0, len(e.claims))
	for _, c := range e.claims {
		out = append(out, *c)
	}
	return out
}

// SnapshotTrackers returns copies of all fast-lane trackers.
func (e *Engine) SnapshotTrackers() []FastLaneTracker {
	out := make([]FastLaneTracker, 0, len(e.trackers))
	for _, t := range e.trackers {
		out = append(out, *t)
	}
	return out
}

// Restore reinstates engine state from snapshot records.
func (e *Engine) Restore(claims []Claim, trackers []FastLaneTracker) {
	e.claims = make(map[uuid.UUID]*Claim, len(claims))
	for i := range claims {
		c := claims[i]
		e.claims[c.ID] = &c
	}
	e.trackers = make(map[uuid.UUID]*FastLaneTracker, len(trackers))
	for i := range trackers {
		t := trackers[i]
		e.trackers[t.MemberID] = &t
	}
}
