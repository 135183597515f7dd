package engine

import (
	"errors"
	"fmt"
	"time"

	"CareLedger/internal/claims"
	"CareLedger/internal/event"
	"CareLedger/internal/observability"
	"CareLedger/internal/rating"
	"CareLedger/internal/reinsurance"
	"CareLedger/internal/reserve"
	"CareLedger/internal/solvency"

	"github.com/google/uuid"
)

const defaultLRUCapacity = 1_000_000

// Config is the governance-owned parameter set the core boots with. Every
// field can later be replaced through a GovernanceUpdate event.
type Config struct {
	RatingTable    rating.RatingTable
	ReserveTargets reserve.Targets
	Treaty         reinsurance.Treaty
	Triage         claims.TriageConfig

	// LRUCapacity bounds the in-memory idempotency tier. Operational, not
	// governance-owned; zero means the default.
	LRUCapacity int
}

// DefaultConfig returns the launch parameter set. No treaty is bound at
// launch; stop-loss recoveries start once governance applies one.
func DefaultConfig() Config {
	return Config{
		RatingTable:    rating.DefaultTable(),
		ReserveTargets: reserve.DefaultTargets(),
		Triage:         claims.DefaultTriageConfig(),
		LRUCapacity:    defaultLRUCapacity,
	}
}

// DeterministicCore is the single-threaded event processor
type DeterministicCore struct {
	sequence          int64
	hasher            *StateHasher
	ratingTable       rating.RatingTable
	monitor           *solvency.Monitor
	reserves          *reserve.Ledger
	treaty            reinsurance.Treaty
	accumulators      *reinsurance.Accumulators
	triage            *claims.Engine
	idempotency       *IdempotencyChecker
	sequenceValidator *SequenceValidator
	metrics           *observability.Metrics
	encodePayload     func(event.Event) ([]byte, error)
	replaying         bool

	persistChan    chan<- CoreOutput
	projectionChan chan<- CoreOutput
}

type CoreOutput struct {
	Envelope   *event.EventEnvelope
	StateDelta []byte

	// Audit is the post-event solvency reading, persisted alongside the
	// envelope so the reserve position at every sequence is reconstructible
	// without replay.
	Audit AuditRow

	// Claim carries the touched claim's record for the projection worker.
	Claim *ClaimRow
}

// ClaimRow is the projection-ready record of the claim an event touched.
// Nil for pool-wide events.
type ClaimRow struct {
	ClaimID          uuid.UUID
	MemberID         uuid.UUID
	Status           string
	Lane             string
	Category         int32
	RequestedAmount  int64
	ApprovedAmount   int64
	PaidAmount       int64
	AttestationCount int32
	AppealCount      int32
	IsShockClaim     bool
	DenialReason     string
	ServiceDate      time.Time
	SubmittedAt      time.Time
	StatusChangedAt  time.Time

	// AttestationStartedAt anchors the review SLA window; zero outside review.
	AttestationStartedAt time.Time
}

// AuditRow is the per-event solvency audit record.
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

func NewDeterministicCore(
	cfg Config,
	startSequence int64,
	persistChan, projectionChan chan<- CoreOutput,
	dbChecker DBIdempotencyChecker,
	metrics *observability.Metrics,
) *DeterministicCore {
	lruCapacity := cfg.LRUCapacity
	if lruCapacity <= 0 {
		lruCapacity = defaultLRUCapacity
	}

	c := &DeterministicCore{
		sequence:          startSequence,
		hasher:            NewStateHasher(),
		ratingTable:       cfg.RatingTable,
		monitor:           solvency.NewMonitor(),
		reserves:          reserve.NewLedger(cfg.ReserveTargets),
		treaty:            cfg.Treaty,
		accumulators:      reinsurance.NewAccumulators(),
		idempotency:       NewIdempotencyChecker(lruCapacity, dbChecker),
		sequenceValidator: NewSequenceValidator(),
		metrics:           metrics,
		persistChan:       persistChan,
		projectionChan:    projectionChan,
	}

	// The triage engine sees the reserve ledger and treaty only through the
	// adapters below; membership is attested upstream before events reach
	// the core, so no gate is wired here.
	c.triage = claims.NewEngine(cfg.Triage, nil, &reservePool{core: c}, &treatyRecovery{core: c})

	return c
}

// reservePool adapts the tiered ledger to the triage engine's payout surface.
type reservePool struct {
	core *DeterministicCore
}

func (p *reservePool) TotalReserves() int64 {
	return p.core.reserves.TotalReserves()
}

func (p *reservePool) PayoutWaterfall(amount int64, now time.Time) (int64, error) {
	return p.core.reserves.PayoutWaterfall(amount, now)
}

// treatyRecovery adapts the stop-loss treaty plus the YTD accumulators.
// It reads through the core so a governance treaty swap takes effect on the
// next claim.
type treatyRecovery struct {
	core *DeterministicCore
}

func (r *treatyRecovery) MemberYtd(member uuid.UUID, policyYear int) int64 {
	return r.core.accumulators.MemberYtd(member, policyYear)
}

func (r *treatyRecovery) IncrementalRecovery(ytdBefore, claimAmount int64) (int64, int64, error) {
	// No treaty bound yet: the pool retains every dollar.
	if r.core.treaty.PolicyPeriodEnd.IsZero() {
		return claimAmount, 0, nil
	}
	split, err := r.core.treaty.IncrementalSpecificRecovery(ytdBefore, claimAmount)
	if err != nil {
		return 0, 0, err
	}
	return split.ProtocolShare, split.ReinsurerShare, nil
}

func (r *treatyRecovery) Accumulate(member uuid.UUID, amount int64, policyYear, month int) {
	r.core.accumulators.Accumulate(member, amount, policyYear, month,
		r.core.treaty.ExpectedAnnualClaims/12)
}

// ProcessEvent is the main processing pipeline
func (c *DeterministicCore) ProcessEvent(evt event.Event) error {
	start := time.Now()
	eventType := evt.EventType().String()
	idempotencyKey := evt.IdempotencyKey()

	// Step 1: Idempotency check. Two-tier in live mode; LRU-only during
	// replay, where the DB tier is the very log being replayed and would
	// dedup every event against its own row.
	var isDuplicate bool
	if c.replaying {
		isDuplicate = c.idempotency.IsDuplicateLocal(eventType, idempotencyKey)
	} else {
		isDuplicate = c.idempotency.IsDuplicate(eventType, idempotencyKey)
	}

	// Step 2: Sequence validation.
	// Collateral reports are snapshots, not a transaction stream: stale ones
	// are dropped and gaps tolerated. Everything else is strict per-partition.
	if report, ok := evt.(*event.CollateralReport); ok {
		if !c.sequenceValidator.AcceptReport(report.StakingSeq) {
			if c.metrics != nil {
				c.metrics.CoreEventsRejected.WithLabelValues(eventType, "stale").Inc()
			}
			return nil
		}
	} else {
		partition := c.getPartition(evt)
		if err := c.sequenceValidator.ValidateSequence(partition, evt.SourceSequence(), idempotencyKey, isDuplicate); err != nil {
			return fmt.Errorf("sequence validation failed: %w", err)
		}
	}

	// If duplicate, skip processing
	if isDuplicate {
		if c.metrics != nil {
			c.metrics.CoreEventsRejected.WithLabelValues(eventType, "duplicate").Inc()
		}
		return nil
	}

	// Encode the wire payload before dispatch so an encode failure cannot
	// leave applied state without a persisted envelope.
	var payload []byte
	if c.encodePayload != nil {
		var err error
		payload, err = c.encodePayload(evt)
		if err != nil {
			return fmt.Errorf("encode payload: %w", err)
		}
	}

	// Step 3: Dispatch to the domain managers
	entityDelta, err := c.dispatchEvent(evt)
	if err != nil {
		return fmt.Errorf("dispatch failed: %w", err)
	}

	// Step 4: Post-checks
	if err := c.reserves.CheckInvariants(); err != nil {
		panic(fmt.Sprintf("FATAL: invariant violated: %v", err))
	}

	// Step 5: State digest + hash chain
	stateDigest := append(c.globalDigest(), entityDelta...)
	prevHash := c.hasher.GetPrevHash()
	stateHash := c.hasher.ComputeHash(c.sequence, stateDigest)

	envelope := &event.EventEnvelope{
		Sequence:       c.sequence,
		IdempotencyKey: idempotencyKey,
		EventType:      evt.EventType(),
		EntityID:       evt.EntityID(),
		Timestamp:      c.getEventTimestamp(evt),
		SourceSequence: evt.SourceSequence(),
		StateHash:      stateHash,
		PrevHash:       prevHash,
		Payload:        payload,
	}

	output := CoreOutput{
		Envelope:   envelope,
		StateDelta: stateDigest,
		Audit:      c.auditRow(),
		Claim:      c.claimRow(evt),
	}
	c.sequence++

	// Step 6: Emit outputs. Skipped entirely during replay: the event log
	// already holds these rows, and replay runs before the workers start.
	if !c.replaying {
		// Persistence: blocking send — the core stalls until the persistence
		// worker drains. This guarantees no event is lost.
		c.persistChan <- output

		// Projections: non-blocking send — drop on full. Projection workers
		// can rebuild from the event log if they fall behind.
		select {
		case c.projectionChan <- output:
		default:
			// Silently dropped — projection will catch up via rebuild
		}
	}

	// Step 7: Mark as processed (add to LRU)
	c.idempotency.MarkProcessed(eventType, idempotencyKey)

	// Record metrics
	if c.metrics != nil {
		c.metrics.CoreEventsApplied.WithLabelValues(eventType).Inc()
		c.metrics.CoreEventDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
		c.metrics.CoreSequence.Set(float64(c.sequence))
	}

	return nil
}

// getPartition maps each event to its upstream substrate's ordering stream.
func (c *DeterministicCore) getPartition(evt event.Event) string {
	switch evt.(type) {
	case *event.ContributionReceived:
		return "payments"
	case *event.TierDeposit, *event.Tier0Refill:
		return "treasury"
	case *event.IbnrUpdate:
		return "actuary"
	case *event.EnrollmentRecorded:
		return "membership"
	case *event.ShockFactorSet, *event.GovernanceUpdate:
		return "governance"
	case *event.ClaimSubmitted:
		return "intake"
	case *event.AiDecisionRecorded:
		return "oracle"
	case *event.ClaimAttested, *event.ClaimApproved, *event.ClaimDenied:
		return "committee"
	case *event.AttestationExpired:
		return "scheduler"
	case *event.ClaimAppealed, *event.ClaimCancelled:
		return "member"
	case *event.ClaimPaid, *event.ClaimClosed:
		return "payout"
	default:
		return "global"
	}
}

// getEventTimestamp extracts the versioned timestamp from an event. The core
// MUST NOT call time.Now(): all timestamps are versioned inputs.
func (c *DeterministicCore) getEventTimestamp(evt event.Event) time.Time {
	switch e := evt.(type) {
	case *event.ContributionReceived:
		return e.Timestamp
	case *event.TierDeposit:
		return e.Timestamp
	case *event.Tier0Refill:
		return e.Timestamp
	case *event.IbnrUpdate:
		return e.Timestamp
	case *event.EnrollmentRecorded:
		return e.Timestamp
	case *event.CollateralReport:
		return e.Timestamp
	case *event.ShockFactorSet:
		return e.Timestamp
	case *event.GovernanceUpdate:
		return e.Timestamp
	case *event.ClaimSubmitted:
		return e.Timestamp
	case *event.AiDecisionRecorded:
		return e.Timestamp
	case *event.ClaimAttested:
		return e.Timestamp
	case *event.AttestationExpired:
		return e.Timestamp
	case *event.ClaimApproved:
		return e.Timestamp
	case *event.ClaimDenied:
		return e.Timestamp
	case *event.ClaimAppealed:
		return e.Timestamp
	case *event.ClaimCancelled:
		return e.Timestamp
	case *event.ClaimPaid:
		return e.Timestamp
	case *event.ClaimClosed:
		return e.Timestamp
	default:
		panic(fmt.Sprintf("FATAL: getEventTimestamp called with unhandled event type %T — deterministic core cannot use wall-clock time", evt))
	}
}

// globalDigest creates canonical bytes over the pool-wide scalar state:
// reserve balances, CAR reading, zone policy, and the shock factor.
func (c *DeterministicCore) globalDigest() []byte {
	rs := c.reserves.State()
	car := c.monitor.CarState()
	zone := c.monitor.ZoneState()

	digest := make([]byte, 0, 18*8)

	digest = appendInt64LE(digest, rs.Tier0Balance)
	digest = appendInt64LE(digest, rs.Tier1Balance)
	digest = appendInt64LE(digest, rs.Tier2Balance)
	digest = appendInt64LE(digest, rs.IbnrEstimate)
	digest = appendInt64LE(digest, rs.RunoffBalance)
	digest = appendInt64LE(digest, rs.TotalContributionsReceived)
	digest = appendInt64LE(digest, rs.TotalClaimsPaid)
	digest = appendInt64LE(digest, rs.AvgDailyClaims)

	digest = appendInt64LE(digest, car.CurrentCarBps)
	digest = appendInt64LE(digest, car.TotalUsdcReserves)
	digest = appendInt64LE(digest, car.EligibleCollateralUsdc)
	digest = appendInt64LE(digest, car.ExpectedAnnualClaims)

	digest = appendInt64LE(digest, int64(zone.Zone))
	digest = appendInt64LE(digest, zone.MonthlyEnrollmentCap)
	digest = appendInt64LE(digest, zone.CurrentMonthEnrollments)
	digest = appendInt64LE(digest, zone.ShockFactorCeilingBps)
	if zone.EnrollmentFrozen {
		digest = appendInt64LE(digest, 1)
	} else {
		digest = appendInt64LE(digest, 0)
	}

	digest = appendInt64LE(digest, c.monitor.ShockFactorBps())

	return digest
}

// claimDigest appends the touched claim's record so the hash chain covers
// per-entity transitions, not just pool aggregates.
func (c *DeterministicCore) claimDigest(claimID uuid.UUID) []byte {
	claim, err := c.triage.Get(claimID)
	if err != nil {
		return nil
	}

	digest := make([]byte, 0, 16+7*8)
	digest = append(digest, claim.ID[:]...)
	digest = appendInt64LE(digest, int64(claim.Status))
	digest = appendInt64LE(digest, int64(claim.Lane))
	digest = appendInt64LE(digest, claim.RequestedAmount)
	digest = appendInt64LE(digest, claim.ApprovedAmount)
	digest = appendInt64LE(digest, claim.PaidAmount)
	digest = appendInt64LE(digest, int64(claim.AttestationCount))
	digest = appendInt64LE(digest, int64(claim.AppealCount))
	return digest
}

// claimRow looks up the claim an event touched, if any.
func (c *DeterministicCore) claimRow(evt event.Event) *ClaimRow {
	var claimID uuid.UUID
	switch e := evt.(type) {
	case *event.ClaimSubmitted:
		claimID = e.ClaimID
	case *event.AiDecisionRecorded:
		claimID = e.ClaimID
	case *event.ClaimAttested:
		claimID = e.ClaimID
	case *event.AttestationExpired:
		claimID = e.ClaimID
	case *event.ClaimApproved:
		claimID = e.ClaimID
	case *event.ClaimDenied:
		claimID = e.ClaimID
	case *event.ClaimAppealed:
		claimID = e.ClaimID
	case *event.ClaimCancelled:
		claimID = e.ClaimID
	case *event.ClaimPaid:
		claimID = e.ClaimID
	case *event.ClaimClosed:
		claimID = e.ClaimID
	default:
		return nil
	}

	claim, err := c.triage.Get(claimID)
	if err != nil {
		return nil
	}

	return &ClaimRow{
		ClaimID:          claim.ID,
		MemberID:         claim.MemberID,
		Status:           claim.Status.String(),
		Lane:             claim.Lane.String(),
		Category:         int32(claim.Category),
		RequestedAmount:  claim.RequestedAmount,
		ApprovedAmount:   claim.ApprovedAmount,
		PaidAmount:       claim.PaidAmount,
		AttestationCount: int32(claim.AttestationCount),
		AppealCount:      int32(claim.AppealCount),
		IsShockClaim:     claim.IsShockClaim,
		DenialReason:     claim.DenialReason,
		ServiceDate:      claim.ServiceDate,
		SubmittedAt:      claim.SubmittedAt,
		StatusChangedAt:  claim.StatusChangedAt,

		AttestationStartedAt: claim.AttestationStartedAt,
	}
}

func (c *DeterministicCore) auditRow() AuditRow {
	rs := c.reserves.State()
	car := c.monitor.CarState()
	zone := c.monitor.ZoneState()

	return AuditRow{
		Tier0Balance:    rs.Tier0Balance,
		Tier1Balance:    rs.Tier1Balance,
		Tier2Balance:    rs.Tier2Balance,
		IbnrEstimate:    rs.IbnrEstimate,
		RunoffBalance:   rs.RunoffBalance,
		TotalClaimsPaid: rs.TotalClaimsPaid,
		CarBps:          car.CurrentCarBps,
		Zone:            int32(zone.Zone),
		ShockFactorBps:  c.monitor.ShockFactorBps(),
	}
}

func appendInt64LE(buf []byte, v int64) []byte {
	return append(buf,
		byte(v),
		byte(v>>8),
		byte(v>>16),
		byte(v>>24),
		byte(v>>32),
		byte(v>>40),
		byte(v>>48),
		byte(v>>56),
	)
}

func (c *DeterministicCore) handleContribution(evt *event.ContributionReceived) ([]byte, error) {
	routing, err := c.reserves.RouteContribution(evt.Amount)
	if err != nil {
		return nil, err
	}

	if c.metrics != nil {
		c.metrics.ContributionsRouted.Inc()
		c.metrics.AdminLoadSiphoned.Add(float64(routing.AdminLoad))
		c.updateReserveGauges()
	}

	return nil, nil
}

func (c *DeterministicCore) handleTierDeposit(evt *event.TierDeposit) ([]byte, error) {
	var tier reserve.Tier
	switch evt.Tier {
	case event.ReserveTier0:
		tier = reserve.Tier0
	case event.ReserveTier1:
		tier = reserve.Tier1
	case event.ReserveTier2:
		tier = reserve.Tier2
	default:
		return nil, fmt.Errorf("%w: %d", reserve.ErrInvalidTier, evt.Tier)
	}

	if err := c.reserves.DepositToTier(tier, evt.Amount); err != nil {
		return nil, err
	}
	c.updateReserveGauges()
	return nil, nil
}

func (c *DeterministicCore) handleTier0Refill(evt *event.Tier0Refill) ([]byte, error) {
	if err := c.reserves.RefillTier0(evt.Amount); err != nil {
		return nil, err
	}
	c.updateReserveGauges()
	return nil, nil
}

func (c *DeterministicCore) handleIbnrUpdate(evt *event.IbnrUpdate) ([]byte, error) {
	params := reserve.IbnrParameters{
		AvgDailyClaims30d:    evt.AvgDailyClaims30d,
		AvgDailyClaims90d:    evt.AvgDailyClaims90d,
		ReportingLagDays:     evt.ReportingLagDays,
		DevelopmentFactorBps: evt.DevelopmentFactorBps,
	}

	c.reserves.UpdateAvgDailyClaims(evt.AvgDailyClaims30d)
	estimate, err := c.reserves.UpdateIbnr(params)
	if err != nil {
		return nil, err
	}

	if c.metrics != nil {
		c.metrics.IbnrEstimate.Set(float64(estimate))
	}
	return nil, nil
}

func (c *DeterministicCore) handleEnrollment(evt *event.EnrollmentRecorded) ([]byte, error) {
	if err := c.monitor.RecordEnrollment(evt.Timestamp); err != nil {
		if c.metrics != nil {
			reason := "cap"
			if errors.Is(err, solvency.ErrEnrollmentFrozen) {
				reason = "frozen"
			}
			c.metrics.EnrollmentsRejected.WithLabelValues(reason).Inc()
		}
		return nil, err
	}

	if c.metrics != nil {
		c.metrics.EnrollmentsRecorded.Inc()
	}
	return nil, nil
}

// handleCollateralReport recomputes CAR from the freshest staking view plus
// the live reserve position. The reported expected annual claims is the
// actuarial denominator; zero means bootstrap and CAR saturates Green.
func (c *DeterministicCore) handleCollateralReport(evt *event.CollateralReport) ([]byte, error) {
	car, zone := c.monitor.UpdateCar(solvency.Snapshot{
		Reserves:             c.reserves.TotalReserves(),
		Collateral:           evt.EligibleCollateralUsdc,
		ExpectedAnnualClaims: evt.ExpectedAnnualClaims,
		Now:                  evt.Timestamp,
	})

	if c.metrics != nil {
		c.metrics.CarBps.Set(float64(car.CurrentCarBps))
		c.metrics.SolvencyZone.Set(float64(zone.Zone))
	}
	return nil, nil
}

func (c *DeterministicCore) handleShockFactorSet(evt *event.ShockFactorSet) ([]byte, error) {
	if err := c.monitor.SetShockFactor(evt.ShockFactorBps, solvency.ApprovalTier(evt.ApprovalTier)); err != nil {
		return nil, err
	}

	if c.metrics != nil {
		c.metrics.ShockFactorBps.Set(float64(evt.ShockFactorBps))
	}
	return nil, nil
}

func (c *DeterministicCore) handleClaimSubmitted(evt *event.ClaimSubmitted) ([]byte, error) {
	result, err := c.triage.Submit(
		evt.ClaimID,
		evt.MemberID,
		evt.Amount,
		claims.Category(evt.Category),
		evt.ServiceDate,
		evt.Timestamp,
	)
	if err != nil {
		return nil, err
	}

	if c.metrics != nil {
		c.metrics.ClaimsSubmitted.WithLabelValues(result.Lane.String()).Inc()
		if result.Refusal != nil {
			c.metrics.FastLaneRefusals.Inc()
		}
		claim, _ := c.triage.Get(evt.ClaimID)
		if claim != nil && claim.IsShockClaim {
			c.metrics.ShockClaims.Inc()
		}
	}
	return c.claimDigest(evt.ClaimID), nil
}

func (c *DeterministicCore) handleAiDecision(evt *event.AiDecisionRecorded) ([]byte, error) {
	record := claims.AiDecisionRecord{
		ClaimID:        evt.ClaimID,
		ConfidenceBps:  evt.ConfidenceBps,
		FraudScoreBps:  evt.FraudScoreBps,
		PriceScoreBps:  evt.PriceScoreBps,
		Recommendation: claims.Recommendation(evt.Recommendation),
		ModelVersion:   evt.ModelVersion,
		Signer:         evt.Signer,
		Timestamp:      evt.Timestamp,
	}

	if err := c.triage.RecordAiDecision(evt.ClaimID, record, evt.Timestamp); err != nil {
		return nil, err
	}
	return c.claimDigest(evt.ClaimID), nil
}

func (c *DeterministicCore) handleClaimAttested(evt *event.ClaimAttested) ([]byte, error) {
	if err := c.triage.Attest(evt.ClaimID, evt.AttestorID, evt.Timestamp); err != nil {
		return nil, err
	}
	return c.claimDigest(evt.ClaimID), nil
}

func (c *DeterministicCore) handleAttestationExpired(evt *event.AttestationExpired) ([]byte, error) {
	if err := c.triage.ExpireAttestation(evt.ClaimID, evt.Timestamp); err != nil {
		return nil, err
	}

	if c.metrics != nil {
		c.metrics.AttestationExpiries.Inc()
	}
	return c.claimDigest(evt.ClaimID), nil
}

func (c *DeterministicCore) handleClaimApproved(evt *event.ClaimApproved) ([]byte, error) {
	if err := c.triage.Approve(evt.ClaimID, evt.ApprovedAmount, evt.Timestamp); err != nil {
		return nil, err
	}
	c.recordDisposition(evt.ClaimID)
	return c.claimDigest(evt.ClaimID), nil
}

func (c *DeterministicCore) handleClaimDenied(evt *event.ClaimDenied) ([]byte, error) {
	if err := c.triage.Deny(evt.ClaimID, evt.Reason, evt.Timestamp); err != nil {
		return nil, err
	}
	c.recordDisposition(evt.ClaimID)
	return c.claimDigest(evt.ClaimID), nil
}

func (c *DeterministicCore) handleClaimAppealed(evt *event.ClaimAppealed) ([]byte, error) {
	if err := c.triage.Appeal(evt.ClaimID, evt.Timestamp); err != nil {
		return nil, err
	}
	return c.claimDigest(evt.ClaimID), nil
}

func (c *DeterministicCore) handleClaimCancelled(evt *event.ClaimCancelled) ([]byte, error) {
	if err := c.triage.Cancel(evt.ClaimID, evt.MemberID, evt.Timestamp); err != nil {
		return nil, err
	}
	c.recordDisposition(evt.ClaimID)
	return c.claimDigest(evt.ClaimID), nil
}

// handleClaimPaid drives the reserve waterfall and books the stop-loss
// recovery. A partial payment is still an applied event: the claim stays
// open for the remainder and the shortfall is surfaced through metrics for
// the external collateral escalation path.
func (c *DeterministicCore) handleClaimPaid(evt *event.ClaimPaid) ([]byte, error) {
	result, err := c.triage.Pay(evt.ClaimID, evt.PolicyYear, evt.Month, evt.Timestamp)
	if err != nil && result.Paid == 0 {
		return nil, err
	}

	if c.metrics != nil {
		c.metrics.WaterfallDraws.Inc()
		c.metrics.ClaimsPaidUsdc.Add(float64(result.Paid))
		if result.Escalate {
			c.metrics.WaterfallShortfalls.Inc()
		}
		if result.ReinsurerShare > 0 {
			c.metrics.RecoveriesBooked.Inc()
			c.metrics.ReinsurerShareUsdc.Add(float64(result.ReinsurerShare))
		}
		if c.treaty.ExpectedAnnualClaims > 0 {
			if agg, ok := c.accumulators.Month(evt.PolicyYear, evt.Month); ok && agg.LossRatioFlagged() {
				c.metrics.LossRatioFlags.Inc()
			}
		}
		c.updateReserveGauges()
		if result.Outstanding == 0 {
			c.recordDisposition(evt.ClaimID)
		}
	}
	return c.claimDigest(evt.ClaimID), nil
}

func (c *DeterministicCore) handleClaimClosed(evt *event.ClaimClosed) ([]byte, error) {
	if err := c.triage.Close(evt.ClaimID, evt.Timestamp); err != nil {
		return nil, err
	}
	c.recordDisposition(evt.ClaimID)
	return c.claimDigest(evt.ClaimID), nil
}

func (c *DeterministicCore) recordDisposition(claimID uuid.UUID) {
	if c.metrics == nil {
		return
	}
	claim, err := c.triage.Get(claimID)
	if err != nil {
		return
	}
	c.metrics.ClaimsDisposed.WithLabelValues(claim.Status.String()).Inc()
}

func (c *DeterministicCore) updateReserveGauges() {
	if c.metrics == nil {
		return
	}
	rs := c.reserves.State()
	c.metrics.ReserveTierBalance.WithLabelValues(reserve.Tier0.String()).Set(float64(rs.Tier0Balance))
	c.metrics.ReserveTierBalance.WithLabelValues(reserve.Tier1.String()).Set(float64(rs.Tier1Balance))
	c.metrics.ReserveTierBalance.WithLabelValues(reserve.Tier2.String()).Set(float64(rs.Tier2Balance))
}

func (c *DeterministicCore) dispatchEvent(evt event.Event) ([]byte, error) {
	switch e := evt.(type) {
	case *event.ContributionReceived:
		return c.handleContribution(e)
	case *event.TierDeposit:
		return c.handleTierDeposit(e)
	case *event.Tier0Refill:
		return c.handleTier0Refill(e)
	case *event.IbnrUpdate:
		return c.handleIbnrUpdate(e)
	case *event.EnrollmentRecorded:
		return c.handleEnrollment(e)
	case *event.CollateralReport:
		return c.handleCollateralReport(e)
	case *event.ShockFactorSet:
		return c.handleShockFactorSet(e)
	case *event.ClaimSubmitted:
		return c.handleClaimSubmitted(e)
	case *event.AiDecisionRecorded:
		return c.handleAiDecision(e)
	case *event.ClaimAttested:
		return c.handleClaimAttested(e)
	case *event.AttestationExpired:
		return c.handleAttestationExpired(e)
	case *event.ClaimApproved:
		return c.handleClaimApproved(e)
	case *event.ClaimDenied:
		return c.handleClaimDenied(e)
	case *event.ClaimAppealed:
		return c.handleClaimAppealed(e)
	case *event.ClaimCancelled:
		return c.handleClaimCancelled(e)
	case *event.ClaimPaid:
		return c.handleClaimPaid(e)
	case *event.ClaimClosed:
		return c.handleClaimClosed(e)
	case *event.GovernanceUpdate:
		return c.handleGovernanceUpdate(e)
	default:
		return nil, fmt.Errorf("unknown event type: %T", evt)
	}
}

// --- Snapshot Restore & Startup Methods ---

// SnapshotState holds the serializable in-memory state for restore.
// This mirrors persistence.SnapshotData but uses typed fields.
type SnapshotState struct {
	Sequence           int64
	StateHash          [32]byte
	Reserves           reserve.State
	ReserveTargets     reserve.Targets
	Car                solvency.CarState
	Zone               solvency.ZoneState
	ShockFactorBps     int64
	RatingTable        rating.RatingTable
	Treaty             reinsurance.Treaty
	Triage             claims.TriageConfig
	Claims             []claims.Claim
	FastLaneTrackers   []claims.FastLaneTracker
	MemberAccumulators []reinsurance.MemberClaimAccumulator
	MonthlyAggregates  []reinsurance.MonthlyAggregate
	SequenceState      map[string]int64
	IdempotencyKeys    []string
}

// RestoreFromSnapshot restores the core's in-memory state. On warm restart,
// load the latest snapshot then replay events past its sequence.
func (c *DeterministicCore) RestoreFromSnapshot(snap *SnapshotState) {
	c.sequence = snap.Sequence + 1 // Next sequence to assign
	c.hasher.SetPrevHash(snap.StateHash)

	c.reserves.RestoreState(snap.Reserves, snap.ReserveTargets)
	c.monitor.RestoreState(snap.Car, snap.Zone, snap.ShockFactorBps)

	c.ratingTable = snap.RatingTable
	c.treaty = snap.Treaty
	c.triage.SetConfig(snap.Triage)
	c.triage.Restore(snap.Claims, snap.FastLaneTrackers)
	c.accumulators.RestoreMembers(snap.MemberAccumulators)
	c.accumulators.RestoreMonths(snap.MonthlyAggregates)

	for partition, nextSeq := range snap.SequenceState {
		c.sequenceValidator.SetExpectedSequence(partition, nextSeq)
	}
}

// WarmLRU loads recent idempotency keys into the LRU cache, avoiding
// cold-path DB lookups for recently processed events.
func (c *DeterministicCore) WarmLRU(keys []string) {
	c.idempotency.lru.WarmFromKeys(keys)
}

// GetSequence returns the current global sequence number.
func (c *DeterministicCore) GetSequence() int64 {
	return c.sequence
}

// SetPayloadEncoder installs the wire encoder used to fill envelope payloads.
// Must be set before processing begins.
func (c *DeterministicCore) SetPayloadEncoder(fn func(event.Event) ([]byte, error)) {
	c.encodePayload = fn
}

// BeginReplay switches the core into log-replay mode: idempotency falls back
// to the LRU alone and outputs are not re-emitted. Applied keys still land in
// the LRU, so live dedup is warm the moment replay ends.
func (c *DeterministicCore) BeginReplay() {
	c.replaying = true
}

// EndReplay returns the core to live processing.
func (c *DeterministicCore) EndReplay() {
	c.replaying = false
}

// ExpectedSequence returns the next expected source sequence for a partition.
func (c *DeterministicCore) ExpectedSequence(partition string) int64 {
	return c.sequenceValidator.GetExpectedSequence(partition)
}

// GetStateHash returns the current state hash (chain tip).
func (c *DeterministicCore) GetStateHash() [32]byte {
	return c.hasher.GetPrevHash()
}

// CreateSnapshotState captures the current in-memory state for persistence.
func (c *DeterministicCore) CreateSnapshotState() *SnapshotState {
	return &SnapshotState{
		Sequence:           c.sequence - 1, // Last processed sequence
		StateHash:          c.hasher.GetPrevHash(),
		Reserves:           c.reserves.State(),
		ReserveTargets:     c.reserves.Targets(),
		Car:                c.monitor.CarState(),
		Zone:               c.monitor.ZoneState(),
		ShockFactorBps:     c.monitor.ShockFactorBps(),
		RatingTable:        c.ratingTable,
		Treaty:             c.treaty,
		Triage:             c.triage.Config(),
		Claims:             c.triage.SnapshotClaims(),
		FastLaneTrackers:   c.triage.SnapshotTrackers(),
		MemberAccumulators: c.accumulators.SnapshotMembers(),
		MonthlyAggregates:  c.accumulators.SnapshotMonths(),
		SequenceState:      c.sequenceValidator.GetAllPartitions(),
		IdempotencyKeys:    c.idempotency.lru.GetAllKeys(),
	}
}

// --- Read accessors for the service shell ---

// RatingTable returns the active pricing table.
func (c *DeterministicCore) RatingTable() rating.RatingTable {
	return c.ratingTable
}

// ShockFactorBps returns the active global shock multiplier.
func (c *DeterministicCore) ShockFactorBps() int64 {
	return c.monitor.ShockFactorBps()
}

// SolvencyStatus returns the current CAR reading and zone policy.
func (c *DeterministicCore) SolvencyStatus() solvency.CarStatus {
	return c.monitor.Status()
}

// ReserveState returns a copy of the reserve position.
func (c *DeterministicCore) ReserveState() reserve.State {
	return c.reserves.State()
}

// Triage exposes the claims engine for oracle/attestor roster management.
func (c *DeterministicCore) Triage() *claims.Engine {
	return c.triage
}

// Treaty returns the active stop-loss program.
func (c *DeterministicCore) Treaty() reinsurance.Treaty {
	return c.treaty
}
