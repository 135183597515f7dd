package claims_test

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"CareLedger/internal/bpsmath"
	"CareLedger/internal/claims"
)

var t0 = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

// fakePool is a reserve stand-in with a fixed balance.
type fakePool struct {
	reserves int64
}

func (p *fakePool) TotalReserves() int64 { return p.reserves }

func (p *fakePool) PayoutWaterfall(amount int64, _ time.Time) (int64, error) {
	paid := amount
	if paid > p.reserves {
		paid = p.reserves
	}
	p.reserves -= paid
	if paid < amount {
		return paid, errors.New("reserves exhausted")
	}
	return paid, nil
}

// fakeRecovery records accumulations and splits nothing below a $100k
// attachment at 20/80.
type fakeRecovery struct {
	ytd map[uuid.UUID]int64
}

func newFakeRecovery() *fakeRecovery {
	return &fakeRecovery{ytd: make(map[uuid.UUID]int64)}
}

func (r *fakeRecovery) MemberYtd(member uuid.UUID, _ int) int64 { return r.ytd[member] }

func (r *fakeRecovery) IncrementalRecovery(ytdBefore, amount int64) (int64, int64, error) {
	attachment := int64(100_000 * bpsmath.MicroUsdcScale)
	excess := ytdBefore + amount - attachment
	if excess <= 0 {
		return 0, 0, nil
	}
	if excess > amount {
		excess = amount
	}
	protocol := excess * 2_000 / 10_000
	return protocol, excess - protocol, nil
}

func (r *fakeRecovery) Accumulate(member uuid.UUID, amount int64, _, _ int) {
	r.ytd[member] += amount
}

type allActive struct{}

func (allActive) IsActive(uuid.UUID) bool { return true }

type noneActive struct{}

func (noneActive) IsActive(uuid.UUID) bool { return false }

func usdc(v int64) int64 { return v * bpsmath.MicroUsdcScale }

func newEngine(pool *fakePool) *claims.Engine {
	return claims.NewEngine(claims.DefaultTriageConfig(), allActive{}, pool, newFakeRecovery())
}

func submit(t *testing.T, e *claims.Engine, member uuid.UUID, amount int64, cat claims.Category) claims.SubmitResult {
	t.Helper()
	res, err := e.Submit(uuid.New(), member, amount, cat, t0.AddDate(0, 0, -1), t0)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	return res
}

// registerCommittee seeds two attestors and returns them.
func registerCommittee(t *testing.T, e *claims.Engine) (uuid.UUID, uuid.UUID) {
	t.Helper()
	a1, a2 := uuid.New(), uuid.New()
	if err := e.Attestors().Register(a1); err != nil {
		t.Fatalf("register attestor: %v", err)
	}
	if err := e.Attestors().Register(a2); err != nil {
		t.Fatalf("register attestor: %v", err)
	}
	return a1, a2
}

// ============================================================================
// Test: submission validation
// ============================================================================

func TestSubmit_ZeroAmountRejected(t *testing.T) {
	e := newEngine(&fakePool{reserves: usdc(1_000_000)})
	_, err := e.Submit(uuid.New(), uuid.New(), 0, claims.CategoryPrimaryCare, t0, t0)
	if !errors.Is(err, claims.ErrInvalidClaimAmount) {
		t.Errorf("got %v, want ErrInvalidClaimAmount", err)
	}
}

func TestSubmit_FutureServiceDateRejected(t *testing.T) {
	e := newEngine(&fakePool{reserves: usdc(1_000_000)})
	_, err := e.Submit(uuid.New(), uuid.New(), usdc(100), claims.CategoryPrimaryCare, t0.Add(time.Hour), t0)
	if !errors.Is(err, claims.ErrFutureServiceDate) {
		t.Errorf("got %v, want ErrFutureServiceDate", err)
	}
}

func TestSubmit_InactiveMemberRejected(t *testing.T) {
	e := claims.NewEngine(claims.DefaultTriageConfig(), noneActive{}, &fakePool{}, newFakeRecovery())
	_, err := e.Submit(uuid.New(), uuid.New(), usdc(100), claims.CategoryPrimaryCare, t0, t0)
	if !errors.Is(err, claims.ErrMemberNotActive) {
		t.Errorf("got %v, want ErrMemberNotActive", err)
	}
}

// ============================================================================
// Test: fast-lane routing
// ============================================================================

func TestFastLane_SmallPreventiveAutoApproves(t *testing.T) {
	e := newEngine(&fakePool{reserves: usdc(1_000_000)})
	member := uuid.New()

	res := submit(t, e, member, usdc(350), claims.CategoryPreventive)
	if res.Lane != claims.LaneFast {
		t.Errorf("lane: got %s, want FAST", res.Lane)
	}
	if res.Status != claims.StatusApproved {
		t.Errorf("status: got %s, want APPROVED", res.Status)
	}

	claim, err := e.Get(res.ClaimID)
	if err != nil {
		t.Fatal(err)
	}
	if claim.ApprovedAmount != usdc(350) {
		t.Errorf("approved: got %d, want %d", claim.ApprovedAmount, usdc(350))
	}
}

func TestFastLane_CountLimitRoutesToAi(t *testing.T) {
	cfg := claims.DefaultTriageConfig()
	cfg.FastLane = claims.StandardFastLane() // 5 claims / 30 days
	e := claims.NewEngine(cfg, allActive{}, &fakePool{reserves: usdc(1_000_000)}, newFakeRecovery())
	member := uuid.New()

	for i := 0; i < 5; i++ {
		res := submit(t, e, member, usdc(350), claims.CategoryPreventive)
		if res.Lane != claims.LaneFast {
			t.Fatalf("claim %d: lane %s, want FAST", i, res.Lane)
		}
	}

	res := submit(t, e, member, usdc(350), claims.CategoryPreventive)
	if res.Lane != claims.LaneAiAssisted {
		t.Errorf("lane: got %s, want AI_ASSISTED", res.Lane)
	}
	if !errors.Is(res.Refusal, claims.ErrFastLaneLimitExceeded) {
		t.Errorf("refusal: got %v, want ErrFastLaneLimitExceeded", res.Refusal)
	}
	if res.Status != claims.StatusUnderReview {
		t.Errorf("status: got %s, want UNDER_REVIEW", res.Status)
	}
}

func TestFastLane_WindowRolls(t *testing.T) {
	cfg := claims.DefaultTriageConfig()
	cfg.FastLane = claims.StandardFastLane()
	e := claims.NewEngine(cfg, allActive{}, &fakePool{reserves: usdc(1_000_000)}, newFakeRecovery())
	member := uuid.New()

	for i := 0; i < 5; i++ {
		submit(t, e, member, usdc(350), claims.CategoryPreventive)
	}

	// 31 days later the window has rolled.
	later := t0.AddDate(0, 0, 31)
	res, err := e.Submit(uuid.New(), member, usdc(350), claims.CategoryPreventive, later.AddDate(0, 0, -1), later)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Lane != claims.LaneFast {
		t.Errorf("lane after window roll: got %s, want FAST", res.Lane)
	}
}

func TestFastLane_IneligibleCategoryRoutesToAi(t *testing.T) {
	e := newEngine(&fakePool{reserves: usdc(1_000_000)})

	res := submit(t, e, uuid.New(), usdc(350), claims.CategorySurgery)
	if res.Lane != claims.LaneAiAssisted {
		t.Errorf("lane: got %s, want AI_ASSISTED", res.Lane)
	}
	if res.Refusal != nil {
		t.Errorf("category miss is not a limit refusal, got %v", res.Refusal)
	}
}

func TestFastLane_FlaggedTrackerExcluded(t *testing.T) {
	e := newEngine(&fakePool{reserves: usdc(1_000_000)})
	member := uuid.New()
	e.Tracker(member).Flagged = true

	res := submit(t, e, member, usdc(350), claims.CategoryPreventive)
	if res.Lane != claims.LaneAiAssisted {
		t.Errorf("flagged member should bypass fast-lane, got %s", res.Lane)
	}
}

// ============================================================================
// Test: shock claims
// ============================================================================

func TestShockThreshold_Clamps(t *testing.T) {
	cfg := claims.DefaultTriageConfig()

	// 5% of $100k reserves is $5k, below the $10k floor.
	if got := claims.ShockThreshold(usdc(100_000), cfg); got != usdc(10_000) {
		t.Errorf("floor: got %d, want %d", got, usdc(10_000))
	}
	// 5% of $10M is $500k, above the $100k ceiling.
	if got := claims.ShockThreshold(usdc(10_000_000), cfg); got != usdc(100_000) {
		t.Errorf("ceiling: got %d, want %d", got, usdc(100_000))
	}
	// 5% of $1M is $50k, inside the band.
	if got := claims.ShockThreshold(usdc(1_000_000), cfg); got != usdc(50_000) {
		t.Errorf("dynamic: got %d, want %d", got, usdc(50_000))
	}
}

func TestSubmit_ShockClaimRoutesToCommittee(t *testing.T) {
	e := newEngine(&fakePool{reserves: usdc(1_000_000)}) // shock line $50k

	res := submit(t, e, uuid.New(), usdc(60_000), claims.CategorySurgery)
	if res.Lane != claims.LaneCommittee {
		t.Errorf("lane: got %s, want COMMITTEE", res.Lane)
	}

	claim, _ := e.Get(res.ClaimID)
	if !claim.IsShockClaim {
		t.Error("claim should be marked shock")
	}
}

func TestRecordAiDecision_ShockClaimIgnoresVerdict(t *testing.T) {
	e := newEngine(&fakePool{reserves: usdc(1_000_000)})
	signer := uuid.New()
	e.Oracle().RegisterSigner(signer)

	res := submit(t, e, uuid.New(), usdc(60_000), claims.CategorySurgery)
	err := e.RecordAiDecision(res.ClaimID, claims.AiDecisionRecord{
		ConfidenceBps: 9_900, FraudScoreBps: 100,
		Recommendation: claims.RecommendApprove, Signer: signer, Timestamp: t0,
	}, t0)
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	claim, _ := e.Get(res.ClaimID)
	if claim.Status != claims.StatusUnderReview {
		t.Errorf("shock claim should stay committee-bound, got %s", claim.Status)
	}
}

// ============================================================================
// Test: AI-assisted thresholds
// ============================================================================

func TestRecordAiDecision_HighConfidenceAutoApproves(t *testing.T) {
	e := newEngine(&fakePool{reserves: usdc(1_000_000)})
	signer := uuid.New()
	e.Oracle().RegisterSigner(signer)

	res := submit(t, e, uuid.New(), usdc(2_000), claims.CategorySurgery)
	err := e.RecordAiDecision(res.ClaimID, claims.AiDecisionRecord{
		ConfidenceBps: 9_500, FraudScoreBps: 3_000,
		Recommendation: claims.RecommendApprove, Signer: signer, Timestamp: t0,
	}, t0)
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	claim, _ := e.Get(res.ClaimID)
	if claim.Status != claims.StatusApproved {
		t.Errorf("got %s, want APPROVED", claim.Status)
	}
	if claim.ApprovedAmount != usdc(2_000) {
		t.Errorf("approved amount: got %d, want %d", claim.ApprovedAmount, usdc(2_000))
	}
}

func TestRecordAiDecision_LowConfidenceForcesCommittee(t *testing.T) {
	e := newEngine(&fakePool{reserves: usdc(1_000_000)})
	signer := uuid.New()
	e.Oracle().RegisterSigner(signer)

	res := submit(t, e, uuid.New(), usdc(2_000), claims.CategorySurgery)
	err := e.RecordAiDecision(res.ClaimID, claims.AiDecisionRecord{
		ConfidenceBps: 6_000, FraudScoreBps: 500,
		Recommendation: claims.RecommendReview, Signer: signer, Timestamp: t0,
	}, t0)
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	claim, _ := e.Get(res.ClaimID)
	if claim.Status != claims.StatusPendingAttestation {
		t.Errorf("got %s, want PENDING_ATTESTATION", claim.Status)
	}
}

func TestRecordAiDecision_HighFraudScoreBlocksAutoApproval(t *testing.T) {
	e := newEngine(&fakePool{reserves: usdc(1_000_000)})
	signer := uuid.New()
	e.Oracle().RegisterSigner(signer)

	res := submit(t, e, uuid.New(), usdc(2_000), claims.CategorySurgery)
	e.RecordAiDecision(res.ClaimID, claims.AiDecisionRecord{
		ConfidenceBps: 9_800, FraudScoreBps: 3_100,
		Recommendation: claims.RecommendApprove, Signer: signer, Timestamp: t0,
	}, t0)

	claim, _ := e.Get(res.ClaimID)
	if claim.Status != claims.StatusPendingAttestation {
		t.Errorf("got %s, want PENDING_ATTESTATION", claim.Status)
	}
}

func TestRecordAiDecision_DuplicateRejected(t *testing.T) {
	e := newEngine(&fakePool{reserves: usdc(1_000_000)})
	signer := uuid.New()
	e.Oracle().RegisterSigner(signer)

	res := submit(t, e, uuid.New(), usdc(2_000), claims.CategorySurgery)
	record := claims.AiDecisionRecord{
		ConfidenceBps: 6_000, Recommendation: claims.RecommendReview, Signer: signer, Timestamp: t0,
	}
	if err := e.RecordAiDecision(res.ClaimID, record, t0); err != nil {
		t.Fatalf("first record: %v", err)
	}
	if err := e.RecordAiDecision(res.ClaimID, record, t0); !errors.Is(err, claims.ErrDecisionAlreadyRecorded) {
		t.Errorf("got %v, want ErrDecisionAlreadyRecorded", err)
	}
}

func TestRecordAiDecision_UnregisteredSignerRejected(t *testing.T) {
	e := newEngine(&fakePool{reserves: usdc(1_000_000)})

	res := submit(t, e, uuid.New(), usdc(2_000), claims.CategorySurgery)
	err := e.RecordAiDecision(res.ClaimID, claims.AiDecisionRecord{
		ConfidenceBps: 9_900, Signer: uuid.New(), Timestamp: t0,
	}, t0)
	if !errors.Is(err, claims.ErrUnauthorized) {
		t.Errorf("got %v, want ErrUnauthorized", err)
	}
}

// ============================================================================
// Test: attestation and approval
// ============================================================================

func TestApprove_RequiresTwoDistinctAttestations(t *testing.T) {
	e := newEngine(&fakePool{reserves: usdc(1_000_000)})
	a1, a2 := registerCommittee(t, e)

	res := submit(t, e, uuid.New(), usdc(60_000), claims.CategorySurgery)

	if err := e.Attest(res.ClaimID, a1, t0); err != nil {
		t.Fatalf("attest 1: %v", err)
	}
	if err := e.Approve(res.ClaimID, usdc(60_000), t0); !errors.Is(err, claims.ErrInsufficientAttestations) {
		t.Errorf("got %v, want ErrInsufficientAttestations", err)
	}

	if err := e.Attest(res.ClaimID, a2, t0); err != nil {
		t.Fatalf("attest 2: %v", err)
	}
	if err := e.Approve(res.ClaimID, usdc(60_000), t0); err != nil {
		t.Errorf("approve after 2nd attestation: %v", err)
	}
}

func TestAttest_DuplicateAttestorRejected(t *testing.T) {
	e := newEngine(&fakePool{reserves: usdc(1_000_000)})
	a1, _ := registerCommittee(t, e)

	res := submit(t, e, uuid.New(), usdc(60_000), claims.CategorySurgery)
	if err := e.Attest(res.ClaimID, a1, t0); err != nil {
		t.Fatalf("attest: %v", err)
	}
	if err := e.Attest(res.ClaimID, a1, t0); !errors.Is(err, claims.ErrAlreadyAttested) {
		t.Errorf("got %v, want ErrAlreadyAttested", err)
	}
}

func TestAttest_UnregisteredRejected(t *testing.T) {
	e := newEngine(&fakePool{reserves: usdc(1_000_000)})
	res := submit(t, e, uuid.New(), usdc(60_000), claims.CategorySurgery)
	if err := e.Attest(res.ClaimID, uuid.New(), t0); !errors.Is(err, claims.ErrAttestorNotRegistered) {
		t.Errorf("got %v, want ErrAttestorNotRegistered", err)
	}
}

func TestAttest_ExpiredWindow(t *testing.T) {
	e := newEngine(&fakePool{reserves: usdc(1_000_000)})
	a1, a2 := registerCommittee(t, e)

	res := submit(t, e, uuid.New(), usdc(60_000), claims.CategorySurgery)
	if err := e.Attest(res.ClaimID, a1, t0); err != nil {
		t.Fatalf("attest: %v", err)
	}

	late := t0.Add(49 * time.Hour)
	if err := e.Attest(res.ClaimID, a2, late); !errors.Is(err, claims.ErrAttestationExpired) {
		t.Errorf("got %v, want ErrAttestationExpired", err)
	}

	// The expire operation resets the claim for a fresh committee pass.
	if err := e.ExpireAttestation(res.ClaimID, late); err != nil {
		t.Fatalf("expire: %v", err)
	}
	claim, _ := e.Get(res.ClaimID)
	if claim.Status != claims.StatusUnderReview {
		t.Errorf("got %s, want UNDER_REVIEW", claim.Status)
	}
	if claim.AttestationCount != 0 {
		t.Errorf("attestations should reset, got %d", claim.AttestationCount)
	}
}

func TestApprove_PartialAmount(t *testing.T) {
	e := newEngine(&fakePool{reserves: usdc(1_000_000)})
	a1, a2 := registerCommittee(t, e)

	res := submit(t, e, uuid.New(), usdc(60_000), claims.CategorySurgery)
	e.Attest(res.ClaimID, a1, t0)
	e.Attest(res.ClaimID, a2, t0)

	if err := e.Approve(res.ClaimID, usdc(45_000), t0); err != nil {
		t.Fatalf("approve: %v", err)
	}
	claim, _ := e.Get(res.ClaimID)
	if claim.Status != claims.StatusPartiallyApproved {
		t.Errorf("got %s, want PARTIALLY_APPROVED", claim.Status)
	}
}

func TestApprove_AmountAboveRequestedRejected(t *testing.T) {
	e := newEngine(&fakePool{reserves: usdc(1_000_000)})
	a1, a2 := registerCommittee(t, e)

	res := submit(t, e, uuid.New(), usdc(60_000), claims.CategorySurgery)
	e.Attest(res.ClaimID, a1, t0)
	e.Attest(res.ClaimID, a2, t0)

	if err := e.Approve(res.ClaimID, usdc(70_000), t0); !errors.Is(err, claims.ErrInvalidApprovedAmount) {
		t.Errorf("got %v, want ErrInvalidApprovedAmount", err)
	}
}

// ============================================================================
// Test: denial, appeal, cancellation
// ============================================================================

func denyClaim(t *testing.T, e *claims.Engine, claimID uuid.UUID, a1, a2 uuid.UUID) {
	t.Helper()
	if err := e.Attest(claimID, a1, t0); err != nil {
		t.Fatalf("attest: %v", err)
	}
	if err := e.Attest(claimID, a2, t0); err != nil {
		t.Fatalf("attest: %v", err)
	}
	if err := e.Deny(claimID, "not medically necessary", t0); err != nil {
		t.Fatalf("deny: %v", err)
	}
}

func TestAppeal_OneCycleAllowed(t *testing.T) {
	e := newEngine(&fakePool{reserves: usdc(1_000_000)})
	a1, a2 := registerCommittee(t, e)

	res := submit(t, e, uuid.New(), usdc(60_000), claims.CategorySurgery)
	denyClaim(t, e, res.ClaimID, a1, a2)

	if err := e.Appeal(res.ClaimID, t0); err != nil {
		t.Fatalf("first appeal: %v", err)
	}
	claim, _ := e.Get(res.ClaimID)
	if claim.Status != claims.StatusAppealed {
		t.Errorf("got %s, want APPEALED", claim.Status)
	}
	if claim.AttestationCount != 0 {
		t.Error("appeal should reset attestations")
	}

	// Re-review and deny again; a second appeal is out of budget.
	denyClaim(t, e, res.ClaimID, a1, a2)
	if err := e.Appeal(res.ClaimID, t0); !errors.Is(err, claims.ErrAppealNotAllowed) {
		t.Errorf("got %v, want ErrAppealNotAllowed", err)
	}

	// Appeals spent: the denial is terminal and closable.
	if err := e.Close(res.ClaimID, t0); err != nil {
		t.Errorf("close after final denial: %v", err)
	}
}

func TestAppeal_OnlyFromDenied(t *testing.T) {
	e := newEngine(&fakePool{reserves: usdc(1_000_000)})
	res := submit(t, e, uuid.New(), usdc(2_000), claims.CategorySurgery)
	if err := e.Appeal(res.ClaimID, t0); !errors.Is(err, claims.ErrAppealNotAllowed) {
		t.Errorf("got %v, want ErrAppealNotAllowed", err)
	}
}

func TestCancel_MemberOnlyPreApproval(t *testing.T) {
	e := newEngine(&fakePool{reserves: usdc(1_000_000)})
	member := uuid.New()
	res := submit(t, e, member, usdc(2_000), claims.CategorySurgery)

	if err := e.Cancel(res.ClaimID, uuid.New(), t0); !errors.Is(err, claims.ErrUnauthorized) {
		t.Errorf("stranger cancel: got %v, want ErrUnauthorized", err)
	}
	if err := e.Cancel(res.ClaimID, member, t0); err != nil {
		t.Errorf("member cancel: %v", err)
	}

	claim, _ := e.Get(res.ClaimID)
	if claim.Status != claims.StatusCancelled {
		t.Errorf("got %s, want CANCELLED", claim.Status)
	}
}

func TestCancel_AfterApprovalRejected(t *testing.T) {
	e := newEngine(&fakePool{reserves: usdc(1_000_000)})
	member := uuid.New()
	res := submit(t, e, member, usdc(350), claims.CategoryPreventive) // fast-lane approves

	if err := e.Cancel(res.ClaimID, member, t0); !errors.Is(err, claims.ErrCannotCancel) {
		t.Errorf("got %v, want ErrCannotCancel", err)
	}
}

// ============================================================================
// Test: payment
// ============================================================================

func TestPay_FullPaymentWithRecovery(t *testing.T) {
	pool := &fakePool{reserves: usdc(10_000_000)}
	recovery := newFakeRecovery()
	e := claims.NewEngine(claims.DefaultTriageConfig(), allActive{}, pool, recovery)
	a1, a2 := registerCommittee(t, e)
	member := uuid.New()
	recovery.ytd[member] = usdc(100_000) // already at the attachment

	res := submit(t, e, member, usdc(75_000), claims.CategorySurgery)
	e.Attest(res.ClaimID, a1, t0)
	e.Attest(res.ClaimID, a2, t0)
	if err := e.Approve(res.ClaimID, usdc(75_000), t0); err != nil {
		t.Fatalf("approve: %v", err)
	}

	result, err := e.Pay(res.ClaimID, 2026, 3, t0)
	if err != nil {
		t.Fatalf("pay: %v", err)
	}
	if result.Paid != usdc(75_000) {
		t.Errorf("paid: got %d, want %d", result.Paid, usdc(75_000))
	}
	// Entire claim sits above the attachment: 20/80 split.
	if result.ProtocolShare != usdc(15_000) {
		t.Errorf("protocol: got %d, want %d", result.ProtocolShare, usdc(15_000))
	}
	if result.ReinsurerShare != usdc(60_000) {
		t.Errorf("reinsurer: got %d, want %d", result.ReinsurerShare, usdc(60_000))
	}

	claim, _ := e.Get(res.ClaimID)
	if claim.Status != claims.StatusPaid {
		t.Errorf("got %s, want PAID", claim.Status)
	}
	if err := e.Close(res.ClaimID, t0); err != nil {
		t.Errorf("close: %v", err)
	}
}

func TestPay_RepeatRejected(t *testing.T) {
	e := newEngine(&fakePool{reserves: usdc(1_000_000)})
	member := uuid.New()
	res := submit(t, e, member, usdc(350), claims.CategoryPreventive)

	if _, err := e.Pay(res.ClaimID, 2026, 3, t0); err != nil {
		t.Fatalf("first pay: %v", err)
	}
	if _, err := e.Pay(res.ClaimID, 2026, 3, t0); !errors.Is(err, claims.ErrAlreadyPaid) {
		t.Errorf("got %v, want ErrAlreadyPaid", err)
	}
}

func TestPay_PartialOnExhaustionEscalates(t *testing.T) {
	pool := &fakePool{reserves: usdc(40_000)}
	cfg := claims.DefaultTriageConfig()
	cfg.ShockBootstrapThreshold = usdc(100_000) // keep the claim out of shock routing
	e := claims.NewEngine(cfg, allActive{}, pool, newFakeRecovery())
	a1, a2 := registerCommittee(t, e)

	res := submit(t, e, uuid.New(), usdc(60_000), claims.CategorySurgery)
	e.Attest(res.ClaimID, a1, t0)
	e.Attest(res.ClaimID, a2, t0)
	if err := e.Approve(res.ClaimID, usdc(60_000), t0); err != nil {
		t.Fatalf("approve: %v", err)
	}

	result, err := e.Pay(res.ClaimID, 2026, 3, t0)
	if err == nil {
		t.Fatal("expected an exhaustion signal")
	}
	if result.Paid != usdc(40_000) {
		t.Errorf("paid: got %d, want %d", result.Paid, usdc(40_000))
	}
	if result.Outstanding != usdc(20_000) {
		t.Errorf("outstanding: got %d, want %d", result.Outstanding, usdc(20_000))
	}
	if !result.Escalate {
		t.Error("partial payment should flag escalation")
	}

	claim, _ := e.Get(res.ClaimID)
	if claim.Status != claims.StatusApproved {
		t.Errorf("claim should stay open for the remainder, got %s", claim.Status)
	}

	// Reserves refilled: the remainder pays out and the claim completes.
	pool.reserves = usdc(25_000)
	result, err = e.Pay(res.ClaimID, 2026, 3, t0)
	if err != nil {
		t.Fatalf("second pay: %v", err)
	}
	if result.Paid != usdc(20_000) {
		t.Errorf("second paid: got %d, want %d", result.Paid, usdc(20_000))
	}
	claim, _ = e.Get(res.ClaimID)
	if claim.Status != claims.StatusPaid {
		t.Errorf("got %s, want PAID", claim.Status)
	}
}

// ============================================================================
// Test: snapshot round-trip
// ============================================================================

func TestSnapshotRestore_RoundTrip(t *testing.T) {
	e := newEngine(&fakePool{reserves: usdc(1_000_000)})
	member := uuid.New()
	res := submit(t, e, member, usdc(350), claims.CategoryPreventive)

	restored := newEngine(&fakePool{reserves: usdc(1_000_000)})
	restored.Restore(e.SnapshotClaims(), e.SnapshotTrackers())

	claim, err := restored.Get(res.ClaimID)
	if err != nil {
		t.Fatalf("restored claim missing: %v", err)
	}
	if claim.Status != claims.StatusApproved {
		t.Errorf("got %s, want APPROVED", claim.Status)
	}
	if restored.Tracker(member).ClaimsThisPeriod != 1 {
		t.Errorf("tracker usage should survive restore")
	}
}
