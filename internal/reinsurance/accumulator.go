package reinsurance

import (
	"github.com/google/uuid"

	"CareLedger/internal/bpsmath"
)

// MemberClaimAccumulator tracks one member's year-to-date claims for the
// specific stop-loss layer. Resets at the policy-year boundary.
type MemberClaimAccumulator struct {
	MemberID      uuid.UUID
	PolicyYear    int
	YtdClaimsUsdc int64
	ClaimsCount   int64
}

// MonthlyAggregate tracks one month's pool-wide claims against expectation.
type MonthlyAggregate struct {
	PolicyYear         int
	Month              int
	ClaimsUsdc         int64
	ExpectedClaimsUsdc int64
}

// lossRatioFlagBps marks a month for actuarial review when claims run 20%
// over expectation.
const lossRatioFlagBps int64 = 12_000

// LossRatioBps is the month's claims-to-expected ratio.
func (m MonthlyAggregate) LossRatioBps() int64 {
	return bpsmath.RatioBps(m.ClaimsUsdc, m.ExpectedClaimsUsdc)
}

// LossRatioFlagged reports whether the month breached the review threshold.
func (m MonthlyAggregate) LossRatioFlagged() bool {
	return m.ExpectedClaimsUsdc > 0 && m.LossRatioBps() >= lossRatioFlagBps
}

// RecoveryStatus tracks a filed reinsurance recovery through settlement.
type RecoveryStatus int

const (
	RecoveryPending RecoveryStatus = iota
	RecoverySubmitted
	RecoveryReceived
)

func (s RecoveryStatus) String() string {
	switch s {
	case RecoveryPending:
		return "PENDING"
	case RecoverySubmitted:
		return "SUBMITTED"
	case RecoveryReceived:
		return "RECEIVED"
	default:
		return "UNKNOWN"
	}
}

// Accumulators maintains per-member ytd totals and monthly pool aggregates.
type Accumulators struct {
	members map[uuid.UUID]*MemberClaimAccumulator
	months  map[int]map[int]*MonthlyAggregate // policyYear -> month
	poolYtd map[int]int64                     // policyYear -> pool ytd claims
}

func NewAccumulators() *Accumulators {
	return &Accumulators{
		members: make(map[uuid.UUID]*MemberClaimAccumulator),
		months:  make(map[int]map[int]*MonthlyAggregate),
		poolYtd: make(map[int]int64),
	}
}

// MemberYtd returns a member's ytd claims for a policy year. A stale
// accumulator from a prior year reads as zero.
func (a *Accumulators) MemberYtd(member uuid.UUID, policyYear int) int64 {
	acc, ok := a.members[member]
	if !ok || acc.PolicyYear != policyYear {
		return 0
	}
	return acc.YtdClaimsUsdc
}

// Accumulate records one paid claim against the member and the pool. A
// policy-year rollover resets the member's accumulator before adding.
func (a *Accumulators) Accumulate(member uuid.UUID, amount int64, policyYear, month int, expectedMonthlyClaims int64) {
	acc, ok := a.members[member]
	if !ok || acc.PolicyYear != policyYear {
		acc = &MemberClaimAccumulator{MemberID: member, PolicyYear: policyYear}
		a.members[member] = acc
	}
	acc.YtdClaimsUsdc = bpsmath.SatAdd(acc.YtdClaimsUsdc, amount)
	acc.ClaimsCount++

	a.poolYtd[policyYear] = bpsmath.SatAdd(a.poolYtd[policyYear], amount)

	byMonth, ok := a.months[policyYear]
	if !ok {
		byMonth = make(map[int]*MonthlyAggregate)
		a.months[policyYear] = byMonth
	}
	agg, ok := byMonth[month]
	if !ok {
		agg = &MonthlyAggregate{PolicyYear: policyYear, Month: month, ExpectedClaimsUsdc: expectedMonthlyClaims}
		byMonth[month] = agg
	}
	agg.ClaimsUsdc = bpsmath.SatAdd(agg.ClaimsUsdc, amount)
}

// PoolYtd returns pool-wide ytd claims for a policy year.
func (a *Accumulators) PoolYtd(policyYear int) int64 {
	return a.poolYtd[policyYear]
}

// Month returns the aggregate record for one month, if present.
func (a *Accumulators) Month(policyYear, month int) (MonthlyAggregate, bool) {
	byMonth, ok := a.months[policyYear]
	if !ok {
		return MonthlyAggregate{}, false
	}
	agg, ok := byMonth[month]
	if !ok {
		return MonthlyAggregate{}, false
	}
	return *agg, true
}

// SnapshotMembers returns a copy of all member accumulators for persistence.
func (a *Accumulators) SnapshotMembers() []MemberClaimAccumulator {
	out := make([]MemberClaimAccumulator, 0, len(a.members))
	for _, acc := range a.members {
		out = append(out, *acc)
	}
	return out
}

// RestoreMembers reinstates member accumulators from a snapshot. The pool
// aggregate is rebuilt from scratch alongside the member map; restoring over
// a non-fresh instance must not double-count prior totals.
func (a *Accumulators) RestoreMembers(accs []MemberClaimAccumulator) {
	a.members = make(map[uuid.UUID]*MemberClaimAccumulator, len(accs))
	a.poolYtd = make(map[int]int64)
	for i := range accs {
		acc := accs[i]
		a.members[acc.MemberID] = &acc
		a.poolYtd[acc.PolicyYear] = bpsmath.SatAdd(a.poolYtd[acc.PolicyYear], acc.YtdClaimsUsdc)
	}
}

// SnapshotMonths returns a copy of all monthly aggregates for persistence.
func (a *Accumulators) SnapshotMonths() []MonthlyAggregate {
	var out []MonthlyAggregate
	for _, byMonth := range a.months {
		for _, agg := range byMonth {
			out = append(out, *agg)
		}
	}
	return out
}

// RestoreMonths reinstates monthly aggregates from a snapshot.
func (a *Accumulators) RestoreMonths(aggs []MonthlyAggregate) {
	a.months = make(map[int]map[int]*MonthlyAggregate)
	for i := range aggs {
		agg := aggs[i]
		byMonth, ok := a.months[agg.PolicyYear]
		if !ok {
			byMonth = make(map[int]*MonthlyAggregate)
			a.months[agg.PolicyYear] = byMonth
		}
		byMonth[agg.Month] = &agg
	}
}
