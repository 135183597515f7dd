package reserve

import (
	"errors"
	"fmt"
	"time"

	"CareLedger/internal/bpsmath"
)

var (
	ErrZeroAmount        = errors.New("zero amount")
	ErrInvalidTier       = errors.New("invalid reserve tier")
	ErrInvalidTargetDays = errors.New("invalid target days")
	ErrInvalidDevFactor  = errors.New("invalid development factor")
	ErrReservesExhausted = errors.New("reserves exhausted")
	ErrUnauthorized      = errors.New("unauthorized")
)

// Tier identifies one of the three capital tiers.
type Tier int

const (
	Tier0 Tier = iota // liquidity buffer
	Tier1             // operating reserve + IBNR
	Tier2             // contingent capital
)

func (t Tier) String() string {
	switch t {
	case Tier0:
		return "TIER0"
	case Tier1:
		return "TIER1"
	case Tier2:
		return "TIER2"
	default:
		return "UNKNOWN"
	}
}

// State is the full reserve position. All balances are micro-USDC and never
// go negative.
type State struct {
	Tier0Balance               int64
	Tier1Balance               int64
	Tier2Balance               int64
	IbnrEstimate               int64
	RunoffBalance              int64
	TotalContributionsReceived int64
	TotalClaimsPaid            int64
	AvgDailyClaims             int64
	LastWaterfallAt            time.Time
}

// Targets holds the governance-owned sizing parameters. Tier targets are
// day-multiples of average daily claims.
type Targets struct {
	Tier0Days        int64
	Tier1Days        int64
	Tier2Days        int64
	ReserveMarginBps int64
	AdminLoadBps     int64
}

// DefaultTargets: 30/60/180 day tiers, 2% reserve margin, 8% admin load
// (loading plus the 90% target loss ratio sums to 100% of contribution).
func DefaultTargets() Targets {
	return Targets{
		Tier0Days:        30,
		Tier1Days:        60,
		Tier2Days:        180,
		ReserveMarginBps: 200,
		AdminLoadBps:     800,
	}
}

// IbnrParameters drive the incurred-but-not-reported liability estimate.
type IbnrParameters struct {
	AvgDailyClaims30d    int64
	AvgDailyClaims90d    int64
	ReportingLagDays     int64
	DevelopmentFactorBps int64
}

// DefaultIbnrParameters: 21-day observed reporting lag, 1.15x development.
func DefaultIbnrParameters() IbnrParameters {
	return IbnrParameters{
		ReportingLagDays:     21,
		DevelopmentFactorBps: 11_500,
	}
}

// Routing is the split applied to one inbound contribution.
type Routing struct {
	AdminLoad int64
	ToTier0   int64
	ToTier1   int64
	ToTier2   int64
}

// Ledger manages the three-tier reserve state.
type Ledger struct {
	state   State
	targets Targets
}

func NewLedger(targets Targets) *Ledger {
	return &Ledger{targets: targets}
}

// State returns a copy of the current reserve position.
func (l *Ledger) State() State {
	return l.state
}

// Targets returns the active sizing parameters.
func (l *Ledger) Targets() Targets {
	return l.targets
}

// TotalReserves is the CAR-eligible capital: the three tiers, excluding the
// run-off balance held for terminating members.
func (l *Ledger) TotalReserves() int64 {
	return l.state.Tier0Balance + l.state.Tier1Balance + l.state.Tier2Balance
}

func (l *Ledger) tier0Target() int64 {
	target, err := bpsmath.MulDiv(l.state.AvgDailyClaims, l.targets.Tier0Days, 1)
	if err != nil {
		return 0
	}
	return target
}

func (l *Ledger) tier1Target() int64 {
	target, err := bpsmath.MulDiv(l.state.AvgDailyClaims, l.targets.Tier1Days, 1)
	if err != nil {
		return 0
	}
	return bpsmath.SatAdd(target, l.state.IbnrEstimate)
}

// RouteContribution splits one contribution across admin load and the tiers:
// admin load is siphoned first, the reserve margin goes straight to Tier1,
// the remainder fills Tier0 to its day-target, spills to Tier1 to its
// target, and anything left lands in Tier2. The split always conserves the
// full amount.
func (l *Ledger) RouteContribution(amount int64) (Routing, error) {
	if amount <= 0 {
		return Routing{}, ErrZeroAmount
	}

	adminLoad, err := bpsmath.MulBps(amount, l.targets.AdminLoadBps)
	if err != nil {
		return Routing{}, err
	}
	margin, err := bpsmath.MulBps(amount, l.targets.ReserveMarginBps)
	if err != nil {
		return Routing{}, err
	}

	remaining := amount - adminLoad - margin

	toTier0 := bpsmath.Min(remaining, bpsmath.SatSub(l.tier0Target(), l.state.Tier0Balance))
	remaining -= toTier0

	toTier1 := bpsmath.Min(remaining, bpsmath.SatSub(l.tier1Target(), l.state.Tier1Balance+margin))
	remaining -= toTier1

	toTier2 := remaining

	routing := Routing{
		AdminLoad: adminLoad,
		ToTier0:   toTier0,
		ToTier1:   margin + toTier1,
		ToTier2:   toTier2,
	}

	if routing.AdminLoad+routing.ToTier0+routing.ToTier1+routing.ToTier2 != amount {
		return Routing{}, fmt.Errorf("routing does not conserve amount %d: %+v", amount, routing)
	}

	l.state.Tier0Balance += routing.ToTier0
	l.state.Tier1Balance += routing.ToTier1
	l.state.Tier2Balance += routing.ToTier2
	l.state.TotalContributionsReceived = bpsmath.SatAdd(l.state.TotalContributionsReceived, amount)

	return routing, nil
}

// DepositToTier credits one tier directly, outside the routing split.
func (l *Ledger) DepositToTier(tier Tier, amount int64) error {
	if amount <= 0 {
		return ErrZeroAmount
	}
	switch tier {
	case Tier0:
		l.state.Tier0Balance += amount
	case Tier1:
		l.state.Tier1Balance += amount
	case Tier2:
		l.state.Tier2Balance += amount
	default:
		return fmt.Errorf("%w: %d", ErrInvalidTier, tier)
	}
	return nil
}

// RefillTier0 tops up the liquidity buffer.
func (l *Ledger) RefillTier0(amount int64) error {
	return l.DepositToTier(Tier0, amount)
}

// PayoutWaterfall drains Tier0, then Tier1, then Tier2, never skipping a
// tier with a positive balance. If all three tiers cannot cover the amount
// the partial payment stands and ErrReservesExhausted is returned alongside
// it; escalating to external collateral is the caller's decision.
func (l *Ledger) PayoutWaterfall(amount int64, now time.Time) (int64, error) {
	if amount <= 0 {
		return 0, ErrZeroAmount
	}

	remaining := amount

	take := bpsmath.Min(remaining, l.state.Tier0Balance)
	l.state.Tier0Balance -= take
	remaining -= take

	take = bpsmath.Min(remaining, l.state.Tier1Balance)
	l.state.Tier1Balance -= take
	remaining -= take

	take = bpsmath.Min(remaining, l.state.Tier2Balance)
	l.state.Tier2Balance -= take
	remaining -= take

	// A zero payout is a rejected event, not a waterfall run: leave the
	// paid totals and timestamp untouched.
	paid := amount - remaining
	if paid > 0 {
		l.state.TotalClaimsPaid = bpsmath.SatAdd(l.state.TotalClaimsPaid, paid)
		l.state.LastWaterfallAt = now
	}

	if remaining > 0 {
		return paid, ErrReservesExhausted
	}
	return paid, nil
}

// ComputeIbnr estimates the incurred-but-not-reported liability:
// floor(avgDailyClaims x reportingLagDays x developmentFactor / 10000).
// Informational only; the estimate is not withdrawable.
func ComputeIbnr(params IbnrParameters) (int64, error) {
	if params.DevelopmentFactorBps < 10_000 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidDevFactor, params.DevelopmentFactorBps)
	}
	exposure, err := bpsmath.MulDiv(params.AvgDailyClaims30d, params.ReportingLagDays, 1)
	if err != nil {
		return 0, err
	}
	return bpsmath.MulBps(exposure, params.DevelopmentFactorBps)
}

// UpdateIbnr recomputes and stores the IBNR estimate from fresh parameters.
func (l *Ledger) UpdateIbnr(params IbnrParameters) (int64, error) {
	estimate, err := ComputeIbnr(params)
	if err != nil {
		return 0, err
	}
	l.state.IbnrEstimate = estimate
	l.state.AvgDailyClaims = params.AvgDailyClaims30d
	return estimate, nil
}

// UpdateAvgDailyClaims refreshes the routing targets' claims basis.
func (l *Ledger) UpdateAvgDailyClaims(avgDaily int64) {
	if avgDaily < 0 {
		avgDaily = 0
	}
	l.state.AvgDailyClaims = avgDaily
}

// SetTargets replaces the sizing parameters. Governance-only; any zero day
// target is rejected.
func (l *Ledger) SetTargets(t Targets, governance bool) error {
	if !governance {
		return ErrUnauthorized
	}
	if t.Tier0Days <= 0 || t.Tier1Days <= 0 || t.Tier2Days <= 0 {
		return ErrInvalidTargetDays
	}
	if t.AdminLoadBps < 0 || t.AdminLoadBps >= bpsmath.BpsDenominator {
		return fmt.Errorf("admin load out of range: %d", t.AdminLoadBps)
	}
	if t.ReserveMarginBps < 0 || t.ReserveMarginBps >= bpsmath.BpsDenominator {
		return fmt.Errorf("reserve margin out of range: %d", t.ReserveMarginBps)
	}
	if t.AdminLoadBps+t.ReserveMarginBps >= bpsmath.BpsDenominator {
		return fmt.Errorf("combined loading %d consumes the whole contribution", t.AdminLoadBps+t.ReserveMarginBps)
	}
	l.targets = t
	return nil
}

// AccrueRunoff moves capital into the run-off balance held for members in
// termination run-out. Run-off funds do not count toward CAR reserves.
func (l *Ledger) AccrueRunoff(amount int64) error {
	if amount <= 0 {
		return ErrZeroAmount
	}
	l.state.RunoffBalance += amount
	return nil
}

// ReleaseRunoff returns run-off capital to Tier2 once the run-out window
// closes.
func (l *Ledger) ReleaseRunoff(amount int64) error {
	if amount <= 0 {
		return ErrZeroAmount
	}
	released, err := bpsmath.CheckedSub(l.state.RunoffBalance, amount)
	if err != nil {
		return err
	}
	l.state.RunoffBalance = released
	l.state.Tier2Balance += amount
	return nil
}

// RestoreState reinstates ledger state from a snapshot record.
func (l *Ledger) RestoreState(s State, t Targets) {
	l.state = s
	l.targets = t
}

// CheckInvariants verifies the non-negativity invariant. A violation is a
// core bug, not a recoverable condition.
func (l *Ledger) CheckInvariants() error {
	if l.state.Tier0Balance < 0 || l.state.Tier1Balance < 0 || l.state.Tier2Balance < 0 {
		return fmt.Errorf("negative tier balance: t0=%d t1=%d t2=%d",
			l.state.Tier0Balance, l.state.Tier1Balance, l.state.Tier2Balance)
	}
	if l.state.RunoffBalance < 0 {
		return fmt.Errorf("negative runoff balance: %d", l.state.RunoffBalance)
	}
	return nil
}
