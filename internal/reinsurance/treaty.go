//
// Pure stop-loss calculators over ledger-reported totals. Nothing here moves
// funds; callers apply the computed protocol/reinsurer split themselves.
package reinsurance

import (
	"errors"
	"fmt"
	"time"

	"CareLedger/internal/bpsmath"
)

var (
	ErrInvalidAggregateTrigger = errors.New("invalid aggregate trigger")
	ErrInvalidLayerOrdering    = errors.New("invalid layer ordering")
)

// Treaty is one policy period's excess-of-loss program: a specific
// (per-member) layer plus aggregate and catastrophic pool-wide layers
// expressed as claims ratios against expected annual claims.
type Treaty struct {
	SpecificAttachmentUsdc int64
	SpecificCoinsuranceBps int64 // protocol share of the excess

	AggregateTriggerBps    int64
	AggregateCeilingBps    int64
	CatastrophicTriggerBps int64
	CatastrophicCeilingBps int64

	PolicyPeriodStart    time.Time
	PolicyPeriodEnd      time.Time
	ExpectedAnnualClaims int64
}

// Validate enforces layer ordering at treaty creation. The aggregate layer
// must attach above 100% of expected claims, the catastrophic layer above
// the aggregate layer, with a real band width each.
func (t Treaty) Validate() error {
	if t.AggregateTriggerBps <= bpsmath.BpsDenominator {
		return fmt.Errorf("%w: %d must be > %d", ErrInvalidAggregateTrigger,
			t.AggregateTriggerBps, bpsmath.BpsDenominator)
	}
	if t.AggregateCeilingBps <= t.AggregateTriggerBps {
		return fmt.Errorf("%w: aggregate ceiling %d must be > trigger %d",
			ErrInvalidLayerOrdering, t.AggregateCeilingBps, t.AggregateTriggerBps)
	}
	if t.CatastrophicTriggerBps < t.AggregateCeilingBps {
		return fmt.Errorf("%w: catastrophic trigger %d must be >= aggregate ceiling %d",
			ErrInvalidLayerOrdering, t.CatastrophicTriggerBps, t.AggregateCeilingBps)
	}
	if t.CatastrophicTriggerBps <= t.AggregateTriggerBps {
		return fmt.Errorf("%w: catastrophic trigger %d must be > aggregate trigger %d",
			ErrInvalidLayerOrdering, t.CatastrophicTriggerBps, t.AggregateTriggerBps)
	}
	if t.CatastrophicCeilingBps <= t.CatastrophicTriggerBps {
		return fmt.Errorf("%w: catastrophic ceiling %d must be > trigger %d",
			ErrInvalidLayerOrdering, t.CatastrophicCeilingBps, t.CatastrophicTriggerBps)
	}
	if t.SpecificCoinsuranceBps < 0 || t.SpecificCoinsuranceBps > bpsmath.BpsDenominator {
		return fmt.Errorf("specific coinsurance out of range: %d", t.SpecificCoinsuranceBps)
	}
	if t.ExpectedAnnualClaims < 0 {
		return fmt.Errorf("expected annual claims must be >= 0, got %d", t.ExpectedAnnualClaims)
	}
	return nil
}

// Split is a protocol/reinsurer division of an excess amount.
type Split struct {
	ProtocolShare  int64
	ReinsurerShare int64
}

// SpecificRecovery splits a member's year-to-date claims against the
// specific attachment: everything at or below the attachment is retained in
// full, and only the excess splits per the coinsurance percentage.
func (t Treaty) SpecificRecovery(ytdClaimsUsdc int64) (Split, error) {
	excess := bpsmath.SatSub(ytdClaimsUsdc, t.SpecificAttachmentUsdc)
	if excess == 0 {
		return Split{}, nil
	}
	protocol, err := bpsmath.MulBps(excess, t.SpecificCoinsuranceBps)
	if err != nil {
		return Split{}, err
	}
	return Split{ProtocolShare: protocol, ReinsurerShare: excess - protocol}, nil
}

// IncrementalSpecificRecovery returns the reinsurer share attributable to one
// claim given the member's ytd total before it: the difference between the
// recovery at (ytdBefore + claim) and at ytdBefore.
func (t Treaty) IncrementalSpecificRecovery(ytdBefore, claimAmount int64) (Split, error) {
	after, err := t.SpecificRecovery(bpsmath.SatAdd(ytdBefore, claimAmount))
	if err != nil {
		return Split{}, err
	}
	before, err := t.SpecificRecovery(ytdBefore)
	if err != nil {
		return Split{}, err
	}
	return Split{
		ProtocolShare:  after.ProtocolShare - before.ProtocolShare,
		ReinsurerShare: after.ReinsurerShare - before.ReinsurerShare,
	}, nil
}

// ClaimsRatioBps expresses pool-wide ytd claims against expected annual
// claims in bps.
func (t Treaty) ClaimsRatioBps(ytdClaimsUsdc int64) int64 {
	return bpsmath.RatioBps(ytdClaimsUsdc, t.ExpectedAnnualClaims)
}

// AggregateRecovery computes the total reinsurer recovery for a pool-wide
// ytd claims figure: the crossed portion of the aggregate band plus the
// crossed portion of the catastrophic band, each clamped to its band width
// and converted from ratio bps to USDC via expected annual claims. Below the
// aggregate trigger and above the catastrophic ceiling the protocol bears
// everything. Monotonic and layer-capped.
func (t Treaty) AggregateRecovery(ytdClaimsUsdc int64) (int64, error) {
	ratio := t.ClaimsRatioBps(ytdClaimsUsdc)

	aggBand := bandCrossedBps(ratio, t.AggregateTriggerBps, t.AggregateCeilingBps)
	catBand := bandCrossedBps(ratio, t.CatastrophicTriggerBps, t.CatastrophicCeilingBps)

	aggUsdc, err := bpsmath.MulBps(t.ExpectedAnnualClaims, aggBand)
	if err != nil {
		return 0, err
	}
	catUsdc, err := bpsmath.MulBps(t.ExpectedAnnualClaims, catBand)
	if err != nil {
		return 0, err
	}
	return bpsmath.SatAdd(aggUsdc, catUsdc), nil
}

// bandCrossedBps returns how much of the band [lo, hi] a ratio has crossed,
// clamped to the band width.
func bandCrossedBps(ratioBps, loBps, hiBps int64) int64 {
	if ratioBps <= loBps {
		return 0
	}
	if ratioBps >= hiBps {
		return hiBps - loBps
	}
	return ratioBps - loBps
}
