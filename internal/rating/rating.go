package rating

import (
	"errors"
	"fmt"

	"CareLedger/internal/bpsmath"
)

var (
	ErrInvalidAge = errors.New("invalid age")
)

// AgeBand maps ages up to MaxAge (inclusive) to a pricing factor.
type AgeBand struct {
	MaxAge    uint8
	FactorBps int64
}

// RatingTable holds the governance-owned pricing parameters. Passed by value
// into Quote so pricing stays a pure function of its inputs.
type RatingTable struct {
	Version              int64
	BaseRateAdult        int64 // micro-USDC per period
	AgeBands             []AgeBand
	TobaccoFactorBps     int64
	DependentFactorBps   int64
	MaxCountedDependents int
	RegionFactors        map[string]int64
}

// QuoteInput is the demographic snapshot supplied by the membership system.
type QuoteInput struct {
	Age            uint8
	TobaccoUser    bool
	RegionCode     string
	DependentCount int
}

const (
	minQuoteAge = 1
	maxQuoteAge = 64

	minTobaccoFactorBps = 10_000
	maxTobaccoFactorBps = 15_000

	// maxBandRatioBps caps max/min age-band factor at 3.0x.
	maxBandRatioBps = 30_000
)

// DefaultTable returns the launch rating table: $450 adult base rate, ACA-style
// age curve, 50% tobacco surcharge, 40% per dependent capped at 3.
func DefaultTable() RatingTable {
	return RatingTable{
		Version:       1,
		BaseRateAdult: 450 * bpsmath.MicroUsdcScale,
		AgeBands: []AgeBand{
			{MaxAge: 20, FactorBps: 6_350},
			{MaxAge: 24, FactorBps: 10_000},
			{MaxAge: 29, FactorBps: 10_040},
			{MaxAge: 34, FactorBps: 10_130},
			{MaxAge: 39, FactorBps: 10_460},
			{MaxAge: 44, FactorBps: 11_350},
			{MaxAge: 49, FactorBps: 12_780},
			{MaxAge: 54, FactorBps: 14_870},
			{MaxAge: 59, FactorBps: 17_060},
			{MaxAge: 64, FactorBps: 19_050},
		},
		TobaccoFactorBps:     15_000,
		DependentFactorBps:   4_000,
		MaxCountedDependents: 3,
		RegionFactors:        map[string]int64{},
	}
}

// ageBandFactor returns the factor of the first band with age <= MaxAge.
// Ages past the last band fall into the last band.
func ageBandFactor(bands []AgeBand, age uint8) int64 {
	for _, band := range bands {
		if age <= band.MaxAge {
			return band.FactorBps
		}
	}
	return bands[len(bands)-1].FactorBps
}

// Quote computes a member's periodic contribution in micro-USDC.
//
// The pipeline is order-sensitive with floor rounding at every step:
// age band, tobacco, dependents, region, shock. Reordering changes results.
func Quote(in QuoteInput, table RatingTable, shockFactorBps int64) (int64, error) {
	if in.Age < minQuoteAge || in.Age > maxQuoteAge {
		return 0, fmt.Errorf("%w: %d", ErrInvalidAge, in.Age)
	}

	base, err := bpsmath.MulBps(table.BaseRateAdult, ageBandFactor(table.AgeBands, in.Age))
	if err != nil {
		return 0, err
	}

	if in.TobaccoUser {
		base, err = bpsmath.MulBps(base, table.TobaccoFactorBps)
		if err != nil {
			return 0, err
		}
	}

	counted := in.DependentCount
	if counted > table.MaxCountedDependents {
		counted = table.MaxCountedDependents
	}
	if counted > 0 {
		perDependent, err := bpsmath.MulBps(base, table.DependentFactorBps)
		if err != nil {
			return 0, err
		}
		for i := 0; i < counted; i++ {
			base, err = bpsmath.CheckedAdd(base, perDependent)
			if err != nil {
				return 0, err
			}
		}
	}

	// Unknown region codes price at 1.0x; only governance-listed regions vary.
	if factor, ok := table.RegionFactors[in.RegionCode]; ok {
		base, err = bpsmath.MulBps(base, factor)
		if err != nil {
			return 0, err
		}
	}

	return bpsmath.MulBps(base, shockFactorBps)
}

// ValidateTable checks a governance-proposed table before it takes effect.
// Bands must ascend strictly in MaxAge, factors must be positive, and the
// max/min band ratio is capped at 3:1.
func ValidateTable(table RatingTable) error {
	if table.BaseRateAdult <= 0 {
		return fmt.Errorf("base_rate_adult must be > 0, got %d", table.BaseRateAdult)
	}
	if len(table.AgeBands) == 0 {
		return fmt.Errorf("rating table requires at least one age band")
	}

	minFactor := table.AgeBands[0].FactorBps
	maxFactor := table.AgeBands[0].FactorBps
	prevMax := -1
	for i, band := range table.AgeBands {
		if band.FactorBps <= 0 {
			return fmt.Errorf("age band %d: factor must be > 0, got %d", i, band.FactorBps)
		}
		if int(band.MaxAge) <= prevMax {
			return fmt.Errorf("age band %d: max_age %d overlaps previous band (%d)", i, band.MaxAge, prevMax)
		}
		prevMax = int(band.MaxAge)
		if band.FactorBps < minFactor {
			minFactor = band.FactorBps
		}
		if band.FactorBps > maxFactor {
			maxFactor = band.FactorBps
		}
	}

	if bpsmath.RatioBps(maxFactor, minFactor) > maxBandRatioBps {
		return fmt.Errorf("band factor ratio %d/%d exceeds 3:1", maxFactor, minFactor)
	}

	if table.TobaccoFactorBps < minTobaccoFactorBps || table.TobaccoFactorBps > maxTobaccoFactorBps {
		return fmt.Errorf("tobacco factor must be within [%d, %d], got %d",
			minTobaccoFactorBps, maxTobaccoFactorBps, table.TobaccoFactorBps)
	}
	if table.DependentFactorBps <= 0 {
		return fmt.Errorf("dependent factor must be > 0, got %d", table.DependentFactorBps)
	}
	if table.MaxCountedDependents < 0 {
		return fmt.Errorf("max counted dependents must be >= 0, got %d", table.MaxCountedDependents)
	}
	for code, factor := range table.RegionFactors {
		if factor <= 0 {
			return fmt.Errorf("region %q: factor must be > 0, got %d", code, factor)
		}
	}
	return nil
}
