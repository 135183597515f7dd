package claims

import (
	"time"

	"CareLedger/internal/bpsmath"
)

// FastLaneConfig bounds the auto-approval lane. Bootstrap mode is the
// conservative launch posture; standard mode loosens the caps once the pool
// matures.
type FastLaneConfig struct {
	Enabled            bool
	MaxAmount          int64 // micro-USDC
	EligibleCategories []Category
	MaxClaimsPerPeriod int
	MaxAmountPerPeriod int64
	PeriodDays         int
}

const (
	fastLaneBootstrapMaxAmount = 500 * bpsmath.MicroUsdcScale
	fastLaneStandardMaxAmount  = 1_000 * bpsmath.MicroUsdcScale
	fastLaneBootstrapMaxClaims = 3
	fastLaneStandardMaxClaims  = 5
	fastLanePeriodDays         = 30
)

func defaultFastLaneCategories() []Category {
	return []Category{
		CategoryPrimaryCare,
		CategoryPreventive,
		CategoryLaboratory,
		CategoryPrescription,
		CategorySpecialistVisit,
	}
}

// BootstrapFastLane is the launch fast-lane posture: $500 cap, 3 claims per
// 30 days.
func BootstrapFastLane() FastLaneConfig {
	return FastLaneConfig{
		Enabled:            true,
		MaxAmount:          fastLaneBootstrapMaxAmount,
		EligibleCategories: defaultFastLaneCategories(),
		MaxClaimsPerPeriod: fastLaneBootstrapMaxClaims,
		MaxAmountPerPeriod: int64(fastLaneBootstrapMaxClaims) * fastLaneBootstrapMaxAmount,
		PeriodDays:         fastLanePeriodDays,
	}
}

// StandardFastLane: $1000 cap, 5 claims per 30 days.
func StandardFastLane() FastLaneConfig {
	return FastLaneConfig{
		Enabled:            true,
		MaxAmount:          fastLaneStandardMaxAmount,
		EligibleCategories: defaultFastLaneCategories(),
		MaxClaimsPerPeriod: fastLaneStandardMaxClaims,
		MaxAmountPerPeriod: int64(fastLaneStandardMaxClaims) * fastLaneStandardMaxAmount,
		PeriodDays:         fastLanePeriodDays,
	}
}

// OracleConfig holds the AI decision thresholds and signer registry limits.
type OracleConfig struct {
	AutoApproveConfidenceBps int64
	MaxFraudScoreBps         int64
	EscalateBelowConfidence  int64
	MaxAuthorizedSigners     int
}

func DefaultOracleConfig() OracleConfig {
	return OracleConfig{
		AutoApproveConfidenceBps: 9_500,
		MaxFraudScoreBps:         3_000,
		EscalateBelowConfidence:  7_000,
		MaxAuthorizedSigners:     5,
	}
}

// TriageConfig is the full governance-owned claims policy.
type TriageConfig struct {
	FastLane FastLaneConfig
	Oracle   OracleConfig

	// ShockBootstrapThreshold is used while reserves are too thin for the
	// dynamic threshold to be meaningful. Zero means always dynamic.
	ShockBootstrapThreshold int64

	RequiredAttestations int
	MaxAttestors         int
	MaxAttestationAge    time.Duration
	MaxAppealCount       int
}

func DefaultTriageConfig() TriageConfig {
	return TriageConfig{
		FastLane:             BootstrapFastLane(),
		Oracle:               DefaultOracleConfig(),
		RequiredAttestations: 2,
		MaxAttestors:         20,
		MaxAttestationAge:    48 * time.Hour,
		MaxAppealCount:       1,
	}
}

// Shock threshold bounds: clamp(reserves x 5%, $10k, $100k).
const (
	shockThresholdBps = 500
	shockFloorUsdc    = 10_000 * bpsmath.MicroUsdcScale
	shockCeilingUsdc  = 100_000 * bpsmath.MicroUsdcScale
)

// ShockThreshold derives the dynamic shock-claim line from current reserves.
// A configured bootstrap value overrides the dynamic formula.
func ShockThreshold(totalReserves int64, cfg TriageConfig) int64 {
	if cfg.ShockBootstrapThreshold > 0 {
		return cfg.ShockBootstrapThreshold
	}
	dynamic, err := bpsmath.MulBps(totalReserves, shockThresholdBps)
	if err != nil {
		dynamic = shockCeilingUsdc
	}
	return bpsmath.Clamp(dynamic, shockFloorUsdc, shockCeilingUsdc)
}
