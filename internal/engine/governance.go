package engine

import (
	"errors"
	"fmt"
	"time"

	"CareLedger/internal/claims"
	"CareLedger/internal/event"
	"CareLedger/internal/rating"
	"CareLedger/internal/reinsurance"
	"CareLedger/internal/reserve"

	"gopkg.in/yaml.v3"
)

var ErrUnknownConfigKind = errors.New("unknown config kind")

// Governance payloads arrive as YAML documents, validated in full before any
// field is applied. A rejected document leaves the previous configuration
// untouched. The same documents double as the bootstrap file format.

type ageBandDoc struct {
	MaxAge    uint8 `yaml:"max_age"`
	FactorBps int64 `yaml:"factor_bps"`
}

type ratingTableDoc struct {
	Version              int64            `yaml:"version"`
	BaseRateAdult        int64            `yaml:"base_rate_adult"`
	AgeBands             []ageBandDoc     `yaml:"age_bands"`
	TobaccoFactorBps     int64            `yaml:"tobacco_factor_bps"`
	DependentFactorBps   int64            `yaml:"dependent_factor_bps"`
	MaxCountedDependents int              `yaml:"max_counted_dependents"`
	RegionFactors        map[string]int64 `yaml:"region_factors"`
}

type reserveTargetsDoc struct {
	Tier0Days        int64 `yaml:"tier0_days"`
	Tier1Days        int64 `yaml:"tier1_days"`
	Tier2Days        int64 `yaml:"tier2_days"`
	ReserveMarginBps int64 `yaml:"reserve_margin_bps"`
	AdminLoadBps     int64 `yaml:"admin_load_bps"`
}

type treatyDoc struct {
	SpecificAttachmentUsdc int64     `yaml:"specific_attachment_usdc"`
	SpecificCoinsuranceBps int64     `yaml:"specific_coinsurance_bps"`
	AggregateTriggerBps    int64     `yaml:"aggregate_trigger_bps"`
	AggregateCeilingBps    int64     `yaml:"aggregate_ceiling_bps"`
	CatastrophicTriggerBps int64     `yaml:"catastrophic_trigger_bps"`
	CatastrophicCeilingBps int64     `yaml:"catastrophic_ceiling_bps"`
	PolicyPeriodStart      time.Time `yaml:"policy_period_start"`
	PolicyPeriodEnd        time.Time `yaml:"policy_period_end"`
	ExpectedAnnualClaims   int64     `yaml:"expected_annual_claims"`
}

type fastLaneDoc struct {
	Enabled            bool  `yaml:"enabled"`
	MaxAmount          int64 `yaml:"max_amount"`
	EligibleCategories []int `yaml:"eligible_categories"`
	MaxClaimsPerPeriod int   `yaml:"max_claims_per_period"`
	MaxAmountPerPeriod int64 `yaml:"max_amount_per_period"`
	PeriodDays         int   `yaml:"period_days"`
}

type oracleDoc struct {
	AutoApproveConfidenceBps int64 `yaml:"auto_approve_confidence_bps"`
	MaxFraudScoreBps         int64 `yaml:"max_fraud_score_bps"`
	EscalateBelowConfidence  int64 `yaml:"escalate_below_confidence"`
	MaxAuthorizedSigners     int   `yaml:"max_authorized_signers"`
}

type triageDoc struct {
	FastLane                fastLaneDoc `yaml:"fast_lane"`
	Oracle                  oracleDoc   `yaml:"oracle"`
	ShockBootstrapThreshold int64       `yaml:"shock_bootstrap_threshold"`
	RequiredAttestations    int         `yaml:"required_attestations"`
	MaxAttestors            int         `yaml:"max_attestors"`
	MaxAttestationAge       string      `yaml:"max_attestation_age"`
	MaxAppealCount          int         `yaml:"max_appeal_count"`
}

func ratingTableFromDoc(doc ratingTableDoc) rating.RatingTable {
	table := rating.RatingTable{
		Version:              doc.Version,
		BaseRateAdult:        doc.BaseRateAdult,
		TobaccoFactorBps:     doc.TobaccoFactorBps,
		DependentFactorBps:   doc.DependentFactorBps,
		MaxCountedDependents: doc.MaxCountedDependents,
		RegionFactors:        doc.RegionFactors,
	}
	for _, band := range doc.AgeBands {
		table.AgeBands = append(table.AgeBands, rating.AgeBand{
			MaxAge:    band.MaxAge,
			FactorBps: band.FactorBps,
		})
	}
	return table
}

func targetsFromDoc(doc reserveTargetsDoc) reserve.Targets {
	return reserve.Targets{
		Tier0Days:        doc.Tier0Days,
		Tier1Days:        doc.Tier1Days,
		Tier2Days:        doc.Tier2Days,
		ReserveMarginBps: doc.ReserveMarginBps,
		AdminLoadBps:     doc.AdminLoadBps,
	}
}

func treatyFromDoc(doc treatyDoc) reinsurance.Treaty {
	return reinsurance.Treaty{
		SpecificAttachmentUsdc: doc.SpecificAttachmentUsdc,
		SpecificCoinsuranceBps: doc.SpecificCoinsuranceBps,
		AggregateTriggerBps:    doc.AggregateTriggerBps,
		AggregateCeilingBps:    doc.AggregateCeilingBps,
		CatastrophicTriggerBps: doc.CatastrophicTriggerBps,
		CatastrophicCeilingBps: doc.CatastrophicCeilingBps,
		PolicyPeriodStart:      doc.PolicyPeriodStart,
		PolicyPeriodEnd:        doc.PolicyPeriodEnd,
		ExpectedAnnualClaims:   doc.ExpectedAnnualClaims,
	}
}

func triageFromDoc(doc triageDoc) (claims.TriageConfig, error) {
	cfg := claims.TriageConfig{
		FastLane: claims.FastLaneConfig{
			Enabled:            doc.FastLane.Enabled,
			MaxAmount:          doc.FastLane.MaxAmount,
			MaxClaimsPerPeriod: doc.FastLane.MaxClaimsPerPeriod,
			MaxAmountPerPeriod: doc.FastLane.MaxAmountPerPeriod,
			PeriodDays:         doc.FastLane.PeriodDays,
		},
		Oracle: claims.OracleConfig{
			AutoApproveConfidenceBps: doc.Oracle.AutoApproveConfidenceBps,
			MaxFraudScoreBps:         doc.Oracle.MaxFraudScoreBps,
			EscalateBelowConfidence:  doc.Oracle.EscalateBelowConfidence,
			MaxAuthorizedSigners:     doc.Oracle.MaxAuthorizedSigners,
		},
		ShockBootstrapThreshold: doc.ShockBootstrapThreshold,
		RequiredAttestations:    doc.RequiredAttestations,
		MaxAttestors:            doc.MaxAttestors,
		MaxAppealCount:          doc.MaxAppealCount,
	}
	for _, cat := range doc.FastLane.EligibleCategories {
		cfg.FastLane.EligibleCategories = append(cfg.FastLane.EligibleCategories, claims.Category(cat))
	}

	if doc.MaxAttestationAge != "" {
		age, err := time.ParseDuration(doc.MaxAttestationAge)
		if err != nil {
			return cfg, fmt.Errorf("max_attestation_age: %w", err)
		}
		cfg.MaxAttestationAge = age
	}

	if cfg.RequiredAttestations < 1 {
		return cfg, fmt.Errorf("required_attestations must be >= 1, got %d",
			cfg.RequiredAttestations)
	}
	if cfg.MaxAppealCount < 0 {
		return cfg, fmt.Errorf("max_appeal_count must be >= 0, got %d",
			cfg.MaxAppealCount)
	}
	return cfg, nil
}

func validateTargets(t reserve.Targets) error {
	probe := reserve.NewLedger(reserve.DefaultTargets())
	return probe.SetTargets(t, true)
}

func (c *DeterministicCore) handleGovernanceUpdate(evt *event.GovernanceUpdate) ([]byte, error) {
	switch evt.ConfigKind {
	case "rating_table":
		return nil, c.applyRatingTable(evt.Payload)
	case "reserve_targets":
		return nil, c.applyReserveTargets(evt.Payload)
	case "treaty":
		return nil, c.applyTreaty(evt.Payload)
	case "triage":
		return nil, c.applyTriage(evt.Payload)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownConfigKind, evt.ConfigKind)
	}
}

func (c *DeterministicCore) applyRatingTable(payload []byte) error {
	var doc ratingTableDoc
	if err := yaml.Unmarshal(payload, &doc); err != nil {
		return fmt.Errorf("rating table payload: %w", err)
	}

	table := ratingTableFromDoc(doc)
	if err := rating.ValidateTable(table); err != nil {
		return fmt.Errorf("rating table rejected: %w", err)
	}
	if table.Version <= c.ratingTable.Version {
		return fmt.Errorf("rating table version %d not newer than %d",
			table.Version, c.ratingTable.Version)
	}

	c.ratingTable = table
	return nil
}

func (c *DeterministicCore) applyReserveTargets(payload []byte) error {
	var doc reserveTargetsDoc
	if err := yaml.Unmarshal(payload, &doc); err != nil {
		return fmt.Errorf("reserve targets payload: %w", err)
	}

	if err := c.reserves.SetTargets(targetsFromDoc(doc), true); err != nil {
		return fmt.Errorf("reserve targets rejected: %w", err)
	}
	return nil
}

func (c *DeterministicCore) applyTreaty(payload []byte) error {
	var doc treatyDoc
	if err := yaml.Unmarshal(payload, &doc); err != nil {
		return fmt.Errorf("treaty payload: %w", err)
	}

	treaty := treatyFromDoc(doc)
	if err := treaty.Validate(); err != nil {
		return fmt.Errorf("treaty rejected: %w", err)
	}

	c.treaty = treaty
	return nil
}

func (c *DeterministicCore) applyTriage(payload []byte) error {
	var doc triageDoc
	if err := yaml.Unmarshal(payload, &doc); err != nil {
		return fmt.Errorf("triage payload: %w", err)
	}

	cfg, err := triageFromDoc(doc)
	if err != nil {
		return fmt.Errorf("triage rejected: %w", err)
	}

	c.triage.SetConfig(cfg)
	return nil
}

// --- Bootstrap file ---

type bootstrapDoc struct {
	RatingTable    *ratingTableDoc    `yaml:"rating_table"`
	ReserveTargets *reserveTargetsDoc `yaml:"reserve_targets"`
	Treaty         *treatyDoc         `yaml:"treaty"`
	Triage         *triageDoc         `yaml:"triage"`
}

// ParseBootstrap reads the launch governance file. Each section is optional
// and falls back to the built-in default; present sections are validated the
// same way a GovernanceUpdate event would be.
func ParseBootstrap(data []byte) (Config, error) {
	cfg := DefaultConfig()

	var doc bootstrapDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return cfg, fmt.Errorf("bootstrap file: %w", err)
	}

	if doc.RatingTable != nil {
		table := ratingTableFromDoc(*doc.RatingTable)
		if err := rating.ValidateTable(table); err != nil {
			return cfg, fmt.Errorf("bootstrap rating table: %w", err)
		}
		cfg.RatingTable = table
	}

	if doc.ReserveTargets != nil {
		targets := targetsFromDoc(*doc.ReserveTargets)
		if err := validateTargets(targets); err != nil {
			return cfg, fmt.Errorf("bootstrap reserve targets: %w", err)
		}
		cfg.ReserveTargets = targets
	}

	if doc.Treaty != nil {
		treaty := treatyFromDoc(*doc.Treaty)
		if err := treaty.Validate(); err != nil {
			return cfg, fmt.Errorf("bootstrap treaty: %w", err)
		}
		cfg.Treaty = treaty
	}

	if doc.Triage != nil {
		triage, err := triageFromDoc(*doc.Triage)
		if err != nil {
			return cfg, fmt.Errorf("bootstrap triage: %w", err)
		}
		cfg.Triage = triage
	}

	return cfg, nil
}
