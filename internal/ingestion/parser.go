package ingestion

import (
	"fmt"
	"time"

	"CareLedger/internal/event"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
)

// ParseRawEvent converts a RawEvent (JSON bytes + event type string) into a
// typed event.Event. The ingestion shell validates, parses, and converts raw
// events before sending to the deterministic core; nothing unparsed crosses
// the channel.
func ParseRawEvent(raw RawEvent, eventType string) (event.Event, error) {
	switch eventType {
	case "ContributionReceived":
		return parseContribution(raw.Data)
	case "TierDeposit":
		return parseTierDeposit(raw.Data)
	case "Tier0Refill":
		return parseTier0Refill(raw.Data)
	case "IbnrUpdate":
		return parseIbnrUpdate(raw.Data)
	case "EnrollmentRecorded":
		return parseEnrollment(raw.Data)
	case "CollateralReport":
		return parseCollateralReport(raw.Data)
	case "ShockFactorSet":
		return parseShockFactorSet(raw.Data)
	case "GovernanceUpdate":
		return parseGovernanceUpdate(raw.Data)
	case "ClaimSubmitted":
		return parseClaimSubmitted(raw.Data)
	case "AiDecisionRecorded":
		return parseAiDecision(raw.Data)
	case "ClaimAttested":
		return parseClaimAttested(raw.Data)
	case "AttestationExpired":
		return parseAttestationExpired(raw.Data)
	case "ClaimApproved":
		return parseClaimApproved(raw.Data)
	case "ClaimDenied":
		return parseClaimDenied(raw.Data)
	case "ClaimAppealed":
		return parseClaimAppealed(raw.Data)
	case "ClaimCancelled":
		return parseClaimCancelled(raw.Data)
	case "ClaimPaid":
		return parseClaimPaid(raw.Data)
	case "ClaimClosed":
		return parseClaimClosed(raw.Data)
	default:
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}
}

// --- JSON wire formats ---
// These structs represent the JSON payloads received from NATS.
// Field names use snake_case to match upstream producers; amounts are
// micro-USDC integers and timestamps are microseconds since epoch.

type contributionJSON struct {
	PaymentID   string `json:"payment_id"`
	MemberID    string `json:"member_id"`
	Amount      int64  `json:"amount"`
	PaySequence int64  `json:"pay_sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseContribution(data []byte) (*event.ContributionReceived, error) {
	var j contributionJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ContributionReceived: %w", err)
	}
	paymentID, err := uuid.Parse(j.PaymentID)
	if err != nil {
		return nil, fmt.Errorf("parse payment_id: %w", err)
	}
	memberID, err := uuid.Parse(j.MemberID)
	if err != nil {
		return nil, fmt.Errorf("parse member_id: %w", err)
	}
	return &event.ContributionReceived{
		PaymentID:   paymentID,
		MemberID:    memberID,
		Amount:      j.Amount,
		PaySequence: j.PaySequence,
		Timestamp:   time.UnixMicro(j.TimestampUs),
	}, nil
}

type tierDepositJSON struct {
	DepositID   string `json:"deposit_id"`
	Tier        int32  `json:"tier"`
	Amount      int64  `json:"amount"`
	TreasurySeq int64  `json:"treasury_seq"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseTierDeposit(data []byte) (*event.TierDeposit, error) {
	var j tierDepositJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse TierDeposit: %w", err)
	}
	depositID, err := uuid.Parse(j.DepositID)
	if err != nil {
		return nil, fmt.Errorf("parse deposit_id: %w", err)
	}
	if j.Tier < 0 || j.Tier > 2 {
		return nil, fmt.Errorf("tier out of range: %d", j.Tier)
	}
	return &event.TierDeposit{
		DepositID:   depositID,
		Tier:        event.ReserveTier(j.Tier),
		Amount:      j.Amount,
		TreasurySeq: j.TreasurySeq,
		Timestamp:   time.UnixMicro(j.TimestampUs),
	}, nil
}

type tier0RefillJSON struct {
	RefillID    string `json:"refill_id"`
	Amount      int64  `json:"amount"`
	TreasurySeq int64  `json:"treasury_seq"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseTier0Refill(data []byte) (*event.Tier0Refill, error) {
	var j tier0RefillJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse Tier0Refill: %w", err)
	}
	refillID, err := uuid.Parse(j.RefillID)
	if err != nil {
		return nil, fmt.Errorf("parse refill_id: %w", err)
	}
	return &event.Tier0Refill{
		RefillID:    refillID,
		Amount:      j.Amount,
		TreasurySeq: j.TreasurySeq,
		Timestamp:   time.UnixMicro(j.TimestampUs),
	}, nil
}

type ibnrUpdateJSON struct {
	UpdateID             string `json:"update_id"`
	AvgDailyClaims30d    int64  `json:"avg_daily_claims_30d"`
	AvgDailyClaims90d    int64  `json:"avg_daily_claims_90d"`
	ReportingLagDays     int64  `json:"reporting_lag_days"`
	DevelopmentFactorBps int64  `json:"development_factor_bps"`
	ActuarySeq           int64  `json:"actuary_seq"`
	TimestampUs          int64  `json:"timestamp_us"`
}

func parseIbnrUpdate(data []byte) (*event.IbnrUpdate, error) {
	var j ibnrUpdateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse IbnrUpdate: %w", err)
	}
	updateID, err := uuid.Parse(j.UpdateID)
	if err != nil {
		return nil, fmt.Errorf("parse update_id: %w", err)
	}
	return &event.IbnrUpdate{
		UpdateID:             updateID,
		AvgDailyClaims30d:    j.AvgDailyClaims30d,
		AvgDailyClaims90d:    j.AvgDailyClaims90d,
		ReportingLagDays:     j.ReportingLagDays,
		DevelopmentFactorBps: j.DevelopmentFactorBps,
		ActuarySeq:           j.ActuarySeq,
		Timestamp:            time.UnixMicro(j.TimestampUs),
	}, nil
}

type enrollmentJSON struct {
	EnrollmentID  string `json:"enrollment_id"`
	MemberID      string `json:"member_id"`
	MembershipSeq int64  `json:"membership_seq"`
	TimestampUs   int64  `json:"timestamp_us"`
}

func parseEnrollment(data []byte) (*event.EnrollmentRecorded, error) {
	var j enrollmentJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse EnrollmentRecorded: %w", err)
	}
	enrollmentID, err := uuid.Parse(j.EnrollmentID)
	if err != nil {
		return nil, fmt.Errorf("parse enrollment_id: %w", err)
	}
	memberID, err := uuid.Parse(j.MemberID)
	if err != nil {
		return nil, fmt.Errorf("parse member_id: %w", err)
	}
	return &event.EnrollmentRecorded{
		EnrollmentID:  enrollmentID,
		MemberID:      memberID,
		MembershipSeq: j.MembershipSeq,
		Timestamp:     time.UnixMicro(j.TimestampUs),
	}, nil
}

type collateralReportJSON struct {
	ReportID               string `json:"report_id"`
	EligibleCollateralUsdc int64  `json:"eligible_collateral_usdc"`
	ExpectedAnnualClaims   int64  `json:"expected_annual_claims"`
	StakingSeq             int64  `json:"staking_seq"`
	TimestampUs            int64  `json:"timestamp_us"`
}

func parseCollateralReport(data []byte) (*event.CollateralReport, error) {
	var j collateralReportJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse CollateralReport: %w", err)
	}
	reportID, err := uuid.Parse(j.ReportID)
	if err != nil {
		return nil, fmt.Errorf("parse report_id: %w", err)
	}
	return &event.CollateralReport{
		ReportID:               reportID,
		EligibleCollateralUsdc: j.EligibleCollateralUsdc,
		ExpectedAnnualClaims:   j.ExpectedAnnualClaims,
		StakingSeq:             j.StakingSeq,
		Timestamp:              time.UnixMicro(j.TimestampUs),
	}, nil
}

type shockFactorJSON struct {
	ProposalID     string `json:"proposal_id"`
	ShockFactorBps int64  `json:"shock_factor_bps"`
	ApprovalTier   int32  `json:"approval_tier"`
	GovernanceSeq  int64  `json:"governance_seq"`
	TimestampUs    int64  `json:"timestamp_us"`
}

func parseShockFactorSet(data []byte) (*event.ShockFactorSet, error) {
	var j shockFactorJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ShockFactorSet: %w", err)
	}
	proposalID, err := uuid.Parse(j.ProposalID)
	if err != nil {
		return nil, fmt.Errorf("parse proposal_id: %w", err)
	}
	return &event.ShockFactorSet{
		ProposalID:     proposalID,
		ShockFactorBps: j.ShockFactorBps,
		ApprovalTier:   j.ApprovalTier,
		GovernanceSeq:  j.GovernanceSeq,
		Timestamp:      time.UnixMicro(j.TimestampUs),
	}, nil
}

type governanceUpdateJSON struct {
	ProposalID    string `json:"proposal_id"`
	ConfigKind    string `json:"config_kind"`
	ConfigVersion int64  `json:"config_version"`
	Payload       string `json:"payload"` // YAML document
	GovernanceSeq int64  `json:"governance_seq"`
	TimestampUs   int64  `json:"timestamp_us"`
}

func parseGovernanceUpdate(data []byte) (*event.GovernanceUpdate, error) {
	var j governanceUpdateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse GovernanceUpdate: %w", err)
	}
	proposalID, err := uuid.Parse(j.ProposalID)
	if err != nil {
		return nil, fmt.Errorf("parse proposal_id: %w", err)
	}
	if j.ConfigKind == "" {
		return nil, fmt.Errorf("config_kind is required")
	}
	return &event.GovernanceUpdate{
		ProposalID:    proposalID,
		ConfigKind:    j.ConfigKind,
		ConfigVersion: j.ConfigVersion,
		Payload:       []byte(j.Payload),
		GovernanceSeq: j.GovernanceSeq,
		Timestamp:     time.UnixMicro(j.TimestampUs),
	}, nil
}

type claimSubmittedJSON struct {
	ClaimID       string `json:"claim_id"`
	MemberID      string `json:"member_id"`
	Amount        int64  `json:"amount"`
	Category      int32  `json:"category"`
	ServiceDateUs int64  `json:"service_date_us"`
	SubmitSeq     int64  `json:"submit_seq"`
	TimestampUs   int64  `json:"timestamp_us"`
}

func parseClaimSubmitted(data []byte) (*event.ClaimSubmitted, error) {
	var j claimSubmittedJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ClaimSubmitted: %w", err)
	}
	claimID, err := uuid.Parse(j.ClaimID)
	if err != nil {
		return nil, fmt.Errorf("parse claim_id: %w", err)
	}
	memberID, err := uuid.Parse(j.MemberID)
	if err != nil {
		return nil, fmt.Errorf("parse member_id: %w", err)
	}
	return &event.ClaimSubmitted{
		ClaimID:     claimID,
		MemberID:    memberID,
		Amount:      j.Amount,
		Category:    j.Category,
		ServiceDate: time.UnixMicro(j.ServiceDateUs),
		SubmitSeq:   j.SubmitSeq,
		Timestamp:   time.UnixMicro(j.TimestampUs),
	}, nil
}

type aiDecisionJSON struct {
	ClaimID        string `json:"claim_id"`
	ConfidenceBps  int64  `json:"confidence_bps"`
	FraudScoreBps  int64  `json:"fraud_score_bps"`
	PriceScoreBps  int64  `json:"price_score_bps"`
	Recommendation int32  `json:"recommendation"`
	ModelVersion   string `json:"model_version"`
	Signer         string `json:"signer"`
	OracleSeq      int64  `json:"oracle_seq"`
	TimestampUs    int64  `json:"timestamp_us"`
}

func parseAiDecision(data []byte) (*event.AiDecisionRecorded, error) {
	var j aiDecisionJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse AiDecisionRecorded: %w", err)
	}
	claimID, err := uuid.Parse(j.ClaimID)
	if err != nil {
		return nil, fmt.Errorf("parse claim_id: %w", err)
	}
	signer, err := uuid.Parse(j.Signer)
	if err != nil {
		return nil, fmt.Errorf("parse signer: %w", err)
	}
	return &event.AiDecisionRecorded{
		ClaimID:        claimID,
		ConfidenceBps:  j.ConfidenceBps,
		FraudScoreBps:  j.FraudScoreBps,
		PriceScoreBps:  j.PriceScoreBps,
		Recommendation: j.Recommendation,
		ModelVersion:   j.ModelVersion,
		Signer:         signer,
		OracleSeq:      j.OracleSeq,
		Timestamp:      time.UnixMicro(j.TimestampUs),
	}, nil
}

type claimAttestedJSON struct {
	ClaimID      string `json:"claim_id"`
	AttestorID   string `json:"attestor_id"`
	CommitteeSeq int64  `json:"committee_seq"`
	TimestampUs  int64  `json:"timestamp_us"`
}

func parseClaimAttested(data []byte) (*event.ClaimAttested, error) {
	var j claimAttestedJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ClaimAttested: %w", err)
	}
	claimID, err := uuid.Parse(j.ClaimID)
	if err != nil {
		return nil, fmt.Errorf("parse claim_id: %w", err)
	}
	attestorID, err := uuid.Parse(j.AttestorID)
	if err != nil {
		return nil, fmt.Errorf("parse attestor_id: %w", err)
	}
	return &event.ClaimAttested{
		ClaimID:      claimID,
		AttestorID:   attestorID,
		CommitteeSeq: j.CommitteeSeq,
		Timestamp:    time.UnixMicro(j.TimestampUs),
	}, nil
}

type attestationExpiredJSON struct {
	ClaimID      string `json:"claim_id"`
	SchedulerSeq int64  `json:"scheduler_seq"`
	TimestampUs  int64  `json:"timestamp_us"`
}

func parseAttestationExpired(data []byte) (*event.AttestationExpired, error) {
	var j attestationExpiredJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse AttestationExpired: %w", err)
	}
	claimID, err := uuid.Parse(j.ClaimID)
	if err != nil {
		return nil, fmt.Errorf("parse claim_id: %w", err)
	}
	return &event.AttestationExpired{
		ClaimID:      claimID,
		SchedulerSeq: j.SchedulerSeq,
		Timestamp:    time.UnixMicro(j.TimestampUs),
	}, nil
}

type claimApprovedJSON struct {
	ClaimID        string `json:"claim_id"`
	ApprovedAmount int64  `json:"approved_amount"`
	CommitteeSeq   int64  `json:"committee_seq"`
	TimestampUs    int64  `json:"timestamp_us"`
}

func parseClaimApproved(data []byte) (*event.ClaimApproved, error) {
	var j claimApprovedJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ClaimApproved: %w", err)
	}
	claimID, err := uuid.Parse(j.ClaimID)
	if err != nil {
		return nil, fmt.Errorf("parse claim_id: %w", err)
	}
	return &event.ClaimApproved{
		ClaimID:        claimID,
		ApprovedAmount: j.ApprovedAmount,
		CommitteeSeq:   j.CommitteeSeq,
		Timestamp:      time.UnixMicro(j.TimestampUs),
	}, nil
}

type claimDeniedJSON struct {
	ClaimID      string `json:"claim_id"`
	Reason       string `json:"reason,omitempty"`
	CommitteeSeq int64  `json:"committee_seq"`
	TimestampUs  int64  `json:"timestamp_us"`
}

func parseClaimDenied(data []byte) (*event.ClaimDenied, error) {
	var j claimDeniedJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ClaimDenied: %w", err)
	}
	claimID, err := uuid.Parse(j.ClaimID)
	if err != nil {
		return nil, fmt.Errorf("parse claim_id: %w", err)
	}
	return &event.ClaimDenied{
		ClaimID:      claimID,
		Reason:       j.Reason,
		CommitteeSeq: j.CommitteeSeq,
		Timestamp:    time.UnixMicro(j.TimestampUs),
	}, nil
}

type claimAppealedJSON struct {
	ClaimID     string `json:"claim_id"`
	MemberSeq   int64  `json:"member_seq"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseClaimAppealed(data []byte) (*event.ClaimAppealed, error) {
	var j claimAppealedJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ClaimAppealed: %w", err)
	}
	claimID, err := uuid.Parse(j.ClaimID)
	if err != nil {
		return nil, fmt.Errorf("parse claim_id: %w", err)
	}
	return &event.ClaimAppealed{
		ClaimID:   claimID,
		MemberSeq: j.MemberSeq,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

type claimCancelledJSON struct {
	ClaimID     string `json:"claim_id"`
	MemberID    string `json:"member_id"`
	MemberSeq   int64  `json:"member_seq"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseClaimCancelled(data []byte) (*event.ClaimCancelled, error) {
	var j claimCancelledJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ClaimCancelled: %w", err)
	}
	claimID, err := uuid.Parse(j.ClaimID)
	if err != nil {
		return nil, fmt.Errorf("parse claim_id: %w", err)
	}
	memberID, err := uuid.Parse(j.MemberID)
	if err != nil {
		return nil, fmt.Errorf("parse member_id: %w", err)
	}
	return &event.ClaimCancelled{
		ClaimID:   claimID,
		MemberID:  memberID,
		MemberSeq: j.MemberSeq,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

type claimPaidJSON struct {
	ClaimID     string `json:"claim_id"`
	PolicyYear  int    `json:"policy_year"`
	Month       int    `json:"month"`
	PaySeq      int64  `json:"pay_seq"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseClaimPaid(data []byte) (*event.ClaimPaid, error) {
	var j claimPaidJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ClaimPaid: %w", err)
	}
	claimID, err := uuid.Parse(j.ClaimID)
	if err != nil {
		return nil, fmt.Errorf("parse claim_id: %w", err)
	}
	if j.Month < 1 || j.Month > 12 {
		return nil, fmt.Errorf("month out of range: %d", j.Month)
	}
	return &event.ClaimPaid{
		ClaimID:    claimID,
		PolicyYear: j.PolicyYear,
		Month:      j.Month,
		PaySeq:     j.PaySeq,
		Timestamp:  time.UnixMicro(j.TimestampUs),
	}, nil
}

type claimClosedJSON struct {
	ClaimID     string `json:"claim_id"`
	CloseSeq    int64  `json:"close_seq"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseClaimClosed(data []byte) (*event.ClaimClosed, error) {
	var j claimClosedJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ClaimClosed: %w", err)
	}
	claimID, err := uuid.Parse(j.ClaimID)
	if err != nil {
		return nil, fmt.Errorf("parse claim_id: %w", err)
	}
	return &event.ClaimClosed{
		ClaimID:   claimID,
		CloseSeq:  j.CloseSeq,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}
