package ingestion

import (
	"fmt"

	"CareLedger/internal/event"

	json "github.com/goccy/go-json"
)

// MarshalEvent converts a typed event back into its wire JSON form, the
// inverse of ParseRawEvent. The event log stores payloads in wire form so
// replay goes through the same parse path as live ingestion.
func MarshalEvent(evt event.Event) ([]byte, error) {
	switch e := evt.(type) {
	case *event.ContributionReceived:
		return json.Marshal(contributionJSON{
			PaymentID:   e.PaymentID.String(),
			MemberID:    e.MemberID.String(),
			Amount:      e.Amount,
			PaySequence: e.PaySequence,
			TimestampUs: e.Timestamp.UnixMicro(),
		})
	case *event.TierDeposit:
		return json.Marshal(tierDepositJSON{
			DepositID:   e.DepositID.String(),
			Tier:        int32(e.Tier),
			Amount:      e.Amount,
			TreasurySeq: e.TreasurySeq,
			TimestampUs: e.Timestamp.UnixMicro(),
		})
	case *event.Tier0Refill:
		return json.Marshal(tier0RefillJSON{
			RefillID:    e.RefillID.String(),
			Amount:      e.Amount,
			TreasurySeq: e.TreasurySeq,
			TimestampUs: e.Timestamp.UnixMicro(),
		})
	case *event.IbnrUpdate:
		return json.Marshal(ibnrUpdateJSON{
			UpdateID:             e.UpdateID.String(),
			AvgDailyClaims30d:    e.AvgDailyClaims30d,
			AvgDailyClaims90d:    e.AvgDailyClaims90d,
			ReportingLagDays:     e.ReportingLagDays,
			DevelopmentFactorBps: e.DevelopmentFactorBps,
			ActuarySeq:           e.ActuarySeq,
			TimestampUs:          e.Timestamp.UnixMicro(),
		})
	case *event.EnrollmentRecorded:
		return json.Marshal(enrollmentJSON{
			EnrollmentID:  e.EnrollmentID.String(),
			MemberID:      e.MemberID.String(),
			MembershipSeq: e.MembershipSeq,
			TimestampUs:   e.Timestamp.UnixMicro(),
		})
	case *event.CollateralReport:
		return json.Marshal(collateralReportJSON{
			ReportID:               e.ReportID.String(),
			EligibleCollateralUsdc: e.EligibleCollateralUsdc,
			ExpectedAnnualClaims:   e.ExpectedAnnualClaims,
			StakingSeq:             e.StakingSeq,
			TimestampUs:            e.Timestamp.UnixMicro(),
		})
	case *event.ShockFactorSet:
		return json.Marshal(shockFactorJSON{
			ProposalID:     e.ProposalID.String(),
			ShockFactorBps: e.ShockFactorBps,
			ApprovalTier:   e.ApprovalTier,
			GovernanceSeq:  e.GovernanceSeq,
			TimestampUs:    e.Timestamp.UnixMicro(),
		})
	case *event.GovernanceUpdate:
		return json.Marshal(governanceUpdateJSON{
			ProposalID:    e.ProposalID.String(),
			ConfigKind:    e.ConfigKind,
			ConfigVersion: e.ConfigVersion,
			Payload:       string(e.Payload),
			GovernanceSeq: e.GovernanceSeq,
			TimestampUs:   e.Timestamp.UnixMicro(),
		})
	case *event.ClaimSubmitted:
		return json.Marshal(claimSubmittedJSON{
			ClaimID:       e.ClaimID.String(),
			MemberID:      e.MemberID.String(),
			Amount:        e.Amount,
			Category:      e.Category,
			ServiceDateUs: e.ServiceDate.UnixMicro(),
			SubmitSeq:     e.SubmitSeq,
			TimestampUs:   e.Timestamp.UnixMicro(),
		})
	case *event.AiDecisionRecorded:
		return json.Marshal(aiDecisionJSON{
			ClaimID:        e.ClaimID.String(),
			ConfidenceBps:  e.ConfidenceBps,
			FraudScoreBps:  e.FraudScoreBps,
			PriceScoreBps:  e.PriceScoreBps,
			Recommendation: e.Recommendation,
			ModelVersion:   e.ModelVersion,
			Signer:         e.Signer.String(),
			OracleSeq:      e.OracleSeq,
			TimestampUs:    e.Timestamp.UnixMicro(),
		})
	case *event.ClaimAttested:
		return json.Marshal(claimAttestedJSON{
			ClaimID:      e.ClaimID.String(),
			AttestorID:   e.AttestorID.String(),
			CommitteeSeq: e.CommitteeSeq,
			TimestampUs:  e.Timestamp.UnixMicro(),
		})
	case *event.AttestationExpired:
		return json.Marshal(attestationExpiredJSON{
			ClaimID:      e.ClaimID.String(),
			SchedulerSeq: e.SchedulerSeq,
			TimestampUs:  e.Timestamp.UnixMicro(),
		})
	case *event.ClaimApproved:
		return json.Marshal(claimApprovedJSON{
			ClaimID:        e.ClaimID.String(),
			ApprovedAmount: e.ApprovedAmount,
			CommitteeSeq:   e.CommitteeSeq,
			TimestampUs:    e.Timestamp.UnixMicro(),
		})
	case *event.ClaimDenied:
		return json.Marshal(claimDeniedJSON{
			ClaimID:      e.ClaimID.String(),
			Reason:       e.Reason,
			CommitteeSeq: e.CommitteeSeq,
			TimestampUs:  e.Timestamp.UnixMicro(),
		})
	case *event.ClaimAppealed:
		return json.Marshal(claimAppealedJSON{
			ClaimID:     e.ClaimID.String(),
			MemberSeq:   e.MemberSeq,
			TimestampUs: e.Timestamp.UnixMicro(),
		})
	case *event.ClaimCancelled:
		return json.Marshal(claimCancelledJSON{
			ClaimID:     e.ClaimID.String(),
			MemberID:    e.MemberID.String(),
			MemberSeq:   e.MemberSeq,
			TimestampUs: e.Timestamp.UnixMicro(),
		})
	case *event.ClaimPaid:
		return json.Marshal(claimPaidJSON{
			ClaimID:     e.ClaimID.String(),
			PolicyYear:  e.PolicyYear,
			Month:       e.Month,
			PaySeq:      e.PaySeq,
			TimestampUs: e.Timestamp.UnixMicro(),
		})
	case *event.ClaimClosed:
		return json.Marshal(claimClosedJSON{
			ClaimID:     e.ClaimID.String(),
			CloseSeq:    e.CloseSeq,
			TimestampUs: e.Timestamp.UnixMicro(),
		})
	default:
		return nil, fmt.Errorf("unknown event type: %T", evt)
	}
}
