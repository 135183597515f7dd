package ingestion_test

import (
	"testing"
	"time"

	"CareLedger/internal/event"
	"CareLedger/internal/ingestion"

	json "github.com/goccy/go-json"
)

func rawFromJSON(t *testing.T, v interface{}) ingestion.RawEvent {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return ingestion.RawEvent{
		Subject:   "test",
		Data:      data,
		Timestamp: time.Now(),
		AckFunc:   func() {},
		NakFunc:   func() {},
	}
}

func TestParseContributionReceived(t *testing.T) {
	payload := map[string]interface{}{
		"payment_id":   "550e8400-e29b-41d4-a716-446655440000",
		"member_id":    "660e8400-e29b-41d4-a716-446655440001",
		"amount":       int64(450_000_000),
		"pay_sequence": int64(42),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "ContributionReceived")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	cr, ok := evt.(*event.ContributionReceived)
	if !ok {
		t.Fatalf("expected *event.ContributionReceived, got %T", evt)
	}

	if cr.Amount != 450_000_000 {
		t.Errorf("amount: got %d, want 450_000_000", cr.Amount)
	}
	if cr.PaySequence != 42 {
		t.Errorf("pay_sequence: got %d, want 42", cr.PaySequence)
	}
	if cr.EventType() != event.EventTypeContributionReceived {
		t.Errorf("event type: got %v, want ContributionReceived", cr.EventType())
	}
	if cr.IdempotencyKey() != "550e8400-e29b-41d4-a716-446655440000" {
		t.Errorf("idempotency key: got %s", cr.IdempotencyKey())
	}
}

func TestParseTierDeposit(t *testing.T) {
	payload := map[string]interface{}{
		"deposit_id":   "550e8400-e29b-41d4-a716-446655440000",
		"tier":         int32(1),
		"amount":       int64(5_000_000_000),
		"treasury_seq": int64(7),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "TierDeposit")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	td, ok := evt.(*event.TierDeposit)
	if !ok {
		t.Fatalf("expected *event.TierDeposit, got %T", evt)
	}

	if td.Tier != event.ReserveTier1 {
		t.Errorf("tier: got %d, want ReserveTier1", td.Tier)
	}
	if td.Amount != 5_000_000_000 {
		t.Errorf("amount: got %d, want 5_000_000_000", td.Amount)
	}
}

func TestParseTierDeposit_TierOutOfRange_Fails(t *testing.T) {
	payload := map[string]interface{}{
		"deposit_id":   "550e8400-e29b-41d4-a716-446655440000",
		"tier":         int32(3),
		"amount":       int64(1),
		"treasury_seq": int64(0),
		"timestamp_us": int64(0),
	}

	raw := rawFromJSON(t, payload)
	if _, err := ingestion.ParseRawEvent(raw, "TierDeposit"); err == nil {
		t.Fatal("expected error for tier out of range")
	}
}

func TestParseCollateralReport(t *testing.T) {
	payload := map[string]interface{}{
		"report_id":                "550e8400-e29b-41d4-a716-446655440000",
		"eligible_collateral_usdc": int64(58_000_000_000),
		"expected_annual_claims":   int64(100_000_000_000),
		"staking_seq":              int64(12),
		"timestamp_us":             int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "CollateralReport")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	cr, ok := evt.(*event.CollateralReport)
	if !ok {
		t.Fatalf("expected *event.CollateralReport, got %T", evt)
	}

	if cr.EligibleCollateralUsdc != 58_000_000_000 {
		t.Errorf("eligible_collateral_usdc: got %d", cr.EligibleCollateralUsdc)
	}
	if cr.StakingSeq != 12 {
		t.Errorf("staking_seq: got %d, want 12", cr.StakingSeq)
	}
}

func TestParseClaimSubmitted(t *testing.T) {
	payload := map[string]interface{}{
		"claim_id":        "550e8400-e29b-41d4-a716-446655440000",
		"member_id":       "660e8400-e29b-41d4-a716-446655440001",
		"amount":          int64(200_000_000),
		"category":        int32(1),
		"service_date_us": int64(1699900000000000),
		"submit_seq":      int64(3),
		"timestamp_us":    int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "ClaimSubmitted")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	cs, ok := evt.(*event.ClaimSubmitted)
	if !ok {
		t.Fatalf("expected *event.ClaimSubmitted, got %T", evt)
	}

	if cs.Amount != 200_000_000 {
		t.Errorf("amount: got %d, want 200_000_000", cs.Amount)
	}
	if cs.Category != 1 {
		t.Errorf("category: got %d, want 1", cs.Category)
	}
	if !cs.ServiceDate.Equal(time.UnixMicro(1699900000000000)) {
		t.Errorf("service_date: got %v", cs.ServiceDate)
	}
}

func TestParseAiDecisionRecorded(t *testing.T) {
	payload := map[string]interface{}{
		"claim_id":        "550e8400-e29b-41d4-a716-446655440000",
		"confidence_bps":  int64(9_200),
		"fraud_score_bps": int64(300),
		"price_score_bps": int64(8_500),
		"recommendation":  int32(1),
		"model_version":   "triage-v4",
		"signer":          "770e8400-e29b-41d4-a716-446655440002",
		"oracle_seq":      int64(9),
		"timestamp_us":    int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "AiDecisionRecorded")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	ai, ok := evt.(*event.AiDecisionRecorded)
	if !ok {
		t.Fatalf("expected *event.AiDecisionRecorded, got %T", evt)
	}

	if ai.ConfidenceBps != 9_200 {
		t.Errorf("confidence_bps: got %d, want 9_200", ai.ConfidenceBps)
	}
	if ai.ModelVersion != "triage-v4" {
		t.Errorf("model_version: got %s, want triage-v4", ai.ModelVersion)
	}
	if ai.IdempotencyKey() != "550e8400-e29b-41d4-a716-446655440000:ai" {
		t.Errorf("idempotency key: got %s", ai.IdempotencyKey())
	}
}

func TestParseGovernanceUpdate(t *testing.T) {
	payload := map[string]interface{}{
		"proposal_id":    "550e8400-e29b-41d4-a716-446655440000",
		"config_kind":    "treaty",
		"config_version": int64(2),
		"payload":        "specific_attachment_usdc: 50000000000\n",
		"governance_seq": int64(4),
		"timestamp_us":   int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "GovernanceUpdate")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	gu, ok := evt.(*event.GovernanceUpdate)
	if !ok {
		t.Fatalf("expected *event.GovernanceUpdate, got %T", evt)
	}

	if gu.ConfigKind != "treaty" {
		t.Errorf("config_kind: got %s, want treaty", gu.ConfigKind)
	}
	if string(gu.Payload) != "specific_attachment_usdc: 50000000000\n" {
		t.Errorf("payload: got %q", gu.Payload)
	}
}

func TestParseGovernanceUpdate_MissingKind_Fails(t *testing.T) {
	payload := map[string]interface{}{
		"proposal_id":    "550e8400-e29b-41d4-a716-446655440000",
		"config_version": int64(2),
		"payload":        "x: 1\n",
		"governance_seq": int64(4),
		"timestamp_us":   int64(0),
	}

	raw := rawFromJSON(t, payload)
	if _, err := ingestion.ParseRawEvent(raw, "GovernanceUpdate"); err == nil {
		t.Fatal("expected error for missing config_kind")
	}
}

func TestParseClaimPaid_MonthOutOfRange_Fails(t *testing.T) {
	payload := map[string]interface{}{
		"claim_id":     "550e8400-e29b-41d4-a716-446655440000",
		"policy_year":  2026,
		"month":        13,
		"pay_seq":      int64(0),
		"timestamp_us": int64(0),
	}

	raw := rawFromJSON(t, payload)
	if _, err := ingestion.ParseRawEvent(raw, "ClaimPaid"); err == nil {
		t.Fatal("expected error for month out of range")
	}
}

func TestParseUnknownEventType_Fails(t *testing.T) {
	raw := ingestion.RawEvent{Data: []byte(`{}`)}
	_, err := ingestion.ParseRawEvent(raw, "NonExistentType")
	if err == nil {
		t.Fatal("expected error for unknown event type")
	}
}

func TestParseInvalidJSON_Fails(t *testing.T) {
	raw := ingestion.RawEvent{Data: []byte(`{invalid json`)}
	_, err := ingestion.ParseRawEvent(raw, "ContributionReceived")
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestParseInvalidUUID_Fails(t *testing.T) {
	payload := map[string]interface{}{
		"payment_id":   "not-a-uuid",
		"member_id":    "also-not-a-uuid",
		"amount":       int64(1),
		"pay_sequence": int64(0),
		"timestamp_us": int64(0),
	}

	raw := rawFromJSON(t, payload)
	_, err := ingestion.ParseRawEvent(raw, "ContributionReceived")
	if err == nil {
		t.Fatal("expected error for invalid UUID")
	}
}
