package ingestion_test

import (
	"testing"
	"time"

	"CareLedger/internal/event"
	"CareLedger/internal/ingestion"

	"github.com/google/uuid"
)

// Stored payloads are re-parsed through ParseRawEvent during replay, so
// MarshalEvent must be its exact inverse.

func reparse(t *testing.T, evt event.Event) event.Event {
	t.Helper()

	data, err := ingestion.MarshalEvent(evt)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	raw := ingestion.RawEvent{
		Subject:   "replay",
		Data:      data,
		Timestamp: time.Now(),
		AckFunc:   func() {},
		NakFunc:   func() {},
	}

	out, err := ingestion.ParseRawEvent(raw, evt.EventType().String())
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	return out
}

func TestMarshalEvent_ContributionRoundTrip(t *testing.T) {
	in := &event.ContributionReceived{
		PaymentID:   uuid.New(),
		MemberID:    uuid.New(),
		Amount:      450_000_000,
		PaySequence: 17,
		Timestamp:   time.UnixMicro(1_700_000_000_123_456).UTC(),
	}

	got, ok := reparse(t, in).(*event.ContributionReceived)
	if !ok {
		t.Fatalf("wrong type after reparse")
	}

	if got.PaymentID != in.PaymentID || got.MemberID != in.MemberID {
		t.Errorf("identity fields changed across round trip")
	}
	if got.Amount != in.Amount || got.PaySequence != in.PaySequence {
		t.Errorf("amount/sequence changed: got %d/%d", got.Amount, got.PaySequence)
	}
	if !got.Timestamp.Equal(in.Timestamp) {
		t.Errorf("timestamp: got %v, want %v", got.Timestamp, in.Timestamp)
	}
	if got.IdempotencyKey() != in.IdempotencyKey() {
		t.Errorf("idempotency key changed across round trip")
	}
}

func TestMarshalEvent_ClaimSubmittedRoundTrip(t *testing.T) {
	in := &event.ClaimSubmitted{
		ClaimID:     uuid.New(),
		MemberID:    uuid.New(),
		Amount:      2_500_000_000,
		Category:    3,
		ServiceDate: time.UnixMicro(1_699_000_000_000_000).UTC(),
		SubmitSeq:   9,
		Timestamp:   time.UnixMicro(1_700_000_000_000_000).UTC(),
	}

	got, ok := reparse(t, in).(*event.ClaimSubmitted)
	if !ok {
		t.Fatalf("wrong type after reparse")
	}

	if got.ClaimID != in.ClaimID || got.Category != in.Category {
		t.Errorf("claim identity changed across round trip")
	}
	if !got.ServiceDate.Equal(in.ServiceDate) {
		t.Errorf("service date: got %v, want %v", got.ServiceDate, in.ServiceDate)
	}
}

func TestMarshalEvent_GovernanceUpdateRoundTrip(t *testing.T) {
	in := &event.GovernanceUpdate{
		ProposalID:    uuid.New(),
		ConfigKind:    "treaty",
		ConfigVersion: 4,
		Payload:       []byte("specific_attachment_usdc: 100000000000\n"),
		GovernanceSeq: 12,
		Timestamp:     time.UnixMicro(1_700_000_500_000_000).UTC(),
	}

	got, ok := reparse(t, in).(*event.GovernanceUpdate)
	if !ok {
		t.Fatalf("wrong type after reparse")
	}

	if got.ConfigKind != in.ConfigKind || got.ConfigVersion != in.ConfigVersion {
		t.Errorf("config kind/version changed across round trip")
	}
	if string(got.Payload) != string(in.Payload) {
		t.Errorf("yaml payload changed: got %q", got.Payload)
	}
}

func TestMarshalEvent_AttestationExpiredRoundTrip(t *testing.T) {
	in := &event.AttestationExpired{
		ClaimID:      uuid.New(),
		SchedulerSeq: 3,
		Timestamp:    time.UnixMicro(1_700_001_000_000_000).UTC(),
	}

	got, ok := reparse(t, in).(*event.AttestationExpired)
	if !ok {
		t.Fatalf("wrong type after reparse")
	}
	if got.ClaimID != in.ClaimID || got.SchedulerSeq != in.SchedulerSeq {
		t.Errorf("fields changed across round trip")
	}
	if got.IdempotencyKey() != in.IdempotencyKey() {
		t.Errorf("idempotency key changed across round trip")
	}
}
