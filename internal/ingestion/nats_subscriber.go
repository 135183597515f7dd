package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"CareLedger/internal/observability"
)

var logger = observability.NewLogger("ingestion")

// NATSSubscriber subscribes to NATS JetStream subjects and feeds events
// into the deterministic core via the eventChan. NATS is the primary
// high-throughput ingestion surface; each upstream substrate publishes to
// its own stream so sources scale independently.
type NATSSubscriber struct {
	js        jetstream.JetStream
	eventChan chan<- RawEvent
	consumers []jetstream.ConsumeContext
}

// RawEvent is the parsed-but-untyped event from NATS, ready for the shell
// to validate and convert into a typed event.Event before sending to the core.
type RawEvent struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
	AckFunc   func() // Call to ACK the NATS message after successful processing
	NakFunc   func() // Call to NAK on failure (will be redelivered)
}

// SubjectConfig maps NATS subjects to event types.
type SubjectConfig struct {
	Subject      string
	EventType    string
	ConsumerName string
	StreamName   string
}

// DefaultSubjects returns the standard subject configuration. One subject
// per event type, grouped into streams by originating substrate.
func DefaultSubjects() []SubjectConfig {
	return []SubjectConfig{
		{Subject: "care.payments.contribution.>", EventType: "ContributionReceived", ConsumerName: "ledger-contributions", StreamName: "CARE_PAYMENTS"},
		{Subject: "care.treasury.deposit.>", EventType: "TierDeposit", ConsumerName: "ledger-tier-deposits", StreamName: "CARE_TREASURY"},
		{Subject: "care.treasury.refill.>", EventType: "Tier0Refill", ConsumerName: "ledger-tier0-refills", StreamName: "CARE_TREASURY"},
		{Subject: "care.actuary.ibnr.>", EventType: "IbnrUpdate", ConsumerName: "ledger-ibnr", StreamName: "CARE_ACTUARY"},
		{Subject: "care.membership.enrollment.>", EventType: "EnrollmentRecorded", ConsumerName: "ledger-enrollments", StreamName: "CARE_MEMBERSHIP"},
		{Subject: "care.staking.report.>", EventType: "CollateralReport", ConsumerName: "ledger-collateral", StreamName: "CARE_STAKING"},
		{Subject: "care.governance.shock.>", EventType: "ShockFactorSet", ConsumerName: "ledger-shock", StreamName: "CARE_GOVERNANCE"},
		{Subject: "care.governance.config.>", EventType: "GovernanceUpdate", ConsumerName: "ledger-gov-config", StreamName: "CARE_GOVERNANCE"},
		{Subject: "care.claims.submitted.>", EventType: "ClaimSubmitted", ConsumerName: "ledger-claim-submit", StreamName: "CARE_CLAIMS"},
		{Subject: "care.claims.ai.>", EventType: "AiDecisionRecorded", ConsumerName: "ledger-claim-ai", StreamName: "CARE_CLAIMS"},
		{Subject: "care.claims.attested.>", EventType: "ClaimAttested", ConsumerName: "ledger-claim-attest", StreamName: "CARE_CLAIMS"},
		{Subject: "care.claims.expired.>", EventType: "AttestationExpired", ConsumerName: "ledger-claim-expire", StreamName: "CARE_CLAIMS"},
		{Subject: "care.claims.approved.>", EventType: "ClaimApproved", ConsumerName: "ledger-claim-approve", StreamName: "CARE_CLAIMS"},
		{Subject: "care.claims.denied.>", EventType: "ClaimDenied", ConsumerName: "ledger-claim-deny", StreamName: "CARE_CLAIMS"},
		{Subject: "care.claims.appealed.>", EventType: "ClaimAppealed", ConsumerName: "ledger-claim-appeal", StreamName: "CARE_CLAIMS"},
		{Subject: "care.claims.cancelled.>", EventType: "ClaimCancelled", ConsumerName: "ledger-claim-cancel", StreamName: "CARE_CLAIMS"},
		{Subject: "care.claims.paid.>", EventType: "ClaimPaid", ConsumerName: "ledger-claim-pay", StreamName: "CARE_CLAIMS"},
		{Subject: "care.claims.closed.>", EventType: "ClaimClosed", ConsumerName: "ledger-claim-close", StreamName: "CARE_CLAIMS"},
	}
}

func NewNATSSubscriber(js jetstream.JetStream, eventChan chan<- RawEvent) *NATSSubscriber {
	return &NATSSubscriber{
		js:        js,
		eventChan: eventChan,
	}
}

// Subscribe creates JetStream consumers for all configured subjects.
// Consumers use explicit ACK, max_deliver=5, ack_wait=30s.
func (ns *NATSSubscriber) Subscribe(ctx context.Context, subjects []SubjectConfig) error {
	for _, cfg := range subjects {
		consumer, err := ns.js.CreateOrUpdateConsumer(ctx, cfg.StreamName, jetstream.ConsumerConfig{
			Durable:       cfg.ConsumerName,
			FilterSubject: cfg.Subject,
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       30 * time.Second,
			MaxDeliver:    5,
			DeliverPolicy: jetstream.DeliverAllPolicy,
		})
		if err != nil {
			return fmt.Errorf("create consumer %s: %w", cfg.ConsumerName, err)
		}

		consumerContext, err := consumer.Consume(func(msg jetstream.Msg) {
			raw := RawEvent{
				Subject:   msg.Subject(),
				Data:      msg.Data(),
				Timestamp: time.Now(),
				AckFunc:   func() { msg.Ack() },
				NakFunc:   func() { msg.Nak() },
			}

			select {
			case ns.eventChan <- raw:
				// Successfully queued for processing
			case <-ctx.Done():
				msg.Nak()
			}
		})
		if err != nil {
			return fmt.Errorf("consume %s: %w", cfg.ConsumerName, err)
		}

		ns.consumers = append(ns.consumers, consumerContext)
		logger.Info().Str("subject", cfg.Subject).Str("consumer", cfg.ConsumerName).Msg("subscribed")
	}

	return nil
}

// EnsureStreams creates the required JetStream streams if they don't exist.
// Streams use FileStorage, retention=Limits, max_age=72h.
func EnsureStreams(ctx context.Context, js jetstream.JetStream) error {
	streams := []jetstream.StreamConfig{
		{
			Name:      "CARE_PAYMENTS",
			Subjects:  []string{"care.payments.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "CARE_TREASURY",
			Subjects:  []string{"care.treasury.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "CARE_ACTUARY",
			Subjects:  []string{"care.actuary.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "CARE_MEMBERSHIP",
			Subjects:  []string{"care.membership.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "CARE_STAKING",
			Subjects:  []string{"care.staking.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "CARE_GOVERNANCE",
			Subjects:  []string{"care.governance.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "CARE_CLAIMS",
			Subjects:  []string{"care.claims.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
	}

	for _, cfg := range streams {
		if _, err := js.CreateOrUpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("create stream %s: %w", cfg.Name, err)
		}
		logger.Info().Str("stream", cfg.Name).Msg("ensured stream")
	}

	return nil
}

// Stop gracefully stops all consumers.
func (ns *NATSSubscriber) Stop() {
	for _, cc := range ns.consumers {
		cc.Stop()
	}
	logger.Info().Msg("NATS subscribers stopped")
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info().Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
