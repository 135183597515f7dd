package ingestion

import (
	"context"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/nats-io/nats.go/jetstream"
)

// OutboundPublisher publishes processed events to NATS for downstream
// consumers (payout rails, dashboards, the staking system). Outbound events
// are published after persistence is confirmed.
// Subjects follow the pattern: care.ledger.events.{event_type}
type OutboundPublisher struct {
	js        jetstream.JetStream
	inputChan <-chan PublishableEvent
}

// PublishableEvent is a processed event ready for outbound publishing.
type PublishableEvent struct {
	Sequence       int64       `json:"sequence"`
	EventType      string      `json:"event_type"`
	IdempotencyKey string      `json:"idempotency_key"`
	EntityID       *string     `json:"entity_id,omitempty"`
	Payload        interface{} `json:"payload"`
	StateHash      []byte      `json:"state_hash"`
	Timestamp      time.Time   `json:"timestamp"`
}

func NewOutboundPublisher(js jetstream.JetStream, inputChan <-chan PublishableEvent) *OutboundPublisher {
	return &OutboundPublisher{
		js:        js,
		inputChan: inputChan,
	}
}

// Run starts the outbound publisher loop.
func (op *OutboundPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case evt, ok := <-op.inputChan:
			if !ok {
				return nil
			}

			if err := op.publish(ctx, evt); err != nil {
				logger.Warn().Err(err).Int64("sequence", evt.Sequence).Msg("outbound publish failed")
				// Non-fatal: downstream consumers can query the event log directly
			}
		}
	}
}

func (op *OutboundPublisher) publish(ctx context.Context, evt PublishableEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	// Build subject: care.ledger.events.{event_type}.{entity_id}
	subject := fmt.Sprintf("care.ledger.events.%s", evt.EventType)
	if evt.EntityID != nil {
		subject = fmt.Sprintf("%s.%s", subject, *evt.EntityID)
	}

	_, err = op.js.Publish(ctx, subject, data)
	return err
}

// EnsureOutboundStream creates the outbound events stream.
func EnsureOutboundStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "CARE_LEDGER_EVENTS",
		Subjects:  []string{"care.ledger.events.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create outbound stream: %w", err)
	}
	logger.Info().Msg("ensured outbound stream CARE_LEDGER_EVENTS")
	return nil
}
