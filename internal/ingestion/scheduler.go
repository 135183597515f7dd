package ingestion

import (
	"context"
	"time"

	"CareLedger/internal/event"

	"github.com/google/uuid"
)

// OverdueLister reports claims whose attestation window has lapsed.
// Implemented by the query layer against the claims projection.
type OverdueLister interface {
	ListOverdueAttestations(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error)
}

// ExpiryScheduler is the host-side scheduler substrate: it sweeps for claims
// stuck past their attestation SLA and injects AttestationExpired events.
// It owns the "scheduler" partition counter, so injected events carry its own
// monotonic sequence; the counter must be seeded from the core's expected
// sequence before the first sweep.
type ExpiryScheduler struct {
	lister    OverdueLister
	eventChan chan<- event.Event
	maxAge    time.Duration
	interval  time.Duration
	nextSeq   int64
}

func NewExpiryScheduler(
	lister OverdueLister,
	eventChan chan<- event.Event,
	maxAge, interval time.Duration,
	startSeq int64,
) *ExpiryScheduler {
	return &ExpiryScheduler{
		lister:    lister,
		eventChan: eventChan,
		maxAge:    maxAge,
		interval:  interval,
		nextSeq:   startSeq,
	}
}

// Run sweeps on a fixed interval until the context is cancelled.
func (s *ExpiryScheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.sweep(ctx); err != nil {
				logger.Warn().Err(err).Msg("attestation expiry sweep")
			}
		}
	}
}

func (s *ExpiryScheduler) sweep(ctx context.Context) error {
	now := time.Now().UTC()
	cutoff := now.Add(-s.maxAge)

	overdue, err := s.lister.ListOverdueAttestations(ctx, cutoff)
	if err != nil {
		return err
	}

	for _, claimID := range overdue {
		evt := &event.AttestationExpired{
			ClaimID:      claimID,
			SchedulerSeq: s.nextSeq,
			Timestamp:    now,
		}

		select {
		case s.eventChan <- evt:
			s.nextSeq++
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if len(overdue) > 0 {
		logger.Info().Int("events", len(overdue)).Msg("expiry sweep injected AttestationExpired events")
	}
	return nil
}
