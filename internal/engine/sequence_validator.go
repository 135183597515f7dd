package engine

import (
	"fmt"
)

// SequenceValidator validates source sequences per partition. Each upstream
// substrate (payments, committee, oracle, staking, governance) keeps its own
// monotonic counter.
// Not thread-safe — only accessed from the single-threaded deterministic core.
type SequenceValidator struct {
	expectedNextSeq map[string]int64 // partition -> next expected sequence
	metrics         *SequenceMetrics
}

func NewSequenceValidator() *SequenceValidator {
	return &SequenceValidator{
		expectedNextSeq: make(map[string]int64),
		metrics:         NewSequenceMetrics(),
	}
}

// ValidateSequence checks source sequence ordering
func (sv *SequenceValidator) ValidateSequence(
	partition string,
	sourceSequence int64,
	idempotencyKey string,
	isDuplicate bool,
) error {
	expected := sv.expectedNextSeq[partition]

	if sourceSequence < expected {
		// Stale or duplicate
		if isDuplicate {
			// This is expected - already processed
			return nil
		}
		// Out-of-order delivery of NEW event
		sv.metrics.RecordOutOfOrder(partition)
		return fmt.Errorf("out-of-order event: partition=%s, expected=%d, got=%d",
			partition, expected, sourceSequence)
	}

	if sourceSequence == expected {
		// Normal case - advance sequence
		sv.expectedNextSeq[partition] = expected + 1
		return nil
	}

	// sourceSequence > expected - gap detected
	sv.metrics.RecordGap(partition, expected, sourceSequence)
	return fmt.Errorf("sequence gap: partition=%s, expected=%d, got=%d",
		partition, expected, sourceSequence)
}

// AcceptReport validates staking collateral reports. Reports are periodic
// snapshots, not a transaction stream: a stale one returns false and must be
// skipped, gaps are tolerated since the latest report supersedes anything
// missed.
func (sv *SequenceValidator) AcceptReport(reportSequence int64) bool {
	const partition = "staking"

	expected := sv.expectedNextSeq[partition]

	if reportSequence < expected {
		// Stale - superseded by a newer report
		return false
	}

	if reportSequence > expected+1 {
		// Gap detected - log warning but accept
		sv.metrics.RecordReportGap(expected, reportSequence)
	}

	// Update expected
	sv.expectedNextSeq[partition] = reportSequence + 1

	return true
}

// GetExpectedSequence returns next expected sequence for a partition
func (sv *SequenceValidator) GetExpectedSequence(partition string) int64 {
	return sv.expectedNextSeq[partition]
}

// SetExpectedSequence initializes expected sequence (used during recovery)
func (sv *SequenceValidator) SetExpectedSequence(partition string, seq int64) {
	sv.expectedNextSeq[partition] = seq
}

// GetAllPartitions returns a copy of all partition cursors for snapshotting.
func (sv *SequenceValidator) GetAllPartitions() map[string]int64 {
	out := make(map[string]int64, len(sv.expectedNextSeq))
	for partition, seq := range sv.expectedNextSeq {
		out[partition] = seq
	}
	return out
}

// --- Metrics ---

// SequenceMetrics tracks sequence validation stats.
// Not thread-safe — only accessed from the single-threaded deterministic core.
type SequenceMetrics struct {
	gaps       map[string]int64 // partition -> gap count
	outOfOrder map[string]int64 // partition -> out-of-order count
	reportGaps int64
}

func NewSequenceMetrics() *SequenceMetrics {
	return &SequenceMetrics{
		gaps:       make(map[string]int64),
		outOfOrder: make(map[string]int64),
	}
}

func (m *SequenceMetrics) RecordGap(partition string, expected, got int64) {
	m.gaps[partition]++
}

func (m *SequenceMetrics) RecordOutOfOrder(partition string) {
	m.outOfOrder[partition]++
}

func (m *SequenceMetrics) RecordReportGap(expected, got int64) {
	m.reportGaps++
}

func (m *SequenceMetrics) GetGaps(partition string) int64 {
	return m.gaps[partition]
}

func (m *SequenceMetrics) GetOutOfOrder(partition string) int64 {
	return m.outOfOrder[partition]
}

func (m *SequenceMetrics) GetReportGaps() int64 {
	return m.reportGaps
}
