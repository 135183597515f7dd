package projection

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultHistoryCapacity = 65536

// HistoryEntry records one claim status transition.
type HistoryEntry struct {
	ClaimID   uuid.UUID
	MemberID  uuid.UUID
	EventType string
	Status    string
	Amount    int64
	Sequence  int64
	Timestamp time.Time
}

// ClaimHistory maintains a bounded in-memory feed of recent claim status
// transitions for member-facing queries. Older entries age out; the full
// history lives in the event log.
type ClaimHistory struct {
	mu       sync.RWMutex
	entries  []HistoryEntry
	capacity int
}

func NewClaimHistory(capacity int) *ClaimHistory {
	return &ClaimHistory{
		entries:  make([]HistoryEntry, 0, capacity),
		capacity: capacity,
	}
}

// Add records a status transition, evicting the oldest half when full.
func (h *ClaimHistory) Add(entry HistoryEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.entries) >= h.capacity {
		half := h.capacity / 2
		copy(h.entries, h.entries[half:])
		h.entries = h.entries[:len(h.entries)-half]
	}
	h.entries = append(h.entries, entry)
}

// QueryByMember returns the most recent transitions for a member, newest first.
func (h *ClaimHistory) QueryByMember(memberID uuid.UUID, limit int) []HistoryEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()

	result := make([]HistoryEntry, 0)

	for i := len(h.entries) - 1; i >= 0 && len(result) < limit; i-- {
		if h.entries[i].MemberID == memberID {
			result = append(result, h.entries[i])
		}
	}

	return result
}

// QueryByClaim returns the most recent transitions for a claim, newest first.
func (h *ClaimHistory) QueryByClaim(claimID uuid.UUID, limit int) []HistoryEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()

	result := make([]HistoryEntry, 0)

	for i := len(h.entries) - 1; i >= 0 && len(result) < limit; i-- {
		if h.entries[i].ClaimID == claimID {
			result = append(result, h.entries[i])
		}
	}

	return result
}
