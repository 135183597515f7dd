package claims

import (
	"time"

	"github.com/google/uuid"
)

// FastLaneTracker counts one member's fast-lane usage inside a rolling
// period. A flagged tracker disqualifies the member from the lane until an
// operator clears it.
type FastLaneTracker struct {
	MemberID         uuid.UUID
	ClaimsThisPeriod int
	AmountThisPeriod int64
	PeriodStart      time.Time
	Flagged          bool
}

// periodExpired reports whether the rolling window has lapsed.
func (t *FastLaneTracker) periodExpired(cfg FastLaneConfig, now time.Time) bool {
	return now.Sub(t.PeriodStart) >= time.Duration(cfg.PeriodDays)*24*time.Hour
}

// CanUse reports whether the member has fast-lane headroom, rolling the
// window first if it expired.
func (t *FastLaneTracker) CanUse(cfg FastLaneConfig, amount int64, now time.Time) bool {
	if t.Flagged {
		return false
	}
	if t.periodExpired(cfg, now) {
		return true
	}
	if t.ClaimsThisPeriod >= cfg.MaxClaimsPerPeriod {
		return false
	}
	if cfg.MaxAmountPerPeriod > 0 && t.AmountThisPeriod+amount > cfg.MaxAmountPerPeriod {
		return false
	}
	return true
}

// Record counts one fast-lane approval against the window.
func (t *FastLaneTracker) Record(cfg FastLaneConfig, amount int64, now time.Time) {
	if t.periodExpired(cfg, now) {
		t.ClaimsThisPeriod = 0
		t.AmountThisPeriod = 0
		t.PeriodStart = now
	}
	if t.PeriodStart.IsZero() {
		t.PeriodStart = now
	}
	t.ClaimsThisPeriod++
	t.AmountThisPeriod += amount
}
