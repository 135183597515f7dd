package solvency

import (
	"errors"
	"time"

	"CareLedger/internal/bpsmath"
)

var (
	ErrInvalidShockFactor          = errors.New("invalid shock factor")
	ErrShockFactorExceedsZoneLimit = errors.New("shock factor exceeds zone limit")
	ErrEnrollmentFrozen            = errors.New("enrollment frozen")
	ErrMonthlyCapReached           = errors.New("monthly enrollment cap reached")
)

// CarState is the capital adequacy reading at a point in time.
type CarState struct {
	CurrentCarBps          int64
	TotalUsdcReserves      int64
	EligibleCollateralUsdc int64
	ExpectedAnnualClaims   int64
	LastUpdate             time.Time
}

// ZoneState carries the policy limits derived from the current zone.
type ZoneState struct {
	Zone                    Zone
	MonthlyEnrollmentCap    int64
	CurrentMonthEnrollments int64
	ShockFactorCeilingBps   int64
	EnrollmentFrozen        bool
}

// Snapshot is the point-in-time dependency view fed into UpdateCar. The
// monitor never holds live references to the reserve ledger or staking
// system; callers assemble a snapshot per update cycle.
type Snapshot struct {
	Reserves             int64
	Collateral           int64
	ExpectedAnnualClaims int64
	Now                  time.Time
}

// ComputeCar returns the capital adequacy ratio in bps.
// Zero expected claims is the bootstrap state: CAR saturates to the maximum
// and the pool reads Green with unlimited enrollment. This is deliberate
// policy, not a divide-by-zero guard.
func ComputeCar(reserves, collateral, expectedAnnualClaims int64) int64 {
	return bpsmath.RatioBps(bpsmath.SatAdd(reserves, collateral), expectedAnnualClaims)
}

// Monitor tracks CAR, the derived zone, and the enrollment window.
type Monitor struct {
	car              CarState
	zone             ZoneState
	shockFactorBps   int64
	lastEnrollmentAt time.Time
}

func NewMonitor() *Monitor {
	return &Monitor{
		car: CarState{},
		zone: ZoneState{
			Zone:                  ZoneGreen,
			MonthlyEnrollmentCap:  EnrollmentCapFor(ZoneGreen),
			ShockFactorCeilingBps: ShockCeilingFor(ZoneGreen),
		},
		shockFactorBps: MinShockFactorBps,
	}
}

// UpdateCar recomputes CAR and the zone from a dependency snapshot.
// Pure over its inputs: identical snapshots always produce identical states.
// Entering Red freezes enrollment and resets the month counter; leaving Red
// unfreezes.
func (m *Monitor) UpdateCar(snap Snapshot) (CarState, ZoneState) {
	carBps := ComputeCar(snap.Reserves, snap.Collateral, snap.ExpectedAnnualClaims)
	newZone := ZoneFor(carBps)

	m.car = CarState{
		CurrentCarBps:          carBps,
		TotalUsdcReserves:      snap.Reserves,
		EligibleCollateralUsdc: snap.Collateral,
		ExpectedAnnualClaims:   snap.ExpectedAnnualClaims,
		LastUpdate:             snap.Now,
	}

	if newZone != m.zone.Zone {
		if newZone == ZoneRed {
			m.zone.EnrollmentFrozen = true
			m.zone.CurrentMonthEnrollments = 0
		} else if m.zone.Zone == ZoneRed {
			m.zone.EnrollmentFrozen = false
		}
		m.zone.Zone = newZone
		m.zone.MonthlyEnrollmentCap = EnrollmentCapFor(newZone)
		m.zone.ShockFactorCeilingBps = ShockCeilingFor(newZone)
	}

	return m.car, m.zone
}

// RecordEnrollment counts one enrollment against the current month's cap.
// The month window rolls on calendar month of the supplied timestamp.
func (m *Monitor) RecordEnrollment(now time.Time) error {
	if m.zone.EnrollmentFrozen || m.zone.Zone == ZoneRed {
		return ErrEnrollmentFrozen
	}

	if !m.lastEnrollmentAt.IsZero() && !sameMonth(m.lastEnrollmentAt, now) {
		m.zone.CurrentMonthEnrollments = 0
	}

	if m.zone.MonthlyEnrollmentCap != UnlimitedEnrollment &&
		m.zone.CurrentMonthEnrollments >= m.zone.MonthlyEnrollmentCap {
		return ErrMonthlyCapReached
	}

	m.zone.CurrentMonthEnrollments++
	m.lastEnrollmentAt = now
	return nil
}

// SetShockFactor applies a new global shock multiplier. The effective ceiling
// is the lower of the zone ceiling and the approval tier's ceiling; the
// global bounds [10000, 20000] always apply.
func (m *Monitor) SetShockFactor(v int64, approval ApprovalTier) error {
	if v < MinShockFactorBps || v > EmergencyShockCeiling {
		return ErrInvalidShockFactor
	}

	ceiling := m.zone.ShockFactorCeilingBps
	if tierCeiling, ok := approvalCeilings[approval]; ok && tierCeiling < ceiling {
		ceiling = tierCeiling
	}
	if v > ceiling {
		return ErrShockFactorExceedsZoneLimit
	}

	m.shockFactorBps = v
	return nil
}

// ShockFactorBps returns the active global shock multiplier.
func (m *Monitor) ShockFactorBps() int64 {
	return m.shockFactorBps
}

// CarStatus is the read-only view served to external callers.
type CarStatus struct {
	CarBps               int64
	Zone                 Zone
	MonthlyEnrollmentCap int64
	EnrollmentsRemaining int64
	ShockFactorBps       int64
}

func (m *Monitor) Status() CarStatus {
	remaining := int64(0)
	if m.zone.MonthlyEnrollmentCap == UnlimitedEnrollment {
		remaining = UnlimitedEnrollment
	} else if m.zone.MonthlyEnrollmentCap > m.zone.CurrentMonthEnrollments {
		remaining = m.zone.MonthlyEnrollmentCap - m.zone.CurrentMonthEnrollments
	}
	return CarStatus{
		CarBps:               m.car.CurrentCarBps,
		Zone:                 m.zone.Zone,
		MonthlyEnrollmentCap: m.zone.MonthlyEnrollmentCap,
		EnrollmentsRemaining: remaining,
		ShockFactorBps:       m.shockFactorBps,
	}
}

// CarState returns a copy of the latest CAR reading.
func (m *Monitor) CarState() CarState {
	return m.car
}

// ZoneState returns a copy of the current zone policy state.
func (m *Monitor) ZoneState() ZoneState {
	return m.zone
}

// RestoreState reinstates monitor state from a snapshot record.
func (m *Monitor) RestoreState(car CarState, zone ZoneState, shockFactorBps int64) {
	m.car = car
	m.zone = zone
	m.shockFactorBps = shockFactorBps
}

func sameMonth(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month()
}
