package solvency

import "math"

// Zone is the discrete solvency state derived from CAR. It is never set
// directly; only UpdateCar moves it.
type Zone int

const (
	ZoneGreen Zone = iota
	ZoneYellow
	ZoneOrange
	ZoneRed
)

func (z Zone) String() string {
	switch z {
	case ZoneGreen:
		return "GREEN"
	case ZoneYellow:
		return "YELLOW"
	case ZoneOrange:
		return "ORANGE"
	case ZoneRed:
		return "RED"
	default:
		return "UNKNOWN"
	}
}

// CAR thresholds in bps, inclusive lower bounds.
const (
	GreenThresholdBps  int64 = 15_000
	YellowThresholdBps int64 = 12_500
	OrangeThresholdBps int64 = 10_000
)

// UnlimitedEnrollment marks a zone with no monthly cap.
const UnlimitedEnrollment int64 = math.MaxInt64

// ApprovalTier is the governance weight behind a shock factor change.
type ApprovalTier int

const (
	ApprovalAutomatic ApprovalTier = iota
	ApprovalCommittee
	ApprovalEmergency
)

func (a ApprovalTier) String() string {
	switch a {
	case ApprovalAutomatic:
		return "AUTOMATIC"
	case ApprovalCommittee:
		return "COMMITTEE"
	case ApprovalEmergency:
		return "EMERGENCY"
	default:
		return "UNKNOWN"
	}
}

// Shock factor ceilings per approval tier, global bound 2.0x.
const (
	MinShockFactorBps       int64 = 10_000
	AutomaticShockCeiling   int64 = 12_000
	CommitteeShockCeiling   int64 = 15_000
	EmergencyShockCeiling   int64 = 20_000
	GreenOverrideShockBps   int64 = 12_500
)

// zonePolicy is the per-zone limit table. Lookup tables, not conditionals,
// so policy changes touch one place.
type zonePolicy struct {
	enrollmentCap   int64
	shockCeilingBps int64
}

var zonePolicies = map[Zone]zonePolicy{
	ZoneGreen:  {enrollmentCap: UnlimitedEnrollment, shockCeilingBps: GreenOverrideShockBps},
	ZoneYellow: {enrollmentCap: 500, shockCeilingBps: AutomaticShockCeiling},
	ZoneOrange: {enrollmentCap: 100, shockCeilingBps: CommitteeShockCeiling},
	ZoneRed:    {enrollmentCap: 0, shockCeilingBps: EmergencyShockCeiling},
}

// approvalCeilings caps a shock factor by the governance weight behind it,
// independent of zone.
var approvalCeilings = map[ApprovalTier]int64{
	ApprovalAutomatic: AutomaticShockCeiling,
	ApprovalCommittee: CommitteeShockCeiling,
	ApprovalEmergency: EmergencyShockCeiling,
}

// ZoneFor maps a CAR reading to its zone.
func ZoneFor(carBps int64) Zone {
	switch {
	case carBps >= GreenThresholdBps:
		return ZoneGreen
	case carBps >= YellowThresholdBps:
		return ZoneYellow
	case carBps >= OrangeThresholdBps:
		return ZoneOrange
	default:
		return ZoneRed
	}
}

// EnrollmentCapFor returns the monthly enrollment cap for a zone.
func EnrollmentCapFor(zone Zone) int64 {
	return zonePolicies[zone].enrollmentCap
}

// ShockCeilingFor returns the zone's shock factor ceiling in bps.
func ShockCeilingFor(zone Zone) int64 {
	return zonePolicies[zone].shockCeilingBps
}
