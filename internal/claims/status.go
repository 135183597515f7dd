package claims

// Status is the claim lifecycle state. Transitions run strictly forward
// except Denied -> Appealed (bounded re-review) and the member-only
// cancellation of a not-yet-approved claim.
type Status int

const (
	StatusSubmitted Status = iota
	StatusUnderReview
	StatusPendingAttestation
	StatusApproved
	StatusPartiallyApproved
	StatusDenied
	StatusAppealed
	StatusPaid
	StatusCancelled
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusSubmitted:
		return "SUBMITTED"
	case StatusUnderReview:
		return "UNDER_REVIEW"
	case StatusPendingAttestation:
		return "PENDING_ATTESTATION"
	case StatusApproved:
		return "APPROVED"
	case StatusPartiallyApproved:
		return "PARTIALLY_APPROVED"
	case StatusDenied:
		return "DENIED"
	case StatusAppealed:
		return "APPEALED"
	case StatusPaid:
		return "PAID"
	case StatusCancelled:
		return "CANCELLED"
	case StatusClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// CanTransitionTo reports whether the state machine permits a move.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusSubmitted:
		return next == StatusUnderReview || next == StatusApproved ||
			next == StatusPendingAttestation || next == StatusCancelled
	case StatusUnderReview:
		return next == StatusPendingAttestation || next == StatusApproved ||
			next == StatusDenied || next == StatusCancelled
	case StatusPendingAttestation:
		return next == StatusApproved || next == StatusPartiallyApproved ||
			next == StatusDenied
	case StatusApproved, StatusPartiallyApproved:
		return next == StatusPaid
	case StatusDenied:
		return next == StatusAppealed || next == StatusClosed
	case StatusAppealed:
		return next == StatusUnderReview
	case StatusPaid:
		return next == StatusClosed
	default:
		return false
	}
}

// IsTerminal reports whether no further transitions are possible. A denied
// claim is only terminal once its appeals are spent, which the engine checks
// separately.
func (s Status) IsTerminal() bool {
	return s == StatusClosed || s == StatusCancelled
}

// Category classifies the care a claim covers.
type Category int

const (
	CategoryPrimaryCare Category = iota
	CategoryPreventive
	CategoryLaboratory
	CategoryPrescription
	CategorySpecialistVisit
	CategoryEmergencyRoom
	CategoryUrgentCare
	CategoryImaging
	CategorySurgery
	CategoryHospitalization
	CategoryMaternity
	CategoryMentalHealth
	CategoryPhysicalTherapy
	CategoryDurableMedical
	CategoryOther
)

func (c Category) String() string {
	switch c {
	case CategoryPrimaryCare:
		return "PRIMARY_CARE"
	case CategoryPreventive:
		return "PREVENTIVE"
	case CategoryLaboratory:
		return "LABORATORY"
	case CategoryPrescription:
		return "PRESCRIPTION"
	case CategorySpecialistVisit:
		return "SPECIALIST_VISIT"
	case CategoryEmergencyRoom:
		return "EMERGENCY_ROOM"
	case CategoryUrgentCare:
		return "URGENT_CARE"
	case CategoryImaging:
		return "IMAGING"
	case CategorySurgery:
		return "SURGERY"
	case CategoryHospitalization:
		return "HOSPITALIZATION"
	case CategoryMaternity:
		return "MATERNITY"
	case CategoryMentalHealth:
		return "MENTAL_HEALTH"
	case CategoryPhysicalTherapy:
		return "PHYSICAL_THERAPY"
	case CategoryDurableMedical:
		return "DURABLE_MEDICAL"
	case CategoryOther:
		return "OTHER"
	default:
		return "UNKNOWN"
	}
}

// Lane is the triage tier a claim was routed into at submission.
type Lane int

const (
	LaneFast Lane = iota
	LaneAiAssisted
	LaneCommittee
)

func (l Lane) String() string {
	switch l {
	case LaneFast:
		return "FAST"
	case LaneAiAssisted:
		return "AI_ASSISTED"
	case LaneCommittee:
		return "COMMITTEE"
	default:
		return "UNKNOWN"
	}
}
