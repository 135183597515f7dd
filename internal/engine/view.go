package engine

import (
	"CareLedger/internal/rating"
	"CareLedger/internal/reinsurance"
	"CareLedger/internal/reserve"
	"CareLedger/internal/solvency"
)

// ServiceView is an immutable read snapshot of the core state. The
// orchestrator publishes a fresh view through an atomic pointer after each
// applied event; HTTP handlers only ever read published views, never the
// live core.
type ServiceView struct {
	Sequence       int64
	StateHash      [32]byte
	RatingTable    rating.RatingTable
	ShockFactorBps int64
	Reserves       reserve.State
	Solvency       solvency.CarStatus
	Treaty         reinsurance.Treaty
	PoolYtdClaims  int64
	OpenClaims     int
}

// BuildServiceView assembles a snapshot of the current state. Must be called
// from the core's processing goroutine.
func (c *DeterministicCore) BuildServiceView() *ServiceView {
	var poolYtd int64
	if !c.treaty.PolicyPeriodEnd.IsZero() {
		poolYtd = c.accumulators.PoolYtd(c.treaty.PolicyPeriodStart.Year())
	}

	return &ServiceView{
		Sequence:       c.sequence,
		StateHash:      c.hasher.GetPrevHash(),
		RatingTable:    c.ratingTable,
		ShockFactorBps: c.monitor.ShockFactorBps(),
		Reserves:       c.reserves.State(),
		Solvency:       c.monitor.Status(),
		Treaty:         c.treaty,
		PoolYtdClaims:  poolYtd,
		OpenClaims:     c.triage.OpenClaimCount(),
	}
}
