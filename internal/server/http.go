package server

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	"CareLedger/internal/engine"
	"CareLedger/internal/observability"
	"CareLedger/internal/projection"
	"CareLedger/internal/query"
	"CareLedger/internal/rating"
)

var logger = observability.NewLogger("http")

// HTTPServer serves the read API. All domain state is read either from a
// published ServiceView (live core state) or from the projection tables via
// QueryService; handlers never touch the core directly.
type HTTPServer struct {
	addr          string
	view          *atomic.Pointer[engine.ServiceView]
	queryService  *query.QueryService
	history       *projection.ClaimHistory
	db            *sql.DB
	healthChecker *observability.HealthChecker
	server        *fasthttp.Server
}

// ServerDeps holds all dependencies needed by the HTTP handlers.
type ServerDeps struct {
	View          *atomic.Pointer[engine.ServiceView]
	QueryService  *query.QueryService
	History       *projection.ClaimHistory
	DB            *sql.DB
	HealthChecker *observability.HealthChecker
}

func NewHTTPServer(addr string, deps *ServerDeps) *HTTPServer {
	s := &HTTPServer{
		addr:          addr,
		view:          deps.View,
		queryService:  deps.QueryService,
		history:       deps.History,
		db:            deps.DB,
		healthChecker: deps.HealthChecker,
	}

	s.server = &fasthttp.Server{
		Handler:         s.route,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
		IdleTimeout:     60 * time.Second,
		CloseOnShutdown: true,
	}

	return s
}

// Start runs the HTTP server until ctx is cancelled (blocking).
func (s *HTTPServer) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		logger.Info().Msg("HTTP server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.ShutdownWithContext(shutdownCtx)
	}()

	logger.Info().Str("addr", s.addr).Msg("HTTP server listening")
	return s.server.ListenAndServe(s.addr)
}

func (s *HTTPServer) route(ctx *fasthttp.RequestCtx) {
	path := string(ctx.Path())

	switch {
	case path == "/v1/healthz":
		s.handleHealthz(ctx)
	case path == "/v1/readyz":
		s.handleReadyz(ctx)
	case path == "/v1/quote":
		s.handleQuote(ctx)
	case path == "/v1/solvency":
		s.handleSolvency(ctx)
	case path == "/v1/solvency/history":
		s.handleSolvencyHistory(ctx)
	case path == "/v1/reserves":
		s.handleReserves(ctx)
	case path == "/v1/reinsurance/recovery":
		s.handleRecovery(ctx)
	case path == "/v1/claims":
		s.handleListClaims(ctx)
	case strings.HasPrefix(path, "/v1/claims/") && strings.HasSuffix(path, "/history"):
		s.handleClaimHistory(ctx, strings.TrimSuffix(strings.TrimPrefix(path, "/v1/claims/"), "/history"))
	case strings.HasPrefix(path, "/v1/claims/"):
		s.handleGetClaim(ctx, strings.TrimPrefix(path, "/v1/claims/"))
	case strings.HasPrefix(path, "/v1/members/") && strings.HasSuffix(path, "/history"):
		s.handleMemberHistory(ctx, strings.TrimSuffix(strings.TrimPrefix(path, "/v1/members/"), "/history"))
	case path == "/v1/admin/integrity":
		s.handleVerifyIntegrity(ctx)
	case path == "/v1/admin/projections/rebuild":
		s.handleRebuildProjections(ctx)
	default:
		writeError(ctx, fasthttp.StatusNotFound, "not found")
	}
}

// --- live-state handlers (ServiceView) ---

type quoteResponse struct {
	ContributionAmount int64 `json:"contribution_amount"`
	RatingVersion      int64 `json:"rating_version"`
	ShockFactorBps     int64 `json:"shock_factor_bps"`
	AsOfSequence       int64 `json:"as_of_sequence"`
}

func (s *HTTPServer) handleQuote(ctx *fasthttp.RequestCtx) {
	view := s.view.Load()
	if view == nil {
		writeError(ctx, fasthttp.StatusServiceUnavailable, "state not ready")
		return
	}

	args := ctx.QueryArgs()

	age, err := strconv.Atoi(string(args.Peek("age")))
	if err != nil || age < 0 || age > 255 {
		writeError(ctx, fasthttp.StatusBadRequest, "age is required")
		return
	}

	dependents := 0
	if v := args.Peek("dependents"); len(v) > 0 {
		dependents, err = strconv.Atoi(string(v))
		if err != nil || dependents < 0 {
			writeError(ctx, fasthttp.StatusBadRequest, "invalid dependents")
			return
		}
	}

	in := rating.QuoteInput{
		Age:            uint8(age),
		TobaccoUser:    args.GetBool("tobacco"),
		RegionCode:     string(args.Peek("region")),
		DependentCount: dependents,
	}

	amount, err := rating.Quote(in, view.RatingTable, view.ShockFactorBps)
	if err != nil {
		writeError(ctx, fasthttp.StatusUnprocessableEntity, err.Error())
		return
	}

	writeJSON(ctx, fasthttp.StatusOK, quoteResponse{
		ContributionAmount: amount,
		RatingVersion:      view.RatingTable.Version,
		ShockFactorBps:     view.ShockFactorBps,
		AsOfSequence:       view.Sequence,
	})
}

type solvencyResponse struct {
	CarBps               int64  `json:"car_bps"`
	Zone                 string `json:"zone"`
	MonthlyEnrollmentCap int64  `json:"monthly_enrollment_cap"`
	EnrollmentsRemaining int64  `json:"enrollments_remaining"`
	ShockFactorBps       int64  `json:"shock_factor_bps"`
	OpenClaims           int    `json:"open_claims"`
	StateHash            string `json:"state_hash"`
	AsOfSequence         int64  `json:"as_of_sequence"`
}

func (s *HTTPServer) handleSolvency(ctx *fasthttp.RequestCtx) {
	view := s.view.Load()
	if view == nil {
		writeError(ctx, fasthttp.StatusServiceUnavailable, "state not ready")
		return
	}

	writeJSON(ctx, fasthttp.StatusOK, solvencyResponse{
		CarBps:               view.Solvency.CarBps,
		Zone:                 view.Solvency.Zone.String(),
		MonthlyEnrollmentCap: view.Solvency.MonthlyEnrollmentCap,
		EnrollmentsRemaining: view.Solvency.EnrollmentsRemaining,
		ShockFactorBps:       view.Solvency.ShockFactorBps,
		OpenClaims:           view.OpenClaims,
		StateHash:            fmt.Sprintf("%x", view.StateHash),
		AsOfSequence:         view.Sequence,
	})
}

type reservesResponse struct {
	Tier0Balance               int64 `json:"tier0_balance"`
	Tier1Balance               int64 `json:"tier1_balance"`
	Tier2Balance               int64 `json:"tier2_balance"`
	IbnrEstimate               int64 `json:"ibnr_estimate"`
	RunoffBalance              int64 `json:"runoff_balance"`
	TotalContributionsReceived int64 `json:"total_contributions_received"`
	TotalClaimsPaid            int64 `json:"total_claims_paid"`
	AsOfSequence               int64 `json:"as_of_sequence"`
}

func (s *HTTPServer) handleReserves(ctx *fasthttp.RequestCtx) {
	view := s.view.Load()
	if view == nil {
		writeError(ctx, fasthttp.StatusServiceUnavailable, "state not ready")
		return
	}

	writeJSON(ctx, fasthttp.StatusOK, reservesResponse{
		Tier0Balance:               view.Reserves.Tier0Balance,
		Tier1Balance:               view.Reserves.Tier1Balance,
		Tier2Balance:               view.Reserves.Tier2Balance,
		IbnrEstimate:               view.Reserves.IbnrEstimate,
		RunoffBalance:              view.Reserves.RunoffBalance,
		TotalContributionsReceived: view.Reserves.TotalContributionsReceived,
		TotalClaimsPaid:            view.Reserves.TotalClaimsPaid,
		AsOfSequence:               view.Sequence,
	})
}

type recoveryResponse struct {
	TreatyBound       bool  `json:"treaty_bound"`
	PoolYtdClaims     int64 `json:"pool_ytd_claims"`
	ClaimsRatioBps    int64 `json:"claims_ratio_bps"`
	AggregateRecovery int64 `json:"aggregate_recovery"`
	AsOfSequence      int64 `json:"as_of_sequence"`
}

func (s *HTTPServer) handleRecovery(ctx *fasthttp.RequestCtx) {
	view := s.view.Load()
	if view == nil {
		writeError(ctx, fasthttp.StatusServiceUnavailable, "state not ready")
		return
	}

	resp := recoveryResponse{AsOfSequence: view.Sequence}
	if !view.Treaty.PolicyPeriodEnd.IsZero() {
		resp.TreatyBound = true
		resp.PoolYtdClaims = view.PoolYtdClaims
		resp.ClaimsRatioBps = view.Treaty.ClaimsRatioBps(view.PoolYtdClaims)

		recovered, err := view.Treaty.AggregateRecovery(view.PoolYtdClaims)
		if err != nil {
			writeError(ctx, fasthttp.StatusInternalServerError, err.Error())
			return
		}
		resp.AggregateRecovery = recovered
	}

	writeJSON(ctx, fasthttp.StatusOK, resp)
}

// --- projection handlers (QueryService) ---

func (s *HTTPServer) handleGetClaim(ctx *fasthttp.RequestCtx, idStr string) {
	claimID, err := uuid.Parse(idStr)
	if err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, "invalid claim id")
		return
	}

	claim, err := s.queryService.GetClaim(ctx, claimID)
	if err != nil {
		writeError(ctx, fasthttp.StatusInternalServerError, err.Error())
		return
	}
	if claim == nil {
		writeError(ctx, fasthttp.StatusNotFound, "claim not found")
		return
	}

	writeJSON(ctx, fasthttp.StatusOK, claim)
}

func (s *HTTPServer) handleListClaims(ctx *fasthttp.RequestCtx) {
	args := ctx.QueryArgs()

	var filter query.ClaimFilter

	if v := args.Peek("member_id"); len(v) > 0 {
		memberID, err := uuid.Parse(string(v))
		if err != nil {
			writeError(ctx, fasthttp.StatusBadRequest, "invalid member_id")
			return
		}
		filter.MemberID = &memberID
	}

	if v := args.Peek("status"); len(v) > 0 {
		status := string(v)
		filter.Status = &status
	}

	if v := args.Peek("before"); len(v) > 0 {
		before, err := time.Parse(time.RFC3339, string(v))
		if err != nil {
			writeError(ctx, fasthttp.StatusBadRequest, "invalid before cursor")
			return
		}
		filter.BeforeSubmitted = &before
	}

	limit := parseLimit(args.Peek("limit"), 50, 200)

	claims, err := s.queryService.ListClaims(ctx, filter, limit)
	if err != nil {
		writeError(ctx, fasthttp.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(ctx, fasthttp.StatusOK, map[string]interface{}{
		"claims": claims,
	})
}

func (s *HTTPServer) handleSolvencyHistory(ctx *fasthttp.RequestCtx) {
	args := ctx.QueryArgs()

	limit := parseLimit(args.Peek("limit"), 100, 1000)

	var afterSeq *int64
	if v := args.Peek("after"); len(v) > 0 {
		seq, err := strconv.ParseInt(string(v), 10, 64)
		if err != nil {
			writeError(ctx, fasthttp.StatusBadRequest, "invalid after cursor")
			return
		}
		afterSeq = &seq
	}

	history, err := s.queryService.GetSolvencyHistory(ctx, limit, afterSeq)
	if err != nil {
		writeError(ctx, fasthttp.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(ctx, fasthttp.StatusOK, map[string]interface{}{
		"history": history,
	})
}

type historyEntryResponse struct {
	ClaimID   uuid.UUID `json:"claim_id"`
	MemberID  uuid.UUID `json:"member_id"`
	EventType string    `json:"event_type"`
	Status    string    `json:"status"`
	Amount    int64     `json:"amount"`
	Sequence  int64     `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *HTTPServer) handleClaimHistory(ctx *fasthttp.RequestCtx, idStr string) {
	claimID, err := uuid.Parse(idStr)
	if err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, "invalid claim id")
		return
	}

	limit := parseLimit(ctx.QueryArgs().Peek("limit"), 50, 200)
	entries := s.history.QueryByClaim(claimID, limit)
	writeJSON(ctx, fasthttp.StatusOK, map[string]interface{}{
		"entries": toHistoryResponse(entries),
	})
}

func (s *HTTPServer) handleMemberHistory(ctx *fasthttp.RequestCtx, idStr string) {
	memberID, err := uuid.Parse(idStr)
	if err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, "invalid member id")
		return
	}

	limit := parseLimit(ctx.QueryArgs().Peek("limit"), 50, 200)
	entries := s.history.QueryByMember(memberID, limit)
	writeJSON(ctx, fasthttp.StatusOK, map[string]interface{}{
		"entries": toHistoryResponse(entries),
	})
}

func toHistoryResponse(entries []projection.HistoryEntry) []historyEntryResponse {
	out := make([]historyEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, historyEntryResponse{
			ClaimID:   e.ClaimID,
			MemberID:  e.MemberID,
			EventType: e.EventType,
			Status:    e.Status,
			Amount:    e.Amount,
			Sequence:  e.Sequence,
			Timestamp: e.Timestamp,
		})
	}
	return out
}

// --- admin handlers ---

func (s *HTTPServer) handleVerifyIntegrity(ctx *fasthttp.RequestCtx) {
	report, err := s.queryService.VerifyIntegrity(ctx)
	if err != nil {
		writeError(ctx, fasthttp.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, report)
}

func (s *HTTPServer) handleRebuildProjections(ctx *fasthttp.RequestCtx) {
	if !ctx.IsPost() {
		writeError(ctx, fasthttp.StatusMethodNotAllowed, "POST required")
		return
	}

	if err := projection.RebuildProjections(ctx, s.db); err != nil {
		writeError(ctx, fasthttp.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, map[string]interface{}{
		"rebuilt": true,
	})
}

// --- health handlers ---

func (s *HTTPServer) handleHealthz(ctx *fasthttp.RequestCtx) {
	writeJSON(ctx, fasthttp.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReadyz(ctx *fasthttp.RequestCtx) {
	if s.healthChecker != nil && !s.healthChecker.IsReady() {
		writeError(ctx, fasthttp.StatusServiceUnavailable, "not ready")
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, map[string]string{"status": "ready"})
}

// --- helpers ---

func parseLimit(raw []byte, def, max int) int {
	if len(raw) == 0 {
		return def
	}
	n, err := strconv.Atoi(string(raw))
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, v interface{}) {
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	if err := json.NewEncoder(ctx).Encode(v); err != nil {
		logger.Warn().Err(err).Msg("encode response")
	}
}

func writeError(ctx *fasthttp.RequestCtx, status int, message string) {
	writeJSON(ctx, status, map[string]interface{}{
		"error":  message,
		"status": status,
	})
}
