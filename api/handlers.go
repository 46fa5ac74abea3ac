/*
handlers.go - HTTP API handlers for savings goals

PURPOSE:
  Exposes the savings service via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to savings.Service.

ENDPOINTS:
  Goals:
    GET    /api/goals?active=true           List goals (active only if set)
    POST   /api/goals                       Create goal
    GET    /api/goals/summary               Portfolio summary
    GET    /api/goals/{id}                  Get goal with derived fields
    PUT    /api/goals/{id}                  Update goal (partial)
    PATCH  /api/goals/{id}                  Update goal (partial)
    DELETE /api/goals/{id}                  Delete goal and its ledger

  Ledger:
    POST   /api/goals/{id}/deposit          Deposit (Idempotency-Key header)
    POST   /api/goals/{id}/withdraw         Withdraw (Idempotency-Key header)
    GET    /api/goals/{id}/transactions     Ledger with running balance
    GET    /api/goals/{id}/projection       Savings pace projection

  Admin:
    POST   /api/admin/goals/{id}/reconcile  Rebuild balance from the ledger
    GET    /api/admin/goals/{id}/verify     Check balance against the ledger
    POST   /api/admin/reconcile             Run the reconciliation sweep now
    GET    /api/admin/reconcile/last        Last sweep report

REQUEST FLOW:
  1. Decode JSON body / URL params
  2. Call savings.Service (structural validation happens there)
  3. Map errors to status codes (errors.go)
  4. Serialize DTOs (dto.go)

SECURITY NOTE:
  No authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - errors.go: Error to status mapping
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/warp/savings-engine/savings"
)

// IdempotencyKeyHeader carries the client's deduplication key on deposit
// and withdraw calls.
const IdempotencyKeyHeader = "Idempotency-Key"

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service    *savings.Service
	Reconciler *savings.Reconciler

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a handler. reconciler may be nil, in which case the
// sweep endpoints run a one-off pass without auto repair.
func NewHandler(svc *savings.Service, reconciler *savings.Reconciler) *Handler {
	if reconciler == nil {
		reconciler = savings.NewReconciler(svc.Goals(), 0, false)
	}
	return &Handler{Service: svc, Reconciler: reconciler}
}

// =============================================================================
// GOAL HANDLERS
// =============================================================================

// ListGoals returns all goals, or only active ones with ?active=true.
func (h *Handler) ListGoals(w http.ResponseWriter, r *http.Request) {
	activeOnly := false
	if raw := r.URL.Query().Get("active"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, CodeValidation, "Invalid active parameter (use true or false)", err)
			return
		}
		activeOnly = v
	}

	views, err := h.Service.ListGoals(r.Context(), activeOnly)
	if err != nil {
		writeDomainError(w, r, "Failed to list goals", err)
		return
	}
	writeJSON(w, http.StatusOK, toGoalDTOs(views))
}

// GetGoal returns a single goal.
func (h *Handler) GetGoal(w http.ResponseWriter, r *http.Request) {
	view, err := h.Service.GetGoal(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, "Failed to get goal", err)
		return
	}
	writeJSON(w, http.StatusOK, toGoalDTO(*view))
}

// CreateGoal creates a goal with a zero balance.
func (h *Handler) CreateGoal(w http.ResponseWriter, r *http.Request) {
	var req CreateGoalRequest
	if !decodeBody(w, r, &req) {
		return
	}

	view, err := h.Service.CreateGoal(r.Context(), req.toService())
	if err != nil {
		writeDomainError(w, r, "Failed to create goal", err)
		return
	}
	writeJSON(w, http.StatusCreated, toGoalDTO(*view))
}

// UpdateGoal applies a partial update. current_amount is not accepted.
func (h *Handler) UpdateGoal(w http.ResponseWriter, r *http.Request) {
	var req UpdateGoalRequest
	if !decodeBody(w, r, &req) {
		return
	}

	view, err := h.Service.UpdateGoal(r.Context(), chi.URLParam(r, "id"), req.toService())
	if err != nil {
		writeDomainError(w, r, "Failed to update goal", err)
		return
	}
	writeJSON(w, http.StatusOK, toGoalDTO(*view))
}

// DeleteGoal removes a goal and its transactions.
func (h *Handler) DeleteGoal(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.DeleteGoal(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, r, "Failed to delete goal", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetSummary returns portfolio totals over active goals.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.Service.Summary(r.Context())
	if err != nil {
		writeDomainError(w, r, "Failed to compute summary", err)
		return
	}
	writeJSON(w, http.StatusOK, toSummaryDTO(sum))
}

// =============================================================================
// LEDGER HANDLERS
// =============================================================================

// Deposit adds money to a goal.
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeTransaction(w, r)
	if !ok {
		return
	}
	view, err := h.Service.DepositToGoal(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeDomainError(w, r, "Failed to deposit", err)
		return
	}
	writeJSON(w, http.StatusOK, toGoalDTO(*view))
}

// Withdraw removes money from a goal.
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeTransaction(w, r)
	if !ok {
		return
	}
	view, err := h.Service.WithdrawFromGoal(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeDomainError(w, r, "Failed to withdraw", err)
		return
	}
	writeJSON(w, http.StatusOK, toGoalDTO(*view))
}

// ListTransactions returns the goal's ledger oldest first.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	views, err := h.Service.ListTransactions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, "Failed to list transactions", err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTOs(views))
}

// GetProjection returns the goal's savings pace.
func (h *Handler) GetProjection(w http.ResponseWriter, r *http.Request) {
	pace, err := h.Service.ProjectGoal(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, "Failed to project goal", err)
		return
	}
	writeJSON(w, http.StatusOK, toPaceDTO(pace))
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// ReconcileGoal rebuilds one goal's balance from its ledger.
func (h *Handler) ReconcileGoal(w http.ResponseWriter, r *http.Request) {
	view, err := h.Service.ReconcileGoal(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, "Failed to reconcile goal", err)
		return
	}
	writeJSON(w, http.StatusOK, toGoalDTO(*view))
}

// VerifyGoal checks one goal's balance against its ledger without
// changing anything.
func (h *Handler) VerifyGoal(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Service.VerifyGoal(r.Context(), id); err != nil {
		writeDomainError(w, r, "Goal failed verification", err)
		return
	}
	writeJSON(w, http.StatusOK, VerifyDTO{GoalID: id, Consistent: true})
}

// RunReconciliation runs one sweep over every goal.
func (h *Handler) RunReconciliation(w http.ResponseWriter, r *http.Request) {
	report := h.Reconciler.RunNow(r.Context())
	writeJSON(w, http.StatusOK, toReconcileReportDTO(report))
}

// LastReconciliation returns the most recent sweep, or null.
func (h *Handler) LastReconciliation(w http.ResponseWriter, r *http.Request) {
	report := h.Reconciler.LastReport()
	if report == nil {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, toReconcileReportDTO(*report))
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "Invalid request body", err)
		return false
	}
	return true
}

func decodeTransaction(w http.ResponseWriter, r *http.Request) (savings.TransactionRequest, bool) {
	var body TransactionRequest
	if !decodeBody(w, r, &body) {
		return savings.TransactionRequest{}, false
	}
	key := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
	if key == "" {
		key = body.IdempotencyKey
	}
	return savings.TransactionRequest{
		Amount:         string(body.Amount),
		Description:    body.Description,
		Date:           body.Date,
		IdempotencyKey: key,
	}, true
}
