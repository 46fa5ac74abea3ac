package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/warp/savings-engine/generic"
	"github.com/warp/savings-engine/pkg/logger"
)

// Error codes returned in ErrorResponse.Code.
const (
	CodeInvalidRequest         = "invalid_request"
	CodeValidation             = "validation_error"
	CodeInvalidAmount          = "invalid_amount"
	CodeInvalidTarget          = "invalid_target"
	CodeNotFound               = "not_found"
	CodeInsufficientBalance    = "insufficient_balance"
	CodeInactiveGoal           = "inactive_goal"
	CodeDuplicateIdempotency   = "duplicate_idempotency_key"
	CodeConsistencyFailure     = "consistency_failure"
	CodeLockTimeout            = "lock_timeout"
	CodeConcurrentModification = "concurrent_modification"
	CodeInternal               = "internal_error"
)

// classify maps a domain error onto a status code and an error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, generic.ErrInvalidAmount):
		return http.StatusBadRequest, CodeInvalidAmount
	case errors.Is(err, generic.ErrInvalidTarget):
		return http.StatusBadRequest, CodeInvalidTarget
	case errors.Is(err, generic.ErrValidation):
		return http.StatusBadRequest, CodeValidation
	case generic.IsNotFound(err):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, generic.ErrInsufficientBalance):
		return http.StatusConflict, CodeInsufficientBalance
	case errors.Is(err, generic.ErrInactiveGoal):
		return http.StatusConflict, CodeInactiveGoal
	case errors.Is(err, generic.ErrDuplicateIdempotencyKey):
		return http.StatusConflict, CodeDuplicateIdempotency
	case generic.NeedsOperatorAttention(err):
		return http.StatusInternalServerError, CodeConsistencyFailure
	case errors.Is(err, generic.ErrLockTimeout):
		return http.StatusServiceUnavailable, CodeLockTimeout
	case errors.Is(err, generic.ErrConcurrentModification):
		return http.StatusServiceUnavailable, CodeConcurrentModification
	}
	return http.StatusInternalServerError, CodeInternal
}

// writeDomainError renders err with the status classify picks.
func writeDomainError(w http.ResponseWriter, r *http.Request, message string, err error) {
	status, code := classify(err)
	switch {
	case status == http.StatusServiceUnavailable:
		// contention on one goal; the client may retry
		w.Header().Set("Retry-After", "1")
		logger.Warn(message, "error", err, "path", r.URL.Path, "code", code)
	case status >= http.StatusInternalServerError:
		logger.Error(message, "error", err, "path", r.URL.Path, "code", code)
	}
	writeJSON(w, status, ErrorResponse{
		Error:   message,
		Code:    code,
		Details: errorDetails(err),
	})
}

// errorDetails exposes the structured fields of the errors that carry them.
func errorDetails(err error) any {
	var ib *generic.InsufficientBalanceError
	if errors.As(err, &ib) {
		return map[string]string{
			"message":   ib.Error(),
			"available": ib.Available.String(),
			"requested": ib.Requested.String(),
			"shortfall": ib.Shortfall().String(),
		}
	}
	var ce *generic.ConsistencyError
	if errors.As(err, &ce) {
		return map[string]string{
			"message":    ce.Error(),
			"cached":     ce.Cached.String(),
			"ledger_sum": ce.LedgerSum.String(),
		}
	}
	var tb *generic.TargetBelowBalanceError
	if errors.As(err, &tb) {
		return map[string]string{
			"message": tb.Error(),
			"target":  tb.Target.String(),
			"balance": tb.Balance.String(),
		}
	}
	var ve *generic.ValidationError
	if errors.As(err, &ve) {
		return map[string]string{
			"field":   ve.Field,
			"message": ve.Message,
		}
	}
	return err.Error()
}

func writeError(w http.ResponseWriter, status int, code, message string, err error) {
	resp := ErrorResponse{Error: message, Code: code}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Warn("failed to encode response", "error", err)
	}
}
