/*
errors.go - Centralized error types for the savings engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  The goal store is the only place business-rule errors are raised; the
  service boundary adds structural validation errors; transports map
  both onto status codes with the helpers at the bottom of this file.

ERROR CATEGORIES:
  1. Domain errors - NotFound, InvalidAmount, InvalidTarget,
     InsufficientBalance, InactiveGoal
  2. Integrity errors - ConsistencyFailure (operator attention)
  3. Infrastructure errors - ConcurrentModification, LockTimeout,
     DuplicateIdempotencyKey

USAGE:
  if errors.Is(err, generic.ErrInsufficientBalance) {
      var ib *generic.InsufficientBalanceError
      errors.As(err, &ib) // shortfall details
  }

SEE ALSO:
  - ledger.go: Raises ErrInvalidAmount, ErrDuplicateIdempotencyKey
  - savings/goals.go: Raises the domain errors
  - api/handlers.go: Maps errors to HTTP status codes
*/
package generic

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned for an unknown goal or transaction id.
	ErrNotFound = errors.New("not found")

	// ErrInvalidAmount is returned for a non-positive or malformed amount.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidTarget is returned for a non-positive or malformed target.
	ErrInvalidTarget = errors.New("invalid target amount")

	// ErrInsufficientBalance is returned when a withdrawal exceeds the balance.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInactiveGoal is returned when a deposit or withdrawal targets a
	// deactivated goal.
	ErrInactiveGoal = errors.New("goal is inactive")

	// ErrConsistencyFailure is returned when the cached balance and the
	// ledger sum disagree. Only reconcile and diagnostics raise it.
	ErrConsistencyFailure = errors.New("ledger consistency failure")

	// ErrValidation is returned for structurally invalid requests.
	ErrValidation = errors.New("validation failed")

	// ErrDuplicateIdempotencyKey is returned when a transaction with the same
	// idempotency key already exists.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrConcurrentModification is returned when a version check fails.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrLockTimeout is returned when a per-goal lock cannot be acquired in time.
	ErrLockTimeout = errors.New("timed out waiting for goal lock")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientBalanceError provides details about a balance shortage.
type InsufficientBalanceError struct {
	GoalID    GoalID
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientBalanceError) Shortfall() decimal.Decimal {
	return e.Requested.Sub(e.Available)
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: available %s, requested %s, shortfall %s",
		e.Available, e.Requested, e.Shortfall())
}

func (e *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}

// ConsistencyError reports drift between the cached balance and the ledger.
type ConsistencyError struct {
	GoalID    GoalID
	Cached    decimal.Decimal
	LedgerSum decimal.Decimal
	Reason    string
}

func (e *ConsistencyError) Error() string {
	msg := fmt.Sprintf("ledger consistency failure for goal %s: cached %s, ledger %s",
		e.GoalID, e.Cached, e.LedgerSum)
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	return msg
}

func (e *ConsistencyError) Unwrap() error {
	return ErrConsistencyFailure
}

// TargetBelowBalanceError is returned when a target edit would drop below the
// amount already saved and no override was given.
type TargetBelowBalanceError struct {
	GoalID  GoalID
	Target  decimal.Decimal
	Balance decimal.Decimal
}

func (e *TargetBelowBalanceError) Error() string {
	return fmt.Sprintf("target %s is below current balance %s", e.Target, e.Balance)
}

func (e *TargetBelowBalanceError) Unwrap() error {
	return ErrInvalidTarget
}

// ValidationError describes one structurally invalid field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry without
// risking double application.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification) || errors.Is(err, ErrLockTimeout)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidTarget)
}

// IsConflict returns true if the request was valid but the goal's state
// does not allow it.
func IsConflict(err error) bool {
	return errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrInactiveGoal) ||
		errors.Is(err, ErrDuplicateIdempotencyKey)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// NeedsOperatorAttention returns true for integrity failures that must not be
// handled as ordinary user errors.
func NeedsOperatorAttention(err error) bool {
	return errors.Is(err, ErrConsistencyFailure)
}
