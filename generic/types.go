/*
Package generic provides the core savings ledger engine.

PURPOSE:
  This package contains the storage-agnostic types and algorithms behind
  savings goals: the goal record with its cached balance, the append-only
  transaction ledger that is the source of truth for that balance, and
  the pure progress/deadline calculator the dashboard renders from.

KEY CONCEPTS IN THIS FILE (types.go):
  - Goal: A named savings target with a cached running balance
  - Transaction: An immutable deposit or withdrawal against one goal
  - GoalPatch: Partial update of a goal's display metadata and target
  - IDs: Type-safe identifiers (GoalID, TransactionID)

DESIGN PRINCIPLES:
  1. Immutability: Transactions are never modified once recorded
  2. Precision: Uses decimal.Decimal to avoid floating-point errors
  3. Direction by type: Amounts are always positive, Type carries the sign
  4. Type Safety: Strong typing for IDs prevents mixing goal/transaction IDs

USAGE:
  tx := generic.NewTransaction(goalID, generic.TxDeposit,
      decimal.RequireFromString("300000"), "salary", now)
  err := ledger.Append(ctx, tx)

SEE ALSO:
  - ledger.go: Append-only ledger over a TransactionStore
  - store.go: Persistence interfaces
  - progress.go: Progress and deadline calculator
*/
package generic

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MoneyScale is the number of fractional digits an amount may carry.
const MoneyScale = 2

// =============================================================================
// IDENTIFIERS
// =============================================================================

type GoalID string
type TransactionID string

func NewGoalID() GoalID               { return GoalID(uuid.NewString()) }
func NewTransactionID() TransactionID { return TransactionID(uuid.NewString()) }

// ParseGoalID checks that s is a well-formed goal id.
func ParseGoalID(s string) (GoalID, error) {
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("%w: goal %q", ErrNotFound, s)
	}
	return GoalID(id.String()), nil
}

// =============================================================================
// AMOUNTS
// =============================================================================

// MaxAmount is the largest amount or balance a numeric(20,2) column holds.
var MaxAmount = decimal.RequireFromString("999999999999999999.99")

const (
	maxIntegerDigits  = 18
	maxFractionDigits = 32
)

func MustParseDecimal(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// InMoneyRange reports whether |d| <= MaxAmount. The exponent is checked
// first so values like 1e10000000 are never expanded.
func InMoneyRange(d decimal.Decimal) bool {
	exp := d.Exponent()
	if exp >= maxIntegerDigits {
		return d.IsZero()
	}
	if exp < -maxFractionDigits {
		c := d.Coefficient()
		c.Abs(c)
		return len(c.String())+int(exp) <= maxIntegerDigits
	}
	return d.Abs().LessThanOrEqual(MaxAmount)
}

// HasMoneyScale reports whether d fits in MoneyScale fractional digits.
// Callers check InMoneyRange first.
func HasMoneyScale(d decimal.Decimal) bool {
	if d.Exponent() >= -MoneyScale {
		return true
	}
	if d.Exponent() < -maxFractionDigits {
		return false
	}
	return d.Equal(d.Round(MoneyScale))
}

// =============================================================================
// PRIORITY
// =============================================================================

type Priority string

const (
	PriorityHigh   Priority = "High"
	PriorityMedium Priority = "Medium"
	PriorityLow    Priority = "Low"
)

// ParsePriority accepts any casing. Empty input yields PriorityMedium.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return PriorityHigh, nil
	case "medium", "":
		return PriorityMedium, nil
	case "low":
		return PriorityLow, nil
	}
	return "", &ValidationError{Field: "priority", Message: fmt.Sprintf("unknown priority %q (want High, Medium or Low)", s)}
}

func (p Priority) Valid() bool {
	return p == PriorityHigh || p == PriorityMedium || p == PriorityLow
}

// =============================================================================
// GOAL - Savings target with cached balance
// =============================================================================

// Goal is a savings target.
//
// INVARIANT:
//
//	CurrentAmount == sum(deposit amounts) - sum(withdraw amounts)
//
// CurrentAmount is a materialized view of the ledger. Only the goal store
// writes it, in the same unit of work as the ledger append.
type Goal struct {
	ID            GoalID
	Name          string
	Description   string
	Category      string
	TargetAmount  decimal.Decimal
	CurrentAmount decimal.Decimal
	Deadline      *time.Time // nil = unconstrained
	Priority      Priority
	IsActive      bool
	Color         string
	Icon          string

	CreatedAt time.Time
	UpdatedAt time.Time

	// Version is bumped on every persisted change (compare-and-swap key).
	Version int64
}

// NewGoal holds the fields a caller supplies at creation.
type NewGoal struct {
	Name         string
	Description  string
	Category     string
	TargetAmount decimal.Decimal
	Deadline     *time.Time
	Priority     Priority
	Color        string
	Icon         string
}

// GoalPatch is a partial update. nil fields are left untouched.
// CurrentAmount is deliberately absent.
type GoalPatch struct {
	Name          *string
	Description   *string
	Category      *string
	TargetAmount  *decimal.Decimal
	Deadline      *time.Time
	ClearDeadline bool
	Priority      *Priority
	IsActive      *bool
	Color         *string
	Icon          *string

	// OverrideTarget allows a target below the current balance for this call.
	OverrideTarget bool
}

// Apply copies the set fields onto g. It does not validate.
func (p GoalPatch) Apply(g *Goal) {
	if p.Name != nil {
		g.Name = *p.Name
	}
	if p.Description != nil {
		g.Description = *p.Description
	}
	if p.Category != nil {
		g.Category = *p.Category
	}
	if p.TargetAmount != nil {
		g.TargetAmount = *p.TargetAmount
	}
	if p.ClearDeadline {
		g.Deadline = nil
	} else if p.Deadline != nil {
		d := DateOf(*p.Deadline)
		g.Deadline = &d
	}
	if p.Priority != nil {
		g.Priority = *p.Priority
	}
	if p.IsActive != nil {
		g.IsActive = *p.IsActive
	}
	if p.Color != nil {
		g.Color = *p.Color
	}
	if p.Icon != nil {
		g.Icon = *p.Icon
	}
}

// GoalFilter narrows ListGoals.
type GoalFilter struct {
	ActiveOnly bool
}

// =============================================================================
// TRANSACTION - Immutable balance-affecting event
// =============================================================================

type TransactionType string

const (
	TxDeposit  TransactionType = "deposit"
	TxWithdraw TransactionType = "withdraw"
)

func (t TransactionType) Valid() bool {
	return t == TxDeposit || t == TxWithdraw
}

type Transaction struct {
	ID             TransactionID
	GoalID         GoalID
	Type           TransactionType
	Amount         decimal.Decimal // always > 0
	Description    string
	Date           time.Time // effective date, may be backdated
	IdempotencyKey string
	CreatedAt      time.Time
}

// NewTransaction builds a transaction with a fresh id. Date and CreatedAt
// default to now.
func NewTransaction(goalID GoalID, txType TransactionType, amount decimal.Decimal, description string, now time.Time) Transaction {
	return Transaction{
		ID:          NewTransactionID(),
		GoalID:      goalID,
		Type:        txType,
		Amount:      amount,
		Description: description,
		Date:        now,
		CreatedAt:   now,
	}
}

// Delta is the signed effect on the balance.
func (t Transaction) Delta() decimal.Decimal {
	if t.Type == TxWithdraw {
		return t.Amount.Neg()
	}
	return t.Amount
}
