/*
ledger.go - Append-only transaction log

PURPOSE:
  The Ledger is the immutable source of truth for a goal's balance.
  Every deposit and withdrawal is recorded here. The goal's cached
  CurrentAmount is a materialized view that must always equal SumFor.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete (deleting the goal is the only exit)
  2. IMMUTABLE: Once written, transactions cannot be modified
  3. POSITIVE: Amount > 0 always; direction is carried by Type
  4. IDEMPOTENT: Same idempotency key = rejected duplicate

BALANCE OWNERSHIP:
  Append does NOT touch the goal's cached balance. The goal store calls
  Append and the balance update inside one store transaction, so the
  invariant is maintained atomically one layer up.

ORDERING:
  ListFor returns insertion order. Transaction.Date may be backdated, so
  SumFor never assumes date order; it sums every entry.

SEE ALSO:
  - store.go: Low-level persistence interface
  - savings/goals.go: Appends and updates the cached balance atomically
*/
package generic

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// LEDGER - Append-only transaction log
// =============================================================================

// Ledger is the source of truth for balance changes of goals.
type Ledger interface {
	// Append validates and persists one transaction.
	// This is the ONLY write operation.
	Append(ctx context.Context, tx Transaction) error

	// ListFor returns a goal's transactions, oldest first. Read-only.
	ListFor(ctx context.Context, goalID GoalID) ([]Transaction, error)

	// SumFor returns deposits minus withdrawals. Read-only.
	SumFor(ctx context.Context, goalID GoalID) (decimal.Decimal, error)
}

// =============================================================================
// DEFAULT LEDGER - Implementation using TransactionStore
// =============================================================================

type DefaultLedger struct {
	Store TransactionStore
}

func NewLedger(store TransactionStore) *DefaultLedger {
	return &DefaultLedger{Store: store}
}

func (l *DefaultLedger) Append(ctx context.Context, tx Transaction) error {
	if err := ValidateEntry(tx.Type, tx.Amount); err != nil {
		return err
	}
	if tx.GoalID == "" {
		return &ValidationError{Field: "goal_id", Message: "is required"}
	}
	if tx.IdempotencyKey != "" {
		exists, err := l.Store.IdempotencyKeyExists(ctx, tx.IdempotencyKey)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateIdempotencyKey
		}
	}
	return l.Store.AppendTransaction(ctx, tx)
}

func (l *DefaultLedger) ListFor(ctx context.Context, goalID GoalID) ([]Transaction, error) {
	txs, err := l.Store.LoadTransactions(ctx, goalID)
	if err != nil {
		return nil, err
	}
	if txs == nil {
		txs = []Transaction{}
	}
	return txs, nil
}

func (l *DefaultLedger) SumFor(ctx context.Context, goalID GoalID) (decimal.Decimal, error) {
	txs, err := l.Store.LoadTransactions(ctx, goalID)
	if err != nil {
		return decimal.Zero, err
	}
	return Sum(txs), nil
}

// Sum returns deposits minus withdrawals over txs, in any order.
func Sum(txs []Transaction) decimal.Decimal {
	total := decimal.Zero
	for _, tx := range txs {
		total = total.Add(tx.Delta())
	}
	return total
}

// ValidateEntry checks the amount and type of a prospective ledger entry.
func ValidateEntry(txType TransactionType, amount decimal.Decimal) error {
	if !txType.Valid() {
		return &ValidationError{Field: "type", Message: fmt.Sprintf("unknown transaction type %q", txType)}
	}
	if !amount.IsPositive() {
		return fmt.Errorf("%w: amount must be greater than zero", ErrInvalidAmount)
	}
	if !InMoneyRange(amount) {
		return fmt.Errorf("%w: amount exceeds %s", ErrInvalidAmount, MaxAmount)
	}
	if !HasMoneyScale(amount) {
		return fmt.Errorf("%w: amount has more than %d decimal places", ErrInvalidAmount, MoneyScale)
	}
	return nil
}
