/*
store.go - Persistence interfaces for goals and their transactions

PURPOSE:
  Defines the interface between the domain logic and the database.
  Different implementations can use SQLite, PostgreSQL, or in-memory storage.

KEY INTERFACES:
  TransactionStore: Append-only ledger persistence (append, load, exists)
  GoalStore:        Goal records with version-checked updates
  Store:            Both of the above
  TxStore:          Store plus WithTx for atomic multi-record writes

APPEND-ONLY CONTRACT:
  TransactionStore has no Update or Delete. The only way transactions
  leave the store is DeleteGoal, which removes a goal together with its
  whole history.

ATOMIC UNITS:
  A deposit appends a transaction AND rewrites the goal's cached balance.
  Both writes go through the Store handed to WithTx's callback: either
  both commit or neither does.

OPTIMISTIC LOCKING:
  UpdateGoal only succeeds if the stored Version equals goal.Version.
  On success the stored and in-memory Version are incremented. A stale
  version yields ErrConcurrentModification.

IMPLEMENTATIONS:
  - generic/store/memory.go: In-memory for testing
  - store/sqlite/sqlite.go: SQLite via database/sql
  - store/postgres: PostgreSQL via gorm

SEE ALSO:
  - ledger.go: Higher-level ledger using TransactionStore
  - savings/goals.go: The only writer of goals
*/
package generic

import "context"

// =============================================================================
// TRANSACTION STORE - Append-only
// =============================================================================

type TransactionStore interface {
	// AppendTransaction persists tx. Returns ErrDuplicateIdempotencyKey if
	// tx carries a key that already exists.
	AppendTransaction(ctx context.Context, tx Transaction) error

	// LoadTransactions returns a goal's transactions in insertion order.
	LoadTransactions(ctx context.Context, goalID GoalID) ([]Transaction, error)

	// IdempotencyKeyExists checks if a key was already used.
	IdempotencyKeyExists(ctx context.Context, key string) (bool, error)
}

// =============================================================================
// GOAL STORE
// =============================================================================

type GoalStore interface {
	// InsertGoal persists a new goal.
	InsertGoal(ctx context.Context, goal Goal) error

	// GetGoal returns ErrNotFound for an unknown id.
	GetGoal(ctx context.Context, id GoalID) (*Goal, error)

	// GetGoalForUpdate is GetGoal with a row lock where the backend has one.
	// Only meaningful inside WithTx.
	GetGoalForUpdate(ctx context.Context, id GoalID) (*Goal, error)

	// ListGoals returns goals ordered by creation time.
	ListGoals(ctx context.Context, filter GoalFilter) ([]Goal, error)

	// UpdateGoal overwrites the goal if goal.Version matches the stored one,
	// then increments goal.Version.
	UpdateGoal(ctx context.Context, goal *Goal) error

	// DeleteGoal removes the goal and all of its transactions.
	DeleteGoal(ctx context.Context, id GoalID) error
}

type Store interface {
	TransactionStore
	GoalStore
}

// =============================================================================
// TRANSACTIONAL STORE - For atomic operations across multiple writes
// =============================================================================

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
