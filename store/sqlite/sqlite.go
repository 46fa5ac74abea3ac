/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements generic.TxStore (goals + append-only transactions) using
  SQLite through database/sql. The PostgreSQL backend in store/postgres
  follows the same contract.

APPEND-ONLY ENFORCEMENT:
  - No UPDATE statements on goal_transactions
  - DELETE on goal_transactions only as part of DeleteGoal (cascade)

KEY TABLES:
  goals:             Goal metadata + cached balance + version
  goal_transactions: Immutable ledger; seq preserves insertion order

MONEY:
  Decimals are stored as TEXT (decimal.Decimal.String()) so no value is
  ever rounded through a float.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. WithTx holds the write lock for the
  whole unit, so a balance check and the write it guards cannot interleave
  with another writer. UpdateGoal is additionally version-checked.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time

USAGE:
  store, err := sqlite.New("./data/savings.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - generic/store.go: Interface definitions
  - generic/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/savings-engine/generic"
)

// Store implements generic.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// every pooled connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS goals (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT '',
		target_amount TEXT NOT NULL,
		current_amount TEXT NOT NULL DEFAULT '0',
		deadline TEXT,
		priority TEXT NOT NULL DEFAULT 'Medium',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		color TEXT NOT NULL DEFAULT '',
		icon TEXT NOT NULL DEFAULT '',
		version INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_goals_active_created
		ON goals(is_active, created_at);

	-- Transactions (append-only ledger)
	CREATE TABLE IF NOT EXISTS goal_transactions (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		goal_id TEXT NOT NULL REFERENCES goals(id) ON DELETE CASCADE,
		tx_type TEXT NOT NULL CHECK (tx_type IN ('deposit', 'withdraw')),
		amount TEXT NOT NULL,
		description TEXT,
		effective_at TEXT NOT NULL,
		idempotency_key TEXT UNIQUE,
		created_at TEXT NOT NULL
	);

	-- Ledger replay for one goal (hot path)
	CREATE INDEX IF NOT EXISTS idx_goal_transactions_goal_seq
		ON goal_transactions(goal_id, seq);
	`

	_, err := s.db.Exec(schema)
	return err
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// TRANSACTION STORE (generic.TransactionStore interface)
// =============================================================================

// AppendTransaction adds a transaction to the ledger.
func (s *Store) AppendTransaction(ctx context.Context, tx generic.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendTx(ctx, s.db, tx)
}

func appendTx(ctx context.Context, q queryer, tx generic.Transaction) error {
	query := `
		INSERT INTO goal_transactions
		(id, goal_id, tx_type, amount, description, effective_at, idempotency_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := q.ExecContext(ctx, query,
		tx.ID,
		tx.GoalID,
		tx.Type,
		tx.Amount.String(),
		nullString(tx.Description),
		formatTime(tx.Date),
		nullString(tx.IdempotencyKey),
		formatTime(tx.CreatedAt),
	)
	if err != nil {
		switch {
		case tx.IdempotencyKey != "" && isConstraint(err, sqlite3.ErrConstraintUnique) &&
			strings.Contains(err.Error(), "idempotency_key"):
			return generic.ErrDuplicateIdempotencyKey
		case isConstraint(err, sqlite3.ErrConstraintForeignKey):
			return generic.ErrNotFound
		}
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	return nil
}

// LoadTransactions returns all transactions of a goal in insertion order.
func (s *Store) LoadTransactions(ctx context.Context, goalID generic.GoalID) ([]generic.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return loadTxs(ctx, s.db, goalID)
}

func loadTxs(ctx context.Context, q queryer, goalID generic.GoalID) ([]generic.Transaction, error) {
	query := `
		SELECT id, goal_id, tx_type, amount, description, effective_at, idempotency_key, created_at
		FROM goal_transactions
		WHERE goal_id = ?
		ORDER BY seq ASC
	`
	rows, err := q.QueryContext(ctx, query, goalID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	transactions := []generic.Transaction{}
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}
	return transactions, rows.Err()
}

func scanTransaction(rows *sql.Rows) (generic.Transaction, error) {
	var (
		tx             generic.Transaction
		amount         string
		description    sql.NullString
		effectiveAt    string
		idempotencyKey sql.NullString
		createdAt      string
	)

	err := rows.Scan(&tx.ID, &tx.GoalID, &tx.Type, &amount, &description,
		&effectiveAt, &idempotencyKey, &createdAt)
	if err != nil {
		return tx, fmt.Errorf("failed to scan transaction: %w", err)
	}

	if tx.Amount, err = decimal.NewFromString(amount); err != nil {
		return tx, fmt.Errorf("failed to scan transaction %s amount: %w", tx.ID, err)
	}
	if tx.Date, err = parseTime(effectiveAt); err != nil {
		return tx, fmt.Errorf("failed to scan transaction %s effective_at: %w", tx.ID, err)
	}
	if tx.CreatedAt, err = parseTime(createdAt); err != nil {
		return tx, fmt.Errorf("failed to scan transaction %s created_at: %w", tx.ID, err)
	}
	tx.Description = description.String
	tx.IdempotencyKey = idempotencyKey.String
	return tx, nil
}

// IdempotencyKeyExists checks if an idempotency key exists.
func (s *Store) IdempotencyKeyExists(ctx context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return keyExists(ctx, s.db, key)
}

func keyExists(ctx context.Context, q queryer, key string) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM goal_transactions WHERE idempotency_key = ?", key,
	).Scan(&count)
	return count > 0, err
}

// =============================================================================
// GOAL STORE (generic.GoalStore interface)
// =============================================================================

const goalColumns = `id, name, description, category, target_amount, current_amount, deadline,
	priority, is_active, color, icon, version, created_at, updated_at`

// InsertGoal saves a new goal.
func (s *Store) InsertGoal(ctx context.Context, goal generic.Goal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertGoal(ctx, s.db, goal)
}

func insertGoal(ctx context.Context, q queryer, g generic.Goal) error {
	query := `INSERT INTO goals (` + goalColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := q.ExecContext(ctx, query,
		g.ID, g.Name, g.Description, g.Category,
		g.TargetAmount.String(), g.CurrentAmount.String(), formatDate(g.Deadline),
		g.Priority, g.IsActive, g.Color, g.Icon, g.Version,
		formatTime(g.CreatedAt), formatTime(g.UpdatedAt),
	)
	if err != nil {
		if isConstraint(err, sqlite3.ErrConstraintPrimaryKey) || isConstraint(err, sqlite3.ErrConstraintUnique) {
			return fmt.Errorf("goal %s already exists: %w", g.ID, generic.ErrConcurrentModification)
		}
		return fmt.Errorf("failed to insert goal: %w", err)
	}
	return nil
}

// GetGoal returns a goal by id.
func (s *Store) GetGoal(ctx context.Context, id generic.GoalID) (*generic.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getGoal(ctx, s.db, id)
}

// GetGoalForUpdate is GetGoal; SQLite has no row locks and WithTx already
// serializes writers.
func (s *Store) GetGoalForUpdate(ctx context.Context, id generic.GoalID) (*generic.Goal, error) {
	return s.GetGoal(ctx, id)
}

func getGoal(ctx context.Context, q queryer, id generic.GoalID) (*generic.Goal, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+goalColumns+` FROM goals WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query goal: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, generic.ErrNotFound
	}
	g, err := scanGoal(rows)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// ListGoals returns goals in creation order.
func (s *Store) ListGoals(ctx context.Context, filter generic.GoalFilter) ([]generic.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listGoals(ctx, s.db, filter)
}

func listGoals(ctx context.Context, q queryer, filter generic.GoalFilter) ([]generic.Goal, error) {
	query := `SELECT ` + goalColumns + ` FROM goals`
	if filter.ActiveOnly {
		query += ` WHERE is_active = TRUE`
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list goals: %w", err)
	}
	defer rows.Close()

	goals := []generic.Goal{}
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, err
		}
		goals = append(goals, g)
	}
	return goals, rows.Err()
}

func scanGoal(rows *sql.Rows) (generic.Goal, error) {
	var (
		g         generic.Goal
		target    string
		current   string
		deadline  sql.NullString
		createdAt string
		updatedAt string
	)
	err := rows.Scan(&g.ID, &g.Name, &g.Description, &g.Category, &target, &current, &deadline,
		&g.Priority, &g.IsActive, &g.Color, &g.Icon, &g.Version, &createdAt, &updatedAt)
	if err != nil {
		return g, fmt.Errorf("failed to scan goal: %w", err)
	}

	if g.TargetAmount, err = decimal.NewFromString(target); err != nil {
		return g, fmt.Errorf("failed to scan goal %s target_amount: %w", g.ID, err)
	}
	if g.CurrentAmount, err = decimal.NewFromString(current); err != nil {
		return g, fmt.Errorf("failed to scan goal %s current_amount: %w", g.ID, err)
	}
	if deadline.Valid && deadline.String != "" {
		d, err := time.Parse(generic.DateLayout, deadline.String)
		if err != nil {
			return g, fmt.Errorf("failed to scan goal %s deadline: %w", g.ID, err)
		}
		g.Deadline = &d
	}
	if g.CreatedAt, err = parseTime(createdAt); err != nil {
		return g, fmt.Errorf("failed to scan goal %s created_at: %w", g.ID, err)
	}
	if g.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return g, fmt.Errorf("failed to scan goal %s updated_at: %w", g.ID, err)
	}
	return g, nil
}

// UpdateGoal overwrites a goal if its version still matches.
func (s *Store) UpdateGoal(ctx context.Context, goal *generic.Goal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateGoal(ctx, s.db, goal)
}

func updateGoal(ctx context.Context, q queryer, g *generic.Goal) error {
	query := `
		UPDATE goals SET
			name = ?, description = ?, category = ?, target_amount = ?, current_amount = ?,
			deadline = ?, priority = ?, is_active = ?, color = ?, icon = ?,
			updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?
	`
	res, err := q.ExecContext(ctx, query,
		g.Name, g.Description, g.Category, g.TargetAmount.String(), g.CurrentAmount.String(),
		formatDate(g.Deadline), g.Priority, g.IsActive, g.Color, g.Icon,
		formatTime(g.UpdatedAt), g.ID, g.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update goal: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := getGoal(ctx, q, g.ID); err != nil {
			return err
		}
		return generic.ErrConcurrentModification
	}
	g.Version++
	return nil
}

// DeleteGoal removes a goal and its ledger.
func (s *Store) DeleteGoal(ctx context.Context, id generic.GoalID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := deleteGoal(ctx, sqlTx, id); err != nil {
		return err
	}
	return sqlTx.Commit()
}

func deleteGoal(ctx context.Context, q queryer, id generic.GoalID) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM goal_transactions WHERE goal_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete transactions: %w", err)
	}
	res, err := q.ExecContext(ctx, "DELETE FROM goals WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete goal: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return generic.ErrNotFound
	}
	return nil
}

// =============================================================================
// TRANSACTIONAL STORE (generic.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store generic.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txStore runs every statement on the open *sql.Tx. It never touches the
// parent's mutex, which WithTx already holds.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) AppendTransaction(ctx context.Context, tx generic.Transaction) error {
	return appendTx(ctx, ts.tx, tx)
}

func (ts *txStore) LoadTransactions(ctx context.Context, goalID generic.GoalID) ([]generic.Transaction, error) {
	return loadTxs(ctx, ts.tx, goalID)
}

func (ts *txStore) IdempotencyKeyExists(ctx context.Context, key string) (bool, error) {
	return keyExists(ctx, ts.tx, key)
}

func (ts *txStore) InsertGoal(ctx context.Context, goal generic.Goal) error {
	return insertGoal(ctx, ts.tx, goal)
}

func (ts *txStore) GetGoal(ctx context.Context, id generic.GoalID) (*generic.Goal, error) {
	return getGoal(ctx, ts.tx, id)
}

func (ts *txStore) GetGoalForUpdate(ctx context.Context, id generic.GoalID) (*generic.Goal, error) {
	return getGoal(ctx, ts.tx, id)
}

func (ts *txStore) ListGoals(ctx context.Context, filter generic.GoalFilter) ([]generic.Goal, error) {
	return listGoals(ctx, ts.tx, filter)
}

func (ts *txStore) UpdateGoal(ctx context.Context, goal *generic.Goal) error {
	return updateGoal(ctx, ts.tx, goal)
}

func (ts *txStore) DeleteGoal(ctx context.Context, id generic.GoalID) error {
	return deleteGoal(ctx, ts.tx, id)
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// timeLayout is fixed width so created_at sorts correctly as TEXT.
const timeLayout = "2006-01-02T15:04:05.000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, err = time.Parse(time.RFC3339Nano, s)
	}
	return t.UTC(), err
}

func formatDate(d *time.Time) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.UTC().Format(generic.DateLayout), Valid: true}
}

func isConstraint(err error, code sqlite3.ErrNoExtended) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == code
}
