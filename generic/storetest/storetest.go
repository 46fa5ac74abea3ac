// Package storetest holds the behaviour every generic.TxStore backend must
// share. Backends call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/savings-engine/generic"
)

// Factory returns an empty store. Cleanup is the factory's job (t.Cleanup).
type Factory func(t *testing.T) generic.TxStore

var base = time.Date(2026, time.January, 2, 3, 4, 5, 123456000, time.UTC)

func newGoal(name string, createdAt time.Time) generic.Goal {
	deadline := generic.NewDate(2026, time.December, 31)
	return generic.Goal{
		ID:            generic.NewGoalID(),
		Name:          name,
		Description:   "desc",
		Category:      "travel",
		TargetAmount:  decimal.RequireFromString("1000000.50"),
		CurrentAmount: decimal.Zero,
		Deadline:      &deadline,
		Priority:      generic.PriorityHigh,
		IsActive:      true,
		Color:         "#ff0000",
		Icon:          "plane",
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
	}
}

func deposit(goalID generic.GoalID, amount string) generic.Transaction {
	return generic.NewTransaction(goalID, generic.TxDeposit, decimal.RequireFromString(amount), "", base)
}

// Run executes the shared suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("goal round trip", func(t *testing.T) { testGoalRoundTrip(t, newStore(t)) })
	t.Run("version conflict", func(t *testing.T) { testVersionConflict(t, newStore(t)) })
	t.Run("list order and filter", func(t *testing.T) { testListGoals(t, newStore(t)) })
	t.Run("ledger insertion order", func(t *testing.T) { testLedgerOrder(t, newStore(t)) })
	t.Run("idempotency key", func(t *testing.T) { testIdempotency(t, newStore(t)) })
	t.Run("append requires goal", func(t *testing.T) { testAppendRequiresGoal(t, newStore(t)) })
	t.Run("delete cascades", func(t *testing.T) { testDeleteCascade(t, newStore(t)) })
	t.Run("with tx rollback", func(t *testing.T) { testWithTxRollback(t, newStore(t)) })
	t.Run("with tx commit", func(t *testing.T) { testWithTxCommit(t, newStore(t)) })
}

func testGoalRoundTrip(t *testing.T, s generic.TxStore) {
	ctx := context.Background()
	g := newGoal("Japan", base)
	require.NoError(t, s.InsertGoal(ctx, g))

	got, err := s.GetGoal(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, g.Name, got.Name)
	assert.Equal(t, g.Description, got.Description)
	assert.Equal(t, g.Category, got.Category)
	assert.True(t, g.TargetAmount.Equal(got.TargetAmount), "target %s", got.TargetAmount)
	assert.True(t, got.CurrentAmount.IsZero())
	require.NotNil(t, got.Deadline)
	assert.Equal(t, *g.Deadline, got.Deadline.UTC())
	assert.Equal(t, g.Priority, got.Priority)
	assert.True(t, got.IsActive)
	assert.Equal(t, g.Color, got.Color)
	assert.Equal(t, g.Icon, got.Icon)
	assert.True(t, g.CreatedAt.Equal(got.CreatedAt), "created %s", got.CreatedAt)
	assert.Equal(t, int64(0), got.Version)

	_, err = s.GetGoal(ctx, generic.NewGoalID())
	assert.ErrorIs(t, err, generic.ErrNotFound)
}

func testVersionConflict(t *testing.T, s generic.TxStore) {
	ctx := context.Background()
	g := newGoal("Car", base)
	g.Deadline = nil
	require.NoError(t, s.InsertGoal(ctx, g))

	first, err := s.GetGoal(ctx, g.ID)
	require.NoError(t, err)
	second, err := s.GetGoal(ctx, g.ID)
	require.NoError(t, err)

	first.CurrentAmount = decimal.RequireFromString("10.25")
	require.NoError(t, s.UpdateGoal(ctx, first))
	assert.Equal(t, int64(1), first.Version)

	second.Name = "stale"
	assert.ErrorIs(t, s.UpdateGoal(ctx, second), generic.ErrConcurrentModification)

	got, err := s.GetGoal(ctx, g.ID)
	require.NoError(t, err)
	assert.True(t, got.CurrentAmount.Equal(decimal.RequireFromString("10.25")))
	assert.Equal(t, "Car", got.Name)
	assert.Nil(t, got.Deadline)

	missing := newGoal("ghost", base)
	assert.ErrorIs(t, s.UpdateGoal(ctx, &missing), generic.ErrNotFound)
}

func testListGoals(t *testing.T, s generic.TxStore) {
	ctx := context.Background()
	second := newGoal("second", base.Add(time.Minute))
	first := newGoal("first", base)
	inactive := newGoal("inactive", base.Add(2*time.Minute))
	inactive.IsActive = false
	for _, g := range []generic.Goal{second, first, inactive} {
		require.NoError(t, s.InsertGoal(ctx, g))
	}

	all, err := s.ListGoals(ctx, generic.GoalFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"first", "second", "inactive"}, []string{all[0].Name, all[1].Name, all[2].Name})

	active, err := s.ListGoals(ctx, generic.GoalFilter{ActiveOnly: true})
	require.NoError(t, err)
	assert.Len(t, active, 2)
}

func testLedgerOrder(t *testing.T, s generic.TxStore) {
	ctx := context.Background()
	g := newGoal("Laptop", base)
	require.NoError(t, s.InsertGoal(ctx, g))

	current := deposit(g.ID, "50.10")
	backdated := deposit(g.ID, "20")
	backdated.Date = base.AddDate(0, -2, 0)
	backdated.Description = "old paycheck"
	withdrawal := generic.NewTransaction(g.ID, generic.TxWithdraw, decimal.RequireFromString("5.05"), "", base)

	for _, tx := range []generic.Transaction{current, backdated, withdrawal} {
		require.NoError(t, s.AppendTransaction(ctx, tx))
	}

	txs, err := s.LoadTransactions(ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, txs, 3)
	assert.Equal(t, current.ID, txs[0].ID)
	assert.Equal(t, backdated.ID, txs[1].ID)
	assert.Equal(t, withdrawal.ID, txs[2].ID)
	assert.Equal(t, "old paycheck", txs[1].Description)
	assert.True(t, backdated.Date.Equal(txs[1].Date))
	assert.Equal(t, generic.TxWithdraw, txs[2].Type)
	assert.True(t, generic.Sum(txs).Equal(decimal.RequireFromString("65.05")))

	empty, err := s.LoadTransactions(ctx, generic.NewGoalID())
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func testIdempotency(t *testing.T, s generic.TxStore) {
	ctx := context.Background()
	g := newGoal("Bike", base)
	require.NoError(t, s.InsertGoal(ctx, g))

	tx := deposit(g.ID, "1")
	tx.IdempotencyKey = "key-1"
	require.NoError(t, s.AppendTransaction(ctx, tx))

	exists, err := s.IdempotencyKeyExists(ctx, "key-1")
	require.NoError(t, err)
	assert.True(t, exists)

	dup := deposit(g.ID, "1")
	dup.IdempotencyKey = "key-1"
	assert.ErrorIs(t, s.AppendTransaction(ctx, dup), generic.ErrDuplicateIdempotencyKey)

	// entries without a key never collide
	require.NoError(t, s.AppendTransaction(ctx, deposit(g.ID, "1")))
	require.NoError(t, s.AppendTransaction(ctx, deposit(g.ID, "1")))
}

func testAppendRequiresGoal(t *testing.T, s generic.TxStore) {
	err := s.AppendTransaction(context.Background(), deposit(generic.NewGoalID(), "1"))
	assert.ErrorIs(t, err, generic.ErrNotFound)
}

func testDeleteCascade(t *testing.T, s generic.TxStore) {
	ctx := context.Background()
	g := newGoal("Trip", base)
	require.NoError(t, s.InsertGoal(ctx, g))
	tx := deposit(g.ID, "5")
	tx.IdempotencyKey = "trip-1"
	require.NoError(t, s.AppendTransaction(ctx, tx))

	require.NoError(t, s.DeleteGoal(ctx, g.ID))

	_, err := s.GetGoal(ctx, g.ID)
	assert.ErrorIs(t, err, generic.ErrNotFound)
	txs, err := s.LoadTransactions(ctx, g.ID)
	require.NoError(t, err)
	assert.Empty(t, txs)
	exists, err := s.IdempotencyKeyExists(ctx, "trip-1")
	require.NoError(t, err)
	assert.False(t, exists)

	assert.ErrorIs(t, s.DeleteGoal(ctx, g.ID), generic.ErrNotFound)
}

func testWithTxRollback(t *testing.T, s generic.TxStore) {
	ctx := context.Background()
	g := newGoal("House", base)
	require.NoError(t, s.InsertGoal(ctx, g))

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx generic.Store) error {
		entry := deposit(g.ID, "50")
		if err := tx.AppendTransaction(ctx, entry); err != nil {
			return err
		}
		goal, err := tx.GetGoalForUpdate(ctx, g.ID)
		if err != nil {
			return err
		}
		goal.CurrentAmount = goal.CurrentAmount.Add(entry.Amount)
		if err := tx.UpdateGoal(ctx, goal); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	txs, err := s.LoadTransactions(ctx, g.ID)
	require.NoError(t, err)
	assert.Empty(t, txs)
	got, err := s.GetGoal(ctx, g.ID)
	require.NoError(t, err)
	assert.True(t, got.CurrentAmount.IsZero())
	assert.Equal(t, int64(0), got.Version)
}

func testWithTxCommit(t *testing.T, s generic.TxStore) {
	ctx := context.Background()
	g := newGoal("Watch", base)

	err := s.WithTx(ctx, func(tx generic.Store) error {
		if err := tx.InsertGoal(ctx, g); err != nil {
			return err
		}
		entry := deposit(g.ID, "12.34")
		if err := tx.AppendTransaction(ctx, entry); err != nil {
			return err
		}
		loaded, err := tx.LoadTransactions(ctx, g.ID)
		if err != nil {
			return err
		}
		if len(loaded) != 1 {
			return errors.New("own write not visible inside tx")
		}
		goal, err := tx.GetGoalForUpdate(ctx, g.ID)
		if err != nil {
			return err
		}
		goal.CurrentAmount = generic.Sum(loaded)
		return tx.UpdateGoal(ctx, goal)
	})
	require.NoError(t, err)

	got, err := s.GetGoal(ctx, g.ID)
	require.NoError(t, err)
	assert.True(t, got.CurrentAmount.Equal(decimal.RequireFromString("12.34")))
	assert.Equal(t, int64(1), got.Version)
}
