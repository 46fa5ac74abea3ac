package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/savings-engine/generic"
	"github.com/warp/savings-engine/generic/store"
	"github.com/warp/savings-engine/generic/storetest"
)

func newGoal(name string, createdAt time.Time) generic.Goal {
	return generic.Goal{
		ID:           generic.NewGoalID(),
		Name:         name,
		TargetAmount: decimal.NewFromInt(1000),
		Priority:     generic.PriorityMedium,
		IsActive:     true,
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
	}
}

func TestMemory_GoalLifecycle(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	g := newGoal("Car", now)
	require.NoError(t, mem.InsertGoal(ctx, g))

	got, err := mem.GetGoal(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, "Car", got.Name)

	got.Name = "New car"
	require.NoError(t, mem.UpdateGoal(ctx, got))
	assert.Equal(t, int64(1), got.Version)

	stale := g
	stale.Name = "stale write"
	assert.ErrorIs(t, mem.UpdateGoal(ctx, &stale), generic.ErrConcurrentModification)

	require.NoError(t, mem.DeleteGoal(ctx, g.ID))
	_, err = mem.GetGoal(ctx, g.ID)
	assert.ErrorIs(t, err, generic.ErrNotFound)
	assert.ErrorIs(t, mem.DeleteGoal(ctx, g.ID), generic.ErrNotFound)
}

func TestMemory_ListGoals_OrderAndFilter(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	second := newGoal("second", base.Add(time.Hour))
	first := newGoal("first", base)
	inactive := newGoal("inactive", base.Add(2*time.Hour))
	inactive.IsActive = false

	for _, g := range []generic.Goal{second, first, inactive} {
		require.NoError(t, mem.InsertGoal(ctx, g))
	}

	all, err := mem.ListGoals(ctx, generic.GoalFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "first", all[0].Name)
	assert.Equal(t, "second", all[1].Name)

	active, err := mem.ListGoals(ctx, generic.GoalFilter{ActiveOnly: true})
	require.NoError(t, err)
	assert.Len(t, active, 2)
}

func TestMemory_AppendRequiresGoal(t *testing.T) {
	mem := store.NewMemory()
	tx := generic.NewTransaction(generic.NewGoalID(), generic.TxDeposit, decimal.NewFromInt(5), "", time.Now())

	assert.ErrorIs(t, mem.AppendTransaction(context.Background(), tx), generic.ErrNotFound)
}

func TestMemory_DeleteGoalCascades(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	g := newGoal("Trip", time.Now())
	require.NoError(t, mem.InsertGoal(ctx, g))

	tx := generic.NewTransaction(g.ID, generic.TxDeposit, decimal.NewFromInt(5), "", time.Now())
	tx.IdempotencyKey = "k1"
	require.NoError(t, mem.AppendTransaction(ctx, tx))

	require.NoError(t, mem.DeleteGoal(ctx, g.ID))

	txs, err := mem.LoadTransactions(ctx, g.ID)
	require.NoError(t, err)
	assert.Empty(t, txs)
	exists, err := mem.IdempotencyKeyExists(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMemory_WithTx_RollbackOnError(t *testing.T) {
	// GIVEN: A goal with a zero balance
	// WHEN: A unit appends a transaction, updates the balance, then fails
	// THEN: Neither write is visible afterwards
	mem := store.NewMemory()
	ctx := context.Background()
	g := newGoal("Laptop", time.Now())
	require.NoError(t, mem.InsertGoal(ctx, g))

	boom := errors.New("boom")
	err := mem.WithTx(ctx, func(s generic.Store) error {
		tx := generic.NewTransaction(g.ID, generic.TxDeposit, decimal.NewFromInt(50), "", time.Now())
		if err := s.AppendTransaction(ctx, tx); err != nil {
			return err
		}
		goal, err := s.GetGoalForUpdate(ctx, g.ID)
		if err != nil {
			return err
		}
		goal.CurrentAmount = goal.CurrentAmount.Add(tx.Amount)
		if err := s.UpdateGoal(ctx, goal); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	txs, err := mem.LoadTransactions(ctx, g.ID)
	require.NoError(t, err)
	assert.Empty(t, txs)

	got, err := mem.GetGoal(ctx, g.ID)
	require.NoError(t, err)
	assert.True(t, got.CurrentAmount.IsZero())
	assert.Equal(t, int64(0), got.Version)
}

func TestMemory_WithTx_Commit(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	g := newGoal("Bike", time.Now())

	err := mem.WithTx(ctx, func(s generic.Store) error {
		if err := s.InsertGoal(ctx, g); err != nil {
			return err
		}
		return s.AppendTransaction(ctx, generic.NewTransaction(g.ID, generic.TxDeposit, decimal.NewFromInt(1), "", time.Now()))
	})
	require.NoError(t, err)

	txs, err := mem.LoadTransactions(ctx, g.ID)
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func TestMemory_Conformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) generic.TxStore { return store.NewMemory() })
}
