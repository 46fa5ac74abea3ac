package savings_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/savings-engine/generic"
	"github.com/warp/savings-engine/savings"
)

func TestReconciler_RunNow(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*savings.Goals, generic.GoalID, generic.GoalID) {
		goals, mem := newGoals(t, savings.Options{})
		clean := createGoal(t, goals, "1000")
		drifted := createGoal(t, goals, "1000")
		for _, id := range []generic.GoalID{clean.ID, drifted.ID} {
			_, err := goals.Deposit(ctx, id, deposit("50"))
			require.NoError(t, err)
		}
		injectDrift(t, mem, drifted.ID, "70")
		return goals, clean.ID, drifted.ID
	}

	t.Run("report only", func(t *testing.T) {
		goals, _, drifted := setup(t)
		rec := savings.NewReconciler(goals, 0, false)

		report := rec.RunNow(ctx)
		assert.Equal(t, 2, report.Checked)
		assert.Equal(t, []generic.GoalID{drifted}, report.Drifted)
		assert.Equal(t, 0, report.Repaired)

		assert.ErrorIs(t, goals.Verify(ctx, drifted), generic.ErrConsistencyFailure)
	})

	t.Run("auto repair", func(t *testing.T) {
		goals, _, drifted := setup(t)
		rec := savings.NewReconciler(goals, 0, true)

		report := rec.RunNow(ctx)
		assert.Equal(t, 1, report.Repaired)
		assert.Equal(t, 0, report.Failed)
		assert.NoError(t, goals.Verify(ctx, drifted))

		last := rec.LastReport()
		require.NotNil(t, last)
		assert.Equal(t, 1, last.Repaired)
	})
}

func TestReconciler_StartStop(t *testing.T) {
	goals, _ := newGoals(t, savings.Options{})
	createGoal(t, goals, "1000")
	rec := savings.NewReconciler(goals, 5*time.Millisecond, true)
	assert.Nil(t, rec.LastReport())

	rec.Start()
	rec.Start() // idempotent
	assert.Eventually(t, func() bool { return rec.LastReport() != nil }, time.Second, 5*time.Millisecond)
	rec.Stop()
	rec.Stop()

	assert.Equal(t, 1, rec.LastReport().Checked)
}

func TestReconciler_DisabledDoesNotStart(t *testing.T) {
	goals, _ := newGoals(t, savings.Options{})
	rec := savings.NewReconciler(goals, 0, false)

	rec.Start()
	time.Sleep(10 * time.Millisecond)
	assert.Nil(t, rec.LastReport())
	rec.Stop()
}
