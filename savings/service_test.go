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

func newService(t *testing.T) *savings.Service {
	t.Helper()
	goals, _ := newGoals(t, savings.Options{})
	return savings.NewService(goals, generic.UrgencyThresholds{})
}

func ptr[T any](v T) *T { return &v }

func TestService_CreateGoal_Validation(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  savings.CreateGoalRequest
		want error
	}{
		{"missing name", savings.CreateGoalRequest{TargetAmount: "100"}, generic.ErrValidation},
		{"target not a number", savings.CreateGoalRequest{Name: "x", TargetAmount: "lots"}, generic.ErrInvalidTarget},
		{"zero target", savings.CreateGoalRequest{Name: "x", TargetAmount: "0"}, generic.ErrInvalidTarget},
		{"bad priority", savings.CreateGoalRequest{Name: "x", TargetAmount: "1", Priority: "urgent"}, generic.ErrValidation},
		{"bad deadline", savings.CreateGoalRequest{Name: "x", TargetAmount: "1", Deadline: "next year"}, generic.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateGoal(ctx, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	views, err := svc.ListGoals(ctx, false)
	require.NoError(t, err)
	assert.NotNil(t, views)
	assert.Empty(t, views)
}

func TestService_MalformedIDIsNotFound(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	_, err := svc.GetGoal(ctx, "42")
	assert.ErrorIs(t, err, generic.ErrNotFound)
	_, err = svc.DepositToGoal(ctx, "42", savings.TransactionRequest{Amount: "10"})
	assert.ErrorIs(t, err, generic.ErrNotFound)
	assert.ErrorIs(t, svc.DeleteGoal(ctx, "42"), generic.ErrNotFound)
}

func TestService_DepositToGoal_AmountParsing(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	g, err := svc.CreateGoal(ctx, savings.CreateGoalRequest{Name: "Car", TargetAmount: "1000"})
	require.NoError(t, err)

	for _, amount := range []string{"", "ten", "0", "-5", "1.001"} {
		_, err := svc.DepositToGoal(ctx, string(g.ID), savings.TransactionRequest{Amount: amount})
		assert.ErrorIs(t, err, generic.ErrInvalidAmount, "amount %q", amount)
	}

	_, err = svc.DepositToGoal(ctx, string(g.ID), savings.TransactionRequest{Amount: "10", Date: "yesterday"})
	assert.ErrorIs(t, err, generic.ErrValidation)

	txs, err := svc.ListTransactions(ctx, string(g.ID))
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestService_RejectsAmountsBeyondColumnRange(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	_, err := svc.CreateGoal(ctx, savings.CreateGoalRequest{Name: "Moon", TargetAmount: "1e100000"})
	assert.ErrorIs(t, err, generic.ErrInvalidTarget)

	g, err := svc.CreateGoal(ctx, savings.CreateGoalRequest{Name: "Moon", TargetAmount: "999999999999999999.99"})
	require.NoError(t, err)
	id := string(g.ID)

	_, err = svc.UpdateGoal(ctx, id, savings.UpdateGoalRequest{TargetAmount: ptr("1e10000000")})
	assert.ErrorIs(t, err, generic.ErrInvalidTarget)

	for _, amount := range []string{"1e100000", "1e10000000", "1e-10000000"} {
		done := make(chan error, 1)
		go func() {
			_, err := svc.DepositToGoal(ctx, id, savings.TransactionRequest{Amount: amount})
			done <- err
		}()
		select {
		case err := <-done:
			assert.ErrorIs(t, err, generic.ErrInvalidAmount, "amount %s", amount)
		case <-time.After(2 * time.Second):
			t.Fatalf("deposit of %s did not return", amount)
		}
	}

	_, err = svc.DepositToGoal(ctx, id, savings.TransactionRequest{Amount: "999999999999999999"})
	require.NoError(t, err)
	_, err = svc.DepositToGoal(ctx, id, savings.TransactionRequest{Amount: "1"})
	assert.ErrorIs(t, err, generic.ErrInvalidAmount, "balance stays within column range")

	view, err := svc.GetGoal(ctx, id)
	require.NoError(t, err)
	assert.True(t, view.CurrentAmount.Equal(dec("999999999999999999")))
	txs, err := svc.ListTransactions(ctx, id)
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func TestService_Summary(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	for _, target := range []string{"1000000", "4000000"} {
		g, err := svc.CreateGoal(ctx, savings.CreateGoalRequest{Name: "goal", TargetAmount: target})
		require.NoError(t, err)
		_, err = svc.DepositToGoal(ctx, string(g.ID), savings.TransactionRequest{Amount: "500000"})
		require.NoError(t, err)
	}

	sum, err := svc.Summary(ctx)
	require.NoError(t, err)
	assert.True(t, sum.TotalSaved.Equal(dec("1000000")))
	assert.True(t, sum.TotalTarget.Equal(dec("5000000")))
	assert.True(t, sum.OverallProgress.Equal(dec("20")))
	assert.Equal(t, 2, sum.ActiveGoals)
}

func TestService_DeadlineUrgency(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	soon, err := svc.CreateGoal(ctx, savings.CreateGoalRequest{
		Name: "Trip", TargetAmount: "1000", Deadline: testNow.AddDate(0, 0, 10).Format(generic.DateLayout),
	})
	require.NoError(t, err)
	require.NotNil(t, soon.DaysLeft)
	assert.Equal(t, 10, *soon.DaysLeft)
	assert.Equal(t, generic.UrgencyWarning, soon.Urgency)
	assert.False(t, soon.Overdue)

	late, err := svc.CreateGoal(ctx, savings.CreateGoalRequest{
		Name: "Gift", TargetAmount: "1000", Deadline: testNow.AddDate(0, 0, -1).Format(generic.DateLayout),
	})
	require.NoError(t, err)
	require.NotNil(t, late.DaysLeft)
	assert.Negative(t, *late.DaysLeft)
	assert.Equal(t, generic.UrgencyCritical, late.Urgency)
	assert.True(t, late.Overdue)

	open, err := svc.CreateGoal(ctx, savings.CreateGoalRequest{Name: "Someday", TargetAmount: "1000"})
	require.NoError(t, err)
	assert.Nil(t, open.DaysLeft)
	assert.Equal(t, generic.UrgencyNone, open.Urgency)

	sum, err := svc.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.OverdueGoals)
	assert.Equal(t, 1, sum.CriticalGoals)
}

func TestService_UpdateGoal(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	g, err := svc.CreateGoal(ctx, savings.CreateGoalRequest{
		Name: "Bike", TargetAmount: "500", Deadline: "2026-12-01",
	})
	require.NoError(t, err)

	t.Run("partial update", func(t *testing.T) {
		updated, err := svc.UpdateGoal(ctx, string(g.ID), savings.UpdateGoalRequest{
			Priority: ptr("low"),
			Color:    ptr("#00ff00"),
		})
		require.NoError(t, err)
		assert.Equal(t, generic.PriorityLow, updated.Priority)
		assert.Equal(t, "Bike", updated.Name)
		require.NotNil(t, updated.Deadline)
	})

	t.Run("empty deadline clears it", func(t *testing.T) {
		updated, err := svc.UpdateGoal(ctx, string(g.ID), savings.UpdateGoalRequest{Deadline: ptr("")})
		require.NoError(t, err)
		assert.Nil(t, updated.Deadline)
		assert.Equal(t, generic.UrgencyNone, updated.Urgency)
	})

	t.Run("blank name rejected", func(t *testing.T) {
		_, err := svc.UpdateGoal(ctx, string(g.ID), savings.UpdateGoalRequest{Name: ptr("  ")})
		assert.ErrorIs(t, err, generic.ErrValidation)
	})

	t.Run("deactivate", func(t *testing.T) {
		updated, err := svc.UpdateGoal(ctx, string(g.ID), savings.UpdateGoalRequest{IsActive: ptr(false)})
		require.NoError(t, err)
		assert.False(t, updated.IsActive)

		active, err := svc.ListGoals(ctx, true)
		require.NoError(t, err)
		assert.Empty(t, active)
	})
}

func TestService_ListTransactions_RunningBalance(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	g, err := svc.CreateGoal(ctx, savings.CreateGoalRequest{Name: "Laptop", TargetAmount: "2000"})
	require.NoError(t, err)
	id := string(g.ID)

	_, err = svc.DepositToGoal(ctx, id, savings.TransactionRequest{Amount: "500", Description: "bonus"})
	require.NoError(t, err)
	_, err = svc.WithdrawFromGoal(ctx, id, savings.TransactionRequest{Amount: "120.25"})
	require.NoError(t, err)
	view, err := svc.DepositToGoal(ctx, id, savings.TransactionRequest{Amount: "20.25", Date: "2026-09-01"})
	require.NoError(t, err)
	assert.True(t, view.CurrentAmount.Equal(dec("400")))
	assert.True(t, view.Progress.Equal(dec("20")))
	assert.True(t, view.Remaining.Equal(dec("1600")))

	txs, err := svc.ListTransactions(ctx, id)
	require.NoError(t, err)
	require.Len(t, txs, 3)
	assert.True(t, txs[0].BalanceAfter.Equal(dec("500")))
	assert.True(t, txs[1].BalanceAfter.Equal(dec("379.75")))
	assert.True(t, txs[2].BalanceAfter.Equal(dec("400")))
	assert.Equal(t, "bonus", txs[0].Description)
	assert.Equal(t, time.Date(2026, time.September, 1, 0, 0, 0, 0, time.UTC), txs[2].Date)

	again, err := svc.ListTransactions(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, txs, again)
}

func TestService_ReconcileAndVerify(t *testing.T) {
	goals, mem := newGoals(t, savings.Options{})
	svc := savings.NewService(goals, generic.DefaultUrgencyThresholds)
	ctx := context.Background()
	g, err := svc.CreateGoal(ctx, savings.CreateGoalRequest{Name: "Fund", TargetAmount: "100"})
	require.NoError(t, err)
	_, err = svc.DepositToGoal(ctx, string(g.ID), savings.TransactionRequest{Amount: "40"})
	require.NoError(t, err)

	injectDrift(t, mem, g.ID, "41")
	assert.ErrorIs(t, svc.VerifyGoal(ctx, string(g.ID)), generic.ErrConsistencyFailure)

	view, err := svc.ReconcileGoal(ctx, string(g.ID))
	require.NoError(t, err)
	assert.True(t, view.CurrentAmount.Equal(dec("40")))
	assert.NoError(t, svc.VerifyGoal(ctx, string(g.ID)))
}

func TestService_ProjectGoal(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	g, err := svc.CreateGoal(ctx, savings.CreateGoalRequest{Name: "Sofa", TargetAmount: "1000"})
	require.NoError(t, err)

	pace, err := svc.ProjectGoal(ctx, string(g.ID))
	require.NoError(t, err)
	assert.Equal(t, generic.PaceStalled, pace.Status)

	_, err = svc.DepositToGoal(ctx, string(g.ID), savings.TransactionRequest{
		Amount: "100", Date: testNow.AddDate(0, 0, -1).Format(generic.DateLayout),
	})
	require.NoError(t, err)

	pace, err = svc.ProjectGoal(ctx, string(g.ID))
	require.NoError(t, err)
	assert.Equal(t, generic.PaceNoDeadline, pace.Status)
	assert.True(t, pace.MonthlyAverage.Equal(dec("100")))
	require.NotNil(t, pace.ProjectedCompletion)

	_, err = svc.ProjectGoal(ctx, string(generic.NewGoalID()))
	assert.ErrorIs(t, err, generic.ErrNotFound)
}
