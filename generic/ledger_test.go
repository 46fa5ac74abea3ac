package generic_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/savings-engine/generic"
	"github.com/warp/savings-engine/generic/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var testNow = time.Date(2026, time.October, 16, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestLedger(t *testing.T) (*generic.DefaultLedger, *store.Memory, generic.GoalID) {
	t.Helper()
	mem := store.NewMemory()
	goal := generic.Goal{
		ID:           generic.NewGoalID(),
		Name:         "Emergency fund",
		TargetAmount: dec("1000000"),
		Priority:     generic.PriorityHigh,
		IsActive:     true,
		CreatedAt:    testNow,
		UpdatedAt:    testNow,
	}
	require.NoError(t, mem.InsertGoal(context.Background(), goal))
	return generic.NewLedger(mem), mem, goal.ID
}

func entry(goalID generic.GoalID, txType generic.TransactionType, amount string) generic.Transaction {
	return generic.NewTransaction(goalID, txType, dec(amount), "", testNow)
}

// =============================================================================
// APPEND VALIDATION
// =============================================================================

func TestLedger_Append_RejectsNonPositiveAmounts(t *testing.T) {
	ledger, _, goalID := newTestLedger(t)
	ctx := context.Background()

	for _, amount := range []string{"0", "-5", "-0.01"} {
		t.Run(amount, func(t *testing.T) {
			err := ledger.Append(ctx, entry(goalID, generic.TxDeposit, amount))
			assert.ErrorIs(t, err, generic.ErrInvalidAmount)
		})
	}

	txs, err := ledger.ListFor(ctx, goalID)
	require.NoError(t, err)
	assert.Empty(t, txs, "rejected entries must not be persisted")
}

func TestLedger_Append_RejectsSubCentAmounts(t *testing.T) {
	ledger, _, goalID := newTestLedger(t)

	err := ledger.Append(context.Background(), entry(goalID, generic.TxDeposit, "10.005"))
	assert.ErrorIs(t, err, generic.ErrInvalidAmount)
}

func TestLedger_Append_RejectsOutOfRangeAmounts(t *testing.T) {
	ledger, _, goalID := newTestLedger(t)
	ctx := context.Background()

	amounts := []string{
		"1e100000",
		"1e10000000",
		"1e-10000000",
		"-1e10000000",
		"1000000000000000000",
		"999999999999999999.999",
	}
	for _, amount := range amounts {
		t.Run(amount, func(t *testing.T) {
			done := make(chan error, 1)
			go func() { done <- ledger.Append(ctx, entry(goalID, generic.TxDeposit, amount)) }()

			select {
			case err := <-done:
				assert.ErrorIs(t, err, generic.ErrInvalidAmount)
			case <-time.After(2 * time.Second):
				t.Fatalf("validation of %s did not return", amount)
			}
		})
	}

	require.NoError(t, ledger.Append(ctx, entry(goalID, generic.TxDeposit, "999999999999999999.99")))
	txs, err := ledger.ListFor(ctx, goalID)
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func TestInMoneyRange(t *testing.T) {
	tests := []struct {
		in         string
		inRange    bool
		moneyScale bool
	}{
		{"0.01", true, true},
		{"12.50", true, true},
		{"1.000", true, true},
		{"10.005", true, false},
		{"999999999999999999.99", true, true},
		{"-999999999999999999.99", true, true},
		{"1000000000000000000", false, true},
		{"1e18", false, true},
		{"1e100000", false, true},
		{"1e-10000000", true, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			d := dec(tt.in)
			assert.Equal(t, tt.inRange, generic.InMoneyRange(d))
			assert.Equal(t, tt.moneyScale, generic.HasMoneyScale(d))
		})
	}
}

func TestLedger_Append_RejectsUnknownType(t *testing.T) {
	ledger, _, goalID := newTestLedger(t)

	err := ledger.Append(context.Background(), entry(goalID, "transfer", "10"))
	assert.ErrorIs(t, err, generic.ErrValidation)
}

func TestLedger_Append_DuplicateIdempotencyKey(t *testing.T) {
	// GIVEN: A deposit recorded under key "salary-2026-10"
	// WHEN: The same key is posted again
	// THEN: The second append is rejected and the sum is unchanged
	ledger, _, goalID := newTestLedger(t)
	ctx := context.Background()

	first := entry(goalID, generic.TxDeposit, "100")
	first.IdempotencyKey = "salary-2026-10"
	require.NoError(t, ledger.Append(ctx, first))

	second := entry(goalID, generic.TxDeposit, "100")
	second.IdempotencyKey = "salary-2026-10"
	assert.ErrorIs(t, ledger.Append(ctx, second), generic.ErrDuplicateIdempotencyKey)

	sum, err := ledger.SumFor(ctx, goalID)
	require.NoError(t, err)
	assert.True(t, sum.Equal(dec("100")))
}

// =============================================================================
// READS
// =============================================================================

func TestLedger_ListFor_InsertionOrder(t *testing.T) {
	// GIVEN: A backdated deposit appended after a current one
	// THEN: ListFor still returns insertion order, not date order
	ledger, _, goalID := newTestLedger(t)
	ctx := context.Background()

	current := entry(goalID, generic.TxDeposit, "50")
	backdated := entry(goalID, generic.TxDeposit, "20")
	backdated.Date = testNow.AddDate(0, -1, 0)

	require.NoError(t, ledger.Append(ctx, current))
	require.NoError(t, ledger.Append(ctx, backdated))

	txs, err := ledger.ListFor(ctx, goalID)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, current.ID, txs[0].ID)
	assert.Equal(t, backdated.ID, txs[1].ID)

	again, err := ledger.ListFor(ctx, goalID)
	require.NoError(t, err)
	assert.Equal(t, txs, again, "repeated reads must be identical")
}

func TestLedger_ListFor_EmptyIsNotNil(t *testing.T) {
	ledger, _, goalID := newTestLedger(t)

	txs, err := ledger.ListFor(context.Background(), goalID)
	require.NoError(t, err)
	assert.NotNil(t, txs)
	assert.Empty(t, txs)
}

func TestLedger_SumFor_DepositsMinusWithdrawals(t *testing.T) {
	ledger, _, goalID := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, ledger.Append(ctx, entry(goalID, generic.TxDeposit, "300000")))
	require.NoError(t, ledger.Append(ctx, entry(goalID, generic.TxWithdraw, "120000.50")))
	require.NoError(t, ledger.Append(ctx, entry(goalID, generic.TxDeposit, "0.50")))

	sum, err := ledger.SumFor(ctx, goalID)
	require.NoError(t, err)
	assert.Equal(t, "180000", sum.String())
}

func TestTransaction_Delta(t *testing.T) {
	dep := entry("g", generic.TxDeposit, "10")
	wd := entry("g", generic.TxWithdraw, "10")

	assert.True(t, dep.Delta().Equal(dec("10")))
	assert.True(t, wd.Delta().Equal(dec("-10")))
}

func TestParseGoalID(t *testing.T) {
	id := generic.NewGoalID()

	parsed, err := generic.ParseGoalID(" " + string(id) + " ")
	require.NoError(t, err)
	assert.Equal(t, id, parsed)

	_, err = generic.ParseGoalID("not-a-uuid")
	assert.ErrorIs(t, err, generic.ErrNotFound)
}

func TestParsePriority(t *testing.T) {
	tests := map[string]generic.Priority{
		"High":   generic.PriorityHigh,
		"low":    generic.PriorityLow,
		"MEDIUM": generic.PriorityMedium,
		"":       generic.PriorityMedium,
	}
	for in, want := range tests {
		got, err := generic.ParsePriority(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := generic.ParsePriority("urgent")
	assert.ErrorIs(t, err, generic.ErrValidation)
}
