package generic_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/savings-engine/generic"
)

var paceNow = time.Date(2026, time.October, 16, 12, 0, 0, 0, time.UTC)

func depositOn(g generic.Goal, amount string, date time.Time) generic.Transaction {
	tx := generic.NewTransaction(g.ID, generic.TxDeposit, dec(amount), "", paceNow)
	tx.Date = date
	return tx
}

func withDeadline(g generic.Goal, d time.Time) generic.Goal {
	g.Deadline = &d
	return g
}

func TestProjectPace_Completed(t *testing.T) {
	g := goalWith("500", "500", true)
	txs := []generic.Transaction{depositOn(g, "500", paceNow.AddDate(0, -2, 0))}

	pace := generic.ProjectPace(g, txs, paceNow)

	assert.Equal(t, generic.PaceCompleted, pace.Status)
	assert.True(t, pace.MonthlyRequired.IsZero())
	assert.Nil(t, pace.ProjectedCompletion)
	require.NotNil(t, pace.SavingSince)
	assert.Equal(t, generic.DateOf(paceNow.AddDate(0, -2, 0)), *pace.SavingSince)
}

func TestProjectPace_NothingSaved(t *testing.T) {
	t.Run("no deadline", func(t *testing.T) {
		pace := generic.ProjectPace(goalWith("1000", "0", true), nil, paceNow)
		assert.Equal(t, generic.PaceStalled, pace.Status)
		assert.True(t, pace.MonthlyAverage.IsZero())
		assert.True(t, pace.MonthlyRequired.IsZero())
		assert.Nil(t, pace.SavingSince)
	})

	t.Run("with deadline", func(t *testing.T) {
		// GIVEN: 1200 to save with the deadline roughly six months out
		g := withDeadline(goalWith("1200", "0", true), generic.NewDate(2027, time.April, 16))

		pace := generic.ProjectPace(g, nil, paceNow)

		// THEN: Still stalled, but the required rate covers the whole target
		assert.Equal(t, generic.PaceStalled, pace.Status)
		assert.True(t, pace.MonthlyRequired.GreaterThan(dec("200")), "required %s", pace.MonthlyRequired)
		assert.True(t, pace.MonthlyRequired.LessThan(dec("202")), "required %s", pace.MonthlyRequired)
		assert.True(t, generic.HasMoneyScale(pace.MonthlyRequired))
	})
}

func TestProjectPace_DueThisMonth(t *testing.T) {
	g := withDeadline(goalWith("300", "120", true), generic.NewDate(2026, time.October, 25))
	pace := generic.ProjectPace(g, nil, paceNow)
	assert.True(t, pace.MonthlyRequired.Equal(dec("180")))

	overdue := withDeadline(goalWith("300", "120", true), generic.NewDate(2026, time.October, 1))
	pace = generic.ProjectPace(overdue, nil, paceNow)
	assert.True(t, pace.MonthlyRequired.Equal(dec("180")))
}

func TestProjectPace_FreshGoalCountsAsOneMonth(t *testing.T) {
	// GIVEN: 100 saved yesterday toward 1000, no deadline
	g := goalWith("1000", "100", true)
	txs := []generic.Transaction{depositOn(g, "100", paceNow.AddDate(0, 0, -1))}

	pace := generic.ProjectPace(g, txs, paceNow)

	// THEN: Pace is 100/month and 900 more takes nine average months
	assert.Equal(t, generic.PaceNoDeadline, pace.Status)
	assert.True(t, pace.MonthlyAverage.Equal(dec("100")), "average %s", pace.MonthlyAverage)
	require.NotNil(t, pace.ProjectedCompletion)
	assert.Equal(t, generic.NewDate(2027, time.July, 17), *pace.ProjectedCompletion)
}

func TestProjectPace_OnTrackVersusBehind(t *testing.T) {
	base := goalWith("1000", "100", true)
	txs := []generic.Transaction{
		depositOn(base, "60", paceNow.AddDate(0, 0, -3)),
		depositOn(base, "40", paceNow.AddDate(0, 0, -1)),
	}

	early := generic.ProjectPace(withDeadline(base, generic.NewDate(2027, time.March, 1)), txs, paceNow)
	assert.Equal(t, generic.PaceBehind, early.Status)
	assert.True(t, early.MonthlyRequired.GreaterThan(early.MonthlyAverage))

	late := generic.ProjectPace(withDeadline(base, generic.NewDate(2028, time.January, 1)), txs, paceNow)
	assert.Equal(t, generic.PaceOnTrack, late.Status)
	assert.True(t, late.MonthlyRequired.LessThan(late.MonthlyAverage))
	require.NotNil(t, late.SavingSince)
	assert.Equal(t, generic.DateOf(paceNow.AddDate(0, 0, -3)), *late.SavingSince)
}

func TestProjectPace_SlowHistory(t *testing.T) {
	// GIVEN: 600 saved over six months
	g := goalWith("1200", "600", true)
	txs := []generic.Transaction{
		depositOn(g, "600", paceNow.AddDate(0, -6, 0)),
	}

	pace := generic.ProjectPace(g, txs, paceNow)

	// THEN: Roughly 100 a month
	assert.True(t, pace.MonthlyAverage.GreaterThan(dec("98")), "average %s", pace.MonthlyAverage)
	assert.True(t, pace.MonthlyAverage.LessThan(dec("101")), "average %s", pace.MonthlyAverage)
	require.NotNil(t, pace.ProjectedCompletion)
	assert.True(t, pace.ProjectedCompletion.After(paceNow.AddDate(0, 5, 0)))
}

func TestProjectPace_BeyondHorizonIsStalled(t *testing.T) {
	// GIVEN: A maximal target fed one cent so far
	g := goalWith("999999999999999999.99", "0.01", true)
	txs := []generic.Transaction{depositOn(g, "0.01", paceNow.AddDate(0, 0, -1))}

	pace := generic.ProjectPace(g, txs, paceNow)

	// THEN: No completion date is invented
	assert.Equal(t, generic.PaceStalled, pace.Status)
	assert.Nil(t, pace.ProjectedCompletion)
	assert.True(t, pace.MonthlyAverage.Equal(dec("0.01")))
}
