/*
projection.go - Savings pace projection

PURPOSE:
  Answers "at the current pace, when will this goal be funded, and how much
  has to go in each month to make the deadline?" It reads the goal and its
  ledger and never writes anything.

PACE:
  The monthly average is the net saved amount divided by the months since
  the goal's first ledger entry (effective date), counted as at least one
  month so a goal funded yesterday does not project a huge pace.

  A month is AverageMonthDays long. Results are rounded to MoneyScale;
  the required contribution rounds up so following it always finishes in
  time.

STATUS:
  completed    CurrentAmount >= TargetAmount
  stalled      no positive pace to project from, or completion further
               out than MaxProjectionDays
  no_deadline  projecting, but there is nothing to compare against
  on_track     projected completion on or before the deadline
  behind       projected completion after the deadline

EXAMPLE:
  pace := generic.ProjectPace(goal, txs, now)
  if pace.Status == generic.PaceBehind {
      fmt.Println("save", pace.MonthlyRequired, "per month to catch up")
  }

SEE ALSO:
  - progress.go: Point-in-time progress and deadline math
  - ledger.go: Where the history comes from
*/
package generic

import (
	"time"

	"github.com/shopspring/decimal"
)

// AverageMonthDays is the Gregorian mean month length.
const AverageMonthDays = 30.436875

var averageMonth = decimal.NewFromFloat(AverageMonthDays)

// MaxProjectionDays caps how far ahead a completion date is projected.
const MaxProjectionDays = 100 * 365

type PaceStatus string

const (
	PaceCompleted  PaceStatus = "completed"
	PaceStalled    PaceStatus = "stalled"
	PaceNoDeadline PaceStatus = "no_deadline"
	PaceOnTrack    PaceStatus = "on_track"
	PaceBehind     PaceStatus = "behind"
)

// Pace is the projection for one goal as of a point in time.
type Pace struct {
	Status PaceStatus

	// MonthlyAverage is the net amount saved per month so far.
	MonthlyAverage decimal.Decimal

	// MonthlyRequired is what must be saved per month from now on to reach
	// the target by the deadline. Zero without a deadline or when completed.
	MonthlyRequired decimal.Decimal

	// ProjectedCompletion is the UTC date the target is reached at
	// MonthlyAverage. nil when completed or stalled.
	ProjectedCompletion *time.Time

	// SavingSince is the effective date of the earliest ledger entry.
	SavingSince *time.Time
}

// ProjectPace derives the goal's pace from its ledger.
func ProjectPace(g Goal, txs []Transaction, now time.Time) Pace {
	pace := Pace{
		MonthlyAverage:  decimal.Zero,
		MonthlyRequired: decimal.Zero,
	}

	if first, ok := earliestDate(txs); ok {
		pace.SavingSince = &first
		months := monthsBetween(first, now)
		if months.LessThan(decimal.NewFromInt(1)) {
			months = decimal.NewFromInt(1)
		}
		pace.MonthlyAverage = g.CurrentAmount.Div(months).Round(MoneyScale)
	}

	if IsCompleted(g) {
		pace.Status = PaceCompleted
		return pace
	}

	remaining := Remaining(g)
	if g.Deadline != nil {
		monthsLeft := monthsBetween(now, *g.Deadline)
		if monthsLeft.LessThan(decimal.NewFromInt(1)) {
			// due this month, or already overdue
			pace.MonthlyRequired = remaining
		} else {
			pace.MonthlyRequired = remaining.Div(monthsLeft).RoundCeil(MoneyScale)
		}
	}

	if !pace.MonthlyAverage.IsPositive() {
		pace.Status = PaceStalled
		return pace
	}

	days := remaining.Div(pace.MonthlyAverage).Mul(averageMonth).Ceil()
	if days.GreaterThan(decimal.NewFromInt(MaxProjectionDays)) {
		pace.Status = PaceStalled
		return pace
	}
	completion := DateOf(now).AddDate(0, 0, int(days.IntPart()))
	pace.ProjectedCompletion = &completion

	switch {
	case g.Deadline == nil:
		pace.Status = PaceNoDeadline
	case completion.After(*g.Deadline):
		pace.Status = PaceBehind
	default:
		pace.Status = PaceOnTrack
	}
	return pace
}

func earliestDate(txs []Transaction) (time.Time, bool) {
	if len(txs) == 0 {
		return time.Time{}, false
	}
	first := txs[0].Date
	for _, tx := range txs[1:] {
		if tx.Date.Before(first) {
			first = tx.Date
		}
	}
	return DateOf(first), true
}

// monthsBetween is (to - from) in average months, zero if to is not after from.
func monthsBetween(from, to time.Time) decimal.Decimal {
	if !to.After(from) {
		return decimal.Zero
	}
	days := decimal.NewFromFloat(to.Sub(from).Hours() / 24)
	return days.Div(averageMonth)
}
