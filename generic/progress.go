/*
progress.go - Progress and deadline calculator

PURPOSE:
  Pure functions deriving the dashboard's view fields from goal state:
  percent complete, portfolio aggregation across active goals, days to
  deadline and an urgency tier. Nothing here is persisted.

RULES:
  - ProgressPercent is NOT clamped. >= 100 means completed/overshot;
    callers clamp for display.
  - PortfolioTotals skips inactive goals.
  - DaysUntil = ceil((deadline - now) / 24h); negative = overdue.
  - Urgency tiers are display policy. Thresholds are tunable and do not
    affect the ledger.

EXAMPLE:
  target 1,000,000, saved 300,000           -> 30%
  deadline 10 days out, default thresholds  -> warning
  deadline yesterday                        -> -1, critical, overdue
*/
package generic

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ProgressPercent returns CurrentAmount / TargetAmount * 100.
func ProgressPercent(g Goal) decimal.Decimal {
	return percentOf(g.CurrentAmount, g.TargetAmount)
}

// Remaining returns how much is left to save, never below zero.
func Remaining(g Goal) decimal.Decimal {
	left := g.TargetAmount.Sub(g.CurrentAmount)
	if left.IsNegative() {
		return decimal.Zero
	}
	return left
}

// IsCompleted reports whether the goal reached its target.
func IsCompleted(g Goal) bool {
	return g.TargetAmount.IsPositive() && g.CurrentAmount.GreaterThanOrEqual(g.TargetAmount)
}

func percentOf(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Mul(hundred).Div(whole)
}

// =============================================================================
// PORTFOLIO
// =============================================================================

type Portfolio struct {
	TotalSaved      decimal.Decimal
	TotalTarget     decimal.Decimal
	OverallProgress decimal.Decimal
	ActiveGoals     int
	CompletedGoals  int
}

// PortfolioTotals aggregates active goals only.
func PortfolioTotals(goals []Goal) Portfolio {
	p := Portfolio{TotalSaved: decimal.Zero, TotalTarget: decimal.Zero}
	for _, g := range goals {
		if !g.IsActive {
			continue
		}
		p.ActiveGoals++
		p.TotalSaved = p.TotalSaved.Add(g.CurrentAmount)
		p.TotalTarget = p.TotalTarget.Add(g.TargetAmount)
		if IsCompleted(g) {
			p.CompletedGoals++
		}
	}
	p.OverallProgress = percentOf(p.TotalSaved, p.TotalTarget)
	return p
}

// =============================================================================
// DEADLINES
// =============================================================================

// DaysUntil returns nil when there is no deadline.
func DaysUntil(deadline *time.Time, now time.Time) *int {
	if deadline == nil {
		return nil
	}
	days := int(math.Ceil(deadline.Sub(now).Hours() / 24))
	return &days
}

// IsOverdue reports a deadline strictly in the past.
func IsOverdue(days *int) bool {
	return days != nil && *days < 0
}

type Urgency string

const (
	UrgencyNone     Urgency = "none"
	UrgencySafe     Urgency = "safe"
	UrgencyWarning  Urgency = "warning"
	UrgencyCritical Urgency = "critical"
)

// UrgencyThresholds are inclusive upper bounds in days.
type UrgencyThresholds struct {
	Warning  int
	Critical int
}

var DefaultUrgencyThresholds = UrgencyThresholds{Warning: 30, Critical: 7}

// Classify maps days-to-deadline onto a tier. Overdue is always critical.
func (t UrgencyThresholds) Classify(days *int) Urgency {
	switch {
	case days == nil:
		return UrgencyNone
	case *days <= t.Critical:
		return UrgencyCritical
	case *days <= t.Warning:
		return UrgencyWarning
	default:
		return UrgencySafe
	}
}
