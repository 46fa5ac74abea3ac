/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  Amounts are decimal strings in responses ("1250.5"). Requests accept
  either a JSON string or a JSON number; the literal text is kept so no
  value passes through a float64.

DATES:
  Deadlines and transaction dates are YYYY-MM-DD. Timestamps are RFC 3339.

SEE ALSO:
  - handlers.go: Uses these types
  - savings/service.go: Request and view types these map onto
*/
package api

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/savings-engine/generic"
	"github.com/warp/savings-engine/savings"
)

// =============================================================================
// AMOUNT
// =============================================================================

// Amount is a money value taken verbatim from the request body.
type Amount string

func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = Amount(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*a = Amount(n)
	return nil
}

// =============================================================================
// GOALS
// =============================================================================

// GoalDTO represents a goal with its derived dashboard fields.
type GoalDTO struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Category      string          `json:"category"`
	TargetAmount  decimal.Decimal `json:"target_amount"`
	CurrentAmount decimal.Decimal `json:"current_amount"`
	Deadline      *string         `json:"deadline"`
	Priority      string          `json:"priority"`
	IsActive      bool            `json:"is_active"`
	Color         string          `json:"color"`
	Icon          string          `json:"icon"`
	CreatedAt     string          `json:"created_at"`
	UpdatedAt     string          `json:"updated_at"`

	Progress  decimal.Decimal `json:"progress"`
	Remaining decimal.Decimal `json:"remaining"`
	DaysLeft  *int            `json:"days_left"`
	Overdue   bool            `json:"overdue"`
	Urgency   string          `json:"urgency"`
	Completed bool            `json:"completed"`
}

func toGoalDTO(v savings.GoalView) GoalDTO {
	dto := GoalDTO{
		ID:            string(v.ID),
		Name:          v.Name,
		Description:   v.Description,
		Category:      v.Category,
		TargetAmount:  v.TargetAmount,
		CurrentAmount: v.CurrentAmount,
		Priority:      string(v.Priority),
		IsActive:      v.IsActive,
		Color:         v.Color,
		Icon:          v.Icon,
		CreatedAt:     v.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     v.UpdatedAt.Format(time.RFC3339),
		Progress:      v.Progress,
		Remaining:     v.Remaining,
		DaysLeft:      v.DaysLeft,
		Overdue:       v.Overdue,
		Urgency:       string(v.Urgency),
		Completed:     v.Completed,
	}
	dto.Deadline = formatOptionalDate(v.Deadline)
	return dto
}

func toGoalDTOs(views []savings.GoalView) []GoalDTO {
	dtos := make([]GoalDTO, len(views))
	for i, v := range views {
		dtos[i] = toGoalDTO(v)
	}
	return dtos
}

// CreateGoalRequest is the body of POST /api/goals.
type CreateGoalRequest struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	Category     string `json:"category"`
	TargetAmount Amount `json:"target_amount"`
	Deadline     string `json:"deadline,omitempty"`
	Priority     string `json:"priority,omitempty"`
	Color        string `json:"color,omitempty"`
	Icon         string `json:"icon,omitempty"`
}

func (r CreateGoalRequest) toService() savings.CreateGoalRequest {
	return savings.CreateGoalRequest{
		Name:         r.Name,
		Description:  r.Description,
		Category:     r.Category,
		TargetAmount: string(r.TargetAmount),
		Deadline:     r.Deadline,
		Priority:     r.Priority,
		Color:        r.Color,
		Icon:         r.Icon,
	}
}

// UpdateGoalRequest is the body of PUT/PATCH /api/goals/{id}. Absent fields
// are left unchanged; "deadline": "" clears the deadline.
type UpdateGoalRequest struct {
	Name           *string `json:"name"`
	Description    *string `json:"description"`
	Category       *string `json:"category"`
	TargetAmount   *Amount `json:"target_amount"`
	Deadline       *string `json:"deadline"`
	Priority       *string `json:"priority"`
	IsActive       *bool   `json:"is_active"`
	Color          *string `json:"color"`
	Icon           *string `json:"icon"`
	OverrideTarget bool    `json:"override_target"`
}

func (r UpdateGoalRequest) toService() savings.UpdateGoalRequest {
	req := savings.UpdateGoalRequest{
		Name:           r.Name,
		Description:    r.Description,
		Category:       r.Category,
		Deadline:       r.Deadline,
		Priority:       r.Priority,
		IsActive:       r.IsActive,
		Color:          r.Color,
		Icon:           r.Icon,
		OverrideTarget: r.OverrideTarget,
	}
	if r.TargetAmount != nil {
		s := string(*r.TargetAmount)
		req.TargetAmount = &s
	}
	return req
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// TransactionRequest is the body of deposit and withdraw calls. The
// Idempotency-Key header takes precedence over the body field.
type TransactionRequest struct {
	Amount         Amount `json:"amount"`
	Description    string `json:"description,omitempty"`
	Date           string `json:"date,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// TransactionDTO is one ledger entry with the balance right after it.
type TransactionDTO struct {
	ID             string          `json:"id"`
	GoalID         string          `json:"goal_id"`
	Type           string          `json:"type"`
	Amount         decimal.Decimal `json:"amount"`
	Description    string          `json:"description"`
	Date           string          `json:"date"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	CreatedAt      string          `json:"created_at"`
	BalanceAfter   decimal.Decimal `json:"balance_after"`
}

func toTransactionDTOs(views []savings.TransactionView) []TransactionDTO {
	dtos := make([]TransactionDTO, len(views))
	for i, v := range views {
		dtos[i] = TransactionDTO{
			ID:             string(v.ID),
			GoalID:         string(v.GoalID),
			Type:           string(v.Type),
			Amount:         v.Amount,
			Description:    v.Description,
			Date:           v.Date.Format(generic.DateLayout),
			IdempotencyKey: v.IdempotencyKey,
			CreatedAt:      v.CreatedAt.Format(time.RFC3339),
			BalanceAfter:   v.BalanceAfter,
		}
	}
	return dtos
}

// PaceDTO is the savings pace projection of one goal.
type PaceDTO struct {
	Status              string          `json:"status"`
	MonthlyAverage      decimal.Decimal `json:"monthly_average"`
	MonthlyRequired     decimal.Decimal `json:"monthly_required"`
	ProjectedCompletion *string         `json:"projected_completion"`
	SavingSince         *string         `json:"saving_since"`
}

func toPaceDTO(p *generic.Pace) PaceDTO {
	return PaceDTO{
		Status:              string(p.Status),
		MonthlyAverage:      p.MonthlyAverage,
		MonthlyRequired:     p.MonthlyRequired,
		ProjectedCompletion: formatOptionalDate(p.ProjectedCompletion),
		SavingSince:         formatOptionalDate(p.SavingSince),
	}
}

func formatOptionalDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(generic.DateLayout)
	return &s
}

// =============================================================================
// SUMMARY & ADMIN
// =============================================================================

// SummaryDTO aggregates active goals.
type SummaryDTO struct {
	TotalSaved      decimal.Decimal `json:"total_saved"`
	TotalTarget     decimal.Decimal `json:"total_target"`
	OverallProgress decimal.Decimal `json:"overall_progress"`
	ActiveGoals     int             `json:"active_goals"`
	CompletedGoals  int             `json:"completed_goals"`
	OverdueGoals    int             `json:"overdue_goals"`
	CriticalGoals   int             `json:"critical_goals"`
}

func toSummaryDTO(s *savings.Summary) SummaryDTO {
	return SummaryDTO{
		TotalSaved:      s.TotalSaved,
		TotalTarget:     s.TotalTarget,
		OverallProgress: s.OverallProgress,
		ActiveGoals:     s.ActiveGoals,
		CompletedGoals:  s.CompletedGoals,
		OverdueGoals:    s.OverdueGoals,
		CriticalGoals:   s.CriticalGoals,
	}
}

// VerifyDTO is the result of a single-goal consistency check.
type VerifyDTO struct {
	GoalID     string `json:"goal_id"`
	Consistent bool   `json:"consistent"`
}

// ReconcileReportDTO summarizes one reconciliation sweep.
type ReconcileReportDTO struct {
	StartedAt  string   `json:"started_at"`
	FinishedAt string   `json:"finished_at"`
	Checked    int      `json:"checked"`
	Drifted    []string `json:"drifted"`
	Repaired   int      `json:"repaired"`
	Failed     int      `json:"failed"`
}

func toReconcileReportDTO(r savings.ReconcileReport) ReconcileReportDTO {
	drifted := make([]string, len(r.Drifted))
	for i, id := range r.Drifted {
		drifted[i] = string(id)
	}
	return ReconcileReportDTO{
		StartedAt:  r.StartedAt.Format(time.RFC3339),
		FinishedAt: r.FinishedAt.Format(time.RFC3339),
		Checked:    r.Checked,
		Drifted:    drifted,
		Repaired:   r.Repaired,
		Failed:     r.Failed,
	}
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}
