package savings

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/savings-engine/generic"
)

// =============================================================================
// REQUESTS
// =============================================================================

// Amounts arrive as strings so no value passes through a float.

type CreateGoalRequest struct {
	Name         string
	Description  string
	Category     string
	TargetAmount string
	Deadline     string // YYYY-MM-DD or RFC 3339, empty = none
	Priority     string
	Color        string
	Icon         string
}

// UpdateGoalRequest is a partial update; nil fields are untouched.
// An empty Deadline clears it.
type UpdateGoalRequest struct {
	Name           *string
	Description    *string
	Category       *string
	TargetAmount   *string
	Deadline       *string
	Priority       *string
	IsActive       *bool
	Color          *string
	Icon           *string
	OverrideTarget bool
}

type TransactionRequest struct {
	Amount         string
	Description    string
	Date           string // optional effective date
	IdempotencyKey string
}

// =============================================================================
// VIEWS
// =============================================================================

// GoalView is a goal plus the fields the dashboard derives from it.
type GoalView struct {
	generic.Goal
	Progress  decimal.Decimal
	Remaining decimal.Decimal
	DaysLeft  *int
	Overdue   bool
	Urgency   generic.Urgency
	Completed bool
}

// TransactionView carries the balance right after the transaction.
type TransactionView struct {
	generic.Transaction
	BalanceAfter decimal.Decimal
}

type Summary struct {
	generic.Portfolio
	OverdueGoals  int
	CriticalGoals int
}

// =============================================================================
// SERVICE
// =============================================================================

// Service is the boundary in front of Goals. It only checks request
// structure; business rules stay in Goals.
type Service struct {
	goals   *Goals
	urgency generic.UrgencyThresholds
}

func NewService(goals *Goals, urgency generic.UrgencyThresholds) *Service {
	if urgency == (generic.UrgencyThresholds{}) {
		urgency = generic.DefaultUrgencyThresholds
	}
	return &Service{goals: goals, urgency: urgency}
}

func (s *Service) Goals() *Goals {
	return s.goals
}

func (s *Service) ListGoals(ctx context.Context, activeOnly bool) ([]GoalView, error) {
	goals, err := s.goals.List(ctx, activeOnly)
	if err != nil {
		return nil, err
	}
	now := s.goals.Clock().Now()
	views := make([]GoalView, 0, len(goals))
	for _, g := range goals {
		views = append(views, s.view(g, now))
	}
	return views, nil
}

func (s *Service) GetGoal(ctx context.Context, rawID string) (*GoalView, error) {
	id, err := generic.ParseGoalID(rawID)
	if err != nil {
		return nil, err
	}
	g, err := s.goals.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.viewPtr(g), nil
}

func (s *Service) CreateGoal(ctx context.Context, req CreateGoalRequest) (*GoalView, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, &generic.ValidationError{Field: "name", Message: "is required"}
	}
	target, err := parseTarget(req.TargetAmount)
	if err != nil {
		return nil, err
	}
	priority, err := generic.ParsePriority(req.Priority)
	if err != nil {
		return nil, err
	}
	deadline, err := parseOptionalDate("deadline", req.Deadline)
	if err != nil {
		return nil, err
	}

	g, err := s.goals.Create(ctx, generic.NewGoal{
		Name:         req.Name,
		Description:  req.Description,
		Category:     req.Category,
		TargetAmount: target,
		Deadline:     deadline,
		Priority:     priority,
		Color:        req.Color,
		Icon:         req.Icon,
	})
	if err != nil {
		return nil, err
	}
	return s.viewPtr(g), nil
}

func (s *Service) UpdateGoal(ctx context.Context, rawID string, req UpdateGoalRequest) (*GoalView, error) {
	id, err := generic.ParseGoalID(rawID)
	if err != nil {
		return nil, err
	}

	patch := generic.GoalPatch{
		Name:           req.Name,
		Description:    req.Description,
		Category:       req.Category,
		IsActive:       req.IsActive,
		Color:          req.Color,
		Icon:           req.Icon,
		OverrideTarget: req.OverrideTarget,
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		return nil, &generic.ValidationError{Field: "name", Message: "must not be empty"}
	}
	if req.TargetAmount != nil {
		target, err := parseTarget(*req.TargetAmount)
		if err != nil {
			return nil, err
		}
		patch.TargetAmount = &target
	}
	if req.Priority != nil {
		p, err := generic.ParsePriority(*req.Priority)
		if err != nil {
			return nil, err
		}
		patch.Priority = &p
	}
	if req.Deadline != nil {
		d, err := parseOptionalDate("deadline", *req.Deadline)
		if err != nil {
			return nil, err
		}
		patch.Deadline = d
		patch.ClearDeadline = d == nil
	}

	g, err := s.goals.Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	return s.viewPtr(g), nil
}

func (s *Service) DeleteGoal(ctx context.Context, rawID string) error {
	id, err := generic.ParseGoalID(rawID)
	if err != nil {
		return err
	}
	return s.goals.Delete(ctx, id)
}

func (s *Service) DepositToGoal(ctx context.Context, rawID string, req TransactionRequest) (*GoalView, error) {
	return s.post(ctx, rawID, req, s.goals.Deposit)
}

func (s *Service) WithdrawFromGoal(ctx context.Context, rawID string, req TransactionRequest) (*GoalView, error) {
	return s.post(ctx, rawID, req, s.goals.Withdraw)
}

type postFunc func(context.Context, generic.GoalID, Entry) (*generic.Goal, error)

func (s *Service) post(ctx context.Context, rawID string, req TransactionRequest, fn postFunc) (*GoalView, error) {
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return nil, err
	}
	id, err := generic.ParseGoalID(rawID)
	if err != nil {
		return nil, err
	}
	entry := Entry{
		Amount:         amount,
		Description:    strings.TrimSpace(req.Description),
		IdempotencyKey: strings.TrimSpace(req.IdempotencyKey),
	}
	if req.Date != "" {
		d, err := generic.ParseDate(req.Date)
		if err != nil {
			return nil, &generic.ValidationError{Field: "date", Message: "must be YYYY-MM-DD or RFC 3339"}
		}
		entry.Date = d
	}

	g, err := fn(ctx, id, entry)
	if err != nil {
		return nil, err
	}
	return s.viewPtr(g), nil
}

// ListTransactions returns the goal's ledger oldest first, each entry with
// the running balance after it.
func (s *Service) ListTransactions(ctx context.Context, rawID string) ([]TransactionView, error) {
	id, err := generic.ParseGoalID(rawID)
	if err != nil {
		return nil, err
	}
	txs, err := s.goals.Transactions(ctx, id)
	if err != nil {
		return nil, err
	}

	views := make([]TransactionView, 0, len(txs))
	balance := decimal.Zero
	for _, tx := range txs {
		balance = balance.Add(tx.Delta())
		views = append(views, TransactionView{Transaction: tx, BalanceAfter: balance})
	}
	return views, nil
}

// Summary aggregates active goals for the dashboard header.
func (s *Service) Summary(ctx context.Context) (*Summary, error) {
	goals, err := s.goals.List(ctx, true)
	if err != nil {
		return nil, err
	}

	sum := &Summary{Portfolio: generic.PortfolioTotals(goals)}
	now := s.goals.Clock().Now()
	for _, g := range goals {
		days := generic.DaysUntil(g.Deadline, now)
		if generic.IsOverdue(days) {
			sum.OverdueGoals++
		}
		if s.urgency.Classify(days) == generic.UrgencyCritical {
			sum.CriticalGoals++
		}
	}
	return sum, nil
}

// ProjectGoal projects the goal's savings pace from its ledger.
func (s *Service) ProjectGoal(ctx context.Context, rawID string) (*generic.Pace, error) {
	id, err := generic.ParseGoalID(rawID)
	if err != nil {
		return nil, err
	}
	g, err := s.goals.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	txs, err := s.goals.Transactions(ctx, id)
	if err != nil {
		return nil, err
	}
	pace := generic.ProjectPace(*g, txs, s.goals.Clock().Now())
	return &pace, nil
}

func (s *Service) ReconcileGoal(ctx context.Context, rawID string) (*GoalView, error) {
	id, err := generic.ParseGoalID(rawID)
	if err != nil {
		return nil, err
	}
	g, err := s.goals.Reconcile(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.viewPtr(g), nil
}

func (s *Service) VerifyGoal(ctx context.Context, rawID string) error {
	id, err := generic.ParseGoalID(rawID)
	if err != nil {
		return err
	}
	return s.goals.Verify(ctx, id)
}

// View derives the dashboard fields of g as of now.
func (s *Service) View(g generic.Goal, now time.Time) GoalView {
	return s.view(g, now)
}

func (s *Service) view(g generic.Goal, now time.Time) GoalView {
	days := generic.DaysUntil(g.Deadline, now)
	return GoalView{
		Goal:      g,
		Progress:  generic.ProgressPercent(g),
		Remaining: generic.Remaining(g),
		DaysLeft:  days,
		Overdue:   generic.IsOverdue(days),
		Urgency:   s.urgency.Classify(days),
		Completed: generic.IsCompleted(g),
	}
}

func (s *Service) viewPtr(g *generic.Goal) *GoalView {
	v := s.view(*g, s.goals.Clock().Now())
	return &v
}

// =============================================================================
// PARSING
// =============================================================================

func parseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q is not a number", generic.ErrInvalidAmount, s)
	}
	return d, nil
}

func parseTarget(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q is not a number", generic.ErrInvalidTarget, s)
	}
	return d, nil
}

func parseOptionalDate(field, s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	d, err := generic.ParseDate(s)
	if err != nil {
		return nil, &generic.ValidationError{Field: field, Message: "must be YYYY-MM-DD or RFC 3339"}
	}
	d = generic.DateOf(d)
	return &d, nil
}
