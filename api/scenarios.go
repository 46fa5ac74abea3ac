/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the store with realistic
	goals and ledgers for demos. Every scenario goes through the normal
	service path, so the ledger and cached balances agree exactly as they
	would for user traffic.

AVAILABLE SCENARIOS:

	emergency-fund:   One goal funded by monthly deposits
	deadlines:        Goals at every urgency level, one overdue
	portfolio:        Two large goals at 20% overall progress
	spending:         Deposits and withdrawals with backdated entries
	completed:        A reached goal next to a paused one

HOW SCENARIOS WORK:
 1. Delete every existing goal (cascades to its ledger)
 2. Create goals via Service.CreateGoal
 3. Post deposits/withdrawals via Service.DepositToGoal/WithdrawFromGoal

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "portfolio"}

NOTE:

	Scenarios wipe all goals. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Goal handlers
  - savings/service.go: The path scenarios write through
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/warp/savings-engine/generic"
	"github.com/warp/savings-engine/pkg/logger"
	"github.com/warp/savings-engine/savings"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "emergency-fund",
		Name:        "Emergency Fund",
		Description: "Single open-ended goal built from monthly deposits",
	},
	{
		ID:          "deadlines",
		Name:        "Deadlines",
		Description: "Goals due in 90, 20 and 5 days plus one already overdue",
	},
	{
		ID:          "portfolio",
		Name:        "Portfolio",
		Description: "Two goals of 1,000,000 and 4,000,000 with 500,000 saved in each",
	},
	{
		ID:          "spending",
		Name:        "Spending",
		Description: "Deposits and withdrawals, some backdated, showing the running balance",
	},
	{
		ID:          "completed",
		Name:        "Completed & Paused",
		Description: "A goal that reached its target and a deactivated goal",
	},
}

type scenarioLoader func(ctx context.Context, svc *savings.Service, now time.Time) error

var scenarioLoaders = map[string]scenarioLoader{
	"emergency-fund": loadEmergencyFundScenario,
	"deadlines":      loadDeadlinesScenario,
	"portfolio":      loadPortfolioScenario,
	"spending":       loadSpendingScenario,
	"completed":      loadCompletedScenario,
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario wipes all goals and loads the requested scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !decodeBody(w, r, &req) {
		return
	}
	load, ok := scenarioLoaders[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusBadRequest, CodeValidation, "Unknown scenario", fmt.Errorf("scenario %q", req.ScenarioID))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := r.Context()
	if err := h.resetGoals(ctx); err != nil {
		writeDomainError(w, r, "Failed to reset goals", err)
		return
	}
	h.currentScenario = ""

	if err := load(ctx, h.Service, h.Service.Goals().Clock().Now()); err != nil {
		writeDomainError(w, r, fmt.Sprintf("Failed to load scenario %s", req.ScenarioID), err)
		return
	}
	h.currentScenario = req.ScenarioID
	logger.Info("scenario loaded", "scenario", req.ScenarioID)

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetScenario deletes every goal.
func (h *Handler) ResetScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.resetGoals(r.Context()); err != nil {
		writeDomainError(w, r, "Failed to reset goals", err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// resetGoals deletes through Goals so each delete takes the goal's lock.
func (h *Handler) resetGoals(ctx context.Context) error {
	goals := h.Service.Goals()
	all, err := goals.List(ctx, false)
	if err != nil {
		return err
	}
	for _, g := range all {
		if err := goals.Delete(ctx, g.ID); err != nil && !generic.IsNotFound(err) {
			return err
		}
	}
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// step is one ledger entry of a scenario. daysAgo backdates it.
type step struct {
	withdraw    bool
	amount      string
	description string
	daysAgo     int
}

func post(ctx context.Context, svc *savings.Service, goal *savings.GoalView, now time.Time, steps ...step) error {
	for _, s := range steps {
		req := savings.TransactionRequest{Amount: s.amount, Description: s.description}
		if s.daysAgo > 0 {
			req.Date = now.AddDate(0, 0, -s.daysAgo).Format(generic.DateLayout)
		}
		var err error
		if s.withdraw {
			_, err = svc.WithdrawFromGoal(ctx, string(goal.ID), req)
		} else {
			_, err = svc.DepositToGoal(ctx, string(goal.ID), req)
		}
		if err != nil {
			return fmt.Errorf("goal %s: %w", goal.Name, err)
		}
	}
	return nil
}

func deadlineIn(now time.Time, days int) string {
	return now.AddDate(0, 0, days).Format(generic.DateLayout)
}

func loadEmergencyFundScenario(ctx context.Context, svc *savings.Service, now time.Time) error {
	g, err := svc.CreateGoal(ctx, savings.CreateGoalRequest{
		Name:         "Emergency Fund",
		Description:  "Six months of expenses",
		Category:     "safety",
		TargetAmount: "15000",
		Priority:     "high",
		Color:        "#2e7d32",
		Icon:         "shield",
	})
	if err != nil {
		return err
	}
	return post(ctx, svc, g, now,
		step{amount: "1000", description: "Monthly transfer", daysAgo: 90},
		step{amount: "1000", description: "Monthly transfer", daysAgo: 60},
		step{amount: "1000", description: "Monthly transfer", daysAgo: 30},
		step{amount: "250.75", description: "Tax refund"},
	)
}

func loadDeadlinesScenario(ctx context.Context, svc *savings.Service, now time.Time) error {
	goals := []struct {
		req     savings.CreateGoalRequest
		deposit string
	}{
		{savings.CreateGoalRequest{Name: "Winter Tires", Category: "car", TargetAmount: "900", Deadline: deadlineIn(now, 90), Priority: "low", Icon: "car"}, "300"},
		{savings.CreateGoalRequest{Name: "Concert Tickets", Category: "fun", TargetAmount: "240", Deadline: deadlineIn(now, 20), Priority: "medium", Icon: "music"}, "120"},
		{savings.CreateGoalRequest{Name: "Anniversary Trip", Category: "travel", TargetAmount: "2000", Deadline: deadlineIn(now, 5), Priority: "high", Icon: "plane"}, "1500"},
		{savings.CreateGoalRequest{Name: "Birthday Gift", Category: "gifts", TargetAmount: "150", Deadline: deadlineIn(now, -3), Priority: "medium", Icon: "gift"}, "80"},
	}
	for _, seed := range goals {
		g, err := svc.CreateGoal(ctx, seed.req)
		if err != nil {
			return err
		}
		if err := post(ctx, svc, g, now, step{amount: seed.deposit, description: "Initial savings"}); err != nil {
			return err
		}
	}
	return nil
}

func loadPortfolioScenario(ctx context.Context, svc *savings.Service, now time.Time) error {
	for _, seed := range []savings.CreateGoalRequest{
		{Name: "House Deposit", Category: "home", TargetAmount: "1000000", Priority: "high", Icon: "home"},
		{Name: "Retirement Bridge", Category: "retirement", TargetAmount: "4000000", Priority: "medium", Icon: "sun"},
	} {
		g, err := svc.CreateGoal(ctx, seed)
		if err != nil {
			return err
		}
		if err := post(ctx, svc, g, now, step{amount: "500000", description: "Opening balance", daysAgo: 365}); err != nil {
			return err
		}
	}
	return nil
}

func loadSpendingScenario(ctx context.Context, svc *savings.Service, now time.Time) error {
	g, err := svc.CreateGoal(ctx, savings.CreateGoalRequest{
		Name:         "New Laptop",
		Category:     "tech",
		TargetAmount: "2000",
		Deadline:     deadlineIn(now, 60),
		Priority:     "medium",
		Icon:         "laptop",
	})
	if err != nil {
		return err
	}
	return post(ctx, svc, g, now,
		step{amount: "500", description: "Bonus", daysAgo: 45},
		step{amount: "300", description: "Side project", daysAgo: 30},
		step{withdraw: true, amount: "120.25", description: "Car repair", daysAgo: 20},
		step{amount: "20.25", description: "Round-ups", daysAgo: 10},
		step{withdraw: true, amount: "50", description: "Dinner out"},
	)
}

func loadCompletedScenario(ctx context.Context, svc *savings.Service, now time.Time) error {
	done, err := svc.CreateGoal(ctx, savings.CreateGoalRequest{
		Name:         "Bike",
		Category:     "sport",
		TargetAmount: "800",
		Priority:     "low",
		Icon:         "bike",
	})
	if err != nil {
		return err
	}
	if err := post(ctx, svc, done, now,
		step{amount: "500", description: "Savings", daysAgo: 40},
		step{amount: "300", description: "Birthday money", daysAgo: 7},
	); err != nil {
		return err
	}

	paused, err := svc.CreateGoal(ctx, savings.CreateGoalRequest{
		Name:         "Boat",
		Category:     "leisure",
		TargetAmount: "30000",
		Priority:     "low",
		Icon:         "anchor",
	})
	if err != nil {
		return err
	}
	if err := post(ctx, svc, paused, now, step{amount: "1200", description: "Started saving", daysAgo: 200}); err != nil {
		return err
	}
	inactive := false
	_, err = svc.UpdateGoal(ctx, string(paused.ID), savings.UpdateGoalRequest{IsActive: &inactive})
	return err
}
