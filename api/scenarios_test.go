package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/savings-engine/generic"
)

func TestListScenarios(t *testing.T) {
	s := setupTestServer(t)
	rec := s.do(t, http.MethodGet, "/api/scenarios", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	list := decode[[]ScenarioDTO](t, rec)
	require.Len(t, list, len(scenarioLoaders))
	for _, sc := range list {
		_, ok := scenarioLoaders[sc.ID]
		assert.True(t, ok, "scenario %s has no loader", sc.ID)
	}
}

func TestLoadScenario_AllKeepLedgerInvariant(t *testing.T) {
	for _, sc := range scenarios {
		t.Run(sc.ID, func(t *testing.T) {
			// GIVEN: A store with a leftover goal
			s := setupTestServer(t)
			leftover := s.createGoal(t, map[string]any{"name": "Leftover", "target_amount": "10"})

			// WHEN: Loading the scenario
			rec := s.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: sc.ID})
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			// THEN: Only scenario goals remain and each balance matches its ledger
			ctx := context.Background()
			goals, err := s.goals.List(ctx, false)
			require.NoError(t, err)
			require.NotEmpty(t, goals)
			for _, g := range goals {
				assert.NotEqual(t, generic.GoalID(leftover.ID), g.ID)
				assert.NoError(t, s.goals.Verify(ctx, g.ID), "goal %s", g.Name)
				assert.False(t, g.CurrentAmount.IsNegative())
			}

			rec = s.do(t, http.MethodGet, "/api/scenarios/current", nil)
			assert.Equal(t, sc.ID, decode[ScenarioDTO](t, rec).ID)
		})
	}
}

func TestLoadScenario_Portfolio(t *testing.T) {
	s := setupTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "portfolio"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/goals/summary", nil)
	sum := decode[SummaryDTO](t, rec)
	requireDecimal(t, "1000000", sum.TotalSaved)
	requireDecimal(t, "5000000", sum.TotalTarget)
	requireDecimal(t, "20", sum.OverallProgress)
}

func TestLoadScenario_Deadlines(t *testing.T) {
	s := setupTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "deadlines"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/goals", nil)
	urgency := map[string]string{}
	overdue := map[string]bool{}
	for _, g := range decode[[]GoalDTO](t, rec) {
		urgency[g.Name] = g.Urgency
		overdue[g.Name] = g.Overdue
	}
	assert.Equal(t, map[string]string{
		"Winter Tires":     "safe",
		"Concert Tickets":  "warning",
		"Anniversary Trip": "critical",
		"Birthday Gift":    "critical",
	}, urgency)
	assert.True(t, overdue["Birthday Gift"])
	assert.False(t, overdue["Anniversary Trip"])

	rec = s.do(t, http.MethodGet, "/api/goals/summary", nil)
	sum := decode[SummaryDTO](t, rec)
	assert.Equal(t, 1, sum.OverdueGoals)
	assert.Equal(t, 2, sum.CriticalGoals)
}

func TestLoadScenario_Spending(t *testing.T) {
	s := setupTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "spending"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/goals", nil)
	list := decode[[]GoalDTO](t, rec)
	require.Len(t, list, 1)
	requireDecimal(t, "650", list[0].CurrentAmount)

	rec = s.do(t, http.MethodGet, "/api/goals/"+list[0].ID+"/transactions", nil)
	txs := decode[[]TransactionDTO](t, rec)
	require.Len(t, txs, 5)
	assert.Equal(t, "2026-09-01", txs[0].Date)
	requireDecimal(t, "650", txs[4].BalanceAfter)
}

func TestLoadScenario_Completed(t *testing.T) {
	s := setupTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "completed"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/goals?active=true", nil)
	active := decode[[]GoalDTO](t, rec)
	require.Len(t, active, 1)
	assert.True(t, active[0].Completed)

	rec = s.do(t, http.MethodGet, "/api/goals/summary", nil)
	sum := decode[SummaryDTO](t, rec)
	assert.Equal(t, 1, sum.CompletedGoals)
	requireDecimal(t, "800", sum.TotalSaved)
}

func TestLoadScenario_Unknown(t *testing.T) {
	s := setupTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "lottery-win"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResetScenario(t *testing.T) {
	s := setupTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "emergency-fund"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/scenarios/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/goals", nil)
	assert.JSONEq(t, "[]", rec.Body.String())
	rec = s.do(t, http.MethodGet, "/api/scenarios/current", nil)
	assert.Equal(t, "null", string(rec.Body.Bytes()[:4]))
}
