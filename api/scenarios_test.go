/*
scenarios_test.go - Tests for the demo scenario loader

Tests for:
- Scenario catalog listing
- Every scenario loading cleanly end to end
- Seeded state (payments, loan interest, accrued fines)
*/
package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadScenario(t *testing.T, srv *httptest.Server, id string) (LoadScenarioResponse, *http.Response) {
	t.Helper()
	var out LoadScenarioResponse
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/scenarios/load", `{"scenario_id": "`+id+`"}`, &out)
	return out, resp
}

func TestListScenarios_ReturnsBuiltinCatalog(t *testing.T) {
	srv := newTestServer(t)

	var scenarios []ScenarioDTO
	resp := doJSON(t, http.MethodGet, srv.URL+"/api/scenarios/", "", &scenarios)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Len(t, scenarios, 4)
	ids := make([]string, len(scenarios))
	for i, s := range scenarios {
		ids[i] = s.ID
		assert.NotEmpty(t, s.Name)
		assert.NotEmpty(t, s.Description)
	}
	assert.Contains(t, ids, "monthly-tier-fines")
	assert.Contains(t, ids, "overdue-fines")
}

func TestLoadScenario_EveryScenarioLoadsCleanly(t *testing.T) {
	srv := newTestServer(t)

	for _, scenario := range builtinScenarios() {
		t.Run(scenario.ID, func(t *testing.T) {
			out, resp := loadScenario(t, srv, scenario.ID)
			require.Equal(t, http.StatusCreated, resp.StatusCode)

			assert.Equal(t, scenario.ID, out.Scenario.ID)
			assert.NotEmpty(t, out.Group.ID)
			assert.Equal(t, "OPEN", out.Current.Period.Status)
			assert.NotEmpty(t, out.Current.Entries)
		})
	}
}

func TestLoadScenario_MonthlyTierFinesSeedsOnePayment(t *testing.T) {
	// GIVEN: The monthly-tier-fines scenario
	// WHEN: It is loaded
	// THEN: Exactly one of the four members has already paid in full

	srv := newTestServer(t)
	out, resp := loadScenario(t, srv, "monthly-tier-fines")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Len(t, out.Current.Entries, 4)

	paid := 0
	for _, e := range out.Current.Entries {
		if e.Status == "PAID" {
			paid++
			assert.Equal(t, "500.00", e.ContributionPaid)
			assert.Equal(t, "2025-06-05", e.PaidAt)
		} else {
			assert.Equal(t, "PENDING", e.Status)
		}
	}
	assert.Equal(t, 1, paid)
}

func TestLoadScenario_FortnightlyLoanAccruesInterest(t *testing.T) {
	srv := newTestServer(t)
	out, resp := loadScenario(t, srv, "fortnightly-loans")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Len(t, out.Current.Entries, 2)

	// 2% of the 1000 loan lands on the borrower, nothing on the other member.
	dues := []string{out.Current.Entries[0].InterestDue, out.Current.Entries[1].InterestDue}
	assert.ElementsMatch(t, []string{"20.00", "0.00"}, dues)
}

func TestLoadScenario_OverdueFinesAccrue(t *testing.T) {
	// Due 2025-06-05, recomputed as of 2025-06-21: 16 days late at
	// 1.5% of 500 per day.

	srv := newTestServer(t)
	out, resp := loadScenario(t, srv, "overdue-fines")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Len(t, out.Current.Entries, 3)

	for _, e := range out.Current.Entries {
		assert.Equal(t, 16, e.DaysLate)
		assert.Equal(t, "120.00", e.LateFineDue)
		assert.Equal(t, "OVERDUE", e.Status)
	}
}

func TestLoadScenario_UnknownIsNotFound(t *testing.T) {
	srv := newTestServer(t)
	_, resp := loadScenario(t, srv, "no-such-scenario")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
