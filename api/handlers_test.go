/*
handlers_test.go - HTTP-level tests for the contribution API

Tests for:
- Group onboarding (POST /api/groups)
- Current period retrieval and payment recording
- Atomic close-then-open and reopen corrections
- Domain error to HTTP status mapping
*/
package api

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samiti/collection-engine/contribution/store"
)

// =============================================================================
// TEST FIXTURES
// =============================================================================

const groupDefinition = `{
	"name": "Mahila Samiti",
	"start_date": "2025-06-01",
	"schedule": {"frequency": "MONTHLY", "day_of_month": 5},
	"monthly_contribution": "500",
	"interest_rate": "2",
	"late_fine_rule": {
		"rule_type": "TIER_BASED",
		"is_enabled": true,
		"tiers": [
			{"start_day": 1, "end_day": 3, "amount": "15"},
			{"start_day": 4, "end_day": 15, "amount": "25"},
			{"start_day": 16, "end_day": 999, "amount": "50"}
		]
	},
	"members": [
		{"name": "Anita"},
		{"name": "Sunita"},
		{"name": "Retired", "active": false}
	]
}`

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	handler := NewHandler(store.NewTxMemory(), store.NewMemoryAudit())
	srv := httptest.NewServer(NewRouter(handler))
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body string, out any) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, bytes.NewReader([]byte(body)))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func createTestGroup(t *testing.T, srv *httptest.Server) GroupDTO {
	t.Helper()
	var dto GroupDTO
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/groups", groupDefinition, &dto)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return dto
}

// =============================================================================
// GROUP ONBOARDING
// =============================================================================

func TestCreateGroup_OpensFirstPeriodWithSeededEntries(t *testing.T) {
	// GIVEN: A group definition with two active members and one inactive
	// WHEN: The group is created
	// THEN: Period 1 is open with an entry per active member

	srv := newTestServer(t)
	group := createTestGroup(t, srv)

	assert.NotEmpty(t, group.ID)
	assert.Equal(t, "Mahila Samiti", group.Name)
	assert.Equal(t, "MONTHLY", group.Frequency)
	assert.Equal(t, "500.00", group.MonthlyContribution)

	var current CurrentPeriodDTO
	resp := doJSON(t, http.MethodGet, srv.URL+"/api/groups/"+group.ID+"/periods/current?as_of=2025-06-01", "", &current)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, 1, current.Period.Sequence)
	assert.Equal(t, "OPEN", current.Period.Status)
	assert.Equal(t, "2025-06-01", current.Period.StartDate)
	assert.Equal(t, "2025-06-05", current.Period.DueDate)
	require.Len(t, current.Entries, 2)
	for _, e := range current.Entries {
		assert.Equal(t, "500.00", e.ContributionDue)
		assert.Equal(t, "PENDING", e.Status)
	}
}

func TestCreateGroup_MalformedFineRuleIsBadRequest(t *testing.T) {
	srv := newTestServer(t)

	// The tier partition has a gap between day 3 and day 6.
	broken := `{
		"name": "Broken",
		"schedule": {"frequency": "MONTHLY", "day_of_month": 5},
		"monthly_contribution": "500",
		"late_fine_rule": {
			"rule_type": "TIER_BASED",
			"is_enabled": true,
			"tiers": [
				{"start_day": 1, "end_day": 3, "amount": "15"},
				{"start_day": 6, "end_day": 999, "amount": "25"}
			]
		}
	}`

	var errResp ErrorResponse
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/groups", broken, &errResp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.NotEmpty(t, errResp.Error)
}

func TestGetSummary_UnknownGroupIsNotFound(t *testing.T) {
	srv := newTestServer(t)

	var errResp ErrorResponse
	resp := doJSON(t, http.MethodGet, srv.URL+"/api/groups/unknown/summary", "", &errResp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// =============================================================================
// PAYMENTS
// =============================================================================

func TestGetCurrentPeriod_RefreshesFinesOnRead(t *testing.T) {
	// GIVEN: A period due June 5 whose entries were seeded with no fine
	// WHEN: The current period is read as of June 14
	// THEN: The served entries carry the fine accrued by that date

	srv := newTestServer(t)
	group := createTestGroup(t, srv)

	var current CurrentPeriodDTO
	resp := doJSON(t, http.MethodGet,
		srv.URL+"/api/groups/"+group.ID+"/periods/current?as_of=2025-06-14", "", &current)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Len(t, current.Entries, 2)
	for _, e := range current.Entries {
		assert.Equal(t, 9, e.DaysLate)
		assert.Equal(t, "195.00", e.LateFineDue)
		assert.Equal(t, "OVERDUE", e.Status)
	}
}

func TestRecordPayment_UpdatesEntryThroughAPI(t *testing.T) {
	srv := newTestServer(t)
	group := createTestGroup(t, srv)

	var current CurrentPeriodDTO
	doJSON(t, http.MethodGet, srv.URL+"/api/groups/"+group.ID+"/periods/current", "", &current)
	require.NotEmpty(t, current.Entries)
	entry := current.Entries[0]

	var updated EntryDTO
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/contributions/"+entry.ID+"/payments",
		`{"contribution": "200", "paid_at": "2025-06-03"}`, &updated)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, "200.00", updated.ContributionPaid)
	assert.Equal(t, "300.00", updated.Remaining)
	assert.Equal(t, "PARTIAL", updated.Status)
	assert.Equal(t, "2025-06-03", updated.PaidAt)
}

func TestRecordPayment_NegativeAmountIsBadRequest(t *testing.T) {
	srv := newTestServer(t)
	group := createTestGroup(t, srv)

	var current CurrentPeriodDTO
	doJSON(t, http.MethodGet, srv.URL+"/api/groups/"+group.ID+"/periods/current", "", &current)
	entry := current.Entries[0]

	var errResp ErrorResponse
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/contributions/"+entry.ID+"/payments",
		`{"contribution": "-50"}`, &errResp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRecordPayment_UnknownEntryIsNotFound(t *testing.T) {
	srv := newTestServer(t)

	var errResp ErrorResponse
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/contributions/unknown/payments",
		`{"contribution": "100"}`, &errResp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// =============================================================================
// CLOSE AND REOPEN
// =============================================================================

func payAllEntries(t *testing.T, srv *httptest.Server, groupID string) {
	t.Helper()
	var current CurrentPeriodDTO
	doJSON(t, http.MethodGet, srv.URL+"/api/groups/"+groupID+"/periods/current", "", &current)
	for _, e := range current.Entries {
		resp := doJSON(t, http.MethodPost, srv.URL+"/api/contributions/"+e.ID+"/payments",
			`{"contribution": "500", "paid_at": "2025-06-05"}`, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
}

func TestClosePeriod_ReturnsClosedAndSuccessor(t *testing.T) {
	srv := newTestServer(t)
	group := createTestGroup(t, srv)
	payAllEntries(t, srv, group.ID)

	var result ClosePeriodResponse
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/groups/"+group.ID+"/periods/close",
		`{"members_present": 2, "closed_at": "2025-06-05"}`, &result)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, "CLOSED", result.Closed.Status)
	assert.Equal(t, "1000.00", result.Closed.TotalCollected)
	assert.Equal(t, "2025-06-05", result.Closed.ClosedAt)
	assert.Equal(t, "1000.00", result.Closed.StandingAtEnd)

	assert.Equal(t, "OPEN", result.Successor.Status)
	assert.Equal(t, 2, result.Successor.Sequence)
	assert.Equal(t, "2025-07-01", result.Successor.StartDate)
	assert.Equal(t, "1000.00", result.Successor.StandingAtStart)

	// The period history now shows both cycles.
	var periods []PeriodDTO
	doJSON(t, http.MethodGet, srv.URL+"/api/groups/"+group.ID+"/periods", "", &periods)
	assert.Len(t, periods, 2)
}

func TestClosePeriod_AllocationMismatchIsBadRequest(t *testing.T) {
	srv := newTestServer(t)
	group := createTestGroup(t, srv)
	payAllEntries(t, srv, group.ID)

	var errResp ErrorResponse
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/groups/"+group.ID+"/periods/close",
		`{"allocation": {"hand": "100", "bank": "100"}}`, &errResp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestReopenPeriod_ThenConflictOnceSuccessorPaid(t *testing.T) {
	srv := newTestServer(t)
	group := createTestGroup(t, srv)
	payAllEntries(t, srv, group.ID)

	var result ClosePeriodResponse
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/groups/"+group.ID+"/periods/close",
		`{"closed_at": "2025-06-05"}`, &result)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Reopen succeeds while the successor is untouched.
	var reopened PeriodDTO
	resp = doJSON(t, http.MethodPost,
		srv.URL+"/api/groups/"+group.ID+"/periods/"+result.Closed.ID+"/reopen", "", &reopened)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OPEN", reopened.Status)

	// Close again and pay into the new successor.
	resp = doJSON(t, http.MethodPost, srv.URL+"/api/groups/"+group.ID+"/periods/close",
		`{"closed_at": "2025-06-05"}`, &result)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var current CurrentPeriodDTO
	doJSON(t, http.MethodGet, srv.URL+"/api/groups/"+group.ID+"/periods/current", "", &current)
	require.NotEmpty(t, current.Entries)
	resp = doJSON(t, http.MethodPost, srv.URL+"/api/contributions/"+current.Entries[0].ID+"/payments",
		`{"contribution": "100"}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Now the reopen is refused with a conflict.
	var errResp ErrorResponse
	resp = doJSON(t, http.MethodPost,
		srv.URL+"/api/groups/"+group.ID+"/periods/"+result.Closed.ID+"/reopen", "", &errResp)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// The correction trail shows the earlier successful reopen.
	var audit []AuditDTO
	doJSON(t, http.MethodGet, srv.URL+"/api/audit?group_id="+group.ID, "", &audit)
	require.Len(t, audit, 1)
	assert.Equal(t, "period_reopened", audit[0].Action)
}

// =============================================================================
// RECOMPUTE AND SUMMARY
// =============================================================================

func TestRecompute_AccruesFinesAsOfDate(t *testing.T) {
	srv := newTestServer(t)
	group := createTestGroup(t, srv)

	// 9 days past the June 5 due date: tier walk gives 195.
	var entries []EntryDTO
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/groups/"+group.ID+"/contributions/recompute",
		`{"as_of": "2025-06-14"}`, &entries)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, 9, e.DaysLate)
		assert.Equal(t, "195.00", e.LateFineDue)
		assert.Equal(t, "695.00", e.MinimumDue)
		assert.Equal(t, "OVERDUE", e.Status)
	}
}

func TestGetSummary_ReflectsCloseAllocations(t *testing.T) {
	srv := newTestServer(t)
	group := createTestGroup(t, srv)
	payAllEntries(t, srv, group.ID)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/groups/"+group.ID+"/periods/close",
		`{"closed_at": "2025-06-05"}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var summary SummaryDTO
	resp = doJSON(t, http.MethodGet, srv.URL+"/api/groups/"+group.ID+"/summary", "", &summary)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, "1000.00", summary.CashTotal)
	assert.Equal(t, "1000.00", summary.TotalStanding)
	assert.Equal(t, "500.00", summary.PerMemberShare)
}
