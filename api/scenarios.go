/*
scenarios.go - Demo scenario loader

PURPOSE:
  Provides canned demo groups so the API can be explored without hand-writing
  onboarding payloads. Each scenario creates a fresh group through the normal
  factory and lifecycle paths, then seeds it with loans, payments, or accrued
  fines where the scenario calls for it.

SCENARIOS:
  monthly-tier-fines   Monthly group with a tiered fine rule, one member paid
  weekly-collection    Weekly group with no fine rule
  fortnightly-loans    Fortnightly group with an outstanding member loan
  overdue-fines        Monthly group recomputed well past its due date

ENDPOINTS:
  GET  /api/scenarios       List available scenarios
  POST /api/scenarios/load  Load a scenario, returns the created group

SEE ALSO:
  - factory/group.go: The onboarding payloads below go through ParseGroup
  - handlers.go: CreateGroup follows the same path
*/
package api

import (
	"net/http"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/samiti/collection-engine/contribution"
	"github.com/samiti/collection-engine/engine"
)

// Scenario is a canned demo group. The definition goes through the same
// factory path as POST /api/groups; seed runs after the first period opens.
type Scenario struct {
	ID          string
	Name        string
	Description string

	definition string
	seed       func(h *Handler, r *http.Request, group contribution.Group) error
}

// ScenarioDTO describes a scenario in list responses.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects a scenario to load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// LoadScenarioResponse returns the created group and its open period.
type LoadScenarioResponse struct {
	Scenario ScenarioDTO      `json:"scenario"`
	Group    GroupDTO         `json:"group"`
	Current  CurrentPeriodDTO `json:"current"`
}

func builtinScenarios() []Scenario {
	return []Scenario{
		{
			ID:          "monthly-tier-fines",
			Name:        "Monthly with tiered fines",
			Description: "Four members, 500/month due on the 5th, tiered late fines, one member already paid",
			definition: `{
				"name": "Ekta Mahila Samiti",
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
				"funds": {"group_social_enabled": true},
				"members": [
					{"name": "Anita"}, {"name": "Sunita"}, {"name": "Kamala"}, {"name": "Meera"}
				]
			}`,
			seed: func(h *Handler, r *http.Request, group contribution.Group) error {
				return payFirstEntry(h, r, group, engine.NewDate(2025, 6, 5))
			},
		},
		{
			ID:          "weekly-collection",
			Name:        "Weekly, no fines",
			Description: "Three members collecting 100 every Monday with fines disabled",
			definition: `{
				"name": "Som Bachat Gat",
				"start_date": "2025-06-01",
				"schedule": {"frequency": "WEEKLY", "day_of_week": 1},
				"monthly_contribution": "100",
				"members": [
					{"name": "Radha"}, {"name": "Asha"}, {"name": "Lata"}
				]
			}`,
		},
		{
			ID:          "fortnightly-loans",
			Name:        "Fortnightly with a loan",
			Description: "Two members, one carrying an active 1000 loan accruing 2% interest per period",
			definition: `{
				"name": "Pragati Samiti",
				"start_date": "2025-06-01",
				"schedule": {"frequency": "FORTNIGHTLY", "day_of_week": 1, "week_of_month": 1},
				"monthly_contribution": "250",
				"interest_rate": "2",
				"late_fine_rule": {
					"rule_type": "DAILY_FIXED",
					"is_enabled": true,
					"grace_period_days": 2,
					"daily_amount": "10"
				},
				"funds": {"loan_insurance_enabled": true},
				"members": [
					{"name": "Savita"}, {"name": "Manda"}
				]
			}`,
			seed: func(h *Handler, r *http.Request, group contribution.Group) error {
				members, err := h.Store.MembersOf(r.Context(), group.ID)
				if err != nil {
					return err
				}
				loan := contribution.Loan{
					ID:             contribution.LoanID(uuid.NewString()),
					GroupID:        group.ID,
					MemberID:       members[0].ID,
					Principal:      engine.NewMoneyFromInt(1000),
					CurrentBalance: engine.NewMoneyFromInt(1000),
					Status:         contribution.LoanActive,
					IssuedAt:       engine.NewDate(2025, 6, 1),
				}
				if err := h.Store.CreateLoan(r.Context(), loan); err != nil {
					return err
				}

				// Entries were seeded before the loan existed; put the
				// period's interest on the borrower's entry.
				period, err := h.Lifecycle.EnsureOpenPeriod(r.Context(), group.ID)
				if err != nil {
					return err
				}
				entries, err := h.Store.EntriesOf(r.Context(), period.ID)
				if err != nil {
					return err
				}
				for _, e := range entries {
					if e.MemberID != loan.MemberID {
						continue
					}
					e.InterestDue = loan.PeriodInterest(group.InterestRate)
					e.Status = e.DeriveStatus()
					if err := h.Store.SaveEntry(r.Context(), e); err != nil {
						return err
					}
				}
				return nil
			},
		},
		{
			ID:          "overdue-fines",
			Name:        "Overdue with accrued fines",
			Description: "Three members 16 days past due, fines accruing at 1.5% of the contribution per day",
			definition: `{
				"name": "Jagruti Samiti",
				"start_date": "2025-06-01",
				"schedule": {"frequency": "MONTHLY", "day_of_month": 5},
				"monthly_contribution": "500",
				"late_fine_rule": {
					"rule_type": "DAILY_PERCENTAGE",
					"is_enabled": true,
					"daily_percentage": "1.5"
				},
				"members": [
					{"name": "Vandana"}, {"name": "Shobha"}, {"name": "Nirmala"}
				]
			}`,
			seed: func(h *Handler, r *http.Request, group contribution.Group) error {
				return recomputeAsOf(h, r, group, engine.NewDate(2025, 6, 21))
			},
		},
	}
}

// ListScenarios returns the available demo scenarios.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	scenarios := builtinScenarios()
	dtos := make([]ScenarioDTO, len(scenarios))
	for i, s := range scenarios {
		dtos[i] = toScenarioDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// LoadScenario creates a fresh group from the named scenario.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	scenario, ok := findScenario(req.ScenarioID)
	if !ok {
		writeError(w, http.StatusNotFound, "Unknown scenario: "+req.ScenarioID, nil)
		return
	}

	group, members, startDate, err := h.Factory.ParseGroup(scenario.definition)
	if err != nil {
		writeDomainError(w, "Invalid scenario definition", err)
		return
	}

	err = h.Store.WithTx(r.Context(), func(s contribution.Store) error {
		if err := s.CreateGroup(r.Context(), group); err != nil {
			return err
		}
		for _, m := range members {
			if err := s.CreateMember(r.Context(), m); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create scenario group", err)
		return
	}

	if _, err := h.Lifecycle.OpenPeriod(r.Context(), group.ID, startDate); err != nil {
		writeDomainError(w, "Failed to open first period", err)
		return
	}

	if scenario.seed != nil {
		if err := scenario.seed(h, r, group); err != nil {
			writeDomainError(w, "Failed to seed scenario", err)
			return
		}
	}

	period, err := h.Lifecycle.EnsureOpenPeriod(r.Context(), group.ID)
	if err != nil {
		writeDomainError(w, "Failed to resolve open period", err)
		return
	}
	entries, err := h.Store.EntriesOf(r.Context(), period.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load entries", err)
		return
	}

	writeJSON(w, http.StatusCreated, LoadScenarioResponse{
		Scenario: toScenarioDTO(scenario),
		Group:    toGroupDTO(group),
		Current: CurrentPeriodDTO{
			Period:  toPeriodDTO(period),
			Entries: toEntryDTOs(entries),
		},
	})
}

func findScenario(id string) (Scenario, bool) {
	for _, s := range builtinScenarios() {
		if s.ID == id {
			return s, true
		}
	}
	return Scenario{}, false
}

func toScenarioDTO(s Scenario) ScenarioDTO {
	return ScenarioDTO{ID: s.ID, Name: s.Name, Description: s.Description}
}

// payFirstEntry pays one member's contribution in full on the given date.
func payFirstEntry(h *Handler, r *http.Request, group contribution.Group, paidAt engine.Date) error {
	period, err := h.Lifecycle.EnsureOpenPeriod(r.Context(), group.ID)
	if err != nil {
		return err
	}
	entries, err := h.Store.EntriesOf(r.Context(), period.ID)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	payment := contribution.PaymentInput{
		Contribution: entries[0].ContributionDue,
		Interest:     engine.ZeroMoney(),
		LateFine:     engine.ZeroMoney(),
	}
	_, err = h.Ledger.RecordPayment(r.Context(), entries[0].ID, payment, paidAt)
	return err
}

// recomputeAsOf refreshes the open period's accruals as of the given date.
func recomputeAsOf(h *Handler, r *http.Request, group contribution.Group, asOf engine.Date) error {
	period, err := h.Lifecycle.EnsureOpenPeriod(r.Context(), group.ID)
	if err != nil {
		return err
	}
	_, err = h.Ledger.RecomputeDue(r.Context(), group, period, asOf)
	return err
}
