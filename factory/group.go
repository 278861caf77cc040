/*
Package factory provides JSON to Go group-configuration conversion.

PURPOSE:
  Converts JSON group definitions into contribution.Group records with a
  validated collection schedule and late fine rule. This enables group
  onboarding without code changes - a coordinator posts JSON, and the
  factory creates the proper Go structs.

JSON SCHEMA:
  {
    "name": "Mahila Samiti",
    "start_date": "2025-06-01",
    "schedule": {
      "frequency": "MONTHLY",
      "day_of_month": 5
    },
    "monthly_contribution": "500",
    "interest_rate": "2",
    "late_fine_rule": {
      "rule_type": "TIER_BASED",
      "is_enabled": true,
      "grace_period_days": 0,
      "tiers": [
        {"start_day": 1, "end_day": 3, "amount": "15"},
        {"start_day": 4, "end_day": 15, "amount": "25"},
        {"start_day": 16, "end_day": 999, "amount": "50"}
      ]
    },
    "funds": {
      "loan_insurance_enabled": true,
      "group_social_enabled": true
    },
    "members": [
      {"name": "Anita", "active": true}
    ]
  }

AMOUNT ENCODING:
  All monetary fields are decimal strings or JSON numbers; they are parsed
  with shopspring/decimal and never pass through float64.

DEFAULTS:
  schedule: MONTHLY -> day 1, WEEKLY/FORTNIGHTLY -> Monday, FORTNIGHTLY -> week 1
  late_fine_rule: absent means disabled (no fines accrue)
  start_date: absent means today
  members: active unless stated otherwise

SEE ALSO:
  - contribution/types.go: Group type definition
  - engine/schedule.go, engine/latefine.go: Validation invoked here
*/
package factory

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/samiti/collection-engine/contribution"
	"github.com/samiti/collection-engine/engine"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// GroupJSON is the JSON representation of a group configuration.
type GroupJSON struct {
	Name                string        `json:"name"`
	StartDate           string        `json:"start_date,omitempty"`
	Schedule            ScheduleJSON  `json:"schedule"`
	MonthlyContribution json.Number   `json:"monthly_contribution"`
	InterestRate        json.Number   `json:"interest_rate,omitempty"`
	LateFineRule        *FineRuleJSON `json:"late_fine_rule,omitempty"`
	Funds               *FundsJSON    `json:"funds,omitempty"`
	Members             []MemberJSON  `json:"members,omitempty"`
}

// ScheduleJSON represents the collection schedule configuration.
type ScheduleJSON struct {
	Frequency   string `json:"frequency"`
	DayOfMonth  int    `json:"day_of_month,omitempty"`
	DayOfWeek   *int   `json:"day_of_week,omitempty"` // 0=Sunday .. 6=Saturday
	WeekOfMonth int    `json:"week_of_month,omitempty"`
}

// FineRuleJSON represents the late fine rule configuration.
type FineRuleJSON struct {
	RuleType        string      `json:"rule_type"`
	IsEnabled       bool        `json:"is_enabled"`
	GracePeriodDays int         `json:"grace_period_days,omitempty"`
	DailyAmount     json.Number `json:"daily_amount,omitempty"`
	DailyPercentage json.Number `json:"daily_percentage,omitempty"`
	Tiers           []TierJSON  `json:"tiers,omitempty"`
}

// TierJSON is one band of a tier-based rule.
type TierJSON struct {
	StartDay     int         `json:"start_day"`
	EndDay       int         `json:"end_day"`
	Amount       json.Number `json:"amount"`
	IsPercentage bool        `json:"is_percentage,omitempty"`
}

// FundsJSON toggles the ring-fenced reserve funds.
type FundsJSON struct {
	LoanInsuranceEnabled bool `json:"loan_insurance_enabled,omitempty"`
	GroupSocialEnabled   bool `json:"group_social_enabled,omitempty"`
}

// MemberJSON is a member in the onboarding payload.
type MemberJSON struct {
	Name   string `json:"name"`
	Active *bool  `json:"active,omitempty"`
}

// =============================================================================
// GROUP FACTORY
// =============================================================================

type GroupFactory struct{}

func NewGroupFactory() *GroupFactory {
	return &GroupFactory{}
}

// ParseGroup converts a JSON group definition into a Group, its members,
// and the first period's start date. The schedule and fine rule are
// validated; a malformed definition never produces a partial group.
func (f *GroupFactory) ParseGroup(jsonStr string) (contribution.Group, []contribution.Member, engine.Date, error) {
	var doc GroupJSON
	if err := json.Unmarshal([]byte(jsonStr), &doc); err != nil {
		return contribution.Group{}, nil, engine.Date{}, fmt.Errorf("invalid group JSON: %w", err)
	}
	return f.BuildGroup(doc)
}

// BuildGroup converts an already-decoded definition.
func (f *GroupFactory) BuildGroup(doc GroupJSON) (contribution.Group, []contribution.Member, engine.Date, error) {
	if doc.Name == "" {
		return contribution.Group{}, nil, engine.Date{}, &engine.ConfigurationError{Field: "name", Detail: "is required"}
	}

	schedule, err := buildSchedule(doc.Schedule)
	if err != nil {
		return contribution.Group{}, nil, engine.Date{}, err
	}

	rule, err := buildFineRule(doc.LateFineRule)
	if err != nil {
		return contribution.Group{}, nil, engine.Date{}, err
	}

	monthly, err := parseAmount("monthly_contribution", doc.MonthlyContribution)
	if err != nil {
		return contribution.Group{}, nil, engine.Date{}, err
	}
	if !monthly.IsPositive() {
		return contribution.Group{}, nil, engine.Date{}, &engine.ConfigurationError{Field: "monthly_contribution", Detail: "must be positive"}
	}

	interest := engine.ZeroMoney()
	if doc.InterestRate != "" {
		interest, err = parseAmount("interest_rate", doc.InterestRate)
		if err != nil {
			return contribution.Group{}, nil, engine.Date{}, err
		}
	}

	startDate := engine.Today()
	if doc.StartDate != "" {
		t, err := time.Parse("2006-01-02", doc.StartDate)
		if err != nil {
			return contribution.Group{}, nil, engine.Date{}, &engine.ConfigurationError{Field: "start_date", Detail: "must be YYYY-MM-DD"}
		}
		startDate = engine.DateOf(t)
	}

	group := contribution.Group{
		ID:                   contribution.GroupID(uuid.NewString()),
		Name:                 doc.Name,
		Schedule:             schedule,
		FineRule:             rule,
		MonthlyContribution:  monthly,
		InterestRate:         interest,
		CashInHand:           engine.ZeroMoney(),
		CashInBank:           engine.ZeroMoney(),
		LoanInsuranceBalance: engine.ZeroMoney(),
		GroupSocialBalance:   engine.ZeroMoney(),
		CreatedAt:            startDate,
	}
	if doc.Funds != nil {
		group.LoanInsuranceEnabled = doc.Funds.LoanInsuranceEnabled
		group.GroupSocialEnabled = doc.Funds.GroupSocialEnabled
	}

	members := make([]contribution.Member, 0, len(doc.Members))
	for i, m := range doc.Members {
		if m.Name == "" {
			return contribution.Group{}, nil, engine.Date{}, &engine.ConfigurationError{
				Field: fmt.Sprintf("members[%d].name", i), Detail: "is required"}
		}
		active := true
		if m.Active != nil {
			active = *m.Active
		}
		members = append(members, contribution.Member{
			ID:      contribution.MemberID(uuid.NewString()),
			GroupID: group.ID,
			Name:    m.Name,
			Active:  active,
		})
	}

	return group, members, startDate, nil
}

// =============================================================================
// BUILDERS
// =============================================================================

func buildSchedule(doc ScheduleJSON) (engine.CollectionSchedule, error) {
	var weekday *time.Weekday
	if doc.DayOfWeek != nil {
		w := time.Weekday(*doc.DayOfWeek)
		weekday = &w
	}

	schedule := engine.NewCollectionSchedule(
		engine.Frequency(doc.Frequency), doc.DayOfMonth, weekday, doc.WeekOfMonth)
	if err := schedule.Validate(); err != nil {
		return engine.CollectionSchedule{}, err
	}
	return schedule, nil
}

func buildFineRule(doc *FineRuleJSON) (engine.LateFineRule, error) {
	if doc == nil {
		return engine.LateFineRule{IsEnabled: false}, nil
	}

	rule := engine.LateFineRule{
		RuleType:        engine.FineRuleType(doc.RuleType),
		IsEnabled:       doc.IsEnabled,
		GracePeriodDays: doc.GracePeriodDays,
	}

	var err error
	if doc.DailyAmount != "" {
		rule.DailyAmount, err = parseAmount("late_fine_rule.daily_amount", doc.DailyAmount)
		if err != nil {
			return engine.LateFineRule{}, err
		}
	}
	if doc.DailyPercentage != "" {
		pct, err := decimal.NewFromString(doc.DailyPercentage.String())
		if err != nil {
			return engine.LateFineRule{}, &engine.ConfigurationError{Field: "late_fine_rule.daily_percentage", Detail: "must be a decimal number"}
		}
		rule.DailyPercentage = pct
	}
	for i, t := range doc.Tiers {
		amount, err := parseAmount(fmt.Sprintf("late_fine_rule.tiers[%d].amount", i), t.Amount)
		if err != nil {
			return engine.LateFineRule{}, err
		}
		rule.Tiers = append(rule.Tiers, engine.TierRule{
			StartDay:     t.StartDay,
			EndDay:       t.EndDay,
			Amount:       amount,
			IsPercentage: t.IsPercentage,
		})
	}

	if err := rule.Validate(); err != nil {
		return engine.LateFineRule{}, err
	}
	return rule, nil
}

func parseAmount(field string, n json.Number) (engine.Money, error) {
	if n == "" {
		return engine.ZeroMoney(), nil
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return engine.Money{}, &engine.ConfigurationError{Field: field, Detail: "must be a decimal number"}
	}
	return engine.Money{Value: d}, nil
}
