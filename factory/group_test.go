package factory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samiti/collection-engine/engine"
)

func TestParseGroup_FullDefinition(t *testing.T) {
	f := NewGroupFactory()

	group, members, startDate, err := f.ParseGroup(`{
		"name": "Mahila Samiti",
		"start_date": "2025-06-01",
		"schedule": {"frequency": "FORTNIGHTLY", "day_of_week": 1, "week_of_month": 1},
		"monthly_contribution": "500",
		"interest_rate": "2",
		"late_fine_rule": {
			"rule_type": "DAILY_FIXED",
			"is_enabled": true,
			"grace_period_days": 2,
			"daily_amount": "10"
		},
		"funds": {"loan_insurance_enabled": true},
		"members": [
			{"name": "Anita"},
			{"name": "Retired", "active": false}
		]
	}`)
	require.NoError(t, err)

	assert.NotEmpty(t, group.ID)
	assert.Equal(t, "Mahila Samiti", group.Name)
	assert.Equal(t, engine.FrequencyFortnightly, group.Schedule.Frequency)
	assert.Equal(t, time.Monday, group.Schedule.DayOfWeek)
	assert.Equal(t, 1, group.Schedule.WeekOfMonth)
	assert.Equal(t, "500.00", group.MonthlyContribution.String())
	assert.Equal(t, "2.00", group.InterestRate.String())
	assert.Equal(t, engine.FineDailyFixed, group.FineRule.RuleType)
	assert.Equal(t, 2, group.FineRule.GracePeriodDays)
	assert.Equal(t, "10.00", group.FineRule.DailyAmount.String())
	assert.True(t, group.LoanInsuranceEnabled)
	assert.False(t, group.GroupSocialEnabled)
	assert.Equal(t, "2025-06-01", startDate.String())

	require.Len(t, members, 2)
	assert.Equal(t, group.ID, members[0].GroupID)
	assert.True(t, members[0].Active)
	assert.False(t, members[1].Active)
}

func TestParseGroup_AmountsAcceptStringsAndNumbers(t *testing.T) {
	f := NewGroupFactory()

	group, _, _, err := f.ParseGroup(`{
		"name": "Numeric",
		"schedule": {"frequency": "MONTHLY"},
		"monthly_contribution": 250.50
	}`)
	require.NoError(t, err)
	assert.Equal(t, "250.50", group.MonthlyContribution.String())
}

func TestParseGroup_MissingFineRuleMeansDisabled(t *testing.T) {
	f := NewGroupFactory()

	group, _, _, err := f.ParseGroup(`{
		"name": "No Fines",
		"schedule": {"frequency": "WEEKLY", "day_of_week": 5},
		"monthly_contribution": "100"
	}`)
	require.NoError(t, err)
	assert.False(t, group.FineRule.IsEnabled)

	fine := engine.ComputeLateFine(group.FineRule, 10, group.MonthlyContribution)
	assert.True(t, fine.IsZero())
}

func TestParseGroup_Rejections(t *testing.T) {
	f := NewGroupFactory()

	cases := []struct {
		name     string
		payload  string
		sentinel error
	}{
		{
			"missing name",
			`{"schedule": {"frequency": "MONTHLY"}, "monthly_contribution": "100"}`,
			engine.ErrInvalidSchedule,
		},
		{
			"unknown frequency",
			`{"name": "X", "schedule": {"frequency": "DAILY"}, "monthly_contribution": "100"}`,
			engine.ErrInvalidSchedule,
		},
		{
			"non-positive contribution",
			`{"name": "X", "schedule": {"frequency": "MONTHLY"}, "monthly_contribution": "0"}`,
			engine.ErrInvalidSchedule,
		},
		{
			"broken tier partition",
			`{"name": "X", "schedule": {"frequency": "MONTHLY"}, "monthly_contribution": "100",
			  "late_fine_rule": {"rule_type": "TIER_BASED", "is_enabled": true,
			    "tiers": [{"start_day": 2, "end_day": 999, "amount": "5"}]}}`,
			engine.ErrInvalidFineRule,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, _, err := f.ParseGroup(tc.payload)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.sentinel)
		})
	}
}
