package engine_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samiti/collection-engine/engine"
)

// =============================================================================
// TEST FIXTURES
// =============================================================================

func standardTiers() []engine.TierRule {
	return []engine.TierRule{
		{StartDay: 1, EndDay: 3, Amount: engine.NewMoneyFromInt(15)},
		{StartDay: 4, EndDay: 15, Amount: engine.NewMoneyFromInt(25)},
		{StartDay: 16, EndDay: engine.UnboundedTierDay, Amount: engine.NewMoneyFromInt(50)},
	}
}

func tierRule() engine.LateFineRule {
	return engine.LateFineRule{
		RuleType:  engine.FineTierBased,
		IsEnabled: true,
		Tiers:     standardTiers(),
	}
}

// =============================================================================
// DAYS LATE
// =============================================================================

func TestDaysLate_DueDateItselfIsNotLate(t *testing.T) {
	due := engine.NewDate(2025, time.June, 5)

	assert.Equal(t, 0, engine.DaysLate(due, engine.NewDate(2025, time.June, 5)))
	assert.Equal(t, 0, engine.DaysLate(due, engine.NewDate(2025, time.June, 1)))
	assert.Equal(t, 1, engine.DaysLate(due, engine.NewDate(2025, time.June, 6)))
	assert.Equal(t, 9, engine.DaysLate(due, engine.NewDate(2025, time.June, 14)))
}

// =============================================================================
// TIER-BASED ACCRUAL
// =============================================================================

func TestComputeLateFine_TierBased_AccumulatesDayByDay(t *testing.T) {
	// GIVEN: Tiers 1-3 at 15/day, 4-15 at 25/day, 16+ at 50/day
	// WHEN: 9 days late
	// THEN: Fine is 3x15 + 6x25 = 195, not 9x25

	fine := engine.ComputeLateFine(tierRule(), 9, engine.NewMoneyFromInt(500))
	assert.Equal(t, "195.00", fine.String())
}

func TestComputeLateFine_TierBased_SpansAllTiers(t *testing.T) {
	// 20 days: 3x15 + 12x25 + 5x50 = 45 + 300 + 250 = 595
	fine := engine.ComputeLateFine(tierRule(), 20, engine.NewMoneyFromInt(500))
	assert.Equal(t, "595.00", fine.String())
}

func TestComputeLateFine_TierBased_SingleDayPerTierBoundary(t *testing.T) {
	cases := []struct {
		daysLate int
		want     string
	}{
		{1, "15.00"},
		{3, "45.00"},
		{4, "70.00"},   // 3x15 + 1x25
		{15, "345.00"}, // 3x15 + 12x25
		{16, "395.00"}, // 3x15 + 12x25 + 1x50
	}

	for _, tc := range cases {
		fine := engine.ComputeLateFine(tierRule(), tc.daysLate, engine.NewMoneyFromInt(500))
		assert.Equal(t, tc.want, fine.String(), "daysLate=%d", tc.daysLate)
	}
}

func TestComputeLateFine_MonotonicInDaysLate(t *testing.T) {
	// More days late never yields a smaller fine.
	prev := engine.ZeroMoney()
	for days := 1; days <= 40; days++ {
		fine := engine.ComputeLateFine(tierRule(), days, engine.NewMoneyFromInt(500))
		assert.False(t, fine.LessThan(prev), "fine decreased at daysLate=%d", days)
		prev = fine
	}
}

func TestComputeLateFine_TierBased_PercentageTier(t *testing.T) {
	rule := engine.LateFineRule{
		RuleType:  engine.FineTierBased,
		IsEnabled: true,
		Tiers: []engine.TierRule{
			// 1% of the contribution per day for every late day.
			{StartDay: 1, EndDay: engine.UnboundedTierDay, Amount: engine.NewMoneyFromInt(1), IsPercentage: true},
		},
	}

	fine := engine.ComputeLateFine(rule, 4, engine.NewMoneyFromInt(500))
	assert.Equal(t, "20.00", fine.String())
}

// =============================================================================
// DAILY RULES
// =============================================================================

func TestComputeLateFine_DailyFixed(t *testing.T) {
	rule := engine.LateFineRule{
		RuleType:    engine.FineDailyFixed,
		IsEnabled:   true,
		DailyAmount: engine.NewMoneyFromInt(10),
	}

	assert.Equal(t, "0.00", engine.ComputeLateFine(rule, 0, engine.NewMoneyFromInt(500)).String())
	assert.Equal(t, "10.00", engine.ComputeLateFine(rule, 1, engine.NewMoneyFromInt(500)).String())
	assert.Equal(t, "70.00", engine.ComputeLateFine(rule, 7, engine.NewMoneyFromInt(500)).String())
}

func TestComputeLateFine_DailyPercentage_RoundsToTwoDecimals(t *testing.T) {
	rule := engine.LateFineRule{
		RuleType:        engine.FineDailyPercentage,
		IsEnabled:       true,
		DailyPercentage: decimal.RequireFromString("1.5"),
	}

	// 1.5% of 333 = 4.995/day; 3 days = 14.985 -> 14.99 half away from zero.
	fine := engine.ComputeLateFine(rule, 3, engine.NewMoneyFromInt(333))
	assert.Equal(t, "14.99", fine.String())
}

// =============================================================================
// GRACE PERIOD AND DISABLED RULES
// =============================================================================

func TestComputeLateFine_GracePeriodReducesEffectiveDays(t *testing.T) {
	rule := tierRule()
	rule.GracePeriodDays = 3

	// 9 days late with 3 grace days accrues as 6 effective days:
	// 3x15 + 3x25 = 120.
	fine := engine.ComputeLateFine(rule, 9, engine.NewMoneyFromInt(500))
	assert.Equal(t, "120.00", fine.String())

	// Entirely inside the grace window: no fine.
	assert.Equal(t, "0.00", engine.ComputeLateFine(rule, 3, engine.NewMoneyFromInt(500)).String())
}

func TestComputeLateFine_DisabledRuleAccruesNothing(t *testing.T) {
	rule := tierRule()
	rule.IsEnabled = false

	fine := engine.ComputeLateFine(rule, 30, engine.NewMoneyFromInt(500))
	assert.True(t, fine.IsZero())
}

// =============================================================================
// RULE VALIDATION
// =============================================================================

func TestLateFineRule_Validate_AcceptsStandardTiers(t *testing.T) {
	require.NoError(t, tierRule().Validate())
}

func TestLateFineRule_Validate_RejectsBrokenTierPartitions(t *testing.T) {
	cases := []struct {
		name  string
		tiers []engine.TierRule
	}{
		{"empty", nil},
		{"coverage starts past day 1", []engine.TierRule{
			{StartDay: 2, EndDay: engine.UnboundedTierDay, Amount: engine.NewMoneyFromInt(10)},
		}},
		{"gap between tiers", []engine.TierRule{
			{StartDay: 1, EndDay: 3, Amount: engine.NewMoneyFromInt(10)},
			{StartDay: 6, EndDay: engine.UnboundedTierDay, Amount: engine.NewMoneyFromInt(20)},
		}},
		{"end before start", []engine.TierRule{
			{StartDay: 1, EndDay: 0, Amount: engine.NewMoneyFromInt(10)},
		}},
		{"non-positive amount", []engine.TierRule{
			{StartDay: 1, EndDay: engine.UnboundedTierDay, Amount: engine.ZeroMoney()},
		}},
		{"bounded last tier", []engine.TierRule{
			{StartDay: 1, EndDay: 30, Amount: engine.NewMoneyFromInt(10)},
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rule := engine.LateFineRule{
				RuleType:  engine.FineTierBased,
				IsEnabled: true,
				Tiers:     tc.tiers,
			}
			err := rule.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, engine.ErrInvalidFineRule)
		})
	}
}

func TestLateFineRule_Validate_DisabledRuleAlwaysPasses(t *testing.T) {
	rule := engine.LateFineRule{RuleType: engine.FineTierBased, IsEnabled: false}
	assert.NoError(t, rule.Validate())
}

func TestLateFineRule_Validate_DailyRulesNeedPositiveRates(t *testing.T) {
	fixed := engine.LateFineRule{RuleType: engine.FineDailyFixed, IsEnabled: true}
	assert.ErrorIs(t, fixed.Validate(), engine.ErrInvalidFineRule)

	pct := engine.LateFineRule{RuleType: engine.FineDailyPercentage, IsEnabled: true}
	assert.ErrorIs(t, pct.Validate(), engine.ErrInvalidFineRule)
}
