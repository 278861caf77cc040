/*
latefine.go - Late fine rules and accrual calculation

PURPOSE:
  Computes how many days late a contribution is and what fine that accrues
  under the group's active rule. This is the single source of fine math;
  payment recording, period closing, and display all call into here.

RULE FAMILIES:
  DAILY_FIXED:      flat amount per day late
  DAILY_PERCENTAGE: percentage of the due contribution per day late
  TIER_BASED:       per-day amount that changes by how late the day is,
                    accumulated day by day (NOT a single tier lookup on the
                    total). With tiers (1-3: 15/day, 4-15: 25/day), 9 days
                    late owes 3x15 + 6x25 = 195, not 9x25.

DAYS-LATE CONTRACT:
  Fines accrue starting the calendar day AFTER the due date. A payment on
  the due date itself is never late. Both dates are truncated to midnight
  before subtraction, so partial days never count.

GRACE PERIOD:
  A rule may carry GracePeriodDays; the effective days late is reduced by
  the grace before any rule math.

VALIDATION:
  Tier partitions are validated at rule-creation time: coverage starts at
  day 1, no gaps, endDay >= startDay, positive amounts. The calculator
  assumes a valid partition and returns zero for a day no tier covers,
  which cannot happen for a rule that passed Validate.

SEE ALSO:
  - schedule.go: Produces the due dates consumed here
  - contribution/ledger.go: Applies results to member entries
*/
package engine

import (
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// LATE FINE RULE
// =============================================================================

type FineRuleType string

const (
	FineDailyFixed      FineRuleType = "DAILY_FIXED"
	FineDailyPercentage FineRuleType = "DAILY_PERCENTAGE"
	FineTierBased       FineRuleType = "TIER_BASED"
)

// UnboundedTierDay is the sentinel for a tier with no upper bound.
// Any endDay at or above this covers every later day.
const UnboundedTierDay = 999

// TierRule is one band of a TIER_BASED rule: the per-day penalty for days
// startDay through endDay inclusive.
type TierRule struct {
	StartDay     int
	EndDay       int
	Amount       Money
	IsPercentage bool
}

// Contains reports whether day falls inside this tier.
func (t TierRule) Contains(day int) bool {
	if day < t.StartDay {
		return false
	}
	return t.EndDay >= UnboundedTierDay || day <= t.EndDay
}

// LateFineRule is a group's fine configuration. At most one rule is active
// per group.
type LateFineRule struct {
	RuleType        FineRuleType
	IsEnabled       bool
	GracePeriodDays int

	// DAILY_FIXED
	DailyAmount Money

	// DAILY_PERCENTAGE (percent of the due contribution, e.g. 2 = 2%)
	DailyPercentage decimal.Decimal

	// TIER_BASED, ordered and non-overlapping
	Tiers []TierRule
}

// Validate checks the rule at creation time. Disabled rules always pass.
func (r LateFineRule) Validate() error {
	if !r.IsEnabled {
		return nil
	}

	switch r.RuleType {
	case FineDailyFixed:
		if !r.DailyAmount.IsPositive() {
			return &RuleError{Detail: "daily amount must be positive", TierIdx: -1}
		}
	case FineDailyPercentage:
		if !r.DailyPercentage.IsPositive() {
			return &RuleError{Detail: "daily percentage must be positive", TierIdx: -1}
		}
	case FineTierBased:
		return validateTiers(r.Tiers)
	default:
		return &RuleError{Detail: "unknown rule type " + string(r.RuleType), TierIdx: -1}
	}
	return nil
}

// validateTiers enforces the partition invariant: tiers cover [1, inf)
// without gaps. Overlaps are tolerated at resolution time (first match
// wins) but gaps are rejected outright.
func validateTiers(tiers []TierRule) error {
	if len(tiers) == 0 {
		return &RuleError{Detail: "at least one tier is required", TierIdx: -1}
	}

	sorted := make([]TierRule, len(tiers))
	copy(sorted, tiers)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StartDay < sorted[j].StartDay })

	if sorted[0].StartDay > 1 {
		return &RuleError{Detail: "tier coverage must start at day 1", TierIdx: 0}
	}

	for i, tier := range sorted {
		if tier.StartDay <= 0 {
			return &RuleError{Detail: "start day must be positive", TierIdx: i}
		}
		if tier.EndDay < tier.StartDay {
			return &RuleError{Detail: "end day must be at or after start day", TierIdx: i}
		}
		if !tier.Amount.IsPositive() {
			return &RuleError{Detail: "tier amount must be positive", TierIdx: i}
		}
		if i < len(sorted)-1 {
			next := sorted[i+1]
			if tier.EndDay+1 < next.StartDay {
				return &RuleError{Detail: "gap in tier coverage", TierIdx: i}
			}
		}
	}

	last := sorted[len(sorted)-1]
	if last.EndDay < UnboundedTierDay {
		return &RuleError{Detail: "last tier must be unbounded (end day >= 999)", TierIdx: len(sorted) - 1}
	}
	return nil
}

// =============================================================================
// DAYS-LATE COMPUTATION
// =============================================================================

// DaysLate returns how many whole days asOf is past due. Zero when asOf is
// on or before the due date; a payment on the due date itself is not late.
func DaysLate(dueDate, asOf Date) int {
	diff := DaysBetween(dueDate, asOf)
	if diff < 0 {
		return 0
	}
	return diff
}

// =============================================================================
// FINE COMPUTATION
// =============================================================================

var hundred = decimal.NewFromInt(100)

// ComputeLateFine returns the fine owed for being daysLate days past due on
// a contribution of contributionAmount. Zero when the rule is disabled or
// nothing is late. Results are rounded to two decimals, half away from zero.
func ComputeLateFine(rule LateFineRule, daysLate int, contributionAmount Money) Money {
	if !rule.IsEnabled || daysLate <= 0 {
		return ZeroMoney()
	}

	effectiveDays := daysLate - rule.GracePeriodDays
	if effectiveDays <= 0 {
		return ZeroMoney()
	}

	days := decimal.NewFromInt(int64(effectiveDays))

	switch rule.RuleType {
	case FineDailyFixed:
		return rule.DailyAmount.Mul(days).RoundPaise()

	case FineDailyPercentage:
		rate := rule.DailyPercentage.Div(hundred)
		return contributionAmount.Mul(rate).Mul(days).RoundPaise()

	case FineTierBased:
		return tierFine(rule.Tiers, effectiveDays, contributionAmount)
	}
	return ZeroMoney()
}

// tierFine walks each late day individually and adds that day's tier rate.
// The fine is cumulative across days, never a single tier lookup on the
// total: the per-day penalty steps up as the days pass.
func tierFine(tiers []TierRule, daysLate int, contributionAmount Money) Money {
	total := ZeroMoney()
	for day := 1; day <= daysLate; day++ {
		tier, ok := tierFor(tiers, day)
		if !ok {
			// Unreachable for rules that passed Validate; an uncovered day
			// contributes nothing rather than failing mid-calculation.
			continue
		}
		if tier.IsPercentage {
			rate := tier.Amount.Value.Div(hundred)
			total = total.Add(contributionAmount.Mul(rate))
		} else {
			total = total.Add(tier.Amount)
		}
	}
	return total.RoundPaise()
}

func tierFor(tiers []TierRule, day int) (TierRule, bool) {
	for _, tier := range tiers {
		if tier.Contains(day) {
			return tier, true
		}
	}
	return TierRule{}, false
}
