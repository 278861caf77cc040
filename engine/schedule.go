/*
schedule.go - Collection schedules and due-date resolution

PURPOSE:
  Resolves when a member's contribution falls due for a given period.
  Every caller gets identical day-counting math from this one place;
  no surface reimplements due-date logic.

FREQUENCIES:
  MONTHLY/YEARLY: due on DayOfMonth within the period's month, clamped to
    the last valid day of short months (day 31 in February resolves to
    Feb 28/29).
  WEEKLY: due on the first occurrence of DayOfWeek on or after the period
    start.
  FORTNIGHTLY: due on the DayOfWeek occurrence matching the configured
    WeekOfMonth pattern (1 & 3 vs 2 & 4), first one on or after the
    period start.

DEFAULTS:
  Unset fields get documented defaults instead of failing validation:
  MONTHLY/YEARLY -> day 1, WEEKLY/FORTNIGHTLY -> Monday, FORTNIGHTLY ->
  week 1.

SEE ALSO:
  - latefine.go: Consumes due dates for days-late accrual
  - contribution/lifecycle.go: Uses NextPeriodStart when closing periods
*/
package engine

import (
	"time"
)

// =============================================================================
// COLLECTION SCHEDULE
// =============================================================================

type Frequency string

const (
	FrequencyWeekly      Frequency = "WEEKLY"
	FrequencyFortnightly Frequency = "FORTNIGHTLY"
	FrequencyMonthly     Frequency = "MONTHLY"
	FrequencyYearly      Frequency = "YEARLY"
)

// CollectionSchedule is a group's collection-frequency configuration.
// A schedule for a given frequency always has the fields that frequency
// requires; Normalize fills defaults for unset ones.
type CollectionSchedule struct {
	Frequency   Frequency
	DayOfMonth  int          // MONTHLY/YEARLY: 1-31, clamped per month
	DayOfWeek   time.Weekday // WEEKLY/FORTNIGHTLY
	WeekOfMonth int          // FORTNIGHTLY: 1-4 ("1st & 3rd" vs "2nd & 4th")

	dayOfWeekSet bool
}

// NewCollectionSchedule builds a schedule with defaults applied. dayOfWeek
// may be nil for monthly/yearly frequencies.
func NewCollectionSchedule(freq Frequency, dayOfMonth int, dayOfWeek *time.Weekday, weekOfMonth int) CollectionSchedule {
	s := CollectionSchedule{
		Frequency:   freq,
		DayOfMonth:  dayOfMonth,
		WeekOfMonth: weekOfMonth,
	}
	if dayOfWeek != nil {
		s.DayOfWeek = *dayOfWeek
		s.dayOfWeekSet = true
	}
	return s.Normalize()
}

// Normalize applies the documented defaults: MONTHLY/YEARLY day 1,
// WEEKLY/FORTNIGHTLY Monday, FORTNIGHTLY week 1.
func (s CollectionSchedule) Normalize() CollectionSchedule {
	switch s.Frequency {
	case FrequencyMonthly, FrequencyYearly:
		if s.DayOfMonth == 0 {
			s.DayOfMonth = 1
		}
	case FrequencyWeekly, FrequencyFortnightly:
		if !s.dayOfWeekSet && s.DayOfWeek == time.Sunday {
			// Unset weekday defaults to Monday; an explicit Sunday is kept.
			s.DayOfWeek = time.Monday
		}
		if s.Frequency == FrequencyFortnightly && s.WeekOfMonth == 0 {
			s.WeekOfMonth = 1
		}
	}
	return s
}

// Validate checks field ranges for the schedule's frequency.
func (s CollectionSchedule) Validate() error {
	switch s.Frequency {
	case FrequencyMonthly, FrequencyYearly:
		if s.DayOfMonth < 1 || s.DayOfMonth > 31 {
			return &ConfigurationError{Field: "dayOfMonth", Detail: "must be between 1 and 31"}
		}
	case FrequencyWeekly:
		// Any weekday is valid.
	case FrequencyFortnightly:
		if s.WeekOfMonth < 1 || s.WeekOfMonth > 4 {
			return &ConfigurationError{Field: "weekOfMonth", Detail: "must be between 1 and 4"}
		}
	default:
		return &ConfigurationError{Field: "frequency", Detail: "unknown frequency " + string(s.Frequency)}
	}
	return nil
}

// =============================================================================
// DUE DATE RESOLUTION
// =============================================================================

// ResolveDueDate computes the due date for a period starting at periodStart.
// Pure function; the only failure mode is an invalid schedule.
func ResolveDueDate(s CollectionSchedule, periodStart Date) (Date, error) {
	s = s.Normalize()
	if err := s.Validate(); err != nil {
		return Date{}, err
	}

	switch s.Frequency {
	case FrequencyMonthly, FrequencyYearly:
		return monthlyDueDate(s, periodStart), nil
	case FrequencyWeekly:
		return weeklyDueDate(s, periodStart), nil
	case FrequencyFortnightly:
		return fortnightlyDueDate(s, periodStart), nil
	}
	return Date{}, &ConfigurationError{Field: "frequency", Detail: "unknown frequency " + string(s.Frequency)}
}

// monthlyDueDate: DayOfMonth within the period's month, clamped to the
// month's last day when the month is shorter.
func monthlyDueDate(s CollectionSchedule, periodStart Date) Date {
	day := s.DayOfMonth
	if max := DaysInMonth(periodStart.Year(), periodStart.Month()); day > max {
		day = max
	}
	return NewDate(periodStart.Year(), periodStart.Month(), day)
}

// weeklyDueDate: first occurrence of DayOfWeek on or after periodStart.
func weeklyDueDate(s CollectionSchedule, periodStart Date) Date {
	offset := (int(s.DayOfWeek) - int(periodStart.Weekday()) + 7) % 7
	return periodStart.AddDays(offset)
}

// fortnightlyDueDate: first DayOfWeek occurrence in the configured odd/even
// week pattern on or after periodStart. WeekOfMonth 1 or 3 selects the
// "1st & 3rd" pattern, 2 or 4 selects "2nd & 4th".
func fortnightlyDueDate(s CollectionSchedule, periodStart Date) Date {
	base := s.WeekOfMonth
	if base > 2 {
		base -= 2
	}
	cursor := periodStart
	for i := 0; i < 3; i++ { // the pattern repeats within at most two months
		for _, n := range []int{base, base + 2} {
			candidate := occurrenceInMonth(cursor.Year(), cursor.Month(), s.DayOfWeek, n)
			if candidate.AfterOrEqual(periodStart) {
				return candidate
			}
		}
		cursor = NewDate(cursor.Year(), cursor.Month(), 1).AddMonths(1)
	}
	return periodStart
}

// occurrenceInMonth returns the nth occurrence of weekday in the month
// (n 1-4). n beyond the month's occurrences yields the last one.
func occurrenceInMonth(year int, month time.Month, weekday time.Weekday, n int) Date {
	first := NewDate(year, month, 1)
	offset := (int(weekday) - int(first.Weekday()) + 7) % 7
	candidate := first.AddDays(offset + (n-1)*7)
	if candidate.Month() != month {
		candidate = candidate.AddDays(-7)
	}
	return candidate
}

// =============================================================================
// PERIOD SUCCESSION
// =============================================================================

// NextPeriodStart returns the start date of the cycle following a period
// that started at periodStart: +7 days weekly, +14 fortnightly, +1 month
// monthly, +1 year yearly.
func NextPeriodStart(s CollectionSchedule, periodStart Date) Date {
	switch s.Normalize().Frequency {
	case FrequencyWeekly:
		return periodStart.AddDays(7)
	case FrequencyFortnightly:
		return periodStart.AddDays(14)
	case FrequencyYearly:
		return periodStart.AddYears(1)
	default:
		return periodStart.AddMonths(1)
	}
}
