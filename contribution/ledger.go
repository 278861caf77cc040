/*
ledger.go - Contribution entry lifecycle within a period

PURPOSE:
  The Ledger owns member contribution entries: creating them exactly once
  per (period, member), recording component payments against them, and
  refreshing their accrued fines as days pass.

KEY OPERATIONS:
  EnsureEntry:   Atomic get-or-create. Concurrent callers for the same
                 (period, member) converge on one row; the store's upsert
                 is the synchronization point, never check-then-insert here.
  RecordPayment: Refreshes the fine accrual as of the payment date, then
                 applies a component payment (contribution / interest /
                 late fine). Validates before any mutation; rejected
                 payments change nothing.
  RecomputeDue:  Refreshes daysLate and lateFineDue for every entry in a
                 period without touching paid amounts.

COMPONENT MODEL:
  An entry carries three due components and three paid counterparts. A
  payment addresses components explicitly; no component may be overpaid
  and no amount may be negative. minimumDue, totalPaid, remaining, and
  status are always derived from the components.

SEE ALSO:
  - engine/latefine.go: Fine math consumed here
  - lifecycle.go: Seeds entries via EnsureEntry at period open
*/
package contribution

import (
	"context"

	"github.com/google/uuid"

	"github.com/samiti/collection-engine/engine"
)

// =============================================================================
// LEDGER
// =============================================================================

type Ledger struct {
	Store Store
}

func NewLedger(store Store) *Ledger {
	return &Ledger{Store: store}
}

// =============================================================================
// ENSURE ENTRY - Atomic get-or-create
// =============================================================================

// EnsureEntry returns the single contribution entry for (period, member),
// creating it with freshly computed dues when absent. carryForward is the
// member's unpaid balance rolled over from the predecessor period; it is
// folded into the contribution due. Safe to call concurrently: all callers
// receive the same winning row.
func (l *Ledger) EnsureEntry(ctx context.Context, group Group, period Period, memberID MemberID, loans []Loan, carryForward engine.Money, asOf engine.Date) (MemberContribution, error) {
	candidate := l.buildEntry(group, period, memberID, loans, carryForward, asOf)
	return l.Store.UpsertEntry(ctx, candidate)
}

// buildEntry computes a member's dues for the period: the compulsory
// contribution plus any carried-forward balance, flat interest on their
// active loans, and the fine accrued as of asOf.
func (l *Ledger) buildEntry(group Group, period Period, memberID MemberID, loans []Loan, carryForward engine.Money, asOf engine.Date) MemberContribution {
	interest := engine.ZeroMoney()
	for _, loan := range loans {
		if loan.MemberID == memberID {
			interest = interest.Add(loan.PeriodInterest(group.InterestRate))
		}
	}

	entry := MemberContribution{
		ID:              EntryID(uuid.NewString()),
		PeriodID:        period.ID,
		MemberID:        memberID,
		ContributionDue: group.MonthlyContribution.Add(carryForward),
		InterestDue:     interest,
	}
	refreshAccrual(&entry, group, period, asOf)
	return entry
}

// refreshAccrual recomputes the entry's daysLate and lateFineDue as of a
// given date and re-derives its status. The fine is never reduced below
// what the member already paid toward it.
func refreshAccrual(entry *MemberContribution, group Group, period Period, asOf engine.Date) {
	entry.DaysLate = engine.DaysLate(period.DueDate, asOf)
	entry.LateFineDue = engine.ComputeLateFine(group.FineRule, entry.DaysLate, group.MonthlyContribution)
	if entry.LateFineDue.LessThan(entry.LateFinePaid) {
		entry.LateFineDue = entry.LateFinePaid
	}
	entry.Status = entry.DeriveStatus()
}

// =============================================================================
// RECORD PAYMENT
// =============================================================================

// PaymentInput is a payment split across the entry's components. Omitted
// components are zero.
type PaymentInput struct {
	Contribution engine.Money
	Interest     engine.Money
	LateFine     engine.Money
}

// Total returns the payment's sum across components.
func (p PaymentInput) Total() engine.Money {
	return p.Contribution.Add(p.Interest).Add(p.LateFine)
}

// RecordPayment applies a payment to an entry. The fine accrual is first
// refreshed as of paidAt, so a late payment is validated against the fine
// actually owed on that day. All validation happens before any mutation;
// a rejected payment leaves the entry untouched. The period must still
// be OPEN.
func (l *Ledger) RecordPayment(ctx context.Context, entryID EntryID, payment PaymentInput, paidAt engine.Date) (MemberContribution, error) {
	entry, err := l.Store.GetEntry(ctx, entryID)
	if err != nil {
		return MemberContribution{}, err
	}

	period, err := l.Store.GetPeriod(ctx, entry.PeriodID)
	if err != nil {
		return MemberContribution{}, err
	}
	if !period.IsOpen() {
		return MemberContribution{}, &engine.StateError{
			PeriodID: string(period.ID),
			Detail:   "cannot record a payment against a closed period",
			Cause:    engine.ErrPeriodClosed,
		}
	}

	group, err := l.Store.GetGroup(ctx, period.GroupID)
	if err != nil {
		return MemberContribution{}, err
	}
	refreshAccrual(&entry, group, period, paidAt)

	if err := validateComponent("contribution", payment.Contribution, entry.ContributionPaid, entry.ContributionDue); err != nil {
		return MemberContribution{}, err
	}
	if err := validateComponent("interest", payment.Interest, entry.InterestPaid, entry.InterestDue); err != nil {
		return MemberContribution{}, err
	}
	if err := validateComponent("lateFine", payment.LateFine, entry.LateFinePaid, entry.LateFineDue); err != nil {
		return MemberContribution{}, err
	}

	entry.ContributionPaid = entry.ContributionPaid.Add(payment.Contribution)
	entry.InterestPaid = entry.InterestPaid.Add(payment.Interest)
	entry.LateFinePaid = entry.LateFinePaid.Add(payment.LateFine)
	if payment.Total().IsPositive() {
		entry.PaidAt = paidAt
	}
	entry.Status = entry.DeriveStatus()

	if err := l.Store.SaveEntry(ctx, entry); err != nil {
		return MemberContribution{}, err
	}
	return entry, nil
}

// validateComponent rejects negative amounts and overpayment of a single
// component.
func validateComponent(field string, amount, alreadyPaid, due engine.Money) error {
	if amount.IsNegative() {
		return &engine.ValidationError{Field: field, Detail: "amount must not be negative"}
	}
	if alreadyPaid.Add(amount).GreaterThan(due) {
		return &engine.ValidationError{Field: field, Detail: "payment exceeds the amount due"}
	}
	return nil
}

// =============================================================================
// RECOMPUTE DUE
// =============================================================================

// RecomputeDue refreshes daysLate and lateFineDue for every entry in the
// period as of asOf. Paid amounts are never touched; only the accrual side
// moves. Returns the refreshed entries.
func (l *Ledger) RecomputeDue(ctx context.Context, group Group, period Period, asOf engine.Date) ([]MemberContribution, error) {
	entries, err := l.Store.EntriesOf(ctx, period.ID)
	if err != nil {
		return nil, err
	}

	refreshed := make([]MemberContribution, 0, len(entries))
	for _, entry := range entries {
		refreshAccrual(&entry, group, period, asOf)
		if err := l.Store.SaveEntry(ctx, entry); err != nil {
			return nil, err
		}
		refreshed = append(refreshed, entry)
	}
	return refreshed, nil
}
