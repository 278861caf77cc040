/*
Package contribution is the stateful domain layer over the calculation engine.

PURPOSE:
  Owns the records the engine computes against: groups, members, collection
  periods, and per-member contribution entries. The engine package stays pure;
  everything that touches a store lives here.

KEY CONCEPTS IN THIS FILE (types.go):
  - Group: Savings group with its schedule, fine rule, and fund balances
  - Period: One collection cycle, OPEN or CLOSED (explicit status, never
    inferred from a nullable total)
  - MemberContribution: A member's obligation and payments within one period
  - Loan: Outstanding credit counted as a group asset while ACTIVE

CORE INVARIANTS:
  1. Exactly one OPEN period per group at any time
  2. Exactly one MemberContribution per (period, member)
  3. A CLOSED period is immutable except through ReopenPeriod
  4. Standing is derived, never independently mutated

SEE ALSO:
  - ledger.go: Entry upsert and payment recording
  - lifecycle.go: Period open/close/reopen and invariant repair
  - store.go: Persistence interfaces
*/
package contribution

import (
	"github.com/shopspring/decimal"

	"github.com/samiti/collection-engine/engine"
)

var (
	decimalPct30 = decimal.RequireFromString("0.30")
	hundred      = decimal.NewFromInt(100)
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type (
	GroupID  string
	MemberID string
	PeriodID string
	EntryID  string
	LoanID   string
)

// =============================================================================
// GROUP - Savings group configuration and live balances
// =============================================================================

// Group is a member-owned savings group. The schedule and fine rule are
// validated at creation and treated as immutable afterwards; changing them
// mid-period is a correction workflow, not an update.
type Group struct {
	ID   GroupID
	Name string

	Schedule engine.CollectionSchedule
	FineRule engine.LateFineRule

	// MonthlyContribution is the compulsory amount due from every member
	// each period, regardless of the collection frequency's name.
	MonthlyContribution engine.Money

	// InterestRate is the flat per-period loan interest in percent.
	// A member with an active loan owes balance * rate / 100 each period.
	InterestRate engine.Money

	// Live cash balances, updated only at period close.
	CashInHand engine.Money
	CashInBank engine.Money

	// Ring-fenced reserve funds, excluded from distributable standing.
	LoanInsuranceEnabled bool
	LoanInsuranceBalance engine.Money
	GroupSocialEnabled   bool
	GroupSocialBalance   engine.Money

	CreatedAt engine.Date
}

// ReserveFunds returns the group's ring-fenced balances in the shape the
// standing calculator consumes.
func (g Group) ReserveFunds() []engine.ReserveFund {
	return []engine.ReserveFund{
		{Name: "loan_insurance", Balance: g.LoanInsuranceBalance, Enabled: g.LoanInsuranceEnabled},
		{Name: "group_social", Balance: g.GroupSocialBalance, Enabled: g.GroupSocialEnabled},
	}
}

// Member belongs to exactly one group. Inactive members keep their history
// but are not seeded into new periods.
type Member struct {
	ID      MemberID
	GroupID GroupID
	Name    string
	Active  bool
}

// =============================================================================
// PERIOD - One collection cycle
// =============================================================================

type PeriodStatus string

const (
	PeriodOpen   PeriodStatus = "OPEN"
	PeriodClosed PeriodStatus = "CLOSED"
)

// Period is one collection cycle. Status is an explicit tag; a period is
// never considered closed just because a total happens to be present.
type Period struct {
	ID       PeriodID
	GroupID  GroupID
	Sequence int
	Status   PeriodStatus

	StartDate engine.Date
	DueDate   engine.Date
	ClosedAt  engine.Date // zero while OPEN

	// Standing snapshots at the period boundaries. StandingAtStart of the
	// successor always equals StandingAtEnd of the period it follows.
	StandingAtStart engine.Money
	StandingAtEnd   engine.Money

	// Close-time aggregates, zero while OPEN. CarryForward is the sum of
	// unpaid member balances rolled into the successor's opening dues.
	MembersPresent     int
	TotalCollected     engine.Money
	InterestCollected  engine.Money
	LateFinesCollected engine.Money
	NewContributions   engine.Money
	CarryForward       engine.Money

	// How the collected cash was split at close. Kept on the period so a
	// reopen can revert the group's cash balances exactly.
	AllocationHand engine.Money
	AllocationBank engine.Money
}

// IsOpen reports whether the period still accepts payments.
func (p Period) IsOpen() bool { return p.Status == PeriodOpen }

// CashAllocation splits a period's collected cash between hand and bank.
// Hand + Bank must equal the period's total collected.
type CashAllocation struct {
	Hand engine.Money
	Bank engine.Money
}

// Total returns the allocation's sum.
func (a CashAllocation) Total() engine.Money { return a.Hand.Add(a.Bank) }

// DefaultAllocation splits collected cash 30% to hand and 70% to bank,
// for callers that do not supply an explicit split.
func DefaultAllocation(collected engine.Money) CashAllocation {
	hand := collected.Mul(decimalPct30).RoundPaise()
	return CashAllocation{Hand: hand, Bank: collected.Sub(hand)}
}

// =============================================================================
// MEMBER CONTRIBUTION - Per-member ledger entry within a period
// =============================================================================

type ContributionStatus string

const (
	ContributionPending ContributionStatus = "PENDING"
	ContributionPartial ContributionStatus = "PARTIAL"
	ContributionPaid    ContributionStatus = "PAID"
	ContributionOverdue ContributionStatus = "OVERDUE"
)

// MemberContribution is a member's obligation within one period: what is
// due per component, what has been paid, and the derived status. At most
// one exists per (PeriodID, MemberID).
type MemberContribution struct {
	ID       EntryID
	PeriodID PeriodID
	MemberID MemberID

	// Due components.
	ContributionDue engine.Money
	InterestDue     engine.Money
	LateFineDue     engine.Money
	DaysLate        int

	// Paid components, each capped at its due counterpart.
	ContributionPaid engine.Money
	InterestPaid     engine.Money
	LateFinePaid     engine.Money

	Status ContributionStatus
	PaidAt engine.Date // date of the most recent payment, zero if none
}

// MinimumDue is the total the member owes for the period.
func (c MemberContribution) MinimumDue() engine.Money {
	return c.ContributionDue.Add(c.InterestDue).Add(c.LateFineDue)
}

// TotalPaid is the sum of all paid components.
func (c MemberContribution) TotalPaid() engine.Money {
	return c.ContributionPaid.Add(c.InterestPaid).Add(c.LateFinePaid)
}

// Remaining is the unpaid balance, floored at zero.
func (c MemberContribution) Remaining() engine.Money {
	return c.MinimumDue().Sub(c.TotalPaid()).FloorZero()
}

// DeriveStatus recomputes the entry status from its amounts.
// PAID wins over OVERDUE: a fully settled entry is never overdue.
func (c MemberContribution) DeriveStatus() ContributionStatus {
	if c.Remaining().IsZero() && c.MinimumDue().IsPositive() {
		return ContributionPaid
	}
	if c.DaysLate > 0 {
		return ContributionOverdue
	}
	if c.TotalPaid().IsPositive() {
		return ContributionPartial
	}
	return ContributionPending
}

// =============================================================================
// LOAN - Outstanding member credit
// =============================================================================

type LoanStatus string

const (
	LoanActive LoanStatus = "ACTIVE"
	LoanClosed LoanStatus = "CLOSED"
)

// Loan is an amount lent to a member. While ACTIVE its balance counts as a
// group asset and accrues flat per-period interest into the member's entry.
type Loan struct {
	ID             LoanID
	GroupID        GroupID
	MemberID       MemberID
	Principal      engine.Money
	CurrentBalance engine.Money
	Status         LoanStatus
	IssuedAt       engine.Date
}

// PeriodInterest returns the flat interest the loan accrues in one period
// at the given percentage rate.
func (l Loan) PeriodInterest(rate engine.Money) engine.Money {
	if l.Status != LoanActive {
		return engine.ZeroMoney()
	}
	return l.CurrentBalance.Mul(rate.Value).Div(hundred).RoundPaise()
}
