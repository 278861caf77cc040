/*
lifecycle.go - Period open/close/reopen and invariant repair

PURPOSE:
  The LifecycleManager owns period state transitions. It enforces the two
  structural invariants of the domain:
    1. Exactly one OPEN period per group at any time
    2. Exactly one contribution entry per (period, member)

CLOSE-THEN-OPEN:
  ClosePeriod is one atomic unit inside TxStore.WithTx:
    aggregate entry totals -> apply cash allocation -> compute standing ->
    mark CLOSED -> create successor (seq+1) -> seed successor entries with
    each member's unpaid balance carried forward into their opening dues.
  A failure at any step rolls the whole thing back; the system is never
  left between periods. The successor's standingAtStart always equals the
  closed period's standingAtEnd.

REOPEN:
  A correction workflow, not an undo. Reopening is refused once the
  successor has recorded payments; otherwise the unpaid successor is
  removed, the cash allocation reverted, and the period returns to OPEN.

SELF-HEALING:
  EnsureOpenPeriod runs before reads. A group found with zero OPEN periods
  gets a successor opened from its latest closed snapshot; duplicate
  (period, member) rows are merged with paid amounts summed. Every repair
  is written to the audit log and logged - repaired, never hidden.

SEE ALSO:
  - ledger.go: Entry creation and payment recording
  - engine/schedule.go: Due dates and successor start dates
  - engine/standing.go: Standing snapshots taken at close
*/
package contribution

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/samiti/collection-engine/engine"
)

// =============================================================================
// LIFECYCLE MANAGER
// =============================================================================

type LifecycleManager struct {
	Store    TxStore
	Audit    AuditLog
	standing engine.StandingCalculator
}

func NewLifecycleManager(store TxStore, audit AuditLog) *LifecycleManager {
	return &LifecycleManager{Store: store, Audit: audit}
}

// =============================================================================
// OPEN PERIOD
// =============================================================================

// OpenPeriod creates the group's first period and seeds one entry per
// active member. Fails with engine.ErrPeriodAlreadyOpen when the group
// already has an OPEN period.
func (m *LifecycleManager) OpenPeriod(ctx context.Context, groupID GroupID, startDate engine.Date) (Period, error) {
	group, err := m.Store.GetGroup(ctx, groupID)
	if err != nil {
		return Period{}, err
	}

	var opened Period
	err = m.Store.WithTx(ctx, func(s Store) error {
		standing := engine.ZeroMoney()
		if latest, ok, err := latestPeriod(ctx, s, groupID); err != nil {
			return err
		} else if ok {
			standing = latest.StandingAtEnd
		}
		p, err := m.createPeriod(ctx, s, group, 1, startDate, standing)
		if err != nil {
			return err
		}
		opened = p
		return m.seedEntries(ctx, s, group, p, nil)
	})
	return opened, err
}

// createPeriod resolves the due date and writes the period. The store
// enforces the one-OPEN-period invariant.
func (m *LifecycleManager) createPeriod(ctx context.Context, s Store, group Group, sequence int, startDate engine.Date, standingAtStart engine.Money) (Period, error) {
	dueDate, err := engine.ResolveDueDate(group.Schedule, startDate)
	if err != nil {
		return Period{}, err
	}

	p := Period{
		ID:              PeriodID(uuid.NewString()),
		GroupID:         group.ID,
		Sequence:        sequence,
		Status:          PeriodOpen,
		StartDate:       startDate,
		DueDate:         dueDate,
		StandingAtStart: standingAtStart,
	}
	if err := s.CreatePeriod(ctx, p); err != nil {
		return Period{}, err
	}
	return p, nil
}

// seedEntries ensures one entry per active member. carry maps members to
// the unpaid balance rolled over from the predecessor period; nil for a
// group's first period. Upsert semantics make this safe to repeat.
func (m *LifecycleManager) seedEntries(ctx context.Context, s Store, group Group, period Period, carry map[MemberID]engine.Money) error {
	members, err := s.MembersOf(ctx, group.ID)
	if err != nil {
		return err
	}
	loans, err := s.LoansOf(ctx, group.ID)
	if err != nil {
		return err
	}

	ledger := NewLedger(s)
	for _, member := range members {
		if !member.Active {
			continue
		}
		cf := engine.ZeroMoney()
		if c, ok := carry[member.ID]; ok {
			cf = c
		}
		if _, err := ledger.EnsureEntry(ctx, group, period, member.ID, activeLoans(loans), cf, period.StartDate); err != nil {
			return err
		}
	}
	return nil
}

// carryForwardBalances maps each member to their unpaid balance in the
// given entries. Settled members are omitted.
func carryForwardBalances(entries []MemberContribution) map[MemberID]engine.Money {
	carry := make(map[MemberID]engine.Money)
	for _, e := range entries {
		if remaining := e.Remaining(); remaining.IsPositive() {
			carry[e.MemberID] = remaining
		}
	}
	return carry
}

func activeLoans(loans []Loan) []Loan {
	out := make([]Loan, 0, len(loans))
	for _, l := range loans {
		if l.Status == LoanActive {
			out = append(out, l)
		}
	}
	return out
}

// =============================================================================
// CLOSE PERIOD
// =============================================================================

// CloseInput parameterizes a period close. A nil Allocation gets the
// default 30/70 hand/bank split of the collected total.
type CloseInput struct {
	MembersPresent int
	Allocation     *CashAllocation
	ClosedAt       engine.Date
}

// CloseResult is the outcome of an atomic close: the now-CLOSED period and
// the successor opened in its place.
type CloseResult struct {
	Closed    Period
	Successor Period
}

// ClosePeriod closes the group's OPEN period and opens its successor as a
// single transaction. Any error leaves both periods untouched.
//
// A period with zero collections still closes normally; an empty cycle is
// a valid cycle, not a special case.
func (m *LifecycleManager) ClosePeriod(ctx context.Context, groupID GroupID, input CloseInput) (CloseResult, error) {
	var result CloseResult
	err := m.Store.WithTx(ctx, func(s Store) error {
		group, err := s.GetGroup(ctx, groupID)
		if err != nil {
			return err
		}
		period, err := soleOpenPeriod(ctx, s, groupID)
		if err != nil {
			return err
		}

		entries, err := s.EntriesOf(ctx, period.ID)
		if err != nil {
			return err
		}

		// Aggregate what the period actually collected.
		collected, interest, fines := engine.ZeroMoney(), engine.ZeroMoney(), engine.ZeroMoney()
		for _, e := range entries {
			collected = collected.Add(e.TotalPaid())
			interest = interest.Add(e.InterestPaid)
			fines = fines.Add(e.LateFinePaid)
		}

		alloc := DefaultAllocation(collected)
		if input.Allocation != nil {
			alloc = *input.Allocation
		}
		if !alloc.Total().Equal(collected) {
			return fmt.Errorf("%w: hand %s + bank %s, collected %s",
				engine.ErrAllocationMismatch, alloc.Hand, alloc.Bank, collected)
		}

		group.CashInHand = group.CashInHand.Add(alloc.Hand)
		group.CashInBank = group.CashInBank.Add(alloc.Bank)

		loans, err := s.LoansOf(ctx, groupID)
		if err != nil {
			return err
		}
		members, err := s.MembersOf(ctx, groupID)
		if err != nil {
			return err
		}
		snapshot := m.standing.ComputeStanding(
			group.CashInHand, group.CashInBank,
			loanBalances(loans), group.ReserveFunds(), countActive(members))

		closedAt := input.ClosedAt
		if closedAt.IsZero() {
			closedAt = engine.Today()
		}

		// Unpaid balances roll into the successor's opening dues.
		carry := carryForwardBalances(entries)
		carryTotal := engine.ZeroMoney()
		for _, amount := range carry {
			carryTotal = carryTotal.Add(amount)
		}

		period.Status = PeriodClosed
		period.ClosedAt = closedAt
		period.MembersPresent = input.MembersPresent
		period.TotalCollected = collected
		period.InterestCollected = interest
		period.LateFinesCollected = fines
		period.NewContributions = collected.Sub(interest).Sub(fines)
		period.CarryForward = carryTotal
		period.AllocationHand = alloc.Hand
		period.AllocationBank = alloc.Bank
		period.StandingAtEnd = snapshot.TotalStanding

		if err := s.SavePeriod(ctx, period); err != nil {
			return err
		}
		if err := s.SaveGroup(ctx, group); err != nil {
			return err
		}

		successor, err := m.createPeriod(ctx, s, group,
			period.Sequence+1,
			engine.NextPeriodStart(group.Schedule, period.StartDate),
			snapshot.TotalStanding)
		if err != nil {
			return err
		}
		if err := m.seedEntries(ctx, s, group, successor, carry); err != nil {
			return err
		}

		result = CloseResult{Closed: period, Successor: successor}
		return nil
	})
	return result, err
}

func loanBalances(loans []Loan) []engine.LoanBalance {
	out := make([]engine.LoanBalance, 0, len(loans))
	for _, l := range loans {
		out = append(out, engine.LoanBalance{CurrentBalance: l.CurrentBalance, Active: l.Status == LoanActive})
	}
	return out
}

func countActive(members []Member) int {
	n := 0
	for _, m := range members {
		if m.Active {
			n++
		}
	}
	return n
}

// =============================================================================
// REOPEN PERIOD
// =============================================================================

// ReopenPeriod returns a CLOSED period to OPEN for corrections. Refused
// once the successor holds any recorded payment; otherwise the unpaid
// successor is deleted and the close's cash allocation reverted.
func (m *LifecycleManager) ReopenPeriod(ctx context.Context, periodID PeriodID) (Period, error) {
	var reopened Period
	err := m.Store.WithTx(ctx, func(s Store) error {
		period, err := s.GetPeriod(ctx, periodID)
		if err != nil {
			return err
		}
		if period.IsOpen() {
			return &engine.StateError{PeriodID: string(periodID), Detail: "period is already open", Cause: engine.ErrPeriodAlreadyOpen}
		}

		successor, err := s.PeriodBySequence(ctx, period.GroupID, period.Sequence+1)
		if err != nil && !engine.IsNotFound(err) {
			return err
		}
		if err == nil {
			succEntries, err := s.EntriesOf(ctx, successor.ID)
			if err != nil {
				return err
			}
			for _, e := range succEntries {
				if e.TotalPaid().IsPositive() {
					return &engine.StateError{
						PeriodID: string(successor.ID),
						Detail:   "successor period has recorded payments",
						Cause:    engine.ErrSuccessorHasPayments,
					}
				}
			}
			for _, e := range succEntries {
				if err := s.DeleteEntry(ctx, e.ID); err != nil {
					return err
				}
			}
			if err := s.DeletePeriod(ctx, successor.ID); err != nil {
				return err
			}
		}

		group, err := s.GetGroup(ctx, period.GroupID)
		if err != nil {
			return err
		}
		group.CashInHand = group.CashInHand.Sub(period.AllocationHand)
		group.CashInBank = group.CashInBank.Sub(period.AllocationBank)
		if err := s.SaveGroup(ctx, group); err != nil {
			return err
		}

		period.Status = PeriodOpen
		period.ClosedAt = engine.Date{}
		period.StandingAtEnd = engine.ZeroMoney()
		period.MembersPresent = 0
		period.TotalCollected = engine.ZeroMoney()
		period.InterestCollected = engine.ZeroMoney()
		period.LateFinesCollected = engine.ZeroMoney()
		period.NewContributions = engine.ZeroMoney()
		period.CarryForward = engine.ZeroMoney()
		period.AllocationHand = engine.ZeroMoney()
		period.AllocationBank = engine.ZeroMoney()

		if err := s.SavePeriod(ctx, period); err != nil {
			return err
		}
		reopened = period
		return nil
	})
	if err != nil {
		return Period{}, err
	}

	m.audit(ctx, reopened.GroupID, AuditPeriodReopened,
		fmt.Sprintf("period %d reopened for correction", reopened.Sequence),
		map[string]any{"periodId": string(reopened.ID)})
	return reopened, nil
}

// =============================================================================
// ENSURE OPEN PERIOD - Self-healing entry point
// =============================================================================

// EnsureOpenPeriod returns the group's OPEN period, repairing the invariant
// if it finds none: a successor is opened from the latest closed snapshot
// (or a first period from the group's creation date) and the repair is
// recorded in the audit log. Duplicate entries in the open period are
// merged on the way out.
func (m *LifecycleManager) EnsureOpenPeriod(ctx context.Context, groupID GroupID) (Period, error) {
	open, err := m.Store.OpenPeriods(ctx, groupID)
	if err != nil {
		return Period{}, err
	}

	var period Period
	switch len(open) {
	case 1:
		period = open[0]
	case 0:
		period, err = m.repairOpenPeriod(ctx, groupID)
		if err != nil {
			return Period{}, err
		}
	default:
		// The store's uniqueness constraint should make this unreachable;
		// serve the newest and leave the rest for manual review.
		period = open[0]
		for _, p := range open[1:] {
			if p.Sequence > period.Sequence {
				period = p
			}
		}
	}

	if err := m.dedupeEntries(ctx, period); err != nil {
		return Period{}, err
	}
	return period, nil
}

// repairOpenPeriod heals the zero-OPEN-periods state. The repair itself is
// one transaction; the audit record is written after commit.
func (m *LifecycleManager) repairOpenPeriod(ctx context.Context, groupID GroupID) (Period, error) {
	group, err := m.Store.GetGroup(ctx, groupID)
	if err != nil {
		return Period{}, err
	}

	var repaired Period
	err = m.Store.WithTx(ctx, func(s Store) error {
		latest, ok, err := latestPeriod(ctx, s, groupID)
		if err != nil {
			return err
		}

		sequence, start, standing := 1, group.CreatedAt, engine.ZeroMoney()
		var carry map[MemberID]engine.Money
		if ok {
			sequence = latest.Sequence + 1
			start = engine.NextPeriodStart(group.Schedule, latest.StartDate)
			standing = latest.StandingAtEnd
			prevEntries, err := s.EntriesOf(ctx, latest.ID)
			if err != nil {
				return err
			}
			carry = carryForwardBalances(prevEntries)
		}
		if start.IsZero() {
			start = engine.Today()
		}

		p, err := m.createPeriod(ctx, s, group, sequence, start, standing)
		if err != nil {
			return err
		}
		if err := m.seedEntries(ctx, s, group, p, carry); err != nil {
			return err
		}
		repaired = p
		return nil
	})
	if err != nil {
		return Period{}, &engine.InvariantViolation{
			GroupID: string(groupID),
			Detail:  "no open period and repair failed",
			Cause:   err,
		}
	}

	log.Printf("WARN: group %s had no open period; opened period %d", groupID, repaired.Sequence)
	m.audit(ctx, groupID, AuditOpenPeriodRepaired,
		fmt.Sprintf("no open period found; opened period %d", repaired.Sequence),
		map[string]any{"periodId": string(repaired.ID), "sequence": repaired.Sequence})
	return repaired, nil
}

// dedupeEntries merges duplicate (period, member) rows: the first row wins,
// paid amounts are summed across duplicates, the rest are deleted.
func (m *LifecycleManager) dedupeEntries(ctx context.Context, period Period) error {
	entries, err := m.Store.EntriesOf(ctx, period.ID)
	if err != nil {
		return err
	}

	byMember := make(map[MemberID][]MemberContribution)
	for _, e := range entries {
		byMember[e.MemberID] = append(byMember[e.MemberID], e)
	}

	for memberID, dupes := range byMember {
		if len(dupes) < 2 {
			continue
		}

		keeper := dupes[0]
		for _, extra := range dupes[1:] {
			keeper.ContributionPaid = keeper.ContributionPaid.Add(extra.ContributionPaid)
			keeper.InterestPaid = keeper.InterestPaid.Add(extra.InterestPaid)
			keeper.LateFinePaid = keeper.LateFinePaid.Add(extra.LateFinePaid)
			if keeper.PaidAt.IsZero() || extra.PaidAt.After(keeper.PaidAt) {
				keeper.PaidAt = extra.PaidAt
			}
			if err := m.Store.DeleteEntry(ctx, extra.ID); err != nil {
				return err
			}
		}
		keeper.Status = keeper.DeriveStatus()
		if err := m.Store.SaveEntry(ctx, keeper); err != nil {
			return err
		}

		log.Printf("WARN: merged %d duplicate entries for member %s in period %s", len(dupes), memberID, period.ID)
		m.audit(ctx, period.GroupID, AuditEntriesDeduped,
			fmt.Sprintf("merged %d duplicate entries for member %s", len(dupes), memberID),
			map[string]any{"periodId": string(period.ID), "memberId": string(memberID)})
	}
	return nil
}

// =============================================================================
// SUMMARY
// =============================================================================

// Summary derives the group's current standing snapshot.
func (m *LifecycleManager) Summary(ctx context.Context, groupID GroupID) (engine.StandingSnapshot, error) {
	group, err := m.Store.GetGroup(ctx, groupID)
	if err != nil {
		return engine.StandingSnapshot{}, err
	}
	loans, err := m.Store.LoansOf(ctx, groupID)
	if err != nil {
		return engine.StandingSnapshot{}, err
	}
	members, err := m.Store.MembersOf(ctx, groupID)
	if err != nil {
		return engine.StandingSnapshot{}, err
	}
	return m.standing.ComputeStanding(
		group.CashInHand, group.CashInBank,
		loanBalances(loans), group.ReserveFunds(), countActive(members)), nil
}

// =============================================================================
// HELPERS
// =============================================================================

func soleOpenPeriod(ctx context.Context, s Store, groupID GroupID) (Period, error) {
	open, err := s.OpenPeriods(ctx, groupID)
	if err != nil {
		return Period{}, err
	}
	if len(open) == 0 {
		return Period{}, &engine.StateError{Detail: "group has no open period", Cause: engine.ErrNoOpenPeriod}
	}
	return open[0], nil
}

func latestPeriod(ctx context.Context, s Store, groupID GroupID) (Period, bool, error) {
	periods, err := s.PeriodsOf(ctx, groupID)
	if err != nil {
		return Period{}, false, err
	}
	if len(periods) == 0 {
		return Period{}, false, nil
	}
	latest := periods[0]
	for _, p := range periods[1:] {
		if p.Sequence > latest.Sequence {
			latest = p
		}
	}
	return latest, true, nil
}

func (m *LifecycleManager) audit(ctx context.Context, groupID GroupID, action AuditAction, detail string, payload map[string]any) {
	if m.Audit == nil {
		return
	}
	entry := AuditEntry{
		ID:        uuid.NewString(),
		Timestamp: engine.Today(),
		GroupID:   groupID,
		Action:    action,
		Detail:    detail,
		Payload:   payload,
	}
	if err := m.Audit.Append(ctx, entry); err != nil {
		log.Printf("WARN: audit append failed for group %s: %v", groupID, err)
	}
}
