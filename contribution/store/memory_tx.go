package store

import (
	"context"

	"github.com/samiti/collection-engine/contribution"
	"github.com/samiti/collection-engine/engine"
)

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction, simulated with a snapshot of
// every table and a full restore on error. The store lock is held for the
// duration, so a transaction also serializes against all other access.
func (tm *TxMemory) WithTx(_ context.Context, fn func(contribution.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.snapshot()
	if err := fn(&txMemoryView{parent: tm.Memory}); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	groups     map[contribution.GroupID]contribution.Group
	members    map[contribution.MemberID]contribution.Member
	periods    map[contribution.PeriodID]contribution.Period
	entries    map[contribution.EntryID]contribution.MemberContribution
	loans      map[contribution.LoanID]contribution.Loan
	entryIndex map[entryKey]contribution.EntryID
}

func (tm *TxMemory) snapshot() memorySnapshot {
	s := memorySnapshot{
		groups:     make(map[contribution.GroupID]contribution.Group, len(tm.groups)),
		members:    make(map[contribution.MemberID]contribution.Member, len(tm.members)),
		periods:    make(map[contribution.PeriodID]contribution.Period, len(tm.periods)),
		entries:    make(map[contribution.EntryID]contribution.MemberContribution, len(tm.entries)),
		loans:      make(map[contribution.LoanID]contribution.Loan, len(tm.loans)),
		entryIndex: make(map[entryKey]contribution.EntryID, len(tm.entryIndex)),
	}
	for k, v := range tm.groups {
		s.groups[k] = v
	}
	for k, v := range tm.members {
		s.members[k] = v
	}
	for k, v := range tm.periods {
		s.periods[k] = v
	}
	for k, v := range tm.entries {
		s.entries[k] = v
	}
	for k, v := range tm.loans {
		s.loans[k] = v
	}
	for k, v := range tm.entryIndex {
		s.entryIndex[k] = v
	}
	return s
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.groups = s.groups
	tm.members = s.members
	tm.periods = s.periods
	tm.entries = s.entries
	tm.loans = s.loans
	tm.entryIndex = s.entryIndex
}

// =============================================================================
// TRANSACTIONAL VIEW - Operates on the already-locked parent
// =============================================================================

type txMemoryView struct {
	parent *Memory
}

func (tv *txMemoryView) CreateGroup(_ context.Context, g contribution.Group) error {
	tv.parent.groups[g.ID] = g
	return nil
}

func (tv *txMemoryView) GetGroup(_ context.Context, id contribution.GroupID) (contribution.Group, error) {
	return tv.parent.getGroupLocked(id)
}

func (tv *txMemoryView) Groups(_ context.Context) ([]contribution.Group, error) {
	return tv.parent.groupsLocked(), nil
}

func (tv *txMemoryView) SaveGroup(_ context.Context, g contribution.Group) error {
	return tv.parent.saveGroupLocked(g)
}

func (tv *txMemoryView) CreateMember(_ context.Context, mem contribution.Member) error {
	tv.parent.members[mem.ID] = mem
	return nil
}

func (tv *txMemoryView) MembersOf(_ context.Context, groupID contribution.GroupID) ([]contribution.Member, error) {
	return tv.parent.membersOfLocked(groupID), nil
}

func (tv *txMemoryView) CreatePeriod(_ context.Context, p contribution.Period) error {
	return tv.parent.createPeriodLocked(p)
}

func (tv *txMemoryView) GetPeriod(_ context.Context, id contribution.PeriodID) (contribution.Period, error) {
	return tv.parent.getPeriodLocked(id)
}

func (tv *txMemoryView) SavePeriod(_ context.Context, p contribution.Period) error {
	return tv.parent.savePeriodLocked(p)
}

func (tv *txMemoryView) DeletePeriod(_ context.Context, id contribution.PeriodID) error {
	return tv.parent.deletePeriodLocked(id)
}

func (tv *txMemoryView) OpenPeriods(_ context.Context, groupID contribution.GroupID) ([]contribution.Period, error) {
	return tv.parent.openPeriodsLocked(groupID), nil
}

func (tv *txMemoryView) PeriodsOf(_ context.Context, groupID contribution.GroupID) ([]contribution.Period, error) {
	return tv.parent.periodsOfLocked(groupID), nil
}

func (tv *txMemoryView) PeriodBySequence(_ context.Context, groupID contribution.GroupID, sequence int) (contribution.Period, error) {
	return tv.parent.periodBySequenceLocked(groupID, sequence)
}

func (tv *txMemoryView) UpsertEntry(_ context.Context, candidate contribution.MemberContribution) (contribution.MemberContribution, error) {
	return tv.parent.upsertEntryLocked(candidate)
}

func (tv *txMemoryView) GetEntry(_ context.Context, id contribution.EntryID) (contribution.MemberContribution, error) {
	return tv.parent.getEntryLocked(id)
}

func (tv *txMemoryView) SaveEntry(_ context.Context, e contribution.MemberContribution) error {
	return tv.parent.saveEntryLocked(e)
}

func (tv *txMemoryView) DeleteEntry(_ context.Context, id contribution.EntryID) error {
	return tv.parent.deleteEntryLocked(id)
}

func (tv *txMemoryView) EntriesOf(_ context.Context, periodID contribution.PeriodID) ([]contribution.MemberContribution, error) {
	return tv.parent.entriesOfLocked(periodID), nil
}

func (tv *txMemoryView) CreateLoan(_ context.Context, l contribution.Loan) error {
	tv.parent.loans[l.ID] = l
	return nil
}

func (tv *txMemoryView) SaveLoan(_ context.Context, l contribution.Loan) error {
	if _, ok := tv.parent.loans[l.ID]; !ok {
		return engine.ErrNotFound
	}
	tv.parent.loans[l.ID] = l
	return nil
}

func (tv *txMemoryView) LoansOf(_ context.Context, groupID contribution.GroupID) ([]contribution.Loan, error) {
	return tv.parent.loansOfLocked(groupID), nil
}
