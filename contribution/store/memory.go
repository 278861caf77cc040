// Package store provides contribution.Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/samiti/collection-engine/contribution"
	"github.com/samiti/collection-engine/engine"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu      sync.RWMutex
	groups  map[contribution.GroupID]contribution.Group
	members map[contribution.MemberID]contribution.Member
	periods map[contribution.PeriodID]contribution.Period
	entries map[contribution.EntryID]contribution.MemberContribution
	loans   map[contribution.LoanID]contribution.Loan

	// entryIndex backs the UpsertEntry uniqueness contract: one entry
	// per (period, member), resolved under the same lock as the insert.
	entryIndex map[entryKey]contribution.EntryID
}

type entryKey struct {
	PeriodID contribution.PeriodID
	MemberID contribution.MemberID
}

func NewMemory() *Memory {
	return &Memory{
		groups:     make(map[contribution.GroupID]contribution.Group),
		members:    make(map[contribution.MemberID]contribution.Member),
		periods:    make(map[contribution.PeriodID]contribution.Period),
		entries:    make(map[contribution.EntryID]contribution.MemberContribution),
		loans:      make(map[contribution.LoanID]contribution.Loan),
		entryIndex: make(map[entryKey]contribution.EntryID),
	}
}

// =============================================================================
// GROUPS AND MEMBERS
// =============================================================================

func (m *Memory) CreateGroup(_ context.Context, g contribution.Group) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groups[g.ID] = g
	return nil
}

func (m *Memory) GetGroup(_ context.Context, id contribution.GroupID) (contribution.Group, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getGroupLocked(id)
}

func (m *Memory) getGroupLocked(id contribution.GroupID) (contribution.Group, error) {
	g, ok := m.groups[id]
	if !ok {
		return contribution.Group{}, engine.ErrNotFound
	}
	return g, nil
}

func (m *Memory) Groups(_ context.Context) ([]contribution.Group, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.groupsLocked(), nil
}

func (m *Memory) groupsLocked() []contribution.Group {
	out := make([]contribution.Group, 0, len(m.groups))
	for _, g := range m.groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Memory) SaveGroup(_ context.Context, g contribution.Group) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveGroupLocked(g)
}

func (m *Memory) saveGroupLocked(g contribution.Group) error {
	if _, ok := m.groups[g.ID]; !ok {
		return engine.ErrNotFound
	}
	m.groups[g.ID] = g
	return nil
}

func (m *Memory) CreateMember(_ context.Context, mem contribution.Member) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.members[mem.ID] = mem
	return nil
}

func (m *Memory) MembersOf(_ context.Context, groupID contribution.GroupID) ([]contribution.Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.membersOfLocked(groupID), nil
}

func (m *Memory) membersOfLocked(groupID contribution.GroupID) []contribution.Member {
	var out []contribution.Member
	for _, mem := range m.members {
		if mem.GroupID == groupID {
			out = append(out, mem)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// =============================================================================
// PERIODS
// =============================================================================

func (m *Memory) CreatePeriod(_ context.Context, p contribution.Period) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createPeriodLocked(p)
}

func (m *Memory) createPeriodLocked(p contribution.Period) error {
	if p.Status == contribution.PeriodOpen {
		for _, existing := range m.periods {
			if existing.GroupID == p.GroupID && existing.IsOpen() {
				return engine.ErrPeriodAlreadyOpen
			}
		}
	}
	m.periods[p.ID] = p
	return nil
}

func (m *Memory) GetPeriod(_ context.Context, id contribution.PeriodID) (contribution.Period, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getPeriodLocked(id)
}

func (m *Memory) getPeriodLocked(id contribution.PeriodID) (contribution.Period, error) {
	p, ok := m.periods[id]
	if !ok {
		return contribution.Period{}, engine.ErrNotFound
	}
	return p, nil
}

func (m *Memory) SavePeriod(_ context.Context, p contribution.Period) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.savePeriodLocked(p)
}

func (m *Memory) savePeriodLocked(p contribution.Period) error {
	if _, ok := m.periods[p.ID]; !ok {
		return engine.ErrNotFound
	}
	m.periods[p.ID] = p
	return nil
}

func (m *Memory) DeletePeriod(_ context.Context, id contribution.PeriodID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deletePeriodLocked(id)
}

func (m *Memory) deletePeriodLocked(id contribution.PeriodID) error {
	if _, ok := m.periods[id]; !ok {
		return engine.ErrNotFound
	}
	delete(m.periods, id)
	return nil
}

func (m *Memory) OpenPeriods(_ context.Context, groupID contribution.GroupID) ([]contribution.Period, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.openPeriodsLocked(groupID), nil
}

func (m *Memory) openPeriodsLocked(groupID contribution.GroupID) []contribution.Period {
	var out []contribution.Period
	for _, p := range m.periods {
		if p.GroupID == groupID && p.IsOpen() {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out
}

func (m *Memory) PeriodsOf(_ context.Context, groupID contribution.GroupID) ([]contribution.Period, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.periodsOfLocked(groupID), nil
}

func (m *Memory) periodsOfLocked(groupID contribution.GroupID) []contribution.Period {
	var out []contribution.Period
	for _, p := range m.periods {
		if p.GroupID == groupID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out
}

func (m *Memory) PeriodBySequence(_ context.Context, groupID contribution.GroupID, sequence int) (contribution.Period, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.periodBySequenceLocked(groupID, sequence)
}

func (m *Memory) periodBySequenceLocked(groupID contribution.GroupID, sequence int) (contribution.Period, error) {
	for _, p := range m.periods {
		if p.GroupID == groupID && p.Sequence == sequence {
			return p, nil
		}
	}
	return contribution.Period{}, engine.ErrNotFound
}

// =============================================================================
// CONTRIBUTION ENTRIES
// =============================================================================

// UpsertEntry resolves the uniqueness check and the insert under one lock,
// so concurrent callers for the same (period, member) converge on one row.
func (m *Memory) UpsertEntry(_ context.Context, candidate contribution.MemberContribution) (contribution.MemberContribution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upsertEntryLocked(candidate)
}

func (m *Memory) upsertEntryLocked(candidate contribution.MemberContribution) (contribution.MemberContribution, error) {
	k := entryKey{PeriodID: candidate.PeriodID, MemberID: candidate.MemberID}
	if id, ok := m.entryIndex[k]; ok {
		return m.entries[id], nil
	}
	m.entries[candidate.ID] = candidate
	m.entryIndex[k] = candidate.ID
	return candidate, nil
}

func (m *Memory) GetEntry(_ context.Context, id contribution.EntryID) (contribution.MemberContribution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getEntryLocked(id)
}

func (m *Memory) getEntryLocked(id contribution.EntryID) (contribution.MemberContribution, error) {
	e, ok := m.entries[id]
	if !ok {
		return contribution.MemberContribution{}, engine.ErrNotFound
	}
	return e, nil
}

func (m *Memory) SaveEntry(_ context.Context, e contribution.MemberContribution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveEntryLocked(e)
}

func (m *Memory) saveEntryLocked(e contribution.MemberContribution) error {
	m.entries[e.ID] = e
	k := entryKey{PeriodID: e.PeriodID, MemberID: e.MemberID}
	if _, ok := m.entryIndex[k]; !ok {
		m.entryIndex[k] = e.ID
	}
	return nil
}

func (m *Memory) DeleteEntry(_ context.Context, id contribution.EntryID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteEntryLocked(id)
}

func (m *Memory) deleteEntryLocked(id contribution.EntryID) error {
	e, ok := m.entries[id]
	if !ok {
		return engine.ErrNotFound
	}
	delete(m.entries, id)
	k := entryKey{PeriodID: e.PeriodID, MemberID: e.MemberID}
	if m.entryIndex[k] == id {
		delete(m.entryIndex, k)
	}
	return nil
}

func (m *Memory) EntriesOf(_ context.Context, periodID contribution.PeriodID) ([]contribution.MemberContribution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entriesOfLocked(periodID), nil
}

func (m *Memory) entriesOfLocked(periodID contribution.PeriodID) []contribution.MemberContribution {
	var out []contribution.MemberContribution
	for _, e := range m.entries {
		if e.PeriodID == periodID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MemberID != out[j].MemberID {
			return out[i].MemberID < out[j].MemberID
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// =============================================================================
// LOANS
// =============================================================================

func (m *Memory) CreateLoan(_ context.Context, l contribution.Loan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loans[l.ID] = l
	return nil
}

func (m *Memory) SaveLoan(_ context.Context, l contribution.Loan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.loans[l.ID]; !ok {
		return engine.ErrNotFound
	}
	m.loans[l.ID] = l
	return nil
}

func (m *Memory) LoansOf(_ context.Context, groupID contribution.GroupID) ([]contribution.Loan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loansOfLocked(groupID), nil
}

func (m *Memory) loansOfLocked(groupID contribution.GroupID) []contribution.Loan {
	var out []contribution.Loan
	for _, l := range m.loans {
		if l.GroupID == groupID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
