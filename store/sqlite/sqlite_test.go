package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samiti/collection-engine/contribution"
	"github.com/samiti/collection-engine/engine"
)

// =============================================================================
// TEST FIXTURES
// =============================================================================

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func sampleGroup() contribution.Group {
	return contribution.Group{
		ID:   contribution.GroupID(uuid.NewString()),
		Name: "Ekta Samiti",
		Schedule: engine.CollectionSchedule{
			Frequency:  engine.FrequencyMonthly,
			DayOfMonth: 5,
		},
		FineRule: engine.LateFineRule{
			RuleType:        engine.FineTierBased,
			IsEnabled:       true,
			GracePeriodDays: 1,
			Tiers: []engine.TierRule{
				{StartDay: 1, EndDay: 3, Amount: engine.NewMoneyFromInt(15)},
				{StartDay: 4, EndDay: engine.UnboundedTierDay, Amount: engine.NewMoneyFromInt(25)},
			},
		},
		MonthlyContribution: engine.NewMoneyFromInt(500),
		InterestRate:        engine.NewMoneyFromInt(2),
		CashInHand:          engine.NewMoneyFromInt(300),
		CashInBank:          engine.NewMoneyFromInt(700),
		GroupSocialEnabled:  true,
		GroupSocialBalance:  engine.NewMoneyFromInt(100),
		CreatedAt:           engine.NewDate(2025, time.June, 1),
	}
}

func samplePeriod(groupID contribution.GroupID, sequence int) contribution.Period {
	return contribution.Period{
		ID:        contribution.PeriodID(uuid.NewString()),
		GroupID:   groupID,
		Sequence:  sequence,
		Status:    contribution.PeriodOpen,
		StartDate: engine.NewDate(2025, time.June, 1),
		DueDate:   engine.NewDate(2025, time.June, 5),
	}
}

func sampleEntry(periodID contribution.PeriodID, memberID contribution.MemberID) contribution.MemberContribution {
	e := contribution.MemberContribution{
		ID:              contribution.EntryID(uuid.NewString()),
		PeriodID:        periodID,
		MemberID:        memberID,
		ContributionDue: engine.NewMoneyFromInt(500),
		InterestDue:     engine.ZeroMoney(),
		LateFineDue:     engine.ZeroMoney(),
	}
	e.Status = e.DeriveStatus()
	return e
}

// =============================================================================
// GROUP ROUND-TRIP
// =============================================================================

func TestGroupRoundTrip_PreservesFineRuleAndBalances(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	group := sampleGroup()

	require.NoError(t, st.CreateGroup(ctx, group))

	loaded, err := st.GetGroup(ctx, group.ID)
	require.NoError(t, err)

	assert.Equal(t, group.Name, loaded.Name)
	assert.Equal(t, engine.FrequencyMonthly, loaded.Schedule.Frequency)
	assert.Equal(t, 5, loaded.Schedule.DayOfMonth)
	assert.Equal(t, "500.00", loaded.MonthlyContribution.String())
	assert.Equal(t, "300.00", loaded.CashInHand.String())
	assert.Equal(t, "700.00", loaded.CashInBank.String())
	assert.True(t, loaded.GroupSocialEnabled)
	assert.Equal(t, "100.00", loaded.GroupSocialBalance.String())
	assert.Equal(t, "2025-06-01", loaded.CreatedAt.String())

	// The fine rule survives its JSON column intact.
	assert.Equal(t, engine.FineTierBased, loaded.FineRule.RuleType)
	assert.True(t, loaded.FineRule.IsEnabled)
	assert.Equal(t, 1, loaded.FineRule.GracePeriodDays)
	require.Len(t, loaded.FineRule.Tiers, 2)
	assert.Equal(t, "15.00", loaded.FineRule.Tiers[0].Amount.String())
	assert.Equal(t, engine.UnboundedTierDay, loaded.FineRule.Tiers[1].EndDay)
	require.NoError(t, loaded.FineRule.Validate())
}

func TestGetGroup_MissingIsNotFound(t *testing.T) {
	st := newTestStore(t)
	_, err := st.GetGroup(context.Background(), "nope")
	assert.ErrorIs(t, err, engine.ErrNotFound)
}

func TestSaveGroup_MissingIsNotFound(t *testing.T) {
	st := newTestStore(t)
	err := st.SaveGroup(context.Background(), sampleGroup())
	assert.ErrorIs(t, err, engine.ErrNotFound)
}

// =============================================================================
// ONE-OPEN-PERIOD INDEX
// =============================================================================

func TestCreatePeriod_DatabaseRefusesSecondOpenPeriod(t *testing.T) {
	// GIVEN: A group with an OPEN period
	// WHEN: A second OPEN period is inserted for the same group
	// THEN: The partial unique index rejects it as ErrPeriodAlreadyOpen

	ctx := context.Background()
	st := newTestStore(t)
	group := sampleGroup()
	require.NoError(t, st.CreateGroup(ctx, group))

	first := samplePeriod(group.ID, 1)
	require.NoError(t, st.CreatePeriod(ctx, first))

	second := samplePeriod(group.ID, 2)
	err := st.CreatePeriod(ctx, second)
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrPeriodAlreadyOpen)

	// Closing the first makes room for a new OPEN period.
	first.Status = contribution.PeriodClosed
	first.ClosedAt = engine.NewDate(2025, time.June, 5)
	require.NoError(t, st.SavePeriod(ctx, first))
	require.NoError(t, st.CreatePeriod(ctx, second))

	open, err := st.OpenPeriods(ctx, group.ID)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, second.ID, open[0].ID)
}

func TestCreatePeriod_OpenPeriodsInDifferentGroupsCoexist(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	a, b := sampleGroup(), sampleGroup()
	require.NoError(t, st.CreateGroup(ctx, a))
	require.NoError(t, st.CreateGroup(ctx, b))

	require.NoError(t, st.CreatePeriod(ctx, samplePeriod(a.ID, 1)))
	require.NoError(t, st.CreatePeriod(ctx, samplePeriod(b.ID, 1)))
}

func TestPeriodRoundTrip_CloseFieldsAndNullClosedAt(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	group := sampleGroup()
	require.NoError(t, st.CreateGroup(ctx, group))

	p := samplePeriod(group.ID, 1)
	require.NoError(t, st.CreatePeriod(ctx, p))

	loaded, err := st.GetPeriod(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, loaded.ClosedAt.IsZero(), "open period has no closedAt")
	assert.True(t, loaded.IsOpen())

	p.Status = contribution.PeriodClosed
	p.ClosedAt = engine.NewDate(2025, time.June, 5)
	p.MembersPresent = 8
	p.TotalCollected = engine.NewMoneyFromInt(4000)
	p.InterestCollected = engine.NewMoneyFromInt(200)
	p.LateFinesCollected = engine.NewMoneyFromInt(90)
	p.NewContributions = engine.NewMoneyFromInt(3710)
	p.CarryForward = engine.NewMoneyFromInt(310)
	p.AllocationHand = engine.NewMoneyFromInt(1200)
	p.AllocationBank = engine.NewMoneyFromInt(2800)
	p.StandingAtEnd = engine.NewMoneyFromInt(4000)
	require.NoError(t, st.SavePeriod(ctx, p))

	loaded, err = st.GetPeriod(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "2025-06-05", loaded.ClosedAt.String())
	assert.Equal(t, 8, loaded.MembersPresent)
	assert.Equal(t, "4000.00", loaded.TotalCollected.String())
	assert.Equal(t, "310.00", loaded.CarryForward.String())
	assert.Equal(t, "1200.00", loaded.AllocationHand.String())
	assert.Equal(t, "2800.00", loaded.AllocationBank.String())
}

// =============================================================================
// ENTRY UPSERT
// =============================================================================

func TestUpsertEntry_SecondCandidateLosesToExistingRow(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	group := sampleGroup()
	require.NoError(t, st.CreateGroup(ctx, group))
	period := samplePeriod(group.ID, 1)
	require.NoError(t, st.CreatePeriod(ctx, period))

	memberID := contribution.MemberID(uuid.NewString())

	first := sampleEntry(period.ID, memberID)
	won, err := st.UpsertEntry(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, first.ID, won.ID)

	// A rival candidate for the same (period, member) is discarded.
	rival := sampleEntry(period.ID, memberID)
	rival.ContributionDue = engine.NewMoneyFromInt(999)
	won, err = st.UpsertEntry(ctx, rival)
	require.NoError(t, err)
	assert.Equal(t, first.ID, won.ID)
	assert.Equal(t, "500.00", won.ContributionDue.String())

	entries, err := st.EntriesOf(ctx, period.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSaveEntry_UpdatesPaymentsAndStatus(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	group := sampleGroup()
	require.NoError(t, st.CreateGroup(ctx, group))
	period := samplePeriod(group.ID, 1)
	require.NoError(t, st.CreatePeriod(ctx, period))

	entry := sampleEntry(period.ID, contribution.MemberID(uuid.NewString()))
	_, err := st.UpsertEntry(ctx, entry)
	require.NoError(t, err)

	entry.ContributionPaid = engine.NewMoneyFromInt(500)
	entry.PaidAt = engine.NewDate(2025, time.June, 4)
	entry.Status = entry.DeriveStatus()
	require.NoError(t, st.SaveEntry(ctx, entry))

	loaded, err := st.GetEntry(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, "500.00", loaded.ContributionPaid.String())
	assert.Equal(t, "2025-06-04", loaded.PaidAt.String())
	assert.Equal(t, contribution.ContributionPaid, loaded.Status)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestWithTx_ErrorRollsBackEveryWrite(t *testing.T) {
	// GIVEN: A transaction that writes a period and updates the group
	// WHEN: The function returns an error
	// THEN: Neither write survives

	ctx := context.Background()
	st := newTestStore(t)
	group := sampleGroup()
	require.NoError(t, st.CreateGroup(ctx, group))

	period := samplePeriod(group.ID, 1)
	boom := errors.New("boom")

	err := st.WithTx(ctx, func(s contribution.Store) error {
		if err := s.CreatePeriod(ctx, period); err != nil {
			return err
		}
		group.CashInHand = engine.NewMoneyFromInt(9999)
		if err := s.SaveGroup(ctx, group); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = st.GetPeriod(ctx, period.ID)
	assert.ErrorIs(t, err, engine.ErrNotFound)

	loaded, err := st.GetGroup(ctx, group.ID)
	require.NoError(t, err)
	assert.Equal(t, "300.00", loaded.CashInHand.String())
}

func TestWithTx_CommitMakesWritesVisible(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	group := sampleGroup()
	require.NoError(t, st.CreateGroup(ctx, group))

	period := samplePeriod(group.ID, 1)
	err := st.WithTx(ctx, func(s contribution.Store) error {
		return s.CreatePeriod(ctx, period)
	})
	require.NoError(t, err)

	loaded, err := st.GetPeriod(ctx, period.ID)
	require.NoError(t, err)
	assert.Equal(t, period.ID, loaded.ID)
}

// =============================================================================
// LIFECYCLE INTEGRATION
// =============================================================================

func TestLifecycleAgainstSQLite_CloseCarriesStandingForward(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	group := sampleGroup()
	group.CashInHand = engine.ZeroMoney()
	group.CashInBank = engine.ZeroMoney()
	group.GroupSocialEnabled = false
	group.GroupSocialBalance = engine.ZeroMoney()
	require.NoError(t, st.CreateGroup(ctx, group))

	member := contribution.Member{
		ID:      contribution.MemberID(uuid.NewString()),
		GroupID: group.ID,
		Name:    "Sunita",
		Active:  true,
	}
	require.NoError(t, st.CreateMember(ctx, member))

	manager := contribution.NewLifecycleManager(st, st)
	ledger := contribution.NewLedger(st)

	opened, err := manager.OpenPeriod(ctx, group.ID, engine.NewDate(2025, time.June, 1))
	require.NoError(t, err)

	entries, err := st.EntriesOf(ctx, opened.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	_, err = ledger.RecordPayment(ctx, entries[0].ID, contribution.PaymentInput{
		Contribution: engine.NewMoneyFromInt(500),
	}, engine.NewDate(2025, time.June, 5))
	require.NoError(t, err)

	result, err := manager.ClosePeriod(ctx, group.ID, contribution.CloseInput{
		MembersPresent: 1,
		ClosedAt:       engine.NewDate(2025, time.June, 5),
	})
	require.NoError(t, err)

	assert.Equal(t, "500.00", result.Closed.TotalCollected.String())
	assert.Equal(t, "500.00", result.Closed.StandingAtEnd.String())
	assert.Equal(t, 2, result.Successor.Sequence)
	assert.Equal(t, result.Closed.StandingAtEnd.String(), result.Successor.StandingAtStart.String())

	open, err := st.OpenPeriods(ctx, group.ID)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, result.Successor.ID, open[0].ID)
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func TestAuditLog_AppendAndQueryByGroup(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	groupID := contribution.GroupID(uuid.NewString())
	entry := contribution.AuditEntry{
		ID:        uuid.NewString(),
		Timestamp: engine.NewDate(2025, time.June, 5),
		GroupID:   groupID,
		Action:    contribution.AuditOpenPeriodRepaired,
		Detail:    "no open period found; opened period 3",
		Payload:   map[string]any{"sequence": float64(3)},
	}
	require.NoError(t, st.Append(ctx, entry))
	require.NoError(t, st.Append(ctx, contribution.AuditEntry{
		ID:        uuid.NewString(),
		Timestamp: engine.NewDate(2025, time.June, 6),
		GroupID:   contribution.GroupID(uuid.NewString()),
		Action:    contribution.AuditPeriodReopened,
		Detail:    "period 1 reopened for correction",
	}))

	records, err := st.Query(ctx, groupID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, contribution.AuditOpenPeriodRepaired, records[0].Action)
	assert.Equal(t, "2025-06-05", records[0].Timestamp.String())
	assert.Equal(t, float64(3), records[0].Payload["sequence"])

	all, err := st.Query(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
