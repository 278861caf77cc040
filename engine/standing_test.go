package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/samiti/collection-engine/engine"
)

func TestComputeStanding_CashPlusLoansMinusReserves(t *testing.T) {
	// GIVEN: 2500 hand + 7500 bank, 4000 in active loans, 1000 ring-fenced
	// WHEN: Standing is derived
	// THEN: Total is 10000 + 4000 - 1000 = 13000

	var calc engine.StandingCalculator

	snapshot := calc.ComputeStanding(
		engine.NewMoneyFromInt(2500),
		engine.NewMoneyFromInt(7500),
		[]engine.LoanBalance{
			{CurrentBalance: engine.NewMoneyFromInt(3000), Active: true},
			{CurrentBalance: engine.NewMoneyFromInt(1000), Active: true},
		},
		[]engine.ReserveFund{
			{Name: "loan_insurance", Balance: engine.NewMoneyFromInt(600), Enabled: true},
			{Name: "group_social", Balance: engine.NewMoneyFromInt(400), Enabled: true},
		},
		10,
	)

	assert.Equal(t, "10000.00", snapshot.CashTotal.String())
	assert.Equal(t, "4000.00", snapshot.LoanAssets.String())
	assert.Equal(t, "1000.00", snapshot.ReserveFunds.String())
	assert.Equal(t, "13000.00", snapshot.TotalStanding.String())
	assert.Equal(t, "1300.00", snapshot.PerMemberShare.String())
}

func TestComputeStanding_IgnoresInactiveLoansAndDisabledReserves(t *testing.T) {
	var calc engine.StandingCalculator

	snapshot := calc.ComputeStanding(
		engine.NewMoneyFromInt(1000),
		engine.ZeroMoney(),
		[]engine.LoanBalance{
			{CurrentBalance: engine.NewMoneyFromInt(500), Active: true},
			// A paid-off loan contributes nothing even if a stale balance remains.
			{CurrentBalance: engine.NewMoneyFromInt(9999), Active: false},
		},
		[]engine.ReserveFund{
			{Name: "group_social", Balance: engine.NewMoneyFromInt(800), Enabled: false},
		},
		5,
	)

	assert.Equal(t, "500.00", snapshot.LoanAssets.String())
	assert.Equal(t, "0.00", snapshot.ReserveFunds.String())
	assert.Equal(t, "1500.00", snapshot.TotalStanding.String())
}

func TestComputeStanding_PerMemberShareRounds(t *testing.T) {
	var calc engine.StandingCalculator

	// 1000 across 3 members = 333.333... -> 333.33
	snapshot := calc.ComputeStanding(
		engine.NewMoneyFromInt(1000), engine.ZeroMoney(), nil, nil, 3)

	assert.Equal(t, "1000.00", snapshot.TotalStanding.String())
	assert.Equal(t, "333.33", snapshot.PerMemberShare.String())
}

func TestComputeStanding_ZeroMembersYieldsZeroShare(t *testing.T) {
	var calc engine.StandingCalculator

	snapshot := calc.ComputeStanding(
		engine.NewMoneyFromInt(1000), engine.ZeroMoney(), nil, nil, 0)

	assert.Equal(t, "1000.00", snapshot.TotalStanding.String())
	assert.True(t, snapshot.PerMemberShare.IsZero())
}

func TestComputeStanding_CanGoNegative(t *testing.T) {
	// Reserves larger than assets produce a negative standing rather than
	// clamping; the caller decides how to present it.
	var calc engine.StandingCalculator

	snapshot := calc.ComputeStanding(
		engine.NewMoneyFromInt(100), engine.ZeroMoney(), nil,
		[]engine.ReserveFund{{Name: "loan_insurance", Balance: engine.NewMoneyFromInt(300), Enabled: true}},
		4,
	)

	assert.Equal(t, "-200.00", snapshot.TotalStanding.String())
	assert.Equal(t, "-50.00", snapshot.PerMemberShare.String())
}
