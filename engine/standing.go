/*
standing.go - Group financial standing derivation

PURPOSE:
  Derives a group's total financial position from cash, its outstanding
  loan book, and its ring-fenced reserve funds. Standing is always a
  derived output computed here, never an independently mutated field that
  can drift out of sync with period history.

FORMULA:
  totalStanding = cashInHand + cashInBank + loanAssets - reserveFunds

  loanAssets:   sum of currentBalance over ACTIVE loans. The loan book is
                an asset because members owe it back.
  reserveFunds: ring-fenced sub-balances (group social fund, loan
                insurance fund) excluded from distributable standing.

  Each member's notional share = totalStanding / activeMemberCount, for
  display only, never persisted as authoritative.

SEE ALSO:
  - contribution/lifecycle.go: Calls ComputeStanding at period close
*/
package engine

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// STANDING SNAPSHOT
// =============================================================================

// StandingSnapshot is the group's financial position at a point in time,
// typically a period boundary.
type StandingSnapshot struct {
	CashTotal      Money
	LoanAssets     Money
	ReserveFunds   Money
	TotalStanding  Money
	PerMemberShare Money
}

// LoanBalance is the minimal view of a loan the calculator needs.
type LoanBalance struct {
	CurrentBalance Money
	Active         bool
}

// ReserveFund is a ring-fenced sub-balance excluded from distributable
// standing (e.g. the group social fund or the loan insurance fund).
type ReserveFund struct {
	Name    string
	Balance Money
	Enabled bool
}

// =============================================================================
// STANDING CALCULATOR
// =============================================================================

type StandingCalculator struct{}

// ComputeStanding derives the group's standing from live cash balances,
// its loan book, and its reserve configuration.
func (StandingCalculator) ComputeStanding(cashInHand, cashInBank Money, loans []LoanBalance, reserves []ReserveFund, activeMembers int) StandingSnapshot {
	cashTotal := cashInHand.Add(cashInBank)

	loanAssets := ZeroMoney()
	for _, loan := range loans {
		if loan.Active {
			loanAssets = loanAssets.Add(loan.CurrentBalance)
		}
	}

	reserveTotal := ZeroMoney()
	for _, fund := range reserves {
		if fund.Enabled {
			reserveTotal = reserveTotal.Add(fund.Balance)
		}
	}

	total := cashTotal.Add(loanAssets).Sub(reserveTotal)

	share := ZeroMoney()
	if activeMembers > 0 {
		share = total.Div(decimal.NewFromInt(int64(activeMembers))).RoundPaise()
	}

	return StandingSnapshot{
		CashTotal:      cashTotal,
		LoanAssets:     loanAssets,
		ReserveFunds:   reserveTotal,
		TotalStanding:  total,
		PerMemberShare: share,
	}
}
