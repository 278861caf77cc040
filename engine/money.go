/*
Package engine provides the core contribution and late-fine calculation engine.

PURPOSE:
  This package contains the pure calculation logic for member-owned savings
  groups: when a contribution falls due under a group's collection schedule,
  how late fines accrue under the group's rule, and what the group's total
  financial standing is at any period boundary.

KEY CONCEPTS IN THIS FILE (money.go):
  - Money: A monetary amount backed by decimal.Decimal

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal to avoid floating-point errors
  2. Purity: Nothing in this package touches persistence or the clock
  3. Determinism: Same schedule + rule + dates always yield the same result

SEE ALSO:
  - schedule.go: Collection schedules and due-date resolution
  - latefine.go: Late fine rules and accrual calculation
  - standing.go: Group standing derivation
*/
package engine

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Monetary amount (single currency)
// =============================================================================

type Money struct {
	Value decimal.Decimal
}

func NewMoney(value float64) Money {
	return Money{Value: decimal.NewFromFloat(value)}
}

func NewMoneyFromInt(value int) Money {
	return Money{Value: decimal.NewFromInt(int64(value))}
}

func ZeroMoney() Money {
	return Money{Value: decimal.Zero}
}

func MustParseMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return ZeroMoney()
	}
	return Money{Value: d}
}

func (m Money) Add(b Money) Money           { return Money{Value: m.Value.Add(b.Value)} }
func (m Money) Sub(b Money) Money           { return Money{Value: m.Value.Sub(b.Value)} }
func (m Money) Mul(s decimal.Decimal) Money { return Money{Value: m.Value.Mul(s)} }
func (m Money) Div(s decimal.Decimal) Money { return Money{Value: m.Value.Div(s)} }
func (m Money) Neg() Money                  { return Money{Value: m.Value.Neg()} }
func (m Money) IsNegative() bool            { return m.Value.IsNegative() }
func (m Money) IsZero() bool                { return m.Value.IsZero() }
func (m Money) IsPositive() bool            { return m.Value.IsPositive() }
func (m Money) GreaterThan(b Money) bool    { return m.Value.GreaterThan(b.Value) }
func (m Money) LessThan(b Money) bool       { return m.Value.LessThan(b.Value) }
func (m Money) Equal(b Money) bool          { return m.Value.Equal(b.Value) }

// FloorZero clamps negative amounts to zero. Remaining balances never go
// below zero even when a member overpays.
func (m Money) FloorZero() Money {
	if m.IsNegative() {
		return ZeroMoney()
	}
	return m
}

// RoundPaise rounds to two decimal places, half away from zero.
// All fine and interest results are rounded with this before storage.
func (m Money) RoundPaise() Money {
	return Money{Value: m.Value.Round(2)}
}

func (m Money) String() string { return m.Value.StringFixed(2) }
