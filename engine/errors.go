/*
errors.go - Centralized error types for the contribution engine

PURPOSE:
  All error kinds in one place for consistency and discoverability.
  The domain package wraps these with additional context.

ERROR CATEGORIES:
  1. Configuration errors - malformed schedules or fine rules
  2. State errors - illegal period lifecycle transitions
  3. Validation errors - bad payment input, no partial mutation occurs
  4. Invariant violations - the self-healing class (zero open periods,
     duplicate ledger entries); detected, repaired, and recorded for audit

USAGE:
  Callers classify with errors.Is:

    if errors.Is(err, engine.ErrPeriodAlreadyOpen) {
        // 409 to the client
    }

SEE ALSO:
  - schedule.go, latefine.go: Raise configuration errors
  - contribution/lifecycle.go: Raises state errors, repairs invariants
*/
package engine

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidSchedule is returned when a collection schedule is malformed
	// (unknown frequency, day of month outside 1-31, week of month outside 1-4).
	ErrInvalidSchedule = errors.New("invalid collection schedule")

	// ErrInvalidFineRule is returned when a late fine rule fails creation-time
	// validation (tier gaps, coverage not starting at day 1, non-positive amounts).
	ErrInvalidFineRule = errors.New("invalid late fine rule")

	// ErrPeriodAlreadyOpen is returned when opening a period for a group that
	// already has an open one.
	ErrPeriodAlreadyOpen = errors.New("group already has an open period")

	// ErrPeriodClosed is returned when mutating a period that is already closed.
	ErrPeriodClosed = errors.New("period is closed")

	// ErrSuccessorHasPayments is returned when reopening a period whose
	// successor already has recorded payments.
	ErrSuccessorHasPayments = errors.New("successor period has recorded payments")

	// ErrNegativeAmount is returned for payment amounts below zero.
	ErrNegativeAmount = errors.New("amount must not be negative")

	// ErrAllocationMismatch is returned when a cash allocation's bank/hand
	// split does not sum to the period's collected cash.
	ErrAllocationMismatch = errors.New("cash allocation does not sum to collected total")

	// ErrNoOpenPeriod indicates the invariant "exactly one open period per
	// group" was violated with zero open periods. The lifecycle manager
	// self-heals this; it only surfaces when repair itself fails.
	ErrNoOpenPeriod = errors.New("group has no open period")

	// ErrDuplicateEntries indicates two ledger rows exist for one
	// (period, member) pair. Self-healed by merging.
	ErrDuplicateEntries = errors.New("duplicate contribution entries detected")

	// ErrNotFound is returned when a referenced group, period, or entry
	// does not exist.
	ErrNotFound = errors.New("not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ConfigurationError describes a malformed schedule or rule. Surfaced to the
// caller, never retried.
type ConfigurationError struct {
	Field  string
	Detail string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Detail)
}

func (e *ConfigurationError) Unwrap() error { return ErrInvalidSchedule }

// RuleError describes a malformed late fine rule, including which tier (if
// any) broke the partition.
type RuleError struct {
	Detail  string
	TierIdx int // -1 when not tier-specific
}

func (e *RuleError) Error() string {
	if e.TierIdx >= 0 {
		return fmt.Sprintf("fine rule error: tier %d: %s", e.TierIdx, e.Detail)
	}
	return fmt.Sprintf("fine rule error: %s", e.Detail)
}

func (e *RuleError) Unwrap() error { return ErrInvalidFineRule }

// StateError describes an illegal lifecycle transition.
type StateError struct {
	PeriodID string
	Detail   string
	Cause    error
}

func (e *StateError) Error() string {
	return fmt.Sprintf("state error: period %s: %s", e.PeriodID, e.Detail)
}

func (e *StateError) Unwrap() error { return e.Cause }

// ValidationError describes rejected payment input. No mutation occurred.
type ValidationError struct {
	Field  string
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Detail)
}

func (e *ValidationError) Unwrap() error { return ErrNegativeAmount }

// InvariantViolation records a detected-and-repaired inconsistency. It is
// written to the audit log, not returned to callers, unless repair failed.
type InvariantViolation struct {
	GroupID string
	Detail  string
	Cause   error
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation: group %s: %s", e.GroupID, e.Detail)
}

func (e *InvariantViolation) Unwrap() error { return e.Cause }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input or
// an illegal transition the client can resolve.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidSchedule) ||
		errors.Is(err, ErrInvalidFineRule) ||
		errors.Is(err, ErrNegativeAmount) ||
		errors.Is(err, ErrAllocationMismatch)
}

// IsConflict returns true if the error reflects a lifecycle state the caller
// must resolve before retrying.
func IsConflict(err error) bool {
	return errors.Is(err, ErrPeriodAlreadyOpen) ||
		errors.Is(err, ErrPeriodClosed) ||
		errors.Is(err, ErrSuccessorHasPayments) ||
		errors.Is(err, ErrNoOpenPeriod)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
