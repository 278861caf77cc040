/*
store.go - Persistence interfaces for the contribution domain

PURPOSE:
  Defines the interface between the domain logic and the database. Different
  implementations can use SQLite or in-memory storage; the ledger and the
  lifecycle manager only ever see these interfaces.

KEY INTERFACES:
  Store:    Group/member/period/entry/loan persistence
  TxStore:  Transactional wrapper for atomic multi-step writes
  AuditLog: Append-only record of invariant repairs and corrections

UPSERT CONTRACT:
  UpsertEntry is the atomic insert-or-return for (period, member). Concurrent
  callers for the same pair must converge on one row: SQLite backs this with
  a unique index + ON CONFLICT, the memory store holds its mutex across the
  lookup and insert. Callers never implement check-then-insert themselves.

OPEN-PERIOD CONTRACT:
  CreatePeriod must refuse a second OPEN period for the same group
  (engine.ErrPeriodAlreadyOpen). SQLite backs this with a partial unique
  index on (group_id) WHERE closed_at IS NULL.

IMPLEMENTATIONS:
  - store/sqlite: Production SQLite
  - contribution/store (memory): In-memory for tests and development

SEE ALSO:
  - ledger.go: Uses UpsertEntry and SaveEntry
  - lifecycle.go: Uses WithTx for atomic close-then-open
*/
package contribution

import (
	"context"

	"github.com/samiti/collection-engine/engine"
)

// =============================================================================
// STORE - Domain persistence
// =============================================================================

type Store interface {
	// Groups and members.
	CreateGroup(ctx context.Context, g Group) error
	GetGroup(ctx context.Context, id GroupID) (Group, error)
	Groups(ctx context.Context) ([]Group, error)
	SaveGroup(ctx context.Context, g Group) error
	CreateMember(ctx context.Context, m Member) error
	MembersOf(ctx context.Context, groupID GroupID) ([]Member, error)

	// Periods. CreatePeriod fails with engine.ErrPeriodAlreadyOpen when the
	// group already has an OPEN period.
	CreatePeriod(ctx context.Context, p Period) error
	GetPeriod(ctx context.Context, id PeriodID) (Period, error)
	SavePeriod(ctx context.Context, p Period) error
	DeletePeriod(ctx context.Context, id PeriodID) error
	OpenPeriods(ctx context.Context, groupID GroupID) ([]Period, error)
	PeriodsOf(ctx context.Context, groupID GroupID) ([]Period, error)
	PeriodBySequence(ctx context.Context, groupID GroupID, sequence int) (Period, error)

	// Contribution entries. UpsertEntry atomically inserts the candidate or
	// returns the row that already exists for (PeriodID, MemberID).
	UpsertEntry(ctx context.Context, candidate MemberContribution) (MemberContribution, error)
	GetEntry(ctx context.Context, id EntryID) (MemberContribution, error)
	SaveEntry(ctx context.Context, e MemberContribution) error
	DeleteEntry(ctx context.Context, id EntryID) error
	EntriesOf(ctx context.Context, periodID PeriodID) ([]MemberContribution, error)

	// Loans.
	CreateLoan(ctx context.Context, l Loan) error
	SaveLoan(ctx context.Context, l Loan) error
	LoansOf(ctx context.Context, groupID GroupID) ([]Loan, error)
}

// TxStore wraps Store with transaction support. ClosePeriod and ReopenPeriod
// run entirely inside WithTx so a failure at any step leaves no trace.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction. A non-nil error from fn rolls
	// everything back; nil commits.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// AUDIT LOG - Invariant repairs and corrections
// =============================================================================

type AuditAction string

const (
	AuditOpenPeriodRepaired AuditAction = "open_period_repaired"
	AuditEntriesDeduped     AuditAction = "entries_deduped"
	AuditPeriodReopened     AuditAction = "period_reopened"
)

// AuditEntry records a repair or correction: which group, what happened,
// and enough payload to reconstruct the before state.
type AuditEntry struct {
	ID        string
	Timestamp engine.Date
	GroupID   GroupID
	Action    AuditAction
	Detail    string
	Payload   map[string]any
}

// AuditLog is append-only. Repairs are recorded, never silently applied.
type AuditLog interface {
	Append(ctx context.Context, entry AuditEntry) error
	Query(ctx context.Context, groupID GroupID) ([]AuditEntry, error)
}
