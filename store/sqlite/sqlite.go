/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements contribution.Store, contribution.TxStore, and contribution.AuditLog
  using SQLite. In production the same patterns apply to PostgreSQL - only
  minor SQL dialect differences.

KEY TABLES:
  groups:    Group configuration, fine rule, and live cash/fund balances
  members:   Member records
  periods:   Collection periods with close-time aggregates
  entries:   Per-member contribution entries
  loans:     Outstanding member loans
  audit_log: Invariant repairs and corrections (append-only)

INVARIANT-BACKING INDEXES:
  idx_one_open_period:     UNIQUE (group_id) WHERE closed_at IS NULL.
                           The database itself refuses a second OPEN period.
  idx_entry_period_member: UNIQUE (period_id, member_id).
                           Backs the UpsertEntry get-or-create contract.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/samiti.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - contribution/store.go: Interface definitions
  - contribution/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/samiti/collection-engine/contribution"
	"github.com/samiti/collection-engine/engine"
)

// Store implements the contribution storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: SQLite allows a single writer, and a pooled ":memory:"
	// DSN would otherwise give every connection its own empty database.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS groups (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		frequency TEXT NOT NULL,
		day_of_month INTEGER DEFAULT 0,
		day_of_week INTEGER DEFAULT 0,
		week_of_month INTEGER DEFAULT 0,
		fine_rule_json TEXT NOT NULL,
		monthly_contribution TEXT NOT NULL,
		interest_rate TEXT NOT NULL,
		cash_in_hand TEXT NOT NULL,
		cash_in_bank TEXT NOT NULL,
		loan_insurance_enabled BOOLEAN DEFAULT FALSE,
		loan_insurance_balance TEXT NOT NULL DEFAULT '0',
		group_social_enabled BOOLEAN DEFAULT FALSE,
		group_social_balance TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS members (
		id TEXT PRIMARY KEY,
		group_id TEXT NOT NULL,
		name TEXT NOT NULL,
		active BOOLEAN DEFAULT TRUE
	);

	CREATE INDEX IF NOT EXISTS idx_members_group ON members(group_id);

	CREATE TABLE IF NOT EXISTS periods (
		id TEXT PRIMARY KEY,
		group_id TEXT NOT NULL,
		sequence INTEGER NOT NULL,
		status TEXT NOT NULL,
		start_date TEXT NOT NULL,
		due_date TEXT NOT NULL,
		closed_at TEXT,
		standing_at_start TEXT NOT NULL DEFAULT '0',
		standing_at_end TEXT NOT NULL DEFAULT '0',
		members_present INTEGER DEFAULT 0,
		total_collected TEXT NOT NULL DEFAULT '0',
		interest_collected TEXT NOT NULL DEFAULT '0',
		late_fines_collected TEXT NOT NULL DEFAULT '0',
		new_contributions TEXT NOT NULL DEFAULT '0',
		carry_forward TEXT NOT NULL DEFAULT '0',
		allocation_hand TEXT NOT NULL DEFAULT '0',
		allocation_bank TEXT NOT NULL DEFAULT '0'
	);

	CREATE INDEX IF NOT EXISTS idx_periods_group ON periods(group_id, sequence);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_periods_group_sequence
		ON periods(group_id, sequence);

	-- CRITICAL: the database enforces "exactly one OPEN period per group".
	CREATE UNIQUE INDEX IF NOT EXISTS idx_one_open_period
		ON periods(group_id) WHERE closed_at IS NULL;

	CREATE TABLE IF NOT EXISTS entries (
		id TEXT PRIMARY KEY,
		period_id TEXT NOT NULL,
		member_id TEXT NOT NULL,
		contribution_due TEXT NOT NULL,
		interest_due TEXT NOT NULL,
		late_fine_due TEXT NOT NULL,
		days_late INTEGER DEFAULT 0,
		contribution_paid TEXT NOT NULL DEFAULT '0',
		interest_paid TEXT NOT NULL DEFAULT '0',
		late_fine_paid TEXT NOT NULL DEFAULT '0',
		status TEXT NOT NULL,
		paid_at TEXT
	);

	-- CRITICAL: the database enforces "one entry per (period, member)".
	CREATE UNIQUE INDEX IF NOT EXISTS idx_entry_period_member
		ON entries(period_id, member_id);
	CREATE INDEX IF NOT EXISTS idx_entries_period ON entries(period_id);

	CREATE TABLE IF NOT EXISTS loans (
		id TEXT PRIMARY KEY,
		group_id TEXT NOT NULL,
		member_id TEXT NOT NULL,
		principal TEXT NOT NULL,
		current_balance TEXT NOT NULL,
		status TEXT NOT NULL,
		issued_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_loans_group ON loans(group_id, status);

	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		timestamp TEXT NOT NULL,
		group_id TEXT NOT NULL,
		action TEXT NOT NULL,
		detail TEXT NOT NULL,
		payload_json TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_group ON audit_log(group_id, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// dbtx is satisfied by both *sql.DB and *sql.Tx, so every query helper can
// run either standalone or inside WithTx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// GROUPS
// =============================================================================

func (s *Store) CreateGroup(ctx context.Context, g contribution.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createGroup(ctx, s.db, g)
}

func createGroup(ctx context.Context, q dbtx, g contribution.Group) error {
	ruleJSON, err := marshalFineRule(g.FineRule)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO groups
		(id, name, frequency, day_of_month, day_of_week, week_of_month,
		 fine_rule_json, monthly_contribution, interest_rate,
		 cash_in_hand, cash_in_bank,
		 loan_insurance_enabled, loan_insurance_balance,
		 group_social_enabled, group_social_balance, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = q.ExecContext(ctx, query,
		g.ID, g.Name,
		string(g.Schedule.Frequency), g.Schedule.DayOfMonth, int(g.Schedule.DayOfWeek), g.Schedule.WeekOfMonth,
		ruleJSON,
		g.MonthlyContribution.Value.String(), g.InterestRate.Value.String(),
		g.CashInHand.Value.String(), g.CashInBank.Value.String(),
		g.LoanInsuranceEnabled, g.LoanInsuranceBalance.Value.String(),
		g.GroupSocialEnabled, g.GroupSocialBalance.Value.String(),
		dateString(g.CreatedAt),
	)
	return err
}

func (s *Store) GetGroup(ctx context.Context, id contribution.GroupID) (contribution.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getGroup(ctx, s.db, id)
}

const groupColumns = `id, name, frequency, day_of_month, day_of_week, week_of_month,
	fine_rule_json, monthly_contribution, interest_rate, cash_in_hand, cash_in_bank,
	loan_insurance_enabled, loan_insurance_balance, group_social_enabled, group_social_balance, created_at`

func getGroup(ctx context.Context, q dbtx, id contribution.GroupID) (contribution.Group, error) {
	row := q.QueryRowContext(ctx, "SELECT "+groupColumns+" FROM groups WHERE id = ?", id)
	g, err := scanGroup(row)
	if err == sql.ErrNoRows {
		return contribution.Group{}, engine.ErrNotFound
	}
	return g, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGroup(row rowScanner) (contribution.Group, error) {
	var (
		g            contribution.Group
		frequency    string
		dayOfMonth   int
		dayOfWeek    int
		weekOfMonth  int
		ruleJSON     string
		monthly      string
		interestRate string
		cashHand     string
		cashBank     string
		insBalance   string
		socBalance   string
		createdAt    string
	)

	err := row.Scan(
		&g.ID, &g.Name, &frequency, &dayOfMonth, &dayOfWeek, &weekOfMonth,
		&ruleJSON, &monthly, &interestRate, &cashHand, &cashBank,
		&g.LoanInsuranceEnabled, &insBalance, &g.GroupSocialEnabled, &socBalance, &createdAt,
	)
	if err != nil {
		return g, err
	}

	weekday := time.Weekday(dayOfWeek)
	g.Schedule = engine.NewCollectionSchedule(engine.Frequency(frequency), dayOfMonth, &weekday, weekOfMonth)
	g.FineRule, err = unmarshalFineRule(ruleJSON)
	if err != nil {
		return g, err
	}
	g.MonthlyContribution = parseMoney(monthly)
	g.InterestRate = parseMoney(interestRate)
	g.CashInHand = parseMoney(cashHand)
	g.CashInBank = parseMoney(cashBank)
	g.LoanInsuranceBalance = parseMoney(insBalance)
	g.GroupSocialBalance = parseMoney(socBalance)
	g.CreatedAt = parseDate(createdAt)
	return g, nil
}

func (s *Store) Groups(ctx context.Context) ([]contribution.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return groups(ctx, s.db)
}

func groups(ctx context.Context, q dbtx) ([]contribution.Group, error) {
	rows, err := q.QueryContext(ctx, "SELECT "+groupColumns+" FROM groups ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []contribution.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *Store) SaveGroup(ctx context.Context, g contribution.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveGroup(ctx, s.db, g)
}

func saveGroup(ctx context.Context, q dbtx, g contribution.Group) error {
	ruleJSON, err := marshalFineRule(g.FineRule)
	if err != nil {
		return err
	}

	query := `
		UPDATE groups SET
			name = ?, frequency = ?, day_of_month = ?, day_of_week = ?, week_of_month = ?,
			fine_rule_json = ?, monthly_contribution = ?, interest_rate = ?,
			cash_in_hand = ?, cash_in_bank = ?,
			loan_insurance_enabled = ?, loan_insurance_balance = ?,
			group_social_enabled = ?, group_social_balance = ?
		WHERE id = ?
	`
	res, err := q.ExecContext(ctx, query,
		g.Name,
		string(g.Schedule.Frequency), g.Schedule.DayOfMonth, int(g.Schedule.DayOfWeek), g.Schedule.WeekOfMonth,
		ruleJSON,
		g.MonthlyContribution.Value.String(), g.InterestRate.Value.String(),
		g.CashInHand.Value.String(), g.CashInBank.Value.String(),
		g.LoanInsuranceEnabled, g.LoanInsuranceBalance.Value.String(),
		g.GroupSocialEnabled, g.GroupSocialBalance.Value.String(),
		g.ID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return engine.ErrNotFound
	}
	return nil
}

// =============================================================================
// MEMBERS
// =============================================================================

func (s *Store) CreateMember(ctx context.Context, m contribution.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createMember(ctx, s.db, m)
}

func createMember(ctx context.Context, q dbtx, m contribution.Member) error {
	_, err := q.ExecContext(ctx,
		"INSERT INTO members (id, group_id, name, active) VALUES (?, ?, ?, ?)",
		m.ID, m.GroupID, m.Name, m.Active,
	)
	return err
}

func (s *Store) MembersOf(ctx context.Context, groupID contribution.GroupID) ([]contribution.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return membersOf(ctx, s.db, groupID)
}

func membersOf(ctx context.Context, q dbtx, groupID contribution.GroupID) ([]contribution.Member, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT id, group_id, name, active FROM members WHERE group_id = ? ORDER BY id",
		groupID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []contribution.Member
	for rows.Next() {
		var m contribution.Member
		if err := rows.Scan(&m.ID, &m.GroupID, &m.Name, &m.Active); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// =============================================================================
// PERIODS
// =============================================================================

const periodColumns = `id, group_id, sequence, status, start_date, due_date, closed_at,
	standing_at_start, standing_at_end, members_present,
	total_collected, interest_collected, late_fines_collected, new_contributions,
	carry_forward, allocation_hand, allocation_bank`

func (s *Store) CreatePeriod(ctx context.Context, p contribution.Period) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createPeriod(ctx, s.db, p)
}

func createPeriod(ctx context.Context, q dbtx, p contribution.Period) error {
	query := `
		INSERT INTO periods (` + periodColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := q.ExecContext(ctx, query, periodArgs(p)...)
	if err != nil {
		if isOpenPeriodConflict(err) {
			return engine.ErrPeriodAlreadyOpen
		}
		return fmt.Errorf("failed to create period: %w", err)
	}
	return nil
}

// isOpenPeriodConflict detects a violation of idx_one_open_period. SQLite
// reports the columns, so the group_id-only message (without sequence)
// identifies the open-period index rather than the sequence one.
func isOpenPeriodConflict(err error) bool {
	return isUniqueConstraintError(err) &&
		strings.Contains(err.Error(), "periods.group_id") &&
		!strings.Contains(err.Error(), "periods.sequence")
}

func periodArgs(p contribution.Period) []any {
	return []any{
		p.ID, p.GroupID, p.Sequence, string(p.Status),
		dateString(p.StartDate), dateString(p.DueDate), nullDate(p.ClosedAt),
		p.StandingAtStart.Value.String(), p.StandingAtEnd.Value.String(),
		p.MembersPresent,
		p.TotalCollected.Value.String(), p.InterestCollected.Value.String(),
		p.LateFinesCollected.Value.String(), p.NewContributions.Value.String(),
		p.CarryForward.Value.String(),
		p.AllocationHand.Value.String(), p.AllocationBank.Value.String(),
	}
}

func (s *Store) GetPeriod(ctx context.Context, id contribution.PeriodID) (contribution.Period, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getPeriod(ctx, s.db, id)
}

func getPeriod(ctx context.Context, q dbtx, id contribution.PeriodID) (contribution.Period, error) {
	row := q.QueryRowContext(ctx, "SELECT "+periodColumns+" FROM periods WHERE id = ?", id)
	p, err := scanPeriod(row)
	if err == sql.ErrNoRows {
		return contribution.Period{}, engine.ErrNotFound
	}
	return p, err
}

func scanPeriod(row rowScanner) (contribution.Period, error) {
	var (
		p                 contribution.Period
		status            string
		startDate         string
		dueDate           string
		closedAt          sql.NullString
		standingStart     string
		standingEnd       string
		totalCollected    string
		interestCollected string
		finesCollected    string
		newContributions  string
		carryForward      string
		allocHand         string
		allocBank         string
	)

	err := row.Scan(
		&p.ID, &p.GroupID, &p.Sequence, &status, &startDate, &dueDate, &closedAt,
		&standingStart, &standingEnd, &p.MembersPresent,
		&totalCollected, &interestCollected, &finesCollected, &newContributions,
		&carryForward, &allocHand, &allocBank,
	)
	if err != nil {
		return p, err
	}

	p.Status = contribution.PeriodStatus(status)
	p.StartDate = parseDate(startDate)
	p.DueDate = parseDate(dueDate)
	if closedAt.Valid {
		p.ClosedAt = parseDate(closedAt.String)
	}
	p.StandingAtStart = parseMoney(standingStart)
	p.StandingAtEnd = parseMoney(standingEnd)
	p.TotalCollected = parseMoney(totalCollected)
	p.InterestCollected = parseMoney(interestCollected)
	p.LateFinesCollected = parseMoney(finesCollected)
	p.NewContributions = parseMoney(newContributions)
	p.CarryForward = parseMoney(carryForward)
	p.AllocationHand = parseMoney(allocHand)
	p.AllocationBank = parseMoney(allocBank)
	return p, nil
}

func (s *Store) SavePeriod(ctx context.Context, p contribution.Period) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return savePeriod(ctx, s.db, p)
}

func savePeriod(ctx context.Context, q dbtx, p contribution.Period) error {
	query := `
		UPDATE periods SET
			status = ?, start_date = ?, due_date = ?, closed_at = ?,
			standing_at_start = ?, standing_at_end = ?, members_present = ?,
			total_collected = ?, interest_collected = ?, late_fines_collected = ?,
			new_contributions = ?, carry_forward = ?, allocation_hand = ?, allocation_bank = ?
		WHERE id = ?
	`
	res, err := q.ExecContext(ctx, query,
		string(p.Status), dateString(p.StartDate), dateString(p.DueDate), nullDate(p.ClosedAt),
		p.StandingAtStart.Value.String(), p.StandingAtEnd.Value.String(), p.MembersPresent,
		p.TotalCollected.Value.String(), p.InterestCollected.Value.String(),
		p.LateFinesCollected.Value.String(), p.NewContributions.Value.String(),
		p.CarryForward.Value.String(),
		p.AllocationHand.Value.String(), p.AllocationBank.Value.String(),
		p.ID,
	)
	if err != nil {
		if isOpenPeriodConflict(err) {
			return engine.ErrPeriodAlreadyOpen
		}
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return engine.ErrNotFound
	}
	return nil
}

func (s *Store) DeletePeriod(ctx context.Context, id contribution.PeriodID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deletePeriod(ctx, s.db, id)
}

func deletePeriod(ctx context.Context, q dbtx, id contribution.PeriodID) error {
	res, err := q.ExecContext(ctx, "DELETE FROM periods WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return engine.ErrNotFound
	}
	return nil
}

func (s *Store) OpenPeriods(ctx context.Context, groupID contribution.GroupID) ([]contribution.Period, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return openPeriods(ctx, s.db, groupID)
}

func openPeriods(ctx context.Context, q dbtx, groupID contribution.GroupID) ([]contribution.Period, error) {
	return queryPeriods(ctx, q,
		"SELECT "+periodColumns+" FROM periods WHERE group_id = ? AND closed_at IS NULL ORDER BY sequence",
		groupID)
}

func (s *Store) PeriodsOf(ctx context.Context, groupID contribution.GroupID) ([]contribution.Period, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return periodsOf(ctx, s.db, groupID)
}

func periodsOf(ctx context.Context, q dbtx, groupID contribution.GroupID) ([]contribution.Period, error) {
	return queryPeriods(ctx, q,
		"SELECT "+periodColumns+" FROM periods WHERE group_id = ? ORDER BY sequence",
		groupID)
}

func (s *Store) PeriodBySequence(ctx context.Context, groupID contribution.GroupID, sequence int) (contribution.Period, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return periodBySequence(ctx, s.db, groupID, sequence)
}

func periodBySequence(ctx context.Context, q dbtx, groupID contribution.GroupID, sequence int) (contribution.Period, error) {
	row := q.QueryRowContext(ctx,
		"SELECT "+periodColumns+" FROM periods WHERE group_id = ? AND sequence = ?",
		groupID, sequence)
	p, err := scanPeriod(row)
	if err == sql.ErrNoRows {
		return contribution.Period{}, engine.ErrNotFound
	}
	return p, err
}

func queryPeriods(ctx context.Context, q dbtx, query string, args ...any) ([]contribution.Period, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var periods []contribution.Period
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		periods = append(periods, p)
	}
	return periods, rows.Err()
}

// =============================================================================
// CONTRIBUTION ENTRIES
// =============================================================================

const entryColumns = `id, period_id, member_id, contribution_due, interest_due, late_fine_due,
	days_late, contribution_paid, interest_paid, late_fine_paid, status, paid_at`

// UpsertEntry inserts the candidate unless a row already exists for
// (period_id, member_id), then returns whichever row won. The unique index
// makes the insert side atomic under concurrency.
func (s *Store) UpsertEntry(ctx context.Context, candidate contribution.MemberContribution) (contribution.MemberContribution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return upsertEntry(ctx, s.db, candidate)
}

func upsertEntry(ctx context.Context, q dbtx, candidate contribution.MemberContribution) (contribution.MemberContribution, error) {
	query := `
		INSERT INTO entries (` + entryColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(period_id, member_id) DO NOTHING
	`
	if _, err := q.ExecContext(ctx, query, entryArgs(candidate)...); err != nil {
		return contribution.MemberContribution{}, fmt.Errorf("failed to upsert entry: %w", err)
	}

	row := q.QueryRowContext(ctx,
		"SELECT "+entryColumns+" FROM entries WHERE period_id = ? AND member_id = ?",
		candidate.PeriodID, candidate.MemberID)
	return scanEntry(row)
}

func entryArgs(e contribution.MemberContribution) []any {
	return []any{
		e.ID, e.PeriodID, e.MemberID,
		e.ContributionDue.Value.String(), e.InterestDue.Value.String(), e.LateFineDue.Value.String(),
		e.DaysLate,
		e.ContributionPaid.Value.String(), e.InterestPaid.Value.String(), e.LateFinePaid.Value.String(),
		string(e.Status), nullDate(e.PaidAt),
	}
}

func (s *Store) GetEntry(ctx context.Context, id contribution.EntryID) (contribution.MemberContribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getEntry(ctx, s.db, id)
}

func getEntry(ctx context.Context, q dbtx, id contribution.EntryID) (contribution.MemberContribution, error) {
	row := q.QueryRowContext(ctx, "SELECT "+entryColumns+" FROM entries WHERE id = ?", id)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return contribution.MemberContribution{}, engine.ErrNotFound
	}
	return e, err
}

func scanEntry(row rowScanner) (contribution.MemberContribution, error) {
	var (
		e                contribution.MemberContribution
		contributionDue  string
		interestDue      string
		lateFineDue      string
		contributionPaid string
		interestPaid     string
		lateFinePaid     string
		status           string
		paidAt           sql.NullString
	)

	err := row.Scan(
		&e.ID, &e.PeriodID, &e.MemberID,
		&contributionDue, &interestDue, &lateFineDue,
		&e.DaysLate, &contributionPaid, &interestPaid, &lateFinePaid,
		&status, &paidAt,
	)
	if err != nil {
		return e, err
	}

	e.ContributionDue = parseMoney(contributionDue)
	e.InterestDue = parseMoney(interestDue)
	e.LateFineDue = parseMoney(lateFineDue)
	e.ContributionPaid = parseMoney(contributionPaid)
	e.InterestPaid = parseMoney(interestPaid)
	e.LateFinePaid = parseMoney(lateFinePaid)
	e.Status = contribution.ContributionStatus(status)
	if paidAt.Valid {
		e.PaidAt = parseDate(paidAt.String)
	}
	return e, nil
}

func (s *Store) SaveEntry(ctx context.Context, e contribution.MemberContribution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveEntry(ctx, s.db, e)
}

func saveEntry(ctx context.Context, q dbtx, e contribution.MemberContribution) error {
	query := `
		UPDATE entries SET
			contribution_due = ?, interest_due = ?, late_fine_due = ?, days_late = ?,
			contribution_paid = ?, interest_paid = ?, late_fine_paid = ?,
			status = ?, paid_at = ?
		WHERE id = ?
	`
	res, err := q.ExecContext(ctx, query,
		e.ContributionDue.Value.String(), e.InterestDue.Value.String(), e.LateFineDue.Value.String(),
		e.DaysLate,
		e.ContributionPaid.Value.String(), e.InterestPaid.Value.String(), e.LateFinePaid.Value.String(),
		string(e.Status), nullDate(e.PaidAt),
		e.ID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return engine.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteEntry(ctx context.Context, id contribution.EntryID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteEntry(ctx, s.db, id)
}

func deleteEntry(ctx context.Context, q dbtx, id contribution.EntryID) error {
	res, err := q.ExecContext(ctx, "DELETE FROM entries WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return engine.ErrNotFound
	}
	return nil
}

func (s *Store) EntriesOf(ctx context.Context, periodID contribution.PeriodID) ([]contribution.MemberContribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return entriesOf(ctx, s.db, periodID)
}

func entriesOf(ctx context.Context, q dbtx, periodID contribution.PeriodID) ([]contribution.MemberContribution, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT "+entryColumns+" FROM entries WHERE period_id = ? ORDER BY member_id, id",
		periodID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []contribution.MemberContribution
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// LOANS
// =============================================================================

func (s *Store) CreateLoan(ctx context.Context, l contribution.Loan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createLoan(ctx, s.db, l)
}

func createLoan(ctx context.Context, q dbtx, l contribution.Loan) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO loans (id, group_id, member_id, principal, current_balance, status, issued_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.GroupID, l.MemberID,
		l.Principal.Value.String(), l.CurrentBalance.Value.String(),
		string(l.Status), dateString(l.IssuedAt),
	)
	return err
}

func (s *Store) SaveLoan(ctx context.Context, l contribution.Loan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveLoan(ctx, s.db, l)
}

func saveLoan(ctx context.Context, q dbtx, l contribution.Loan) error {
	res, err := q.ExecContext(ctx,
		"UPDATE loans SET current_balance = ?, status = ? WHERE id = ?",
		l.CurrentBalance.Value.String(), string(l.Status), l.ID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return engine.ErrNotFound
	}
	return nil
}

func (s *Store) LoansOf(ctx context.Context, groupID contribution.GroupID) ([]contribution.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return loansOf(ctx, s.db, groupID)
}

func loansOf(ctx context.Context, q dbtx, groupID contribution.GroupID) ([]contribution.Loan, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, group_id, member_id, principal, current_balance, status, issued_at
		 FROM loans WHERE group_id = ? ORDER BY id`,
		groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var loans []contribution.Loan
	for rows.Next() {
		var (
			l         contribution.Loan
			principal string
			balance   string
			status    string
			issuedAt  string
		)
		if err := rows.Scan(&l.ID, &l.GroupID, &l.MemberID, &principal, &balance, &status, &issuedAt); err != nil {
			return nil, err
		}
		l.Principal = parseMoney(principal)
		l.CurrentBalance = parseMoney(balance)
		l.Status = contribution.LoanStatus(status)
		l.IssuedAt = parseDate(issuedAt)
		loans = append(loans, l)
	}
	return loans, rows.Err()
}

// =============================================================================
// TRANSACTIONAL STORE (contribution.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store contribution.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txStore routes every Store call through the open transaction.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) CreateGroup(ctx context.Context, g contribution.Group) error {
	return createGroup(ctx, ts.tx, g)
}

func (ts *txStore) GetGroup(ctx context.Context, id contribution.GroupID) (contribution.Group, error) {
	return getGroup(ctx, ts.tx, id)
}

func (ts *txStore) Groups(ctx context.Context) ([]contribution.Group, error) {
	return groups(ctx, ts.tx)
}

func (ts *txStore) SaveGroup(ctx context.Context, g contribution.Group) error {
	return saveGroup(ctx, ts.tx, g)
}

func (ts *txStore) CreateMember(ctx context.Context, m contribution.Member) error {
	return createMember(ctx, ts.tx, m)
}

func (ts *txStore) MembersOf(ctx context.Context, groupID contribution.GroupID) ([]contribution.Member, error) {
	return membersOf(ctx, ts.tx, groupID)
}

func (ts *txStore) CreatePeriod(ctx context.Context, p contribution.Period) error {
	return createPeriod(ctx, ts.tx, p)
}

func (ts *txStore) GetPeriod(ctx context.Context, id contribution.PeriodID) (contribution.Period, error) {
	return getPeriod(ctx, ts.tx, id)
}

func (ts *txStore) SavePeriod(ctx context.Context, p contribution.Period) error {
	return savePeriod(ctx, ts.tx, p)
}

func (ts *txStore) DeletePeriod(ctx context.Context, id contribution.PeriodID) error {
	return deletePeriod(ctx, ts.tx, id)
}

func (ts *txStore) OpenPeriods(ctx context.Context, groupID contribution.GroupID) ([]contribution.Period, error) {
	return openPeriods(ctx, ts.tx, groupID)
}

func (ts *txStore) PeriodsOf(ctx context.Context, groupID contribution.GroupID) ([]contribution.Period, error) {
	return periodsOf(ctx, ts.tx, groupID)
}

func (ts *txStore) PeriodBySequence(ctx context.Context, groupID contribution.GroupID, sequence int) (contribution.Period, error) {
	return periodBySequence(ctx, ts.tx, groupID, sequence)
}

func (ts *txStore) UpsertEntry(ctx context.Context, candidate contribution.MemberContribution) (contribution.MemberContribution, error) {
	return upsertEntry(ctx, ts.tx, candidate)
}

func (ts *txStore) GetEntry(ctx context.Context, id contribution.EntryID) (contribution.MemberContribution, error) {
	return getEntry(ctx, ts.tx, id)
}

func (ts *txStore) SaveEntry(ctx context.Context, e contribution.MemberContribution) error {
	return saveEntry(ctx, ts.tx, e)
}

func (ts *txStore) DeleteEntry(ctx context.Context, id contribution.EntryID) error {
	return deleteEntry(ctx, ts.tx, id)
}

func (ts *txStore) EntriesOf(ctx context.Context, periodID contribution.PeriodID) ([]contribution.MemberContribution, error) {
	return entriesOf(ctx, ts.tx, periodID)
}

func (ts *txStore) CreateLoan(ctx context.Context, l contribution.Loan) error {
	return createLoan(ctx, ts.tx, l)
}

func (ts *txStore) SaveLoan(ctx context.Context, l contribution.Loan) error {
	return saveLoan(ctx, ts.tx, l)
}

func (ts *txStore) LoansOf(ctx context.Context, groupID contribution.GroupID) ([]contribution.Loan, error) {
	return loansOf(ctx, ts.tx, groupID)
}

// =============================================================================
// AUDIT LOG (contribution.AuditLog interface)
// =============================================================================

func (s *Store) Append(ctx context.Context, entry contribution.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payloadJSON, _ := json.Marshal(entry.Payload)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (id, timestamp, group_id, action, detail, payload_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, dateString(entry.Timestamp), entry.GroupID,
		string(entry.Action), entry.Detail, string(payloadJSON),
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) Query(ctx context.Context, groupID contribution.GroupID) ([]contribution.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT id, timestamp, group_id, action, detail, payload_json FROM audit_log"
	var args []any
	if groupID != "" {
		query += " WHERE group_id = ?"
		args = append(args, groupID)
	}
	query += " ORDER BY created_at ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []contribution.AuditEntry
	for rows.Next() {
		var (
			e           contribution.AuditEntry
			timestamp   string
			action      string
			payloadJSON sql.NullString
		)
		if err := rows.Scan(&e.ID, &timestamp, &e.GroupID, &action, &e.Detail, &payloadJSON); err != nil {
			return nil, err
		}
		e.Timestamp = parseDate(timestamp)
		e.Action = contribution.AuditAction(action)
		if payloadJSON.Valid && payloadJSON.String != "" {
			json.Unmarshal([]byte(payloadJSON.String), &e.Payload)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"entries", "periods", "loans", "members", "groups", "audit_log"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// fineRuleDoc is the persisted form of a fine rule. Amounts are decimal
// strings, never floats.
type fineRuleDoc struct {
	RuleType        string    `json:"ruleType"`
	IsEnabled       bool      `json:"isEnabled"`
	GracePeriodDays int       `json:"gracePeriodDays,omitempty"`
	DailyAmount     string    `json:"dailyAmount,omitempty"`
	DailyPercentage string    `json:"dailyPercentage,omitempty"`
	Tiers           []tierDoc `json:"tiers,omitempty"`
}

type tierDoc struct {
	StartDay     int    `json:"startDay"`
	EndDay       int    `json:"endDay"`
	Amount       string `json:"amount"`
	IsPercentage bool   `json:"isPercentage,omitempty"`
}

func marshalFineRule(r engine.LateFineRule) (string, error) {
	doc := fineRuleDoc{
		RuleType:        string(r.RuleType),
		IsEnabled:       r.IsEnabled,
		GracePeriodDays: r.GracePeriodDays,
		DailyAmount:     r.DailyAmount.Value.String(),
		DailyPercentage: r.DailyPercentage.String(),
	}
	for _, t := range r.Tiers {
		doc.Tiers = append(doc.Tiers, tierDoc{
			StartDay:     t.StartDay,
			EndDay:       t.EndDay,
			Amount:       t.Amount.Value.String(),
			IsPercentage: t.IsPercentage,
		})
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalFineRule(s string) (engine.LateFineRule, error) {
	var doc fineRuleDoc
	if err := json.Unmarshal([]byte(s), &doc); err != nil {
		return engine.LateFineRule{}, err
	}

	rule := engine.LateFineRule{
		RuleType:        engine.FineRuleType(doc.RuleType),
		IsEnabled:       doc.IsEnabled,
		GracePeriodDays: doc.GracePeriodDays,
		DailyAmount:     parseMoney(doc.DailyAmount),
		DailyPercentage: parseDecimal(doc.DailyPercentage),
	}
	for _, t := range doc.Tiers {
		rule.Tiers = append(rule.Tiers, engine.TierRule{
			StartDay:     t.StartDay,
			EndDay:       t.EndDay,
			Amount:       parseMoney(t.Amount),
			IsPercentage: t.IsPercentage,
		})
	}
	return rule, nil
}

func dateString(d engine.Date) string {
	return d.String()
}

func nullDate(d engine.Date) sql.NullString {
	if d.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func parseDate(s string) engine.Date {
	t, _ := time.Parse("2006-01-02", s)
	return engine.DateOf(t)
}

func parseMoney(s string) engine.Money {
	return engine.Money{Value: parseDecimal(s)}
}

func parseDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
