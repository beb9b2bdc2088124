package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/fundledger/pkg/models"
	sqlite3 "github.com/mattn/go-sqlite3"
)

var _ Storage = (*SQLiteStore)(nil)

// SQLiteStore manages the database connection and operations for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLiteStore and initializes the database.
// Foreign keys, WAL, a busy timeout and immediate write locks are requested
// through the DSN so they hold on every pooled connection.
func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", withDefaultParams(dataSourceName))
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}
	return s, nil
}

func withDefaultParams(dsn string) string {
	params := []string{"_foreign_keys=on", "_journal_mode=WAL", "_busy_timeout=5000", "_txlock=immediate"}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	for _, p := range params {
		key := p[:strings.Index(p, "=")+1]
		if strings.Contains(dsn, key) {
			continue
		}
		dsn += sep + p
		sep = "&"
	}
	return dsn
}

// initSchema creates the database tables if they don't already exist.
// We use TEXT for decimal fields in SQLite to ensure no precision is lost.
func (s *SQLiteStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS loans (
		id TEXT PRIMARY KEY,
		customer_key TEXT NOT NULL,
		principal TEXT NOT NULL,
		interest_amount TEXT NOT NULL,
		document_charge TEXT NOT NULL DEFAULT '0',
		duration INTEGER NOT NULL,
		disbursement_date DATETIME NOT NULL,
		cadence TEXT NOT NULL,
		status TEXT NOT NULL,
		current_period INTEGER NOT NULL DEFAULT 0,
		installment_amount TEXT NOT NULL,
		remaining_balance TEXT NOT NULL,
		overdue_amount TEXT NOT NULL DEFAULT '0',
		missed_payments INTEGER NOT NULL DEFAULT 0,
		version INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS schedule_entries (
		id TEXT PRIMARY KEY,
		loan_id TEXT NOT NULL,
		period_index INTEGER NOT NULL,
		due_date DATETIME NOT NULL,
		amount_due TEXT NOT NULL,
		status TEXT NOT NULL,
		repayment_id TEXT,
		paid_date DATETIME,
		UNIQUE(loan_id, period_index),
		FOREIGN KEY(loan_id) REFERENCES loans(id)
	);
	CREATE TABLE IF NOT EXISTS repayments (
		id TEXT PRIMARY KEY,
		loan_id TEXT NOT NULL,
		schedule_entry_id TEXT,
		amount TEXT NOT NULL,
		principal_applied TEXT NOT NULL,
		paid_date DATETIME NOT NULL,
		kind TEXT NOT NULL,
		collected_by TEXT NOT NULL,
		note TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		FOREIGN KEY(loan_id) REFERENCES loans(id)
	);
	CREATE TABLE IF NOT EXISTS chit_funds (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		total_amount TEXT NOT NULL,
		contribution_amount TEXT NOT NULL,
		duration INTEGER NOT NULL,
		member_count INTEGER NOT NULL,
		type TEXT NOT NULL,
		start_date DATETIME NOT NULL,
		current_month INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS contributions (
		id TEXT PRIMARY KEY,
		chit_fund_id TEXT NOT NULL,
		member_key TEXT NOT NULL,
		month INTEGER NOT NULL,
		amount TEXT NOT NULL,
		paid_date DATETIME NOT NULL,
		collected_by TEXT NOT NULL,
		FOREIGN KEY(chit_fund_id) REFERENCES chit_funds(id)
	);
	CREATE TABLE IF NOT EXISTS auctions (
		id TEXT PRIMARY KEY,
		chit_fund_id TEXT NOT NULL,
		month INTEGER NOT NULL,
		winner_key TEXT NOT NULL,
		auction_amount TEXT NOT NULL,
		auction_date DATETIME NOT NULL,
		UNIQUE(chit_fund_id, month),
		FOREIGN KEY(chit_fund_id) REFERENCES chit_funds(id)
	);
	CREATE INDEX IF NOT EXISTS idx_repayments_loan ON repayments(loan_id);
	CREATE INDEX IF NOT EXISTS idx_contributions_fund ON contributions(chit_fund_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func mustAffect(result sql.Result, want error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return want
	}
	return nil
}

func nullUUID(id *uuid.UUID) sql.NullString {
	if id == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: id.String(), Valid: true}
}

func parseNullUUID(ns sql.NullString) (*uuid.UUID, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	id, err := uuid.Parse(ns.String)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// ---------------------------------------------------------------- loans

const loanColumns = `id, customer_key, principal, interest_amount, document_charge, duration, disbursement_date, cadence, status, current_period, installment_amount, remaining_balance, overdue_amount, missed_payments, version, created_at, updated_at`

func scanLoan(row rowScanner) (*models.Loan, error) {
	var loan models.Loan
	var idStr string
	err := row.Scan(&idStr, &loan.CustomerKey, &loan.Principal, &loan.InterestAmount, &loan.DocumentCharge, &loan.Duration,
		&loan.DisbursementDate, &loan.Cadence, &loan.Status, &loan.CurrentPeriod, &loan.InstallmentAmount,
		&loan.RemainingBalance, &loan.OverdueAmount, &loan.MissedPayments, &loan.Version, &loan.CreatedAt, &loan.UpdatedAt)
	if err != nil {
		return nil, err
	}
	loan.ID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("invalid loan id %q: %w", idStr, err)
	}
	return &loan, nil
}

// CreateLoan inserts a new loan and its schedule in one transaction.
func (s *SQLiteStore) CreateLoan(loan *models.Loan, schedule []*models.ScheduleEntry) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO loans (`+loanColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		loan.ID.String(), loan.CustomerKey, loan.Principal, loan.InterestAmount, loan.DocumentCharge, loan.Duration,
		loan.DisbursementDate, loan.Cadence, loan.Status, loan.CurrentPeriod, loan.InstallmentAmount,
		loan.RemainingBalance, loan.OverdueAmount, loan.MissedPayments, loan.Version, loan.CreatedAt, loan.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create loan: %w", err)
	}

	if err := insertEntries(tx, schedule); err != nil {
		return err
	}
	return tx.Commit()
}

// GetLoan retrieves a loan by its ID.
func (s *SQLiteStore) GetLoan(id uuid.UUID) (*models.Loan, error) {
	row := s.db.QueryRow(`SELECT `+loanColumns+` FROM loans WHERE id = ?`, id.String())
	loan, err := scanLoan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("loan %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get loan: %w", err)
	}
	return loan, nil
}

// UpdateLoan updates an existing loan in the database.
func (s *SQLiteStore) UpdateLoan(loan *models.Loan) error {
	if err := updateLoan(s.db, loan); err != nil {
		return err
	}
	loan.Version++
	return nil
}

func updateLoan(ex execer, loan *models.Loan) error {
	result, err := ex.Exec(
		`UPDATE loans SET customer_key = ?, principal = ?, interest_amount = ?, document_charge = ?, duration = ?,
		disbursement_date = ?, cadence = ?, status = ?, current_period = ?, installment_amount = ?,
		remaining_balance = ?, overdue_amount = ?, missed_payments = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		loan.CustomerKey, loan.Principal, loan.InterestAmount, loan.DocumentCharge, loan.Duration,
		loan.DisbursementDate, loan.Cadence, loan.Status, loan.CurrentPeriod, loan.InstallmentAmount,
		loan.RemainingBalance, loan.OverdueAmount, loan.MissedPayments, loan.UpdatedAt, loan.ID.String(), loan.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update loan: %w", err)
	}
	return mustAffect(result, fmt.Errorf("loan %s version %d: %w", loan.ID, loan.Version, ErrStaleLoan))
}

// DeleteLoan removes a loan, its schedule and its repayments within a transaction.
func (s *SQLiteStore) DeleteLoan(id uuid.UUID) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`DELETE FROM repayments WHERE loan_id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete associated repayments: %w", err)
	}
	_, err = tx.Exec(`DELETE FROM schedule_entries WHERE loan_id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete associated schedule: %w", err)
	}

	result, err := tx.Exec(`DELETE FROM loans WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete loan: %w", err)
	}
	if err := mustAffect(result, fmt.Errorf("loan %s: %w", id, ErrNotFound)); err != nil {
		return err
	}

	return tx.Commit()
}

// GetAllLoans retrieves all loans.
func (s *SQLiteStore) GetAllLoans() ([]*models.Loan, error) {
	rows, err := s.db.Query(`SELECT ` + loanColumns + ` FROM loans ORDER BY disbursement_date ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all loans: %w", err)
	}
	defer rows.Close()

	return s.scanLoans(rows)
}

// GetAllOpenLoans retrieves loans that are not completed.
func (s *SQLiteStore) GetAllOpenLoans() ([]*models.Loan, error) {
	rows, err := s.db.Query(`SELECT `+loanColumns+` FROM loans WHERE status != ? ORDER BY disbursement_date ASC`, models.LoanStatusCompleted)
	if err != nil {
		return nil, fmt.Errorf("failed to get open loans: %w", err)
	}
	defer rows.Close()

	return s.scanLoans(rows)
}

func (s *SQLiteStore) scanLoans(rows *sql.Rows) ([]*models.Loan, error) {
	var loans []*models.Loan
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan loan row: %w", err)
		}
		loans = append(loans, loan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return loans, nil
}

// ------------------------------------------------------------- schedule

const entryColumns = `id, loan_id, period_index, due_date, amount_due, status, repayment_id, paid_date`

func scanEntry(row rowScanner) (*models.ScheduleEntry, error) {
	var e models.ScheduleEntry
	var idStr, loanIDStr string
	var repaymentID sql.NullString
	var paidDate sql.NullTime
	if err := row.Scan(&idStr, &loanIDStr, &e.PeriodIndex, &e.DueDate, &e.AmountDue, &e.Status, &repaymentID, &paidDate); err != nil {
		return nil, err
	}
	var err error
	if e.ID, err = uuid.Parse(idStr); err != nil {
		return nil, fmt.Errorf("invalid schedule entry id %q: %w", idStr, err)
	}
	if e.LoanID, err = uuid.Parse(loanIDStr); err != nil {
		return nil, fmt.Errorf("invalid loan id %q: %w", loanIDStr, err)
	}
	if e.RepaymentID, err = parseNullUUID(repaymentID); err != nil {
		return nil, fmt.Errorf("invalid repayment id %q: %w", repaymentID.String, err)
	}
	if paidDate.Valid {
		e.PaidDate = &paidDate.Time
	}
	return &e, nil
}

func insertEntries(ex execer, entries []*models.ScheduleEntry) error {
	for _, e := range entries {
		_, err := ex.Exec(
			`INSERT INTO schedule_entries (`+entryColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID.String(), e.LoanID.String(), e.PeriodIndex, e.DueDate, e.AmountDue, e.Status, nullUUID(e.RepaymentID), nullTime(e.PaidDate),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("loan %s period %d: %w", e.LoanID, e.PeriodIndex, ErrDuplicatePeriod)
			}
			return fmt.Errorf("failed to create schedule entry: %w", err)
		}
	}
	return nil
}

// GetScheduleForLoan retrieves the schedule of a loan ordered by period.
func (s *SQLiteStore) GetScheduleForLoan(loanID uuid.UUID) ([]*models.ScheduleEntry, error) {
	rows, err := s.db.Query(`SELECT `+entryColumns+` FROM schedule_entries WHERE loan_id = ? ORDER BY period_index ASC`, loanID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule for loan %s: %w", loanID, err)
	}
	defer rows.Close()

	var entries []*models.ScheduleEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schedule row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration for loan schedule: %w", err)
	}
	return entries, nil
}

// AddScheduleEntries inserts entries in one transaction; an existing period fails the whole batch.
func (s *SQLiteStore) AddScheduleEntries(entries []*models.ScheduleEntry) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertEntries(tx, entries); err != nil {
		return err
	}
	return tx.Commit()
}

func updateStatuses(ex execer, schedule []*models.ScheduleEntry, skip uuid.UUID) error {
	for _, e := range schedule {
		if e.ID == skip {
			continue
		}
		_, err := ex.Exec(`UPDATE schedule_entries SET status = ? WHERE id = ? AND loan_id = ?`, e.Status, e.ID.String(), e.LoanID.String())
		if err != nil {
			return fmt.Errorf("failed to update schedule entry %s: %w", e.ID, err)
		}
	}
	return nil
}

// SaveLoanState stores recomputed entry statuses and loan fields atomically.
func (s *SQLiteStore) SaveLoanState(loan *models.Loan, schedule []*models.ScheduleEntry) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := updateStatuses(tx, schedule, uuid.Nil); err != nil {
		return err
	}
	if err := updateLoan(tx, loan); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit loan state: %w", err)
	}
	loan.Version++
	return nil
}

// ----------------------------------------------------------- repayments

const repaymentColumns = `id, loan_id, schedule_entry_id, amount, principal_applied, paid_date, kind, collected_by, note, created_at`

func scanRepayment(row rowScanner) (*models.Repayment, error) {
	var r models.Repayment
	var idStr, loanIDStr string
	var entryID sql.NullString
	if err := row.Scan(&idStr, &loanIDStr, &entryID, &r.Amount, &r.PrincipalApplied, &r.PaidDate, &r.Kind, &r.CollectedBy, &r.Note, &r.CreatedAt); err != nil {
		return nil, err
	}
	var err error
	if r.ID, err = uuid.Parse(idStr); err != nil {
		return nil, fmt.Errorf("invalid repayment id %q: %w", idStr, err)
	}
	if r.LoanID, err = uuid.Parse(loanIDStr); err != nil {
		return nil, fmt.Errorf("invalid loan id %q: %w", loanIDStr, err)
	}
	if r.ScheduleEntryID, err = parseNullUUID(entryID); err != nil {
		return nil, fmt.Errorf("invalid schedule entry id %q: %w", entryID.String, err)
	}
	return &r, nil
}

// GetRepayment retrieves a repayment by its ID.
func (s *SQLiteStore) GetRepayment(id uuid.UUID) (*models.Repayment, error) {
	row := s.db.QueryRow(`SELECT `+repaymentColumns+` FROM repayments WHERE id = ?`, id.String())
	r, err := scanRepayment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("repayment %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get repayment: %w", err)
	}
	return r, nil
}

// GetRepaymentsForLoan retrieves all repayments for a given loan ID, oldest first.
func (s *SQLiteStore) GetRepaymentsForLoan(loanID uuid.UUID) ([]*models.Repayment, error) {
	rows, err := s.db.Query(`SELECT `+repaymentColumns+` FROM repayments WHERE loan_id = ? ORDER BY paid_date ASC, created_at ASC`, loanID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get repayments for loan %s: %w", loanID, err)
	}
	defer rows.Close()

	var repayments []*models.Repayment
	for rows.Next() {
		r, err := scanRepayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan repayment row: %w", err)
		}
		repayments = append(repayments, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration for loan repayments: %w", err)
	}
	return repayments, nil
}

func findEntry(schedule []*models.ScheduleEntry, id *uuid.UUID) *models.ScheduleEntry {
	if id == nil {
		return nil
	}
	for _, e := range schedule {
		if e.ID == *id {
			return e
		}
	}
	return nil
}

// ApplyRepayment records a repayment against its schedule entry and stores the
// resulting loan state within a transaction.
func (s *SQLiteStore) ApplyRepayment(rep *models.Repayment, loan *models.Loan, schedule []*models.ScheduleEntry) error {
	target := findEntry(schedule, rep.ScheduleEntryID)
	if target == nil {
		return fmt.Errorf("repayment %s: schedule entry %w", rep.ID, ErrNotFound)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO repayments (`+repaymentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rep.ID.String(), rep.LoanID.String(), nullUUID(rep.ScheduleEntryID), rep.Amount, rep.PrincipalApplied,
		rep.PaidDate, rep.Kind, rep.CollectedBy, rep.Note, rep.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create repayment: %w", err)
	}

	result, err := tx.Exec(
		`UPDATE schedule_entries SET repayment_id = ?, paid_date = ?, status = ?
		WHERE id = ? AND loan_id = ? AND repayment_id IS NULL`,
		rep.ID.String(), rep.PaidDate, target.Status, target.ID.String(), rep.LoanID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to link schedule entry: %w", err)
	}
	if err := mustAffect(result, fmt.Errorf("entry %s: %w", target.ID, ErrEntryLinked)); err != nil {
		return err
	}

	if err := updateStatuses(tx, schedule, target.ID); err != nil {
		return err
	}
	if err := updateLoan(tx, loan); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit repayment: %w", err)
	}
	loan.Version++
	return nil
}

// RevertRepayment deletes a repayment, frees its schedule entry and stores the
// resulting loan state within a transaction.
func (s *SQLiteStore) RevertRepayment(rep *models.Repayment, loan *models.Loan, schedule []*models.ScheduleEntry) error {
	target := findEntry(schedule, rep.ScheduleEntryID)
	if target == nil {
		return fmt.Errorf("repayment %s: schedule entry %w", rep.ID, ErrNotFound)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		`UPDATE schedule_entries SET repayment_id = NULL, paid_date = NULL, status = ?
		WHERE id = ? AND repayment_id = ?`,
		target.Status, target.ID.String(), rep.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to unlink schedule entry: %w", err)
	}
	if err := mustAffect(result, fmt.Errorf("entry %s: %w", target.ID, ErrEntryNotLinked)); err != nil {
		return err
	}

	result, err = tx.Exec(`DELETE FROM repayments WHERE id = ?`, rep.ID.String())
	if err != nil {
		return fmt.Errorf("failed to delete repayment: %w", err)
	}
	if err := mustAffect(result, fmt.Errorf("repayment %s: %w", rep.ID, ErrNotFound)); err != nil {
		return err
	}

	if err := updateStatuses(tx, schedule, target.ID); err != nil {
		return err
	}
	if err := updateLoan(tx, loan); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit repayment reversal: %w", err)
	}
	loan.Version++
	return nil
}

// ----------------------------------------------------------- chit funds

const chitFundColumns = `id, name, total_amount, contribution_amount, duration, member_count, type, start_date, current_month, created_at, updated_at`

func scanChitFund(row rowScanner) (*models.ChitFund, error) {
	var f models.ChitFund
	var idStr string
	if err := row.Scan(&idStr, &f.Name, &f.TotalAmount, &f.ContributionAmount, &f.Duration, &f.MemberCount, &f.Type,
		&f.StartDate, &f.CurrentMonth, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	if f.ID, err = uuid.Parse(idStr); err != nil {
		return nil, fmt.Errorf("invalid chit fund id %q: %w", idStr, err)
	}
	return &f, nil
}

// CreateChitFund inserts a new chit fund.
func (s *SQLiteStore) CreateChitFund(fund *models.ChitFund) error {
	_, err := s.db.Exec(
		`INSERT INTO chit_funds (`+chitFundColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		fund.ID.String(), fund.Name, fund.TotalAmount, fund.ContributionAmount, fund.Duration, fund.MemberCount,
		fund.Type, fund.StartDate, fund.CurrentMonth, fund.CreatedAt, fund.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create chit fund: %w", err)
	}
	return nil
}

// GetChitFund retrieves a chit fund by its ID.
func (s *SQLiteStore) GetChitFund(id uuid.UUID) (*models.ChitFund, error) {
	row := s.db.QueryRow(`SELECT `+chitFundColumns+` FROM chit_funds WHERE id = ?`, id.String())
	f, err := scanChitFund(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("chit fund %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get chit fund: %w", err)
	}
	return f, nil
}

// UpdateChitFund updates an existing chit fund.
func (s *SQLiteStore) UpdateChitFund(fund *models.ChitFund) error {
	result, err := s.db.Exec(
		`UPDATE chit_funds SET name = ?, total_amount = ?, contribution_amount = ?, duration = ?, member_count = ?,
		type = ?, start_date = ?, current_month = ?, updated_at = ? WHERE id = ?`,
		fund.Name, fund.TotalAmount, fund.ContributionAmount, fund.Duration, fund.MemberCount,
		fund.Type, fund.StartDate, fund.CurrentMonth, fund.UpdatedAt, fund.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update chit fund: %w", err)
	}
	return mustAffect(result, fmt.Errorf("chit fund %s: %w", fund.ID, ErrNotFound))
}

// GetAllChitFunds retrieves all chit funds.
func (s *SQLiteStore) GetAllChitFunds() ([]*models.ChitFund, error) {
	rows, err := s.db.Query(`SELECT ` + chitFundColumns + ` FROM chit_funds ORDER BY start_date ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all chit funds: %w", err)
	}
	defer rows.Close()

	var funds []*models.ChitFund
	for rows.Next() {
		f, err := scanChitFund(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chit fund row: %w", err)
		}
		funds = append(funds, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return funds, nil
}

// CreateContribution inserts a member contribution.
func (s *SQLiteStore) CreateContribution(c *models.Contribution) error {
	_, err := s.db.Exec(
		`INSERT INTO contributions (id, chit_fund_id, member_key, month, amount, paid_date, collected_by)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID.String(), c.ChitFundID.String(), c.MemberKey, c.Month, c.Amount, c.PaidDate, c.CollectedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to create contribution: %w", err)
	}
	return nil
}

// GetContributionsForChitFund retrieves all contributions to a chit fund, oldest first.
func (s *SQLiteStore) GetContributionsForChitFund(fundID uuid.UUID) ([]*models.Contribution, error) {
	rows, err := s.db.Query(
		`SELECT id, chit_fund_id, member_key, month, amount, paid_date, collected_by
		FROM contributions WHERE chit_fund_id = ? ORDER BY paid_date ASC`, fundID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get contributions for chit fund %s: %w", fundID, err)
	}
	defer rows.Close()

	var contributions []*models.Contribution
	for rows.Next() {
		var c models.Contribution
		var idStr, fundIDStr string
		if err := rows.Scan(&idStr, &fundIDStr, &c.MemberKey, &c.Month, &c.Amount, &c.PaidDate, &c.CollectedBy); err != nil {
			return nil, fmt.Errorf("failed to scan contribution row: %w", err)
		}
		c.ID = uuid.MustParse(idStr)
		c.ChitFundID = uuid.MustParse(fundIDStr)
		contributions = append(contributions, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration for contributions: %w", err)
	}
	return contributions, nil
}

// CreateAuction inserts an auction outcome; one per fund and month.
func (s *SQLiteStore) CreateAuction(a *models.Auction) error {
	_, err := s.db.Exec(
		`INSERT INTO auctions (id, chit_fund_id, month, winner_key, auction_amount, auction_date)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID.String(), a.ChitFundID.String(), a.Month, a.WinnerKey, a.AuctionAmount, a.AuctionDate,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("chit fund %s month %d: %w", a.ChitFundID, a.Month, ErrDuplicateMonth)
		}
		return fmt.Errorf("failed to create auction: %w", err)
	}
	return nil
}

// GetAuctionsForChitFund retrieves all auctions of a chit fund by month.
func (s *SQLiteStore) GetAuctionsForChitFund(fundID uuid.UUID) ([]*models.Auction, error) {
	rows, err := s.db.Query(
		`SELECT id, chit_fund_id, month, winner_key, auction_amount, auction_date
		FROM auctions WHERE chit_fund_id = ? ORDER BY month ASC`, fundID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get auctions for chit fund %s: %w", fundID, err)
	}
	defer rows.Close()

	var auctions []*models.Auction
	for rows.Next() {
		var a models.Auction
		var idStr, fundIDStr string
		if err := rows.Scan(&idStr, &fundIDStr, &a.Month, &a.WinnerKey, &a.AuctionAmount, &a.AuctionDate); err != nil {
			return nil, fmt.Errorf("failed to scan auction row: %w", err)
		}
		a.ID = uuid.MustParse(idStr)
		a.ChitFundID = uuid.MustParse(fundIDStr)
		auctions = append(auctions, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration for auctions: %w", err)
	}
	return auctions, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
