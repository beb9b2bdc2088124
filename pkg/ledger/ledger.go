package ledger

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/fundledger/pkg/models"
	"github.com/mcclellann/fundledger/pkg/money"
	"github.com/mcclellann/fundledger/pkg/profit"
	"github.com/mcclellann/fundledger/pkg/schedule"
	"github.com/mcclellann/fundledger/pkg/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Ledger handles the business logic for loans, their repayments and chit funds.
type Ledger struct {
	storage store.Storage
	logger  *zap.Logger
	now     func() time.Time

	// defaultAfterMissed marks a loan defaulted once it has this many missed
	// entries. Zero disables it.
	defaultAfterMissed int

	locks sync.Map // loan id -> *sync.Mutex
}

type Option func(*Ledger)

// WithClock replaces time.Now as the ledger's notion of "today".
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func WithDefaultThreshold(missed int) Option {
	return func(l *Ledger) { l.defaultAfterMissed = missed }
}

// NewLedger creates a new Ledger with a given Storage implementation.
func NewLedger(s store.Storage, logger *zap.Logger, opts ...Option) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Ledger{
		storage: s,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// lockLoan serializes writers of one loan's aggregate within this process.
func (l *Ledger) lockLoan(id uuid.UUID) func() {
	v, _ := l.locks.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (l *Ledger) inconsistent(loanID uuid.UUID, reason string, err error) error {
	l.logger.Error("ledger inconsistency",
		zap.String("loan_id", loanID.String()),
		zap.String("reason", reason),
		zap.Error(err),
	)
	return &ConsistencyError{Reason: reason, Err: err}
}

// NewLoan holds the terms of a loan to be disbursed.
type NewLoan struct {
	CustomerKey      string
	Principal        decimal.Decimal
	InterestAmount   decimal.Decimal
	DocumentCharge   decimal.Decimal
	Duration         int
	DisbursementDate time.Time
	Cadence          models.Cadence
}

func (n NewLoan) validate() error {
	switch {
	case strings.TrimSpace(n.CustomerKey) == "":
		return invalid("customer_key", "must not be empty")
	case !n.Principal.IsPositive():
		return invalid("principal", "must be positive")
	case !money.IsWhole(n.Principal):
		return invalid("principal", "must be a whole amount")
	case n.InterestAmount.IsNegative():
		return invalid("interest_amount", "must not be negative")
	case n.DocumentCharge.IsNegative():
		return invalid("document_charge", "must not be negative")
	case n.Duration < 1:
		return invalid("duration", "must be at least one period")
	case !n.Cadence.Valid():
		return invalid("cadence", "unknown cadence %q", n.Cadence)
	case n.DisbursementDate.IsZero():
		return invalid("disbursement_date", "is required")
	}
	return nil
}

// CreateLoan disburses a loan and stores it together with its full schedule.
func (l *Ledger) CreateLoan(req NewLoan) (*models.Loan, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	now := l.now()
	loan := &models.Loan{
		ID:               uuid.New(),
		CustomerKey:      strings.TrimSpace(req.CustomerKey),
		Principal:        req.Principal,
		InterestAmount:   req.InterestAmount,
		DocumentCharge:   req.DocumentCharge,
		Duration:         req.Duration,
		DisbursementDate: req.DisbursementDate,
		Cadence:          req.Cadence,
		Status:           models.LoanStatusActive,
		Version:          1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	loan.InstallmentAmount = schedule.InstallmentForLoan(loan)
	loan.RemainingBalance = schedule.OpeningBalance(loan)

	// A backdated loan may already have missed entries.
	entries, err := schedule.Classify(schedule.Generate(loan), nil, now)
	if err != nil {
		return nil, fmt.Errorf("failed to classify new schedule: %w", err)
	}
	l.settle(loan, entries, nil, now)

	if err := l.storage.CreateLoan(loan, entries); err != nil {
		return nil, fmt.Errorf("failed to store loan: %w", err)
	}

	l.logger.Info("loan created",
		zap.String("loan_id", loan.ID.String()),
		zap.String("cadence", string(loan.Cadence)),
		zap.String("principal", loan.Principal.String()),
		zap.Int("duration", loan.Duration),
	)
	return loan, nil
}

// GetLoan retrieves a loan by its ID.
func (l *Ledger) GetLoan(id uuid.UUID) (*models.Loan, error) {
	return l.storage.GetLoan(id)
}

// GetAllLoans retrieves all loans.
func (l *Ledger) GetAllLoans() ([]*models.Loan, error) {
	return l.storage.GetAllLoans()
}

// DeleteLoan deletes a loan with its schedule and repayments.
func (l *Ledger) DeleteLoan(id uuid.UUID) error {
	unlock := l.lockLoan(id)
	defer unlock()
	if err := l.storage.DeleteLoan(id); err != nil {
		return err
	}
	l.logger.Info("loan deleted", zap.String("loan_id", id.String()))
	return nil
}

// settle rederives everything on the loan that follows from a classified
// schedule: current period, arrears and status.
func (l *Ledger) settle(loan *models.Loan, classified []*models.ScheduleEntry, repayments []*models.Repayment, now time.Time) {
	loan.RemainingBalance = money.NonNegative(loan.RemainingBalance)
	loan.OverdueAmount, loan.MissedPayments = schedule.Arrears(classified, repayments)
	loan.CurrentPeriod = schedule.CurrentPeriodForLoan(loan, now)

	switch {
	case !loan.RemainingBalance.IsPositive():
		loan.Status = models.LoanStatusCompleted
	case l.defaultAfterMissed > 0 && loan.MissedPayments >= l.defaultAfterMissed:
		loan.Status = models.LoanStatusDefaulted
	default:
		loan.Status = models.LoanStatusActive
	}
	loan.UpdatedAt = now
}

// loanState is one consistent read of a loan aggregate.
type loanState struct {
	loan       *models.Loan
	entries    []*models.ScheduleEntry
	repayments []*models.Repayment
}

func (l *Ledger) loadLoan(id uuid.UUID) (*loanState, error) {
	loan, err := l.storage.GetLoan(id)
	if err != nil {
		return nil, err
	}
	entries, err := l.storage.GetScheduleForLoan(id)
	if err != nil {
		return nil, fmt.Errorf("failed to load schedule: %w", err)
	}
	reps, err := l.storage.GetRepaymentsForLoan(id)
	if err != nil {
		return nil, fmt.Errorf("failed to load repayments: %w", err)
	}
	return &loanState{loan: loan, entries: entries, repayments: reps}, nil
}

func (l *Ledger) classify(st *loanState, asOf time.Time) ([]*models.ScheduleEntry, error) {
	classified, err := schedule.Classify(st.entries, st.repayments, asOf)
	if err != nil {
		return nil, l.inconsistent(st.loan.ID, "schedule does not match repayments", err)
	}
	return classified, nil
}

// GetSchedule returns the loan's schedule classified as of asOf. Nothing is written.
func (l *Ledger) GetSchedule(loanID uuid.UUID, asOf time.Time) ([]*models.ScheduleEntry, error) {
	st, err := l.loadLoan(loanID)
	if err != nil {
		return nil, err
	}
	return l.classify(st, asOf)
}

// ScheduleWindow is GetSchedule narrowed to what is settled, late, or due
// within days of asOf. The next pending entry is always part of it.
func (l *Ledger) ScheduleWindow(loanID uuid.UUID, asOf time.Time, days int) ([]*models.ScheduleEntry, error) {
	if days < 0 {
		return nil, invalid("days", "must not be negative")
	}
	classified, err := l.GetSchedule(loanID, asOf)
	if err != nil {
		return nil, err
	}
	return schedule.Window(classified, asOf, days), nil
}

// NextDue returns the loan's next pending entry, or nil when none is left.
func (l *Ledger) NextDue(loanID uuid.UUID) (*models.ScheduleEntry, error) {
	classified, err := l.GetSchedule(loanID, l.now())
	if err != nil {
		return nil, err
	}
	return schedule.NextPending(classified), nil
}

// GenerateSchedule adds any periods missing from the loan's stored schedule
// and returns the full classified schedule. Existing entries are left alone.
func (l *Ledger) GenerateSchedule(loanID uuid.UUID) ([]*models.ScheduleEntry, error) {
	unlock := l.lockLoan(loanID)
	defer unlock()

	st, err := l.loadLoan(loanID)
	if err != nil {
		return nil, err
	}

	have := make(map[int]bool, len(st.entries))
	for _, e := range st.entries {
		have[e.PeriodIndex] = true
	}
	var missing []*models.ScheduleEntry
	for _, e := range schedule.Generate(st.loan) {
		if !have[e.PeriodIndex] {
			missing = append(missing, e)
		}
	}

	if len(missing) > 0 {
		if err := l.storage.AddScheduleEntries(missing); err != nil {
			return nil, asConflict("schedule changed concurrently", fmt.Errorf("failed to add schedule entries: %w", err))
		}
		st.entries = append(st.entries, missing...)
		l.logger.Info("schedule extended",
			zap.String("loan_id", loanID.String()),
			zap.Int("added", len(missing)),
		)
	}
	return l.classify(st, l.now())
}

// CurrentPeriod computes the loan's period as of asOf, independent of the
// value cached on the loan.
func (l *Ledger) CurrentPeriod(loanID uuid.UUID, asOf time.Time) (int, error) {
	loan, err := l.storage.GetLoan(loanID)
	if err != nil {
		return 0, err
	}
	return schedule.CurrentPeriodForLoan(loan, asOf), nil
}

// RepaymentRequest identifies the schedule entry being paid either by EntryID
// or, when that is nil, by Period.
type RepaymentRequest struct {
	EntryID     *uuid.UUID
	Period      int
	Amount      decimal.Decimal
	PaidDate    time.Time
	Kind        models.RepaymentKind
	CollectedBy string
	Note        string
}

func (r RepaymentRequest) validate() error {
	switch {
	case !r.Amount.IsPositive():
		return invalid("amount", "must be positive")
	case !r.Kind.Valid():
		return invalid("kind", "unknown repayment kind %q", r.Kind)
	case r.PaidDate.IsZero():
		return invalid("paid_date", "is required")
	case strings.TrimSpace(r.CollectedBy) == "":
		return invalid("collected_by", "must not be empty")
	case r.EntryID == nil && r.Period < 1:
		return invalid("period", "a schedule entry id or period is required")
	}
	return nil
}

func findTarget(entries []*models.ScheduleEntry, loanID uuid.UUID, req RepaymentRequest) (*models.ScheduleEntry, error) {
	for _, e := range entries {
		if req.EntryID != nil && e.ID == *req.EntryID {
			return e, nil
		}
		if req.EntryID == nil && e.PeriodIndex == req.Period {
			return e, nil
		}
	}
	if req.EntryID != nil {
		return nil, invalid("schedule_entry_id", "entry %s does not belong to loan %s", *req.EntryID, loanID)
	}
	return nil, invalid("period", "loan %s has no period %d", loanID, req.Period)
}

// RecordRepayment records a repayment against one schedule entry and updates
// the loan's balance, arrears and status in the same write.
func (l *Ledger) RecordRepayment(loanID uuid.UUID, req RepaymentRequest) (*models.Repayment, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	unlock := l.lockLoan(loanID)
	defer unlock()

	st, err := l.loadLoan(loanID)
	if err != nil {
		return nil, err
	}
	loan := st.loan

	if loan.Status == models.LoanStatusCompleted {
		return nil, invalid("loan", "loan %s is already completed", loan.ID)
	}
	paidOn := schedule.DateOnly(req.PaidDate)
	if paidOn.Before(schedule.DateOnly(loan.DisbursementDate)) {
		return nil, invalid("paid_date", "is before the disbursement date")
	}
	if paidOn.After(schedule.DateOnly(l.now())) {
		return nil, invalid("paid_date", "is in the future")
	}

	target, err := findTarget(st.entries, loan.ID, req)
	if err != nil {
		return nil, err
	}
	if target.RepaymentID != nil {
		return nil, &ConflictError{
			Reason: fmt.Sprintf("period %d is already settled", target.PeriodIndex),
			Err:    store.ErrEntryLinked,
		}
	}

	portion := profit.PrincipalPortion(loan, req.Kind, req.Amount)
	switch req.Kind {
	case models.RepaymentInterestOnly:
		if !req.Amount.Equal(loan.InterestAmount) {
			return nil, invalid("amount", "interest-only repayment must equal the interest amount %s", loan.InterestAmount)
		}
	default:
		if portion.GreaterThan(loan.RemainingBalance) {
			return nil, invalid("amount", "exceeds the remaining balance %s", loan.RemainingBalance)
		}
	}

	now := l.now()
	entryID := target.ID
	rep := &models.Repayment{
		ID:               uuid.New(),
		LoanID:           loan.ID,
		ScheduleEntryID:  &entryID,
		Amount:           req.Amount,
		PrincipalApplied: portion,
		PaidDate:         req.PaidDate,
		Kind:             req.Kind,
		CollectedBy:      strings.TrimSpace(req.CollectedBy),
		Note:             req.Note,
		CreatedAt:        now,
	}

	repID, paid := rep.ID, rep.PaidDate
	linked := *target
	linked.RepaymentID = &repID
	linked.PaidDate = &paid
	for i, e := range st.entries {
		if e.ID == target.ID {
			st.entries[i] = &linked
		}
	}
	st.repayments = append(st.repayments, rep)

	classified, err := l.classify(st, now)
	if err != nil {
		return nil, err
	}
	loan.RemainingBalance = loan.RemainingBalance.Sub(portion)
	l.settle(loan, classified, st.repayments, now)

	if err := l.storage.ApplyRepayment(rep, loan, classified); err != nil {
		return nil, asConflict("loan changed while recording repayment", fmt.Errorf("failed to apply repayment: %w", err))
	}

	l.logger.Info("repayment recorded",
		zap.String("loan_id", loan.ID.String()),
		zap.String("repayment_id", rep.ID.String()),
		zap.Int("period", target.PeriodIndex),
		zap.String("kind", string(rep.Kind)),
		zap.String("amount", rep.Amount.String()),
		zap.String("remaining_balance", loan.RemainingBalance.String()),
		zap.String("status", string(loan.Status)),
	)
	return rep, nil
}

// GetRepayments returns a loan's repayments, oldest first.
func (l *Ledger) GetRepayments(loanID uuid.UUID) ([]*models.Repayment, error) {
	if _, err := l.storage.GetLoan(loanID); err != nil {
		return nil, err
	}
	return l.storage.GetRepaymentsForLoan(loanID)
}

// DeleteRepayment removes a repayment and undoes its effect: the entry it
// settled is freed and reclassified, and the balance it reduced is restored.
func (l *Ledger) DeleteRepayment(repaymentID uuid.UUID) error {
	rep, err := l.storage.GetRepayment(repaymentID)
	if err != nil {
		return err
	}

	unlock := l.lockLoan(rep.LoanID)
	defer unlock()

	st, err := l.loadLoan(rep.LoanID)
	if err != nil {
		return err
	}

	var stored *models.Repayment
	rest := make([]*models.Repayment, 0, len(st.repayments))
	for _, r := range st.repayments {
		if r.ID == repaymentID {
			stored = r
			continue
		}
		rest = append(rest, r)
	}
	if stored == nil {
		return fmt.Errorf("repayment %s: %w", repaymentID, store.ErrNotFound)
	}
	if stored.ScheduleEntryID == nil {
		return l.inconsistent(st.loan.ID, fmt.Sprintf("repayment %s is not linked to a schedule entry", stored.ID), nil)
	}

	var target *models.ScheduleEntry
	for i, e := range st.entries {
		if e.ID != *stored.ScheduleEntryID {
			continue
		}
		if e.RepaymentID == nil || *e.RepaymentID != stored.ID {
			return l.inconsistent(st.loan.ID, fmt.Sprintf("entry %s does not link back to repayment %s", e.ID, stored.ID), nil)
		}
		freed := *e
		freed.RepaymentID = nil
		freed.PaidDate = nil
		st.entries[i] = &freed
		target = &freed
	}
	if target == nil {
		return l.inconsistent(st.loan.ID, fmt.Sprintf("repayment %s links to missing entry %s", stored.ID, *stored.ScheduleEntryID), nil)
	}
	st.repayments = rest

	now := l.now()
	classified, err := l.classify(st, now)
	if err != nil {
		return err
	}
	loan := st.loan
	loan.RemainingBalance = loan.RemainingBalance.Add(stored.PrincipalApplied)
	l.settle(loan, classified, st.repayments, now)

	if err := l.storage.RevertRepayment(stored, loan, classified); err != nil {
		return asConflict("loan changed while deleting repayment", fmt.Errorf("failed to revert repayment: %w", err))
	}

	l.logger.Info("repayment deleted",
		zap.String("loan_id", loan.ID.String()),
		zap.String("repayment_id", stored.ID.String()),
		zap.Int("period", target.PeriodIndex),
		zap.String("remaining_balance", loan.RemainingBalance.String()),
	)
	return nil
}

// RecomputeLoan reconciles the loan's cached fields with its history as of
// now: current period, entry statuses, balance, arrears and status.
func (l *Ledger) RecomputeLoan(loanID uuid.UUID) (*models.Loan, error) {
	unlock := l.lockLoan(loanID)
	defer unlock()

	st, err := l.loadLoan(loanID)
	if err != nil {
		return nil, err
	}
	now := l.now()
	classified, err := l.classify(st, now)
	if err != nil {
		return nil, err
	}

	loan := st.loan
	applied := decimal.Zero
	for _, r := range st.repayments {
		applied = applied.Add(r.PrincipalApplied)
	}
	loan.RemainingBalance = schedule.OpeningBalance(loan).Sub(applied)
	l.settle(loan, classified, st.repayments, now)

	if err := l.storage.SaveLoanState(loan, classified); err != nil {
		return nil, asConflict("loan changed during recompute", fmt.Errorf("failed to save loan state: %w", err))
	}
	return loan, nil
}

// RecomputeResult counts what a RecomputeAll pass touched.
type RecomputeResult struct {
	Loans     int
	ChitFunds int
	Failed    int
}

// RecomputeAll runs RecomputeLoan over every loan that is not completed and
// refreshes the current month of every chit fund. A failure on one record is
// logged and does not stop the pass.
func (l *Ledger) RecomputeAll() (RecomputeResult, error) {
	var res RecomputeResult

	loans, err := l.storage.GetAllOpenLoans()
	if err != nil {
		return res, fmt.Errorf("failed to list open loans: %w", err)
	}
	for _, loan := range loans {
		if _, err := l.RecomputeLoan(loan.ID); err != nil {
			res.Failed++
			l.logger.Warn("loan recompute failed", zap.String("loan_id", loan.ID.String()), zap.Error(err))
			continue
		}
		res.Loans++
	}

	funds, err := l.storage.GetAllChitFunds()
	if err != nil {
		return res, fmt.Errorf("failed to list chit funds: %w", err)
	}
	now := l.now()
	for _, fund := range funds {
		month := chitMonth(fund, now)
		if month == fund.CurrentMonth {
			continue
		}
		fund.CurrentMonth = month
		fund.UpdatedAt = now
		if err := l.storage.UpdateChitFund(fund); err != nil {
			res.Failed++
			l.logger.Warn("chit fund recompute failed", zap.String("chit_fund_id", fund.ID.String()), zap.Error(err))
			continue
		}
		res.ChitFunds++
	}

	l.logger.Info("recompute finished",
		zap.Int("loans", res.Loans),
		zap.Int("chit_funds", res.ChitFunds),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}

// LoanFinancials is the derived money picture of one loan.
type LoanFinancials struct {
	LoanID        uuid.UUID             `json:"loan_id"`
	Profit        decimal.Decimal       `json:"profit"`
	OutsideAmount decimal.Decimal       `json:"outside_amount"`
	TotalRepaid   decimal.Decimal       `json:"total_repaid"`
	Repayments    int                   `json:"repayments"`
	NextDue       *models.ScheduleEntry `json:"next_due,omitempty"`
}

// LoanFinancials computes profit and outside amount from the loan's history.
func (l *Ledger) LoanFinancials(loanID uuid.UUID) (*LoanFinancials, error) {
	st, err := l.loadLoan(loanID)
	if err != nil {
		return nil, err
	}
	classified, err := l.classify(st, l.now())
	if err != nil {
		return nil, err
	}
	return &LoanFinancials{
		LoanID:        st.loan.ID,
		Profit:        profit.LoanProfit(st.loan, st.repayments),
		OutsideAmount: profit.LoanOutsideAmount(st.loan),
		TotalRepaid:   profit.TotalRepaid(st.repayments),
		Repayments:    len(st.repayments),
		NextDue:       schedule.NextPending(classified),
	}, nil
}

// IsNotFound reports whether err means the requested record does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
