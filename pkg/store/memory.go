package store

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/mcclellann/fundledger/pkg/models"
)

var _ Storage = (*MemoryStore)(nil)

// MemoryStore is an in-memory implementation of Storage. It copies values on
// the way in and out, so callers never share state with it, and it applies
// multi-record writes only after every check has passed.
type MemoryStore struct {
	mu            sync.RWMutex
	loans         map[uuid.UUID]models.Loan
	entries       map[uuid.UUID]models.ScheduleEntry
	repayments    map[uuid.UUID]models.Repayment
	chitFunds     map[uuid.UUID]models.ChitFund
	contributions []models.Contribution
	auctions      []models.Auction
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		loans:      make(map[uuid.UUID]models.Loan),
		entries:    make(map[uuid.UUID]models.ScheduleEntry),
		repayments: make(map[uuid.UUID]models.Repayment),
		chitFunds:  make(map[uuid.UUID]models.ChitFund),
	}
}

func copyEntry(e models.ScheduleEntry) *models.ScheduleEntry {
	if e.RepaymentID != nil {
		id := *e.RepaymentID
		e.RepaymentID = &id
	}
	if e.PaidDate != nil {
		t := *e.PaidDate
		e.PaidDate = &t
	}
	return &e
}

func copyRepayment(r models.Repayment) *models.Repayment {
	if r.ScheduleEntryID != nil {
		id := *r.ScheduleEntryID
		r.ScheduleEntryID = &id
	}
	return &r
}

func (m *MemoryStore) CreateLoan(loan *models.Loan, schedule []*models.ScheduleEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.loans[loan.ID]; ok {
		return fmt.Errorf("failed to create loan: duplicate id %s", loan.ID)
	}
	if err := m.checkNewEntries(schedule, map[uuid.UUID]bool{loan.ID: true}); err != nil {
		return err
	}
	m.loans[loan.ID] = *loan
	for _, e := range schedule {
		m.entries[e.ID] = *copyEntry(*e)
	}
	return nil
}

func (m *MemoryStore) GetLoan(id uuid.UUID) (*models.Loan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	loan, ok := m.loans[id]
	if !ok {
		return nil, fmt.Errorf("loan %s: %w", id, ErrNotFound)
	}
	return &loan, nil
}

func (m *MemoryStore) checkLoanVersion(loan *models.Loan) error {
	stored, ok := m.loans[loan.ID]
	if !ok || stored.Version != loan.Version {
		return fmt.Errorf("loan %s version %d: %w", loan.ID, loan.Version, ErrStaleLoan)
	}
	return nil
}

func (m *MemoryStore) putLoan(loan *models.Loan) {
	loan.Version++
	m.loans[loan.ID] = *loan
}

func (m *MemoryStore) UpdateLoan(loan *models.Loan) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkLoanVersion(loan); err != nil {
		return err
	}
	m.putLoan(loan)
	return nil
}

func (m *MemoryStore) DeleteLoan(id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.loans[id]; !ok {
		return fmt.Errorf("loan %s: %w", id, ErrNotFound)
	}
	for eid, e := range m.entries {
		if e.LoanID == id {
			delete(m.entries, eid)
		}
	}
	for rid, r := range m.repayments {
		if r.LoanID == id {
			delete(m.repayments, rid)
		}
	}
	delete(m.loans, id)
	return nil
}

func (m *MemoryStore) listLoans(keep func(models.Loan) bool) []*models.Loan {
	m.mu.RLock()
	defer m.mu.RUnlock()

	loans := []*models.Loan{}
	for _, l := range m.loans {
		if keep(l) {
			loan := l
			loans = append(loans, &loan)
		}
	}
	sort.Slice(loans, func(i, j int) bool {
		return loans[i].DisbursementDate.Before(loans[j].DisbursementDate)
	})
	return loans
}

func (m *MemoryStore) GetAllLoans() ([]*models.Loan, error) {
	return m.listLoans(func(models.Loan) bool { return true }), nil
}

func (m *MemoryStore) GetAllOpenLoans() ([]*models.Loan, error) {
	return m.listLoans(func(l models.Loan) bool { return l.Status != models.LoanStatusCompleted }), nil
}

func (m *MemoryStore) GetScheduleForLoan(loanID uuid.UUID) ([]*models.ScheduleEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := []*models.ScheduleEntry{}
	for _, e := range m.entries {
		if e.LoanID == loanID {
			entries = append(entries, copyEntry(e))
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].PeriodIndex < entries[j].PeriodIndex })
	return entries, nil
}

// checkNewEntries validates a batch against stored entries. Must hold the lock.
func (m *MemoryStore) checkNewEntries(batch []*models.ScheduleEntry, pendingLoans map[uuid.UUID]bool) error {
	taken := make(map[uuid.UUID]map[int]bool)
	for _, e := range m.entries {
		if taken[e.LoanID] == nil {
			taken[e.LoanID] = make(map[int]bool)
		}
		taken[e.LoanID][e.PeriodIndex] = true
	}
	for _, e := range batch {
		if _, ok := m.loans[e.LoanID]; !ok && !pendingLoans[e.LoanID] {
			return fmt.Errorf("failed to create schedule entry: loan %s: %w", e.LoanID, ErrNotFound)
		}
		if taken[e.LoanID] == nil {
			taken[e.LoanID] = make(map[int]bool)
		}
		if taken[e.LoanID][e.PeriodIndex] {
			return fmt.Errorf("loan %s period %d: %w", e.LoanID, e.PeriodIndex, ErrDuplicatePeriod)
		}
		taken[e.LoanID][e.PeriodIndex] = true
	}
	return nil
}

func (m *MemoryStore) AddScheduleEntries(entries []*models.ScheduleEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkNewEntries(entries, nil); err != nil {
		return err
	}
	for _, e := range entries {
		m.entries[e.ID] = *copyEntry(*e)
	}
	return nil
}

// checkStatusTargets ensures every entry in schedule exists for its loan. Must hold the lock.
func (m *MemoryStore) checkStatusTargets(schedule []*models.ScheduleEntry) error {
	for _, e := range schedule {
		stored, ok := m.entries[e.ID]
		if !ok || stored.LoanID != e.LoanID {
			return fmt.Errorf("schedule entry %s: %w", e.ID, ErrNotFound)
		}
	}
	return nil
}

func (m *MemoryStore) setStatuses(schedule []*models.ScheduleEntry, skip uuid.UUID) {
	for _, e := range schedule {
		if e.ID == skip {
			continue
		}
		stored := m.entries[e.ID]
		stored.Status = e.Status
		m.entries[e.ID] = stored
	}
}

func (m *MemoryStore) SaveLoanState(loan *models.Loan, schedule []*models.ScheduleEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkLoanVersion(loan); err != nil {
		return err
	}
	if err := m.checkStatusTargets(schedule); err != nil {
		return err
	}
	m.setStatuses(schedule, uuid.Nil)
	m.putLoan(loan)
	return nil
}

func (m *MemoryStore) GetRepayment(id uuid.UUID) (*models.Repayment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.repayments[id]
	if !ok {
		return nil, fmt.Errorf("repayment %s: %w", id, ErrNotFound)
	}
	return copyRepayment(r), nil
}

func (m *MemoryStore) GetRepaymentsForLoan(loanID uuid.UUID) ([]*models.Repayment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	reps := []*models.Repayment{}
	for _, r := range m.repayments {
		if r.LoanID == loanID {
			reps = append(reps, copyRepayment(r))
		}
	}
	sort.Slice(reps, func(i, j int) bool {
		if reps[i].PaidDate.Equal(reps[j].PaidDate) {
			return reps[i].CreatedAt.Before(reps[j].CreatedAt)
		}
		return reps[i].PaidDate.Before(reps[j].PaidDate)
	})
	return reps, nil
}

func (m *MemoryStore) ApplyRepayment(rep *models.Repayment, loan *models.Loan, schedule []*models.ScheduleEntry) error {
	target := findEntry(schedule, rep.ScheduleEntryID)
	if target == nil {
		return fmt.Errorf("repayment %s: schedule entry %w", rep.ID, ErrNotFound)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.repayments[rep.ID]; ok {
		return fmt.Errorf("failed to create repayment: duplicate id %s", rep.ID)
	}
	stored, ok := m.entries[target.ID]
	if !ok || stored.LoanID != rep.LoanID {
		return fmt.Errorf("schedule entry %s: %w", target.ID, ErrNotFound)
	}
	if stored.RepaymentID != nil {
		return fmt.Errorf("entry %s: %w", target.ID, ErrEntryLinked)
	}
	if err := m.checkStatusTargets(schedule); err != nil {
		return err
	}
	if err := m.checkLoanVersion(loan); err != nil {
		return err
	}

	m.repayments[rep.ID] = *copyRepayment(*rep)
	repID, paid := rep.ID, rep.PaidDate
	stored.RepaymentID = &repID
	stored.PaidDate = &paid
	stored.Status = target.Status
	m.entries[target.ID] = stored
	m.setStatuses(schedule, target.ID)
	m.putLoan(loan)
	return nil
}

func (m *MemoryStore) RevertRepayment(rep *models.Repayment, loan *models.Loan, schedule []*models.ScheduleEntry) error {
	target := findEntry(schedule, rep.ScheduleEntryID)
	if target == nil {
		return fmt.Errorf("repayment %s: schedule entry %w", rep.ID, ErrNotFound)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.entries[target.ID]
	if !ok || stored.RepaymentID == nil || *stored.RepaymentID != rep.ID {
		return fmt.Errorf("entry %s: %w", target.ID, ErrEntryNotLinked)
	}
	if _, ok := m.repayments[rep.ID]; !ok {
		return fmt.Errorf("repayment %s: %w", rep.ID, ErrNotFound)
	}
	if err := m.checkStatusTargets(schedule); err != nil {
		return err
	}
	if err := m.checkLoanVersion(loan); err != nil {
		return err
	}

	delete(m.repayments, rep.ID)
	stored.RepaymentID = nil
	stored.PaidDate = nil
	stored.Status = target.Status
	m.entries[target.ID] = stored
	m.setStatuses(schedule, target.ID)
	m.putLoan(loan)
	return nil
}

func (m *MemoryStore) CreateChitFund(fund *models.ChitFund) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.chitFunds[fund.ID]; ok {
		return fmt.Errorf("failed to create chit fund: duplicate id %s", fund.ID)
	}
	m.chitFunds[fund.ID] = *fund
	return nil
}

func (m *MemoryStore) GetChitFund(id uuid.UUID) (*models.ChitFund, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	f, ok := m.chitFunds[id]
	if !ok {
		return nil, fmt.Errorf("chit fund %s: %w", id, ErrNotFound)
	}
	return &f, nil
}

func (m *MemoryStore) UpdateChitFund(fund *models.ChitFund) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.chitFunds[fund.ID]; !ok {
		return fmt.Errorf("chit fund %s: %w", fund.ID, ErrNotFound)
	}
	m.chitFunds[fund.ID] = *fund
	return nil
}

func (m *MemoryStore) GetAllChitFunds() ([]*models.ChitFund, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	funds := []*models.ChitFund{}
	for _, f := range m.chitFunds {
		fund := f
		funds = append(funds, &fund)
	}
	sort.Slice(funds, func(i, j int) bool { return funds[i].StartDate.Before(funds[j].StartDate) })
	return funds, nil
}

func (m *MemoryStore) CreateContribution(c *models.Contribution) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.chitFunds[c.ChitFundID]; !ok {
		return fmt.Errorf("chit fund %s: %w", c.ChitFundID, ErrNotFound)
	}
	m.contributions = append(m.contributions, *c)
	return nil
}

func (m *MemoryStore) GetContributionsForChitFund(fundID uuid.UUID) ([]*models.Contribution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []*models.Contribution{}
	for _, c := range m.contributions {
		if c.ChitFundID == fundID {
			contribution := c
			out = append(out, &contribution)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].PaidDate.Before(out[j].PaidDate) })
	return out, nil
}

func (m *MemoryStore) CreateAuction(a *models.Auction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.chitFunds[a.ChitFundID]; !ok {
		return fmt.Errorf("chit fund %s: %w", a.ChitFundID, ErrNotFound)
	}
	for _, existing := range m.auctions {
		if existing.ChitFundID == a.ChitFundID && existing.Month == a.Month {
			return fmt.Errorf("chit fund %s month %d: %w", a.ChitFundID, a.Month, ErrDuplicateMonth)
		}
	}
	m.auctions = append(m.auctions, *a)
	return nil
}

func (m *MemoryStore) GetAuctionsForChitFund(fundID uuid.UUID) ([]*models.Auction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []*models.Auction{}
	for _, a := range m.auctions {
		if a.ChitFundID == fundID {
			auction := a
			out = append(out, &auction)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out, nil
}

func (m *MemoryStore) Close() error {
	return nil
}
