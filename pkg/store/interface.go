package store

import (
	"errors"

	"github.com/google/uuid"
	"github.com/mcclellann/fundledger/pkg/models"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrEntryLinked     = errors.New("schedule entry already linked to a repayment")
	ErrEntryNotLinked  = errors.New("schedule entry not linked to this repayment")
	ErrStaleLoan       = errors.New("loan was modified concurrently")
	ErrDuplicatePeriod = errors.New("schedule period already exists")
	ErrDuplicateMonth  = errors.New("auction already recorded for month")
)

// Storage defines the interface for database operations related to loans,
// their schedules and repayments, and chit funds.
//
// Loan writes are compare-and-swap on Loan.Version: a write whose version no
// longer matches the stored one fails with ErrStaleLoan and changes nothing.
// On success the version on the passed loan is advanced.
type Storage interface {
	CreateLoan(loan *models.Loan, schedule []*models.ScheduleEntry) error
	GetLoan(id uuid.UUID) (*models.Loan, error)
	UpdateLoan(loan *models.Loan) error
	DeleteLoan(id uuid.UUID) error
	GetAllLoans() ([]*models.Loan, error)
	GetAllOpenLoans() ([]*models.Loan, error)

	GetScheduleForLoan(loanID uuid.UUID) ([]*models.ScheduleEntry, error)
	AddScheduleEntries(entries []*models.ScheduleEntry) error
	// SaveLoanState writes entry statuses and the loan's derived fields together.
	SaveLoanState(loan *models.Loan, schedule []*models.ScheduleEntry) error

	GetRepayment(id uuid.UUID) (*models.Repayment, error)
	GetRepaymentsForLoan(loanID uuid.UUID) ([]*models.Repayment, error)
	// ApplyRepayment inserts rep, links it to its schedule entry (which must be
	// unlinked, else ErrEntryLinked), stores the statuses of schedule and the
	// loan, all or nothing.
	ApplyRepayment(rep *models.Repayment, loan *models.Loan, schedule []*models.ScheduleEntry) error
	// RevertRepayment is the inverse of ApplyRepayment.
	RevertRepayment(rep *models.Repayment, loan *models.Loan, schedule []*models.ScheduleEntry) error

	CreateChitFund(fund *models.ChitFund) error
	GetChitFund(id uuid.UUID) (*models.ChitFund, error)
	UpdateChitFund(fund *models.ChitFund) error
	GetAllChitFunds() ([]*models.ChitFund, error)
	CreateContribution(c *models.Contribution) error
	GetContributionsForChitFund(fundID uuid.UUID) ([]*models.Contribution, error)
	CreateAuction(a *models.Auction) error
	GetAuctionsForChitFund(fundID uuid.UUID) ([]*models.Auction, error)

	Close() error
}
