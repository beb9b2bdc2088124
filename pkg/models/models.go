package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Cadence is the repayment rhythm of a loan.
type Cadence string

const (
	CadenceMonthly Cadence = "monthly"
	CadenceWeekly  Cadence = "weekly"
)

// Valid reports whether c is one of the known cadences.
func (c Cadence) Valid() bool {
	return c == CadenceMonthly || c == CadenceWeekly
}

type LoanStatus string

const (
	LoanStatusActive    LoanStatus = "active"
	LoanStatusCompleted LoanStatus = "completed"
	LoanStatusDefaulted LoanStatus = "defaulted"
)

// EntryStatus is the classification of a single schedule entry.
type EntryStatus string

const (
	EntryStatusPending      EntryStatus = "pending"
	EntryStatusPaid         EntryStatus = "paid"
	EntryStatusOverdue      EntryStatus = "overdue"
	EntryStatusMissed       EntryStatus = "missed"
	EntryStatusInterestOnly EntryStatus = "interest_only"
)

// Satisfied reports whether the status counts as settled by a repayment.
func (s EntryStatus) Satisfied() bool {
	return s == EntryStatusPaid || s == EntryStatusInterestOnly
}

type RepaymentKind string

const (
	RepaymentRegular      RepaymentKind = "regular"
	RepaymentInterestOnly RepaymentKind = "interest_only"
	RepaymentPartial      RepaymentKind = "partial"
)

func (k RepaymentKind) Valid() bool {
	switch k {
	case RepaymentRegular, RepaymentInterestOnly, RepaymentPartial:
		return true
	}
	return false
}

type Loan struct {
	ID                uuid.UUID       `json:"id"`
	CustomerKey       string          `json:"customer_key"` // Link to external customer system
	Principal         decimal.Decimal `json:"principal"`
	InterestAmount    decimal.Decimal `json:"interest_amount"` // Flat amount per period, not a rate
	DocumentCharge    decimal.Decimal `json:"document_charge"`
	Duration          int             `json:"duration"` // Number of periods
	DisbursementDate  time.Time       `json:"disbursement_date"`
	Cadence           Cadence         `json:"cadence"`
	Status            LoanStatus      `json:"status"`
	CurrentPeriod     int             `json:"current_period"` // Cached; reconciled by recompute
	InstallmentAmount decimal.Decimal `json:"installment_amount"`
	RemainingBalance  decimal.Decimal `json:"remaining_balance"`
	OverdueAmount     decimal.Decimal `json:"overdue_amount"`
	MissedPayments    int             `json:"missed_payments"`
	Version           int64           `json:"version"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

type ScheduleEntry struct {
	ID          uuid.UUID       `json:"id"`
	LoanID      uuid.UUID       `json:"loan_id"`
	PeriodIndex int             `json:"period_index"` // 1-indexed, unique per loan
	DueDate     time.Time       `json:"due_date"`
	AmountDue   decimal.Decimal `json:"amount_due"`
	Status      EntryStatus     `json:"status"`
	RepaymentID *uuid.UUID      `json:"repayment_id,omitempty"`
	PaidDate    *time.Time      `json:"paid_date,omitempty"`
}

type Repayment struct {
	ID               uuid.UUID       `json:"id"`
	LoanID           uuid.UUID       `json:"loan_id"`
	ScheduleEntryID  *uuid.UUID      `json:"schedule_entry_id,omitempty"`
	Amount           decimal.Decimal `json:"amount"`
	PrincipalApplied decimal.Decimal `json:"principal_applied"` // Portion taken off the remaining balance
	PaidDate         time.Time       `json:"paid_date"`
	Kind             RepaymentKind   `json:"kind"`
	CollectedBy      string          `json:"collected_by"`
	Note             string          `json:"note,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

type ChitFundType string

const (
	ChitFundAuction ChitFundType = "auction"
	ChitFundFixed   ChitFundType = "fixed"
)

type ChitFund struct {
	ID                 uuid.UUID       `json:"id"`
	Name               string          `json:"name"`
	TotalAmount        decimal.Decimal `json:"total_amount"`
	ContributionAmount decimal.Decimal `json:"contribution_amount"` // Per member, per month
	Duration           int             `json:"duration"`            // Months
	MemberCount        int             `json:"member_count"`
	Type               ChitFundType    `json:"type"`
	StartDate          time.Time       `json:"start_date"`
	CurrentMonth       int             `json:"current_month"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

type Contribution struct {
	ID          uuid.UUID       `json:"id"`
	ChitFundID  uuid.UUID       `json:"chit_fund_id"`
	MemberKey   string          `json:"member_key"`
	Month       int             `json:"month"`
	Amount      decimal.Decimal `json:"amount"`
	PaidDate    time.Time       `json:"paid_date"`
	CollectedBy string          `json:"collected_by"`
}

type Auction struct {
	ID            uuid.UUID       `json:"id"`
	ChitFundID    uuid.UUID       `json:"chit_fund_id"`
	Month         int             `json:"month"`
	WinnerKey     string          `json:"winner_key"`
	AuctionAmount decimal.Decimal `json:"auction_amount"` // Paid out to the winner
	AuctionDate   time.Time       `json:"auction_date"`
}

// ReportCadence is the bucket width of a period report.
type ReportCadence string

const (
	ReportWeekly  ReportCadence = "weekly"
	ReportMonthly ReportCadence = "monthly"
	ReportYearly  ReportCadence = "yearly"
)

func (c ReportCadence) Valid() bool {
	switch c {
	case ReportWeekly, ReportMonthly, ReportYearly:
		return true
	}
	return false
}

// PeriodSummary is a derived reporting bucket covering [Start, End).
type PeriodSummary struct {
	Label         string          `json:"label"`
	Start         time.Time       `json:"start"`
	End           time.Time       `json:"end"`
	CashInflow    decimal.Decimal `json:"cash_inflow"`
	CashOutflow   decimal.Decimal `json:"cash_outflow"`
	LoanProfit    decimal.Decimal `json:"loan_profit"`
	ChitProfit    decimal.Decimal `json:"chit_profit"`
	Profit        decimal.Decimal `json:"profit"`
	LoanOutside   decimal.Decimal `json:"loan_outside"`
	ChitOutside   decimal.Decimal `json:"chit_outside"`
	OutsideAmount decimal.Decimal `json:"outside_amount"`
	Repayments    int             `json:"repayments"`
	Contributions int             `json:"contributions"`
	Auctions      int             `json:"auctions"`
	Disbursements int             `json:"disbursements"`
	Fallback      bool            `json:"fallback,omitempty"` // Built from live totals
}

// Transactions is the number of dated ledger events attributed to the bucket.
func (p PeriodSummary) Transactions() int {
	return p.Repayments + p.Contributions + p.Auctions + p.Disbursements
}
