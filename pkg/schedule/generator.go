package schedule

import (
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/fundledger/pkg/models"
	"github.com/mcclellann/fundledger/pkg/money"
	"github.com/shopspring/decimal"
)

// InstallmentAmount is the constant amount due each period.
//
// Monthly loans pay an equal share of principal plus the flat interest amount.
// Weekly loans spread the principal over duration-1 periods with no separate
// interest, so the final period is the lender's compensation.
func InstallmentAmount(principal, interest decimal.Decimal, duration int, cadence models.Cadence) decimal.Decimal {
	switch cadence {
	case models.CadenceMonthly:
		if duration < 1 {
			return decimal.Zero
		}
		share := principal.Div(decimal.NewFromInt(int64(duration)))
		return money.Whole(share.Add(interest))
	case models.CadenceWeekly:
		spread := duration - 1
		if spread < 1 {
			spread = 1
		}
		return money.Whole(principal.Div(decimal.NewFromInt(int64(spread))))
	}
	return decimal.Zero
}

// InstallmentForLoan is InstallmentAmount over the loan's own terms.
func InstallmentForLoan(loan *models.Loan) decimal.Decimal {
	return InstallmentAmount(loan.Principal, loan.InterestAmount, loan.Duration, loan.Cadence)
}

// FinalAmountDue is what the last period owes. A monthly loan's last period
// settles whatever principal the rounded earlier installments left over, so the
// schedule always sums to the opening balance plus interest.
func FinalAmountDue(loan *models.Loan) decimal.Decimal {
	installment := InstallmentForLoan(loan)
	if loan.Cadence != models.CadenceMonthly || loan.Duration < 1 {
		return installment
	}
	share := installment.Sub(loan.InterestAmount)
	earlier := share.Mul(decimal.NewFromInt(int64(loan.Duration - 1)))
	return money.NonNegative(loan.Principal.Sub(earlier)).Add(loan.InterestAmount)
}

// OpeningBalance is the remaining balance of a freshly disbursed loan.
// Monthly loans track principal only; weekly loans track the full amount repayable.
func OpeningBalance(loan *models.Loan) decimal.Decimal {
	if loan.Cadence == models.CadenceWeekly {
		return InstallmentForLoan(loan).Mul(decimal.NewFromInt(int64(loan.Duration)))
	}
	return loan.Principal
}

// AddMonths moves t forward n calendar months, clamping to the last day of the
// target month instead of overflowing into the next one.
func AddMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	last := first.AddDate(0, 1, -1).Day()
	if d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// DueDate returns the due date of the given 1-indexed period.
func DueDate(disbursed time.Time, cadence models.Cadence, period int) time.Time {
	if cadence == models.CadenceWeekly {
		return disbursed.AddDate(0, 0, daysPerWeek*period)
	}
	return AddMonths(disbursed, period)
}

// Generate derives one pending entry per period of the loan.
func Generate(loan *models.Loan) []*models.ScheduleEntry {
	if loan.Duration < 1 || !loan.Cadence.Valid() {
		return nil
	}
	amount := InstallmentForLoan(loan)
	entries := make([]*models.ScheduleEntry, 0, loan.Duration)
	for i := 1; i <= loan.Duration; i++ {
		if i == loan.Duration {
			amount = FinalAmountDue(loan)
		}
		entries = append(entries, &models.ScheduleEntry{
			ID:          uuid.New(),
			LoanID:      loan.ID,
			PeriodIndex: i,
			DueDate:     DueDate(loan.DisbursementDate, loan.Cadence, i),
			AmountDue:   amount,
			Status:      models.EntryStatusPending,
		})
	}
	return entries
}
