// Package schedule turns loan terms into dated installments and classifies
// them against a given day. Every function takes "now" explicitly.
package schedule

import (
	"time"

	"github.com/mcclellann/fundledger/pkg/models"
)

const daysPerWeek = 7

// DateOnly strips the time of day, keeping the calendar date of t as UTC midnight.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// daysBetween returns the whole calendar days from a to b (negative if b is earlier).
func daysBetween(a, b time.Time) int {
	return int(DateOnly(b).Sub(DateOnly(a)).Hours() / 24)
}

// CurrentPeriod returns the 1-indexed period a loan disbursed on disbursed is in
// as of asOf, or 0 if it has not started. The result is clamped to [1, duration]
// once started.
func CurrentPeriod(disbursed, asOf time.Time, cadence models.Cadence, duration int) int {
	if duration < 1 {
		return 0
	}
	start, now := DateOnly(disbursed), DateOnly(asOf)
	if now.Before(start) {
		return 0
	}

	var period int
	switch cadence {
	case models.CadenceMonthly:
		period = (now.Year()-start.Year())*12 + int(now.Month()-start.Month()) + 1
		// Anniversary not reached yet this month.
		if now.Day() < start.Day() {
			period--
		}
	case models.CadenceWeekly:
		days := daysBetween(start, now)
		period = days / daysPerWeek
		// The anniversary day still belongs to the week just completed.
		if days%daysPerWeek != 0 {
			period++
		}
	default:
		return 0
	}
	return clamp(period, 1, duration)
}

// CurrentPeriodForLoan is CurrentPeriod over the loan's own terms.
func CurrentPeriodForLoan(loan *models.Loan, asOf time.Time) int {
	return CurrentPeriod(loan.DisbursementDate, asOf, loan.Cadence, loan.Duration)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
