package schedule

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/fundledger/pkg/models"
	"github.com/shopspring/decimal"
)

// GraceDays is how many whole days past its due date an unpaid entry stays pending.
const GraceDays = 3

var (
	ErrOrphanedLink     = errors.New("schedule entry linked to unknown repayment")
	ErrMismatchedLink   = errors.New("repayment does not point back to its schedule entry")
	ErrDuplicatePeriods = errors.New("duplicate period index in schedule")
)

// DaysPastDue is the number of whole days asOf lies after the entry's due date.
func DaysPastDue(entry *models.ScheduleEntry, asOf time.Time) int {
	return daysBetween(entry.DueDate, asOf)
}

// GraceElapsed reports whether the grace window after the due date is over.
func GraceElapsed(entry *models.ScheduleEntry, asOf time.Time) bool {
	return DaysPastDue(entry, asOf) > GraceDays
}

// StatusAt classifies a single entry. rep is the repayment linked to the entry,
// or nil when none is.
func StatusAt(entry *models.ScheduleEntry, rep *models.Repayment, asOf time.Time) models.EntryStatus {
	if rep != nil {
		switch {
		case rep.Kind == models.RepaymentInterestOnly:
			return models.EntryStatusInterestOnly
		case rep.Kind == models.RepaymentPartial && rep.Amount.LessThan(entry.AmountDue) && GraceElapsed(entry, asOf):
			return models.EntryStatusOverdue
		}
		return models.EntryStatusPaid
	}
	if GraceElapsed(entry, asOf) {
		return models.EntryStatusMissed
	}
	return models.EntryStatusPending
}

// Classify returns copies of entries, ordered by period, with statuses
// recomputed as of asOf. An entry linked to a repayment missing from
// repayments is reported as ErrOrphanedLink.
func Classify(entries []*models.ScheduleEntry, repayments []*models.Repayment, asOf time.Time) ([]*models.ScheduleEntry, error) {
	byID := make(map[uuid.UUID]*models.Repayment, len(repayments))
	for _, r := range repayments {
		byID[r.ID] = r
	}

	seen := make(map[int]bool, len(entries))
	out := make([]*models.ScheduleEntry, 0, len(entries))
	for _, e := range entries {
		if seen[e.PeriodIndex] {
			return nil, fmt.Errorf("%w: loan %s period %d", ErrDuplicatePeriods, e.LoanID, e.PeriodIndex)
		}
		seen[e.PeriodIndex] = true

		c := *e
		var rep *models.Repayment
		if e.RepaymentID != nil {
			r, ok := byID[*e.RepaymentID]
			if !ok {
				return nil, fmt.Errorf("%w: entry %s repayment %s", ErrOrphanedLink, e.ID, *e.RepaymentID)
			}
			if r.ScheduleEntryID == nil || *r.ScheduleEntryID != e.ID {
				return nil, fmt.Errorf("%w: entry %s repayment %s", ErrMismatchedLink, e.ID, r.ID)
			}
			rep = r
		}
		c.Status = StatusAt(&c, rep, asOf)
		out = append(out, &c)
	}
	SortByPeriod(out)
	return out, nil
}

// SortByPeriod orders entries by period index in place.
func SortByPeriod(entries []*models.ScheduleEntry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].PeriodIndex < entries[j].PeriodIndex
	})
}

// NextPending returns the earliest pending entry of a classified schedule, or nil.
func NextPending(classified []*models.ScheduleEntry) *models.ScheduleEntry {
	var next *models.ScheduleEntry
	for _, e := range classified {
		if e.Status != models.EntryStatusPending {
			continue
		}
		if next == nil || e.PeriodIndex < next.PeriodIndex {
			next = e
		}
	}
	return next
}

// DueSoon reports whether a pending entry falls due within days of asOf.
func DueSoon(entry *models.ScheduleEntry, asOf time.Time, days int) bool {
	return entry.Status == models.EntryStatusPending && DaysPastDue(entry, asOf) >= -days
}

// Window filters a classified schedule down to what a "due soon" view shows:
// every entry that is no longer pending plus pending entries due within days.
// The next pending entry is always included.
func Window(classified []*models.ScheduleEntry, asOf time.Time, days int) []*models.ScheduleEntry {
	next := NextPending(classified)
	out := make([]*models.ScheduleEntry, 0, len(classified))
	for _, e := range classified {
		if e.Status != models.EntryStatusPending || DueSoon(e, asOf, days) || e == next {
			out = append(out, e)
		}
	}
	return out
}

// Arrears sums what a classified schedule says is owed late: the full amount of
// missed entries plus the shortfall on overdue partially-paid ones.
func Arrears(classified []*models.ScheduleEntry, repayments []*models.Repayment) (decimal.Decimal, int) {
	byID := make(map[uuid.UUID]*models.Repayment, len(repayments))
	for _, r := range repayments {
		byID[r.ID] = r
	}

	overdue := decimal.Zero
	missed := 0
	for _, e := range classified {
		switch e.Status {
		case models.EntryStatusMissed:
			overdue = overdue.Add(e.AmountDue)
			missed++
		case models.EntryStatusOverdue:
			paid := decimal.Zero
			if e.RepaymentID != nil {
				if r, ok := byID[*e.RepaymentID]; ok {
					paid = r.Amount
				}
			}
			if short := e.AmountDue.Sub(paid); short.IsPositive() {
				overdue = overdue.Add(short)
			}
		}
	}
	return overdue, missed
}
