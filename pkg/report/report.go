// Package report buckets loan and chit fund history into trailing calendar
// periods for the dashboard.
package report

import (
	"errors"
	"fmt"
	"time"

	"github.com/mcclellann/fundledger/pkg/models"
	"github.com/mcclellann/fundledger/pkg/profit"
	"github.com/shopspring/decimal"
)

// MaxBuckets caps how far back a single report may reach.
const MaxBuckets = 520

// FallbackLabel marks the synthetic bucket built from live totals.
const FallbackLabel = "current"

var (
	ErrUnknownCadence     = errors.New("unknown report cadence")
	ErrInvalidBucketCount = errors.New("bucket count out of range")
)

type LoanHistory struct {
	Loan       *models.Loan
	Repayments []*models.Repayment
}

type ChitFundHistory struct {
	Fund          *models.ChitFund
	Contributions []*models.Contribution
	Auctions      []*models.Auction
}

// Dataset is everything a report reads.
type Dataset struct {
	Loans     []LoanHistory
	ChitFunds []ChitFundHistory
}

// Bucket is a half-open reporting interval [Start, End).
type Bucket struct {
	Label string
	Start time.Time
	End   time.Time
}

func (b Bucket) contains(t time.Time) bool {
	return !t.Before(b.Start) && t.Before(b.End)
}

// PeriodStart returns the start of the calendar period containing t.
// Weeks start on Monday.
func PeriodStart(cadence models.ReportCadence, t time.Time) time.Time {
	y, m, d := t.Date()
	switch cadence {
	case models.ReportWeekly:
		midnight := time.Date(y, m, d, 0, 0, 0, 0, t.Location())
		offset := (int(midnight.Weekday()) + 6) % 7
		return midnight.AddDate(0, 0, -offset)
	case models.ReportYearly:
		return time.Date(y, time.January, 1, 0, 0, 0, 0, t.Location())
	default:
		return time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
	}
}

func advance(cadence models.ReportCadence, t time.Time, n int) time.Time {
	switch cadence {
	case models.ReportWeekly:
		return t.AddDate(0, 0, 7*n)
	case models.ReportYearly:
		return t.AddDate(n, 0, 0)
	default:
		return t.AddDate(0, n, 0)
	}
}

func label(cadence models.ReportCadence, start time.Time) string {
	switch cadence {
	case models.ReportWeekly:
		y, w := start.ISOWeek()
		return fmt.Sprintf("%d-W%02d", y, w)
	case models.ReportYearly:
		return start.Format("2006")
	default:
		return start.Format("2006-01")
	}
}

// Buckets returns count contiguous periods of the given cadence, oldest first,
// the last one containing asOf.
func Buckets(cadence models.ReportCadence, count int, asOf time.Time) ([]Bucket, error) {
	if !cadence.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCadence, cadence)
	}
	if count < 1 || count > MaxBuckets {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBucketCount, count)
	}

	current := PeriodStart(cadence, asOf)
	buckets := make([]Bucket, count)
	for i := 0; i < count; i++ {
		start := advance(cadence, current, i-count+1)
		buckets[i] = Bucket{
			Label: label(cadence, start),
			Start: start,
			End:   advance(cadence, start, 1),
		}
	}
	return buckets, nil
}

// Aggregate sums the dataset into trailing buckets. Cash flows and counts are
// attributed by event date; profit is the growth of cumulative profit across
// the bucket; outside amounts are snapshots at the bucket end.
//
// When no bucket saw any activity, a single live-totals bucket is returned
// instead (see LiveTotals).
func Aggregate(data Dataset, cadence models.ReportCadence, count int, asOf time.Time) ([]models.PeriodSummary, error) {
	buckets, err := Buckets(cadence, count, asOf)
	if err != nil {
		return nil, err
	}

	summaries := make([]models.PeriodSummary, len(buckets))
	empty := true
	for i, b := range buckets {
		s := summarize(data, b)
		if !isEmpty(s) {
			empty = false
		}
		summaries[i] = s
	}

	if empty {
		return []models.PeriodSummary{LiveTotals(data, cadence, asOf)}, nil
	}
	return summaries, nil
}

func summarize(data Dataset, b Bucket) models.PeriodSummary {
	s := newSummary(b.Label, b.Start, b.End)

	for _, h := range data.Loans {
		if b.contains(h.Loan.DisbursementDate) {
			s.CashOutflow = s.CashOutflow.Add(h.Loan.Principal)
			s.Disbursements++
		}
		for _, r := range h.Repayments {
			if b.contains(r.PaidDate) {
				s.CashInflow = s.CashInflow.Add(r.Amount)
				s.Repayments++
			}
		}
		earned := profit.LoanProfitAt(h.Loan, h.Repayments, b.End).Sub(profit.LoanProfitAt(h.Loan, h.Repayments, b.Start))
		s.LoanProfit = s.LoanProfit.Add(earned)
		s.LoanOutside = s.LoanOutside.Add(profit.LoanOutsideAmountAt(h.Loan, h.Repayments, b.End))
	}

	for _, h := range data.ChitFunds {
		for _, c := range h.Contributions {
			if b.contains(c.PaidDate) {
				s.CashInflow = s.CashInflow.Add(c.Amount)
				s.Contributions++
			}
		}
		for _, a := range h.Auctions {
			if b.contains(a.AuctionDate) {
				s.CashOutflow = s.CashOutflow.Add(a.AuctionAmount)
				s.Auctions++
			}
		}
		s.ChitProfit = s.ChitProfit.Add(chitProfitIn(h, b))
		s.ChitOutside = s.ChitOutside.Add(profit.ChitFundOutsideAmountAt(h.Contributions, h.Auctions, b.End))
	}

	s.Profit = s.LoanProfit.Add(s.ChitProfit)
	s.OutsideAmount = s.LoanOutside.Add(s.ChitOutside)
	return s
}

// chitProfitIn attributes each auction's commission to the bucket holding the
// auction date. Until a fund holds its first auction, its contribution surplus
// is earned as the contributions arrive.
func chitProfitIn(h ChitFundHistory, b Bucket) decimal.Decimal {
	if len(h.Auctions) == 0 {
		return profit.ChitFundProfitAt(h.Fund, h.Contributions, nil, b.End).
			Sub(profit.ChitFundProfitAt(h.Fund, h.Contributions, nil, b.Start))
	}
	earned := decimal.Zero
	for _, a := range h.Auctions {
		if b.contains(a.AuctionDate) {
			earned = earned.Add(profit.AuctionCommission(h.Fund, a))
		}
	}
	return earned
}

// LiveTotals builds the synthetic current-period bucket from instantaneous
// totals over the whole dataset, regardless of event dates.
func LiveTotals(data Dataset, cadence models.ReportCadence, asOf time.Time) models.PeriodSummary {
	s := newSummary(FallbackLabel, PeriodStart(cadence, asOf), asOf)
	s.Fallback = true

	for _, h := range data.Loans {
		s.CashOutflow = s.CashOutflow.Add(h.Loan.Principal)
		s.Disbursements++
		s.CashInflow = s.CashInflow.Add(profit.TotalRepaid(h.Repayments))
		s.Repayments += len(h.Repayments)
		s.LoanProfit = s.LoanProfit.Add(profit.LoanProfit(h.Loan, h.Repayments))
		s.LoanOutside = s.LoanOutside.Add(profit.LoanOutsideAmount(h.Loan))
	}
	for _, h := range data.ChitFunds {
		s.CashInflow = s.CashInflow.Add(profit.TotalContributions(h.Contributions))
		s.Contributions += len(h.Contributions)
		s.CashOutflow = s.CashOutflow.Add(profit.TotalPayouts(h.Auctions))
		s.Auctions += len(h.Auctions)
		s.ChitProfit = s.ChitProfit.Add(profit.ChitFundProfit(h.Fund, h.Contributions, h.Auctions))
		s.ChitOutside = s.ChitOutside.Add(profit.ChitFundOutsideAmount(h.Contributions, h.Auctions))
	}

	s.Profit = s.LoanProfit.Add(s.ChitProfit)
	s.OutsideAmount = s.LoanOutside.Add(s.ChitOutside)
	return s
}

func newSummary(label string, start, end time.Time) models.PeriodSummary {
	return models.PeriodSummary{
		Label:         label,
		Start:         start,
		End:           end,
		CashInflow:    decimal.Zero,
		CashOutflow:   decimal.Zero,
		LoanProfit:    decimal.Zero,
		ChitProfit:    decimal.Zero,
		Profit:        decimal.Zero,
		LoanOutside:   decimal.Zero,
		ChitOutside:   decimal.Zero,
		OutsideAmount: decimal.Zero,
	}
}

// isEmpty reports a bucket with no activity. The outside amount is a standing
// snapshot, not activity, so it does not keep a bucket alive on its own.
func isEmpty(s models.PeriodSummary) bool {
	return s.Transactions() == 0 &&
		s.CashInflow.IsZero() &&
		s.CashOutflow.IsZero() &&
		s.Profit.IsZero()
}
