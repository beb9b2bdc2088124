package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/mcclellann/fundledger/pkg/models"
	"github.com/mcclellann/fundledger/pkg/report"
	"golang.org/x/sync/errgroup"
)

// AggregatePeriods reports the last count periods of the given cadence ending
// at asOf. It reads without taking loan locks; a repayment landing mid-scan may
// show up in the next report instead of this one.
func (l *Ledger) AggregatePeriods(cadence models.ReportCadence, count int, asOf time.Time) ([]models.PeriodSummary, error) {
	if _, err := report.Buckets(cadence, count, asOf); err != nil {
		switch {
		case errors.Is(err, report.ErrUnknownCadence):
			return nil, invalid("cadence", "unknown report cadence %q", cadence)
		case errors.Is(err, report.ErrInvalidBucketCount):
			return nil, invalid("count", "must be between 1 and %d", report.MaxBuckets)
		}
		return nil, err
	}

	data, err := l.loadDataset()
	if err != nil {
		return nil, err
	}
	return report.Aggregate(data, cadence, count, asOf)
}

// loadDataset reads the loan side and the chit fund side concurrently.
func (l *Ledger) loadDataset() (report.Dataset, error) {
	var data report.Dataset
	var g errgroup.Group

	g.Go(func() error {
		loans, err := l.storage.GetAllLoans()
		if err != nil {
			return fmt.Errorf("failed to list loans: %w", err)
		}
		data.Loans = make([]report.LoanHistory, 0, len(loans))
		for _, loan := range loans {
			reps, err := l.storage.GetRepaymentsForLoan(loan.ID)
			if err != nil {
				return fmt.Errorf("failed to load repayments for loan %s: %w", loan.ID, err)
			}
			data.Loans = append(data.Loans, report.LoanHistory{Loan: loan, Repayments: reps})
		}
		return nil
	})

	g.Go(func() error {
		funds, err := l.storage.GetAllChitFunds()
		if err != nil {
			return fmt.Errorf("failed to list chit funds: %w", err)
		}
		data.ChitFunds = make([]report.ChitFundHistory, 0, len(funds))
		for _, fund := range funds {
			contributions, err := l.storage.GetContributionsForChitFund(fund.ID)
			if err != nil {
				return fmt.Errorf("failed to load contributions for chit fund %s: %w", fund.ID, err)
			}
			auctions, err := l.storage.GetAuctionsForChitFund(fund.ID)
			if err != nil {
				return fmt.Errorf("failed to load auctions for chit fund %s: %w", fund.ID, err)
			}
			data.ChitFunds = append(data.ChitFunds, report.ChitFundHistory{
				Fund:          fund,
				Contributions: contributions,
				Auctions:      auctions,
			})
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return report.Dataset{}, err
	}
	return data, nil
}
