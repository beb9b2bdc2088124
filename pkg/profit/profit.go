// Package profit derives profit and outside amounts from ledger history.
// Nothing here is stored; callers recompute from repayments, contributions and
// auctions whenever they need a figure.
package profit

import (
	"time"

	"github.com/mcclellann/fundledger/pkg/models"
	"github.com/mcclellann/fundledger/pkg/money"
	"github.com/mcclellann/fundledger/pkg/schedule"
	"github.com/shopspring/decimal"
)

// PrincipalPortion is the part of a repayment that comes off the remaining balance.
// Every monthly repayment books one unit of interest as profit, so the interest
// is taken out of Partial repayments as well as Regular ones.
func PrincipalPortion(loan *models.Loan, kind models.RepaymentKind, amount decimal.Decimal) decimal.Decimal {
	if kind == models.RepaymentInterestOnly {
		return decimal.Zero
	}
	if loan.Cadence == models.CadenceMonthly {
		return money.NonNegative(amount.Sub(loan.InterestAmount))
	}
	return amount
}

// LoanProfit returns the profit realised on a loan by the given repayments.
//
// Monthly loans earn the flat interest once per repayment, whatever its kind,
// plus the document charge. Weekly loans only turn a profit once collections
// exceed the principal.
func LoanProfit(loan *models.Loan, repayments []*models.Repayment) decimal.Decimal {
	if loan.Cadence == models.CadenceWeekly {
		collected := decimal.Zero
		for _, r := range repayments {
			if r.Kind == models.RepaymentInterestOnly {
				continue
			}
			collected = collected.Add(r.Amount)
		}
		return money.NonNegative(collected.Sub(loan.Principal))
	}

	count := decimal.NewFromInt(int64(len(repayments)))
	return loan.InterestAmount.Mul(count).Add(loan.DocumentCharge)
}

// LoanProfitAt is LoanProfit over the history dated before at. A loan not yet
// disbursed by then has earned nothing.
func LoanProfitAt(loan *models.Loan, repayments []*models.Repayment, at time.Time) decimal.Decimal {
	if !loan.DisbursementDate.Before(at) {
		return decimal.Zero
	}
	return LoanProfit(loan, RepaymentsBefore(repayments, at))
}

// LoanOutsideAmount is what the borrower still owes right now.
func LoanOutsideAmount(loan *models.Loan) decimal.Decimal {
	return money.NonNegative(loan.RemainingBalance)
}

// LoanOutsideAmountAt reconstructs the remaining balance as it stood at the
// instant at, from the opening balance and the repayments dated before it.
func LoanOutsideAmountAt(loan *models.Loan, repayments []*models.Repayment, at time.Time) decimal.Decimal {
	if !loan.DisbursementDate.Before(at) {
		return decimal.Zero
	}
	balance := schedule.OpeningBalance(loan)
	for _, r := range RepaymentsBefore(repayments, at) {
		balance = balance.Sub(r.PrincipalApplied)
	}
	return money.NonNegative(balance)
}

// AuctionCommission is the amount the fund keeps when a member bids below the pot.
func AuctionCommission(fund *models.ChitFund, auction *models.Auction) decimal.Decimal {
	pot := fund.ContributionAmount.Mul(decimal.NewFromInt(int64(fund.MemberCount)))
	return money.NonNegative(pot.Sub(auction.AuctionAmount))
}

// ChitFundProfit sums the auction commissions. When that yields nothing but
// contributions still exceed payouts, the surplus is the profit.
func ChitFundProfit(fund *models.ChitFund, contributions []*models.Contribution, auctions []*models.Auction) decimal.Decimal {
	commission := decimal.Zero
	for _, a := range auctions {
		commission = commission.Add(AuctionCommission(fund, a))
	}
	if commission.IsZero() {
		surplus := TotalContributions(contributions).Sub(TotalPayouts(auctions))
		if surplus.IsPositive() {
			return surplus
		}
	}
	return commission
}

// ChitFundProfitAt is ChitFundProfit over the history dated before at.
func ChitFundProfitAt(fund *models.ChitFund, contributions []*models.Contribution, auctions []*models.Auction, at time.Time) decimal.Decimal {
	return ChitFundProfit(fund, ContributionsBefore(contributions, at), AuctionsBefore(auctions, at))
}

// ChitFundOutsideAmount is the capital paid out to members that contributions
// have not yet recovered.
func ChitFundOutsideAmount(contributions []*models.Contribution, auctions []*models.Auction) decimal.Decimal {
	return money.NonNegative(TotalPayouts(auctions).Sub(TotalContributions(contributions)))
}

// ChitFundOutsideAmountAt is ChitFundOutsideAmount over the history dated before at.
func ChitFundOutsideAmountAt(contributions []*models.Contribution, auctions []*models.Auction, at time.Time) decimal.Decimal {
	return ChitFundOutsideAmount(ContributionsBefore(contributions, at), AuctionsBefore(auctions, at))
}

func TotalContributions(contributions []*models.Contribution) decimal.Decimal {
	total := decimal.Zero
	for _, c := range contributions {
		total = total.Add(c.Amount)
	}
	return total
}

func TotalPayouts(auctions []*models.Auction) decimal.Decimal {
	total := decimal.Zero
	for _, a := range auctions {
		total = total.Add(a.AuctionAmount)
	}
	return total
}

func TotalRepaid(repayments []*models.Repayment) decimal.Decimal {
	total := decimal.Zero
	for _, r := range repayments {
		total = total.Add(r.Amount)
	}
	return total
}

func RepaymentsBefore(repayments []*models.Repayment, at time.Time) []*models.Repayment {
	out := make([]*models.Repayment, 0, len(repayments))
	for _, r := range repayments {
		if r.PaidDate.Before(at) {
			out = append(out, r)
		}
	}
	return out
}

func ContributionsBefore(contributions []*models.Contribution, at time.Time) []*models.Contribution {
	out := make([]*models.Contribution, 0, len(contributions))
	for _, c := range contributions {
		if c.PaidDate.Before(at) {
			out = append(out, c)
		}
	}
	return out
}

func AuctionsBefore(auctions []*models.Auction, at time.Time) []*models.Auction {
	out := make([]*models.Auction, 0, len(auctions))
	for _, a := range auctions {
		if a.AuctionDate.Before(at) {
			out = append(out, a)
		}
	}
	return out
}
