package profit

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/fundledger/pkg/models"
	"github.com/shopspring/decimal"
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func day(y int, m time.Month, dd int) time.Time {
	return time.Date(y, m, dd, 0, 0, 0, 0, time.UTC)
}

func monthlyLoan() *models.Loan {
	return &models.Loan{
		ID:               uuid.New(),
		Principal:        d(40000),
		InterestAmount:   d(800),
		Duration:         10,
		Cadence:          models.CadenceMonthly,
		DisbursementDate: day(2025, time.January, 15),
		RemainingBalance: d(40000),
	}
}

func repayment(kind models.RepaymentKind, amount, principal int64, paid time.Time) *models.Repayment {
	return &models.Repayment{ID: uuid.New(), Kind: kind, Amount: d(amount), PrincipalApplied: d(principal), PaidDate: paid}
}

func TestLoanProfit_MonthlyMixedKinds(t *testing.T) {
	loan := monthlyLoan()
	reps := []*models.Repayment{
		repayment(models.RepaymentInterestOnly, 800, 0, day(2025, time.February, 15)),
		repayment(models.RepaymentRegular, 4800, 4000, day(2025, time.March, 15)),
	}
	if got := LoanProfit(loan, reps); !got.Equal(d(1600)) {
		t.Errorf("Expected profit 1600, got %s", got)
	}
}

func TestLoanProfit_MonthlyAllInterestOnly(t *testing.T) {
	loan := monthlyLoan()
	loan.DocumentCharge = d(500)
	reps := []*models.Repayment{
		repayment(models.RepaymentInterestOnly, 800, 0, day(2025, time.February, 15)),
		repayment(models.RepaymentInterestOnly, 800, 0, day(2025, time.March, 15)),
		repayment(models.RepaymentInterestOnly, 800, 0, day(2025, time.April, 15)),
	}
	if got := LoanProfit(loan, reps); !got.Equal(d(2900)) {
		t.Errorf("Expected profit 2900, got %s", got)
	}
}

func TestLoanProfit_NoHistory(t *testing.T) {
	loan := monthlyLoan()
	if got := LoanProfit(loan, nil); !got.IsZero() {
		t.Errorf("Expected zero profit with no history and no document charge, got %s", got)
	}
}

func TestLoanProfit_Weekly(t *testing.T) {
	loan := &models.Loan{Principal: d(10000), Duration: 11, Cadence: models.CadenceWeekly}

	var reps []*models.Repayment
	for i := 0; i < 10; i++ {
		reps = append(reps, repayment(models.RepaymentRegular, 1000, 1000, day(2025, time.March, 1+i)))
	}
	if got := LoanProfit(loan, reps); !got.IsZero() {
		t.Errorf("Expected no profit until principal is recovered, got %s", got)
	}

	reps = append(reps, repayment(models.RepaymentRegular, 1000, 1000, day(2025, time.March, 20)))
	if got := LoanProfit(loan, reps); !got.Equal(d(1000)) {
		t.Errorf("Expected profit 1000, got %s", got)
	}
}

func TestPrincipalPortion(t *testing.T) {
	loan := monthlyLoan()
	cases := []struct {
		kind   models.RepaymentKind
		amount int64
		want   int64
	}{
		{models.RepaymentRegular, 4800, 4000},
		{models.RepaymentRegular, 500, 0},
		{models.RepaymentInterestOnly, 800, 0},
		{models.RepaymentPartial, 2000, 1200},
		{models.RepaymentPartial, 600, 0},
	}
	for _, c := range cases {
		if got := PrincipalPortion(loan, c.kind, d(c.amount)); !got.Equal(d(c.want)) {
			t.Errorf("%s %d: expected %d, got %s", c.kind, c.amount, c.want, got)
		}
	}

	weekly := &models.Loan{Cadence: models.CadenceWeekly, InterestAmount: d(100)}
	if got := PrincipalPortion(weekly, models.RepaymentRegular, d(1000)); !got.Equal(d(1000)) {
		t.Errorf("Expected weekly regular repayment to apply in full, got %s", got)
	}
}

func TestLoanOutsideAmountAt(t *testing.T) {
	loan := monthlyLoan()
	reps := []*models.Repayment{
		repayment(models.RepaymentRegular, 4800, 4000, day(2025, time.February, 15)),
		repayment(models.RepaymentRegular, 4800, 4000, day(2025, time.March, 15)),
		repayment(models.RepaymentRegular, 4800, 4000, day(2025, time.April, 15)),
	}
	cases := []struct {
		at   time.Time
		want int64
	}{
		{day(2025, time.January, 1), 0},
		{day(2025, time.February, 1), 40000},
		{day(2025, time.March, 15), 36000},
		{day(2025, time.May, 1), 28000},
	}
	for _, c := range cases {
		if got := LoanOutsideAmountAt(loan, reps, c.at); !got.Equal(d(c.want)) {
			t.Errorf("At %s: expected %d, got %s", c.at.Format(time.DateOnly), c.want, got)
		}
	}

	loan.RemainingBalance = d(28000)
	if got := LoanOutsideAmount(loan); !got.Equal(d(28000)) {
		t.Errorf("Expected live outside amount 28000, got %s", got)
	}
}

func chitFund() *models.ChitFund {
	return &models.ChitFund{
		ID:                 uuid.New(),
		TotalAmount:        d(100000),
		ContributionAmount: d(5000),
		Duration:           20,
		MemberCount:        20,
		Type:               models.ChitFundAuction,
	}
}

func TestChitFundProfit_Commission(t *testing.T) {
	fund := chitFund()
	auctions := []*models.Auction{
		{AuctionAmount: d(90000)},
		{AuctionAmount: d(95000)},
		{AuctionAmount: d(101000)},
	}
	if got := ChitFundProfit(fund, nil, auctions); !got.Equal(d(15000)) {
		t.Errorf("Expected commission 15000, got %s", got)
	}
}

func TestChitFundProfit_FallbackToSurplus(t *testing.T) {
	fund := chitFund()
	contributions := []*models.Contribution{{Amount: d(50000)}, {Amount: d(50000)}, {Amount: d(10000)}}
	auctions := []*models.Auction{{AuctionAmount: d(100000)}}
	if got := ChitFundProfit(fund, contributions, auctions); !got.Equal(d(10000)) {
		t.Errorf("Expected surplus profit 10000, got %s", got)
	}
	if got := ChitFundProfit(fund, contributions, nil); !got.Equal(d(110000)) {
		t.Errorf("Expected surplus profit 110000 with no auctions, got %s", got)
	}
	if got := ChitFundProfit(fund, nil, nil); !got.IsZero() {
		t.Errorf("Expected zero profit with no history, got %s", got)
	}
}

func TestChitFundOutsideAmount(t *testing.T) {
	contributions := []*models.Contribution{
		{Amount: d(40000), PaidDate: day(2025, time.January, 5)},
		{Amount: d(40000), PaidDate: day(2025, time.February, 5)},
	}
	auctions := []*models.Auction{{AuctionAmount: d(95000), AuctionDate: day(2025, time.January, 10)}}

	if got := ChitFundOutsideAmount(contributions, auctions); !got.Equal(d(15000)) {
		t.Errorf("Expected outside amount 15000, got %s", got)
	}
	if got := ChitFundOutsideAmountAt(contributions, auctions, day(2025, time.February, 1)); !got.Equal(d(55000)) {
		t.Errorf("Expected outside amount 55000 at Feb 1, got %s", got)
	}
	if got := ChitFundOutsideAmount(contributions, nil); !got.IsZero() {
		t.Errorf("Expected zero outside amount with no payouts, got %s", got)
	}
}
