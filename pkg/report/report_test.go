package report

import (
	"errors"
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

func TestBuckets_MonthlyContiguous(t *testing.T) {
	asOf := time.Date(2025, time.June, 18, 14, 30, 0, 0, time.UTC)
	buckets, err := Buckets(models.ReportMonthly, 12, asOf)
	if err != nil {
		t.Fatalf("Failed to build buckets: %v", err)
	}
	if len(buckets) != 12 {
		t.Fatalf("Expected 12 buckets, got %d", len(buckets))
	}
	for i := 1; i < len(buckets); i++ {
		if !buckets[i-1].End.Equal(buckets[i].Start) {
			t.Errorf("Bucket %d does not start where bucket %d ends", i, i-1)
		}
		if !buckets[i-1].Start.Before(buckets[i].Start) {
			t.Errorf("Buckets not in ascending order at %d", i)
		}
	}
	last := buckets[11]
	if !last.contains(asOf) {
		t.Errorf("Expected last bucket %s to contain asOf", last.Label)
	}
	if buckets[0].Label != "2024-07" || last.Label != "2025-06" {
		t.Errorf("Unexpected labels %s .. %s", buckets[0].Label, last.Label)
	}
}

func TestBuckets_WeeklyAndYearly(t *testing.T) {
	asOf := day(2025, time.June, 18) // Wednesday
	weeks, err := Buckets(models.ReportWeekly, 4, asOf)
	if err != nil {
		t.Fatalf("Failed to build weekly buckets: %v", err)
	}
	if !weeks[3].Start.Equal(day(2025, time.June, 16)) {
		t.Errorf("Expected current week to start Monday 2025-06-16, got %s", weeks[3].Start)
	}
	if !weeks[0].Start.Equal(day(2025, time.May, 26)) {
		t.Errorf("Expected first week 2025-05-26, got %s", weeks[0].Start)
	}
	if weeks[3].Label != "2025-W25" {
		t.Errorf("Expected label 2025-W25, got %s", weeks[3].Label)
	}

	years, err := Buckets(models.ReportYearly, 3, asOf)
	if err != nil {
		t.Fatalf("Failed to build yearly buckets: %v", err)
	}
	if years[0].Label != "2023" || !years[2].End.Equal(day(2026, time.January, 1)) {
		t.Errorf("Unexpected yearly buckets %+v", years)
	}
}

func TestBuckets_Invalid(t *testing.T) {
	if _, err := Buckets("daily", 3, day(2025, 1, 1)); !errors.Is(err, ErrUnknownCadence) {
		t.Errorf("Expected ErrUnknownCadence, got %v", err)
	}
	if _, err := Buckets(models.ReportMonthly, 0, day(2025, 1, 1)); !errors.Is(err, ErrInvalidBucketCount) {
		t.Errorf("Expected ErrInvalidBucketCount, got %v", err)
	}
}

func sampleDataset() Dataset {
	loan := &models.Loan{
		ID:               uuid.New(),
		Principal:        d(40000),
		InterestAmount:   d(800),
		Duration:         10,
		Cadence:          models.CadenceMonthly,
		DisbursementDate: day(2025, time.January, 15),
		RemainingBalance: d(32000),
	}
	reps := []*models.Repayment{
		{ID: uuid.New(), Amount: d(4800), PrincipalApplied: d(4000), Kind: models.RepaymentRegular, PaidDate: day(2025, time.February, 15)},
		{ID: uuid.New(), Amount: d(4800), PrincipalApplied: d(4000), Kind: models.RepaymentRegular, PaidDate: day(2025, time.March, 15)},
	}
	fund := &models.ChitFund{
		ID:                 uuid.New(),
		ContributionAmount: d(5000),
		MemberCount:        10,
		Duration:           10,
		Type:               models.ChitFundAuction,
		StartDate:          day(2025, time.February, 1),
	}
	contributions := []*models.Contribution{
		{ID: uuid.New(), Amount: d(50000), PaidDate: day(2025, time.February, 3)},
		{ID: uuid.New(), Amount: d(50000), PaidDate: day(2025, time.March, 3)},
	}
	auctions := []*models.Auction{
		{ID: uuid.New(), AuctionAmount: d(45000), AuctionDate: day(2025, time.February, 10)},
	}
	return Dataset{
		Loans:     []LoanHistory{{Loan: loan, Repayments: reps}},
		ChitFunds: []ChitFundHistory{{Fund: fund, Contributions: contributions, Auctions: auctions}},
	}
}

func TestAggregate_Monthly(t *testing.T) {
	summaries, err := Aggregate(sampleDataset(), models.ReportMonthly, 4, day(2025, time.March, 20))
	if err != nil {
		t.Fatalf("Failed to aggregate: %v", err)
	}
	if len(summaries) != 4 {
		t.Fatalf("Expected 4 summaries, got %d", len(summaries))
	}

	dec, jan, feb, mar := summaries[0], summaries[1], summaries[2], summaries[3]
	if dec.Transactions() != 0 || !dec.OutsideAmount.IsZero() {
		t.Errorf("Expected empty December bucket, got %+v", dec)
	}

	if !jan.CashOutflow.Equal(d(40000)) || jan.Disbursements != 1 {
		t.Errorf("Expected January disbursement of 40000, got %s (%d)", jan.CashOutflow, jan.Disbursements)
	}
	if !jan.OutsideAmount.Equal(d(40000)) {
		t.Errorf("Expected January outside amount 40000, got %s", jan.OutsideAmount)
	}

	if !feb.CashInflow.Equal(d(54800)) {
		t.Errorf("Expected February inflow 54800, got %s", feb.CashInflow)
	}
	if !feb.CashOutflow.Equal(d(45000)) {
		t.Errorf("Expected February outflow 45000, got %s", feb.CashOutflow)
	}
	if !feb.LoanProfit.Equal(d(800)) || !feb.ChitProfit.Equal(d(5000)) || !feb.Profit.Equal(d(5800)) {
		t.Errorf("Unexpected February profit loan=%s chit=%s total=%s", feb.LoanProfit, feb.ChitProfit, feb.Profit)
	}
	if !feb.LoanOutside.Equal(d(36000)) || !feb.ChitOutside.IsZero() {
		t.Errorf("Unexpected February outside loan=%s chit=%s", feb.LoanOutside, feb.ChitOutside)
	}

	if !mar.CashInflow.Equal(d(54800)) || mar.Repayments != 1 || mar.Contributions != 1 {
		t.Errorf("Unexpected March flows %s (%d repayments, %d contributions)", mar.CashInflow, mar.Repayments, mar.Contributions)
	}
	if !mar.LoanProfit.Equal(d(800)) || !mar.ChitProfit.IsZero() {
		t.Errorf("Unexpected March profit loan=%s chit=%s", mar.LoanProfit, mar.ChitProfit)
	}
	if !mar.OutsideAmount.Equal(d(32000)) {
		t.Errorf("Expected March outside 32000, got %s", mar.OutsideAmount)
	}
}

func TestAggregate_FallsBackToLiveTotals(t *testing.T) {
	asOf := day(2026, time.October, 19)
	// All history predates the three trailing weeks.
	summaries, err := Aggregate(sampleDataset(), models.ReportWeekly, 3, asOf)
	if err != nil {
		t.Fatalf("Failed to aggregate: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("Expected a single fallback bucket, got %d", len(summaries))
	}
	s := summaries[0]
	if !s.Fallback || s.Label != FallbackLabel {
		t.Errorf("Expected fallback bucket, got %+v", s)
	}
	if !s.End.Equal(asOf) || !s.Start.Equal(day(2026, time.October, 19)) {
		t.Errorf("Unexpected fallback range %s - %s", s.Start, s.End)
	}
	if !s.CashInflow.Equal(d(109600)) {
		t.Errorf("Expected live inflow 109600, got %s", s.CashInflow)
	}
	if !s.CashOutflow.Equal(d(85000)) {
		t.Errorf("Expected live outflow 85000, got %s", s.CashOutflow)
	}
	if !s.Profit.Equal(d(6600)) {
		t.Errorf("Expected live profit 6600, got %s", s.Profit)
	}
	if !s.OutsideAmount.Equal(d(32000)) {
		t.Errorf("Expected live outside 32000, got %s", s.OutsideAmount)
	}
}

func TestAggregate_EmptyDataset(t *testing.T) {
	summaries, err := Aggregate(Dataset{}, models.ReportMonthly, 12, day(2025, time.June, 1))
	if err != nil {
		t.Fatalf("Failed to aggregate: %v", err)
	}
	if len(summaries) != 1 || !summaries[0].Fallback {
		t.Fatalf("Expected single fallback bucket, got %d", len(summaries))
	}
	if !summaries[0].Profit.IsZero() || summaries[0].Transactions() != 0 {
		t.Errorf("Expected zero live totals, got %+v", summaries[0])
	}
}

func TestAggregate_ChitProfitFollowsAuctions(t *testing.T) {
	fund := &models.ChitFund{
		ID:                 uuid.New(),
		ContributionAmount: d(1000),
		MemberCount:        10,
		Duration:           10,
		Type:               models.ChitFundAuction,
		StartDate:          day(2025, time.January, 1),
	}
	var contributions []*models.Contribution
	for i := 0; i < 10; i++ {
		contributions = append(contributions, &models.Contribution{ID: uuid.New(), Amount: d(1000), PaidDate: day(2025, time.January, 5)})
	}
	history := ChitFundHistory{Fund: fund, Contributions: contributions}

	summaries, err := Aggregate(Dataset{ChitFunds: []ChitFundHistory{history}}, models.ReportMonthly, 2, day(2025, time.February, 20))
	if err != nil {
		t.Fatalf("Failed to aggregate: %v", err)
	}
	if !summaries[0].ChitProfit.Equal(d(10000)) {
		t.Errorf("Expected January surplus 10000 before any auction, got %s", summaries[0].ChitProfit)
	}

	history.Auctions = []*models.Auction{{ID: uuid.New(), Month: 2, AuctionAmount: d(9000), AuctionDate: day(2025, time.February, 10)}}
	summaries, err = Aggregate(Dataset{ChitFunds: []ChitFundHistory{history}}, models.ReportMonthly, 2, day(2025, time.February, 20))
	if err != nil {
		t.Fatalf("Failed to aggregate: %v", err)
	}
	jan, feb := summaries[0], summaries[1]
	if !jan.ChitProfit.IsZero() {
		t.Errorf("Expected no January chit profit, got %s", jan.ChitProfit)
	}
	if !feb.ChitProfit.Equal(d(1000)) {
		t.Errorf("Expected February commission 1000, got %s", feb.ChitProfit)
	}
	if !feb.ChitOutside.IsZero() || !feb.CashOutflow.Equal(d(9000)) {
		t.Errorf("Unexpected February outside %s outflow %s", feb.ChitOutside, feb.CashOutflow)
	}
}
