package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/fundledger/pkg/models"
	"github.com/mcclellann/fundledger/pkg/profit"
	"github.com/mcclellann/fundledger/pkg/schedule"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// NewChitFund holds the terms of a chit fund group.
type NewChitFund struct {
	Name               string
	TotalAmount        decimal.Decimal
	ContributionAmount decimal.Decimal
	Duration           int
	MemberCount        int
	Type               models.ChitFundType
	StartDate          time.Time
}

func (n NewChitFund) validate() error {
	switch {
	case strings.TrimSpace(n.Name) == "":
		return invalid("name", "must not be empty")
	case !n.TotalAmount.IsPositive():
		return invalid("total_amount", "must be positive")
	case !n.ContributionAmount.IsPositive():
		return invalid("contribution_amount", "must be positive")
	case n.Duration < 1:
		return invalid("duration", "must be at least one month")
	case n.MemberCount < 1:
		return invalid("member_count", "must be at least one member")
	case n.Type != models.ChitFundAuction && n.Type != models.ChitFundFixed:
		return invalid("type", "unknown chit fund type %q", n.Type)
	case n.StartDate.IsZero():
		return invalid("start_date", "is required")
	}
	return nil
}

// chitMonth is the fund's running month, counted like a monthly loan period.
func chitMonth(fund *models.ChitFund, now time.Time) int {
	return schedule.CurrentPeriod(fund.StartDate, now, models.CadenceMonthly, fund.Duration)
}

func (l *Ledger) CreateChitFund(req NewChitFund) (*models.ChitFund, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	now := l.now()
	fund := &models.ChitFund{
		ID:                 uuid.New(),
		Name:               strings.TrimSpace(req.Name),
		TotalAmount:        req.TotalAmount,
		ContributionAmount: req.ContributionAmount,
		Duration:           req.Duration,
		MemberCount:        req.MemberCount,
		Type:               req.Type,
		StartDate:          req.StartDate,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	fund.CurrentMonth = chitMonth(fund, now)

	if err := l.storage.CreateChitFund(fund); err != nil {
		return nil, fmt.Errorf("failed to store chit fund: %w", err)
	}
	l.logger.Info("chit fund created",
		zap.String("chit_fund_id", fund.ID.String()),
		zap.String("type", string(fund.Type)),
		zap.Int("members", fund.MemberCount),
	)
	return fund, nil
}

func (l *Ledger) GetChitFund(id uuid.UUID) (*models.ChitFund, error) {
	return l.storage.GetChitFund(id)
}

func (l *Ledger) GetAllChitFunds() ([]*models.ChitFund, error) {
	return l.storage.GetAllChitFunds()
}

func checkMonth(fund *models.ChitFund, month int) error {
	if month < 1 || month > fund.Duration {
		return invalid("month", "must be between 1 and %d", fund.Duration)
	}
	return nil
}

type ContributionRequest struct {
	MemberKey   string
	Month       int
	Amount      decimal.Decimal
	PaidDate    time.Time
	CollectedBy string
}

// RecordContribution records one member's payment into the pot.
func (l *Ledger) RecordContribution(fundID uuid.UUID, req ContributionRequest) (*models.Contribution, error) {
	fund, err := l.storage.GetChitFund(fundID)
	if err != nil {
		return nil, err
	}
	switch {
	case strings.TrimSpace(req.MemberKey) == "":
		return nil, invalid("member_key", "must not be empty")
	case !req.Amount.IsPositive():
		return nil, invalid("amount", "must be positive")
	case req.PaidDate.IsZero():
		return nil, invalid("paid_date", "is required")
	}
	if err := checkMonth(fund, req.Month); err != nil {
		return nil, err
	}

	c := &models.Contribution{
		ID:          uuid.New(),
		ChitFundID:  fund.ID,
		MemberKey:   strings.TrimSpace(req.MemberKey),
		Month:       req.Month,
		Amount:      req.Amount,
		PaidDate:    req.PaidDate,
		CollectedBy: strings.TrimSpace(req.CollectedBy),
	}
	if err := l.storage.CreateContribution(c); err != nil {
		return nil, fmt.Errorf("failed to store contribution: %w", err)
	}
	l.logger.Info("contribution recorded",
		zap.String("chit_fund_id", fund.ID.String()),
		zap.Int("month", c.Month),
		zap.String("amount", c.Amount.String()),
	)
	return c, nil
}

type AuctionRequest struct {
	Month         int
	WinnerKey     string
	AuctionAmount decimal.Decimal
	AuctionDate   time.Time
}

// RecordAuction records the month's payout. Each month pays out at most once.
func (l *Ledger) RecordAuction(fundID uuid.UUID, req AuctionRequest) (*models.Auction, error) {
	fund, err := l.storage.GetChitFund(fundID)
	if err != nil {
		return nil, err
	}
	switch {
	case strings.TrimSpace(req.WinnerKey) == "":
		return nil, invalid("winner_key", "must not be empty")
	case !req.AuctionAmount.IsPositive():
		return nil, invalid("auction_amount", "must be positive")
	case req.AuctionDate.IsZero():
		return nil, invalid("auction_date", "is required")
	}
	if err := checkMonth(fund, req.Month); err != nil {
		return nil, err
	}
	pot := fund.ContributionAmount.Mul(decimal.NewFromInt(int64(fund.MemberCount)))
	if req.AuctionAmount.GreaterThan(pot) {
		return nil, invalid("auction_amount", "exceeds the monthly pot %s", pot)
	}

	a := &models.Auction{
		ID:            uuid.New(),
		ChitFundID:    fund.ID,
		Month:         req.Month,
		WinnerKey:     strings.TrimSpace(req.WinnerKey),
		AuctionAmount: req.AuctionAmount,
		AuctionDate:   req.AuctionDate,
	}
	if err := l.storage.CreateAuction(a); err != nil {
		return nil, asConflict(fmt.Sprintf("month %d already paid out", a.Month), fmt.Errorf("failed to store auction: %w", err))
	}
	l.logger.Info("auction recorded",
		zap.String("chit_fund_id", fund.ID.String()),
		zap.Int("month", a.Month),
		zap.String("amount", a.AuctionAmount.String()),
		zap.String("commission", profit.AuctionCommission(fund, a).String()),
	)
	return a, nil
}

// ChitFundSummary is the derived money picture of one chit fund.
type ChitFundSummary struct {
	Fund               *models.ChitFund `json:"fund"`
	TotalContributions decimal.Decimal  `json:"total_contributions"`
	TotalPayouts       decimal.Decimal  `json:"total_payouts"`
	Profit             decimal.Decimal  `json:"profit"`
	OutsideAmount      decimal.Decimal  `json:"outside_amount"`
	Contributions      int              `json:"contributions"`
	Auctions           int              `json:"auctions"`
}

func (l *Ledger) ChitFundSummary(fundID uuid.UUID) (*ChitFundSummary, error) {
	fund, err := l.storage.GetChitFund(fundID)
	if err != nil {
		return nil, err
	}
	contributions, err := l.storage.GetContributionsForChitFund(fundID)
	if err != nil {
		return nil, fmt.Errorf("failed to load contributions: %w", err)
	}
	auctions, err := l.storage.GetAuctionsForChitFund(fundID)
	if err != nil {
		return nil, fmt.Errorf("failed to load auctions: %w", err)
	}
	fund.CurrentMonth = chitMonth(fund, l.now())

	return &ChitFundSummary{
		Fund:               fund,
		TotalContributions: profit.TotalContributions(contributions),
		TotalPayouts:       profit.TotalPayouts(auctions),
		Profit:             profit.ChitFundProfit(fund, contributions, auctions),
		OutsideAmount:      profit.ChitFundOutsideAmount(contributions, auctions),
		Contributions:      len(contributions),
		Auctions:           len(auctions),
	}, nil
}
