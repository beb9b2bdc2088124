package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/mcclellann/fundledger/pkg/config"
	"github.com/mcclellann/fundledger/pkg/ledger"
	"github.com/mcclellann/fundledger/pkg/models"
	"github.com/mcclellann/fundledger/pkg/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

// Server holds the ledger instance.
type Server struct {
	ledger        *ledger.Ledger
	storage       store.Storage // Keep a reference to the storage to close it
	logger        *zap.Logger
	loc           *time.Location
	reportBuckets int
}

func NewServer(s store.Storage, logger *zap.Logger, cfg config.Config, opts ...ledger.Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	loc := cfg.Location()
	base := []ledger.Option{
		ledger.WithClock(func() time.Time { return time.Now().In(loc) }),
		ledger.WithDefaultThreshold(cfg.DefaultAfterMissed),
	}
	return &Server{
		ledger:        ledger.NewLedger(s, logger, append(base, opts...)...),
		storage:       s,
		logger:        logger,
		loc:           loc,
		reportBuckets: cfg.ReportBuckets,
	}
}

// Routes registers every endpoint on router.
func (s *Server) Routes(router *mux.Router) {
	router.HandleFunc("/loans", s.listLoansHandler).Methods("GET")
	router.HandleFunc("/loans", s.createLoanHandler).Methods("POST")
	router.HandleFunc("/loans/{id}", s.getLoanHandler).Methods("GET")
	router.HandleFunc("/loans/{id}", s.deleteLoanHandler).Methods("DELETE")
	router.HandleFunc("/loans/{id}/schedule", s.getScheduleHandler).Methods("GET")
	router.HandleFunc("/loans/{id}/schedule", s.generateScheduleHandler).Methods("POST")
	router.HandleFunc("/loans/{id}/period", s.currentPeriodHandler).Methods("GET")
	router.HandleFunc("/loans/{id}/recompute", s.recomputeLoanHandler).Methods("POST")
	router.HandleFunc("/loans/{id}/repayments", s.listRepaymentsHandler).Methods("GET")
	router.HandleFunc("/loans/{id}/repayments", s.recordRepaymentHandler).Methods("POST")
	router.HandleFunc("/loans/{id}/profit", s.loanProfitHandler).Methods("GET")
	router.HandleFunc("/repayments/{id}", s.deleteRepaymentHandler).Methods("DELETE")

	router.HandleFunc("/chit-funds", s.listChitFundsHandler).Methods("GET")
	router.HandleFunc("/chit-funds", s.createChitFundHandler).Methods("POST")
	router.HandleFunc("/chit-funds/{id}", s.getChitFundHandler).Methods("GET")
	router.HandleFunc("/chit-funds/{id}/contributions", s.recordContributionHandler).Methods("POST")
	router.HandleFunc("/chit-funds/{id}/auctions", s.recordAuctionHandler).Methods("POST")

	router.HandleFunc("/reports/periods", s.periodReportHandler).Methods("GET")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps ledger and store failures onto status codes.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, what string, err error) {
	var verr *ledger.ValidationError
	var cerr *ledger.ConflictError
	var ierr *ledger.ConsistencyError
	switch {
	case errors.As(err, &verr):
		http.Error(w, verr.Error(), http.StatusBadRequest)
	case errors.As(err, &cerr):
		http.Error(w, cerr.Error(), http.StatusConflict)
	case ledger.IsNotFound(err):
		http.Error(w, what+" not found", http.StatusNotFound)
	case errors.As(err, &ierr):
		http.Error(w, ierr.Error(), http.StatusInternalServerError)
	default:
		s.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		http.Error(w, fmt.Sprintf("Failed to process request: %v", err), http.StatusInternalServerError)
	}
}

func pathID(w http.ResponseWriter, r *http.Request, what string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid "+what+" ID", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

// parseDate accepts a calendar date in the server's time zone or an RFC 3339
// timestamp. An empty value yields fallback.
func (s *Server) parseDate(field, value string, fallback time.Time) (time.Time, error) {
	if value == "" {
		return fallback, nil
	}
	if t, err := time.ParseInLocation(dateLayout, value, s.loc); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, &ledger.ValidationError{Field: field, Reason: fmt.Sprintf("cannot parse %q as a date", value)}
	}
	return t, nil
}

func (s *Server) now() time.Time {
	return time.Now().In(s.loc)
}

func (s *Server) createLoanHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CustomerKey      string          `json:"customer_key"`
		Principal        decimal.Decimal `json:"principal"`
		InterestAmount   decimal.Decimal `json:"interest_amount"`
		DocumentCharge   decimal.Decimal `json:"document_charge"`
		Duration         int             `json:"duration"`
		DisbursementDate string          `json:"disbursement_date"`
		Cadence          models.Cadence  `json:"cadence"`
	}
	if !decode(w, r, &req) {
		return
	}

	disbursed, err := s.parseDate("disbursement_date", req.DisbursementDate, s.now())
	if err != nil {
		s.writeError(w, r, "Loan", err)
		return
	}

	loan, err := s.ledger.CreateLoan(ledger.NewLoan{
		CustomerKey:      req.CustomerKey,
		Principal:        req.Principal,
		InterestAmount:   req.InterestAmount,
		DocumentCharge:   req.DocumentCharge,
		Duration:         req.Duration,
		DisbursementDate: disbursed,
		Cadence:          req.Cadence,
	})
	if err != nil {
		s.writeError(w, r, "Loan", err)
		return
	}
	writeJSON(w, http.StatusCreated, loan)
}

func (s *Server) getLoanHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := pathID(w, r, "loan")
	if !ok {
		return
	}
	loan, err := s.ledger.GetLoan(loanID)
	if err != nil {
		s.writeError(w, r, "Loan", err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (s *Server) listLoansHandler(w http.ResponseWriter, r *http.Request) {
	loans, err := s.ledger.GetAllLoans()
	if err != nil {
		s.writeError(w, r, "Loans", err)
		return
	}
	if loans == nil {
		loans = []*models.Loan{}
	}
	writeJSON(w, http.StatusOK, loans)
}

func (s *Server) deleteLoanHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := pathID(w, r, "loan")
	if !ok {
		return
	}
	if err := s.ledger.DeleteLoan(loanID); err != nil {
		s.writeError(w, r, "Loan", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// getScheduleHandler serves the classified schedule. With window_days set it
// returns only the due-soon view.
func (s *Server) getScheduleHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := pathID(w, r, "loan")
	if !ok {
		return
	}
	q := r.URL.Query()
	asOf, err := s.parseDate("as_of", q.Get("as_of"), s.now())
	if err != nil {
		s.writeError(w, r, "Loan", err)
		return
	}

	var entries []*models.ScheduleEntry
	if days := q.Get("window_days"); days != "" {
		n, convErr := strconv.Atoi(days)
		if convErr != nil {
			http.Error(w, "Invalid window_days", http.StatusBadRequest)
			return
		}
		entries, err = s.ledger.ScheduleWindow(loanID, asOf, n)
	} else {
		entries, err = s.ledger.GetSchedule(loanID, asOf)
	}
	if err != nil {
		s.writeError(w, r, "Loan", err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) generateScheduleHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := pathID(w, r, "loan")
	if !ok {
		return
	}
	entries, err := s.ledger.GenerateSchedule(loanID)
	if err != nil {
		s.writeError(w, r, "Loan", err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) currentPeriodHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := pathID(w, r, "loan")
	if !ok {
		return
	}
	asOf, err := s.parseDate("as_of", r.URL.Query().Get("as_of"), s.now())
	if err != nil {
		s.writeError(w, r, "Loan", err)
		return
	}
	period, err := s.ledger.CurrentPeriod(loanID, asOf)
	if err != nil {
		s.writeError(w, r, "Loan", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"loan_id":        loanID,
		"as_of":          asOf.Format(dateLayout),
		"current_period": period,
	})
}

func (s *Server) recomputeLoanHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := pathID(w, r, "loan")
	if !ok {
		return
	}
	loan, err := s.ledger.RecomputeLoan(loanID)
	if err != nil {
		s.writeError(w, r, "Loan", err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (s *Server) recordRepaymentHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := pathID(w, r, "loan")
	if !ok {
		return
	}

	var req struct {
		ScheduleEntryID *uuid.UUID           `json:"schedule_entry_id"`
		Period          int                  `json:"period"`
		Amount          decimal.Decimal      `json:"amount"`
		PaidDate        string               `json:"paid_date"`
		Kind            models.RepaymentKind `json:"kind"`
		CollectedBy     string               `json:"collected_by"`
		Note            string               `json:"note"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Kind == "" {
		req.Kind = models.RepaymentRegular
	}

	paid, err := s.parseDate("paid_date", req.PaidDate, s.now())
	if err != nil {
		s.writeError(w, r, "Loan", err)
		return
	}

	rep, err := s.ledger.RecordRepayment(loanID, ledger.RepaymentRequest{
		EntryID:     req.ScheduleEntryID,
		Period:      req.Period,
		Amount:      req.Amount,
		PaidDate:    paid,
		Kind:        req.Kind,
		CollectedBy: req.CollectedBy,
		Note:        req.Note,
	})
	if err != nil {
		s.writeError(w, r, "Loan", err)
		return
	}
	writeJSON(w, http.StatusCreated, rep)
}

func (s *Server) listRepaymentsHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := pathID(w, r, "loan")
	if !ok {
		return
	}
	reps, err := s.ledger.GetRepayments(loanID)
	if err != nil {
		s.writeError(w, r, "Loan", err)
		return
	}
	if reps == nil {
		reps = []*models.Repayment{}
	}
	writeJSON(w, http.StatusOK, reps)
}

func (s *Server) deleteRepaymentHandler(w http.ResponseWriter, r *http.Request) {
	repID, ok := pathID(w, r, "repayment")
	if !ok {
		return
	}
	if err := s.ledger.DeleteRepayment(repID); err != nil {
		s.writeError(w, r, "Repayment", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) loanProfitHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := pathID(w, r, "loan")
	if !ok {
		return
	}
	fin, err := s.ledger.LoanFinancials(loanID)
	if err != nil {
		s.writeError(w, r, "Loan", err)
		return
	}
	writeJSON(w, http.StatusOK, fin)
}

func (s *Server) createChitFundHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name               string              `json:"name"`
		TotalAmount        decimal.Decimal     `json:"total_amount"`
		ContributionAmount decimal.Decimal     `json:"contribution_amount"`
		Duration           int                 `json:"duration"`
		MemberCount        int                 `json:"member_count"`
		Type               models.ChitFundType `json:"type"`
		StartDate          string              `json:"start_date"`
	}
	if !decode(w, r, &req) {
		return
	}
	start, err := s.parseDate("start_date", req.StartDate, s.now())
	if err != nil {
		s.writeError(w, r, "Chit fund", err)
		return
	}

	fund, err := s.ledger.CreateChitFund(ledger.NewChitFund{
		Name:               req.Name,
		TotalAmount:        req.TotalAmount,
		ContributionAmount: req.ContributionAmount,
		Duration:           req.Duration,
		MemberCount:        req.MemberCount,
		Type:               req.Type,
		StartDate:          start,
	})
	if err != nil {
		s.writeError(w, r, "Chit fund", err)
		return
	}
	writeJSON(w, http.StatusCreated, fund)
}

func (s *Server) listChitFundsHandler(w http.ResponseWriter, r *http.Request) {
	funds, err := s.ledger.GetAllChitFunds()
	if err != nil {
		s.writeError(w, r, "Chit funds", err)
		return
	}
	if funds == nil {
		funds = []*models.ChitFund{}
	}
	writeJSON(w, http.StatusOK, funds)
}

func (s *Server) getChitFundHandler(w http.ResponseWriter, r *http.Request) {
	fundID, ok := pathID(w, r, "chit fund")
	if !ok {
		return
	}
	summary, err := s.ledger.ChitFundSummary(fundID)
	if err != nil {
		s.writeError(w, r, "Chit fund", err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) recordContributionHandler(w http.ResponseWriter, r *http.Request) {
	fundID, ok := pathID(w, r, "chit fund")
	if !ok {
		return
	}
	var req struct {
		MemberKey   string          `json:"member_key"`
		Month       int             `json:"month"`
		Amount      decimal.Decimal `json:"amount"`
		PaidDate    string          `json:"paid_date"`
		CollectedBy string          `json:"collected_by"`
	}
	if !decode(w, r, &req) {
		return
	}
	paid, err := s.parseDate("paid_date", req.PaidDate, s.now())
	if err != nil {
		s.writeError(w, r, "Chit fund", err)
		return
	}

	c, err := s.ledger.RecordContribution(fundID, ledger.ContributionRequest{
		MemberKey:   req.MemberKey,
		Month:       req.Month,
		Amount:      req.Amount,
		PaidDate:    paid,
		CollectedBy: req.CollectedBy,
	})
	if err != nil {
		s.writeError(w, r, "Chit fund", err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) recordAuctionHandler(w http.ResponseWriter, r *http.Request) {
	fundID, ok := pathID(w, r, "chit fund")
	if !ok {
		return
	}
	var req struct {
		Month         int             `json:"month"`
		WinnerKey     string          `json:"winner_key"`
		AuctionAmount decimal.Decimal `json:"auction_amount"`
		AuctionDate   string          `json:"auction_date"`
	}
	if !decode(w, r, &req) {
		return
	}
	held, err := s.parseDate("auction_date", req.AuctionDate, s.now())
	if err != nil {
		s.writeError(w, r, "Chit fund", err)
		return
	}

	a, err := s.ledger.RecordAuction(fundID, ledger.AuctionRequest{
		Month:         req.Month,
		WinnerKey:     req.WinnerKey,
		AuctionAmount: req.AuctionAmount,
		AuctionDate:   held,
	})
	if err != nil {
		s.writeError(w, r, "Chit fund", err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (s *Server) periodReportHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	cadence := models.ReportCadence(q.Get("cadence"))
	if cadence == "" {
		cadence = models.ReportMonthly
	}
	count := s.reportBuckets
	if v := q.Get("count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, "Invalid count", http.StatusBadRequest)
			return
		}
		count = n
	}
	asOf, err := s.parseDate("as_of", q.Get("as_of"), s.now())
	if err != nil {
		s.writeError(w, r, "Report", err)
		return
	}
	// A bare date means the whole day.
	if q.Get("as_of") != "" && len(q.Get("as_of")) == len(dateLayout) {
		asOf = asOf.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}

	summaries, err := s.ledger.AggregatePeriods(cadence, count, asOf)
	if err != nil {
		s.writeError(w, r, "Report", err)
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

// logRequests is mux middleware writing one line per request.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}
