package schedule

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/fundledger/pkg/models"
	"github.com/shopspring/decimal"
)

func entryDue(period int, due time.Time) *models.ScheduleEntry {
	return &models.ScheduleEntry{
		ID:          uuid.New(),
		LoanID:      uuid.Nil,
		PeriodIndex: period,
		DueDate:     due,
		AmountDue:   decimal.NewFromInt(1000),
		Status:      models.EntryStatusPending,
	}
}

func link(e *models.ScheduleEntry, kind models.RepaymentKind, amount int64) *models.Repayment {
	r := &models.Repayment{
		ID:              uuid.New(),
		ScheduleEntryID: &e.ID,
		Amount:          decimal.NewFromInt(amount),
		Kind:            kind,
	}
	e.RepaymentID = &r.ID
	return r
}

func TestStatusAt_GracePeriod(t *testing.T) {
	today := date(2025, time.June, 10)
	cases := []struct {
		name string
		due  time.Time
		want models.EntryStatus
	}{
		{"due in future", today.AddDate(0, 0, 5), models.EntryStatusPending},
		{"due today", today, models.EntryStatusPending},
		{"due 1 day ago", today.AddDate(0, 0, -1), models.EntryStatusPending},
		{"due 3 days ago", today.AddDate(0, 0, -3), models.EntryStatusPending},
		{"due 4 days ago", today.AddDate(0, 0, -4), models.EntryStatusMissed},
	}
	for _, c := range cases {
		if got := StatusAt(entryDue(1, c.due), nil, today); got != c.want {
			t.Errorf("%s: expected %s, got %s", c.name, c.want, got)
		}
	}
}

func TestStatusAt_Linked(t *testing.T) {
	today := date(2025, time.June, 10)
	longAgo := today.AddDate(0, 0, -30)

	e := entryDue(1, longAgo)
	if got := StatusAt(e, link(e, models.RepaymentRegular, 1000), today); got != models.EntryStatusPaid {
		t.Errorf("Expected paid, got %s", got)
	}
	e = entryDue(1, longAgo)
	if got := StatusAt(e, link(e, models.RepaymentInterestOnly, 200), today); got != models.EntryStatusInterestOnly {
		t.Errorf("Expected interest_only, got %s", got)
	}
	e = entryDue(1, longAgo)
	if got := StatusAt(e, link(e, models.RepaymentPartial, 400), today); got != models.EntryStatusOverdue {
		t.Errorf("Expected overdue for short partial past grace, got %s", got)
	}
	e = entryDue(1, today.AddDate(0, 0, 2))
	if got := StatusAt(e, link(e, models.RepaymentPartial, 400), today); got != models.EntryStatusPaid {
		t.Errorf("Expected paid for partial inside grace, got %s", got)
	}
}

func TestClassify(t *testing.T) {
	today := date(2025, time.June, 10)
	e1 := entryDue(1, date(2025, time.April, 10))
	e2 := entryDue(2, date(2025, time.May, 10))
	e3 := entryDue(3, date(2025, time.June, 9))
	e4 := entryDue(4, date(2025, time.July, 10))
	r1 := link(e1, models.RepaymentRegular, 1000)

	// Out of order on purpose.
	classified, err := Classify([]*models.ScheduleEntry{e3, e1, e4, e2}, []*models.Repayment{r1}, today)
	if err != nil {
		t.Fatalf("Failed to classify: %v", err)
	}

	want := []models.EntryStatus{models.EntryStatusPaid, models.EntryStatusMissed, models.EntryStatusPending, models.EntryStatusPending}
	for i, e := range classified {
		if e.PeriodIndex != i+1 {
			t.Fatalf("Expected sorted output, got period %d at %d", e.PeriodIndex, i)
		}
		if e.Status != want[i] {
			t.Errorf("Period %d: expected %s, got %s", e.PeriodIndex, want[i], e.Status)
		}
	}
	if e2.Status != models.EntryStatusPending {
		t.Error("Classify must not mutate its input")
	}

	next := NextPending(classified)
	if next == nil || next.PeriodIndex != 3 {
		t.Fatalf("Expected next pending period 3, got %+v", next)
	}

	overdue, missed := Arrears(classified, []*models.Repayment{r1})
	if missed != 1 || !overdue.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("Expected 1 missed / 1000 overdue, got %d / %s", missed, overdue)
	}
}

func TestClassify_Inconsistent(t *testing.T) {
	today := date(2025, time.June, 10)

	e := entryDue(1, today)
	dangling := uuid.New()
	e.RepaymentID = &dangling
	if _, err := Classify([]*models.ScheduleEntry{e}, nil, today); !errors.Is(err, ErrOrphanedLink) {
		t.Errorf("Expected ErrOrphanedLink, got %v", err)
	}

	e = entryDue(1, today)
	r := link(e, models.RepaymentRegular, 1000)
	other := uuid.New()
	r.ScheduleEntryID = &other
	if _, err := Classify([]*models.ScheduleEntry{e}, []*models.Repayment{r}, today); !errors.Is(err, ErrMismatchedLink) {
		t.Errorf("Expected ErrMismatchedLink, got %v", err)
	}

	a, b := entryDue(2, today), entryDue(2, today)
	if _, err := Classify([]*models.ScheduleEntry{a, b}, nil, today); !errors.Is(err, ErrDuplicatePeriods) {
		t.Errorf("Expected ErrDuplicatePeriods, got %v", err)
	}
}

func TestArrears_OverduePartial(t *testing.T) {
	today := date(2025, time.June, 10)
	e := entryDue(1, today.AddDate(0, 0, -10))
	r := link(e, models.RepaymentPartial, 300)
	classified, err := Classify([]*models.ScheduleEntry{e}, []*models.Repayment{r}, today)
	if err != nil {
		t.Fatalf("Failed to classify: %v", err)
	}
	overdue, missed := Arrears(classified, []*models.Repayment{r})
	if missed != 0 {
		t.Errorf("Expected no missed entries, got %d", missed)
	}
	if !overdue.Equal(decimal.NewFromInt(700)) {
		t.Errorf("Expected overdue shortfall 700, got %s", overdue)
	}
}

func TestWindow_AlwaysShowsNextPending(t *testing.T) {
	today := date(2025, time.June, 10)
	entries := []*models.ScheduleEntry{
		entryDue(1, date(2025, time.May, 1)),
		entryDue(2, date(2025, time.August, 1)),
		entryDue(3, date(2025, time.September, 1)),
	}
	classified, err := Classify(entries, nil, today)
	if err != nil {
		t.Fatalf("Failed to classify: %v", err)
	}

	visible := Window(classified, today, 7)
	if len(visible) != 2 {
		t.Fatalf("Expected missed entry plus next pending, got %d entries", len(visible))
	}
	if visible[0].Status != models.EntryStatusMissed || visible[1].PeriodIndex != 2 {
		t.Errorf("Unexpected window contents: %s period %d, %s period %d",
			visible[0].Status, visible[0].PeriodIndex, visible[1].Status, visible[1].PeriodIndex)
	}

	visible = Window(classified, today, 90)
	if len(visible) != 3 {
		t.Errorf("Expected all entries inside a 90 day window, got %d", len(visible))
	}
}

func TestNextPending_NoneLeft(t *testing.T) {
	today := date(2025, time.June, 10)
	e := entryDue(1, today.AddDate(0, 0, -1))
	r := link(e, models.RepaymentRegular, 1000)
	classified, _ := Classify([]*models.ScheduleEntry{e}, []*models.Repayment{r}, today)
	if next := NextPending(classified); next != nil {
		t.Errorf("Expected no pending entry, got period %d", next.PeriodIndex)
	}
}
