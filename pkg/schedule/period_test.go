package schedule

import (
	"testing"
	"time"

	"github.com/mcclellann/fundledger/pkg/models"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestCurrentPeriod_Monthly(t *testing.T) {
	start := date(2025, time.January, 15)
	cases := []struct {
		name string
		asOf time.Time
		want int
	}{
		{"before disbursement", date(2025, time.January, 14), 0},
		{"disbursement day", date(2025, time.January, 15), 1},
		{"day before anniversary", date(2025, time.February, 14), 1},
		{"anniversary", date(2025, time.February, 15), 2},
		{"next year", date(2026, time.January, 20), 10},
		{"clamped to duration", date(2030, time.June, 1), 10},
	}
	for _, c := range cases {
		got := CurrentPeriod(start, c.asOf, models.CadenceMonthly, 10)
		if got != c.want {
			t.Errorf("%s: expected period %d, got %d", c.name, c.want, got)
		}
	}
}

func TestCurrentPeriod_Weekly(t *testing.T) {
	start := date(2025, time.March, 3)
	cases := []struct {
		days int
		want int
	}{
		{0, 1},
		{1, 1},
		{6, 1},
		{7, 1},
		{8, 2},
		{14, 2},
		{15, 3},
		{400, 12},
	}
	for _, c := range cases {
		got := CurrentPeriod(start, start.AddDate(0, 0, c.days), models.CadenceWeekly, 12)
		if got != c.want {
			t.Errorf("day %d: expected period %d, got %d", c.days, c.want, got)
		}
	}
}

func TestCurrentPeriod_IgnoresTimeOfDay(t *testing.T) {
	start := time.Date(2025, time.March, 3, 18, 30, 0, 0, time.UTC)
	asOf := time.Date(2025, time.March, 10, 6, 0, 0, 0, time.UTC)
	if got := CurrentPeriod(start, asOf, models.CadenceWeekly, 10); got != 1 {
		t.Errorf("Expected anniversary day to stay in period 1, got %d", got)
	}
	if got := CurrentPeriod(start, start.Add(-time.Hour*20), models.CadenceWeekly, 10); got != 0 {
		t.Errorf("Expected period 0 before disbursement, got %d", got)
	}
}

func TestCurrentPeriod_MonotonicAndBounded(t *testing.T) {
	for _, cadence := range []models.Cadence{models.CadenceMonthly, models.CadenceWeekly} {
		start := date(2024, time.January, 31)
		prev := 0
		for day := -10; day < 800; day++ {
			p := CurrentPeriod(start, start.AddDate(0, 0, day), cadence, 18)
			if p < prev {
				t.Fatalf("%s: period decreased from %d to %d on day %d", cadence, prev, p, day)
			}
			if p < 0 || p > 18 {
				t.Fatalf("%s: period %d out of bounds on day %d", cadence, p, day)
			}
			prev = p
		}
	}
}

func TestCurrentPeriod_ZeroDuration(t *testing.T) {
	if got := CurrentPeriod(date(2025, 1, 1), date(2025, 6, 1), models.CadenceMonthly, 0); got != 0 {
		t.Errorf("Expected 0 for a zero-duration loan, got %d", got)
	}
}
