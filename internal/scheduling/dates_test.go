package scheduling

import (
	"errors"
	"testing"
	"time"
)

func day(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.ParseInLocation("2006-01-02", value, time.UTC)
	if err != nil {
		t.Fatalf("failed to parse date %q: %v", value, err)
	}
	return parsed
}

func TestDates_DailyInclusiveRange(t *testing.T) {
	t.Parallel()

	dates, err := Dates(day(t, "2025-06-01"), day(t, "2025-06-03"), FrequencyDaily)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(dates) != 3 {
		t.Fatalf("expected 3 dates, got %d", len(dates))
	}
	for i, want := range []string{"2025-06-01", "2025-06-02", "2025-06-03"} {
		if got := dates[i].Format("2006-01-02"); got != want {
			t.Fatalf("date %d: expected %s, got %s", i, want, got)
		}
	}
}

func TestDates_WeeklyStepsSevenDays(t *testing.T) {
	t.Parallel()

	dates, err := Dates(day(t, "2025-06-01"), day(t, "2025-06-20"), FrequencyWeekly)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(dates) != 3 {
		t.Fatalf("expected 3 dates, got %d", len(dates))
	}
	if got := dates[2].Format("2006-01-02"); got != "2025-06-15" {
		t.Fatalf("expected last date 2025-06-15, got %s", got)
	}
}

func TestDates_MonthlyUsesCalendarArithmetic(t *testing.T) {
	t.Parallel()

	dates, err := Dates(day(t, "2025-01-31"), day(t, "2025-04-01"), FrequencyMonthly)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Jan 31 + 1 month normalizes to Mar 3 per AddDate overflow; the
	// sequence therefore skips February entirely.
	if len(dates) != 3 {
		t.Fatalf("expected 3 dates, got %d: %v", len(dates), dates)
	}
	if got := dates[1].Format("2006-01-02"); got != "2025-03-03" {
		t.Fatalf("expected overflow date 2025-03-03, got %s", got)
	}
}

func TestDates_NormalizesStartToMidnight(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 6, 1, 15, 30, 0, 0, time.UTC)
	end := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	dates, err := Dates(start, end, FrequencyDaily)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(dates) != 1 {
		t.Fatalf("expected a single date, got %d", len(dates))
	}
	if dates[0].Hour() != 0 || dates[0].Minute() != 0 {
		t.Fatalf("expected midnight, got %v", dates[0])
	}
}

func TestDates_InvertedRangeIsEmpty(t *testing.T) {
	t.Parallel()

	dates, err := Dates(day(t, "2025-06-10"), day(t, "2025-06-01"), FrequencyDaily)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(dates) != 0 {
		t.Fatalf("expected empty sequence, got %d dates", len(dates))
	}
}

func TestDates_StrictlyIncreasing(t *testing.T) {
	t.Parallel()

	for _, freq := range []Frequency{FrequencyDaily, FrequencyWeekly, FrequencyMonthly} {
		dates, err := Dates(day(t, "2025-01-15"), day(t, "2025-06-15"), freq)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", freq, err)
		}
		if len(dates) == 0 {
			t.Fatalf("%s: expected dates", freq)
		}
		if !dates[0].Equal(day(t, "2025-01-15")) {
			t.Fatalf("%s: first element %v is not the normalized start", freq, dates[0])
		}
		for i := 1; i < len(dates); i++ {
			if !dates[i].After(dates[i-1]) {
				t.Fatalf("%s: sequence not strictly increasing at %d", freq, i)
			}
		}
		if dates[len(dates)-1].After(day(t, "2025-06-15")) {
			t.Fatalf("%s: last element exceeds the end bound", freq)
		}
	}
}

func TestParseFrequency_RejectsUnknownValues(t *testing.T) {
	t.Parallel()

	if _, err := ParseFrequency("fortnightly"); !errors.Is(err, ErrInvalidFrequency) {
		t.Fatalf("expected ErrInvalidFrequency, got %v", err)
	}
	if freq, err := ParseFrequency("monthly"); err != nil || freq != FrequencyMonthly {
		t.Fatalf("expected monthly, got %v %v", freq, err)
	}
}
