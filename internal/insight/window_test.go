package insight

import (
	"reflect"
	"testing"
	"time"
)

func TestAlignWeekStart(t *testing.T) {
	cases := []struct {
		date     string
		weekday  time.Weekday
		expected string
	}{
		{"2025-03-05", time.Monday, "2025-03-03"}, // Wednesday back to Monday
		{"2025-03-03", time.Monday, "2025-03-03"}, // already aligned
		{"2025-03-09", time.Monday, "2025-03-03"}, // Sunday back 6 days
		{"2025-03-05", time.Sunday, "2025-03-02"},
		{"2025-01-01", time.Monday, "2024-12-30"}, // across year boundary
	}

	for _, tc := range cases {
		d, err := ParseDate(tc.date)
		if err != nil {
			t.Fatalf("parsing %s: %v", tc.date, err)
		}
		got := FormatDate(AlignWeekStart(d, tc.weekday))
		if got != tc.expected {
			t.Errorf("AlignWeekStart(%s, %v) = %s, expected %s", tc.date, tc.weekday, got, tc.expected)
		}
	}
}

func TestWeekWindowsSingleWeek(t *testing.T) {
	windows, err := WeekWindows("2025-03-03", "2025-03-05", time.Monday)
	if err != nil {
		t.Fatalf("enumerating windows: %v", err)
	}
	if !reflect.DeepEqual(windows, []string{"2025-03-03"}) {
		t.Errorf("expected one window 2025-03-03, got %v", windows)
	}
}

func TestWeekWindowsSpanningWeeks(t *testing.T) {
	windows, err := WeekWindows("2025-01-01", "2025-01-15", time.Monday)
	if err != nil {
		t.Fatalf("enumerating windows: %v", err)
	}
	expected := []string{"2024-12-30", "2025-01-06", "2025-01-13"}
	if !reflect.DeepEqual(windows, expected) {
		t.Errorf("expected %v, got %v", expected, windows)
	}
}

func TestWeekWindowsInvertedRange(t *testing.T) {
	if _, err := WeekWindows("2025-03-10", "2025-03-03", time.Monday); err == nil {
		t.Fatal("expected error for inverted range")
	}
}

func TestWeekEnd(t *testing.T) {
	end, err := WeekEnd("2025-03-03")
	if err != nil {
		t.Fatalf("week end: %v", err)
	}
	if end != "2025-03-09" {
		t.Errorf("expected 2025-03-09, got %s", end)
	}
}

func TestMonthOfWeekStraddlingBoundary(t *testing.T) {
	// Week of 2025-03-31 runs into April but belongs to March.
	month, err := MonthOfWeek("2025-03-31")
	if err != nil {
		t.Fatalf("month of week: %v", err)
	}
	if month != "2025-03" {
		t.Errorf("expected 2025-03, got %s", month)
	}
}

func TestMonthWindows(t *testing.T) {
	weeks := []string{"2025-03-03", "2025-03-10", "2025-03-31", "2025-04-07"}
	months, err := MonthWindows(weeks)
	if err != nil {
		t.Fatalf("month windows: %v", err)
	}
	expected := []string{"2025-03", "2025-04"}
	if !reflect.DeepEqual(months, expected) {
		t.Errorf("expected %v, got %v", expected, months)
	}
}

func TestMonthDateRange(t *testing.T) {
	start, end, err := MonthDateRange("2025-12")
	if err != nil {
		t.Fatalf("month range: %v", err)
	}
	if start != "2025-12-01" || end != "2026-01-01" {
		t.Errorf("expected [2025-12-01, 2026-01-01), got [%s, %s)", start, end)
	}
}

func TestQuarterOfMonth(t *testing.T) {
	cases := map[string]string{
		"2025-01": "2025-Q1",
		"2025-03": "2025-Q1",
		"2025-04": "2025-Q2",
		"2025-12": "2025-Q4",
	}
	for month, expected := range cases {
		got, err := QuarterOfMonth(month)
		if err != nil {
			t.Fatalf("quarter of %s: %v", month, err)
		}
		if got != expected {
			t.Errorf("QuarterOfMonth(%s) = %s, expected %s", month, got, expected)
		}
	}
}

func TestQuarterWindows(t *testing.T) {
	months := []string{"2025-02", "2025-03", "2025-04"}
	quarters, err := QuarterWindows(months)
	if err != nil {
		t.Fatalf("quarter windows: %v", err)
	}
	expected := []string{"2025-Q1", "2025-Q2"}
	if !reflect.DeepEqual(quarters, expected) {
		t.Errorf("expected %v, got %v", expected, quarters)
	}
}

func TestMonthsInQuarter(t *testing.T) {
	months, err := MonthsInQuarter("2025-Q3")
	if err != nil {
		t.Fatalf("months in quarter: %v", err)
	}
	expected := []string{"2025-07", "2025-08", "2025-09"}
	if !reflect.DeepEqual(months, expected) {
		t.Errorf("expected %v, got %v", expected, months)
	}

	for _, bad := range []string{"2025-Q5", "2025-Q0", "2025Q1", "25-Q1", "garbage"} {
		if _, err := MonthsInQuarter(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestParseWeekday(t *testing.T) {
	if wd, err := ParseWeekday("Monday"); err != nil || wd != time.Monday {
		t.Errorf("expected Monday, got %v (%v)", wd, err)
	}
	if wd, err := ParseWeekday("sunday"); err != nil || wd != time.Sunday {
		t.Errorf("expected Sunday, got %v (%v)", wd, err)
	}
	if _, err := ParseWeekday("someday"); err == nil {
		t.Error("expected error for invalid weekday")
	}
}
