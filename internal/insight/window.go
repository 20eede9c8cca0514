package insight

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// ParseDate parses an ISO YYYY-MM-DD date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// FormatDate renders a time as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}

// ParseWeekday maps a lowercase weekday name to time.Weekday.
func ParseWeekday(name string) (time.Weekday, error) {
	switch strings.ToLower(name) {
	case "sunday":
		return time.Sunday, nil
	case "monday":
		return time.Monday, nil
	case "tuesday":
		return time.Tuesday, nil
	case "wednesday":
		return time.Wednesday, nil
	case "thursday":
		return time.Thursday, nil
	case "friday":
		return time.Friday, nil
	case "saturday":
		return time.Saturday, nil
	}
	return time.Monday, fmt.Errorf("invalid weekday %q", name)
}

// AlignWeekStart returns the nearest weekStart-weekday preceding or equal to d.
func AlignWeekStart(d time.Time, weekStart time.Weekday) time.Time {
	delta := (int(d.Weekday()) - int(weekStart) + 7) % 7
	return d.AddDate(0, 0, -delta)
}

// WeekWindows enumerates week-start dates whose 7-day windows cover
// [first, last]. The first window is aligned to the weekStart weekday
// preceding or equal to first; that alignment is fixed for a whole run.
func WeekWindows(first, last string, weekStart time.Weekday) ([]string, error) {
	f, err := ParseDate(first)
	if err != nil {
		return nil, err
	}
	l, err := ParseDate(last)
	if err != nil {
		return nil, err
	}
	if l.Before(f) {
		return nil, fmt.Errorf("date range ends %s before it starts %s", last, first)
	}

	var windows []string
	for d := AlignWeekStart(f, weekStart); !d.After(l); d = d.AddDate(0, 0, 7) {
		windows = append(windows, FormatDate(d))
	}
	return windows, nil
}

// WeekEnd returns the last day (inclusive) of the week starting at weekStart.
func WeekEnd(weekStart string) (string, error) {
	d, err := ParseDate(weekStart)
	if err != nil {
		return "", err
	}
	return FormatDate(d.AddDate(0, 0, 6)), nil
}

// MonthOfWeek returns the YYYY-MM month that owns a weekly summary. A week
// straddling a month boundary belongs to its week-start's month.
func MonthOfWeek(weekStart string) (string, error) {
	d, err := ParseDate(weekStart)
	if err != nil {
		return "", err
	}
	return d.Format("2006-01"), nil
}

// MonthWindows returns the distinct months owning the given week-start
// dates, in ascending order. The input is expected ascending.
func MonthWindows(weekStarts []string) ([]string, error) {
	var months []string
	for _, ws := range weekStarts {
		m, err := MonthOfWeek(ws)
		if err != nil {
			return nil, err
		}
		if len(months) == 0 || months[len(months)-1] != m {
			months = append(months, m)
		}
	}
	return months, nil
}

// MonthDateRange returns the first day of month and the first day of the
// following month, for half-open week-start queries.
func MonthDateRange(month string) (start, end string, err error) {
	t, err := time.Parse("2006-01", month)
	if err != nil {
		return "", "", fmt.Errorf("invalid month %q: %w", month, err)
	}
	return FormatDate(t), FormatDate(t.AddDate(0, 1, 0)), nil
}

// QuarterOfMonth returns the YYYY-QN quarter containing a YYYY-MM month.
func QuarterOfMonth(month string) (string, error) {
	t, err := time.Parse("2006-01", month)
	if err != nil {
		return "", fmt.Errorf("invalid month %q: %w", month, err)
	}
	q := (int(t.Month())-1)/3 + 1
	return fmt.Sprintf("%04d-Q%d", t.Year(), q), nil
}

// QuarterWindows returns the distinct quarters containing the given months,
// in ascending order. The input is expected ascending.
func QuarterWindows(months []string) ([]string, error) {
	var quarters []string
	for _, m := range months {
		q, err := QuarterOfMonth(m)
		if err != nil {
			return nil, err
		}
		if len(quarters) == 0 || quarters[len(quarters)-1] != q {
			quarters = append(quarters, q)
		}
	}
	return quarters, nil
}

// MonthsInQuarter returns the three YYYY-MM months of a YYYY-QN quarter.
func MonthsInQuarter(quarter string) ([]string, error) {
	parts := strings.SplitN(quarter, "-Q", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid quarter %q", quarter)
	}
	year, err := strconv.Atoi(parts[0])
	if err != nil || len(parts[0]) != 4 {
		return nil, fmt.Errorf("invalid quarter %q", quarter)
	}
	q, err := strconv.Atoi(parts[1])
	if err != nil || q < 1 || q > 4 {
		return nil, fmt.Errorf("invalid quarter %q", quarter)
	}
	first := (q-1)*3 + 1
	months := make([]string, 0, 3)
	for m := first; m < first+3; m++ {
		months = append(months, fmt.Sprintf("%04d-%02d", year, m))
	}
	return months, nil
}
