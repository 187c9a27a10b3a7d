// Package calendar provides pure date arithmetic for occurrence computation.
//
// All helpers operate on whole calendar days. Occurrence dates are kept at
// midnight UTC throughout the engine; Midnight is the normalization point.
package calendar

import "time"

// Midnight truncates t to the start of its calendar day in UTC.
func Midnight(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// AddDays returns t shifted by n whole days.
func AddDays(t time.Time, n int) time.Time {
	return t.AddDate(0, 0, n)
}

// AddMonths returns t shifted by n months with the day-of-month clamped to
// the target month's last valid day.
//
// time.Time.AddDate normalizes overflow (Jan 31 + 1 month = Mar 2/3), which
// is wrong for schedule dates: a monthly schedule anchored on the 31st must
// land on Feb 28/29, not skip into March.
func AddMonths(t time.Time, n int) time.Time {
	year, month, day := t.Date()
	hour, min, sec := t.Clock()

	// Step year/month without the day so normalization can't spill over.
	anchor := time.Date(year, month, 1, 0, 0, 0, 0, t.Location()).AddDate(0, n, 0)
	day = min2(day, DaysInMonth(anchor.Year(), anchor.Month()))
	return time.Date(anchor.Year(), anchor.Month(), day, hour, min, sec, t.Nanosecond(), t.Location())
}

// ClampDay returns the given day-of-month clamped into [1, last day of month].
func ClampDay(year int, month time.Month, day int) int {
	if day < 1 {
		return 1
	}
	return min2(day, DaysInMonth(year, month))
}

// DaysInMonth returns the number of days in the given month, leap-aware.
func DaysInMonth(year int, month time.Month) int {
	// Day 0 of the next month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// IsWeekend reports whether t falls on Saturday or Sunday.
func IsWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// DateKey renders the canonical YYYY-MM-DD form used for blackout and
// holiday set membership.
func DateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

func min2(a, b int) int {
	if a < b {
		return a
	}
	return b
}
