package calendar

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestAddMonthsClampsDay(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   time.Time
		n    int
		want time.Time
	}{
		{name: "leap february", in: date(2024, time.January, 31), n: 1, want: date(2024, time.February, 29)},
		{name: "non-leap february", in: date(2023, time.January, 31), n: 1, want: date(2023, time.February, 28)},
		{name: "31st into 30-day month", in: date(2024, time.March, 31), n: 1, want: date(2024, time.April, 30)},
		{name: "no clamp needed", in: date(2024, time.January, 15), n: 1, want: date(2024, time.February, 15)},
		{name: "multi month", in: date(2024, time.October, 31), n: 4, want: date(2025, time.February, 28)},
		{name: "year rollover", in: date(2024, time.December, 31), n: 1, want: date(2025, time.January, 31)},
		{name: "backwards", in: date(2024, time.March, 31), n: -1, want: date(2024, time.February, 29)},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := AddMonths(tt.in, tt.n)
			if !got.Equal(tt.want) {
				t.Fatalf("AddMonths(%v, %d) = %v, want %v", tt.in, tt.n, got, tt.want)
			}
		})
	}
}

func TestAddDays(t *testing.T) {
	t.Parallel()
	got := AddDays(date(2024, time.February, 28), 1)
	if want := date(2024, time.February, 29); !got.Equal(want) {
		t.Fatalf("AddDays = %v, want %v", got, want)
	}
	got = AddDays(date(2023, time.December, 31), 1)
	if want := date(2024, time.January, 1); !got.Equal(want) {
		t.Fatalf("AddDays = %v, want %v", got, want)
	}
}

func TestDaysInMonth(t *testing.T) {
	t.Parallel()
	tests := []struct {
		year  int
		month time.Month
		want  int
	}{
		{2024, time.February, 29},
		{2023, time.February, 28},
		{2000, time.February, 29},
		{1900, time.February, 28},
		{2024, time.April, 30},
		{2024, time.December, 31},
	}
	for _, tt := range tests {
		if got := DaysInMonth(tt.year, tt.month); got != tt.want {
			t.Fatalf("DaysInMonth(%d, %v) = %d, want %d", tt.year, tt.month, got, tt.want)
		}
	}
}

func TestIsWeekend(t *testing.T) {
	t.Parallel()
	// 2024-01-06 is a Saturday.
	for d, want := range map[int]bool{5: false, 6: true, 7: true, 8: false} {
		if got := IsWeekend(date(2024, time.January, d)); got != want {
			t.Fatalf("IsWeekend(2024-01-%02d) = %v, want %v", d, got, want)
		}
	}
}

func TestDateKey(t *testing.T) {
	t.Parallel()
	if got := DateKey(date(2024, time.March, 7)); got != "2024-03-07" {
		t.Fatalf("DateKey = %q", got)
	}
}

func TestMidnight(t *testing.T) {
	t.Parallel()
	in := time.Date(2024, time.June, 10, 23, 45, 12, 999, time.UTC)
	if got := Midnight(in); !got.Equal(date(2024, time.June, 10)) {
		t.Fatalf("Midnight = %v", got)
	}
}
