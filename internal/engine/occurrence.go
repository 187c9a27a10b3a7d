package engine

import (
	"time"

	"github.com/rcldesign/asset-manager-sub001/internal/calendar"
	"github.com/rcldesign/asset-manager-sub001/internal/schedule"
	logx "github.com/rcldesign/asset-manager-sub001/pkg/logx"
)

// seasonalScanMonths bounds the seasonal calculator's forward scan. With a
// non-empty month set every target month appears within one year, so a
// larger window would never find anything the first twelve months miss.
const seasonalScanMonths = 12

// nextOccurrence produces the single candidate date for a schedule, or
// (zero, false) when the schedule has none. Pure with respect to its inputs
// except for the calendar-rule parser, whose failures degrade to no
// occurrence rather than propagating.
func (e *Engine) nextOccurrence(s *schedule.Schedule, now time.Time) (time.Time, bool) {
	switch p := s.Params.(type) {
	case schedule.FixedInterval:
		return nextFixedInterval(s, p)
	case schedule.CalendarRule:
		return e.nextCalendarRule(s, p, now)
	case schedule.Seasonal:
		return nextSeasonal(p, now)
	case schedule.UsageBased:
		// Fires from the counter state machine, never from the calendar.
		return time.Time{}, false
	default:
		e.log.Warn("unrecognized schedule kind", logx.String("schedule", s.ID))
		return time.Time{}, false
	}
}

// nextFixedInterval steps one interval past the last occurrence, or past
// the start date when nothing has occurred yet.
func nextFixedInterval(s *schedule.Schedule, p schedule.FixedInterval) (time.Time, bool) {
	base := s.StartDate
	if s.LastOccurrence != nil {
		base = *s.LastOccurrence
	}
	base = calendar.Midnight(base)

	switch {
	case p.Days > 0:
		return calendar.AddDays(base, p.Days), true
	case p.Months > 0:
		return calendar.AddMonths(base, p.Months), true
	default:
		return time.Time{}, false
	}
}

// nextCalendarRule evaluates the schedule's recurrence expression and
// returns the first occurrence strictly after now.
func (e *Engine) nextCalendarRule(s *schedule.Schedule, p schedule.CalendarRule, now time.Time) (time.Time, bool) {
	sched, err := e.parser.Parse(p.Expr)
	if err != nil {
		e.log.Warn("unparseable recurrence expression",
			logx.String("schedule", s.ID), logx.String("expr", p.Expr), logx.Err(err))
		return time.Time{}, false
	}
	next := sched.Next(now)
	if next.IsZero() {
		return time.Time{}, false
	}
	return next, true
}

// nextSeasonal scans forward month-by-month from now's month for the first
// target-month date strictly after now, clamping the configured day into
// short months.
func nextSeasonal(p schedule.Seasonal, now time.Time) (time.Time, bool) {
	target := make(map[time.Month]bool, len(p.Months))
	for _, m := range p.Months {
		target[time.Month(m)] = true
	}
	day := p.DayOfMonth
	if day <= 0 {
		day = 1
	}

	cursor := calendar.Midnight(now)
	for i := 0; i < seasonalScanMonths; i++ {
		year, month := cursor.Year(), cursor.Month()
		if target[month] {
			d := calendar.ClampDay(year, month, day)
			candidate := time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
			if candidate.After(now) {
				return candidate, true
			}
		}
		cursor = time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	}
	return time.Time{}, false
}
