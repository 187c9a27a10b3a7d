package engine

import (
	"time"

	"github.com/rcldesign/asset-manager-sub001/internal/calendar"
	"github.com/rcldesign/asset-manager-sub001/internal/schedule"
	logx "github.com/rcldesign/asset-manager-sub001/pkg/logx"
)

// blackoutMaxAdvances caps blackout-date advancement. A configuration that
// blacks out the whole year must terminate with a best-effort date rather
// than hang or error a batch pass.
const blackoutMaxAdvances = 365

// businessDayMaxPasses bounds the weekend/holiday re-evaluation loop. Each
// pass moves at most 2+1 days forward, so consecutive holidays around a
// weekend converge well inside this bound.
const businessDayMaxPasses = 30

// applyRules pipes a candidate date through the active constraint rules.
//
// Rules apply in fixed precedence regardless of input order: blackout dates
// first, then business days. Business-day exclusion has to see the
// blackout-adjusted date, not the raw candidate.
func (e *Engine) applyRules(scheduleID string, candidate time.Time, rules []*schedule.Rule) time.Time {
	adjusted := candidate
	for _, r := range rules {
		if r.Type == schedule.RuleBlackoutDates && r.Active {
			adjusted = e.applyBlackoutDates(scheduleID, adjusted, r.Config)
		}
	}
	for _, r := range rules {
		if r.Type == schedule.RuleBusinessDaysOnly && r.Active {
			adjusted = applyBusinessDays(adjusted, r.Config)
		}
	}
	return adjusted
}

// applyBlackoutDates advances day-by-day past every blacked-out date and
// inclusive range, up to blackoutMaxAdvances attempts.
func (e *Engine) applyBlackoutDates(scheduleID string, candidate time.Time, cfg schedule.RuleConfig) time.Time {
	blocked := make(map[string]bool, len(cfg.Dates))
	for _, d := range cfg.Dates {
		blocked[d] = true
	}

	adjusted := candidate
	for i := 0; i < blackoutMaxAdvances; i++ {
		if !isBlackedOut(adjusted, blocked, cfg.Ranges) {
			return adjusted
		}
		adjusted = calendar.AddDays(adjusted, 1)
	}
	if isBlackedOut(adjusted, blocked, cfg.Ranges) {
		e.log.Warn("blackout advancement cap reached; returning best-effort date",
			logx.String("schedule", scheduleID), logx.Time("date", adjusted))
	}
	return adjusted
}

func isBlackedOut(t time.Time, dates map[string]bool, ranges []schedule.DateRange) bool {
	key := calendar.DateKey(t)
	if dates[key] {
		return true
	}
	for _, r := range ranges {
		// YYYY-MM-DD keys compare lexicographically; both ends inclusive.
		if r.Start != "" && r.End != "" && key >= r.Start && key <= r.End {
			return true
		}
	}
	return false
}

// applyBusinessDays moves the candidate off weekends and configured
// holidays. A holiday advance can land on a weekend (and vice versa), so
// the whole check re-runs until the date is stable or the pass bound hits.
func applyBusinessDays(candidate time.Time, cfg schedule.RuleConfig) time.Time {
	holidays := make(map[string]bool, len(cfg.Holidays))
	for _, h := range cfg.Holidays {
		holidays[h] = true
	}

	adjusted := candidate
	for i := 0; i < businessDayMaxPasses; i++ {
		before := adjusted
		if cfg.ExcludeWeekends {
			switch adjusted.Weekday() {
			case time.Sunday:
				adjusted = calendar.AddDays(adjusted, 1)
			case time.Saturday:
				adjusted = calendar.AddDays(adjusted, 2)
			}
		}
		if cfg.ExcludeHolidays && holidays[calendar.DateKey(adjusted)] {
			adjusted = calendar.AddDays(adjusted, 1)
		}
		if adjusted.Equal(before) {
			return adjusted
		}
	}
	return adjusted
}
