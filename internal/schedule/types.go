package schedule

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind identifies a schedule's recurrence behavior.
type Kind string

const (
	KindFixedInterval Kind = "fixed_interval"
	KindCalendarRule  Kind = "calendar_rule"
	KindSeasonal      Kind = "seasonal"
	KindUsageBased    Kind = "usage_based"
)

// Params is the kind-specific half of a schedule definition.
//
// The set of implementations is closed: FixedInterval, CalendarRule,
// Seasonal, UsageBased.
type Params interface {
	Kind() Kind
	Validate() error
}

// FixedInterval recurs a fixed number of days or months after the previous
// occurrence. Exactly one of Days/Months should be set.
type FixedInterval struct {
	Days   int `json:"days,omitempty"`
	Months int `json:"months,omitempty"`
}

func (FixedInterval) Kind() Kind { return KindFixedInterval }

func (p FixedInterval) Validate() error {
	if p.Days <= 0 && p.Months <= 0 {
		return fmt.Errorf("fixed_interval: interval_days or interval_months required")
	}
	if p.Days > 0 && p.Months > 0 {
		return fmt.Errorf("fixed_interval: interval_days and interval_months are mutually exclusive")
	}
	return nil
}

// CalendarRule recurs per a cron-style recurrence expression
// (5-field cron or @descriptors, e.g. "0 9 * * 1" or "@monthly").
type CalendarRule struct {
	Expr string `json:"expr"`
}

func (CalendarRule) Kind() Kind { return KindCalendarRule }

func (p CalendarRule) Validate() error {
	if p.Expr == "" {
		return fmt.Errorf("calendar_rule: expression required")
	}
	return nil
}

// Seasonal recurs in a fixed set of months each year, on the given
// day-of-month (default 1, clamped into short months).
type Seasonal struct {
	Months     []int `json:"months"`
	DayOfMonth int   `json:"day_of_month,omitempty"`
}

func (Seasonal) Kind() Kind { return KindSeasonal }

func (p Seasonal) Validate() error {
	if len(p.Months) == 0 {
		return fmt.Errorf("seasonal: months required")
	}
	for _, m := range p.Months {
		if m < 1 || m > 12 {
			return fmt.Errorf("seasonal: month %d out of range [1,12]", m)
		}
	}
	if p.DayOfMonth < 0 || p.DayOfMonth > 31 {
		return fmt.Errorf("seasonal: day_of_month %d out of range [0,31]", p.DayOfMonth)
	}
	return nil
}

// UsageBased fires when the named counter crosses Threshold. It has no
// calendar occurrence.
type UsageBased struct {
	CounterType    string  `json:"counter_type"`
	Threshold      float64 `json:"threshold"`
	ResetOnTrigger bool    `json:"reset_on_trigger,omitempty"`
}

func (UsageBased) Kind() Kind { return KindUsageBased }

func (p UsageBased) Validate() error {
	if p.CounterType == "" {
		return fmt.Errorf("usage_based: counter_type required")
	}
	if p.Threshold <= 0 {
		return fmt.Errorf("usage_based: threshold must be positive, got %v", p.Threshold)
	}
	return nil
}

// EncodeParams serializes kind-specific params for persistence.
func EncodeParams(p Params) ([]byte, error) {
	return json.Marshal(p)
}

// DecodeParams restores the params variant matching the persisted kind.
func DecodeParams(kind Kind, data []byte) (Params, error) {
	var p Params
	switch kind {
	case KindFixedInterval:
		p = &FixedInterval{}
	case KindCalendarRule:
		p = &CalendarRule{}
	case KindSeasonal:
		p = &Seasonal{}
	case KindUsageBased:
		p = &UsageBased{}
	default:
		return nil, fmt.Errorf("unknown schedule kind %q", kind)
	}
	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("decode %s params: %w", kind, err)
	}
	switch v := p.(type) {
	case *FixedInterval:
		return *v, nil
	case *CalendarRule:
		return *v, nil
	case *Seasonal:
		return *v, nil
	case *UsageBased:
		return *v, nil
	}
	return nil, fmt.Errorf("unknown schedule kind %q", kind)
}

// Schedule is a recurring-maintenance definition.
//
// NextOccurrence is only meaningful while Active and for non-usage kinds;
// it and LastOccurrence are mutated exclusively by the engine.
// TaskTemplate is opaque here: the task-creation service owns its shape.
type Schedule struct {
	ID      string
	OrgID   string
	AssetID string
	Name    string

	Params Params
	Active bool

	StartDate      time.Time
	LastOccurrence *time.Time
	NextOccurrence *time.Time

	TaskTemplate json.RawMessage

	CreatedAt time.Time
	UpdatedAt time.Time
}

// RuleType identifies a constraint rule's behavior.
type RuleType string

const (
	RuleBlackoutDates    RuleType = "blackout_dates"
	RuleBusinessDaysOnly RuleType = "business_days_only"
	RuleDependency       RuleType = "dependency"
)

// DateRange is an inclusive [Start, End] blackout interval,
// both ends in YYYY-MM-DD form.
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// RuleConfig carries the type-specific rule configuration. Exactly one
// shape is populated per RuleType.
type RuleConfig struct {
	// blackout_dates
	Dates  []string    `json:"dates,omitempty"`
	Ranges []DateRange `json:"ranges,omitempty"`

	// business_days_only
	ExcludeWeekends bool     `json:"exclude_weekends,omitempty"`
	ExcludeHolidays bool     `json:"exclude_holidays,omitempty"`
	Holidays        []string `json:"holidays,omitempty"`

	// dependency
	DependsOn  string `json:"depends_on,omitempty"`
	OffsetDays int    `json:"offset_days,omitempty"`
}

// Rule is a named constraint attached to one schedule.
type Rule struct {
	ID         string
	ScheduleID string
	Type       RuleType
	Config     RuleConfig
	Active     bool
	CreatedAt  time.Time
}

// Dependency is a directed edge: the owning schedule's next occurrence may
// not precede the prerequisite's last completion plus OffsetDays.
type Dependency struct {
	ID          string
	ScheduleID  string
	DependsOnID string
	OffsetDays  int
	CreatedAt   time.Time
}

// UsageCounter is a running total per (asset, counter type). ScheduleID may
// be empty: a counter can outlive its owning schedule.
type UsageCounter struct {
	AssetID     string
	CounterType string
	ScheduleID  string
	Value       float64
	Notes       string
	UpdatedAt   time.Time
	LastResetAt *time.Time
}

// CompletionStatus for completion log records.
type CompletionStatus string

const (
	CompletionDone CompletionStatus = "done"
)

// CompletionRecord is one completed task, keyed by the schedule that
// spawned it. Read-only input to the dependency resolver.
type CompletionRecord struct {
	ID          string
	ScheduleID  string
	Status      CompletionStatus
	CompletedAt time.Time
}
