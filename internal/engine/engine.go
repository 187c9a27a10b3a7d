package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/rcldesign/asset-manager-sub001/internal/calendar"
	"github.com/rcldesign/asset-manager-sub001/internal/eventbus"
	"github.com/rcldesign/asset-manager-sub001/internal/schedule"
	"github.com/rcldesign/asset-manager-sub001/internal/storage"
	logx "github.com/rcldesign/asset-manager-sub001/pkg/logx"
)

// Engine is the recurrence and rule-resolution core. It decides when
// schedules fire; creating the resulting tasks is the caller's concern.
//
// Engine methods are safe for concurrent use across distinct schedules and
// counters; the store provides atomicity for the shared records themselves.
type Engine struct {
	store  storage.Store
	log    logx.Logger
	bus    eventbus.Bus
	parser cron.Parser

	// now is the injected clock; tests swap it via SetClock.
	now func() time.Time
}

// New creates an engine over the given store. bus may be nil when no
// task-creation collaborator is attached.
func New(store storage.Store, log logx.Logger, bus eventbus.Bus) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{
		store:  store,
		log:    log,
		bus:    bus,
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		now:    time.Now,
	}
}

// SetClock replaces the engine's time source. Call before use; not safe
// concurrently with other methods.
func (e *Engine) SetClock(now func() time.Time) {
	if now != nil {
		e.now = now
	}
}

// ---- schedule creation ----

// CreateFixedIntervalSchedule creates a schedule recurring every N days or
// months.
func (e *Engine) CreateFixedIntervalSchedule(ctx context.Context, orgID, assetID, name string, p schedule.FixedInterval, taskTemplate json.RawMessage) (*schedule.Schedule, error) {
	return e.createSchedule(ctx, orgID, assetID, name, p, taskTemplate)
}

// CreateCalendarRuleSchedule creates a schedule driven by a cron-style
// recurrence expression. The expression must parse at creation time; later
// evaluation failures degrade to no occurrence instead.
func (e *Engine) CreateCalendarRuleSchedule(ctx context.Context, orgID, assetID, name string, p schedule.CalendarRule, taskTemplate json.RawMessage) (*schedule.Schedule, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if _, err := e.parser.Parse(p.Expr); err != nil {
		return nil, fmt.Errorf("%w: calendar_rule: %v", ErrValidation, err)
	}
	return e.createSchedule(ctx, orgID, assetID, name, p, taskTemplate)
}

// CreateSeasonalSchedule creates a schedule recurring in a fixed set of
// months each year.
func (e *Engine) CreateSeasonalSchedule(ctx context.Context, orgID, assetID, name string, p schedule.Seasonal, taskTemplate json.RawMessage) (*schedule.Schedule, error) {
	return e.createSchedule(ctx, orgID, assetID, name, p, taskTemplate)
}

// CreateUsageBasedSchedule creates a threshold-triggered schedule and
// upserts its usage counter at value 0. The two writes are explicit: the
// schedule first, then the counter referencing it.
func (e *Engine) CreateUsageBasedSchedule(ctx context.Context, orgID, assetID, name string, p schedule.UsageBased, taskTemplate json.RawMessage) (*schedule.Schedule, error) {
	s, err := e.createSchedule(ctx, orgID, assetID, name, p, taskTemplate)
	if err != nil {
		return nil, err
	}
	counter := &schedule.UsageCounter{
		AssetID:     assetID,
		CounterType: p.CounterType,
		ScheduleID:  s.ID,
		Value:       0,
		UpdatedAt:   e.now(),
	}
	if err := e.store.UpsertCounter(ctx, counter); err != nil {
		return nil, fmt.Errorf("upsert counter for schedule %s: %w", s.ID, err)
	}
	return s, nil
}

func (e *Engine) createSchedule(ctx context.Context, orgID, assetID, name string, p schedule.Params, taskTemplate json.RawMessage) (*schedule.Schedule, error) {
	if orgID == "" {
		return nil, fmt.Errorf("%w: org id required", ErrValidation)
	}
	if name == "" {
		return nil, fmt.Errorf("%w: name required", ErrValidation)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	now := e.now()
	s := &schedule.Schedule{
		ID:           uuid.NewString(),
		OrgID:        orgID,
		AssetID:      assetID,
		Name:         name,
		Params:       p,
		Active:       true,
		StartDate:    calendar.Midnight(now),
		TaskTemplate: taskTemplate,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := e.store.CreateSchedule(ctx, s); err != nil {
		return nil, err
	}
	e.log.Info("schedule created",
		logx.String("schedule", s.ID),
		logx.String("name", name),
		logx.String("kind", string(p.Kind())))

	if p.Kind() != schedule.KindUsageBased {
		next, err := e.UpdateNextOccurrence(ctx, s.ID)
		if err != nil {
			return nil, err
		}
		s.NextOccurrence = next
	}
	return s, nil
}

// DeactivateSchedule takes a schedule out of rotation. The engine never
// deletes records.
func (e *Engine) DeactivateSchedule(ctx context.Context, scheduleID string) error {
	err := e.store.SetScheduleActive(ctx, scheduleID, false)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("schedule %s: %w", scheduleID, ErrNotFound)
	}
	return err
}

// ---- rules ----

// AddScheduleRule attaches a constraint rule to a schedule. A dependency
// rule also creates the dependency edge. The schedule's next occurrence is
// recomputed as a side effect.
func (e *Engine) AddScheduleRule(ctx context.Context, scheduleID string, ruleType schedule.RuleType, cfg schedule.RuleConfig) (*schedule.Rule, error) {
	if _, err := e.store.GetSchedule(ctx, scheduleID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("schedule %s: %w", scheduleID, ErrNotFound)
		}
		return nil, err
	}
	if err := e.validateRule(ctx, scheduleID, ruleType, cfg); err != nil {
		return nil, err
	}

	r := &schedule.Rule{
		ID:         uuid.NewString(),
		ScheduleID: scheduleID,
		Type:       ruleType,
		Config:     cfg,
		Active:     true,
		CreatedAt:  e.now(),
	}
	if err := e.store.CreateRule(ctx, r); err != nil {
		return nil, err
	}

	if ruleType == schedule.RuleDependency {
		d := &schedule.Dependency{
			ID:          uuid.NewString(),
			ScheduleID:  scheduleID,
			DependsOnID: cfg.DependsOn,
			OffsetDays:  cfg.OffsetDays,
			CreatedAt:   r.CreatedAt,
		}
		if err := e.store.CreateDependency(ctx, d); err != nil {
			return nil, err
		}
	}

	if _, err := e.UpdateNextOccurrence(ctx, scheduleID); err != nil {
		return nil, err
	}
	return r, nil
}

func (e *Engine) validateRule(ctx context.Context, scheduleID string, ruleType schedule.RuleType, cfg schedule.RuleConfig) error {
	switch ruleType {
	case schedule.RuleBlackoutDates:
		if len(cfg.Dates) == 0 && len(cfg.Ranges) == 0 {
			return fmt.Errorf("%w: blackout_dates: dates or ranges required", ErrValidation)
		}
	case schedule.RuleBusinessDaysOnly:
		if !cfg.ExcludeWeekends && !cfg.ExcludeHolidays {
			return fmt.Errorf("%w: business_days_only: nothing excluded", ErrValidation)
		}
	case schedule.RuleDependency:
		if cfg.DependsOn == "" {
			return fmt.Errorf("%w: dependency: depends_on required", ErrValidation)
		}
		if cfg.DependsOn == scheduleID {
			return fmt.Errorf("%w: dependency: schedule cannot depend on itself", ErrValidation)
		}
		if cfg.OffsetDays < 0 {
			return fmt.Errorf("%w: dependency: offset_days must be >= 0", ErrValidation)
		}
		if _, err := e.store.GetSchedule(ctx, cfg.DependsOn); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("dependency target %s: %w", cfg.DependsOn, ErrNotFound)
			}
			return err
		}
	default:
		return fmt.Errorf("%w: unknown rule type %q", ErrValidation, ruleType)
	}
	return nil
}

// ---- orchestration ----

// UpdateNextOccurrence recomputes and persists a schedule's next occurrence.
//
// It returns nil (without error) when the schedule is missing, inactive,
// usage-based, or when its calculator yields no occurrence; persisted state
// is untouched in those cases. Such schedules simply never surface in the
// due-for-generation query.
func (e *Engine) UpdateNextOccurrence(ctx context.Context, scheduleID string) (*time.Time, error) {
	s, err := e.store.GetSchedule(ctx, scheduleID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !s.Active || s.Params == nil {
		return nil, nil
	}
	if s.Params.Kind() == schedule.KindUsageBased {
		return nil, nil
	}

	now := e.now()
	candidate, ok := e.nextOccurrence(s, now)
	if !ok {
		return nil, nil
	}

	rules, err := e.store.ListActiveRules(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	adjusted := e.applyRules(scheduleID, candidate, rules)

	deps, err := e.store.ListDependencies(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	resolved, err := e.resolveDependencies(ctx, adjusted, deps)
	if err != nil {
		return nil, err
	}

	if err := e.store.SetNextOccurrence(ctx, scheduleID, &resolved); err != nil {
		return nil, err
	}
	e.log.Debug("next occurrence resolved",
		logx.String("schedule", scheduleID),
		logx.Time("candidate", candidate),
		logx.Time("resolved", resolved))
	return &resolved, nil
}

// SchedulesDueForGeneration lists active calendar schedules whose next
// occurrence is at or before now. Usage-based schedules never appear here.
func (e *Engine) SchedulesDueForGeneration(ctx context.Context, orgID string) ([]*schedule.Schedule, error) {
	return e.store.ListDueSchedules(ctx, orgID, e.now())
}

// MarkGenerated records that the due occurrence was handed to task
// creation: the next occurrence becomes the last, and a fresh next is
// computed from it.
func (e *Engine) MarkGenerated(ctx context.Context, scheduleID string) (*time.Time, error) {
	s, err := e.store.GetSchedule(ctx, scheduleID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if s.NextOccurrence == nil {
		return nil, nil
	}
	if err := e.store.SetLastOccurrence(ctx, scheduleID, *s.NextOccurrence); err != nil {
		return nil, err
	}
	return e.UpdateNextOccurrence(ctx, scheduleID)
}

// RecordCompletion appends a done record for the schedule's spawned task,
// stamps the last occurrence and recomputes the next one. Completions are
// what dependency edges resolve against.
func (e *Engine) RecordCompletion(ctx context.Context, scheduleID string, completedAt time.Time) (*schedule.CompletionRecord, error) {
	if _, err := e.store.GetSchedule(ctx, scheduleID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("schedule %s: %w", scheduleID, ErrNotFound)
		}
		return nil, err
	}
	if completedAt.IsZero() {
		completedAt = e.now()
	}
	rec := &schedule.CompletionRecord{
		ID:          uuid.NewString(),
		ScheduleID:  scheduleID,
		Status:      schedule.CompletionDone,
		CompletedAt: completedAt,
	}
	if err := e.store.RecordCompletion(ctx, rec); err != nil {
		return nil, err
	}
	if err := e.store.SetLastOccurrence(ctx, scheduleID, completedAt); err != nil {
		return nil, err
	}
	if _, err := e.UpdateNextOccurrence(ctx, scheduleID); err != nil {
		return nil, err
	}
	return rec, nil
}
