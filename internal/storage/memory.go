package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rcldesign/asset-manager-sub001/internal/schedule"
)

// memoryStore is an in-process Store used by tests and no-setup runs.
// A single mutex gives it the same atomicity contract as the sqlite driver.
type memoryStore struct {
	mu sync.Mutex

	schedules    map[string]*schedule.Schedule
	rules        map[string][]*schedule.Rule       // by schedule id
	dependencies map[string][]*schedule.Dependency // by schedule id
	counters     map[string]*schedule.UsageCounter // by asset id + "\x00" + counter type
	completions  map[string][]*schedule.CompletionRecord
}

// NewMemory returns an empty in-memory store.
func NewMemory() Store {
	return &memoryStore{
		schedules:    map[string]*schedule.Schedule{},
		rules:        map[string][]*schedule.Rule{},
		dependencies: map[string][]*schedule.Dependency{},
		counters:     map[string]*schedule.UsageCounter{},
		completions:  map[string][]*schedule.CompletionRecord{},
	}
}

func (m *memoryStore) Close() error { return nil }

func counterKey(assetID, counterType string) string {
	return assetID + "\x00" + counterType
}

// ---- schedules ----

func (m *memoryStore) CreateSchedule(ctx context.Context, s *schedule.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedules[s.ID] = cloneSchedule(s)
	return nil
}

func (m *memoryStore) GetSchedule(ctx context.Context, id string) (*schedule.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.schedules[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneSchedule(s), nil
}

func (m *memoryStore) SetNextOccurrence(ctx context.Context, id string, next *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.schedules[id]
	if !ok {
		return ErrNotFound
	}
	s.NextOccurrence = cloneTimePtr(next)
	s.UpdatedAt = time.Now()
	return nil
}

func (m *memoryStore) SetLastOccurrence(ctx context.Context, id string, last time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.schedules[id]
	if !ok {
		return ErrNotFound
	}
	s.LastOccurrence = &last
	s.UpdatedAt = time.Now()
	return nil
}

func (m *memoryStore) SetScheduleActive(ctx context.Context, id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.schedules[id]
	if !ok {
		return ErrNotFound
	}
	s.Active = active
	s.UpdatedAt = time.Now()
	return nil
}

func (m *memoryStore) ListDueSchedules(ctx context.Context, orgID string, now time.Time) ([]*schedule.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*schedule.Schedule
	for _, s := range m.schedules {
		if s.OrgID != orgID || !s.Active {
			continue
		}
		if s.Params.Kind() == schedule.KindUsageBased {
			continue
		}
		if s.NextOccurrence == nil || s.NextOccurrence.After(now) {
			continue
		}
		out = append(out, cloneSchedule(s))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].NextOccurrence.Before(*out[j].NextOccurrence)
	})
	return out, nil
}

// ---- rules ----

func (m *memoryStore) CreateRule(ctx context.Context, r *schedule.Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.rules[r.ScheduleID] = append(m.rules[r.ScheduleID], &cp)
	return nil
}

func (m *memoryStore) ListActiveRules(ctx context.Context, scheduleID string) ([]*schedule.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*schedule.Rule
	for _, r := range m.rules[scheduleID] {
		if r.Active {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ---- dependencies ----

func (m *memoryStore) CreateDependency(ctx context.Context, d *schedule.Dependency) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *d
	m.dependencies[d.ScheduleID] = append(m.dependencies[d.ScheduleID], &cp)
	return nil
}

func (m *memoryStore) ListDependencies(ctx context.Context, scheduleID string) ([]*schedule.Dependency, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*schedule.Dependency
	for _, d := range m.dependencies[scheduleID] {
		cp := *d
		out = append(out, &cp)
	}
	return out, nil
}

// ---- usage counters ----

func (m *memoryStore) UpsertCounter(ctx context.Context, c *schedule.UsageCounter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := counterKey(c.AssetID, c.CounterType)
	if cur, ok := m.counters[key]; ok {
		cur.ScheduleID = c.ScheduleID
		cur.UpdatedAt = c.UpdatedAt
		return nil
	}
	cp := *c
	cp.LastResetAt = cloneTimePtr(c.LastResetAt)
	m.counters[key] = &cp
	return nil
}

func (m *memoryStore) GetCounter(ctx context.Context, assetID, counterType string) (*schedule.UsageCounter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.counters[counterKey(assetID, counterType)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	cp.LastResetAt = cloneTimePtr(c.LastResetAt)
	return &cp, nil
}

func (m *memoryStore) MutateCounter(ctx context.Context, assetID, counterType string, fn func(*schedule.UsageCounter) error) (*schedule.UsageCounter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.counters[counterKey(assetID, counterType)]
	if !ok {
		return nil, ErrNotFound
	}
	// Mutate a copy; commit only if fn succeeds.
	cp := *c
	cp.LastResetAt = cloneTimePtr(c.LastResetAt)
	if err := fn(&cp); err != nil {
		return nil, err
	}
	committed := cp
	committed.LastResetAt = cloneTimePtr(cp.LastResetAt)
	m.counters[counterKey(assetID, counterType)] = &committed
	out := cp
	return &out, nil
}

// ---- completions ----

func (m *memoryStore) RecordCompletion(ctx context.Context, c *schedule.CompletionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.completions[c.ScheduleID] = append(m.completions[c.ScheduleID], &cp)
	return nil
}

func (m *memoryStore) LastCompletion(ctx context.Context, scheduleID string) (*schedule.CompletionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *schedule.CompletionRecord
	for _, c := range m.completions[scheduleID] {
		if c.Status != schedule.CompletionDone {
			continue
		}
		if latest == nil || c.CompletedAt.After(latest.CompletedAt) {
			latest = c
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

// ---- helpers ----

func cloneSchedule(s *schedule.Schedule) *schedule.Schedule {
	cp := *s
	cp.LastOccurrence = cloneTimePtr(s.LastOccurrence)
	cp.NextOccurrence = cloneTimePtr(s.NextOccurrence)
	if s.TaskTemplate != nil {
		cp.TaskTemplate = append([]byte(nil), s.TaskTemplate...)
	}
	return &cp
}

func cloneTimePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}
