package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rcldesign/asset-manager-sub001/internal/schedule"
	"github.com/rcldesign/asset-manager-sub001/pkg/logx"
)

// runDrivers runs the same assertions against every store implementation.
func runDrivers(t *testing.T, fn func(t *testing.T, st Store)) {
	t.Helper()
	t.Run("memory", func(t *testing.T) {
		t.Parallel()
		st := NewMemory()
		t.Cleanup(func() { st.Close() })
		fn(t, st)
	})
	t.Run("sqlite", func(t *testing.T) {
		t.Parallel()
		st, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "sched.db")}, logx.Nop())
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { st.Close() })
		fn(t, st)
	})
}

func utc(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func testSchedule(id string) *schedule.Schedule {
	now := utc(2024, time.January, 1)
	return &schedule.Schedule{
		ID:        id,
		OrgID:     "org-1",
		AssetID:   "asset-1",
		Name:      "quarterly service",
		Params:    schedule.FixedInterval{Months: 3},
		Active:    true,
		StartDate: now,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestScheduleRoundTrip(t *testing.T) {
	t.Parallel()
	runDrivers(t, func(t *testing.T, st Store) {
		ctx := context.Background()
		want := testSchedule("s1")
		want.TaskTemplate = []byte(`{"title":"service"}`)
		if err := st.CreateSchedule(ctx, want); err != nil {
			t.Fatal(err)
		}

		got, err := st.GetSchedule(ctx, "s1")
		if err != nil {
			t.Fatal(err)
		}
		if got.OrgID != want.OrgID || got.Name != want.Name || !got.Active {
			t.Fatalf("got = %+v", got)
		}
		p, ok := got.Params.(schedule.FixedInterval)
		if !ok || p.Months != 3 {
			t.Fatalf("params = %#v, want FixedInterval{Months: 3}", got.Params)
		}
		if string(got.TaskTemplate) != `{"title":"service"}` {
			t.Fatalf("task template = %s", got.TaskTemplate)
		}
		if !got.StartDate.Equal(want.StartDate) {
			t.Fatalf("start = %v, want %v", got.StartDate, want.StartDate)
		}

		if _, err := st.GetSchedule(ctx, "nope"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
	})
}

func TestOccurrenceUpdates(t *testing.T) {
	t.Parallel()
	runDrivers(t, func(t *testing.T, st Store) {
		ctx := context.Background()
		if err := st.CreateSchedule(ctx, testSchedule("s1")); err != nil {
			t.Fatal(err)
		}

		next := utc(2024, time.April, 1)
		if err := st.SetNextOccurrence(ctx, "s1", &next); err != nil {
			t.Fatal(err)
		}
		if err := st.SetLastOccurrence(ctx, "s1", utc(2024, time.January, 1)); err != nil {
			t.Fatal(err)
		}

		got, err := st.GetSchedule(ctx, "s1")
		if err != nil {
			t.Fatal(err)
		}
		if got.NextOccurrence == nil || !got.NextOccurrence.Equal(next) {
			t.Fatalf("next = %v, want %v", got.NextOccurrence, next)
		}
		if got.LastOccurrence == nil || !got.LastOccurrence.Equal(utc(2024, time.January, 1)) {
			t.Fatalf("last = %v", got.LastOccurrence)
		}

		// Clearing the next occurrence must persist as NULL, not zero time.
		if err := st.SetNextOccurrence(ctx, "s1", nil); err != nil {
			t.Fatal(err)
		}
		got, err = st.GetSchedule(ctx, "s1")
		if err != nil {
			t.Fatal(err)
		}
		if got.NextOccurrence != nil {
			t.Fatalf("next = %v, want nil", got.NextOccurrence)
		}

		if err := st.SetNextOccurrence(ctx, "ghost", &next); !errors.Is(err, ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
	})
}

func TestListDueSchedules(t *testing.T) {
	t.Parallel()
	runDrivers(t, func(t *testing.T, st Store) {
		ctx := context.Background()
		now := utc(2024, time.February, 1)

		set := func(id string, next *time.Time, active bool, orgID string) {
			t.Helper()
			s := testSchedule(id)
			s.OrgID = orgID
			s.Active = active
			if err := st.CreateSchedule(ctx, s); err != nil {
				t.Fatal(err)
			}
			if next != nil {
				if err := st.SetNextOccurrence(ctx, id, next); err != nil {
					t.Fatal(err)
				}
			}
			if !active {
				if err := st.SetScheduleActive(ctx, id, false); err != nil {
					t.Fatal(err)
				}
			}
		}

		past := utc(2024, time.January, 15)
		exact := now
		future := utc(2024, time.March, 1)
		set("due-past", &past, true, "org-1")
		set("due-exact", &exact, true, "org-1")
		set("not-yet", &future, true, "org-1")
		set("inactive", &past, false, "org-1")
		set("no-next", nil, true, "org-1")
		set("other-org", &past, true, "org-2")

		got, err := st.ListDueSchedules(ctx, "org-1", now)
		if err != nil {
			t.Fatal(err)
		}
		ids := map[string]bool{}
		for _, s := range got {
			ids[s.ID] = true
		}
		if len(got) != 2 || !ids["due-past"] || !ids["due-exact"] {
			t.Fatalf("due = %v, want due-past and due-exact", ids)
		}
	})
}

func TestRulesAndDependencies(t *testing.T) {
	t.Parallel()
	runDrivers(t, func(t *testing.T, st Store) {
		ctx := context.Background()
		if err := st.CreateSchedule(ctx, testSchedule("s1")); err != nil {
			t.Fatal(err)
		}
		if err := st.CreateSchedule(ctx, testSchedule("s2")); err != nil {
			t.Fatal(err)
		}

		active := &schedule.Rule{
			ID: "r1", ScheduleID: "s1", Type: schedule.RuleBlackoutDates,
			Config: schedule.RuleConfig{Dates: []string{"2024-12-25"}},
			Active: true, CreatedAt: utc(2024, time.January, 1),
		}
		inactive := &schedule.Rule{
			ID: "r2", ScheduleID: "s1", Type: schedule.RuleBusinessDaysOnly,
			Config: schedule.RuleConfig{ExcludeWeekends: true},
			Active: false, CreatedAt: utc(2024, time.January, 1),
		}
		for _, r := range []*schedule.Rule{active, inactive} {
			if err := st.CreateRule(ctx, r); err != nil {
				t.Fatal(err)
			}
		}

		rules, err := st.ListActiveRules(ctx, "s1")
		if err != nil {
			t.Fatal(err)
		}
		if len(rules) != 1 || rules[0].ID != "r1" {
			t.Fatalf("active rules = %+v, want only r1", rules)
		}
		if len(rules[0].Config.Dates) != 1 || rules[0].Config.Dates[0] != "2024-12-25" {
			t.Fatalf("rule config = %+v", rules[0].Config)
		}

		d := &schedule.Dependency{
			ID: "d1", ScheduleID: "s1", DependsOnID: "s2",
			OffsetDays: 3, CreatedAt: utc(2024, time.January, 1),
		}
		if err := st.CreateDependency(ctx, d); err != nil {
			t.Fatal(err)
		}
		deps, err := st.ListDependencies(ctx, "s1")
		if err != nil {
			t.Fatal(err)
		}
		if len(deps) != 1 || deps[0].DependsOnID != "s2" || deps[0].OffsetDays != 3 {
			t.Fatalf("deps = %+v", deps)
		}
	})
}

func TestCounterMutation(t *testing.T) {
	t.Parallel()
	runDrivers(t, func(t *testing.T, st Store) {
		ctx := context.Background()
		c := &schedule.UsageCounter{
			AssetID: "asset-1", CounterType: "hours", ScheduleID: "s1",
			Value: 10, UpdatedAt: utc(2024, time.January, 1),
		}
		if err := st.UpsertCounter(ctx, c); err != nil {
			t.Fatal(err)
		}

		got, err := st.MutateCounter(ctx, "asset-1", "hours", func(c *schedule.UsageCounter) error {
			c.Value += 5
			c.Notes = "topped up"
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
		if got.Value != 15 || got.Notes != "topped up" {
			t.Fatalf("mutated = %+v", got)
		}

		// A failing callback must leave the stored counter untouched.
		boom := errors.New("boom")
		if _, err := st.MutateCounter(ctx, "asset-1", "hours", func(c *schedule.UsageCounter) error {
			c.Value = 999
			return boom
		}); !errors.Is(err, boom) {
			t.Fatalf("err = %v, want boom", err)
		}
		got, err = st.GetCounter(ctx, "asset-1", "hours")
		if err != nil {
			t.Fatal(err)
		}
		if got.Value != 15 {
			t.Fatalf("value = %v, want rollback to 15", got.Value)
		}

		if _, err := st.GetCounter(ctx, "ghost", "hours"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
		if _, err := st.MutateCounter(ctx, "ghost", "hours", func(*schedule.UsageCounter) error { return nil }); !errors.Is(err, ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
	})
}

func TestUpsertCounterPreservesValue(t *testing.T) {
	t.Parallel()
	runDrivers(t, func(t *testing.T, st Store) {
		ctx := context.Background()
		if err := st.UpsertCounter(ctx, &schedule.UsageCounter{
			AssetID: "asset-1", CounterType: "hours", ScheduleID: "s1",
			Value: 37, UpdatedAt: utc(2024, time.January, 1),
		}); err != nil {
			t.Fatal(err)
		}

		// Re-upserting (e.g. a usage schedule re-created over a live meter)
		// rebinds the schedule but must not erase accumulated usage.
		if err := st.UpsertCounter(ctx, &schedule.UsageCounter{
			AssetID: "asset-1", CounterType: "hours", ScheduleID: "s2",
			Value: 0, UpdatedAt: utc(2024, time.February, 1),
		}); err != nil {
			t.Fatal(err)
		}

		got, err := st.GetCounter(ctx, "asset-1", "hours")
		if err != nil {
			t.Fatal(err)
		}
		if got.Value != 37 {
			t.Fatalf("value = %v, want accumulated 37", got.Value)
		}
		if got.ScheduleID != "s2" {
			t.Fatalf("schedule = %q, want rebound to s2", got.ScheduleID)
		}
		if !got.UpdatedAt.Equal(utc(2024, time.February, 1)) {
			t.Fatalf("updated = %v", got.UpdatedAt)
		}
	})
}

func TestLastCompletionOrdering(t *testing.T) {
	t.Parallel()
	runDrivers(t, func(t *testing.T, st Store) {
		ctx := context.Background()
		if err := st.CreateSchedule(ctx, testSchedule("s1")); err != nil {
			t.Fatal(err)
		}

		if _, err := st.LastCompletion(ctx, "s1"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound before any completion", err)
		}

		// Inserted out of order: latest completed_at must win.
		for _, rec := range []*schedule.CompletionRecord{
			{ID: "c2", ScheduleID: "s1", Status: schedule.CompletionDone, CompletedAt: utc(2024, time.March, 1)},
			{ID: "c1", ScheduleID: "s1", Status: schedule.CompletionDone, CompletedAt: utc(2024, time.January, 1)},
			{ID: "c3", ScheduleID: "s1", Status: schedule.CompletionDone, CompletedAt: utc(2024, time.February, 1)},
		} {
			if err := st.RecordCompletion(ctx, rec); err != nil {
				t.Fatal(err)
			}
		}

		got, err := st.LastCompletion(ctx, "s1")
		if err != nil {
			t.Fatal(err)
		}
		if got.ID != "c2" || !got.CompletedAt.Equal(utc(2024, time.March, 1)) {
			t.Fatalf("last = %+v, want c2 at 2024-03-01", got)
		}
	})
}

func TestOpenDriverSelection(t *testing.T) {
	t.Parallel()
	st, err := Open(Config{}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	if _, ok := st.(*memoryStore); !ok {
		t.Fatalf("empty config should select the memory driver, got %T", st)
	}

	if _, err := Open(Config{Driver: "postgres"}, logx.Nop()); err == nil {
		t.Fatal("unknown driver must error")
	}
}
