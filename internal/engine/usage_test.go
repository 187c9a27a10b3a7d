package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rcldesign/asset-manager-sub001/internal/eventbus"
	"github.com/rcldesign/asset-manager-sub001/internal/schedule"
)

func newUsageFixture(t *testing.T, p schedule.UsageBased) (*Engine, *schedule.Schedule) {
	t.Helper()
	e := newTestEngine(t, date(2024, time.January, 1))
	s, err := e.CreateUsageBasedSchedule(context.Background(), "org-1", "asset-1", "by usage", p, nil)
	if err != nil {
		t.Fatal(err)
	}
	return e, s
}

func TestUpdateUsageCounterBelowThreshold(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e, _ := newUsageFixture(t, schedule.UsageBased{CounterType: "hours", Threshold: 50})

	upd, err := e.UpdateUsageCounter(ctx, "asset-1", "hours", 45, "pre-season run")
	if err != nil {
		t.Fatal(err)
	}
	if upd.Triggered {
		t.Fatal("45 of 50 must not trigger")
	}
	if upd.Counter.Value != 45 {
		t.Fatalf("value = %v, want 45", upd.Counter.Value)
	}
	if upd.Counter.Notes != "pre-season run" {
		t.Fatalf("notes = %q", upd.Counter.Notes)
	}
}

func TestUpdateUsageCounterCrossesThreshold(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e, s := newUsageFixture(t, schedule.UsageBased{CounterType: "hours", Threshold: 50})

	events, cancel := e.bus.Subscribe(4)
	defer cancel()

	if _, err := e.UpdateUsageCounter(ctx, "asset-1", "hours", 45, ""); err != nil {
		t.Fatal(err)
	}
	upd, err := e.UpdateUsageCounter(ctx, "asset-1", "hours", 10, "")
	if err != nil {
		t.Fatal(err)
	}
	if !upd.Triggered {
		t.Fatal("55 of 50 must trigger")
	}
	if upd.Schedule == nil || upd.Schedule.ID != s.ID {
		t.Fatalf("schedule = %+v, want owning schedule %s", upd.Schedule, s.ID)
	}
	// No reset configured: the over-threshold value is retained.
	if upd.Counter.Value != 55 {
		t.Fatalf("value = %v, want 55", upd.Counter.Value)
	}
	if upd.Counter.LastResetAt != nil {
		t.Fatal("no reset expected")
	}

	select {
	case ev := <-events:
		if ev.Type != eventbus.TypeCounterTriggered {
			t.Fatalf("event type = %q", ev.Type)
		}
		data, ok := ev.Data.(eventbus.CounterTriggered)
		if !ok {
			t.Fatalf("event data = %T", ev.Data)
		}
		if data.ScheduleID != s.ID || data.Value != 55 {
			t.Fatalf("event = %+v", data)
		}
	case <-time.After(time.Second):
		t.Fatal("no counter-triggered event published")
	}
}

func TestUpdateUsageCounterResetOnTrigger(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e, _ := newUsageFixture(t, schedule.UsageBased{
		CounterType: "hours", Threshold: 50, ResetOnTrigger: true,
	})

	upd, err := e.UpdateUsageCounter(ctx, "asset-1", "hours", 55, "")
	if err != nil {
		t.Fatal(err)
	}
	if !upd.Triggered {
		t.Fatal("expected trigger")
	}
	if upd.Counter.Value != 0 {
		t.Fatalf("value = %v, want 0 after reset", upd.Counter.Value)
	}
	if upd.Counter.LastResetAt == nil {
		t.Fatal("reset timestamp missing")
	}

	// The next cycle starts from zero.
	upd, err = e.UpdateUsageCounter(ctx, "asset-1", "hours", 10, "")
	if err != nil {
		t.Fatal(err)
	}
	if upd.Triggered || upd.Counter.Value != 10 {
		t.Fatalf("post-reset update = triggered %v value %v, want false 10", upd.Triggered, upd.Counter.Value)
	}
}

func TestUpdateUsageCounterNegativeDelta(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e, _ := newUsageFixture(t, schedule.UsageBased{CounterType: "hours", Threshold: 50})

	if _, err := e.UpdateUsageCounter(ctx, "asset-1", "hours", 48, ""); err != nil {
		t.Fatal(err)
	}
	// Downward correction keeps the counter below threshold.
	upd, err := e.UpdateUsageCounter(ctx, "asset-1", "hours", -8, "meter misread")
	if err != nil {
		t.Fatal(err)
	}
	if upd.Triggered {
		t.Fatal("corrected value must not trigger")
	}
	if upd.Counter.Value != 40 {
		t.Fatalf("value = %v, want 40", upd.Counter.Value)
	}
}

func TestUpdateUsageCounterMissing(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, date(2024, time.January, 1))
	_, err := e.UpdateUsageCounter(context.Background(), "ghost", "hours", 1, "")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
