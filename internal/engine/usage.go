package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/rcldesign/asset-manager-sub001/internal/eventbus"
	"github.com/rcldesign/asset-manager-sub001/internal/schedule"
	"github.com/rcldesign/asset-manager-sub001/internal/storage"
	logx "github.com/rcldesign/asset-manager-sub001/pkg/logx"
)

// CounterUpdate is the outcome of one increment call.
type CounterUpdate struct {
	Counter   *schedule.UsageCounter
	Triggered bool
	// Schedule is the owning usage-based schedule, set when Triggered.
	Schedule *schedule.Schedule
}

// UpdateUsageCounter applies a delta to the (asset, counter type) counter
// and reports whether the owning schedule's threshold was crossed.
//
// The counter must already exist (created with its usage-based schedule);
// otherwise ErrNotFound. Negative deltas are allowed: a counter can be
// corrected downward and effectively un-trigger.
//
// On trigger with reset_on_trigger the counter restarts at 0 and the reset
// is stamped; without it the over-threshold value is retained as-is. The
// value, notes and trigger decision commit in one atomic store mutation.
func (e *Engine) UpdateUsageCounter(ctx context.Context, assetID, counterType string, delta float64, notes string) (*CounterUpdate, error) {
	cur, err := e.store.GetCounter(ctx, assetID, counterType)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("counter %s/%s: %w", assetID, counterType, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	// Resolve the owning schedule's threshold config before entering the
	// counter transaction; schedule definitions change rarely and nested
	// store calls inside the mutation would serialize against themselves.
	var (
		owner  *schedule.Schedule
		params schedule.UsageBased
	)
	if cur.ScheduleID != "" {
		s, err := e.store.GetSchedule(ctx, cur.ScheduleID)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			// Counter outlives its schedule; it keeps accumulating untriggered.
		case err != nil:
			return nil, err
		default:
			if p, ok := s.Params.(schedule.UsageBased); ok {
				owner = s
				params = p
			}
		}
	}

	triggered := false
	wasReset := false
	updated, err := e.store.MutateCounter(ctx, assetID, counterType, func(c *schedule.UsageCounter) error {
		now := e.now()
		newValue := c.Value + delta
		triggered = owner != nil && newValue >= params.Threshold
		if triggered && params.ResetOnTrigger {
			c.Value = 0
			resetAt := now
			c.LastResetAt = &resetAt
			wasReset = true
		} else {
			c.Value = newValue
		}
		if notes != "" {
			c.Notes = notes
		}
		c.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := &CounterUpdate{Counter: updated, Triggered: triggered}
	if triggered {
		out.Schedule = owner
		e.log.Info("usage threshold crossed",
			logx.String("schedule", owner.ID),
			logx.String("asset", assetID),
			logx.String("counter", counterType),
			logx.Float64("threshold", params.Threshold),
			logx.Bool("reset", wasReset))
		if e.bus != nil {
			e.bus.Publish(eventbus.Event{
				Type: eventbus.TypeCounterTriggered,
				Data: eventbus.CounterTriggered{
					ScheduleID:  owner.ID,
					AssetID:     assetID,
					CounterType: counterType,
					Value:       updated.Value,
					Threshold:   params.Threshold,
					WasReset:    wasReset,
				},
			})
		}
	}
	return out, nil
}
