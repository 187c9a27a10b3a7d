package engine

import (
	"context"
	"errors"
	"time"

	"github.com/rcldesign/asset-manager-sub001/internal/calendar"
	"github.com/rcldesign/asset-manager-sub001/internal/schedule"
	"github.com/rcldesign/asset-manager-sub001/internal/storage"
	logx "github.com/rcldesign/asset-manager-sub001/pkg/logx"
)

// resolveDependencies pushes the candidate date forward until every
// dependency's floor (prerequisite's last completion + offset days) is
// satisfied. AND semantics: the result is the max over all floors and is
// never before the candidate.
//
// Prerequisites with no completed record yet do not constrain.
func (e *Engine) resolveDependencies(ctx context.Context, candidate time.Time, deps []*schedule.Dependency) (time.Time, error) {
	resolved := candidate
	for _, d := range deps {
		done, err := e.store.LastCompletion(ctx, d.DependsOnID)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return time.Time{}, err
		}
		floor := calendar.AddDays(calendar.Midnight(done.CompletedAt), d.OffsetDays)
		if floor.After(resolved) {
			e.log.Debug("dependency floor pushes occurrence forward",
				logx.String("depends_on", d.DependsOnID),
				logx.Int("offset_days", d.OffsetDays),
				logx.Time("floor", floor))
			resolved = floor
		}
	}
	return resolved, nil
}
