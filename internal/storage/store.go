package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rcldesign/asset-manager-sub001/internal/schedule"
	logx "github.com/rcldesign/asset-manager-sub001/pkg/logx"
)

// ErrNotFound is returned when a keyed lookup matches no record.
var ErrNotFound = errors.New("storage: not found")

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file (default when Path is set)
//   - "memory": in-process store, nothing survives restart
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the persistence API used by the engine and the sweeper.
//
// Implementations must make MutateCounter an atomic read-modify-write: the
// callback's changes and the caller's trigger decision commit together, and
// two concurrent increments on the same counter never lose an update.
type Store interface {
	CreateSchedule(ctx context.Context, s *schedule.Schedule) error
	GetSchedule(ctx context.Context, id string) (*schedule.Schedule, error)
	SetNextOccurrence(ctx context.Context, id string, next *time.Time) error
	SetLastOccurrence(ctx context.Context, id string, last time.Time) error
	SetScheduleActive(ctx context.Context, id string, active bool) error
	ListDueSchedules(ctx context.Context, orgID string, now time.Time) ([]*schedule.Schedule, error)

	CreateRule(ctx context.Context, r *schedule.Rule) error
	ListActiveRules(ctx context.Context, scheduleID string) ([]*schedule.Rule, error)

	CreateDependency(ctx context.Context, d *schedule.Dependency) error
	ListDependencies(ctx context.Context, scheduleID string) ([]*schedule.Dependency, error)

	UpsertCounter(ctx context.Context, c *schedule.UsageCounter) error
	GetCounter(ctx context.Context, assetID, counterType string) (*schedule.UsageCounter, error)
	MutateCounter(ctx context.Context, assetID, counterType string, fn func(*schedule.UsageCounter) error) (*schedule.UsageCounter, error)

	RecordCompletion(ctx context.Context, c *schedule.CompletionRecord) error
	LastCompletion(ctx context.Context, scheduleID string) (*schedule.CompletionRecord, error)

	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}

	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" {
		if strings.TrimSpace(cfg.Path) != "" {
			driver = "sqlite"
		} else {
			driver = "memory"
		}
	}

	switch driver {
	case "memory":
		return NewMemory(), nil
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
