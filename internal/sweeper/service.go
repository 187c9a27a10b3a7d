package sweeper

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"github.com/rcldesign/asset-manager-sub001/internal/engine"
	"github.com/rcldesign/asset-manager-sub001/internal/eventbus"
	logx "github.com/rcldesign/asset-manager-sub001/pkg/logx"
)

// Config controls the sweep loop.
type Config struct {
	Enabled  bool
	Interval time.Duration
	// Orgs lists the organization scopes to sweep each pass.
	Orgs []string
	// RatePerSec paces per-schedule work within a pass (0 = default 10).
	RatePerSec int
}

// Snapshot is a lightweight view for diagnostics.
type Snapshot struct {
	Enabled   bool
	Interval  time.Duration
	Running   bool
	Sweeps    uint64
	Generated uint64
	LastSweep time.Time
}

// Service periodically resolves due schedules through the engine.
type Service struct {
	mu  sync.Mutex
	cfg Config

	log logx.Logger
	eng *engine.Engine
	bus eventbus.Bus

	c       *cron.Cron
	entryID cron.EntryID
	limiter *rate.Limiter

	runCtx    context.Context
	runCancel context.CancelFunc

	sweeps    uint64
	generated uint64
	lastSweep time.Time
}

func New(cfg Config, eng *engine.Engine, bus eventbus.Bus, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, eng: eng, bus: bus, log: log, limiter: newLimiter(cfg.RatePerSec)}
}

func newLimiter(perSec int) *rate.Limiter {
	if perSec <= 0 {
		perSec = 10
	}
	return rate.NewLimiter(rate.Limit(perSec), perSec)
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Apply swaps the sweep interval and pacing at runtime.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	restart := s.c != nil && cfg.Interval != s.cfg.Interval
	s.cfg = cfg
	s.limiter = newLimiter(cfg.RatePerSec)
	var c *cron.Cron
	if restart {
		c = s.c
		s.c = nil
		s.entryID = 0
	}
	s.mu.Unlock()
	if c == nil {
		return
	}

	// Wait for an in-flight pass outside the lock; Sweep needs s.mu to
	// finish, and cron's Stop blocks until running jobs return.
	<-c.Stop().Done()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runCancel != nil {
		// Still started; bring the tick back up on the new interval.
		s.startCronLocked()
	}
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runCancel != nil || !s.cfg.Enabled {
		return
	}
	s.runCtx, s.runCancel = context.WithCancel(ctx)
	s.startCronLocked()
	s.log.Info("sweeper started",
		logx.Duration("interval", s.intervalLocked()),
		logx.Int("orgs", len(s.cfg.Orgs)))
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	cancel := s.runCancel
	s.c = nil
	s.entryID = 0
	s.runCancel = nil
	s.mu.Unlock()
	if c == nil && cancel == nil {
		return
	}

	// Cancel first so a paced pass aborts at its next limiter wait, then
	// wait for it outside the lock (Sweep re-acquires s.mu on exit).
	if cancel != nil {
		cancel()
	}
	if c != nil {
		<-c.Stop().Done()
	}
	s.log.Info("sweeper stopped")
}

func (s *Service) intervalLocked() time.Duration {
	if s.cfg.Interval > 0 {
		return s.cfg.Interval
	}
	return time.Minute
}

// startCronLocked registers the sweep tick. Call with s.mu held.
func (s *Service) startCronLocked() {
	s.c = cron.New()
	every := "@every " + s.intervalLocked().String()
	eid, err := s.c.AddFunc(every, func() {
		s.mu.Lock()
		ctx := s.runCtx
		s.mu.Unlock()
		if ctx == nil {
			return
		}
		s.Sweep(ctx)
	})
	if err != nil {
		s.log.Error("sweep tick registration failed", logx.String("spec", every), logx.Err(err))
		s.c = nil
		return
	}
	s.entryID = eid
	s.c.Start()
}

// Sweep runs a single pass over all configured orgs. Exported so callers
// (and tests) can drive a pass without the tick.
func (s *Service) Sweep(ctx context.Context) {
	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	s.mu.Unlock()

	var generated uint64
	for _, org := range cfg.Orgs {
		due, err := s.eng.SchedulesDueForGeneration(ctx, org)
		if err != nil {
			s.log.Warn("due-schedule query failed", logx.String("org", org), logx.Err(err))
			continue
		}
		for _, sched := range due {
			if err := lim.Wait(ctx); err != nil {
				return
			}
			occurredOn := *sched.NextOccurrence
			if s.bus != nil {
				s.bus.Publish(eventbus.Event{
					Type: eventbus.TypeTaskDue,
					Data: eventbus.TaskDue{
						ScheduleID:   sched.ID,
						OrgID:        sched.OrgID,
						AssetID:      sched.AssetID,
						Name:         sched.Name,
						OccurredOn:   occurredOn,
						TaskTemplate: sched.TaskTemplate,
					},
				})
			}
			// Roll forward even if no subscriber consumed the event; the
			// decision that the occurrence fired has been made.
			if _, err := s.eng.MarkGenerated(ctx, sched.ID); err != nil {
				s.log.Warn("occurrence roll-forward failed",
					logx.String("schedule", sched.ID), logx.Err(err))
				continue
			}
			generated++
			s.log.Debug("occurrence generated",
				logx.String("schedule", sched.ID),
				logx.Time("occurred_on", occurredOn))
		}
	}

	s.mu.Lock()
	s.sweeps++
	s.generated += generated
	s.lastSweep = time.Now()
	s.mu.Unlock()
}

func (s *Service) SnapshotInfo() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Enabled:   s.cfg.Enabled,
		Interval:  s.intervalLocked(),
		Running:   s.c != nil,
		Sweeps:    s.sweeps,
		Generated: s.generated,
		LastSweep: s.lastSweep,
	}
}
