// Package eventbus decouples the engine from the task-creation side.
//
// The engine and the sweeper publish firing decisions here; whatever
// service actually materializes tasks subscribes. Nothing in this module
// creates tasks itself.
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event types published by this module.
const (
	// TypeTaskDue fires once per due calendar occurrence swept. Data is a
	// TaskDue payload.
	TypeTaskDue = "task.due"
	// TypeCounterTriggered fires when a usage counter crosses its owning
	// schedule's threshold. Data is a CounterTriggered payload.
	TypeCounterTriggered = "counter.triggered"
)

// TaskDue is the payload for TypeTaskDue.
type TaskDue struct {
	ScheduleID   string    `json:"schedule_id"`
	OrgID        string    `json:"org_id"`
	AssetID      string    `json:"asset_id,omitempty"`
	Name         string    `json:"name"`
	OccurredOn   time.Time `json:"occurred_on"`
	TaskTemplate []byte    `json:"task_template,omitempty"`
}

// CounterTriggered is the payload for TypeCounterTriggered.
type CounterTriggered struct {
	ScheduleID  string  `json:"schedule_id"`
	AssetID     string  `json:"asset_id"`
	CounterType string  `json:"counter_type"`
	Value       float64 `json:"value"`
	Threshold   float64 `json:"threshold"`
	WasReset    bool    `json:"was_reset"`
}

// Event is a lightweight, in-memory signal.
//
// Contract:
//   - Publish MUST be non-blocking.
//   - Subscribers MUST use buffered channels.
//   - Slow subscribers may drop events (bounded backpressure).
type Event struct {
	Type string
	Time time.Time
	Data any
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns a simple in-memory fanout bus.
//
// It intentionally does not own any background goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]chan Event
	seq  atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// Snapshot subscribers so Publish doesn't hold locks while attempting sends.
	b.mu.RLock()
	chs := make([]chan Event, 0, len(b.subs))
	for _, ch := range b.subs {
		chs = append(chs, ch)
	}
	b.mu.RUnlock()

	for _, ch := range chs {
		// Non-blocking delivery. If subscriber is slow, we drop.
		// If a subscriber unsubscribes concurrently and the channel closes,
		// recover from a possible panic (send on closed channel).
		func() {
			defer func() { _ = recover() }()
			select {
			case ch <- e:
			default:
			}
		}()
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			// Closing is safe because Publish recovers from send panics.
			close(ch)
		})
	}
	return ch, unsub
}
