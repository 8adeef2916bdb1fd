package usecase

import (
	"sync"
	"time"

	"github.com/chainsmith/chasm/internal/domain"
)

// DashboardEventKind names the kind of data a dashboard event carries
type DashboardEventKind string

const (
	EventBlock    DashboardEventKind = "block"
	EventLiveness DashboardEventKind = "liveness"
	EventResult   DashboardEventKind = "result"
	EventPurge    DashboardEventKind = "purge"
)

// DashboardEvent is one piece of derived data shown to the operator. Every
// event is tagged with the mode of the network it came from.
type DashboardEvent struct {
	Kind      DashboardEventKind      `json:"kind"`
	Mode      domain.Mode             `json:"mode"`
	At        time.Time               `json:"at"`
	Block     uint64                  `json:"block,omitempty"`
	Connected bool                    `json:"connected"`
	Endpoint  string                  `json:"endpoint,omitempty"`
	Result    *domain.ExecutionResult `json:"result,omitempty"`
}

const (
	defaultDashboardHistory = 256
	subscriberBuffer        = 32
)

// Dashboard is the in-memory feed of blocks, liveness and results
type Dashboard struct {
	mu      sync.RWMutex
	events  []DashboardEvent
	limit   int
	epochs  map[domain.Mode]uint64
	subs    map[int]chan DashboardEvent
	nextSub int
	closed  bool
	now     func() time.Time
}

// NewDashboard creates an empty feed
func NewDashboard() *Dashboard {
	return &Dashboard{
		limit:  defaultDashboardHistory,
		epochs: map[domain.Mode]uint64{},
		subs:   map[int]chan DashboardEvent{},
		now:    time.Now,
	}
}

// Epoch returns the purge generation of mode. Pass it to PublishAt so that data
// fetched before a purge is dropped.
func (d *Dashboard) Epoch(mode domain.Mode) uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.epochs[mode]
}

// Publish appends an event for the current epoch of its mode
func (d *Dashboard) Publish(ev DashboardEvent) {
	d.PublishAt(d.Epoch(ev.Mode), ev)
}

// PublishAt appends an event unless its mode was purged since epoch. It
// reports whether the event was kept.
func (d *Dashboard) PublishAt(epoch uint64, ev DashboardEvent) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed || d.epochs[ev.Mode] != epoch {
		return false
	}
	if ev.At.IsZero() {
		ev.At = d.now()
	}
	d.events = append(d.events, ev)
	if len(d.events) > d.limit {
		d.events = d.events[len(d.events)-d.limit:]
	}
	d.broadcastLocked(ev)
	return true
}

func (d *Dashboard) broadcastLocked(ev DashboardEvent) {
	for _, ch := range d.subs {
		select {
		case ch <- ev:
		default:
			// slow subscriber, drop
		}
	}
}

// Purge removes every event tagged with mode
func (d *Dashboard) Purge(mode domain.Mode) {
	d.mu.Lock()
	defer d.mu.Unlock()

	kept := d.events[:0]
	for _, ev := range d.events {
		if ev.Mode != mode {
			kept = append(kept, ev)
		}
	}
	d.events = kept
	d.epochs[mode]++
	if !d.closed {
		d.broadcastLocked(DashboardEvent{Kind: EventPurge, Mode: mode, At: d.now()})
	}
}

// Events returns the events tagged with mode, oldest first
func (d *Dashboard) Events(mode domain.Mode) []DashboardEvent {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []DashboardEvent
	for _, ev := range d.events {
		if ev.Mode == mode {
			out = append(out, ev)
		}
	}
	return out
}

// Latest returns the most recent block event for mode
func (d *Dashboard) Latest(mode domain.Mode) (DashboardEvent, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for i := len(d.events) - 1; i >= 0; i-- {
		if ev := d.events[i]; ev.Mode == mode && ev.Kind == EventBlock {
			return ev, true
		}
	}
	return DashboardEvent{}, false
}

// Subscribe returns a channel of new events and a function to stop receiving
func (d *Dashboard) Subscribe() (<-chan DashboardEvent, func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ch := make(chan DashboardEvent, subscriberBuffer)
	if d.closed {
		close(ch)
		return ch, func() {}
	}
	id := d.nextSub
	d.nextSub++
	d.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			if sub, ok := d.subs[id]; ok {
				delete(d.subs, id)
				close(sub)
			}
		})
	}
}

// Close drops all subscribers and rejects further events
func (d *Dashboard) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}
	d.closed = true
	for id, ch := range d.subs {
		delete(d.subs, id)
		close(ch)
	}
}
