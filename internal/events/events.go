// Package events is the broadcast path between the monitoring pipeline and
// live subscribers (SSE and WebSocket handlers). Publishing never blocks:
// a subscriber that cannot keep up loses events and is told how many it
// lost, which the stream surfaces as a lag frame.
package events

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event types carried on the bus and over the live streams.
const (
	IncidentCreated   = "incident.created"
	IncidentResolved  = "incident.resolved"
	IncidentReminder  = "incident.reminder"
	IncidentEscalated = "incident.escalated"
	MonitorDegraded   = "monitor.degraded"
	MonitorRecovered  = "monitor.recovered"
)

// Event is one status-transition or incident-lifecycle notification.
type Event struct {
	Type      string         `json:"type"`
	MonitorID string         `json:"monitor_id,omitempty"`
	Timestamp time.Time      `json:"ts"`
	Data      map[string]any `json:"data,omitempty"`
}

// DefaultBuffer is the per-subscriber channel depth when Subscribe is
// called with a non-positive size.
const DefaultBuffer = 256

// Subscription is one consumer's view of the bus. Read from C; call
// TakeSkipped before forwarding an event to learn how many were dropped
// while the consumer lagged.
type Subscription struct {
	C <-chan Event

	ch      chan Event
	skipped atomic.Int64
}

// TakeSkipped returns the number of events dropped since the last call and
// resets the counter.
func (s *Subscription) TakeSkipped() int64 {
	return s.skipped.Swap(0)
}

// Bus is a non-blocking broadcast bus. Safe for concurrent use; Publish on
// a nil *Bus is a no-op so wiring stays optional in tests.
type Bus struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	closed bool
}

func NewBus() *Bus {
	return &Bus{subs: make(map[*Subscription]struct{})}
}

// Publish fans the event out to every subscriber. Full subscribers have
// their skip counter bumped instead of receiving the event.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for sub := range b.subs {
		select {
		case sub.ch <- e:
		default:
			sub.skipped.Add(1)
		}
	}
}

// Subscribe registers a consumer. The caller must Unsubscribe when done.
func (b *Bus) Subscribe(buf int) *Subscription {
	if buf <= 0 {
		buf = DefaultBuffer
	}
	sub := &Subscription{ch: make(chan Event, buf)}
	sub.C = sub.ch

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(sub.ch)
		return sub
	}
	b.subs[sub] = struct{}{}
	return sub
}

// Unsubscribe removes the consumer and closes its channel. Calling it twice
// is a no-op.
func (b *Bus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub]; !ok {
		return
	}
	delete(b.subs, sub)
	close(sub.ch)
}

// Close drops all subscribers and rejects future ones.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		delete(b.subs, sub)
		close(sub.ch)
	}
}

func (b *Bus) SubscriberCount() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
