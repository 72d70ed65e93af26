// Package telemetry implements spec.md §4.10: an in-process event bus
// fed by the Device Actor, Resource Manager and UDP Server, with
// best-effort, non-blocking delivery to subscribed sinks so a slow or
// stalled sink can never stall a request-handling path.
package telemetry

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event is one telemetry occurrence (spec.md §4.10's event names:
// device.created, device.destroyed, device.request, performance.report,
// resource.usage, resource.limit_exceeded).
type Event struct {
	Name   string
	At     time.Time
	Fields map[string]interface{}
}

// Sink receives events from the Bus. Handle must not block — a Bus with
// a blocked sink falls back to dropping events for everyone, since
// delivery is fan-out from one shared channel.
type Sink interface {
	Handle(Event)
}

// busSize bounds how many undelivered events the bus buffers before
// Emit starts dropping, rather than blocking, the caller.
const busSize = 1024

// Bus is the process-wide event bus. Emit is safe to call from any
// goroutine (device actors, the Resource Manager, UDP server workers);
// a single internal goroutine fans each event out to every subscribed
// Sink.
type Bus struct {
	events chan Event

	mu    sync.Mutex
	sinks []Sink

	droppedCount uint64
}

// NewBus starts the bus's fan-out goroutine with the given sinks
// subscribed from startup (spec.md §4.10: "sinks subscribe at startup").
func NewBus(sinks ...Sink) *Bus {
	b := &Bus{
		events: make(chan Event, busSize),
		sinks:  sinks,
	}
	go b.run()
	return b
}

// AddSink subscribes s to every event emitted from now on. Safe to call
// once the bus is already running — needed by sinks like ReportSink that
// must themselves hold a *Bus reference before they can be constructed,
// so they cannot be passed into NewBus's variadic sinks at startup.
func (b *Bus) AddSink(s Sink) {
	b.mu.Lock()
	b.sinks = append(b.sinks, s)
	b.mu.Unlock()
}

// Emit delivers name/fields to every sink, best-effort. If the bus's
// internal queue is full, the event is dropped and counted rather than
// blocking the caller — this is the concrete form of spec.md §4.10's
// "delivery is best-effort and must not block core paths."
func (b *Bus) Emit(name string, fields map[string]interface{}) {
	select {
	case b.events <- Event{Name: name, At: time.Now(), Fields: fields}:
	default:
		atomic.AddUint64(&b.droppedCount, 1)
	}
}

// DroppedCount returns how many events have been dropped due to
// backpressure since the bus started.
func (b *Bus) DroppedCount() uint64 {
	return atomic.LoadUint64(&b.droppedCount)
}

func (b *Bus) run() {
	for ev := range b.events {
		b.mu.Lock()
		sinks := b.sinks
		b.mu.Unlock()
		for _, s := range sinks {
			s.Handle(ev)
		}
	}
}
