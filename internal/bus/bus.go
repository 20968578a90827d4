// Package bus provides the multi-producer single-consumer event channel that
// serializes every session-mutating operation. Producers (the input reader,
// network fetch tasks, timers) only ever call Submit; one goroutine drains
// the bus and applies events strictly one at a time, so the state behind the
// apply function needs no locks.
package bus

import (
	"context"

	"marlin/internal/logging"
)

// Event is anything that can be submitted to the bus. Name is used for
// logging and diagnostics only.
type Event interface {
	Name() string
}

// Bus is the event channel. Submit may be called concurrently from any
// goroutine; Run must be called from exactly one.
type Bus struct {
	ch  chan Event
	log logging.Logger
}

// New builds a bus with the given queue depth.
func New(depth int, log logging.Logger) *Bus {
	if depth <= 0 {
		depth = 1024
	}
	return &Bus{ch: make(chan Event, depth), log: log}
}

// Submit enqueues an event. It blocks only if the queue is full, which keeps
// producers naturally paced to the consumer without dropping protocol events.
func (b *Bus) Submit(e Event) {
	b.ch <- e
}

// TrySubmit enqueues an event unless the queue is full. Used by producers
// whose events are safe to shed, like render-refresh ticks.
func (b *Bus) TrySubmit(e Event) bool {
	select {
	case b.ch <- e:
		return true
	default:
		return false
	}
}

// Run drains the bus until ctx is cancelled, applying events in arrival
// order. A panic inside apply is logged and the offending event discarded;
// the loop must outlive any single corrupt input.
func (b *Bus) Run(ctx context.Context, apply func(Event)) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-b.ch:
			b.applyOne(apply, e)
		}
	}
}

func (b *Bus) applyOne(apply func(Event), e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("panic applying event", "event", e.Name(), "panic", r)
		}
	}()
	apply(e)
}
