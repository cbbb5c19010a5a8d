package board

import (
	"log"
	"sync/atomic"
)

// Emitter handles event emission for a board.
// It provides a simple, thread-safe way to emit events to subscribers.
// Events are wakeups, not the source of truth: consumers re-derive state
// from Snapshot, so emission is skipped entirely while nothing has
// subscribed and a drop under load is recoverable.
type Emitter struct {
	events       chan Event
	subscribed   atomic.Bool
	droppedCount atomic.Uint64
}

// NewEmitter creates a new Emitter with the given buffer size.
func NewEmitter(bufferSize int) *Emitter {
	return &Emitter{
		events: make(chan Event, bufferSize),
	}
}

// Emit sends an event to the events channel without ever blocking the
// board's critical section. Without a subscriber the event is discarded;
// with a subscriber and a full channel it is dropped and counted. A drop
// delays the subscriber's wakeup by at most one reconcile tick.
func (e *Emitter) Emit(event Event) {
	if !e.subscribed.Load() {
		return
	}

	select {
	case e.events <- event:
	default:
		count := e.droppedCount.Add(1)
		if count%10 == 1 { // Log every 10th drop to avoid spam
			log.Printf("[board] WARNING: Event channel full, dropped event (total dropped: %d): type=%s task=%s", count, event.Type, event.TaskID)
		}
	}
}

// DroppedCount returns the total number of events that have been dropped.
func (e *Emitter) DroppedCount() uint64 {
	return e.droppedCount.Load()
}

// Events returns a read-only channel of events and marks the emitter as
// subscribed. Events emitted before the first call are not replayed;
// subscribers reconcile from a snapshot after attaching.
func (e *Emitter) Events() <-chan Event {
	e.subscribed.Store(true)
	return e.events
}

// Close closes the events channel.
// This should be called once no more transitions can occur.
func (e *Emitter) Close() {
	close(e.events)
}
