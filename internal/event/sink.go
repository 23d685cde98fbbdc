package event

import "github.com/qbolapp/qbolapp/internal/util"

// sinkCapacity bounds the pull-style event channel. Events are dropped
// (with a logged warning) if a slow consumer lets it fill — events are a
// notification mechanism, not a delivery guarantee in their own right.
const sinkCapacity = 256

// Sink is a thread-safe, buffered event channel. Multiple subsystem
// goroutines Emit concurrently; a single consumer (typically the CLI)
// ranges over C().
type Sink struct {
	ch chan Event
}

// NewSink creates an empty Sink.
func NewSink() *Sink {
	return &Sink{ch: make(chan Event, sinkCapacity)}
}

// Emit publishes e without blocking the caller.
func (s *Sink) Emit(e Event) {
	select {
	case s.ch <- e:
	default:
		util.LogWarning("event sink full, dropping %T", e)
	}
}

// C returns the receive-only channel consumers range over.
func (s *Sink) C() <-chan Event { return s.ch }

// Close closes the underlying channel. Callers must ensure no further Emit
// calls occur afterward.
func (s *Sink) Close() { close(s.ch) }
