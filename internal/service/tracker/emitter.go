package tracker

import (
	"sync"

	"github.com/oshokin/bus-tracker/internal/domain/tracking"
)

// emitter hands a session's approaching alerts to deliver on its own goroutine,
// so fix processing never waits for a notifier.
// A target alerts at most once per session, so a queue sized to the targets never fills.
type emitter struct {
	queue chan *tracking.AlertEvent

	closed bool
	mu     sync.Mutex
}

func newEmitter(targets int, deliver func(*tracking.AlertEvent)) *emitter {
	e := &emitter{
		queue: make(chan *tracking.AlertEvent, max(targets, 1)),
	}

	go func() {
		for event := range e.queue {
			deliver(event)
		}
	}()

	return e
}

// enqueue schedules the event and reports whether it was accepted.
func (e *emitter) enqueue(event *tracking.AlertEvent) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return false
	}

	select {
	case e.queue <- event:
		return true
	default:
		return false
	}
}

// close stops accepting events. Queued ones are still handed to deliver.
func (e *emitter) close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.closed {
		e.closed = true
		close(e.queue)
	}
}
