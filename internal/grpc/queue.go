package grpc

import (
	"errors"
	"sync"
)

var ErrQueueShutdown = errors.New("completion queue is shut down")

// Operation names the RPC step an event completes
type Operation int

const (
	OpConnected Operation = iota + 1
	OpWriteDone
	OpFinished
)

// String returns the string representation of the operation
func (o Operation) String() string {
	switch o {
	case OpConnected:
		return "connected"
	case OpWriteDone:
		return "write_done"
	case OpFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// StreamID identifies a stream registered with a Dispatcher
type StreamID uint64

// Tag routes an event to the stream that issued the operation.
type Tag struct {
	Stream StreamID
	Op     Operation
}

// Event is the completion of one asynchronous operation.
type Event struct {
	Tag Tag
	OK  bool
	Err error
}

// CompletionQueue is an unbounded FIFO of events with a single consumer.
type CompletionQueue struct {
	mu       sync.Mutex
	events   []Event
	shutdown bool
	ready    chan struct{}
}

func NewCompletionQueue() *CompletionQueue {
	return &CompletionQueue{ready: make(chan struct{}, 1)}
}

// Push enqueues ev. It fails with ErrQueueShutdown once Shutdown was called.
func (q *CompletionQueue) Push(ev Event) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.shutdown {
		return ErrQueueShutdown
	}
	q.events = append(q.events, ev)

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return nil
}

// Next blocks until an event is available. After Shutdown it keeps returning
// queued events and then reports false.
func (q *CompletionQueue) Next() (Event, bool) {
	for {
		q.mu.Lock()
		if len(q.events) > 0 {
			ev := q.events[0]
			q.events[0] = Event{}
			q.events = q.events[1:]
			q.mu.Unlock()
			return ev, true
		}
		if q.shutdown {
			q.mu.Unlock()
			return Event{}, false
		}
		q.mu.Unlock()

		<-q.ready
	}
}

// Shutdown stops accepting events and wakes the consumer. Idempotent.
func (q *CompletionQueue) Shutdown() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.shutdown {
		return
	}
	q.shutdown = true
	close(q.ready)
}

// Len returns the number of queued events.
func (q *CompletionQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}
