package grpc

import (
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/skytrace/internal/infrastructure/logging"
)

// Handler consumes the completion events of one stream.
type Handler interface {
	HandleOperation(op Operation, ok bool, err error)
}

// Dispatcher owns the completion queue and the table of live streams. Run
// must be executed by exactly one goroutine.
type Dispatcher struct {
	queue  *CompletionQueue
	logger *zap.Logger

	mu       sync.RWMutex
	nextID   StreamID
	handlers map[StreamID]Handler

	dispatched atomic.Uint64
	stale      atomic.Uint64
}

func NewDispatcher(queue *CompletionQueue, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		queue:    queue,
		logger:   logging.OrNop(logger),
		handlers: make(map[StreamID]Handler),
	}
}

// Queue returns the completion queue events are pushed to.
func (d *Dispatcher) Queue() *CompletionQueue { return d.queue }

// Register adds h to the lookup table and returns its ID.
func (d *Dispatcher) Register(h Handler) StreamID {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	d.handlers[d.nextID] = h
	return d.nextID
}

// Unregister removes a stream; later events for it are dropped.
func (d *Dispatcher) Unregister(id StreamID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.handlers, id)
}

// Complete reports the result of the operation identified by tag. It returns
// false when the queue no longer accepts events.
func (d *Dispatcher) Complete(tag Tag, err error) bool {
	if pushErr := d.queue.Push(Event{Tag: tag, OK: err == nil, Err: err}); pushErr != nil {
		d.logger.Debug("completion after shutdown",
			zap.Uint64("stream", uint64(tag.Stream)),
			zap.Stringer("op", tag.Op))
		return false
	}
	return true
}

// Run delivers events until the queue is shut down and empty.
func (d *Dispatcher) Run() {
	d.logger.Debug("dispatch loop started")
	for {
		ev, ok := d.queue.Next()
		if !ok {
			d.logger.Debug("dispatch loop stopped",
				zap.Uint64("dispatched", d.dispatched.Load()),
				zap.Uint64("stale", d.stale.Load()))
			return
		}
		d.dispatch(ev)
	}
}

func (d *Dispatcher) dispatch(ev Event) {
	d.mu.RLock()
	h, ok := d.handlers[ev.Tag.Stream]
	d.mu.RUnlock()

	if !ok {
		d.stale.Inc()
		d.logger.Debug("dropping event for unknown stream",
			zap.Uint64("stream", uint64(ev.Tag.Stream)),
			zap.Stringer("op", ev.Tag.Op))
		return
	}

	d.dispatched.Inc()
	h.HandleOperation(ev.Tag.Op, ev.OK, ev.Err)
}

// Streams returns the number of registered streams.
func (d *Dispatcher) Streams() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers)
}
