package grpc

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

var errOperationFailed = errors.New("stream operation failed")

// State is the lifecycle position of a Stream
type State int

const (
	StateInitialized State = iota
	StateConnected
	StateWriteDone
	StateFinished
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateInitialized:
		return "initialized"
	case StateConnected:
		return "connected"
	case StateWriteDone:
		return "write_done"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Stream drives one Transport through Initialized, Connected, WriteDone and
// Finished. It keeps at most one operation outstanding, so writes complete
// in the order they were issued. All fields below transport are guarded by
// the owning client's mutex.
type Stream[Req any] struct {
	id        StreamID
	client    *Client[Req]
	transport Transport[Req]
	ctx       context.Context
	cancel    context.CancelFunc

	state      State
	busy       bool
	closing    bool
	status     int
	openedAt   time.Time
	writeStart time.Time
}

func newStream[Req any](c *Client[Req]) *Stream[Req] {
	ctx, cancel := context.WithCancel(c.ctx)
	s := &Stream[Req]{
		client:    c,
		transport: c.newTransport(),
		ctx:       ctx,
		cancel:    cancel,
		state:     StateInitialized,
	}
	s.id = c.dispatcher.Register(s)
	return s
}

// ID returns the dispatcher ID of the stream.
func (s *Stream[Req]) ID() StreamID { return s.id }

// State returns the current state.
func (s *Stream[Req]) State() State {
	s.client.mu.Lock()
	defer s.client.mu.Unlock()
	return s.state
}

// Status returns the translated status of a finished stream, 0 before.
func (s *Stream[Req]) Status() int {
	s.client.mu.Lock()
	defer s.client.mu.Unlock()
	return s.status
}

// startLocked issues the open call.
func (s *Stream[Req]) startLocked() {
	s.issueLocked(OpConnected, s.transport.Open)
}

// issueLocked runs call on its own goroutine and reports its result to the
// dispatcher under a tag naming this stream.
func (s *Stream[Req]) issueLocked(op Operation, call func(context.Context) error) {
	s.busy = true
	tag := Tag{Stream: s.id, Op: op}
	ctx := s.ctx
	dispatcher := s.client.dispatcher

	go func() {
		dispatcher.Complete(tag, call(ctx))
	}()
}

// HandleOperation advances the state machine. It runs on the dispatcher
// goroutine.
func (s *Stream[Req]) HandleOperation(op Operation, ok bool, err error) {
	c := s.client
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stream != s || s.state == StateFinished {
		c.logger.Debug("ignoring event for retired stream",
			zap.Uint64("stream", uint64(s.id)),
			zap.Stringer("op", op))
		return
	}
	s.busy = false

	if !ok {
		if err == nil {
			err = errOperationFailed
		}
		s.finishLocked(op, err)
		return
	}

	switch op {
	case OpConnected:
		s.state = StateConnected
		s.openedAt = c.clock.Now()
		c.onConnectedLocked(s)
		s.idleLocked()
	case OpWriteDone:
		s.state = StateWriteDone
		c.metrics.RecordWrite(c.name, c.clock.Since(s.writeStart))
		c.confirmWriteLocked()
		s.state = StateConnected
		s.idleLocked()
	case OpFinished:
		s.finishLocked(op, nil)
	}
}

// idleLocked decides what a connected stream with nothing outstanding does
// next: rotate, close for shutdown, or write the next pending message.
func (s *Stream[Req]) idleLocked() {
	c := s.client
	if s.busy || s.closing || s.state != StateConnected {
		return
	}

	if s.rotateDueLocked() || (c.closing && len(c.pending) == 0) {
		s.closeLocked()
		return
	}
	s.writeNextLocked()
}

func (s *Stream[Req]) rotateDueLocked() bool {
	opts := s.client.opts
	if opts.StreamBatchSize > 0 && len(s.client.drained) >= opts.StreamBatchSize {
		return true
	}
	return opts.StreamLifetime > 0 && s.client.clock.Since(s.openedAt) >= opts.StreamLifetime
}

func (s *Stream[Req]) writeNextLocked() {
	msg, ok := s.client.drainPendingMessageLocked()
	if !ok {
		return
	}

	s.writeStart = s.client.clock.Now()
	transport := s.transport
	s.issueLocked(OpWriteDone, func(ctx context.Context) error {
		return transport.Write(ctx, msg)
	})
}

func (s *Stream[Req]) closeLocked() {
	s.closing = true
	s.issueLocked(OpFinished, s.transport.Close)
}

func (s *Stream[Req]) finishLocked(op Operation, err error) {
	s.state = StateFinished
	s.status = StatusToHTTP(err)
	s.cancel()

	if err != nil {
		s.client.logger.Debug("stream operation failed",
			zap.Uint64("stream", uint64(s.id)),
			zap.Stringer("op", op),
			zap.Int("status", s.status),
			zap.Error(err))
	}
	s.client.onStreamFinishedLocked(s, err)
}
