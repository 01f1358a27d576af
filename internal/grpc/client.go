package grpc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/skytrace/internal/infrastructure/logging"
	"github.com/GriffinCanCode/skytrace/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/skytrace/internal/infrastructure/resilience"
)

// Options configures a Client.
type Options struct {
	// Name labels logs and metrics.
	Name string
	// QueueLimit caps pending messages; 0 means unbounded.
	QueueLimit int
	// StreamBatchSize rotates the stream after this many unconfirmed writes.
	StreamBatchSize int
	// StreamLifetime rotates the stream once it has been open this long.
	StreamLifetime time.Duration
	// AckOnWrite treats a completed write as delivered, for transports
	// whose writes are unary calls.
	AckOnWrite bool
	Backoff    resilience.BackoffPolicy
	Clock      clock.Clock
	Logger     *zap.Logger
	Metrics    *monitoring.Metrics
}

// Stats is a point-in-time view of a client.
type Stats struct {
	Pending    int    `json:"pending"`
	Inflight   int    `json:"inflight"`
	Drained    int    `json:"drained"`
	State      string `json:"state"`
	Reconnects int64  `json:"reconnects"`
}

// Client queues messages and delivers them through a sequence of streams,
// rebuilding the stream whenever it fails.
type Client[Req any] struct {
	name         string
	opts         Options
	dispatcher   *Dispatcher
	newTransport TransportFactory[Req]
	logger       *zap.Logger
	metrics      *monitoring.Metrics
	clock        clock.Clock

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	pending     []Req
	inflight    Req
	hasInflight bool
	drained     []Req
	stream      *Stream[Req]
	backoff     backoff.BackOff
	started     bool
	parked      bool
	closing     bool
	closed      bool
	flushed     chan struct{}
	flushClosed bool

	rebuild    chan bool
	done       chan struct{}
	reconnects atomic.Int64

	dropLog     rate.Sometimes
	noStreamLog rate.Sometimes
}

// NewClient creates a client whose streams use transports from factory.
// No stream exists until Start.
func NewClient[Req any](dispatcher *Dispatcher, factory TransportFactory[Req], opts Options) *Client[Req] {
	if opts.Name == "" {
		opts.Name = "stream"
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Backoff.InitialInterval <= 0 {
		opts.Backoff = resilience.DefaultBackoffPolicy()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Client[Req]{
		name:         opts.Name,
		opts:         opts,
		dispatcher:   dispatcher,
		newTransport: factory,
		logger:       logging.OrNop(opts.Logger).Named(opts.Name),
		metrics:      opts.Metrics,
		clock:        opts.Clock,
		ctx:          ctx,
		cancel:       cancel,
		backoff:      opts.Backoff.NewBackOff(opts.Clock),
		flushed:      make(chan struct{}),
		rebuild:      make(chan bool, 1),
		done:         make(chan struct{}),
		dropLog:      rate.Sometimes{Interval: 30 * time.Second},
		noStreamLog:  rate.Sometimes{Interval: 30 * time.Second},
	}
}

// Start creates the first stream and the reconnect supervisor.
func (c *Client[Req]) Start() {
	c.mu.Lock()
	if c.started || c.closed {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.startStreamLocked()
	c.mu.Unlock()

	go c.supervise()
}

// SendMessage queues msg and, if the stream is idle, writes it at once. It
// never blocks on the network.
func (c *Client[Req]) SendMessage(msg Req) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		c.metrics.RecordMessages(c.name, monitoring.ResultDropped, 1)
		c.logger.Debug("client closed, dropping message")
		return
	}
	if limit := c.opts.QueueLimit; limit > 0 && len(c.pending) >= limit {
		c.metrics.RecordMessages(c.name, monitoring.ResultDropped, 1)
		c.dropLog.Do(func() {
			c.logger.Warn("pending queue full, dropping newest message", zap.Int("limit", limit))
		})
		return
	}

	c.pending = append(c.pending, msg)
	c.observeLocked()

	s := c.stream
	if s == nil || s.state == StateFinished {
		c.wakeLocked()
		c.noStreamLog.Do(func() {
			c.logger.Info("no active stream, message queued", zap.Int("pending", len(c.pending)))
		})
		return
	}
	s.idleLocked()
}

// NumOfMessages returns every message the client still holds.
func (c *Client[Req]) NumOfMessages() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queuedLocked()
}

// NumPending returns messages not yet handed to a stream.
func (c *Client[Req]) NumPending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// NumDrained returns written messages awaiting a clean close.
func (c *Client[Req]) NumDrained() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.drained)
}

// Stats returns queue depths and the current stream state.
func (c *Client[Req]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Stats{
		Pending:    len(c.pending),
		Drained:    len(c.drained),
		State:      "none",
		Reconnects: c.reconnects.Load(),
	}
	if c.hasInflight {
		st.Inflight = 1
	}
	if c.stream != nil {
		st.State = c.stream.state.String()
	}
	return st
}

// ResetStream discards the current stream. Unconfirmed messages go back to
// pending. Idempotent.
func (c *Client[Req]) ResetStream() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetStreamLocked()
}

// Close flushes pending messages until ctx expires, then discards what is
// left and stops the client. No operation is issued after Close returns.
func (c *Client[Req]) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closing = true

	var flushErr error
	if c.started && c.queuedLocked() > 0 {
		if s := c.stream; s == nil || s.state == StateFinished {
			c.wakeLocked()
		} else {
			s.idleLocked()
		}
		c.mu.Unlock()

		select {
		case <-c.flushed:
		case <-ctx.Done():
			flushErr = fmt.Errorf("flush %s client: %w", c.name, ctx.Err())
		}

		c.mu.Lock()
	}

	c.closed = true
	if n := c.queuedLocked(); n > 0 {
		c.logger.Info("messages discarded because no active connection", zap.Int("count", n))
		c.metrics.RecordMessages(c.name, monitoring.ResultDropped, n)
	}
	var zero Req
	c.pending, c.drained = nil, nil
	c.inflight, c.hasInflight = zero, false
	c.resetStreamLocked()
	c.mu.Unlock()

	c.cancel()
	if c.started {
		<-c.done
	}
	return flushErr
}

// drainPendingMessageLocked moves the head of pending into the in-flight
// slot.
func (c *Client[Req]) drainPendingMessageLocked() (Req, bool) {
	var zero Req
	if len(c.pending) == 0 || c.hasInflight {
		return zero, false
	}

	msg := c.pending[0]
	c.pending[0] = zero
	c.pending = c.pending[1:]
	c.inflight, c.hasInflight = msg, true
	c.observeLocked()
	return msg, true
}

// confirmWriteLocked records the completed write of the in-flight message.
func (c *Client[Req]) confirmWriteLocked() {
	if !c.hasInflight {
		return
	}
	var zero Req
	msg := c.inflight
	c.inflight, c.hasInflight = zero, false

	c.metrics.RecordMessages(c.name, monitoring.ResultWritten, 1)
	if c.opts.AckOnWrite {
		c.metrics.RecordMessages(c.name, monitoring.ResultConfirmed, 1)
	} else {
		c.drained = append(c.drained, msg)
	}
	c.observeLocked()
}

// undrainMessagesLocked puts drained then in-flight messages back at the
// head of pending in their original order and returns how many moved.
func (c *Client[Req]) undrainMessagesLocked() int {
	requeue := make([]Req, 0, len(c.drained)+1+len(c.pending))
	requeue = append(requeue, c.drained...)
	if c.hasInflight {
		var zero Req
		requeue = append(requeue, c.inflight)
		c.inflight, c.hasInflight = zero, false
	}
	n := len(requeue)
	if n == 0 {
		return 0
	}

	c.pending = append(requeue, c.pending...)
	c.drained = nil
	c.observeLocked()
	return n
}

func (c *Client[Req]) queuedLocked() int {
	n := len(c.pending) + len(c.drained)
	if c.hasInflight {
		n++
	}
	return n
}

func (c *Client[Req]) startStreamLocked() {
	s := newStream(c)
	c.stream = s
	s.startLocked()
	c.logger.Debug("stream created", zap.Uint64("stream", uint64(s.id)))
}

func (c *Client[Req]) resetStreamLocked() {
	s := c.stream
	if s == nil {
		return
	}
	c.stream = nil

	if s.state != StateFinished {
		s.state = StateFinished
		if n := c.undrainMessagesLocked(); n > 0 {
			c.metrics.RecordMessages(c.name, monitoring.ResultRequeued, n)
		}
	}
	s.cancel()
	c.dispatcher.Unregister(s.id)
	c.logger.Debug("stream reset", zap.Uint64("stream", uint64(s.id)))
}

func (c *Client[Req]) onConnectedLocked(s *Stream[Req]) {
	c.backoff.Reset()
	c.logger.Debug("stream connected", zap.Uint64("stream", uint64(s.id)))
}

func (c *Client[Req]) onStreamFinishedLocked(s *Stream[Req], err error) {
	if err == nil {
		n := len(c.drained)
		c.drained = nil
		c.metrics.RecordMessages(c.name, monitoring.ResultConfirmed, n)
		c.logger.Debug("stream closed", zap.Uint64("stream", uint64(s.id)), zap.Int("confirmed", n))
	} else {
		n := c.undrainMessagesLocked()
		c.metrics.RecordMessages(c.name, monitoring.ResultRequeued, n)
		c.logger.Warn("stream failed",
			zap.Uint64("stream", uint64(s.id)),
			zap.Int("status", s.status),
			zap.Int("requeued", n),
			zap.Error(err))
	}
	c.metrics.RecordStreamFinished(c.name, s.status)
	c.observeLocked()

	if c.closed {
		return
	}
	if c.closing && err == nil && len(c.pending) == 0 {
		if !c.flushClosed {
			c.flushClosed = true
			close(c.flushed)
		}
		return
	}
	c.signalRebuildLocked(err != nil)
}

// wakeLocked asks for a stream when the client has none that can write.
func (c *Client[Req]) wakeLocked() {
	if !c.started {
		return
	}
	if c.stream == nil || c.parked {
		c.parked = false
		c.signalRebuildLocked(false)
	}
}

func (c *Client[Req]) signalRebuildLocked(failed bool) {
	select {
	case c.rebuild <- failed:
	default:
	}
}

// supervise replaces finished streams, waiting out the backoff after a
// failure.
func (c *Client[Req]) supervise() {
	defer close(c.done)

	for {
		select {
		case <-c.ctx.Done():
			return
		case failed := <-c.rebuild:
			if failed {
				wait, ok := c.nextBackOff()
				if !ok {
					continue
				}
				timer := c.clock.Timer(wait)
				select {
				case <-c.ctx.Done():
					timer.Stop()
					return
				case <-timer.C:
				}
			}
			c.reconnect()
		}
	}
}

// nextBackOff returns the wait before the next attempt, or false when the
// retry burst is exhausted and the client should park until new work.
func (c *Client[Req]) nextBackOff() (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	wait := c.backoff.NextBackOff()
	if wait == backoff.Stop {
		c.backoff.Reset()
		c.parked = true
		c.logger.Error("collector unreachable, reconnect paused until new messages arrive",
			zap.Int("queued", c.queuedLocked()))
		return 0, false
	}
	return wait, true
}

// reconnect discards the current stream and starts a new one.
func (c *Client[Req]) reconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.resetStreamLocked()
	c.startStreamLocked()
	c.reconnects.Inc()
	c.metrics.RecordReconnect(c.name)
}

func (c *Client[Req]) observeLocked() {
	if c.metrics == nil {
		return
	}
	inflight := 0
	if c.hasInflight {
		inflight = 1
	}
	c.metrics.SetQueueDepth(c.name, monitoring.QueuePending, len(c.pending))
	c.metrics.SetQueueDepth(c.name, monitoring.QueueInflight, inflight)
	c.metrics.SetQueueDepth(c.name, monitoring.QueueDrained, len(c.drained))
}
