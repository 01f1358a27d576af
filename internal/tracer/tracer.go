// Package tracer is the agent's entry point: it creates segment contexts for
// instrumented code and reports finished ones to the collector.
package tracer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/benbjohnson/clock"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	asyncgrpc "github.com/GriffinCanCode/skytrace/internal/grpc"
	"github.com/GriffinCanCode/skytrace/internal/grpc/cds"
	"github.com/GriffinCanCode/skytrace/internal/grpc/reporter"
	"github.com/GriffinCanCode/skytrace/internal/infrastructure/config"
	"github.com/GriffinCanCode/skytrace/internal/infrastructure/logging"
	"github.com/GriffinCanCode/skytrace/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/skytrace/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/skytrace/internal/propagation"
	"github.com/GriffinCanCode/skytrace/internal/segment"
)

var ErrUnsupportedProtocol = errors.New("unsupported collector protocol")

// Skip reasons
const (
	SkipNotReady = "not_ready"
	SkipIgnored  = "ignored"
	SkipClosed   = "closed"
)

// Status summarizes the tracer for health checks.
type Status struct {
	Reporter   asyncgrpc.Stats  `json:"reporter"`
	ConfigSync *asyncgrpc.Stats `json:"config_sync,omitempty"`
	ConfigUUID string           `json:"config_uuid,omitempty"`
	Breaker    string           `json:"breaker,omitempty"`
	Closed     bool             `json:"closed"`
}

// Tracer owns the collector connection, the dispatch loop and the reporter
// and config-sync clients.
type Tracer struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *monitoring.Metrics
	factory *segment.Factory

	conn       *grpc.ClientConn
	queue      *asyncgrpc.CompletionQueue
	dispatcher *asyncgrpc.Dispatcher
	reporter   *reporter.Client
	cds        *cds.Client

	group  *errgroup.Group
	cancel context.CancelFunc

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// New validates cfg, connects to the collector and starts reporting. Only
// the grpc protocol is supported; anything else fails before any connection
// or goroutine is created.
func New(cfg *config.Config, opts ...Option) (*Tracer, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if !strings.EqualFold(cfg.Collector.Protocol, config.ProtocolGRPC) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProtocol, cfg.Collector.Protocol)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.clock == nil {
		o.clock = clock.New()
	}
	logger := logging.OrNop(o.logger).Named("tracer")

	connOpts := asyncgrpc.ConnOptions{
		Token:          cfg.Collector.Authentication,
		MaxMessageSize: cfg.Collector.MaxMessageSize,
		Compression:    cfg.Collector.Compression,
		DialOptions:    o.dialOptions,
	}
	if o.credentials != nil {
		creds, err := o.credentials()
		if err != nil {
			return nil, fmt.Errorf("failed to build collector credentials: %w", err)
		}
		connOpts.Credentials = creds
	}
	conn, err := asyncgrpc.NewConn(cfg.Collector.Address, connOpts)
	if err != nil {
		return nil, err
	}

	queue := asyncgrpc.NewCompletionQueue()
	t := &Tracer{
		cfg:        cfg,
		logger:     logger,
		metrics:    o.metrics,
		factory:    segment.NewFactory(cfg.Agent.Service, cfg.Agent.Instance),
		conn:       conn,
		queue:      queue,
		dispatcher: asyncgrpc.NewDispatcher(queue, logger.Named("dispatcher")),
	}

	policy := resilience.BackoffPolicy{
		InitialInterval: cfg.Reconnect.InitialInterval,
		MaxInterval:     cfg.Reconnect.MaxInterval,
		Multiplier:      cfg.Reconnect.Multiplier,
		MaxElapsedTime:  cfg.Reconnect.MaxElapsedTime,
		Jitter:          resilience.DefaultBackoffPolicy().Jitter,
	}
	streamOpts := asyncgrpc.Options{
		Backoff: policy,
		Clock:   o.clock,
		Logger:  logger,
		Metrics: o.metrics,
	}

	ro := streamOpts
	ro.Name = reporter.Name
	ro.QueueLimit = cfg.Reporter.QueueLimit
	ro.StreamBatchSize = cfg.Reporter.StreamBatchSize
	ro.StreamLifetime = cfg.Reporter.StreamLifetime
	t.reporter = reporter.NewClient(conn, t.dispatcher, ro)

	if cfg.CDS.Enabled {
		co := streamOpts
		co.Name = cds.Name
		t.cds = cds.NewClient(conn, t.dispatcher, cds.Options{
			Service: cfg.Agent.Service,
			Timeout: cfg.CDS.Timeout,
			Breaker: resilience.Settings{Clock: o.clock},
			Stream:  co,
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	group, gctx := errgroup.WithContext(ctx)
	t.group = group

	group.Go(func() error {
		t.dispatcher.Run()
		return nil
	})
	t.reporter.Start()
	if t.cds != nil {
		t.cds.Start()
		group.Go(func() error {
			t.cds.Run(gctx, o.clock, cfg.CDS.Interval)
			return nil
		})
	}

	logger.Info("tracer started",
		zap.String("service", cfg.Agent.Service),
		zap.String("instance", cfg.Agent.Instance),
		zap.String("collector", cfg.Collector.Address),
		zap.Bool("cds", cfg.CDS.Enabled))
	return t, nil
}

// NewContext starts a new trace.
func (t *Tracer) NewContext() *segment.Context {
	return t.factory.Create()
}

// NewContextWithHeader continues the trace carried by sw8 and sw8-x header
// values. A missing or malformed sw8 value starts a new trace.
func (t *Tracer) NewContextWithHeader(sw8, sw8x string) *segment.Context {
	if sw8 == "" {
		return t.factory.Create()
	}

	parent, err := propagation.Decode(sw8)
	if err != nil {
		t.logger.Debug("ignoring propagation header", zap.Error(err))
		return t.factory.Create()
	}
	var ext *propagation.SpanContextExtension
	if sw8x != "" {
		if ext, err = propagation.DecodeExtension(sw8x); err != nil {
			t.logger.Debug("ignoring propagation extension", zap.Error(err))
			ext = nil
		}
	}
	return t.factory.CreateWithParent(parent, ext)
}

// NewContextWithSpanContext continues an already decoded trace.
func (t *Tracer) NewContextWithSpanContext(parent *propagation.SpanContext, ext *propagation.SpanContextExtension) *segment.Context {
	return t.factory.CreateWithParent(parent, ext)
}

// Report hands a finished segment to the reporter. Segments whose root span
// is missing or still open are ignored, as are segments whose root operation
// ends with an ignored suffix.
func (t *Tracer) Report(sc *segment.Context) {
	if sc == nil || !sc.ReadyToSend() {
		t.metrics.RecordSegmentSkipped(SkipNotReady)
		return
	}
	if t.closed.Load() {
		t.metrics.RecordSegmentSkipped(SkipClosed)
		return
	}
	if t.ignored(sc.RootSpan().OperationName()) {
		t.metrics.RecordSegmentSkipped(SkipIgnored)
		return
	}

	t.reporter.SendMessage(sc.CreateSegmentObject())
	t.metrics.RecordSegmentReported()
}

func (t *Tracer) ignored(operation string) bool {
	for _, suffix := range t.cfg.Agent.IgnoreSuffix {
		if suffix != "" && strings.HasSuffix(operation, suffix) {
			return true
		}
	}
	if t.cds == nil {
		return false
	}
	for _, suffix := range t.cds.Store().IgnoreSuffixes() {
		if strings.HasSuffix(operation, suffix) {
			return true
		}
	}
	return false
}

// Status returns queue depths, stream states and the dynamic config version.
func (t *Tracer) Status() Status {
	st := Status{
		Reporter: t.reporter.Stats(),
		Closed:   t.closed.Load(),
	}
	if t.cds != nil {
		cs := t.cds.Stats()
		st.ConfigSync = &cs
		st.ConfigUUID = t.cds.Store().UUID()
		st.Breaker = t.cds.BreakerState().String()
	}
	return st
}

// Close flushes queued segments until ctx ends, then stops every goroutine
// and closes the connection. Segments still queued are discarded. Calling
// Close again returns the first result.
func (t *Tracer) Close(ctx context.Context) error {
	t.closeOnce.Do(func() {
		t.closed.Store(true)
		t.cancel()

		var errs []error
		if err := t.reporter.Close(ctx); err != nil {
			errs = append(errs, err)
		}
		if t.cds != nil {
			cdsCtx, cancel := context.WithTimeout(ctx, t.cfg.CDS.Timeout)
			if err := t.cds.Close(cdsCtx); err != nil {
				t.logger.Debug("config sync request abandoned", zap.Error(err))
			}
			cancel()
		}

		t.queue.Shutdown()
		_ = t.group.Wait()

		if err := t.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close collector connection: %w", err))
		}
		t.closeErr = errors.Join(errs...)
		t.logger.Info("tracer stopped", zap.Error(t.closeErr))
	})
	return t.closeErr
}
