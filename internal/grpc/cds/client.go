// Package cds polls the collector's configuration discovery service and keeps
// the dynamic settings it returns.
package cds

import (
	"context"
	"errors"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	configurationv3 "skywalking.apache.org/repo/goapi/collect/agent/configuration/v3"

	asyncgrpc "github.com/GriffinCanCode/skytrace/internal/grpc"
	"github.com/GriffinCanCode/skytrace/internal/infrastructure/logging"
	"github.com/GriffinCanCode/skytrace/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/skytrace/internal/infrastructure/resilience"
)

const (
	Name = "cds"

	DefaultInterval = 5 * time.Second
	DefaultTimeout  = 3 * time.Second
)

// Poll results
const (
	PollApplied   = "applied"
	PollUnchanged = "unchanged"
	PollFailed    = "failed"
	PollRejected  = "rejected"
)

// fetchTransport turns each write into one FetchConfigurations call.
type fetchTransport struct {
	client  configurationv3.ConfigurationDiscoveryServiceClient
	breaker *resilience.Breaker
	timeout time.Duration
	store   *Store
	metrics *monitoring.Metrics
	logger  *zap.Logger
}

func (t *fetchTransport) Open(context.Context) error { return nil }

func (t *fetchTransport) Write(ctx context.Context, req *configurationv3.ConfigurationSyncRequest) error {
	err := t.breaker.Execute(func() error {
		callCtx, cancel := context.WithTimeout(ctx, t.timeout)
		defer cancel()

		cmds, err := t.client.FetchConfigurations(callCtx, req)
		if err != nil {
			return err
		}
		if t.store.Apply(cmds) {
			t.metrics.RecordCDSPoll(PollApplied)
			t.logger.Info("dynamic configuration updated",
				zap.String("uuid", t.store.UUID()),
				zap.Strings("ignore_suffix", t.store.IgnoreSuffixes()))
		} else {
			t.metrics.RecordCDSPoll(PollUnchanged)
		}
		return nil
	})

	switch {
	case err == nil:
	case errors.Is(err, resilience.ErrCircuitOpen), errors.Is(err, resilience.ErrTooManyRequests):
		t.metrics.RecordCDSPoll(PollRejected)
	default:
		t.metrics.RecordCDSPoll(PollFailed)
	}
	return err
}

func (t *fetchTransport) Close(context.Context) error { return nil }

// Options configures a Client.
type Options struct {
	Service string
	// Timeout bounds each FetchConfigurations call.
	Timeout time.Duration
	Breaker resilience.Settings
	Stream  asyncgrpc.Options
}

// Client periodically asks the collector for the service's configuration.
type Client struct {
	service string
	store   *Store
	breaker *resilience.Breaker
	logger  *zap.Logger
	async   *asyncgrpc.Client[*configurationv3.ConfigurationSyncRequest]
}

// NewClient creates a config-sync client on conn. Only the newest request
// is kept while the collector is unreachable.
func NewClient(conn grpc.ClientConnInterface, dispatcher *asyncgrpc.Dispatcher, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	so := opts.Stream
	if so.Name == "" {
		so.Name = Name
	}
	so.AckOnWrite = true
	if so.QueueLimit <= 0 {
		so.QueueLimit = 1
	}
	if opts.Breaker.Clock == nil {
		opts.Breaker.Clock = so.Clock
	}
	logger := logging.OrNop(so.Logger).Named(so.Name)

	c := &Client{
		service: opts.Service,
		store:   NewStore(),
		logger:  logger,
	}
	c.breaker = resilience.New(so.Name, withStateLog(opts.Breaker, logger))

	rpc := configurationv3.NewConfigurationDiscoveryServiceClient(conn)
	factory := func() asyncgrpc.Transport[*configurationv3.ConfigurationSyncRequest] {
		return &fetchTransport{
			client:  rpc,
			breaker: c.breaker,
			timeout: opts.Timeout,
			store:   c.store,
			metrics: so.Metrics,
			logger:  logger,
		}
	}
	c.async = asyncgrpc.NewClient(dispatcher, factory, so)
	return c
}

func withStateLog(s resilience.Settings, logger *zap.Logger) resilience.Settings {
	next := s.OnStateChange
	s.OnStateChange = func(name string, from, to resilience.State) {
		logger.Info("config sync breaker changed state",
			zap.Stringer("from", from),
			zap.Stringer("to", to))
		if next != nil {
			next(name, from, to)
		}
	}
	return s
}

// Store returns the dynamic configuration.
func (c *Client) Store() *Store { return c.store }

// BreakerState reports whether polls are currently let through.
func (c *Client) BreakerState() resilience.State { return c.breaker.State() }

func (c *Client) Start() { c.async.Start() }

// Sync queues one request naming the service and the last seen UUID.
func (c *Client) Sync() {
	c.async.SendMessage(&configurationv3.ConfigurationSyncRequest{
		Service: c.service,
		Uuid:    c.store.UUID(),
	})
}

// Run syncs immediately and then once per interval until ctx is done.
func (c *Client) Run(ctx context.Context, clk clock.Clock, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := clk.Ticker(interval)
	defer ticker.Stop()

	c.Sync()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sync()
		}
	}
}

func (c *Client) Stats() asyncgrpc.Stats { return c.async.Stats() }

// Close releases the client, giving an outstanding request until ctx ends.
func (c *Client) Close(ctx context.Context) error { return c.async.Close(ctx) }
