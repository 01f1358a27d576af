package tracer

import (
	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/GriffinCanCode/skytrace/internal/infrastructure/monitoring"
)

// CredentialsFactory supplies transport credentials for the collector
// connection. It is called once, after the configuration is accepted.
type CredentialsFactory func() (credentials.TransportCredentials, error)

// Option customizes a Tracer.
type Option func(*options)

type options struct {
	logger      *zap.Logger
	metrics     *monitoring.Metrics
	credentials CredentialsFactory
	dialOptions []grpc.DialOption
	clock       clock.Clock
}

// WithLogger sets the logger; the default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics records agent metrics into m.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithCredentials secures the collector connection. Without it the
// connection is plaintext.
func WithCredentials(factory CredentialsFactory) Option {
	return func(o *options) { o.credentials = factory }
}

// WithDialOptions appends gRPC dial options to the collector connection.
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(o *options) { o.dialOptions = append(o.dialOptions, opts...) }
}

// WithClock drives the config-sync ticker, reconnect backoff and stream
// rotation from clk.
func WithClock(clk clock.Clock) Option {
	return func(o *options) { o.clock = clk }
}
