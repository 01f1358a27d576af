// Package reporter streams finished trace segments to the collector over
// TraceSegmentReportService.Collect.
package reporter

import (
	"context"
	"errors"
	"io"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	commonv3 "skywalking.apache.org/repo/goapi/collect/common/v3"
	agentv3 "skywalking.apache.org/repo/goapi/collect/language/agent/v3"

	asyncgrpc "github.com/GriffinCanCode/skytrace/internal/grpc"
	"github.com/GriffinCanCode/skytrace/internal/infrastructure/logging"
)

const Name = "reporter"

// collectTransport is one Collect client stream.
type collectTransport struct {
	client agentv3.TraceSegmentReportServiceClient
	logger *zap.Logger
	stream agentv3.TraceSegmentReportService_CollectClient
}

// NewTransport returns a transport bound to conn.
func NewTransport(conn grpc.ClientConnInterface, logger *zap.Logger) asyncgrpc.Transport[*agentv3.SegmentObject] {
	return &collectTransport{
		client: agentv3.NewTraceSegmentReportServiceClient(conn),
		logger: logging.OrNop(logger),
	}
}

// Open starts the stream, waiting for the connection to become ready.
func (t *collectTransport) Open(ctx context.Context) error {
	stream, err := t.client.Collect(ctx, grpc.WaitForReady(true))
	if err != nil {
		return err
	}
	t.stream = stream
	return nil
}

func (t *collectTransport) Write(_ context.Context, seg *agentv3.SegmentObject) error {
	err := t.stream.Send(seg)
	if errors.Is(err, io.EOF) {
		// the server ended the stream; the real status comes from CloseAndRecv
		if _, recvErr := t.stream.CloseAndRecv(); recvErr != nil {
			return recvErr
		}
		return io.ErrUnexpectedEOF
	}
	return err
}

// Close half-closes the stream and waits for the collector's reply.
func (t *collectTransport) Close(_ context.Context) error {
	cmds, err := t.stream.CloseAndRecv()
	if err != nil {
		return err
	}
	t.logCommands(cmds)
	return nil
}

func (t *collectTransport) logCommands(cmds *commonv3.Commands) {
	for _, cmd := range cmds.GetCommands() {
		t.logger.Debug("collector command ignored", zap.String("command", cmd.GetCommand()))
	}
}

// Client reports segments through a self-healing Collect stream.
type Client struct {
	async *asyncgrpc.Client[*agentv3.SegmentObject]
}

// NewClient creates a reporter on conn. Options.Name defaults to "reporter".
func NewClient(conn grpc.ClientConnInterface, dispatcher *asyncgrpc.Dispatcher, opts asyncgrpc.Options) *Client {
	if opts.Name == "" {
		opts.Name = Name
	}
	logger := logging.OrNop(opts.Logger).Named(opts.Name)
	factory := func() asyncgrpc.Transport[*agentv3.SegmentObject] {
		return NewTransport(conn, logger)
	}
	return &Client{async: asyncgrpc.NewClient(dispatcher, factory, opts)}
}

func (c *Client) Start() { c.async.Start() }

// SendMessage queues a segment for delivery.
func (c *Client) SendMessage(seg *agentv3.SegmentObject) { c.async.SendMessage(seg) }

func (c *Client) NumOfMessages() int { return c.async.NumOfMessages() }

func (c *Client) Stats() asyncgrpc.Stats { return c.async.Stats() }

// ResetStream discards the current stream; unconfirmed segments are resent.
func (c *Client) ResetStream() { c.async.ResetStream() }

// Close flushes queued segments until ctx expires.
func (c *Client) Close(ctx context.Context) error { return c.async.Close(ctx) }
