package reporter

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	commonv3 "skywalking.apache.org/repo/goapi/collect/common/v3"
	agentv3 "skywalking.apache.org/repo/goapi/collect/language/agent/v3"

	asyncgrpc "github.com/GriffinCanCode/skytrace/internal/grpc"
	"github.com/GriffinCanCode/skytrace/internal/infrastructure/resilience"
)

type collector struct {
	agentv3.UnimplementedTraceSegmentReportServiceServer

	failNext atomic.Bool

	mu       sync.Mutex
	segments []string
	tokens   []string
	streams  int
}

func (s *collector) Collect(stream agentv3.TraceSegmentReportService_CollectServer) error {
	md, _ := metadata.FromIncomingContext(stream.Context())
	s.mu.Lock()
	s.streams++
	if v := md.Get(asyncgrpc.AuthenticationKey); len(v) > 0 {
		s.tokens = append(s.tokens, v[0])
	}
	s.mu.Unlock()

	for {
		seg, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return stream.SendAndClose(&commonv3.Commands{})
		}
		if err != nil {
			return err
		}
		if s.failNext.CompareAndSwap(true, false) {
			return status.Error(codes.Unavailable, "collector restarting")
		}

		s.mu.Lock()
		s.segments = append(s.segments, seg.GetTraceSegmentId())
		s.mu.Unlock()
	}
}

func (s *collector) received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.segments...)
}

func startCollector(t *testing.T, srv *collector, token string) *grpc.ClientConn {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	server := grpc.NewServer()
	agentv3.RegisterTraceSegmentReportServiceServer(server, srv)
	go func() { _ = server.Serve(lis) }()
	t.Cleanup(server.Stop)

	conn, err := asyncgrpc.NewConn("passthrough:///bufnet", asyncgrpc.ConnOptions{
		Token: token,
		DialOptions: []grpc.DialOption{
			grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
				return lis.DialContext(ctx)
			}),
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func startReporter(t *testing.T, conn *grpc.ClientConn, opts asyncgrpc.Options) *Client {
	t.Helper()

	q := asyncgrpc.NewCompletionQueue()
	d := asyncgrpc.NewDispatcher(q, zap.NewNop())
	done := make(chan struct{})
	go func() {
		d.Run()
		close(done)
	}()

	opts.Logger = zap.NewNop()
	opts.Backoff = resilience.BackoffPolicy{
		InitialInterval: 5 * time.Millisecond,
		MaxInterval:     20 * time.Millisecond,
		Multiplier:      2,
	}
	c := NewClient(conn, d, opts)
	c.Start()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = c.Close(ctx)
		q.Shutdown()
		<-done
	})
	return c
}

func segment(id string) *agentv3.SegmentObject {
	return &agentv3.SegmentObject{
		TraceId:        "trace",
		TraceSegmentId: id,
		Service:        "mesh",
		Spans:          []*agentv3.SpanObject{{SpanId: 0, ParentSpanId: -1, OperationName: "/ping"}},
	}
}

func TestReporterDeliversSegments(t *testing.T) {
	srv := &collector{}
	conn := startCollector(t, srv, "secret")
	c := startReporter(t, conn, asyncgrpc.Options{})

	c.SendMessage(segment("a"))
	c.SendMessage(segment("b"))
	c.SendMessage(segment("c"))

	require.Eventually(t, func() bool {
		return len(srv.received()) == 3
	}, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"a", "b", "c"}, srv.received())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Close(ctx))
	assert.Equal(t, 0, c.NumOfMessages())

	srv.mu.Lock()
	defer srv.mu.Unlock()
	require.NotEmpty(t, srv.tokens)
	for _, tok := range srv.tokens {
		assert.Equal(t, "secret", tok)
	}
}

func TestReporterRotatesStreams(t *testing.T) {
	srv := &collector{}
	conn := startCollector(t, srv, "")
	c := startReporter(t, conn, asyncgrpc.Options{StreamBatchSize: 2})

	for _, id := range []string{"1", "2", "3", "4", "5"} {
		c.SendMessage(segment(id))
	}

	require.Eventually(t, func() bool {
		return len(srv.received()) == 5 && c.NumOfMessages() == 1
	}, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"1", "2", "3", "4", "5"}, srv.received())

	srv.mu.Lock()
	assert.Equal(t, 3, srv.streams)
	assert.Empty(t, srv.tokens)
	srv.mu.Unlock()
}

func TestReporterResendsAfterCollectorFailure(t *testing.T) {
	srv := &collector{}
	srv.failNext.Store(true)
	conn := startCollector(t, srv, "")
	c := startReporter(t, conn, asyncgrpc.Options{})

	c.SendMessage(segment("x"))
	c.SendMessage(segment("y"))
	c.SendMessage(segment("z"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Close(ctx))

	assert.Equal(t, []string{"x", "y", "z"}, srv.received())
	assert.Equal(t, 0, c.NumOfMessages())
}
