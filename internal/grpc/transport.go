package grpc

import "context"

// Transport is one RPC a Stream drives. Each method blocks until the
// operation completes and is called by at most one goroutine at a time.
// ctx is cancelled when the stream is discarded.
type Transport[Req any] interface {
	// Open establishes the call.
	Open(ctx context.Context) error
	// Write sends one message.
	Write(ctx context.Context, msg Req) error
	// Close ends the call cleanly; success confirms every written message.
	Close(ctx context.Context) error
}

// TransportFactory creates the transport for each new stream.
type TransportFactory[Req any] func() Transport[Req]
