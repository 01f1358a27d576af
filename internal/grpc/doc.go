// Package grpc runs the agent's asynchronous gRPC streams.
//
// Every outstanding RPC operation reports its result as one Event on a shared
// CompletionQueue. A single Dispatcher goroutine drains the queue and hands
// each event to the stream named by its Tag, so all stream state changes
// happen on one goroutine and never race each other.
//
// A Client owns the messages it was asked to send:
//   - pending: not yet handed to a stream
//   - in flight: the one message whose write is outstanding
//   - drained: written, waiting for the stream to close cleanly
//
// When a stream fails, drained and in-flight messages return to the head of
// pending in their original order and a supervisor goroutine builds a new
// stream after a backoff. A clean close (rotation or shutdown) confirms every
// drained message.
//
// Transports adapt concrete RPCs to the Open/Write/Close shape:
//
//	client := grpc.NewClient(dispatcher, func() grpc.Transport[*agentv3.SegmentObject] {
//		return reporter.NewTransport(conn, logger)
//	}, grpc.Options{Name: "reporter"})
//	client.Start()
//	client.SendMessage(segment)
//	defer client.Close(ctx)
package grpc
