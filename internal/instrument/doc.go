// Package instrument traces inbound and outbound calls of the host
// application.
//
// Entry points (gin routes, gRPC unary handlers) start a segment from the
// incoming sw8 header, keep it in the request context, and report it when
// the handler returns. Exit points (gRPC client calls, resty requests) add a
// child span to the segment found in the call context and send sw8 to the
// callee. Calls made without a segment in their context are not traced.
package instrument
