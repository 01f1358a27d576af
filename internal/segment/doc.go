// Package segment models the trace segments an agent reports.
//
// A Context holds the spans one process records for a unit of work. Span IDs
// are assigned sequentially from 0 in creation order and the root span is
// the only one whose parent is RootParentSpanID. Spans are finalized by
// setting their end time, after which they no longer change. A Context is
// ready to report once its root span is finalized.
//
// Example Usage:
//
//	ctx := factory.CreateWithParent(propagation.Extract(carrier))
//	root := ctx.CreateCurrentSegmentRootSpan()
//	root.SetOperationName("/ping")
//	root.StartSpan()
//	exit := ctx.CreateCurrentSegmentSpan(root)
//	req.Header.Set(propagation.Header, ctx.CreateSW8HeaderValue(exit, "db:5432"))
//	exit.EndSpan()
//	root.EndSpan()
//	tracer.Report(ctx)
package segment
