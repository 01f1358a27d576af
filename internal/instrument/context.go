package instrument

import (
	"context"

	"github.com/GriffinCanCode/skytrace/internal/segment"
)

// SkyWalking component IDs
const (
	ComponentGRPC       int32 = 23
	ComponentHTTPClient int32 = 5005
	ComponentGin        int32 = 5006
)

// Tracer is the part of the tracer entry points need.
type Tracer interface {
	NewContextWithHeader(sw8, sw8x string) *segment.Context
	Report(sc *segment.Context)
}

type segmentKey struct{}

type active struct {
	segment *segment.Context
	span    *segment.Span
}

// ContextWithSegment returns a copy of ctx carrying sc, with span as the
// parent of spans created further down the call.
func ContextWithSegment(ctx context.Context, sc *segment.Context, span *segment.Span) context.Context {
	return context.WithValue(ctx, segmentKey{}, active{segment: sc, span: span})
}

// SegmentFromContext returns the segment and active span stored in ctx, or
// nils.
func SegmentFromContext(ctx context.Context) (*segment.Context, *segment.Span) {
	a, ok := ctx.Value(segmentKey{}).(active)
	if !ok {
		return nil, nil
	}
	return a.segment, a.span
}

// startExit creates an exit span below the active span of ctx.
func startExit(ctx context.Context, operation, peer string, layer segment.SpanLayer, component int32) (*segment.Context, *segment.Span) {
	sc, parent := SegmentFromContext(ctx)
	if sc == nil {
		return nil, nil
	}

	span := sc.CreateCurrentSegmentSpan(parent)
	span.SetOperationName(operation)
	span.SetSpanType(segment.SpanTypeExit)
	span.SetSpanLayer(layer)
	span.SetComponentID(component)
	span.SetPeer(peer)
	span.StartSpan()
	return sc, span
}
