package instrument

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/GriffinCanCode/skytrace/internal/propagation"
	"github.com/GriffinCanCode/skytrace/internal/segment"
)

// UnaryServerInterceptor traces each unary call as the entry span of a new
// segment named after the full method.
func UnaryServerInterceptor(t Tracer) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		carrier := propagation.MetadataCarrier(md)
		sc := t.NewContextWithHeader(carrier.Get(propagation.Header), carrier.Get(propagation.HeaderExtension))

		span := sc.CreateCurrentSegmentRootSpan()
		span.SetOperationName(info.FullMethod)
		span.SetSpanType(segment.SpanTypeEntry)
		span.SetSpanLayer(segment.SpanLayerRPCFramework)
		span.SetComponentID(ComponentGRPC)
		if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
			span.SetPeer(p.Addr.String())
		}
		span.StartSpan()

		resp, err := handler(ContextWithSegment(ctx, sc, span), req)

		finishRPC(span, err)
		t.Report(sc)
		return resp, err
	}
}

// UnaryClientInterceptor adds an exit span for calls whose context carries a
// segment and sends sw8 in the outgoing metadata.
func UnaryClientInterceptor() grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		sc, span := startExit(ctx, method, cc.Target(), segment.SpanLayerRPCFramework, ComponentGRPC)
		if sc == nil {
			return invoker(ctx, method, req, reply, cc, opts...)
		}

		md, ok := metadata.FromOutgoingContext(ctx)
		if ok {
			md = md.Copy()
		} else {
			md = metadata.MD{}
		}
		propagation.Inject(propagation.MetadataCarrier(md), sc.CreateSW8HeaderValue(span, cc.Target()), sc.Extension())
		ctx = metadata.NewOutgoingContext(ctx, md)

		err := invoker(ctx, method, req, reply, cc, opts...)
		finishRPC(span, err)
		return err
	}
}

func finishRPC(span *segment.Span, err error) {
	code := status.Code(err)
	span.AddTag("rpc.status_code", code.String())
	if err != nil {
		span.ErrorOccurred()
		span.AddLog("error.kind", code.String(), "message", err.Error())
	}
	span.EndSpan()
}
