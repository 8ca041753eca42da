package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// HandlerFunc is the generic request handler signature shared by the RPC
// server dispatcher (rpcserver.MethodFunc) and pkg/interceptors: it is
// independent of any specific transport.
type HandlerFunc func(ctx context.Context, req any) (any, error)

// TraceHandler wraps a handler in a server-kind span named after method,
// recording the outcome (error or ok) on completion. It is the non-transport
// replacement for a gRPC unary interceptor: pkg/interceptors'
// UnaryServerInterceptors adds it to its chain when tracing is enabled.
func TraceHandler(method string, next HandlerFunc) HandlerFunc {
	return func(ctx context.Context, req any) (any, error) {
		ctx, span := StartSpan(ctx, method, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		span.SetAttributes(attribute.String(AttrRPCMethod, method))

		resp, err := next(ctx, req)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			span.RecordError(err)
		} else {
			span.SetStatus(codes.Ok, "")
		}
		return resp, err
	}
}
