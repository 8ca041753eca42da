package interceptors

import (
	"context"
	"time"

	"slgserver/pkg/apperror"
	"slgserver/pkg/metrics"
)

// MetricsInterceptor records request counts, durations, and in-flight gauges
// for the owning instance's metrics namespace.
func MetricsInterceptor() Interceptor {
	m := metrics.Get()
	tracker := metrics.NewRequestTracker(m.RPCRequestsInFlight)

	return func(method string, next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req any) (any, error) {
			tracker.Start(method)
			defer tracker.End(method)

			start := time.Now()
			resp, err := next(ctx, req)
			duration := time.Since(start)

			status := "ok"
			if err != nil {
				status = string(apperror.Code(err))
			}
			m.RecordRPCRequest(method, status, duration)

			return resp, err
		}
	}
}
