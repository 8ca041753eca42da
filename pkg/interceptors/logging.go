package interceptors

import (
	"context"
	"time"

	"slgserver/pkg/apperror"
	"slgserver/pkg/logger"
)

// LoggingInterceptor logs each call's method, duration, and outcome code.
func LoggingInterceptor() Interceptor {
	return func(method string, next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req any) (any, error) {
			start := time.Now()

			resp, err := next(ctx, req)

			duration := time.Since(start)
			code := "ok"
			if err != nil {
				code = string(apperror.Code(err))
			}

			if err != nil {
				logger.Log.Error("rpc request failed",
					"method", method,
					"duration_ms", duration.Milliseconds(),
					"code", code,
					"error", err.Error(),
				)
			} else {
				logger.Log.Info("rpc request completed",
					"method", method,
					"duration_ms", duration.Milliseconds(),
					"code", code,
				)
			}

			return resp, err
		}
	}
}
