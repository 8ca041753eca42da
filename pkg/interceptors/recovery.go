package interceptors

import (
	"context"
	"fmt"

	"slgserver/pkg/apperror"
	"slgserver/pkg/logger"
)

// RecoveryInterceptor recovers panics from the wrapped handler and turns them
// into an INTERNAL apperror instead of crashing the dispatch goroutine.
func RecoveryInterceptor() Interceptor {
	return func(method string, next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req any) (resp any, err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.Log.Error("recovered from panic", "method", method, "panic", r)
					err = apperror.New(apperror.CodeInternal, fmt.Sprintf("panic: %v", r))
				}
			}()
			return next(ctx, req)
		}
	}
}
