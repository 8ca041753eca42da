package interceptors

import (
	"context"

	"slgserver/pkg/apperror"
)

// Validator is implemented by request types that can self-validate.
type Validator interface {
	Validate() error
}

// ValidationInterceptor rejects requests that implement Validator and fail
// validation, before the handler ever runs.
func ValidationInterceptor() Interceptor {
	return func(method string, next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req any) (any, error) {
			if v, ok := req.(Validator); ok {
				if err := v.Validate(); err != nil {
					return nil, apperror.Wrap(err, apperror.CodeParamInvalid, "validation error")
				}
			}
			return next(ctx, req)
		}
	}
}
