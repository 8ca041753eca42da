package interceptors

import (
	"context"

	"slgserver/pkg/apperror"
	"slgserver/pkg/logger"
	"slgserver/pkg/ratelimit"
)

// RateLimitInterceptor rejects calls once the extracted key exceeds its
// configured rate. A limiter error fails open (the call proceeds) rather than
// blocking traffic on a rate-limiter outage.
func RateLimitInterceptor(limiter ratelimit.Limiter, keyExtractor ratelimit.KeyExtractor) Interceptor {
	if keyExtractor == nil {
		keyExtractor = ratelimit.DefaultKeyExtractor
	}

	return func(method string, next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req any) (any, error) {
			meta := map[string]string{}
			if info, ok := CallInfoFromContext(ctx); ok {
				meta["client_addr"] = info.ClientAddr
				meta["user_id"] = info.UserID
			}

			key := keyExtractor(ctx, method, meta)

			allowed, err := limiter.Allow(ctx, key)
			if err != nil {
				logger.Log.Warn("rate limit check failed", "error", err, "key", key)
				return next(ctx, req)
			}

			if !allowed {
				limitInfo, infoErr := limiter.GetInfo(ctx, key)
				if infoErr != nil {
					logger.Log.Warn("failed to get rate limit info", "error", infoErr, "key", key)
				} else {
					logger.Log.Warn("rate limit exceeded", "key", key, "limit", limitInfo.Limit)
				}
				return nil, apperror.New(apperror.CodePermissionDenied, "rate limit exceeded").WithField(key)
			}

			return next(ctx, req)
		}
	}
}
