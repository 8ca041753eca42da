package interceptors

import (
	"slgserver/pkg/audit"
	"slgserver/pkg/ratelimit"
	"slgserver/pkg/telemetry"
)

// ServerConfig configures the standard interceptor chain built by
// UnaryServerInterceptors for an RPC server or GM HTTP instance.
type ServerConfig struct {
	ServiceName   string
	EnableTracing bool
	EnableAudit   bool
	RateLimiter   ratelimit.Limiter
	AuditLogger   audit.Logger
	AuditExclude  map[string]bool
	KeyExtractor  ratelimit.KeyExtractor
}

// UnaryServerInterceptors builds the standard chain: recovery first (so a
// panic anywhere downstream never escapes), then rate limiting, tracing,
// metrics, logging, validation, and finally audit, innermost, so it records
// the handler's own result; calls rejected earlier in the chain (rate limit,
// validation) never reach it.
func UnaryServerInterceptors(cfg *ServerConfig) Interceptor {
	chain := []Interceptor{RecoveryInterceptor()}

	if cfg.RateLimiter != nil {
		chain = append(chain, RateLimitInterceptor(cfg.RateLimiter, cfg.KeyExtractor))
	}

	if cfg.EnableTracing {
		chain = append(chain, func(method string, next HandlerFunc) HandlerFunc {
			return telemetry.TraceHandler(method, next)
		})
	}

	chain = append(chain, MetricsInterceptor(), LoggingInterceptor(), ValidationInterceptor())

	if cfg.EnableAudit && cfg.AuditLogger != nil {
		chain = append(chain, AuditInterceptor(&AuditConfig{
			ServiceName:    cfg.ServiceName,
			ExcludeMethods: cfg.AuditExclude,
			Logger:         cfg.AuditLogger,
		}))
	}

	return Chain(chain...)
}
