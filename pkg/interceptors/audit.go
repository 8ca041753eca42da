package interceptors

import (
	"context"
	"strings"
	"time"

	"slgserver/pkg/apperror"
	"slgserver/pkg/audit"
	"slgserver/pkg/logger"
)

// AuditConfig configures the audit interceptor.
type AuditConfig struct {
	ServiceName    string
	ExcludeMethods map[string]bool
	Logger         audit.Logger
}

// AuditInterceptor writes one audit.Entry per call, asynchronously so the
// caller's response is never delayed by the audit backend.
func AuditInterceptor(cfg *AuditConfig) Interceptor {
	return func(method string, next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req any) (any, error) {
			if cfg.ExcludeMethods != nil && cfg.ExcludeMethods[method] {
				return next(ctx, req)
			}

			start := time.Now()

			var clientAddr, userID, username, requestID string
			if info, ok := CallInfoFromContext(ctx); ok {
				clientAddr = info.ClientAddr
				userID = info.UserID
				username = info.Username
				requestID = info.RequestID
			}

			resp, err := next(ctx, req)
			duration := time.Since(start)

			builder := audit.NewEntry().
				Service(cfg.ServiceName).
				Method(method).
				Action(methodToAction(method)).
				User(userID, username).
				Client(clientAddr, "").
				RequestID(requestID).
				Duration(duration)

			if err != nil {
				builder.Outcome(audit.OutcomeFailure).
					Error(string(apperror.Code(err)), err.Error())
			} else {
				builder.Outcome(audit.OutcomeSuccess)
			}

			entry := builder.Build()

			go func() {
				if logErr := cfg.Logger.Log(context.Background(), entry); logErr != nil {
					logger.Log.Warn("failed to write audit log", "error", logErr)
				}
			}()

			return resp, err
		}
	}
}

func methodToAction(method string) audit.Action {
	switch {
	case strings.Contains(method, "Create") || strings.Contains(method, "Save") || strings.Contains(method, "Register"):
		return audit.ActionCreate
	case strings.Contains(method, "Get") || strings.Contains(method, "List") || strings.Contains(method, "Find"):
		return audit.ActionRead
	case strings.Contains(method, "Update") || strings.Contains(method, "Refresh"):
		return audit.ActionUpdate
	case strings.Contains(method, "Delete") || strings.Contains(method, "Remove"):
		return audit.ActionDelete
	case strings.Contains(method, "Login"):
		return audit.ActionLogin
	case strings.Contains(method, "Logout"):
		return audit.ActionLogout
	default:
		return audit.ActionCall
	}
}
