package interceptors

import "context"

// CallInfo carries per-call metadata attached to the context with
// WithCallInfo, so interceptors can stay transport agnostic (no
// grpc.UnaryServerInfo, no http.Request). Neither pkg/rpcserver nor
// pkg/gmhttp attaches one before dispatch.
type CallInfo struct {
	Service    string
	Method     string
	ClientAddr string
	RequestID  string
	UserID     string
	Username   string
}

type callInfoKey struct{}

// WithCallInfo attaches CallInfo to ctx.
func WithCallInfo(ctx context.Context, info *CallInfo) context.Context {
	return context.WithValue(ctx, callInfoKey{}, info)
}

// CallInfoFromContext retrieves CallInfo attached by WithCallInfo.
func CallInfoFromContext(ctx context.Context) (*CallInfo, bool) {
	info, ok := ctx.Value(callInfoKey{}).(*CallInfo)
	return info, ok
}
