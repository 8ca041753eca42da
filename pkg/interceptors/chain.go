// Package interceptors provides a transport-agnostic interceptor chain shared
// by the RPC server dispatcher and the GM HTTP controller layer.
package interceptors

import "slgserver/pkg/telemetry"

// HandlerFunc is the request handler signature every interceptor wraps.
type HandlerFunc = telemetry.HandlerFunc

// Interceptor wraps a handler for a given method name, returning a new handler.
type Interceptor func(method string, next HandlerFunc) HandlerFunc

// Chain composes interceptors into a single Interceptor. The first
// interceptor in the list is outermost (runs first, sees the raw request).
func Chain(chain ...Interceptor) Interceptor {
	return func(method string, next HandlerFunc) HandlerFunc {
		h := next
		for i := len(chain) - 1; i >= 0; i-- {
			h = chain[i](method, h)
		}
		return h
	}
}
