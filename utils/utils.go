// Package utils provides utility functions for the application.
package utils

import "context"

func ToPtr[T any](v T) *T {
	return &v
}

// DerefOr returns *p, or fallback when p is nil.
func DerefOr[T any](p *T, fallback T) T {
	if p == nil {
		return fallback
	}
	return *p
}

type contextKey string

// Request-scoped context keys set by handlers
const (
	RequestIDKey  contextKey = "request_id"
	UserAgentKey  contextKey = "user_agent"
	IPAddressKey  contextKey = "ip_address"
	EndpointKey   contextKey = "endpoint"
	TimeoutKey    contextKey = "timeout"
	CancelFuncKey contextKey = "cancel_func"
	ActorKey      contextKey = "actor"
)

// RequestID extracts the request id placed by handlers, if any.
func RequestID(ctx context.Context) string {
	if v, ok := ctx.Value(RequestIDKey).(string); ok {
		return v
	}
	return ""
}
