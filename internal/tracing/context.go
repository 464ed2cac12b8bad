package tracing

import (
	"context"

	"github.com/google/uuid"
)

// ContextKey is the type for context keys
type ContextKey string

const (
	// TraceIDKey is the context key for trace ID
	TraceIDKey ContextKey = "trace_id"
	// RequestIDKey is the context key for the transport request ID
	RequestIDKey ContextKey = "request_id"
	// CallerIDKey is the context key for the calling agent or client
	CallerIDKey ContextKey = "caller_id"
	// TransportKey is the context key for the transport a call arrived on
	TransportKey ContextKey = "transport"
)

// TraceContext holds tracing information
type TraceContext struct {
	TraceID   string
	RequestID string
	CallerID  string
	Transport string
}

// NewTraceID generates a new trace ID
func NewTraceID() string {
	return uuid.New().String()
}

// WithTraceID adds a trace ID to the context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithCallerID adds a caller ID to the context
func WithCallerID(ctx context.Context, callerID string) context.Context {
	return context.WithValue(ctx, CallerIDKey, callerID)
}

// WithTransport adds the transport name (stdio, http, rpc, ws, cli) to the context
func WithTransport(ctx context.Context, transport string) context.Context {
	return context.WithValue(ctx, TransportKey, transport)
}

func stringValue(ctx context.Context, key ContextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// GetTraceID retrieves the trace ID from the context
func GetTraceID(ctx context.Context) string {
	return stringValue(ctx, TraceIDKey)
}

// GetRequestID retrieves the request ID from the context
func GetRequestID(ctx context.Context) string {
	return stringValue(ctx, RequestIDKey)
}

// GetCallerID retrieves the caller ID from the context
func GetCallerID(ctx context.Context) string {
	return stringValue(ctx, CallerIDKey)
}

// GetTransport retrieves the transport name from the context
func GetTransport(ctx context.Context) string {
	return stringValue(ctx, TransportKey)
}

// FromContext extracts all tracing information from the context
func FromContext(ctx context.Context) *TraceContext {
	return &TraceContext{
		TraceID:   GetTraceID(ctx),
		RequestID: GetRequestID(ctx),
		CallerID:  GetCallerID(ctx),
		Transport: GetTransport(ctx),
	}
}

// NewContext creates a new context with tracing information
func NewContext(ctx context.Context, tc *TraceContext) context.Context {
	if tc.TraceID != "" {
		ctx = WithTraceID(ctx, tc.TraceID)
	}
	if tc.RequestID != "" {
		ctx = WithRequestID(ctx, tc.RequestID)
	}
	if tc.CallerID != "" {
		ctx = WithCallerID(ctx, tc.CallerID)
	}
	if tc.Transport != "" {
		ctx = WithTransport(ctx, tc.Transport)
	}
	return ctx
}

// NewRequestContext creates a new context for an inbound call with a fresh trace ID
func NewRequestContext(ctx context.Context, transport, callerID string) context.Context {
	ctx = WithTraceID(ctx, NewTraceID())
	ctx = WithTransport(ctx, transport)
	if callerID != "" {
		ctx = WithCallerID(ctx, callerID)
	}
	return ctx
}
