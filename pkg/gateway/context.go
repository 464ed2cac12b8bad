package gateway

import (
	"context"

	"github.com/harun/erptools/internal/tracing"
)

// callerContext starts a request context for a gateway caller
func callerContext(parent context.Context, transport, clientID, traceID string) context.Context {
	ctx := tracing.NewRequestContext(parent, transport, clientID)
	if traceID != "" {
		ctx = tracing.WithTraceID(ctx, traceID)
	}
	return ctx
}

// clientIDFromContext returns the caller recorded by callerContext
func clientIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	return tracing.GetCallerID(ctx)
}
