// Package telemetry carries request identity and exposes the gateway's
// logging and prometheus instrumentation.
package telemetry

import (
	"context"

	"github.com/sirupsen/logrus"
)

type ctxKey int

const (
	callerKey ctxKey = iota
	requestKey
)

// WithCaller attaches opaque caller identity to ctx. Values are logged, never interpreted.
func WithCaller(ctx context.Context, callerID, requestID string) context.Context {
	if callerID != "" {
		ctx = context.WithValue(ctx, callerKey, callerID)
	}
	if requestID != "" {
		ctx = context.WithValue(ctx, requestKey, requestID)
	}
	return ctx
}

// CallerID returns the caller identity carried by ctx
func CallerID(ctx context.Context) string {
	v, _ := ctx.Value(callerKey).(string)
	return v
}

// RequestID returns the request id carried by ctx
func RequestID(ctx context.Context) string {
	v, _ := ctx.Value(requestKey).(string)
	return v
}

// Fields adds the caller identity in ctx to fields.
func Fields(ctx context.Context, fields logrus.Fields) logrus.Fields {
	if fields == nil {
		fields = logrus.Fields{}
	}
	if id := CallerID(ctx); id != "" {
		fields["caller_id"] = id
	}
	if id := RequestID(ctx); id != "" {
		fields["request_id"] = id
	}
	return fields
}
