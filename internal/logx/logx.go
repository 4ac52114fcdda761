package logx

import (
	"context"

	"pkt.systems/busyline/schema"
	"pkt.systems/pslog"
)

type contextKey int

const connKey contextKey = iota

// Ctx returns the logger bound to the provided context.
func Ctx(ctx context.Context) pslog.Logger {
	return pslog.Ctx(ctx)
}

// WithConn annotates the logger with the connection id if present.
func WithConn(ctx context.Context, id schema.ConnID) pslog.Logger {
	log := pslog.Ctx(ctx)
	if id != "" {
		if current, ok := ctx.Value(connKey).(schema.ConnID); ok && current == id {
			return log
		}
		log = log.With("conn", id)
	}
	return log
}

// WithRequest annotates the logger with a request id when available.
func WithRequest(log pslog.Logger, id schema.RequestID) pslog.Logger {
	if id != "" {
		log = log.With("request", id)
	}
	return log
}

// ContextWithConn stores the conn marker on the context for log de-duplication.
func ContextWithConn(ctx context.Context, id schema.ConnID) context.Context {
	if ctx == nil || id == "" {
		return ctx
	}
	return context.WithValue(ctx, connKey, id)
}

// ContextWithConnLogger attaches the logger and conn marker to the context.
func ContextWithConnLogger(ctx context.Context, log pslog.Logger, id schema.ConnID) context.Context {
	ctx = pslog.ContextWithLogger(ctx, log)
	return ContextWithConn(ctx, id)
}
