package logger

import "context"

// ctxKey is unexported so no other package can collide with these values.
type ctxKey int

const (
	loggerKey ctxKey = iota
	requestIDKey
	connIDKey
)

// WithLogger returns ctx carrying l.
func WithLogger(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext returns the logger carried by ctx, or Default().
func FromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(loggerKey).(Logger); ok {
		return l
	}
	return Default()
}

// WithRequestID tags ctx with the id of the device request (the
// envelope's request_id) or HTTP request being handled.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext returns the request id, or "".
func RequestIDFromContext(ctx context.Context) string {
	return stringValue(ctx, requestIDKey)
}

// WithConnID tags ctx with an emulator connection id.
func WithConnID(ctx context.Context, connID string) context.Context {
	return context.WithValue(ctx, connIDKey, connID)
}

// ConnIDFromContext returns the connection id, or "".
func ConnIDFromContext(ctx context.Context) string {
	return stringValue(ctx, connIDKey)
}

func stringValue(ctx context.Context, key ctxKey) string {
	s, _ := ctx.Value(key).(string)
	return s
}

// L returns the context's logger bound to ctx, with request_id and
// conn_id attached when present.
func L(ctx context.Context) Logger {
	l := FromContext(ctx).WithContext(ctx)

	var attrs []any
	if id := RequestIDFromContext(ctx); id != "" {
		attrs = append(attrs, "request_id", id)
	}
	if id := ConnIDFromContext(ctx); id != "" {
		attrs = append(attrs, "conn_id", id)
	}
	if len(attrs) > 0 {
		l = l.With(attrs...)
	}
	return l
}
