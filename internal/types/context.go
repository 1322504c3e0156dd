package types

import "context"

type requestIDKey struct{}

// WithRequestID returns a copy of ctx carrying the correlation ID of the
// current API request or trigger message.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// GetRequestID returns the correlation ID, or "" when none was set.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
