package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type contextKey string

// RequestIDKey is the context key under which correlation IDs are stored.
// The same key carries ops-server request IDs and relay delivery IDs.
const RequestIDKey = contextKey("request-id")

// HeaderRequestID is set on inbound ops responses and on every outbound
// webhook delivery.
const HeaderRequestID = "X-Request-ID"

// NewID returns a fresh correlation ID.
func NewID() string {
	return uuid.New().String()
}

// WithID stores id in ctx. An empty id is replaced with a new one.
func WithID(ctx context.Context, id string) context.Context {
	if id == "" {
		id = NewID()
	}
	return context.WithValue(ctx, RequestIDKey, id)
}

// RequestID propagates the caller's X-Request-ID or assigns a new one,
// echoing it on the response and storing it in the request context.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if id == "" {
			id = NewID()
		}
		w.Header().Set(HeaderRequestID, id)
		next.ServeHTTP(w, r.WithContext(WithID(r.Context(), id)))
	})
}

// GetRequestID extracts the correlation ID from ctx, or "" when absent.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}
