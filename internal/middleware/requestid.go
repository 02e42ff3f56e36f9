package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type ctxKey int

const requestIDKey ctxKey = 1

const requestIDHeader = "X-Request-ID"

// RequestID reuses a client supplied X-Request-ID or issues a new UUID, and
// echoes it in the response.
func RequestID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rid := r.Header.Get(requestIDHeader)
			if rid == "" || len(rid) > 128 {
				rid = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, rid)
			next.ServeHTTP(w, r.WithContext(WithRequestID(r.Context(), rid)))
		})
	}
}

func WithRequestID(ctx context.Context, rid string) context.Context {
	return context.WithValue(ctx, requestIDKey, rid)
}

func RequestIDFrom(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

func GetRequestID(r *http.Request) string { return RequestIDFrom(r.Context()) }
