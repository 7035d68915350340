package httpmiddleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

const maxRequestIDLen = 128

type requestIDKey struct{}

// RequestIDFromContext returns the request ID or an empty string.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// RequestID tags every request with an ID and echoes it in RequestIDHeader.
// Each tag also receives the ID, so layers below HTTP can record it without
// importing this package.
func RequestID(tags ...func(ctx context.Context, id string) context.Context) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := incomingRequestID(r.Header.Get(RequestIDHeader))
			if !ok {
				id = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, id)

			ctx := context.WithValue(r.Context(), requestIDKey{}, id)
			for _, tag := range tags {
				ctx = tag(ctx, id)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// incomingRequestID keeps a client ID only if it is short printable ASCII.
func incomingRequestID(v string) (string, bool) {
	v = strings.TrimSpace(v)
	if v == "" || len(v) > maxRequestIDLen {
		return "", false
	}
	if strings.ContainsFunc(v, func(c rune) bool { return c < 0x20 || c > 0x7e }) {
		return "", false
	}
	return v, true
}
