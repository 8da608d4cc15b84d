package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/Suhaibinator/SBotDetect/pkg/scontext"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

// RequestID creates a middleware that assigns every request a trace ID, stores
// it in the request context and echoes it in the X-Request-ID response header.
// A well-formed UUID in the incoming X-Request-ID header is reused.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			traceID := r.Header.Get(RequestIDHeader)
			if _, err := uuid.Parse(traceID); err != nil {
				traceID = uuid.NewString()
			}

			ctx := scontext.WithTraceID(r.Context(), traceID)
			w.Header().Set(RequestIDHeader, scontext.GetTraceIDFromContext(ctx))

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetTraceID extracts the trace ID from the request context.
// Returns an empty string if no trace ID is found.
func GetTraceID(r *http.Request) string {
	return scontext.GetTraceIDFromRequest(r)
}
