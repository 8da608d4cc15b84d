// Package middleware provides the bot detection middleware for SBotDetect along
// with the HTTP middleware components it is usually combined with: request IDs,
// logging, recovery from panics, timeouts and policies acting on the
// classification (rate limiting and blocking).
package middleware

import (
	"context"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Suhaibinator/SBotDetect/pkg/common"
	"github.com/Suhaibinator/SBotDetect/pkg/scontext"
)

// Middleware is an alias for the common.Middleware type.
// It represents a function that wraps an http.Handler to provide additional functionality.
type Middleware = common.Middleware

// Chain chains multiple middlewares together into a single middleware.
// The first middleware in the list is the outermost wrapper: it sees the
// request first and the response last.
func Chain(middlewares ...Middleware) Middleware {
	return func(next http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

// Recovery is a middleware that recovers from panics in HTTP handlers.
// It logs the panic and stack trace and returns a 500 Internal Server Error response.
func Recovery(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("Panic recovered",
						zap.Any("panic", rec),
						zap.String("stack", string(debug.Stack())),
						zap.String("method", r.Method),
						zap.String("path", r.URL.Path),
						zap.String("trace_id", scontext.GetTraceIDFromRequest(r)),
					)
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// Logging is a middleware that logs HTTP requests and responses together with
// the bot classification published under resultKey (DefaultResultKey if empty).
// It must wrap BotDetection to see the classification.
//
// The log level is determined by the status code and duration:
//   - 500+ status codes are logged at Error level
//   - 400-499 status codes are logged at Warn level
//   - Requests taking longer than 1 second are logged at Warn level
//   - All other requests are logged at Debug level
func Logging(logger *zap.Logger, resultKey string) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	if resultKey == "" {
		resultKey = common.DefaultResultKey
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Downstream middlewares write into the same state bag.
			_, r = scontext.EnsureRequest(r)

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}
			next.ServeHTTP(rw, r)

			duration := time.Since(start)
			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rw.statusCode),
				zap.Duration("duration", duration),
			}
			if traceID := scontext.GetTraceIDFromRequest(r); traceID != "" {
				fields = append(fields, zap.String("trace_id", traceID))
			}
			if result, ok := scontext.GetResultFromRequest(r, resultKey); ok {
				fields = append(fields, zap.Bool("is_bot", result.IsBot))
				if result.IsBot {
					fields = append(fields, zap.String("bot_name", result.Name()))
				}
			}
			if err, ok := scontext.GetHandlerErrorFromRequest(r); ok && err != nil {
				fields = append(fields, zap.Error(err))
			}

			switch {
			case rw.statusCode >= 500:
				logger.Error("Server error", append(fields, zap.String("remote_addr", r.RemoteAddr))...)
			case rw.statusCode >= 400:
				logger.Warn("Client error", fields...)
			case duration > 1*time.Second:
				logger.Warn("Slow request", fields...)
			default:
				logger.Debug("Request", fields...)
			}
		})
	}
}

// Timeout is a middleware that sets a timeout for the request processing.
// If the handler takes longer than the specified timeout to respond,
// the request context is cancelled and a 408 Request Timeout response is sent.
// A handler that has not written its header by the deadline loses to the
// timeout even if it finishes at the same moment. Writes made after the
// timeout are dropped.
func Timeout(timeout time.Duration) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			r = r.WithContext(ctx)

			var wMutex sync.Mutex
			wrappedW := &mutexResponseWriter{
				ResponseWriter: w,
				ctx:            ctx,
				mu:             &wMutex,
				header:         make(http.Header),
			}

			done := make(chan struct{})
			go func() {
				next.ServeHTTP(wrappedW, r)
				close(done)
			}()

			select {
			case <-done:
			case <-ctx.Done():
			}

			wMutex.Lock()
			defer wMutex.Unlock()
			if ctx.Err() != nil {
				wrappedW.timedOut = true
				if !wrappedW.wroteHeader {
					http.Error(w, "Request Timeout", http.StatusRequestTimeout)
				}
				return
			}
			if !wrappedW.wroteHeader {
				wrappedW.copyHeader()
			}
		})
	}
}

// mutexResponseWriter serializes writes from the handler goroutine and the
// timeout path, and drops handler writes once ctx is done.
// The handler's headers live in their own map until the header is written,
// so a late handler never touches the map the timeout response uses.
type mutexResponseWriter struct {
	http.ResponseWriter
	ctx         context.Context
	mu          *sync.Mutex
	header      http.Header
	timedOut    bool
	wroteHeader bool
}

func (rw *mutexResponseWriter) Header() http.Header {
	return rw.header
}

// Must be called with lock held.
func (rw *mutexResponseWriter) expired() bool {
	if !rw.timedOut && rw.ctx.Err() != nil {
		rw.timedOut = true
	}
	return rw.timedOut
}

// Must be called with lock held.
func (rw *mutexResponseWriter) copyHeader() {
	dst := rw.ResponseWriter.Header()
	for k, v := range rw.header {
		dst[k] = v
	}
}

func (rw *mutexResponseWriter) WriteHeader(statusCode int) {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	if rw.expired() || rw.wroteHeader {
		return
	}
	rw.wroteHeader = true
	rw.copyHeader()
	rw.ResponseWriter.WriteHeader(statusCode)
}

func (rw *mutexResponseWriter) Write(b []byte) (int, error) {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	if rw.expired() {
		return 0, http.ErrHandlerTimeout
	}
	if !rw.wroteHeader {
		rw.wroteHeader = true
		rw.copyHeader()
	}
	return rw.ResponseWriter.Write(b)
}

func (rw *mutexResponseWriter) Flush() {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	if rw.expired() {
		return
	}
	if !rw.wroteHeader {
		rw.wroteHeader = true
		rw.copyHeader()
	}
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// responseWriter is a wrapper around http.ResponseWriter that captures the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

// WriteHeader captures the first status code and passes it on.
func (rw *responseWriter) WriteHeader(statusCode int) {
	if !rw.wroteHeader {
		rw.statusCode = statusCode
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(statusCode)
}

// Write calls the underlying ResponseWriter.Write.
func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

// Flush calls the underlying ResponseWriter.Flush if it implements http.Flusher.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
