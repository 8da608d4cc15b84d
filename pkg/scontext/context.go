// Package scontext holds the per-request state SBotDetect middlewares share.
//
// All values live in a single RequestContext stored once in the request's
// context.Context. The first middleware to call EnsureRequestContext attaches
// it; later middlewares mutate the same instance, so values published deep in
// the chain are visible to outer middlewares after next.ServeHTTP returns.
package scontext

import (
	"context"
	"net/http"
	"sync"

	"github.com/Suhaibinator/SBotDetect/pkg/common"
)

// requestContextKey is a private type for the context key to avoid collisions
type requestContextKey struct{}

// RequestContext holds all values that SBotDetect adds to request contexts.
// The accessor functions in this package lock it, so a handler goroutine left
// running after Timeout fired can keep writing while outer middlewares read.
// Reading or writing the fields directly is only safe while no other goroutine
// holds the request.
type RequestContext struct {
	mu sync.RWMutex

	// Values is the open-ended state bag. Classification results are stored here.
	Values map[string]any

	TraceID string

	// HandlerError is the error a callback returned while the request was handled.
	HandlerError error

	TraceIDSet      bool
	HandlerErrorSet bool
}

// NewRequestContext creates a new, empty request context
func NewRequestContext() *RequestContext {
	return &RequestContext{
		Values: make(map[string]any),
	}
}

// GetRequestContext retrieves the request context from a context
func GetRequestContext(ctx context.Context) (*RequestContext, bool) {
	rc, ok := ctx.Value(requestContextKey{}).(*RequestContext)
	return rc, ok
}

// WithRequestContext adds or replaces the request context in ctx
func WithRequestContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, rc)
}

// EnsureRequestContext retrieves or creates a request context
func EnsureRequestContext(ctx context.Context) (*RequestContext, context.Context) {
	rc, ok := GetRequestContext(ctx)
	if !ok {
		rc = NewRequestContext()
		ctx = WithRequestContext(ctx, rc)
	}
	return rc, ctx
}

// EnsureRequest returns r with a request context attached, reusing an existing one.
func EnsureRequest(r *http.Request) (*RequestContext, *http.Request) {
	rc, ctx := EnsureRequestContext(r.Context())
	if ctx != r.Context() {
		r = r.WithContext(ctx)
	}
	return rc, r
}

// WithValue stores value under key in the state bag. Other keys are untouched.
func WithValue(ctx context.Context, key string, value any) context.Context {
	rc, ctx := EnsureRequestContext(ctx)
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.Values == nil {
		rc.Values = make(map[string]any)
	}
	rc.Values[key] = value
	return ctx
}

// GetValue retrieves a value from the state bag
func GetValue(ctx context.Context, key string) (any, bool) {
	rc, ok := GetRequestContext(ctx)
	if !ok {
		return nil, false
	}
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	value, exists := rc.Values[key]
	return value, exists
}

// GetValueFromRequest is a convenience function to get a state bag value from a request
func GetValueFromRequest(r *http.Request, key string) (any, bool) {
	return GetValue(r.Context(), key)
}

// WithResult publishes a classification result under key
func WithResult(ctx context.Context, key string, result common.Result) context.Context {
	return WithValue(ctx, key, result)
}

// GetResult retrieves a classification result published under key.
// It reports false when nothing, or something other than a Result, is stored there.
func GetResult(ctx context.Context, key string) (common.Result, bool) {
	value, ok := GetValue(ctx, key)
	if !ok {
		return common.Result{}, false
	}
	result, ok := value.(common.Result)
	return result, ok
}

// GetResultFromRequest is a convenience function to get the classification result from a request
func GetResultFromRequest(r *http.Request, key string) (common.Result, bool) {
	return GetResult(r.Context(), key)
}

// WithTraceID adds a trace ID to the request context.
// An already set trace ID is not overwritten.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	rc, ctx := EnsureRequestContext(ctx)
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.TraceIDSet {
		return ctx
	}
	rc.TraceID = traceID
	rc.TraceIDSet = true
	return ctx
}

// GetTraceIDFromContext extracts the trace ID from the request context.
func GetTraceIDFromContext(ctx context.Context) string {
	rc, ok := GetRequestContext(ctx)
	if !ok {
		return ""
	}
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	if !rc.TraceIDSet {
		return ""
	}
	return rc.TraceID
}

// GetTraceIDFromRequest is a convenience function to get the trace ID from a request.
func GetTraceIDFromRequest(r *http.Request) string {
	return GetTraceIDFromContext(r.Context())
}

// WithHandlerError records an error returned while handling the request.
// A later error overwrites an earlier one.
func WithHandlerError(ctx context.Context, err error) context.Context {
	rc, ctx := EnsureRequestContext(ctx)
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.HandlerError = err
	rc.HandlerErrorSet = true
	return ctx
}

// GetHandlerError retrieves the recorded handler error
func GetHandlerError(ctx context.Context) (error, bool) {
	rc, ok := GetRequestContext(ctx)
	if !ok {
		return nil, false
	}
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	if !rc.HandlerErrorSet {
		return nil, false
	}
	return rc.HandlerError, true
}

// GetHandlerErrorFromRequest is a convenience function to get the handler error from a request
func GetHandlerErrorFromRequest(r *http.Request) (error, bool) {
	return GetHandlerError(r.Context())
}
