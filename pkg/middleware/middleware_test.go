package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Suhaibinator/SBotDetect/pkg/common"
)

func TestChain(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name+":in")
				next.ServeHTTP(w, r)
				order = append(order, name+":out")
			})
		}
	}

	handler := Chain(mark("a"), mark("b"))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"a:in", "b:in", "handler", "b:out", "a:out"}, order)
}

func TestRecovery(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	handler := Recovery(zap.New(core))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("crawler exploded")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	entries := logs.FilterMessage("Panic recovered").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "/boom", entries[0].ContextMap()["path"])

	assert.NotPanics(t, func() { Recovery(nil) })
}

func TestLogging_ReportsClassification(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	d := newTestDetector(t, common.BotDetectionConfig{})

	handler := Chain(
		RequestID(),
		Logging(zap.New(core), ""),
		BotDetection(d),
	)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, newUARequest(googlebotUA))

	entries := logs.FilterMessage("Request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, true, fields["is_bot"])
	assert.Equal(t, "Googlebot", fields["bot_name"])
	assert.Equal(t, int64(http.StatusOK), fields["status"])
	assert.Equal(t, rr.Header().Get(RequestIDHeader), fields["trace_id"])
}

func TestLogging_Levels(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		message string
		level   zapcore.Level
	}{
		{"server error", http.StatusInternalServerError, "Server error", zapcore.ErrorLevel},
		{"client error", http.StatusForbidden, "Client error", zapcore.WarnLevel},
		{"ok", http.StatusOK, "Request", zapcore.DebugLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.DebugLevel)
			handler := Logging(zap.New(core), "")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

			entries := logs.All()
			require.Len(t, entries, 1)
			assert.Equal(t, tt.message, entries[0].Message)
			assert.Equal(t, tt.level, entries[0].Level)
			_, hasBot := entries[0].ContextMap()["is_bot"]
			assert.False(t, hasBot, "no classification without BotDetection")
		})
	}
}

func TestLogging_HandlerError(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	d := newTestDetector(t, common.BotDetectionConfig{
		OnBotDetected: func(*http.Request, common.Result) error { return assert.AnError },
	})

	handler := Chain(Logging(zap.New(core), common.DefaultResultKey), BotDetection(d))(http.NotFoundHandler())
	handler.ServeHTTP(httptest.NewRecorder(), newUARequest(googlebotUA))

	entries := logs.FilterMessage("Server error").All()
	require.Len(t, entries, 1)
	assert.Equal(t, assert.AnError.Error(), entries[0].ContextMap()["error"])
}

func TestTimeout(t *testing.T) {
	release := make(chan struct{})
	finished := make(chan error, 1)
	handler := Timeout(10 * time.Millisecond)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.Header().Set("X-Late", "1")
		w.WriteHeader(http.StatusOK)
		_, err := w.Write([]byte("late"))
		finished <- err
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/slow", nil))
	assert.Equal(t, http.StatusRequestTimeout, rr.Code)

	close(release)
	assert.ErrorIs(t, <-finished, http.ErrHandlerTimeout)
	assert.Equal(t, http.StatusRequestTimeout, rr.Code)
	assert.Empty(t, rr.Header().Get("X-Late"))
	assert.NotContains(t, rr.Body.String(), "late")
}

func TestTimeout_DeadlineWinsOverUnwrittenResponse(t *testing.T) {
	// The handler returns as soon as the deadline fires, racing the timeout path.
	for i := 0; i < 20; i++ {
		handler := Timeout(time.Millisecond)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-r.Context().Done()
			w.WriteHeader(http.StatusOK)
		}))

		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/slow", nil))
		require.Equal(t, http.StatusRequestTimeout, rr.Code, "iteration %d", i)
	}
}

func TestTimeout_FastHandler(t *testing.T) {
	fast := Timeout(time.Second)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Handler", "fast")
		w.WriteHeader(http.StatusAccepted)
	}))
	rr := httptest.NewRecorder()
	fast.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/fast", nil))
	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, "fast", rr.Header().Get("X-Handler"))

	silent := Timeout(time.Second)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Handler", "silent")
	}))
	rr = httptest.NewRecorder()
	silent.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/silent", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "silent", rr.Header().Get("X-Handler"))
}

func TestTimeout_SlowCallbackSharesStateSafely(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	release := make(chan struct{})
	finished := make(chan struct{})

	d := newTestDetector(t, common.BotDetectionConfig{
		OnEveryRequest: func(*http.Request, common.Result) error {
			<-release
			return assert.AnError
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			defer close(finished)
			http.Error(w, err.Error(), http.StatusInternalServerError)
		},
	})

	handler := Chain(
		Logging(zap.New(core), ""),
		Timeout(5*time.Millisecond),
		BotDetection(d),
	)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not run after a callback error")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, newUARequest("curl/8.0"))
	assert.Equal(t, http.StatusRequestTimeout, rr.Code)
	require.Len(t, logs.FilterMessage("Client error").All(), 1)

	// The detector keeps writing into the shared state bag after Timeout returned.
	close(release)
	<-finished
	assert.Equal(t, http.StatusRequestTimeout, rr.Code)
	assert.Equal(t, "Request Timeout\n", rr.Body.String())
}

func TestResponseWriter_KeepsFirstStatus(t *testing.T) {
	rr := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rr, statusCode: http.StatusOK}

	_, err := rw.Write([]byte("body"))
	require.NoError(t, err)
	rw.WriteHeader(http.StatusTeapot)
	rw.Flush()

	assert.Equal(t, http.StatusOK, rw.statusCode)
}
