package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Suhaibinator/SBotDetect/pkg/common"
)

func TestBlockBots(t *testing.T) {
	d := newTestDetector(t, common.BotDetectionConfig{})
	core, logs := observer.New(zapcore.InfoLevel)

	var called bool
	handler := Chain(
		BotDetection(d),
		BlockBots(BlockConfig{Allow: []string{"GOOGLEBOT"}}, zap.New(core)),
	)(okHandler(&called))

	tests := []struct {
		name      string
		userAgent string
		status    int
		reached   bool
	}{
		{"human", chromeUA, http.StatusOK, true},
		{"no user agent", "", http.StatusOK, true},
		{"allowed bot", googlebotUA, http.StatusOK, true},
		{"blocked bot", bingbotUA, http.StatusForbidden, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called = false
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, newUARequest(tt.userAgent))
			assert.Equal(t, tt.status, rr.Code)
			assert.Equal(t, tt.reached, called)
		})
	}

	entries := logs.FilterMessage("Blocked bot request").All()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, "bingbot", entries[0].ContextMap()["bot_name"])
	}
}

func TestBlockBots_CustomHandlerAndKey(t *testing.T) {
	mw := BlockBots(BlockConfig{
		ResultKey: "botCheck",
		BlockedHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnavailableForLegalReasons)
		}),
	}, nil)

	called := false
	rr := httptest.NewRecorder()
	mw(okHandler(&called)).ServeHTTP(rr, requestWithResult("botCheck", botResultNamed("AhrefsBot")))
	assert.False(t, called)
	assert.Equal(t, http.StatusUnavailableForLegalReasons, rr.Code)

	// Results under other keys are ignored.
	called = false
	mw(okHandler(&called)).ServeHTTP(httptest.NewRecorder(), requestWithResult(common.DefaultResultKey, botResultNamed("AhrefsBot")))
	assert.True(t, called)
}
