package middleware

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/Suhaibinator/SBotDetect/pkg/common"
	"github.com/Suhaibinator/SBotDetect/pkg/scontext"
)

// BlockConfig configures BlockBots.
type BlockConfig struct {
	// ResultKey is the state bag key BotDetection published under.
	// Defaults to common.DefaultResultKey.
	ResultKey string

	// Allow lists bot names (case-insensitive) that are let through,
	// e.g. "googlebot" to keep search indexing working.
	Allow []string

	// BlockedHandler is called for blocked requests.
	// If nil, a default 403 Forbidden response is sent.
	BlockedHandler http.Handler
}

// BlockBots creates a middleware that rejects requests classified as bots.
// BotDetection must run before this middleware.
func BlockBots(config BlockConfig, logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	resultKey := config.ResultKey
	if resultKey == "" {
		resultKey = common.DefaultResultKey
	}
	allow := make(map[string]struct{}, len(config.Allow))
	for _, name := range config.Allow {
		allow[strings.ToLower(name)] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			result, ok := scontext.GetResultFromRequest(r, resultKey)
			if !ok || !result.IsBot {
				next.ServeHTTP(w, r)
				return
			}
			if _, allowed := allow[strings.ToLower(result.Name())]; allowed {
				next.ServeHTTP(w, r)
				return
			}

			logger.Info("Blocked bot request",
				zap.String("bot_name", result.Name()),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
			)
			if config.BlockedHandler != nil {
				config.BlockedHandler.ServeHTTP(w, r)
				return
			}
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		})
	}
}
