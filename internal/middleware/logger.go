package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"
)

// RequestLogger attaches the global logger to each request and writes one
// access line per response. Health and metrics scrapes log at debug.
func RequestLogger() func(http.Handler) http.Handler {
	access := hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		var event *zerolog.Event
		switch {
		case status >= 500:
			event = hlog.FromRequest(r).Error()
		case r.URL.Path == "/health" || r.URL.Path == "/metrics":
			event = hlog.FromRequest(r).Debug()
		default:
			event = hlog.FromRequest(r).Info()
		}

		event.
			Str("requestId", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	})

	return func(next http.Handler) http.Handler {
		return hlog.NewHandler(log.Logger)(access(next))
	}
}
