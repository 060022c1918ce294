package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/match-relay-go/internal/audit"
	apperrors "github.com/openclaw/match-relay-go/internal/errors"
	"github.com/openclaw/match-relay-go/internal/httputil"
	"github.com/openclaw/match-relay-go/internal/metrics"
	"github.com/openclaw/match-relay-go/internal/service"
)

// RateLimitRule limits one route per client IP. Requests for which Exempt
// returns true are neither counted nor limited.
type RateLimitRule struct {
	Route  string
	Limit  int
	Window time.Duration
	Exempt func(r *http.Request) bool
}

type RateLimitMiddleware struct {
	limiter service.RateLimiter
	rule    RateLimitRule
	now     func() time.Time
}

func NewRateLimitMiddleware(limiter service.RateLimiter, rule RateLimitRule) *RateLimitMiddleware {
	return &RateLimitMiddleware{limiter: limiter, rule: rule, now: time.Now}
}

func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.rule.Exempt != nil && m.rule.Exempt(r) {
			next.ServeHTTP(w, r)
			return
		}

		ip := audit.ClientIP(r)
		res := m.limiter.Allow(r.Context(), ip+":"+m.rule.Route, m.rule.Limit, m.rule.Window)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(m.rule.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

		if !res.Allowed {
			log.Warn().Str("ip", ip).Str("route", m.rule.Route).Msg("rate limit exceeded")
			metrics.RateLimitDenied.WithLabelValues(m.rule.Route).Inc()
			audit.LogFromRequest(r, audit.Event{
				Type:     audit.EventRateLimitExceed,
				Identity: GetIdentity(r.Context()),
				Details:  map[string]interface{}{"route": m.rule.Route, "limit": m.rule.Limit},
			})

			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(res.ResetAt, m.now())))
			httputil.WriteError(w, apperrors.RateLimited(res.ResetAt))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func retryAfterSeconds(resetAt, now time.Time) int {
	secs := int(math.Ceil(resetAt.Sub(now).Seconds()))
	return max(secs, 1)
}
