package middleware

import (
	"net/http"
	"strings"

	"github.com/openclaw/match-relay-go/internal/audit"
	apperrors "github.com/openclaw/match-relay-go/internal/errors"
	"github.com/openclaw/match-relay-go/internal/httputil"
	"github.com/openclaw/match-relay-go/internal/util"
)

// AdminMiddleware guards operator endpoints with a bearer password checked
// against a bcrypt hash. Operator endpoints are disabled in production and
// when no hash is configured.
type AdminMiddleware struct {
	passwordHash string
	isProduction bool
}

func NewAdminMiddleware(passwordHash string, isProduction bool) *AdminMiddleware {
	return &AdminMiddleware{passwordHash: passwordHash, isProduction: isProduction}
}

func (m *AdminMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.isProduction || m.passwordHash == "" {
			httputil.WriteError(w, apperrors.Forbidden("Admin endpoints are disabled"))
			return
		}

		password, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || password == "" {
			httputil.WriteError(w, apperrors.Unauthorized("Missing admin credentials"))
			return
		}

		if !util.CheckPasswordHash(password, m.passwordHash) {
			audit.LogFromRequest(r, audit.Event{Type: audit.EventAdminAuthFailure})
			httputil.WriteError(w, apperrors.Unauthorized("Invalid admin credentials"))
			return
		}

		next.ServeHTTP(w, r)
	})
}
