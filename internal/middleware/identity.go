package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/openclaw/match-relay-go/internal/audit"
	"github.com/openclaw/match-relay-go/internal/config"
	apperrors "github.com/openclaw/match-relay-go/internal/errors"
	"github.com/openclaw/match-relay-go/internal/httputil"
	"github.com/openclaw/match-relay-go/internal/service"
)

type contextKey string

const IdentityContextKey contextKey = "identity"

const (
	IdentityCookieName = "anon_id"
	IdentityHeader     = "X-Anon-Id"
)

// GetIdentity returns the verified raw identity, or "" outside the identity
// middleware.
func GetIdentity(ctx context.Context) string {
	if identity, ok := ctx.Value(IdentityContextKey).(string); ok {
		return identity
	}
	return ""
}

func WithIdentity(ctx context.Context, identity string) context.Context {
	return context.WithValue(ctx, IdentityContextKey, identity)
}

// IdentityToken returns the presented identity token. The header wins over
// the cookie.
func IdentityToken(r *http.Request) string {
	if token := r.Header.Get(IdentityHeader); token != "" {
		return token
	}
	if cookie, err := r.Cookie(IdentityCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

type IdentityMiddleware struct {
	identity *service.IdentityService
}

func NewIdentityMiddleware(identity *service.IdentityService) *IdentityMiddleware {
	return &IdentityMiddleware{identity: identity}
}

func (m *IdentityMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := IdentityToken(r)
		if token == "" {
			httputil.WriteError(w, apperrors.Unauthorized("Identity required"))
			return
		}

		identity, err := m.identity.Verify(token)
		if err != nil {
			if errors.Is(err, service.ErrInvalidIdentity) {
				audit.LogFromRequest(r, audit.Event{Type: audit.EventInvalidIdentity})
			}
			httputil.WriteError(w, apperrors.InvalidToken("Invalid identity"))
			return
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
	})
}

func SetIdentityCookie(w http.ResponseWriter, token string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     IdentityCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(config.IdentityMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
