package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/match-relay-go/internal/service"
)

func identityEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(GetIdentity(r.Context())))
	})
}

func TestIdentityMiddleware(t *testing.T) {
	svc := service.NewIdentityService("a-long-enough-identity-secret-value")
	token, raw, err := svc.Issue("")
	require.NoError(t, err)
	handler := NewIdentityMiddleware(svc).Handler(identityEcho())

	t.Run("accepts the header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/queue", nil)
		req.Header.Set(IdentityHeader, token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, raw, rec.Body.String())
	})

	t.Run("accepts the cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/queue", nil)
		req.AddCookie(&http.Cookie{Name: IdentityCookieName, Value: token})
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, raw, rec.Body.String())
	})

	t.Run("missing identity is 401", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/queue", nil))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "UNAUTHORIZED")
	})

	t.Run("forged identity is 401", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/queue", nil)
		req.Header.Set(IdentityHeader, raw+".deadbeef")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "INVALID_TOKEN")
	})
}

func TestIdentityToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, IdentityToken(req))

	req.AddCookie(&http.Cookie{Name: IdentityCookieName, Value: "from-cookie"})
	assert.Equal(t, "from-cookie", IdentityToken(req))

	req.Header.Set(IdentityHeader, "from-header")
	assert.Equal(t, "from-header", IdentityToken(req))
}
