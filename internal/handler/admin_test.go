package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/openclaw/match-relay-go/internal/middleware"
	"github.com/openclaw/match-relay-go/internal/model"
)

func TestAdminHandler_Reset(t *testing.T) {
	env := newTestEnv(t, nil)

	hash, err := bcrypt.GenerateFromPassword([]byte("operator-pass"), bcrypt.MinCost)
	require.NoError(t, err)

	admin := NewAdminHandler(env.queue)
	reset := middleware.NewAdminMiddleware(string(hash), false).Handler(http.HandlerFunc(admin.Reset))

	token, _ := env.newIdentity(t)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/v1/queue", token, nil).Code)

	t.Run("wrong password", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/admin/reset", nil)
		req.Header.Set("Authorization", "Bearer nope")
		rec := httptest.NewRecorder()
		reset.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		poll := env.do(t, http.MethodGet, "/v1/queue", token, nil)
		assert.Equal(t, model.QueueStateWaiting, decode[model.QueueStatus](t, poll).State)
	})

	t.Run("clears the queue", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/admin/reset", nil)
		req.Header.Set("Authorization", "Bearer operator-pass")
		rec := httptest.NewRecorder()
		reset.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"success":true}`, rec.Body.String())

		poll := env.do(t, http.MethodGet, "/v1/queue", token, nil)
		assert.Equal(t, model.QueueStateIdle, decode[model.QueueStatus](t, poll).State)
	})
}
