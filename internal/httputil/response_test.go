package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/openclaw/match-relay-go/internal/errors"
)

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusCreated, map[string]bool{"ok": true})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
}

func TestWriteError(t *testing.T) {
	t.Run("writes AppError with mapped status", func(t *testing.T) {
		rec := httptest.NewRecorder()
		WriteError(rec, apperrors.MissingRequired("sdp"))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var body ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, apperrors.ErrCodeMissingRequired, body.Code)
		assert.Equal(t, "sdp is required", body.Error)
	})

	t.Run("finds wrapped AppError", func(t *testing.T) {
		rec := httptest.NewRecorder()
		WriteError(rec, fmt.Errorf("enqueue: %w", apperrors.StoreUnavailable(errors.New("dial tcp"))))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.NotContains(t, rec.Body.String(), "dial tcp")
	})

	t.Run("includes details", func(t *testing.T) {
		rec := httptest.NewRecorder()
		WriteError(rec, apperrors.TooLarge(512))

		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
		assert.JSONEq(t, `{"error":"Request body too large","code":"PAYLOAD_TOO_LARGE","details":{"limit":512}}`, rec.Body.String())
	})

	t.Run("hides unknown errors behind internal error", func(t *testing.T) {
		rec := httptest.NewRecorder()
		WriteError(rec, errors.New("redis: connection pool timeout"))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "redis")
	})
}
