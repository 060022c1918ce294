package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	apperrors "github.com/openclaw/match-relay-go/internal/errors"
	"github.com/openclaw/match-relay-go/internal/httputil"
	"github.com/openclaw/match-relay-go/internal/metrics"
	"github.com/openclaw/match-relay-go/internal/service"
	"github.com/openclaw/match-relay-go/internal/store"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}

// writeServiceError maps service and store failures onto the error
// taxonomy. Unknown errors are logged and reported as internal.
func writeServiceError(w http.ResponseWriter, err error, component string) {
	if appErr, ok := apperrors.AsAppError(err); ok {
		httputil.WriteError(w, appErr)
		return
	}

	switch {
	case errors.Is(err, store.ErrUnavailable):
		metrics.StoreErrors.WithLabelValues(component).Inc()
		log.Error().Err(err).Str("component", component).Msg("store unavailable")
		httputil.WriteError(w, apperrors.StoreUnavailable(err))
	case errors.Is(err, service.ErrPairingNotFound):
		httputil.WriteError(w, apperrors.NotFound("Pairing"))
	case errors.Is(err, service.ErrNotParticipant), errors.Is(err, service.ErrRoleMismatch):
		httputil.WriteError(w, apperrors.Forbidden("Role not assigned to caller"))
	default:
		log.Error().Err(err).Str("component", component).Msg("request failed")
		httputil.WriteError(w, apperrors.Internal("Internal server error"))
	}
}

// decodeJSON reads an optional JSON body into dst. An empty body leaves dst
// at its zero value.
func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return apperrors.TooLarge(maxBytesErr.Limit)
		}
		return apperrors.ValidationError("Invalid JSON body")
	}
	return nil
}

func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fields := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			fields = append(fields, fe.Namespace())
		}
		return apperrors.ValidationError("Invalid request").
			WithDetails(map[string]any{"fields": fields})
	}
	return apperrors.ValidationError(strings.TrimSpace(err.Error()))
}
