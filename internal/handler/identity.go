package handler

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/match-relay-go/internal/audit"
	"github.com/openclaw/match-relay-go/internal/middleware"
	"github.com/openclaw/match-relay-go/internal/service"
)

type IdentityHandler struct {
	identity     *service.IdentityService
	isProduction bool
}

func NewIdentityHandler(identity *service.IdentityService, isProduction bool) *IdentityHandler {
	return &IdentityHandler{identity: identity, isProduction: isProduction}
}

// POST /v1/identity
func (h *IdentityHandler) Issue(w http.ResponseWriter, r *http.Request) {
	token, identity, err := h.identity.Issue(middleware.IdentityToken(r))
	if err != nil {
		log.Error().Err(err).Msg("failed to issue identity")
		writeServiceError(w, err, "identity")
		return
	}

	audit.LogFromRequest(r, audit.Event{Type: audit.EventIdentityIssued, Identity: identity})
	middleware.SetIdentityCookie(w, token, h.isProduction)
	writeJSON(w, http.StatusOK, map[string]string{"identity": token})
}
