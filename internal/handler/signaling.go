package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/match-relay-go/internal/audit"
	apperrors "github.com/openclaw/match-relay-go/internal/errors"
	"github.com/openclaw/match-relay-go/internal/httputil"
	"github.com/openclaw/match-relay-go/internal/middleware"
	"github.com/openclaw/match-relay-go/internal/model"
	"github.com/openclaw/match-relay-go/internal/service"
)

const LastStopHeader = "X-Last-Stop"

type SignalingHandler struct {
	relay      *service.RelayService
	grace      *service.GraceService
	maxBytes   int
	iceServers []webrtc.ICEServer
	now        func() time.Time
}

func NewSignalingHandler(relay *service.RelayService, grace *service.GraceService, maxBytes int, iceServers []webrtc.ICEServer) *SignalingHandler {
	return &SignalingHandler{
		relay:      relay,
		grace:      grace,
		maxBytes:   maxBytes,
		iceServers: iceServers,
		now:        time.Now,
	}
}

func (h *SignalingHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Put("/{pairingID}/{role}/description", h.Publish)
	r.Get("/{pairingID}/{role}/counterpart", h.FetchCounterpart)

	return r
}

type counterpartResponse struct {
	Ready              bool            `json:"ready"`
	SessionDescription json.RawMessage `json:"sessionDescription,omitempty"`
}

func pathParams(r *http.Request) (string, model.Role, error) {
	pairingID := chi.URLParam(r, "pairingID")
	if pairingID == "" {
		return "", "", apperrors.MissingRequired("pairingId")
	}
	role := model.Role(chi.URLParam(r, "role"))
	if !role.Valid() {
		return "", "", apperrors.InvalidInput("role", "must be initiator or responder")
	}
	return pairingID, role, nil
}

// PUT /v1/pairings/{pairingID}/{role}/description
func (h *SignalingHandler) Publish(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := middleware.GetIdentity(ctx)

	pairingID, role, err := pathParams(r)
	if err != nil {
		writeServiceError(w, err, "relay")
		return
	}

	pairing, err := h.relay.Admit(ctx, pairingID, identity, role)
	if err != nil {
		h.auditAdmission(r, err, identity, pairingID)
		writeServiceError(w, err, "relay")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, int64(h.maxBytes)+1))
	if err != nil {
		httputil.WriteError(w, apperrors.ValidationError("Unreadable body"))
		return
	}

	desc, err := service.ParseDescription(body, role, h.maxBytes)
	if err != nil {
		writeServiceError(w, err, "relay")
		return
	}

	canonical, err := json.Marshal(desc)
	if err != nil {
		writeServiceError(w, err, "relay")
		return
	}

	if err := h.relay.Publish(ctx, pairingID, role, canonical); err != nil {
		writeServiceError(w, err, "relay")
		return
	}

	if err := h.relay.Retain(ctx, pairing); err != nil {
		log.Warn().Err(err).Str("pairingId", pairingID).Msg("failed to extend pairing")
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// GET /v1/pairings/{pairingID}/{role}/counterpart
func (h *SignalingHandler) FetchCounterpart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := middleware.GetIdentity(ctx)

	pairingID, role, err := pathParams(r)
	if err != nil {
		writeServiceError(w, err, "relay")
		return
	}

	if _, err := h.relay.Admit(ctx, pairingID, identity, role); err != nil {
		if errors.Is(err, service.ErrPairingNotFound) {
			h.gracefulMiss(w, r, identity)
			return
		}
		h.auditAdmission(r, err, identity, pairingID)
		writeServiceError(w, err, "relay")
		return
	}

	cp, err := h.relay.FetchCounterpart(ctx, pairingID, role)
	if err != nil {
		writeServiceError(w, err, "relay")
		return
	}

	resp := counterpartResponse{Ready: cp.Ready}
	if cp.Ready {
		resp.SessionDescription = json.RawMessage(cp.Description)
	}
	writeJSON(w, http.StatusOK, resp)
}

// gracefulMiss answers a fetch for a vanished pairing. Inside the grace
// window the caller is reconnecting and gets an empty result instead of 404.
func (h *SignalingHandler) gracefulMiss(w http.ResponseWriter, r *http.Request, identity string) {
	in, err := h.grace.IsInGrace(r.Context(), identity, parseLastStop(r.Header.Get(LastStopHeader)), h.now())
	if err != nil {
		writeServiceError(w, err, "grace")
		return
	}
	if in {
		writeJSON(w, http.StatusOK, counterpartResponse{Ready: false})
		return
	}
	httputil.WriteError(w, apperrors.NotFound("Pairing"))
}

func (h *SignalingHandler) auditAdmission(r *http.Request, err error, identity, pairingID string) {
	var event audit.EventType
	switch {
	case errors.Is(err, service.ErrRoleMismatch):
		event = audit.EventRoleMismatch
	case errors.Is(err, service.ErrNotParticipant):
		event = audit.EventNotParticipant
	default:
		return
	}
	audit.LogFromRequest(r, audit.Event{Type: event, Identity: identity, PairingID: pairingID})
}

// GET /v1/ice-servers
func (h *SignalingHandler) ICEServers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"iceServers": h.iceServers})
}

// parseLastStop reads unix milliseconds. Missing or malformed values yield
// the zero time.
func parseLastStop(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
