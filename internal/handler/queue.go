package handler

import (
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/match-relay-go/internal/middleware"
	"github.com/openclaw/match-relay-go/internal/model"
	"github.com/openclaw/match-relay-go/internal/service"
	"github.com/openclaw/match-relay-go/internal/util"
)

type QueueHandler struct {
	queue *service.QueueService
	grace *service.GraceService
	now   func() time.Time
}

func NewQueueHandler(queue *service.QueueService, grace *service.GraceService) *QueueHandler {
	return &QueueHandler{queue: queue, grace: grace, now: time.Now}
}

// POST /v1/queue
func (h *QueueHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())

	var req enqueueRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, err, "queue")
		return
	}
	req.normalize()
	if err := validateStruct(&req); err != nil {
		writeServiceError(w, err, "queue")
		return
	}

	ticket := req.ticket(identity)
	ticket.EnqueuedAt = h.now()

	queued, err := h.queue.Enqueue(r.Context(), ticket)
	if err != nil {
		writeServiceError(w, err, "queue")
		return
	}

	// A fresh ticket gets one immediate match attempt so the first poll can
	// already report the pairing.
	if queued {
		if _, err := h.queue.TryPair(r.Context()); err != nil {
			log.Warn().Err(err).Str("identity", util.ShortHash(identity)).Msg("immediate pairing attempt failed")
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"queued": queued,
		"lane":   ticket.Tier.Lane(),
	})
}

// GET /v1/queue
func (h *QueueHandler) Poll(w http.ResponseWriter, r *http.Request) {
	status, err := h.queue.Poll(r.Context(), middleware.GetIdentity(r.Context()))
	if err != nil {
		writeServiceError(w, err, "queue")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// DELETE /v1/queue
func (h *QueueHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if err := h.queue.Cancel(r.Context(), middleware.GetIdentity(r.Context())); err != nil {
		writeServiceError(w, err, "queue")
		return
	}
	writeJSON(w, http.StatusOK, model.QueueStatus{State: model.QueueStateIdle})
}

// POST /v1/teardown
func (h *QueueHandler) Teardown(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())

	var req teardownRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, err, "grace")
		return
	}
	if err := validateStruct(&req); err != nil {
		writeServiceError(w, err, "grace")
		return
	}

	now := h.now()
	at := now
	if req.At > 0 {
		at = time.UnixMilli(req.At)
		if at.After(now) {
			at = now
		}
	}

	if err := h.grace.MarkDisconnect(r.Context(), identity, at); err != nil {
		writeServiceError(w, err, "grace")
		return
	}
	if err := h.queue.Leave(r.Context(), identity); err != nil {
		writeServiceError(w, err, "queue")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"lastStop":   at.UnixMilli(),
		"graceUntil": at.Add(h.grace.Window()).UnixMilli(),
	})
}

// GET /v1/stats
func (h *QueueHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.queue.Stats(r.Context())
	if err != nil {
		writeServiceError(w, err, "queue")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// EnqueueExempt exempts the first enqueue after a teardown from the enqueue
// rate limit while the grace window is open. Only the server-side disconnect
// record counts here, and each record grants a single exemption.
func (h *QueueHandler) EnqueueExempt(r *http.Request) bool {
	identity := middleware.GetIdentity(r.Context())
	if identity == "" {
		return false
	}

	in, err := h.grace.ClaimReconnect(r.Context(), identity, h.now())
	if err != nil {
		log.Warn().Err(err).Msg("grace check failed, applying rate limit")
		return false
	}
	return in
}
