package handler

import (
	"net/http"

	"github.com/openclaw/match-relay-go/internal/audit"
	"github.com/openclaw/match-relay-go/internal/service"
)

type AdminHandler struct {
	queue *service.QueueService
}

func NewAdminHandler(queue *service.QueueService) *AdminHandler {
	return &AdminHandler{queue: queue}
}

// POST /admin/reset
func (h *AdminHandler) Reset(w http.ResponseWriter, r *http.Request) {
	if err := h.queue.Reset(r.Context()); err != nil {
		writeServiceError(w, err, "admin")
		return
	}

	audit.LogFromRequest(r, audit.Event{Type: audit.EventAdminReset})
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
