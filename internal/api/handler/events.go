package handler

import (
	"net/http"

	"github.com/mcoot/gamewallet/internal/api/middleware"
	"github.com/mcoot/gamewallet/internal/api/sse"
)

// EventsHandler streams balance changes over SSE
type EventsHandler struct {
	hubManager *sse.HubManager
}

// NewEventsHandler creates a new events handler
func NewEventsHandler(hubManager *sse.HubManager) *EventsHandler {
	return &EventsHandler{hubManager: hubManager}
}

// Stream handles GET /events
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	acct := middleware.MustGetAccount(r.Context())
	h.hubManager.Serve(w, r, acct.ID)
}
