package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/mcoot/gamewallet/internal/api/response"
	"github.com/mcoot/gamewallet/internal/dependencies/clock"
	"github.com/mcoot/gamewallet/internal/storage"
)

const (
	serviceName       = "game-wallet"
	healthPingTimeout = 2 * time.Second
)

// HealthHandler reports service and storage health
type HealthHandler struct {
	storage storage.Storage
	clock   clock.Clock
	logger  *slog.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(storage storage.Storage, clock clock.Clock, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		storage: storage,
		clock:   clock,
		logger:  logger,
	}
}

// Health handles GET /health.
// Status stays UP while the process answers; a failed storage ping is
// reported as storage DOWN with a 503.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
	defer cancel()

	resp := response.Health{
		Status:    response.HealthStatusUp,
		Service:   serviceName,
		Storage:   response.StorageConnected,
		Timestamp: h.clock.Now().UTC().Format(time.RFC3339),
	}
	status := http.StatusOK

	if err := h.storage.Ping(ctx); err != nil {
		h.logger.WarnContext(r.Context(), "storage health check failed", slog.String("error", err.Error()))
		resp.Storage = response.StorageDown
		status = http.StatusServiceUnavailable
	}

	response.JSON(w, status, resp)
}
