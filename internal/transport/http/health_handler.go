package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"repgap/internal/services"
	api "repgap/pkg/contracts/api/v1"
)

// HealthHandler serves the probe and version endpoints
type HealthHandler struct {
	service *services.HealthService
	logger  *slog.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(service *services.HealthService, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		service: service,
		logger:  logger.With(slog.String("handler", "health")),
	}
}

// HealthCheck handles GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.service.HealthCheck(r.Context()), services.StatusOK)
}

// ReadinessCheck handles GET /api/health/ready
func (h *HealthHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.service.ReadinessCheck(r.Context()), services.StatusReady)
}

// LivenessCheck handles GET /api/health/live
func (h *HealthHandler) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.service.LivenessCheck(r.Context()), services.StatusAlive)
}

// Version handles GET /api/version
func (h *HealthHandler) Version(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.service.Version())
}

// respond answers 503 unless the probe reports want
func (h *HealthHandler) respond(w http.ResponseWriter, r *http.Request, resp api.HealthResponse, want string) {
	if resp.Status != want {
		h.logger.WarnContext(r.Context(), "health probe failing",
			slog.String("path", r.URL.Path),
			slog.String("status", resp.Status),
			slog.Any("checks", resp.Checks))
		render.Status(r, http.StatusServiceUnavailable)
	}
	render.JSON(w, r, resp)
}
