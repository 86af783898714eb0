package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger reports whether a dependency is reachable. *sqlstore.Store
// satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler answers liveness checks.
type HealthHandler struct {
	db     Pinger
	logger *slog.Logger
}

func NewHealthHandler(db Pinger, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{db: db, logger: logger}
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}

// HandleHealth pings the database with a short deadline.
//
// HTTP: GET /healthz
// RESPONSE: 200 {"status": "ok"} or 503 {"status": "unavailable"}
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		h.logger.Warn("health check failed", slog.String("error", err.Error()))
		writeJSON(h.logger, w, http.StatusServiceUnavailable, HealthResponse{Status: "unavailable"})
		return
	}
	writeJSON(h.logger, w, http.StatusOK, HealthResponse{Status: "ok"})
}

// NotFound is the router's fallback for unknown paths.
func NotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(nil, w, http.StatusNotFound, ErrorResponse{
		Error:   "not_found",
		Message: "route " + r.Method + " " + r.URL.Path + " not found",
	})
}

// MethodNotAllowed is the router's fallback for a known path with the
// wrong method.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeJSON(nil, w, http.StatusMethodNotAllowed, ErrorResponse{
		Error:   "method_not_allowed",
		Message: "method " + r.Method + " is not allowed on " + r.URL.Path,
	})
}
