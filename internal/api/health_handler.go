package api

import (
	"net/http"
	"time"

	"github.com/rvbbit/rvbbit/internal/api/respond"
	"github.com/rvbbit/rvbbit/internal/health"
)

// HealthHandler serves GET /health from an injected
// health.ServiceHealthChecker rather than the teacher's package-level
// atomic globals, matching this module's never-global-state logger/store
// conventions.
type HealthHandler struct {
	checker *health.ServiceHealthChecker
}

func NewHealthHandler(checker *health.ServiceHealthChecker) *HealthHandler {
	return &HealthHandler{checker: checker}
}

func (h *HealthHandler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	status := "UP"
	code := http.StatusOK
	if !h.checker.IsHealthy() {
		status = "DOWN"
		code = http.StatusInternalServerError
	}
	respond.WriteJSON(w, code, map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
