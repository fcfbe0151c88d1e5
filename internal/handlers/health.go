package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/vidtube/backend/internal/logging"
)

const healthTimeout = 2 * time.Second

// HealthHandler responds with service health information.
type HealthHandler struct {
	Check HealthChecker
}

type healthStatus struct {
	Status string `json:"status"`
}

// Handle implements GET /healthz.
func (h HealthHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.Check != nil {
		checkCtx, cancel := context.WithTimeout(ctx, healthTimeout)
		defer cancel()

		if err := h.Check(checkCtx); err != nil {
			logging.FromContext(ctx).Error("health check failed", "error", err)
			respondJSON(ctx, w, http.StatusServiceUnavailable, healthStatus{Status: "unavailable"})
			return
		}
	}

	respondJSON(ctx, w, http.StatusOK, healthStatus{Status: "ok"})
}
