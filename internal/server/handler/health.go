package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger checks connectivity of an optional backend dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	logger *slog.Logger
	deps   map[string]Pinger
}

// NewHealthHandler creates a HealthHandler with the provided logger.
func NewHealthHandler(logger *slog.Logger) *HealthHandler {
	return &HealthHandler{logger: logger, deps: make(map[string]Pinger)}
}

// WithDependency registers a named backend whose connectivity is reported
// in the health response.
func (h *HealthHandler) WithDependency(name string, p Pinger) *HealthHandler {
	h.deps[name] = p
	return h
}

// HealthCheck responds with the server status and the state of each
// registered backend. The overall status degrades to "degraded" when any
// backend ping fails, but the endpoint always returns 200 so that load
// balancers keep routing while optional backends recover.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	backends := make(map[string]string, len(h.deps))

	for name, p := range h.deps {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		err := p.Ping(ctx)
		cancel()
		if err != nil {
			backends[name] = err.Error()
			status = "degraded"
			continue
		}
		backends[name] = "ok"
	}

	body := map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if len(backends) > 0 {
		body["backends"] = backends
	}

	writeJSON(w, http.StatusOK, body)
}
