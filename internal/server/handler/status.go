package handler

import (
	"net/http"
	"time"
)

// StatusReporter exposes the monitor state needed by the status endpoint.
type StatusReporter interface {
	LastFetch() time.Time
	Stale() bool
}

// StatusHandler serves the backend status for the dashboard.
type StatusHandler struct {
	mode      string
	startedAt time.Time
	reporter  StatusReporter
}

// NewStatusHandler creates a StatusHandler for the given run mode.
func NewStatusHandler(mode string, startedAt time.Time, reporter StatusReporter) *StatusHandler {
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}
	return &StatusHandler{mode: mode, startedAt: startedAt, reporter: reporter}
}

// GetStatus responds with the run mode, uptime, and freshness of the last
// market fetch.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"mode":           h.mode,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	}

	if h.reporter != nil {
		last := h.reporter.LastFetch()
		if !last.IsZero() {
			body["last_fetch"] = last.UTC().Format(time.RFC3339)
		}
		body["stale"] = h.reporter.Stale()
	}

	writeJSON(w, http.StatusOK, body)
}
