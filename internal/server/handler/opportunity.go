package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/polarlyst/arbmonitor/internal/domain"
)

// OpportunityService defines the methods the opportunity handler requires.
type OpportunityService interface {
	GetOpportunities(ctx context.Context, forceRefresh bool) (domain.Snapshot, error)
	Top(n int) []domain.Opportunity
	Summary() domain.Summary
	History() []domain.HistoryPoint
	Alerts() []domain.Alert
}

// OpportunityHandler serves arbitrage opportunity endpoints.
type OpportunityHandler struct {
	svc    OpportunityService
	store  domain.OpportunityStore // optional; when nil, Recent returns 501
	logger *slog.Logger
}

// NewOpportunityHandler creates an OpportunityHandler with the given
// service and logger.
func NewOpportunityHandler(svc OpportunityService, logger *slog.Logger) *OpportunityHandler {
	return &OpportunityHandler{svc: svc, logger: logger}
}

// WithStore sets the persistence store for the historical endpoint.
func (h *OpportunityHandler) WithStore(store domain.OpportunityStore) *OpportunityHandler {
	h.store = store
	return h
}

// snapshotResponse wraps a refresh snapshot for the list endpoint.
type snapshotResponse struct {
	Opportunities []domain.Opportunity `json:"opportunities"`
	MatchCount    int                  `json:"match_count"`
	KalshiCount   int                  `json:"kalshi_count"`
	PolyCount     int                  `json:"polymarket_count"`
	FetchedAt     time.Time            `json:"fetched_at"`
	Errors        map[string]string    `json:"errors,omitempty"`
}

// List returns the current opportunity snapshot, refreshing the market data
// first when refresh=1 is passed or when the cached snapshot has expired.
// GET /api/opportunities?refresh=1
func (h *OpportunityHandler) List(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("refresh") == "1"

	// Upstream outages are not errors here: the service degrades to an
	// empty snapshot with per-venue error strings, surfaced below.
	snap, err := h.svc.GetOpportunities(r.Context(), force)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: get opportunities failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get opportunities")
		return
	}

	resp := snapshotResponse{
		Opportunities: snap.Opportunities,
		MatchCount:    len(snap.Matches),
		KalshiCount:   snap.KalshiCount,
		PolyCount:     snap.PolyCount,
		FetchedAt:     snap.FetchedAt,
	}
	if resp.Opportunities == nil {
		resp.Opportunities = []domain.Opportunity{}
	}
	if snap.KalshiErr != "" || snap.PolyErr != "" {
		resp.Errors = map[string]string{}
		if snap.KalshiErr != "" {
			resp.Errors["kalshi"] = snap.KalshiErr
		}
		if snap.PolyErr != "" {
			resp.Errors["polymarket"] = snap.PolyErr
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// Top returns the highest-spread opportunities from the current snapshot.
// GET /api/opportunities/top?limit=10
func (h *OpportunityHandler) Top(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 10, 100)

	opps := h.svc.Top(limit)
	if opps == nil {
		opps = []domain.Opportunity{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"opportunities": opps})
}

// Recent returns persisted opportunities from past refreshes.
// GET /api/opportunities/recent?limit=50&since=2025-01-01
func (h *OpportunityHandler) Recent(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusNotImplemented, "opportunity persistence not configured")
		return
	}

	opts := parseListOpts(r)

	var (
		opps []domain.Opportunity
		err  error
	)
	if opts.Since != nil || opts.Until != nil || opts.Offset > 0 {
		opps, err = h.store.ListSince(r.Context(), opts)
	} else {
		opps, err = h.store.ListRecent(r.Context(), opts.Limit)
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list persisted opportunities failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list opportunities")
		return
	}

	if opps == nil {
		opps = []domain.Opportunity{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"opportunities": opps})
}

// GetSummary returns aggregate statistics for the current snapshot.
// GET /api/summary
func (h *OpportunityHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Summary())
}

// GetHistory returns the per-refresh opportunity counts.
// GET /api/history
func (h *OpportunityHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	history := h.svc.History()
	if history == nil {
		history = []domain.HistoryPoint{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": history})
}

// ListAlerts returns recently raised high-spread alerts.
// GET /api/alerts
func (h *OpportunityHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	alerts := h.svc.Alerts()
	if alerts == nil {
		alerts = []domain.Alert{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}
