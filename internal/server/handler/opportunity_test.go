package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polarlyst/arbmonitor/internal/domain"
)

type fakeService struct {
	snap       domain.Snapshot
	err        error
	forceSeen  bool
	top        []domain.Opportunity
	summary    domain.Summary
	history    []domain.HistoryPoint
	alerts     []domain.Alert
}

func (f *fakeService) GetOpportunities(_ context.Context, force bool) (domain.Snapshot, error) {
	f.forceSeen = force
	return f.snap, f.err
}

func (f *fakeService) Top(n int) []domain.Opportunity {
	if n < len(f.top) {
		return f.top[:n]
	}
	return f.top
}

func (f *fakeService) Summary() domain.Summary        { return f.summary }
func (f *fakeService) History() []domain.HistoryPoint { return f.history }
func (f *fakeService) Alerts() []domain.Alert         { return f.alerts }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestListOpportunities(t *testing.T) {
	svc := &fakeService{
		snap: domain.Snapshot{
			Opportunities: []domain.Opportunity{{ID: "opp-1", SpreadPct: 4.2}},
			Matches:       []domain.Match{{Similarity: 88}},
			KalshiCount:   120,
			PolyCount:     300,
			FetchedAt:     time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		},
	}
	h := NewOpportunityHandler(svc, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/opportunities", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, svc.forceSeen)

	var resp struct {
		Opportunities []domain.Opportunity `json:"opportunities"`
		MatchCount    int                  `json:"match_count"`
		KalshiCount   int                  `json:"kalshi_count"`
		PolyCount     int                  `json:"polymarket_count"`
		Errors        map[string]string    `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Opportunities, 1)
	assert.Equal(t, "opp-1", resp.Opportunities[0].ID)
	assert.Equal(t, 1, resp.MatchCount)
	assert.Equal(t, 120, resp.KalshiCount)
	assert.Equal(t, 300, resp.PolyCount)
	assert.Empty(t, resp.Errors)
}

func TestListOpportunitiesForceRefresh(t *testing.T) {
	svc := &fakeService{}
	h := NewOpportunityHandler(svc, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/opportunities?refresh=1", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, svc.forceSeen)
}

func TestListOpportunitiesSourceErrors(t *testing.T) {
	svc := &fakeService{
		snap: domain.Snapshot{
			KalshiErr: "kalshi: connect: timeout",
			PolyCount: 250,
		},
	}
	h := NewOpportunityHandler(svc, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/opportunities", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Errors map[string]string `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Errors["kalshi"], "timeout")
	assert.NotContains(t, resp.Errors, "polymarket")
}

func TestListOpportunitiesAllSourcesDown(t *testing.T) {
	// A total outage serves an empty list with both venue errors, not
	// an error status.
	svc := &fakeService{snap: domain.Snapshot{
		KalshiErr: "kalshi: connection refused",
		PolyErr:   "polymarket: connection refused",
		FetchedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}}
	h := NewOpportunityHandler(svc, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/opportunities", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Opportunities []domain.Opportunity `json:"opportunities"`
		Errors        map[string]string    `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Empty(t, body.Opportunities)
	assert.Contains(t, body.Errors["kalshi"], "connection refused")
	assert.Contains(t, body.Errors["polymarket"], "connection refused")
}

func TestListOpportunitiesServiceError(t *testing.T) {
	svc := &fakeService{err: context.DeadlineExceeded}
	h := NewOpportunityHandler(svc, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/opportunities", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestTopLimitsResults(t *testing.T) {
	svc := &fakeService{
		top: []domain.Opportunity{
			{ID: "a", SpreadPct: 9},
			{ID: "b", SpreadPct: 7},
			{ID: "c", SpreadPct: 5},
		},
	}
	h := NewOpportunityHandler(svc, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/opportunities/top?limit=2", nil)
	rec := httptest.NewRecorder()
	h.Top(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Opportunities []domain.Opportunity `json:"opportunities"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Opportunities, 2)
}

func TestRecentWithoutStore(t *testing.T) {
	h := NewOpportunityHandler(&fakeService{}, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/opportunities/recent", nil)
	rec := httptest.NewRecorder()
	h.Recent(rec, req)

	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestGetSummary(t *testing.T) {
	svc := &fakeService{
		summary: domain.Summary{Count: 4, ProfitableCount: 2, MaxSpreadPct: 6.5},
	}
	h := NewOpportunityHandler(svc, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/summary", nil)
	rec := httptest.NewRecorder()
	h.GetSummary(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var got domain.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 4, got.Count)
	assert.Equal(t, 2, got.ProfitableCount)
	assert.InDelta(t, 6.5, got.MaxSpreadPct, 1e-9)
}

func TestListAlertsEmpty(t *testing.T) {
	h := NewOpportunityHandler(&fakeService{}, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/alerts", nil)
	rec := httptest.NewRecorder()
	h.ListAlerts(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"alerts":[]}`, rec.Body.String())
}
