package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReporter struct {
	last  time.Time
	stale bool
}

func (f *fakeReporter) LastFetch() time.Time { return f.last }
func (f *fakeReporter) Stale() bool          { return f.stale }

type fakePinger struct{ err error }

func (f *fakePinger) Ping(context.Context) error { return f.err }

func TestGetStatus(t *testing.T) {
	reporter := &fakeReporter{
		last:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		stale: false,
	}
	h := NewStatusHandler("server", time.Now().Add(-90*time.Second), reporter)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := httptest.NewRecorder()
	h.GetStatus(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "server", body["mode"])
	assert.Equal(t, "2025-06-01T12:00:00Z", body["last_fetch"])
	assert.Equal(t, false, body["stale"])
	assert.GreaterOrEqual(t, body["uptime_seconds"].(float64), 90.0)
}

func TestGetStatusNoFetchYet(t *testing.T) {
	h := NewStatusHandler("scan", time.Time{}, &fakeReporter{stale: true})

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := httptest.NewRecorder()
	h.GetStatus(rec, req)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotContains(t, body, "last_fetch")
	assert.Equal(t, true, body["stale"])
}

func TestHealthCheckDegraded(t *testing.T) {
	h := NewHealthHandler(discardLogger()).
		WithDependency("redis", &fakePinger{}).
		WithDependency("postgres", &fakePinger{err: errors.New("connection refused")})

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	h.HealthCheck(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status   string            `json:"status"`
		Backends map[string]string `json:"backends"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "ok", body.Backends["redis"])
	assert.Contains(t, body.Backends["postgres"], "connection refused")
}

func TestHealthCheckNoBackends(t *testing.T) {
	h := NewHealthHandler(discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	h.HealthCheck(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.NotContains(t, body, "backends")
}
