package kalshi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polarlyst/arbmonitor/internal/domain"
)

func TestToDomainMidpoint(t *testing.T) {
	m, ok := toDomain(APIMarket{
		Ticker:       "BTC-100K",
		SeriesTicker: "BTC",
		Title:        "Bitcoin above 100k",
		YesBid:       44,
		YesAsk:       46,
		LastPrice:    40,
		Volume:       1200,
		CloseTime:    "2026-12-31T23:59:00Z",
	})
	require.True(t, ok)
	assert.InDelta(t, 0.45, m.YesPrice, 1e-9)
	assert.InDelta(t, 0.55, m.NoPrice, 1e-9)
	assert.Equal(t, domain.PlatformKalshi, m.Platform)
	assert.Equal(t, "https://kalshi.com/markets/btc/btc-100k", m.URL)
	assert.Equal(t, "2026-12-31T23:59:00Z", m.EndDate)
	assert.Equal(t, 2026, m.CloseTime.Year())
}

func TestToDomainFallbacks(t *testing.T) {
	// Bid only.
	m, ok := toDomain(APIMarket{Ticker: "T1", Title: "t", YesBid: 30})
	require.True(t, ok)
	assert.InDelta(t, 0.30, m.YesPrice, 1e-9)

	// Last trade only.
	m, ok = toDomain(APIMarket{Ticker: "T2", Title: "t", LastPrice: 62})
	require.True(t, ok)
	assert.InDelta(t, 0.62, m.YesPrice, 1e-9)

	// No quotes at all.
	_, ok = toDomain(APIMarket{Ticker: "T3", Title: "t"})
	assert.False(t, ok)
}

func TestToDomainURLWithoutSeries(t *testing.T) {
	m, ok := toDomain(APIMarket{Ticker: "SOLO-24", Title: "t", YesBid: 10})
	require.True(t, ok)
	assert.Equal(t, "https://kalshi.com/markets/solo-24", m.URL)
}

func TestFetchMarketsPaginates(t *testing.T) {
	pages := map[string]marketsResponse{
		"": {
			Markets: []APIMarket{{Ticker: "A", Title: "a", YesBid: 40, YesAsk: 42}},
			Cursor:  "next-1",
		},
		"next-1": {
			Markets: []APIMarket{
				{Ticker: "B", Title: "b", LastPrice: 55},
				{Ticker: "C", Title: "c"}, // no quotes, skipped
			},
		},
	}

	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		assert.Equal(t, "/markets", r.URL.Path)
		assert.Equal(t, "open", r.URL.Query().Get("status"))
		assert.Equal(t, "200", r.URL.Query().Get("limit"))
		page := pages[r.URL.Query().Get("cursor")]
		_ = json.NewEncoder(w).Encode(page)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	markets, err := c.FetchMarkets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, requests)
	require.Len(t, markets, 2)
	assert.Equal(t, "A", markets[0].ID)
	assert.Equal(t, "B", markets[1].ID)
}

func TestFetchMarketsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"code":"internal","message":"boom"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	_, err := c.FetchMarkets(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 500")
}
