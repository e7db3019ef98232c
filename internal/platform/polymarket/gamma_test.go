package polymarket

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

func TestStringListEncodedArray(t *testing.T) {
	var l stringList
	require.NoError(t, json.Unmarshal([]byte(`"[\"0.85\", \"0.15\"]"`), &l))
	assert.Equal(t, stringList{"0.85", "0.15"}, l)
}

func TestStringListDirectArray(t *testing.T) {
	var l stringList
	require.NoError(t, json.Unmarshal([]byte(`["0.85","0.15"]`), &l))
	assert.Equal(t, stringList{"0.85", "0.15"}, l)
}

func TestStringListEmpty(t *testing.T) {
	var l stringList
	require.NoError(t, json.Unmarshal([]byte(`""`), &l))
	assert.Empty(t, l)
}

func TestFlexBool(t *testing.T) {
	var f flexBool
	require.NoError(t, json.Unmarshal([]byte(`true`), &f))
	assert.True(t, bool(f))
	require.NoError(t, json.Unmarshal([]byte(`"false"`), &f))
	assert.False(t, bool(f))
	require.NoError(t, json.Unmarshal([]byte(`"true"`), &f))
	assert.True(t, bool(f))
}

func TestToDomain(t *testing.T) {
	m := APIMarket{
		ID:            "12345",
		Question:      "Bitcoin above 100k by December 31?",
		Slug:          "bitcoin-above-100k",
		Description:   "Resolves yes if BTC trades above 100000.",
		OutcomePrices: stringList{"0.85", "0.15"},
		Volume:        "250000.5",
		EndDate:       "2026-12-31T00:00:00Z",
	}

	dm := toDomain(&m)
	assert.Equal(t, "12345", dm.ID)
	assert.Equal(t, domain.PlatformPolymarket, dm.Platform)
	assert.Equal(t, "Bitcoin above 100k by December 31?", dm.Title)
	assert.InDelta(t, 0.85, dm.YesPrice, 1e-9)
	assert.InDelta(t, 0.15, dm.NoPrice, 1e-9)
	assert.InDelta(t, 250000.5, dm.Volume, 1e-9)
	assert.Equal(t, "https://polymarket.com/event/bitcoin-above-100k", dm.URL)
	assert.Equal(t, "2026-12-31T00:00:00Z", dm.EndDate)
	assert.Equal(t, 2026, dm.CloseTime.Year())
}

func TestToDomainNonRFC3339EndDate(t *testing.T) {
	// The raw source date survives unparsed formats; only the parsed
	// CloseTime degrades to zero.
	dm := toDomain(&APIMarket{ID: "1", Question: "q", EndDate: "June 1, 2026"})
	assert.Equal(t, "June 1, 2026", dm.EndDate)
	assert.True(t, dm.CloseTime.IsZero())
}

func TestToDomainMissingPrices(t *testing.T) {
	dm := toDomain(&APIMarket{ID: "1", Question: "q"})
	assert.Zero(t, dm.YesPrice)
	assert.Zero(t, dm.NoPrice)
}

func TestToDomainFallbacks(t *testing.T) {
	dm := toDomain(&APIMarket{
		ConditionID: "0xabc",
		Title:       "event title",
		EndDateISO:  "2026-06-01T00:00:00Z",
	})
	assert.Equal(t, "0xabc", dm.ID)
	assert.Equal(t, "event title", dm.Title)
	assert.Equal(t, "https://polymarket.com/event/0xabc", dm.URL)
	assert.Equal(t, "2026-06-01T00:00:00Z", dm.EndDate)
	assert.Equal(t, 2026, dm.CloseTime.Year())
}

func TestFetchMarkets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/markets", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("active"))
		assert.Equal(t, "false", r.URL.Query().Get("closed"))
		_, _ = w.Write([]byte(`[
			{"id":"1","question":"First?","outcomePrices":"[\"0.6\",\"0.4\"]","slug":"first"},
			{"id":"2","question":"Second?","outcomePrices":["0.3","0.7"],"slug":"second"}
		]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	markets, err := c.FetchMarkets(context.Background())
	require.NoError(t, err)
	require.Len(t, markets, 2)
	assert.InDelta(t, 0.6, markets[0].YesPrice, 1e-9)
	assert.InDelta(t, 0.7, markets[1].NoPrice, 1e-9)
}

func TestFetchMarketsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	_, err := c.FetchMarkets(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 502")
}
