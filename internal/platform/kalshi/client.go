// Package kalshi fetches public market data from the Kalshi trade API.
package kalshi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/polarlyst/arbmonitor/internal/domain"
)

// DefaultBaseURL is the public Kalshi trade API root.
const DefaultBaseURL = "https://api.elections.kalshi.com/trade-api/v2"

const (
	pageLimit = 200
	maxPages  = 10
)

// Client is the REST client for Kalshi public market endpoints. The
// market listing endpoints need no authentication.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a Kalshi client. An empty baseURL uses
// DefaultBaseURL.
func NewClient(baseURL string, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger.With(slog.String("component", "kalshi")),
	}
}

// GetMarkets returns one page of markets plus the cursor for the next
// page. An empty cursor in the response means the listing is done.
func (c *Client) GetMarkets(ctx context.Context, status, cursor string) ([]APIMarket, string, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(pageLimit))
	if status != "" {
		params.Set("status", status)
	}
	if cursor != "" {
		params.Set("cursor", cursor)
	}

	body, err := c.doGet(ctx, "/markets?"+params.Encode())
	if err != nil {
		return nil, "", fmt.Errorf("kalshi: get markets: %w", err)
	}

	var resp marketsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, "", fmt.Errorf("kalshi: decode markets: %w", err)
	}
	return resp.Markets, resp.Cursor, nil
}

// GetMarket returns a single market by its ticker.
func (c *Client) GetMarket(ctx context.Context, ticker string) (APIMarket, error) {
	body, err := c.doGet(ctx, "/markets/"+url.PathEscape(ticker))
	if err != nil {
		return APIMarket{}, fmt.Errorf("kalshi: get market %s: %w", ticker, err)
	}

	var resp struct {
		Market APIMarket `json:"market"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return APIMarket{}, fmt.Errorf("kalshi: decode market: %w", err)
	}
	return resp.Market, nil
}

// FetchMarkets pages through all open markets and converts them to
// the normalized domain form. Markets with no usable price quote are
// skipped. Pagination stops after an empty page, an empty cursor, or
// the page cap.
func (c *Client) FetchMarkets(ctx context.Context) ([]domain.Market, error) {
	var all []APIMarket
	cursor := ""
	for page := 0; page < maxPages; page++ {
		markets, next, err := c.GetMarkets(ctx, "open", cursor)
		if err != nil {
			return nil, fmt.Errorf("kalshi: fetch page %d: %w", page+1, err)
		}
		all = append(all, markets...)
		if next == "" || len(markets) == 0 {
			break
		}
		cursor = next
	}

	out := make([]domain.Market, 0, len(all))
	skipped := 0
	for _, m := range all {
		dm, ok := toDomain(m)
		if !ok {
			skipped++
			continue
		}
		out = append(out, dm)
	}

	c.logger.Debug("fetched markets",
		slog.Int("total", len(all)),
		slog.Int("usable", len(out)),
		slog.Int("skipped", skipped))
	return out, nil
}

// toDomain converts a Kalshi market to the normalized form. Cent
// prices become probabilities. The YES price prefers the bid/ask
// midpoint, then the bid alone, then the last trade; a market with
// none of those is unusable.
func toDomain(m APIMarket) (domain.Market, bool) {
	var yes float64
	switch {
	case m.YesBid > 0 && m.YesAsk > 0:
		yes = (m.YesBid + m.YesAsk) / 2 / 100
	case m.YesBid > 0:
		yes = m.YesBid / 100
	case m.LastPrice > 0:
		yes = m.LastPrice / 100
	default:
		return domain.Market{}, false
	}

	closeTime, _ := time.Parse(time.RFC3339, m.CloseTime)

	return domain.Market{
		ID:        m.Ticker,
		Platform:  domain.PlatformKalshi,
		Title:     m.Title,
		Subtitle:  m.Subtitle,
		YesPrice:  yes,
		NoPrice:   1 - yes,
		Volume:    m.Volume,
		EndDate:   m.CloseTime,
		CloseTime: closeTime,
		URL:       marketURL(m.SeriesTicker, m.Ticker),
		Category:  m.Category,
	}, true
}

func marketURL(series, ticker string) string {
	if series != "" {
		return fmt.Sprintf("https://kalshi.com/markets/%s/%s",
			strings.ToLower(series), strings.ToLower(ticker))
	}
	return "https://kalshi.com/markets/" + strings.ToLower(ticker)
}

// doGet sends a GET request and reads the response body.
func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "arbmonitor/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w: %w", domain.ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

// checkStatus maps non-2xx HTTP status codes to errors.
func checkStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var apiErr errorResponse
	_ = json.Unmarshal(body, &apiErr)

	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("not found: %s (%s): %w", apiErr.Message, apiErr.Code, domain.ErrNotFound)
	case http.StatusTooManyRequests:
		return fmt.Errorf("rate limited: %s (%s)", apiErr.Message, apiErr.Code)
	default:
		return fmt.Errorf("HTTP %d: %s (%s)", statusCode, apiErr.Message, apiErr.Code)
	}
}
