// Package polymarket fetches market data from the Polymarket Gamma API.
package polymarket

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

// DefaultBaseURL is the public Gamma API root.
const DefaultBaseURL = "https://gamma-api.polymarket.com"

const fetchLimit = 500

// Client is the REST client for the Polymarket Gamma API, which
// provides market discovery, metadata, and prices.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a Gamma API client. An empty baseURL uses
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
		logger: logger.With(slog.String("component", "polymarket")),
	}
}

// GetMarkets returns active, non-closed markets from the Gamma API.
func (c *Client) GetMarkets(ctx context.Context, limit int) ([]APIMarket, error) {
	if limit <= 0 {
		limit = fetchLimit
	}
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("active", "true")
	params.Set("closed", "false")

	body, err := c.doGet(ctx, "/markets?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("polymarket: get markets: %w", err)
	}

	var markets []APIMarket
	if err := json.Unmarshal(body, &markets); err != nil {
		return nil, fmt.Errorf("polymarket: decode markets: %w", err)
	}
	return markets, nil
}

// GetMarket returns a single market by its Gamma ID.
func (c *Client) GetMarket(ctx context.Context, id string) (APIMarket, error) {
	body, err := c.doGet(ctx, "/markets/"+url.PathEscape(id))
	if err != nil {
		return APIMarket{}, fmt.Errorf("polymarket: get market %s: %w", id, err)
	}

	var market APIMarket
	if err := json.Unmarshal(body, &market); err != nil {
		return APIMarket{}, fmt.Errorf("polymarket: decode market: %w", err)
	}
	return market, nil
}

// GetEvents returns active events from the Gamma API.
func (c *Client) GetEvents(ctx context.Context, limit int) ([]APIEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("active", "true")

	body, err := c.doGet(ctx, "/events?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("polymarket: get events: %w", err)
	}

	var events []APIEvent
	if err := json.Unmarshal(body, &events); err != nil {
		return nil, fmt.Errorf("polymarket: decode events: %w", err)
	}
	return events, nil
}

// FetchMarkets returns active markets converted to the normalized
// domain form. Markets whose outcome prices cannot be parsed come
// back with zero prices and are filtered out later by the pricing
// stage.
func (c *Client) FetchMarkets(ctx context.Context) ([]domain.Market, error) {
	apiMarkets, err := c.GetMarkets(ctx, fetchLimit)
	if err != nil {
		return nil, err
	}

	out := make([]domain.Market, 0, len(apiMarkets))
	for i := range apiMarkets {
		out = append(out, toDomain(&apiMarkets[i]))
	}

	c.logger.Debug("fetched markets", slog.Int("count", len(out)))
	return out, nil
}

// toDomain converts a Gamma market to the normalized form.
func toDomain(m *APIMarket) domain.Market {
	var yes, no float64
	if len(m.OutcomePrices) >= 2 {
		yes, _ = strconv.ParseFloat(m.OutcomePrices[0], 64)
		no, _ = strconv.ParseFloat(m.OutcomePrices[1], 64)
	}

	title := m.Question
	if title == "" {
		title = m.Title
	}

	volume, _ := strconv.ParseFloat(m.Volume, 64)

	endDate := m.EndDate
	if endDate == "" {
		endDate = m.EndDateISO
	}
	closeTime, _ := time.Parse(time.RFC3339, endDate)

	slug := m.Slug
	if slug == "" {
		slug = m.ID
	}

	id := m.ID
	if id == "" {
		id = m.ConditionID
	}

	return domain.Market{
		ID:          id,
		Platform:    domain.PlatformPolymarket,
		Title:       title,
		Description: m.Description,
		YesPrice:    yes,
		NoPrice:     no,
		Volume:      volume,
		EndDate:     endDate,
		CloseTime:   closeTime,
		URL:         "https://polymarket.com/event/" + slug,
		Category:    m.Category,
	}
}

// doGet sends an unauthenticated GET request to the Gamma API.
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

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("HTTP 404: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
