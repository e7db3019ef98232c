package kalshi

// APIMarket is a market as returned by the Kalshi trade API. Prices
// are quoted in cents (1-99).
type APIMarket struct {
	Ticker       string  `json:"ticker"`
	EventTicker  string  `json:"event_ticker"`
	SeriesTicker string  `json:"series_ticker"`
	Title        string  `json:"title"`
	Subtitle     string  `json:"subtitle"`
	Status       string  `json:"status"` // "open", "closed", "settled"
	YesBid       float64 `json:"yes_bid"`
	YesAsk       float64 `json:"yes_ask"`
	NoBid        float64 `json:"no_bid"`
	NoAsk        float64 `json:"no_ask"`
	LastPrice    float64 `json:"last_price"`
	Volume       float64 `json:"volume"`
	OpenInterest int64   `json:"open_interest"`
	Category     string  `json:"category"`
	OpenTime     string  `json:"open_time"`
	CloseTime    string  `json:"close_time"`
	Result       string  `json:"result"` // "yes", "no", "" (unsettled)
}

// marketsResponse is the paginated envelope of GET /markets.
type marketsResponse struct {
	Markets []APIMarket `json:"markets"`
	Cursor  string      `json:"cursor"`
}

// errorResponse is a Kalshi API error payload.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
