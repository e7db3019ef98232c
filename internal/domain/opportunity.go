package domain

import "time"

// Direction names the pair of legs that captures a spread.
type Direction string

const (
	// BuyPolyYesKalshiNo buys YES on Polymarket and NO on Kalshi.
	BuyPolyYesKalshiNo Direction = "buy_poly_yes_kalshi_no"
	// BuyPolyNoKalshiYes buys NO on Polymarket and YES on Kalshi.
	BuyPolyNoKalshiYes Direction = "buy_poly_no_kalshi_yes"
)

// Opportunity is a priced cross-platform arbitrage candidate. Spread
// is the raw edge per contract pair in probability space; SpreadPct
// is the same value scaled to percent.
type Opportunity struct {
	ID         string
	Match      Match
	Direction  Direction
	Spread     float64
	SpreadPct  float64
	KalshiYes  float64
	KalshiNo   float64
	PolyYes    float64
	PolyNo     float64
	DetectedAt time.Time
}

// profitableThresholdPct is the spread above which an opportunity is
// considered actionable after fees and slippage.
const profitableThresholdPct = 2.0

// IsProfitable reports whether the spread clears the fixed
// actionability threshold.
func (o Opportunity) IsProfitable() bool {
	return o.SpreadPct > profitableThresholdPct
}

// HistoryPoint records the outcome of one detection pass.
type HistoryPoint struct {
	Timestamp time.Time
	Count     int
	TopSpread float64
}

// AlertType classifies monitor alerts.
type AlertType string

const (
	// AlertHighOpportunity marks a spread wide enough to page on.
	AlertHighOpportunity AlertType = "HIGH_OPPORTUNITY"
)

// Alert is an operator notification raised during a refresh. Title is
// the matched market's title, kept separate from the rendered Message.
type Alert struct {
	ID        string
	Type      AlertType
	Title     string
	Message   string
	SpreadPct float64
	CreatedAt time.Time
}

// Summary aggregates the current opportunity set for dashboards.
type Summary struct {
	Count           int
	ProfitableCount int
	AvgSpreadPct    float64
	MaxSpreadPct    float64
	Top             []Opportunity
	GeneratedAt     time.Time
}

// Snapshot is the full output of one refresh cycle.
type Snapshot struct {
	Opportunities []Opportunity
	Matches       []Match
	KalshiCount   int
	PolyCount     int
	FetchedAt     time.Time
	KalshiErr     string
	PolyErr       string
}
