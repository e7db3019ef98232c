package domain

import "time"

// Platform identifies the venue a market was fetched from.
type Platform string

const (
	PlatformKalshi     Platform = "kalshi"
	PlatformPolymarket Platform = "polymarket"
)

// Market is a binary prediction market normalized to a common shape.
// Prices are probabilities in [0, 1]; YesPrice + NoPrice is close to 1
// but venues quote them independently so the sum is not enforced.
type Market struct {
	ID          string
	Platform    Platform
	Title       string
	Subtitle    string
	Description string
	YesPrice    float64
	NoPrice     float64
	Volume      float64
	// EndDate is the venue's close date exactly as the API returned it.
	// CloseTime is the parsed form and stays zero when the source uses a
	// format other than RFC 3339.
	EndDate   string
	CloseTime time.Time
	URL       string
	Category  string
}

// MatchType distinguishes how a cross-platform pair was established.
type MatchType string

const (
	MatchFuzzy  MatchType = "fuzzy"
	MatchManual MatchType = "manual"
)

// Match pairs a Kalshi market with the Polymarket market judged to
// describe the same underlying event.
type Match struct {
	Kalshi     Market
	Polymarket Market
	Similarity float64
	MatchType  MatchType
}
