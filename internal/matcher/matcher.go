// Package matcher pairs markets across venues by title similarity.
package matcher

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/polarlyst/arbmonitor/internal/domain"
)

// DefaultThreshold is the minimum similarity for a fuzzy pairing.
const DefaultThreshold = 70.0

// Matcher pairs Kalshi markets with Polymarket markets. Manual
// mappings take priority over fuzzy scoring.
type Matcher struct {
	threshold float64
	manual    map[string]string
	logger    *slog.Logger
}

// New creates a Matcher. A threshold of 0 or below falls back to
// DefaultThreshold.
func New(threshold float64, logger *slog.Logger) *Matcher {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{
		threshold: threshold,
		manual:    make(map[string]string),
		logger:    logger.With(slog.String("component", "matcher")),
	}
}

// SetManualMapping pins a Kalshi market to a Polymarket market by ID.
// The mapping only applies when the target market is present in the
// candidate set.
func (m *Matcher) SetManualMapping(kalshiID, polyID string) {
	m.manual[kalshiID] = polyID
}

// FindMatches pairs every Kalshi market with its best Polymarket
// candidate at or above the threshold, sorted by similarity
// descending. Each Kalshi market appears at most once; Polymarket
// markets may be reused across pairs.
func (m *Matcher) FindMatches(kalshi, poly []domain.Market) []domain.Match {
	polyByID := make(map[string]domain.Market, len(poly))
	for _, p := range poly {
		polyByID[p.ID] = p
	}

	var matches []domain.Match
	for _, k := range kalshi {
		if polyID, ok := m.manual[k.ID]; ok {
			if p, found := polyByID[polyID]; found {
				matches = append(matches, domain.Match{
					Kalshi:     k,
					Polymarket: p,
					Similarity: 100,
					MatchType:  domain.MatchManual,
				})
				continue
			}
			m.logger.Warn("manual mapping target missing",
				slog.String("kalshi_id", k.ID),
				slog.String("poly_id", polyID))
		}

		if match, ok := m.FindBestMatch(k, poly); ok {
			matches = append(matches, match)
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	return matches
}

// FindBestMatch scans the candidates for the highest-scoring
// Polymarket market. Ties keep the earliest candidate. The second
// return value is false when no candidate reaches the threshold.
func (m *Matcher) FindBestMatch(k domain.Market, poly []domain.Market) (domain.Match, bool) {
	var (
		best      float64
		bestIndex = -1
	)
	for i, p := range poly {
		score := pairScore(k, p)
		if score > best {
			best = score
			bestIndex = i
		}
	}
	if bestIndex < 0 || best < m.threshold {
		return domain.Match{}, false
	}
	return domain.Match{
		Kalshi:     k,
		Polymarket: poly[bestIndex],
		Similarity: best,
		MatchType:  domain.MatchFuzzy,
	}, true
}

// pairScore takes the better of the bare-title comparison and the
// comparison with subtitle and description appended. Kalshi packs
// the condition into the subtitle while Polymarket packs it into the
// description, so the extended form catches pairs the bare titles
// miss.
func pairScore(k, p domain.Market) float64 {
	score := Similarity(k.Title, p.Title)
	extK := strings.TrimSpace(k.Title + " " + k.Subtitle)
	extP := strings.TrimSpace(p.Title + " " + p.Description)
	if ext := Similarity(extK, extP); ext > score {
		score = ext
	}
	return score
}
