// Package arbitrage prices cross-platform spreads on matched markets.
package arbitrage

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/polarlyst/arbmonitor/internal/domain"
)

// DefaultMinSpreadPct is the floor below which a spread is noise.
const DefaultMinSpreadPct = 1.0

// Calculator computes arbitrage opportunities from matched market
// pairs and keeps the latest result set plus a detection history.
// All methods are safe for concurrent use.
type Calculator struct {
	minSpreadPct float64
	logger       *slog.Logger

	mu            sync.RWMutex
	opportunities []domain.Opportunity
	history       []domain.HistoryPoint
}

// NewCalculator creates a Calculator. A minSpreadPct of 0 or below
// falls back to DefaultMinSpreadPct.
func NewCalculator(minSpreadPct float64, logger *slog.Logger) *Calculator {
	if minSpreadPct <= 0 {
		minSpreadPct = DefaultMinSpreadPct
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Calculator{
		minSpreadPct: minSpreadPct,
		logger:       logger.With(slog.String("component", "calculator")),
	}
}

// Calculate prices one matched pair. It returns nil when either YES
// price is missing or the better direction does not clear the
// minimum spread.
//
// Two directions are considered. Buying Polymarket YES and Kalshi NO
// pays out 1 whichever way the event resolves, so the edge is
// 1 - (polyYes + kalshiNo). The mirrored direction uses the other
// two legs. The wider edge wins; on a tie the YES-on-Polymarket
// direction is kept.
func (c *Calculator) Calculate(match domain.Match) *domain.Opportunity {
	kalshiYes := match.Kalshi.YesPrice
	polyYes := match.Polymarket.YesPrice
	if kalshiYes <= 0 || polyYes <= 0 {
		return nil
	}

	kalshiNo := match.Kalshi.NoPrice
	if kalshiNo == 0 {
		kalshiNo = 1 - kalshiYes
	}
	polyNo := match.Polymarket.NoPrice
	if polyNo == 0 {
		polyNo = 1 - polyYes
	}

	spread1 := 1 - (polyYes + kalshiNo)
	spread2 := 1 - (polyNo + kalshiYes)

	spread := spread1
	direction := domain.BuyPolyYesKalshiNo
	if spread2 > spread1 {
		spread = spread2
		direction = domain.BuyPolyNoKalshiYes
	}

	spreadPct := spread * 100
	if spreadPct < c.minSpreadPct {
		return nil
	}

	return &domain.Opportunity{
		ID:         uuid.Must(uuid.NewRandom()).String(),
		Match:      match,
		Direction:  direction,
		Spread:     spread,
		SpreadPct:  spreadPct,
		KalshiYes:  kalshiYes,
		KalshiNo:   kalshiNo,
		PolyYes:    polyYes,
		PolyNo:     polyNo,
		DetectedAt: time.Now().UTC(),
	}
}

// FindOpportunities prices every match, replaces the current result
// set with the survivors sorted by spread descending, and appends a
// history point for the pass.
func (c *Calculator) FindOpportunities(matches []domain.Match) []domain.Opportunity {
	opps := make([]domain.Opportunity, 0, len(matches))
	for _, m := range matches {
		if opp := c.Calculate(m); opp != nil {
			opps = append(opps, *opp)
		}
	}
	sort.SliceStable(opps, func(i, j int) bool {
		return opps[i].SpreadPct > opps[j].SpreadPct
	})

	point := domain.HistoryPoint{
		Timestamp: time.Now().UTC(),
		Count:     len(opps),
	}
	if len(opps) > 0 {
		point.TopSpread = opps[0].SpreadPct
	}

	c.mu.Lock()
	c.opportunities = opps
	c.history = append(c.history, point)
	c.mu.Unlock()

	c.logger.Debug("priced matches",
		slog.Int("matches", len(matches)),
		slog.Int("opportunities", len(opps)))

	return opps
}

// Opportunities returns a copy of the latest result set.
func (c *Calculator) Opportunities() []domain.Opportunity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.Opportunity, len(c.opportunities))
	copy(out, c.opportunities)
	return out
}

// History returns a copy of the detection history.
func (c *Calculator) History() []domain.HistoryPoint {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.HistoryPoint, len(c.history))
	copy(out, c.history)
	return out
}

// Summary aggregates the current result set, including up to the ten
// widest opportunities.
func (c *Calculator) Summary() domain.Summary {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := domain.Summary{
		Count:       len(c.opportunities),
		GeneratedAt: time.Now().UTC(),
	}
	var total float64
	for _, o := range c.opportunities {
		total += o.SpreadPct
		if o.IsProfitable() {
			s.ProfitableCount++
		}
		if o.SpreadPct > s.MaxSpreadPct {
			s.MaxSpreadPct = o.SpreadPct
		}
	}
	if s.Count > 0 {
		s.AvgSpreadPct = total / float64(s.Count)
	}

	top := len(c.opportunities)
	if top > 10 {
		top = 10
	}
	s.Top = make([]domain.Opportunity, top)
	copy(s.Top, c.opportunities[:top])
	return s
}
