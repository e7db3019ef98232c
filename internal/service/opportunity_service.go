// Package service coordinates fetching, matching, and pricing into a
// cached view of cross-platform arbitrage opportunities.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/polarlyst/arbmonitor/internal/arbitrage"
	"github.com/polarlyst/arbmonitor/internal/domain"
	"github.com/polarlyst/arbmonitor/internal/matcher"
)

// MarketSource fetches the current market list from one venue.
type MarketSource interface {
	FetchMarkets(ctx context.Context) ([]domain.Market, error)
}

// AlertNotifier pushes high-opportunity alerts to operators.
type AlertNotifier interface {
	HighOpportunity(ctx context.Context, alert domain.Alert) error
}

// Redis channels for refresh and alert fan-out.
const (
	ChannelRefresh = "arbmon:refresh"
	ChannelAlerts  = "arbmon:alerts"
)

// Config holds the tunable parameters of the opportunity service.
type Config struct {
	CacheTTL          time.Duration
	FetchTimeout      time.Duration
	AlertThresholdPct float64
	HistoryLimit      int
	AlertsLimit       int
}

// Options carries the optional backends. Any nil field disables that
// integration; the service degrades to in-memory operation.
type Options struct {
	SnapshotCache domain.SnapshotCache
	Store         domain.OpportunityStore
	AlertStore    domain.AlertStore
	Archiver      domain.SnapshotArchiver
	Bus           domain.SignalBus
	Notifier      AlertNotifier
}

// OpportunityService serves the latest arbitrage snapshot, refreshing
// it from both venues when it goes stale. Concurrent callers that
// miss the cache share a single in-flight refresh. All methods are
// safe for concurrent use.
type OpportunityService struct {
	kalshi  MarketSource
	poly    MarketSource
	matcher *matcher.Matcher
	calc    *arbitrage.Calculator
	cfg     Config
	opts    Options
	logger  *slog.Logger

	group singleflight.Group

	mu        sync.RWMutex
	snap      domain.Snapshot
	lastFetch time.Time
	history   []domain.HistoryPoint
	alerts    []domain.Alert
}

// NewOpportunityService creates the service. kalshi, poly, m, and
// calc are required; everything in opts is optional.
func NewOpportunityService(
	kalshi, poly MarketSource,
	m *matcher.Matcher,
	calc *arbitrage.Calculator,
	cfg Config,
	opts Options,
	logger *slog.Logger,
) *OpportunityService {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 30 * time.Second
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 15 * time.Second
	}
	if cfg.AlertThresholdPct <= 0 {
		cfg.AlertThresholdPct = 3.0
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 100
	}
	if cfg.AlertsLimit <= 0 {
		cfg.AlertsLimit = 50
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OpportunityService{
		kalshi:  kalshi,
		poly:    poly,
		matcher: m,
		calc:    calc,
		cfg:     cfg,
		opts:    opts,
		logger:  logger.With(slog.String("component", "opportunity_service")),
	}
}

// GetOpportunities returns the current snapshot, refreshing first when
// the cached one is older than the TTL or forceRefresh is set. A
// refresh already in flight is joined rather than duplicated.
func (s *OpportunityService) GetOpportunities(ctx context.Context, forceRefresh bool) (domain.Snapshot, error) {
	s.mu.RLock()
	fresh := !s.lastFetch.IsZero() && time.Since(s.lastFetch) < s.cfg.CacheTTL
	never := s.lastFetch.IsZero()
	snap := s.snap
	s.mu.RUnlock()

	if fresh && !forceRefresh {
		return snap, nil
	}

	// A process that has not refreshed yet can adopt the snapshot
	// another instance published to the shared cache.
	if never && !forceRefresh {
		if shared, ok := s.adoptSharedSnapshot(ctx); ok {
			return shared, nil
		}
	}

	// An explicit refresh drops the shared snapshot too, so no
	// instance keeps serving the state being replaced.
	if forceRefresh {
		s.invalidateShared(ctx)
	}

	// The refresh outlives the triggering request so that other
	// waiters still get a result if this caller disconnects.
	result, err, _ := s.group.Do("refresh", func() (any, error) {
		return s.refresh(context.WithoutCancel(ctx))
	})
	if err != nil {
		return domain.Snapshot{}, err
	}
	return result.(domain.Snapshot), nil
}

// adoptSharedSnapshot reads the cross-process snapshot cache and, when it
// holds a result still inside the TTL, installs it as this process's
// current snapshot.
func (s *OpportunityService) adoptSharedSnapshot(ctx context.Context) (domain.Snapshot, bool) {
	if s.opts.SnapshotCache == nil {
		return domain.Snapshot{}, false
	}

	shared, err := s.opts.SnapshotCache.GetSnapshot(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrStale) {
			s.logger.WarnContext(ctx, "shared snapshot read failed", slog.String("error", err.Error()))
		}
		return domain.Snapshot{}, false
	}
	if shared.FetchedAt.IsZero() || time.Since(shared.FetchedAt) >= s.cfg.CacheTTL {
		return domain.Snapshot{}, false
	}

	s.mu.Lock()
	if s.lastFetch.IsZero() {
		s.snap = shared
		s.lastFetch = shared.FetchedAt
	}
	s.mu.Unlock()

	s.logger.DebugContext(ctx, "adopted shared snapshot",
		slog.Time("fetched_at", shared.FetchedAt),
		slog.Int("opportunities", len(shared.Opportunities)))
	return shared, true
}

func (s *OpportunityService) invalidateShared(ctx context.Context) {
	if s.opts.SnapshotCache == nil {
		return
	}
	if err := s.opts.SnapshotCache.Invalidate(ctx); err != nil {
		s.logger.WarnContext(ctx, "invalidate shared snapshot failed", slog.String("error", err.Error()))
	}
}

// refresh fetches both venues, matches, prices, and swaps in the new
// snapshot. A failed venue degrades to an empty list for that venue;
// even both failing produces a (empty) snapshot carrying the error
// strings, so callers see a no-data state rather than a hard error and
// the TTL keeps holding traffic off the upstreams during an outage.
func (s *OpportunityService) refresh(ctx context.Context) (domain.Snapshot, error) {
	started := time.Now().UTC()

	var (
		kalshiMarkets, polyMarkets []domain.Market
		kalshiErr, polyErr         error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		fctx, cancel := context.WithTimeout(gctx, s.cfg.FetchTimeout)
		defer cancel()
		kalshiMarkets, kalshiErr = s.kalshi.FetchMarkets(fctx)
		return nil
	})
	g.Go(func() error {
		fctx, cancel := context.WithTimeout(gctx, s.cfg.FetchTimeout)
		defer cancel()
		polyMarkets, polyErr = s.poly.FetchMarkets(fctx)
		return nil
	})
	_ = g.Wait()

	if kalshiErr != nil {
		s.logger.WarnContext(ctx, "kalshi fetch failed", slog.String("error", kalshiErr.Error()))
		kalshiMarkets = nil
	}
	if polyErr != nil {
		s.logger.WarnContext(ctx, "polymarket fetch failed", slog.String("error", polyErr.Error()))
		polyMarkets = nil
	}
	matches := s.matcher.FindMatches(kalshiMarkets, polyMarkets)
	opps := s.calc.FindOpportunities(matches)

	snap := domain.Snapshot{
		Opportunities: opps,
		Matches:       matches,
		KalshiCount:   len(kalshiMarkets),
		PolyCount:     len(polyMarkets),
		FetchedAt:     started,
	}
	if kalshiErr != nil {
		snap.KalshiErr = kalshiErr.Error()
	}
	if polyErr != nil {
		snap.PolyErr = polyErr.Error()
	}

	newAlerts := s.buildAlerts(opps, started)

	s.mu.Lock()
	s.snap = snap
	s.lastFetch = started
	s.history = appendBounded(s.history, historyPoint(snap), s.cfg.HistoryLimit)
	for _, a := range newAlerts {
		s.alerts = appendBounded(s.alerts, a, s.cfg.AlertsLimit)
	}
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "snapshot refreshed",
		slog.Int("kalshi_markets", len(kalshiMarkets)),
		slog.Int("poly_markets", len(polyMarkets)),
		slog.Int("matches", len(matches)),
		slog.Int("opportunities", len(opps)),
		slog.Int("alerts", len(newAlerts)),
		slog.Duration("elapsed", time.Since(started)))

	s.publish(ctx, snap, newAlerts)
	s.persist(ctx, snap, newAlerts)

	return snap, nil
}

// buildAlerts raises one alert per opportunity at or above the alert
// threshold.
func (s *OpportunityService) buildAlerts(opps []domain.Opportunity, now time.Time) []domain.Alert {
	var alerts []domain.Alert
	for _, o := range opps {
		if o.SpreadPct < s.cfg.AlertThresholdPct {
			continue
		}
		alerts = append(alerts, domain.Alert{
			ID:    uuid.Must(uuid.NewRandom()).String(),
			Type:  domain.AlertHighOpportunity,
			Title: o.Match.Kalshi.Title,
			Message: fmt.Sprintf("%.2f%% spread on %q (%s)",
				o.SpreadPct, o.Match.Kalshi.Title, o.Direction),
			SpreadPct: o.SpreadPct,
			CreatedAt: now,
		})
	}
	return alerts
}

// publish fans the refresh out to the optional Redis bus and the
// notifier. Failures are logged, never propagated.
func (s *OpportunityService) publish(ctx context.Context, snap domain.Snapshot, alerts []domain.Alert) {
	if s.opts.Bus != nil {
		if payload, err := json.Marshal(snap); err == nil {
			if err := s.opts.Bus.Publish(ctx, ChannelRefresh, payload); err != nil {
				s.logger.WarnContext(ctx, "publish refresh failed", slog.String("error", err.Error()))
			}
		}
		for _, a := range alerts {
			if payload, err := json.Marshal(a); err == nil {
				if err := s.opts.Bus.Publish(ctx, ChannelAlerts, payload); err != nil {
					s.logger.WarnContext(ctx, "publish alert failed", slog.String("error", err.Error()))
				}
			}
		}
	}

	if s.opts.Notifier != nil {
		for _, a := range alerts {
			if err := s.opts.Notifier.HighOpportunity(ctx, a); err != nil {
				s.logger.WarnContext(ctx, "notify failed", slog.String("error", err.Error()))
			}
		}
	}
}

// persist writes the snapshot to the optional cache, stores, and
// archive. Failures are logged, never propagated.
func (s *OpportunityService) persist(ctx context.Context, snap domain.Snapshot, alerts []domain.Alert) {
	if s.opts.SnapshotCache != nil {
		if err := s.opts.SnapshotCache.SetSnapshot(ctx, snap, s.cfg.CacheTTL); err != nil {
			s.logger.WarnContext(ctx, "cache snapshot failed", slog.String("error", err.Error()))
		}
	}
	if s.opts.Store != nil && len(snap.Opportunities) > 0 {
		if err := s.opts.Store.InsertBatch(ctx, snap.Opportunities); err != nil {
			s.logger.WarnContext(ctx, "store opportunities failed", slog.String("error", err.Error()))
		}
	}
	if s.opts.AlertStore != nil {
		for _, a := range alerts {
			if err := s.opts.AlertStore.Insert(ctx, a); err != nil {
				s.logger.WarnContext(ctx, "store alert failed", slog.String("error", err.Error()))
			}
		}
	}
	if s.opts.Archiver != nil {
		if path, err := s.opts.Archiver.ArchiveSnapshot(ctx, snap); err != nil {
			s.logger.WarnContext(ctx, "archive snapshot failed", slog.String("error", err.Error()))
		} else {
			s.logger.DebugContext(ctx, "snapshot archived", slog.String("path", path))
		}
	}
}

// Prune deletes persisted opportunities and alerts recorded before
// cutoff. Stores that are not configured are skipped; store errors are
// logged, never propagated.
func (s *OpportunityService) Prune(ctx context.Context, cutoff time.Time) {
	if s.opts.Store != nil {
		if n, err := s.opts.Store.DeleteBefore(ctx, cutoff); err != nil {
			s.logger.WarnContext(ctx, "prune opportunities failed", slog.String("error", err.Error()))
		} else if n > 0 {
			s.logger.InfoContext(ctx, "pruned opportunities",
				slog.Int64("deleted", n), slog.Time("cutoff", cutoff))
		}
	}
	if s.opts.AlertStore != nil {
		if n, err := s.opts.AlertStore.DeleteBefore(ctx, cutoff); err != nil {
			s.logger.WarnContext(ctx, "prune alerts failed", slog.String("error", err.Error()))
		} else if n > 0 {
			s.logger.InfoContext(ctx, "pruned alerts",
				slog.Int64("deleted", n), slog.Time("cutoff", cutoff))
		}
	}
}

// Top returns up to n opportunities from the current snapshot, widest
// spread first.
func (s *OpportunityService) Top(n int) []domain.Opportunity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n <= 0 || n > len(s.snap.Opportunities) {
		n = len(s.snap.Opportunities)
	}
	out := make([]domain.Opportunity, n)
	copy(out, s.snap.Opportunities[:n])
	return out
}

// Summary aggregates the current snapshot.
func (s *OpportunityService) Summary() domain.Summary {
	return s.calc.Summary()
}

// History returns a copy of the bounded refresh history, oldest first.
func (s *OpportunityService) History() []domain.HistoryPoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.HistoryPoint, len(s.history))
	copy(out, s.history)
	return out
}

// Alerts returns a copy of the bounded alert list, oldest first.
func (s *OpportunityService) Alerts() []domain.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Alert, len(s.alerts))
	copy(out, s.alerts)
	return out
}

// LastFetch returns when the current snapshot was produced. The zero
// time means no refresh has completed yet.
func (s *OpportunityService) LastFetch() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastFetch
}

// Stale reports whether the snapshot is missing or older than the TTL.
func (s *OpportunityService) Stale() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastFetch.IsZero() || time.Since(s.lastFetch) >= s.cfg.CacheTTL
}

func historyPoint(snap domain.Snapshot) domain.HistoryPoint {
	p := domain.HistoryPoint{
		Timestamp: snap.FetchedAt,
		Count:     len(snap.Opportunities),
	}
	if len(snap.Opportunities) > 0 {
		p.TopSpread = snap.Opportunities[0].SpreadPct
	}
	return p
}

// appendBounded appends and trims from the front so the slice never
// exceeds limit entries.
func appendBounded[T any](list []T, item T, limit int) []T {
	list = append(list, item)
	if len(list) > limit {
		list = list[len(list)-limit:]
	}
	return list
}
