package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/polarlyst/arbmonitor/internal/arbitrage"
	"github.com/polarlyst/arbmonitor/internal/matcher"
	"github.com/polarlyst/arbmonitor/internal/platform/kalshi"
	"github.com/polarlyst/arbmonitor/internal/platform/polymarket"
	"github.com/polarlyst/arbmonitor/internal/server"
	"github.com/polarlyst/arbmonitor/internal/server/handler"
	"github.com/polarlyst/arbmonitor/internal/server/ws"
	"github.com/polarlyst/arbmonitor/internal/service"
)

// buildService constructs the opportunity service with both market clients
// and whatever optional backends were wired.
func (a *App) buildService(deps *Dependencies) *service.OpportunityService {
	kalshiClient := kalshi.NewClient(a.cfg.Kalshi.BaseURL, a.logger)
	polyClient := polymarket.NewClient(a.cfg.Polymarket.GammaHost, a.logger)

	m := matcher.New(a.cfg.Monitor.MatchThreshold, a.logger)
	for kalshiID, polyID := range a.cfg.Monitor.ManualMappings {
		m.SetManualMapping(kalshiID, polyID)
	}

	calc := arbitrage.NewCalculator(a.cfg.Monitor.MinSpreadPct, a.logger)

	return service.NewOpportunityService(
		kalshiClient, polyClient, m, calc,
		service.Config{
			CacheTTL:          a.cfg.Monitor.CacheTTL.Duration,
			FetchTimeout:      a.cfg.Monitor.FetchTimeout.Duration,
			AlertThresholdPct: a.cfg.Monitor.AlertThresholdPct,
			HistoryLimit:      a.cfg.Monitor.HistoryLimit,
			AlertsLimit:       a.cfg.Monitor.AlertsLimit,
		},
		service.Options{
			SnapshotCache: deps.SnapshotCache,
			Store:         deps.OpportunityStore,
			AlertStore:    deps.AlertStore,
			Archiver:      deps.Archiver,
			Bus:           deps.SignalBus,
			Notifier:      deps.Notifier,
		},
		a.logger,
	)
}

// refreshLoop re-fetches both venues at the configured interval until the
// context is cancelled. Refresh errors are logged and the loop continues;
// transient venue outages should not bring the process down.
func (a *App) refreshLoop(ctx context.Context, svc *service.OpportunityService) error {
	interval := a.cfg.Monitor.RefreshInterval.Duration
	if interval <= 0 {
		interval = 30 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			snap, err := svc.GetOpportunities(ctx, true)
			if err != nil {
				a.logger.WarnContext(ctx, "refresh failed",
					slog.String("error", err.Error()),
				)
				continue
			}
			a.logger.InfoContext(ctx, "refresh completed",
				slog.Int("opportunities", len(snap.Opportunities)),
				slog.Int("matches", len(snap.Matches)),
			)
		}
	}
}

// prunePeriod is how often stored rows are checked against the
// retention window.
const prunePeriod = time.Hour

// pruneLoop periodically deletes persisted opportunities and alerts
// older than the configured retention window. It exits immediately when
// retention is disabled or nothing is persisted.
func (a *App) pruneLoop(ctx context.Context, svc *service.OpportunityService, deps *Dependencies) error {
	retention := a.cfg.Monitor.Retention.Duration
	if retention <= 0 || (deps.OpportunityStore == nil && deps.AlertStore == nil) {
		return nil
	}

	ticker := time.NewTicker(prunePeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			svc.Prune(ctx, time.Now().UTC().Add(-retention))
		}
	}
}

// ServerMode runs the HTTP + WebSocket API alongside a background refresh
// loop so that clients always read a warm snapshot.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	svc := a.buildService(deps)

	g, ctx := errgroup.WithContext(ctx)

	// Warm the snapshot before accepting traffic; failure is non-fatal
	// since the first request will retry.
	if _, err := svc.GetOpportunities(ctx, true); err != nil {
		a.logger.WarnContext(ctx, "initial refresh failed",
			slog.String("error", err.Error()),
		)
	}

	g.Go(func() error {
		return a.refreshLoop(ctx, svc)
	})
	g.Go(func() error {
		return a.pruneLoop(ctx, svc, deps)
	})

	// WebSocket hub, only when the signal bus is available.
	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, a.logger, ws.Config{
			Mode:      a.cfg.Mode,
			StartedAt: time.Now().UTC(),
		})
		g.Go(func() error {
			return hub.Run(ctx)
		})
	}

	health := handler.NewHealthHandler(a.logger)
	if deps.RedisClient != nil {
		health = health.WithDependency("redis", deps.RedisClient)
	}
	if deps.PostgresClient != nil {
		health = health.WithDependency("postgres", deps.PostgresClient)
	}

	oppHandler := handler.NewOpportunityHandler(svc, a.logger)
	if deps.OpportunityStore != nil {
		oppHandler = oppHandler.WithStore(deps.OpportunityStore)
	}

	var archives *handler.ArchiveHandler
	if deps.BlobReader != nil {
		archives = handler.NewArchiveHandler(deps.BlobReader, "snapshots/", a.logger)
	}

	srv := server.NewServer(
		server.Config{
			Port:            a.cfg.Server.Port,
			CORSOrigins:     a.cfg.Server.CORSOrigins,
			APIKey:          a.cfg.Server.APIKey,
			RateLimiter:     deps.RateLimiter,
			RateLimit:       a.cfg.Server.RateLimit,
			RateLimitWindow: a.cfg.Server.RateLimitWindow.Duration,
		},
		server.Handlers{
			Health:        health,
			Opportunities: oppHandler,
			Status:        handler.NewStatusHandler(a.cfg.Mode, time.Now().UTC(), svc),
			Archives:      archives,
		},
		hub,
		a.logger,
	)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	return g.Wait()
}

// MonitorMode runs the refresh loop without the HTTP API. Alerts still go
// out through the configured notification channels and the signal bus.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	svc := a.buildService(deps)

	if _, err := svc.GetOpportunities(ctx, true); err != nil {
		a.logger.WarnContext(ctx, "initial refresh failed",
			slog.String("error", err.Error()),
		)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.refreshLoop(ctx, svc)
	})
	g.Go(func() error {
		return a.pruneLoop(ctx, svc, deps)
	})
	return g.Wait()
}

// ScanMode performs a single refresh, logs the result, and exits. Useful
// for cron jobs and smoke tests.
func (a *App) ScanMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting scan mode")

	svc := a.buildService(deps)

	snap, err := svc.GetOpportunities(ctx, true)
	if err != nil {
		return fmt.Errorf("scan mode: %w", err)
	}

	summary := svc.Summary()
	a.logger.InfoContext(ctx, "scan completed",
		slog.Int("kalshi_markets", snap.KalshiCount),
		slog.Int("polymarket_markets", snap.PolyCount),
		slog.Int("matches", len(snap.Matches)),
		slog.Int("opportunities", summary.Count),
		slog.Int("profitable", summary.ProfitableCount),
		slog.Float64("max_spread_pct", summary.MaxSpreadPct),
	)

	for _, opp := range svc.Top(10) {
		a.logger.InfoContext(ctx, "opportunity",
			slog.String("kalshi", opp.Match.Kalshi.Title),
			slog.String("polymarket", opp.Match.Polymarket.Title),
			slog.String("direction", string(opp.Direction)),
			slog.Float64("spread_pct", opp.SpreadPct),
			slog.Float64("similarity", opp.Match.Similarity),
		)
	}

	return nil
}
