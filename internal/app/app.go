// Package app wires the monitor's dependencies (market clients, caches,
// stores, blob storage, notifications) and runs one of the operating modes:
// server, monitor, or scan.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/polarlyst/arbmonitor/internal/config"
)

// App owns the configuration, the root logger, and the cleanup stack built
// up during wiring.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New returns an App for cfg.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires dependencies, dispatches to the configured mode, and blocks
// until the context is cancelled or the mode returns.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.LogLevel),
	)
	a.logger.DebugContext(ctx, "active configuration",
		slog.Any("config", config.RedactedConfig(a.cfg)),
	)

	deps, cleanup, err := Wire(ctx, a.cfg)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	switch strings.ToLower(a.cfg.Mode) {
	case "server":
		return a.ServerMode(ctx, deps)
	case "monitor":
		return a.MonitorMode(ctx, deps)
	case "scan":
		return a.ScanMode(ctx, deps)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

// Close runs the cleanup stack in reverse order. Calling it again is a
// no-op.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
