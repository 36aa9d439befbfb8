// Package app wires configuration into running subsystems and drives the
// configured mode: serve (full router), paper (in-memory simulation), or
// archive (one-shot slip archival).
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/polybets/betrouter/internal/config"
)

// App is the top-level application.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates an App from validated configuration.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires dependencies and blocks in the configured mode until ctx is
// cancelled or the mode returns.
func (a *App) Run(ctx context.Context) error {
	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	mode := strings.ToLower(a.cfg.Mode)
	a.logger.Info("application starting",
		slog.String("mode", mode),
		slog.Int("venues", len(deps.Venues.IDs())))

	switch mode {
	case config.ModeServe:
		return a.runServe(ctx, deps)
	case config.ModePaper:
		return a.runPaper(ctx, deps)
	case config.ModeArchive:
		return a.runArchive(ctx, deps)
	default:
		return fmt.Errorf("app: unknown mode %q", a.cfg.Mode)
	}
}

// Close releases resources in reverse acquisition order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
