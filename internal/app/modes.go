package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/polybets/betrouter/internal/domain"
	"github.com/polybets/betrouter/internal/feed"
	"github.com/polybets/betrouter/internal/server"
	"github.com/polybets/betrouter/internal/server/handler"
)

// settlementStream is the durable signal bus stream settlement events are
// appended to, alongside the ephemeral channel of the same name.
const settlementStream = "settlements"

// archiveSweepInterval is how often serve mode runs the slip archiver.
const archiveSweepInterval = 24 * time.Hour

// runServe runs the full router: HTTP API, per-venue settlement feeds, the
// optional on-chain slip event feed, and the periodic archiver. Any subsystem
// error tears the group down.
func (a *App) runServe(ctx context.Context, deps *Dependencies) error {
	g, gctx := errgroup.WithContext(ctx)

	if a.cfg.Server.Enabled {
		a.startServer(gctx, g, deps)
	}

	onSettled := a.settlementHandler(deps)
	for _, v := range deps.Roster {
		if !v.Active || v.SettlementWS == "" {
			continue
		}
		f := feed.NewSettlementWSFeed(v.ID, v.SettlementWS, onSettled, a.logger)
		g.Go(func() error {
			return f.Run(gctx)
		})
	}

	if a.cfg.Chain.Enabled {
		cf, err := feed.NewChainFeed(feed.ChainFeedConfig{
			RPCURL:          a.cfg.Chain.RPCURL,
			ContractAddress: a.cfg.Chain.ContractAddress,
			PollInterval:    a.cfg.Chain.PollInterval.Duration,
			OnSlipCreated:   a.onChainSlipCreated(deps),
			OnSlipSelling:   a.onChainSlipSelling(deps),
			Logger:          a.logger,
		})
		if err != nil {
			return fmt.Errorf("app: chain feed: %w", err)
		}
		g.Go(func() error {
			return cf.Run(gctx)
		})
	}

	if a.cfg.Archive.Enabled && deps.Archiver != nil {
		g.Go(func() error {
			return a.runArchiveSweeper(gctx, deps)
		})
	}

	return g.Wait()
}

// runPaper serves the HTTP API against in-memory stores and simulated
// venues. Nothing persists across restarts.
func (a *App) runPaper(ctx context.Context, deps *Dependencies) error {
	a.logger.Info("paper trading mode",
		slog.String("parent_market_id", paperParentMarketID))

	g, gctx := errgroup.WithContext(ctx)
	if a.cfg.Server.Enabled {
		a.startServer(gctx, g, deps)
	} else {
		g.Go(func() error {
			<-gctx.Done()
			return gctx.Err()
		})
	}
	return g.Wait()
}

// runArchive performs one archival sweep and exits.
func (a *App) runArchive(ctx context.Context, deps *Dependencies) error {
	cutoff := time.Now().UTC().Add(-time.Duration(a.cfg.Archive.RetentionDays) * 24 * time.Hour)
	n, err := deps.Archiver.ArchiveFinishedSlips(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("app: archive: %w", err)
	}
	a.logger.Info("archive sweep complete",
		slog.Time("cutoff", cutoff),
		slog.Int64("slips", n))
	return nil
}

// startServer registers the HTTP API on the group: one goroutine serves, a
// second waits for group cancellation and drains in-flight requests.
func (a *App) startServer(gctx context.Context, g *errgroup.Group, deps *Dependencies) {
	srv := server.NewServer(
		server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
			APIKey:      a.cfg.Server.APIKey,
		},
		server.Handlers{
			Health: handler.NewHealthHandler(a.logger),
			Slips:  handler.NewSlipHandler(deps.Orchestrator, deps.Slips, deps.Bets, a.logger),
			Quotes: handler.NewQuoteHandler(deps.Venues, deps.Quotes, a.logger),
		},
		a.logger,
	)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// settlementEvent is the signal bus payload for one market resolution.
type settlementEvent struct {
	VenueID       string    `json:"venue_id"`
	MarketID      string    `json:"market_id"`
	WinningOption int       `json:"winning_option"`
	At            time.Time `json:"at"`
}

// settlementHandler returns the feed callback for market settlements: the
// event is published to the signal bus for external consumers and appended
// to the durable stream, then applied to the orchestrator.
func (a *App) settlementHandler(deps *Dependencies) feed.MarketSettlementHandler {
	return func(ctx context.Context, venueID, marketID string, winningOption int) {
		if deps.Bus != nil {
			payload, err := json.Marshal(settlementEvent{
				VenueID:       venueID,
				MarketID:      marketID,
				WinningOption: winningOption,
				At:            time.Now().UTC(),
			})
			if err == nil {
				if err := deps.Bus.Publish(ctx, settlementStream, payload); err != nil {
					a.logger.Warn("settlement publish failed",
						slog.String("error", err.Error()))
				}
				if err := deps.Bus.StreamAppend(ctx, settlementStream, payload); err != nil {
					a.logger.Warn("settlement stream append failed",
						slog.String("error", err.Error()))
				}
			}
		}

		if err := deps.Orchestrator.OnMarketSettled(ctx, venueID, marketID, winningOption); err != nil {
			a.logger.Error("settlement handling failed",
				slog.String("venue_id", venueID),
				slog.String("market_id", marketID),
				slog.String("error", err.Error()))
		}
	}
}

// onChainSlipCreated executes a pending slip when its on-chain creation event
// lands. Slips submitted through the HTTP API are already executing, so an
// unknown or non-pending slip is not an error.
func (a *App) onChainSlipCreated(deps *Dependencies) feed.SlipEventHandler {
	return func(ctx context.Context, slipID string) {
		slip, err := deps.Slips.Get(ctx, slipID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				a.logger.Debug("chain slip unknown", slog.String("slip_id", slipID))
				return
			}
			a.logger.Error("chain slip lookup failed",
				slog.String("slip_id", slipID),
				slog.String("error", err.Error()))
			return
		}
		if slip.Status != domain.SlipStatusPending {
			return
		}
		if err := deps.Orchestrator.Submit(ctx, slip); err != nil {
			a.logger.Error("chain slip submit failed",
				slog.String("slip_id", slipID),
				slog.String("error", err.Error()))
		}
	}
}

// onChainSlipSelling liquidates a slip when its on-chain sell request lands.
func (a *App) onChainSlipSelling(deps *Dependencies) feed.SlipEventHandler {
	return func(ctx context.Context, slipID string) {
		err := deps.Orchestrator.Liquidate(ctx, slipID)
		if err == nil || errors.Is(err, domain.ErrInvalidTransition) {
			return
		}
		a.logger.Error("chain slip liquidation failed",
			slog.String("slip_id", slipID),
			slog.String("error", err.Error()))
	}
}

// runArchiveSweeper periodically archives finished slips older than the
// retention window.
func (a *App) runArchiveSweeper(ctx context.Context, deps *Dependencies) error {
	ticker := time.NewTicker(archiveSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-time.Duration(a.cfg.Archive.RetentionDays) * 24 * time.Hour)
			n, err := deps.Archiver.ArchiveFinishedSlips(ctx, cutoff)
			if err != nil {
				a.logger.Error("archive sweep failed", slog.String("error", err.Error()))
				continue
			}
			if n > 0 {
				a.logger.Info("archive sweep complete", slog.Int64("slips", n))
			}
		}
	}
}
