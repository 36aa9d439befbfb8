// Package feed delivers external events to the orchestrator: venue
// settlement pushes over websocket and slip lifecycle events from the chain.
package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// MarketSettlementHandler is called once per settled market.
type MarketSettlementHandler func(ctx context.Context, venueID, marketID string, winningOption int)

// settlementMsg is the venue's settlement push payload.
type settlementMsg struct {
	MarketID      string `json:"marketId"`
	WinningOption int    `json:"winningOption"`
}

// SettlementWSFeed subscribes to one venue's settlement websocket and invokes
// the handler for each resolved market. It reconnects with a fixed delay on
// disconnect.
type SettlementWSFeed struct {
	venueID   string
	wsURL     string
	onSettled MarketSettlementHandler
	logger    *slog.Logger
	closeOnce sync.Once
	done      chan struct{}
}

// NewSettlementWSFeed creates a feed for one venue's settlement endpoint.
func NewSettlementWSFeed(venueID, wsURL string, onSettled MarketSettlementHandler, logger *slog.Logger) *SettlementWSFeed {
	return &SettlementWSFeed{
		venueID:   venueID,
		wsURL:     wsURL,
		onSettled: onSettled,
		logger: logger.With(
			slog.String("component", "settlement_ws_feed"),
			slog.String("venue_id", venueID)),
		done: make(chan struct{}),
	}
}

// Run connects and reads settlement messages until ctx is cancelled,
// reconnecting on disconnect.
func (f *SettlementWSFeed) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		default:
		}

		if err := f.runConnection(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f.logger.Warn("settlement ws disconnected, reconnecting",
				slog.String("error", err.Error()))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		case <-time.After(2 * time.Second):
		}
	}
}

func (f *SettlementWSFeed) runConnection(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, f.wsURL, nil)
	cancel()
	if err != nil {
		return err
	}
	defer conn.Close()

	f.logger.Info("settlement ws connected")

	// Close the connection when the context ends so ReadMessage unblocks.
	go func() {
		select {
		case <-ctx.Done():
		case <-f.done:
		}
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var msg settlementMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			f.logger.Warn("malformed settlement message", slog.String("error", err.Error()))
			continue
		}
		if msg.MarketID == "" {
			continue
		}

		f.logger.Info("market settled",
			slog.String("market_id", msg.MarketID),
			slog.Int("winning_option", msg.WinningOption))
		f.onSettled(ctx, f.venueID, msg.MarketID, msg.WinningOption)
	}
}

// Close stops the feed.
func (f *SettlementWSFeed) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}
