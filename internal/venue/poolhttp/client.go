// Package poolhttp is the venue adapter for marketplaces fronted by the
// marketplace adapter REST API (buy-shares, sell-shares, get-prices,
// get-pool-state, claim-payout).
package poolhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/polybets/betrouter/internal/domain"
	"github.com/polybets/betrouter/internal/venue"
)

// Client speaks the marketplace adapter REST API for one venue.
type Client struct {
	venueID    string
	baseURL    string
	httpClient *http.Client
}

// New creates a REST adapter for one venue.
//
// baseURL is the venue's marketplace adapter root, e.g.
// "https://adapter.example.com/slaughterhouse-predictions".
func New(venueID, baseURL string) *Client {
	return &Client{
		venueID: venueID,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

var _ venue.Adapter = (*Client)(nil)

// Quote fetches the venue's current two-sided price for marketID.
func (c *Client) Quote(ctx context.Context, marketID string) (domain.Quote, error) {
	var resp getPricesResponse
	if err := c.post(ctx, "quote", marketID, "/get-prices", getPricesRequest{MarketID: marketID}, &resp); err != nil {
		return domain.Quote{}, err
	}
	if resp.Error != "" {
		return domain.Quote{}, c.venueErr("quote", marketID, mapBodyError(resp.Error))
	}
	return domain.Quote{Price0: resp.Prices[0], Price1: resp.Prices[1]}, nil
}

// Pool fetches the venue's LMSR pool state for marketID.
func (c *Client) Pool(ctx context.Context, marketID string) (domain.PoolState, error) {
	var resp getPoolStateResponse
	if err := c.post(ctx, "pool", marketID, "/get-pool-state", getPoolStateRequest{MarketID: marketID}, &resp); err != nil {
		return domain.PoolState{}, err
	}
	if resp.Error != "" {
		return domain.PoolState{}, c.venueErr("pool", marketID, mapBodyError(resp.Error))
	}
	return domain.PoolState{
		VenueID:          c.venueID,
		MarketID:         marketID,
		B:                resp.B,
		InitialLiquidity: resp.InitialLiquidity,
		OutstandingQ:     resp.OutstandingQ,
	}, nil
}

// Buy places a market buy for order's side, spending at most the collateral
// budget.
func (c *Client) Buy(ctx context.Context, order venue.BuyOrder) (venue.Fill, error) {
	req := buySharesRequest{
		MarketID:         order.MarketID,
		OptionIndex:      order.Side,
		CollateralAmount: order.CollateralBudget,
		MinShares:        order.MinShares,
	}
	var resp buySharesResponse
	if err := c.post(ctx, "buy", order.MarketID, "/buy-shares", req, &resp); err != nil {
		return venue.Fill{}, err
	}
	if resp.Error != "" {
		return venue.Fill{}, c.venueErr("buy", order.MarketID, mapBodyError(resp.Error))
	}
	if resp.SharesMinted < order.MinShares {
		return venue.Fill{}, c.venueErr("buy", order.MarketID, domain.ErrSlippageExceeded)
	}
	spent := resp.CollateralSpent
	if spent == 0 {
		// Older adapter builds omit the spend; assume the full budget.
		spent = order.CollateralBudget
	}
	return venue.Fill{Shares: resp.SharesMinted, CollateralSpent: spent}, nil
}

// Sell liquidates shares back into the venue's pool.
func (c *Client) Sell(ctx context.Context, order venue.SellOrder) (int64, error) {
	req := sellSharesRequest{
		MarketID:    order.MarketID,
		OptionIndex: order.Side,
		Amount:      order.Shares,
		MinProceeds: order.MinProceeds,
	}
	var resp sellSharesResponse
	if err := c.post(ctx, "sell", order.MarketID, "/sell-shares", req, &resp); err != nil {
		return 0, err
	}
	if resp.Error != "" {
		return 0, c.venueErr("sell", order.MarketID, mapBodyError(resp.Error))
	}
	if resp.CollateralReceived < order.MinProceeds {
		return 0, c.venueErr("sell", order.MarketID, domain.ErrSlippageExceeded)
	}
	return resp.CollateralReceived, nil
}

// Claim collects the payout of a resolved market.
func (c *Client) Claim(ctx context.Context, marketID string) (int64, error) {
	var resp claimPayoutResponse
	if err := c.post(ctx, "claim", marketID, "/claim-payout", claimPayoutRequest{MarketID: marketID}, &resp); err != nil {
		return 0, err
	}
	if resp.Error != "" {
		return 0, c.venueErr("claim", marketID, mapBodyError(resp.Error))
	}
	return resp.Payout, nil
}

func (c *Client) post(ctx context.Context, op, marketID, path string, body, out any) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("poolhttp: marshal %s request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("poolhttp: create %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Network-level failures are indistinguishable from a venue outage.
		return c.venueErr(op, marketID, fmt.Errorf("%w: %v", domain.ErrVenueUnavailable, err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return c.venueErr(op, marketID, fmt.Errorf("%w: read response: %v", domain.ErrVenueUnavailable, err))
	}

	if err := mapHTTPStatus(resp.StatusCode, respBody); err != nil {
		return c.venueErr(op, marketID, err)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("poolhttp: decode %s response: %w", op, err)
	}
	return nil
}

func (c *Client) venueErr(op, marketID string, err error) error {
	return &domain.VenueError{VenueID: c.venueID, MarketID: marketID, Op: op, Err: err}
}

// mapHTTPStatus folds non-2xx status codes into the venue error taxonomy.
func mapHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var apiErr struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(body, &apiErr)
	if apiErr.Error != "" {
		if mapped := mapBodyError(apiErr.Error); mapped != nil {
			return mapped
		}
	}

	switch {
	case statusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, string(body))
	case statusCode == http.StatusTooManyRequests,
		statusCode == http.StatusRequestTimeout,
		statusCode >= 500:
		return fmt.Errorf("%w: HTTP %d: %s", domain.ErrVenueUnavailable, statusCode, string(body))
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, string(body))
	}
}

// mapBodyError matches adapter error strings to taxonomy sentinels.
func mapBodyError(msg string) error {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "insufficient liquidity"):
		return fmt.Errorf("%w: %s", domain.ErrInsufficientLiquidity, msg)
	case strings.Contains(lower, "slippage"):
		return fmt.Errorf("%w: %s", domain.ErrSlippageExceeded, msg)
	case strings.Contains(lower, "insufficient shares"):
		return fmt.Errorf("%w: %s", domain.ErrInsufficientShares, msg)
	case strings.Contains(lower, "unavailable"), strings.Contains(lower, "timeout"):
		return fmt.Errorf("%w: %s", domain.ErrVenueUnavailable, msg)
	default:
		return fmt.Errorf("venue rejection: %s", msg)
	}
}
