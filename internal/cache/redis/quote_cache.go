package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/polybets/betrouter/internal/domain"
)

// quoteTTL is how long a cached quote stays fresh. Quotes only steer the
// allocator's variance baseline and the slippage floor, so staleness is
// tolerable.
const quoteTTL = 30 * time.Second

// QuoteCache implements domain.QuoteCache using Redis hashes. Each
// (venue, market) quote is a hash at "quote:{venueID}:{marketID}" with fields
// "price0", "price1", and "ts" (Unix nanosecond timestamp).
type QuoteCache struct {
	rdb *redis.Client
}

// NewQuoteCache creates a QuoteCache backed by the given Client.
func NewQuoteCache(c *Client) *QuoteCache {
	return &QuoteCache{rdb: c.Underlying()}
}

func quoteKey(venueID, marketID string) string {
	return "quote:" + venueID + ":" + marketID
}

// SetQuote stores the latest two-sided price for a venue market.
func (qc *QuoteCache) SetQuote(ctx context.Context, venueID, marketID string, quote domain.Quote) error {
	key := quoteKey(venueID, marketID)
	fields := map[string]interface{}{
		"price0": strconv.FormatFloat(quote.Price0, 'f', -1, 64),
		"price1": strconv.FormatFloat(quote.Price1, 'f', -1, 64),
		"ts":     strconv.FormatInt(time.Now().UnixNano(), 10),
	}

	pipe := qc.rdb.Pipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, quoteTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set quote %s/%s: %w", venueID, marketID, err)
	}
	return nil
}

// GetQuote retrieves the cached quote and its timestamp, or
// domain.ErrNotFound when absent or expired.
func (qc *QuoteCache) GetQuote(ctx context.Context, venueID, marketID string) (domain.Quote, time.Time, error) {
	vals, err := qc.rdb.HGetAll(ctx, quoteKey(venueID, marketID)).Result()
	if err != nil {
		return domain.Quote{}, time.Time{}, fmt.Errorf("redis: get quote %s/%s: %w", venueID, marketID, err)
	}
	if len(vals) == 0 {
		return domain.Quote{}, time.Time{}, domain.ErrNotFound
	}

	p0, err := parseField(vals, "price0")
	if err != nil {
		return domain.Quote{}, time.Time{}, fmt.Errorf("redis: quote %s/%s: %w", venueID, marketID, err)
	}
	p1, err := parseField(vals, "price1")
	if err != nil {
		return domain.Quote{}, time.Time{}, fmt.Errorf("redis: quote %s/%s: %w", venueID, marketID, err)
	}

	tsStr, ok := vals["ts"]
	if !ok {
		return domain.Quote{}, time.Time{}, domain.ErrNotFound
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return domain.Quote{}, time.Time{}, fmt.Errorf("redis: parse quote ts: %w", err)
	}

	return domain.Quote{Price0: p0, Price1: p1}, time.Unix(0, tsNano), nil
}

func parseField(vals map[string]string, field string) (float64, error) {
	s, ok := vals[field]
	if !ok {
		return 0, domain.ErrNotFound
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", field, err)
	}
	return v, nil
}

var _ domain.QuoteCache = (*QuoteCache)(nil)
