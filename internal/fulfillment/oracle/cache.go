package oracle

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"veil/internal/fulfillment/ports"
	platformredis "veil/internal/platform/redis"
)

// CachedOracle serves rates from Redis when a fresh entry exists, otherwise
// falls through to the inner oracle and writes back. Cache failures degrade
// to direct lookups; they never fail a quote.
type CachedOracle struct {
	inner  ports.PriceOracle
	client *platformredis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCached wraps an oracle with a Redis rate cache. A nil client disables
// caching entirely.
func NewCached(inner ports.PriceOracle, client *platformredis.Client, ttl time.Duration, logger *slog.Logger) *CachedOracle {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedOracle{
		inner:  inner,
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

func rateKey(ticker string) string {
	return "veil:rate:eur:" + strings.ToLower(ticker)
}

func (c *CachedOracle) PriceInEUR(ctx context.Context, ticker string) (decimal.Decimal, error) {
	if c.client == nil {
		return c.inner.PriceInEUR(ctx, ticker)
	}

	key := rateKey(ticker)
	if cached, err := c.client.Get(ctx, key).Result(); err == nil {
		if rate, parseErr := decimal.NewFromString(cached); parseErr == nil && rate.Sign() > 0 {
			return rate, nil
		}
		// unparseable entries are dropped, not served
		c.client.Del(ctx, key)
	}

	rate, err := c.inner.PriceInEUR(ctx, ticker)
	if err != nil {
		return decimal.Decimal{}, err
	}

	if err := c.client.Set(ctx, key, rate.String(), c.ttl).Err(); err != nil {
		c.logger.Warn("rate cache write failed", "ticker", ticker, "error", err)
	}
	return rate, nil
}
