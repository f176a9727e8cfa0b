package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"trading-alerts/internal/model"
)

// BarCache stores bar windows for a short time.
type BarCache interface {
	GetBars(ctx context.Context, key string) ([]model.Bar, bool, error)
	SetBars(ctx context.Context, key string, bars []model.Bar, ttl time.Duration) error
}

// Cached puts a BarCache in front of a MarketData source. Windows are keyed
// by their bucket-aligned bounds, so checks of the same symbol and
// timeframe inside one bucket share a fetch. Cache failures fall through to
// the source.
type Cached struct {
	src   model.MarketData
	cache BarCache
	ttl   time.Duration
	log   *logrus.Entry
}

// NewCached wraps src.
func NewCached(src model.MarketData, cache BarCache, ttl time.Duration, log *logrus.Entry) *Cached {
	return &Cached{src: src, cache: cache, ttl: ttl, log: log.WithField("component", "barcache")}
}

// CacheKey is the cache key of a bar window.
func CacheKey(symbol string, tf Timeframe, start, end time.Time) string {
	return fmt.Sprintf("bars:%s:%s:%d:%d", symbol, tf.Name, tf.Bucket(start).Unix(), tf.Bucket(end).Unix())
}

// GetBars serves from cache when possible.
func (c *Cached) GetBars(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]model.Bar, error) {
	tf, err := ParseTimeframe(timeframe)
	if err != nil {
		return nil, err
	}
	key := CacheKey(symbol, tf, start, end)

	bars, ok, err := c.cache.GetBars(ctx, key)
	if err != nil {
		c.log.WithError(err).WithField("key", key).Warn("cache read failed")
	} else if ok {
		return bars, nil
	}

	bars, err = c.src.GetBars(ctx, symbol, timeframe, start, end)
	if err != nil {
		return nil, err
	}
	if err := c.cache.SetBars(ctx, key, bars, c.ttl); err != nil {
		c.log.WithError(err).WithField("key", key).Warn("cache write failed")
	}
	return bars, nil
}

// LatestPrice is never cached.
func (c *Cached) LatestPrice(ctx context.Context, symbol string) (float64, error) {
	return c.src.LatestPrice(ctx, symbol)
}
