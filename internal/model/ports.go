package model

import (
	"context"
	"time"
)

// ── Capability Port Interfaces ──
// These interfaces decouple the engine from concrete providers
// (REST market data, simulator, Redis, Kafka).

// MarketData serves OHLCV bars and quotes.
type MarketData interface {
	// GetBars returns bars for symbol at timeframe in [start, end], ascending.
	GetBars(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]Bar, error)

	// LatestPrice returns the most recent price for symbol.
	LatestPrice(ctx context.Context, symbol string) (float64, error)
}

// AssetCatalog lists the instruments offered by the broker.
type AssetCatalog interface {
	// ListAssets returns every active asset.
	ListAssets(ctx context.Context) ([]Asset, error)
}

// EventPublisher forwards trigger events to downstream consumers.
type EventPublisher interface {
	// PublishTrigger publishes a single trigger event.
	PublishTrigger(ctx context.Context, ev TriggerEvent) error

	// Close releases underlying resources.
	Close() error
}
