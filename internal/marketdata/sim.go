package marketdata

import (
	"context"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math"
	"time"

	"trading-alerts/internal/model"
)

// Simulator is an offline MarketData and AssetCatalog. Prices are a pure
// function of (symbol, time), so repeated or overlapping requests agree
// and a sweep sees the same history the previous one saw.
//
// Bars are generated natively at 1min, 1hour and 1day. Other timeframes are
// resampled from the closest finer native one.
type Simulator struct {
	Now    func() time.Time
	Assets []model.Asset
}

// NewSimulator creates a simulator over the default asset list.
func NewSimulator() *Simulator {
	return &Simulator{
		Now: func() time.Time { return time.Now().UTC() },
		Assets: []model.Asset{
			{Symbol: "AAPL", Name: "Apple Inc.", Class: "us_equity", Exchange: "NASDAQ", Tradable: true},
			{Symbol: "MSFT", Name: "Microsoft Corporation", Class: "us_equity", Exchange: "NASDAQ", Tradable: true},
			{Symbol: "AMZN", Name: "Amazon.com Inc.", Class: "us_equity", Exchange: "NASDAQ", Tradable: true},
			{Symbol: "GOOGL", Name: "Alphabet Inc.", Class: "us_equity", Exchange: "NASDAQ", Tradable: true},
			{Symbol: "TSLA", Name: "Tesla Inc.", Class: "us_equity", Exchange: "NASDAQ", Tradable: true},
			{Symbol: "SPY", Name: "SPDR S&P 500 ETF Trust", Class: "us_equity", Exchange: "ARCA", Tradable: true},
			{Symbol: "BTC/USD", Name: "Bitcoin", Class: "crypto", Exchange: "CRYPTO", Tradable: true},
			{Symbol: "ETH/USD", Name: "Ethereum", Class: "crypto", Exchange: "CRYPTO", Tradable: true},
		},
	}
}

// native returns the generated timeframe tf is built from.
func native(tf Timeframe) Timeframe {
	var name string
	switch {
	case tf.Duration < time.Hour:
		name = "1min"
	case tf.Duration < 24*time.Hour:
		name = "1hour"
	default:
		name = "1day"
	}
	base, _ := ParseTimeframe(name)
	return base
}

// GetBars returns completed and forming bars in [start, end].
func (s *Simulator) GetBars(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]model.Bar, error) {
	tf, err := ParseTimeframe(timeframe)
	if err != nil {
		return nil, err
	}
	if now := s.Now(); end.After(now) {
		end = now
	}
	if !start.Before(end) {
		return nil, fmt.Errorf("bars %s %s: %w", symbol, tf.Name, ErrNoData)
	}

	base := native(tf)
	var bars []model.Bar
	for t := base.Bucket(start); !t.After(end); t = t.Add(base.Duration) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		bars = append(bars, s.bar(symbol, t, base.Duration))
	}
	if base.Name != tf.Name {
		bars = Resample(bars, tf)
	}
	return bars, nil
}

// LatestPrice returns the simulated price at Now.
func (s *Simulator) LatestPrice(_ context.Context, symbol string) (float64, error) {
	return s.price(symbol, s.Now()), nil
}

// ListAssets returns the configured asset list.
func (s *Simulator) ListAssets(context.Context) ([]model.Asset, error) {
	out := make([]model.Asset, len(s.Assets))
	copy(out, s.Assets)
	return out, nil
}

func (s *Simulator) bar(symbol string, t time.Time, d time.Duration) model.Bar {
	open := s.price(symbol, t)
	close_ := s.price(symbol, t.Add(d))
	spread := math.Abs(noise(symbol, t.Unix(), 1)) * open * 0.002
	b := model.Bar{
		TS:     t,
		Open:   open,
		Close:  close_,
		High:   math.Max(open, close_) + spread,
		Low:    math.Min(open, close_) - spread,
		Volume: math.Round(1000 + 5000*math.Abs(noise(symbol, t.Unix(), 2))),
	}
	return b
}

// price is a smooth deterministic curve per symbol with small per-second
// noise: two slow cycles around a base level derived from the symbol.
func (s *Simulator) price(symbol string, t time.Time) float64 {
	seed := hash64(symbol)
	base := 20 + float64(seed%480)
	phase := float64(seed%1000) / 1000 * 2 * math.Pi
	x := float64(t.Unix())

	slow := 0.12 * math.Sin(x/(9*86400)+phase)
	fast := 0.03 * math.Sin(x/(7*3600)+2*phase)
	jitter := 0.002 * noise(symbol, t.Unix(), 0)
	return math.Round(base*(1+slow+fast+jitter)*100) / 100
}

func hash64(symbol string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(symbol))
	return h.Sum64()
}

// noise returns a deterministic value in [-1, 1].
func noise(symbol string, ts int64, stream byte) float64 {
	h := fnv.New64a()
	h.Write([]byte(symbol))
	var buf [9]byte
	binary.LittleEndian.PutUint64(buf[:8], uint64(ts))
	buf[8] = stream
	h.Write(buf[:])
	return float64(h.Sum64()%2001)/1000 - 1
}
