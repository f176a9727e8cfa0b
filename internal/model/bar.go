package model

import (
	"encoding/json"
	"time"
)

// Bar is one OHLCV observation for a fixed time bucket.
// Prices are plain float64 quotes as returned by the market data provider.
type Bar struct {
	TS     time.Time `json:"ts"` // bucket start time (UTC)
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// JSON returns the JSON-encoded bar (ignoring errors for hot-path usage).
func (b *Bar) JSON() []byte {
	out, _ := json.Marshal(b)
	return out
}
