// Package marketdata serves OHLCV bars, quotes and the tradable asset list
// to the alert engine.
package marketdata

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnknownTimeframe is returned for timeframe strings no provider serves.
var ErrUnknownTimeframe = errors.New("unknown timeframe")

// Timeframe is a bar bucket size.
type Timeframe struct {
	Name     string        // canonical lowercase name, e.g. "1hour"
	Duration time.Duration // bucket width
	Broker   string        // REST spelling, e.g. "1Hour"
}

var timeframes = []Timeframe{
	{"1min", time.Minute, "1Min"},
	{"5min", 5 * time.Minute, "5Min"},
	{"15min", 15 * time.Minute, "15Min"},
	{"30min", 30 * time.Minute, "30Min"},
	{"1hour", time.Hour, "1Hour"},
	{"4hour", 4 * time.Hour, "4Hour"},
	{"1day", 24 * time.Hour, "1Day"},
	{"1week", 7 * 24 * time.Hour, "1Week"},
}

var shortNames = map[string]string{
	"1m": "1min", "5m": "5min", "15m": "15min", "30m": "30min",
	"1h": "1hour", "4h": "4hour", "1d": "1day", "1w": "1week",
}

// ParseTimeframe accepts the canonical names, the broker spellings
// (1Min, 1Day, ...) and the short forms (1m, 1h, 1d, 1w), case-insensitively.
func ParseTimeframe(s string) (Timeframe, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if full, ok := shortNames[key]; ok {
		key = full
	}
	for _, tf := range timeframes {
		if tf.Name == key {
			return tf, nil
		}
	}
	return Timeframe{}, fmt.Errorf("%w: %q", ErrUnknownTimeframe, s)
}

// Timeframes lists the supported timeframes, finest first.
func Timeframes() []Timeframe {
	out := make([]Timeframe, len(timeframes))
	copy(out, timeframes)
	return out
}

// Intraday reports whether the bucket is shorter than a day.
func (tf Timeframe) Intraday() bool { return tf.Duration < 24*time.Hour }

// Lookback is the calendar span to request so that roughly bars buckets
// come back, allowing for nights, weekends and holidays.
func (tf Timeframe) Lookback(bars int) time.Duration {
	if bars < 1 {
		bars = 1
	}
	span := time.Duration(bars) * tf.Duration
	if tf.Intraday() {
		return span*5 + 4*24*time.Hour
	}
	return span*3/2 + 7*24*time.Hour
}

// Bucket aligns t down to the start of its bucket. Weekly buckets start on
// Monday 00:00 UTC.
func (tf Timeframe) Bucket(t time.Time) time.Time {
	t = t.UTC()
	if tf.Duration == 7*24*time.Hour {
		day := t.Truncate(24 * time.Hour)
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	}
	ts := t.Unix()
	w := int64(tf.Duration / time.Second)
	return time.Unix(ts-ts%w, 0).UTC()
}
