package marketdata

import (
	"context"
	"testing"
	"time"

	"trading-alerts/internal/model"
)

func fixedSim() *Simulator {
	s := NewSimulator()
	now := time.Date(2024, 6, 3, 15, 7, 0, 0, time.UTC)
	s.Now = func() time.Time { return now }
	return s
}

func TestSimulator_Deterministic(t *testing.T) {
	s := fixedSim()
	ctx := context.Background()
	end := s.Now()
	a, err := s.GetBars(ctx, "AAPL", "1day", end.AddDate(0, 0, -60), end)
	if err != nil {
		t.Fatalf("GetBars: %v", err)
	}
	b, _ := s.GetBars(ctx, "AAPL", "1day", end.AddDate(0, 0, -30), end)

	// the shorter window is a suffix of the longer one
	off := len(a) - len(b)
	for i := range b {
		if a[off+i] != b[i] {
			t.Fatalf("bar %d differs: %+v vs %+v", i, a[off+i], b[i])
		}
	}
}

func TestSimulator_BarsAreAscendingAndSane(t *testing.T) {
	s := fixedSim()
	end := s.Now()
	for _, tf := range []string{"1min", "15min", "4hour", "1day", "1week"} {
		tfv, _ := ParseTimeframe(tf)
		bars, err := s.GetBars(context.Background(), "BTC/USD", tf, end.Add(-tfv.Lookback(50)), end)
		if err != nil {
			t.Fatalf("%s: %v", tf, err)
		}
		if len(bars) < 50 {
			t.Errorf("%s: only %d bars", tf, len(bars))
		}
		checkBars(t, tf, bars)
	}
}

func checkBars(t *testing.T, tf string, bars []model.Bar) {
	t.Helper()
	for i, b := range bars {
		if i > 0 && !b.TS.After(bars[i-1].TS) {
			t.Fatalf("%s: bars not ascending at %d", tf, i)
		}
		if b.High < b.Low || b.High < b.Open || b.High < b.Close || b.Low > b.Open || b.Low > b.Close {
			t.Fatalf("%s: inconsistent bar %+v", tf, b)
		}
		if b.Close <= 0 || b.Volume <= 0 {
			t.Fatalf("%s: non-positive bar %+v", tf, b)
		}
	}
}

func TestSimulator_UnknownTimeframe(t *testing.T) {
	s := fixedSim()
	if _, err := s.GetBars(context.Background(), "AAPL", "2day", s.Now().Add(-time.Hour), s.Now()); err == nil {
		t.Fatal("expected error")
	}
}

func TestSimulator_Catalog(t *testing.T) {
	assets, _ := fixedSim().ListAssets(context.Background())
	if len(assets) < 6 {
		t.Fatalf("expected default assets, got %d", len(assets))
	}
}
