package indicator

import (
	"math"

	"trading-alerts/internal/model"
)

// folder is the streaming shape shared by SMA, EMA and SMMA.
type folder interface {
	Update(v float64)
	Value() float64
	Reset()
}

func closes(bars []model.Bar) []float64 {
	out := make([]float64, len(bars))
	for i := range bars {
		out[i] = bars[i].Close
	}
	return out
}

func last(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	return xs[len(xs)-1]
}

// foldSeries runs f over xs and records its value after every input.
// A NaN input restarts the fold, so leading gaps of derived series do not
// poison the window.
func foldSeries(f folder, xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		if math.IsNaN(x) {
			f.Reset()
			out[i] = math.NaN()
			continue
		}
		f.Update(x)
		out[i] = f.Value()
	}
	return out
}

func smaSeries(xs []float64, period int) []float64  { return foldSeries(NewSMA(period), xs) }
func emaSeries(xs []float64, period int) []float64  { return foldSeries(NewEMA(period), xs) }
func smmaSeries(xs []float64, period int) []float64 { return foldSeries(NewSMMA(period), xs) }

// sampleStd returns the sample standard deviation (n-1) of the window ending
// at end, or NaN if the window is incomplete.
func sampleStd(xs []float64, end, period int) float64 {
	start := end - period + 1
	if start < 0 || period < 2 {
		return math.NaN()
	}
	mean := 0.0
	for _, x := range xs[start : end+1] {
		mean += x
	}
	mean /= float64(period)
	ss := 0.0
	for _, x := range xs[start : end+1] {
		d := x - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(period-1))
}

// highLow returns the highest high and lowest low of the window ending at end.
func highLow(bars []model.Bar, end, period int) (hh, ll float64, ok bool) {
	start := end - period + 1
	if start < 0 || end >= len(bars) {
		return 0, 0, false
	}
	hh, ll = bars[start].High, bars[start].Low
	for _, b := range bars[start+1 : end+1] {
		if b.High > hh {
			hh = b.High
		}
		if b.Low < ll {
			ll = b.Low
		}
	}
	return hh, ll, true
}

// midpoint is the Donchian midline used by Ichimoku.
func midpoint(bars []model.Bar, end, period int) float64 {
	hh, ll, ok := highLow(bars, end, period)
	if !ok {
		return math.NaN()
	}
	return (hh + ll) / 2
}

// trueRange returns the true range of every bar. The first bar has no
// previous close, so its range is high-low.
func trueRange(bars []model.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		tr := b.High - b.Low
		if i > 0 {
			pc := bars[i-1].Close
			tr = math.Max(tr, math.Max(math.Abs(b.High-pc), math.Abs(b.Low-pc)))
		}
		out[i] = tr
	}
	return out
}

func nanOutput(names ...string) Output {
	out := make(Output, len(names))
	for _, n := range names {
		out[n] = math.NaN()
	}
	return out
}
